// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "proxysync"

// Metrics holds the server's Prometheus collectors.
type Metrics struct {
	// Requests counts handled requests.
	// Labels: op, status (ok, error)
	Requests *prometheus.CounterVec

	// Pushes counts state pushes that changed the stored state.
	Pushes prometheus.Counter

	// DuplicatePushes counts pushes whose state matched the stored
	// digest and were not forwarded.
	DuplicatePushes prometheus.Counter

	// Notifications counts envelopes fanned out to clients.
	// Labels: op
	Notifications *prometheus.CounterVec

	// ReservedIDs counts global ids handed out.
	ReservedIDs prometheus.Counter

	// Clients is the number of connected clients.
	Clients prometheus.Gauge

	// SlowClients counts clients dropped because their outbound
	// queue overflowed.
	SlowClients prometheus.Counter
}

// NewMetrics creates the collectors and registers them with registerer.
func NewMetrics(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "requests_total",
			Help:      "Requests handled, by operation and status.",
		}, []string{"op", "status"}),
		Pushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "state_pushes_total",
			Help:      "State pushes that changed the stored state.",
		}),
		DuplicatePushes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "state_pushes_duplicate_total",
			Help:      "State pushes identical to the stored state.",
		}),
		Notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "notifications_total",
			Help:      "Envelopes fanned out to clients, by operation.",
		}, []string{"op"}),
		ReservedIDs: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "reserved_ids_total",
			Help:      "Global ids allocated to clients.",
		}),
		Clients: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "clients",
			Help:      "Connected clients.",
		}),
		SlowClients: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "slow_clients_total",
			Help:      "Clients disconnected because they could not keep up.",
		}),
	}
}
