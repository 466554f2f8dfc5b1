// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// proxysync-server is the state server collaborating clients connect
// to. It serves the session protocol over WebSocket at /ws and
// Prometheus metrics at /metrics on a separate listener.
//
// Configuration comes from --config, else from PROXYSYNC_CONFIG, else
// the development defaults. --listen overrides server.listen.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/bureau-foundation/proxysync/lib/config"
	"github.com/bureau-foundation/proxysync/lib/version"
	"github.com/bureau-foundation/proxysync/server"
	"github.com/bureau-foundation/proxysync/store"
)

// shutdownGrace bounds how long open connections get to drain.
const shutdownGrace = 5 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		configPath  string
		listen      string
		showVersion bool
	)
	flagSet := pflag.NewFlagSet("proxysync-server", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to proxysync.yaml (default: $PROXYSYNC_CONFIG)")
	flagSet.StringVar(&listen, "listen", "", "WebSocket listen address (overrides server.listen)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if showVersion {
		fmt.Printf("proxysync-server %s\n", version.Full())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		cfg.Server.Listen = listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Server.Log, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := openStore(cfg, logger)
	if err != nil {
		return err
	}
	defer st.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	srv, err := server.New(ctx, server.Config{
		Store:             st,
		CompressThreshold: cfg.Server.CompressThreshold,
		Metrics:           server.NewMetrics(registry),
		Logger:            logger.With("component", "server"),
	})
	if err != nil {
		return fmt.Errorf("starting server: %w", err)
	}

	logger.Info("proxysync server starting",
		"version", version.Short(),
		"environment", cfg.Environment,
		"listen", cfg.Server.Listen,
		"metrics_listen", cfg.Server.MetricsListen,
		"store", cfg.Server.Store.Kind,
	)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return serveHTTP(ctx, cfg.Server.Listen, sessionMux(srv), logger)
	})
	if cfg.Server.MetricsListen != "" {
		group.Go(func() error {
			return serveHTTP(ctx, cfg.Server.MetricsListen, metricsMux(registry), logger)
		})
	}
	err = group.Wait()
	logger.Info("proxysync server stopped")
	return err
}

// loadConfig reads path, PROXYSYNC_CONFIG, or the defaults, in that
// order of preference.
func loadConfig(path string) (*config.Config, error) {
	switch {
	case path != "":
		cfg, err := config.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		return cfg, nil
	case os.Getenv("PROXYSYNC_CONFIG") != "":
		return config.Load()
	default:
		cfg := config.Default()
		cfg.Resolve()
		return cfg, nil
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}
	switch cfg.Format {
	case "json":
		return slog.New(slog.NewJSONHandler(w, options)), nil
	case "text":
		return slog.New(slog.NewTextHandler(w, options)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func openStore(cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Server.Store.Kind {
	case config.StoreMemory:
		logger.Warn("using the memory store; state is lost on exit")
		return store.NewMemory(), nil
	case config.StoreBadger:
		if err := cfg.EnsurePaths(); err != nil {
			return nil, err
		}
		badger, err := store.OpenBadger(store.BadgerConfig{
			Path:       cfg.Server.Store.Path,
			SyncWrites: cfg.Environment == config.Production,
			GCInterval: 10 * time.Minute,
			Logger:     logger.With("component", "badger"),
		})
		if err != nil {
			return nil, fmt.Errorf("opening badger store at %s: %w", cfg.Server.Store.Path, err)
		}
		return badger, nil
	default:
		return nil, fmt.Errorf("unknown store kind %q", cfg.Server.Store.Kind)
	}
}

func sessionMux(srv *server.Server) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/ws", srv.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		io.WriteString(w, "ok\n")
	})
	return mux
}

func metricsMux(gatherer prometheus.Gatherer) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return mux
}

// serveHTTP serves handler on address until ctx is done, then shuts
// down gracefully.
func serveHTTP(ctx context.Context, address string, handler http.Handler, logger *slog.Logger) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", address, err)
	}
	httpServer := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	stop := context.AfterFunc(ctx, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http shutdown", "address", address, "error", err)
			httpServer.Close()
		}
	})
	defer stop()

	logger.Info("listening", "address", listener.Addr().String())
	if err := httpServer.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving %s: %w", address, err)
	}
	return nil
}
