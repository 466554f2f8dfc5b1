// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides YAML configuration loading for proxysync
// processes.
//
// Configuration is loaded from a single file specified by either the
// PROXYSYNC_CONFIG environment variable (via [Load]) or a --config
// flag (via [LoadFile]). There is no automatic file search.
//
// The configuration file supports environment-specific sections
// (development, staging, production) that override base values when
// [Config].Environment matches. Production defaults to the badger
// store and JSON logs.
//
// Variable expansion is performed on path and label fields after
// loading: ${HOME}, ${PROXYSYNC_ROOT}, ${PROXYSYNC_STATE} and
// ${VAR:-default} patterns are expanded. No other environment
// variables override config values.
//
// This package depends on no other proxysync packages.
package config
