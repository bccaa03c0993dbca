// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the warden-daemon configuration.
//
// Configuration comes from a single YAML file named by the
// WARDEN_CONFIG environment variable or a --config flag. There is no
// search path and no environment-variable override of individual
// values: one file, deterministic and auditable. Every field has a
// default, so a minimal file sets only the certificate paths.
package config
