// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/warden-fleet/warden/lib/wire"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the warden-daemon configuration. All sizes are bytes.
type Config struct {
	// BindAddress is the TCP listen address, e.g. ":8081" or
	// "10.0.0.5:8081".
	BindAddress string `yaml:"bind_address"`

	// CertPath and KeyPath are the daemon's PEM certificate and
	// private key. Clients pin the certificate file byte-for-byte.
	// No defaults: certificates are operator-provisioned.
	CertPath string `yaml:"cert_path"`
	KeyPath  string `yaml:"key_path"`

	// MaxFrameLength bounds one message on the wire. Finite by
	// requirement — an unbounded frame length lets a peer force
	// unbounded buffering.
	MaxFrameLength int `yaml:"max_frame_length"`

	// ChunkSize is the transfer chunk size clients are told to use
	// (the daemon accepts whatever size the client chose; this is
	// the advertised default).
	ChunkSize int `yaml:"chunk_size"`

	// MaxChannelsPerPeer caps concurrently-served connections from
	// one peer IP; connections beyond the cap are rejected.
	MaxChannelsPerPeer int `yaml:"max_channels_per_peer"`

	// MaxConcurrentChannels caps concurrently-served connections
	// system-wide; accepted connections beyond the cap wait.
	MaxConcurrentChannels int `yaml:"max_concurrent_channels"`

	// TransferIdleTimeout is how long an in-flight transfer may go
	// without a new chunk before the sweep reclaims it.
	// SweepInterval is how often the sweep runs.
	TransferIdleTimeout Duration `yaml:"transfer_idle_timeout"`
	SweepInterval       Duration `yaml:"sweep_interval"`

	// PackageNoConfirm passes the package manager's no-confirm flag
	// on install/uninstall. An unattended daemon wants this on.
	PackageNoConfirm bool `yaml:"package_no_confirm"`

	// ServiceUnit is the systemd unit managed by start_service when
	// no wrapper command is supplied.
	ServiceUnit string `yaml:"service_unit"`
}

// Default returns the built-in defaults. CertPath and KeyPath are
// intentionally empty: they must come from the file or flags.
func Default() *Config {
	return &Config{
		BindAddress:           ":8081",
		MaxFrameLength:        wire.DefaultMaxFrameLength,
		ChunkSize:             5 << 20, // 5 MiB
		MaxChannelsPerPeer:    1,
		MaxConcurrentChannels: 10,
		TransferIdleTimeout:   Duration(10 * time.Minute),
		SweepInterval:         Duration(time.Minute),
		PackageNoConfirm:      true,
		ServiceUnit:           "warden-node.service",
	}
}

// Load loads configuration from the file named by WARDEN_CONFIG.
func Load() (*Config, error) {
	path := os.Getenv("WARDEN_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("WARDEN_CONFIG environment variable not set; " +
			"set it to the path of your warden.yaml, or use the --config flag")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from path, merged over Default().
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the configuration. All violations are reported at
// once.
func (c *Config) Validate() error {
	var errs []error

	if c.BindAddress == "" {
		errs = append(errs, fmt.Errorf("bind_address is required"))
	}
	if c.CertPath == "" {
		errs = append(errs, fmt.Errorf("cert_path is required"))
	}
	if c.KeyPath == "" {
		errs = append(errs, fmt.Errorf("key_path is required"))
	}
	if c.MaxFrameLength <= 0 {
		errs = append(errs, fmt.Errorf("max_frame_length must be positive (unbounded frames are not permitted)"))
	}
	if c.ChunkSize < 1 {
		errs = append(errs, fmt.Errorf("chunk_size must be at least 1"))
	}
	if c.ChunkSize > c.MaxFrameLength {
		errs = append(errs, fmt.Errorf("chunk_size %d exceeds max_frame_length %d; chunks could never be framed",
			c.ChunkSize, c.MaxFrameLength))
	}
	if c.MaxChannelsPerPeer < 1 {
		errs = append(errs, fmt.Errorf("max_channels_per_peer must be at least 1"))
	}
	if c.MaxConcurrentChannels < 1 {
		errs = append(errs, fmt.Errorf("max_concurrent_channels must be at least 1"))
	}
	if c.TransferIdleTimeout.Std() <= 0 {
		errs = append(errs, fmt.Errorf("transfer_idle_timeout must be positive"))
	}
	if c.SweepInterval.Std() <= 0 {
		errs = append(errs, fmt.Errorf("sweep_interval must be positive"))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}
