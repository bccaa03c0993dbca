// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Warden-daemon is the network-facing agent process. It listens on a TLS
// socket reachable over the fleet's private network and exposes a fixed
// set of management operations to the operator's client: package
// install/uninstall, service start/stop, and push/fetch of files with
// chunked transfer for anything that does not fit one frame.
//
// Trust is certificate pinning: the operator distributes the daemon's
// self-signed certificate to clients out of band, and clients accept only
// that exact certificate. The daemon keeps no durable state beyond the
// files it writes — in-flight transfers live in memory and restart from
// the client after a daemon restart.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/warden-fleet/warden/lib/config"
	"github.com/warden-fleet/warden/lib/pkgmgr"
	"github.com/warden-fleet/warden/lib/servicectl"
	"github.com/warden-fleet/warden/lib/tlspin"
	"github.com/warden-fleet/warden/lib/transfer"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig resolves the daemon configuration: an explicit --config
// path wins, then $WARDEN_CONFIG, then built-in defaults, so the
// flags alone can fully configure a daemon. Flag overrides apply on
// top of whichever source was used.
func loadConfig(configPath, bindAddr, certPath, keyPath string) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case configPath != "":
		cfg, err = config.LoadFile(configPath)
	case os.Getenv("WARDEN_CONFIG") != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if bindAddr != "" {
		cfg.BindAddress = bindAddr
	}
	if certPath != "" {
		cfg.CertPath = certPath
	}
	if keyPath != "" {
		cfg.KeyPath = keyPath
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func run() error {
	var (
		configPath string
		bindAddr   string
		certPath   string
		keyPath    string
	)

	flag.StringVar(&configPath, "config", "", "path to YAML config file (default $WARDEN_CONFIG, else built-in defaults)")
	flag.StringVar(&bindAddr, "bind", "", "listen address (overrides config)")
	flag.StringVar(&certPath, "cert", "", "path to PEM server certificate (overrides config)")
	flag.StringVar(&keyPath, "key", "", "path to PEM server private key (overrides config)")
	flag.Parse()

	cfg, err := loadConfig(configPath, bindAddr, certPath, keyPath)
	if err != nil {
		return err
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tlsConfig, err := tlspin.ServerConfig(cfg.CertPath, cfg.KeyPath)
	if err != nil {
		return fmt.Errorf("loading server certificate: %w", err)
	}

	// A machine without a supported package manager can still serve file
	// transfers and service control.
	packages, err := pkgmgr.Detect(cfg.PackageNoConfirm)
	if err != nil {
		logger.Warn("no supported package manager found, package operations disabled")
	} else {
		logger.Info("package manager detected", "manager", packages.Name())
	}

	server := newServer(cfg, tlsConfig, &servicectl.Systemd{Unit: cfg.ServiceUnit}, packages, transfer.NewRegistry(), logger)

	listener, err := net.Listen("tcp", cfg.BindAddress)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", cfg.BindAddress, err)
	}
	logger.Info("warden-daemon listening", "address", listener.Addr().String())

	return server.Serve(ctx, listener)
}
