// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package commands defines the warden CLI command tree.
package commands

import (
	"github.com/warden-fleet/warden/cmd/warden/cli"
)

// Root returns the top-level warden command.
func Root() *cli.Command {
	return &cli.Command{
		Name:    "warden",
		Summary: "remote management client for warden-daemon",
		Description: "Warden is the operator client for warden-daemon. It connects to a\n" +
			"daemon over TLS with a pinned certificate and drives package,\n" +
			"service, and file operations on the remote host.",
		Subcommands: []*cli.Command{
			installCommand(),
			uninstallCommand(),
			serviceCommand(),
			putFileCommand(),
			fetchFileCommand(),
			certCommand(),
		},
	}
}
