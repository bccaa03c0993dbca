// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/warden-fleet/warden/cmd/warden/cli"
	"github.com/warden-fleet/warden/lib/tlspin"
)

func certCommand() *cli.Command {
	return &cli.Command{
		Name:    "cert",
		Summary: "certificate utilities",
		Subcommands: []*cli.Command{
			certGenerateCommand(),
		},
	}
}

func certGenerateCommand() *cli.Command {
	var (
		host     string
		certPath string
		keyPath  string
	)
	return &cli.Command{
		Name:    "generate",
		Summary: "generate a self-signed certificate pair for a daemon",
		Usage:   "warden cert generate --host <address> [flags]",
		Description: "Generate a self-signed certificate and private key for a\n" +
			"warden-daemon. The certificate file is what clients pin: copy it\n" +
			"to every operator machine and point --server-cert at it.",
		Examples: []cli.Example{
			{Description: "generate a pair for a daemon reachable at 10.0.0.5", Command: "warden cert generate --host 10.0.0.5"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("generate", pflag.ContinueOnError)
			flags.StringVar(&host, "host", "", "IP address or DNS name the daemon serves on (required)")
			flags.StringVar(&certPath, "cert", "warden-daemon.pem", "output path for the certificate")
			flags.StringVar(&keyPath, "key", "warden-daemon.key", "output path for the private key")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("generate takes no positional arguments")
			}
			if host == "" {
				return fmt.Errorf("--host is required")
			}
			if err := tlspin.GenerateSelfSigned(host, certPath, keyPath); err != nil {
				return err
			}
			fmt.Printf("wrote %s and %s\n", certPath, keyPath)
			return nil
		},
	}
}
