// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/warden-fleet/warden/cmd/warden/cli"
	"github.com/warden-fleet/warden/lib/agent"
)

func installCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "install",
		Summary: "install a package on the remote host",
		Usage:   "warden install <package> [flags]",
		Examples: []cli.Example{
			{Description: "install ripgrep on the daemon's host", Command: "warden install ripgrep --server 10.0.0.5:8081 --server-cert daemon.pem"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("install", pflag.ContinueOnError)
			conn.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one package name, got %d arguments", len(args))
			}
			client, ctx, cancel, err := conn.dial(nil)
			if err != nil {
				return err
			}
			defer cancel()
			defer client.Close()

			response, err := client.InstallPackage(ctx, args[0])
			if err != nil {
				return err
			}
			switch response.Status {
			case agent.StatusSuccess:
				fmt.Printf("installed %s\n", args[0])
			case agent.StatusAlreadyInstalled:
				fmt.Printf("%s is already installed\n", args[0])
			default:
				return fmt.Errorf("installing %s: %s", args[0], response.Detail)
			}
			return nil
		},
	}
}

func uninstallCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "uninstall",
		Summary: "remove a package from the remote host",
		Usage:   "warden uninstall <package> [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("uninstall", pflag.ContinueOnError)
			conn.register(flags)
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 1 {
				return fmt.Errorf("expected exactly one package name, got %d arguments", len(args))
			}
			client, ctx, cancel, err := conn.dial(nil)
			if err != nil {
				return err
			}
			defer cancel()
			defer client.Close()

			response, err := client.UninstallPackage(ctx, args[0])
			if err != nil {
				return err
			}
			if response.Status != agent.StatusSuccess {
				return fmt.Errorf("uninstalling %s: %s", args[0], response.Detail)
			}
			fmt.Printf("uninstalled %s\n", args[0])
			return nil
		},
	}
}
