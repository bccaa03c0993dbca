// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"

	"github.com/spf13/pflag"

	"github.com/warden-fleet/warden/cmd/warden/cli"
	"github.com/warden-fleet/warden/lib/agent"
)

func serviceCommand() *cli.Command {
	return &cli.Command{
		Name:    "service",
		Summary: "control the managed service on the remote host",
		Subcommands: []*cli.Command{
			serviceStartCommand(),
			serviceStopCommand(),
		},
	}
}

func serviceStartCommand() *cli.Command {
	conn := &connection{}
	var wrapper string
	return &cli.Command{
		Name:    "start",
		Summary: "start (or restart) the managed service",
		Usage:   "warden service start [flags]",
		Examples: []cli.Example{
			{Description: "start through a wrapper script instead of the unit", Command: "warden service start --wrapper '/opt/node/run.sh --fast'"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("start", pflag.ContinueOnError)
			conn.register(flags)
			flags.StringVar(&wrapper, "wrapper", "", "command line to launch the service instead of the configured unit")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 0 {
				return fmt.Errorf("start takes no positional arguments")
			}
			client, ctx, cancel, err := conn.dial(nil)
			if err != nil {
				return err
			}
			defer cancel()
			defer client.Close()

			response, err := client.StartService(ctx, wrapper)
			if err != nil {
				return err
			}
			switch response.Status {
			case agent.StatusSuccess:
				fmt.Println("service started")
			case agent.StatusRestarted:
				fmt.Println("service restarted")
			default:
				return fmt.Errorf("starting service: %s", response.Detail)
			}
			return nil
		},
	}
}

func serviceStopCommand() *cli.Command {
	conn := &connection{}
	return &cli.Command{
		Name:    "stop",
		Summary: "stop a service on the remote host",
		Usage:   "warden service stop [service] [flags]",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("stop", pflag.ContinueOnError)
			conn.register(flags)
			return flags
		},
		Run: func(args []string) error {
			service := ""
			switch len(args) {
			case 0:
			case 1:
				service = args[0]
			default:
				return fmt.Errorf("expected at most one service name, got %d arguments", len(args))
			}
			client, ctx, cancel, err := conn.dial(nil)
			if err != nil {
				return err
			}
			defer cancel()
			defer client.Close()

			response, err := client.StopService(ctx, service)
			if err != nil {
				return err
			}
			if response.Status == agent.StatusError {
				return fmt.Errorf("stopping service: %s", response.Detail)
			}
			fmt.Println("service stopped")
			return nil
		},
	}
}
