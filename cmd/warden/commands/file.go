// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/spf13/pflag"

	"github.com/warden-fleet/warden/cmd/warden/cli"
	"github.com/warden-fleet/warden/lib/agent"
	"github.com/warden-fleet/warden/lib/transfer"
)

func putFileCommand() *cli.Command {
	conn := &connection{}
	var perms string
	return &cli.Command{
		Name:    "put-file",
		Summary: "copy a local file to the remote host",
		Usage:   "warden put-file <local-path> <remote-path> [flags]",
		Examples: []cli.Example{
			{Description: "deploy a binary with execute permissions", Command: "warden put-file ./node /opt/node/node --perms 0755"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("put-file", pflag.ContinueOnError)
			conn.register(flags)
			conn.registerTransfer(flags)
			flags.StringVar(&perms, "perms", "0644", "target file permissions, octal")
			return flags
		},
		Run: func(args []string) error {
			if len(args) != 2 {
				return fmt.Errorf("expected <local-path> <remote-path>, got %d arguments", len(args))
			}
			mode, err := parsePerms(perms)
			if err != nil {
				return err
			}

			client, ctx, cancel, err := conn.dial(func(response *agent.PutFileChunkResponse) {
				if response.Status == agent.StatusProgress {
					fmt.Fprintf(os.Stderr, "chunk %d delivered (%d received)\n", response.ChunkID, response.SeenCount)
				}
			})
			if err != nil {
				return err
			}
			defer cancel()
			defer client.Close()

			response, err := client.PutFile(ctx, args[0], args[1], mode)
			if err != nil {
				return err
			}
			if response.Status != agent.StatusSuccess {
				return fmt.Errorf("putting %s: %s", args[1], response.Detail)
			}
			fmt.Printf("wrote %s\n", args[1])
			return nil
		},
	}
}

func fetchFileCommand() *cli.Command {
	conn := &connection{}
	var perms string
	return &cli.Command{
		Name:    "fetch-file",
		Summary: "copy a file from the remote host to the local machine",
		Usage:   "warden fetch-file <remote-path> [local-path] [flags]",
		Examples: []cli.Example{
			{Description: "fetch a log into the current directory", Command: "warden fetch-file /var/log/node.log"},
		},
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("fetch-file", pflag.ContinueOnError)
			conn.register(flags)
			flags.StringVar(&perms, "perms", "0644", "local file permissions, octal")
			return flags
		},
		Run: func(args []string) error {
			if len(args) < 1 || len(args) > 2 {
				return fmt.Errorf("expected <remote-path> [local-path], got %d arguments", len(args))
			}
			mode, err := parsePerms(perms)
			if err != nil {
				return err
			}

			client, ctx, cancel, err := conn.dial(nil)
			if err != nil {
				return err
			}
			defer cancel()
			defer client.Close()

			response, err := client.FetchFile(ctx, args[0], "")
			if err != nil {
				return err
			}
			if response.Status != agent.StatusSuccess || response.File == nil {
				return fmt.Errorf("fetching %s: %s", args[0], response.Detail)
			}

			localPath := response.File.Filename
			if len(args) == 2 {
				localPath = args[1]
				if info, err := os.Stat(localPath); err == nil && info.IsDir() {
					localPath = filepath.Join(localPath, response.File.Filename)
				}
			}
			if err := transfer.WriteFile(response.File, localPath, mode); err != nil {
				return err
			}
			fmt.Printf("fetched %s -> %s\n", args[0], localPath)
			return nil
		},
	}
}

func parsePerms(perms string) (fs.FileMode, error) {
	parsed, err := strconv.ParseUint(perms, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("permissions %q are not octal: %w", perms, err)
	}
	return fs.FileMode(parsed), nil
}
