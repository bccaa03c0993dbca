// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import (
	"bytes"
	"strings"
	"testing"

	"github.com/spf13/pflag"
)

func TestCommand_Execute_DispatchesToSubcommand(t *testing.T) {
	var called string

	root := &Command{
		Name: "warden",
		Subcommands: []*Command{
			{
				Name: "install",
				Run: func(args []string) error {
					called = "install"
					return nil
				},
			},
			{
				Name: "service",
				Run: func(args []string) error {
					called = "service"
					return nil
				},
			},
		},
	}

	if err := root.Execute([]string{"service"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if called != "service" {
		t.Errorf("dispatched to %q, want %q", called, "service")
	}
}

func TestCommand_Execute_NestedSubcommands(t *testing.T) {
	var receivedArgs []string

	root := &Command{
		Name: "warden",
		Subcommands: []*Command{
			{
				Name: "service",
				Subcommands: []*Command{
					{
						Name: "start",
						Run: func(args []string) error {
							receivedArgs = args
							return nil
						},
					},
				},
			},
		},
	}

	if err := root.Execute([]string{"service", "start", "extra"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if len(receivedArgs) != 1 || receivedArgs[0] != "extra" {
		t.Errorf("args = %v, want [extra]", receivedArgs)
	}
}

func TestCommand_Execute_UnknownSubcommand(t *testing.T) {
	root := &Command{
		Name: "warden",
		Subcommands: []*Command{
			{Name: "install", Run: func(args []string) error { return nil }},
		},
	}

	err := root.Execute([]string{"reinstall"})
	if err == nil {
		t.Fatal("expected error for unknown subcommand")
	}
	if !strings.Contains(err.Error(), "reinstall") {
		t.Errorf("error %q does not name the unknown command", err)
	}
}

func TestCommand_Execute_ParsesFlags(t *testing.T) {
	var server string
	var positional []string

	command := &Command{
		Name: "install",
		Flags: func() *pflag.FlagSet {
			flags := pflag.NewFlagSet("install", pflag.ContinueOnError)
			flags.StringVar(&server, "server", "", "daemon address")
			return flags
		},
		Run: func(args []string) error {
			positional = args
			return nil
		},
	}

	if err := command.Execute([]string{"--server", "10.0.0.5:8081", "ripgrep"}); err != nil {
		t.Fatalf("Execute() error: %v", err)
	}
	if server != "10.0.0.5:8081" {
		t.Errorf("server = %q", server)
	}
	if len(positional) != 1 || positional[0] != "ripgrep" {
		t.Errorf("positional args = %v, want [ripgrep]", positional)
	}
}

func TestCommand_Execute_UnknownFlag(t *testing.T) {
	command := &Command{
		Name: "install",
		Flags: func() *pflag.FlagSet {
			return pflag.NewFlagSet("install", pflag.ContinueOnError)
		},
		Run: func(args []string) error { return nil },
	}

	if err := command.Execute([]string{"--bogus"}); err == nil {
		t.Fatal("expected error for unknown flag")
	}
}

func TestCommand_Execute_SubcommandRequired(t *testing.T) {
	root := &Command{
		Name: "warden",
		Subcommands: []*Command{
			{Name: "install", Run: func(args []string) error { return nil }},
		},
	}

	if err := root.Execute(nil); err == nil {
		t.Fatal("expected error when no subcommand given")
	}
}

func TestCommand_PrintHelp_ListsSubcommands(t *testing.T) {
	root := &Command{
		Name: "warden",
		Subcommands: []*Command{
			{Name: "install", Summary: "install a package"},
			{Name: "put-file", Summary: "copy a file to the remote host"},
		},
	}

	var buf bytes.Buffer
	root.PrintHelp(&buf)
	help := buf.String()

	for _, want := range []string{"install", "install a package", "put-file", "copy a file"} {
		if !strings.Contains(help, want) {
			t.Errorf("help output missing %q:\n%s", want, help)
		}
	}
}

func TestCommand_PrintHelp_Examples(t *testing.T) {
	command := &Command{
		Name:    "install",
		Summary: "install a package",
		Examples: []Example{
			{Description: "install ripgrep", Command: "warden install ripgrep"},
		},
	}

	var buf bytes.Buffer
	command.PrintHelp(&buf)
	if !strings.Contains(buf.String(), "warden install ripgrep") {
		t.Errorf("help output missing example:\n%s", buf.String())
	}
}

func TestCommand_FullNameIncludesParents(t *testing.T) {
	root := &Command{
		Name: "warden",
		Subcommands: []*Command{
			{
				Name: "service",
				Subcommands: []*Command{
					{Name: "start"},
				},
			},
		},
	}

	// Dispatch through the tree so parent pointers are set, then
	// check the error text carries the full path.
	err := root.Execute([]string{"service", "bogus"})
	if err == nil || !strings.Contains(err.Error(), "warden service") {
		t.Errorf("error %v does not carry the full command path", err)
	}
}
