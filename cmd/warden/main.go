// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Warden is the operator CLI for warden-daemon. It connects over TLS
// with a pinned server certificate and drives package, service, and
// file operations on remote hosts.
package main

import (
	"fmt"
	"os"

	"github.com/warden-fleet/warden/cmd/warden/commands"
)

func main() {
	if err := commands.Root().Execute(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
