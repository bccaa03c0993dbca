// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/warden-fleet/warden/lib/agent"
	"github.com/warden-fleet/warden/lib/transfer"
)

// connection holds the flags shared by every command that talks to a
// daemon. Defaults come from the environment so an operator working
// against one host does not repeat them per invocation.
type connection struct {
	server      string
	serverCert  string
	cert        string
	key         string
	timeout     time.Duration
	chunkSize   int
	compression string
}

func (c *connection) register(flags *pflag.FlagSet) {
	flags.StringVar(&c.server, "server", os.Getenv("WARDEN_SERVER"), "daemon address, host:port (default $WARDEN_SERVER)")
	flags.StringVar(&c.serverCert, "server-cert", os.Getenv("WARDEN_SERVER_CERT"), "pinned daemon certificate, PEM (default $WARDEN_SERVER_CERT)")
	flags.StringVar(&c.cert, "cert", "", "client certificate, PEM (optional)")
	flags.StringVar(&c.key, "key", "", "client private key, PEM (optional)")
	flags.DurationVar(&c.timeout, "timeout", 2*time.Minute, "overall operation timeout")
}

func (c *connection) registerTransfer(flags *pflag.FlagSet) {
	flags.IntVar(&c.chunkSize, "chunk-size", agent.DefaultChunkSize, "transfer chunk size in bytes")
	flags.StringVar(&c.compression, "compression", "zstd", "transfer compression: none, zstd, or lz4")
}

// dial connects to the daemon. The returned context carries the
// operation timeout; the caller runs the operation under it and then
// cancels.
func (c *connection) dial(progress func(*agent.PutFileChunkResponse)) (*agent.Client, context.Context, context.CancelFunc, error) {
	if c.server == "" {
		return nil, nil, nil, fmt.Errorf("--server (or $WARDEN_SERVER) is required")
	}
	if c.serverCert == "" {
		return nil, nil, nil, fmt.Errorf("--server-cert (or $WARDEN_SERVER_CERT) is required")
	}

	compression := transfer.CompressionZstd
	if c.compression != "" {
		parsed, err := transfer.ParseCompression(c.compression)
		if err != nil {
			return nil, nil, nil, err
		}
		compression = parsed
	}

	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	client, err := agent.Dial(ctx, agent.ClientOptions{
		Address:        c.server,
		ServerCertPath: c.serverCert,
		CertPath:       c.cert,
		KeyPath:        c.key,
		ChunkSize:      c.chunkSize,
		Compression:    compression,
		Progress:       progress,
	})
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return client, ctx, cancel, nil
}
