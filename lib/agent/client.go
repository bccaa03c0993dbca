// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"context"
	"crypto/tls"
	"fmt"
	"io/fs"
	"net"
	"sync"

	"github.com/warden-fleet/warden/lib/codec"
	"github.com/warden-fleet/warden/lib/tlspin"
	"github.com/warden-fleet/warden/lib/transfer"
	"github.com/warden-fleet/warden/lib/wire"
)

// ClientOptions configure a connection to a warden-daemon.
type ClientOptions struct {
	// Address is the daemon's TCP address, host:port.
	Address string

	// ServerCertPath is the daemon's certificate file, pinned
	// byte-for-byte. Required.
	ServerCertPath string

	// CertPath and KeyPath are the client's own certificate pair,
	// presented if the server requests mutual authentication.
	// Optional.
	CertPath string
	KeyPath  string

	// ChunkSize is the transfer chunk size. Files whose compressed
	// form exceeds it are sent chunked. Zero selects 5 MiB.
	ChunkSize int

	// MaxFrameLength bounds received frames. Zero selects
	// wire.DefaultMaxFrameLength.
	MaxFrameLength int

	// Compression is the algorithm for file transfers. The zero
	// value (none) is almost never what an operator wants; the CLI
	// defaults to zstd.
	Compression transfer.Compression

	// Progress, when set, is invoked after each chunk response
	// during a chunked upload.
	Progress func(response *PutFileChunkResponse)
}

// DefaultChunkSize matches the daemon's advertised default.
const DefaultChunkSize = 5 << 20

// Client is a connection to one warden-daemon. Calls on one client
// are serialized: the protocol answers requests in order, so a call
// owns the connection until its response arrives. A Client is safe
// for concurrent use; concurrent calls simply queue.
type Client struct {
	conn    *wire.Conn
	options ClientOptions

	// callMu enforces one in-flight request/response exchange.
	callMu sync.Mutex
}

// Dial connects to the daemon and completes the TLS handshake. The
// connection is rejected unless the server presents exactly the
// pinned certificate.
func Dial(ctx context.Context, options ClientOptions) (*Client, error) {
	if options.Address == "" {
		return nil, fmt.Errorf("daemon address is required")
	}
	if options.ChunkSize == 0 {
		options.ChunkSize = DefaultChunkSize
	}

	tlsConfig, err := tlspin.ClientConfig(options.CertPath, options.KeyPath, options.ServerCertPath)
	if err != nil {
		return nil, err
	}

	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: tlsConfig}
	conn, err := dialer.DialContext(ctx, "tcp", options.Address)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", options.Address, err)
	}

	return &Client{
		conn:    wire.NewConn(conn, options.MaxFrameLength),
		options: options,
	}, nil
}

// NewClient wraps an already-established connection. Dial is the
// normal path; this exists for callers that set up their own
// transport.
func NewClient(conn net.Conn, options ClientOptions) *Client {
	if options.ChunkSize == 0 {
		options.ChunkSize = DefaultChunkSize
	}
	return &Client{
		conn:    wire.NewConn(conn, options.MaxFrameLength),
		options: options,
	}
}

// Close closes the connection.
func (c *Client) Close() error { return c.conn.Close() }

// call runs one request/response exchange. result must be a pointer
// to the method's typed response.
func (c *Client) call(ctx context.Context, method string, payload, result any) error {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", method, err)
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.conn.Send(ctx, Request{Method: method, Payload: encoded}); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}

	var response Response
	if err := c.conn.Receive(ctx, &response); err != nil {
		return fmt.Errorf("%s: %w", method, err)
	}
	if !response.OK {
		return fmt.Errorf("%s: daemon rejected request: %s", method, response.Error)
	}
	if err := codec.Unmarshal(response.Data, result); err != nil {
		return fmt.Errorf("%s: decoding response: %w", method, err)
	}
	return nil
}

// Call performs a raw request/response exchange for the named method
// and returns the undecoded response data. Escape hatch for tooling;
// normal use goes through the typed methods.
func (c *Client) Call(ctx context.Context, method string, payload any) (codec.RawMessage, error) {
	encoded, err := codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encoding %s payload: %w", method, err)
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	if err := c.conn.Send(ctx, Request{Method: method, Payload: encoded}); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	var response Response
	if err := c.conn.Receive(ctx, &response); err != nil {
		return nil, fmt.Errorf("%s: %w", method, err)
	}
	if !response.OK {
		return nil, fmt.Errorf("%s: daemon rejected request: %s", method, response.Error)
	}
	return response.Data, nil
}

// InstallPackage installs a package on the daemon's host.
func (c *Client) InstallPackage(ctx context.Context, name string) (*InstallPackageResponse, error) {
	var response InstallPackageResponse
	if err := c.call(ctx, MethodInstallPackage, InstallPackageRequest{Name: name}, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// UninstallPackage removes a package from the daemon's host.
func (c *Client) UninstallPackage(ctx context.Context, name string) (*UninstallPackageResponse, error) {
	var response UninstallPackageResponse
	if err := c.call(ctx, MethodUninstallPackage, UninstallPackageRequest{Name: name}, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// StartService starts the managed service, optionally through a
// wrapper command.
func (c *Client) StartService(ctx context.Context, wrapper string) (*StartServiceResponse, error) {
	var response StartServiceResponse
	if err := c.call(ctx, MethodStartService, StartServiceRequest{Wrapper: wrapper}, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// StopService stops the named service.
func (c *Client) StopService(ctx context.Context, service string) (*StopServiceResponse, error) {
	var response StopServiceResponse
	if err := c.call(ctx, MethodStopService, StopServiceRequest{Service: service}, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// PutFile transfers the local file at localPath to targetPath on the
// daemon's host with the given permissions. The file is compressed
// first; if the compressed form fits one chunk it goes as a single
// put_file, otherwise it is split and sent chunk by chunk. Chunks are
// delivered at-least-once: a Duplicate response is treated as
// progress, any error restarts nothing — the caller decides whether
// to retry the whole transfer.
func (c *Client) PutFile(ctx context.Context, localPath, targetPath string, perms fs.FileMode) (*PutFileResponse, error) {
	file, err := transfer.CompressPath(localPath, c.options.Compression)
	if err != nil {
		return nil, err
	}

	if len(file.Data) <= c.options.ChunkSize {
		var response PutFileResponse
		err := c.call(ctx, MethodPutFile, PutFileRequest{
			TargetPath:  targetPath,
			TargetPerms: uint32(perms),
			File:        *file,
		}, &response)
		if err != nil {
			return nil, err
		}
		return &response, nil
	}

	return c.putFileChunked(ctx, file, targetPath, perms)
}

// putFileChunked splits the compressed file and submits every chunk.
// The transfer is complete when the daemon reports complete; a
// terminal error status aborts immediately (the transfer cannot
// succeed — the client restarts from scratch if it wants to retry).
func (c *Client) putFileChunked(ctx context.Context, file *transfer.CompressedFile, targetPath string, perms fs.FileMode) (*PutFileResponse, error) {
	key := file.Key()
	chunks, err := file.Split(c.options.ChunkSize)
	if err != nil {
		return nil, err
	}

	var final *PutFileChunkResponse
	for _, chunk := range chunks {
		response, err := c.PutFileChunk(ctx, &PutFileChunkRequest{
			FileHash:         key[:],
			TargetPath:       targetPath,
			TargetPerms:      uint32(perms),
			Compression:      file.Compression,
			UncompressedSize: file.UncompressedSize,
			Chunk:            chunk,
		})
		if err != nil {
			return nil, err
		}
		if c.options.Progress != nil {
			c.options.Progress(response)
		}
		if response.Status == StatusError {
			return nil, fmt.Errorf("transfer %s failed at chunk %d: %s",
				key, response.ChunkID, response.Detail)
		}
		final = response
	}

	if final == nil || final.Status != StatusComplete {
		status := "no response"
		if final != nil {
			status = final.Status
		}
		return nil, fmt.Errorf("transfer %s: sent all %d chunks but final status is %q",
			key, len(chunks), status)
	}
	return &PutFileResponse{Status: StatusSuccess}, nil
}

// PutFileChunk submits one chunk. Exposed for callers that manage
// their own chunk scheduling or retry policy.
func (c *Client) PutFileChunk(ctx context.Context, request *PutFileChunkRequest) (*PutFileChunkResponse, error) {
	var response PutFileChunkResponse
	if err := c.call(ctx, MethodPutFileChunk, request, &response); err != nil {
		return nil, err
	}
	return &response, nil
}

// FetchFile asks the daemon to read hostSrcPath from its disk and
// return it compressed. filename overrides the transfer filename;
// empty derives it from the path.
func (c *Client) FetchFile(ctx context.Context, hostSrcPath, filename string) (*FetchFileResponse, error) {
	var response FetchFileResponse
	err := c.call(ctx, MethodFetchFile, FetchFileRequest{
		HostSrcPath: hostSrcPath,
		Filename:    filename,
	}, &response)
	if err != nil {
		return nil, err
	}
	return &response, nil
}
