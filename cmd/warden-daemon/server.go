// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"crypto/tls"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/warden-fleet/warden/lib/config"
	"github.com/warden-fleet/warden/lib/pkgmgr"
	"github.com/warden-fleet/warden/lib/servicectl"
	"github.com/warden-fleet/warden/lib/transfer"
	"github.com/warden-fleet/warden/lib/wire"
)

const handshakeTimeout = 10 * time.Second

// server accepts TLS channels and dispatches agent requests. Admission
// is bounded two ways: a per-peer-address channel cap (a client opens
// one channel and multiplexes requests over it) and a global cap on
// concurrently served channels.
type server struct {
	config    *config.Config
	tlsConfig *tls.Config
	lifecycle servicectl.Lifecycle
	packages  pkgmgr.Manager // nil when no manager was detected
	registry  *transfer.Registry
	logger    *slog.Logger

	peersMu sync.Mutex
	peers   map[string]int

	// Buffered channel used as a counting semaphore over served
	// channels. Acquired after accept so a full server keeps the
	// backlog in the kernel rather than dropping connections.
	slots chan struct{}
}

func newServer(cfg *config.Config, tlsConfig *tls.Config, lifecycle servicectl.Lifecycle, packages pkgmgr.Manager, registry *transfer.Registry, logger *slog.Logger) *server {
	return &server{
		config:    cfg,
		tlsConfig: tlsConfig,
		lifecycle: lifecycle,
		packages:  packages,
		registry:  registry,
		logger:    logger,
		peers:     make(map[string]int),
		slots:     make(chan struct{}, cfg.MaxConcurrentChannels),
	}
}

// Serve accepts connections until ctx is cancelled, then closes the
// listener and waits for in-flight channels to drain.
func (s *server) Serve(ctx context.Context, listener net.Listener) error {
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	go s.sweepLoop(ctx)

	var wg sync.WaitGroup
	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				break
			}
			s.logger.Warn("accept failed", "error", err)
			continue
		}

		peer := peerHost(conn.RemoteAddr())
		if !s.admitPeer(peer) {
			s.logger.Warn("rejecting channel, per-peer limit reached",
				"peer", peer, "limit", s.config.MaxChannelsPerPeer)
			conn.Close()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer s.releasePeer(peer)
			defer conn.Close()

			// Shutdown must unblock a channel goroutine parked in a
			// read, the same way the listener is closed above. The
			// watcher exits with the connection, not with ctx.
			watchCtx, stopWatch := context.WithCancel(ctx)
			defer stopWatch()
			go func() {
				<-watchCtx.Done()
				conn.Close()
			}()

			select {
			case s.slots <- struct{}{}:
				defer func() { <-s.slots }()
			case <-ctx.Done():
				return
			}
			s.serveChannel(ctx, conn)
		}()
	}

	wg.Wait()
	s.logger.Info("server stopped")
	return nil
}

// sweepLoop drops in-flight transfers whose sender went quiet, so an
// abandoned upload cannot hold chunk buffers forever.
func (s *server) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Duration(s.config.SweepInterval))
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, key := range s.registry.SweepIdle(time.Duration(s.config.TransferIdleTimeout)) {
				s.logger.Warn("dropped idle transfer", "key", key.String())
			}
		}
	}
}

func (s *server) serveChannel(ctx context.Context, conn net.Conn) {
	logger := s.logger.With(
		"channel", uuid.NewString(),
		"peer", conn.RemoteAddr().String(),
	)

	tlsConn := tls.Server(conn, s.tlsConfig)
	handshakeCtx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	err := tlsConn.HandshakeContext(handshakeCtx)
	cancel()
	if err != nil {
		logger.Warn("TLS handshake failed", "error", err)
		return
	}

	logger.Info("channel established")
	s.handleChannel(ctx, wire.NewConn(tlsConn, s.config.MaxFrameLength), logger)
	logger.Info("channel closed")
}

func (s *server) admitPeer(peer string) bool {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	if s.peers[peer] >= s.config.MaxChannelsPerPeer {
		return false
	}
	s.peers[peer]++
	return true
}

func (s *server) releasePeer(peer string) {
	s.peersMu.Lock()
	defer s.peersMu.Unlock()
	s.peers[peer]--
	if s.peers[peer] <= 0 {
		delete(s.peers, peer)
	}
}

// peerHost strips the ephemeral port so the per-peer cap counts
// channels per machine, not per TCP connection.
func peerHost(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}
