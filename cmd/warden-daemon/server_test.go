// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/warden-fleet/warden/lib/agent"
	"github.com/warden-fleet/warden/lib/config"
	"github.com/warden-fleet/warden/lib/tlspin"
	"github.com/warden-fleet/warden/lib/transfer"
)

// fakeManager is an in-memory package manager.
type fakeManager struct {
	mu        sync.Mutex
	installed map[string]bool
	failWith  error
}

func (m *fakeManager) Name() string { return "fake" }

func (m *fakeManager) IsInstalled(ctx context.Context, pkg string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.installed[pkg]
}

func (m *fakeManager) Install(ctx context.Context, pkg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	m.installed[pkg] = true
	return nil
}

func (m *fakeManager) Uninstall(ctx context.Context, pkg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	delete(m.installed, pkg)
	return nil
}

// fakeLifecycle records service operations.
type fakeLifecycle struct {
	mu        sync.Mutex
	running   bool
	wrappers  []string
	stopCalls []string
}

func (l *fakeLifecycle) Start(ctx context.Context, wrapper string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.wrappers = append(l.wrappers, wrapper)
	wasRunning := l.running
	l.running = true
	return wasRunning, nil
}

func (l *fakeLifecycle) Stop(ctx context.Context, service string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stopCalls = append(l.stopCalls, service)
	l.running = false
	return false, nil
}

type testDaemon struct {
	address   string
	certPath  string
	manager   *fakeManager
	lifecycle *fakeLifecycle
	config    *config.Config
}

// startDaemon runs a daemon on a loopback listener with a generated
// self-signed certificate and fake OS shims. It is torn down with the
// test.
func startDaemon(t *testing.T, mutate func(*config.Config)) *testDaemon {
	t.Helper()

	dir := t.TempDir()
	certPath := filepath.Join(dir, "daemon.pem")
	keyPath := filepath.Join(dir, "daemon.key")
	if err := tlspin.GenerateSelfSigned("127.0.0.1", certPath, keyPath); err != nil {
		t.Fatalf("generating certificate: %v", err)
	}

	cfg := config.Default()
	cfg.CertPath = certPath
	cfg.KeyPath = keyPath
	if mutate != nil {
		mutate(cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("test config invalid: %v", err)
	}

	tlsConfig, err := tlspin.ServerConfig(certPath, keyPath)
	if err != nil {
		t.Fatalf("server TLS config: %v", err)
	}

	manager := &fakeManager{installed: make(map[string]bool)}
	lifecycle := &fakeLifecycle{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	server := newServer(cfg, tlsConfig, lifecycle, manager, transfer.NewRegistry(), logger)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve(ctx, listener)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	return &testDaemon{
		address:   listener.Addr().String(),
		certPath:  certPath,
		manager:   manager,
		lifecycle: lifecycle,
		config:    cfg,
	}
}

func dialDaemon(t *testing.T, daemon *testDaemon, mutate func(*agent.ClientOptions)) *agent.Client {
	t.Helper()
	options := agent.ClientOptions{
		Address:        daemon.address,
		ServerCertPath: daemon.certPath,
		Compression:    transfer.CompressionZstd,
	}
	if mutate != nil {
		mutate(&options)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := agent.Dial(ctx, options)
	if err != nil {
		t.Fatalf("dialing daemon: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestInstallPackage(t *testing.T) {
	daemon := startDaemon(t, nil)
	client := dialDaemon(t, daemon, nil)
	ctx := context.Background()

	response, err := client.InstallPackage(ctx, "ripgrep")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if response.Status != agent.StatusSuccess {
		t.Fatalf("status = %q, want %q", response.Status, agent.StatusSuccess)
	}
	if !daemon.manager.IsInstalled(ctx, "ripgrep") {
		t.Fatal("package not recorded as installed")
	}

	// Second install of the same package reports already_installed.
	response, err = client.InstallPackage(ctx, "ripgrep")
	if err != nil {
		t.Fatalf("reinstall: %v", err)
	}
	if response.Status != agent.StatusAlreadyInstalled {
		t.Fatalf("status = %q, want %q", response.Status, agent.StatusAlreadyInstalled)
	}
}

func TestInstallPackageFailure(t *testing.T) {
	daemon := startDaemon(t, nil)
	daemon.manager.failWith = fmt.Errorf("mirror unreachable")
	client := dialDaemon(t, daemon, nil)

	response, err := client.InstallPackage(context.Background(), "ripgrep")
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if response.Status != agent.StatusError {
		t.Fatalf("status = %q, want %q", response.Status, agent.StatusError)
	}
	if response.Detail == "" {
		t.Error("error response carries no detail")
	}
}

func TestUninstallPackage(t *testing.T) {
	daemon := startDaemon(t, nil)
	daemon.manager.installed["ripgrep"] = true
	client := dialDaemon(t, daemon, nil)

	response, err := client.UninstallPackage(context.Background(), "ripgrep")
	if err != nil {
		t.Fatalf("uninstall: %v", err)
	}
	if response.Status != agent.StatusSuccess {
		t.Fatalf("status = %q, want %q", response.Status, agent.StatusSuccess)
	}
	if daemon.manager.IsInstalled(context.Background(), "ripgrep") {
		t.Fatal("package still recorded as installed")
	}
}

func TestServiceLifecycle(t *testing.T) {
	daemon := startDaemon(t, nil)
	client := dialDaemon(t, daemon, nil)
	ctx := context.Background()

	start, err := client.StartService(ctx, "")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if start.Status != agent.StatusSuccess {
		t.Fatalf("first start status = %q, want %q", start.Status, agent.StatusSuccess)
	}

	// Starting an already-running service restarts it.
	start, err = client.StartService(ctx, "")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	if start.Status != agent.StatusRestarted {
		t.Fatalf("second start status = %q, want %q", start.Status, agent.StatusRestarted)
	}

	stop, err := client.StopService(ctx, "warden-node.service")
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if stop.Status != agent.StatusSuccess {
		t.Fatalf("stop status = %q, want %q", stop.Status, agent.StatusSuccess)
	}
	if got := daemon.lifecycle.stopCalls; len(got) != 1 || got[0] != "warden-node.service" {
		t.Fatalf("stop calls = %v", got)
	}
}

func TestStartServiceWrapper(t *testing.T) {
	daemon := startDaemon(t, nil)
	client := dialDaemon(t, daemon, nil)

	if _, err := client.StartService(context.Background(), "/opt/node/run.sh --fast"); err != nil {
		t.Fatalf("start with wrapper: %v", err)
	}
	if got := daemon.lifecycle.wrappers; len(got) != 1 || got[0] != "/opt/node/run.sh --fast" {
		t.Fatalf("wrappers = %v", got)
	}
}

func TestPutFileSingleFrame(t *testing.T) {
	daemon := startDaemon(t, nil)
	client := dialDaemon(t, daemon, nil)

	dir := t.TempDir()
	source := filepath.Join(dir, "app.conf")
	contents := []byte("threads = 8\nlisten = :9000\n")
	if err := os.WriteFile(source, contents, 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, "deployed", "app.conf")

	response, err := client.PutFile(context.Background(), source, target, 0o640)
	if err != nil {
		t.Fatalf("put file: %v", err)
	}
	if response.Status != agent.StatusSuccess {
		t.Fatalf("status = %q, want %q", response.Status, agent.StatusSuccess)
	}

	written, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if string(written) != string(contents) {
		t.Fatal("target contents differ from source")
	}
	info, err := os.Stat(target)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0o640 {
		t.Errorf("target perms = %v, want 0640", info.Mode().Perm())
	}
}

func TestPutFileChunked(t *testing.T) {
	daemon := startDaemon(t, nil)

	// Random bytes do not compress, so the compressed payload stays
	// larger than the chunk size and the client takes the chunked
	// path.
	contents := make([]byte, 300<<10)
	rand.New(rand.NewSource(1)).Read(contents)

	dir := t.TempDir()
	source := filepath.Join(dir, "blob.bin")
	if err := os.WriteFile(source, contents, 0o644); err != nil {
		t.Fatal(err)
	}
	target := filepath.Join(dir, "out", "blob.bin")

	var statuses []string
	client := dialDaemon(t, daemon, func(options *agent.ClientOptions) {
		options.ChunkSize = 64 << 10
		options.Progress = func(response *agent.PutFileChunkResponse) {
			statuses = append(statuses, response.Status)
		}
	})

	response, err := client.PutFile(context.Background(), source, target, 0o600)
	if err != nil {
		t.Fatalf("chunked put: %v", err)
	}
	if response.Status != agent.StatusSuccess {
		t.Fatalf("status = %q, want %q", response.Status, agent.StatusSuccess)
	}

	if len(statuses) < 2 {
		t.Fatalf("expected multiple chunk responses, got %v", statuses)
	}
	for _, status := range statuses[:len(statuses)-1] {
		if status != agent.StatusProgress {
			t.Errorf("intermediate status = %q, want %q", status, agent.StatusProgress)
		}
	}
	if last := statuses[len(statuses)-1]; last != agent.StatusComplete {
		t.Errorf("final status = %q, want %q", last, agent.StatusComplete)
	}

	written, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if len(written) != len(contents) {
		t.Fatalf("target is %d bytes, want %d", len(written), len(contents))
	}
	for i := range written {
		if written[i] != contents[i] {
			t.Fatalf("target differs from source at byte %d", i)
		}
	}
}

func TestPutFileChunkDuplicate(t *testing.T) {
	daemon := startDaemon(t, nil)
	client := dialDaemon(t, daemon, nil)
	ctx := context.Background()

	file, err := transfer.CompressBytes("dup.bin", []byte("chunked transfer duplicate test payload"), transfer.CompressionNone)
	if err != nil {
		t.Fatal(err)
	}
	chunks, err := file.Split(10)
	if err != nil {
		t.Fatal(err)
	}
	if len(chunks) < 2 {
		t.Fatalf("test needs at least 2 chunks, got %d", len(chunks))
	}
	key := file.Key()
	target := filepath.Join(t.TempDir(), "dup.bin")

	send := func(chunk transfer.Chunk) *agent.PutFileChunkResponse {
		t.Helper()
		response, err := client.PutFileChunk(ctx, &agent.PutFileChunkRequest{
			FileHash:         key[:],
			TargetPath:       target,
			TargetPerms:      uint32(0o644),
			Compression:      file.Compression,
			UncompressedSize: file.UncompressedSize,
			Chunk:            chunk,
		})
		if err != nil {
			t.Fatalf("put chunk %d: %v", chunk.ChunkID, err)
		}
		return response
	}

	first := send(chunks[0])
	if first.Status != agent.StatusProgress || first.SeenCount != 1 {
		t.Fatalf("first chunk: status %q seen %d", first.Status, first.SeenCount)
	}

	// Resending the same chunk is acknowledged but changes nothing.
	duplicate := send(chunks[0])
	if duplicate.Status != agent.StatusDuplicate {
		t.Fatalf("duplicate status = %q, want %q", duplicate.Status, agent.StatusDuplicate)
	}
	if duplicate.SeenCount != 1 {
		t.Fatalf("duplicate seen count = %d, want 1", duplicate.SeenCount)
	}

	for _, chunk := range chunks[1:] {
		response := send(chunk)
		if chunk.ChunkID == chunks[len(chunks)-1].ChunkID {
			if response.Status != agent.StatusComplete {
				t.Fatalf("final chunk status = %q, want %q", response.Status, agent.StatusComplete)
			}
		}
	}

	written, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("reading target: %v", err)
	}
	if string(written) != "chunked transfer duplicate test payload" {
		t.Fatal("reassembled file differs from source")
	}
}

func TestFetchFile(t *testing.T) {
	daemon := startDaemon(t, nil)
	client := dialDaemon(t, daemon, nil)

	dir := t.TempDir()
	source := filepath.Join(dir, "report.log")
	contents := []byte("line one\nline two\nline three\n")
	if err := os.WriteFile(source, contents, 0o644); err != nil {
		t.Fatal(err)
	}

	response, err := client.FetchFile(context.Background(), source, "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if response.Status != agent.StatusSuccess {
		t.Fatalf("status = %q, want %q", response.Status, agent.StatusSuccess)
	}
	if response.File == nil {
		t.Fatal("success response carries no file")
	}
	if response.File.Filename != "report.log" {
		t.Errorf("filename = %q, want %q", response.File.Filename, "report.log")
	}
	fetched, err := response.File.Contents()
	if err != nil {
		t.Fatalf("decompressing fetched file: %v", err)
	}
	if string(fetched) != string(contents) {
		t.Fatal("fetched contents differ from source")
	}
}

func TestFetchFileMissing(t *testing.T) {
	daemon := startDaemon(t, nil)
	client := dialDaemon(t, daemon, nil)

	response, err := client.FetchFile(context.Background(), "/nonexistent/file", "")
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if response.Status != agent.StatusError {
		t.Fatalf("status = %q, want %q", response.Status, agent.StatusError)
	}
}

func TestUnknownMethodRejected(t *testing.T) {
	daemon := startDaemon(t, nil)
	client := dialDaemon(t, daemon, nil)

	if _, err := client.Call(context.Background(), "reboot_host", nil); err == nil {
		t.Fatal("unknown method accepted")
	}
}

func TestPerPeerChannelLimit(t *testing.T) {
	daemon := startDaemon(t, func(cfg *config.Config) {
		cfg.MaxChannelsPerPeer = 1
	})

	// First channel is admitted and held open.
	first := dialDaemon(t, daemon, nil)
	if _, err := first.StartService(context.Background(), ""); err != nil {
		t.Fatalf("first channel unusable: %v", err)
	}

	// Second channel from the same address is closed before the
	// handshake completes.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	second, err := agent.Dial(ctx, agent.ClientOptions{
		Address:        daemon.address,
		ServerCertPath: daemon.certPath,
	})
	if err == nil {
		second.Close()
		t.Fatal("second channel admitted past per-peer limit")
	}

	// Closing the first channel frees the slot.
	first.Close()
	deadline := time.Now().Add(5 * time.Second)
	for {
		client, err := agent.Dial(ctx, agent.ClientOptions{
			Address:        daemon.address,
			ServerCertPath: daemon.certPath,
		})
		if err == nil {
			client.Close()
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("slot never freed after close: %v", err)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func TestUnpinnedClientRejected(t *testing.T) {
	daemon := startDaemon(t, nil)

	// A client pinning a different certificate must refuse the
	// daemon's.
	dir := t.TempDir()
	otherCert := filepath.Join(dir, "other.pem")
	otherKey := filepath.Join(dir, "other.key")
	if err := tlspin.GenerateSelfSigned("127.0.0.1", otherCert, otherKey); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := agent.Dial(ctx, agent.ClientOptions{
		Address:        daemon.address,
		ServerCertPath: otherCert,
	})
	if err == nil {
		client.Close()
		t.Fatal("connection accepted with wrong pinned certificate")
	}
}

func TestShutdownDrainsIdleChannels(t *testing.T) {
	dir := t.TempDir()
	certPath := filepath.Join(dir, "daemon.pem")
	keyPath := filepath.Join(dir, "daemon.key")
	if err := tlspin.GenerateSelfSigned("127.0.0.1", certPath, keyPath); err != nil {
		t.Fatalf("generating certificate: %v", err)
	}

	cfg := config.Default()
	cfg.CertPath = certPath
	cfg.KeyPath = keyPath

	tlsConfig, err := tlspin.ServerConfig(certPath, keyPath)
	if err != nil {
		t.Fatalf("server TLS config: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	manager := &fakeManager{installed: make(map[string]bool)}
	server := newServer(cfg, tlsConfig, &fakeLifecycle{}, manager, transfer.NewRegistry(), logger)

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		server.Serve(ctx, listener)
	}()

	dialCtx, dialCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer dialCancel()
	client, err := agent.Dial(dialCtx, agent.ClientOptions{
		Address:        listener.Addr().String(),
		ServerCertPath: certPath,
	})
	if err != nil {
		t.Fatalf("dialing daemon: %v", err)
	}
	defer client.Close()
	if _, err := client.StartService(dialCtx, ""); err != nil {
		t.Fatalf("channel unusable: %v", err)
	}

	// The client stays connected and idle; cancellation alone must
	// bring Serve home.
	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return while an idle client held a channel")
	}
}
