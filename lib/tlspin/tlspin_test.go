// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package tlspin

import (
	"crypto/tls"
	"path/filepath"
	"testing"
)

// generateKeyPair writes a fresh self-signed certificate and key into
// dir and returns their paths.
func generateKeyPair(t *testing.T, dir, host string) (certPath, keyPath string) {
	t.Helper()
	certPath = filepath.Join(dir, host+"-cert.pem")
	keyPath = filepath.Join(dir, host+"-key.pem")
	if err := GenerateSelfSigned(host, certPath, keyPath); err != nil {
		t.Fatalf("GenerateSelfSigned: %v", err)
	}
	return certPath, keyPath
}

// handshake runs a full TLS handshake between the given configs over
// a loopback listener and returns the client-side error.
func handshake(t *testing.T, serverConfig, clientConfig *tls.Config) error {
	t.Helper()

	listener, err := tls.Listen("tcp", "127.0.0.1:0", serverConfig)
	if err != nil {
		t.Fatalf("tls.Listen: %v", err)
	}
	defer listener.Close()

	// The server side must read to drive its half of the handshake.
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		buffer := make([]byte, 1)
		conn.Read(buffer)
	}()

	conn, err := tls.Dial("tcp", listener.Addr().String(), clientConfig)
	if err != nil {
		return err
	}
	defer conn.Close()
	return conn.Handshake()
}

func TestPinnedCertificateAccepted(t *testing.T) {
	dir := t.TempDir()
	certPath, keyPath := generateKeyPair(t, dir, "127.0.0.1")

	serverConfig, err := ServerConfig(certPath, keyPath)
	if err != nil {
		t.Fatalf("ServerConfig: %v", err)
	}
	clientConfig, err := ClientConfig("", "", certPath)
	if err != nil {
		t.Fatalf("ClientConfig: %v", err)
	}

	if err := handshake(t, serverConfig, clientConfig); err != nil {
		t.Fatalf("handshake against pinned certificate failed: %v", err)
	}
}

func TestUnpinnedCertificateRejected(t *testing.T) {
	dir := t.TempDir()
	serverCert, serverKey := generateKeyPair(t, dir, "127.0.0.1")

	// A different, equally valid self-signed certificate. Pinning is
	// exact-match, so validity of the presented certificate is
	// irrelevant.
	otherCert, _ := generateKeyPair(t, dir, "other")

	serverConfig, err := ServerConfig(serverCert, serverKey)
	if err != nil {
		t.Fatalf("ServerConfig: %v", err)
	}
	clientConfig, err := ClientConfig("", "", otherCert)
	if err != nil {
		t.Fatalf("ClientConfig: %v", err)
	}

	if err := handshake(t, serverConfig, clientConfig); err == nil {
		t.Fatal("handshake succeeded against a non-pinned certificate")
	}
}

func TestClientCertificateLoaded(t *testing.T) {
	dir := t.TempDir()
	serverCert, _ := generateKeyPair(t, dir, "127.0.0.1")
	clientCert, clientKey := generateKeyPair(t, dir, "client")

	config, err := ClientConfig(clientCert, clientKey, serverCert)
	if err != nil {
		t.Fatalf("ClientConfig: %v", err)
	}
	if len(config.Certificates) != 1 {
		t.Errorf("client config has %d certificates, want 1", len(config.Certificates))
	}
}

func TestServerConfigMissingFiles(t *testing.T) {
	if _, err := ServerConfig("/nonexistent/cert.pem", "/nonexistent/key.pem"); err == nil {
		t.Fatal("ServerConfig with missing files succeeded")
	}
}

func TestLoadCertificateDERRejectsNonCertificate(t *testing.T) {
	dir := t.TempDir()
	_, keyPath := generateKeyPair(t, dir, "127.0.0.1")

	// A key file is valid PEM but contains no CERTIFICATE block.
	if _, err := LoadCertificateDER(keyPath); err == nil {
		t.Fatal("LoadCertificateDER accepted a private key file")
	}
}

func TestLoadCertificateDERMissingFile(t *testing.T) {
	if _, err := LoadCertificateDER(filepath.Join(t.TempDir(), "absent.pem")); err == nil {
		t.Fatal("LoadCertificateDER accepted a missing file")
	}
}

// VerifyPeerCertificate must also reject an empty presented chain —
// this cannot happen through crypto/tls, but the callback is part of
// the package contract.
func TestPinVerifierEmptyChain(t *testing.T) {
	dir := t.TempDir()
	certPath, _ := generateKeyPair(t, dir, "127.0.0.1")

	config, err := ClientConfig("", "", certPath)
	if err != nil {
		t.Fatalf("ClientConfig: %v", err)
	}
	if err := config.VerifyPeerCertificate(nil, nil); err == nil {
		t.Fatal("verifier accepted an empty certificate chain")
	}
}
