// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package tlspin

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
)

// ServerConfig builds the daemon-side TLS configuration from PEM
// certificate and private key files. The server does not request a
// client certificate — client authentication in this deployment is
// the client pinning the server's certificate, combined with the
// private-network reachability assumption.
//
// A missing or malformed file is a startup-fatal error for the
// caller; nothing here is retried.
func ServerConfig(certPath, keyPath string) (*tls.Config, error) {
	certificate, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil, fmt.Errorf("loading server certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{certificate},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// ClientConfig builds the client-side TLS configuration. The
// connection is accepted iff the server's end-entity certificate is
// byte-identical to the certificate at pinnedCertPath.
//
// certPath and keyPath are the client's own certificate and key,
// presented if the server ever requests mutual authentication. Both
// may be empty to connect without a client certificate.
func ClientConfig(certPath, keyPath, pinnedCertPath string) (*tls.Config, error) {
	pinned, err := LoadCertificateDER(pinnedCertPath)
	if err != nil {
		return nil, fmt.Errorf("loading pinned server certificate: %w", err)
	}

	config := &tls.Config{
		MinVersion: tls.VersionTLS12,

		// Chain and hostname verification are replaced wholesale by
		// the exact-match pin below. A certificate signed by a public
		// CA still fails unless it is the pinned certificate.
		InsecureSkipVerify:    true,
		VerifyPeerCertificate: pinVerifier(pinned),
	}

	if certPath != "" || keyPath != "" {
		certificate, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("loading client certificate: %w", err)
		}
		config.Certificates = []tls.Certificate{certificate}
	}

	return config, nil
}

// pinVerifier returns a VerifyPeerCertificate callback that accepts
// exactly one certificate: the pinned DER bytes.
func pinVerifier(pinned []byte) func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	return func(rawCerts [][]byte, _ [][]*x509.Certificate) error {
		if len(rawCerts) == 0 {
			return fmt.Errorf("server presented no certificate")
		}
		// Only the end-entity certificate matters; any additional
		// chain certificates the server sends are ignored.
		if !bytes.Equal(rawCerts[0], pinned) {
			return fmt.Errorf("server certificate does not match pinned certificate")
		}
		return nil
	}
}

// LoadCertificateDER reads a PEM file and returns the DER bytes of
// the first CERTIFICATE block. The block is parsed with crypto/x509
// to reject files that are PEM-shaped but not certificates.
func LoadCertificateDER(path string) ([]byte, error) {
	pemBytes, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	for rest := pemBytes; len(rest) > 0; {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		if _, err := x509.ParseCertificate(block.Bytes); err != nil {
			return nil, fmt.Errorf("parsing certificate in %s: %w", path, err)
		}
		return block.Bytes, nil
	}
	return nil, fmt.Errorf("no CERTIFICATE block in %s", path)
}
