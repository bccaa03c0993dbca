// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package wire frames CBOR messages onto a byte stream.
//
// Each message on the wire is a 4-byte big-endian length followed by
// that many bytes of CBOR. Framing sits directly on the TLS stream;
// the codec never sees partial messages and the stream never carries
// anything but frames. A finite maximum frame length bounds how much
// a peer can force the other side to buffer — frames above the bound
// are rejected without being read.
package wire
