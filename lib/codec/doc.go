// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides Warden's standard CBOR encoding.
//
// All wire messages between the daemon and its clients are CBOR with
// Core Deterministic Encoding: the same logical value always encodes
// to the same bytes, so content hashes and golden-file tests are
// stable across versions and platforms. The schema is shared by the
// two binaries and is not negotiated on the wire.
package codec
