// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package transfer implements Warden's chunked file-transfer
// protocol.
//
// The sender reads a file fully into memory, compresses it, computes
// a BLAKE3 content key over the compressed bytes, and splits the
// result into fixed-size chunks. Chunks travel independently and may
// arrive in any order or more than once. The receiver accumulates
// them in an in-memory [Registry] keyed by the content key; the chunk
// that completes a transfer atomically removes the registry entry, so
// exactly one caller observes completion. Assembly reorders by chunk
// ID, recomputes the key, and rejects any mismatch — a failed
// transfer is restarted from scratch by the client, never patched.
//
// Registry state is transit state only. It does not survive a daemon
// restart, and entries abandoned mid-flight are reclaimed by a
// periodic idle sweep.
package transfer
