// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent defines Warden's RPC surface — the request and
// response types for every daemon operation — and the client that
// speaks it.
//
// The protocol is a fixed method set, not a framework: each request
// travels as one frame carrying an envelope {method, payload}, and
// each response as one frame carrying {ok, error, data}. Within one
// connection, requests are answered in order. Outcomes that are part
// of an operation's contract (already installed, duplicate chunk,
// hash mismatch) are statuses in the typed response, not envelope
// errors; the envelope error is reserved for requests the daemon
// could not route or decode.
package agent
