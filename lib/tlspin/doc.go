// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

// Package tlspin builds the TLS configurations for the Warden
// transport.
//
// Trust is established by certificate pinning, not by a PKI: the
// client accepts a connection iff the server presents an end-entity
// certificate that is byte-identical to the one the operator
// distributed out of band. There is no CA, no chain validation, and
// no hostname check. This is a deliberate design for an
// operator-managed fleet where certificates are self-signed and
// copied to clients at provisioning time — do not "upgrade" it to
// chain validation without changing the deployment model.
package tlspin
