// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"github.com/warden-fleet/warden/lib/codec"
	"github.com/warden-fleet/warden/lib/transfer"
)

// Method names. The set is fixed; both binaries are built from this
// file and nothing is negotiated on the wire.
const (
	MethodInstallPackage   = "install_package"
	MethodUninstallPackage = "uninstall_package"
	MethodStartService     = "start_service"
	MethodStopService      = "stop_service"
	MethodPutFile          = "put_file"
	MethodPutFileChunk     = "put_file_chunk"
	MethodFetchFile        = "fetch_file"
)

// Request is the envelope for every call: the method name and the
// method-specific payload, delayed-decoded so dispatch can route
// before unmarshaling.
type Request struct {
	Method  string           `cbor:"method"`
	Payload codec.RawMessage `cbor:"payload,omitempty"`
}

// Response is the envelope for every reply. OK is false only when
// the daemon could not process the request at all (unknown method,
// undecodable payload); operation-level failures are statuses inside
// Data so the client can tell "install failed" from "request was
// garbage".
type Response struct {
	OK    bool             `cbor:"ok"`
	Error string           `cbor:"error,omitempty"`
	Data  codec.RawMessage `cbor:"data,omitempty"`
}

// Statuses shared by the typed responses. Each operation's contract
// is a closed subset of these.
const (
	StatusSuccess          = "success"
	StatusAlreadyInstalled = "already_installed"
	StatusRestarted        = "restarted"
	StatusComplete         = "complete"
	StatusProgress         = "progress"
	StatusDuplicate        = "duplicate"
	StatusError            = "error"
)

// InstallPackageRequest asks the daemon to install a package through
// the host's package manager.
type InstallPackageRequest struct {
	Name string `cbor:"name"`
}

// InstallPackageResponse: success | already_installed | error.
type InstallPackageResponse struct {
	Status string `cbor:"status"`
	Detail string `cbor:"detail,omitempty"`
}

// UninstallPackageRequest asks the daemon to remove a package.
type UninstallPackageRequest struct {
	Name string `cbor:"name"`
}

// UninstallPackageResponse: success | error.
type UninstallPackageResponse struct {
	Status string `cbor:"status"`
	Detail string `cbor:"detail,omitempty"`
}

// StartServiceRequest starts the managed service. Wrapper, when
// non-empty, is a command line that performs the launch instead of
// the daemon's configured unit.
type StartServiceRequest struct {
	Wrapper string `cbor:"wrapper,omitempty"`
}

// StartServiceResponse: success | restarted | error.
type StartServiceResponse struct {
	Status string `cbor:"status"`
	Detail string `cbor:"detail,omitempty"`
}

// StopServiceRequest stops the named service (empty means the
// configured unit).
type StopServiceRequest struct {
	Service string `cbor:"service,omitempty"`
}

// StopServiceResponse: success | restarted | error.
type StopServiceResponse struct {
	Status string `cbor:"status"`
	Detail string `cbor:"detail,omitempty"`
}

// PutFileRequest delivers a whole compressed file in one message.
// Appropriate only when the file fits one frame; larger files go
// through put_file_chunk.
type PutFileRequest struct {
	TargetPath  string                  `cbor:"target_path"`
	TargetPerms uint32                  `cbor:"target_perms"`
	File        transfer.CompressedFile `cbor:"file"`
}

// PutFileResponse: success | error.
type PutFileResponse struct {
	Status string `cbor:"status"`
	Detail string `cbor:"detail,omitempty"`
}

// PutFileChunkRequest delivers one chunk of a compressed file.
// FileHash is the 32-byte transfer key over the whole compressed
// payload; every chunk of a transfer carries the same hash, target,
// compression tag, and uncompressed size (the latter two are needed
// only at completion, but riding on every chunk keeps chunks
// self-contained under reordering).
type PutFileChunkRequest struct {
	FileHash         []byte               `cbor:"file_hash"`
	TargetPath       string               `cbor:"target_path"`
	TargetPerms      uint32               `cbor:"target_perms"`
	Compression      transfer.Compression `cbor:"compression"`
	UncompressedSize int64                `cbor:"uncompressed_size"`
	Chunk            transfer.Chunk       `cbor:"chunk"`
}

// PutFileChunkResponse: complete | progress | duplicate | error.
// ChunkID always identifies the submitted chunk so the client can
// correlate under concurrent submission; SeenCount is meaningful for
// progress and duplicate.
type PutFileChunkResponse struct {
	Status    string `cbor:"status"`
	ChunkID   uint64 `cbor:"chunk_id"`
	SeenCount uint64 `cbor:"seen_count,omitempty"`
	Detail    string `cbor:"detail,omitempty"`
}

// FetchFileRequest asks the daemon to read a file from its local
// disk and return it compressed.
type FetchFileRequest struct {
	HostSrcPath string `cbor:"host_src_path"`
	Filename    string `cbor:"filename,omitempty"`
}

// FetchFileResponse: success (with File) | error.
type FetchFileResponse struct {
	Status string                   `cbor:"status"`
	Detail string                   `cbor:"detail,omitempty"`
	File   *transfer.CompressedFile `cbor:"file,omitempty"`
}
