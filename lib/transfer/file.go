// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/zeebo/blake3"
)

// Key is the 256-bit BLAKE3 content hash over a file's compressed
// bytes. It identifies one transfer, rides on every chunk of that
// transfer, and is the integrity target the receiver verifies after
// reassembly.
type Key [32]byte

// keyDomain is the BLAKE3 keyed-hash domain for transfer keys: the
// ASCII domain name zero-padded to 32 bytes. Readable in hex dumps,
// and cryptographically opaque to BLAKE3 either way. Changing it
// invalidates every key in flight.
var keyDomain = [32]byte{
	'w', 'a', 'r', 'd', 'e', 'n', '.', 't', 'r', 'a', 'n', 's', 'f', 'e', 'r', '.',
	'f', 'i', 'l', 'e', 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0,
}

// ComputeKey hashes compressed file bytes into a transfer key.
func ComputeKey(compressed []byte) Key {
	hasher, err := blake3.NewKeyed(keyDomain[:])
	if err != nil {
		// NewKeyed fails only on wrong key length, which the fixed
		// array rules out.
		panic("transfer: BLAKE3 keyed hash initialization failed: " + err.Error())
	}
	hasher.Write(compressed)
	var key Key
	copy(key[:], hasher.Sum(nil))
	return key
}

// String returns the canonical hex form used in logs and errors.
func (k Key) String() string {
	return hex.EncodeToString(k[:])
}

// ParseKey parses a 64-character hex string into a Key.
func ParseKey(hexString string) (Key, error) {
	var key Key
	decoded, err := hex.DecodeString(hexString)
	if err != nil {
		return key, fmt.Errorf("parsing transfer key: %w", err)
	}
	if len(decoded) != len(key) {
		return key, fmt.Errorf("transfer key is %d bytes, want %d", len(decoded), len(key))
	}
	copy(key[:], decoded)
	return key, nil
}

// CompressedFile is a file prepared for transfer: its name, the
// compressed bytes, and what it takes to reverse the compression.
// Immutable once constructed.
type CompressedFile struct {
	Filename         string      `cbor:"filename"`
	Compression      Compression `cbor:"compression"`
	UncompressedSize int64       `cbor:"uncompressed_size"`
	Data             []byte      `cbor:"data"`
}

// CompressBytes builds a CompressedFile from in-memory contents.
// The effective compression may differ from the requested one when
// the data is incompressible (see compress).
func CompressBytes(filename string, contents []byte, algorithm Compression) (*CompressedFile, error) {
	if filename == "" {
		return nil, fmt.Errorf("compressed file needs a filename")
	}
	data, effective, err := compress(contents, algorithm)
	if err != nil {
		return nil, fmt.Errorf("compressing %s: %w", filename, err)
	}
	return &CompressedFile{
		Filename:         filename,
		Compression:      effective,
		UncompressedSize: int64(len(contents)),
		Data:             data,
	}, nil
}

// CompressPath reads the file at path fully into memory and
// compresses it. The transfer filename is the path's base name; a
// path with no derivable filename (for example "/") is an error.
func CompressPath(path string, algorithm Compression) (*CompressedFile, error) {
	filename := filepath.Base(path)
	if filename == "." || filename == string(filepath.Separator) {
		return nil, fmt.Errorf("no filename derivable from %q", path)
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return CompressBytes(filename, contents, algorithm)
}

// Key returns the transfer key over the compressed bytes. Computed on
// demand; callers that need it repeatedly keep the result.
func (f *CompressedFile) Key() Key {
	return ComputeKey(f.Data)
}

// Contents decompresses and returns the original file bytes.
func (f *CompressedFile) Contents() ([]byte, error) {
	contents, err := decompress(f.Data, f.Compression, int(f.UncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("decompressing %s: %w", f.Filename, err)
	}
	return contents, nil
}

// Chunk is one bounded piece of a compressed file. ChunkIDs for a
// transfer are the contiguous range [0, TotalChunks); every chunk but
// the last carries exactly the sender's chunk size.
type Chunk struct {
	Filename    string `cbor:"filename"`
	ChunkID     uint64 `cbor:"chunk_id"`
	TotalChunks uint64 `cbor:"total_chunks"`
	Data        []byte `cbor:"data"`
}

// Split partitions the compressed bytes into chunks of chunkSize
// (the last chunk may be smaller). chunkSize must be at least 1.
// The chunk Data fields alias the file's buffer; they are valid as
// long as the file is.
func (f *CompressedFile) Split(chunkSize int) ([]Chunk, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size %d, must be at least 1", chunkSize)
	}

	total := uint64((len(f.Data) + chunkSize - 1) / chunkSize)
	if total == 0 {
		// An empty file still makes one (empty) chunk so the
		// receiver has something to complete on.
		total = 1
	}

	chunks := make([]Chunk, 0, total)
	for id := uint64(0); id < total; id++ {
		start := int(id) * chunkSize
		end := start + chunkSize
		if end > len(f.Data) {
			end = len(f.Data)
		}
		chunks = append(chunks, Chunk{
			Filename:    f.Filename,
			ChunkID:     id,
			TotalChunks: total,
			Data:        f.Data[start:end],
		})
	}
	return chunks, nil
}

// Assemble reorders chunks by ID, concatenates them, and verifies the
// result hashes to key. The chunk set must be exactly [0, total) for
// the total recorded on the chunks; anything else — missing IDs,
// wrong count, empty set — is an error, never a truncated file.
func Assemble(key Key, chunks []Chunk) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, fmt.Errorf("assembling transfer %s: empty chunk set", key)
	}

	total := chunks[0].TotalChunks
	if uint64(len(chunks)) != total {
		return nil, fmt.Errorf("assembling transfer %s: have %d chunks, expected %d",
			key, len(chunks), total)
	}

	sorted := make([]Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ChunkID < sorted[j].ChunkID })

	size := 0
	for i, chunk := range sorted {
		if chunk.ChunkID != uint64(i) {
			return nil, fmt.Errorf("assembling transfer %s: chunk IDs are not the range [0,%d)",
				key, total)
		}
		size += len(chunk.Data)
	}

	assembled := make([]byte, 0, size)
	for _, chunk := range sorted {
		assembled = append(assembled, chunk.Data...)
	}

	if actual := ComputeKey(assembled); actual != key {
		return nil, fmt.Errorf("assembling transfer %s: reassembled hash %s does not match",
			key, actual)
	}
	return assembled, nil
}
