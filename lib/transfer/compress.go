// Copyright 2026 The Warden Authors
// SPDX-License-Identifier: Apache-2.0

package transfer

import (
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Compression identifies the algorithm applied to a file's bytes
// before hashing and chunking. The tag travels with the data, so both
// sides always agree; values are protocol constants.
type Compression uint8

const (
	// CompressionNone stores the bytes as-is. Also the automatic
	// fallback when compression would not shrink the data
	// (already-compressed archives, media files).
	CompressionNone Compression = 0

	// CompressionZstd is zstd at level 3, the default. Best ratio
	// for the configs, logs, and binaries an agent typically moves.
	CompressionZstd Compression = 1

	// CompressionLZ4 is LZ4 block compression. Lower ratio than
	// zstd but markedly cheaper to decode; useful when the daemon
	// host is CPU-constrained.
	CompressionLZ4 Compression = 2
)

// String returns the name used in config files and CLI flags.
func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionZstd:
		return "zstd"
	case CompressionLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}

// ParseCompression parses a compression name.
func ParseCompression(name string) (Compression, error) {
	switch name {
	case "none":
		return CompressionNone, nil
	case "zstd":
		return CompressionZstd, nil
	case "lz4":
		return CompressionLZ4, nil
	default:
		return 0, fmt.Errorf("unknown compression %q", name)
	}
}

// zstdEncoder and zstdDecoder are shared across all transfers. Both
// are safe for concurrent use.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("transfer: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("transfer: zstd decoder initialization failed: " + err.Error())
	}
}

// compress applies the requested algorithm. When the output would not
// be smaller than the input (or LZ4 declares the data incompressible)
// the original bytes are returned with CompressionNone — the caller
// records the returned tag, not the requested one.
func compress(data []byte, algorithm Compression) ([]byte, Compression, error) {
	switch algorithm {
	case CompressionNone:
		return data, CompressionNone, nil

	case CompressionZstd:
		compressed := zstdEncoder.EncodeAll(data, nil)
		if len(compressed) >= len(data) {
			return data, CompressionNone, nil
		}
		return compressed, CompressionZstd, nil

	case CompressionLZ4:
		bound := lz4.CompressBlockBound(len(data))
		destination := make([]byte, bound)
		written, err := lz4.CompressBlock(data, destination, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("lz4 compress: %w", err)
		}
		if written == 0 || written >= len(data) {
			return data, CompressionNone, nil
		}
		return destination[:written], CompressionLZ4, nil

	default:
		return nil, 0, fmt.Errorf("unsupported compression %d", algorithm)
	}
}

// decompress reverses compress. uncompressedSize must match the
// original length exactly; a mismatch is an error, never a silent
// truncation.
func decompress(data []byte, algorithm Compression, uncompressedSize int) ([]byte, error) {
	switch algorithm {
	case CompressionNone:
		if len(data) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed data is %d bytes, expected %d",
				len(data), uncompressedSize)
		}
		return data, nil

	case CompressionZstd:
		result, err := zstdDecoder.DecodeAll(data, make([]byte, 0, uncompressedSize))
		if err != nil {
			return nil, fmt.Errorf("zstd decompress: %w", err)
		}
		if len(result) != uncompressedSize {
			return nil, fmt.Errorf("zstd decompress produced %d bytes, expected %d",
				len(result), uncompressedSize)
		}
		return result, nil

	case CompressionLZ4:
		destination := make([]byte, uncompressedSize)
		read, err := lz4.UncompressBlock(data, destination)
		if err != nil {
			return nil, fmt.Errorf("lz4 decompress: %w", err)
		}
		if read != uncompressedSize {
			return nil, fmt.Errorf("lz4 decompress produced %d bytes, expected %d",
				read, uncompressedSize)
		}
		return destination, nil

	default:
		return nil, fmt.Errorf("unsupported compression %d", algorithm)
	}
}
