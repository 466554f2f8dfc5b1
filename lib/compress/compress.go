// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package compress

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the compression algorithm of a sealed blob. These
// values are written into documents and frames; changing them breaks
// compatibility.
type Tag uint8

const (
	// None marks uncompressed data.
	None Tag = 0

	// LZ4 marks LZ4 block compression.
	LZ4 Tag = 1

	// Zstd marks zstd compression at the default level.
	Zstd Tag = 2
)

// maxSealedSize bounds the uncompressed length a sealed header may
// claim, so a corrupt header cannot trigger a huge allocation.
const maxSealedSize = 1 << 30

// String returns the human-readable name of a tag.
func (tag Tag) String() string {
	switch tag {
	case None:
		return "none"
	case LZ4:
		return "lz4"
	case Zstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", tag)
	}
}

// ParseTag parses a tag from its string representation.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "none", "":
		return None, nil
	case "lz4":
		return LZ4, nil
	case "zstd":
		return Zstd, nil
	default:
		return 0, fmt.Errorf("unknown compression: %q", name)
	}
}

// ErrIncompressible is returned by [Compress] when the compressed
// output would not be smaller than the input.
var ErrIncompressible = errors.New("data is incompressible")

// Compress compresses data with the given algorithm. For None the
// input is returned unchanged.
func Compress(data []byte, tag Tag) ([]byte, error) {
	switch tag {
	case None:
		return data, nil
	case LZ4:
		return compressLZ4(data)
	case Zstd:
		return compressZstd(data)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// Decompress reverses [Compress]. uncompressedSize must match the
// original length exactly.
func Decompress(compressed []byte, tag Tag, uncompressedSize int) ([]byte, error) {
	switch tag {
	case None:
		if len(compressed) != uncompressedSize {
			return nil, fmt.Errorf("uncompressed data: size %d does not match expected %d",
				len(compressed), uncompressedSize)
		}
		return compressed, nil
	case LZ4:
		return decompressLZ4(compressed, uncompressedSize)
	case Zstd:
		return decompressZstd(compressed, uncompressedSize)
	default:
		return nil, fmt.Errorf("unsupported compression tag: %d", tag)
	}
}

// Seal compresses data with tag and prefixes the result with the tag
// byte and the uncompressed length. Incompressible data is sealed
// with None. The returned tag is the one actually used.
func Seal(data []byte, tag Tag) ([]byte, Tag, error) {
	payload, err := Compress(data, tag)
	if errors.Is(err, ErrIncompressible) {
		payload, tag = data, None
	} else if err != nil {
		return nil, 0, err
	}

	header := make([]byte, 1, 1+binary.MaxVarintLen64+len(payload))
	header[0] = byte(tag)
	header = binary.AppendUvarint(header, uint64(len(data)))
	return append(header, payload...), tag, nil
}

// Open decodes a blob produced by [Seal].
func Open(sealed []byte) ([]byte, error) {
	if len(sealed) < 2 {
		return nil, fmt.Errorf("sealed blob too short (%d bytes)", len(sealed))
	}
	tag := Tag(sealed[0])
	size, n := binary.Uvarint(sealed[1:])
	if n <= 0 {
		return nil, errors.New("sealed blob has a malformed length header")
	}
	if size > maxSealedSize {
		return nil, fmt.Errorf("sealed blob claims %d bytes, limit is %d", size, maxSealedSize)
	}
	return Decompress(sealed[1+n:], tag, int(size))
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))

	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, ErrIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, uncompressedSize int) ([]byte, error) {
	destination := make([]byte, uncompressedSize)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != uncompressedSize {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, uncompressedSize)
	}
	return destination, nil
}

// zstd.Encoder and zstd.Decoder are safe for concurrent use of
// EncodeAll/DecodeAll, so one of each is shared.
var (
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
)

func init() {
	var err error
	zstdEncoder, err = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		panic("compress: zstd encoder initialization failed: " + err.Error())
	}
	zstdDecoder, err = zstd.NewReader(nil)
	if err != nil {
		panic("compress: zstd decoder initialization failed: " + err.Error())
	}
}

func compressZstd(data []byte) ([]byte, error) {
	compressed := zstdEncoder.EncodeAll(data, nil)
	if len(compressed) >= len(data) {
		return nil, ErrIncompressible
	}
	return compressed, nil
}

func decompressZstd(compressed []byte, uncompressedSize int) ([]byte, error) {
	result, err := zstdDecoder.DecodeAll(compressed, make([]byte, 0, uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("zstd decompress: %w", err)
	}
	if len(result) != uncompressedSize {
		return nil, fmt.Errorf("zstd decompress: got %d bytes, expected %d", len(result), uncompressedSize)
	}
	return result, nil
}
