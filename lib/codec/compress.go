// Copyright 2026 The Feedin Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// CompressionThreshold is the payload size below which Pack leaves
// data uncompressed. Per-unit control messages are a few dozen bytes;
// only bulk payloads (host input maps, limit maps for large fleets)
// cross it.
const CompressionThreshold = 1024

// maxUnpackedSize bounds the size header accepted by Unpack so a
// corrupt header cannot trigger a huge allocation.
const maxUnpackedSize = 64 << 20

// Packed-payload tags. These are wire constants.
const (
	tagRaw byte = 0
	tagLZ4 byte = 1
)

var errIncompressible = errors.New("data is incompressible")

// Pack frames data for transmission: a one-byte tag, and for
// compressed payloads a little-endian uint32 of the original size
// followed by the LZ4 block. Payloads under CompressionThreshold, or
// that LZ4 cannot shrink, are sent raw.
func Pack(data []byte) []byte {
	if len(data) >= CompressionThreshold {
		compressed, err := compressLZ4(data)
		if err == nil {
			framed := make([]byte, 5+len(compressed))
			framed[0] = tagLZ4
			binary.LittleEndian.PutUint32(framed[1:5], uint32(len(data)))
			copy(framed[5:], compressed)
			return framed
		}
	}
	framed := make([]byte, 1+len(data))
	framed[0] = tagRaw
	copy(framed[1:], data)
	return framed
}

// Unpack reverses Pack.
func Unpack(framed []byte) ([]byte, error) {
	if len(framed) == 0 {
		return nil, fmt.Errorf("packed payload is empty")
	}
	switch framed[0] {
	case tagRaw:
		return framed[1:], nil
	case tagLZ4:
		if len(framed) < 5 {
			return nil, fmt.Errorf("lz4 payload truncated: %d bytes", len(framed))
		}
		size := int(binary.LittleEndian.Uint32(framed[1:5]))
		if size > maxUnpackedSize {
			return nil, fmt.Errorf("lz4 payload declares %d bytes, limit is %d", size, maxUnpackedSize)
		}
		return decompressLZ4(framed[5:], size)
	default:
		return nil, fmt.Errorf("unknown payload tag %d", framed[0])
	}
}

// MarshalPacked encodes v as CBOR and frames it with Pack.
func MarshalPacked(v any) ([]byte, error) {
	data, err := Marshal(v)
	if err != nil {
		return nil, err
	}
	return Pack(data), nil
}

// UnmarshalPacked unframes data with Unpack and decodes the CBOR body
// into v.
func UnmarshalPacked(framed []byte, v any) error {
	data, err := Unpack(framed)
	if err != nil {
		return err
	}
	return Unmarshal(data, v)
}

func compressLZ4(data []byte) ([]byte, error) {
	destination := make([]byte, lz4.CompressBlockBound(len(data)))
	written, err := lz4.CompressBlock(data, destination, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress: %w", err)
	}
	// CompressBlock returns 0 for incompressible input.
	if written == 0 || written >= len(data) {
		return nil, errIncompressible
	}
	return destination[:written], nil
}

func decompressLZ4(compressed []byte, size int) ([]byte, error) {
	destination := make([]byte, size)
	read, err := lz4.UncompressBlock(compressed, destination)
	if err != nil {
		return nil, fmt.Errorf("lz4 decompress: %w", err)
	}
	if read != size {
		return nil, fmt.Errorf("lz4 decompress: got %d bytes, expected %d", read, size)
	}
	return destination, nil
}
