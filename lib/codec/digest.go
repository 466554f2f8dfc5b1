// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package codec

import (
	"encoding/hex"
	"fmt"

	"github.com/zeebo/blake3"
)

// DigestSize is the length in bytes of a [Digest] result.
const DigestSize = 32

// StateDigest identifies the deterministic encoding of a value.
type StateDigest [DigestSize]byte

// String returns the hex encoding of the digest.
func (d StateDigest) String() string {
	return hex.EncodeToString(d[:])
}

// IsZero reports whether d is the zero digest (no value hashed).
func (d StateDigest) IsZero() bool {
	return d == StateDigest{}
}

// Digest encodes v deterministically and returns the BLAKE3 hash of
// the encoding. Two values have equal digests exactly when their
// deterministic encodings are byte-identical.
func Digest(v any) (StateDigest, error) {
	data, err := Marshal(v)
	if err != nil {
		return StateDigest{}, fmt.Errorf("encoding value for digest: %w", err)
	}
	return DigestBytes(data), nil
}

// DigestBytes returns the BLAKE3 hash of already-encoded data.
func DigestBytes(data []byte) StateDigest {
	return StateDigest(blake3.Sum256(data))
}
