// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package xmlstate

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bureau-foundation/proxysync/lib/compress"
)

// CompressedSuffix marks document files sealed with zstd.
const CompressedSuffix = ".zst"

// ReadFile reads a document from disk.
func ReadFile(path string) (*Element, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	if strings.HasSuffix(path, CompressedSuffix) {
		data, err = compress.Open(data)
		if err != nil {
			return nil, fmt.Errorf("decompressing %s: %w", path, err)
		}
	}
	root, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return root, nil
}

// WriteFile writes root to path atomically (temporary file plus
// rename). A ".zst" suffix selects zstd compression.
func WriteFile(path string, root *Element) error {
	var buffer bytes.Buffer
	if _, err := root.WriteTo(&buffer); err != nil {
		return err
	}
	data := buffer.Bytes()
	if strings.HasSuffix(path, CompressedSuffix) {
		sealed, _, err := compress.Seal(data, compress.Zstd)
		if err != nil {
			return fmt.Errorf("compressing %s: %w", path, err)
		}
		data = sealed
	}

	temporary, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return fmt.Errorf("creating temporary state file: %w", err)
	}
	defer os.Remove(temporary.Name())
	if _, err := temporary.Write(data); err != nil {
		temporary.Close()
		return fmt.Errorf("writing state file: %w", err)
	}
	if err := temporary.Close(); err != nil {
		return fmt.Errorf("closing state file: %w", err)
	}
	if err := os.Rename(temporary.Name(), path); err != nil {
		return fmt.Errorf("installing state file: %w", err)
	}
	return nil
}
