// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package xmlstate is the element tree used by persisted session
// documents and by XML proxy definitions.
//
// [Element] is a minimal, order-preserving tree: a tag name, ordered
// attributes, and ordered children. Documents are small (a few
// thousand elements at most) and are read and written whole, so a
// tree is simpler to work with than streaming. [Parse] builds a tree
// from XML text and [Element.WriteTo] writes indented XML.
//
// [ReadFile] and [WriteFile] store documents on disk. Files whose
// name ends in ".zst" are sealed with zstd via lib/compress; the
// reader detects compression from the file name.
package xmlstate
