// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version provides build version information for proxysync
// binaries and the version of the state documents they write.
//
// # Build information
//
// [GitCommit], [GitDirty], [BuildTime] and [Version] are injected
// with -ldflags -X. Development builds fall back to the VCS revision
// the go tool stamps into the binary.
//
// [Info] is the one-line --version form, [Full] adds Go version,
// platform and document version, and [Short] is the bare version.
//
// # Document versions
//
// Saved state documents carry a major.minor.patch [Triple] on their
// root element. [Document] is the version this build writes;
// [Triple.Readable] rejects documents from a newer major version.
package version
