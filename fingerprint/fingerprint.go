// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package fingerprint computes content identities of files.
//
// A Fingerprint has the same shape as the Digest of the remote execution API,
// so it is stable across builds if and only if the bytes are unchanged.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Fingerprint is a content identity of a file.
type Fingerprint struct {
	Hash      string `json:"hash"`
	SizeBytes int64  `json:"size_bytes"`
}

// Empty is a fingerprint of empty content.
var Empty = FromBytes(nil)

// IsZero returns true when the fingerprint is not set.
func (f Fingerprint) IsZero() bool {
	return f.Hash == ""
}

// String returns "hash/size" form of the fingerprint.
func (f Fingerprint) String() string {
	return fmt.Sprintf("%s/%d", f.Hash, f.SizeBytes)
}

// Parse parses "hash/size" form of the fingerprint.
func Parse(s string) (Fingerprint, error) {
	hash, size, ok := strings.Cut(s, "/")
	if !ok {
		return Fingerprint{}, fmt.Errorf("bad fingerprint %q: missing size", s)
	}
	if len(hash) != sha256.Size*2 {
		return Fingerprint{}, fmt.Errorf("bad fingerprint %q: hash length %d", s, len(hash))
	}
	n, err := strconv.ParseInt(size, 10, 64)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("bad fingerprint %q: %w", s, err)
	}
	return Fingerprint{Hash: hash, SizeBytes: n}, nil
}

// FromBytes returns a fingerprint of b.
func FromBytes(b []byte) Fingerprint {
	h := sha256.Sum256(b)
	return Fingerprint{
		Hash:      hex.EncodeToString(h[:]),
		SizeBytes: int64(len(b)),
	}
}

// FromReader returns a fingerprint of contents read from r.
func FromReader(r io.Reader) (Fingerprint, error) {
	h := sha256.New()
	n, err := io.Copy(h, r)
	if err != nil {
		return Fingerprint{}, err
	}
	return Fingerprint{
		Hash:      hex.EncodeToString(h.Sum(nil)),
		SizeBytes: n,
	}, nil
}

// FromFile returns a fingerprint of the file fname.
// It returns an error wrapping fs.ErrNotExist if fname doesn't exist,
// and an error if fname is a directory.
func FromFile(fname string) (Fingerprint, error) {
	f, err := os.Open(fname)
	if err != nil {
		return Fingerprint{}, err
	}
	defer f.Close()
	fi, err := f.Stat()
	if err != nil {
		return Fingerprint{}, err
	}
	if fi.IsDir() {
		return Fingerprint{}, fmt.Errorf("fingerprint %s: %w", fname, ErrIsDir)
	}
	return FromReader(f)
}

// ErrIsDir is returned when fingerprint of a directory is requested.
var ErrIsDir = errors.New("is a directory")
