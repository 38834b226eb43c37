// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package fingerprint_test

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"go.chromium.org/infra/build/msvcinc/fingerprint"
)

func TestFromFile(t *testing.T) {
	dir := t.TempDir()
	fname := filepath.Join(dir, "main.c")
	err := os.WriteFile(fname, []byte("int main() { return 0; }\n"), 0644)
	if err != nil {
		t.Fatal(err)
	}
	got, err := fingerprint.FromFile(fname)
	if err != nil {
		t.Fatalf("FromFile(%q)=_, %v; want nil err", fname, err)
	}
	want := fingerprint.FromBytes([]byte("int main() { return 0; }\n"))
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("FromFile(%q) diff -want +got:\n%s", fname, diff)
	}

	err = os.WriteFile(fname, []byte("int main() { return 1; }\n"), 0644)
	if err != nil {
		t.Fatal(err)
	}
	changed, err := fingerprint.FromFile(fname)
	if err != nil {
		t.Fatal(err)
	}
	if changed == got {
		t.Errorf("FromFile(%q)=%v after change; want different from %v", fname, changed, got)
	}
}

func TestFromFile_errors(t *testing.T) {
	dir := t.TempDir()
	_, err := fingerprint.FromFile(filepath.Join(dir, "missing.h"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("FromFile(missing)=_, %v; want fs.ErrNotExist", err)
	}
	_, err = fingerprint.FromFile(dir)
	if !errors.Is(err, fingerprint.ErrIsDir) {
		t.Errorf("FromFile(dir)=_, %v; want ErrIsDir", err)
	}
}

func TestParse(t *testing.T) {
	fp := fingerprint.FromBytes([]byte("header"))
	got, err := fingerprint.Parse(fp.String())
	if err != nil {
		t.Fatalf("Parse(%q)=_, %v; want nil err", fp.String(), err)
	}
	if diff := cmp.Diff(fp, got); diff != "" {
		t.Errorf("Parse(%q) diff -want +got:\n%s", fp.String(), diff)
	}
	for _, s := range []string{"", "abc", "abc/1", fp.Hash + "/x"} {
		if _, err := fingerprint.Parse(s); err == nil {
			t.Errorf("Parse(%q)=_, nil; want err", s)
		}
	}
}
