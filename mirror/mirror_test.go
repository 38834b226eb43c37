// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mirror_test

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"go.chromium.org/infra/build/msvcinc/mirror"
)

func TestDirMirror(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	err := os.MkdirAll(filepath.Join(root, "inc"), 0755)
	if err != nil {
		t.Fatal(err)
	}
	err = os.WriteFile(filepath.Join(root, "inc", "header.h"), nil, 0644)
	if err != nil {
		t.Fatal(err)
	}
	m, err := mirror.NewDirMirror(root)
	if err != nil {
		t.Fatal(err)
	}

	got, err := m.Materialize(ctx, "inc/header.h")
	if want := filepath.Join(root, "inc", "header.h"); err != nil || got != want {
		t.Errorf("Materialize(%q)=%q, %v; want %q, nil", "inc/header.h", got, err, want)
	}
	if _, err := m.Materialize(ctx, "inc"); !errors.Is(err, fs.ErrInvalid) {
		t.Errorf("Materialize(%q)=_, %v; want fs.ErrInvalid", "inc", err)
	}
	if _, err := m.Materialize(ctx, "inc/missing.h"); !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Materialize(%q)=_, %v; want fs.ErrNotExist", "inc/missing.h", err)
	}
	got, err = m.MaterializeDir(ctx, "inc")
	if want := filepath.Join(root, "inc"); err != nil || got != want {
		t.Errorf("MaterializeDir(%q)=%q, %v; want %q, nil", "inc", got, err, want)
	}
	if _, err := m.MaterializeDir(ctx, "inc/header.h"); !errors.Is(err, fs.ErrInvalid) {
		t.Errorf("MaterializeDir(%q)=_, %v; want fs.ErrInvalid", "inc/header.h", err)
	}

	for _, tc := range []struct {
		local  string
		want   string
		wantOK bool
	}{
		{local: filepath.Join(root, "inc", "header.h"), want: "inc/header.h", wantOK: true},
		{local: filepath.Join(root, "inc", "..", "main.c"), want: "main.c", wantOK: true},
		{local: filepath.Dir(root), wantOK: false},
		{local: "relative.h", wantOK: false},
	} {
		got, ok := m.Logical(tc.local)
		if got != tc.want || ok != tc.wantOK {
			t.Errorf("Logical(%q)=%q, %t; want %q, %t", tc.local, got, ok, tc.want, tc.wantOK)
		}
	}
}
