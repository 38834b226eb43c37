// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildconfig

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// starFS returns fs module of the workspace.
//
//	read(fname): reads a file.
//	is_dir(fname): check if fname is a dir.
//	exists(fname): check if fname exists.
//	glob(pattern): returns files matching pattern, sorted.
func starFS(ctx context.Context, fsys fs.FS, fsc *fscache) starlark.Value {
	receiver := starFSReceiver{
		ctx:     ctx,
		fs:      fsys,
		fscache: fsc,
	}
	return starlarkstruct.FromStringDict(starlark.String("fs"), map[string]starlark.Value{
		"read":   starlark.NewBuiltin("read", starFSRead).BindReceiver(receiver),
		"is_dir": starlark.NewBuiltin("is_dir", starFSIsDir).BindReceiver(receiver),
		"exists": starlark.NewBuiltin("exists", starFSExists).BindReceiver(receiver),
		"glob":   starlark.NewBuiltin("glob", starFSGlob).BindReceiver(receiver),
	})
}

type starFSReceiver struct {
	ctx     context.Context
	fs      fs.FS
	fscache *fscache
}

func (r starFSReceiver) String() string {
	return fmt.Sprintf("fs[%v]", r.fs)
}

func (starFSReceiver) Type() string          { return "fs" }
func (starFSReceiver) Freeze()               {}
func (starFSReceiver) Truth() starlark.Bool  { return starlark.True }
func (starFSReceiver) Hash() (uint32, error) { return 0, errors.New("fs is not hashable") }

func unpackFSArg(fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple, name string) (starFSReceiver, string, error) {
	c, ok := fn.Receiver().(starFSReceiver)
	if !ok {
		return c, "", fmt.Errorf("unexpected receiver: %v", fn.Receiver())
	}
	var s string
	err := starlark.UnpackArgs(fn.Name(), args, kwargs, name, &s)
	return c, s, err
}

// Starlark function `fs.read(fname)` to return contents of fname.
func starFSRead(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, fname, err := unpackFSArg(fn, args, kwargs, "fname")
	if err != nil {
		return starlark.None, err
	}
	buf, err := c.fscache.read(c.ctx, c.fs, fname)
	if err != nil {
		return starlark.None, err
	}
	return starlark.Bytes(buf), nil
}

// Starlark function `fs.is_dir(fname)` to check fname is a dir.
func starFSIsDir(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, fname, err := unpackFSArg(fn, args, kwargs, "fname")
	if err != nil {
		return starlark.None, err
	}
	fi, err := fs.Stat(c.fs, fname)
	if err != nil {
		return starlark.None, err
	}
	return starlark.Bool(fi.IsDir()), nil
}

// Starlark function `fs.exists(fname)` to check fname exists.
func starFSExists(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, fname, err := unpackFSArg(fn, args, kwargs, "fname")
	if err != nil {
		return starlark.None, err
	}
	_, err = fs.Stat(c.fs, fname)
	return starlark.Bool(err == nil), nil
}

// Starlark function `fs.glob(pattern)` to list files matching pattern.
func starFSGlob(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	c, pattern, err := unpackFSArg(fn, args, kwargs, "pattern")
	if err != nil {
		return starlark.None, err
	}
	matches, err := c.fscache.glob(c.ctx, c.fs, pattern)
	if err != nil {
		return starlark.None, err
	}
	return packList(matches), nil
}
