// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildconfig

import (
	"fmt"
	"path"
	"strings"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// starPath returns path module for logical (slash separated) paths.
//
//	base(fname)
//	dir(fname)
//	ext(fname)
//	stem(fname)
//	join(...)
func starPath() starlark.Value {
	pathModule := &starlarkstruct.Module{
		Name: "path",
		Members: map[string]starlark.Value{
			"base": starlark.NewBuiltin("base", starPathUnary(path.Base)),
			"dir":  starlark.NewBuiltin("dir", starPathUnary(path.Dir)),
			"ext":  starlark.NewBuiltin("ext", starPathUnary(path.Ext)),
			"stem": starlark.NewBuiltin("stem", starPathUnary(func(fname string) string {
				base := path.Base(fname)
				return strings.TrimSuffix(base, path.Ext(base))
			})),
			"join": starlark.NewBuiltin("join", starPathJoin),
		},
	}
	pathModule.Freeze()
	return pathModule
}

// starPathUnary returns Starlark function `f(fname)`.
// Backslashes in fname are treated as separators.
func starPathUnary(f func(string) string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var fname string
		err := starlark.UnpackArgs(fn.Name(), args, kwargs, "fname", &fname)
		if err != nil {
			return starlark.None, err
		}
		return starlark.String(f(strings.ReplaceAll(fname, `\`, "/"))), nil
	}
}

// Starlark function `path.join(...)` to return joined path name.
func starPathJoin(thread *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var elems []string
	for _, v := range args {
		s, ok := starlark.AsString(v)
		if !ok {
			return starlark.None, fmt.Errorf("join: for parameter elems: got %s, want string", v.Type())
		}
		elems = append(elems, strings.ReplaceAll(s, `\`, "/"))
	}
	return starlark.String(path.Join(elems...)), nil
}
