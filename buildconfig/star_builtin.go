// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildconfig

import (
	"runtime"

	starjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"go.chromium.org/infra/build/msvcinc/runtimex"
)

// builtinModule returns predeclared values of config files.
//
//	json: json.encode, json.decode etc.
//	path: path manipulation of slash separated paths.
//	runtime: num_cpu, os, arch of the host.
//	struct(**kwargs), module(name, **kwargs)
func builtinModule() starlark.StringDict {
	runtimeModule := &starlarkstruct.Module{
		Name: "runtime",
		Members: map[string]starlark.Value{
			"num_cpu": starlark.MakeInt(runtimex.NumCPU()),
			"os":      starlark.String(runtime.GOOS),
			"arch":    starlark.String(runtimex.HostArch()),
		},
	}
	runtimeModule.Freeze()

	return starlark.StringDict{
		"runtime": runtimeModule,
		"path":    starPath(),
		"json":    starjson.Module,
		"struct":  starlark.NewBuiltin("struct", starlarkstruct.Make),
		"module":  starlark.NewBuiltin("module", starlarkstruct.MakeModule),
	}
}
