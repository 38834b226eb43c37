// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package buildconfig loads a build description written in Starlark.
//
// The config file defines `init(ctx)` that returns
// `module("config", request = json.encode({...}))`. See Request for the
// schema.
package buildconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"runtime"

	"github.com/charmbracelet/log"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const configEntryPoint = "init"

// Config is a build config.
type Config struct {
	// flags given by -config_flag.
	flags map[string]string

	// global variables loaded by the config.
	globals starlark.StringDict

	fscache *fscache
}

// New loads the config file fname in dir.
// Modules loaded by the config are resolved relative to dir.
func New(ctx context.Context, dir fs.FS, fname string, flags map[string]string) (*Config, error) {
	loader := &repoLoader{
		ctx:         ctx,
		fsys:        dir,
		predeclared: builtinModule(),
	}
	thread := &starlark.Thread{
		Name: "load",
		Print: func(thread *starlark.Thread, msg string) {
			log.Infof("thread:%s %s", thread.Name, msg)
		},
		Load: loader.Load,
	}
	thread.SetLocal("modulename", fname)
	globals, err := loader.Load(thread, fname)
	if err != nil {
		log.Warnf("thread:%s failed to exec file %s: %v", thread.Name, fname, err)
		var eerr *starlark.EvalError
		if errors.As(err, &eerr) {
			log.Warnf("stacktrace:\n%s", eerr.Backtrace())
		}
		return nil, err
	}
	v, ok := globals[configEntryPoint]
	if !ok {
		return nil, fmt.Errorf("%s is not defined in %s", configEntryPoint, fname)
	}
	if _, ok := v.(starlark.Callable); !ok {
		return nil, fmt.Errorf("%s %s is not callable in %s", configEntryPoint, v.Type(), fname)
	}
	return &Config{
		flags:   flags,
		globals: globals,
		fscache: newFSCache(),
	}, nil
}

// InitError is an error in `init`.
type InitError struct {
	fn  starlark.Value
	err *starlark.EvalError
}

func (e InitError) Error() string {
	if fn, ok := e.fn.(*starlark.Function); ok {
		return fmt.Sprintf("failed to run %s[%s]: %v", configEntryPoint, fn.Position(), e.err)
	}
	return fmt.Sprintf("failed to run %s: %v", configEntryPoint, e.err)
}

// Backtrace returns the Starlark call stack of the error.
func (e InitError) Backtrace() string {
	return e.err.CallStack.String()
}

func (e InitError) Unwrap() error {
	return e.err
}

// Init runs `init` and returns the build request.
// workspace is the workspace root accessed by ctx.fs, and hostArch
// is exposed as ctx.host_arch.
func (cfg *Config) Init(ctx context.Context, workspace fs.FS, hostArch string) (*Request, error) {
	fun := cfg.globals[configEntryPoint]
	thread := &starlark.Thread{
		Name: configEntryPoint,
		Print: func(thread *starlark.Thread, msg string) {
			log.Infof("thread:%s %s", thread.Name, msg)
		},
		Load: func(*starlark.Thread, string) (starlark.StringDict, error) {
			return nil, fmt.Errorf("load is not allowed in init")
		},
	}
	hctx := starlarkstruct.FromStringDict(starlark.String("ctx"), map[string]starlark.Value{
		"flags":     starFlags(cfg.flags),
		"os":        starlark.String(runtime.GOOS),
		"host_arch": starlark.String(hostArch),
		"fs":        starFS(ctx, workspace, cfg.fscache),
	})
	ret, err := starlark.Call(thread, fun, []starlark.Value{hctx}, nil)
	if err != nil {
		log.Warnf("thread:%s failed to run %s: %v", thread.Name, configEntryPoint, err)
		var eerr *starlark.EvalError
		if errors.As(err, &eerr) {
			log.Warnf("stacktrace:\n%s", eerr.Backtrace())
			return nil, InitError{fn: fun, err: eerr}
		}
		return nil, fmt.Errorf("failed to run %s: %w", configEntryPoint, err)
	}
	m, ok := ret.(*starlarkstruct.Module)
	if !ok {
		return nil, fmt.Errorf("%s returned %s, want module", configEntryPoint, ret.Type())
	}
	v, err := m.Attr("request")
	if err != nil || v == nil {
		return nil, fmt.Errorf("no request in %v: %v", ret, err)
	}
	s, ok := starlark.AsString(v)
	if !ok {
		return nil, fmt.Errorf("request is %s, want string", v.Type())
	}
	req := &Request{}
	err = json.Unmarshal([]byte(s), req)
	if err != nil {
		return nil, fmt.Errorf("bad request: %w", err)
	}
	err = req.Validate()
	if err != nil {
		return nil, err
	}
	log.Infof("request %s-%s: %d files", req.Identifier, req.Architecture, len(req.Files))
	return req, nil
}

// Load loads fname in workspace and runs `init`.
func Load(ctx context.Context, workspace fs.FS, fname string, flags map[string]string, hostArch string) (*Request, error) {
	cfg, err := New(ctx, workspace, fname, flags)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", fname, err)
	}
	req, err := cfg.Init(ctx, workspace, hostArch)
	if err != nil {
		return nil, fmt.Errorf("failed to init %s: %w", fname, err)
	}
	return req, nil
}
