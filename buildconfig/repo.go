// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package buildconfig

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/charmbracelet/log"
	"go.starlark.net/starlark"
)

// repoLoader is a Starlark module loader.
type repoLoader struct {
	ctx         context.Context
	fsys        fs.FS
	predeclared starlark.StringDict

	// loaded modules, keyed by module name.
	cache map[string]*loadEntry
}

type loadEntry struct {
	globals starlark.StringDict
	err     error
}

// Load loads a Starlark module.
// A module is relative to the loading module, or to the config
// directory if it has "//" prefix.
func (r *repoLoader) Load(thread *starlark.Thread, module string) (starlark.StringDict, error) {
	curname, _ := thread.Local("modulename").(string)
	var fname string
	if name, ok := strings.CutPrefix(module, "//"); ok {
		fname = path.Clean(name)
	} else {
		fname = path.Join(path.Dir(curname), module)
	}
	log.Debugf("load %s from %s: %s", module, curname, fname)
	if r.cache == nil {
		r.cache = make(map[string]*loadEntry)
	}
	if e, ok := r.cache[fname]; ok {
		if e == nil {
			return nil, fmt.Errorf("cycle in load of %s", fname)
		}
		return e.globals, e.err
	}
	r.cache[fname] = nil
	buf, err := fs.ReadFile(r.fsys, fname)
	if err != nil {
		err = fmt.Errorf("failed to load %s: %w", fname, err)
		r.cache[fname] = &loadEntry{err: err}
		return nil, err
	}
	t := &starlark.Thread{
		Name: "module " + fname,
		Print: func(thread *starlark.Thread, msg string) {
			log.Infof("thread:%s %s", thread.Name, msg)
		},
		Load: r.Load,
	}
	t.SetLocal("modulename", fname)
	globals, err := starlark.ExecFile(t, fname, buf, r.predeclared)
	r.cache[fname] = &loadEntry{globals: globals, err: err}
	return globals, err
}
