// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ccompile compiles C/C++ sources with msvc incrementally.
//
// Compile plans which units need compilation from the previous
// BuildState and the changes of files it depended on, runs cl for them
// in parallel, and returns the new BuildState. A unit's failure doesn't
// stop others, so one build reports all failures.
package ccompile

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/msvcinc/changefeed"
	"go.chromium.org/infra/build/msvcinc/execute"
	"go.chromium.org/infra/build/msvcinc/fingerprint"
	"go.chromium.org/infra/build/msvcinc/mirror"
	"go.chromium.org/infra/build/msvcinc/sync/semaphore"
	"go.chromium.org/infra/build/msvcinc/toolchain"
	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil"
)

// ErrCompilationFailed is returned when any unit failed to compile.
var ErrCompilationFailed = errors.New("compilation failed")

// Printer shows compilation progress and diagnostics to the user.
type Printer interface {
	// Summary is called with the number of units to compile.
	Summary(n int)
	// Progress is called when a unit is compiled.
	Progress(done, total int, r *Result)
	// Output prints cl output of the source that is not a diagnostic.
	Output(source, text string)
	// Diagnostic prints a diagnostic. source is shown if d has no path.
	Diagnostic(source string, d Diagnostic)
}

type nopPrinter struct{}

func (nopPrinter) Summary(int)                   {}
func (nopPrinter) Progress(int, int, *Result)    {}
func (nopPrinter) Output(string, string)         {}
func (nopPrinter) Diagnostic(string, Diagnostic) {}

// Options is options of Compile.
type Options struct {
	// Identifier and Architecture identify the build.
	// Architecture is the target architecture, e.g. "x64".
	Identifier   string
	Architecture string
	// HostArch is the host architecture to select the toolchain.
	HostArch string
	// Environment is the execution environment qualifier.
	Environment string

	SDKs     map[string]toolchain.Description
	Resolver toolchain.Resolver
	Mirror   mirror.Mirror
	Exec     execute.Executor

	// OutputDir is the logical directory for object files.
	// Files in it that are not outputs of the build are removed.
	OutputDir string
	// Workers is the number of parallel compilations.
	Workers int

	Printer Printer
}

// Identity returns the identity of the build.
func (o Options) Identity() Identity {
	return Identity{
		Toolchain:   o.SDKs,
		Environment: o.Environment,
	}
}

// Validate checks units before any compilation.
func Validate(units []Unit) error {
	names := make(map[string]string)
	for _, u := range units {
		if u.OutputName == "" {
			return ConfigError{Source: u.Config.Source, Err: errors.New("no output name")}
		}
		key := strings.ToLower(u.OutputName)
		if src, ok := names[key]; ok {
			return ConfigError{Source: u.Config.Source, Err: fmt.Errorf("output name %q is also used by %s", u.OutputName, src)}
		}
		names[key] = u.Config.Source
		err := u.Config.Validate()
		if err != nil {
			return err
		}
	}
	return nil
}

// Compile compiles units incrementally from prev, which may be nil.
//
// It returns the new state, even when some units failed, in which case
// error wraps ErrCompilationFailed. Other errors, e.g. configuration
// errors or cancellation, return nil state and the state must not be
// persisted.
func Compile(ctx context.Context, opts Options, units []Unit, prev *BuildState) (*BuildState, error) {
	started := time.Now()
	err := Validate(units)
	if err != nil {
		return nil, err
	}
	if opts.OutputDir == "" || path.Clean(opts.OutputDir) == "." {
		return nil, fmt.Errorf("invalid output directory %q", opts.OutputDir)
	}
	printer := opts.Printer
	if printer == nil {
		printer = nopPrinter{}
	}
	id := opts.Identity()

	var cs changefeed.ChangeSet
	var cur changefeed.Snapshot
	if prev != nil && prev.Identity.Equal(id) {
		cs, cur, err = changefeed.Detect(ctx, opts.Mirror, prev.Dependencies)
		if err != nil {
			return nil, fmt.Errorf("detect changes: %w", err)
		}
	}
	plan := Plan(prev, id, units, cs)
	printer.Summary(len(plan.Pending))

	workers := opts.Workers
	if workers <= 0 {
		workers = 1
	}
	pchs := newPCHManager(PCHNames(units), plan.ReusedPCH)
	e := &Executor{
		exec:   opts.Exec,
		mirror: opts.Mirror,
		paths: &pathResolver{
			sdks:   NewSDKCache(opts.Resolver, opts.SDKs),
			mirror: NewMirrorCache(opts.Mirror),
		},
		sema:       semaphore.New("cl", workers),
		env:        msvcutil.StripEnv(os.Environ()),
		hostArch:   opts.HostArch,
		targetArch: opts.Architecture,
		outDir:     opts.OutputDir,
		pchs:       pchs,
	}

	state := NewBuildState(opts.Identifier, opts.Architecture, id)
	maps.Copy(state.Records, plan.Reused)
	compiled := make(map[string]*Result)
	err = Scheduler{Workers: workers}.Run(ctx, plan.Pending, e.Run, func(r *Result) {
		compiled[r.Unit.OutputName] = r
		state.Records[r.Unit.OutputName] = r.Record()
		printer.Progress(len(compiled), len(plan.Pending), r)
	})
	if err != nil {
		return nil, err
	}
	state.PrecompiledHeaders = pchRecords(units, plan.ReusedPCH, pchs.Records())

	removeStaleOutputs(opts.Mirror.LocalPath(opts.OutputDir), state)
	state.Dependencies, err = changefeed.Take(ctx, opts.Mirror, cur, refs(opts.Mirror, units, state))
	if err != nil {
		return nil, fmt.Errorf("snapshot dependencies: %w", err)
	}
	printDiagnostics(printer, state, compiled)

	failed := state.Failed()
	log.Infof("compiled %d reused %d failed %d in %s", len(compiled), len(plan.Reused), len(failed), time.Since(started))
	if len(failed) > 0 {
		return state, fmt.Errorf("%w: %d of %d file(s)", ErrCompilationFailed, len(failed), len(units))
	}
	return state, nil
}

// pchRecords returns records of precompiled headers used by units.
// Ones not created or verified in this build are carried from reused.
func pchRecords(units []Unit, reused, current map[string]*PCHRecord) map[string]*PCHRecord {
	records := make(map[string]*PCHRecord)
	names := PCHNames(units)
	for _, u := range units {
		if u.Config.PCH == nil {
			continue
		}
		name := names[pchKey(u.Config)]
		if r, ok := current[name]; ok {
			records[name] = r
			continue
		}
		if r, ok := reused[name]; ok && r.Config.Equal(pchConfig(u.Config)) {
			records[name] = r
		}
	}
	return records
}

// refs returns files the state depends on.
func refs(m mirror.Mirror, units []Unit, state *BuildState) changefeed.Refs {
	r := changefeed.Refs{
		Sources: make(map[string]fingerprint.Fingerprint),
		Outputs: make(map[string]fingerprint.Fingerprint),
	}
	for _, rec := range state.Records {
		r.Sources[rec.Config.Source] = rec.InputFingerprint
		if rec.Succeeded() {
			r.Outputs[rec.OutputPath] = rec.OutputFingerprint
		}
		r.Includes = append(r.Includes, rec.Includes...)
		r.FailedIncludes = append(r.FailedIncludes, rec.FailedIncludes...)
	}
	for _, p := range state.PrecompiledHeaders {
		r.Outputs[p.PCHPath] = p.PCHFingerprint
		r.Outputs[p.ObjPath] = p.ObjFingerprint
		r.Includes = append(r.Includes, p.Includes...)
		r.FailedIncludes = append(r.FailedIncludes, p.FailedIncludes...)
	}
	r.Includes = sortedSet(r.Includes)
	r.FailedIncludes = sortedSet(r.FailedIncludes)

	// watch workspace directories only. SDK directories are covered
	// by the identity.
	var dirs []string
	for _, u := range units {
		dirs = append(dirs, m.LocalPath(path.Dir(u.Config.Source)))
		for _, p := range u.Config.IncludeDirs {
			if p.IsLocal() {
				dirs = append(dirs, m.LocalPath(p.Path))
			}
		}
	}
	r.Dirs = sortedSet(dirs)
	return r
}

// removeStaleOutputs removes files in dir that are not outputs of state.
// The precompiled header directory is kept.
func removeStaleOutputs(dir string, state *BuildState) {
	keep := make(map[string]bool)
	for _, p := range state.OutputPaths() {
		keep[strings.ToLower(path.Base(p))] = true
	}
	ents, err := os.ReadDir(dir)
	if err != nil {
		log.Debugf("read output dir %s: %v", dir, err)
		return
	}
	for _, ent := range ents {
		if ent.IsDir() || keep[strings.ToLower(ent.Name())] {
			continue
		}
		fname := filepath.Join(dir, ent.Name())
		log.Infof("remove stale output %s", fname)
		err := os.Remove(fname)
		if err != nil {
			log.Warnf("remove stale output %s: %v", fname, err)
		}
	}
}

// printDiagnostics prints diagnostics of precompiled headers and
// records in the order of names, regardless of completion order.
// Diagnostics are grouped per unit and sorted within each unit, so
// a unit's passthrough output stays next to its diagnostics.
func printDiagnostics(p Printer, state *BuildState, compiled map[string]*Result) {
	for _, name := range slices.Sorted(maps.Keys(state.PrecompiledHeaders)) {
		r := state.PrecompiledHeaders[name]
		for _, d := range r.Diagnostics {
			p.Diagnostic(r.Config.PCH.Header.String(), d)
		}
	}
	for _, name := range state.OutputNames() {
		rec := state.Records[name]
		if r, ok := compiled[name]; ok && r.Output != "" {
			p.Output(rec.Config.Source, r.Output)
		}
		for _, d := range rec.Diagnostics {
			p.Diagnostic(rec.Config.Source, d)
		}
	}
}
