// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ccompile

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/msvcinc/execute"
	"go.chromium.org/infra/build/msvcinc/fingerprint"
	"go.chromium.org/infra/build/msvcinc/mirror"
	"go.chromium.org/infra/build/msvcinc/sync/semaphore"
	"go.chromium.org/infra/build/msvcinc/toolchain"
	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil"
)

// Result is the result of a unit compilation.
type Result struct {
	Unit    Unit
	Success bool

	InputFingerprint fingerprint.Fingerprint
	// OutputPath is the logical path of the object file. Empty if failed.
	OutputPath        string
	OutputFingerprint fingerprint.Fingerprint

	Diagnostics    []Diagnostic
	Includes       []string
	FailedIncludes []string

	// Output is cl output that is neither diagnostic nor include trace.
	Output string
}

// Record returns the record of the result for BuildState.
func (r *Result) Record() *CompiledFileRecord {
	rec := &CompiledFileRecord{
		InputFingerprint: r.InputFingerprint,
		Config:           r.Unit.Config,
		Diagnostics:      r.Diagnostics,
		Includes:         r.Includes,
		FailedIncludes:   r.FailedIncludes,
	}
	if r.Success {
		rec.OutputPath = r.OutputPath
		rec.OutputFingerprint = r.OutputFingerprint
	}
	return rec
}

// fail records err as an error diagnostic without path.
func (r *Result) fail(err error) {
	r.Success = false
	r.OutputPath = ""
	r.OutputFingerprint = fingerprint.Fingerprint{}
	r.Diagnostics = append(r.Diagnostics, Diagnostic{
		Severity:  SeverityError,
		LineIndex: -1,
		Message:   err.Error(),
	})
}

// exitCodeMessage is the message for a cl failure that reported no error
// and printed nothing beyond the source echo and include notes.
func exitCodeMessage(exe string, code int) string {
	return fmt.Sprintf("%s exited with error code: %d (0x%x)", exe, code, uint32(code))
}

// Executor compiles a unit.
// It is safe for concurrent use.
type Executor struct {
	exec   execute.Executor
	mirror mirror.Mirror
	paths  *pathResolver
	sema   *semaphore.Semaphore
	env    []string

	hostArch, targetArch string
	// outDir is the logical output directory.
	outDir string

	pchs *pchManager
}

// compiler returns local path of cl.exe and its working directory.
func (e *Executor) compiler(ctx context.Context) (string, string, error) {
	cl, err := e.paths.sdks.Path(ctx, toolchain.MSVC, toolchain.ExeID("cl", e.hostArch, e.targetArch))
	if err != nil {
		return "", "", err
	}
	dir, err := e.paths.sdks.Path(ctx, toolchain.MSVC, toolchain.WorkDirID("cl", e.hostArch, e.targetArch))
	if err != nil {
		dir = filepath.Dir(cl)
	}
	return cl, dir, nil
}

// objPath returns logical path of the object file of the output name.
func (e *Executor) objPath(name string) string {
	return path.Join(e.outDir, name+".obj")
}

// Run compiles the unit.
// Failures are reported in the result, never as error.
func (e *Executor) Run(ctx context.Context, u Unit) *Result {
	r := &Result{Unit: u}
	err := e.run(ctx, u, r)
	if err != nil {
		log.Warnf("compile %s: %v", u.OutputName, err)
		r.fail(err)
	}
	r.Diagnostics = SortDiagnostics(r.Diagnostics)
	return r
}

func (e *Executor) run(ctx context.Context, u Unit, r *Result) error {
	cfg := u.Config
	src, err := e.paths.mirror.File(ctx, cfg.Source)
	if err != nil {
		return fmt.Errorf("source %s: %w", cfg.Source, err)
	}
	r.InputFingerprint, err = fingerprint.FromFile(src)
	if err != nil {
		return fmt.Errorf("source %s: %w", cfg.Source, err)
	}
	cl, dir, err := e.compiler(ctx)
	if err != nil {
		return err
	}
	includeDirs, err := e.localDirs(ctx, cfg.IncludeDirs)
	if err != nil {
		return err
	}
	forceIncludes, err := e.localFiles(ctx, cfg.ForceIncludes)
	if err != nil {
		return err
	}

	var pchArgs *msvcutil.PCHArgs
	var pchIncludes []string
	if cfg.PCH != nil {
		p := e.pchs.get(ctx, e, cfg, includeDirs, forceIncludes)
		if !p.ok {
			r.Diagnostics = append(r.Diagnostics, p.diagnostics...)
			return fmt.Errorf("failed to compile required precompiled header (%s)", p.header)
		}
		pchArgs = &msvcutil.PCHArgs{
			Header:       p.header,
			Path:         p.pchPath,
			ForceInclude: cfg.PCH.ForceInclude,
		}
		// force includes are in the precompiled header.
		forceIncludes = nil
		pchIncludes = p.record.Includes
	}

	objLogical := e.objPath(u.OutputName)
	obj := e.mirror.LocalPath(objLogical)
	err = prepareOutput(obj)
	if err != nil {
		return err
	}
	args, err := msvcutil.CompileArgs{
		Exe:           cl,
		Language:      cfg.Language,
		Source:        src,
		Output:        obj,
		Flags:         cfg.Flags,
		IncludeDirs:   includeDirs,
		ForceIncludes: forceIncludes,
		Macros:        cfg.Macros,
		PCH:           pchArgs,
	}.Args()
	if err != nil {
		return ConfigError{Source: cfg.Source, Err: err}
	}
	out, code, err := e.runProcess(ctx, "cl", cfg.Source, args, dir)
	if err != nil {
		return err
	}
	a := newOutputAnalyzer(e.mirror, dir, src, includeDirs, e.bases(src, includeDirs))
	a.analyze(out)
	for _, inc := range pchIncludes {
		a.includes[inc] = true
	}
	r.Diagnostics = append(r.Diagnostics, a.diagnostics...)
	r.Includes = a.includeList()
	r.FailedIncludes = a.failedIncludeList()
	r.Output = a.output.String()
	if code != 0 {
		if a.output.Len() == 0 && !HasError(r.Diagnostics) {
			r.Diagnostics = append(r.Diagnostics, Diagnostic{
				Severity:  SeverityError,
				LineIndex: -1,
				Message:   exitCodeMessage("cl", code),
			})
		}
		return nil
	}
	r.OutputFingerprint, err = fingerprint.FromFile(obj)
	if err != nil {
		return fmt.Errorf("cl succeeded but output %s is not available: %w", objLogical, err)
	}
	r.OutputPath = objLogical
	r.Success = true
	return nil
}

// runProcess runs the toolchain process, and returns merged stdout and
// stderr with the exit code. It returns error only if the process
// couldn't run.
func (e *Executor) runProcess(ctx context.Context, action, desc string, args []string, dir string) ([]byte, int, error) {
	cmd := execute.NewCmd(action, desc, args, e.env, dir)
	var out bytes.Buffer
	cmd.SetStdoutWriter(&out)
	cmd.SetStderrWriter(&out)
	err := e.sema.Do(ctx, func(ctx context.Context) error {
		log.Debugf("%s %s: %s", cmd.ID, desc, cmd.Command())
		return e.exec.Run(ctx, cmd)
	})
	var eerr execute.ExitError
	switch {
	case err == nil:
		return out.Bytes(), 0, nil
	case errors.As(err, &eerr):
		return out.Bytes(), eerr.ExitCode, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, 0, err
	}
	return nil, 0, fmt.Errorf("failed to start process %s: %w", args[0], err)
}

func (e *Executor) localDirs(ctx context.Context, opts []PathOption) ([]string, error) {
	var dirs []string
	for _, p := range opts {
		dir, err := e.paths.dir(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("include directory %s: %w", p, err)
		}
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

func (e *Executor) localFiles(ctx context.Context, opts []PathOption) ([]string, error) {
	var files []string
	for _, p := range opts {
		f, err := e.paths.file(ctx, p)
		if err != nil {
			return nil, fmt.Errorf("force include %s: %w", p, err)
		}
		files = append(files, f)
	}
	return files, nil
}

// bases returns include bases: symlink-resolved include directories and
// the source directory.
func (e *Executor) bases(src string, includeDirs []string) []string {
	bases := make([]string, 0, len(includeDirs)+1)
	for _, dir := range includeDirs {
		bases = append(bases, e.paths.realDir(dir))
	}
	return append(bases, e.paths.realDir(filepath.Dir(src)))
}

// prepareOutput removes the old output and creates its directory, so
// the existence of the output tells whether cl produced it.
func prepareOutput(fname string) error {
	err := os.Remove(fname)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove old output: %w", err)
	}
	err = os.MkdirAll(filepath.Dir(fname), 0755)
	if err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}
	return nil
}
