// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package clink links object files of a build with msvc link.exe.
package clink

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/msvcinc/ccompile"
	"go.chromium.org/infra/build/msvcinc/execute"
	"go.chromium.org/infra/build/msvcinc/fingerprint"
	"go.chromium.org/infra/build/msvcinc/mirror"
	"go.chromium.org/infra/build/msvcinc/toolchain"
	"go.chromium.org/infra/build/msvcinc/toolsupport/msvcutil"
)

// LinkError is an error when link.exe exited with non-zero code.
type LinkError struct {
	ExitCode int
	// Output is the output of link.exe.
	Output string
}

func (e LinkError) Error() string {
	return fmt.Sprintf("Failed to link: %d (0x%x)", e.ExitCode, uint32(e.ExitCode))
}

// State is the state of the last successful link.
type State struct {
	Identity ccompile.Identity `json:"identity"`
	// Inputs are fingerprints of input files and files in local
	// library directories, keyed by logical path.
	Inputs            map[string]fingerprint.Fingerprint `json:"inputs"`
	CommandLine       []string                           `json:"command_line"`
	Output            string                             `json:"output"`
	OutputFingerprint fingerprint.Fingerprint            `json:"output_fingerprint"`
}

// Result is the result of Link.
type Result struct {
	// Output is the logical path of the linked file.
	Output string
	// Skipped is true when nothing changed since the last link.
	Skipped bool
	// Text is the output of link.exe.
	Text  string
	State *State
}

// Linker links the outputs of a build.
type Linker struct {
	// Identifier names the output file, <identifier>.exe or
	// <identifier>.dll.
	Identifier   string
	Architecture string
	HostArch     string

	SDKs   *ccompile.SDKCache
	Mirror mirror.Mirror
	Exec   execute.Executor

	// OutputDir is the logical directory of the linked file.
	OutputDir string
	// Inputs are logical paths of additional input files.
	Inputs []string
	// LibraryPath is the library search directories.
	LibraryPath []ccompile.PathOption
	Flags       []string
}

// OutputName returns the file name of the linked file.
func (l *Linker) OutputName() string {
	if msvcutil.IsDLL(l.Flags) {
		return l.Identifier + ".dll"
	}
	return l.Identifier + ".exe"
}

// Link links succeeded outputs of state and additional inputs.
// If prev is not nil and inputs, command line and the output are the
// same as prev, link.exe is not run.
func (l *Linker) Link(ctx context.Context, state *ccompile.BuildState, id ccompile.Identity, prev *State) (*Result, error) {
	if l.Identifier == "" {
		return nil, errors.New("no identifier for link output")
	}
	cur := &State{
		Identity: id,
		Inputs:   make(map[string]fingerprint.Fingerprint),
		Output:   path.Join(l.OutputDir, l.OutputName()),
	}
	inputs := slices.Concat(state.OutputPaths(), l.Inputs)
	var localInputs []string
	seen := make(map[string]bool)
	for _, in := range inputs {
		if seen[in] {
			continue
		}
		seen[in] = true
		fname, err := l.Mirror.Materialize(ctx, in)
		if err != nil {
			return nil, fmt.Errorf("linker input file not found: %s: %w", in, err)
		}
		fp, err := fingerprint.FromFile(fname)
		if err != nil {
			return nil, fmt.Errorf("linker input file not found: %s: %w", in, err)
		}
		cur.Inputs[in] = fp
		localInputs = append(localInputs, fname)
	}
	libPath, err := l.libraryPath(ctx, cur)
	if err != nil {
		return nil, err
	}
	exe, dir, err := l.linker(ctx)
	if err != nil {
		return nil, err
	}
	outLocal := l.Mirror.LocalPath(cur.Output)
	cur.CommandLine = msvcutil.LinkArgs{
		Exe:         exe,
		Machine:     msvcutil.MachineFlag(l.Architecture),
		LibraryPath: libPath,
		Flags:       l.Flags,
		Inputs:      localInputs,
		Output:      outLocal,
	}.Args()

	if prev != nil && l.upToDate(cur, prev, outLocal) {
		log.Infof("link %s: up to date", cur.Output)
		cur.OutputFingerprint = prev.OutputFingerprint
		return &Result{Output: cur.Output, Skipped: true, State: cur}, nil
	}

	err = os.MkdirAll(filepath.Dir(outLocal), 0755)
	if err != nil {
		return nil, err
	}
	cmd := execute.NewCmd("link", cur.Output, cur.CommandLine, msvcutil.StripEnv(os.Environ()), dir)
	var out bytes.Buffer
	cmd.SetStdoutWriter(&out)
	cmd.SetStderrWriter(&out)
	log.Debugf("%s link: %s", cmd.ID, cmd.Command())
	err = l.Exec.Run(ctx, cmd)
	var eerr execute.ExitError
	switch {
	case err == nil:
	case errors.As(err, &eerr):
		return nil, LinkError{ExitCode: eerr.ExitCode, Output: out.String()}
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, err
	default:
		return nil, fmt.Errorf("failed to start process %s: %w", exe, err)
	}
	cur.OutputFingerprint, err = fingerprint.FromFile(outLocal)
	if err != nil {
		return nil, fmt.Errorf("link output %s: %w", cur.Output, err)
	}
	log.Infof("link %s: %d inputs", cur.Output, len(localInputs))
	return &Result{Output: cur.Output, Text: out.String(), State: cur}, nil
}

func (l *Linker) upToDate(cur, prev *State, outLocal string) bool {
	if !cur.Identity.Equal(prev.Identity) || cur.Output != prev.Output {
		return false
	}
	if !slices.Equal(cur.CommandLine, prev.CommandLine) {
		log.Debugf("link %s: command line changed", cur.Output)
		return false
	}
	if !maps.Equal(cur.Inputs, prev.Inputs) {
		log.Debugf("link %s: inputs changed", cur.Output)
		return false
	}
	fp, err := fingerprint.FromFile(outLocal)
	if err != nil || fp != prev.OutputFingerprint {
		log.Debugf("link %s: output changed", cur.Output)
		return false
	}
	return true
}

func (l *Linker) linker(ctx context.Context) (string, string, error) {
	exe, err := l.SDKs.Path(ctx, toolchain.MSVC, toolchain.ExeID("link", l.HostArch, l.Architecture))
	if err != nil {
		return "", "", fmt.Errorf("SDK doesn't contain appropriate link.exe: %w", err)
	}
	dir, err := l.SDKs.Path(ctx, toolchain.MSVC, toolchain.WorkDirID("link", l.HostArch, l.Architecture))
	if err != nil {
		dir = filepath.Dir(exe)
	}
	return exe, dir, nil
}

// libraryPath resolves library directories. Files in local library
// directories are added to cur.Inputs.
func (l *Linker) libraryPath(ctx context.Context, cur *State) ([]string, error) {
	var dirs []string
	seen := make(map[string]bool)
	for _, p := range l.LibraryPath {
		var dir string
		var err error
		if p.IsLocal() {
			dir, err = l.Mirror.MaterializeDir(ctx, p.Path)
			if err != nil {
				return nil, fmt.Errorf("library path directory not found: %s: %w", p.Path, err)
			}
			err = l.fingerprintDir(p.Path, dir, cur.Inputs)
			if err != nil {
				return nil, fmt.Errorf("library path %s: %w", p.Path, err)
			}
		} else {
			dir, err = l.SDKs.Path(ctx, p.SDK, p.ID)
			if err != nil {
				return nil, fmt.Errorf("failed to retrieve SDK library path for: %s: %w", p, err)
			}
			if rp, err := filepath.EvalSymlinks(dir); err == nil {
				dir = rp
			}
		}
		if seen[dir] {
			continue
		}
		seen[dir] = true
		dirs = append(dirs, dir)
	}
	return dirs, nil
}

func (l *Linker) fingerprintDir(logical, dir string, inputs map[string]fingerprint.Fingerprint) error {
	return filepath.WalkDir(dir, func(fname string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(dir, fname)
		if err != nil {
			return err
		}
		fp, err := fingerprint.FromFile(fname)
		if err != nil {
			return err
		}
		inputs[path.Join(logical, filepath.ToSlash(rel))] = fp
		return nil
	})
}
