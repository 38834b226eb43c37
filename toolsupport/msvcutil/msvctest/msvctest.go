// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package msvctest provides fake cl.exe and link.exe for test.
//
// Fake interprets the command line of cl.exe and link.exe as msvcutil
// builds it, and behaves like them for a small subset of C:
// "#include" directives, "#error" and "#warning".
package msvctest

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"go.chromium.org/infra/build/msvcinc/execute"
)

// Fake is a fake toolchain executor.
// Commands are dispatched by the base name of the executable,
// "cl.exe" or "link.exe".
type Fake struct {
	mu    sync.Mutex
	calls []Call

	// StartErr, if set, is returned for every command as if the
	// process couldn't start.
	StartErr error
}

// Call is a command run by Fake.
type Call struct {
	Exe string
	// Input is the source for cl, or the output for link.
	Input string
	Args  []string
	Env   []string
}

// Calls returns commands run so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.calls)
}

// Inputs returns inputs of commands of exe run so far, sorted.
func (f *Fake) Inputs(exe string) []string {
	var inputs []string
	for _, c := range f.Calls() {
		if c.Exe == exe {
			inputs = append(inputs, c.Input)
		}
	}
	slices.Sort(inputs)
	return inputs
}

// Reset clears recorded calls.
func (f *Fake) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// Run runs cmd.
func (f *Fake) Run(ctx context.Context, cmd *execute.Cmd) error {
	if f.StartErr != nil {
		return f.StartErr
	}
	if len(cmd.Args) == 0 {
		return errors.New("no args")
	}
	start := time.Now()
	var out bytes.Buffer
	var code int
	exe := strings.ToLower(filepath.Base(cmd.Args[0]))
	switch exe {
	case "cl.exe":
		c := parseCL(cmd.Args[1:])
		f.record(Call{Exe: exe, Input: c.source, Args: cmd.Args, Env: cmd.Env})
		code = c.run(&out)
	case "link.exe":
		l := parseLink(cmd.Args[1:])
		f.record(Call{Exe: exe, Input: l.output, Args: cmd.Args, Env: cmd.Env})
		code = l.run(&out)
	default:
		return fmt.Errorf("%s: %w", cmd.Args[0], fs.ErrNotExist)
	}
	cmd.StdoutWriter().Write(out.Bytes())
	cmd.SetResult(execute.Result{
		ExitCode: code,
		Start:    start,
		End:      time.Now(),
	})
	if code != 0 {
		return execute.ExitError{ExitCode: code}
	}
	return nil
}

func (f *Fake) record(c Call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

type clCmd struct {
	source        string
	output        string
	includeDirs   []string
	forceIncludes []string
	defines       []string
	createPCH     bool
	usePCH        string
	pchPath       string
	unknown       []string
}

func parseCL(args []string) clCmd {
	var c clCmd
	for _, arg := range args {
		switch {
		case arg == "/nologo", arg == "/c", arg == "/showIncludes", arg == "/X":
		case arg == "/Yc":
			c.createPCH = true
		case strings.HasPrefix(arg, "/Tc"), strings.HasPrefix(arg, "/Tp"):
			c.source = arg[3:]
		case strings.HasPrefix(arg, "/Fo"):
			c.output = arg[3:]
		case strings.HasPrefix(arg, "/Fp"):
			c.pchPath = arg[3:]
		case strings.HasPrefix(arg, "/Yu"):
			c.usePCH = arg[3:]
		case strings.HasPrefix(arg, "/FI"):
			c.forceIncludes = append(c.forceIncludes, arg[3:])
		case strings.HasPrefix(arg, "/I"):
			c.includeDirs = append(c.includeDirs, arg[2:])
		case strings.HasPrefix(arg, "/D"):
			c.defines = append(c.defines, arg[2:])
		default:
			c.unknown = append(c.unknown, arg)
		}
	}
	return c
}

// preprocessor is the state of a fake compilation.
type preprocessor struct {
	cmd    clCmd
	out    *bytes.Buffer
	failed bool
	fatal  bool
	seen   map[string]bool
	// content is hashed into outputs.
	content bytes.Buffer
}

func (c clCmd) run(out *bytes.Buffer) int {
	if c.source == "" {
		fmt.Fprintf(out, "cl : Command line error D8003 : missing source filename\n")
		return 2
	}
	for _, arg := range c.unknown {
		fmt.Fprintf(out, "cl : Command line warning D9002 : ignoring unknown option '%s'\n", arg)
	}
	fmt.Fprintf(out, "%s\n", filepath.Base(c.source))
	p := &preprocessor{
		cmd:  c,
		out:  out,
		seen: make(map[string]bool),
	}
	if c.usePCH != "" {
		buf, err := os.ReadFile(c.pchPath)
		if err != nil {
			fmt.Fprintf(out, "%s(1): fatal error C1083: Cannot open precompiled header file: '%s': No such file or directory\n", c.source, c.pchPath)
			return 2
		}
		p.content.Write(buf)
	}
	for _, fi := range c.forceIncludes {
		if p.fatal {
			break
		}
		p.include(c.source, 0, fi, true)
	}
	if !p.fatal {
		p.file(c.source, 0)
	}
	for _, d := range c.defines {
		fmt.Fprintf(&p.content, "define %s\n", d)
	}
	if p.failed {
		return 2
	}
	if c.createPCH {
		err := os.WriteFile(c.pchPath, append([]byte("pch\n"), p.content.Bytes()...), 0644)
		if err != nil {
			fmt.Fprintf(out, "%s: fatal error C1085: Cannot write precompiled header file: '%s'\n", c.source, c.pchPath)
			return 2
		}
	}
	err := os.WriteFile(c.output, append([]byte("obj\n"), p.content.Bytes()...), 0644)
	if err != nil {
		fmt.Fprintf(out, "%s: fatal error C1083: Cannot open compiler generated file: '%s': %v\n", c.source, c.output, err)
		return 2
	}
	return 0
}

func (p *preprocessor) file(fname string, depth int) {
	if depth > 16 {
		fmt.Fprintf(p.out, "%s(1): fatal error C1014: too many include files : depth = %d\n", fname, depth)
		p.failed, p.fatal = true, true
		return
	}
	buf, err := os.ReadFile(fname)
	if err != nil {
		fmt.Fprintf(p.out, "c1xx: fatal error C1083: Cannot open source file: '%s': No such file or directory\n", fname)
		p.failed, p.fatal = true, true
		return
	}
	p.content.Write(buf)
	s := bufio.NewScanner(bytes.NewReader(buf))
	for n := 1; s.Scan() && !p.fatal; n++ {
		line := strings.TrimSpace(s.Text())
		directive, ok := strings.CutPrefix(line, "#")
		if !ok {
			continue
		}
		directive = strings.TrimSpace(directive)
		switch {
		case strings.HasPrefix(directive, "include"):
			arg := strings.TrimSpace(strings.TrimPrefix(directive, "include"))
			if len(arg) < 2 {
				fmt.Fprintf(p.out, "%s(%d): fatal error C1021: invalid preprocessor command 'include'\n", fname, n)
				p.failed, p.fatal = true, true
				return
			}
			quoted := arg[0] == '"'
			name := strings.Trim(arg, `"<>`)
			if p.cmd.usePCH != "" && depth == 0 && strings.EqualFold(name, p.cmd.usePCH) {
				continue
			}
			p.include(fname, n, name, quoted)
		case strings.HasPrefix(directive, "error"):
			msg := strings.TrimSpace(strings.TrimPrefix(directive, "error"))
			fmt.Fprintf(p.out, "%s(%d): fatal error C1189: #error:  %s\n", fname, n, msg)
			p.failed, p.fatal = true, true
		case strings.HasPrefix(directive, "warning"):
			msg := strings.TrimSpace(strings.TrimPrefix(directive, "warning"))
			fmt.Fprintf(p.out, "%s(%d): warning C4996: %s\n", fname, n, msg)
		case strings.HasPrefix(directive, "pragma message"):
			msg := strings.TrimSpace(strings.TrimPrefix(directive, "pragma message"))
			fmt.Fprintf(p.out, "%s\n", strings.Trim(msg, `()"`))
		}
	}
}

func (p *preprocessor) include(from string, line int, name string, quoted bool) {
	fname, ok := p.resolve(from, name, quoted)
	if !ok {
		fmt.Fprintf(p.out, "%s(%d): fatal error C1083: Cannot open include file: '%s': No such file or directory\n", from, max(line, 1), name)
		p.failed, p.fatal = true, true
		return
	}
	fmt.Fprintf(p.out, "Note: including file: %s\n", fname)
	if p.seen[fname] {
		return
	}
	p.seen[fname] = true
	p.file(fname, 1)
}

// resolve finds name in the directory of from for quoted include,
// then in include directories in order.
func (p *preprocessor) resolve(from, name string, quoted bool) (string, bool) {
	if filepath.IsAbs(name) {
		return name, isFile(name)
	}
	var dirs []string
	if quoted {
		dirs = append(dirs, filepath.Dir(from))
	}
	dirs = append(dirs, p.cmd.includeDirs...)
	for _, dir := range dirs {
		fname := filepath.Join(dir, name)
		if isFile(fname) {
			return fname, true
		}
	}
	return "", false
}

func isFile(fname string) bool {
	fi, err := os.Stat(fname)
	return err == nil && !fi.IsDir()
}

type linkCmd struct {
	machine string
	libPath []string
	flags   []string
	inputs  []string
	output  string
}

func parseLink(args []string) linkCmd {
	var l linkCmd
	for _, arg := range args {
		switch {
		case strings.EqualFold(arg, "/nologo"):
		case strings.HasPrefix(arg, "/MACHINE:"):
			l.machine = strings.TrimPrefix(arg, "/MACHINE:")
		case strings.HasPrefix(arg, "/LIBPATH:"):
			l.libPath = append(l.libPath, strings.TrimPrefix(arg, "/LIBPATH:"))
		case strings.HasPrefix(arg, "/OUT:"):
			l.output = strings.TrimPrefix(arg, "/OUT:")
		case strings.HasPrefix(arg, "/"):
			l.flags = append(l.flags, arg)
		default:
			l.inputs = append(l.inputs, arg)
		}
	}
	return l
}

func (l linkCmd) run(out *bytes.Buffer) int {
	if l.output == "" {
		fmt.Fprintf(out, "LINK : fatal error LNK1104: cannot open file ''\n")
		return 1104
	}
	if l.machine == "" {
		fmt.Fprintf(out, "LINK : warning LNK4068: /MACHINE not specified; defaulting to X86\n")
	}
	var content bytes.Buffer
	fmt.Fprintf(&content, "%s %s\n", l.machine, strings.Join(l.flags, " "))
	for _, in := range l.inputs {
		fname, ok := l.resolve(in)
		if !ok {
			fmt.Fprintf(out, "LINK : fatal error LNK1181: cannot open input file '%s'\n", in)
			return 1181
		}
		buf, err := os.ReadFile(fname)
		if err != nil {
			fmt.Fprintf(out, "LINK : fatal error LNK1181: cannot open input file '%s'\n", in)
			return 1181
		}
		content.Write(buf)
	}
	err := os.WriteFile(l.output, content.Bytes(), 0644)
	if err != nil {
		fmt.Fprintf(out, "LINK : fatal error LNK1104: cannot open file '%s'\n", l.output)
		return 1104
	}
	return 0
}

func (l linkCmd) resolve(in string) (string, bool) {
	if filepath.IsAbs(in) {
		return in, isFile(in)
	}
	for _, dir := range l.libPath {
		fname := filepath.Join(dir, in)
		if isFile(fname) {
			return fname, true
		}
	}
	return in, isFile(in)
}
