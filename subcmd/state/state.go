// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package state provides state subcommand.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/flag/stringmapflag"

	"go.chromium.org/infra/build/msvcinc/buildconfig"
	"go.chromium.org/infra/build/msvcinc/ccompile"
	"go.chromium.org/infra/build/msvcinc/runtimex"
	"go.chromium.org/infra/build/msvcinc/statestore"
	"go.chromium.org/infra/build/msvcinc/ui"
)

const usage = `dump a persisted build state.

 $ msvcinc state -C <dir> [-identifier app -arch x64] [-includes] [-format json]

Without -identifier and -arch, they are taken from the build config.
`

// Cmd returns the Command for the `state` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "state <args>...",
		ShortDesc: "dump a persisted build state",
		LongDesc:  usage,
		CommandRun: func() subcommands.CommandRun {
			r := &run{}
			r.init()
			return r
		},
	}
}

type run struct {
	subcommands.CommandRunBase

	dir         string
	configFile  string
	configFlags stringmapflag.Value
	hostArch    string
	identifier  string
	arch        string
	includes    bool
	format      string
	stateOpt    statestore.Option
}

func (c *run) init() {
	c.Flags.StringVar(&c.dir, "C", ".", "workspace root directory")
	c.Flags.StringVar(&c.configFile, "config", "msvcinc.star", "build config file, relative to the workspace root")
	c.Flags.Var(&c.configFlags, "config_flag", "key=value flag for the build config. can be repeated")
	c.Flags.StringVar(&c.hostArch, "host_arch", runtimex.HostArch(), "host architecture given to the build config")
	c.Flags.StringVar(&c.identifier, "identifier", "", "build identifier. default is from the build config")
	c.Flags.StringVar(&c.arch, "arch", "", "target architecture. default is from the build config")
	c.Flags.BoolVar(&c.includes, "includes", false, "print includes of each record")
	c.Flags.StringVar(&c.format, "format", "text", `output format. "text" or "json"`)
	c.stateOpt.RegisterFlags(&c.Flags)
}

// Run runs the `state` subcommand.
func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	if len(args) != 0 {
		fmt.Fprintf(a.GetErr(), "%s: position arguments not expected\n%s\n", a.GetName(), usage)
		return 2
	}
	err := c.run(ctx, a.GetOut())
	if err != nil {
		fmt.Fprintf(a.GetErr(), "state: %v\n", err)
		if errors.Is(err, fs.ErrNotExist) {
			return 2
		}
		return 1
	}
	return 0
}

func (c *run) run(ctx context.Context, w io.Writer) error {
	root, err := filepath.Abs(c.dir)
	if err != nil {
		return err
	}
	identifier, arch := c.identifier, c.arch
	if identifier == "" || arch == "" {
		req, err := buildconfig.Load(ctx, os.DirFS(root), filepath.ToSlash(c.configFile), c.configFlags, c.hostArch)
		if err != nil {
			return err
		}
		if identifier == "" {
			identifier = req.Identifier
		}
		if arch == "" {
			arch = req.Architecture
		}
	}
	opt := c.stateOpt
	if !filepath.IsAbs(opt.Dir) {
		opt.Dir = filepath.Join(root, opt.Dir)
	}
	st, err := statestore.Load(ctx, opt, identifier, arch)
	if err != nil {
		return err
	}
	switch c.format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", " ")
		return enc.Encode(st)
	case "text":
		return dump(w, st, c.includes)
	default:
		return fmt.Errorf("unknown format %q", c.format)
	}
}

func dump(w io.Writer, st *statestore.State, includes bool) error {
	b := st.Build
	fmt.Fprintf(w, "%s-%s version=%d environment=%s\n", b.Identifier, b.Architecture, b.Version, b.Identity.Environment)
	for _, name := range slices.Sorted(maps.Keys(b.Identity.Toolchain)) {
		d := b.Identity.Toolchain[name]
		fmt.Fprintf(w, "sdk %s version=%s root=%s\n", name, d.Version, d.Root)
	}
	for _, name := range b.OutputNames() {
		r := b.Records[name]
		status := "ok"
		if !r.Succeeded() {
			status = "failed"
		}
		fmt.Fprintf(w, "record %s %s src=%s out=%s\n", name, status, r.Config.Source, r.OutputPath)
		printDiagnostics(w, r.Config.Source, r.Diagnostics)
		if includes {
			for _, inc := range r.Includes {
				fmt.Fprintf(w, "  include %s\n", inc)
			}
		}
		for _, inc := range r.FailedIncludes {
			fmt.Fprintf(w, "  failed_include %s\n", inc)
		}
	}
	for _, name := range slices.Sorted(maps.Keys(b.PrecompiledHeaders)) {
		p := b.PrecompiledHeaders[name]
		var header string
		if p.Config.PCH != nil {
			header = p.Config.PCH.Header.String()
		}
		fmt.Fprintf(w, "pch %s header=%s pch=%s obj=%s\n", name, header, p.PCHPath, p.ObjPath)
		printDiagnostics(w, header, p.Diagnostics)
	}
	if st.Link != nil {
		fmt.Fprintf(w, "link %s inputs=%d\n", st.Link.Output, len(st.Link.Inputs))
	}
	return nil
}

func printDiagnostics(w io.Writer, source string, ds []ccompile.Diagnostic) {
	for _, d := range ds {
		p := d.Path
		if p == "" {
			p = source
		}
		fmt.Fprintf(w, "  %s\n", ui.FormatDiagnostic(p, d.LineIndex+1, d.Severity.String(), d.Code, d.Message, false))
	}
}
