// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package build provides build subcommand.
package build

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/flag/stringmapflag"

	"go.chromium.org/infra/build/msvcinc/buildconfig"
	"go.chromium.org/infra/build/msvcinc/ccompile"
	"go.chromium.org/infra/build/msvcinc/clink"
	"go.chromium.org/infra/build/msvcinc/execute"
	"go.chromium.org/infra/build/msvcinc/execute/localexec"
	"go.chromium.org/infra/build/msvcinc/mirror"
	"go.chromium.org/infra/build/msvcinc/runtimex"
	"go.chromium.org/infra/build/msvcinc/statestore"
	"go.chromium.org/infra/build/msvcinc/sync/semaphore"
	"go.chromium.org/infra/build/msvcinc/toolchain"
	"go.chromium.org/infra/build/msvcinc/ui"
)

const usage = `compile and link with msvc incrementally.

 $ msvcinc build -C <dir> [-config msvcinc.star] [-config_flag key=value]

Loads the build request from the config, compiles the sources that
changed since the last build, and links the outputs.
`

// Cmd returns the Command for the `build` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "build <args>...",
		ShortDesc: "compile and link incrementally",
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
	jobs        int
	hostArch    string
	noLink      bool
	stateOpt    statestore.Option

	exec execute.Executor
}

func (c *run) init() {
	c.Flags.StringVar(&c.dir, "C", ".", "workspace root directory")
	c.Flags.StringVar(&c.configFile, "config", "msvcinc.star", "build config file, relative to the workspace root")
	c.Flags.Var(&c.configFlags, "config_flag", "key=value flag for the build config. can be repeated")
	c.Flags.IntVar(&c.jobs, "j", runtimex.NumCPU(), "number of parallel compilations")
	c.Flags.StringVar(&c.hostArch, "host_arch", runtimex.HostArch(), "host architecture to select the toolchain")
	c.Flags.BoolVar(&c.noLink, "nolink", false, "don't link even if the config requests")
	c.stateOpt.RegisterFlags(&c.Flags)
	c.exec = localexec.LocalExec{}
}

// Run runs the `build` subcommand.
func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	if len(args) != 0 {
		fmt.Fprintf(a.GetErr(), "%s: position arguments not expected\n%s\n", a.GetName(), usage)
		return 2
	}
	err := c.run(ctx)
	if err != nil {
		var lerr clink.LinkError
		var cerr ccompile.ConfigError
		switch {
		case errors.Is(err, ccompile.ErrCompilationFailed):
		case errors.As(err, &lerr):
			fmt.Fprint(os.Stdout, lerr.Output)
		case errors.As(err, &cerr):
			fmt.Fprintf(os.Stderr, "config error: %v\n", err)
			return 1
		}
		fmt.Fprintf(os.Stderr, "build failed: %v\n", err)
		return 1
	}
	return 0
}

func (c *run) run(ctx context.Context) error {
	started := time.Now()
	buildID := uuid.New().String()
	root, err := filepath.Abs(c.dir)
	if err != nil {
		return err
	}
	log.Infof("build id=%s root=%s host=%s %s", buildID, root, c.hostArch, runtimex.CPUSummary())

	workspace := os.DirFS(root)
	req, err := buildconfig.Load(ctx, workspace, filepath.ToSlash(c.configFile), c.configFlags, c.hostArch)
	if err != nil {
		return err
	}
	units := req.Units()
	err = ccompile.Validate(units)
	if err != nil {
		return err
	}

	m, err := mirror.NewDirMirror(root)
	if err != nil {
		return err
	}
	stateOpt := c.stateOpt
	if !filepath.IsAbs(stateOpt.Dir) {
		stateOpt.Dir = filepath.Join(root, stateOpt.Dir)
	}
	prev := loadState(ctx, stateOpt, req.Identifier, req.Architecture)

	opts := ccompile.Options{
		Identifier:   req.Identifier,
		Architecture: req.Architecture,
		HostArch:     c.hostArch,
		Environment:  runtimex.EnvironmentQualifier(c.hostArch),
		SDKs:         req.SDKs,
		Resolver:     toolchain.DirResolver{},
		Mirror:       m,
		Exec:         c.exec,
		OutputDir:    path.Join(req.OutDir(), "obj"),
		Workers:      c.jobs,
		Printer:      newPrinter(),
	}
	var prevBuild *ccompile.BuildState
	var prevLink *clink.State
	if prev != nil {
		prevBuild = prev.Build
		prevLink = prev.Link
	}
	st, compileErr := ccompile.Compile(ctx, opts, units, prevBuild)
	if st == nil {
		return compileErr
	}
	state := &statestore.State{Build: st}

	var linkErr error
	switch {
	case compileErr != nil:
		state.Link = prevLink
	case c.noLink || (req.Link != nil && req.Link.Disabled):
		log.Infof("link disabled")
		state.Link = prevLink
	default:
		var lr *clink.Result
		lr, linkErr = link(ctx, req, opts, st, prevLink)
		if linkErr == nil {
			state.Link = lr.State
			if lr.Text != "" {
				ui.Default.Infof("%s", lr.Text)
			}
			if lr.Skipped {
				ui.Default.Infof("%s is up to date", lr.Output)
			} else {
				ui.Default.Infof("Linked %s", lr.Output)
			}
		}
	}
	err = statestore.Save(ctx, stateOpt, state)
	if err != nil {
		log.Warnf("failed to save state: %v", err)
	}
	for _, st := range semaphore.Stats() {
		log.Debugf("semaphore %s", st)
	}
	log.Infof("build id=%s finished in %s", buildID, time.Since(started))
	if compileErr != nil {
		return compileErr
	}
	return linkErr
}

func loadState(ctx context.Context, opt statestore.Option, identifier, arch string) *statestore.State {
	spin := ui.Default.NewSpinner()
	spin.Start("loading state")
	st, err := statestore.Load(ctx, opt, identifier, arch)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		spin.Done("no state")
		return nil
	case err != nil:
		spin.Stop(err)
		log.Warnf("ignore state: %v", err)
		return nil
	}
	spin.Done("%d records", len(st.Build.Records))
	return st
}

func link(ctx context.Context, req *buildconfig.Request, opts ccompile.Options, st *ccompile.BuildState, prev *clink.State) (*clink.Result, error) {
	l := &clink.Linker{
		Identifier:   req.Identifier,
		Architecture: req.Architecture,
		HostArch:     opts.HostArch,
		SDKs:         ccompile.NewSDKCache(opts.Resolver, opts.SDKs),
		Mirror:       opts.Mirror,
		Exec:         opts.Exec,
		OutputDir:    req.OutDir(),
	}
	if req.Link != nil {
		l.Inputs = req.Link.Inputs
		l.LibraryPath = req.Link.LibraryPath
		l.Flags = req.Link.Flags
	}
	return l.Link(ctx, st, opts.Identity(), prev)
}
