// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package clean provides clean subcommand.
package clean

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/log"
	"github.com/maruel/subcommands"
	"go.chromium.org/luci/common/cli"
	"go.chromium.org/luci/common/flag/stringmapflag"

	"go.chromium.org/infra/build/msvcinc/buildconfig"
	"go.chromium.org/infra/build/msvcinc/runtimex"
	"go.chromium.org/infra/build/msvcinc/statestore"
)

const usage = `remove a persisted build state and outputs.

 $ msvcinc clean -C <dir> [-identifier app -arch x64 [-out_dir out/app-x64]] [-keep_outputs]

Without -identifier and -arch, they are taken from the build config.
`

// Cmd returns the Command for the `clean` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "clean <args>...",
		ShortDesc: "remove a persisted build state and outputs",
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
	outDir      string
	keepOutputs bool
	stateOpt    statestore.Option
}

func (c *run) init() {
	c.Flags.StringVar(&c.dir, "C", ".", "workspace root directory")
	c.Flags.StringVar(&c.configFile, "config", "msvcinc.star", "build config file, relative to the workspace root")
	c.Flags.Var(&c.configFlags, "config_flag", "key=value flag for the build config. can be repeated")
	c.Flags.StringVar(&c.hostArch, "host_arch", runtimex.HostArch(), "host architecture given to the build config")
	c.Flags.StringVar(&c.identifier, "identifier", "", "build identifier. default is from the build config")
	c.Flags.StringVar(&c.arch, "arch", "", "target architecture. default is from the build config")
	c.Flags.StringVar(&c.outDir, "out_dir", "", "output directory relative to the workspace root. default is out/<identifier>-<arch>, or from the build config")
	c.Flags.BoolVar(&c.keepOutputs, "keep_outputs", false, "remove the state only")
	c.stateOpt.RegisterFlags(&c.Flags)
}

// Run runs the `clean` subcommand.
func (c *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	ctx := cli.GetContext(a, c, env)
	if len(args) != 0 {
		fmt.Fprintf(a.GetErr(), "%s: position arguments not expected\n%s\n", a.GetName(), usage)
		return 2
	}
	err := c.run(ctx)
	if err != nil {
		fmt.Fprintf(a.GetErr(), "clean: %v\n", err)
		return 1
	}
	return 0
}

func (c *run) run(ctx context.Context) error {
	root, err := filepath.Abs(c.dir)
	if err != nil {
		return err
	}
	t := target{
		identifier: c.identifier,
		arch:       c.arch,
		outDir:     c.outDir,
	}
	if t.identifier == "" || t.arch == "" {
		req, err := buildconfig.Load(ctx, os.DirFS(root), filepath.ToSlash(c.configFile), c.configFlags, c.hostArch)
		if err != nil {
			return err
		}
		if t.identifier == "" {
			t.identifier = req.Identifier
		}
		if t.arch == "" {
			t.arch = req.Architecture
		}
		if t.outDir == "" {
			t.outDir = req.OutDir()
		}
	}
	if c.keepOutputs {
		t.outDir = "-"
	}
	opt := c.stateOpt
	if !filepath.IsAbs(opt.Dir) {
		opt.Dir = filepath.Join(root, opt.Dir)
	}
	return clean(ctx, root, opt, t)
}

type target struct {
	identifier string
	arch       string
	// outDir is the logical output directory. "-" keeps outputs.
	outDir string
}

func clean(ctx context.Context, root string, opt statestore.Option, t target) error {
	err := statestore.Remove(ctx, opt, t.identifier, t.arch)
	if err != nil {
		return err
	}
	if t.outDir == "-" {
		return nil
	}
	outDir := t.outDir
	if outDir == "" {
		outDir = path.Join("out", t.identifier+"-"+t.arch)
	}
	dir := filepath.Join(root, filepath.FromSlash(path.Clean(outDir)))
	if dir == root || !filepath.IsLocal(filepath.FromSlash(path.Clean(outDir))) {
		return fmt.Errorf("refuse to remove output directory %q outside of %s", outDir, root)
	}
	log.Infof("remove %s", dir)
	return os.RemoveAll(dir)
}
