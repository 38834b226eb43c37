// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package help provides help subcommand.
package help

import (
	"flag"
	"fmt"
	"io"

	"github.com/maruel/subcommands"
)

const overview = `msvcinc compiles C/C++ sources with cl.exe and links them with
link.exe, recompiling only the sources affected by changes since the
last build. The build is described by a Starlark config (msvcinc.star)
in the workspace root.
`

// Cmd returns the Command for the `help` subcommand provided by this package.
func Cmd() *subcommands.Command {
	return &subcommands.Command{
		UsageLine: "help [<command>|-advanced]",
		ShortDesc: "prints help about a command",
		LongDesc:  "Prints commands and global flags or help about a specific command.\nUse -advanced to display all commands.",
		CommandRun: func() subcommands.CommandRun {
			r := &run{}
			r.Flags.BoolVar(&r.advanced, "advanced", false, "show advanced commands")
			return r
		},
	}
}

type run struct {
	subcommands.CommandRunBase
	advanced bool
}

func (r *run) Run(a subcommands.Application, args []string, env subcommands.Env) int {
	if len(args) > 0 {
		return subcommands.CmdHelp.CommandRun().Run(a, args, env)
	}
	w := a.GetOut()
	fmt.Fprintln(w, overview)
	subcommands.Usage(w, a, r.advanced)
	printGlobalFlags(w, flag.CommandLine)
	return 0
}

func printGlobalFlags(w io.Writer, fs *flag.FlagSet) {
	fmt.Fprintln(w, "Global flags, given before the command:")
	out := fs.Output()
	fs.SetOutput(w)
	defer fs.SetOutput(out)
	fs.PrintDefaults()
}
