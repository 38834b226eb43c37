// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package execute runs toolchain commands.
package execute

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"go.chromium.org/infra/build/msvcinc/toolsupport/cmdutil"
)

// Executor is an interface to run the cmd.
//
// Run returns ExitError when the cmd ran and exited with non-zero code.
// Other errors mean the cmd could not be started.
type Executor interface {
	Run(ctx context.Context, cmd *Cmd) error
}

// Cmd includes all the information required to run a toolchain command.
type Cmd struct {
	// ID is used as a unique identifier for this cmd in logs.
	ID string

	// Desc is a short, human-readable identifier of the cmd.
	// Example: "CL main.c"
	Desc string

	// ActionName is the kind of the cmd.
	// Example: "cl", "pch" or "link"
	ActionName string

	// Args holds command line arguments.
	Args []string

	// Env specifies the environment of the process.
	Env []string

	// Dir specifies the working directory of the cmd.
	Dir string

	// Outputs are output files of the cmd.
	Outputs []string

	stdoutWriter, stderrWriter io.Writer
	stdoutBuffer, stderrBuffer bytes.Buffer

	result Result
}

// Result is the execution result of the cmd.
type Result struct {
	ExitCode int
	Start    time.Time
	End      time.Time
	Rusage   Rusage
}

// Rusage is the resource usage of the process.
type Rusage struct {
	MaxRSS int64
	Utime  time.Duration
	Stime  time.Duration
}

// NewCmd creates a new cmd with a new ID.
func NewCmd(action, desc string, args, env []string, dir string) *Cmd {
	return &Cmd{
		ID:         uuid.NewString(),
		Desc:       desc,
		ActionName: action,
		Args:       args,
		Env:        env,
		Dir:        dir,
	}
}

// String returns an ID of the cmd.
func (c *Cmd) String() string {
	return c.ID
}

// Command returns a command line string.
func (c *Cmd) Command() string {
	return cmdutil.Join(c.Args)
}

// SetStdoutWriter sets w for stdout.
func (c *Cmd) SetStdoutWriter(w io.Writer) {
	c.stdoutWriter = w
}

// SetStderrWriter sets w for stderr.
func (c *Cmd) SetStderrWriter(w io.Writer) {
	c.stderrWriter = w
}

// StdoutWriter returns a writer set for stdout.
func (c *Cmd) StdoutWriter() io.Writer {
	c.stdoutBuffer.Reset()
	if c.stdoutWriter == nil {
		return &c.stdoutBuffer
	}
	return io.MultiWriter(c.stdoutWriter, &c.stdoutBuffer)
}

// StderrWriter returns a writer set for stderr.
func (c *Cmd) StderrWriter() io.Writer {
	c.stderrBuffer.Reset()
	if c.stderrWriter == nil {
		return &c.stderrBuffer
	}
	return io.MultiWriter(c.stderrWriter, &c.stderrBuffer)
}

// Stdout returns stdout output of the cmd.
// cl.exe writes diagnostics and /showIncludes to stdout.
func (c *Cmd) Stdout() []byte {
	return c.stdoutBuffer.Bytes()
}

// Stderr returns stderr output of the cmd.
func (c *Cmd) Stderr() []byte {
	return c.stderrBuffer.Bytes()
}

// SetResult sets the execution result of the cmd.
func (c *Cmd) SetResult(r Result) {
	c.result = r
}

// Result returns the execution result of the cmd.
func (c *Cmd) Result() Result {
	return c.result
}

// ExitError is an error of cmd exit.
type ExitError struct {
	ExitCode int
}

func (e ExitError) Error() string {
	return fmt.Sprintf("exit=%d", e.ExitCode)
}
