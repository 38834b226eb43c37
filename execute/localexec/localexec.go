// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package localexec implements local command execution.
package localexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"

	"github.com/charmbracelet/log"

	"go.chromium.org/infra/build/msvcinc/execute"
	"go.chromium.org/infra/build/msvcinc/runtimex"
	"go.chromium.org/infra/build/msvcinc/sync/semaphore"
)

// LocalExec implements execute.Executor interface that runs commands locally.
type LocalExec struct{}

// Run runs cmd with LocalExec.
func Run(ctx context.Context, cmd *execute.Cmd) error {
	return LocalExec{}.Run(ctx, cmd)
}

// Run runs a cmd.
// It returns execute.ExitError if the process exited with non-zero code.
// A started process is not killed when ctx is canceled.
func (LocalExec) Run(ctx context.Context, cmd *execute.Cmd) error {
	res, stdout, stderr, err := run(ctx, cmd)
	if err != nil {
		return err
	}
	cmd.StdoutWriter().Write(stdout)
	cmd.StderrWriter().Write(stderr)
	cmd.SetResult(res)

	log.Infof("%s %s exit=%d stdout=%d stderr=%d %s utime=%s", cmd.ID, cmd.Desc, res.ExitCode, len(stdout), len(stderr), res.End.Sub(res.Start), res.Rusage.Utime)

	if res.ExitCode != 0 {
		return execute.ExitError{ExitCode: res.ExitCode}
	}
	return nil
}

// fix for http://b/278658064 windows: fork/exec: Not enough memory resources are available to process this command.
var forkSema = semaphore.New("fork", runtimex.NumCPU())

func run(ctx context.Context, cmd *execute.Cmd) (execute.Result, []byte, []byte, error) {
	if len(cmd.Args) == 0 {
		return execute.Result{}, nil, nil, fmt.Errorf("no arguments in the command. ID: %s", cmd.ID)
	}
	c := exec.Command(cmd.Args[0], cmd.Args[1:]...)
	c.Env = cmd.Env
	c.Dir = cmd.Dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr
	s := time.Now()

	err := forkSema.Do(ctx, func(ctx context.Context) error {
		return c.Start()
	})
	if err != nil {
		log.Warnf("%s failed to start %q dir=%q: %v", cmd.ID, cmd.Args[0], cmd.Dir, err)
		return execute.Result{}, nil, nil, fmt.Errorf("failed to start %s: %w", cmd.Args[0], err)
	}
	err = c.Wait()
	log.Debugf("%s wait %v", cmd.ID, err)
	e := time.Now()

	result := execute.Result{
		ExitCode: exitCode(err),
		Start:    s,
		End:      e,
		Rusage:   rusage(c),
	}
	return result, stdout.Bytes(), stderr.Bytes(), nil
}

func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var eerr *exec.ExitError
	if !errors.As(err, &eerr) {
		return 1
	}
	if code := eerr.ExitCode(); code != -1 {
		return code
	}
	return 1
}
