// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

//go:build unix

package localexec

import (
	"os/exec"
	"syscall"

	"go.chromium.org/infra/build/msvcinc/execute"
)

func rusage(cmd *exec.Cmd) execute.Rusage {
	ru := execute.Rusage{
		Utime: cmd.ProcessState.UserTime(),
		Stime: cmd.ProcessState.SystemTime(),
	}
	if u, ok := cmd.ProcessState.SysUsage().(*syscall.Rusage); ok {
		// 32bit arch may use int32 for Maxrss.
		ru.MaxRSS = int64(u.Maxrss)
	}
	return ru
}
