// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package build

import (
	"fmt"
	"strings"
	"time"

	"go.chromium.org/infra/build/msvcinc/ccompile"
	"go.chromium.org/infra/build/msvcinc/ui"
)

// printer prints compilation progress and diagnostics to ui.Default.
type printer struct {
	started time.Time
	color   bool
}

func newPrinter() *printer {
	return &printer{
		started: time.Now(),
		color:   ui.IsTerminal(),
	}
}

func (p *printer) Summary(n int) {
	ui.Default.Infof("Compiling %d source file(s).", n)
}

func (p *printer) Progress(done, total int, r *ccompile.Result) {
	status := "ok"
	if !r.Success {
		status = "failed"
		if p.color {
			status = ui.SGR(ui.Red, status)
		}
	}
	line := fmt.Sprintf("[%d/%d] %s %s %s", done, total, ui.FormatDuration(time.Since(p.started)), r.Unit.Config.Source, status)
	if done < total {
		ui.Default.Status(line)
		return
	}
	// keep the last status on the screen.
	ui.Default.Status("")
	ui.Default.Infof("%s", line)
}

func (p *printer) Output(source, text string) {
	ui.Default.Infof("%s", strings.TrimRight(text, "\n"))
}

func (p *printer) Diagnostic(source string, d ccompile.Diagnostic) {
	path := d.Path
	if path == "" {
		path = source
	}
	ui.Default.Infof("%s", ui.FormatDiagnostic(path, d.LineIndex+1, d.Severity.String(), d.Code, d.Message, p.color))
}
