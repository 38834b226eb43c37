// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// logSpinner reports start and completion of an operation to the log.
type logSpinner struct {
	started time.Time
}

func (l *logSpinner) Start(format string, args ...any) {
	l.started = time.Now()
	log.Infof(format, args...)
}

func (l *logSpinner) Stop(err error) {
	if err != nil {
		log.Warnf("-> failed %s %v", time.Since(l.started), err)
		return
	}
	log.Infof("-> done %s", time.Since(l.started))
}

func (l *logSpinner) Done(format string, args ...any) {
	log.Infof("-> %s %s", fmt.Sprintf(format, args...), time.Since(l.started))
}

// LogUI is a log-based UI, used when stdout is not a terminal.
type LogUI struct{}

// NewSpinner returns an implementation of ui.Spinner.
func (LogUI) NewSpinner() Spinner {
	return &logSpinner{}
}

// Status prints the status line to stdout, stripping escape sequences.
// Log-based UI can't replace lines, so every status stays.
func (LogUI) Status(msg string) {
	msg = strings.TrimSuffix(msg, "\n")
	if msg == "" {
		return
	}
	fmt.Fprintln(os.Stdout, StripSGR(msg))
}

// Infof reports to stdout, stripping escape sequences.
func (LogUI) Infof(format string, args ...any) {
	msg := StripSGR(fmt.Sprintf(format, args...))
	fmt.Fprintln(os.Stdout, strings.TrimSuffix(msg, "\n"))
}
