// Copyright 2023 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ui

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

const clearLine = "\r\033[K"

type termSpinner struct {
	quit, done chan struct{}
	started    time.Time
	msg        string
}

// Start starts the spinner.
func (s *termSpinner) Start(format string, args ...any) {
	s.started = time.Now()
	s.msg = fmt.Sprintf(format, args...)
	s.quit = make(chan struct{})
	s.done = make(chan struct{})
	fmt.Fprintf(os.Stdout, "%s... ", s.msg)
	go func() {
		defer close(s.done)
		const chars = `/-\|`
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for n := 0; ; n++ {
			select {
			case <-s.quit:
				return
			case <-ticker.C:
				fmt.Fprintf(os.Stdout, "\b%c", chars[n%len(chars)])
			}
		}
	}()
}

func (s *termSpinner) finish() time.Duration {
	close(s.quit)
	<-s.done
	return time.Since(s.started)
}

// Stop stops the spinner.
func (s *termSpinner) Stop(err error) {
	d := s.finish()
	switch {
	case err != nil:
		fmt.Fprintf(os.Stdout, "%s%6s %s failed %v\n", clearLine, FormatDuration(d), s.msg, err)
	case d < DurationThreshold:
		fmt.Fprint(os.Stdout, clearLine)
	default:
		fmt.Fprintf(os.Stdout, "%s%6s %s\n", clearLine, FormatDuration(d), s.msg)
	}
}

// Done finishes the spinner with message.
func (s *termSpinner) Done(format string, args ...any) {
	d := s.finish()
	fmt.Fprintf(os.Stdout, "%s%6s %s %s\n", clearLine, FormatDuration(d), s.msg, fmt.Sprintf(format, args...))
}

// TermUI is a terminal-based UI.
type TermUI struct {
	width int

	mu     sync.Mutex
	status string
}

// Status replaces the status line. The line is elided in the middle
// to fit in the terminal width.
func (t *TermUI) Status(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = elide(strings.TrimSuffix(msg, "\n"), t.width)
	fmt.Fprint(os.Stdout, clearLine+t.status)
}

// NewSpinner returns a terminal-based spinner.
func (*TermUI) NewSpinner() Spinner {
	return &termSpinner{}
}

// Infof prints a message above the status line.
func (t *TermUI) Infof(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	msg := strings.TrimSuffix(fmt.Sprintf(format, args...), "\n")
	fmt.Fprintf(os.Stdout, "%s%s\n%s", clearLine, msg, t.status)
}
