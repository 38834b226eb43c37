// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ccompile

import (
	"context"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
)

// Scheduler runs units on parallel workers.
type Scheduler struct {
	// Workers is the number of worker slots.
	Workers int
}

// Run runs units with run on workers, and calls collect for each
// result as it completes. collect is called from the calling goroutine
// only, so it may own the results without locks.
//
// A failed unit doesn't stop other units. Run returns error only when
// ctx is done, after the running units finish. Units not started yet
// are not run.
func (s Scheduler) Run(ctx context.Context, units []Unit, run func(context.Context, Unit) *Result, collect func(*Result)) error {
	if len(units) == 0 {
		return nil
	}
	queue := make(chan Unit, len(units))
	for _, u := range units {
		queue <- u
	}
	close(queue)

	workers := min(max(s.Workers, 1), len(units))
	log.Infof("schedule %d units on %d workers", len(units), workers)
	results := make(chan *Result)
	var eg errgroup.Group
	for range workers {
		eg.Go(func() error {
			for {
				if err := context.Cause(ctx); err != nil {
					return err
				}
				u, ok := <-queue
				if !ok {
					return nil
				}
				results <- run(ctx, u)
			}
		})
	}
	errc := make(chan error, 1)
	go func() {
		errc <- eg.Wait()
		close(results)
	}()
	for r := range results {
		collect(r)
	}
	return <-errc
}
