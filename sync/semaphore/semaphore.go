// Copyright 2023 The Chromium Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package semaphore provides named counting semaphores used to bound
// the number of concurrently running toolchain processes.
package semaphore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	mu         sync.Mutex
	semaphores = map[string]*Semaphore{}
)

// Semaphore is a semaphore.
type Semaphore struct {
	name string
	ch   chan int

	waits atomic.Int64
	reqs  atomic.Int64
}

// Lookup returns a semaphore for the name, or nil if not registered.
func Lookup(name string) *Semaphore {
	mu.Lock()
	defer mu.Unlock()
	return semaphores[name]
}

// New creates a new semaphore with name and capacity.
// A semaphore created later with the same name replaces the earlier one
// in the registry used by Lookup and Stats.
func New(name string, n int) *Semaphore {
	if n <= 0 {
		n = 1
	}
	ch := make(chan int, n)
	for i := 0; i < n; i++ {
		ch <- i + 1 // tid
	}
	s := &Semaphore{
		name: name,
		ch:   ch,
	}
	mu.Lock()
	semaphores[name] = s
	mu.Unlock()
	return s
}

// WaitAcquire acquires a semaphore.
// It returns the slot id and func to release it.
func (s *Semaphore) WaitAcquire(ctx context.Context) (int, func(), error) {
	s.waits.Add(1)
	defer s.waits.Add(-1)
	select {
	case tid := <-s.ch:
		s.reqs.Add(1)
		return tid, func() {
			s.ch <- tid
		}, nil
	case <-ctx.Done():
		return 0, func() {}, context.Cause(ctx)
	}
}

// TryAcquire acquires a semaphore if it is available now.
func (s *Semaphore) TryAcquire() (int, func(), bool) {
	select {
	case tid := <-s.ch:
		s.reqs.Add(1)
		return tid, func() {
			s.ch <- tid
		}, true
	default:
		return 0, func() {}, false
	}
}

// Name returns name of the semaphore.
func (s *Semaphore) Name() string {
	return s.name
}

// Capacity returns capacity of the semaphore.
func (s *Semaphore) Capacity() int {
	if s == nil {
		return 0
	}
	return cap(s.ch)
}

// NumServs returns number of currently served.
func (s *Semaphore) NumServs() int {
	return cap(s.ch) - len(s.ch)
}

// NumWaits returns number of waiters.
func (s *Semaphore) NumWaits() int {
	return int(s.waits.Load())
}

// NumRequests returns total number of requests.
func (s *Semaphore) NumRequests() int {
	return int(s.reqs.Load())
}

// Do runs f under semaphore.
func (s *Semaphore) Do(ctx context.Context, f func(ctx context.Context) error) error {
	_, done, err := s.WaitAcquire(ctx)
	if err != nil {
		return err
	}
	defer done()
	return f(ctx)
}

// String returns a summary of the semaphore usage.
func (s *Semaphore) String() string {
	return fmt.Sprintf("%s: cap=%d serv=%d wait=%d reqs=%d", s.name, s.Capacity(), s.NumServs(), s.NumWaits(), s.NumRequests())
}

// Stats returns summaries of all registered semaphores, sorted by name.
func Stats() []string {
	mu.Lock()
	defer mu.Unlock()
	var stats []string
	for _, s := range semaphores {
		stats = append(stats, s.String())
	}
	sort.Strings(stats)
	return stats
}
