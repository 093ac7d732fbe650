// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fence

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/gogpu/wgpu/hal"
)

// DefaultWaitTimeout bounds a fence wait when no explicit timeout is set.
// It matches the bound used around every HAL submit in gg.
const DefaultWaitTimeout = 5 * time.Second

// Synchronizer owns the frame counter and guards CPU reuse of GPU-visible
// resources.
//
// Counters start at 1 and increase by one per NextCounter call; a value is
// never handed out twice. A Synchronizer is driven by a single frame loop.
type Synchronizer struct {
	timeline Timeline
	timeout  time.Duration

	next         atomic.Uint64
	lastSignaled atomic.Uint64
}

// SynchronizerOption configures a Synchronizer.
type SynchronizerOption func(*Synchronizer)

// WithTimeout bounds WaitUntil. Zero disables the bound: the wait blocks
// until the device signals, however long that takes.
func WithTimeout(d time.Duration) SynchronizerOption {
	return func(s *Synchronizer) {
		s.timeout = d
	}
}

// NewSynchronizer returns a Synchronizer over t with DefaultWaitTimeout.
func NewSynchronizer(t Timeline, opts ...SynchronizerOption) *Synchronizer {
	s := &Synchronizer{
		timeline: t,
		timeout:  DefaultWaitTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Timeline returns the underlying timeline.
func (s *Synchronizer) Timeline() Timeline {
	return s.timeline
}

// NextCounter returns the next unused counter value.
func (s *Synchronizer) NextCounter() uint64 {
	return s.next.Add(1)
}

// Issued returns the last value returned by NextCounter, or 0.
func (s *Synchronizer) Issued() uint64 {
	return s.next.Load()
}

// LastSignaled returns the last value passed to Signal, or 0.
func (s *Synchronizer) LastSignaled() uint64 {
	return s.lastSignaled.Load()
}

// Signal enqueues a completion request for counter. It does not block.
func (s *Synchronizer) Signal(counter uint64) error {
	if last := s.lastSignaled.Load(); counter <= last {
		return fmt.Errorf("%w: %d after %d", ErrCounterRegression, counter, last)
	}
	if err := s.timeline.Signal(counter); err != nil {
		return fmt.Errorf("fence: signal %d: %w", counter, err)
	}
	s.lastSignaled.Store(counter)
	return nil
}

// Completed returns the highest counter the device has finished.
func (s *Synchronizer) Completed() uint64 {
	return s.timeline.Completed()
}

// IsComplete reports whether counter has been observed complete.
func (s *Synchronizer) IsComplete(counter uint64) bool {
	return s.timeline.Completed() >= counter
}

// WaitUntil blocks until the completed value reaches counter. If it already
// has, WaitUntil returns without blocking. A wait that outlives the
// configured timeout returns an error wrapping both ErrWaitTimeout and
// hal.ErrDeviceLost.
func (s *Synchronizer) WaitUntil(counter uint64) error {
	return s.WaitUntilContext(context.Background(), counter)
}

// WaitUntilContext is WaitUntil with a caller-supplied context. The
// configured timeout still applies on top of ctx.
func (s *Synchronizer) WaitUntilContext(ctx context.Context, counter uint64) error {
	if s.timeline.Completed() >= counter {
		return nil
	}
	if s.timeout <= 0 {
		return s.wait(ctx, counter)
	}
	wctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	err := s.wait(wctx, counter)
	if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
		return fmt.Errorf("%w: counter %d after %v (completed %d): %w",
			ErrWaitTimeout, counter, s.timeout, s.timeline.Completed(), hal.ErrDeviceLost)
	}
	return err
}

func (s *Synchronizer) wait(ctx context.Context, counter uint64) error {
	if err := s.timeline.Wait(ctx, counter); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return err
		}
		return fmt.Errorf("fence: wait %d: %w", counter, err)
	}
	return nil
}

// Frame runs one full step of the per-frame protocol: take a counter, let
// submit enqueue the frame's work, signal the counter, and wait for it.
func (s *Synchronizer) Frame(ctx context.Context, submit func(counter uint64) error) (uint64, error) {
	c := s.NextCounter()
	if err := submit(c); err != nil {
		return c, err
	}
	if err := s.Signal(c); err != nil {
		return c, err
	}
	return c, s.WaitUntilContext(ctx, c)
}
