// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fence

import (
	"context"
	"sync"
)

// Timeline is a GPU-to-CPU completion counter.
//
// Implementations must be safe for concurrent use: the device side completes
// values from its own goroutine while the frame loop waits.
type Timeline interface {
	// Signal asks the device to set the completed value to counter once all
	// previously submitted work has finished. It does not block.
	Signal(counter uint64) error

	// Completed returns the highest counter the device has finished.
	// Completed never decreases.
	Completed() uint64

	// Wait blocks until Completed() >= counter or ctx is done.
	Wait(ctx context.Context, counter uint64) error
}

// SoftwareTimeline is an in-process Timeline.
//
// In immediate mode (NewSoftwareTimeline) Signal completes the value at once,
// which models a device with no asynchronous work, such as the noop backend.
// In deferred mode (NewDeferredTimeline) signals are only recorded; the
// simulated device completes them with Complete, in any order.
type SoftwareTimeline struct {
	mu        sync.Mutex
	completed uint64
	pending   []uint64
	waiters   map[*waiter]struct{}
	deferred  bool
	err       error
}

type waiter struct {
	counter uint64
	done    chan struct{}
}

// NewSoftwareTimeline returns a timeline that completes every signal
// immediately.
func NewSoftwareTimeline() *SoftwareTimeline {
	return &SoftwareTimeline{waiters: make(map[*waiter]struct{})}
}

// NewDeferredTimeline returns a timeline whose signals complete only when
// Complete is called.
func NewDeferredTimeline() *SoftwareTimeline {
	t := NewSoftwareTimeline()
	t.deferred = true
	return t
}

// Signal implements Timeline.
func (t *SoftwareTimeline) Signal(counter uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	if t.deferred {
		t.pending = append(t.pending, counter)
		return nil
	}
	t.advanceLocked(counter)
	return nil
}

// Complete marks counter as finished by the device. Values may arrive out of
// order; the completed value only moves forward.
func (t *SoftwareTimeline) Complete(counter uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, p := range t.pending {
		if p == counter {
			t.pending = append(t.pending[:i], t.pending[i+1:]...)
			break
		}
	}
	t.advanceLocked(counter)
}

// Pending returns the signaled values not yet completed, in signal order.
func (t *SoftwareTimeline) Pending() []uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]uint64, len(t.pending))
	copy(out, t.pending)
	return out
}

// Fail puts the timeline into a failed state: pending and future waits return
// err. Use it to simulate device removal.
func (t *SoftwareTimeline) Fail(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return
	}
	t.err = err
	for w := range t.waiters {
		close(w.done)
		delete(t.waiters, w)
	}
}

// Completed implements Timeline.
func (t *SoftwareTimeline) Completed() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

// Wait implements Timeline.
func (t *SoftwareTimeline) Wait(ctx context.Context, counter uint64) error {
	t.mu.Lock()
	if t.completed >= counter {
		t.mu.Unlock()
		return nil
	}
	if t.err != nil {
		t.mu.Unlock()
		return t.err
	}
	w := &waiter{counter: counter, done: make(chan struct{})}
	t.waiters[w] = struct{}{}
	t.mu.Unlock()

	select {
	case <-w.done:
		t.mu.Lock()
		defer t.mu.Unlock()
		if t.completed >= counter {
			return nil
		}
		return t.err
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.waiters, w)
		t.mu.Unlock()
		return ctx.Err()
	}
}

// Waiters returns the number of goroutines currently blocked in Wait.
func (t *SoftwareTimeline) Waiters() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.waiters)
}

func (t *SoftwareTimeline) advanceLocked(counter uint64) {
	if counter <= t.completed {
		return
	}
	t.completed = counter
	for w := range t.waiters {
		if w.counter <= counter {
			close(w.done)
			delete(t.waiters, w)
		}
	}
}
