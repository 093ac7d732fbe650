// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gogpu/wgpu/hal"
)

const (
	minPollInterval = 50 * time.Microsecond
	maxPollInterval = 2 * time.Millisecond
)

// QueueTimeline binds the timeline protocol to a hal.Queue.
//
// HAL queues hand out a monotonically increasing submission index from
// Submit and report the highest finished index from PollCompleted. Signal
// ties a counter to the most recent submission index, so the counter is
// complete exactly when everything submitted before the Signal has finished.
//
// Command buffers must be submitted through QueueTimeline.Submit so the
// timeline sees every submission index.
type QueueTimeline struct {
	queue hal.Queue

	mu             sync.Mutex
	lastSubmission uint64
	lastSignaled   uint64
	completed      uint64
	pending        []queueSignal
}

type queueSignal struct {
	counter    uint64
	submission uint64
}

// NewQueueTimeline returns a timeline polling queue for completion.
func NewQueueTimeline(queue hal.Queue) *QueueTimeline {
	return &QueueTimeline{queue: queue}
}

// Submit forwards command buffers to the queue and records the submission
// index for later signals.
func (t *QueueTimeline) Submit(commandBuffers []hal.CommandBuffer) (uint64, error) {
	idx, err := t.queue.Submit(commandBuffers)
	if err != nil {
		return 0, fmt.Errorf("fence: submit: %w", err)
	}
	t.mu.Lock()
	if idx > t.lastSubmission {
		t.lastSubmission = idx
	}
	t.mu.Unlock()
	return idx, nil
}

// Signal implements Timeline.
func (t *QueueTimeline) Signal(counter uint64) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if counter <= t.lastSignaled {
		return fmt.Errorf("%w: %d after %d", ErrCounterRegression, counter, t.lastSignaled)
	}
	t.lastSignaled = counter
	t.pending = append(t.pending, queueSignal{counter: counter, submission: t.lastSubmission})
	return nil
}

// Completed implements Timeline. It polls the queue without blocking.
func (t *QueueTimeline) Completed() uint64 {
	done := t.queue.PollCompleted()
	t.mu.Lock()
	defer t.mu.Unlock()
	n := 0
	for _, p := range t.pending {
		if p.submission > done {
			break
		}
		t.completed = p.counter
		n++
	}
	t.pending = t.pending[n:]
	return t.completed
}

// Wait implements Timeline. The queue exposes no wake notification, so Wait
// polls with exponential backoff.
func (t *QueueTimeline) Wait(ctx context.Context, counter uint64) error {
	if t.Completed() >= counter {
		return nil
	}
	interval := minPollInterval
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
		if t.Completed() >= counter {
			return nil
		}
		interval *= 2
		if interval > maxPollInterval {
			interval = maxPollInterval
		}
		timer.Reset(interval)
	}
}
