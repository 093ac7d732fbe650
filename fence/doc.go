// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package fence paces CPU work against GPU completion.
//
// A [Timeline] is the single platform capability the frame loop depends on:
// it accepts signal requests for a counter value and lets the CPU observe or
// await the highest value the device has completed. Two implementations are
// provided and one is picked at configuration time:
//
//   - [SoftwareTimeline]: in-process, completes on demand. Used by headless
//     runs and as the fake device in tests.
//   - [QueueTimeline]: backed by a hal.Queue; counters map onto HAL
//     submission indices and completion is polled from the queue.
//
// A [Synchronizer] owns the monotonically increasing frame counter and
// implements the per-frame protocol:
//
//	c := sync.NextCounter()
//	submit(commandBuffer)
//	sync.Signal(c)
//	sync.WaitUntil(c) // resources referenced by the frame are now reusable
//
// Waiting fully after every frame serializes CPU and GPU work. It is the
// default contract because resource reuse elsewhere assumes it. [Ring]
// generalizes the wait to a small number of frames in flight, bounded by the
// swap-buffer count, without changing how counters are issued or signaled.
package fence
