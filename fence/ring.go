// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fence

import (
	"context"
	"fmt"
)

// MaxFramesInFlight is the deepest ring supported. It equals the largest
// swap-buffer count a presenter may be configured with.
const MaxFramesInFlight = 3

// Ring tracks the counter last signaled for each of a fixed number of frame
// slots. Before a slot's resources are reused the ring waits for that
// slot's counter, so up to Depth frames may be in flight.
//
// With Depth 1 the slot being reused is always the frame just submitted,
// which is the one-deep, wait-every-frame model.
type Ring struct {
	sync  *Synchronizer
	slots []uint64
	cur   int
}

// NewRing returns a ring of depth slots over s.
func NewRing(s *Synchronizer, depth int) (*Ring, error) {
	if depth < 1 || depth > MaxFramesInFlight {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDepth, depth)
	}
	return &Ring{sync: s, slots: make([]uint64, depth)}, nil
}

// Depth returns the number of slots.
func (r *Ring) Depth() int {
	return len(r.slots)
}

// Slot returns the slot the next frame records into.
func (r *Ring) Slot() int {
	return r.cur
}

// Pending returns the counter last released for slot, or 0.
func (r *Ring) Pending(slot int) uint64 {
	return r.slots[slot]
}

// Release records that the frame in the current slot was signaled with
// counter and advances to the next slot.
func (r *Ring) Release(counter uint64) {
	r.slots[r.cur] = counter
	r.cur = (r.cur + 1) % len(r.slots)
}

// Acquire blocks until the current slot's previous frame has completed. It
// returns immediately for a slot never used or already complete.
func (r *Ring) Acquire(ctx context.Context) error {
	c := r.slots[r.cur]
	if c == 0 {
		return nil
	}
	return r.sync.WaitUntilContext(ctx, c)
}

// Drain waits for every slot.
func (r *Ring) Drain(ctx context.Context) error {
	var highest uint64
	for _, c := range r.slots {
		if c > highest {
			highest = c
		}
	}
	if highest == 0 {
		return nil
	}
	return r.sync.WaitUntilContext(ctx, highest)
}
