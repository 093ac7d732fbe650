// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package fence

import (
	"errors"

	"github.com/gogpu/wgpu/hal"
)

var (
	// ErrWaitTimeout is returned when a bounded wait expires before the
	// device reports completion. It always wraps [hal.ErrDeviceLost]: a
	// device that stops signaling is treated as lost.
	ErrWaitTimeout = errors.New("fence: wait timed out")

	// ErrCounterRegression is returned when Signal is called with a value
	// not greater than the last signaled value.
	ErrCounterRegression = errors.New("fence: counter must increase")

	// ErrInvalidDepth is returned by NewRing for a depth outside
	// [1, MaxFramesInFlight].
	ErrInvalidDepth = errors.New("fence: invalid frames-in-flight depth")
)

// IsDeviceLost reports whether err means the device stopped making progress.
func IsDeviceLost(err error) bool {
	return errors.Is(err, hal.ErrDeviceLost)
}
