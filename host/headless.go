// Package host drives a frame loop without a window.
//
// Headless stands in for the platform window: it ticks the target at a
// fixed interval, reports its size through the gpucontext.EventSource
// resize callback, and replays scripted resizes so the resize path is
// exercised exactly as a window would exercise it.
package host

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/gogpu/gpucontext"
)

// Target is what a host drives. *hellocube.App implements it.
type Target interface {
	Initialize(ctx context.Context) error
	Resize(width, height uint32)
	Update()
	Render(ctx context.Context) error
}

// ResizeEvent changes the host size before frame Frame is rendered.
type ResizeEvent struct {
	Frame         int
	Width, Height int
}

// Options configures a Headless host.
type Options struct {
	Width, Height int

	// Frames is the number of frames to render; zero runs until the
	// context is done.
	Frames int

	// Interval is the tick period; zero renders back to back.
	Interval time.Duration

	// Resizes are applied in frame order before the frame renders.
	Resizes []ResizeEvent

	// Logger receives lifecycle messages. Nil discards them.
	Logger *slog.Logger
}

// Headless is a window-less host.
type Headless struct {
	gpucontext.NullEventSource

	opts Options
	log  *slog.Logger

	mu       sync.Mutex
	width    int
	height   int
	onResize []func(width, height int)
	target   Target
	frames   int
}

var _ gpucontext.EventSource = (*Headless)(nil)

// NewHeadless returns a host of the given initial size.
func NewHeadless(opts Options) *Headless {
	log := opts.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Headless{opts: opts, log: log, width: opts.Width, height: opts.Height}
}

// OnResize implements gpucontext.EventSource.
func (h *Headless) OnResize(fn func(width, height int)) {
	h.mu.Lock()
	h.onResize = append(h.onResize, fn)
	h.mu.Unlock()
}

// Size returns the current host size.
func (h *Headless) Size() (width, height int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.width, h.height
}

// Frames returns the number of frames rendered so far.
func (h *Headless) Frames() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.frames
}

// SetSize changes the host size, forwards it to the running target and
// notifies resize listeners.
func (h *Headless) SetSize(width, height int) {
	h.mu.Lock()
	h.width, h.height = width, height
	target := h.target
	fns := slices.Clone(h.onResize)
	h.mu.Unlock()
	if target != nil {
		target.Resize(clampSize(width), clampSize(height))
	}
	for _, fn := range fns {
		fn(width, height)
	}
}

// Run initializes target, hands it the host size, and renders until the
// frame budget is spent or ctx is done. The first render error stops the
// loop and is returned. Size changes reach target only while Run is active.
func (h *Headless) Run(ctx context.Context, target Target) error {
	if err := target.Initialize(ctx); err != nil {
		return fmt.Errorf("host: initialize: %w", err)
	}
	h.mu.Lock()
	h.target = target
	width, height := h.width, h.height
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.target = nil
		h.mu.Unlock()
	}()
	if width > 0 && height > 0 {
		target.Resize(clampSize(width), clampSize(height))
	}

	var tick <-chan time.Time
	if h.opts.Interval > 0 {
		ticker := time.NewTicker(h.opts.Interval)
		defer ticker.Stop()
		tick = ticker.C
	}

	h.log.Info("host: running", "frames", h.opts.Frames, "interval", h.opts.Interval)
	resizes := slices.Clone(h.opts.Resizes)
	slices.SortStableFunc(resizes, func(a, b ResizeEvent) int { return a.Frame - b.Frame })
	for frame := 0; h.opts.Frames == 0 || frame < h.opts.Frames; frame++ {
		if ctx.Err() != nil {
			return h.stopped(ctx)
		}
		if tick != nil {
			select {
			case <-ctx.Done():
				return h.stopped(ctx)
			case <-tick:
			}
		}

		for len(resizes) > 0 && resizes[0].Frame <= frame {
			h.SetSize(resizes[0].Width, resizes[0].Height)
			resizes = resizes[1:]
		}

		target.Update()
		if err := target.Render(ctx); err != nil {
			return fmt.Errorf("host: frame %d: %w", frame, err)
		}
		h.mu.Lock()
		h.frames++
		h.mu.Unlock()
	}
	h.log.Info("host: frame budget reached", "frames", h.Frames())
	return nil
}

func (h *Headless) stopped(ctx context.Context) error {
	err := ctx.Err()
	if errors.Is(err, context.Canceled) {
		h.log.Info("host: stopped", "frames", h.Frames())
		return nil
	}
	return err
}

func clampSize(v int) uint32 {
	if v <= 0 {
		return 0
	}
	return uint32(v) //nolint:gosec // positive int
}
