// Package present hands finished frames to the display and rotates the
// back buffers.
//
// With a surface, back buffers come from the swap chain. Without one the
// presenter keeps an offscreen ring of render-attachment textures with the
// same rotation, so the frame loop runs unchanged in headless mode.
//
// Resizes are two-phase: RequestResize only records the new size, and
// ApplyPendingResize waits for the last signaled frame before rebuilding
// anything the GPU might still reference.
package present

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hellocube/fence"
	"github.com/gogpu/hellocube/internal/logging"
)

// Swap-buffer count bounds.
const (
	MinBackBuffers = 2
	MaxBackBuffers = fence.MaxFramesInFlight
)

var (
	// ErrAlreadyAcquired is returned by Acquire while a back buffer is out.
	ErrAlreadyAcquired = errors.New("present: back buffer already acquired")

	// ErrNotAcquired is returned by Present without a prior Acquire.
	ErrNotAcquired = errors.New("present: no back buffer acquired")

	// ErrBufferCount is returned for a back-buffer count outside
	// [MinBackBuffers, MaxBackBuffers].
	ErrBufferCount = errors.New("present: invalid back-buffer count")
)

// Options configures New.
type Options struct {
	Width, Height uint32
	BufferCount   int
	Format        gputypes.TextureFormat
	PresentMode   gputypes.PresentMode
}

// BackBuffer is the image the current frame renders into.
type BackBuffer struct {
	Index   int
	Texture hal.Texture
	View    hal.TextureView

	surfaceTex hal.SurfaceTexture
}

// ResizeFunc rebuilds a size-dependent resource after a resize.
type ResizeFunc func(width, height uint32) error

type offscreenBuffer struct {
	tex  hal.Texture
	view hal.TextureView
}

type size struct{ w, h uint32 }

// Presenter owns the swap chain or its headless stand-in.
type Presenter struct {
	device  hal.Device
	queue   hal.Queue
	surface hal.Surface
	sync    *fence.Synchronizer
	opts    Options

	index     int
	current   *BackBuffer
	offscreen []offscreenBuffer

	pending  *size
	resizes  int
	presents uint64
	onResize []ResizeFunc

	// broken is set when a failed resize could not restore the old back
	// buffers. Acquire returns it from then on.
	broken error
}

// New configures surface, or an offscreen ring when surface is nil.
func New(device hal.Device, queue hal.Queue, surface hal.Surface, sync *fence.Synchronizer, opts Options) (*Presenter, error) {
	if opts.BufferCount < MinBackBuffers || opts.BufferCount > MaxBackBuffers {
		return nil, fmt.Errorf("%w: %d", ErrBufferCount, opts.BufferCount)
	}
	if opts.Width == 0 || opts.Height == 0 {
		return nil, fmt.Errorf("present: %w", hal.ErrZeroArea)
	}
	if opts.Format == gputypes.TextureFormatUndefined {
		opts.Format = gputypes.TextureFormatBGRA8Unorm
	}
	if opts.PresentMode == gputypes.PresentModeUndefined {
		opts.PresentMode = gputypes.PresentModeFifo
	}
	p := &Presenter{
		device:  device,
		queue:   queue,
		surface: surface,
		sync:    sync,
		opts:    opts,
	}
	if err := p.configure(); err != nil {
		p.Destroy()
		return nil, err
	}
	logging.Logger().Info("present: configured",
		"width", opts.Width, "height", opts.Height,
		"buffers", opts.BufferCount, "headless", surface == nil)
	return p, nil
}

func (p *Presenter) configure() error {
	if p.surface != nil {
		err := p.surface.Configure(p.device, &hal.SurfaceConfiguration{
			Width:       p.opts.Width,
			Height:      p.opts.Height,
			Format:      p.opts.Format,
			Usage:       gputypes.TextureUsageRenderAttachment,
			PresentMode: p.opts.PresentMode,
			AlphaMode:   gputypes.CompositeAlphaModeOpaque,
		})
		if err != nil {
			return fmt.Errorf("present: configure surface: %w", err)
		}
		return nil
	}

	p.offscreen = make([]offscreenBuffer, p.opts.BufferCount)
	for i := range p.offscreen {
		tex, err := p.device.CreateTexture(&hal.TextureDescriptor{
			Label:         fmt.Sprintf("back_buffer_%d", i),
			Size:          hal.Extent3D{Width: p.opts.Width, Height: p.opts.Height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        p.opts.Format,
			Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			return fmt.Errorf("present: create back buffer %d: %w", i, err)
		}
		p.offscreen[i].tex = tex
		view, err := p.device.CreateTextureView(tex, &hal.TextureViewDescriptor{
			Label: fmt.Sprintf("back_buffer_view_%d", i),
		})
		if err != nil {
			return fmt.Errorf("present: create back buffer view %d: %w", i, err)
		}
		p.offscreen[i].view = view
	}
	return nil
}

func (p *Presenter) release() {
	if p.surface != nil {
		p.surface.Unconfigure(p.device)
		return
	}
	for _, b := range p.offscreen {
		if b.view != nil {
			p.device.DestroyTextureView(b.view)
		}
		if b.tex != nil {
			p.device.DestroyTexture(b.tex)
		}
	}
	p.offscreen = nil
}

// OnResize registers fn to run after every applied resize.
func (p *Presenter) OnResize(fn ResizeFunc) {
	p.onResize = append(p.onResize, fn)
}

// Headless reports whether the presenter runs without a surface.
func (p *Presenter) Headless() bool { return p.surface == nil }

// BackBufferCount returns the configured swap-buffer count.
func (p *Presenter) BackBufferCount() int { return p.opts.BufferCount }

// Index returns the back buffer the next Acquire returns.
func (p *Presenter) Index() int { return p.index }

// Size returns the current back-buffer size.
func (p *Presenter) Size() (width, height uint32) { return p.opts.Width, p.opts.Height }

// Format returns the back-buffer format.
func (p *Presenter) Format() gputypes.TextureFormat { return p.opts.Format }

// Resizes returns the number of applied resizes.
func (p *Presenter) Resizes() int { return p.resizes }

// Presents returns the number of presented frames.
func (p *Presenter) Presents() uint64 { return p.presents }

// Acquire returns the current back buffer. Exactly one may be out at a time.
func (p *Presenter) Acquire() (*BackBuffer, error) {
	if p.broken != nil {
		return nil, p.broken
	}
	if p.current != nil {
		return nil, ErrAlreadyAcquired
	}
	bb := &BackBuffer{Index: p.index}
	if p.surface == nil {
		bb.Texture = p.offscreen[p.index].tex
		bb.View = p.offscreen[p.index].view
		p.current = bb
		return bb, nil
	}

	acquired, err := p.surface.AcquireTexture(nil)
	if err != nil {
		return nil, fmt.Errorf("present: acquire: %w", err)
	}
	if acquired.Suboptimal {
		logging.Logger().Debug("present: suboptimal surface texture")
	}
	view, err := p.device.CreateTextureView(acquired.Texture, &hal.TextureViewDescriptor{
		Label:         "surface_view",
		Format:        p.opts.Format,
		Dimension:     gputypes.TextureViewDimension2D,
		Aspect:        gputypes.TextureAspectAll,
		MipLevelCount: 1,
	})
	if err != nil {
		p.surface.DiscardTexture(acquired.Texture)
		return nil, fmt.Errorf("present: create surface view: %w", err)
	}
	bb.Texture = acquired.Texture
	bb.View = view
	bb.surfaceTex = acquired.Texture
	p.current = bb
	return bb, nil
}

// Present hands the acquired back buffer to the display and rotates to the
// next one. Call it after the frame's commands are submitted.
func (p *Presenter) Present() error {
	bb := p.current
	if bb == nil {
		return ErrNotAcquired
	}
	p.current = nil
	if bb.surfaceTex != nil {
		err := p.queue.Present(p.surface, bb.surfaceTex, nil)
		// The view is recorded in submitted commands; Vulkan, DX12 and Metal
		// keep the image alive until the frame retires.
		p.device.DestroyTextureView(bb.View)
		if err != nil {
			return fmt.Errorf("present: %w", err)
		}
	}
	p.index = (p.index + 1) % p.opts.BufferCount
	p.presents++
	return nil
}

// Abandon returns an acquired back buffer without presenting it.
func (p *Presenter) Abandon() {
	bb := p.current
	if bb == nil {
		return
	}
	p.current = nil
	if bb.surfaceTex != nil {
		p.device.DestroyTextureView(bb.View)
		p.surface.DiscardTexture(bb.surfaceTex)
	}
}

// RequestResize records a new size for the next ApplyPendingResize. A
// zero-area size (minimized window) is ignored and reported false.
func (p *Presenter) RequestResize(width, height uint32) bool {
	if width == 0 || height == 0 {
		logging.Logger().Debug("present: ignoring zero-area resize", "width", width, "height", height)
		return false
	}
	p.pending = &size{width, height}
	return true
}

// ResizePending reports whether a resize awaits ApplyPendingResize.
func (p *Presenter) ResizePending() bool { return p.pending != nil }

// ApplyPendingResize waits until every signaled frame is complete, then
// rebuilds the back buffers at the requested size, resets the rotation to
// the first buffer, and runs the OnResize hooks. It does nothing while a
// back buffer is acquired or when no resize is pending.
func (p *Presenter) ApplyPendingResize(ctx context.Context) (bool, error) {
	if p.pending == nil || p.current != nil {
		return false, nil
	}
	if err := p.sync.WaitUntilContext(ctx, p.sync.LastSignaled()); err != nil {
		return false, fmt.Errorf("present: resize: %w", err)
	}

	s := *p.pending
	p.pending = nil
	if s.w == p.opts.Width && s.h == p.opts.Height {
		return false, nil
	}

	old := size{p.opts.Width, p.opts.Height}
	p.release()
	p.opts.Width, p.opts.Height = s.w, s.h
	if err := p.configure(); err != nil {
		p.restore(old)
		return false, err
	}
	p.index = 0
	p.resizes++
	for _, fn := range p.onResize {
		if err := fn(s.w, s.h); err != nil {
			return true, fmt.Errorf("present: resize dependent: %w", err)
		}
	}
	logging.Logger().Info("present: resized", "width", s.w, "height", s.h, "buffers", p.opts.BufferCount)
	return true, nil
}

// restore rebuilds the back buffers at the size in use before a failed
// resize. If that fails too the presenter is marked broken.
func (p *Presenter) restore(old size) {
	p.release()
	p.opts.Width, p.opts.Height = old.w, old.h
	if err := p.configure(); err != nil {
		p.release()
		p.broken = fmt.Errorf("present: restore %dx%d after failed resize: %w", old.w, old.h, err)
		logging.Logger().Error("present: back buffers lost", "err", err)
		return
	}
	logging.Logger().Warn("present: resize failed, kept previous size", "width", old.w, "height", old.h)
}

// Destroy releases the back buffers or unconfigures the surface. The
// surface itself belongs to the caller. Callers flush the fence first.
func (p *Presenter) Destroy() {
	if p.device == nil {
		return
	}
	p.Abandon()
	p.release()
	p.device = nil
}
