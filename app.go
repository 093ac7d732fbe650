package hellocube

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/hellocube/config"
	"github.com/gogpu/hellocube/fence"
	"github.com/gogpu/hellocube/internal/device"
	"github.com/gogpu/hellocube/internal/frame"
	"github.com/gogpu/hellocube/internal/pipeline"
	"github.com/gogpu/hellocube/internal/present"
	"github.com/gogpu/hellocube/internal/record"
	"github.com/gogpu/hellocube/internal/scene"
)

type state int

const (
	stateNew state = iota
	stateReady
	stateClosed
)

// Stats is a snapshot of frame-loop progress.
type Stats struct {
	// Frames is the number of frames presented.
	Frames uint64

	// LastCounter is the fence counter of the last submitted frame.
	LastCounter uint64

	// Completed is the highest counter the device has finished.
	Completed uint64

	// Resizes is the number of applied resizes.
	Resizes int

	// BackBuffer is the back buffer the next frame renders into.
	BackBuffer int

	// FramesInFlight is the fence ring depth.
	FramesInFlight int

	// Adapter is the name of the adapter in use.
	Adapter string
}

// App is the rotating-cube renderer. It is driven by a single goroutine.
type App struct {
	opts options
	cfg  config.Config

	state  state
	failed error

	owner       *device.Owner
	surface     hal.Surface
	ownsSurface bool
	queueTL     *fence.QueueTimeline
	sync        *fence.Synchronizer
	ring        *fence.Ring
	pipe        *pipeline.Pipeline
	res         *frame.ResourceSet
	pres        *present.Presenter
	rec         *record.Recorder

	camera  scene.Camera
	start   time.Time
	elapsed float64
	worlds  [scene.InstanceCount]f32.Mat4

	frames      uint64
	lastCounter uint64
}

// New returns an App. No GPU work happens until Initialize.
func New(opts ...Option) *App {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &App{opts: o, cfg: o.cfg, camera: scene.DefaultCamera()}
}

// Config returns the configuration in effect.
func (a *App) Config() config.Config { return a.cfg }

// Initialize opens the device and creates the pipeline, frame resources,
// presenter and recorder. It ends with an empty submission and waits for
// it, so the device is idle when Initialize returns. Any failure is fatal
// and releases what was already created.
func (a *App) Initialize(ctx context.Context) error {
	switch a.state {
	case stateReady:
		return ErrAlreadyInitialized
	case stateClosed:
		return ErrClosed
	}
	if err := a.cfg.Validate(); err != nil {
		return err
	}
	if err := a.initialize(ctx); err != nil {
		a.teardown()
		a.sync, a.ring, a.queueTL = nil, nil, nil
		return err
	}
	a.start = a.opts.clock.Now()
	a.state = stateReady
	slogger().Info("hellocube: initialized",
		"adapter", a.owner.Info().Name,
		"size", fmt.Sprintf("%dx%d", a.cfg.Width, a.cfg.Height),
		"back_buffers", a.cfg.BackBuffers,
		"frames_in_flight", a.cfg.FramesInFlight,
		"instanced", a.cfg.Instanced,
		"indexed", a.cfg.Indexed,
		"depth", a.cfg.UseDepth,
		"texture", a.cfg.UseTexture)
	return nil
}

func (a *App) initialize(ctx context.Context) error {
	var err error
	if a.opts.provider != nil {
		a.owner, err = device.FromProvider(a.opts.provider)
	} else {
		a.owner, err = device.Open(device.Options{
			Backend:        a.cfg.Backend,
			PreferSoftware: a.cfg.PreferSoftware,
		})
	}
	if err != nil {
		return err
	}
	dev, queue := a.owner.HalDevice(), a.owner.HalQueue()

	if a.opts.hasWindow {
		a.surface, err = a.owner.CreateSurface(a.opts.display, a.opts.window)
		if err != nil {
			return err
		}
		a.ownsSurface = true
	}

	tl := a.opts.timeline
	if tl == nil {
		a.queueTL = fence.NewQueueTimeline(queue)
		tl = a.queueTL
	}
	a.sync = fence.NewSynchronizer(tl, fence.WithTimeout(a.cfg.WaitTimeout.Std()))

	a.ring, err = fence.NewRing(a.sync, a.cfg.FramesInFlight)
	if err != nil {
		return err
	}
	if a.ring.Depth() > 1 {
		slogger().Warn("hellocube: pipelining frames; CPU writes now target per-frame copies",
			"frames_in_flight", a.ring.Depth())
	}

	a.pipe, err = pipeline.Build(dev, pipeline.Options{
		ColorFormat: a.owner.SurfaceFormat(),
		UseDepth:    a.cfg.UseDepth,
		UseTexture:  a.cfg.UseTexture,
	})
	if err != nil {
		return err
	}

	a.res, err = frame.New(dev, queue, a.sync, a.pipe.BindGroupLayout(), frame.Options{
		Slots:      a.ring.Depth(),
		UseDepth:   a.cfg.UseDepth,
		UseTexture: a.cfg.UseTexture,
		Width:      a.cfg.Width,
		Height:     a.cfg.Height,
	})
	if err != nil {
		return err
	}

	mode, err := config.ParsePresentMode(a.cfg.PresentMode)
	if err != nil {
		return err
	}
	a.pres, err = present.New(dev, queue, a.surface, a.sync, present.Options{
		Width:       a.cfg.Width,
		Height:      a.cfg.Height,
		BufferCount: a.cfg.BackBuffers,
		Format:      a.owner.SurfaceFormat(),
		PresentMode: mode,
	})
	if err != nil {
		return err
	}
	a.pres.OnResize(a.res.ResizeDepth)

	a.rec = record.New(dev, a.pipe, a.sync, record.Options{
		Instanced:   a.cfg.Instanced,
		Indexed:     a.cfg.Indexed,
		MaxInFlight: a.ring.Depth(),
	})

	// Uploads issued above must land before the first frame reads them.
	if _, err := a.sync.Frame(ctx, func(uint64) error { return a.submit(nil) }); err != nil {
		return fmt.Errorf("hellocube: initial flush: %w", err)
	}
	return nil
}

func (a *App) submit(cmdBufs []hal.CommandBuffer) error {
	if a.queueTL != nil {
		_, err := a.queueTL.Submit(cmdBufs)
		return err
	}
	if _, err := a.owner.HalQueue().Submit(cmdBufs); err != nil {
		return fmt.Errorf("hellocube: submit: %w", err)
	}
	return nil
}

// Update advances the animation clock.
func (a *App) Update() {
	if a.state != stateReady {
		return
	}
	a.elapsed = a.opts.clock.Now().Sub(a.start).Seconds()
}

// Elapsed returns the animation time in seconds as of the last Update.
func (a *App) Elapsed() float64 { return a.elapsed }

// Resize requests a new back-buffer size. It takes effect after the
// current frames complete, at the end of a later Render. Zero-area sizes
// are ignored.
func (a *App) Resize(width, height uint32) {
	switch a.state {
	case stateNew:
		if width > 0 && height > 0 {
			a.cfg.Width, a.cfg.Height = width, height
		}
	case stateReady:
		if a.pres.RequestResize(width, height) {
			slogger().Debug("hellocube: resize requested", "width", width, "height", height)
		}
	}
}

// Render draws, submits, signals and presents one frame, then waits as the
// ring depth requires and applies any pending resize. A failed present is
// returned but leaves the loop usable. A device error is fatal: it is
// returned wrapped in ErrDeviceFailed from this and every later call.
func (a *App) Render(ctx context.Context) error {
	switch a.state {
	case stateNew:
		return ErrNotInitialized
	case stateClosed:
		return ErrClosed
	}
	if a.failed != nil {
		return a.failed
	}
	if err := a.render(ctx); err != nil {
		if fence.IsDeviceLost(err) {
			a.failed = fmt.Errorf("%w: %w", ErrDeviceFailed, err)
			slogger().Error("hellocube: device lost", "err", err, "counter", a.lastCounter)
			return a.failed
		}
		return err
	}
	return nil
}

func (a *App) render(ctx context.Context) error {
	slot := a.ring.Slot()
	if err := a.ring.Acquire(ctx); err != nil {
		return err
	}
	a.rec.Retire()

	width, height := a.pres.Size()
	if err := a.upload(slot, width, height); err != nil {
		return err
	}

	bb, err := a.pres.Acquire()
	if err != nil {
		return err
	}
	cmdBuf, err := a.rec.Record(record.FrameInput{
		Texture:  bb.Texture,
		View:     bb.View,
		Width:    width,
		Height:   height,
		Clear:    scene.ClearColor(a.elapsed),
		Bindings: a.res.Bindings(slot),
	})
	if err != nil {
		a.pres.Abandon()
		return err
	}

	counter := a.sync.NextCounter()
	if err := a.submit([]hal.CommandBuffer{cmdBuf}); err != nil {
		a.rec.Discard()
		a.pres.Abandon()
		return err
	}
	if err := a.rec.Submitted(counter); err != nil {
		return err
	}
	a.res.MarkInUse(slot, counter)
	a.lastCounter = counter

	// Submitted work is always signaled, even if the present below fails,
	// so the resources it holds are released on the next frame.
	if err := a.sync.Signal(counter); err != nil {
		a.pres.Abandon()
		return err
	}
	a.ring.Release(counter)

	if err := a.pres.Present(); err != nil {
		return err
	}
	a.frames++

	if a.ring.Depth() == 1 {
		if err := a.sync.WaitUntilContext(ctx, counter); err != nil {
			return err
		}
		a.rec.Retire()
	}
	slogger().Debug("hellocube: frame", "counter", counter, "slot", slot, "back_buffer", bb.Index)

	if _, err := a.pres.ApplyPendingResize(ctx); err != nil {
		return err
	}
	return nil
}

// upload writes the slot's world and view-projection matrices. Instanced
// drawing shares one spin matrix and places cubes by the instance buffer.
func (a *App) upload(slot int, width, height uint32) error {
	t := float32(a.elapsed)
	n := 1
	if a.cfg.Instanced {
		a.worlds[0] = scene.Spin(t)
	} else {
		n = scene.InstanceCount
		for i := range a.worlds {
			a.worlds[i] = scene.World(t, i)
		}
	}
	if err := a.res.WriteWorld(slot, a.worlds[:n]); err != nil {
		return err
	}
	return a.res.WriteViewProj(slot, a.camera.ViewProjection(width, height))
}

// Stats returns a snapshot of frame-loop progress.
func (a *App) Stats() Stats {
	s := Stats{
		Frames:         a.frames,
		LastCounter:    a.lastCounter,
		FramesInFlight: a.cfg.FramesInFlight,
	}
	if a.sync != nil {
		s.Completed = a.sync.Completed()
	}
	if a.pres != nil {
		s.Resizes = a.pres.Resizes()
		s.BackBuffer = a.pres.Index()
	}
	if a.owner != nil {
		s.Adapter = a.owner.Info().Name
	}
	return s
}

// Size returns the current back-buffer size.
func (a *App) Size() (width, height uint32) {
	if a.pres != nil {
		return a.pres.Size()
	}
	return a.cfg.Width, a.cfg.Height
}

// DeviceProvider exposes the App's device to other gogpu libraries. It is
// nil before Initialize.
func (a *App) DeviceProvider() gpucontext.DeviceProvider {
	if a.owner == nil {
		return nil
	}
	return a.owner
}

// Close drains the frames still in flight, then releases everything in
// reverse dependency order: presenter, recorder, frame resources, pipeline,
// surface, device. Close is idempotent. A failed final wait is returned
// after teardown completes.
func (a *App) Close() error {
	if a.state == stateClosed {
		return nil
	}
	var drainErr error
	if a.ring != nil && a.failed == nil {
		if err := a.ring.Drain(context.Background()); err != nil {
			drainErr = fmt.Errorf("hellocube: close: %w", err)
			slogger().Warn("hellocube: final drain failed", "err", err)
		}
	}
	a.teardown()
	a.state = stateClosed
	slogger().Info("hellocube: closed", "frames", a.frames)
	return drainErr
}

func (a *App) teardown() {
	if a.pres != nil {
		a.pres.Destroy()
		a.pres = nil
	}
	if a.rec != nil {
		a.rec.Destroy()
		a.rec = nil
	}
	if a.res != nil {
		a.res.Destroy()
		a.res = nil
	}
	if a.pipe != nil {
		a.pipe.Destroy()
		a.pipe = nil
	}
	if a.surface != nil && a.ownsSurface {
		a.surface.Destroy()
	}
	a.surface = nil
	if a.owner != nil {
		a.owner.Destroy()
		a.owner = nil
	}
}

// IsDeviceFailed reports whether err came from a lost device.
func IsDeviceFailed(err error) bool {
	return errors.Is(err, ErrDeviceFailed) || fence.IsDeviceLost(err)
}
