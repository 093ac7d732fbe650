package hellocube

import (
	"context"
	"image"
	"testing"
	"time"

	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/noop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gogpu/hellocube/config"
	"github.com/gogpu/hellocube/fence"
	"github.com/gogpu/hellocube/host"
	"github.com/gogpu/hellocube/internal/device"
	"github.com/gogpu/hellocube/internal/present"
)

type stepClock struct{ now time.Time }

func (c *stepClock) Now() time.Time           { return c.now }
func (c *stepClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Backend = "noop"
	cfg.Width, cfg.Height = 64, 48
	return cfg
}

func newTestApp(t *testing.T, cfg config.Config, opts ...Option) *App {
	t.Helper()
	app := New(append([]Option{WithConfig(cfg)}, opts...)...)
	require.NoError(t, app.Initialize(context.Background()))
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestAppLifecycle(t *testing.T) {
	ctx := context.Background()
	app := New(WithConfig(testConfig()))
	assert.ErrorIs(t, app.Render(ctx), ErrNotInitialized)
	assert.Nil(t, app.DeviceProvider())

	require.NoError(t, app.Initialize(ctx))
	assert.ErrorIs(t, app.Initialize(ctx), ErrAlreadyInitialized)
	assert.NotNil(t, app.DeviceProvider())

	for i := 0; i < 5; i++ {
		app.Update()
		require.NoError(t, app.Render(ctx))
	}

	s := app.Stats()
	assert.Equal(t, uint64(5), s.Frames)
	// Counter 1 is the initial flush.
	assert.Equal(t, uint64(6), s.LastCounter)
	assert.GreaterOrEqual(t, s.Completed, s.LastCounter, "one-deep: every frame waited")
	assert.Equal(t, 5%3, s.BackBuffer)
	assert.Equal(t, 1, s.FramesInFlight)
	assert.Equal(t, "Noop Adapter", s.Adapter)

	require.NoError(t, app.Close())
	assert.ErrorIs(t, app.Render(ctx), ErrClosed)
	assert.ErrorIs(t, app.Initialize(ctx), ErrClosed)
	assert.NoError(t, app.Close())
}

func TestAppCountersIncrease(t *testing.T) {
	app := newTestApp(t, testConfig())
	var last uint64
	for i := 0; i < 10; i++ {
		require.NoError(t, app.Render(context.Background()))
		c := app.Stats().LastCounter
		assert.Greater(t, c, last)
		last = c
	}
}

func TestAppUpdateUsesClock(t *testing.T) {
	clock := &stepClock{now: time.Unix(100, 0)}
	app := newTestApp(t, testConfig(), WithClock(clock))

	app.Update()
	assert.Zero(t, app.Elapsed())
	clock.advance(1500 * time.Millisecond)
	app.Update()
	assert.InDelta(t, 1.5, app.Elapsed(), 1e-9)
	require.NoError(t, app.Render(context.Background()))
}

func TestAppDrawModes(t *testing.T) {
	for _, mode := range []struct {
		name                                     string
		instanced, indexed, useDepth, useTexture bool
	}{
		{"instanced indexed depth texture", true, true, true, true},
		{"instanced untextured", true, true, true, false},
		{"per cube", false, false, false, false},
		{"per cube indexed depth texture", false, true, true, true},
	} {
		t.Run(mode.name, func(t *testing.T) {
			cfg := testConfig()
			cfg.Instanced, cfg.Indexed, cfg.UseDepth = mode.instanced, mode.indexed, mode.useDepth
			cfg.UseTexture = mode.useTexture
			cfg.BackBuffers = 2
			app := newTestApp(t, cfg)
			for i := 0; i < 3; i++ {
				require.NoError(t, app.Render(context.Background()))
			}
			assert.Equal(t, 1, app.Stats().BackBuffer)
			assert.Equal(t, mode.useTexture, app.res.HasTexture())
			assert.Equal(t, mode.useTexture, app.pipe.UsesTexture())
		})
	}
}

func TestAppResizeAppliedAfterFrame(t *testing.T) {
	app := newTestApp(t, testConfig())
	ctx := context.Background()
	require.NoError(t, app.Render(ctx))

	app.Resize(128, 96)
	app.Resize(0, 96)
	w, h := app.Size()
	assert.Equal(t, uint32(64), w, "resize applies only at the end of a frame")
	assert.Equal(t, uint32(48), h)

	require.NoError(t, app.Render(ctx))
	s := app.Stats()
	assert.Equal(t, 1, s.Resizes)
	assert.Equal(t, 0, s.BackBuffer, "rotation restarts after a resize")
	w, h = app.Size()
	assert.Equal(t, uint32(128), w)
	assert.Equal(t, uint32(96), h)

	require.NoError(t, app.Render(ctx))
	assert.Equal(t, 1, app.Stats().BackBuffer)
}

func TestAppResizeBeforeInitialize(t *testing.T) {
	app := New(WithConfig(testConfig()))
	app.Resize(200, 100)
	require.NoError(t, app.Initialize(context.Background()))
	defer app.Close()
	w, h := app.Size()
	assert.Equal(t, uint32(200), w)
	assert.Equal(t, uint32(100), h)
}

func TestAppPipelinedFramesWaitForSlot(t *testing.T) {
	tl := fence.NewDeferredTimeline()
	tl.Complete(1) // the initial flush
	cfg := testConfig()
	cfg.FramesInFlight = 2
	app := New(WithConfig(cfg), WithTimeline(tl))
	ctx := context.Background()
	require.NoError(t, app.Initialize(ctx))

	// Two frames fit in the ring without any completion.
	require.NoError(t, app.Render(ctx))
	require.NoError(t, app.Render(ctx))
	assert.Equal(t, []uint64{1, 2, 3}, tl.Pending())

	// The third frame reuses slot 0 and must wait for counter 2.
	done := make(chan error, 1)
	go func() { done <- app.Render(ctx) }()
	select {
	case err := <-done:
		t.Fatalf("frame reused slot 0 before its counter completed: %v", err)
	case <-time.After(30 * time.Millisecond):
	}

	tl.Complete(2)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("frame never resumed after completion")
	}
	assert.Equal(t, uint64(4), app.Stats().LastCounter)

	// Close drains the ring: frames 3 and 4 are still in flight.
	closed := make(chan error, 1)
	go func() { closed <- app.Close() }()
	select {
	case err := <-closed:
		t.Fatalf("Close returned with frames in flight: %v", err)
	case <-time.After(30 * time.Millisecond):
	}
	tl.Complete(4)
	select {
	case err := <-closed:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Close never returned after the ring drained")
	}
}

func TestAppWaitTimeoutIsDeviceLoss(t *testing.T) {
	tl := fence.NewDeferredTimeline()
	tl.Complete(1)
	cfg := testConfig()
	cfg.WaitTimeout = config.Duration(20 * time.Millisecond)
	app := New(WithConfig(cfg), WithTimeline(tl))
	ctx := context.Background()
	require.NoError(t, app.Initialize(ctx))

	err := app.Render(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceFailed)
	assert.ErrorIs(t, err, fence.ErrWaitTimeout)
	assert.True(t, IsDeviceFailed(err))

	// Fatal: no recovery on later frames.
	assert.ErrorIs(t, app.Render(ctx), ErrDeviceFailed)
	assert.NoError(t, app.Close())
}

// outdatedQueue reports an outdated surface for the next fails presents.
type outdatedQueue struct {
	hal.Queue
	fails int
}

func (q *outdatedQueue) Present(s hal.Surface, tex hal.SurfaceTexture, rects []image.Rectangle) error {
	if q.fails > 0 {
		q.fails--
		return hal.ErrSurfaceOutdated
	}
	return q.Queue.Present(s, tex, rects)
}

func TestAppRecoversFromFailedPresent(t *testing.T) {
	app := newTestApp(t, testConfig())
	ctx := context.Background()

	surface, err := app.owner.CreateSurface(0, 0)
	require.NoError(t, err)
	app.pres.Destroy()
	app.surface, app.ownsSurface = surface, true
	app.pres, err = present.New(app.owner.HalDevice(), &outdatedQueue{Queue: app.owner.HalQueue(), fails: 1},
		surface, app.sync, present.Options{Width: 64, Height: 48, BufferCount: 3})
	require.NoError(t, err)
	app.pres.OnResize(app.res.ResizeDepth)

	err = app.Render(ctx)
	require.ErrorIs(t, err, hal.ErrSurfaceOutdated)
	assert.False(t, IsDeviceFailed(err))
	assert.Equal(t, uint64(2), app.sync.LastSignaled(), "submitted frame must still be signaled")

	for i := 0; i < 3; i++ {
		require.NoError(t, app.Render(ctx), "frame %d after failed present", i)
	}
	s := app.Stats()
	assert.Equal(t, uint64(3), s.Frames)
	assert.Equal(t, uint64(5), s.LastCounter)
	assert.Equal(t, 3%3, s.BackBuffer)
}

func TestAppInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BackBuffers = 5
	app := New(WithConfig(cfg))
	assert.ErrorIs(t, app.Initialize(context.Background()), config.ErrInvalid)
	assert.ErrorIs(t, app.Render(context.Background()), ErrNotInitialized)
	assert.NoError(t, app.Close())
}

// halProvider exposes an Owner the way a host window library does.
type halProvider struct{ *device.Owner }

func (p halProvider) HalDevice() any { return p.Owner.HalDevice() }
func (p halProvider) HalQueue() any  { return p.Owner.HalQueue() }

func TestAppWithDeviceProvider(t *testing.T) {
	owner, err := device.Open(device.Options{Backend: "noop"})
	require.NoError(t, err)
	defer owner.Destroy()

	app := newTestApp(t, testConfig(), WithDeviceProvider(halProvider{owner}))
	require.NoError(t, app.Render(context.Background()))
	require.NoError(t, app.Close())

	// The host's device outlives the App.
	assert.NotNil(t, owner.HalDevice())
}

func TestHeadlessHostDrivesApp(t *testing.T) {
	cfg := testConfig()
	app := New(WithConfig(cfg))
	h := host.NewHeadless(host.Options{
		Width: 64, Height: 48, Frames: 6,
		Resizes: []host.ResizeEvent{{Frame: 2, Width: 80, Height: 60}},
	})
	require.NoError(t, h.Run(context.Background(), app))
	defer app.Close()

	s := app.Stats()
	assert.Equal(t, uint64(6), s.Frames)
	assert.Equal(t, 1, s.Resizes)
	w, hh := app.Size()
	assert.Equal(t, uint32(80), w)
	assert.Equal(t, uint32(60), hh)
}
