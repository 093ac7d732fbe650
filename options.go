package hellocube

import (
	"time"

	"github.com/gogpu/gpucontext"

	"github.com/gogpu/hellocube/config"
	"github.com/gogpu/hellocube/fence"
)

// Clock supplies the animation time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// Option configures an App.
//
// Example:
//
//	app := hellocube.New(
//	    hellocube.WithConfig(cfg),
//	    hellocube.WithWindow(display, window),
//	)
type Option func(*options)

type options struct {
	cfg      config.Config
	clock    Clock
	provider gpucontext.DeviceProvider
	timeline fence.Timeline

	display, window uintptr
	hasWindow       bool
}

func defaultOptions() options {
	return options{
		cfg:   config.Default(),
		clock: systemClock{},
	}
}

// WithConfig replaces the default configuration.
func WithConfig(cfg config.Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithClock sets the animation clock. Tests use it to step time.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

// WithWindow renders to a surface created on the given native handles
// (HINSTANCE/HWND, Display*/Window, CAMetalLayer). Without it the App
// renders into an offscreen back-buffer ring.
func WithWindow(display, window uintptr) Option {
	return func(o *options) {
		o.display, o.window = display, window
		o.hasWindow = true
	}
}

// WithDeviceProvider renders on a device owned by the host instead of
// opening one. The provider must expose HalDevice and HalQueue.
func WithDeviceProvider(p gpucontext.DeviceProvider) Option {
	return func(o *options) {
		o.provider = p
	}
}

// WithTimeline replaces the queue-backed completion timeline. The App
// then submits directly to the queue and relies on t alone to report
// completion, which lets tests control when frames finish.
func WithTimeline(t fence.Timeline) Option {
	return func(o *options) {
		o.timeline = t
	}
}
