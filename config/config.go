// Package config loads the hellocube configuration file.
//
// The file is TOML. Every key is optional and unknown keys are rejected:
//
//	width = 1280
//	height = 720
//	backend = "vulkan"
//	back_buffers = 3
//	frames_in_flight = 1
//	wait_timeout = "5s"
//	instanced = true
//	use_texture = false
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/pelletier/go-toml/v2"

	"github.com/gogpu/hellocube/fence"
	"github.com/gogpu/hellocube/internal/device"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("config: invalid")

// Duration is a time.Duration written as a Go duration string ("5s").
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config is the full set of runtime settings.
type Config struct {
	// Window or offscreen size in pixels.
	Width  uint32 `toml:"width"`
	Height uint32 `toml:"height"`

	// Backend is "auto", "vulkan", "metal", "dx12", "gl" or "noop".
	Backend string `toml:"backend"`

	// PreferSoftware picks a CPU adapter when one is available.
	PreferSoftware bool `toml:"prefer_software"`

	// BackBuffers is the swap-buffer count, 2 or 3.
	BackBuffers int `toml:"back_buffers"`

	// FramesInFlight is the fence ring depth. 1 waits for every frame
	// before starting the next; larger values overlap CPU and GPU work.
	FramesInFlight int `toml:"frames_in_flight"`

	// WaitTimeout bounds each fence wait; expiry is treated as device
	// loss. Zero waits forever.
	WaitTimeout Duration `toml:"wait_timeout"`

	// PresentMode is "fifo", "mailbox" or "immediate".
	PresentMode string `toml:"present_mode"`

	Instanced bool `toml:"instanced"`
	Indexed   bool `toml:"indexed"`
	UseDepth  bool `toml:"use_depth"`

	// UseTexture samples a generated checkerboard instead of shading by
	// texture coordinates.
	UseTexture bool `toml:"use_texture"`

	// Frames is the headless frame budget; zero runs until interrupted.
	Frames int `toml:"frames"`

	// FrameInterval is the headless tick period.
	FrameInterval Duration `toml:"frame_interval"`

	// LogLevel is "debug", "info", "warn" or "error".
	LogLevel string `toml:"log_level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Width:          1280,
		Height:         720,
		Backend:        "auto",
		BackBuffers:    3,
		FramesInFlight: 1,
		WaitTimeout:    Duration(fence.DefaultWaitTimeout),
		PresentMode:    "fifo",
		Instanced:      true,
		Indexed:        true,
		UseDepth:       true,
		UseTexture:     true,
		FrameInterval:  Duration(time.Second / 60),
		LogLevel:       "info",
	}
}

// Load reads the file at path over Default and validates the result.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	defer f.Close()
	cfg, err := Decode(f)
	if err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Decode reads TOML from r over Default and validates the result.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&cfg); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Config{}, fmt.Errorf("%w: %s", ErrInvalid, strict.String())
		}
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Encode writes cfg as TOML.
func Encode(w io.Writer, cfg Config) error {
	return toml.NewEncoder(w).Encode(cfg)
}

// Validate checks every field.
func (c Config) Validate() error {
	var errs []error
	if c.Width == 0 || c.Height == 0 {
		errs = append(errs, fmt.Errorf("size %dx%d must be non-zero", c.Width, c.Height))
	}
	if _, _, err := device.ParseBackend(c.Backend); err != nil {
		errs = append(errs, err)
	}
	if c.BackBuffers < 2 || c.BackBuffers > fence.MaxFramesInFlight {
		errs = append(errs, fmt.Errorf("back_buffers %d not in [2, %d]", c.BackBuffers, fence.MaxFramesInFlight))
	}
	if c.FramesInFlight < 1 || c.FramesInFlight > c.BackBuffers {
		errs = append(errs, fmt.Errorf("frames_in_flight %d not in [1, back_buffers=%d]", c.FramesInFlight, c.BackBuffers))
	}
	if c.WaitTimeout < 0 {
		errs = append(errs, fmt.Errorf("wait_timeout %v is negative", c.WaitTimeout.Std()))
	}
	if _, err := ParsePresentMode(c.PresentMode); err != nil {
		errs = append(errs, err)
	}
	if c.Frames < 0 {
		errs = append(errs, fmt.Errorf("frames %d is negative", c.Frames))
	}
	if c.FrameInterval < 0 {
		errs = append(errs, fmt.Errorf("frame_interval %v is negative", c.FrameInterval.Std()))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// ParseLogLevel maps a level name to its slog level.
func ParseLogLevel(name string) (slog.Level, error) {
	var l slog.Level
	if name == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(name)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", name)
	}
	return l, nil
}

// ParsePresentMode maps a present mode name to its value.
func ParsePresentMode(name string) (gputypes.PresentMode, error) {
	switch strings.ToLower(name) {
	case "", "fifo", "vsync":
		return gputypes.PresentModeFifo, nil
	case "mailbox":
		return gputypes.PresentModeMailbox, nil
	case "immediate":
		return gputypes.PresentModeImmediate, nil
	default:
		return gputypes.PresentModeUndefined, fmt.Errorf("unknown present_mode %q", name)
	}
}
