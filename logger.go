package hellocube

import (
	"log/slog"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/hellocube/internal/logging"
)

// SetLogger configures the logger for hellocube, its internal packages and
// the wgpu HAL. By default nothing is logged.
//
// SetLogger is safe for concurrent use: it stores the new logger atomically.
// Pass nil to restore the silent default.
//
// Log levels used by hellocube:
//   - [slog.LevelDebug]: per-frame diagnostics (counters, slots, resize requests)
//   - [slog.LevelInfo]: lifecycle events (adapter selected, resize applied)
//   - [slog.LevelWarn]: non-fatal issues (multi-frame pipelining, failed final drain)
//   - [slog.LevelError]: device loss
//
// Example:
//
//	hellocube.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
//	    Level: slog.LevelDebug,
//	})))
func SetLogger(l *slog.Logger) {
	logging.Set(l)
	hal.SetLogger(l)
}

// Logger returns the current logger used by hellocube.
//
// Logger is safe for concurrent use.
func Logger() *slog.Logger {
	return logging.Logger()
}

func slogger() *slog.Logger { return logging.Logger() }
