// Command hellocube renders the rotating-cube scene headless for a fixed
// number of frames and reports the fence statistics.
//
// Settings come from an optional TOML file (-config) and are overridden by
// any flag given explicitly:
//
//	hellocube -config hellocube.toml -frames 600 -frames-in-flight 2
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"time"

	_ "github.com/gogpu/wgpu/hal/allbackends" // Register every available HAL backend

	"github.com/gogpu/hellocube"
	"github.com/gogpu/hellocube/config"
	"github.com/gogpu/hellocube/host"
)

func main() {
	var (
		configPath     = flag.String("config", "", "TOML configuration file")
		width          = flag.Uint("width", 0, "back-buffer width")
		height         = flag.Uint("height", 0, "back-buffer height")
		backend        = flag.String("backend", "", "auto, vulkan, metal, dx12, gl or noop")
		frames         = flag.Int("frames", 0, "frames to render (0 = until interrupted)")
		framesInFlight = flag.Int("frames-in-flight", 0, "fence ring depth")
		instanced      = flag.Bool("instanced", true, "draw all cubes with one instanced draw")
		texture        = flag.Bool("texture", true, "sample the checkerboard texture")
		logLevel       = flag.String("log-level", "", "debug, info, warn or error")
		dumpConfig     = flag.Bool("dump-config", false, "print the effective configuration and exit")
	)
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			log.Fatal(err)
		}
	}
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "width":
			cfg.Width = uint32(*width) //nolint:gosec // validated below
		case "height":
			cfg.Height = uint32(*height) //nolint:gosec // validated below
		case "backend":
			cfg.Backend = *backend
		case "frames":
			cfg.Frames = *frames
		case "frames-in-flight":
			cfg.FramesInFlight = *framesInFlight
		case "instanced":
			cfg.Instanced = *instanced
		case "texture":
			cfg.UseTexture = *texture
		case "log-level":
			cfg.LogLevel = *logLevel
		}
	})
	if err := cfg.Validate(); err != nil {
		log.Fatal(err)
	}

	if *dumpConfig {
		if err := config.Encode(os.Stdout, cfg); err != nil {
			log.Fatal(err)
		}
		return
	}

	level, _ := config.ParseLogLevel(cfg.LogLevel)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	hellocube.SetLogger(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("hellocube failed", "err", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := hellocube.New(hellocube.WithConfig(cfg))
	h := host.NewHeadless(host.Options{
		Width:    int(cfg.Width),
		Height:   int(cfg.Height),
		Frames:   cfg.Frames,
		Interval: cfg.FrameInterval.Std(),
		Logger:   logger,
	})

	start := time.Now()
	runErr := h.Run(ctx, app)
	elapsed := time.Since(start)
	s := app.Stats()
	closeErr := app.Close()
	if runErr != nil {
		return runErr
	}
	if closeErr != nil {
		return closeErr
	}

	fmt.Printf("adapter:    %s\n", s.Adapter)
	fmt.Printf("frames:     %d in %v (%.1f fps)\n", s.Frames, elapsed.Round(time.Millisecond), float64(s.Frames)/elapsed.Seconds())
	fmt.Printf("counter:    last %d, completed %d\n", s.LastCounter, s.Completed)
	fmt.Printf("in flight:  %d\n", s.FramesInFlight)
	fmt.Printf("resizes:    %d\n", s.Resizes)
	return nil
}
