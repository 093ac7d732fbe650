// Package hellocube renders seven rotating cubes with an explicit
// CPU/GPU fence protocol.
//
// # Overview
//
// Every frame follows one strict sequence on a single goroutine:
//
//	update -> record -> submit -> signal -> present -> wait -> resize
//
// The CPU never touches a buffer, texture or command buffer the GPU might
// still read until the fence counter of the frame that used it is observed
// complete. By default the App waits for every frame before starting the
// next. Setting frames_in_flight above 1 overlaps up to that many frames,
// with per-frame copies of everything the CPU rewrites.
//
// # Quick Start
//
//	import (
//	    "github.com/gogpu/hellocube"
//	    _ "github.com/gogpu/wgpu/hal/allbackends"
//	)
//
//	app := hellocube.New(hellocube.WithWindow(display, window))
//	if err := app.Initialize(ctx); err != nil {
//	    return err
//	}
//	defer app.Close()
//
//	for running {
//	    app.Update()
//	    if err := app.Render(ctx); err != nil {
//	        return err
//	    }
//	}
//
// Without WithWindow the App renders into an offscreen ring of back buffers,
// so the whole protocol also runs on the noop backend.
//
// # Packages
//
//   - fence: completion timelines, the Synchronizer and the frame ring
//   - config: TOML configuration
//   - host: a headless host that drives an App
//
// # Logging
//
// Nothing is logged until SetLogger is called. See [SetLogger].
package hellocube
