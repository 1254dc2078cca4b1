// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"fxengine/cmd"
	"fxengine/internal/build"
	"fxengine/internal/log"
)

// main wires the process lifecycle around the command line:
//
// 1. Startup (cold path): build information, runtime settings, signals.
// 2. Running (hot path): the chosen command, usually the live engine whose
// PortAudio callback owns the effect chain until shutdown.
// 3. Shutdown (cold path): SIGINT or SIGTERM cancels the context and the
// command unwinds its own resources.
func main() {
	if err := build.Initialize(); err != nil {
		// Development builds run without link-time metadata.
		log.Debugf("Build info: %v", err)
	}

	// One thread for the audio callback, one for control, UI and I/O.
	runtime.GOMAXPROCS(2)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx, os.Args[1:]); err != nil {
		stop()
		log.Fatalf("%v", err)
	}
}
