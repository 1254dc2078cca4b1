// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"fxengine/internal/analysis"
	"fxengine/internal/audio"
	"fxengine/internal/config"
	"fxengine/internal/control"
	"fxengine/internal/log"
	"fxengine/internal/transport"
	"fxengine/internal/transport/udp"
	"fxengine/internal/tui"
)

// runEngine drives the live engine. Startup and shutdown are cold paths;
// between them the PortAudio callback owns the effect chain.
func runEngine(ctx context.Context, cfg *config.Config, o *options) error {
	if err := audio.Initialize(); err != nil {
		return err
	}
	defer audio.Terminate()

	if o.pick {
		if err := pickDevices(cfg); err != nil {
			return err
		}
	}

	window, err := analysis.ParseWindowFunc(cfg.Audio.FFTWindow)
	if err != nil {
		log.Warnf("%v, using %s", err, window)
	}
	analyzer, err := analysis.NewAnalyzer(cfg.Audio.FFTSize, cfg.Audio.SampleRate, window)
	if err != nil {
		return err
	}

	ch := control.NewChannel(cfg.Control.QueueCapacity)
	engine, err := audio.NewEngine(cfg, ch, analyzer)
	if err != nil {
		return err
	}

	surface := control.NewSurface(ch, engine.Host(), control.WithStatusTimeout(cfg.Control.StatusTimeout))
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go surface.Run(ctx)

	closers, err := startTransports(cfg, surface, analyzer)
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if cerr := closers[i].Close(); cerr != nil {
				log.Warnf("Shutdown: %v", cerr)
			}
		}
	}()
	if err != nil {
		return err
	}

	// Queued before the stream starts, applied on the first quantum.
	if err := audio.Configure(surface, cfg.Effects); err != nil {
		return err
	}

	if err := engine.Start(ctx); err != nil {
		return err
	}
	var recording string
	defer func() {
		if err := engine.Close(); err != nil {
			log.Errorf("Error closing audio engine: %v", err)
		} else if recording != "" {
			log.Infof("Recording saved to: %s", recording)
		}
		if n := engine.Host().Faults(); n > 0 {
			log.Warnf("Engine recovered from %d effect faults", n)
		}
	}()

	if cfg.Recording.Enabled {
		path, err := recordingPath(cfg.Recording, o.outputFile)
		if err != nil {
			return err
		}
		if err := engine.StartRecording(path); err != nil {
			return err
		}
		recording = path
	}

	if o.tui {
		logPath := filepath.Join(os.TempDir(), "fxengine.log")
		f, err := os.Create(logPath)
		if err != nil {
			return err
		}
		defer f.Close()
		log.Infof("Logging to %s while the panel is open", logPath)
		log.SetOutput(f)
		defer log.SetOutput(os.Stderr)
		return tui.RunPanel(surface, engine.Host(), cfg.Control.StatusTimeout)
	}

	log.Infof("Running, press Ctrl+C to stop")
	<-ctx.Done()
	return nil
}

type closer interface{ Close() error }

// startTransports starts the control endpoint and the analysis publisher.
// The returned closers are valid even when err is not nil.
func startTransports(cfg *config.Config, s *control.Surface, a *analysis.Analyzer) ([]closer, error) {
	var closers []closer

	if cfg.Control.Address != "" {
		wst := transport.NewWebSocketTransport(cfg.Control.Address, s)
		closers = append(closers, wst)
		if err := wst.Start(); err != nil {
			return closers, err
		}
		log.Infof("Control endpoint: ws://%s%s", wst.Addr(), transport.ControlPath)
	} else {
		lt := transport.NewLoggingTransport()
		cancel := transport.Forward(s, lt)
		closers = append(closers, closerFunc(func() error {
			cancel()
			return lt.Close()
		}))
	}

	if cfg.Transport.UDPEnabled {
		sender, err := udp.NewUDPSender(cfg.Transport.UDPTargetAddress)
		if err != nil {
			return closers, err
		}
		closers = append(closers, sender)

		pub, err := udp.NewUDPPublisher(cfg.Transport.UDPSendInterval, sender, a)
		if err != nil {
			return closers, err
		}
		pub.Start()
		closers = append(closers, pub)
		log.Infof("Publishing %d values per frame to %s every %v",
			a.FrameSize(), cfg.Transport.UDPTargetAddress, cfg.Transport.UDPSendInterval)
	}
	return closers, nil
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// recordingPath resolves the recording file inside the output directory,
// creating the directory if needed.
func recordingPath(rc config.RecordingConfig, name string) (string, error) {
	if name == "" {
		name = "recording-" + time.Now().UTC().Format("02-01-2006-150405") + "." + rc.Format
	}
	if filepath.IsAbs(name) {
		return name, nil
	}
	if err := os.MkdirAll(rc.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	return filepath.Join(rc.OutputDir, name), nil
}

func pickDevices(cfg *config.Config) error {
	devices, err := audio.HostDevices()
	if err != nil {
		return err
	}
	sel, err := tui.PickDevices(devices, tui.Selection{
		Input:  cfg.Audio.InputDevice,
		Output: cfg.Audio.OutputDevice,
	})
	if err != nil {
		return err
	}
	cfg.Audio.InputDevice = sel.Input
	cfg.Audio.OutputDevice = sel.Output
	return nil
}
