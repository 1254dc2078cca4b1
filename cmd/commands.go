// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
	resampling "github.com/tphakala/go-audio-resampler"

	"fxengine/internal/analysis"
	"fxengine/internal/audio"
	"fxengine/internal/config"
	"fxengine/internal/control"
	"fxengine/internal/render"
	"fxengine/internal/transport"
	"fxengine/internal/tui"
)

func newListCommand(o *options) *cobra.Command {
	var interactive bool
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List available audio devices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := audio.Initialize(); err != nil {
				return err
			}
			defer audio.Terminate()

			if !interactive {
				return audio.ListDevices(cmd.OutOrStdout())
			}
			devices, err := audio.HostDevices()
			if err != nil {
				return err
			}
			sel, err := tui.PickDevices(devices, tui.Selection{Input: config.DefaultDeviceID, Output: config.DefaultDeviceID})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "--input %d --output %d\n", sel.Input, sel.Output)
			return nil
		},
	}
	listCmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Browse devices and print the flags for the selection")
	return listCmd
}

var qualityPresets = map[string]resampling.QualityPreset{
	"quick":    resampling.QualityQuick,
	"low":      resampling.QualityLow,
	"medium":   resampling.QualityMedium,
	"high":     resampling.QualityHigh,
	"veryhigh": resampling.QualityVeryHigh,
}

func newRenderCommand(o *options) *cobra.Command {
	renderCmd := &cobra.Command{
		Use:   "render <input.wav> <output.wav>",
		Short: "Process a WAV file through the effect chain",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, o)
			if err != nil {
				return err
			}
			quality, ok := qualityPresets[strings.ToLower(o.quality)]
			if !ok {
				return fmt.Errorf("unknown resampling quality %q", o.quality)
			}
			bitDepth := cfg.Recording.BitDepth
			if cmd.Flags().Changed("bit-depth") {
				bitDepth = o.bitDepth
			}
			var sampleRate int
			if cmd.Flags().Changed("sample-rate") {
				sampleRate = int(cfg.Audio.SampleRate)
			}

			opts := render.Options{
				Input:      args[0],
				Output:     args[1],
				SampleRate: sampleRate,
				BitDepth:   bitDepth,
				Gain:       o.gain,
				Quality:    quality,
				Effects:    cfg.Effects,
			}

			var analyzer *analysis.Analyzer
			if o.analyze {
				window, _ := analysis.ParseWindowFunc(cfg.Audio.FFTWindow)
				rate := float64(sampleRate)
				if rate == 0 {
					_, inRate, err := render.ReadWAV(args[0])
					if err != nil {
						return err
					}
					rate = float64(inRate)
				}
				analyzer, err = analysis.NewAnalyzer(cfg.Audio.FFTSize, rate, window)
				if err != nil {
					return err
				}
				opts.Sinks = append(opts.Sinks, analyzer)
			}

			res, err := render.Render(cmd.Context(), opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s: %d frames at %d Hz (source %d Hz), peak %.3f\n",
				args[1], res.Frames, res.SampleRate, res.InputRate, res.Peak)
			if res.Faults > 0 {
				fmt.Fprintf(w, "%d effect faults recovered\n", res.Faults)
			}
			if analyzer != nil {
				printBands(w, analyzer)
			}
			return nil
		},
	}

	f := renderCmd.Flags()
	f.Float64VarP(&o.sampleRate, "sample-rate", "s", 0, "Engine sample rate in Hz (default keeps the input rate)")
	f.Float64VarP(&o.gain, "gain", "g", 1, "Linear output gain")
	f.IntVarP(&o.bitDepth, "bit-depth", "b", config.DefaultBitDepth, "Output bit depth, 16 or 24")
	f.StringVarP(&o.quality, "quality", "q", "high", "Resampling quality: quick, low, medium, high or veryhigh")
	f.BoolVarP(&o.analyze, "analyze", "a", false, "Print the EQ band energies of the last analysis frame")
	addEffectFlags(renderCmd, o)
	return renderCmd
}

func printBands(w io.Writer, a *analysis.Analyzer) {
	energies := a.BandEnergies()
	fmt.Fprintf(w, "\nBand energies (%s window, %d bins)\n", a.Window(), a.Bins())
	for i, e := range energies {
		lo, hi := a.BandRange(i)
		fmt.Fprintf(w, "  %6.0f - %6.0f Hz  %10.4f\n", lo, hi, e)
	}
}

func newStatusCommand(o *options) *cobra.Command {
	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Query a running engine over its control endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, o)
			if err != nil {
				return err
			}
			timeout := time.Duration(o.timeout * float64(time.Second))
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			status, err := queryStatus(ctx, cfg.Control.Address)
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(status)
		},
	}
	statusCmd.Flags().StringVar(&o.addr, "addr", config.DefaultControlAddr, "Control endpoint address")
	statusCmd.Flags().Float64VarP(&o.timeout, "timeout", "t", 2, "Seconds to wait for a reply")
	return statusCmd
}

// queryStatus sends get_status and returns the raw status_response,
// skipping any broadcasts that arrive first.
func queryStatus(ctx context.Context, addr string) (json.RawMessage, error) {
	if strings.HasPrefix(addr, ":") {
		addr = "localhost" + addr
	}
	u := url.URL{Scheme: "ws", Host: addr, Path: transport.ControlPath}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("connecting to %s: %w", u.String(), err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
		conn.SetWriteDeadline(deadline)
	}
	if err := conn.WriteJSON(map[string]string{"type": string(control.TypeGetStatus)}); err != nil {
		return nil, err
	}

	for {
		var msg json.RawMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return nil, err
		}
		var head struct {
			Type  control.MessageType `json:"type"`
			Error string              `json:"error"`
		}
		if err := json.Unmarshal(msg, &head); err != nil {
			return nil, err
		}
		switch head.Type {
		case control.TypeStatusResponse:
			return msg, nil
		case control.TypeError:
			return nil, fmt.Errorf("engine: %s", head.Error)
		}
	}
}
