// SPDX-License-Identifier: MIT
package cmd

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/spf13/cobra"

	"fxengine/internal/build"
	"fxengine/internal/config"
	"fxengine/internal/log"
)

// options holds flag values. Flags only override the configuration when
// they are set explicitly.
type options struct {
	configPath string
	logLevel   string
	debug      bool

	// run
	inputDevice  int
	outputDevice int
	sampleRate   float64
	lowLatency   bool
	record       bool
	outputFile   string
	addr         string
	udp          bool
	tui          bool
	pick         bool

	// run and render
	effects []string
	preset  string
	set     map[string]string

	// render
	gain     float64
	bitDepth int
	quality  string
	analyze  bool

	// status
	timeout float64
}

// Execute runs the command line until ctx is cancelled or the chosen
// command returns.
func Execute(ctx context.Context, args []string) error {
	root := NewRootCommand()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// NewRootCommand builds the command tree. The root command runs the live
// engine.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&options{})
}

func newRootCommand(o *options) *cobra.Command {
	info := build.Get()

	rootCmd := &cobra.Command{
		Use:           info.Name,
		Short:         info.Description,
		Version:       info.String(),
		SilenceErrors: true,
		SilenceUsage:  true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd:   true,
			DisableDescriptions: true,
			DisableNoDescFlag:   true,
			HiddenDefaultCmd:    true,
		},
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, o)
			if err != nil {
				return err
			}
			return runEngine(cmd.Context(), cfg, o)
		},
	}
	rootCmd.SetHelpCommand(&cobra.Command{Hidden: true})

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&o.configPath, "config", "c", "", "Path to a YAML configuration file (default ./config.yaml)")
	pf.StringVar(&o.logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	pf.BoolVarP(&o.debug, "verbose", "v", false, "Show verbose output")

	f := rootCmd.Flags()
	f.IntVarP(&o.inputDevice, "input", "i", config.DefaultDeviceID,
		"Input device ID. Use the 'list' command to see available devices.")
	f.IntVarP(&o.outputDevice, "output", "o", config.DefaultDeviceID,
		"Output device ID. Use the 'list' command to see available devices.")
	f.Float64VarP(&o.sampleRate, "sample-rate", "s", config.DefaultSampleRate, "Sample rate, measured in Hertz (Hz)")
	f.BoolVarP(&o.lowLatency, "low-latency", "l", false, "Use the devices' low latency settings")
	f.BoolVarP(&o.record, "record", "r", false, "Record the processed output")
	f.StringVar(&o.outputFile, "output-file", "", "Recording file name (default recording-DD-MM-YYYY-HHMMSS.wav in the output directory)")
	f.StringVar(&o.addr, "addr", config.DefaultControlAddr, "WebSocket control address, empty to disable")
	f.BoolVar(&o.udp, "udp", false, "Publish analysis frames over UDP")
	f.BoolVar(&o.tui, "tui", false, "Show the interactive control panel")
	f.BoolVar(&o.pick, "pick", false, "Choose the input and output devices interactively")
	addEffectFlags(rootCmd, o)

	rootCmd.AddCommand(newListCommand(o), newRenderCommand(o), newStatusCommand(o))
	return rootCmd
}

func addEffectFlags(cmd *cobra.Command, o *options) {
	f := cmd.Flags()
	f.StringSliceVarP(&o.effects, "effects", "e", nil, "Effects to enable: eq, bassBoost, pitchShift, loFi")
	f.StringVarP(&o.preset, "preset", "p", "", "EQ preset: flat, rock, pop, jazz, classical or electronic")
	f.StringToStringVar(&o.set, "set", nil, "Initial parameter values, e.g. --set bassBoost=6,eq_1khz=-3")
}

// loadConfig reads the configuration file and environment, applies flags
// that were set on cmd and configures logging.
func loadConfig(cmd *cobra.Command, o *options) (*config.Config, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := applyFlags(cmd, o, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	level, _ := log.ParseLevel(cfg.LogLevel)
	if cfg.Debug {
		level = log.LevelDebug
	}
	log.SetLevel(level)
	return cfg, nil
}

func applyFlags(cmd *cobra.Command, o *options, cfg *config.Config) error {
	changed := func(name string) bool {
		f := cmd.Flags().Lookup(name)
		return f != nil && f.Changed
	}

	if changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if changed("verbose") {
		cfg.Debug = o.debug
	}
	if changed("input") {
		cfg.Audio.InputDevice = o.inputDevice
	}
	if changed("output") {
		cfg.Audio.OutputDevice = o.outputDevice
	}
	if changed("sample-rate") {
		cfg.Audio.SampleRate = o.sampleRate
	}
	if changed("low-latency") {
		cfg.Audio.LowLatency = o.lowLatency
	}
	if changed("record") {
		cfg.Recording.Enabled = o.record
	}
	if changed("addr") {
		cfg.Control.Address = o.addr
	}
	if changed("udp") {
		cfg.Transport.UDPEnabled = o.udp
	}
	if changed("effects") {
		cfg.Effects.Enabled = o.effects
	}
	if changed("preset") {
		cfg.Effects.EQPreset = o.preset
	}
	if changed("set") {
		if cfg.Effects.Parameters == nil {
			cfg.Effects.Parameters = make(map[string]float64, len(o.set))
		}
		names := make([]string, 0, len(o.set))
		for name := range o.set {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			v, err := strconv.ParseFloat(o.set[name], 64)
			if err != nil {
				return fmt.Errorf("--set %s: %w", name, err)
			}
			cfg.Effects.Parameters[name] = v
		}
	}
	return nil
}
