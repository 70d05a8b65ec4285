package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

var (
	configPath string
	mapPath    string
	verbose    bool
	logFile    string
)

// logger is shared by every command. It is replaced by initLogger before any
// command runs.
var logger = log.Default()

// logOut is the open --log-file, if any.
var logOut *os.File

var rootCmd = &cobra.Command{
	Use:   "hapticd",
	Short: "A haptic engine for bass shakers",
	Long: `hapticd turns game telemetry and haptic events into low-frequency audio for
tactile transducers (bass shakers).

It connects to a game bridge over websocket or TCP, matches each message against
ordered mapping rules, synthesizes short sweeps, pulses and noise bursts plus a
continuous wind layer, and plays them on the default audio device with a small,
bounded output latency.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initLogger(verbose, logFile)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logOut != nil {
			logOut.Close()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "engine.json", "Engine config JSON")
	rootCmd.PersistentFlags().StringVar(&mapPath, "map", "mappings.json", "Mapping rules JSON")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log every dispatched voice")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
}

// initLogger configures the shared logger and makes it the package default
// so library code logging through log.Default() ends up in the same place.
func initLogger(debug bool, path string) error {
	var out io.Writer = os.Stderr
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		logOut = f
		out = f
	}

	level := log.InfoLevel
	if debug {
		level = log.DebugLevel
	}
	logger = log.NewWithOptions(out, log.Options{
		Level:           level,
		ReportTimestamp: true,
		ReportCaller:    debug,
		Prefix:          "hapticd",
	})
	log.SetDefault(logger)
	return nil
}

// quietForTUI discards logs while a full-screen program owns the terminal,
// unless they are going to a file.
func quietForTUI() {
	if logOut == nil {
		logger.SetOutput(io.Discard)
	}
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
