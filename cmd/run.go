package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/icco/hapticd/internal/config"
	"github.com/icco/hapticd/internal/packet"
	"github.com/icco/hapticd/internal/transport"
	"github.com/icco/hapticd/internal/tui"
)

var (
	runTUI        bool
	runNullOutput bool
	runURL        string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the game bridge and drive the shakers",
	Long: `Connect to the telemetry source and play every mapped haptic and event.

The source is wsUrl from engine.json (ws://, wss:// or tcp://). The connection
is retried with exponential backoff until the process is interrupted.

Example:
  hapticd run --config engine.json --map mappings.json --tui
`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show the live monitor")
	runCmd.Flags().BoolVar(&runNullOutput, "null-output", false, "Render without an audio device")
	runCmd.Flags().StringVar(&runURL, "url", "", "Override wsUrl from the engine config")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if runTUI {
		quietForTUI()
	}

	// The monitor program exists only after the engine is built.
	var program atomic.Pointer[tea.Program]
	observer := func(msg packet.Message, effect config.Effect) {
		p := program.Load()
		if p == nil {
			return
		}
		if line, ok := tui.MessageLine(msg, effect); ok {
			p.Send(line)
		}
	}

	opts := engineOptions{nullOutput: runNullOutput}
	if runTUI {
		opts.observer = observer
	}
	e, err := newEngine(opts)
	if err != nil {
		return err
	}
	defer e.Close()
	e.start(ctx)

	url := e.cfg.WSURL
	if runURL != "" {
		url = runURL
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- transport.Run(ctx, url, e.dispatch.HandleLine, transport.Options{
			Logger:    logger,
			OnConnect: e.setLink,
		})
	}()

	if runTUI {
		m := tui.NewMonitor(tui.MonitorOptions{
			Title:   "hapticd " + url,
			Source:  e,
			OnClick: e.dispatch.TriggerClick,
		})
		p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
		program.Store(p)
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("monitor: %w", err)
		}
		cancel()
	}

	err = <-errc
	logger.Info("shutting down", "blocks", e.sched.Stats().Blocks)
	return err
}
