package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/icco/hapticd/internal/packet"
	"github.com/icco/hapticd/internal/transport"
)

var (
	replayRealtime   bool
	replayNullOutput bool
)

var replayCmd = &cobra.Command{
	Use:   "replay <file|->",
	Short: "Play a captured JSONL session",
	Long: `Feed a file of JSON lines (one message per line, as sent by the game bridge)
through the mapping rules and synth, then wait for the last voice to finish.

With --realtime the "t" timestamps (epoch milliseconds) are honored so the
session plays back at its original pace.

Example:
  hapticd replay session.jsonl --realtime
  nc -l 7117 | hapticd replay -
`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	replayCmd.Flags().BoolVar(&replayRealtime, "realtime", false, "Pace lines by their \"t\" timestamps")
	replayCmd.Flags().BoolVar(&replayNullOutput, "null-output", false, "Render without an audio device")
	rootCmd.AddCommand(replayCmd)
}

func runReplay(cmd *cobra.Command, args []string) error {
	var in io.Reader = os.Stdin
	if args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open replay: %w", err)
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEngine(engineOptions{nullOutput: replayNullOutput})
	if err != nil {
		return err
	}
	defer e.Close()
	e.start(ctx)

	handle := e.dispatch.HandleLine
	if replayRealtime {
		handle = pacer(ctx, handle)
	}

	start := time.Now()
	if err := transport.ReadLines(ctx, in, handle); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read replay: %w", err)
	}

	e.drain(ctx, 10*time.Second)
	st := e.dispatch.Stats()
	logger.Info("replay done", "elapsed", time.Since(start).Round(time.Millisecond),
		"haptic", st.Haptic, "event", st.Event, "telemetry", st.Telemetry, "triggered", st.Triggered, "invalid", st.Invalid)
	return nil
}

// pacer delays each line so that the gaps between "t" timestamps are kept.
// Lines without a timestamp pass straight through.
func pacer(ctx context.Context, next transport.Handler) transport.Handler {
	var first time.Time
	var began time.Time

	return func(line []byte) {
		if ts, ok := packet.Timestamp(line); ok {
			if first.IsZero() {
				first, began = ts, time.Now()
			}
			wait := time.Until(began.Add(ts.Sub(first)))
			if wait > 0 {
				select {
				case <-ctx.Done():
					return
				case <-time.After(wait):
				}
			}
		}
		next(line)
	}
}
