package cmd

import (
	"context"
	"time"

	"github.com/spf13/cobra"
)

var clickNullOutput bool

var clickCmd = &cobra.Command{
	Use:   "click",
	Short: "Play a calibration click and exit",
	Long: `Play a short 60 Hz to 30 Hz sweep on the impacts bus so you can check wiring,
levels and latency without a game running.`,
	Args: cobra.NoArgs,
	RunE: runClick,
}

func init() {
	clickCmd.Flags().BoolVar(&clickNullOutput, "null-output", false, "Render without an audio device")
	rootCmd.AddCommand(clickCmd)
}

func runClick(cmd *cobra.Command, args []string) error {
	e, err := newEngine(engineOptions{nullOutput: clickNullOutput})
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	e.start(ctx)

	e.dispatch.TriggerClick()
	time.Sleep(250 * time.Millisecond)
	return nil
}
