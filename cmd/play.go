package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/icco/hapticd/internal/midimap"
)

var (
	playNoteMs  int
	playLoops   int
	playNullOut bool
)

var playCmd = &cobra.Command{
	Use:   "play <file.mid>",
	Short: "Play a MIDI file on the shakers",
	Long: `Play every note of a Standard MIDI File as a haptic voice.

The whole file is scheduled on the sample clock up front, so timing does not
depend on the process being woken up on time.

Example:
  hapticd play groove.mid --loops 4
`,
	Args: cobra.ExactArgs(1),
	RunE: runPlay,
}

func init() {
	playCmd.Flags().IntVar(&playNoteMs, "ms", midimap.DefaultNoteMs, "Voice length for notes without a note-off")
	playCmd.Flags().IntVar(&playLoops, "loops", 1, "Number of times to play the file")
	playCmd.Flags().BoolVar(&playNullOut, "null-output", false, "Render without an audio device")
	rootCmd.AddCommand(playCmd)
}

func runPlay(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open midi file: %w", err)
	}
	hits, err := midimap.ReadPattern(f, playNoteMs)
	f.Close()
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		return fmt.Errorf("%s: no notes", args[0])
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	e, err := newEngine(engineOptions{nullOutput: playNullOut})
	if err != nil {
		return err
	}
	defer e.Close()
	e.start(ctx)

	length := midimap.Length(hits)
	logger.Info("playing", "file", args[0], "notes", len(hits), "length", length, "loops", playLoops)

	for i := 0; i < max(1, playLoops); i++ {
		for _, p := range midimap.Schedule(hits) {
			e.dispatch.Play(p)
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(length):
		}
	}

	e.drain(ctx, 5*time.Second)
	return nil
}
