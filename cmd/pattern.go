package cmd

import (
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/icco/hapticd/internal/tui"
)

var (
	patternDir     string
	patternNoOut   bool
	patternNullOut bool
)

var patternCmd = &cobra.Command{
	Use:   "pattern [file.mid]",
	Short: "Edit a haptic step pattern",
	Long: `Open the step pattern editor. Patterns are one bar of sixteenth notes on four
lanes, saved as Standard MIDI Files that "hapticd play" can play back.

Without a file, a browser for .mid files in --dir is shown. Playback previews
the pattern on the shakers.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPattern,
}

func init() {
	patternCmd.Flags().StringVar(&patternDir, "dir", ".", "Directory to browse for patterns")
	patternCmd.Flags().BoolVar(&patternNoOut, "no-preview", false, "Edit without opening the audio output")
	patternCmd.Flags().BoolVar(&patternNullOut, "null-output", false, "Render previews without an audio device")
	rootCmd.AddCommand(patternCmd)
}

func runPattern(cmd *cobra.Command, args []string) error {
	quietForTUI()

	path := ""
	if len(args) == 1 {
		path = args[0]
	}

	var e *engine
	if !patternNoOut {
		var err error
		e, err = newEngine(engineOptions{nullOutput: patternNullOut})
		if err != nil {
			return err
		}
		defer e.Close()
		e.start(cmd.Context())
	}

	var m tui.PatternEditor
	var err error
	if e != nil {
		m, err = tui.NewPatternEditor(path, patternDir, e.dispatch.Play)
	} else {
		m, err = tui.NewPatternEditor(path, patternDir, nil)
	}
	if err != nil {
		return err
	}

	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		return fmt.Errorf("pattern editor: %w", err)
	}
	return nil
}
