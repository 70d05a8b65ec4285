package tui

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/icco/hapticd/internal/midimap"
	"github.com/icco/hapticd/internal/packet"
)

type viewMode int

const (
	browserMode viewMode = iota
	editorMode
)

const newPatternName = "new_pattern.mid"

// PatternEditor edits a one-bar step pattern stored as a MIDI file. Each
// edit is saved immediately. Playback previews the pattern through the
// haptic engine.
type PatternEditor struct {
	mode    viewMode
	browser fileBrowser

	filePath    string
	pattern     midimap.Pattern
	cursorX     int // step
	cursorY     int // lane
	isPlaying   bool
	currentStep int
	message     string

	preview func(packet.Haptic)
	width   int
	height  int
}

// NewPatternEditor opens path in the editor, or a file browser at dir when
// path is empty. preview may be nil.
func NewPatternEditor(path, dir string, preview func(packet.Haptic)) (PatternEditor, error) {
	m := PatternEditor{preview: preview}
	if path == "" {
		m.browser = newFileBrowser(dir)
		return m, nil
	}

	m.browser = newFileBrowser(filepath.Dir(path))
	if err := m.open(path); err != nil {
		return m, err
	}
	return m, nil
}

func (m *PatternEditor) open(path string) error {
	p, err := midimap.LoadPatternFile(path)
	if err != nil {
		return fmt.Errorf("load pattern: %w", err)
	}
	m.filePath = path
	m.pattern = p
	m.cursorX, m.cursorY = 0, 0
	m.isPlaying = false
	m.currentStep = 0
	m.mode = editorMode
	m.message = fmt.Sprintf("Loaded: %s", path)
	return nil
}

func (m *PatternEditor) save() {
	if err := midimap.SavePatternFile(m.filePath, m.pattern); err != nil {
		m.message = fmt.Sprintf("Error saving: %v", err)
		return
	}
	m.message = "Pattern saved"
}

// Pattern returns the pattern being edited.
func (m PatternEditor) Pattern() midimap.Pattern {
	return m.pattern
}

// Init implements tea.Model.
func (m PatternEditor) Init() tea.Cmd {
	return nil
}

func (m PatternEditor) tick() tea.Cmd {
	return tea.Tick(m.pattern.StepDuration(), func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m PatternEditor) playStep(step int) {
	if m.preview == nil {
		return
	}
	at := time.Duration(step) * m.pattern.StepDuration()
	for _, h := range m.pattern.Hits() {
		if h.At == at {
			m.preview(h.Haptic)
		}
	}
}

// Update implements tea.Model.
func (m PatternEditor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		if m.isPlaying {
			m.currentStep = (m.currentStep + 1) % midimap.Steps
			m.playStep(m.currentStep)
			return m, m.tick()
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return m, tea.Quit
		case "q":
			if m.mode == browserMode {
				return m, tea.Quit
			}
			m.mode = browserMode
			m.isPlaying = false
			m.browser.loadFiles()
			return m, nil
		}

		switch m.mode {
		case browserMode:
			return m.updateBrowser(msg)
		case editorMode:
			return m.updateEditor(msg)
		}
	}

	return m, nil
}

func (m PatternEditor) updateBrowser(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	fb := &m.browser

	switch msg.String() {
	case keyUp, "k":
		fb.moveCursor(-1, m.height)
	case keyDown, "j":
		fb.moveCursor(1, m.height)
	case "enter":
		if len(fb.files) == 0 {
			return m, nil
		}
		selected := fb.files[fb.cursor]
		if selected.isDir {
			fb.currentDir = selected.path
			fb.cursor = 0
			fb.message = ""
			fb.loadFiles()
			return m, nil
		}
		if err := m.open(selected.path); err != nil {
			fb.message = fmt.Sprintf("Error loading pattern: %v", err)
		}
	case "n":
		path := filepath.Join(fb.currentDir, newPatternName)
		m.filePath = path
		m.pattern = midimap.NewPattern()
		m.cursorX, m.cursorY = 0, 0
		m.mode = editorMode
		m.save()
	case "d":
		if len(fb.files) == 0 {
			return m, nil
		}
		selected := fb.files[fb.cursor]
		if selected.isDir {
			return m, nil
		}
		if err := os.Remove(selected.path); err != nil {
			fb.message = fmt.Sprintf("Error deleting: %v", err)
		} else {
			fb.message = fmt.Sprintf("Deleted %s", selected.name)
			fb.loadFiles()
		}
	}

	return m, nil
}

func (m PatternEditor) updateEditor(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.pattern

	switch msg.String() {
	case keyLeft, "h":
		m.cursorX = max(0, m.cursorX-1)
	case keyRight, "l":
		m.cursorX = min(midimap.Steps-1, m.cursorX+1)
	case keyUp, "k":
		m.cursorY = max(0, m.cursorY-1)
	case keyDown, "j":
		m.cursorY = min(midimap.Lanes-1, m.cursorY+1)
	case " ":
		p.Steps[m.cursorY][m.cursorX] = !p.Steps[m.cursorY][m.cursorX]
		m.save()
	case "+", "=":
		if p.BPM < midimap.MaxBPM {
			p.BPM = min(midimap.MaxBPM, p.BPM+5)
			m.save()
		}
	case "-", "_":
		if p.BPM > midimap.MinBPM {
			p.BPM = max(midimap.MinBPM, p.BPM-5)
			m.save()
		}
	case "w":
		if p.Notes[m.cursorY][m.cursorX] < 127 {
			p.Notes[m.cursorY][m.cursorX]++
			m.save()
		}
	case "s":
		if p.Notes[m.cursorY][m.cursorX] > 0 {
			p.Notes[m.cursorY][m.cursorX]--
			m.save()
		}
	case "c":
		for i := 0; i < midimap.Steps; i++ {
			p.Steps[m.cursorY][i] = false
		}
		m.save()
	case "p":
		m.isPlaying = !m.isPlaying
		if m.isPlaying {
			m.currentStep = 0
			m.playStep(0)
			return m, m.tick()
		}
	}

	return m, nil
}

// View implements tea.Model.
func (m PatternEditor) View() string {
	if m.mode == browserMode {
		return m.browser.view(m.height)
	}

	p := m.pattern
	var b strings.Builder

	b.WriteString(titleStyle.Render("Haptic Pattern Editor") + "\n\n")
	b.WriteString(fmt.Sprintf("File: %s\n", m.filePath))
	b.WriteString(fmt.Sprintf("BPM: %d (use +/- to adjust)\n", p.BPM))
	if m.preview != nil {
		b.WriteString("Preview: haptic output\n\n")
	} else {
		b.WriteString("Preview: off\n\n")
	}

	b.WriteString(renderClockBar(m.isPlaying, m.currentStep) + "\n\n")

	// 14 chars to match data rows: 8 for lane + 6 for note.
	b.WriteString("Lane    Note  ")
	hexDigits := "0123456789ABCDEF"
	for i := 0; i < midimap.Steps; i++ {
		b.WriteString(fmt.Sprintf(" %c ", hexDigits[i]))
	}
	b.WriteString("\n")

	for lane := 0; lane < midimap.Lanes; lane++ {
		label := fmt.Sprintf("L%-6d ", lane+1)
		// Safe cast: notes are kept in 0..127.
		note := fmt.Sprintf("%-5s ", midimap.NoteName(uint8(p.Notes[lane][m.cursorX]))) //nolint:gosec
		if lane == m.cursorY {
			label = selectedStyle.Render(label)
			note = selectedStyle.Render(note)
		}
		b.WriteString(label + note)

		for step := 0; step < midimap.Steps; step++ {
			cell := " · "
			if p.Steps[lane][step] {
				cell = " ● "
			}

			cellStyle := lipgloss.NewStyle().Width(3)
			if lane == m.cursorY && step == m.cursorX {
				cellStyle = cellStyle.Background(lipgloss.Color("#7D56F4"))
			}
			if m.isPlaying && step == m.currentStep {
				cellStyle = cellStyle.Bold(true)
			}
			if p.Steps[lane][step] {
				cellStyle = cellStyle.Foreground(lipgloss.Color("#FFD700"))
			} else {
				cellStyle = cellStyle.Foreground(lipgloss.Color("#666666"))
			}
			b.WriteString(cellStyle.Render(cell))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.message != "" {
		b.WriteString(errorStyle.Render(m.message) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("Navigation: ↑↓←→ or hjkl • Space: toggle step • w/s: change note (for current step)"))
	b.WriteString("\n" + helpStyle.Render("+/-: tempo • p: play/stop • c: clear lane • q: back to files"))

	return b.String()
}

func renderClockBar(isPlaying bool, currentStep int) string {
	var bar strings.Builder
	// 14 chars to align with the grid header.
	bar.WriteString("Clock         ")

	for i := 0; i < midimap.Steps; i++ {
		switch {
		case isPlaying && i == currentStep:
			bar.WriteString(lipgloss.NewStyle().
				Foreground(lipgloss.Color("#FFFFFF")).
				Background(lipgloss.Color(barColors[i])).
				Bold(true).
				Render(" ▶ "))
		case isPlaying && i < currentStep:
			bar.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(barColors[i])).Render(" █ "))
		default:
			bar.WriteString(dimStyle.Render(" · "))
		}
	}

	if isPlaying {
		bar.WriteString(statusStyle.Render(" Playing"))
	} else {
		bar.WriteString(subtitleStyle.Render(" Stopped"))
	}
	return bar.String()
}
