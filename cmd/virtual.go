package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"gitlab.com/gomidi/midi/v2/drivers"
	"gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"github.com/icco/hapticd/internal/midimap"
)

var (
	deviceName     string
	virtualNoteMs  int
	virtualNullOut bool
)

var virtualCmd = &cobra.Command{
	Use:   "virtual",
	Short: "Create a virtual MIDI input that drives the shakers",
	Long: `Create a virtual MIDI input device that other applications can play into.

Every note-on becomes a haptic packet with key midi.ch<N>.<note>, the note's
frequency and a gain from its velocity. Packets go through the mapping rules
like packets from the game; when no rule matches they play on the impacts bus.

Example:
  hapticd virtual --name "Shaker" --ms 120
`,
	Args: cobra.NoArgs,
	RunE: runVirtual,
}

func init() {
	virtualCmd.Flags().StringVarP(&deviceName, "name", "n", "hapticd Virtual Shaker", "Name for the virtual MIDI device")
	virtualCmd.Flags().IntVar(&virtualNoteMs, "ms", midimap.DefaultNoteMs, "Voice length per note")
	virtualCmd.Flags().BoolVar(&virtualNullOut, "null-output", false, "Render without an audio device")
	rootCmd.AddCommand(virtualCmd)
}

func runVirtual(cmd *cobra.Command, args []string) error {
	quietForTUI()

	e, err := newEngine(engineOptions{nullOutput: virtualNullOut})
	if err != nil {
		return err
	}
	defer e.Close()
	e.start(cmd.Context())

	m := newVirtualModel(deviceName, e)
	p := tea.NewProgram(m, tea.WithAltScreen())
	m.program = p // MIDI callbacks report through the program

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(c)
	go func() {
		<-c
		p.Send(tea.Quit())
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("virtual device: %w", err)
	}
	return m.err
}

const virtualLogLines = 10

// virtualModel shows the virtual input port and the notes it turned into
// haptic voices.
type virtualModel struct {
	deviceName string
	engine     *engine
	driver     *rtmididrv.Driver
	inPort     drivers.In
	stopFunc   func()
	active     map[string]noteDisplay // channel:note
	history    []string
	count      int
	err        error
	program    *tea.Program
}

type noteDisplay struct {
	channel  uint8
	note     uint8
	velocity uint8
}

// midiEventMsg is sent from the MIDI callback.
type midiEventMsg struct {
	on       bool
	channel  uint8
	note     uint8
	velocity uint8
}

type initResultMsg struct {
	driver *rtmididrv.Driver
	inPort drivers.In
	err    error
}

func newVirtualModel(name string, e *engine) *virtualModel {
	return &virtualModel{
		deviceName: name,
		engine:     e,
		active:     make(map[string]noteDisplay),
	}
}

func (m *virtualModel) Init() tea.Cmd {
	return m.openPort
}

func (m *virtualModel) openPort() tea.Msg {
	driver, err := rtmididrv.New()
	if err != nil {
		return initResultMsg{err: fmt.Errorf("failed to initialize MIDI driver: %w", err)}
	}
	port, err := driver.OpenVirtualIn(m.deviceName)
	if err != nil {
		driver.Close()
		return initResultMsg{err: fmt.Errorf("failed to create virtual MIDI port: %w", err)}
	}
	return initResultMsg{driver: driver, inPort: port}
}

func (m *virtualModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case initResultMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.driver = msg.driver
		m.inPort = msg.inPort
		return m, m.listen

	case midiEventMsg:
		m.record(msg)
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, m.cleanup
		case "c":
			m.engine.dispatch.TriggerClick()
			m.log("calibration click")
		}
	}

	return m, nil
}

func (m *virtualModel) listen() tea.Msg {
	stop, err := m.inPort.Listen(func(data []byte, _ int32) {
		if len(data) < 3 {
			return
		}
		channel := data[0] & 0x0F
		note, velocity := data[1], data[2]

		switch data[0] & 0xF0 {
		case 0x90:
			if velocity > 0 {
				m.engine.dispatch.Play(midimap.NoteToHaptic(channel, note, velocity, virtualNoteMs))
			}
			m.program.Send(midiEventMsg{on: velocity > 0, channel: channel, note: note, velocity: velocity})
		case 0x80:
			m.program.Send(midiEventMsg{channel: channel, note: note})
		}
	}, drivers.ListenConfig{})
	if err != nil {
		return initResultMsg{err: fmt.Errorf("failed to listen to MIDI port: %w", err)}
	}
	m.stopFunc = stop
	logger.Info("virtual midi port open", "name", m.inPort.String())
	return nil
}

func (m *virtualModel) record(msg midiEventMsg) {
	key := fmt.Sprintf("%d:%d", msg.channel, msg.note)
	if !msg.on {
		delete(m.active, key)
		return
	}
	m.active[key] = noteDisplay{channel: msg.channel, note: msg.note, velocity: msg.velocity}
	m.count++
	m.log(fmt.Sprintf("%s Ch%d %-4s vel:%-3d %.1f Hz",
		midimap.Key(msg.channel, msg.note), msg.channel+1, midimap.NoteName(msg.note), msg.velocity, midimap.NoteFreq(msg.note)))
}

func (m *virtualModel) log(line string) {
	m.history = append([]string{line}, m.history...)
	if len(m.history) > virtualLogLines {
		m.history = m.history[:virtualLogLines]
	}
}

func (m *virtualModel) cleanup() tea.Msg {
	if m.stopFunc != nil {
		m.stopFunc()
	}
	if m.inPort != nil {
		m.inPort.Close()
	}
	if m.driver != nil {
		m.driver.Close()
	}
	return tea.Quit()
}

func (m *virtualModel) View() string {
	var b strings.Builder

	titleStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("#FAFAFA")).
		Background(lipgloss.Color("#7D56F4")).
		Padding(0, 1)
	subtitleStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	statusStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#00FF00")).Bold(true)
	errorStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FF0000")).Bold(true)
	noteStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD700"))
	helpStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#626262"))
	logStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA"))

	b.WriteString(titleStyle.Render("hapticd Virtual MIDI Input") + "\n\n")

	if m.err != nil {
		b.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
		b.WriteString(helpStyle.Render("Press q to quit"))
		return b.String()
	}

	b.WriteString(subtitleStyle.Render("Device Name: ") + m.deviceName + "\n")
	if m.inPort != nil {
		b.WriteString(subtitleStyle.Render("MIDI Port: ") + statusStyle.Render(m.inPort.String()) + "\n")
	} else {
		b.WriteString(subtitleStyle.Render("MIDI Port: ") + "Initializing...\n")
	}
	b.WriteString(subtitleStyle.Render("Voices: ") + fmt.Sprintf("%d active, %d ms per note\n\n", m.engine.synth.ActiveVoices(), virtualNoteMs))

	b.WriteString(subtitleStyle.Render("Held Notes:") + "\n")
	if len(m.active) == 0 {
		b.WriteString("  (no notes held)\n")
	} else {
		held := make([]string, 0, len(m.active))
		for _, nd := range m.active {
			held = append(held, fmt.Sprintf("Ch%d:%s", nd.channel+1, midimap.NoteName(nd.note)))
		}
		sort.Strings(held)
		b.WriteString("  " + noteStyle.Render(strings.Join(held, " ")) + "\n")
	}

	b.WriteString("\n" + subtitleStyle.Render(fmt.Sprintf("Triggered: [%d total]", m.count)) + "\n")
	if len(m.history) == 0 {
		b.WriteString("  " + logStyle.Render("(waiting for input)") + "\n")
	}
	for i, line := range m.history {
		prefix := "  "
		if i == 0 {
			prefix = "▶ "
		}
		b.WriteString("  " + logStyle.Render(prefix+line) + "\n")
	}

	b.WriteString("\n" + helpStyle.Render("c: calibration click • q: quit"))
	return b.String()
}
