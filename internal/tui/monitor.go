package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/icco/hapticd/internal/audio"
	"github.com/icco/hapticd/internal/dispatch"
	"github.com/icco/hapticd/internal/packet"
)

// DefaultPollInterval is how often the monitor refreshes its snapshot.
const DefaultPollInterval = 100 * time.Millisecond

const depthBarCells = 16

// Snapshot is the engine state shown by the monitor.
type Snapshot struct {
	SampleRate int
	Clock      int64
	Voices     int
	Wind       audio.WindState
	Telemetry  packet.Telemetry
	Render     audio.SchedulerStats
	Messages   dispatch.Stats
	Link       string
}

// Source provides snapshots. It is polled from the program's goroutine.
type Source interface {
	Snapshot() Snapshot
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Snapshot

// Snapshot calls f.
func (f SourceFunc) Snapshot() Snapshot { return f() }

// MonitorOptions configures a Monitor.
type MonitorOptions struct {
	Title        string
	Source       Source
	PollInterval time.Duration

	// OnClick plays the calibration click; the c key is disabled when nil.
	OnClick func()
}

// Monitor shows live engine state and the dispatched message log.
type Monitor struct {
	opts    MonitorOptions
	snap    Snapshot
	history History
	width   int
	height  int
}

// NewMonitor creates a monitor model.
func NewMonitor(opts MonitorOptions) *Monitor {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.Title == "" {
		opts.Title = "hapticd"
	}
	m := &Monitor{opts: opts}
	m.refresh()
	return m
}

func (m *Monitor) refresh() {
	if m.opts.Source != nil {
		m.snap = m.opts.Source.Snapshot()
	}
}

func (m *Monitor) tick() tea.Cmd {
	return tea.Tick(m.opts.PollInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init starts polling.
func (m *Monitor) Init() tea.Cmd {
	return m.tick()
}

// Update handles ticks, log lines and keys.
func (m *Monitor) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		m.refresh()
		return m, m.tick()

	case MessageMsg:
		m.history.Add(string(msg))
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		case "c":
			if m.opts.OnClick != nil {
				m.opts.OnClick()
				m.history.Add("calibration click")
			}
		}
	}

	return m, nil
}

// View renders the monitor.
func (m *Monitor) View() string {
	s := m.snap
	var b strings.Builder

	b.WriteString(titleStyle.Render(m.opts.Title) + "\n\n")

	link := s.Link
	if link == "" {
		link = "(not connected)"
	}
	b.WriteString(subtitleStyle.Render("Source: ") + link + "\n")

	seconds := 0.0
	if s.SampleRate > 0 {
		seconds = float64(s.Clock) / float64(s.SampleRate)
	}
	b.WriteString(subtitleStyle.Render("Clock: ") +
		valueStyle.Render(fmt.Sprintf("%d", s.Clock)) +
		fmt.Sprintf(" (%.1fs)", seconds) + "\n")
	b.WriteString(subtitleStyle.Render("Voices: ") + valueStyle.Render(fmt.Sprintf("%d", s.Voices)) + "\n")

	wind := "off"
	if s.Wind.Enabled {
		wind = fmt.Sprintf("on  gain:%.2f pan:%+.2f bus:%s", s.Wind.Gain, s.Wind.Pan, s.Wind.Bus)
	}
	b.WriteString(subtitleStyle.Render("Wind: ") + wind + "\n")

	flight := ""
	if s.Telemetry.FlightActive {
		flight = statusStyle.Render(" flying")
	}
	b.WriteString(subtitleStyle.Render("Telemetry: ") +
		fmt.Sprintf("speed:%.1f accel:%.1f", s.Telemetry.Speed, s.Telemetry.Accel) + flight + "\n\n")

	b.WriteString(renderDepthBar(s.Render.Buffered, s.Render.TargetBytes) + "\n")
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("Blocks: %d  write errors: %d", s.Render.Blocks, s.Render.WriteErrors)) + "\n")

	st := s.Messages
	b.WriteString(subtitleStyle.Render(fmt.Sprintf(
		"Messages: telemetry:%d haptic:%d event:%d triggered:%d dropped:%d invalid:%d",
		st.Telemetry, st.Haptic, st.Event, st.Triggered, st.Dropped, st.Invalid)) + "\n\n")

	b.WriteString(m.history.render("Message Log", 10))

	help := "q: quit"
	if m.opts.OnClick != nil {
		help = "c: calibration click • " + help
	}
	b.WriteString("\n" + helpStyle.Render(help))

	return b.String()
}

// renderDepthBar draws queued output against twice the target depth, so a
// steady state sits around the middle of the bar.
func renderDepthBar(buffered, target int) string {
	var bar strings.Builder
	bar.WriteString("Buffer ")

	filled := 0
	if target > 0 {
		filled = min(depthBarCells, buffered*depthBarCells/(2*target))
	}
	for i := 0; i < depthBarCells; i++ {
		if i < filled {
			bar.WriteString(lipgloss.NewStyle().Foreground(lipgloss.Color(barColors[i])).Render("█"))
		} else {
			bar.WriteString(dimStyle.Render("·"))
		}
	}

	status := fmt.Sprintf(" %d/%d bytes", buffered, target)
	style := statusStyle
	if buffered == 0 {
		style = errorStyle
		status += " underrun"
	}
	bar.WriteString(style.Render(status))
	return bar.String()
}
