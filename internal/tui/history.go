package tui

import (
	"fmt"
	"strings"

	"github.com/icco/hapticd/internal/config"
	"github.com/icco/hapticd/internal/packet"
)

const maxMessageHistory = 20

// History keeps the most recent log lines, newest first.
type History struct {
	lines []string
	total int
}

// Add records a line.
func (h *History) Add(line string) {
	if line == "" {
		return
	}
	h.total++
	h.lines = append([]string{line}, h.lines...)
	if len(h.lines) > maxMessageHistory {
		h.lines = h.lines[:maxMessageHistory]
	}
}

// Lines returns up to n lines, newest first.
func (h *History) Lines(n int) []string {
	return h.lines[:min(n, len(h.lines))]
}

// Total is the number of lines ever added.
func (h *History) Total() int {
	return h.total
}

func (h *History) render(title string, n int) string {
	var b strings.Builder
	b.WriteString(subtitleStyle.Render(fmt.Sprintf("%s: [%d total]", title, h.total)) + "\n")

	lines := h.Lines(n)
	if len(lines) == 0 {
		b.WriteString("  " + logStyle.Render("(waiting for input)") + "\n")
		return b.String()
	}
	for i, line := range lines {
		if i == 0 {
			b.WriteString("  " + logHighlightStyle.Render("▶ "+line) + "\n")
		} else {
			b.WriteString("  " + logStyle.Render("  "+line) + "\n")
		}
	}
	return b.String()
}

// MessageMsg is a log line sent to a running program.
type MessageMsg string

// MessageLine describes a dispatched message for the log. Telemetry is
// reported through the status panel instead and yields false.
func MessageLine(msg packet.Message, effect config.Effect) (MessageMsg, bool) {
	switch m := msg.(type) {
	case packet.Haptic:
		return MessageMsg(fmt.Sprintf("haptic  %-20s %-10s bus:%s gain:%.2f",
			m.Key, effect.Mode, effect.Bus, m.Gain)), true
	case packet.Event:
		return MessageMsg(fmt.Sprintf("event   %-20s %-10s intensity:%.2f",
			m.Kind, effect.Mode, m.Intensity)), true
	case packet.Telemetry:
		return "", false
	default:
		return MessageMsg(fmt.Sprintf("ignored type:%q", msg.Type())), true
	}
}
