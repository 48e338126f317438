package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// LogsPanel shows the coordination log in a scrollable viewport. It follows
// the tail until the user scrolls up.
type LogsPanel struct {
	view    viewport.Model
	lines   int
	lastSeq int64

	timeStyle  lipgloss.Style
	agentStyle lipgloss.Style
	okStyle    lipgloss.Style
	warnStyle  lipgloss.Style
	errorStyle lipgloss.Style
	infoStyle  lipgloss.Style
}

// NewLogsPanel creates an empty LogsPanel.
func NewLogsPanel() *LogsPanel {
	return &LogsPanel{
		view: viewport.New(80, 18),

		timeStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		agentStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("63")),
		okStyle:    lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		warnStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		errorStyle: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		infoStyle:  lipgloss.NewStyle().Foreground(lipgloss.Color("244")),
	}
}

// SetSize resizes the viewport.
func (p *LogsPanel) SetSize(width, height int) {
	p.view.Width = width
	p.view.Height = height
}

// SetEvents replaces the content when new events arrived. trimmed is the
// number of events already dropped by retention.
func (p *LogsPanel) SetEvents(events []models.CoordinationEvent, trimmed int) {
	var last int64
	if n := len(events); n > 0 {
		last = events[n-1].Seq
	}
	if last == p.lastSeq && len(events) == p.lines {
		return
	}
	follow := p.view.AtBottom() || p.lines == 0

	var b strings.Builder
	if trimmed > 0 {
		b.WriteString(p.infoStyle.Render(fmt.Sprintf("… %d earlier event(s) trimmed", trimmed)))
		b.WriteString("\n")
	}
	for _, ev := range events {
		b.WriteString(p.formatEvent(ev))
		b.WriteString("\n")
	}
	p.view.SetContent(strings.TrimRight(b.String(), "\n"))
	p.lines = len(events)
	p.lastSeq = last
	if follow {
		p.view.GotoBottom()
	}
}

// Len returns the number of events shown.
func (p *LogsPanel) Len() int {
	return p.lines
}

func (p *LogsPanel) formatEvent(ev models.CoordinationEvent) string {
	style := p.infoStyle
	switch ev.Type {
	case models.EventTaskCompleted, models.EventConflictResolved, models.EventIntegrated:
		style = p.okStyle
	case models.EventTaskFailed, models.EventPhaseError:
		style = p.errorStyle
	case models.EventFreshStart, models.EventAlternativeApproach, models.EventCheckpointRequest,
		models.EventPlannerWakeup, models.EventVCSDegraded, models.EventTaskUnallocated:
		style = p.warnStyle
	}
	line := p.timeStyle.Render(ev.Time.Local().Format("15:04:05")) + " " + style.Render(string(ev.Type))
	if ev.AgentID != "" {
		line += " " + p.agentStyle.Render(ev.AgentID)
	}
	if ev.Message != "" {
		line += " " + ev.Message
	}
	return line
}

// Update forwards scrolling keys to the viewport.
func (p *LogsPanel) Update(msg tea.Msg) (*LogsPanel, tea.Cmd) {
	var cmd tea.Cmd
	p.view, cmd = p.view.Update(msg)
	return p, cmd
}

// View renders the viewport.
func (p *LogsPanel) View() string {
	return p.view.View()
}
