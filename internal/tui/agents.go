package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// AgentRow is the display data for one agent.
type AgentRow struct {
	ID          string
	Role        models.Role
	Status      models.AgentStatus
	TaskTitle   string
	Completed   int
	SuccessRate float64
	Drifting    bool
}

// AgentsPanel lists agents one per line.
type AgentsPanel struct {
	rows  []AgentRow
	width int

	roleStyle    lipgloss.Style
	idleStyle    lipgloss.Style
	errorStyle   lipgloss.Style
	stoppedStyle lipgloss.Style
	warnStyle    lipgloss.Style
	emptyStyle   lipgloss.Style
}

// NewAgentsPanel creates an empty AgentsPanel.
func NewAgentsPanel() *AgentsPanel {
	return &AgentsPanel{
		width: 80,

		roleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("63")).
			Bold(true).
			Width(12),
		idleStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("244")),
		errorStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		stoppedStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		warnStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")),
		emptyStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true),
	}
}

// SetAgents rebuilds the rows from a snapshot.
func (p *AgentsPanel) SetAgents(agents []*models.Agent, tasks []models.SwarmTask) {
	titles := make(map[string]string, len(tasks))
	for _, t := range tasks {
		titles[t.ID] = t.Title
	}
	p.rows = make([]AgentRow, 0, len(agents))
	for _, a := range agents {
		p.rows = append(p.rows, AgentRow{
			ID:          a.ID,
			Role:        a.Role,
			Status:      a.Status,
			TaskTitle:   titles[a.CurrentTaskID],
			Completed:   a.Performance.TasksCompleted,
			SuccessRate: a.Performance.SuccessRate,
			Drifting:    a.Performance.DriftDetected,
		})
	}
}

// Rows returns the current rows.
func (p *AgentsPanel) Rows() []AgentRow {
	return p.rows
}

// SetWidth sets the render width.
func (p *AgentsPanel) SetWidth(width int) {
	p.width = width
}

// View renders the panel. busy is prefixed to active agents.
func (p *AgentsPanel) View(busy string) string {
	if len(p.rows) == 0 {
		return p.emptyStyle.Render("No agents") + "\n"
	}

	var b strings.Builder
	for _, r := range p.rows {
		var status string
		switch r.Status {
		case models.AgentStatusActive:
			status = busy + " working"
		case models.AgentStatusError:
			status = p.errorStyle.Render("✗ error")
		case models.AgentStatusStopped:
			status = p.stoppedStyle.Render("■ stopped")
		default:
			status = p.idleStyle.Render("· " + string(r.Status))
		}

		line := p.roleStyle.Render(string(r.Role)) + " " + padRight(status, 12)
		line += fmt.Sprintf(" %3d done %4.0f%%", r.Completed, r.SuccessRate*100)
		if r.Drifting {
			line += " " + p.warnStyle.Render("drifting")
		}
		if r.TaskTitle != "" {
			line += "  " + p.idleStyle.Render(r.TaskTitle)
		}
		b.WriteString(truncateStyled(line, p.width))
		b.WriteString("\n")
	}
	return b.String()
}

func padRight(s string, width int) string {
	if w := lipgloss.Width(s); w < width {
		return s + strings.Repeat(" ", width-w)
	}
	return s
}

// truncateStyled cuts a styled line to width cells.
func truncateStyled(s string, width int) string {
	if width <= 0 || lipgloss.Width(s) <= width {
		return s
	}
	return lipgloss.NewStyle().MaxWidth(width).Render(s)
}
