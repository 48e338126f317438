package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/swarmer/internal/swarm"
	"github.com/ShayCichocki/swarmer/pkg/models"
)

// reportStyles renders the end-of-run report.
type reportStyles struct {
	box     lipgloss.Style
	header  lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	success lipgloss.Style
	warning lipgloss.Style
	failure lipgloss.Style
	muted   lipgloss.Style
}

func newReportStyles() reportStyles {
	return reportStyles{
		box: lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("238")).
			Padding(0, 1),
		header: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).
			BorderForeground(lipgloss.Color("238")).
			MarginBottom(1),
		label: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")).
			Width(13),
		value: lipgloss.NewStyle().
			Foreground(lipgloss.Color("252")).
			Bold(true),
		success: lipgloss.NewStyle().Foreground(lipgloss.Color("34")),
		warning: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		failure: lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		muted:   lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
	}
}

func (s reportStyles) status(st models.SwarmStatus) string {
	switch st {
	case models.SwarmStatusCompleted:
		return s.success.Render(string(st))
	case models.SwarmStatusFailed:
		return s.failure.Render(string(st))
	default:
		return s.warning.Render(string(st))
	}
}

func (s reportStyles) row(label, value string) string {
	return s.label.Render(label) + value + "\n"
}

// renderReport draws the report and a per-agent breakdown from the final snapshot.
func renderReport(r *swarm.Report, snap models.SwarmState) string {
	s := newReportStyles()
	var b strings.Builder

	b.WriteString(s.header.Render("Swarm " + r.SwarmID))
	b.WriteString("\n")
	b.WriteString(s.row("Status", s.status(r.Status)))
	b.WriteString(s.row("Duration", s.value.Render(r.Duration.Round(time.Second).String())))
	b.WriteString(s.row("Completed", s.success.Render(fmt.Sprint(len(r.Completed)))))
	b.WriteString(s.row("Failed", countStyle(s, len(r.Failed), s.failure).Render(fmt.Sprint(len(r.Failed)))))
	if len(r.Unallocated) > 0 {
		b.WriteString(s.row("Unallocated", s.warning.Render(fmt.Sprint(len(r.Unallocated)))))
	}
	if len(r.Skipped) > 0 {
		b.WriteString(s.row("Skipped", s.warning.Render(fmt.Sprint(len(r.Skipped)))))
	}
	b.WriteString(s.row("Tokens", s.value.Render(formatNumber(r.Tokens))))
	if snap.Performance.Throughput > 0 {
		b.WriteString(s.row("Throughput", s.value.Render(fmt.Sprintf("%.3f tasks/s", snap.Performance.Throughput))))
	}

	if len(snap.Agents) > 0 {
		b.WriteString("\n")
		for _, a := range snap.Agents {
			p := a.Performance
			line := fmt.Sprintf("%-11s %s  %d done, success %.0f%%", a.Role, a.ID, p.TasksCompleted, p.SuccessRate*100)
			if p.DriftDetected {
				line += s.warning.Render("  drifting")
			}
			b.WriteString(line + "\n")
		}
	}

	if len(r.Errors) > 0 {
		b.WriteString("\n")
		for _, err := range r.Errors {
			b.WriteString(s.failure.Render("✗ ") + err.Error() + "\n")
		}
	}
	if r.Partial {
		b.WriteString("\n" + s.muted.Render("Partial result: not every task completed.") + "\n")
	}

	return s.box.Render(strings.TrimRight(b.String(), "\n"))
}

func countStyle(s reportStyles, n int, bad lipgloss.Style) lipgloss.Style {
	if n == 0 {
		return s.value
	}
	return bad
}

// formatNumber groups thousands: 1234567 -> 1,234,567.
func formatNumber(n int64) string {
	str := fmt.Sprint(n)
	if n < 0 {
		return "-" + formatNumber(-n)
	}
	var b strings.Builder
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(c)
	}
	return b.String()
}

func formatDuration(d time.Duration) string {
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	default:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
}
