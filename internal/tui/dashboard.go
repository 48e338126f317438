package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ShayCichocki/swarmer/pkg/models"
)

// Source is what the dashboard observes. *swarm.Swarm satisfies it.
type Source interface {
	Snapshot() models.SwarmState
	Done() <-chan struct{}
}

// View tab indices.
const (
	TabMain = 0
	TabLogs = 1
)

// DefaultRefreshInterval is how often the snapshot is re-read.
const DefaultRefreshInterval = 500 * time.Millisecond

type refreshMsg struct{}

type doneMsg struct{}

type stopSignalMsg struct{}

// stopSignaller is implemented by sources that can be asked to stop from
// outside the dashboard, such as a signal file.
type stopSignaller interface {
	StopRequested() <-chan struct{}
}

// Option configures a Dashboard.
type Option func(*Dashboard)

// WithRefreshInterval overrides DefaultRefreshInterval.
func WithRefreshInterval(d time.Duration) Option {
	return func(db *Dashboard) {
		if d > 0 {
			db.interval = d
		}
	}
}

// Dashboard is the bubbletea model for a running swarm.
type Dashboard struct {
	src      Source
	interval time.Duration

	state   models.SwarmState
	spinner spinner.Model
	agents  *AgentsPanel
	logs    *LogsPanel

	activeTab     int
	width         int
	height        int
	finished      bool
	stopRequested bool

	titleStyle    lipgloss.Style
	labelStyle    lipgloss.Style
	progressFull  lipgloss.Style
	progressEmpty lipgloss.Style
	failStyle     lipgloss.Style
	hintStyle     lipgloss.Style
	doneStyle     lipgloss.Style
}

// NewDashboard creates a Dashboard over src.
func NewDashboard(src Source, opts ...Option) *Dashboard {
	d := &Dashboard{
		src:      src,
		interval: DefaultRefreshInterval,
		spinner:  spinner.New(spinner.WithSpinner(spinner.Dot)),
		agents:   NewAgentsPanel(),
		logs:     NewLogsPanel(),
		width:    80,
		height:   24,

		titleStyle: lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")),
		labelStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("245")),
		progressFull: lipgloss.NewStyle().
			Foreground(lipgloss.Color("34")),
		progressEmpty: lipgloss.NewStyle().
			Foreground(lipgloss.Color("238")),
		failStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")),
		hintStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")),
		doneStyle: lipgloss.NewStyle().
			Foreground(lipgloss.Color("28")).
			Bold(true),
	}
	for _, opt := range opts {
		opt(d)
	}
	d.spinner.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("63"))
	d.state = src.Snapshot()
	d.sync()
	return d
}

// StopRequested reports whether the operator quit the dashboard.
func (d *Dashboard) StopRequested() bool {
	return d.stopRequested
}

// Finished reports whether the swarm finished while the dashboard was open.
func (d *Dashboard) Finished() bool {
	return d.finished
}

// Init implements tea.Model.
func (d *Dashboard) Init() tea.Cmd {
	cmds := []tea.Cmd{d.spinner.Tick, d.scheduleRefresh(), waitDone(d.src)}
	if st, ok := d.src.(stopSignaller); ok {
		cmds = append(cmds, func() tea.Msg {
			<-st.StopRequested()
			return stopSignalMsg{}
		})
	}
	return tea.Batch(cmds...)
}

func (d *Dashboard) scheduleRefresh() tea.Cmd {
	return tea.Tick(d.interval, func(time.Time) tea.Msg { return refreshMsg{} })
}

func waitDone(src Source) tea.Cmd {
	return func() tea.Msg {
		<-src.Done()
		return doneMsg{}
	}
}

// Update implements tea.Model.
func (d *Dashboard) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			d.stopRequested = !d.finished
			return d, tea.Quit
		case "1":
			d.activeTab = TabMain
			return d, nil
		case "2":
			d.activeTab = TabLogs
			return d, nil
		case "tab":
			d.activeTab = (d.activeTab + 1) % 2
			return d, nil
		}
		if d.activeTab == TabLogs {
			var cmd tea.Cmd
			d.logs, cmd = d.logs.Update(msg)
			return d, cmd
		}

	case tea.WindowSizeMsg:
		d.width = msg.Width
		d.height = msg.Height
		d.logs.SetSize(msg.Width, d.logsHeight())
		d.agents.SetWidth(msg.Width)

	case refreshMsg:
		d.state = d.src.Snapshot()
		d.sync()
		return d, d.scheduleRefresh()

	case stopSignalMsg:
		d.stopRequested = !d.finished
		return d, tea.Quit

	case doneMsg:
		d.finished = true
		d.state = d.src.Snapshot()
		d.sync()
		return d, tea.Quit

	case spinner.TickMsg:
		var cmd tea.Cmd
		d.spinner, cmd = d.spinner.Update(msg)
		return d, cmd
	}
	return d, nil
}

func (d *Dashboard) sync() {
	d.agents.SetAgents(d.state.Agents, d.state.Tasks)
	d.logs.SetEvents(d.state.Events, d.state.Trimmed)
}

// logsHeight leaves room for the summary, the tab bar and the footer.
func (d *Dashboard) logsHeight() int {
	h := d.height - 6
	if h < 3 {
		h = 3
	}
	return h
}

// View implements tea.Model.
func (d *Dashboard) View() string {
	var b strings.Builder
	b.WriteString(d.renderSummary())
	b.WriteString("\n")
	b.WriteString(d.renderTabs())
	if d.activeTab == TabLogs {
		b.WriteString(d.logs.View())
	} else {
		b.WriteString(d.agents.View(d.spinner.View()))
	}
	b.WriteString("\n")
	b.WriteString(d.renderFooter())
	return b.String()
}

func (d *Dashboard) renderSummary() string {
	s := d.state
	total := len(s.Tasks)
	finished := s.CompletedTasks + s.FailedTasks + len(s.Unallocated)

	title := d.titleStyle.Render("Swarm " + s.ID)
	status := string(s.Status)
	if !s.Status.Terminal() {
		status = d.spinner.View() + " " + status
	}

	pct := 0.0
	if total > 0 {
		pct = float64(finished) / float64(total) * 100
	}
	counts := fmt.Sprintf("%d/%d done", s.CompletedTasks, total)
	if s.FailedTasks > 0 {
		counts += d.failStyle.Render(fmt.Sprintf("  %d failed", s.FailedTasks))
	}
	if n := len(s.Unallocated); n > 0 {
		counts += d.hintStyle.Render(fmt.Sprintf("  %d unallocated", n))
	}

	elapsed := time.Since(s.StartedAt)
	if s.EndedAt != nil {
		elapsed = s.EndedAt.Sub(s.StartedAt)
	}
	if s.StartedAt.IsZero() {
		elapsed = 0
	}

	line1 := title + "  " + status + "  " + d.labelStyle.Render(elapsed.Round(time.Second).String())
	line2 := d.renderProgressBar(pct, 30) + "  " + counts
	if s.Description != "" {
		return line1 + "\n" + d.labelStyle.Render(truncate(s.Description, d.width)) + "\n" + line2
	}
	return line1 + "\n" + line2
}

func (d *Dashboard) renderProgressBar(pct float64, width int) string {
	if pct > 100 {
		pct = 100
	}
	if pct < 0 {
		pct = 0
	}
	filled := int(pct / 100 * float64(width))
	return "[" + d.progressFull.Render(strings.Repeat("█", filled)) +
		d.progressEmpty.Render(strings.Repeat("░", width-filled)) + "]"
}

func (d *Dashboard) renderTabs() string {
	active := lipgloss.NewStyle().Bold(true).Reverse(true)
	inactive := lipgloss.NewStyle().Faint(true)
	tab1, tab2 := " 1:Agents ", " 2:Log "
	if d.activeTab == TabMain {
		return active.Render(tab1) + inactive.Render(tab2) + "\n"
	}
	return inactive.Render(tab1) + active.Render(tab2) + "\n"
}

func (d *Dashboard) renderFooter() string {
	if d.finished {
		return d.doneStyle.Render("Swarm finished")
	}
	hints := "q stop  1/2/tab switch view"
	if d.activeTab == TabLogs {
		hints += "  ↑/↓ scroll"
	}
	return d.hintStyle.Render(hints)
}

// Run shows the dashboard until the swarm finishes or the operator quits.
// It returns true when the operator asked for a stop.
func Run(src Source, opts ...Option) (bool, error) {
	d := NewDashboard(src, opts...)
	if _, err := tea.NewProgram(d, tea.WithAltScreen()).Run(); err != nil {
		return false, fmt.Errorf("dashboard: %w", err)
	}
	return d.StopRequested(), nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 1 || len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
