package sim

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"netsir-sim/internal/config"
	"netsir-sim/internal/telemetry"
)

// teaProgram abstracts bubbletea.Program for testing.
type teaProgram interface {
	Send(tea.Msg)
}

// roundMsg carries a reduced round.
type roundMsg struct{ telemetry.RoundRow }

// nodesMsg carries the node records of the latest round.
type nodesMsg struct{ rows []telemetry.NodeRow }

// finishedMsg tells the model the simulation is over.
type finishedMsg struct{}

const (
	barWidth    = 40
	historyKeep = 60
)

var (
	styleSusceptible = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	styleInfected    = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	styleRecovered   = lipgloss.NewStyle().Foreground(lipgloss.Color("4"))
	styleEnvironment = lipgloss.NewStyle().Foreground(lipgloss.Color("5"))
	styleDim         = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	styleTitle       = lipgloss.NewStyle().Bold(true)
)

// TUIWriter renders round summaries using a bubbletea TUI.
type TUIWriter struct {
	program    teaProgram
	done       chan struct{}
	sendSignal atomic.Bool
	closeOnce  sync.Once
}

// NewTUIWriter starts a bubbletea program and returns a TUIWriter.
// Quitting the UI interrupts the process unless the writer was closed first.
func NewTUIWriter(cfg *config.SimulationConfig) *TUIWriter {
	w := &TUIWriter{done: make(chan struct{})}
	w.sendSignal.Store(true)
	p := tea.NewProgram(newTUIModel(cfg), tea.WithAltScreen())
	w.program = p
	go func() {
		_, _ = p.Run()
		close(w.done)
		if w.sendSignal.Load() {
			if proc, err := os.FindProcess(os.Getpid()); err == nil {
				_ = proc.Signal(os.Interrupt)
			}
		}
	}()
	return w
}

// WriteRound implements RoundWriter.
func (w *TUIWriter) WriteRound(row telemetry.RoundRow) error {
	w.program.Send(roundMsg{row})
	return nil
}

// WriteNodes implements NodeWriter.
func (w *TUIWriter) WriteNodes(rows []telemetry.NodeRow) error {
	cp := make([]telemetry.NodeRow, len(rows))
	copy(cp, rows)
	w.program.Send(nodesMsg{rows: cp})
	return nil
}

// Close marks the run finished. The UI stays up until the user quits; use
// Wait to block until then.
func (w *TUIWriter) Close() error {
	w.closeOnce.Do(func() {
		w.sendSignal.Store(false)
		if w.program != nil {
			w.program.Send(finishedMsg{})
		}
	})
	return nil
}

// Wait blocks until the UI exits.
func (w *TUIWriter) Wait() {
	if w.done != nil {
		<-w.done
	}
}

type tuiModel struct {
	cfg        *config.SimulationConfig
	table      table.Model
	vp         viewport.Model
	logs       []string
	last       *telemetry.RoundRow
	infected   []int
	nodes      []telemetry.NodeRow
	finished   bool
	wrap       bool
	autoscroll bool
	help       bool
	width      int
	height     int
}

func newTUIModel(cfg *config.SimulationConfig) tuiModel {
	if cfg == nil {
		cfg = config.Default()
	}
	mode := "convergence"
	if !cfg.ConvergenceMode() {
		mode = fmt.Sprintf("fixed %d", cfg.RoundLimit)
	}
	cols := []table.Column{
		{Title: "Config", Width: 20},
		{Title: "Value", Width: 12},
		{Title: "Config", Width: 20},
		{Title: "Value", Width: 12},
	}
	rows := []table.Row{
		{"Mode", mode, "Stay Probability", fmt.Sprintf("%.2f", cfg.StayProbability)},
		{"Recovery Threshold", strconv.Itoa(cfg.RecoveryThreshold), "Sanitation Threshold", strconv.Itoa(cfg.SanitationThreshold)},
		{"Seed", strconv.FormatInt(cfg.Seed, 10), "Stall Timeout", cfg.StallTimeout.String()},
	}
	t := table.New(table.WithColumns(cols), table.WithRows(rows), table.WithHeight(len(rows)+1))
	return tuiModel{
		cfg:        cfg,
		table:      t,
		vp:         viewport.New(0, 0),
		autoscroll: true,
	}
}

func (m tuiModel) Init() tea.Cmd { return nil }

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.table.SetWidth(msg.Width)
		m.vp.Width = msg.Width
		m.updateViewportHeight()
		m.refreshViewport()
	case tea.KeyMsg:
		if m.help {
			switch msg.String() {
			case "?", "h", "esc":
				m.help = false
			case "q", "ctrl+c":
				return m, tea.Quit
			}
			return m, nil
		}
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "w":
			m.wrap = !m.wrap
			m.refreshViewport()
		case "s":
			m.autoscroll = !m.autoscroll
			if m.autoscroll {
				m.vp.GotoBottom()
			}
		case "h", "?":
			m.help = true
		case "j", "down":
			m.vp.LineDown(1)
		case "k", "up":
			m.vp.LineUp(1)
		case "pgdown":
			m.vp.LineDown(10)
		case "pgup":
			m.vp.LineUp(10)
		}
	case roundMsg:
		row := msg.RoundRow
		m.last = &row
		m.infected = append(m.infected, row.Infected)
		if len(m.infected) > historyKeep {
			m.infected = m.infected[len(m.infected)-historyKeep:]
		}
		m.logs = append(m.logs, formatRoundLine(row))
		m.updateViewportHeight()
		m.refreshViewport()
	case nodesMsg:
		m.nodes = msg.rows
	case finishedMsg:
		m.finished = true
		m.logs = append(m.logs, styleDim.Render("simulation finished, press q to quit"))
		m.refreshViewport()
	}
	return m, nil
}

func formatRoundLine(r telemetry.RoundRow) string {
	return fmt.Sprintf("round %-4d %s %s %s %s agents=%d transit=%d removed=%d/%d",
		r.Round,
		styleSusceptible.Render(fmt.Sprintf("S=%d", r.Susceptible)),
		styleInfected.Render(fmt.Sprintf("I=%d", r.Infected)),
		styleRecovered.Render(fmt.Sprintf("R=%d", r.Recovered)),
		styleEnvironment.Render(fmt.Sprintf("E=%d", r.Environment)),
		r.TotalAgents, r.AgentsInTransit, r.RemovedRecovered, r.RemovedEnvironment)
}

func (m *tuiModel) updateViewportHeight() {
	used := lipgloss.Height(m.renderHeader()) + lipgloss.Height(m.renderSummary()) + 4
	h := m.height - used
	if h < 0 {
		h = 0
	}
	m.vp.Height = h
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m *tuiModel) refreshViewport() {
	var lines []string
	for _, l := range m.logs {
		if m.wrap && m.vp.Width > 0 {
			lines = append(lines, wordwrap.String(l, m.vp.Width))
		} else {
			lines = append(lines, l)
		}
	}
	m.vp.SetContent(strings.Join(lines, "\n"))
	if m.autoscroll {
		m.vp.GotoBottom()
	}
}

func (m tuiModel) View() string {
	if m.help {
		return m.renderHelp()
	}
	divider := strings.Repeat("─", m.vp.Width)
	return strings.Join([]string{
		m.renderHeader(),
		divider,
		m.renderSummary(),
		divider,
		m.vp.View(),
		divider,
		styleDim.Render("q quit • w wrap • s autoscroll • ? help"),
	}, "\n")
}

func (m tuiModel) renderHeader() string {
	return m.table.View()
}

// renderSummary shows the node-state mix of the latest round and the infected trend.
func (m tuiModel) renderSummary() string {
	if m.last == nil {
		return styleDim.Render("waiting for round 0")
	}
	r := m.last
	title := styleTitle.Render(fmt.Sprintf("Round %d", r.Round))
	if m.finished {
		title += styleDim.Render(" (finished)")
	}
	lines := []string{
		title,
		stateBar(r.Susceptible, r.Infected, r.Recovered, r.Environment, barWidth),
		fmt.Sprintf("avg agents/I %.2f  avg agents/E %.2f  avg removed/R %.2f  avg removed/E %.2f",
			r.AvgAgentsPerInfected, r.AvgAgentsPerEnvironment, r.AvgRemovedPerRecovered, r.AvgRemovedPerEnv),
		"infected " + sparkline(m.infected),
	}
	if len(m.nodes) > 0 {
		busiest := m.nodes[0]
		for _, n := range m.nodes[1:] {
			if n.Agents > busiest.Agents {
				busiest = n
			}
		}
		lines = append(lines, fmt.Sprintf("busiest node %d (%s) holds %d agents", busiest.NodeID, busiest.State, busiest.Agents))
	}
	return strings.Join(lines, "\n")
}

// stateBar draws a proportional bar of node states.
func stateBar(s, i, r, e, width int) string {
	total := s + i + r + e
	if total == 0 || width <= 0 {
		return strings.Repeat(" ", width)
	}
	parts := []struct {
		n     int
		style lipgloss.Style
	}{{s, styleSusceptible}, {i, styleInfected}, {r, styleRecovered}, {e, styleEnvironment}}
	var b strings.Builder
	used := 0
	for idx, p := range parts {
		cells := p.n * width / total
		if idx == len(parts)-1 {
			cells = width - used
		}
		used += cells
		if cells > 0 {
			b.WriteString(p.style.Render(strings.Repeat("█", cells)))
		}
	}
	return b.String()
}

var sparkRunes = []rune("▁▂▃▄▅▆▇█")

func sparkline(vals []int) string {
	if len(vals) == 0 {
		return ""
	}
	hi := 0
	for _, v := range vals {
		if v > hi {
			hi = v
		}
	}
	out := make([]rune, len(vals))
	for i, v := range vals {
		idx := 0
		if hi > 0 {
			idx = v * (len(sparkRunes) - 1) / hi
		}
		out[i] = sparkRunes[idx]
	}
	return string(out)
}

func (m tuiModel) renderHelp() string {
	rows := [][2]string{
		{"q", "quit"},
		{"w", "toggle line wrap"},
		{"s", "toggle autoscroll"},
		{"j/k, up/down", "scroll one line"},
		{"pgup/pgdown", "scroll ten lines"},
		{"?, h, esc", "close help"},
	}
	var b strings.Builder
	b.WriteString(styleTitle.Render("Keys") + "\n")
	for _, r := range rows {
		fmt.Fprintf(&b, "  %-14s %s\n", r[0], r[1])
	}
	return b.String()
}
