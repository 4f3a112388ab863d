// Package inspect provides an interactive terminal inspector for a running
// cost engine: the estimate history, per-model metrics and on-demand model
// comparisons, built on Bubble Tea.
package inspect

import (
	"fmt"
	"strings"
	"time"

	"querycost/pkg/engine"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

type pane int

const (
	paneHistory pane = iota
	paneMetrics
	paneDetail
)

// Model represents the inspector state
type Model struct {
	eng          *engine.Engine
	historyTable table.Model
	detail       viewport.Model
	spinner      spinner.Model
	help         help.Model

	// entries mirrors the table rows, newest first.
	entries []engine.HistoryEntry

	width       int
	height      int
	pane        pane
	detailTitle string
	comparing   bool
	showHelp    bool
	lastErr     error

	lastCompareTime time.Duration
	keys            keyMap
}

func New(eng *engine.Engine) Model {
	t := table.New(
		table.WithColumns(historyColumns()),
		table.WithRows([]table.Row{}),
		table.WithFocused(true),
		table.WithHeight(12),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(primaryColor).
		BorderBottom(true).
		Bold(true).
		Foreground(primaryColor)
	s.Selected = s.Selected.
		Foreground(bgDark).
		Background(secondaryColor).
		Bold(false)
	t.SetStyles(s)

	vp := viewport.New(80, 12)
	vp.Style = detailStyle

	sp := spinner.New()
	sp.Spinner = spinner.Points
	sp.Style = lipgloss.NewStyle().Foreground(primaryColor)

	m := Model{
		eng:          eng,
		historyTable: t,
		detail:       vp,
		spinner:      sp,
		help:         help.New(),
		keys:         keys,
	}
	m.refresh()
	return m
}

func historyColumns() []table.Column {
	return []table.Column{
		{Title: "ID", Width: 10},
		{Title: "Kind", Width: 6},
		{Title: "Model", Width: 14},
		{Title: "Collection", Width: 16},
		{Title: "Total", Width: 10},
		{Title: "Rows", Width: 10},
		{Title: "Age", Width: 10},
	}
}

func (m Model) Init() tea.Cmd {
	return m.spinner.Tick
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.updateLayout()

	case tea.KeyMsg:
		if m.comparing {
			return m, nil // Ignore input while a comparison runs
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp

		case key.Matches(msg, m.keys.History):
			m.pane = paneHistory
			m.lastErr = nil

		case key.Matches(msg, m.keys.Metrics):
			m.pane = paneMetrics
			m.lastErr = nil

		case key.Matches(msg, m.keys.Back):
			if m.pane == paneDetail {
				m.pane = paneHistory
			}
			m.lastErr = nil

		case key.Matches(msg, m.keys.Refresh):
			m.refresh()
			m.lastErr = nil

		case key.Matches(msg, m.keys.Clear):
			m.eng.ClearHistory()
			m.refresh()
			m.pane = paneHistory

		case key.Matches(msg, m.keys.Explain):
			if entry, ok := m.selectedEntry(); ok {
				m.showExplain(entry)
			}

		case key.Matches(msg, m.keys.Compare):
			entry, ok := m.selectedEntry()
			if !ok {
				break
			}
			if entry.Query == nil {
				m.lastErr = fmt.Errorf("comparison needs a query estimate, entry %s holds a plan", shortID(entry.ID))
				break
			}
			m.comparing = true
			return m, m.compareModels(entry)
		}

	case compareDoneMsg:
		m.comparing = false
		m.lastErr = msg.err
		m.lastCompareTime = msg.duration
		if msg.err == nil {
			m.showComparison(msg)
			m.refresh() // comparisons append to the history
		}

	case spinner.TickMsg:
		if m.comparing {
			var cmd tea.Cmd
			m.spinner, cmd = m.spinner.Update(msg)
			return m, cmd
		}
	}

	// Update sub-components
	if !m.comparing {
		var cmd tea.Cmd
		switch m.pane {
		case paneHistory:
			m.historyTable, cmd = m.historyTable.Update(msg)
			cmds = append(cmds, cmd)
		case paneDetail:
			m.detail, cmd = m.detail.Update(msg)
			cmds = append(cmds, cmd)
		}
	}

	return m, tea.Batch(cmds...)
}

func (m Model) View() string {
	var sections []string

	sections = append(sections, m.renderHeader())

	if m.lastErr != nil {
		sections = append(sections, m.renderError())
	}

	switch {
	case m.comparing:
		sections = append(sections, m.renderComparing())
	case m.pane == paneMetrics:
		sections = append(sections, m.renderMetrics())
	case m.pane == paneDetail:
		sections = append(sections, m.renderDetail())
	default:
		sections = append(sections, m.renderHistory())
	}

	sections = append(sections, m.renderStatusBar())

	if m.showHelp {
		sections = append(sections, m.renderHelp())
	}

	return appStyle.Render(strings.Join(sections, "\n"))
}

func (m Model) renderHeader() string {
	snap := m.eng.Metrics().Snapshot()

	title := titleStyle.Render("🔍 Cost Engine Inspector")
	badge := modelBadgeStyle.Render(fmt.Sprintf("📊 %d models", len(m.eng.Models())))
	counts := lipgloss.NewStyle().
		Foreground(textSecondary).
		Render(fmt.Sprintf("Estimates: %d | Updates: %d | Errors: %d",
			snap.TotalEstimates, snap.TotalUpdates, snap.TotalErrors))

	header := lipgloss.JoinHorizontal(
		lipgloss.Left,
		title,
		"  ",
		badge,
		"  ",
		counts,
	)

	separatorWidth := m.width - 4
	if separatorWidth < 0 {
		separatorWidth = 0
	}
	separator := lipgloss.NewStyle().
		Foreground(bgLight).
		Render(strings.Repeat("─", separatorWidth))

	return header + "\n" + separator
}

func (m Model) renderHistory() string {
	label := sectionTitleStyle.Render(fmt.Sprintf("Estimate History (%d)", len(m.entries)))
	return fmt.Sprintf("%s\n%s", label, m.historyTable.View())
}

func (m Model) renderMetrics() string {
	snap := m.eng.Metrics().Snapshot()

	var b strings.Builder
	fmt.Fprintf(&b, "%-22s %d\n", "total estimates", snap.TotalEstimates)
	fmt.Fprintf(&b, "%-22s %d\n", "total updates", snap.TotalUpdates)
	fmt.Fprintf(&b, "%-22s %d\n", "total errors", snap.TotalErrors)
	fmt.Fprintf(&b, "%-22s %.1fµs\n", "avg estimate time", snap.AvgEstimateMicros)
	if !snap.LastEstimate.IsZero() {
		fmt.Fprintf(&b, "%-22s %s\n", "last estimate", snap.LastEstimate.Format("15:04:05"))
	}

	for _, name := range m.eng.Models() {
		stats, ok := snap.PerModel[name]
		if !ok {
			continue
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "%s\n", lipgloss.NewStyle().Foreground(secondaryColor).Bold(true).Render(name))
		fmt.Fprintf(&b, "  estimates %-8d applied %-8d rejected %-8d unsupported %-8d errors %d\n",
			stats.Estimates, stats.Applied, stats.Rejected, stats.Unsupported, stats.Errors)
	}

	label := sectionTitleStyle.Render("Engine Metrics")
	body := detailStyle.Render(b.String())
	return fmt.Sprintf("%s\n%s", label, body)
}

func (m Model) renderDetail() string {
	label := sectionTitleStyle.Render(m.detailTitle)
	return fmt.Sprintf("%s\n%s", label, m.detail.View())
}

func (m Model) renderComparing() string {
	content := lipgloss.JoinHorizontal(
		lipgloss.Left,
		m.spinner.View(),
		" Comparing models...",
	)

	return lipgloss.NewStyle().
		Foreground(primaryColor).
		Padding(1, 0).
		Render(content)
}

func (m Model) renderError() string {
	icon := errorStyle.Render(" ⚠ ERROR ")
	message := lipgloss.NewStyle().
		Foreground(errorColor).
		Render(m.lastErr.Error())

	content := fmt.Sprintf("%s %s", icon, message)

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(errorColor).
		Padding(0, 1).
		Render(content)
}

func (m Model) renderStatusBar() string {
	status := fmt.Sprintf("● %d entries", len(m.entries))

	timer := ""
	if m.lastCompareTime > 0 {
		timer = fmt.Sprintf(" | Last comparison: %v", m.lastCompareTime)
	}

	helpHint := " | Press ? for help"
	content := lipgloss.NewStyle().
		Foreground(accentColor).
		Render(status) +
		lipgloss.NewStyle().
			Foreground(textMuted).
			Render(timer+helpHint)

	width := m.width - 4
	if width < 0 {
		width = 0
	}
	return statusBarStyle.
		Width(width).
		Render(content)
}

func (m Model) renderHelp() string {
	helpText := m.help.FullHelpView([][]key.Binding{
		{
			m.keys.History,
			m.keys.Metrics,
			m.keys.Explain,
			m.keys.Compare,
		},
		{
			m.keys.Refresh,
			m.keys.Clear,
			m.keys.Back,
			m.keys.Quit,
		},
	})

	return lipgloss.NewStyle().
		Border(lipgloss.DoubleBorder()).
		BorderForeground(primaryColor).
		Padding(1, 2).
		Background(bgMedium).
		Render(helpText)
}

// refresh reloads the table from the engine history, newest entry on top.
func (m *Model) refresh() {
	entries := m.eng.History(0)
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	m.entries = entries

	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		rows[i] = table.Row{
			shortID(e.ID),
			entryKind(e),
			e.ModelName,
			entryCollection(e),
			fmt.Sprintf("%.2f", e.Estimate.TotalCost),
			fmt.Sprintf("%d", e.Estimate.Stats.RowCount),
			time.Since(e.At).Round(time.Second).String(),
		}
	}
	m.historyTable.SetRows(rows)
}

func (m Model) selectedEntry() (engine.HistoryEntry, bool) {
	cursor := m.historyTable.Cursor()
	if cursor < 0 || cursor >= len(m.entries) {
		return engine.HistoryEntry{}, false
	}
	return m.entries[cursor], true
}

func (m *Model) showExplain(entry engine.HistoryEntry) {
	var b strings.Builder
	fmt.Fprintf(&b, "model:      %s\n", entry.ModelName)
	fmt.Fprintf(&b, "collection: %s\n", entryCollection(entry))
	fmt.Fprintf(&b, "recorded:   %s\n\n", entry.At.Format("15:04:05"))
	b.WriteString(engine.Explain(entry.Estimate))

	m.detailTitle = fmt.Sprintf("Estimate %s", shortID(entry.ID))
	m.detail.SetContent(b.String())
	m.detail.GotoTop()
	m.pane = paneDetail
}

func (m *Model) showComparison(msg compareDoneMsg) {
	var b strings.Builder
	fmt.Fprintf(&b, "collection: %s (%d models in %v)\n\n", msg.collection, len(msg.comparisons), msg.duration)

	best := lipgloss.NewStyle().Foreground(accentColor).Bold(true)
	for i, c := range msg.comparisons {
		line := fmt.Sprintf("%2d. %-16s %10.2f", i+1, c.ModelName, c.TotalCost)
		if i == 0 {
			line = best.Render(line + "  ◀ best")
		} else {
			line = fmt.Sprintf("%s  %+.2f", line, c.TotalCost-msg.comparisons[0].TotalCost)
		}
		b.WriteString(line + "\n")
	}

	m.detailTitle = "Model Comparison"
	m.detail.SetContent(b.String())
	m.detail.GotoTop()
	m.pane = paneDetail
}

// updateLayout adjusts component sizes based on window size
func (m *Model) updateLayout() {
	mainHeight := m.height - 10 // Leave room for header/status
	if mainHeight < 4 {
		mainHeight = 4
	}

	m.historyTable.SetHeight(mainHeight)
	m.detail.Width = m.width - 6
	m.detail.Height = mainHeight
}

type compareDoneMsg struct {
	collection  string
	comparisons []engine.Comparison
	err         error
	duration    time.Duration
}

func (m Model) compareModels(entry engine.HistoryEntry) tea.Cmd {
	return func() tea.Msg {
		start := time.Now()
		comparisons, err := m.eng.CompareModels(entry.Query, entry.Context)
		duration := time.Since(start)

		return compareDoneMsg{
			collection:  entryCollection(entry),
			comparisons: comparisons,
			err:         err,
			duration:    duration,
		}
	}
}

func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}

func entryKind(e engine.HistoryEntry) string {
	if e.Query != nil {
		return "query"
	}
	return "plan"
}

func entryCollection(e engine.HistoryEntry) string {
	switch {
	case e.Query != nil && e.Query.Collection != "":
		return e.Query.Collection
	case e.Plan != nil && e.Plan.Collection != "":
		return e.Plan.Collection
	case e.Context != nil:
		return e.Context.Collection
	default:
		return ""
	}
}

// Run launches the inspector over the given engine and blocks until the
// user quits.
func Run(eng *engine.Engine) error {
	p := tea.NewProgram(
		New(eng),
		tea.WithAltScreen(),
	)

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("error running inspector: %v", err)
	}

	return nil
}
