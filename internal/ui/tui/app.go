package tui

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/aalvaropc/vgate/internal/domain"
)

type screen int

const (
	screenHome screen = iota
	screenGate
	screenDetail
	screenRuns
)

const (
	itemRun   = "Run gate"
	itemRuns  = "Recent runs"
	itemInit  = "Init workspace"
	itemQuit  = "Quit"
	abortHint = "gate still running (x to abort)"
)

type menuItem struct {
	title string
	desc  string
}

func (m menuItem) Title() string       { return m.title }
func (m menuItem) Description() string { return m.desc }
func (m menuItem) FilterValue() string { return m.title }

// cellRow is the live state of one matrix cell.
type cellRow struct {
	cell   domain.Cell
	status domain.Status
	steps  []domain.StepResult
	result *domain.CellResult
}

type model struct {
	theme Theme
	deps  Deps
	log   *slog.Logger

	scr    screen
	menu   list.Model
	spin   spinner.Model
	detail viewport.Model
	width  int
	height int

	cwd            string
	workspaceFound bool
	workspaceRoot  string

	running bool
	events  <-chan tea.Msg
	cancel  context.CancelFunc
	rows    []cellRow
	index   map[string]int
	cursor  int
	run     *domain.GateRun
	runID   string

	refs  []domain.RunRef
	toast string
}

func Run(deps Deps) error {
	m := newModel(deps)
	p := tea.NewProgram(wrapSafe(m, deps.Logger), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

func newModel(deps Deps) model {
	t := DefaultTheme()

	items := []list.Item{
		menuItem{itemRun, "Run every matrix cell of the default workflow"},
		menuItem{itemRuns, "Browse stored gate runs"},
		menuItem{itemInit, "Create vgate.yaml and the default workflow here"},
		menuItem{itemQuit, "Exit vgate"},
	}

	l := list.New(items, list.NewDefaultDelegate(), 0, 0)
	l.Title = "vgate"
	l.SetShowStatusBar(false)
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)

	log := deps.Logger
	if log == nil {
		log = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}

	return model{
		theme:  t,
		deps:   deps,
		log:    log,
		scr:    screenHome,
		menu:   l,
		spin:   spinner.New(spinner.WithSpinner(spinner.Dot)),
		detail: viewport.New(80, 20),
		index:  map[string]int{},
	}
}

func (m model) Init() tea.Cmd { return cmdRefreshWorkspace(m.deps) }

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.menu.SetSize(msg.Width-4, msg.Height-10)
		m.detail.Width = max(msg.Width-8, 20)
		m.detail.Height = max(msg.Height-12, 5)
		return m, nil

	case workspaceRefreshedMsg:
		m.cwd = msg.cwd
		m.workspaceFound = msg.found
		m.workspaceRoot = msg.root
		if msg.err != nil && !msg.found {
			m.log.Debug("tui.workspace.not_found", "cwd", msg.cwd, "err", msg.err)
		}
		if m.deps.AutoRun && m.workspaceFound && !m.running && m.run == nil {
			return m.startGate()
		}
		return m, nil

	case initWorkspaceDoneMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		m.toast = "Workspace initialized in " + msg.root
		return m, cmdRefreshWorkspace(m.deps)

	case runsLoadedMsg:
		if msg.err != nil {
			m.toast = userMessage(msg.err)
			return m, nil
		}
		m.refs = msg.refs
		m.scr = screenRuns
		return m, nil

	case cellStartedMsg:
		m.upsert(msg.cell).status = domain.StatusRunning
		return m, listenGate(m.events)

	case stepFinishedMsg:
		r := m.upsert(msg.cell)
		r.steps = append(r.steps, msg.step)
		return m, listenGate(m.events)

	case cellFinishedMsg:
		res := msg.result
		r := m.upsert(res.Cell)
		r.status = res.Status
		r.result = &res
		return m, listenGate(m.events)

	case gateDoneMsg:
		m.running = false
		m.cancel = nil
		m.events = nil
		m.runID = msg.id
		if len(msg.run.Cells) > 0 {
			run := msg.run
			m.run = &run
			for _, c := range run.Cells {
				r := m.upsert(c.Cell)
				r.status = c.Status
				r.result = &c
				r.steps = c.Steps
			}
		}
		switch {
		case domain.IsCancellation(msg.err):
			m.toast = "Gate aborted"
		case msg.err != nil:
			m.toast = userMessage(msg.err)
		case m.run != nil:
			m.toast = verdictLine(*m.run, m.runID)
		}
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	switch m.scr {
	case screenHome:
		var cmd tea.Cmd
		m.menu, cmd = m.menu.Update(msg)
		return m, cmd
	case screenDetail:
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		if m.cancel != nil {
			m.cancel()
		}
		return m, tea.Quit
	}

	switch m.scr {
	case screenHome:
		switch msg.String() {
		case "q":
			if m.running {
				m.toast = abortHint
				return m, nil
			}
			return m, tea.Quit
		case "enter":
			it, ok := m.menu.SelectedItem().(menuItem)
			if !ok {
				return m, nil
			}
			return m.selectItem(it.title)
		}
		var cmd tea.Cmd
		m.menu, cmd = m.menu.Update(msg)
		return m, cmd

	case screenGate:
		switch msg.String() {
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.rows)-1 {
				m.cursor++
			}
		case "enter":
			if m.cursor < len(m.rows) {
				m.detail.SetContent(renderCellDetail(m.rows[m.cursor]))
				m.detail.GotoTop()
				m.scr = screenDetail
			}
		case "x":
			if m.cancel != nil {
				m.cancel()
				m.toast = "Aborting…"
			}
		case "r":
			if !m.running {
				return m.startGate()
			}
		case "esc", "b", "q":
			if m.running {
				m.toast = abortHint
				return m, nil
			}
			m.scr = screenHome
		}
		return m, nil

	case screenDetail:
		switch msg.String() {
		case "esc", "b", "q":
			m.scr = screenGate
			return m, nil
		}
		var cmd tea.Cmd
		m.detail, cmd = m.detail.Update(msg)
		return m, cmd

	case screenRuns:
		switch msg.String() {
		case "esc", "b", "q":
			m.scr = screenHome
		}
		return m, nil
	}
	return m, nil
}

func (m model) selectItem(title string) (tea.Model, tea.Cmd) {
	switch title {
	case itemQuit:
		return m, tea.Quit
	case itemInit:
		if m.workspaceFound {
			m.toast = "Workspace already exists at " + m.workspaceRoot
			return m, nil
		}
		return m, cmdInitWorkspaceHere(m.deps, m.cwd)
	case itemRuns:
		if !m.workspaceFound {
			m.toast = "No workspace found"
			return m, nil
		}
		return m, cmdLoadRuns(m.deps, m.workspaceRoot)
	case itemRun:
		if !m.workspaceFound {
			m.toast = "No workspace found"
			return m, nil
		}
		if m.running {
			m.scr = screenGate
			return m, nil
		}
		return m.startGate()
	}
	return m, nil
}

func (m model) startGate() (tea.Model, tea.Cmd) {
	events, cancel, listen := startGateAsync(m.deps, m.workspaceRoot, m.log)

	m.scr = screenGate
	m.running = true
	m.events = events
	m.cancel = cancel
	m.rows = nil
	m.index = map[string]int{}
	m.cursor = 0
	m.run = nil
	m.runID = ""
	m.toast = ""

	return m, tea.Batch(listen, m.spin.Tick)
}

// upsert returns the row for cell, appending one in arrival order if needed.
func (m *model) upsert(cell domain.Cell) *cellRow {
	id := cell.ID()
	if i, ok := m.index[id]; ok {
		return &m.rows[i]
	}
	m.rows = append(m.rows, cellRow{cell: cell, status: domain.StatusPending})
	m.index[id] = len(m.rows) - 1
	return &m.rows[len(m.rows)-1]
}

func (m model) View() string {
	wrap := lipgloss.NewStyle().Padding(1, 2)
	header := m.theme.Title.Render("vgate") + "\n" +
		m.theme.Subtitle.Render("Verification gate: every toolchain, every platform, one verdict") + "\n"

	var workspaceBanner string
	if m.workspaceFound {
		workspaceBanner = m.theme.Help.Render(fmt.Sprintf("Workspace: %s", m.workspaceRoot))
	} else {
		workspaceBanner = m.theme.Card.Render("⚠ No workspace found.\n\nCreate one with Init workspace (or `vgate init`).")
	}

	var toast string
	if m.toast != "" {
		toast = "\n" + m.theme.Toast.Render(m.toast)
	}

	switch m.scr {
	case screenHome:
		help := m.theme.Help.Render("↑/↓ navigate • enter open • q quit")
		return wrap.Render(header + "\n" + workspaceBanner + "\n\n" + m.theme.Card.Render(m.menu.View()) + toast + "\n" + help)

	case screenGate:
		help := m.theme.Help.Render("↑/↓ select • enter details • x abort • r rerun • esc back")
		return wrap.Render(header + "\n" + m.theme.Card.Render(m.gateView()) + toast + "\n" + help)

	case screenDetail:
		help := m.theme.Help.Render("↑/↓ scroll • esc back")
		return wrap.Render(header + "\n" + m.theme.Card.Render(m.detail.View()) + "\n" + help)

	case screenRuns:
		help := m.theme.Help.Render("esc/b back")
		return wrap.Render(header + "\n" + m.theme.Card.Render(renderRuns(m.refs, m.theme)) + toast + "\n" + help)

	default:
		return wrap.Render(header + "\n" + "unknown state")
	}
}

func (m model) gateView() string {
	var b strings.Builder

	if len(m.rows) == 0 {
		if m.running {
			b.WriteString(m.spin.View() + " preparing…")
		} else {
			b.WriteString("No cells ran.")
		}
		return b.String()
	}

	finished, failed := 0, 0
	for i, r := range m.rows {
		if r.status.Done() {
			finished++
		}
		if r.status == domain.StatusFailed || r.status == domain.StatusCancelled {
			failed++
		}

		cursor := "  "
		if i == m.cursor {
			cursor = "› "
		}
		b.WriteString(cursor + renderRow(r, m.spin.View(), m.theme, m.width))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	summary := fmt.Sprintf("%d/%d cells finished · %d failed", finished, len(m.rows), failed)
	if m.run != nil {
		summary += " · " + m.theme.verdict(m.run.Verdict)
	} else if m.running {
		summary = m.spin.View() + " " + summary
	}
	b.WriteString(summary)
	return b.String()
}
