package tui

import (
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"

	tea "github.com/charmbracelet/bubbletea"
)

const crashToast = "Unexpected error (see logs)"

// guardedModel keeps a panic in the dashboard from leaving the terminal in
// alt-screen mode with cells still running. A panic during Update aborts
// the gate and drops back to the home screen.
type guardedModel struct {
	m   model
	log *slog.Logger
}

func wrapSafe(m model, log *slog.Logger) guardedModel {
	if log == nil {
		log = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	return guardedModel{m: m, log: log}
}

func (g guardedModel) Init() tea.Cmd { return g.m.Init() }

func (g guardedModel) Update(msg tea.Msg) (next tea.Model, cmd tea.Cmd) {
	defer func() {
		if r := recover(); r != nil {
			g.report("update", r)
			g.m = g.m.recoverFromPanic()
			next, cmd = g, nil
		}
	}()

	updated, c := g.m.Update(msg)
	switch u := updated.(type) {
	case model:
		g.m = u
	case guardedModel:
		g = u
	}
	return g, c
}

func (g guardedModel) View() (out string) {
	defer func() {
		if r := recover(); r != nil {
			g.report("view", r)
			out = crashToast
		}
	}()
	return g.m.View()
}

func (g guardedModel) report(stage string, r any) {
	g.log.Error("tui.panic",
		"stage", stage,
		"screen", int(g.m.scr),
		"panic", fmt.Sprint(r),
		"stack", string(debug.Stack()),
	)
}

// recoverFromPanic aborts any running gate and returns to the home menu.
func (m model) recoverFromPanic() model {
	if m.cancel != nil {
		m.cancel()
	}
	m.scr = screenHome
	m.toast = crashToast
	return m
}

var _ tea.Model = guardedModel{}
