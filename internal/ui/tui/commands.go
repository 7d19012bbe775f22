package tui

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/aalvaropc/vgate/internal/domain"
)

func cmdRefreshWorkspace(deps Deps) tea.Cmd {
	return func() tea.Msg {
		wd, err := os.Getwd()
		if err != nil {
			return workspaceRefreshedMsg{cwd: "", found: false, err: fmt.Errorf("getwd: %w", err)}
		}
		if deps.Root != "" {
			return workspaceRefreshedMsg{cwd: wd, found: true, root: deps.Root}
		}
		if deps.WorkspaceLocator == nil {
			return workspaceRefreshedMsg{cwd: wd, found: false, err: errors.New("WorkspaceLocator is nil")}
		}

		root, findErr := deps.WorkspaceLocator.FindRoot(wd)
		if findErr != nil {
			return workspaceRefreshedMsg{cwd: wd, found: false, err: findErr}
		}

		return workspaceRefreshedMsg{cwd: wd, found: true, root: root, err: nil}
	}
}

func cmdInitWorkspaceHere(deps Deps, root string) tea.Cmd {
	return func() tea.Msg {
		if deps.WorkspaceInitializer == nil {
			return initWorkspaceDoneMsg{root: root, err: errors.New("WorkspaceInitializer is nil")}
		}

		err := deps.WorkspaceInitializer.Init(domain.WorkspaceSpec{Root: root}, false)
		return initWorkspaceDoneMsg{root: root, err: err}
	}
}

func cmdLoadRuns(deps Deps, root string) tea.Cmd {
	return func() tea.Msg {
		if deps.ListRuns == nil {
			return runsLoadedMsg{root: root, err: errors.New("ListRuns is nil")}
		}
		refs, err := deps.ListRuns(root)
		return runsLoadedMsg{root: root, refs: refs, err: err}
	}
}

// listenGate delivers the next progress message. The channel closes right after
// gateDoneMsg; seeing it closed means the final message was dropped on abort.
func listenGate(ch <-chan tea.Msg) tea.Cmd {
	return func() tea.Msg {
		msg, ok := <-ch
		if !ok {
			return gateDoneMsg{err: context.Canceled}
		}
		return msg
	}
}

// startGateAsync runs the gate on its own goroutine. Progress and the final
// result arrive on the returned channel; cancel aborts the run.
func startGateAsync(deps Deps, root string, log *slog.Logger) (<-chan tea.Msg, context.CancelFunc, tea.Cmd) {
	ch := make(chan tea.Msg, 64)
	ctx, cancel := context.WithCancel(context.Background())

	if log == nil {
		log = slog.Default()
	}

	go func() {
		defer close(ch)

		if deps.NewGate == nil {
			ch <- gateDoneMsg{err: errors.New("NewGate is nil")}
			return
		}

		gate, err := deps.NewGate(root)
		if err != nil {
			log.Error("tui.gate.prepare.failed", "err", err)
			ch <- gateDoneMsg{err: err}
			return
		}

		log.Info("tui.gate.start", "workspace", root)

		run, id, err := gate(ctx, chanObserver{ch: ch, done: ctx.Done()})
		if err != nil {
			log.Error("tui.gate.failed", "err", err, "saved_id", id)
		} else {
			log.Info("tui.gate.done", "verdict", run.Verdict, "saved_id", id)
		}

		done := gateDoneMsg{run: run, id: id, err: err}
		if ctx.Err() == nil {
			ch <- done
			return
		}
		// Cancelled: the dashboard may already be gone.
		select {
		case ch <- done:
		default:
		}
	}()

	return ch, cancel, listenGate(ch)
}
