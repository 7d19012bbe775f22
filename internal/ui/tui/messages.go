package tui

import "github.com/aalvaropc/vgate/internal/domain"

type workspaceRefreshedMsg struct {
	cwd   string
	found bool
	root  string
	err   error
}

type initWorkspaceDoneMsg struct {
	root string
	err  error
}

type runsLoadedMsg struct {
	root string
	refs []domain.RunRef
	err  error
}

// Gate progress, forwarded from the observer.
type cellStartedMsg struct {
	cell domain.Cell
}

type stepFinishedMsg struct {
	cell domain.Cell
	step domain.StepResult
}

type cellFinishedMsg struct {
	result domain.CellResult
}

type gateDoneMsg struct {
	run domain.GateRun
	id  string
	err error
}
