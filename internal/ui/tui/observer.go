package tui

import (
	tea "github.com/charmbracelet/bubbletea"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

// chanObserver turns observer callbacks into tea messages. Sends give up once
// done is closed so cell workers never block on a dashboard that has quit.
type chanObserver struct {
	ch   chan<- tea.Msg
	done <-chan struct{}
}

var _ ports.RunObserver = chanObserver{}

func (o chanObserver) send(msg tea.Msg) {
	select {
	case o.ch <- msg:
	case <-o.done:
	}
}

func (o chanObserver) CellStarted(cell domain.Cell) {
	o.send(cellStartedMsg{cell: cell})
}

func (o chanObserver) StepFinished(cell domain.Cell, step domain.StepResult) {
	o.send(stepFinishedMsg{cell: cell, step: step})
}

func (o chanObserver) CellFinished(res domain.CellResult) {
	o.send(cellFinishedMsg{result: res})
}
