package cli

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/ports"
)

// progressPrinter writes one line per finished cell while the gate runs.
type progressPrinter struct {
	mu   sync.Mutex
	w    io.Writer
	done int
}

func newProgressPrinter(w io.Writer) *progressPrinter {
	return &progressPrinter{w: w}
}

var _ ports.RunObserver = (*progressPrinter)(nil)

func (p *progressPrinter) CellStarted(cell domain.Cell) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fmt.Fprintf(p.w, "… %s\n", cell.ID())
}

func (p *progressPrinter) StepFinished(domain.Cell, domain.StepResult) {}

func (p *progressPrinter) CellFinished(res domain.CellResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++

	mark := "✓"
	switch res.Status {
	case domain.StatusFailed:
		mark = "✗"
	case domain.StatusCancelled:
		mark = "⊘"
	}

	d := res.EndedAt.Sub(res.StartedAt).Round(time.Second)
	if res.Failure != nil {
		fmt.Fprintf(p.w, "%s %s (%s) %s: %s\n", mark, res.Cell.ID(), d, res.Failure.Kind, res.Failure.Message)
		return
	}
	fmt.Fprintf(p.w, "%s %s (%s)\n", mark, res.Cell.ID(), d)
}
