package tui

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/report"
)

const detailTailLines = 40

func clampString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))

	n := 0
	for _, r := range s {
		if n >= maxLen {
			break
		}
		b.WriteRune(r)
		n++
	}
	return b.String() + "…"
}

func statusIcon(s domain.Status, spin string) string {
	switch s {
	case domain.StatusSuccess:
		return "✓"
	case domain.StatusFailed:
		return "✗"
	case domain.StatusCancelled, domain.StatusSkipped:
		return "⊘"
	case domain.StatusRunning:
		return spin
	default:
		return "·"
	}
}

func renderRow(r cellRow, spin string, t Theme, width int) string {
	label := r.cell.ID()
	if r.cell.Pinned() {
		label += " → " + string(r.cell.Toolchain)
	}

	line := fmt.Sprintf("%s %-36s", statusIcon(r.status, spin), label)

	switch {
	case r.result != nil:
		line += " " + r.result.EndedAt.Sub(r.result.StartedAt).Round(time.Millisecond).String()
		if r.result.Failure != nil {
			line += "  " + string(r.result.Failure.Kind) + ": " + r.result.Failure.Message
		}
	case r.status == domain.StatusRunning:
		line += fmt.Sprintf(" %d steps done", len(r.steps))
	}

	if width > 8 {
		line = clampString(line, width-8)
	}

	switch r.status {
	case domain.StatusSuccess:
		return t.Pass.Render(line)
	case domain.StatusFailed, domain.StatusCancelled:
		return t.Fail.Render(line)
	case domain.StatusPending:
		return t.Pending.Render(line)
	}
	return line
}

// renderCellDetail shows every step of a cell and the tail of the failing output.
func renderCellDetail(r cellRow) string {
	var b strings.Builder

	b.WriteString("Cell: " + r.cell.ID() + "\n")
	b.WriteString("Toolchain: " + string(r.cell.Toolchain))
	if r.cell.Pinned() {
		b.WriteString(" (declared " + string(r.cell.Declared) + ")")
	}
	b.WriteString("\nPlatform: " + string(r.cell.Platform) + "\n")
	b.WriteString("Status: " + string(r.status) + "\n\n")

	var steps []domain.StepResult
	if r.result != nil {
		if r.result.Provision.Status != "" {
			steps = append(steps, r.result.Provision)
		}
		steps = append(steps, r.result.Steps...)
	} else {
		steps = r.steps
	}

	if len(steps) == 0 {
		b.WriteString("No steps finished yet.\n")
		return b.String()
	}

	b.WriteString("Steps:\n")
	for _, s := range steps {
		b.WriteString(fmt.Sprintf("  %s %s (%s) exit=%d\n", statusIcon(s.Status, "…"), s.Name, s.Duration.Round(time.Millisecond), s.ExitCode))
		if len(s.Command) > 0 {
			b.WriteString("      $ " + strings.Join(s.Command, " ") + "\n")
		}
	}

	failed, ok := domain.StepResult{}, false
	if r.result != nil {
		failed, ok = r.result.FailedStep()
	}
	if !ok {
		return b.String()
	}

	b.WriteString("\nFailure")
	if failed.Failure != nil {
		b.WriteString(" (" + string(failed.Failure.Kind) + "): " + failed.Failure.Message)
	}
	b.WriteString("\n")

	out := report.Tail(failed.Output.Text, detailTailLines)
	if out == "" {
		out = "(no output)"
	}
	b.WriteString(out)
	if failed.Output.Truncated {
		b.WriteString("\n(output truncated)")
	}
	b.WriteString("\n")

	return b.String()
}

func renderRuns(refs []domain.RunRef, t Theme) string {
	if len(refs) == 0 {
		return "(no runs found)"
	}
	var b strings.Builder
	for _, r := range refs {
		rev := r.Revision
		if len(rev) > 12 {
			rev = rev[:12]
		}
		if rev == "" {
			rev = "-"
		}
		b.WriteString(fmt.Sprintf("%s  %-12s  %-10s  %d/%d failed  %s\n",
			t.verdict(r.Verdict), rev, r.WorkflowName, r.Failed, r.Cells,
			r.StartedAt.Local().Format("2006-01-02 15:04"),
		))
		b.WriteString("    " + t.Help.Render(r.ID) + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func verdictLine(run domain.GateRun, id string) string {
	s := run.Summary()
	line := fmt.Sprintf("Verdict: %s (%d/%d cells passed)", strings.ToUpper(string(run.Verdict)), s.Passed, s.Total)
	if id != "" {
		line += " · saved " + id
	}
	return line
}
