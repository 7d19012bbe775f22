// Package report renders gate runs, plans and run listings for humans and machines.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/aalvaropc/vgate/internal/domain"
	"github.com/aalvaropc/vgate/internal/format"
	"github.com/aalvaropc/vgate/internal/usecase"
)

const (
	FormatPretty   = "pretty"
	FormatMarkdown = "markdown"
	FormatJSON     = "json"

	// outputTail is how many trailing lines of a failing command are shown.
	outputTail = 20
	failWidth  = 60
)

// CheckFormat rejects unknown output formats before any work starts.
func CheckFormat(f string) error {
	switch f {
	case "", FormatPretty, FormatMarkdown, FormatJSON:
		return nil
	}
	return fmt.Errorf("unsupported format %q (expected pretty|markdown|json)", f)
}

// WriteRun renders a gate run. runID is the stored artifact id, empty when not saved.
func WriteRun(w io.Writer, run domain.GateRun, runID, f string) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		payload := map[string]any{
			"run_id":  runID,
			"verdict": run.Verdict,
			"summary": run.Summary(),
			"run":     run,
		}
		return enc.Encode(payload)
	case FormatPretty, "":
		writeRunText(w, run, runID, format.ASCII)
		return nil
	case FormatMarkdown:
		writeRunText(w, run, runID, format.Markdown)
		return nil
	default:
		return CheckFormat(f)
	}
}

func writeRunText(w io.Writer, run domain.GateRun, runID string, mode format.Mode) {
	md := mode == format.Markdown

	if md {
		fmt.Fprintf(w, "## Gate %s: %s\n\n", run.WorkflowName, strings.ToUpper(string(run.Verdict)))
	} else {
		fmt.Fprintf(w, "Workflow:   %s\n", run.WorkflowName)
	}
	kv := func(k, v string) {
		if md {
			fmt.Fprintf(w, "- **%s**: %s\n", k, v)
			return
		}
		fmt.Fprintf(w, "%-11s %s\n", k+":", v)
	}
	if run.Revision != "" {
		kv("Revision", run.Revision)
	}
	kv("Executor", run.Executor)
	if !run.StartedAt.IsZero() {
		kv("Started", run.StartedAt.Format(time.RFC3339))
	}
	kv("Duration", run.Duration().Round(time.Millisecond).String())
	if runID != "" {
		kv("Run ID", runID)
	}
	fmt.Fprintln(w)

	tb := format.NewTable(mode)
	tb.Header("Job", "Toolchain", "Platform", "Status", "Failure", "Duration")
	for _, c := range run.Cells {
		tb.Row(c.Cell.Job, toolchainLabel(c.Cell), c.Cell.Platform, statusLabel(c.Status), failureLabel(c), cellDuration(c))
	}
	s := run.Summary()
	tb.Footer(fmt.Sprintf("%d cells", s.Total), "", "", fmt.Sprintf("%d passed", s.Passed), fmt.Sprintf("%d failed", s.Failed+s.Cancelled), "")
	if !md {
		tb.Columns(format.ColumnConfig{Number: 5, MaxWidth: failWidth}, format.ColumnConfig{Number: 6, Align: format.AlignRight})
	}
	fmt.Fprintln(w, tb.String())

	for _, c := range run.FailedCells() {
		writeFailureDetail(w, c, md)
	}

	fmt.Fprintln(w)
	if md {
		fmt.Fprintf(w, "**Verdict: %s**\n", strings.ToUpper(string(run.Verdict)))
		return
	}
	fmt.Fprintf(w, "Verdict: %s (%d/%d cells passed)\n", strings.ToUpper(string(run.Verdict)), s.Passed, s.Total)
}

func writeFailureDetail(w io.Writer, c domain.CellResult, md bool) {
	step, ok := c.FailedStep()
	fmt.Fprintln(w)
	if md {
		fmt.Fprintf(w, "### %s\n\n", c.Cell.ID())
	} else {
		fmt.Fprintf(w, "✗ %s\n", c.Cell.ID())
	}
	if c.Failure != nil {
		fmt.Fprintf(w, "  %s: %s\n", c.Failure.Kind, c.Failure.Message)
	}
	if !ok {
		return
	}
	if len(step.Command) > 0 {
		fmt.Fprintf(w, "  $ %s\n", strings.Join(step.Command, " "))
	}
	tail := Tail(step.Output.Text, outputTail)
	if tail == "" {
		return
	}
	if md {
		fmt.Fprintf(w, "\n```\n%s\n```\n", tail)
		return
	}
	for _, line := range strings.Split(tail, "\n") {
		fmt.Fprintf(w, "  | %s\n", line)
	}
}

// Tail returns the last n lines of s without trailing newlines.
func Tail(s string, n int) string {
	s = strings.TrimRight(s, "\n")
	if s == "" || n <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}

func toolchainLabel(c domain.Cell) string {
	if c.Pinned() {
		return fmt.Sprintf("%s→%s", c.Declared, c.Toolchain)
	}
	return string(c.Toolchain)
}

func statusLabel(s domain.Status) string {
	switch s {
	case domain.StatusSuccess:
		return "✓ pass"
	case domain.StatusFailed:
		return "✗ fail"
	case domain.StatusCancelled:
		return "⊘ cancelled"
	default:
		return string(s)
	}
}

func failureLabel(c domain.CellResult) string {
	if c.Failure == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", c.Failure.Kind, c.Failure.Message)
}

func cellDuration(c domain.CellResult) string {
	if c.StartedAt.IsZero() || c.EndedAt.IsZero() {
		return "-"
	}
	return c.EndedAt.Sub(c.StartedAt).Round(time.Millisecond).String()
}

// WritePlan renders the dry-run command list of every cell.
func WritePlan(w io.Writer, plan usecase.Plan, f string) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(plan)
	case FormatPretty, "", FormatMarkdown:
		mode := format.ASCII
		if f == FormatMarkdown {
			mode = format.Markdown
		}
		tb := format.NewTable(mode)
		tb.Header("#", "Cell", "Toolchain", "Commands")
		for i, pc := range plan.Cells {
			tb.Row(i+1, pc.Cell.ID(), toolchainLabel(pc.Cell), strings.Join(pc.Commands, "\n"))
		}
		tb.Footer("", fmt.Sprintf("%d cells", len(plan.Cells)), "", "")
		fmt.Fprintf(w, "Workflow: %s\n\n%s\n", plan.Workflow, tb.String())
		return nil
	default:
		return CheckFormat(f)
	}
}

// WriteRuns renders the stored run index, newest first.
func WriteRuns(w io.Writer, refs []domain.RunRef, f string) error {
	switch f {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if refs == nil {
			refs = []domain.RunRef{}
		}
		return enc.Encode(refs)
	case FormatPretty, "", FormatMarkdown:
		if len(refs) == 0 {
			fmt.Fprintln(w, "(no runs found)")
			return nil
		}
		mode := format.ASCII
		if f == FormatMarkdown {
			mode = format.Markdown
		}
		tb := format.NewTable(mode)
		tb.Header("ID", "Workflow", "Revision", "Verdict", "Cells", "Failed", "Started")
		for _, r := range refs {
			tb.Row(r.ID, r.WorkflowName, shortRev(r.Revision), r.Verdict, r.Cells, r.Failed, r.StartedAt.Local().Format(time.DateTime))
		}
		fmt.Fprintln(w, tb.String())
		return nil
	default:
		return CheckFormat(f)
	}
}

// WriteValidation prints findings one per line followed by a summary.
func WriteValidation(w io.Writer, rep usecase.ValidationReport) {
	for _, f := range rep.Findings {
		fmt.Fprintln(w, f.String())
	}
	errs, warns := len(rep.Errors()), len(rep.Warnings())
	if errs == 0 {
		fmt.Fprintf(w, "OK: %s expands to %d cells (%d warnings)\n", rep.Workflow, rep.Cells, warns)
		return
	}
	fmt.Fprintf(w, "INVALID: %d errors, %d warnings\n", errs, warns)
}

func shortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	return rev
}
