package format

import (
	"strings"
	"testing"

	"github.com/jedib0t/go-pretty/v6/text"
)

func TestNewTable_ASCII(t *testing.T) {
	tb := NewTable(ASCII)
	tb.Header("Cell", "Status")
	tb.Row("test/stable/linux", "success")
	tb.Footer("1 cell", "")

	out := tb.String()
	for _, want := range []string{"CELL", "test/stable/linux", "success", "┌"} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
}

func TestNewTable_Markdown(t *testing.T) {
	tb := NewTable(Markdown)
	tb.Header("Cell", "Status")
	tb.Row("lint/nightly/macos", "failed")
	tb.Columns(ColumnConfig{Number: 2, Align: AlignCenter})

	out := tb.String()
	if !strings.Contains(strings.ToLower(out), "| cell | status |") {
		t.Errorf("missing markdown header in:\n%s", out)
	}
	if !strings.Contains(out, "lint/nightly/macos") || !strings.HasPrefix(strings.TrimSpace(out), "|") {
		t.Errorf("missing markdown row in:\n%s", out)
	}
}

func TestColumns_MaxWidthWraps(t *testing.T) {
	tb := NewTable(ASCII)
	tb.Header("Failure")
	tb.Row(strings.Repeat("x", 40))
	tb.Columns(ColumnConfig{Number: 1, MaxWidth: 10})

	for _, line := range strings.Split(tb.String(), "\n") {
		if strings.Contains(line, strings.Repeat("x", 11)) {
			t.Fatalf("column not bounded:\n%s", tb.String())
		}
	}
}

func TestToTextAlign(t *testing.T) {
	tests := map[ColumnAlign]text.Align{
		AlignDefault: text.AlignDefault,
		AlignLeft:    text.AlignLeft,
		AlignCenter:  text.AlignCenter,
		AlignRight:   text.AlignRight,
	}
	for in, want := range tests {
		if got := toTextAlign(in); got != want {
			t.Errorf("toTextAlign(%d)=%v want %v", in, got, want)
		}
	}
}

func TestFooter_KeepsCase(t *testing.T) {
	tb := NewTable(ASCII)
	tb.Header("Cell", "Status")
	tb.Row("test/beta/windows", "success")
	tb.Footer("15 cells", "14 passed")

	if out := tb.String(); !strings.Contains(out, "15 cells") {
		t.Fatalf("footer should render as written:\n%s", out)
	}
}

func TestToTextAlign_OutOfRange(t *testing.T) {
	if got := toTextAlign(ColumnAlign(42)); got != text.AlignDefault {
		t.Fatalf("got %v", got)
	}
}
