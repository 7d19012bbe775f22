// Package format renders gate tables, either boxed for a terminal or as
// GitHub-flavoured Markdown for job summaries and PR comments.
package format

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

type Mode int

const (
	ASCII Mode = iota
	Markdown
)

type ColumnAlign int

const (
	AlignDefault ColumnAlign = iota
	AlignLeft
	AlignCenter
	AlignRight
)

var textAligns = [...]text.Align{
	AlignDefault: text.AlignDefault,
	AlignLeft:    text.AlignLeft,
	AlignCenter:  text.AlignCenter,
	AlignRight:   text.AlignRight,
}

// ColumnConfig tunes one column. Number is 1-based; MaxWidth 0 leaves the
// column unbounded, otherwise long values wrap.
type ColumnConfig struct {
	Number   int
	Align    ColumnAlign
	MaxWidth int
}

// Table accumulates a header, rows and an optional footer and renders them
// in the Mode it was created with.
type Table struct {
	w    table.Writer
	mode Mode
}

func NewTable(m Mode) *Table {
	w := table.NewWriter()
	if m == ASCII {
		style := table.StyleLight
		style.Format.Footer = text.FormatDefault
		w.SetStyle(style)
	}
	return &Table{w: w, mode: m}
}

func (t *Table) Header(cols ...string) {
	t.w.AppendHeader(toRow(cols))
}

func (t *Table) Row(vals ...any) {
	t.w.AppendRow(append(table.Row{}, vals...))
}

func (t *Table) Footer(vals ...any) {
	t.w.AppendFooter(append(table.Row{}, vals...))
}

func (t *Table) Columns(cfgs ...ColumnConfig) {
	cc := make([]table.ColumnConfig, 0, len(cfgs))
	for _, c := range cfgs {
		cc = append(cc, table.ColumnConfig{
			Number:   c.Number,
			Align:    toTextAlign(c.Align),
			WidthMax: c.MaxWidth,
		})
	}
	t.w.SetColumnConfigs(cc)
}

func (t *Table) String() string {
	if t.mode == Markdown {
		return t.w.RenderMarkdown()
	}
	return t.w.Render()
}

func toRow(cols []string) table.Row {
	r := make(table.Row, 0, len(cols))
	for _, c := range cols {
		r = append(r, c)
	}
	return r
}

func toTextAlign(a ColumnAlign) text.Align {
	if a < 0 || int(a) >= len(textAligns) {
		return text.AlignDefault
	}
	return textAligns[a]
}
