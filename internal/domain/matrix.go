package domain

import (
	"fmt"
	"strings"
)

// Cell is one (job, toolchain, platform) combination of a matrix.
type Cell struct {
	Job      string   `json:"job"`
	Platform Platform `json:"platform"`

	// Declared is the matrix label; Toolchain is what actually gets installed.
	// They differ when the job's install section pins a toolchain.
	Declared  Toolchain `json:"declared"`
	Toolchain Toolchain `json:"toolchain"`
}

// ID returns a stable identifier such as "test/stable/linux".
func (c Cell) ID() string {
	return fmt.Sprintf("%s/%s/%s", c.Job, c.Declared, c.Platform)
}

// Pinned reports whether the installed toolchain differs from the matrix label.
func (c Cell) Pinned() bool {
	return c.Declared != c.Toolchain
}

// MatrixFilter narrows which cells take part in a run. Empty fields select everything.
type MatrixFilter struct {
	Jobs       []string
	Toolchains []Toolchain
	Platforms  []Platform
}

func (f MatrixFilter) IsZero() bool {
	return len(f.Jobs) == 0 && len(f.Toolchains) == 0 && len(f.Platforms) == 0
}

func (f MatrixFilter) match(c Cell) bool {
	if len(f.Jobs) > 0 && !containsFold(f.Jobs, c.Job) {
		return false
	}
	if len(f.Toolchains) > 0 {
		ok := false
		for _, t := range f.Toolchains {
			if t == c.Declared || t == c.Toolchain {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	if len(f.Platforms) > 0 {
		ok := false
		for _, p := range f.Platforms {
			if p == c.Platform {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// ExpandJob returns the cross product of a job's matrix, toolchain-major, in
// declaration order. Duplicate axis values are collapsed.
func ExpandJob(j Job) []Cell {
	toolchains := dedupe(j.Matrix.Toolchains)
	platforms := dedupe(j.Matrix.Platforms)

	cells := make([]Cell, 0, len(toolchains)*len(platforms))
	for _, tc := range toolchains {
		effective := tc
		if j.Install.Toolchain != "" {
			effective = j.Install.Toolchain
		}
		for _, p := range platforms {
			cells = append(cells, Cell{
				Job:       j.ID,
				Platform:  p,
				Declared:  tc,
				Toolchain: effective,
			})
		}
	}
	return cells
}

// Expand returns every cell of every job in the workflow that passes the filter.
func Expand(w Workflow, f MatrixFilter) []Cell {
	var out []Cell
	for _, j := range w.Jobs {
		for _, c := range ExpandJob(j) {
			if f.match(c) {
				out = append(out, c)
			}
		}
	}
	return out
}

func dedupe[T comparable](in []T) []T {
	seen := make(map[T]bool, len(in))
	out := make([]T, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func containsFold(list []string, s string) bool {
	for _, v := range list {
		if strings.EqualFold(strings.TrimSpace(v), s) {
			return true
		}
	}
	return false
}
