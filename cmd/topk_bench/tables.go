// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"strconv"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/topk/pkg/core/layout"
)

// benchResult of one algorithm.
type benchResult struct {
	algorithm string
	kernel    bool
	dims      layout.Dims
	perRun    time.Duration
	rate      float64 // Elements per second.
	matches   bool    // Whether the outputs are identical to the reference implementation.
}

// column of the results table: how to render one cell of a result.
type column struct {
	header string
	align  lipgloss.Position
	cell   func(r benchResult) string
}

var columns = []column{
	{"algorithm", lipgloss.Left, func(r benchResult) string { return r.algorithm }},
	{"implementation", lipgloss.Left, func(r benchResult) string {
		if r.kernel {
			return "kernel"
		}
		return "reference"
	}},
	{"dims", lipgloss.Left, func(r benchResult) string { return r.dims.String() }},
	{"innermost", lipgloss.Center, func(r benchResult) string { return strconv.FormatBool(r.dims.Innermost()) }},
	{"time/run", lipgloss.Right, func(r benchResult) string { return r.perRun.String() }},
	{"elements/s", lipgloss.Right, func(r benchResult) string { return humanize.SIWithDigits(r.rate, 2, "") }},
	{"matches reference", lipgloss.Center, func(r benchResult) string {
		if r.matches {
			return "yes"
		}
		return "NO"
	}},
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
	headerStyle = lipgloss.NewStyle().Reverse(true).Padding(0, 2).Align(lipgloss.Center)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	mismatch    = lipgloss.AdaptiveColor{Light: "9", Dark: "9"}
	fastest     = lipgloss.AdaptiveColor{Light: "28", Dark: "10"}
)

// fastestMatch returns the row of the fastest result that matches the reference, or -1 if none does.
func fastestMatch(results []benchResult) int {
	best := -1
	for row, r := range results {
		if r.matches && (best < 0 || r.perRun < results[best].perRun) {
			best = row
		}
	}
	return best
}

// renderResults renders the results table: rows that differ from the reference are shown in bold red,
// the fastest correct row in green, and runs on the reference implementation are dimmed.
func renderResults(results []benchResult) string {
	best := fastestMatch(results)
	rows := make([][]string, len(results))
	for row, r := range results {
		rows[row] = make([]string, len(columns))
		for col, c := range columns {
			rows[row][col] = c.cell(r)
		}
	}
	headers := make([]string, len(columns))
	for col, c := range columns {
		headers[col] = c.header
	}
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row < 0 {
				return headerStyle
			}
			s := cellStyle.Align(columns[col].align)
			r := results[row]
			switch {
			case !r.matches:
				return s.Foreground(mismatch).Bold(true)
			case row == best:
				s = s.Foreground(fastest)
			}
			return s.Faint(!r.kernel)
		}).
		Render()
}
