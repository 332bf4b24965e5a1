// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	redRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 0, 4)
)

// TableWithReds is a table where some rows can be highlighted in red.
type TableWithReds struct {
	Table *lgtable.Table
	Count int
	Reds  map[int]bool
}

// Row appends a row, highlighted if isRed.
func (t *TableWithReds) Row(isRed bool, row ...string) {
	if isRed {
		t.Reds[t.Count] = true
	}
	t.Table.Row(row...)
	t.Count++
}

// Render the table.
func (t *TableWithReds) Render() string { return t.Table.Render() }

// newTable creates a table with the given headers (if any) and column alignments.
// The last alignment is used for the remaining columns.
func newTable(headers []string, alignments ...lipgloss.Position) *TableWithReds {
	t := &TableWithReds{
		Reds: make(map[int]bool),
	}
	t.Table = lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			if row < 0 {
				s = headerRowStyle
				return
			}
			if t.Reds[row] {
				s = redRowStyle
			} else {
				switch {
				case row%2 == 0:
					// Even row style.
					s = oddRowStyle
				default:
					// Odd row style
					s = evenRowStyle
				}
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			s = s.Align(alignment)
			return
		})
	if len(headers) > 0 {
		t.Table.Headers(headers...)
	}
	return t
}
