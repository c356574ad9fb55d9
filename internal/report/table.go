// Package report renders CPDs, query results and validation outcomes as
// text tables for human consumption.
package report

import (
	"bufio"
	"io"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Options control how a table is generated.
type Options int

const (
	// HeaderRow separates the first row from the rest with a divider.
	HeaderRow Options = 1 << iota
	// FooterRow separates the last row from the rest with a divider.
	FooterRow
	// SkipEmpty writes nothing when the table has no data rows.
	SkipEmpty
	// RightJustify left-pads cells instead of right-padding them.
	RightJustify
)

func (o Options) chromeRows() int {
	r := 0
	if o&HeaderRow != 0 {
		r++
	}
	if o&FooterRow != 0 {
		r++
	}
	return r
}

// PrettyPrint writes t as a table. Cells may span lines using \n.
func PrettyPrint(dest io.Writer, t [][]string, opts Options) {
	if len(t) == 0 || (opts&SkipEmpty != 0 && len(t) <= opts.chromeRows()) {
		return
	}
	w := bufio.NewWriterSize(dest, 256)
	defer w.Flush()

	table := make([][]cell, len(t))
	for r, row := range t {
		table[r] = make([]cell, len(row))
		for c, s := range row {
			table[r][c] = makeCell(s)
		}
	}
	for c := range table[0] {
		width := 0
		for r := range table {
			if c < len(table[r]) && table[r][c].width > width {
				width = table[r][c].width
			}
		}
		for r := range table {
			if c < len(table[r]) {
				table[r][c].pad(opts, len(table[r][c].lines), width)
			}
		}
	}

	divider := func() {
		for _, c := range table[0] {
			io.WriteString(w, " ")
			io.WriteString(w, strings.Repeat("-", c.width))
			io.WriteString(w, " |")
		}
		io.WriteString(w, "\n")
	}
	for r, row := range table {
		height := 0
		for c := range row {
			if h := len(row[c].lines); h > height {
				height = h
			}
		}
		for c := range row {
			row[c].pad(opts, height, row[c].width)
		}
		for l := 0; l < height; l++ {
			for c := range row {
				io.WriteString(w, " ")
				io.WriteString(w, row[c].lines[l])
				io.WriteString(w, " |")
			}
			io.WriteString(w, "\n")
		}
		if (opts&HeaderRow != 0 && r == 0) || (opts&FooterRow != 0 && r == len(table)-2) {
			divider()
		}
	}
}

type cell struct {
	lines []string
	width int
}

func makeCell(s string) cell {
	c := cell{lines: strings.Split(s, "\n")}
	for _, l := range c.lines {
		if w := charsWide(l); w > c.width {
			c.width = w
		}
	}
	return c
}

// pad grows the cell to at least height lines of width characters.
func (c *cell) pad(opts Options, height, width int) {
	for len(c.lines) < height {
		c.lines = append(c.lines, "")
	}
	for i, l := range c.lines {
		if lw := charsWide(l); lw < width {
			fill := strings.Repeat(" ", width-lw)
			if opts&RightJustify != 0 {
				c.lines[i] = fill + l
			} else {
				c.lines[i] = l + fill
			}
		}
	}
	c.width = width
}

// charsWide estimates the terminal width of s after NFC normalisation.
func charsWide(s string) int {
	return utf8.RuneCountInString(norm.NFC.String(s))
}
