package trace

import (
	"fmt"
	"io"
	"strings"
)

const (
	rootNameWidth  = 48
	queryNameWidth = 50
	indentStep     = 2
)

// Render lays t out as a report, one string per line. Each nesting level is
// indented by two more spaces; timings and entity counts stay column-aligned.
func Render(name string, t Trace, indent int) []string {
	var lines []string
	render(&lines, name, t, indent)
	return lines
}

// Write renders t to w.
func Write(w io.Writer, name string, t Trace) error {
	for _, line := range Render(name, t, 0) {
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return fmt.Errorf("failed to write report: %w", err)
		}
	}
	return nil
}

func render(lines *[]string, name string, t Trace, indent int) {
	pad := strings.Repeat(" ", indent)
	switch n := t.(type) {
	case *Root:
		*lines = append(*lines, fmt.Sprintf("%s%-*s %7dms",
			pad, nameWidth(rootNameWidth, indent), name, n.Elapsed.Milliseconds()))
		for _, c := range n.Children {
			render(lines, c.Name, c.Trace, indent+indentStep)
		}
		s := Summarize(n)
		*lines = append(*lines,
			"",
			summaryLine("query:", s.Query.Milliseconds()),
			summaryLine("other:", s.Other.Milliseconds()),
			summaryLine("total:", s.Total.Milliseconds()),
		)
	case *Query:
		*lines = append(*lines, fmt.Sprintf("%s%-*s %7dms [%7d entities]",
			pad, nameWidth(queryNameWidth, indent), name, n.Elapsed.Milliseconds(), n.EntityCount))
		for _, c := range n.Children {
			render(lines, c.Name, c.Trace, indent+indentStep)
		}
	}
}

func summaryLine(label string, ms int64) string {
	return fmt.Sprintf("%-11s %7dms", label, ms)
}

func nameWidth(width, indent int) int {
	if indent >= width {
		return 0
	}
	return width - indent
}
