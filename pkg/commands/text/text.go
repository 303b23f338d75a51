// Package text formats help and tabular output of the console commands.
package text

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Indentation is the indentation of examples in help output.
const Indentation = `  `

// LongDesc trims a long description.
func LongDesc(s string) string {
	return strings.TrimSpace(s)
}

// Examples trims examples and indents every line.
func Examples(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return s
	}

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = Indentation + strings.TrimSpace(line)
	}

	return strings.Join(lines, "\n")
}

// Table writes rows as aligned columns separated by two spaces.
func Table(w io.Writer, rows [][]string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	for _, row := range rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}

	return tw.Flush()
}
