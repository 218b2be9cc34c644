package output

import (
	"bytes"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// TableFormatter formats results as human-readable tables. Results that are not Tabular fall back to YAML.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// Format renders v as a table when it is Tabular.
func (f *TableFormatter) Format(v interface{}) (string, error) {
	t, ok := v.(Tabular)
	if !ok {
		return (&YAMLFormatter{}).Format(v)
	}

	rows := t.Rows()
	if len(rows) == 0 {
		return "No results found\n", nil
	}

	var buf bytes.Buffer
	if err := f.writeTable(&buf, t.Header(), rows); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// writeTable aligns header and rows into columns on out. Empty cells are rendered as "-".
func (f *TableFormatter) writeTable(out io.Writer, header []string, rows [][]string) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, strings.Join(header, "\t"))
	}

	for _, row := range rows {
		cells := make([]string, len(row))
		for i, c := range row {
			if c == "" {
				c = "-"
			}
			cells[i] = c
		}
		_, _ = fmt.Fprintln(w, strings.Join(cells, "\t"))
	}

	return w.Flush()
}
