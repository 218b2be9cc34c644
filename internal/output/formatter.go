// Package output renders command results as YAML or tables.
package output

import (
	"fmt"
	"io"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format for machine consumption.
	FormatYAML Format = "yaml"
)

// Tabular is implemented by results that render as rows of a table.
type Tabular interface {
	Header() []string
	Rows() [][]string
}

// Formatter renders a result.
type Formatter interface {
	Format(v interface{}) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml)", format)
	}
}

// Print formats v with f and writes it to w.
func Print(w io.Writer, f Formatter, v interface{}) error {
	s, err := f.Format(v)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, s)
	return err
}
