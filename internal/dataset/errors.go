package dataset

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnsupportedFormat indicates a file extension the loader cannot read.
var ErrUnsupportedFormat = errors.New("unsupported dataset format")

// ErrNoHeader indicates an empty file or sheet.
var ErrNoHeader = errors.New("dataset has no header row")

// MissingColumnsError lists every required column absent from the header.
type MissingColumnsError struct {
	File    string
	Columns []string
}

func (e *MissingColumnsError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("missing column(s) in %s: %s", e.File, strings.Join(e.Columns, ", "))
	}
	return fmt.Sprintf("missing column(s): %s", strings.Join(e.Columns, ", "))
}
