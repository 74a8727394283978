package dataset

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Options controls how a dataset file is read.
type Options struct {
	// MaxRows keeps only the most recent MaxRows usable records; 0 means unlimited.
	MaxRows int
	// Delimiter for CSV. If 0, sniffed from the header line.
	Delimiter rune
	// Numeric parsing locale. If DecimalSeparator is 0, auto-detect per value.
	DecimalSeparator   rune
	ThousandsSeparator rune
	// XLSX sheet selection. SheetName wins over SheetIndex (1-based).
	SheetName  string
	SheetIndex int
}

// DefaultOptions returns options suitable for comma separated files with '.' decimals.
func DefaultOptions() Options {
	return Options{SheetIndex: 1}
}

// Load reads a CSV/TSV or XLSX dataset and validates the required columns.
func Load(path string, opt Options) (*Dataset, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("dataset %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv", ".tsv", ".txt":
		return loadCSV(path, opt)
	case ".xlsx", ".xlsm":
		return loadXLSX(path, opt)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// builder turns raw rows into records.
type builder struct {
	ds       *Dataset
	cols     []string
	yieldIdx int
	opt      Options
	skipped  int
}

func newBuilder(path string, header []string, opt Options) (*builder, error) {
	name := filepath.Base(path)
	if len(header) == 0 {
		return nil, fmt.Errorf("%s: %w", name, ErrNoHeader)
	}
	cols := make([]string, len(header))
	present := make(map[string]int, len(header))
	for i, h := range header {
		c := canonicalName(h)
		cols[i] = c
		if _, dup := present[c]; !dup {
			present[c] = i
		}
	}
	var missing []string
	for _, c := range RequiredColumns {
		if _, ok := present[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingColumnsError{File: name, Columns: missing}
	}
	return &builder{
		ds:       &Dataset{Name: name, Path: path, Columns: cols},
		cols:     cols,
		yieldIdx: present[ColCropYield],
		opt:      opt,
	}, nil
}

func (b *builder) add(rec []string) {
	b.ds.RowsRead++
	row := b.ds.RowsRead
	if b.yieldIdx >= len(rec) {
		b.skipped++
		return
	}
	if _, ok := parseNumeric(rec[b.yieldIdx], b.opt); !ok {
		b.skipped++
		return
	}
	vals := make(map[string]float64, len(b.cols))
	for j, c := range b.cols {
		if j >= len(rec) {
			break
		}
		if _, dup := vals[c]; dup {
			continue
		}
		if x, ok := parseNumeric(rec[j], b.opt); ok {
			vals[c] = x
		}
	}
	b.ds.Records = append(b.ds.Records, Record{Row: row, Values: vals})
	if b.opt.MaxRows > 0 && len(b.ds.Records) > 2*b.opt.MaxRows {
		b.trim()
	}
}

func (b *builder) trim() {
	if b.opt.MaxRows <= 0 || len(b.ds.Records) <= b.opt.MaxRows {
		return
	}
	keep := make([]Record, b.opt.MaxRows)
	copy(keep, b.ds.Records[len(b.ds.Records)-b.opt.MaxRows:])
	b.ds.Records = keep
}

func (b *builder) finish() *Dataset {
	usable := b.ds.RowsRead - b.skipped
	b.trim()
	if b.skipped > 0 {
		b.ds.Warnings = append(b.ds.Warnings, fmt.Sprintf("skipped %d row(s) without a numeric %s", b.skipped, ColCropYield))
	}
	if usable > len(b.ds.Records) {
		b.ds.Warnings = append(b.ds.Warnings, fmt.Sprintf("using the latest %d of %d usable rows due to MaxRows", len(b.ds.Records), usable))
	}
	return b.ds
}
