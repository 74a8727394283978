package dataset

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

func loadCSV(path string, opt Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()
	return readCSV(f, path, opt)
}

// ReadCSV loads a dataset from r. name is used for messages and for
// extension-based delimiter hints.
func ReadCSV(r io.Reader, name string, opt Options) (*Dataset, error) {
	return readCSV(r, name, opt)
}

func readCSV(src io.Reader, path string, opt Options) (*Dataset, error) {
	br := bufio.NewReader(src)
	delim := opt.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br, path)
	}
	r := csv.NewReader(br)
	r.ReuseRecord = true
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	r.Comma = delim

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%s: %w", filepath.Base(path), ErrNoHeader)
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	// header is reused by the reader
	hdr := append([]string(nil), header...)
	b, err := newBuilder(path, hdr, opt)
	if err != nil {
		return nil, err
	}
	for {
		rec, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", b.ds.RowsRead+1, err)
		}
		b.add(rec)
	}
	return b.finish(), nil
}
