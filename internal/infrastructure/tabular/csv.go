// Package tabular reads and writes the CSV files exchanged between stages.
package tabular

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vineetdaniels2108/npi-data-dashboard/internal/domain"
)

const utf8BOM = "\uFEFF"

// ReadFile loads a CSV file with a header row.
// Any failure to open or parse the file wraps domain.ErrInputUnreadable.
func ReadFile(path string) (*domain.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", domain.ErrInputUnreadable, filepath.Base(path), err)
	}
	defer f.Close()

	table, err := Read(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return table, nil
}

// Read parses CSV from r. Short rows are padded with empty cells and cells
// beyond the header are dropped.
func Read(r io.Reader) (*domain.Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrInputUnreadable, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: empty file", domain.ErrInputUnreadable)
	}

	header := uniqueHeader(rows[0])
	table := domain.NewTable(header)
	for _, row := range rows[1:] {
		if isBlankRow(row) {
			continue
		}
		fields := make(map[string]string, len(header))
		for i, name := range header {
			if i < len(row) {
				fields[name] = row[i]
			} else {
				fields[name] = ""
			}
		}
		table.Append(fields)
	}
	return table, nil
}

// uniqueHeader trims names, strips a leading BOM and suffixes repeats with _2, _3...
func uniqueHeader(raw []string) []string {
	header := make([]string, len(raw))
	used := make(map[string]bool, len(raw))
	for i, cell := range raw {
		name := strings.TrimSpace(cell)
		if i == 0 {
			name = strings.TrimSpace(strings.TrimPrefix(name, utf8BOM))
		}
		if name == "" {
			name = "column_" + strconv.Itoa(i+1)
		}
		if used[name] {
			// a generated name may already be a column of its own
			base := name
			for n := 2; used[name]; n++ {
				name = base + "_" + strconv.Itoa(n)
			}
		}
		used[name] = true
		header[i] = name
	}
	return header
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

// WriteFile creates path and writes header and rows to it. An existing file is
// never overwritten; that case wraps domain.ErrArtifactExists.
func WriteFile(path string, header []string, rows [][]string) (err error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return fmt.Errorf("%w: %s", domain.ErrArtifactExists, path)
		}
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	return Write(f, header, rows)
}

// Write encodes header and rows as CSV.
func Write(w io.Writer, header []string, rows [][]string) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	if err := writer.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write rows: %w", err)
	}
	return nil
}
