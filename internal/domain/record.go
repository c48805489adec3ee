package domain

import (
	"fmt"
	"strings"
)

// NormalizedName is a canonical name string produced by the normalizer.
type NormalizedName string

// EmptyName is what blank input normalizes to. It never matches anything.
const EmptyName NormalizedName = ""

// IsEmpty reports whether the name is the empty sentinel.
func (n NormalizedName) IsEmpty() bool {
	return n == EmptyName
}

func (n NormalizedName) String() string {
	return string(n)
}

// Record is one row of a tabular input, keyed by column name.
type Record struct {
	Index  int
	Fields map[string]string
}

// Get returns the value of a field, or "" when the field is missing.
func (r Record) Get(field string) string {
	return r.Fields[field]
}

// Table is an ordered set of records that share one header.
type Table struct {
	Header  []string
	Records []Record
}

// NewTable creates an empty table with a copy of the header.
func NewTable(header []string) *Table {
	return &Table{Header: append([]string(nil), header...)}
}

// Append adds a record; the record index is its position in the table.
func (t *Table) Append(fields map[string]string) {
	t.Records = append(t.Records, Record{Index: len(t.Records), Fields: fields})
}

// HasColumn reports whether the header contains name.
func (t *Table) HasColumn(name string) bool {
	for _, h := range t.Header {
		if h == name {
			return true
		}
	}
	return false
}

// AddColumn appends name to the header if it is not already present.
func (t *Table) AddColumn(name string) {
	if !t.HasColumn(name) {
		t.Header = append(t.Header, name)
	}
}

// RequireColumns returns ErrMissingColumn naming the first absent column.
func (t *Table) RequireColumns(names ...string) error {
	for _, name := range names {
		if name == "" {
			continue
		}
		if !t.HasColumn(name) {
			return fmt.Errorf("%w: %q", ErrMissingColumn, name)
		}
	}
	return nil
}

// ColumnsContaining returns header columns whose lower-cased name contains any of the terms,
// in header order.
func (t *Table) ColumnsContaining(terms ...string) []string {
	var cols []string
	for _, h := range t.Header {
		lower := strings.ToLower(h)
		for _, term := range terms {
			if strings.Contains(lower, term) {
				cols = append(cols, h)
				break
			}
		}
	}
	return cols
}

// Clone deep-copies the table so a stage can derive output without touching its input.
func (t *Table) Clone() *Table {
	clone := NewTable(t.Header)
	clone.Records = make([]Record, len(t.Records))
	for i, rec := range t.Records {
		fields := make(map[string]string, len(rec.Fields))
		for k, v := range rec.Fields {
			fields[k] = v
		}
		clone.Records[i] = Record{Index: rec.Index, Fields: fields}
	}
	return clone
}

// Limit returns a table holding at most the first n records. n <= 0 means no limit.
func (t *Table) Limit(n int) *Table {
	if n <= 0 || n >= len(t.Records) {
		return t
	}
	limited := NewTable(t.Header)
	limited.Records = t.Records[:n]
	return limited
}

// Rows renders the records as string slices in header order.
func (t *Table) Rows() [][]string {
	rows := make([][]string, len(t.Records))
	for i, rec := range t.Records {
		row := make([]string, len(t.Header))
		for j, h := range t.Header {
			row[j] = rec.Fields[h]
		}
		rows[i] = row
	}
	return rows
}
