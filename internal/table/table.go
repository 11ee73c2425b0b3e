// Package table holds CSV-backed tabular data in column form. Cells are
// strings; configured NA markers normalize to a missing state that survives a
// read/write round-trip. This is the substrate the cleaning operations work on.
package table

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrColumnNotFound is returned when a column name does not exist.
var ErrColumnNotFound = errors.New("table: column not found")

// Options controls NA handling.
type Options struct {
	// NAMarkers lists cell values treated as missing on input. Defaults to
	// "" and "NA", matching the published training data.
	NAMarkers []string
	// WriteNA is the rendering of missing cells on output. Defaults to "NA".
	WriteNA string
}

func (o Options) withDefaults() Options {
	if o.NAMarkers == nil {
		o.NAMarkers = []string{"", "NA"}
	}
	if o.WriteNA == "" {
		o.WriteNA = "NA"
	}
	return o
}

func (o Options) markerSet() map[string]struct{} {
	set := make(map[string]struct{}, len(o.NAMarkers))
	for _, m := range o.NAMarkers {
		set[m] = struct{}{}
	}
	return set
}

// Column is a named vector of cells with a missing mask.
type Column struct {
	Name string

	cells   []string
	missing []bool
	na      map[string]struct{}
}

// Table is an ordered set of equal-length columns.
type Table struct {
	opts    Options
	na      map[string]struct{}
	columns []*Column
	index   map[string]int
	rows    int
}

// New creates an empty table with the given column names.
func New(names []string, opts Options) (*Table, error) {
	opts = opts.withDefaults()
	t := &Table{
		opts:  opts,
		na:    opts.markerSet(),
		index: make(map[string]int, len(names)),
	}
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("table: empty column name")
		}
		if _, exists := t.index[name]; exists {
			return nil, fmt.Errorf("table: duplicate column %s", name)
		}
		t.index[name] = len(t.columns)
		t.columns = append(t.columns, &Column{Name: name, na: t.na})
	}
	return t, nil
}

// ReadCSV parses CSV with a header row into a table.
func ReadCSV(r io.Reader, opts Options) (*Table, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("table: empty input, header row required")
		}
		return nil, fmt.Errorf("table: read header: %w", err)
	}
	t, err := New(header, opts)
	if err != nil {
		return nil, err
	}
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("table: read row %d: %w", t.rows+2, err)
		}
		if err := t.AppendRow(record); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// ReadFile parses a CSV file into a table.
func ReadFile(path string, opts Options) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("table: open %s: %w", path, err)
	}
	defer f.Close()
	t, err := ReadCSV(f, opts)
	if err != nil {
		return nil, fmt.Errorf("table: %s: %w", path, err)
	}
	return t, nil
}

// WriteCSV renders the table with its header row. Missing cells render as the
// configured WriteNA marker.
func (t *Table) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	header := make([]string, len(t.columns))
	for i, col := range t.columns {
		header[i] = col.Name
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("table: write header: %w", err)
	}
	record := make([]string, len(t.columns))
	for row := 0; row < t.rows; row++ {
		for i, col := range t.columns {
			if col.missing[row] {
				record[i] = t.opts.WriteNA
			} else {
				record[i] = col.cells[row]
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("table: write row %d: %w", row+2, err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return fmt.Errorf("table: flush: %w", err)
	}
	return nil
}

// WriteFile renders the table to a CSV file, creating parent directories.
func (t *Table) WriteFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("table: ensure dir for %s: %w", path, err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("table: create %s: %w", path, err)
	}
	if err := t.WriteCSV(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Rows returns the row count.
func (t *Table) Rows() int {
	return t.rows
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	out := make([]string, len(t.columns))
	for i, col := range t.columns {
		out[i] = col.Name
	}
	return out
}

// HasColumn reports whether a column exists.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[name]
	return ok
}

// Column returns the named column. The column is shared, not copied; cell
// mutations through it are visible to the table.
func (t *Table) Column(name string) (*Column, error) {
	i, ok := t.index[name]
	if !ok {
		return nil, fmt.Errorf("table: %s: %w", name, ErrColumnNotFound)
	}
	return t.columns[i], nil
}

// AppendRow adds one record; its width must match the column count.
func (t *Table) AppendRow(cells []string) error {
	if len(cells) != len(t.columns) {
		return fmt.Errorf("table: row %d has %d cells, want %d", t.rows+2, len(cells), len(t.columns))
	}
	for i, cell := range cells {
		t.columns[i].push(cell)
	}
	t.rows++
	return nil
}

// AddColumn appends a new column. Its length must match the row count unless
// the table has no columns yet.
func (t *Table) AddColumn(name string, cells []string) error {
	if name == "" {
		return fmt.Errorf("table: empty column name")
	}
	if _, exists := t.index[name]; exists {
		return fmt.Errorf("table: duplicate column %s", name)
	}
	if len(t.columns) > 0 && len(cells) != t.rows {
		return fmt.Errorf("table: column %s has %d cells, want %d", name, len(cells), t.rows)
	}
	col := &Column{Name: name, na: t.na}
	for _, cell := range cells {
		col.push(cell)
	}
	t.index[name] = len(t.columns)
	t.columns = append(t.columns, col)
	if len(t.columns) == 1 {
		t.rows = len(cells)
	}
	return nil
}

// Clone deep-copies the table.
func (t *Table) Clone() *Table {
	clone := &Table{
		opts:  t.opts,
		na:    t.na,
		index: make(map[string]int, len(t.index)),
		rows:  t.rows,
	}
	for _, col := range t.columns {
		cc := &Column{
			Name:    col.Name,
			cells:   append([]string{}, col.cells...),
			missing: append([]bool{}, col.missing...),
			na:      t.na,
		}
		clone.index[cc.Name] = len(clone.columns)
		clone.columns = append(clone.columns, cc)
	}
	return clone
}

// GroupBy buckets row indices by the key column's value. Rows whose key is
// missing are returned separately so callers can decide how to treat them.
func (t *Table) GroupBy(name string) (groups map[string][]int, missing []int, err error) {
	col, err := t.Column(name)
	if err != nil {
		return nil, nil, err
	}
	groups = make(map[string][]int)
	for i := 0; i < col.Len(); i++ {
		if col.missing[i] {
			missing = append(missing, i)
			continue
		}
		key := col.cells[i]
		groups[key] = append(groups[key], i)
	}
	return groups, missing, nil
}

func (c *Column) push(cell string) {
	if _, isNA := c.na[cell]; isNA {
		c.cells = append(c.cells, "")
		c.missing = append(c.missing, true)
		return
	}
	c.cells = append(c.cells, cell)
	c.missing = append(c.missing, false)
}

// Len returns the cell count.
func (c *Column) Len() int {
	return len(c.cells)
}

// IsMissing reports whether the cell at i is missing.
func (c *Column) IsMissing(i int) bool {
	return c.missing[i]
}

// Value returns the cell at i; ok is false for missing cells.
func (c *Column) Value(i int) (value string, ok bool) {
	if c.missing[i] {
		return "", false
	}
	return c.cells[i], true
}

// Set stores a value at i. NA markers normalize to missing.
func (c *Column) Set(i int, value string) {
	if _, isNA := c.na[value]; isNA {
		c.SetMissing(i)
		return
	}
	c.cells[i] = value
	c.missing[i] = false
}

// SetMissing marks the cell at i missing.
func (c *Column) SetMissing(i int) {
	c.cells[i] = ""
	c.missing[i] = true
}

// MissingCount returns the number of missing cells.
func (c *Column) MissingCount() int {
	n := 0
	for _, m := range c.missing {
		if m {
			n++
		}
	}
	return n
}

// Strings returns the non-missing values in row order.
func (c *Column) Strings() []string {
	out := make([]string, 0, len(c.cells))
	for i, cell := range c.cells {
		if !c.missing[i] {
			out = append(out, cell)
		}
	}
	return out
}

// Floats parses the non-missing values in row order. A cell that does not
// parse is an error naming the offending value.
func (c *Column) Floats() ([]float64, error) {
	out := make([]float64, 0, len(c.cells))
	for i, cell := range c.cells {
		if c.missing[i] {
			continue
		}
		v, err := parseFloat(cell)
		if err != nil {
			return nil, fmt.Errorf("table: column %s row %d: %w", c.Name, i+2, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// FloatAt parses the cell at i; ok is false for missing cells.
func (c *Column) FloatAt(i int) (value float64, ok bool, err error) {
	if c.missing[i] {
		return 0, false, nil
	}
	v, err := parseFloat(c.cells[i])
	if err != nil {
		return 0, false, fmt.Errorf("table: column %s row %d: %w", c.Name, i+2, err)
	}
	return v, true, nil
}
