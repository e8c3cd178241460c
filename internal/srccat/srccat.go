// Public domain.

// Package srccat defines the in-memory catalogue table used by srcid.
//
// A Table is a column oriented copy of one catalogue extension: typed
// columns of equal length plus the non-structural header cards.  Storage
// is reached through the Store interface; package srcfits implements it
// for FITS files and MemStore implements it in memory.
package srccat

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

var (
	// ErrNotFound reports a catalogue file or extension that does not exist.
	ErrNotFound = errors.New("catalogue not found")
	// ErrMalformed reports a catalogue that is not a binary row/column table.
	ErrMalformed = errors.New("catalogue is not a binary table")
)

// Kind is the storage type of a column.
type Kind int

const (
	Text Kind = iota
	Int32
	Float32
	Float64
)

var kindCode = [...]byte{Text: 'A', Int32: 'J', Float32: 'E', Float64: 'D'}

// Column is one typed catalogue column.
//
// Repeat is the character width for Text columns and the number of
// elements per row for numeric columns.  Numeric data is stored flat,
// row r occupying elements [r*Repeat, (r+1)*Repeat).
type Column struct {
	Name   string
	Kind   Kind
	Repeat int
	Unit   string
	UCD    string

	Str []string
	I32 []int32
	F32 []float32
	F64 []float64
}

// NewText allocates a text column of the given character width.
func NewText(name string, width, nrows int) *Column {
	if width < 1 {
		width = 1
	}
	return &Column{Name: name, Kind: Text, Repeat: width, Str: make([]string, nrows)}
}

// NewInt32 allocates an int32 column with repeat elements per row.
func NewInt32(name string, repeat, nrows int) *Column {
	repeat = atLeastOne(repeat)
	return &Column{Name: name, Kind: Int32, Repeat: repeat, I32: make([]int32, nrows*repeat)}
}

// NewFloat32 allocates a float32 column with repeat elements per row.
func NewFloat32(name string, repeat, nrows int) *Column {
	repeat = atLeastOne(repeat)
	return &Column{Name: name, Kind: Float32, Repeat: repeat, F32: make([]float32, nrows*repeat)}
}

// NewFloat64 allocates a float64 column with repeat elements per row.
func NewFloat64(name string, repeat, nrows int) *Column {
	repeat = atLeastOne(repeat)
	return &Column{Name: name, Kind: Float64, Repeat: repeat, F64: make([]float64, nrows*repeat)}
}

func atLeastOne(n int) int {
	if n < 1 {
		return 1
	}
	return n
}

// Len returns the number of rows held by the column.
func (c *Column) Len() int {
	switch c.Kind {
	case Text:
		return len(c.Str)
	case Int32:
		return len(c.I32) / c.Repeat
	case Float32:
		return len(c.F32) / c.Repeat
	default:
		return len(c.F64) / c.Repeat
	}
}

// Format returns the binary table format code, "20A" or "1E" for example.
func (c *Column) Format() string {
	return strconv.Itoa(c.Repeat) + string(kindCode[c.Kind])
}

// String returns the text value at row with trailing blanks removed.
// Numeric columns are formatted.
func (c *Column) String(row int) string {
	if c.Kind == Text {
		return strings.TrimRight(c.Str[row], " \x00")
	}
	v, _ := c.Float(row)
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Float returns the first element at row as a float64.  The result is
// false for text columns that do not parse as a number.
func (c *Column) Float(row int) (float64, bool) {
	i := row * c.Repeat
	switch c.Kind {
	case Int32:
		return float64(c.I32[i]), true
	case Float32:
		return float64(c.F32[i]), true
	case Float64:
		return c.F64[i], true
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(c.Str[row]), 64)
	return v, err == nil
}

// Truncate shortens s to at most n bytes without splitting a UTF-8
// sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// Card is one header keyword.
type Card struct {
	Key     string
	Value   interface{}
	Comment string
}

// Table is a catalogue extension held in memory.
type Table struct {
	Name   string // EXTNAME
	Binary bool   // false for ASCII tables and anything else not row/column shaped
	Rows   int
	Cols   []*Column
	Header []Card
}

// New returns an empty binary table with the given number of rows.
func New(name string, rows int) *Table {
	return &Table{Name: name, Binary: true, Rows: rows}
}

// Index returns the index of the column with the given name, or -1.
func (t *Table) Index(name string) int {
	for i, c := range t.Cols {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// Col returns the column with the given name, or nil.
func (t *Table) Col(name string) *Column {
	if i := t.Index(name); i >= 0 {
		return t.Cols[i]
	}
	return nil
}

// ColFold returns the first column matching any of names, compared
// without regard to case.  Names are tried in order.
func (t *Table) ColFold(names ...string) *Column {
	for _, n := range names {
		for _, c := range t.Cols {
			if strings.EqualFold(c.Name, n) {
				return c
			}
		}
	}
	return nil
}

// Names lists column names in table order.
func (t *Table) Names() []string {
	n := make([]string, len(t.Cols))
	for i, c := range t.Cols {
		n[i] = c.Name
	}
	return n
}

// Add appends columns.  Each must hold exactly t.Rows rows and have a
// name not already present.
func (t *Table) Add(cols ...*Column) error {
	for _, c := range cols {
		if c.Len() != t.Rows {
			return fmt.Errorf("column %s has %d rows, table %s has %d",
				c.Name, c.Len(), t.Name, t.Rows)
		}
		if t.Index(c.Name) >= 0 {
			return fmt.Errorf("duplicate column %s in table %s", c.Name, t.Name)
		}
		t.Cols = append(t.Cols, c)
	}
	return nil
}

// Card returns the header card for key.
func (t *Table) Card(key string) (Card, bool) {
	for _, c := range t.Header {
		if c.Key == key {
			return c, true
		}
	}
	return Card{}, false
}

// SetCard replaces or appends a header card.
func (t *Table) SetCard(key string, value interface{}, comment string) {
	for i := range t.Header {
		if t.Header[i].Key == key {
			t.Header[i] = Card{key, value, comment}
			return
		}
	}
	t.Header = append(t.Header, Card{key, value, comment})
}

// Widen computes the schema of t plus cols and returns it as a new table.
// Existing column data is shared, not copied.  Header cards are carried
// over except structural keys, which describe table shape and column
// layout and are regenerated when the table is written.
func (t *Table) Widen(cols []*Column) (*Table, error) {
	w := &Table{
		Name:   t.Name,
		Binary: t.Binary,
		Rows:   t.Rows,
		Cols:   make([]*Column, len(t.Cols), len(t.Cols)+len(cols)),
	}
	copy(w.Cols, t.Cols)
	for _, c := range t.Header {
		if !IsStructural(c.Key) {
			w.Header = append(w.Header, c)
		}
	}
	if err := w.Add(cols...); err != nil {
		return nil, err
	}
	return w, nil
}

var structural = map[string]bool{
	"SIMPLE": true, "XTENSION": true, "BITPIX": true, "NAXIS": true,
	"PCOUNT": true, "GCOUNT": true, "TFIELDS": true, "EXTEND": true,
	"EXTNAME": true, "END": true, "THEAP": true,
}

var indexed = []string{"NAXIS", "TTYPE", "TFORM", "TBCOL", "TUNIT", "TBUCD",
	"TDIM", "TNULL", "TSCAL", "TZERO", "TDISP"}

// IsStructural reports whether a header key describes table shape or
// column layout.
func IsStructural(key string) bool {
	key = strings.ToUpper(strings.TrimSpace(key))
	if structural[key] {
		return true
	}
	for _, p := range indexed {
		if n := strings.TrimPrefix(key, p); n != key && n != "" {
			if _, err := strconv.Atoi(n); err == nil {
				return true
			}
		}
	}
	return false
}

// Store reads and writes catalogue files.
type Store interface {
	// Exists reports whether a catalogue file is present.
	Exists(path string) bool
	// Read loads the extension named ext, or the first table extension
	// if ext is empty or not present.  A missing file is ErrNotFound.
	Read(path, ext string) (*Table, error)
	// Schema is Read without row data.
	Schema(path, ext string) (*Table, error)
	// Write creates or overwrites path with the given tables.
	Write(path string, tables ...*Table) error
}
