// Public domain.

// Package srcfits implements srccat.Store for FITS binary tables.
package srcfits

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"reflect"
	"strconv"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/soniakeys/srcid/internal/srccat"
)

// Store reads and writes FITS files on the local file system.
type Store struct{}

var _ srccat.Store = Store{}

func (Store) Exists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}

func (s Store) Read(path, ext string) (*srccat.Table, error) {
	return s.read(path, ext, true)
}

func (s Store) Schema(path, ext string) (*srccat.Table, error) {
	return s.read(path, ext, false)
}

func (Store) read(path, ext string, data bool) (*srccat.Table, error) {
	r, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", path, srccat.ErrNotFound)
		}
		return nil, err
	}
	defer r.Close()
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	defer f.Close()

	hdu := selectHDU(f.HDUs(), ext)
	if hdu == nil {
		return nil, fmt.Errorf("%s: no table extension: %w", path, srccat.ErrNotFound)
	}
	tbl, ok := hdu.(*fitsio.Table)
	if !ok {
		// an image extension in the table position.  header only.
		t := &srccat.Table{Name: hdu.Name()}
		t.Header = cards(hdu.Header())
		return t, nil
	}
	t, err := convert(tbl, data)
	if err != nil {
		return nil, fmt.Errorf("%s[%s]: %w", path, tbl.Name(), err)
	}
	return t, nil
}

// selectHDU picks the extension named ext, else the first extension after
// the primary HDU.  This follows catalogue convention where the primary
// array is empty and the catalogue is the second HDU.
func selectHDU(hdus []fitsio.HDU, ext string) fitsio.HDU {
	if ext != "" {
		for _, h := range hdus {
			if h.Name() == ext {
				return h
			}
		}
	}
	for _, h := range hdus {
		if h.Type() == fitsio.BINARY_TBL || h.Type() == fitsio.ASCII_TBL {
			return h
		}
	}
	if len(hdus) > 1 {
		return hdus[1]
	}
	return nil
}

// cards returns the keyed cards of h except structural ones, followed by
// every COMMENT and then every HISTORY card.  Header.Keys omits
// commentary cards, so those are taken from the card images.
func cards(h *fitsio.Header) (c []srccat.Card) {
	for _, k := range h.Keys() {
		if srccat.IsStructural(k) {
			continue
		}
		if card := h.Get(k); card != nil {
			c = append(c, srccat.Card{Key: card.Name, Value: card.Value, Comment: card.Comment})
		}
	}
	text := images(h)
	for _, key := range commentary {
		for i := 0; i+cardLen <= len(text); i += cardLen {
			line := text[i : i+cardLen]
			if strings.TrimRight(line[:8], " ") == key {
				c = append(c, srccat.Card{Key: key, Comment: strings.TrimRight(line[8:], " ")})
			}
		}
	}
	return
}

// images returns the 80 column card images of h, empty if some card
// cannot be formatted.
func images(h *fitsio.Header) (text string) {
	defer func() {
		if recover() != nil {
			text = ""
		}
	}()
	return h.Text()
}

// isCommentary reports whether key is a COMMENT or HISTORY card, which
// carry text only and may repeat.
func isCommentary(key string) bool {
	return key == "COMMENT" || key == "HISTORY"
}

var commentary = []string{"COMMENT", "HISTORY"}

const cardLen = 80

func convert(tbl *fitsio.Table, data bool) (*srccat.Table, error) {
	t := &srccat.Table{
		Name:   tbl.Name(),
		Binary: tbl.Type() == fitsio.BINARY_TBL,
		Header: cards(tbl.Header()),
	}
	hdr := tbl.Header()
	fcols := tbl.Cols()
	nrows := 0
	if data {
		nrows = int(tbl.NumRows())
	}
	t.Rows = nrows
	cols := make([]*srccat.Column, len(fcols))
	for i, fc := range fcols {
		kind, repeat := ParseFormat(fc.Format)
		var c *srccat.Column
		switch kind {
		case srccat.Text:
			c = srccat.NewText(fc.Name, repeat, nrows)
		case srccat.Int32:
			c = srccat.NewInt32(fc.Name, repeat, nrows)
		case srccat.Float32:
			c = srccat.NewFloat32(fc.Name, repeat, nrows)
		default:
			c = srccat.NewFloat64(fc.Name, repeat, nrows)
		}
		c.Unit = fc.Unit
		if card := hdr.Get("TBUCD" + strconv.Itoa(i+1)); card != nil {
			c.UCD, _ = card.Value.(string)
		}
		cols[i] = c
	}
	t.Cols = cols
	if nrows == 0 {
		return t, nil
	}

	rows, err := tbl.Read(0, int64(nrows))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for r := 0; rows.Next(); r++ {
		m := map[string]interface{}{}
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		for _, c := range cols {
			if v, ok := m[c.Name]; ok {
				put(c, r, v)
			}
		}
	}
	return t, rows.Err()
}

// ParseFormat interprets a binary ("20A", "1E", "E", "PE(12)") or ASCII
// ("A20", "F10.4", "I8") table format code.
func ParseFormat(form string) (kind srccat.Kind, repeat int) {
	form = strings.ToUpper(strings.TrimSpace(form))
	i := 0
	for i < len(form) && form[i] >= '0' && form[i] <= '9' {
		i++
	}
	repeat = 1
	if i > 0 {
		repeat, _ = strconv.Atoi(form[:i])
	}
	if i == len(form) {
		return srccat.Float64, repeat
	}
	code, rest := form[i], form[i+1:]
	ascii := false
	switch {
	case code == 'P' || code == 'Q':
		// variable length array.  element code follows, maximum length
		// in parentheses.
		if rest == "" {
			return srccat.Float64, 1
		}
		code, repeat = rest[0], 1
		if o, c := strings.Index(rest, "("), strings.Index(rest, ")"); o > 0 && c > o {
			if n, err := strconv.Atoi(rest[o+1 : c]); err == nil {
				repeat = n
			}
		}
	case i == 0 && rest != "":
		ascii, repeat = true, 1
		if code == 'A' {
			if w, err := strconv.Atoi(strings.SplitN(rest, ".", 2)[0]); err == nil {
				repeat = w
			}
		}
	}
	switch code {
	case 'A':
		return srccat.Text, repeat
	case 'B', 'I', 'J', 'L', 'X':
		return srccat.Int32, repeat
	case 'E', 'F':
		if !ascii {
			return srccat.Float32, repeat
		}
	}
	return srccat.Float64, repeat
}

// put stores a scanned value at row r, element by element for arrays.
func put(c *srccat.Column, r int, v interface{}) {
	if c.Kind == srccat.Text {
		switch s := v.(type) {
		case string:
			c.Str[r] = strings.TrimRight(s, " \x00")
		default:
			c.Str[r] = fmt.Sprint(v)
		}
		return
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Array, reflect.Slice:
		for e := 0; e < rv.Len() && e < c.Repeat; e++ {
			setNum(c, r*c.Repeat+e, rv.Index(e))
		}
	default:
		setNum(c, r*c.Repeat, rv)
	}
}

func setNum(c *srccat.Column, i int, rv reflect.Value) {
	var f float64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		f = float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		f = float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		f = rv.Float()
	case reflect.Bool:
		if rv.Bool() {
			f = 1
		}
	default:
		return
	}
	switch c.Kind {
	case srccat.Int32:
		c.I32[i] = int32(f)
	case srccat.Float32:
		c.F32[i] = float32(f)
	case srccat.Float64:
		c.F64[i] = f
	}
}

// Write creates path, overwriting any existing file, with an empty
// primary HDU followed by one binary table extension per table.
func (Store) Write(path string, tables ...*srccat.Table) (err error) {
	w, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := w.Close(); err == nil {
			err = cerr
		}
	}()
	f, err := fitsio.Create(w)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()
	phdu, err := fitsio.NewPrimaryHDU(nil)
	if err != nil {
		return err
	}
	if err = f.Write(phdu); err != nil {
		return err
	}
	for _, t := range tables {
		if err = writeTable(f, t); err != nil {
			return fmt.Errorf("%s[%s]: %w", path, t.Name, err)
		}
	}
	return nil
}

func writeTable(f *fitsio.File, t *srccat.Table) error {
	fcols := make([]fitsio.Column, len(t.Cols))
	for i, c := range t.Cols {
		fcols[i] = fitsio.Column{Name: c.Name, Format: c.Format(), Unit: c.Unit}
	}
	tbl, err := fitsio.NewTable(t.Name, fcols, fitsio.BINARY_TBL)
	if err != nil {
		return err
	}
	defer tbl.Close()

	var hc []fitsio.Card
	seen := map[string]bool{}
	for _, c := range t.Header {
		switch {
		case c.Key == "" || srccat.IsStructural(c.Key):
			continue
		case isCommentary(c.Key):
			hc = append(hc, fitsio.Card{Name: c.Key, Comment: c.Comment})
			continue
		case seen[c.Key]:
			continue
		}
		seen[c.Key] = true
		hc = append(hc, fitsio.Card{Name: c.Key, Value: c.Value, Comment: c.Comment})
	}
	for i, c := range t.Cols {
		if c.UCD != "" {
			hc = append(hc, fitsio.Card{
				Name:    "TBUCD" + strconv.Itoa(i+1),
				Value:   c.UCD,
				Comment: fmt.Sprintf("UCD for field %3d", i+1),
			})
		}
	}
	if len(hc) > 0 {
		if err := tbl.Header().Append(hc...); err != nil {
			return err
		}
	}

	cells := make([]reflect.Value, len(t.Cols))
	args := make([]interface{}, len(t.Cols))
	for i, c := range t.Cols {
		cells[i] = reflect.New(cellType(c))
		args[i] = cells[i].Interface()
	}
	for r := 0; r < t.Rows; r++ {
		for i, c := range t.Cols {
			fill(cells[i].Elem(), c, r)
		}
		if err := tbl.Write(args...); err != nil {
			return err
		}
	}
	return f.Write(tbl)
}

var (
	tString  = reflect.TypeOf("")
	tInt32   = reflect.TypeOf(int32(0))
	tFloat32 = reflect.TypeOf(float32(0))
	tFloat64 = reflect.TypeOf(float64(0))
)

// cellType is the Go type fitsio expects for one cell of c.
func cellType(c *srccat.Column) reflect.Type {
	var t reflect.Type
	switch c.Kind {
	case srccat.Text:
		return tString
	case srccat.Int32:
		t = tInt32
	case srccat.Float32:
		t = tFloat32
	default:
		t = tFloat64
	}
	if c.Repeat > 1 {
		return reflect.ArrayOf(c.Repeat, t)
	}
	return t
}

func fill(cell reflect.Value, c *srccat.Column, r int) {
	if c.Kind == srccat.Text {
		cell.SetString(srccat.Truncate(c.Str[r], c.Repeat))
		return
	}
	set := func(v reflect.Value, i int) {
		switch c.Kind {
		case srccat.Int32:
			v.SetInt(int64(c.I32[i]))
		case srccat.Float32:
			v.SetFloat(float64(c.F32[i]))
		default:
			v.SetFloat(c.F64[i])
		}
	}
	if c.Repeat == 1 {
		set(cell, r)
		return
	}
	for e := 0; e < c.Repeat; e++ {
		set(cell.Index(e), r*c.Repeat+e)
	}
}
