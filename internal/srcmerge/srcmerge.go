// Public domain.

// Package srcmerge consolidates per-class counterparts into one ranked
// list per source.
package srcmerge

import (
	"sort"
	"strconv"
	"strings"

	"github.com/soniakeys/srcid/internal/srcattach"
	"github.com/soniakeys/srcid/internal/srccat"
)

// Extension names of the consolidated output.
const (
	CatalogueExt = "LAT_POINT_SOURCE_CATALOG"
	ReferenceExt = "ID_CATALOGS"
)

// Reference describes one class that was processed successfully.
type Reference struct {
	Number   int    // 1-based, in processing order
	Label    string // class id, the prefix of its attached columns
	Name     string
	Citation string
	URL      string
}

// Entry is one counterpart of a source.
type Entry struct {
	Name    string
	Prob    float64
	RA      float64 // deg
	Dec     float64 // deg
	Angsep  float64 // deg
	Catalog int     // Reference.Number of the owning class
	Pos     bool    // RA and Dec are known
}

// Consolidation holds the ranked counterparts of every source row.
type Consolidation struct {
	Primary *srccat.Table
	Rows    [][]Entry
	Width   int // largest number of entries of any row
	labels  []string
}

// Consolidate collects the attached column groups of primary belonging
// to refs.  Within a row entries are ordered by descending probability;
// equal probabilities keep class order, then rank order.  Column groups
// whose prefix matches no reference are ignored.
func Consolidate(primary *srccat.Table, refs []Reference) *Consolidation {
	c := &Consolidation{
		Primary: primary,
		Rows:    make([][]Entry, primary.Rows),
	}
	for _, ref := range refs {
		c.labels = append(c.labels, ref.Label)
		for k := 1; ; k++ {
			name := primary.Col(srcattach.ColumnName(ref.Label, srcattach.AttrName, k))
			if name == nil {
				break
			}
			prob := primary.Col(srcattach.ColumnName(ref.Label, srcattach.AttrProb, k))
			ra := primary.Col(srcattach.ColumnName(ref.Label, srcattach.AttrRA, k))
			dec := primary.Col(srcattach.ColumnName(ref.Label, srcattach.AttrDec, k))
			sep := primary.Col(srcattach.ColumnName(ref.Label, srcattach.AttrAngsep, k))
			for r := 0; r < primary.Rows; r++ {
				n := name.String(r)
				if n == "" {
					continue
				}
				c.Rows[r] = append(c.Rows[r], Entry{
					Name:    n,
					Prob:    float(prob, r),
					RA:      float(ra, r),
					Dec:     float(dec, r),
					Angsep:  float(sep, r),
					Catalog: ref.Number,
					Pos:     ra != nil && dec != nil,
				})
			}
		}
	}
	for _, e := range c.Rows {
		sort.SliceStable(e, func(i, j int) bool { return e[i].Prob > e[j].Prob })
		if len(e) > c.Width {
			c.Width = len(e)
		}
	}
	return c
}

func float(c *srccat.Column, row int) float64 {
	if c == nil {
		return 0
	}
	v, _ := c.Float(row)
	return v
}

// Count returns the number of entries of all rows.
func (c *Consolidation) Count() (n int) {
	for _, e := range c.Rows {
		n += len(e)
	}
	return
}

// isGroup reports whether col is an attached column of one of labels.
func isGroup(col string, labels []string) bool {
	for _, l := range labels {
		rest := strings.TrimPrefix(col, "ID_"+l+"_")
		if rest == col {
			continue
		}
		for _, a := range []string{srcattach.AttrName, srcattach.AttrProb,
			srcattach.AttrRA, srcattach.AttrDec, srcattach.AttrAngsep} {
			if n := strings.TrimPrefix(rest, a+"_"); n != rest {
				if _, err := strconv.Atoi(n); err == nil {
					return true
				}
			}
		}
	}
	return false
}

// Table returns the consolidated catalogue: the primary columns without
// the per-class groups, followed by
//
//	ID_Number       number of counterparts
//	ID_Name         counterpart names, NameWidth characters each
//	ID_Probability  probabilities
//	ID_RA, ID_DEC   counterpart positions
//	ID_Angsep       separations from the source
//	ID_Catalog      reference numbers
//
// Array columns have Width elements, at least one.  Unused trailing
// slots are blank or zero.  Primary columns already carrying one of
// these names, as when a consolidated catalogue is processed again, are
// replaced.
func (c *Consolidation) Table() (*srccat.Table, error) {
	p := c.Primary
	t := srccat.New(CatalogueExt, p.Rows)
	for _, h := range p.Header {
		if !srccat.IsStructural(h.Key) {
			t.Header = append(t.Header, h)
		}
	}
	for _, col := range p.Cols {
		if !isGroup(col.Name, c.labels) && !consolidated[col.Name] {
			t.Cols = append(t.Cols, col)
		}
	}
	w := c.Width
	if w < 1 {
		w = 1
	}
	n := p.Rows
	num := srccat.NewInt32("ID_Number", 1, n)
	names := srccat.NewText("ID_Name", srcattach.NameWidth*w, n)
	prob := srccat.NewFloat32("ID_Probability", w, n)
	ra := srccat.NewFloat32("ID_RA", w, n)
	dec := srccat.NewFloat32("ID_DEC", w, n)
	sep := srccat.NewFloat32("ID_Angsep", w, n)
	cat := srccat.NewInt32("ID_Catalog", w, n)
	prob.Unit = "probability"
	ra.Unit, dec.Unit, sep.Unit = "deg", "deg", "deg"
	for r, entries := range c.Rows {
		num.I32[r] = int32(len(entries))
		var b strings.Builder
		for i, e := range entries {
			s := srccat.Truncate(e.Name, srcattach.NameWidth)
			if i < len(entries)-1 {
				s += strings.Repeat(" ", srcattach.NameWidth-len(s))
			}
			b.WriteString(s)
			x := r*w + i
			prob.F32[x] = float32(e.Prob)
			ra.F32[x] = float32(e.RA)
			dec.F32[x] = float32(e.Dec)
			sep.F32[x] = float32(e.Angsep)
			cat.I32[x] = int32(e.Catalog)
		}
		names.Str[r] = b.String()
	}
	if err := t.Add(num, names, prob, ra, dec, sep, cat); err != nil {
		return nil, err
	}
	return t, nil
}

var consolidated = map[string]bool{
	"ID_Number": true, "ID_Name": true, "ID_Probability": true,
	"ID_RA": true, "ID_DEC": true, "ID_Angsep": true, "ID_Catalog": true,
}

// RefTable returns the table describing refs.
func RefTable(refs []Reference) *srccat.Table {
	n := len(refs)
	t := srccat.New(ReferenceExt, n)
	num := srccat.NewInt32("Number", 1, n)
	label := srccat.NewText("Label", 20, n)
	name := srccat.NewText("Name", 40, n)
	cite := srccat.NewText("Reference", 80, n)
	url := srccat.NewText("URL", 80, n)
	for i, r := range refs {
		num.I32[i] = int32(r.Number)
		set(label, i, r.Label)
		set(name, i, r.Name)
		set(cite, i, r.Citation)
		set(url, i, r.URL)
	}
	if err := t.Add(num, label, name, cite, url); err != nil {
		panic(err)
	}
	return t
}

// set stores s, widening the column to fit.
func set(c *srccat.Column, row int, s string) {
	c.Str[row] = s
	if len(s) > c.Repeat {
		c.Repeat = len(s)
	}
}
