// Public domain.

// Package srcreg writes a DS9 region overlay of sources and their
// consolidated counterparts.
package srcreg

import (
	"bufio"
	"fmt"
	"io"
	"math"

	sexa "github.com/soniakeys/sexagesimal"
	"github.com/soniakeys/unit"

	"github.com/soniakeys/srcid/internal/srccat"
	"github.com/soniakeys/srcid/internal/srcmerge"
)

// MinAxis replaces infinite error axes and radii, deg.
const MinAxis = 1. / 60

// Options select region colors.
type Options struct {
	SourceColor      string // default green
	CounterpartColor string // default red
}

// source catalogue columns, tried in order
var (
	raCols     = []string{"RAJ2000", "RA"}
	decCols    = []string{"DEJ2000", "DEC"}
	nameCols   = []string{"NickName", "Source_Name", "NAME"}
	majorCols  = []string{"Conf_95_SemiMajor"}
	minorCols  = []string{"Conf_95_SemiMinor"}
	paCols     = []string{"Conf_95_PosAng"}
	radiusCols = []string{"Conf_95_Radius", "ERROR_RADIUS"}
)

// Write writes the overlay for the sources of t and the counterparts of
// c, which must have been consolidated from a table with the same rows.
//
// Each source gets an ellipse when both 95% axes and the position angle
// are known, else a circle when a radius is known.  A source with
// neither has only its comment line.  Each
// counterpart with a known position gets an x point labelled with its
// name.
func Write(w io.Writer, t *srccat.Table, c *srcmerge.Consolidation, opt Options) error {
	if opt.SourceColor == "" {
		opt.SourceColor = "green"
	}
	if opt.CounterpartColor == "" {
		opt.CounterpartColor = "red"
	}
	ra, dec := t.ColFold(raCols...), t.ColFold(decCols...)
	if ra == nil || dec == nil {
		return fmt.Errorf("%s: no source positions", t.Name)
	}
	name := t.ColFold(nameCols...)
	major, minor, pa := t.ColFold(majorCols...), t.ColFold(minorCols...), t.ColFold(paCols...)
	radius := t.ColFold(radiusCols...)

	b := bufio.NewWriter(w)
	fmt.Fprintln(b, "# Region file format: DS9 version 4.1")
	fmt.Fprintf(b, "global color=%s\n", opt.SourceColor)
	fmt.Fprintln(b, "fk5")
	for r := 0; r < t.Rows; r++ {
		α, ok1 := ra.Float(r)
		δ, ok2 := dec.Float(r)
		if !ok1 || !ok2 || math.IsNaN(α) || math.IsNaN(δ) {
			continue
		}
		label := fmt.Sprint("source ", r+1)
		if name != nil {
			if n := name.String(r); n != "" {
				label = n
			}
		}
		fmt.Fprintf(b, "# %s %.1s %+.0s\n", label,
			sexa.FmtRA(unit.RAFromDeg(α)), sexa.FmtAngle(unit.AngleFromDeg(δ)))
		a, aOK := axis(major, r)
		m, mOK := axis(minor, r)
		θ, θOK := value(pa, r)
		rad, radOK := axis(radius, r)
		switch {
		case aOK && mOK && θOK:
			// DS9 angles run counterclockwise from the x axis, position
			// angles from north through east
			fmt.Fprintf(b, "ellipse(%.6f,%.6f,%.6f,%.6f,%.3f) # text={%s}\n",
				α, δ, a, m, math.Mod(θ+90, 360), label)
		case radOK:
			fmt.Fprintf(b, "circle(%.6f,%.6f,%.6f) # text={%s}\n", α, δ, rad, label)
		}
		if c == nil || r >= len(c.Rows) {
			continue
		}
		for _, e := range c.Rows[r] {
			if !e.Pos {
				continue
			}
			fmt.Fprintf(b, "point(%.6f,%.6f) # point=x color=%s text={%s}\n",
				e.RA, e.Dec, opt.CounterpartColor, e.Name)
		}
	}
	return b.Flush()
}

func value(c *srccat.Column, r int) (float64, bool) {
	if c == nil {
		return 0, false
	}
	v, ok := c.Float(r)
	if !ok || math.IsNaN(v) {
		return 0, false
	}
	return v, true
}

// axis returns a positive axis length, clamping infinity to MinAxis.
func axis(c *srccat.Column, r int) (float64, bool) {
	v, ok := value(c, r)
	switch {
	case !ok:
		return 0, false
	case math.IsInf(v, 0):
		return MinAxis, true
	case v <= 0:
		return 0, false
	}
	return v, true
}
