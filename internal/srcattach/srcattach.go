// Public domain.

// Package srcattach attaches association results to the source catalogue.
//
// The engine result for a class is a sparse table, one row per accepted
// counterpart, keyed by an identifier that encodes the source row and
// the counterpart rank.  Attach turns it into dense column groups, one
// group per rank, each with one slot per source row.
package srcattach

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/unit"
	"go.uber.org/zap"

	"github.com/soniakeys/srcid/internal/srccat"
)

// ResultExt is the extension name of an engine result table.
const ResultExt = "GLAST_CAT"

// NameWidth is the character width of attached name columns.
const NameWidth = 20

// Placeholder is the counterpart name used when the result table has no
// recognizable name column.
const Placeholder = "NoName"

// ErrID reports a result identifier that does not decode.
var ErrID = errors.New("malformed result identifier")

// Key addresses one counterpart: the source row it belongs to and its
// rank among that source's counterparts.  Both are 0-based.
type Key struct {
	Row, Rank int
}

// DecodeID decodes a result identifier of the form CC_rrrrr_kkkkk, with
// 1-based source row r and rank k.  The separator before the rank may be
// absent.
func DecodeID(id string) (Key, error) {
	id = strings.TrimSpace(id)
	var rank string
	switch {
	case len(id) == 13:
		rank = id[8:13]
	case len(id) >= 14:
		rank = id[9:14]
	default:
		return Key{}, fmt.Errorf("%w: %q", ErrID, id)
	}
	r, err1 := strconv.Atoi(id[3:8])
	k, err2 := strconv.Atoi(rank)
	if err1 != nil || err2 != nil || r < 1 || k < 1 {
		return Key{}, fmt.Errorf("%w: %q", ErrID, id)
	}
	return Key{Row: r - 1, Rank: k - 1}, nil
}

// Options control attached columns.
type Options struct {
	// Positions attaches counterpart RA, DEC and angular separation
	// alongside name and probability.
	Positions bool
	Log       *zap.SugaredLogger
}

// Stats summarize one attach.
type Stats struct {
	Results    int    // result rows read
	Attached   int    // slots filled
	Dropped    int    // result rows not attached
	MaxRank    int    // number of column groups added
	NameColumn string // result column names were taken from, empty for placeholder
}

// Column name roots of attached groups, after "ID_<prefix>_".
const (
	AttrName   = "NAME"
	AttrProb   = "PROB"
	AttrRA     = "RA"
	AttrDec    = "DEC"
	AttrAngsep = "ANGSEP"
)

// ColumnName is the name of the attached column for attr at 1-based rank.
func ColumnName(prefix, attr string, rank int) string {
	return "ID_" + prefix + "_" + attr + "_" + strconv.Itoa(rank)
}

// NameColumn finds the result column holding counterpart names.  A column
// tagged with UCD ID_MAIN or ID_IDENTIFIER is preferred when its name
// carries the class prefix; otherwise @<prefix>_HESS, _NAME, _ID and
// _NICKNAME are tried in that order, ignoring case.  The result is nil if
// nothing matches.
func NameColumn(result *srccat.Table, prefix string) *srccat.Column {
	p := "@" + prefix + "_"
	for _, c := range result.Cols {
		if (c.UCD == "ID_MAIN" || c.UCD == "ID_IDENTIFIER") &&
			strings.HasPrefix(c.Name, p) {
			return c
		}
	}
	return result.ColFold(p+"HESS", p+"NAME", p+"ID", p+"NICKNAME")
}

// primary catalogue position columns, deg
var (
	primaryRA  = []string{"RAJ2000", "RA"}
	primaryDec = []string{"DEJ2000", "DEC"}
)

// Attach returns primary widened by the counterpart columns of result.
//
// For each rank 1..maxRank found in result it appends ID_<prefix>_NAME_k
// and ID_<prefix>_PROB_k, and with Options.Positions also _RA_k, _DEC_k
// and _ANGSEP_k.  Slots without a counterpart hold an empty name and
// zeros.  If result holds no decodable identifiers, primary is returned
// as is.  A primary table that is not a binary table is returned as is
// with an error wrapping srccat.ErrMalformed.
func Attach(primary, result *srccat.Table, prefix string, opt Options) (*srccat.Table, Stats, error) {
	var st Stats
	if !primary.Binary {
		return primary, st, fmt.Errorf("%s: %w", primary.Name, srccat.ErrMalformed)
	}
	log := opt.Log
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	st.Results = result.Rows
	idCol := result.ColFold("ID")
	if idCol == nil || idCol.Kind != srccat.Text {
		log.Debugw("result has no identifier column", "class", prefix)
		st.Dropped = result.Rows
		return primary, st, nil
	}

	// decode identifiers once
	keys := make([]Key, result.Rows)
	valid := make([]bool, result.Rows)
	for r := range keys {
		k, err := DecodeID(idCol.Str[r])
		if err != nil {
			log.Debugw("result row ignored", "class", prefix, "row", r+1, "error", err)
			continue
		}
		if k.Row >= primary.Rows {
			log.Debugw("result row ignored", "class", prefix, "row", r+1,
				"source", k.Row+1, "sources", primary.Rows)
			continue
		}
		keys[r], valid[r] = k, true
		if k.Rank+1 > st.MaxRank {
			st.MaxRank = k.Rank + 1
		}
	}
	for _, v := range valid {
		if !v {
			st.Dropped++
		}
	}
	if st.MaxRank < 1 {
		return primary, st, nil
	}

	nameCol := NameColumn(result, prefix)
	if nameCol != nil {
		st.NameColumn = nameCol.Name
	}
	probCol := result.ColFold("PROB")
	var raCol, decCol, sepCol, pRA, pDec *srccat.Column
	if opt.Positions {
		raCol = result.ColFold("RAJ2000", "POS_EQ_RA")
		decCol = result.ColFold("DEJ2000", "POS_EQ_DEC")
		sepCol = result.ColFold("ANGSEP")
		pRA = primary.ColFold(primaryRA...)
		pDec = primary.ColFold(primaryDec...)
	}

	// schema: all groups allocated up front, rank-major
	n := primary.Rows
	perRank := 2
	if opt.Positions {
		perRank = 5
	}
	cols := make([]*srccat.Column, 0, st.MaxRank*perRank)
	for k := 1; k <= st.MaxRank; k++ {
		name := srccat.NewText(ColumnName(prefix, AttrName, k), NameWidth, n)
		prob := srccat.NewFloat32(ColumnName(prefix, AttrProb, k), 1, n)
		prob.Unit = "probability"
		cols = append(cols, name, prob)
		if opt.Positions {
			ra := srccat.NewFloat32(ColumnName(prefix, AttrRA, k), 1, n)
			dec := srccat.NewFloat32(ColumnName(prefix, AttrDec, k), 1, n)
			sep := srccat.NewFloat32(ColumnName(prefix, AttrAngsep, k), 1, n)
			ra.Unit, dec.Unit, sep.Unit = "deg", "deg", "deg"
			cols = append(cols, ra, dec, sep)
		}
	}

	for r, k := range keys {
		if !valid[r] {
			continue
		}
		g := cols[k.Rank*perRank:]
		name := Placeholder
		if nameCol != nil {
			name = nameCol.String(r)
		}
		g[0].Str[k.Row] = srccat.Truncate(name, NameWidth)
		if probCol != nil {
			p, _ := probCol.Float(r)
			g[1].F32[k.Row] = float32(p)
		}
		if opt.Positions {
			ra, raOK := value(raCol, r)
			dec, decOK := value(decCol, r)
			g[2].F32[k.Row] = float32(ra)
			g[3].F32[k.Row] = float32(dec)
			if sep, ok := value(sepCol, r); ok {
				g[4].F32[k.Row] = float32(sep)
			} else if raOK && decOK {
				sra, ok1 := value(pRA, k.Row)
				sdec, ok2 := value(pDec, k.Row)
				if ok1 && ok2 {
					g[4].F32[k.Row] = float32(Sep(sra, sdec, ra, dec))
				}
			}
		}
		st.Attached++
	}

	w, err := primary.Widen(cols)
	if err != nil {
		return primary, st, err
	}
	return w, st, nil
}

func value(c *srccat.Column, row int) (float64, bool) {
	if c == nil {
		return 0, false
	}
	return c.Float(row)
}

// Sep returns the angular separation in degrees of two equatorial
// positions given in degrees.
func Sep(ra1, dec1, ra2, dec2 float64) float64 {
	return angle.Sep(
		unit.AngleFromDeg(ra1), unit.AngleFromDeg(dec1),
		unit.AngleFromDeg(ra2), unit.AngleFromDeg(dec2)).Deg()
}

// AttachFile reads the result table written by the engine at path and
// attaches it to primary.  A result file that does not exist returns
// primary unchanged with an error wrapping srccat.ErrNotFound.
func AttachFile(store srccat.Store, primary *srccat.Table, path, prefix string, opt Options) (*srccat.Table, Stats, error) {
	result, err := store.Read(path, ResultExt)
	if err != nil {
		return primary, Stats{}, err
	}
	return Attach(primary, result, prefix, opt)
}
