// Public domain.

package srcprog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/soniakeys/srcid/internal/gtsrcid"
	"github.com/soniakeys/srcid/internal/srcattach"
	"github.com/soniakeys/srcid/internal/srccat"
	"github.com/soniakeys/srcid/internal/srcclass"
	"github.com/soniakeys/srcid/internal/srcconf"
	"github.com/soniakeys/srcid/internal/srcdb"
	"github.com/soniakeys/srcid/internal/srcexpand"
	"github.com/soniakeys/srcid/internal/srcmerge"
	"github.com/soniakeys/srcid/internal/srcmetrics"
	"github.com/soniakeys/srcid/internal/srcreg"
)

// RunCard is the header keyword carrying the run identifier in every
// catalogue written.
const RunCard = "SRCIDRUN"

// Driver runs all classes against one primary catalogue.
type Driver struct {
	Config  *srcconf.Config
	Store   srccat.Store
	Engine  gtsrcid.Engine
	Log     *zap.SugaredLogger
	Metrics *srcmetrics.Metrics
	Now     func() time.Time
}

// NewDriver returns a driver with fresh run metrics.
func NewDriver(cfg *srcconf.Config, store srccat.Store, engine gtsrcid.Engine, log *zap.Logger) *Driver {
	return &Driver{
		Config:  cfg,
		Store:   store,
		Engine:  engine,
		Log:     log.Sugar(),
		Metrics: srcmetrics.New(),
		Now:     time.Now,
	}
}

// Outcome summarizes a run.
type Outcome struct {
	RunID         string
	Classes       []srcdb.ClassRecord // every class in processing order
	References    []srcmerge.Reference
	Widened       *srccat.Table
	Consolidation *srcmerge.Consolidation
}

// classError is a per-class failure.  Status tells whether the class was
// skipped for a missing input or failed outright.
type classError struct {
	status string
	err    error
}

func (e *classError) Error() string { return e.err.Error() }
func (e *classError) Unwrap() error { return e.err }

func skipped(err error) error { return &classError{srcdb.StatusSkipped, err} }
func failed(err error) error  { return &classError{srcdb.StatusFailed, err} }

// Run processes sources against the primary catalogue at primaryPath and
// writes the configured outputs.  Errors of individual classes are
// logged and recorded; they do not stop the run.  Run returns an error
// only when the primary catalogue cannot be read, an output cannot be
// written, or ctx is done.
func (d *Driver) Run(ctx context.Context, primaryPath string, sources []srcclass.Source) (*Outcome, error) {
	cfg := d.Config
	out := &Outcome{RunID: srcdb.NewRunID()}
	started := d.Now()

	primary, err := d.Store.Read(primaryPath, srcmerge.CatalogueExt)
	if err != nil {
		return nil, err
	}
	srcPath := primaryPath
	if abs, err := filepath.Abs(primaryPath); err == nil {
		srcPath = abs
	}
	d.Log.Infow("primary catalogue", "path", primaryPath, "rows", primary.Rows,
		"columns", len(primary.Cols), "run", out.RunID)

	var ledger *srcdb.Ledger
	if cfg.Output.Ledger != "" {
		if ledger, err = srcdb.Open(ctx, cfg.Output.Ledger); err != nil {
			return nil, err
		}
		defer ledger.Close()
		if err := ledger.RecordRun(ctx, out.RunID, started, primaryPath); err != nil {
			return nil, err
		}
	}

	working := primary
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := srcdb.ClassRecord{Label: src.Name, Status: srcdb.StatusOK}
		widened, ref, err := d.processClass(ctx, working, srcPath, src, len(out.References)+1)
		if ref != nil {
			rec.Label, rec.Name = ref.Label, ref.Name
		}
		if err != nil {
			rec.Status = srcdb.StatusFailed
			var ce *classError
			if errors.As(err, &ce) {
				rec.Status = ce.status
			}
			rec.Detail = err.Error()
			d.Log.Warnw("class not processed", "class", rec.Label,
				"status", rec.Status, "error", err)
		} else {
			working = widened
			rec.Number = ref.Number
			out.References = append(out.References, *ref)
		}
		out.Classes = append(out.Classes, rec)
		d.Metrics.Class(rec.Status)
		if ledger != nil {
			if err := ledger.RecordClass(ctx, out.RunID, rec); err != nil {
				return nil, err
			}
		}
	}

	out.Widened = stamp(working, out.RunID)
	if err := d.Store.Write(cfg.Output.Widened, out.Widened); err != nil {
		return nil, fmt.Errorf("write widened catalogue: %w", err)
	}
	d.Log.Infow("widened catalogue written", "path", cfg.Output.Widened,
		"columns", len(out.Widened.Cols))

	cons := srcmerge.Consolidate(working, out.References)
	out.Consolidation = cons
	ct, err := cons.Table()
	if err != nil {
		return nil, fmt.Errorf("consolidate: %w", err)
	}
	ct.SetCard(RunCard, out.RunID, "srcid run identifier")
	rt := srcmerge.RefTable(out.References)
	rt.SetCard(RunCard, out.RunID, "srcid run identifier")
	if err := d.Store.Write(cfg.Output.Consolidated, ct, rt); err != nil {
		return nil, fmt.Errorf("write consolidated catalogue: %w", err)
	}
	withCpt := 0
	for _, e := range cons.Rows {
		if len(e) > 0 {
			withCpt++
		}
	}
	d.Metrics.Consolidated(cons.Width, withCpt)
	d.Log.Infow("consolidated catalogue written", "path", cfg.Output.Consolidated,
		"width", cons.Width, "counterparts", cons.Count(), "sources", withCpt)

	if cfg.Output.Overlay != "" {
		// derivative output, a catalogue without positions has none
		if err := d.overlay(ct, cons); err != nil {
			d.Log.Warnw("overlay not written", "path", cfg.Output.Overlay, "error", err)
		}
	}
	if ledger != nil {
		if err := ledger.RecordConsolidation(ctx, out.RunID, cons, out.References); err != nil {
			return nil, err
		}
	}
	if cfg.Output.Metrics != "" {
		if err := d.Metrics.WriteFile(cfg.Output.Metrics); err != nil {
			return nil, fmt.Errorf("write metrics: %w", err)
		}
	}
	return out, nil
}

// processClass runs one class against the working catalogue.  The
// reference is returned whenever the class record could be normalized,
// so that failures can be reported under the class id.
func (d *Driver) processClass(ctx context.Context, working *srccat.Table, srcPath string, src srcclass.Source, number int) (*srccat.Table, *srcmerge.Reference, error) {
	cfg := d.Config
	if src.Err != nil {
		return nil, nil, failed(src.Err)
	}
	c, err := src.File.Normalize(cfg.CatDir)
	if err != nil {
		return nil, nil, failed(err)
	}
	ref := &srcmerge.Reference{
		Number:   number,
		Label:    c.ID,
		Name:     c.Title,
		Citation: c.Reference,
		URL:      c.URL,
	}
	log := d.Log.With("class", c.ID)

	if !d.Store.Exists(c.CatPath) {
		return nil, ref, skipped(fmt.Errorf("%s: %w", c.CatPath, srccat.ErrNotFound))
	}
	cpt, err := d.Store.Schema(c.CatPath, "")
	if err != nil {
		return nil, ref, failed(err)
	}
	names := append(
		srcexpand.Vocabulary(cfg.Engine.SrcPrefix, working.Names()),
		srcexpand.Vocabulary(c.ID, cpt.Names())...)

	p := gtsrcid.FromClass(c, srcPath, cfg.Engine.SrcPrefix)
	if p.SrcPosError == 0 {
		p.SrcPosError = cfg.Engine.SrcPosError
	}
	if cfg.Engine.Chatter > p.Chatter {
		p.Chatter = cfg.Engine.Chatter
	}
	if cfg.Engine.Mode != "" {
		p.Mode = cfg.Engine.Mode
	}
	p.Expand(names)
	if c.Verbose {
		log.Infow("engine parameters", "args", p.Args())
	} else {
		log.Debugw("engine parameters", "args", p.Args())
	}

	t0 := d.Now()
	res, err := d.Engine.Run(ctx, p)
	d.Metrics.Engine(d.Now().Sub(t0))
	if err != nil {
		return nil, ref, failed(err)
	}
	if err := res.Err(); err != nil {
		log.Warnw("engine log", "path", res.LogPath, "text", res.Log)
		return nil, ref, failed(err)
	}

	path := filepath.Join(cfg.Engine.Dir, c.OutCatName())
	widened, st, err := srcattach.AttachFile(d.Store, working, path, c.ID,
		srcattach.Options{Positions: cfg.Output.Positions, Log: log})
	switch {
	case errors.Is(err, srccat.ErrNotFound):
		return nil, ref, skipped(err)
	case err != nil:
		return nil, ref, failed(err)
	}
	d.Metrics.Attached(c.ID, st.Attached)
	log.Infow("class attached", "results", st.Results, "attached", st.Attached,
		"dropped", st.Dropped, "ranks", st.MaxRank, "nameColumn", st.NameColumn)
	return widened, ref, nil
}

// stamp returns t with the run card set, leaving t's header untouched.
func stamp(t *srccat.Table, runID string) *srccat.Table {
	s := *t
	s.Header = append([]srccat.Card(nil), t.Header...)
	s.SetCard(RunCard, runID, "srcid run identifier")
	return &s
}

func (d *Driver) overlay(t *srccat.Table, cons *srcmerge.Consolidation) error {
	f, err := os.Create(d.Config.Output.Overlay)
	if err != nil {
		return err
	}
	if err := srcreg.Write(f, t, cons, srcreg.Options{}); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
