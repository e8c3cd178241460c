// Public domain.

package srcprog_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/soniakeys/srcid/internal/gtsrcid"
	"github.com/soniakeys/srcid/internal/srccat"
	"github.com/soniakeys/srcid/internal/srcclass"
	"github.com/soniakeys/srcid/internal/srcconf"
	"github.com/soniakeys/srcid/internal/srcdb"
	"github.com/soniakeys/srcid/internal/srcmerge"
	"github.com/soniakeys/srcid/internal/srcprog"
)

const (
	catDir   = "/cat"
	workDir  = "/work"
	lat      = "/data/lat.fits"
	widened  = "/out/srcid.fits"
	consFile = "/out/srcid-lat.fits"
)

type hit struct {
	id, name string
	prob     float32
	ra, dec  float32
}

// fakeEngine writes canned results to the store instead of running
// gtsrcid.
type fakeEngine struct {
	store   *srccat.MemStore
	results map[string][]hit // by class id
	status  map[string]int
	params  []gtsrcid.Params
}

func (e *fakeEngine) Run(ctx context.Context, p gtsrcid.Params) (gtsrcid.Result, error) {
	e.params = append(e.params, p)
	if s := e.status[p.CptCatPrefix]; s != 0 {
		return gtsrcid.Result{ExitStatus: s, Log: "engine failed"}, nil
	}
	hits, ok := e.results[p.CptCatPrefix]
	if !ok {
		// engine succeeded without writing a result
		return gtsrcid.Result{}, nil
	}
	n := len(hits)
	t := srccat.New("GLAST_CAT", n)
	id := srccat.NewText("ID", 20, n)
	name := srccat.NewText("@"+p.CptCatPrefix+"_NAME", 20, n)
	prob := srccat.NewFloat32("PROB", 1, n)
	ra := srccat.NewFloat32("POS_EQ_RA", 1, n)
	dec := srccat.NewFloat32("POS_EQ_DEC", 1, n)
	for i, h := range hits {
		id.Str[i], name.Str[i] = h.id, h.name
		prob.F32[i], ra.F32[i], dec.F32[i] = h.prob, h.ra, h.dec
	}
	if err := t.Add(id, name, prob, ra, dec); err != nil {
		return gtsrcid.Result{}, err
	}
	return gtsrcid.Result{}, e.store.Write(filepath.Join(workDir, p.OutCatName), t)
}

func latCatalogue() *srccat.Table {
	t := srccat.New(srcmerge.CatalogueExt, 2)
	nick := srccat.NewText("NickName", 18, 2)
	copy(nick.Str, []string{"LAT 1", "LAT 2"})
	ra := srccat.NewFloat32("RAJ2000", 1, 2)
	copy(ra.F32, []float32{83.5, 10})
	dec := srccat.NewFloat32("DEJ2000", 1, 2)
	copy(dec.F32, []float32{22, -30})
	rad := srccat.NewFloat32("Conf_95_Radius", 1, 2)
	copy(rad.F32, []float32{.1, .2})
	if err := t.Add(nick, ra, dec, rad); err != nil {
		panic(err)
	}
	t.Header = []srccat.Card{{Key: "TELESCOP", Value: "GLAST"}}
	return t
}

// counterpart is the schema of a counterpart catalogue.
func counterpart() *srccat.Table {
	t := srccat.New("CATALOG", 0)
	t.Add(srccat.NewText("NAME", 20, 0), srccat.NewFloat32("FLUX", 1, 0))
	return t
}

func source(t *testing.T, name, yaml string) srcclass.Source {
	t.Helper()
	f, err := srcclass.Decode([]byte(yaml))
	return srcclass.Source{Name: name, File: f, Err: err}
}

type fixture struct {
	store  *srccat.MemStore
	engine *fakeEngine
	cfg    *srcconf.Config
	logs   *observer.ObservedLogs
	driver *srcprog.Driver
	tmp    string
}

func newFixture(t *testing.T) *fixture {
	store := srccat.NewMemStore()
	store.Write(lat, latCatalogue())
	for _, f := range []string{"a.fits", "b.fits", "bad.fits"} {
		store.Write(filepath.Join(catDir, f), counterpart())
	}
	tmp := t.TempDir()
	cfg := &srcconf.Config{
		CatDir: catDir,
		Engine: srcconf.EngineConfig{
			Dir:       workDir,
			SrcPrefix: "LAT",
			Chatter:   1,
			Mode:      "ql",
		},
		Output: srcconf.OutputConfig{
			Widened:      widened,
			Consolidated: consFile,
			Overlay:      filepath.Join(tmp, "srcid.reg"),
			Ledger:       filepath.Join(tmp, "srcid.db"),
			Metrics:      filepath.Join(tmp, "srcid.prom"),
			Positions:    true,
		},
	}
	engine := &fakeEngine{
		store: store,
		results: map[string][]hit{
			"CLA": {{"CC_00001_00001", "X", .8, 83.61, 22.01}},
			"CLB": {
				{"CC_00001_00001", "Y", .95, 83.59, 21.99},
				{"CC_00002_00001", "Z", .4, 10.1, -30.1},
			},
		},
		status: map[string]int{"BAD": 2},
	}
	core, logs := observer.New(zap.InfoLevel)
	d := srcprog.NewDriver(cfg, store, engine, zap.New(core))
	return &fixture{store, engine, cfg, logs, d, tmp}
}

func (f *fixture) sources(t *testing.T) []srcclass.Source {
	return []srcclass.Source{
		source(t, "a.yaml", `
catid: CLA
catname: a.fits
title: Class A
selection:
  - "@CLA_FLUX > 1"
`),
		source(t, "b.yaml", "catid: CLB\ncatname: b.fits\nreference: B et al.\n"),
		source(t, "missing.yaml", "catid: MIS\ncatname: missing.fits\n"),
		source(t, "nocat.yaml", "catid: NOC\n"),
		source(t, "bad.yaml", "catid: BAD\ncatname: bad.fits\n"),
		source(t, "broken.yaml", "catid: [\n"),
	}
}

func TestRun(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	out, err := f.driver.Run(ctx, lat, f.sources(t))
	if err != nil {
		t.Fatal(err)
	}

	var labels, status []string
	for _, c := range out.Classes {
		labels = append(labels, c.Label)
		status = append(status, c.Status)
	}
	if want := []string{"CLA", "CLB", "MIS", "nocat.yaml", "BAD", "broken.yaml"}; !reflect.DeepEqual(labels, want) {
		t.Errorf("class labels %q, want %q", labels, want)
	}
	if want := []string{"ok", "ok", "skipped", "failed", "failed", "failed"}; !reflect.DeepEqual(status, want) {
		t.Errorf("class status %q, want %q", status, want)
	}
	if n := f.logs.FilterMessage("class not processed").Len(); n != 4 {
		t.Errorf("%d classes logged as not processed, want 4", n)
	}
	if len(out.References) != 2 || out.References[1] != (srcmerge.Reference{
		Number: 2, Label: "CLB", Name: "CLB", Citation: "B et al."}) {
		t.Errorf("references %+v", out.References)
	}

	// the missing catalogue never reaches the engine
	if len(f.engine.params) != 3 {
		t.Fatalf("%d engine runs, want 3", len(f.engine.params))
	}
	p := f.engine.params[0]
	if p.SrcCatName != lat || p.CptCatName != "/cat/a.fits" || p.Select[0] != "$@CLA_FLUX$ > 1" {
		t.Errorf("engine params %+v", p)
	}

	c := out.Consolidation
	if c.Width != 2 {
		t.Errorf("width %d, want 2", c.Width)
	}
	var names [][]string
	for _, row := range c.Rows {
		var n []string
		for _, e := range row {
			n = append(n, e.Name)
		}
		names = append(names, n)
	}
	if want := [][]string{{"Y", "X"}, {"Z"}}; !reflect.DeepEqual(names, want) {
		t.Errorf("consolidated %q, want %q", names, want)
	}

	w, err := f.store.Read(widened, "")
	if err != nil {
		t.Fatal(err)
	}
	if card, ok := w.Card(srcprog.RunCard); !ok || card.Value != out.RunID {
		t.Errorf("widened run card %v", card)
	}
	if w.Col("ID_CLB_NAME_1") == nil || w.Col("ID_CLA_ANGSEP_1") == nil {
		t.Errorf("widened columns %q", w.Names())
	}
	if p, _ := f.store.Read(lat, ""); p.Index("ID_CLA_NAME_1") >= 0 {
		t.Error("primary catalogue modified")
	}

	tabs := f.store.Tables(consFile)
	if len(tabs) != 2 || tabs[0].Name != srcmerge.CatalogueExt || tabs[1].Name != srcmerge.ReferenceExt {
		t.Fatalf("consolidated file %d tables", len(tabs))
	}
	if got := tabs[0].Col("ID_Number").I32; !reflect.DeepEqual(got, []int32{2, 1}) {
		t.Errorf("ID_Number %v", got)
	}
	if tabs[0].Col("ID_CLA_NAME_1") != nil {
		t.Error("class columns left in consolidated catalogue")
	}
	if tabs[1].Rows != 2 {
		t.Errorf("%d references", tabs[1].Rows)
	}

	reg, err := os.ReadFile(f.cfg.Output.Overlay)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{"circle(83.500000", "text={Y}", "text={Z}"} {
		if !strings.Contains(string(reg), s) {
			t.Errorf("overlay missing %q:\n%s", s, reg)
		}
	}

	prom, err := os.ReadFile(f.cfg.Output.Metrics)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []string{
		`srcid_classes_total{status="failed"} 3`,
		`srcid_classes_total{status="ok"} 2`,
		`srcid_counterparts_attached_total{class="CLB"} 2`,
		`srcid_consolidated_width 2`,
	} {
		if !strings.Contains(string(prom), s) {
			t.Errorf("metrics missing %q:\n%s", s, prom)
		}
	}

	l, err := srcdb.Open(ctx, f.cfg.Output.Ledger)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { l.Close() }()
	as, err := l.Associations(ctx, out.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(as) != 3 || as[0].Name != "Y" || as[0].Catalog != "CLB" || as[0].Source != "LAT 1" {
		t.Errorf("associations %+v", as)
	}
	cs, err := l.Classes(ctx, out.RunID)
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 6 || cs[1].Number != 2 {
		t.Errorf("ledger classes %+v", cs)
	}
}

func TestRunEngineClock(t *testing.T) {
	f := newFixture(t)
	var now time.Time
	f.driver.Now = func() time.Time {
		now = now.Add(3 * time.Second)
		return now
	}
	if _, err := f.driver.Run(context.Background(), lat, f.sources(t)); err != nil {
		t.Fatal(err)
	}
	prom, err := os.ReadFile(f.cfg.Output.Metrics)
	if err != nil {
		t.Fatal(err)
	}
	// three engine runs, each timed across one tick
	for _, s := range []string{
		"srcid_engine_duration_seconds_sum 9\n",
		"srcid_engine_duration_seconds_count 3\n",
	} {
		if !strings.Contains(string(prom), s) {
			t.Errorf("metrics missing %q:\n%s", s, prom)
		}
	}
}

func TestRunNoResult(t *testing.T) {
	f := newFixture(t)
	f.cfg.Output.Ledger = ""
	delete(f.engine.results, "CLB")
	out, err := f.driver.Run(context.Background(), lat, f.sources(t)[:2])
	if err != nil {
		t.Fatal(err)
	}
	if out.Classes[1].Status != srcdb.StatusSkipped {
		t.Errorf("class without result %+v", out.Classes[1])
	}
	if out.Consolidation.Width != 1 || len(out.References) != 1 {
		t.Errorf("width %d, %d references", out.Consolidation.Width, len(out.References))
	}
}

func TestRunNoClasses(t *testing.T) {
	f := newFixture(t)
	f.cfg.Output.Ledger, f.cfg.Output.Metrics = "", ""
	out, err := f.driver.Run(context.Background(), lat, nil)
	if err != nil {
		t.Fatal(err)
	}
	if out.Consolidation.Width != 0 {
		t.Errorf("width %d", out.Consolidation.Width)
	}
	tabs := f.store.Tables(consFile)
	if len(tabs) != 2 || tabs[0].Col("ID_Probability").Repeat != 1 {
		t.Errorf("consolidated file %v", tabs)
	}
}

func TestRunPrimaryMissing(t *testing.T) {
	f := newFixture(t)
	_, err := f.driver.Run(context.Background(), "/data/none.fits", f.sources(t))
	if !errors.Is(err, srccat.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if len(f.engine.params) != 0 {
		t.Error("engine ran without a primary catalogue")
	}
}

// A repository named relative to the working directory must reach the
// engine, which runs in engine.dir, as absolute paths.
func TestRunRelativeRepository(t *testing.T) {
	f := newFixture(t)
	f.cfg.Output.Ledger = ""
	cat := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	rel, err := filepath.Rel(wd, cat)
	if err != nil {
		t.Skip("no relative path to temp dir:", err)
	}
	if f.cfg.CatDir, err = srcconf.Resolve(rel); err != nil {
		t.Fatal(err)
	}
	f.store.Write(filepath.Join(cat, "a.fits"), counterpart())
	src := source(t, "a.yaml", "catid: CLA\ncatname: a.fits\ndensity_map: dens.fits\n")
	out, err := f.driver.Run(context.Background(), lat, []srcclass.Source{src})
	if err != nil {
		t.Fatal(err)
	}
	if out.Classes[0].Status != srcdb.StatusOK {
		t.Fatalf("class %+v", out.Classes[0])
	}
	p := f.engine.params[0]
	if p.CptCatName != filepath.Join(cat, "a.fits") || p.CptDensFile != filepath.Join(cat, "dens.fits") {
		t.Errorf("engine paths %q %q, want under %q", p.CptCatName, p.CptDensFile, cat)
	}
}

func TestRunCanceled(t *testing.T) {
	f := newFixture(t)
	f.cfg.Output.Ledger = ""
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.driver.Run(ctx, lat, f.sources(t)); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
