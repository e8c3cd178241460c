// Public domain.

// Package srcdb keeps a ledger of association runs in SQLite.
//
// Each run records the source catalogue, the outcome of every class and
// the consolidated counterparts, so that results of successive runs can
// be compared without reopening the output catalogues.
package srcdb

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	_ "modernc.org/sqlite"

	"github.com/soniakeys/srcid/internal/srcmerge"
)

// Class outcomes.
const (
	StatusOK      = "ok"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewRunID returns a new run identifier.  Identifiers sort by creation
// time.
func NewRunID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}

// Ledger is an open run ledger.
type Ledger struct {
	db *sql.DB
}

// Open opens or creates the ledger at path.  Foreign keys are enforced
// on every pooled connection.
func Open(ctx context.Context, path string) (*Ledger, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, err
	}
	if err := initSchema(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &Ledger{db: db}, nil
}

// Close closes the ledger.
func (l *Ledger) Close() error {
	return l.db.Close()
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS runs (
	id TEXT PRIMARY KEY,
	started TEXT NOT NULL,
	catalogue TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS classes (
	run_id TEXT NOT NULL,
	number INTEGER NOT NULL,
	label TEXT NOT NULL,
	name TEXT,
	status TEXT NOT NULL,
	detail TEXT,
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS associations (
	run_id TEXT NOT NULL,
	src_row INTEGER NOT NULL,
	source TEXT,
	rank INTEGER NOT NULL,
	name TEXT NOT NULL,
	prob REAL,
	ra REAL,
	dec REAL,
	angsep REAL,
	catalog TEXT,
	PRIMARY KEY(run_id, src_row, rank),
	FOREIGN KEY(run_id) REFERENCES runs(id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_classes_run ON classes(run_id);
`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// RecordRun starts a run.
func (l *Ledger) RecordRun(ctx context.Context, id string, started time.Time, catalogue string) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO runs(id, started, catalogue) VALUES(?, ?, ?)",
		id, started.UTC().Format(time.RFC3339), catalogue)
	if err != nil {
		return fmt.Errorf("record run %s: %w", id, err)
	}
	return nil
}

// ClassRecord is the outcome of one class in a run.  Number is the
// reference number for classes that succeeded, 0 otherwise.
type ClassRecord struct {
	Number int
	Label  string
	Name   string
	Status string
	Detail string
}

// RecordClass records the outcome of one class.
func (l *Ledger) RecordClass(ctx context.Context, runID string, c ClassRecord) error {
	_, err := l.db.ExecContext(ctx,
		"INSERT INTO classes(run_id, number, label, name, status, detail) VALUES(?, ?, ?, ?, ?, ?)",
		runID, c.Number, c.Label, c.Name, c.Status, c.Detail)
	if err != nil {
		return fmt.Errorf("record class %s: %w", c.Label, err)
	}
	return nil
}

// Classes returns the class outcomes of a run in the order recorded.
func (l *Ledger) Classes(ctx context.Context, runID string) ([]ClassRecord, error) {
	rows, err := l.db.QueryContext(ctx,
		"SELECT number, label, name, status, detail FROM classes WHERE run_id = ? ORDER BY rowid",
		runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var cs []ClassRecord
	for rows.Next() {
		var c ClassRecord
		var name, detail sql.NullString
		if err := rows.Scan(&c.Number, &c.Label, &name, &c.Status, &detail); err != nil {
			return nil, err
		}
		c.Name, c.Detail = name.String, detail.String
		cs = append(cs, c)
	}
	return cs, rows.Err()
}

// Association is one consolidated counterpart.  Row and Rank are 1-based.
type Association struct {
	Row     int
	Source  string
	Rank    int
	Name    string
	Prob    float64
	RA      float64
	Dec     float64
	Angsep  float64
	Catalog string
}

var sourceNames = []string{"NickName", "Source_Name", "NAME"}

// RecordConsolidation stores the consolidated counterparts of a run in a
// single transaction.  Catalog is recorded as the class label.
func (l *Ledger) RecordConsolidation(ctx context.Context, runID string, c *srcmerge.Consolidation, refs []srcmerge.Reference) error {
	labels := make(map[int]string, len(refs))
	for _, r := range refs {
		labels[r.Number] = r.Label
	}
	src := c.Primary.ColFold(sourceNames...)

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO associations
(run_id, src_row, source, rank, name, prob, ra, dec, angsep, catalog)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for r, entries := range c.Rows {
		source := ""
		if src != nil {
			source = src.String(r)
		}
		for k, e := range entries {
			if _, err := stmt.ExecContext(ctx, runID, r+1, source, k+1, e.Name,
				e.Prob, e.RA, e.Dec, e.Angsep, labels[e.Catalog]); err != nil {
				return fmt.Errorf("record association row %d rank %d: %w", r+1, k+1, err)
			}
		}
	}
	return tx.Commit()
}

// Associations returns the counterparts recorded for a run, by row then
// rank.
func (l *Ledger) Associations(ctx context.Context, runID string) ([]Association, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT src_row, source, rank, name, prob, ra, dec, angsep, catalog
FROM associations WHERE run_id = ? ORDER BY src_row, rank`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var as []Association
	for rows.Next() {
		var a Association
		var source, catalog sql.NullString
		if err := rows.Scan(&a.Row, &source, &a.Rank, &a.Name, &a.Prob,
			&a.RA, &a.Dec, &a.Angsep, &catalog); err != nil {
			return nil, err
		}
		a.Source, a.Catalog = source.String, catalog.String
		as = append(as, a)
	}
	return as, rows.Err()
}
