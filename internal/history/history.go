// Package history persists analysis runs in a SQL database.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/KaramelBytes/cropctx/internal/analysis"
)

// Supported drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// timeLayout is fixed width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id                TEXT PRIMARY KEY,
	dataset           TEXT NOT NULL,
	created_at        TEXT NOT NULL,
	samples           INTEGER NOT NULL,
	mean_yield        DOUBLE PRECISION NOT NULL,
	std_yield         DOUBLE PRECISION NOT NULL,
	current_yield     DOUBLE PRECISION NOT NULL,
	context_deviation DOUBLE PRECISION NOT NULL,
	context_failure   BOOLEAN NOT NULL,
	stability_index   DOUBLE PRECISION NOT NULL,
	bucket            TEXT NOT NULL,
	advisory_mode     TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS runs_dataset_created ON runs (dataset, created_at);
`

func init() {
	sqlx.BindDriver(DriverSQLite, sqlx.QUESTION)
}

// Run is one recorded analysis.
type Run struct {
	ID               string    `db:"id" json:"id"`
	Dataset          string    `db:"dataset" json:"dataset"`
	CreatedAt        time.Time `db:"-" json:"createdAt"`
	Samples          int       `db:"samples" json:"samples"`
	MeanYield        float64   `db:"mean_yield" json:"meanYield"`
	StdYield         float64   `db:"std_yield" json:"stdYield"`
	CurrentYield     float64   `db:"current_yield" json:"currentYield"`
	ContextDeviation float64   `db:"context_deviation" json:"contextDeviation"`
	ContextFailure   bool      `db:"context_failure" json:"contextFailure"`
	StabilityIndex   float64   `db:"stability_index" json:"stabilityIndex"`
	Bucket           string    `db:"bucket" json:"bucket"`
	AdvisoryMode     string    `db:"advisory_mode" json:"advisoryMode"`
}

// row is the storage form of Run.
type row struct {
	Run
	CreatedAt string `db:"created_at"`
}

// FromReport extracts the persisted fields of rep.
func FromReport(rep *analysis.Report) Run {
	return Run{
		ID:               rep.ID,
		Dataset:          rep.Dataset,
		CreatedAt:        rep.GeneratedAt,
		Samples:          rep.Stats.Samples,
		MeanYield:        rep.Stats.MeanYield,
		StdYield:         rep.Stats.StdYield,
		CurrentYield:     rep.Stats.CurrentYield,
		ContextDeviation: rep.Stats.ContextDeviation,
		ContextFailure:   rep.Stats.ContextFailure,
		StabilityIndex:   rep.Stats.StabilityIndex,
		Bucket:           string(rep.Bucket),
		AdvisoryMode:     string(rep.AdvisoryMode),
	}
}

// Store records runs.
type Store struct {
	db     *sqlx.DB
	driver string
}

// Open connects to the database and creates the runs table if needed.
// driver is "sqlite" or "postgres"; "sqlite3" and "postgresql" are accepted.
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		driver = DriverSQLite
	case "postgres", "postgresql", "pg":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported history driver: %s (use sqlite or postgres)", driver)
	}
	if dsn == "" {
		return nil, fmt.Errorf("history: empty dsn for %s", driver)
	}
	if driver == DriverSQLite && isFilePath(dsn) {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir history dir: %w", err)
		}
	}
	db, err := sqlx.ConnectContext(ctx, driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// one writer; avoids SQLITE_BUSY between pooled connections
		db.SetMaxOpenConns(1)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func isFilePath(dsn string) bool {
	return dsn != ":memory:" && !strings.HasPrefix(dsn, "file:")
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate runs: %w", err)
		}
	}
	return nil
}

// Driver reports the normalized driver name.
func (s *Store) Driver() string { return s.driver }

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// Record inserts run. A zero CreatedAt is stamped with the current time.
func (s *Store) Record(ctx context.Context, run Run) error {
	if run.ID == "" {
		return fmt.Errorf("history: run without id")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	r := row{Run: run, CreatedAt: run.CreatedAt.UTC().Format(timeLayout)}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO runs (
			id, dataset, created_at, samples, mean_yield, std_yield, current_yield,
			context_deviation, context_failure, stability_index, bucket, advisory_mode
		) VALUES (
			:id, :dataset, :created_at, :samples, :mean_yield, :std_yield, :current_yield,
			:context_deviation, :context_failure, :stability_index, :bucket, :advisory_mode
		)
	`, r)
	if err != nil {
		return fmt.Errorf("record run %s: %w", run.ID, err)
	}
	return nil
}

// List returns the most recent runs first. An empty dataset lists every
// dataset; limit <= 0 means no limit.
func (s *Store) List(ctx context.Context, dataset string, limit int) ([]Run, error) {
	q := `SELECT id, dataset, created_at, samples, mean_yield, std_yield, current_yield,
		context_deviation, context_failure, stability_index, bucket, advisory_mode
		FROM runs`
	var args []interface{}
	if dataset != "" {
		q += ` WHERE dataset = ?`
		args = append(args, dataset)
	}
	q += ` ORDER BY created_at DESC, id`
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	var rows []row
	if err := s.db.SelectContext(ctx, &rows, s.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	out := make([]Run, 0, len(rows))
	for _, r := range rows {
		t, err := time.Parse(timeLayout, r.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("run %s: bad created_at %q: %w", r.ID, r.CreatedAt, err)
		}
		run := r.Run
		run.CreatedAt = t
		out = append(out, run)
	}
	return out, nil
}
