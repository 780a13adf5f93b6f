// Package export persists computed dashboard views into a SQLite database so
// they can be queried outside the CLI.
package export

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gosimple/slug"
	_ "github.com/mattn/go-sqlite3"

	"github.com/KaramelBytes/healthloom-cli/internal/dashboard"
	"github.com/KaramelBytes/healthloom-cli/internal/logger"
	"github.com/KaramelBytes/healthloom-cli/internal/metrics"
)

const (
	defaultDirPerm = 0o755
	timeLayout     = "2006-01-02 15:04:05"
)

// ErrInvalidDBPath is returned when no database path is given.
var ErrInvalidDBPath = errors.New("export: database path is empty")

// Run identifies one export. Every row written carries its ID.
type Run struct {
	ID        string
	Bundle    string
	CreatedAt time.Time
}

// Summary counts the rows written per table.
type Summary struct {
	RunID       string `json:"run_id" yaml:"run_id"`
	KPIs        int    `json:"kpis" yaml:"kpis"`
	Aggregates  int    `json:"aggregates" yaml:"aggregates"`
	SourceStats int    `json:"source_stats" yaml:"source_stats"`
	BMI         int    `json:"bmi" yaml:"bmi"`
	EnergyDays  int    `json:"energy_days" yaml:"energy_days"`
	SleepWeekly int    `json:"sleep_weekly" yaml:"sleep_weekly"`
	SleepTypes  int    `json:"sleep_types" yaml:"sleep_types"`
	Unavailable int    `json:"unavailable" yaml:"unavailable"`
}

// Sink writes runs into one database file.
type Sink struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

// Open creates or opens the database at path and makes sure the schema exists.
func Open(path string) (*Sink, error) {
	if path == "" {
		return nil, ErrInvalidDBPath
	}
	if err := os.MkdirAll(filepath.Dir(path), defaultDirPerm); err != nil {
		return nil, fmt.Errorf("create export directory: %w", err)
	}

	dsn := path + "?_journal=WAL&_auto_vacuum=2&_foreign_keys=1"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open export database: %w", err)
	}
	if err := InitSchema(db); err != nil {
		db.Close()
		return nil, err
	}

	logger.Info().Str("path", path).Int("schema_version", SchemaVersion).Msg("export database ready")
	return &Sink{db: db, path: path}, nil
}

// DB exposes the underlying handle for read queries.
func (s *Sink) DB() *sql.DB { return s.db }

// Close checkpoints the WAL and closes the database.
func (s *Sink) Close() error {
	if _, err := s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.db.Close()
		return fmt.Errorf("checkpoint wal: %w", err)
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close export database: %w", err)
	}
	logger.Debug().Str("path", s.path).Msg("export database closed")
	return nil
}

const (
	insertRunSQL       = `INSERT INTO runs (run_id, bundle, created_at) VALUES (?, ?, ?)`
	insertKPISQL       = `INSERT INTO kpis (run_id, kpi, value, unit) VALUES (?, ?, ?, ?)`
	insertAggregateSQL = `INSERT INTO aggregates (run_id, panel, metric, metric_slug, group_key, reduce, bucket, rank, source, value, n)
	                      VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertSourceSQL = `INSERT INTO source_stats (run_id, panel, source, n, mean, median, std_dev, min, max)
	                   VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	insertBMISQL         = `INSERT INTO bmi (run_id, taken_at, source, weight_kg, bmi) VALUES (?, ?, ?, ?, ?)`
	insertEnergySQL      = `INSERT INTO energy_days (run_id, date, active, basal, total) VALUES (?, ?, ?, ?, ?)`
	insertSleepDaySQL    = `INSERT INTO sleep_weekly (run_id, day, position, avg_hours, nights) VALUES (?, ?, ?, ?, ?)`
	insertSleepTypeSQL   = `INSERT INTO sleep_types (run_id, type, mean_hours, n) VALUES (?, ?, ?, ?)`
	insertUnavailableSQL = `INSERT INTO unavailable (run_id, panel, reason) VALUES (?, ?, ?)`
)

// writer holds the prepared statements of one transaction.
type writer struct {
	ctx   context.Context
	tx    *sql.Tx
	run   string
	stmts map[string]*sql.Stmt
}

func (w *writer) exec(query string, args ...any) error {
	stmt, ok := w.stmts[query]
	if !ok {
		var err error
		if stmt, err = w.tx.PrepareContext(w.ctx, query); err != nil {
			return fmt.Errorf("prepare statement: %w", err)
		}
		w.stmts[query] = stmt
	}
	if _, err := stmt.ExecContext(w.ctx, append([]any{w.run}, args...)...); err != nil {
		return fmt.Errorf("insert: %w", err)
	}
	return nil
}

func (w *writer) close() {
	for _, stmt := range w.stmts {
		stmt.Close()
	}
}

// Write stores the overview and every panel of one run in a single
// transaction. Panels that were unavailable are recorded with their reason.
func (s *Sink) Write(ctx context.Context, run Run, o *dashboard.Overview, panels []dashboard.Panel) (Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sum := Summary{RunID: run.ID}
	if run.ID == "" {
		return sum, fmt.Errorf("%w: run id is empty", metrics.ErrInvalidArgument)
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return sum, fmt.Errorf("begin export tx: %w", err)
	}
	w := &writer{ctx: ctx, tx: tx, run: run.ID, stmts: map[string]*sql.Stmt{}}

	// Track transaction state
	committed := false
	defer func() {
		w.close()
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Error().Err(err).Msg("Failed to roll back transaction")
			}
		}
	}()

	if _, err := tx.ExecContext(ctx, insertRunSQL, run.ID, run.Bundle, run.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
		return sum, fmt.Errorf("insert run: %w", err)
	}

	if o != nil {
		for _, k := range o.KPIs {
			var v any
			if k.Available {
				v = k.Value
			}
			if err := w.exec(insertKPISQL, k.ID, v, k.Unit); err != nil {
				return sum, err
			}
			sum.KPIs++
		}
	}

	for _, p := range panels {
		if err := w.panel(p, &sum); err != nil {
			return sum, fmt.Errorf("panel %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return sum, fmt.Errorf("commit export: %w", err)
	}
	committed = true

	logger.Info().
		Str("run", run.ID).
		Int("aggregates", sum.Aggregates).
		Int("unavailable", sum.Unavailable).
		Msg("export written")
	return sum, nil
}

func (w *writer) panel(p dashboard.Panel, sum *Summary) error {
	if p.Unavailable != nil {
		sum.Unavailable++
		return w.exec(insertUnavailableSQL, p.ID, p.Unavailable.Reason)
	}

	switch data := p.Data.(type) {
	case *metrics.AggregatedSeries:
		metricSlug := slug.Make(data.Metric)
		for _, b := range data.Buckets {
			if err := w.exec(insertAggregateSQL, p.ID, data.Metric, metricSlug, data.GroupKey.String(),
				data.Reduce.String(), b.Key, b.Rank, b.Source, b.Value, b.Count); err != nil {
				return err
			}
			sum.Aggregates++
		}
	case []metrics.SourceSummary:
		for _, x := range data {
			if err := w.exec(insertSourceSQL, p.ID, x.Source, x.Count, x.Mean, x.Median, x.StdDev, x.Min, x.Max); err != nil {
				return err
			}
			sum.SourceStats++
		}
	case *metrics.BMISeries:
		for _, r := range data.Readings {
			if err := w.exec(insertBMISQL, r.Time.Format(timeLayout), r.Source, r.WeightKg, r.BMI); err != nil {
				return err
			}
			sum.BMI++
		}
	case []metrics.EnergyDay:
		for _, d := range data {
			if err := w.exec(insertEnergySQL, d.Date.Format(metrics.DateLayout), d.Active, d.Basal, d.Total); err != nil {
				return err
			}
			sum.EnergyDays++
		}
	case *metrics.SleepSummary:
		for i, d := range data.WeeklyAverage {
			var v any
			if d.HasData && d.Value != nil {
				v = *d.Value
			}
			if err := w.exec(insertSleepDaySQL, d.Day, i, v, d.Days); err != nil {
				return err
			}
			sum.SleepWeekly++
		}
		for _, t := range data.ByType {
			if err := w.exec(insertSleepTypeSQL, t.Type, t.MeanHours, t.Count); err != nil {
				return err
			}
			sum.SleepTypes++
		}
	default:
		logger.Warn().Str("panel", p.ID).Str("kind", p.Kind).Msg("panel kind not exported")
	}
	return nil
}
