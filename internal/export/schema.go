package export

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/KaramelBytes/healthloom-cli/internal/logger"
)

const (
	SchemaVersion = 1

	createTablesSQL = `
	   CREATE TABLE IF NOT EXISTS schema_versions (
	       version     INTEGER PRIMARY KEY,
	       applied_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS runs (
	       run_id      TEXT PRIMARY KEY,
	       bundle      TEXT NOT NULL,
	       created_at  TEXT NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS kpis (
	       run_id      TEXT NOT NULL REFERENCES runs(run_id),
	       kpi         TEXT NOT NULL,
	       value       REAL,
	       unit        TEXT NOT NULL,
	       PRIMARY KEY (run_id, kpi)
	   );
	   CREATE TABLE IF NOT EXISTS aggregates (
	       run_id      TEXT NOT NULL REFERENCES runs(run_id),
	       panel       TEXT NOT NULL,
	       metric      TEXT NOT NULL,
	       metric_slug TEXT NOT NULL,
	       group_key   TEXT NOT NULL,
	       reduce      TEXT NOT NULL CHECK (reduce IN ('sum', 'mean')),
	       bucket      TEXT NOT NULL,
	       rank        INTEGER NOT NULL,
	       source      TEXT NOT NULL DEFAULT '',
	       value       REAL NOT NULL,
	       n           INTEGER NOT NULL CHECK (n > 0)
	   );
	   CREATE INDEX IF NOT EXISTS aggregates_panel ON aggregates (run_id, panel);
	   CREATE TABLE IF NOT EXISTS source_stats (
	       run_id      TEXT NOT NULL REFERENCES runs(run_id),
	       panel       TEXT NOT NULL,
	       source      TEXT NOT NULL,
	       n           INTEGER NOT NULL,
	       mean        REAL NOT NULL,
	       median      REAL NOT NULL,
	       std_dev     REAL NOT NULL,
	       min         REAL NOT NULL,
	       max         REAL NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS bmi (
	       run_id      TEXT NOT NULL REFERENCES runs(run_id),
	       taken_at    TEXT NOT NULL,
	       source      TEXT NOT NULL DEFAULT '',
	       weight_kg   REAL NOT NULL,
	       bmi         REAL NOT NULL
	   );
	   CREATE TABLE IF NOT EXISTS energy_days (
	       run_id      TEXT NOT NULL REFERENCES runs(run_id),
	       date        TEXT NOT NULL,
	       active      REAL NOT NULL,
	       basal       REAL NOT NULL,
	       total       REAL NOT NULL,
	       PRIMARY KEY (run_id, date)
	   );
	   CREATE TABLE IF NOT EXISTS sleep_weekly (
	       run_id      TEXT NOT NULL REFERENCES runs(run_id),
	       day         TEXT NOT NULL,
	       position    INTEGER NOT NULL,
	       avg_hours   REAL,
	       nights      INTEGER NOT NULL,
	       PRIMARY KEY (run_id, day)
	   );
	   CREATE TABLE IF NOT EXISTS sleep_types (
	       run_id      TEXT NOT NULL REFERENCES runs(run_id),
	       type        TEXT NOT NULL,
	       mean_hours  REAL NOT NULL,
	       n           INTEGER NOT NULL,
	       PRIMARY KEY (run_id, type)
	   );
	   CREATE TABLE IF NOT EXISTS unavailable (
	       run_id      TEXT NOT NULL REFERENCES runs(run_id),
	       panel       TEXT NOT NULL,
	       reason      TEXT NOT NULL
	   );`
)

// InitSchema creates the tables if needed and records the schema version once.
func InitSchema(db *sql.DB) error {
	logger.Debug().Msg("Creating export schema...")

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}

	// Track transaction state
	committed := false
	defer func() {
		if !committed {
			if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
				logger.Debug().Err(err).Msg("Failed to rollback transaction")
			}
		}
	}()

	if _, err := tx.Exec(createTablesSQL); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}
	if _, err := tx.Exec(`
        INSERT OR IGNORE INTO schema_versions (version, applied_at)
        VALUES (?, datetime('now'))
    `, SchemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	committed = true
	return nil
}

// GetSchemaVersion returns the newest recorded schema version, 0 for a fresh database.
func GetSchemaVersion(db *sql.DB) (int, error) {
	exists, err := TableExists(db, "schema_versions")
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}
	var version int
	err = db.QueryRow(`
        SELECT version
        FROM schema_versions
        ORDER BY version DESC
        LIMIT 1
    `).Scan(&version)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read schema version: %w", err)
	}
	return version, nil
}

// TableExists checks if a table exists
func TableExists(db *sql.DB, tableName string) (bool, error) {
	var exists bool
	err := db.QueryRow(`
        SELECT EXISTS (
            SELECT 1 FROM sqlite_master
            WHERE type='table' AND name=?
        )
    `, tableName).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check table %s: %w", tableName, err)
	}
	return exists, nil
}
