package recorder

import (
	"database/sql"
	"fmt"
	"log"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"streamdash/internal/model"
)

// SQLiteRecorder persists observations and cycle outcomes to a SQLite
// database.
type SQLiteRecorder struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs
// migrations.
func NewSQLiteRecorder(dbPath string) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL mode so external readers (e.g. ad-hoc analysis) don't block the
	// refresh loop's writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	log.Printf("[INFO] sqlite recorder opened: %s", dbPath)
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS observations (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			timestamp  INTEGER NOT NULL,
			symbol     TEXT NOT NULL,
			price      REAL NOT NULL,
			volume     INTEGER,
			historical INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_obs_symbol_ts ON observations(symbol, timestamp)`,

		`CREATE TABLE IF NOT EXISTS refresh_cycles (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			started_at   INTEGER NOT NULL,
			finished_at  INTEGER NOT NULL,
			trigger_type TEXT,
			backfilled   INTEGER,
			succeeded    INTEGER,
			failed       INTEGER,
			appended     INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_cycles_ts ON refresh_cycles(started_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

func (r *SQLiteRecorder) RecordObservations(obs []model.Observation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	stmt, err := tx.Prepare(`INSERT INTO observations
		(timestamp, symbol, price, volume, historical) VALUES (?,?,?,?,?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, o := range obs {
		historical := 0
		if o.Historical {
			historical = 1
		}
		if _, err := stmt.Exec(o.Timestamp.Unix(), o.Symbol, o.Price, o.Volume, historical); err != nil {
			tx.Rollback()
			return fmt.Errorf("insert observation: %w", err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordCycle(evt *CycleEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO refresh_cycles
		(started_at, finished_at, trigger_type, backfilled, succeeded, failed, appended)
		VALUES (?,?,?,?,?,?,?)`,
		evt.StartedAt.Unix(), evt.FinishedAt.Unix(), evt.Trigger,
		evt.Backfilled, evt.Succeeded, evt.Failed, evt.Appended,
	)
	return err
}

// Prune deletes observation and cycle rows older than the cutoff and returns
// the number of observation rows removed.
func (r *SQLiteRecorder) Prune(olderThan time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := olderThan.Unix()
	res, err := r.db.Exec(`DELETE FROM observations WHERE timestamp < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune observations: %w", err)
	}
	if _, err := r.db.Exec(`DELETE FROM refresh_cycles WHERE started_at < ?`, cutoff); err != nil {
		return 0, fmt.Errorf("prune cycles: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (r *SQLiteRecorder) Close() error {
	log.Println("[INFO] closing sqlite recorder")
	return r.db.Close()
}
