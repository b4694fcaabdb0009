// Package store keeps the history of probe runs in SQLite so that strategies that
// never fire can be spotted across many page loads and host releases.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"modscout/internal/logging"
	"modscout/internal/monitor"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Run summarises one bootstrap run.
type Run struct {
	ID        string    `json:"id"`
	TakenAt   time.Time `json:"taken_at"`
	Target    string    `json:"target"` // page URL, or "demo"
	Mechanism string    `json:"mechanism"`
	State     string    `json:"state"`
	Modules   int       `json:"modules"`
	Resolved  int       `json:"resolved"`
	Total     int       `json:"total"`
}

// DeadStrategy is a strategy index that never succeeded in any recorded run where
// its capability was read.
type DeadStrategy struct {
	Capability string `json:"capability"`
	Strategy   int    `json:"strategy"`
	Runs       int    `json:"runs"`
	Attempts   int64  `json:"attempts"`
}

// History is the SQLite backed run history.
type History struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Open creates or opens a history database. ":memory:" gives a private in-memory
// database.
func Open(path string) (*History, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection keeps ":memory:" a single database and serialises writers.
	db.SetMaxOpenConns(1)

	h := &History{db: db, dbPath: path}
	if err := h.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	logging.Get(logging.CategoryStore).Debug("history opened", zap.String("path", path))
	return h, nil
}

// Close closes the database connection.
func (h *History) Close() error {
	return h.db.Close()
}

// Path returns the database file path.
func (h *History) Path() string {
	return h.dbPath
}

func (h *History) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		taken_at INTEGER NOT NULL,
		target TEXT NOT NULL DEFAULT '',
		mechanism TEXT NOT NULL DEFAULT '',
		state TEXT NOT NULL DEFAULT '',
		modules INTEGER NOT NULL DEFAULT 0,
		resolved INTEGER NOT NULL DEFAULT 0,
		total INTEGER NOT NULL DEFAULT 0,
		snapshot TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_taken_at ON runs(taken_at);

	CREATE TABLE IF NOT EXISTS strategy_outcomes (
		run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		capability TEXT NOT NULL,
		strategy_index INTEGER NOT NULL,
		attempts INTEGER NOT NULL DEFAULT 0,
		successes INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (run_id, capability, strategy_index)
	);
	CREATE INDEX IF NOT EXISTS idx_outcomes_capability ON strategy_outcomes(capability, strategy_index);
	`
	_, err := h.db.Exec(schema)
	return err
}

// Record stores a run and its monitor snapshot. Only capabilities that were read
// during the run get outcome rows, with one row per declared strategy even when it
// was never reached.
func (h *History) Record(ctx context.Context, run Run, snap monitor.Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if run.ID == "" {
		run.ID = snap.RunID
	}
	if run.ID == "" {
		return fmt.Errorf("record run: missing run id")
	}
	if run.TakenAt.IsZero() {
		run.TakenAt = snap.TakenAt
	}

	blob, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, taken_at, target, mechanism, state, modules, resolved, total, snapshot)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.TakenAt.UnixMilli(), run.Target, run.Mechanism, run.State,
		run.Modules, run.Resolved, run.Total, string(blob))
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO strategy_outcomes (run_id, capability, strategy_index, attempts, successes)
		VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare outcomes: %w", err)
	}
	defer stmt.Close()

	for name, stats := range snap.Report {
		if stats.Calls == 0 {
			continue
		}
		for _, idx := range outcomeIndices(stats) {
			st := stats.Strategies[idx]
			if _, err := stmt.ExecContext(ctx, run.ID, name, idx, st.Attempts, st.Successes); err != nil {
				return fmt.Errorf("insert outcome %s/%d: %w", name, idx, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	logging.Get(logging.CategoryStore).Debug("run recorded", zap.String("run_id", run.ID), zap.Int("capabilities", len(snap.Report)))
	return nil
}

// outcomeIndices lists declared indices plus any other recorded index, sorted.
func outcomeIndices(s monitor.CapabilityStats) []int {
	seen := make(map[int]bool)
	for i := 1; i <= s.Declared; i++ {
		seen[i] = true
	}
	for i := range s.Strategies {
		seen[i] = true
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (h *History) Runs(ctx context.Context, limit int) ([]Run, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	query := `SELECT id, taken_at, target, mechanism, state, modules, resolved, total
		FROM runs ORDER BY taken_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var ms int64
		if err := rows.Scan(&r.ID, &ms, &r.Target, &r.Mechanism, &r.State, &r.Modules, &r.Resolved, &r.Total); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.TakenAt = time.UnixMilli(ms).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Snapshot returns the monitor snapshot stored with a run.
func (h *History) Snapshot(ctx context.Context, runID string) (monitor.Snapshot, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var blob string
	err := h.db.QueryRowContext(ctx, `SELECT snapshot FROM runs WHERE id = ?`, runID).Scan(&blob)
	if err == sql.ErrNoRows {
		return monitor.Snapshot{}, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return monitor.Snapshot{}, fmt.Errorf("query snapshot: %w", err)
	}
	var snap monitor.Snapshot
	if err := json.Unmarshal([]byte(blob), &snap); err != nil {
		return monitor.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

// DeadStrategies lists strategies that never succeeded across at least minRuns
// runs in which their capability was read.
func (h *History) DeadStrategies(ctx context.Context, minRuns int) ([]DeadStrategy, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if minRuns < 1 {
		minRuns = 1
	}
	rows, err := h.db.QueryContext(ctx, `
		SELECT capability, strategy_index, COUNT(*) AS runs, SUM(attempts)
		FROM strategy_outcomes
		WHERE strategy_index > 0
		GROUP BY capability, strategy_index
		HAVING SUM(successes) = 0 AND COUNT(*) >= ?
		ORDER BY capability, strategy_index`, minRuns)
	if err != nil {
		return nil, fmt.Errorf("query dead strategies: %w", err)
	}
	defer rows.Close()

	var out []DeadStrategy
	for rows.Next() {
		var d DeadStrategy
		if err := rows.Scan(&d.Capability, &d.Strategy, &d.Runs, &d.Attempts); err != nil {
			return nil, fmt.Errorf("scan dead strategy: %w", err)
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Prune deletes all but the newest keep runs and returns how many were removed.
func (h *History) Prune(ctx context.Context, keep int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	const stale = `SELECT id FROM runs ORDER BY taken_at DESC, id LIMIT -1 OFFSET ?`
	if _, err := tx.ExecContext(ctx, `DELETE FROM strategy_outcomes WHERE run_id IN (`+stale+`)`, keep); err != nil {
		return 0, fmt.Errorf("prune outcomes: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM runs WHERE id IN (`+stale+`)`, keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, tx.Commit()
}
