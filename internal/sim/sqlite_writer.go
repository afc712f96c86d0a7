package sim

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"netsir-sim/internal/telemetry"

	_ "modernc.org/sqlite" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS rounds (
	run_id TEXT NOT NULL,
	round INTEGER NOT NULL,
	num_susceptible INTEGER NOT NULL,
	num_infected INTEGER NOT NULL,
	num_recovered INTEGER NOT NULL,
	num_environment INTEGER NOT NULL,
	total_agents INTEGER NOT NULL,
	agents_infected INTEGER NOT NULL,
	avg_agents_per_infected REAL NOT NULL,
	agents_in_transit INTEGER NOT NULL,
	agents_environment INTEGER NOT NULL,
	avg_agents_per_environment REAL NOT NULL,
	removed_recovered INTEGER NOT NULL,
	avg_removed_per_recovered REAL NOT NULL,
	removed_environment INTEGER NOT NULL,
	avg_removed_per_environment REAL NOT NULL,
	agents_susceptible INTEGER NOT NULL,
	ts TEXT NOT NULL,
	PRIMARY KEY (run_id, round)
);
CREATE TABLE IF NOT EXISTS node_rounds (
	run_id TEXT NOT NULL,
	round INTEGER NOT NULL,
	node_id INTEGER NOT NULL,
	state TEXT NOT NULL,
	sickness INTEGER NOT NULL,
	agents INTEGER NOT NULL,
	discarded INTEGER NOT NULL,
	sent INTEGER NOT NULL,
	PRIMARY KEY (run_id, round, node_id)
);
`

// SQLiteWriter stores round and node rows in a local SQLite database.
type SQLiteWriter struct {
	mu       sync.Mutex
	db       *sql.DB
	path     string
	closeErr error
	closed   bool
}

// NewSQLiteWriter opens (or creates) the database at path and ensures the schema.
func NewSQLiteWriter(ctx context.Context, path string) (*SQLiteWriter, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &SQLiteWriter{db: db, path: path}, nil
}

// WriteRound upserts one round row.
func (w *SQLiteWriter) WriteRound(row telemetry.RoundRow) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	_, err := w.db.ExecContext(context.Background(), `
		INSERT OR REPLACE INTO rounds (
			run_id, round, num_susceptible, num_infected, num_recovered, num_environment,
			total_agents, agents_infected, avg_agents_per_infected, agents_in_transit,
			agents_environment, avg_agents_per_environment, removed_recovered,
			avg_removed_per_recovered, removed_environment, avg_removed_per_environment,
			agents_susceptible, ts
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		row.RunID, row.Round, row.Susceptible, row.Infected, row.Recovered, row.Environment,
		row.TotalAgents, row.AgentsInfected, row.AvgAgentsPerInfected, row.AgentsInTransit,
		row.AgentsEnvironment, row.AvgAgentsPerEnvironment, row.RemovedRecovered,
		row.AvgRemovedPerRecovered, row.RemovedEnvironment, row.AvgRemovedPerEnv,
		row.AgentsSusceptible, row.Timestamp.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert round %d: %w", row.Round, err)
	}
	return nil
}

// WriteNodes stores the node rows of one round in a single transaction.
func (w *SQLiteWriter) WriteNodes(rows []telemetry.NodeRow) error {
	if len(rows) == 0 {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	ctx := context.Background()
	tx, err := w.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()
	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO node_rounds (run_id, round, node_id, state, sickness, agents, discarded, sent)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()
	for _, r := range rows {
		if _, err := stmt.ExecContext(ctx, r.RunID, r.Round, r.NodeID, r.State, r.Sickness, r.Agents, r.Discarded, r.Sent); err != nil {
			return fmt.Errorf("insert node %d round %d: %w", r.NodeID, r.Round, err)
		}
	}
	return tx.Commit()
}

// Runs lists the stored run identifiers, most recent first.
func (w *SQLiteWriter) Runs(ctx context.Context) ([]string, error) {
	rows, err := w.db.QueryContext(ctx, `SELECT run_id FROM rounds GROUP BY run_id ORDER BY MAX(ts) DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Rounds returns every stored round of a run in round order.
func (w *SQLiteWriter) Rounds(ctx context.Context, runID string) ([]telemetry.RoundRow, error) {
	rows, err := w.db.QueryContext(ctx, `
		SELECT round, num_susceptible, num_infected, num_recovered, num_environment,
			total_agents, agents_infected, avg_agents_per_infected, agents_in_transit,
			agents_environment, avg_agents_per_environment, removed_recovered,
			avg_removed_per_recovered, removed_environment, avg_removed_per_environment,
			agents_susceptible, ts
		FROM rounds WHERE run_id = ? ORDER BY round`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []telemetry.RoundRow
	for rows.Next() {
		r := telemetry.RoundRow{RunID: runID}
		var ts string
		if err := rows.Scan(
			&r.Round, &r.Susceptible, &r.Infected, &r.Recovered, &r.Environment,
			&r.TotalAgents, &r.AgentsInfected, &r.AvgAgentsPerInfected, &r.AgentsInTransit,
			&r.AgentsEnvironment, &r.AvgAgentsPerEnvironment, &r.RemovedRecovered,
			&r.AvgRemovedPerRecovered, &r.RemovedEnvironment, &r.AvgRemovedPerEnv,
			&r.AgentsSusceptible, &ts,
		); err != nil {
			return nil, err
		}
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			r.Timestamp = t
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the database. Safe to call more than once.
func (w *SQLiteWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return w.closeErr
	}
	w.closed = true
	w.closeErr = w.db.Close()
	return w.closeErr
}
