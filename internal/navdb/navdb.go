// Package navdb persists run sessions, belief snapshots, and emitted
// commands to sqlite for post-run analysis and the API's session summary.
//
// Writes happen off the hot path's critical invariants: the pipeline treats
// them as best-effort and a failed insert never disturbs estimation or
// control.
package navdb

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"

	"github.com/meridian-robotics/navcore/internal/belief"
	"github.com/meridian-robotics/navcore/internal/control"
	"github.com/meridian-robotics/navcore/internal/units"
)

type DB struct {
	*sql.DB
}

// NewDB opens (creating if needed) the run-log database at path and
// ensures the baseline schema exists. Schema evolution beyond the baseline
// goes through MigrateUp.
func NewDB(path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id        TEXT PRIMARY KEY,
			config_json       TEXT,
			started_at        TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		);
		CREATE TABLE IF NOT EXISTS belief_log (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT,
			t                 DOUBLE,
			x                 DOUBLE,
			y                 DOUBLE,
			yaw               DOUBLE,
			var_x             DOUBLE,
			var_y             DOUBLE,
			var_yaw           DOUBLE,
			diverged          INTEGER,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
		CREATE TABLE IF NOT EXISTS command_log (
			id                INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id        TEXT,
			t                 DOUBLE,
			linear_mps        DOUBLE,
			angular_rps       DOUBLE,
			mode              TEXT,
			timestamp         TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			FOREIGN KEY(session_id) REFERENCES sessions(session_id)
		);
	`)
	if err != nil {
		return nil, err
	}

	return &DB{db}, nil
}

// CreateSession registers a run before any belief or command rows.
func (db *DB) CreateSession(sessionID, configJSON string) error {
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, config_json) VALUES (?, ?)`,
		sessionID, configJSON,
	)
	if err != nil {
		return fmt.Errorf("failed to create session %s: %w", sessionID, err)
	}
	return nil
}

// RecordBelief appends a belief snapshot row. Implements pipeline.Recorder.
func (db *DB) RecordBelief(sessionID string, snap belief.Snapshot) error {
	diverged := 0
	if snap.Diverged {
		diverged = 1
	}
	_, err := db.Exec(
		`INSERT INTO belief_log (session_id, t, x, y, yaw, var_x, var_y, var_yaw, diverged)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		snap.Timestamp.Float(),
		snap.Pose.X.Float(),
		snap.Pose.Y.Float(),
		snap.Pose.Yaw.Float(),
		snap.Covariance[0], snap.Covariance[4], snap.Covariance[8],
		diverged,
	)
	if err != nil {
		return fmt.Errorf("failed to record belief: %w", err)
	}
	return nil
}

// RecordCommand appends an emitted command row. Implements pipeline.Recorder.
func (db *DB) RecordCommand(sessionID string, t units.Seconds, cmd belief.ControlInput, mode control.Mode) error {
	_, err := db.Exec(
		`INSERT INTO command_log (session_id, t, linear_mps, angular_rps, mode)
		 VALUES (?, ?, ?, ?, ?)`,
		sessionID, t.Float(), cmd.Linear.Float(), cmd.Angular.Float(), string(mode),
	)
	if err != nil {
		return fmt.Errorf("failed to record command: %w", err)
	}
	return nil
}

// SessionSummary aggregates a run for the API.
type SessionSummary struct {
	SessionID     string  `json:"session_id"`
	StartedAt     string  `json:"started_at"`
	BeliefRows    int64   `json:"belief_rows"`
	CommandRows   int64   `json:"command_rows"`
	PeakLinearMps float64 `json:"peak_linear_mps"`
	LastBeliefT   float64 `json:"last_belief_t"`
	Diverged      bool    `json:"diverged"`
}

// GetSessionSummary returns aggregate statistics for one session.
func (db *DB) GetSessionSummary(sessionID string) (*SessionSummary, error) {
	s := &SessionSummary{SessionID: sessionID}

	err := db.QueryRow(
		`SELECT started_at FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&s.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("session %s not found: %w", sessionID, err)
	}

	var diverged int64
	err = db.QueryRow(
		`SELECT COUNT(*), COALESCE(MAX(t), 0), COALESCE(MAX(diverged), 0)
		 FROM belief_log WHERE session_id = ?`, sessionID,
	).Scan(&s.BeliefRows, &s.LastBeliefT, &diverged)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate belief_log: %w", err)
	}
	s.Diverged = diverged != 0

	err = db.QueryRow(
		`SELECT COUNT(*), COALESCE(MAX(ABS(linear_mps)), 0)
		 FROM command_log WHERE session_id = ?`, sessionID,
	).Scan(&s.CommandRows, &s.PeakLinearMps)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate command_log: %w", err)
	}

	return s, nil
}

// ListSessions returns session IDs ordered newest first.
func (db *DB) ListSessions(limit int) ([]string, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(
		`SELECT session_id FROM sessions ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
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
