package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLite is the optional durable Store implementation, grounded on
// moonhole-HoldemIJ's internal/ledger.PostgresService shape adapted to
// modernc.org/sqlite (a pure-Go driver, so the module builds without cgo).
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (creating if needed) a sqlite-backed Store at path.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS tables (
			id TEXT PRIMARY KEY,
			max_seats INTEGER NOT NULL,
			small_blind INTEGER NOT NULL,
			big_blind INTEGER NOT NULL,
			initial_stack INTEGER NOT NULL,
			action_timeout_ms INTEGER NOT NULL,
			seed TEXT NOT NULL,
			status TEXT NOT NULL,
			created_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS seats (
			table_id TEXT NOT NULL,
			seat_id INTEGER NOT NULL,
			agent_id TEXT NOT NULL,
			stack INTEGER NOT NULL,
			PRIMARY KEY (table_id, seat_id)
		);
		CREATE TABLE IF NOT EXISTS agents (
			agent_id TEXT PRIMARY KEY,
			api_key_hash TEXT NOT NULL,
			kind TEXT NOT NULL DEFAULT 'player',
			registered_at TIMESTAMP NOT NULL
		);
		CREATE TABLE IF NOT EXISTS events (
			table_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			hand_number INTEGER NOT NULL,
			type TEXT NOT NULL,
			payload BLOB,
			created_at TIMESTAMP NOT NULL,
			PRIMARY KEY (table_id, seq)
		);
	`)
	return err
}

func (s *SQLite) CreateTable(ctx context.Context, t TableRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tables (id, max_seats, small_blind, big_blind, initial_stack, action_timeout_ms, seed, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.MaxSeats, t.SmallBlind, t.BigBlind, t.InitialStack, t.ActionTimeoutMs, t.Seed, t.Status, t.CreatedAt)
	return err
}

func (s *SQLite) GetTable(ctx context.Context, id string) (TableRecord, error) {
	var t TableRecord
	row := s.db.QueryRowContext(ctx, `
		SELECT id, max_seats, small_blind, big_blind, initial_stack, action_timeout_ms, seed, status, created_at
		FROM tables WHERE id = ?`, id)
	err := row.Scan(&t.ID, &t.MaxSeats, &t.SmallBlind, &t.BigBlind, &t.InitialStack, &t.ActionTimeoutMs, &t.Seed, &t.Status, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return TableRecord{}, ErrNotFound
	}
	return t, err
}

func (s *SQLite) ListTables(ctx context.Context, status string) ([]TableRecord, error) {
	query := `SELECT id, max_seats, small_blind, big_blind, initial_stack, action_timeout_ms, seed, status, created_at FROM tables`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TableRecord
	for rows.Next() {
		var t TableRecord
		if err := rows.Scan(&t.ID, &t.MaxSeats, &t.SmallBlind, &t.BigBlind, &t.InitialStack, &t.ActionTimeoutMs, &t.Seed, &t.Status, &t.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLite) UpdateTableStatus(ctx context.Context, id, status string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tables SET status = ? WHERE id = ?`, status, id)
	return err
}

func (s *SQLite) GetSeats(ctx context.Context, tableID string) ([]SeatRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT table_id, seat_id, agent_id, stack FROM seats WHERE table_id = ?`, tableID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SeatRecord
	for rows.Next() {
		var r SeatRecord
		if err := rows.Scan(&r.TableID, &r.SeatID, &r.AgentID, &r.Stack); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLite) SetSeat(ctx context.Context, r SeatRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO seats (table_id, seat_id, agent_id, stack) VALUES (?, ?, ?, ?)
		ON CONFLICT (table_id, seat_id) DO UPDATE SET agent_id = excluded.agent_id, stack = excluded.stack`,
		r.TableID, r.SeatID, r.AgentID, r.Stack)
	return err
}

func (s *SQLite) ClearSeat(ctx context.Context, tableID string, seatID int) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM seats WHERE table_id = ? AND seat_id = ?`, tableID, seatID)
	return err
}

func (s *SQLite) CreateAgent(ctx context.Context, a AgentRecord) error {
	kind := a.Kind
	if kind == "" {
		kind = AgentKindPlayer
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agents (agent_id, api_key_hash, kind, registered_at) VALUES (?, ?, ?, ?)`,
		a.AgentID, a.APIKeyHash, string(kind), a.RegisteredAt)
	return err
}

func (s *SQLite) GetAgentByID(ctx context.Context, agentID string) (AgentRecord, error) {
	var a AgentRecord
	var kind string
	row := s.db.QueryRowContext(ctx, `SELECT agent_id, api_key_hash, kind, registered_at FROM agents WHERE agent_id = ?`, agentID)
	err := row.Scan(&a.AgentID, &a.APIKeyHash, &kind, &a.RegisteredAt)
	if err == sql.ErrNoRows {
		return AgentRecord{}, ErrNotFound
	}
	a.Kind = AgentKind(kind)
	return a, err
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// DB exposes the underlying connection so internal/eventlog can share the
// same database file for its durable Store implementation.
func (s *SQLite) DB() *sql.DB {
	return s.db
}
