package eventlog

import (
	"context"
	"database/sql"

	_ "modernc.org/sqlite"
)

// SQLiteStore is the optional durable Store implementation backed by
// modernc.org/sqlite, sharing the events table schema with
// internal/store.SQLite so both can point at the same database file.
type SQLiteStore struct {
	db *sql.DB
}

func OpenSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	_, err := db.Exec(`
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
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) GetLastEventSeq(ctx context.Context, tableID string) (int64, error) {
	var seq sql.NullInt64
	row := s.db.QueryRowContext(ctx, `SELECT MAX(seq) FROM events WHERE table_id = ?`, tableID)
	if err := row.Scan(&seq); err != nil {
		return 0, err
	}
	return seq.Int64, nil
}

func (s *SQLiteStore) CreateEvent(ctx context.Context, e Event) error {
	last, err := s.GetLastEventSeq(ctx, e.TableID)
	if err != nil {
		return err
	}
	e.Seq = last + 1
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO events (table_id, seq, hand_number, type, payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.TableID, e.Seq, e.HandNumber, e.Type, []byte(e.Payload), e.CreatedAt)
	return err
}

func (s *SQLiteStore) ListEvents(ctx context.Context, tableID string, fromSeq int64) ([]Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT table_id, seq, hand_number, type, payload, created_at
		FROM events WHERE table_id = ? AND seq >= ? ORDER BY seq ASC`, tableID, fromSeq)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var payload []byte
		if err := rows.Scan(&e.TableID, &e.Seq, &e.HandNumber, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Payload = payload
		out = append(out, e)
	}
	return out, rows.Err()
}
