// Package store persists session audit trails in SQLite. The in-memory
// audit log stays authoritative; the store is a durable, append-only mirror
// attached through an audit handler, so a crashed process still leaves a
// reconstructable record.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/selfsession/selfsession/pkg/audit"
)

// AuditStore writes audit entries to a SQLite database.
type AuditStore struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and runs migrations.
// Use ":memory:" for an ephemeral store.
func Open(path string) (*AuditStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: opening database: %w", err)
	}
	return NewAuditStore(db)
}

// NewAuditStore wraps an existing database handle and runs migrations.
func NewAuditStore(db *sql.DB) (*AuditStore, error) {
	s := &AuditStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *AuditStore) migrate() error {
	query := `
    CREATE TABLE IF NOT EXISTS audit_entries (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        timestamp TEXT NOT NULL,
        event_type TEXT NOT NULL,
        from_state TEXT NOT NULL DEFAULT '',
        to_state TEXT NOT NULL DEFAULT '',
        reason TEXT NOT NULL DEFAULT '',
        authority_valid INTEGER,
        extra JSON,
        previous_hash TEXT NOT NULL DEFAULT '',
        hash TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS idx_audit_session ON audit_entries(session_id);`
	_, err := s.db.ExecContext(context.Background(), query)
	if err != nil {
		return fmt.Errorf("store: migrating: %w", err)
	}
	return nil
}

// Append persists one entry under the session id.
func (s *AuditStore) Append(ctx context.Context, sessionID string, e audit.Entry) error {
	var extra []byte
	if e.Extra != nil {
		var err error
		extra, err = json.Marshal(e.Extra)
		if err != nil {
			return fmt.Errorf("store: encoding extra: %w", err)
		}
	}

	var authority sql.NullBool
	if e.AuthorityValid != nil {
		authority = sql.NullBool{Bool: *e.AuthorityValid, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO audit_entries
            (session_id, timestamp, event_type, from_state, to_state, reason, authority_valid, extra, previous_hash, hash)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		e.Timestamp.UTC().Format(time.RFC3339Nano),
		string(e.EventType),
		e.FromState,
		e.ToState,
		e.Reason,
		authority,
		nullableText(extra),
		e.PreviousHash,
		e.Hash,
	)
	if err != nil {
		return fmt.Errorf("store: appending entry: %w", err)
	}
	return nil
}

// Entries returns every persisted entry for the session in insertion order.
func (s *AuditStore) Entries(ctx context.Context, sessionID string) ([]audit.Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT timestamp, event_type, from_state, to_state, reason, authority_valid, extra, previous_hash, hash
        FROM audit_entries
        WHERE session_id = ?
        ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("store: querying entries: %w", err)
	}
	defer rows.Close()

	var out []audit.Entry
	for rows.Next() {
		var (
			ts        string
			eventType string
			entry     audit.Entry
			authority sql.NullBool
			extra     sql.NullString
		)
		if err := rows.Scan(&ts, &eventType, &entry.FromState, &entry.ToState, &entry.Reason, &authority, &extra, &entry.PreviousHash, &entry.Hash); err != nil {
			return nil, fmt.Errorf("store: scanning entry: %w", err)
		}
		entry.Timestamp, err = time.Parse(time.RFC3339Nano, ts)
		if err != nil {
			return nil, fmt.Errorf("store: parsing timestamp: %w", err)
		}
		entry.EventType = audit.EventType(eventType)
		if authority.Valid {
			entry.AuthorityValid = audit.Bool(authority.Bool)
		}
		if extra.Valid && extra.String != "" {
			if err := json.Unmarshal([]byte(extra.String), &entry.Extra); err != nil {
				return nil, fmt.Errorf("store: decoding extra: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

// CountByType returns the number of persisted entries of one event type for
// the session.
func (s *AuditStore) CountByType(ctx context.Context, sessionID string, t audit.EventType) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
        SELECT COUNT(*) FROM audit_entries WHERE session_id = ? AND event_type = ?`,
		sessionID, string(t)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("store: counting entries: %w", err)
	}
	return n, nil
}

// Handler returns an audit handler mirroring entries for the session into
// the store. Persistence failures are logged, not propagated: the in-memory
// log already holds the authoritative record.
func (s *AuditStore) Handler(sessionID string, logger *slog.Logger) audit.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(e audit.Entry) {
		if err := s.Append(context.Background(), sessionID, e); err != nil {
			logger.Error("audit persistence failed", "session_id", sessionID, "error", err)
		}
	}
}

// Close releases the database handle.
func (s *AuditStore) Close() error { return s.db.Close() }

func nullableText(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
