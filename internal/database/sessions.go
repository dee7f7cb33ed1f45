package database

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/scribeflow/resilience/pkg/errors"
	"github.com/scribeflow/resilience/pkg/state"
)

// Kept to types both drivers accept.
const sessionsSchema = `
CREATE TABLE IF NOT EXISTS document_sessions (
	id VARCHAR(64) PRIMARY KEY,
	created_at TIMESTAMP NOT NULL,
	last_active TIMESTAMP NOT NULL,
	archived_at TIMESTAMP NOT NULL,
	data TEXT
)`

// ArchivedSession is a document session copied out of live state
type ArchivedSession struct {
	ID         string    `db:"id" json:"id"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	LastActive time.Time `db:"last_active" json:"last_active"`
	ArchivedAt time.Time `db:"archived_at" json:"archived_at"`
	Data       []byte    `db:"data" json:"data,omitempty"`
}

// SessionArchive persists completed document sessions so the live state
// file stays small
type SessionArchive struct {
	db *DB
}

// NewSessionArchive creates a session archive over the given database
func NewSessionArchive(db *DB) *SessionArchive {
	return &SessionArchive{db: db}
}

// EnsureSchema creates the archive table when it does not exist
func (a *SessionArchive) EnsureSchema(ctx context.Context) error {
	if _, err := a.db.ExecContext(ctx, sessionsSchema); err != nil {
		return errors.NewInternalError("failed to create sessions table").WithCause(err)
	}
	return nil
}

// Archive stores a session snapshot, replacing any previous archive entry
// with the same ID.
func (a *SessionArchive) Archive(ctx context.Context, id string, session state.Session) error {
	data, err := json.Marshal(session.Data)
	if err != nil {
		return errors.NewValidationError("session data is not serializable").WithCause(err)
	}

	return a.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM document_sessions WHERE id = ?"), id); err != nil {
			return errors.NewInternalError("failed to replace archived session").WithCause(err)
		}

		// The data column is TEXT, so bind a string. lib/pq encodes
		// []byte parameters as bytea.
		insert := tx.Rebind("INSERT INTO document_sessions (id, created_at, last_active, archived_at, data) VALUES (?, ?, ?, ?, ?)")
		if _, err := tx.ExecContext(ctx, insert, id, session.CreatedAt, session.LastActive, time.Now().UTC(), string(data)); err != nil {
			return errors.NewInternalError("failed to archive session").WithCause(err)
		}
		return nil
	})
}

// Recent returns the most recently archived sessions, newest first
func (a *SessionArchive) Recent(ctx context.Context, limit int) ([]ArchivedSession, error) {
	if limit <= 0 {
		limit = 50
	}

	var sessions []ArchivedSession
	query := a.db.Rebind("SELECT id, created_at, last_active, archived_at, data FROM document_sessions ORDER BY archived_at DESC LIMIT ?")
	if err := a.db.SelectContext(ctx, &sessions, query, limit); err != nil {
		return nil, errors.NewInternalError("failed to list archived sessions").WithCause(err)
	}
	return sessions, nil
}

// Count returns the number of archived sessions
func (a *SessionArchive) Count(ctx context.Context) (int, error) {
	var count int
	if err := a.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM document_sessions"); err != nil {
		return 0, errors.NewInternalError("failed to count archived sessions").WithCause(err)
	}
	return count, nil
}

// PurgeOlderThan deletes archive entries older than age and returns the
// number removed
func (a *SessionArchive) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-age)
	query := a.db.Rebind("DELETE FROM document_sessions WHERE archived_at < ?")

	result, err := a.db.ExecContext(ctx, query, cutoff)
	if err != nil {
		return 0, errors.NewInternalError("failed to purge archived sessions").WithCause(err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, errors.NewInternalError("failed to read purge result").WithCause(err)
	}
	return removed, nil
}
