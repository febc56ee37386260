package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrUserExists is returned by CreateUser when the username is taken.
var ErrUserExists = errors.New("username already exists")

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *PostgresStore) GetUser(ctx context.Context, username string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, `
		SELECT username, password_hash, created_at FROM users WHERE username = $1
	`, username).Scan(&user.Username, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, passwordHash string) error {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO users (username, password_hash)
		VALUES ($1, $2)
		ON CONFLICT (username) DO NOTHING
	`, username, passwordHash)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	if affected == 0 {
		return ErrUserExists
	}
	return nil
}

// GetFileTree returns the serialized forest for a user, or sql.ErrNoRows
// when none has been persisted yet.
func (s *PostgresStore) GetFileTree(ctx context.Context, username string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT tree FROM file_trees WHERE username = $1
	`, username).Scan(&data)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *PostgresStore) PutFileTree(ctx context.Context, username string, data []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO file_trees (username, tree, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (username) DO UPDATE SET tree = EXCLUDED.tree, updated_at = NOW()
	`, username, data)
	if err != nil {
		return fmt.Errorf("put file tree: %w", err)
	}
	return nil
}

// Refresh sessions — the Postgres fallback used when Redis is not configured.

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, username string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, username, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET username=EXCLUDED.username, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, username, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (string, error) {
	var username string
	err := s.db.QueryRowContext(ctx, `
		SELECT username FROM refresh_sessions
		WHERE token_hash = $1 AND revoked_at IS NULL AND expires_at > NOW()
	`, tokenHash).Scan(&username)
	if err != nil {
		return "", err
	}
	return username, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

// Note index — flattened note rows backing the FTS search fallback.

func (s *PostgresStore) UpsertNoteRecord(ctx context.Context, rec NoteRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO note_index (username, note_id, title, body)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (note_id) DO UPDATE SET title=EXCLUDED.title, body=EXCLUDED.body
	`, rec.Username, rec.NoteID, rec.Title, rec.Body)
	if err != nil {
		return fmt.Errorf("upsert note record: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteNoteRecord(ctx context.Context, noteID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM note_index WHERE note_id=$1`, noteID)
	if err != nil {
		return fmt.Errorf("delete note record: %w", err)
	}
	return nil
}

// ReplaceNoteRecords swaps a user's whole note index in one transaction,
// used after a tree restore.
func (s *PostgresStore) ReplaceNoteRecords(ctx context.Context, username string, records []NoteRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin replace note records: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM note_index WHERE username=$1`, username); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear note records: %w", err)
	}
	for _, rec := range records {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO note_index (username, note_id, title, body)
			VALUES ($1, $2, $3, $4)
		`, username, rec.NoteID, rec.Title, rec.Body); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("insert note record: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit replace note records: %w", err)
	}
	return nil
}

// SearchNotes runs the Postgres FTS query over a user's note index.
func (s *PostgresStore) SearchNotes(ctx context.Context, username, query string, limit int) ([]NoteRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT username, note_id, title,
			ts_headline('english', body, plainto_tsquery('english', $2), 'MaxFragments=1,MaxWords=30')
		FROM note_index
		WHERE username = $1 AND fts @@ plainto_tsquery('english', $2)
		ORDER BY ts_rank(fts, plainto_tsquery('english', $2)) DESC
		LIMIT $3
	`, username, query, limit)
	if err != nil {
		return nil, fmt.Errorf("search notes: %w", err)
	}
	defer rows.Close()

	var results []NoteRecord
	for rows.Next() {
		var rec NoteRecord
		if err := rows.Scan(&rec.Username, &rec.NoteID, &rec.Title, &rec.Body); err != nil {
			return nil, fmt.Errorf("scan note record: %w", err)
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
