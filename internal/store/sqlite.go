package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jun/drivechat/internal/model"
	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS authorization_records (
	identity                TEXT PRIMARY KEY,
	status                  TEXT NOT NULL,
	encrypted_access_token  TEXT NOT NULL DEFAULT '',
	encrypted_refresh_token TEXT NOT NULL DEFAULT '',
	expiry                  INTEGER NOT NULL DEFAULT 0,
	pending_nonce           TEXT NOT NULL DEFAULT '',
	account_email           TEXT NOT NULL DEFAULT '',
	version                 INTEGER NOT NULL,
	updated_at              INTEGER NOT NULL
)`

// SQLiteStore keeps records in a single-file SQLite database, for
// single-host deployments without DynamoDB.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens (and migrates) the database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	// One writer keeps the version check and the write in the same connection.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}

func (s *SQLiteStore) Get(ctx context.Context, identity string) (*model.AuthorizationRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT identity, status, encrypted_access_token, encrypted_refresh_token,
		       expiry, pending_nonce, account_email, version, updated_at
		FROM authorization_records WHERE identity = ?`, identity)

	var (
		rec               model.AuthorizationRecord
		status            string
		expiry, updatedAt int64
	)
	err := row.Scan(&rec.Identity, &status, &rec.EncryptedAccessToken, &rec.EncryptedRefreshToken,
		&expiry, &rec.PendingNonce, &rec.AccountEmail, &rec.Version, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query authorization record: %w", err)
	}
	rec.Status = model.AuthStatus(status)
	rec.Expiry = fromUnixNano(expiry)
	rec.UpdatedAt = fromUnixNano(updatedAt)
	return &rec, nil
}

func (s *SQLiteStore) Put(ctx context.Context, rec *model.AuthorizationRecord) error {
	args := []any{
		string(rec.Status), rec.EncryptedAccessToken, rec.EncryptedRefreshToken,
		unixNano(rec.Expiry), rec.PendingNonce, rec.AccountEmail, rec.Version, unixNano(rec.UpdatedAt),
	}

	var (
		res sql.Result
		err error
	)
	if rec.Version <= 1 {
		res, err = s.db.ExecContext(ctx, `
			INSERT INTO authorization_records (status, encrypted_access_token, encrypted_refresh_token,
				expiry, pending_nonce, account_email, version, updated_at, identity)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(identity) DO NOTHING`, append(args, rec.Identity)...)
	} else {
		res, err = s.db.ExecContext(ctx, `
			UPDATE authorization_records SET status = ?, encrypted_access_token = ?, encrypted_refresh_token = ?,
				expiry = ?, pending_nonce = ?, account_email = ?, version = ?, updated_at = ?
			WHERE identity = ? AND version = ?`, append(args, rec.Identity, rec.Version-1)...)
	}
	if err != nil {
		return fmt.Errorf("write authorization record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("write authorization record: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, identity string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM authorization_records WHERE identity = ?`, identity); err != nil {
		return fmt.Errorf("delete authorization record: %w", err)
	}
	return nil
}
