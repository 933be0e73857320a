package tokenstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dokzlo13/huebridge/internal/remote"
)

// DefaultSlot names the row used when a database holds a single bridge's credentials.
const DefaultSlot = "default"

// SQLiteStore keeps the record in the remote_tokens table created by internal/db.
type SQLiteStore struct {
	db   *sql.DB
	slot string
}

// NewSQLiteStore creates a store over an open database. An empty slot means DefaultSlot.
func NewSQLiteStore(db *sql.DB, slot string) *SQLiteStore {
	if slot == "" {
		slot = DefaultSlot
	}
	return &SQLiteStore{db: db, slot: slot}
}

func (s *SQLiteStore) Load(ctx context.Context) (*remote.Record, error) {
	var rec remote.Record
	var accessExpiry, refreshExpiry int64
	var appID sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT access_token, refresh_token, access_token_expiry, refresh_token_expiry,
			client_id, client_secret, app_id
		FROM remote_tokens
		WHERE slot = ?
	`, s.slot).Scan(
		&rec.AccessToken,
		&rec.RefreshToken,
		&accessExpiry,
		&refreshExpiry,
		&rec.ClientID,
		&rec.ClientSecret,
		&appID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: slot %q", remote.ErrTokenNotFound, s.slot)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load token record: %w", err)
	}

	rec.AccessTokenExpiry = time.Unix(accessExpiry, 0).UTC()
	rec.RefreshTokenExpiry = time.Unix(refreshExpiry, 0).UTC()
	rec.AppID = appID.String
	return &rec, nil
}

// Save upserts the record and appends a rotation entry in one transaction.
func (s *SQLiteStore) Save(ctx context.Context, rec *remote.Record) error {
	if rec == nil {
		return fmt.Errorf("record cannot be nil")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Unix()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO remote_tokens (slot, access_token, refresh_token, access_token_expiry,
			refresh_token_expiry, client_id, client_secret, app_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(slot) DO UPDATE SET
			access_token = excluded.access_token,
			refresh_token = excluded.refresh_token,
			access_token_expiry = excluded.access_token_expiry,
			refresh_token_expiry = excluded.refresh_token_expiry,
			client_id = excluded.client_id,
			client_secret = excluded.client_secret,
			app_id = excluded.app_id,
			updated_at = excluded.updated_at
	`, s.slot, rec.AccessToken, rec.RefreshToken, rec.AccessTokenExpiry.Unix(),
		rec.RefreshTokenExpiry.Unix(), rec.ClientID, rec.ClientSecret, rec.AppID, now)
	if err != nil {
		return fmt.Errorf("failed to store token record: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO token_rotations (slot, access_token_expiry, refresh_token_expiry, rotated_at)
		VALUES (?, ?, ?, ?)
	`, s.slot, rec.AccessTokenExpiry.Unix(), rec.RefreshTokenExpiry.Unix(), now)
	if err != nil {
		return fmt.Errorf("failed to record token rotation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit token record: %w", err)
	}
	return nil
}

// Rotations returns how many times the slot's record was saved.
func (s *SQLiteStore) Rotations(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM token_rotations WHERE slot = ?`, s.slot).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count rotations: %w", err)
	}
	return n, nil
}
