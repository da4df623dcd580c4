// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/keymint/keymint/internal/dbinterface"
)

var (
	ErrLicenseKeyNotFound       = errors.New("license key not found")
	ErrDuplicateLicenseKey      = errors.New("license key string already exists")
	ErrLicenseKeyAlreadyClaimed = errors.New("license key already claimed")
	ErrUnknownOwner             = errors.New("license key owner does not exist")
)

// LicenseKey status values. Keys start active, transition to expired
// lazily at validation time, and can be revoked or reactivated by an
// administrator.
const (
	LicenseKeyStatusActive  = "active"
	LicenseKeyStatusExpired = "expired"
	LicenseKeyStatusRevoked = "revoked"
)

type LicenseKey struct {
	ID                string     `json:"id"`
	Key               string     `json:"key"`
	OwnerID           *string    `json:"ownerId,omitempty"`
	ProductID         *string    `json:"productId,omitempty"`
	Status            string     `json:"status"`
	ExpiresAt         time.Time  `json:"expiresAt"`
	MachineID         *string    `json:"machineId,omitempty"`
	LastValidatedAt   *time.Time `json:"lastValidatedAt,omitempty"`
	ClaimedAt         *time.Time `json:"claimedAt,omitempty"`
	ClaimedByUsername *string    `json:"claimedByUsername,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// LicenseKeyWithOwner is a key joined with its owner's username for
// the admin listing.
type LicenseKeyWithOwner struct {
	LicenseKey
	OwnerUsername *string `json:"ownerUsername,omitempty"`
}

const licenseKeyColumns = `id, key, owner_id, product_id, status, expires_at, machine_id, last_validated_at, claimed_at, claimed_by_username, created_at`

type LicenseKeyStore struct {
	db dbinterface.Querier
}

func NewLicenseKeyStore(db dbinterface.Querier) *LicenseKeyStore {
	return &LicenseKeyStore{db: db}
}

// Create inserts a new key row. It returns ErrDuplicateLicenseKey when
// the key string collides with an existing row so callers can regenerate
// and retry, and ErrUnknownOwner when ownerID does not reference a user.
func (s *LicenseKeyStore) Create(ctx context.Context, key string, ownerID, productID *string, expiresAt time.Time) (*LicenseKey, error) {
	query := `
		INSERT INTO license_keys (id, key, owner_id, product_id, status, expires_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING ` + licenseKeyColumns

	row := s.db.QueryRowContext(ctx, query, uuid.NewString(), key, ownerID, productID, LicenseKeyStatusActive, expiresAt.UTC())

	lk, err := scanLicenseKey(row)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrDuplicateLicenseKey
		}
		if isForeignKeyConstraintError(err) {
			return nil, ErrUnknownOwner
		}
		return nil, err
	}

	return lk, nil
}

func (s *LicenseKeyStore) Get(ctx context.Context, id string) (*LicenseKey, error) {
	query := `SELECT ` + licenseKeyColumns + ` FROM license_keys WHERE id = ?`

	lk, err := scanLicenseKey(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLicenseKeyNotFound
		}
		return nil, err
	}

	return lk, nil
}

// GetByKey looks up a key by its exact canonical string.
func (s *LicenseKeyStore) GetByKey(ctx context.Context, key string) (*LicenseKey, error) {
	query := `SELECT ` + licenseKeyColumns + ` FROM license_keys WHERE key = ?`

	lk, err := scanLicenseKey(s.db.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLicenseKeyNotFound
		}
		return nil, err
	}

	return lk, nil
}

// ListByOwner returns the given user's keys, newest first. Ownership is
// always resolved server-side; callers must never pass a client-supplied
// filter here for authorization.
func (s *LicenseKeyStore) ListByOwner(ctx context.Context, ownerID string) ([]*LicenseKey, error) {
	query := `
		SELECT ` + licenseKeyColumns + `
		FROM license_keys
		WHERE owner_id = ?
		ORDER BY created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*LicenseKey, 0)
	for rows.Next() {
		lk := &LicenseKey{}
		if err := scanLicenseKeyFields(rows, lk); err != nil {
			return nil, err
		}
		keys = append(keys, lk)
	}

	return keys, rows.Err()
}

// List returns all keys joined with the owner's username, newest first.
func (s *LicenseKeyStore) List(ctx context.Context) ([]*LicenseKeyWithOwner, error) {
	query := `
		SELECT k.id, k.key, k.owner_id, k.product_id, k.status, k.expires_at, k.machine_id,
			k.last_validated_at, k.claimed_at, k.claimed_by_username, k.created_at, u.username
		FROM license_keys k
		LEFT JOIN users u ON u.id = k.owner_id
		ORDER BY k.created_at DESC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]*LicenseKeyWithOwner, 0)
	for rows.Next() {
		lk := &LicenseKeyWithOwner{}
		if err := rows.Scan(
			&lk.ID,
			&lk.Key,
			&lk.OwnerID,
			&lk.ProductID,
			&lk.Status,
			&lk.ExpiresAt,
			&lk.MachineID,
			&lk.LastValidatedAt,
			&lk.ClaimedAt,
			&lk.ClaimedByUsername,
			&lk.CreatedAt,
			&lk.OwnerUsername,
		); err != nil {
			return nil, err
		}
		keys = append(keys, lk)
	}

	return keys, rows.Err()
}

// Claim atomically transfers an unowned key to a user. The update is
// conditioned on owner_id IS NULL at write time so concurrent claimants
// cannot both win; the loser gets ErrLicenseKeyAlreadyClaimed.
func (s *LicenseKeyStore) Claim(ctx context.Context, id, userID, username string, claimedAt time.Time) error {
	query := `
		UPDATE license_keys
		SET owner_id = ?, claimed_at = ?, claimed_by_username = ?
		WHERE id = ? AND owner_id IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, userID, claimedAt.UTC(), username, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Either the key vanished or someone else claimed it first.
		if _, err := s.Get(ctx, id); err != nil {
			return err
		}
		return ErrLicenseKeyAlreadyClaimed
	}

	return nil
}

// BindMachine performs the write-once machine binding. The update is
// conditioned on machine_id IS NULL so two concurrent first validations
// cannot bind two different machines; the return value reports whether
// this call won the bind.
func (s *LicenseKeyStore) BindMachine(ctx context.Context, id, machineID string, at time.Time) (bool, error) {
	query := `
		UPDATE license_keys
		SET machine_id = ?, last_validated_at = ?
		WHERE id = ? AND machine_id IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, machineID, at.UTC(), id)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// TouchValidated advances last_validated_at. The timestamp only moves
// forward; stale writes from slow requests are dropped.
func (s *LicenseKeyStore) TouchValidated(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE license_keys
		SET last_validated_at = ?
		WHERE id = ? AND (last_validated_at IS NULL OR last_validated_at < ?)
	`

	_, err := s.db.ExecContext(ctx, query, at.UTC(), id, at.UTC())
	return err
}

// MarkExpired transitions an active key to expired. Conditioned on the
// current status so it is idempotent and never races the admin revoke
// path; returns whether this call performed the transition.
func (s *LicenseKeyStore) MarkExpired(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE license_keys
		SET status = ?
		WHERE id = ? AND status = ?
	`

	result, err := s.db.ExecContext(ctx, query, LicenseKeyStatusExpired, id, LicenseKeyStatusActive)
	if err != nil {
		return false, err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return rows > 0, nil
}

// SetStatus is the administrative status override. It never touches
// expires_at or machine_id; a reactivated key that is past its horizon
// will re-expire on the next validation.
func (s *LicenseKeyStore) SetStatus(ctx context.Context, id, status string) (*LicenseKey, error) {
	query := `
		UPDATE license_keys
		SET status = ?
		WHERE id = ?
		RETURNING ` + licenseKeyColumns

	lk, err := scanLicenseKey(s.db.QueryRowContext(ctx, query, status, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLicenseKeyNotFound
		}
		return nil, err
	}

	return lk, nil
}

// UpdateExpiresAt replaces the expiry horizon with a caller-computed
// value. Extension arithmetic (additive on the stored expiry) lives in
// the issuance service.
func (s *LicenseKeyStore) UpdateExpiresAt(ctx context.Context, id string, expiresAt time.Time) (*LicenseKey, error) {
	query := `
		UPDATE license_keys
		SET expires_at = ?
		WHERE id = ?
		RETURNING ` + licenseKeyColumns

	lk, err := scanLicenseKey(s.db.QueryRowContext(ctx, query, expiresAt.UTC(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrLicenseKeyNotFound
		}
		return nil, err
	}

	return lk, nil
}

func (s *LicenseKeyStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM license_keys WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrLicenseKeyNotFound
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLicenseKey(row rowScanner) (*LicenseKey, error) {
	lk := &LicenseKey{}
	if err := scanLicenseKeyFields(row, lk); err != nil {
		return nil, err
	}
	return lk, nil
}

func scanLicenseKeyFields(row rowScanner, lk *LicenseKey) error {
	return row.Scan(
		&lk.ID,
		&lk.Key,
		&lk.OwnerID,
		&lk.ProductID,
		&lk.Status,
		&lk.ExpiresAt,
		&lk.MachineID,
		&lk.LastValidatedAt,
		&lk.ClaimedAt,
		&lk.ClaimedByUsername,
		&lk.CreatedAt,
	)
}
