// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"time"

	"github.com/keymint/keymint/internal/dbinterface"
)

// ValidationAttempt is an append-only audit record of a single
// validation call. Rows are never updated or deleted; the key reference
// is nullable so unknown-key attempts are recorded too.
type ValidationAttempt struct {
	ID           int64     `json:"id"`
	LicenseKeyID *string   `json:"licenseKeyId,omitempty"`
	Success      bool      `json:"success"`
	MachineID    *string   `json:"machineId,omitempty"`
	IPAddress    *string   `json:"ipAddress,omitempty"`
	ValidatedAt  time.Time `json:"validatedAt"`
}

type ValidationAttemptStore struct {
	db dbinterface.Querier
}

func NewValidationAttemptStore(db dbinterface.Querier) *ValidationAttemptStore {
	return &ValidationAttemptStore{db: db}
}

// Record appends one audit row.
func (s *ValidationAttemptStore) Record(ctx context.Context, licenseKeyID *string, success bool, machineID, ipAddress *string, at time.Time) error {
	query := `
		INSERT INTO key_validations (license_key_id, success, machine_id, ip_address, validated_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query, licenseKeyID, success, machineID, ipAddress, at.UTC())
	return err
}

// ListByKey returns the most recent attempts against a key.
func (s *ValidationAttemptStore) ListByKey(ctx context.Context, licenseKeyID string, limit int) ([]*ValidationAttempt, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, license_key_id, success, machine_id, ip_address, validated_at
		FROM key_validations
		WHERE license_key_id = ?
		ORDER BY validated_at DESC, id DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, licenseKeyID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	attempts := make([]*ValidationAttempt, 0)
	for rows.Next() {
		a := &ValidationAttempt{}
		if err := rows.Scan(
			&a.ID,
			&a.LicenseKeyID,
			&a.Success,
			&a.MachineID,
			&a.IPAddress,
			&a.ValidatedAt,
		); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

// CountByKey returns total and successful attempt counts for a key.
func (s *ValidationAttemptStore) CountByKey(ctx context.Context, licenseKeyID string) (total, succeeded int64, err error) {
	query := `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN success THEN 1 ELSE 0 END), 0)
		FROM key_validations
		WHERE license_key_id = ?
	`

	err = s.db.QueryRowContext(ctx, query, licenseKeyID).Scan(&total, &succeeded)
	return total, succeeded, err
}
