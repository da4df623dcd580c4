// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/keymint/keymint/internal/keygen"
	"github.com/keymint/keymint/internal/metrics"
	"github.com/keymint/keymint/internal/models"
)

// Validate runs the validation state machine for a single key check.
// Rules are evaluated in a fixed order and the first one that fires
// wins: unknown key, machine mismatch, revoked, expired. A key past its
// expiry timestamp is transitioned to expired in storage as part of
// this call, so expiry takes effect on the next check after the
// deadline, not via any background sweep.
//
// machineID and sourceAddr may be empty. Every evaluated branch appends
// one audit record; auditing never fails the validation itself.
func (s *Service) Validate(ctx context.Context, rawKey, machineID, sourceAddr string) (*ValidationResult, error) {
	key := keygen.Canonicalize(strings.TrimSpace(rawKey))

	lk, err := s.keys.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrLicenseKeyNotFound) {
			s.audit(ctx, nil, false, machineID, sourceAddr)
			s.metrics.RecordValidation(metrics.OutcomeUnknownKey)
			return &ValidationResult{Valid: false, Reason: ReasonInvalidKey}, nil
		}
		s.metrics.RecordValidation(metrics.OutcomeError)
		return nil, errors.Wrap(err, "looking up license key")
	}

	if machineID != "" && lk.MachineID != nil && *lk.MachineID != machineID {
		s.audit(ctx, &lk.ID, false, machineID, sourceAddr)
		s.metrics.RecordValidation(metrics.OutcomeMachineMismatch)
		return &ValidationResult{Valid: false, Reason: ReasonMachineMismatch}, nil
	}

	if lk.Status == models.LicenseKeyStatusRevoked {
		s.audit(ctx, &lk.ID, false, machineID, sourceAddr)
		s.metrics.RecordValidation(metrics.OutcomeRevoked)
		return &ValidationResult{Valid: false, Reason: ReasonRevoked}, nil
	}

	now := time.Now()
	if lk.Status == models.LicenseKeyStatusExpired || !lk.ExpiresAt.After(now) {
		if lk.Status == models.LicenseKeyStatusActive {
			if _, err := s.keys.MarkExpired(ctx, lk.ID); err != nil {
				s.metrics.RecordValidation(metrics.OutcomeError)
				return nil, errors.Wrap(err, "marking license key expired")
			}
		}
		s.audit(ctx, &lk.ID, false, machineID, sourceAddr)
		s.metrics.RecordValidation(metrics.OutcomeExpired)
		return &ValidationResult{Valid: false, Reason: ReasonExpired}, nil
	}

	if machineID != "" && lk.MachineID == nil {
		won, err := s.keys.BindMachine(ctx, lk.ID, machineID, now)
		if err != nil {
			s.metrics.RecordValidation(metrics.OutcomeError)
			return nil, errors.Wrap(err, "binding machine")
		}
		if !won {
			// Lost the bind race. Re-read to see who won; a
			// concurrent caller with the same fingerprint is
			// still a success.
			bound, err := s.keys.Get(ctx, lk.ID)
			if err != nil {
				s.metrics.RecordValidation(metrics.OutcomeError)
				return nil, errors.Wrap(err, "re-reading license key after bind race")
			}
			if bound.MachineID == nil || *bound.MachineID != machineID {
				s.audit(ctx, &lk.ID, false, machineID, sourceAddr)
				s.metrics.RecordValidation(metrics.OutcomeMachineMismatch)
				return &ValidationResult{Valid: false, Reason: ReasonMachineMismatch}, nil
			}
			if err := s.keys.TouchValidated(ctx, lk.ID, now); err != nil {
				s.metrics.RecordValidation(metrics.OutcomeError)
				return nil, errors.Wrap(err, "updating last validated timestamp")
			}
		}
	} else {
		if err := s.keys.TouchValidated(ctx, lk.ID, now); err != nil {
			s.metrics.RecordValidation(metrics.OutcomeError)
			return nil, errors.Wrap(err, "updating last validated timestamp")
		}
	}

	s.audit(ctx, &lk.ID, true, machineID, sourceAddr)
	s.metrics.RecordValidation(metrics.OutcomeValid)

	return &ValidationResult{
		Valid:         true,
		ExpiresAt:     lk.ExpiresAt,
		DaysRemaining: daysRemaining(lk.ExpiresAt, now),
	}, nil
}

// ValidationHistory returns the most recent validation attempts for a
// key, newest first.
func (s *Service) ValidationHistory(ctx context.Context, keyID string, limit int) ([]*models.ValidationAttempt, error) {
	return s.attempts.ListByKey(ctx, keyID, limit)
}

// ValidationStats returns total and successful attempt counts for a key.
func (s *Service) ValidationStats(ctx context.Context, keyID string) (total, succeeded int64, err error) {
	return s.attempts.CountByKey(ctx, keyID)
}
