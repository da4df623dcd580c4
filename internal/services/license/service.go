// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package license implements the license key lifecycle: issuance,
// claiming, and the validation state machine. All state transitions go
// through conditional updates in the stores; this package decides, the
// store arbitrates races.
package license

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/metrics"
	"github.com/keymint/keymint/internal/models"
)

var (
	ErrUnauthenticated = errors.New("caller identity could not be resolved")
	ErrInvalidInput    = errors.New("invalid input")
)

// Validation failure reasons, returned verbatim to clients.
const (
	ReasonInvalidKey      = "Invalid license key"
	ReasonMachineMismatch = "License key is bound to a different machine"
	ReasonRevoked         = "License key has been revoked"
	ReasonExpired         = "License key has expired"
)

// ValidationResult is the outcome of a single validation call. A result
// with Valid=false is a business outcome, not an error; storage faults
// surface as Go errors instead.
type ValidationResult struct {
	Valid         bool
	Reason        string
	ExpiresAt     time.Time
	DaysRemaining int
}

type Service struct {
	keys     *models.LicenseKeyStore
	attempts *models.ValidationAttemptStore
	users    *models.UserStore
	products *models.ProductStore
	metrics  *metrics.Manager
}

func NewService(keys *models.LicenseKeyStore, attempts *models.ValidationAttemptStore, users *models.UserStore, products *models.ProductStore, metricsManager *metrics.Manager) *Service {
	return &Service{
		keys:     keys,
		attempts: attempts,
		users:    users,
		products: products,
		metrics:  metricsManager,
	}
}

// audit appends one validation attempt record. Auditing is best-effort:
// the authoritative state mutation has already happened by the time we
// get here, so a failed append only degrades observability and must
// never fail the enclosing validation.
func (s *Service) audit(ctx context.Context, keyID *string, success bool, machineID, sourceAddr string) {
	var machine, source *string
	if machineID != "" {
		machine = &machineID
	}
	if sourceAddr != "" {
		source = &sourceAddr
	}

	if err := s.attempts.Record(ctx, keyID, success, machine, source, time.Now()); err != nil {
		log.Error().Err(err).Bool("success", success).Msg("Failed to record validation attempt")
	}
}

// daysRemaining rounds the time until expiry up to whole days. Callers
// only reach this on the success path, where expiry is in the future.
func daysRemaining(expiresAt, now time.Time) int {
	remaining := expiresAt.Sub(now)
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) > 0 {
		days++
	}
	if days < 0 {
		days = 0
	}
	return days
}
