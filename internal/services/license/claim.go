// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/keygen"
	"github.com/keymint/keymint/internal/metrics"
	"github.com/keymint/keymint/internal/models"
)

// Claim assigns an unowned key to the given user. Ownership is decided
// by a single conditional update, so of any number of concurrent claims
// for the same key exactly one succeeds; the rest get
// models.ErrLicenseKeyAlreadyClaimed. Claiming does not touch status,
// expiry, or machine binding.
func (s *Service) Claim(ctx context.Context, userID, rawKey string) (*models.LicenseKey, error) {
	user, err := s.users.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			s.metrics.RecordClaim(metrics.ClaimOutcomeError)
			return nil, ErrUnauthenticated
		}
		s.metrics.RecordClaim(metrics.ClaimOutcomeError)
		return nil, errors.Wrap(err, "resolving claiming user")
	}

	key := keygen.Canonicalize(strings.TrimSpace(rawKey))

	lk, err := s.keys.GetByKey(ctx, key)
	if err != nil {
		if errors.Is(err, models.ErrLicenseKeyNotFound) {
			s.metrics.RecordClaim(metrics.ClaimOutcomeNotFound)
			return nil, err
		}
		s.metrics.RecordClaim(metrics.ClaimOutcomeError)
		return nil, errors.Wrap(err, "looking up license key")
	}

	if err := s.keys.Claim(ctx, lk.ID, user.ID, user.Username, time.Now()); err != nil {
		if errors.Is(err, models.ErrLicenseKeyAlreadyClaimed) {
			s.metrics.RecordClaim(metrics.ClaimOutcomeAlreadyClaimed)
			return nil, err
		}
		s.metrics.RecordClaim(metrics.ClaimOutcomeError)
		return nil, errors.Wrap(err, "claiming license key")
	}

	claimed, err := s.keys.Get(ctx, lk.ID)
	if err != nil {
		s.metrics.RecordClaim(metrics.ClaimOutcomeError)
		return nil, errors.Wrap(err, "re-reading claimed license key")
	}

	log.Info().Str("keyId", claimed.ID).Str("username", user.Username).Msg("License key claimed")
	s.metrics.RecordClaim(metrics.ClaimOutcomeClaimed)

	return claimed, nil
}

// KeysForOwner lists the keys owned by a user. Filtering happens in the
// store query, never by post-filtering a broader result.
func (s *Service) KeysForOwner(ctx context.Context, ownerID string) ([]*models.LicenseKey, error) {
	return s.keys.ListByOwner(ctx, ownerID)
}
