// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package license

import (
	"context"
	"time"

	"github.com/avast/retry-go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/keygen"
	"github.com/keymint/keymint/internal/models"
)

const (
	// BulkIssueLimit caps a single bulk issuance request.
	BulkIssueLimit = 100

	// issueAttempts bounds collision retries per key. The key space is
	// 32^20 so a second collision in a row means something is broken.
	issueAttempts = 5
)

// IssueParams describes a single key to issue. OwnerID and ProductID
// are optional; ValidDays must be positive.
type IssueParams struct {
	OwnerID   *string
	ProductID *string
	ValidDays int
}

// IssueKey generates a fresh key and persists it. Key uniqueness is
// enforced by the database; on a duplicate the key is regenerated and
// the insert retried.
func (s *Service) IssueKey(ctx context.Context, params IssueParams) (*models.LicenseKey, error) {
	if params.ValidDays <= 0 {
		return nil, errors.Wrap(ErrInvalidInput, "validDays must be positive")
	}
	if params.OwnerID != nil {
		if _, err := s.users.Get(ctx, *params.OwnerID); err != nil {
			if errors.Is(err, models.ErrUserNotFound) {
				return nil, errors.Wrap(ErrInvalidInput, "unknown owner")
			}
			return nil, errors.Wrap(err, "resolving owner")
		}
	}

	expiresAt := time.Now().Add(time.Duration(params.ValidDays) * 24 * time.Hour)

	lk, err := s.issueOne(ctx, params.OwnerID, params.ProductID, expiresAt)
	if err != nil {
		return nil, err
	}

	log.Info().Str("keyId", lk.ID).Int("validDays", params.ValidDays).Msg("License key issued")
	s.metrics.RecordKeyIssued(1)

	return lk, nil
}

// IssueBulk issues count unassigned keys against one product with a
// shared expiry. Each slot retries collisions independently, so one
// duplicate does not abort the batch. The batch is not transactional: a
// storage fault mid way returns the error with the earlier keys already
// persisted.
func (s *Service) IssueBulk(ctx context.Context, count int, productID *string, validDays int) ([]*models.LicenseKey, error) {
	if count < 1 || count > BulkIssueLimit {
		return nil, errors.Wrapf(ErrInvalidInput, "count must be between 1 and %d", BulkIssueLimit)
	}
	if productID == nil || *productID == "" {
		return nil, errors.Wrap(ErrInvalidInput, "productId is required")
	}
	if validDays <= 0 {
		return nil, errors.Wrap(ErrInvalidInput, "validDays must be positive")
	}

	expiresAt := time.Now().Add(time.Duration(validDays) * 24 * time.Hour)

	keys := make([]*models.LicenseKey, 0, count)
	for i := 0; i < count; i++ {
		lk, err := s.issueOne(ctx, nil, productID, expiresAt)
		if err != nil {
			return nil, errors.Wrapf(err, "issuing key %d of %d", i+1, count)
		}
		keys = append(keys, lk)
		s.metrics.RecordKeyIssued(1)
	}

	log.Info().Int("count", count).Int("validDays", validDays).Msg("Bulk license keys issued")

	return keys, nil
}

func (s *Service) issueOne(ctx context.Context, ownerID, productID *string, expiresAt time.Time) (*models.LicenseKey, error) {
	var lk *models.LicenseKey

	err := retry.Do(
		func() error {
			var err error
			lk, err = s.keys.Create(ctx, keygen.Generate(), ownerID, productID, expiresAt)
			if err != nil {
				if errors.Is(err, models.ErrDuplicateLicenseKey) {
					log.Debug().Msg("License key collision, regenerating")
					return err
				}
				return retry.Unrecoverable(err)
			}
			return nil
		},
		retry.Attempts(issueAttempts),
		retry.Delay(time.Millisecond),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, err
	}

	return lk, nil
}

// ExtendKey pushes a key's expiry out by the given number of days. The
// extension is additive on the stored expiry, so extending an already
// expired key may leave it in the past; validation re-evaluates expiry
// on the next check either way. Status is not touched.
func (s *Service) ExtendKey(ctx context.Context, keyID string, days int) (*models.LicenseKey, error) {
	if days <= 0 {
		return nil, errors.Wrap(ErrInvalidInput, "days must be positive")
	}

	lk, err := s.keys.Get(ctx, keyID)
	if err != nil {
		return nil, err
	}

	updated, err := s.keys.UpdateExpiresAt(ctx, keyID, lk.ExpiresAt.Add(time.Duration(days)*24*time.Hour))
	if err != nil {
		return nil, errors.Wrap(err, "extending license key")
	}

	log.Info().Str("keyId", keyID).Int("days", days).Time("expiresAt", updated.ExpiresAt).Msg("License key extended")

	return updated, nil
}

// SetStatus sets a key to active or revoked. Reactivating does not
// touch expiry or machine binding, so a reactivated key whose expiry
// has passed expires again on its next validation.
func (s *Service) SetStatus(ctx context.Context, keyID, status string) (*models.LicenseKey, error) {
	if status != models.LicenseKeyStatusActive && status != models.LicenseKeyStatusRevoked {
		return nil, errors.Wrapf(ErrInvalidInput, "status must be %q or %q", models.LicenseKeyStatusActive, models.LicenseKeyStatusRevoked)
	}

	lk, err := s.keys.SetStatus(ctx, keyID, status)
	if err != nil {
		return nil, err
	}

	log.Info().Str("keyId", keyID).Str("status", status).Msg("License key status updated")

	return lk, nil
}

// DeleteKey removes a key permanently. Audit records for the key are
// kept with their key reference cleared.
func (s *Service) DeleteKey(ctx context.Context, keyID string) error {
	if err := s.keys.Delete(ctx, keyID); err != nil {
		return err
	}

	log.Info().Str("keyId", keyID).Msg("License key deleted")

	return nil
}

// GetKey fetches a single key by id.
func (s *Service) GetKey(ctx context.Context, keyID string) (*models.LicenseKey, error) {
	return s.keys.Get(ctx, keyID)
}

// ListKeys lists every key with its owner's username, newest first.
func (s *Service) ListKeys(ctx context.Context) ([]*models.LicenseKeyWithOwner, error) {
	return s.keys.List(ctx)
}

// Products exposes product CRUD for the admin surface.
func (s *Service) Products(ctx context.Context) ([]*models.Product, error) {
	return s.products.List(ctx)
}

func (s *Service) CreateProduct(ctx context.Context, name string) (*models.Product, error) {
	return s.products.Create(ctx, name)
}

func (s *Service) DeleteProduct(ctx context.Context, id string) error {
	return s.products.Delete(ctx, id)
}
