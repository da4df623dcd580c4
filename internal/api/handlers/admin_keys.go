// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/models"
	"github.com/keymint/keymint/internal/services/license"
)

type AdminKeysHandler struct {
	licenseService *license.Service
}

func NewAdminKeysHandler(licenseService *license.Service) *AdminKeysHandler {
	return &AdminKeysHandler{licenseService: licenseService}
}

// IssueRequest represents a single key issuance request
type IssueRequest struct {
	OwnerID   *string `json:"ownerId"`
	ProductID *string `json:"productId"`
	ValidDays int     `json:"validDays" validate:"required,min=1"`
}

// IssueBulkRequest represents a bulk issuance request
type IssueBulkRequest struct {
	Count     int     `json:"count" validate:"required,min=1,max=100"`
	ProductID *string `json:"productId" validate:"required"`
	ValidDays int     `json:"validDays" validate:"required,min=1"`
}

// ExtendRequest represents an expiry extension request
type ExtendRequest struct {
	Days int `json:"days" validate:"required,min=1"`
}

// SetStatusRequest represents a status override request
type SetStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active revoked"`
}

type keyWithOwnerResponse struct {
	keyResponse
	OwnerUsername *string `json:"ownerUsername,omitempty"`
}

type attemptResponse struct {
	ID          int64     `json:"id"`
	Success     bool      `json:"success"`
	MachineID   *string   `json:"machineId,omitempty"`
	IPAddress   *string   `json:"ipAddress,omitempty"`
	ValidatedAt time.Time `json:"validatedAt"`
}

// Issue creates a single key.
func (h *AdminKeysHandler) Issue(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if !DecodeAndValidateJSON(w, r, &req) {
		return
	}

	lk, err := h.licenseService.IssueKey(r.Context(), license.IssueParams{
		OwnerID:   req.OwnerID,
		ProductID: req.ProductID,
		ValidDays: req.ValidDays,
	})
	if err != nil {
		if errors.Is(err, license.ErrInvalidInput) {
			RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("Failed to issue license key")
		RespondError(w, http.StatusInternalServerError, "Failed to issue license key")
		return
	}

	RespondJSON(w, http.StatusCreated, toKeyResponse(lk))
}

// IssueBulk creates a batch of unassigned keys.
func (h *AdminKeysHandler) IssueBulk(w http.ResponseWriter, r *http.Request) {
	var req IssueBulkRequest
	if !DecodeAndValidateJSON(w, r, &req) {
		return
	}

	keys, err := h.licenseService.IssueBulk(r.Context(), req.Count, req.ProductID, req.ValidDays)
	if err != nil {
		if errors.Is(err, license.ErrInvalidInput) {
			RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		log.Error().Err(err).Msg("Failed to bulk issue license keys")
		RespondError(w, http.StatusInternalServerError, "Failed to issue license keys")
		return
	}

	resp := make([]keyResponse, 0, len(keys))
	for _, lk := range keys {
		resp = append(resp, toKeyResponse(lk))
	}

	RespondJSON(w, http.StatusCreated, resp)
}

// List returns every key with owner usernames.
func (h *AdminKeysHandler) List(w http.ResponseWriter, r *http.Request) {
	keys, err := h.licenseService.ListKeys(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list license keys")
		RespondError(w, http.StatusInternalServerError, "Failed to list license keys")
		return
	}

	resp := make([]keyWithOwnerResponse, 0, len(keys))
	for _, lk := range keys {
		resp = append(resp, keyWithOwnerResponse{
			keyResponse:   toKeyResponse(&lk.LicenseKey),
			OwnerUsername: lk.OwnerUsername,
		})
	}

	RespondJSON(w, http.StatusOK, resp)
}

// Get returns a single key by id.
func (h *AdminKeysHandler) Get(w http.ResponseWriter, r *http.Request) {
	keyID, ok := ParseStringParam(w, r, "keyID", "key ID")
	if !ok {
		return
	}

	lk, err := h.licenseService.GetKey(r.Context(), keyID)
	if err != nil {
		if errors.Is(err, models.ErrLicenseKeyNotFound) {
			RespondError(w, http.StatusNotFound, "License key not found")
			return
		}
		log.Error().Err(err).Msg("Failed to load license key")
		RespondError(w, http.StatusInternalServerError, "Failed to load license key")
		return
	}

	RespondJSON(w, http.StatusOK, toKeyResponse(lk))
}

// Extend pushes a key's expiry out by a number of days.
func (h *AdminKeysHandler) Extend(w http.ResponseWriter, r *http.Request) {
	keyID, ok := ParseStringParam(w, r, "keyID", "key ID")
	if !ok {
		return
	}

	var req ExtendRequest
	if !DecodeAndValidateJSON(w, r, &req) {
		return
	}

	lk, err := h.licenseService.ExtendKey(r.Context(), keyID, req.Days)
	if err != nil {
		switch {
		case errors.Is(err, license.ErrInvalidInput):
			RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, models.ErrLicenseKeyNotFound):
			RespondError(w, http.StatusNotFound, "License key not found")
		default:
			log.Error().Err(err).Msg("Failed to extend license key")
			RespondError(w, http.StatusInternalServerError, "Failed to extend license key")
		}
		return
	}

	RespondJSON(w, http.StatusOK, toKeyResponse(lk))
}

// SetStatus sets a key to active or revoked.
func (h *AdminKeysHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	keyID, ok := ParseStringParam(w, r, "keyID", "key ID")
	if !ok {
		return
	}

	var req SetStatusRequest
	if !DecodeAndValidateJSON(w, r, &req) {
		return
	}

	lk, err := h.licenseService.SetStatus(r.Context(), keyID, req.Status)
	if err != nil {
		switch {
		case errors.Is(err, license.ErrInvalidInput):
			RespondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, models.ErrLicenseKeyNotFound):
			RespondError(w, http.StatusNotFound, "License key not found")
		default:
			log.Error().Err(err).Msg("Failed to update license key status")
			RespondError(w, http.StatusInternalServerError, "Failed to update license key status")
		}
		return
	}

	RespondJSON(w, http.StatusOK, toKeyResponse(lk))
}

// Delete removes a key permanently.
func (h *AdminKeysHandler) Delete(w http.ResponseWriter, r *http.Request) {
	keyID, ok := ParseStringParam(w, r, "keyID", "key ID")
	if !ok {
		return
	}

	if err := h.licenseService.DeleteKey(r.Context(), keyID); err != nil {
		if errors.Is(err, models.ErrLicenseKeyNotFound) {
			RespondError(w, http.StatusNotFound, "License key not found")
			return
		}
		log.Error().Err(err).Msg("Failed to delete license key")
		RespondError(w, http.StatusInternalServerError, "Failed to delete license key")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"message": "License key deleted"})
}

// Attempts lists a key's recent validation attempts with summary counts.
func (h *AdminKeysHandler) Attempts(w http.ResponseWriter, r *http.Request) {
	keyID, ok := ParseStringParam(w, r, "keyID", "key ID")
	if !ok {
		return
	}

	attempts, err := h.licenseService.ValidationHistory(r.Context(), keyID, 0)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list validation attempts")
		RespondError(w, http.StatusInternalServerError, "Failed to list validation attempts")
		return
	}

	total, succeeded, err := h.licenseService.ValidationStats(r.Context(), keyID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count validation attempts")
		RespondError(w, http.StatusInternalServerError, "Failed to count validation attempts")
		return
	}

	items := make([]attemptResponse, 0, len(attempts))
	for _, a := range attempts {
		items = append(items, attemptResponse{
			ID:          a.ID,
			Success:     a.Success,
			MachineID:   a.MachineID,
			IPAddress:   a.IPAddress,
			ValidatedAt: a.ValidatedAt,
		})
	}

	RespondJSON(w, http.StatusOK, map[string]any{
		"attempts":  items,
		"total":     total,
		"succeeded": succeeded,
	})
}
