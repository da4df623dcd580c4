// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/api/ctxkeys"
	"github.com/keymint/keymint/internal/models"
	"github.com/keymint/keymint/internal/services/license"
)

type KeysHandler struct {
	licenseService *license.Service
}

func NewKeysHandler(licenseService *license.Service) *KeysHandler {
	return &KeysHandler{licenseService: licenseService}
}

// ClaimRequest represents a key claim request
type ClaimRequest struct {
	Key string `json:"key"`
}

type keyResponse struct {
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

func toKeyResponse(lk *models.LicenseKey) keyResponse {
	return keyResponse{
		ID:                lk.ID,
		Key:               lk.Key,
		OwnerID:           lk.OwnerID,
		ProductID:         lk.ProductID,
		Status:            lk.Status,
		ExpiresAt:         lk.ExpiresAt,
		MachineID:         lk.MachineID,
		LastValidatedAt:   lk.LastValidatedAt,
		ClaimedAt:         lk.ClaimedAt,
		ClaimedByUsername: lk.ClaimedByUsername,
		CreatedAt:         lk.CreatedAt,
	}
}

// Claim assigns an unowned key to the authenticated user.
func (h *KeysHandler) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if req.Key == "" {
		RespondError(w, http.StatusBadRequest, "License key is required")
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)

	if _, err := h.licenseService.Claim(r.Context(), userID, req.Key); err != nil {
		switch {
		case errors.Is(err, license.ErrUnauthenticated):
			RespondError(w, http.StatusUnauthorized, "Unauthorized")
		case errors.Is(err, models.ErrLicenseKeyNotFound):
			RespondError(w, http.StatusNotFound, "Invalid license key")
		case errors.Is(err, models.ErrLicenseKeyAlreadyClaimed):
			RespondError(w, http.StatusBadRequest, "License key has already been claimed")
		default:
			log.Error().Err(err).Msg("Failed to claim license key")
			RespondError(w, http.StatusInternalServerError, "Failed to claim license key")
		}
		return
	}

	RespondJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ListMine returns the authenticated user's keys.
func (h *KeysHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(ctxkeys.UserID).(string)

	keys, err := h.licenseService.KeysForOwner(r.Context(), userID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list license keys")
		RespondError(w, http.StatusInternalServerError, "Failed to list license keys")
		return
	}

	resp := make([]keyResponse, 0, len(keys))
	for _, lk := range keys {
		resp = append(resp, toKeyResponse(lk))
	}

	RespondJSON(w, http.StatusOK, resp)
}
