// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/services/license"
)

type ValidationHandler struct {
	licenseService *license.Service
}

func NewValidationHandler(licenseService *license.Service) *ValidationHandler {
	return &ValidationHandler{licenseService: licenseService}
}

// ValidateRequest represents a key validation request
type ValidateRequest struct {
	Key       string `json:"key"`
	MachineID string `json:"machine_id"`
}

type validateResponse struct {
	Valid         bool       `json:"valid"`
	Error         string     `json:"error,omitempty"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	DaysRemaining int        `json:"days_remaining,omitempty"`
}

// Validate checks a license key. Business rejections (unknown key,
// machine mismatch, revoked, expired) are 200 responses with
// valid=false; only malformed requests and storage faults use error
// status codes.
func (h *ValidationHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req ValidateRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if req.Key == "" {
		RespondError(w, http.StatusBadRequest, "License key is required")
		return
	}

	result, err := h.licenseService.Validate(r.Context(), req.Key, req.MachineID, ClientAddress(r))
	if err != nil {
		log.Error().Err(err).Msg("License validation failed")
		RespondJSON(w, http.StatusInternalServerError, validateResponse{Valid: false, Error: "Validation failed"})
		return
	}

	resp := validateResponse{Valid: result.Valid}
	if result.Valid {
		expiresAt := result.ExpiresAt
		resp.ExpiresAt = &expiresAt
		resp.DaysRemaining = result.DaysRemaining
	} else {
		resp.Error = result.Reason
	}

	RespondJSON(w, http.StatusOK, resp)
}
