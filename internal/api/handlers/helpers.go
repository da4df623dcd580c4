// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"encoding/json"
	"net/http"
	"net/netip"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog/log"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondJSON sends a JSON response
func RespondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			log.Error().Err(err).Msg("Failed to encode JSON response")
		}
	}
}

// RespondError sends an error response
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{
		Error: message,
	})
}

// DecodeJSON decodes the request body into the provided struct.
// Returns false if decoding fails (error already sent to client).
func DecodeJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if err := json.NewDecoder(r.Body).Decode(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	return true
}

// DecodeAndValidateJSON decodes the request body and checks its
// validate struct tags. Returns false if either step fails (error
// already sent to client).
func DecodeAndValidateJSON[T any](w http.ResponseWriter, r *http.Request, dest *T) bool {
	if !DecodeJSON(w, r, dest) {
		return false
	}
	if err := validate.Struct(dest); err != nil {
		RespondError(w, http.StatusBadRequest, "Invalid request: "+err.Error())
		return false
	}
	return true
}

// ParseStringParam extracts a non-empty string URL parameter.
// Returns the value and true on success, or "" and false if missing
// (error already sent). The displayName is used in error messages.
func ParseStringParam(w http.ResponseWriter, r *http.Request, paramName, displayName string) (string, bool) {
	value := chi.URLParam(r, paramName)
	if value == "" {
		RespondError(w, http.StatusBadRequest, "Missing "+displayName)
		return "", false
	}
	return value, true
}

// ClientAddress extracts the requester's address, preferring the first
// entry of X-Forwarded-For when the request came through a proxy.
func ClientAddress(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		first := strings.TrimSpace(strings.Split(fwd, ",")[0])
		if _, err := netip.ParseAddr(first); err == nil {
			return first
		}
	}

	host := r.RemoteAddr
	if addrPort, err := netip.ParseAddrPort(host); err == nil {
		return addrPort.Addr().String()
	}
	return host
}
