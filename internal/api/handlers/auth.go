// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/alexedwards/scs/v2"
	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/api/ctxkeys"
	"github.com/keymint/keymint/internal/auth"
	"github.com/keymint/keymint/internal/models"
)

type AuthHandler struct {
	authService    *auth.Service
	sessionManager *scs.SessionManager
}

func NewAuthHandler(authService *auth.Service, sessionManager *scs.SessionManager) *AuthHandler {
	return &AuthHandler{
		authService:    authService,
		sessionManager: sessionManager,
	}
}

// RegisterRequest represents a registration request
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginRequest represents a login request
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ChangePasswordRequest represents a password change request
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type userResponse struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsAdmin  bool   `json:"isAdmin"`
}

func toUserResponse(user *models.User) userResponse {
	return userResponse{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
		IsAdmin:  user.IsAdmin,
	}
}

// Register creates a new account and logs it in.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if req.Username == "" || req.Email == "" || req.Password == "" {
		RespondError(w, http.StatusBadRequest, "Username, email and password are required")
		return
	}

	user, err := h.authService.Register(r.Context(), req.Username, req.Email, req.Password, false)
	if err != nil {
		if errors.Is(err, models.ErrUserAlreadyExists) {
			RespondError(w, http.StatusConflict, "Username or email already taken")
			return
		}
		log.Error().Err(err).Msg("Failed to register user")
		RespondError(w, http.StatusInternalServerError, "Failed to create user")
		return
	}

	h.createSession(w, r, user)

	RespondJSON(w, http.StatusCreated, toUserResponse(user))
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	user, err := h.authService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			RespondError(w, http.StatusUnauthorized, "Invalid credentials")
			return
		}
		log.Error().Err(err).Msg("Failed to log in user")
		RespondError(w, http.StatusInternalServerError, "Login failed")
		return
	}

	h.createSession(w, r, user)

	RespondJSON(w, http.StatusOK, toUserResponse(user))
}

func (h *AuthHandler) createSession(w http.ResponseWriter, r *http.Request, user *models.User) {
	// Renew token to prevent session fixation attacks
	if err := h.sessionManager.RenewToken(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to renew session token")
	}

	h.sessionManager.Put(r.Context(), "authenticated", true)
	h.sessionManager.Put(r.Context(), "user_id", user.ID)
	h.sessionManager.Put(r.Context(), "username", user.Username)
	h.sessionManager.Put(r.Context(), "is_admin", user.IsAdmin)
}

// Logout destroys the session.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.sessionManager.Destroy(r.Context()); err != nil {
		log.Error().Err(err).Msg("Failed to destroy session")
		RespondError(w, http.StatusInternalServerError, "Logout failed")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"message": "Logged out"})
}

// Me returns the authenticated user's profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	userID, _ := r.Context().Value(ctxkeys.UserID).(string)

	user, err := h.authService.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			RespondError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		log.Error().Err(err).Msg("Failed to load user")
		RespondError(w, http.StatusInternalServerError, "Failed to load user")
		return
	}

	RespondJSON(w, http.StatusOK, toUserResponse(user))
}

// ChangePassword verifies the current password and replaces it.
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req ChangePasswordRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if req.NewPassword == "" {
		RespondError(w, http.StatusBadRequest, "New password is required")
		return
	}

	userID, _ := r.Context().Value(ctxkeys.UserID).(string)

	if err := h.authService.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			RespondError(w, http.StatusUnauthorized, "Current password is incorrect")
			return
		}
		log.Error().Err(err).Msg("Failed to change password")
		RespondError(w, http.StatusInternalServerError, "Failed to change password")
		return
	}

	RespondJSON(w, http.StatusOK, map[string]string{"message": "Password changed"})
}
