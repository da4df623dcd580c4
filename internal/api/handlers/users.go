// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/models"
)

type UsersHandler struct {
	userStore *models.UserStore
}

func NewUsersHandler(userStore *models.UserStore) *UsersHandler {
	return &UsersHandler{userStore: userStore}
}

func (h *UsersHandler) List(w http.ResponseWriter, r *http.Request) {
	users, err := h.userStore.List(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("Failed to list users")
		RespondError(w, http.StatusInternalServerError, "Failed to list users")
		return
	}

	resp := make([]userResponse, 0, len(users))
	for _, u := range users {
		resp = append(resp, toUserResponse(u))
	}

	RespondJSON(w, http.StatusOK, resp)
}
