// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import (
	"context"
	"net/http"

	"github.com/alexedwards/scs/v2"

	"github.com/keymint/keymint/internal/api/ctxkeys"
)

// IsAuthenticated checks for a valid session and copies the user's
// identity into the request context.
func IsAuthenticated(sessionManager *scs.SessionManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !sessionManager.GetBool(r.Context(), "authenticated") {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), ctxkeys.UserID, sessionManager.GetString(r.Context(), "user_id"))
			ctx = context.WithValue(ctx, ctxkeys.Username, sessionManager.GetString(r.Context(), "username"))
			ctx = context.WithValue(ctx, ctxkeys.IsAdmin, sessionManager.GetBool(r.Context(), "is_admin"))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAdmin rejects requests from non-admin sessions. It must run
// after IsAuthenticated.
func RequireAdmin() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			isAdmin, _ := r.Context().Value(ctxkeys.IsAdmin).(bool)
			if !isAdmin {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
