// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keymint/keymint/internal/auth"
	"github.com/keymint/keymint/internal/config"
	"github.com/keymint/keymint/internal/domain"
	"github.com/keymint/keymint/internal/models"
	"github.com/keymint/keymint/internal/services/license"
	"github.com/keymint/keymint/internal/testdb"
)

func newTestServer(t *testing.T) (*httptest.Server, *license.Service) {
	t.Helper()

	db := testdb.Open(t)

	keys := models.NewLicenseKeyStore(db)
	attempts := models.NewValidationAttemptStore(db)
	users := models.NewUserStore(db)
	products := models.NewProductStore(db)

	licenseService := license.NewService(keys, attempts, users, products, nil)

	sessionManager := scs.New()
	sessionManager.Lifetime = time.Hour

	server := NewServer(&Dependencies{
		Config: &config.AppConfig{
			Config: &domain.Config{BaseURL: "/"},
		},
		AuthService:    auth.NewService(users),
		LicenseService: licenseService,
		UserStore:      users,
		SessionManager: sessionManager,
	})

	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)

	return ts, licenseService
}

func TestServerRoutes(t *testing.T) {
	t.Parallel()

	t.Run("health is public", func(t *testing.T) {
		t.Parallel()

		ts, _ := newTestServer(t)

		resp, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("validate is public", func(t *testing.T) {
		t.Parallel()

		ts, svc := newTestServer(t)

		lk, err := svc.IssueKey(t.Context(), license.IssueParams{ValidDays: 30})
		require.NoError(t, err)

		resp, err := http.Post(ts.URL+"/api/validate", "application/json",
			bytes.NewReader([]byte(`{"key":"`+lk.Key+`"}`)))
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		var result struct {
			Valid bool `json:"valid"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&result))
		assert.True(t, result.Valid)
	})

	t.Run("keys require a session", func(t *testing.T) {
		t.Parallel()

		ts, _ := newTestServer(t)

		resp, err := http.Get(ts.URL + "/api/keys")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("admin routes reject plain users", func(t *testing.T) {
		t.Parallel()

		ts, _ := newTestServer(t)
		client := newSessionClient(t)

		registerUser(t, client, ts.URL, "alice")

		resp, err := client.Get(ts.URL + "/api/admin/keys")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	})

	t.Run("register claim list round trip", func(t *testing.T) {
		t.Parallel()

		ts, svc := newTestServer(t)
		client := newSessionClient(t)

		registerUser(t, client, ts.URL, "bob")

		lk, err := svc.IssueKey(t.Context(), license.IssueParams{ValidDays: 30})
		require.NoError(t, err)

		resp, err := client.Post(ts.URL+"/api/keys/claim", "application/json",
			bytes.NewReader([]byte(`{"key":"`+lk.Key+`"}`)))
		require.NoError(t, err)
		resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		resp, err = client.Get(ts.URL + "/api/keys")
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var keys []struct {
			Key string `json:"key"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&keys))
		require.Len(t, keys, 1)
		assert.Equal(t, lk.Key, keys[0].Key)
	})
}

func TestCORSPreflightBypassesAuth(t *testing.T) {
	t.Parallel()

	ts, _ := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/auth/me", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))
}

func newSessionClient(t *testing.T) *http.Client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &http.Client{Jar: jar}
}

func registerUser(t *testing.T, client *http.Client, baseURL, username string) {
	t.Helper()

	body := `{"username":"` + username + `","email":"` + username + `@example.com","password":"secretpass123"}`
	resp, err := client.Post(baseURL+"/api/auth/register", "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusCreated, resp.StatusCode)
}
