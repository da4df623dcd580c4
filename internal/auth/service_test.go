// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package auth

import (
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/keymint/keymint/internal/models"
)

func setupService(t *testing.T) *Service {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.ExecContext(t.Context(), `
		CREATE TABLE users (
			id TEXT PRIMARY KEY,
			username TEXT NOT NULL UNIQUE,
			email TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			is_admin BOOLEAN NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	require.NoError(t, err)

	return NewService(models.NewUserStore(db))
}

func TestService_Register(t *testing.T) {
	t.Parallel()

	t.Run("creates user with hashed password", func(t *testing.T) {
		t.Parallel()

		svc := setupService(t)
		ctx := t.Context()

		user, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret", false)
		require.NoError(t, err)
		assert.Equal(t, "alice", user.Username)
		assert.NotEqual(t, "s3cret", user.PasswordHash)
		assert.Contains(t, user.PasswordHash, "$argon2id$")
	})

	t.Run("rejects empty fields", func(t *testing.T) {
		t.Parallel()

		svc := setupService(t)
		ctx := t.Context()

		_, err := svc.Register(ctx, "", "a@b.c", "pw", false)
		assert.ErrorIs(t, err, ErrInvalidInput)

		_, err = svc.Register(ctx, "alice", "a@b.c", "", false)
		assert.ErrorIs(t, err, ErrInvalidInput)
	})

	t.Run("duplicate username", func(t *testing.T) {
		t.Parallel()

		svc := setupService(t)
		ctx := t.Context()

		_, err := svc.Register(ctx, "alice", "alice@example.com", "pw", false)
		require.NoError(t, err)

		_, err = svc.Register(ctx, "alice", "other@example.com", "pw", false)
		assert.ErrorIs(t, err, models.ErrUserAlreadyExists)
	})
}

func TestService_Login(t *testing.T) {
	t.Parallel()

	svc := setupService(t)
	ctx := t.Context()

	created, err := svc.Register(ctx, "alice", "alice@example.com", "s3cret", false)
	require.NoError(t, err)

	t.Run("valid credentials", func(t *testing.T) {
		user, err := svc.Login(ctx, "alice", "s3cret")
		require.NoError(t, err)
		assert.Equal(t, created.ID, user.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Login(ctx, "alice", "wrong")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := svc.Login(ctx, "nobody", "s3cret")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestService_ChangePassword(t *testing.T) {
	t.Parallel()

	svc := setupService(t)
	ctx := t.Context()

	user, err := svc.Register(ctx, "alice", "alice@example.com", "old-pw", false)
	require.NoError(t, err)

	t.Run("wrong old password", func(t *testing.T) {
		err := svc.ChangePassword(ctx, user.ID, "nope", "new-pw")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("success", func(t *testing.T) {
		require.NoError(t, svc.ChangePassword(ctx, user.ID, "old-pw", "new-pw"))

		_, err := svc.Login(ctx, "alice", "old-pw")
		assert.ErrorIs(t, err, ErrInvalidCredentials)

		_, err = svc.Login(ctx, "alice", "new-pw")
		assert.NoError(t, err)
	})
}

func TestHashPassword(t *testing.T) {
	t.Parallel()

	t.Run("different hashes for same password", func(t *testing.T) {
		t.Parallel()

		h1, err := HashPassword("password123")
		require.NoError(t, err)
		h2, err := HashPassword("password123")
		require.NoError(t, err)
		assert.NotEqual(t, h1, h2, "salts should differ")
	})

	t.Run("verify round trip", func(t *testing.T) {
		t.Parallel()

		hash, err := HashPassword("пароль密码🔐")
		require.NoError(t, err)

		valid, err := VerifyPassword("пароль密码🔐", hash)
		require.NoError(t, err)
		assert.True(t, valid)

		valid, err = VerifyPassword("wrong", hash)
		require.NoError(t, err)
		assert.False(t, valid)
	})

	t.Run("invalid hash format", func(t *testing.T) {
		t.Parallel()

		_, err := VerifyPassword("pw", "not-a-hash")
		assert.ErrorIs(t, err, ErrInvalidHash)
	})
}
