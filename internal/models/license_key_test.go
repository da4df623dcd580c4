// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func setupLicenseKeyStore(t *testing.T) (*LicenseKeyStore, *UserStore) {
	t.Helper()

	db := newTestDB(t)
	return NewLicenseKeyStore(db), NewUserStore(db)
}

func TestLicenseKeyStore_Create(t *testing.T) {
	t.Parallel()

	t.Run("unassigned key", func(t *testing.T) {
		t.Parallel()

		store, _ := setupLicenseKeyStore(t)
		ctx := t.Context()

		expires := time.Now().Add(30 * 24 * time.Hour)
		lk, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, expires)
		require.NoError(t, err)

		assert.NotEmpty(t, lk.ID)
		assert.Equal(t, "ABCDE-FGHJK-LMNPQ-RSTUV", lk.Key)
		assert.Nil(t, lk.OwnerID)
		assert.Equal(t, LicenseKeyStatusActive, lk.Status)
		assert.Nil(t, lk.MachineID)
		assert.Nil(t, lk.ClaimedAt)
		assert.WithinDuration(t, expires, lk.ExpiresAt, time.Second)
	})

	t.Run("pre-assigned key", func(t *testing.T) {
		t.Parallel()

		store, users := setupLicenseKeyStore(t)
		ctx := t.Context()

		user, err := users.Create(ctx, "alice", "alice@example.com", "hash", false)
		require.NoError(t, err)

		lk, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUW", &user.ID, nil, time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.NotNil(t, lk.OwnerID)
		assert.Equal(t, user.ID, *lk.OwnerID)
	})

	t.Run("duplicate key string", func(t *testing.T) {
		t.Parallel()

		store, _ := setupLicenseKeyStore(t)
		ctx := t.Context()

		_, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, time.Now().Add(time.Hour))
		require.NoError(t, err)

		_, err = store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, ErrDuplicateLicenseKey)
	})

	t.Run("unknown owner", func(t *testing.T) {
		t.Parallel()

		store, _ := setupLicenseKeyStore(t)
		ctx := t.Context()

		_, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUX", strPtr("no-such-user"), nil, time.Now().Add(time.Hour))
		assert.ErrorIs(t, err, ErrUnknownOwner)
	})
}

func TestLicenseKeyStore_GetByKey(t *testing.T) {
	t.Parallel()

	store, _ := setupLicenseKeyStore(t)
	ctx := t.Context()

	created, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, time.Now().Add(time.Hour))
	require.NoError(t, err)

	t.Run("found", func(t *testing.T) {
		lk, err := store.GetByKey(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV")
		require.NoError(t, err)
		assert.Equal(t, created.ID, lk.ID)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := store.GetByKey(ctx, "ZZZZZ-ZZZZZ-ZZZZZ-ZZZZZ")
		assert.ErrorIs(t, err, ErrLicenseKeyNotFound)
	})
}

func TestLicenseKeyStore_Claim(t *testing.T) {
	t.Parallel()

	t.Run("claims unowned key", func(t *testing.T) {
		t.Parallel()

		store, users := setupLicenseKeyStore(t)
		ctx := t.Context()

		user, err := users.Create(ctx, "alice", "alice@example.com", "hash", false)
		require.NoError(t, err)

		lk, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, time.Now().Add(time.Hour))
		require.NoError(t, err)

		now := time.Now()
		require.NoError(t, store.Claim(ctx, lk.ID, user.ID, user.Username, now))

		got, err := store.Get(ctx, lk.ID)
		require.NoError(t, err)
		require.NotNil(t, got.OwnerID)
		assert.Equal(t, user.ID, *got.OwnerID)
		require.NotNil(t, got.ClaimedByUsername)
		assert.Equal(t, "alice", *got.ClaimedByUsername)
		require.NotNil(t, got.ClaimedAt)
		assert.WithinDuration(t, now, *got.ClaimedAt, time.Second)
		// Claim never touches status, expiry, or machine binding.
		assert.Equal(t, LicenseKeyStatusActive, got.Status)
		assert.Nil(t, got.MachineID)
	})

	t.Run("second claim loses", func(t *testing.T) {
		t.Parallel()

		store, users := setupLicenseKeyStore(t)
		ctx := t.Context()

		alice, err := users.Create(ctx, "alice", "alice@example.com", "hash", false)
		require.NoError(t, err)
		bob, err := users.Create(ctx, "bob", "bob@example.com", "hash", false)
		require.NoError(t, err)

		lk, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, time.Now().Add(time.Hour))
		require.NoError(t, err)

		require.NoError(t, store.Claim(ctx, lk.ID, alice.ID, alice.Username, time.Now()))

		err = store.Claim(ctx, lk.ID, bob.ID, bob.Username, time.Now())
		assert.ErrorIs(t, err, ErrLicenseKeyAlreadyClaimed)

		got, err := store.Get(ctx, lk.ID)
		require.NoError(t, err)
		assert.Equal(t, alice.ID, *got.OwnerID)
	})

	t.Run("missing key", func(t *testing.T) {
		t.Parallel()

		store, users := setupLicenseKeyStore(t)
		ctx := t.Context()

		user, err := users.Create(ctx, "alice", "alice@example.com", "hash", false)
		require.NoError(t, err)

		err = store.Claim(ctx, "no-such-id", user.ID, user.Username, time.Now())
		assert.ErrorIs(t, err, ErrLicenseKeyNotFound)
	})
}

func TestLicenseKeyStore_BindMachine(t *testing.T) {
	t.Parallel()

	store, _ := setupLicenseKeyStore(t)
	ctx := t.Context()

	lk, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, time.Now().Add(time.Hour))
	require.NoError(t, err)

	bound, err := store.BindMachine(ctx, lk.ID, "machine-1", time.Now())
	require.NoError(t, err)
	assert.True(t, bound, "first bind should win")

	// A second bind attempt must not overwrite the stored machine id.
	bound, err = store.BindMachine(ctx, lk.ID, "machine-2", time.Now())
	require.NoError(t, err)
	assert.False(t, bound, "second bind should lose")

	got, err := store.Get(ctx, lk.ID)
	require.NoError(t, err)
	require.NotNil(t, got.MachineID)
	assert.Equal(t, "machine-1", *got.MachineID)
	assert.NotNil(t, got.LastValidatedAt)
}

func TestLicenseKeyStore_MarkExpired(t *testing.T) {
	t.Parallel()

	t.Run("expires active key once", func(t *testing.T) {
		t.Parallel()

		store, _ := setupLicenseKeyStore(t)
		ctx := t.Context()

		lk, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		transitioned, err := store.MarkExpired(ctx, lk.ID)
		require.NoError(t, err)
		assert.True(t, transitioned)

		transitioned, err = store.MarkExpired(ctx, lk.ID)
		require.NoError(t, err)
		assert.False(t, transitioned, "second transition is a no-op")

		got, err := store.Get(ctx, lk.ID)
		require.NoError(t, err)
		assert.Equal(t, LicenseKeyStatusExpired, got.Status)
	})

	t.Run("does not touch revoked keys", func(t *testing.T) {
		t.Parallel()

		store, _ := setupLicenseKeyStore(t)
		ctx := t.Context()

		lk, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, time.Now().Add(-time.Hour))
		require.NoError(t, err)

		_, err = store.SetStatus(ctx, lk.ID, LicenseKeyStatusRevoked)
		require.NoError(t, err)

		transitioned, err := store.MarkExpired(ctx, lk.ID)
		require.NoError(t, err)
		assert.False(t, transitioned)

		got, err := store.Get(ctx, lk.ID)
		require.NoError(t, err)
		assert.Equal(t, LicenseKeyStatusRevoked, got.Status)
	})
}

func TestLicenseKeyStore_SetStatus(t *testing.T) {
	t.Parallel()

	store, _ := setupLicenseKeyStore(t)
	ctx := t.Context()

	lk, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, time.Now().Add(-time.Hour))
	require.NoError(t, err)

	bound, err := store.BindMachine(ctx, lk.ID, "machine-1", time.Now())
	require.NoError(t, err)
	require.True(t, bound)

	revoked, err := store.SetStatus(ctx, lk.ID, LicenseKeyStatusRevoked)
	require.NoError(t, err)
	assert.Equal(t, LicenseKeyStatusRevoked, revoked.Status)

	// Reactivation restores status but leaves expiry and binding alone.
	reactivated, err := store.SetStatus(ctx, lk.ID, LicenseKeyStatusActive)
	require.NoError(t, err)
	assert.Equal(t, LicenseKeyStatusActive, reactivated.Status)
	assert.WithinDuration(t, lk.ExpiresAt, reactivated.ExpiresAt, time.Second)
	require.NotNil(t, reactivated.MachineID)
	assert.Equal(t, "machine-1", *reactivated.MachineID)

	_, err = store.SetStatus(ctx, "no-such-id", LicenseKeyStatusActive)
	assert.ErrorIs(t, err, ErrLicenseKeyNotFound)
}

func TestLicenseKeyStore_Listing(t *testing.T) {
	t.Parallel()

	store, users := setupLicenseKeyStore(t)
	ctx := t.Context()

	alice, err := users.Create(ctx, "alice", "alice@example.com", "hash", false)
	require.NoError(t, err)

	_, err = store.Create(ctx, "AAAAA-AAAAA-AAAAA-AAAAA", &alice.ID, nil, time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = store.Create(ctx, "BBBBB-BBBBB-BBBBB-BBBBB", nil, nil, time.Now().Add(time.Hour))
	require.NoError(t, err)

	t.Run("by owner", func(t *testing.T) {
		keys, err := store.ListByOwner(ctx, alice.ID)
		require.NoError(t, err)
		require.Len(t, keys, 1)
		assert.Equal(t, "AAAAA-AAAAA-AAAAA-AAAAA", keys[0].Key)
	})

	t.Run("all with owner username", func(t *testing.T) {
		keys, err := store.List(ctx)
		require.NoError(t, err)
		require.Len(t, keys, 2)

		byKey := make(map[string]*LicenseKeyWithOwner)
		for _, k := range keys {
			byKey[k.Key] = k
		}

		require.NotNil(t, byKey["AAAAA-AAAAA-AAAAA-AAAAA"].OwnerUsername)
		assert.Equal(t, "alice", *byKey["AAAAA-AAAAA-AAAAA-AAAAA"].OwnerUsername)
		assert.Nil(t, byKey["BBBBB-BBBBB-BBBBB-BBBBB"].OwnerUsername)
	})
}

func TestLicenseKeyStore_Delete(t *testing.T) {
	t.Parallel()

	store, _ := setupLicenseKeyStore(t)
	ctx := t.Context()

	lk, err := store.Create(ctx, "ABCDE-FGHJK-LMNPQ-RSTUV", nil, nil, time.Now().Add(time.Hour))
	require.NoError(t, err)

	require.NoError(t, store.Delete(ctx, lk.ID))
	assert.ErrorIs(t, store.Delete(ctx, lk.ID), ErrLicenseKeyNotFound)
}
