// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"
)

// testSchema mirrors the sqlite migration closely enough for store tests.
const testSchema = `
	CREATE TABLE users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		password_hash TEXT NOT NULL,
		is_admin BOOLEAN NOT NULL DEFAULT 0,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE license_keys (
		id TEXT PRIMARY KEY,
		key TEXT NOT NULL UNIQUE,
		owner_id TEXT REFERENCES users(id) ON DELETE SET NULL,
		product_id TEXT REFERENCES products(id) ON DELETE SET NULL,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'expired', 'revoked')),
		expires_at TIMESTAMP NOT NULL,
		machine_id TEXT,
		last_validated_at TIMESTAMP,
		claimed_at TIMESTAMP,
		claimed_by_username TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE key_validations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		license_key_id TEXT REFERENCES license_keys(id) ON DELETE SET NULL,
		success BOOLEAN NOT NULL,
		machine_id TEXT,
		ip_address TEXT,
		validated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
`

// newTestDB opens an in-memory sqlite database with the schema applied.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)

	// A single connection keeps the in-memory database alive and shared.
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	_, err = db.ExecContext(ctx, "PRAGMA foreign_keys = ON")
	require.NoError(t, err)

	_, err = db.ExecContext(ctx, testSchema)
	require.NoError(t, err)

	t.Cleanup(func() { _ = db.Close() })

	return db
}

func strPtr(s string) *string {
	return &s
}
