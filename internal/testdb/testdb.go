// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package testdb opens migrated sqlite databases for tests.
package testdb

import (
	"path/filepath"
	"testing"

	"github.com/keymint/keymint/internal/database"
)

// Open creates a file-backed sqlite database in a per-test temp
// directory with all migrations applied.
func Open(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "keymint.db"))
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}

	t.Cleanup(func() { _ = db.Close() })

	return db
}
