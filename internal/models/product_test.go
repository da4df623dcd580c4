// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func TestProductStore(t *testing.T) {
	t.Parallel()

	store := NewProductStore(newTestDB(t))
	ctx := t.Context()

	product, err := store.Create(ctx, "Widget Pro")
	require.NoError(t, err)
	assert.NotEmpty(t, product.ID)

	_, err = store.Create(ctx, "Widget Pro")
	assert.ErrorIs(t, err, ErrProductAlreadyExists)

	got, err := store.Get(ctx, product.ID)
	require.NoError(t, err)
	assert.Equal(t, "Widget Pro", got.Name)

	products, err := store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, products, 1)

	require.NoError(t, store.Delete(ctx, product.ID))
	assert.ErrorIs(t, store.Delete(ctx, product.ID), ErrProductNotFound)
}
