// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/keymint/keymint/internal/dbinterface"
)

var (
	ErrProductNotFound      = errors.New("product not found")
	ErrProductAlreadyExists = errors.New("product already exists")
)

// Product is an optional catalog entity a license key may reference.
type Product struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

type ProductStore struct {
	db dbinterface.Querier
}

func NewProductStore(db dbinterface.Querier) *ProductStore {
	return &ProductStore{db: db}
}

func (s *ProductStore) Create(ctx context.Context, name string) (*Product, error) {
	query := `
		INSERT INTO products (id, name)
		VALUES (?, ?)
		RETURNING id, name, created_at
	`

	product := &Product{}
	err := s.db.QueryRowContext(ctx, query, uuid.NewString(), name).Scan(
		&product.ID,
		&product.Name,
		&product.CreatedAt,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrProductAlreadyExists
		}
		return nil, err
	}

	return product, nil
}

func (s *ProductStore) Get(ctx context.Context, id string) (*Product, error) {
	query := `SELECT id, name, created_at FROM products WHERE id = ?`

	product := &Product{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	return product, nil
}

func (s *ProductStore) List(ctx context.Context) ([]*Product, error) {
	query := `SELECT id, name, created_at FROM products ORDER BY name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	products := make([]*Product, 0)
	for rows.Next() {
		product := &Product{}
		if err := rows.Scan(&product.ID, &product.Name, &product.CreatedAt); err != nil {
			return nil, err
		}
		products = append(products, product)
	}

	return products, rows.Err()
}

func (s *ProductStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM products WHERE id = ?`

	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrProductNotFound
	}

	return nil
}
