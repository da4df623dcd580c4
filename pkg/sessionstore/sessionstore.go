// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package sessionstore implements an scs session store on top of the
// application database. It works against both supported engines: the
// SQL sticks to ? placeholders and ON CONFLICT upserts, and the
// database layer rebinds for postgres.
package sessionstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/dbinterface"
)

type OptFunc func(*Store)

// WithCleanupInterval sets how often expired sessions are purged.
// An interval of 0 disables the cleanup goroutine.
func WithCleanupInterval(interval time.Duration) OptFunc {
	return func(s *Store) {
		s.cleanupInterval = interval
	}
}

// Store persists scs session data in the sessions table.
type Store struct {
	db              dbinterface.Querier
	stopCleanup     chan bool
	cleanupInterval time.Duration
}

// New returns a session store with a background cleanup goroutine that
// removes expired sessions every 5 minutes.
func New(db dbinterface.Querier, opts ...OptFunc) *Store {
	s := &Store{
		db:              db,
		cleanupInterval: 5 * time.Minute,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.cleanupInterval > 0 {
		s.stopCleanup = make(chan bool)
		go s.startCleanup()
	}

	return s
}

// Find returns the data for a session token. If the token is unknown
// or expired, found is false.
func (s *Store) Find(token string) ([]byte, bool, error) {
	return s.FindCtx(context.Background(), token)
}

func (s *Store) FindCtx(ctx context.Context, token string) (b []byte, found bool, err error) {
	row := s.db.QueryRowContext(ctx, "SELECT data FROM sessions WHERE token = ? AND expiry > ?", token, time.Now().Unix())
	if err := row.Scan(&b); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return b, true, nil
}

// Commit upserts a session token with its data and expiry time.
func (s *Store) Commit(token string, b []byte, expiry time.Time) error {
	return s.CommitCtx(context.Background(), token, b, expiry)
}

func (s *Store) CommitCtx(ctx context.Context, token string, b []byte, expiry time.Time) error {
	query := `
		INSERT INTO sessions (token, data, expiry) VALUES (?, ?, ?)
		ON CONFLICT (token) DO UPDATE SET data = excluded.data, expiry = excluded.expiry
	`
	_, err := s.db.ExecContext(ctx, query, token, b, expiry.Unix())
	return err
}

// Delete removes a session token.
func (s *Store) Delete(token string) error {
	return s.DeleteCtx(context.Background(), token)
}

func (s *Store) DeleteCtx(ctx context.Context, token string) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// All returns the data for every active session keyed by token.
func (s *Store) All() (map[string][]byte, error) {
	return s.AllCtx(context.Background())
}

func (s *Store) AllCtx(ctx context.Context) (map[string][]byte, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT token, data FROM sessions WHERE expiry > ?", time.Now().Unix())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := make(map[string][]byte)

	for rows.Next() {
		var token string
		var data []byte

		if err := rows.Scan(&token, &data); err != nil {
			return nil, err
		}

		sessions[token] = data
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return sessions, nil
}

// StopCleanup terminates the background cleanup goroutine. Call it
// before shutting down.
func (s *Store) StopCleanup() {
	if s.stopCleanup != nil {
		s.stopCleanup <- true
	}
}

func (s *Store) startCleanup() {
	ticker := time.NewTicker(s.cleanupInterval)
	for {
		select {
		case <-ticker.C:
			if err := s.deleteExpired(); err != nil {
				log.Error().Err(err).Msg("Failed to delete expired session data")
			}
		case <-s.stopCleanup:
			ticker.Stop()
			return
		}
	}
}

func (s *Store) deleteExpired() error {
	_, err := s.db.ExecContext(context.Background(), "DELETE FROM sessions WHERE expiry <= ?", time.Now().Unix())
	return err
}
