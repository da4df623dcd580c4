// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package auth provides user credentials backed by the user store.
// It returns stable user identifiers; everything downstream treats a
// resolved (id, username) pair as the caller's identity.
package auth

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/models"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidInput       = errors.New("username, email, and password are required")
)

type Service struct {
	userStore *models.UserStore
}

func NewService(userStore *models.UserStore) *Service {
	return &Service{userStore: userStore}
}

// Register creates a new user with a hashed password.
func (s *Service) Register(ctx context.Context, username, email, password string, isAdmin bool) (*models.User, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || email == "" || password == "" {
		return nil, ErrInvalidInput
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.userStore.Create(ctx, username, email, hash, isAdmin)
	if err != nil {
		return nil, err
	}

	log.Info().Str("username", username).Bool("isAdmin", isAdmin).Msg("Created user")
	return user, nil
}

// Login validates credentials and returns the user on success. Unknown
// usernames and wrong passwords are indistinguishable to the caller.
func (s *Service) Login(ctx context.Context, username, password string) (*models.User, error) {
	user, err := s.userStore.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, models.ErrUserNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	valid, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

// GetUser resolves a user id to a user record.
func (s *Service) GetUser(ctx context.Context, id string) (*models.User, error) {
	return s.userStore.Get(ctx, id)
}

// ChangePassword verifies the old password and stores a new hash.
func (s *Service) ChangePassword(ctx context.Context, userID, oldPassword, newPassword string) error {
	if newPassword == "" {
		return ErrInvalidInput
	}

	user, err := s.userStore.Get(ctx, userID)
	if err != nil {
		return err
	}

	valid, err := VerifyPassword(oldPassword, user.PasswordHash)
	if err != nil {
		return err
	}
	if !valid {
		return ErrInvalidCredentials
	}

	hash, err := HashPassword(newPassword)
	if err != nil {
		return err
	}

	return s.userStore.UpdatePasswordHash(ctx, user.ID, hash)
}
