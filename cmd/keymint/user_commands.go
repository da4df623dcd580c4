// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/keymint/keymint/internal/auth"
	"github.com/keymint/keymint/internal/config"
	"github.com/keymint/keymint/internal/database"
	"github.com/keymint/keymint/internal/models"
)

func RunUserCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "user",
		Short: "User account operations",
	}

	cmd.AddCommand(RunCreateUserCommand())
	cmd.AddCommand(RunChangePasswordCommand())
	return cmd
}

func RunCreateUserCommand() *cobra.Command {
	var (
		configDir string
		username  string
		email     string
		password  string
		admin     bool
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a user account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || email == "" || password == "" {
				return errors.New("--username, --email and --password are required")
			}

			db, err := openDatabase(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			userStore := models.NewUserStore(db)

			if _, err := userStore.GetByUsername(cmd.Context(), username); err == nil {
				cmd.Println("User account already exists, skipping creation")
				return nil
			} else if !errors.Is(err, models.ErrUserNotFound) {
				return err
			}

			if _, err := auth.NewService(userStore).Register(cmd.Context(), username, email, password, admin); err != nil {
				return fmt.Errorf("create user: %w", err)
			}

			cmd.Printf("User '%s' created successfully\n", username)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Path to the configuration directory")
	cmd.Flags().StringVar(&username, "username", "", "Username for the new account")
	cmd.Flags().StringVar(&email, "email", "", "Email address for the new account")
	cmd.Flags().StringVar(&password, "password", "", "Password for the new account")
	cmd.Flags().BoolVar(&admin, "admin", false, "Grant the account admin privileges")

	return cmd
}

func RunChangePasswordCommand() *cobra.Command {
	var (
		configDir   string
		username    string
		newPassword string
	)

	cmd := &cobra.Command{
		Use:   "change-password",
		Short: "Reset a user's password",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if username == "" || newPassword == "" {
				return errors.New("--username and --new-password are required")
			}

			db, err := openDatabase(configDir)
			if err != nil {
				return err
			}
			defer db.Close()

			userStore := models.NewUserStore(db)

			user, err := userStore.GetByUsername(cmd.Context(), username)
			if err != nil {
				return fmt.Errorf("look up user: %w", err)
			}

			hash, err := auth.HashPassword(newPassword)
			if err != nil {
				return fmt.Errorf("hash password: %w", err)
			}

			if err := userStore.UpdatePasswordHash(cmd.Context(), user.ID, hash); err != nil {
				return fmt.Errorf("update password: %w", err)
			}

			cmd.Println("Password changed successfully")
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Path to the configuration directory")
	cmd.Flags().StringVar(&username, "username", "", "Username of the account")
	cmd.Flags().StringVar(&newPassword, "new-password", "", "New password")

	return cmd
}

func openDatabase(configDir string) (*database.DB, error) {
	cfg, err := config.New(configDir)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	db, err := database.OpenFromConfig(cfg.Config, cfg.DatabasePath())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	return db, nil
}
