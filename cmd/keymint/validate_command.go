// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/keygen-sh/machineid"
	"github.com/spf13/cobra"
)

// RunValidateCommand is a small client for checking a key against a
// running keymint server, using this machine's hardware fingerprint.
func RunValidateCommand() *cobra.Command {
	var (
		serverURL string
		key       string
		noMachine bool
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a license key against a keymint server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if key == "" {
				return errors.New("--key is required")
			}

			machineID := ""
			if !noMachine {
				id, err := machineid.ProtectedID("keymint")
				if err != nil {
					return fmt.Errorf("derive machine fingerprint: %w", err)
				}
				machineID = id
			}

			body, err := json.Marshal(map[string]string{
				"key":        key,
				"machine_id": machineID,
			})
			if err != nil {
				return err
			}

			url := strings.TrimRight(serverURL, "/") + "/api/validate"

			client := &http.Client{Timeout: 15 * time.Second}
			req, err := http.NewRequestWithContext(cmd.Context(), http.MethodPost, url, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := client.Do(req)
			if err != nil {
				return fmt.Errorf("contact server: %w", err)
			}
			defer resp.Body.Close()

			var result struct {
				Valid         bool   `json:"valid"`
				Error         string `json:"error"`
				ExpiresAt     string `json:"expires_at"`
				DaysRemaining int    `json:"days_remaining"`
			}
			if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
				return fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
			}

			if resp.StatusCode != http.StatusOK {
				return fmt.Errorf("server rejected request (status %d): %s", resp.StatusCode, result.Error)
			}

			if !result.Valid {
				cmd.Printf("Invalid: %s\n", result.Error)
				return errors.New("license key is not valid")
			}

			cmd.Printf("Valid until %s (%d days remaining)\n", result.ExpiresAt, result.DaysRemaining)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:7227", "Base URL of the keymint server")
	cmd.Flags().StringVar(&key, "key", "", "License key to validate")
	cmd.Flags().BoolVar(&noMachine, "no-machine-id", false, "Skip sending the machine fingerprint")

	return cmd
}
