// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/keymint/keymint/internal/keygen"
)

func RunKeyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "License key utilities",
	}

	cmd.AddCommand(runKeyGenerateCommand())
	return cmd
}

// runKeyGenerateCommand prints keys without touching any server or
// database, for scripting and demos. Keys issued here are not known to
// a keymint instance until an admin imports them.
func runKeyGenerateCommand() *cobra.Command {
	var (
		count   int
		display bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate random license keys offline",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if count < 1 {
				return errors.New("--count must be positive")
			}

			for i := 0; i < count; i++ {
				key := keygen.Generate()
				if display {
					key = keygen.DisplayFormat(key)
				}
				cmd.Println(key)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&count, "count", 1, "Number of keys to generate")
	cmd.Flags().BoolVar(&display, "display", false, "Print keys in display grouping")

	return cmd
}
