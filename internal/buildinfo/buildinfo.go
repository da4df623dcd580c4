// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package buildinfo holds build-time version metadata injected via ldflags.
package buildinfo

var (
	Version = "dev"
	Commit  = ""
	Date    = ""
)
