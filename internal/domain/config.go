// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"errors"
	"strings"
)

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	SessionSecret string `toml:"sessionSecret" mapstructure:"sessionSecret"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	// Database configuration. Engine is either "sqlite" (default) or
	// "postgres". The sqlite database lives under DataDir; postgres is
	// configured via DSN or the discrete host/port/user fields.
	DatabaseEngine   string `toml:"databaseEngine" mapstructure:"databaseEngine"`
	DatabaseDSN      string `toml:"databaseDsn" mapstructure:"databaseDsn"`
	DatabaseHost     string `toml:"databaseHost" mapstructure:"databaseHost"`
	DatabasePort     int    `toml:"databasePort" mapstructure:"databasePort"`
	DatabaseUser     string `toml:"databaseUser" mapstructure:"databaseUser"`
	DatabasePassword string `toml:"databasePassword" mapstructure:"databasePassword"`
	DatabaseName     string `toml:"databaseName" mapstructure:"databaseName"`
	DatabaseSSLMode  string `toml:"databaseSslMode" mapstructure:"databaseSslMode"`

	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost    string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort    int    `toml:"metricsPort" mapstructure:"metricsPort"`
}

// Validate checks settings that would otherwise only fail at first use.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	engine := strings.ToLower(strings.TrimSpace(c.DatabaseEngine))
	switch engine {
	case "", "sqlite", "postgres", "postgresql":
	default:
		return errors.New("databaseEngine must be sqlite or postgres")
	}

	if c.MetricsEnabled && (c.MetricsPort <= 0 || c.MetricsPort > 65535) {
		return errors.New("metricsPort must be between 1 and 65535")
	}

	return nil
}
