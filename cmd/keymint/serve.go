// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/keymint/keymint/internal/api"
	"github.com/keymint/keymint/internal/auth"
	"github.com/keymint/keymint/internal/buildinfo"
	"github.com/keymint/keymint/internal/config"
	"github.com/keymint/keymint/internal/database"
	"github.com/keymint/keymint/internal/logger"
	"github.com/keymint/keymint/internal/metrics"
	"github.com/keymint/keymint/internal/models"
	"github.com/keymint/keymint/internal/services/license"
	"github.com/keymint/keymint/pkg/sessionstore"
)

func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the keymint server",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New(configDir)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			logger.Setup(cfg.Config)

			log.Info().
				Str("version", buildinfo.Version).
				Str("commit", buildinfo.Commit).
				Msg("Starting keymint")

			db, err := database.OpenFromConfig(cfg.Config, cfg.DatabasePath())
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer db.Close()

			keyStore := models.NewLicenseKeyStore(db)
			attemptStore := models.NewValidationAttemptStore(db)
			userStore := models.NewUserStore(db)
			productStore := models.NewProductStore(db)

			var metricsManager *metrics.Manager
			if cfg.Config.MetricsEnabled {
				metricsManager = metrics.NewManager()
			}

			authService := auth.NewService(userStore)
			licenseService := license.NewService(keyStore, attemptStore, userStore, productStore, metricsManager)

			sessionStore := sessionstore.New(db)
			defer sessionStore.StopCleanup()

			sessionManager := scs.New()
			sessionManager.Store = sessionStore
			sessionManager.Lifetime = 31 * 24 * time.Hour
			sessionManager.Cookie.Name = "keymint_session"
			sessionManager.Cookie.HttpOnly = true
			sessionManager.Cookie.SameSite = http.SameSiteLaxMode

			server := api.NewServer(&api.Dependencies{
				Config:         cfg,
				AuthService:    authService,
				LicenseService: licenseService,
				UserStore:      userStore,
				SessionManager: sessionManager,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)

			g.Go(func() error {
				return server.Serve(ctx)
			})

			if metricsManager != nil {
				g.Go(func() error {
					return serveMetrics(ctx, cfg, metricsManager)
				})
			}

			if err := g.Wait(); err != nil {
				return err
			}

			log.Info().Msg("Shutdown complete")
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "Path to the configuration directory")

	return cmd
}

func serveMetrics(ctx context.Context, cfg *config.AppConfig, manager *metrics.Manager) error {
	addr := fmt.Sprintf("%s:%d", cfg.Config.MetricsHost, cfg.Config.MetricsPort)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(manager.GetRegistry(), promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("Metrics server listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}
