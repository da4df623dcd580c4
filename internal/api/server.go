// Copyright (c) 2026, the keymint contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	"github.com/keymint/keymint/internal/api/handlers"
	"github.com/keymint/keymint/internal/api/middleware"
	"github.com/keymint/keymint/internal/auth"
	"github.com/keymint/keymint/internal/config"
	"github.com/keymint/keymint/internal/models"
	"github.com/keymint/keymint/internal/services/license"
)

// Dependencies collects everything the router needs.
type Dependencies struct {
	Config         *config.AppConfig
	AuthService    *auth.Service
	LicenseService *license.Service
	UserStore      *models.UserStore
	SessionManager *scs.SessionManager
}

type Server struct {
	deps *Dependencies
	http *http.Server
}

func NewServer(deps *Dependencies) *Server {
	return &Server{deps: deps}
}

// Handler builds the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Use(cors.New(cors.Options{
		AllowOriginFunc:  func(origin string) bool { return true },
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	r.Use(s.deps.SessionManager.LoadAndSave)

	baseURL := "/"
	if s.deps.Config != nil && s.deps.Config.Config.BaseURL != "" {
		baseURL = s.deps.Config.Config.BaseURL
	}

	r.Route(normalizeBaseURL(baseURL), func(r chi.Router) {
		healthHandler := handlers.NewHealthHandler()
		r.Get("/health", healthHandler.Health)

		r.Route("/api", func(r chi.Router) {
			r.Get("/version", healthHandler.Version)

			validationHandler := handlers.NewValidationHandler(s.deps.LicenseService)
			r.Post("/validate", validationHandler.Validate)

			authHandler := handlers.NewAuthHandler(s.deps.AuthService, s.deps.SessionManager)
			r.Route("/auth", func(r chi.Router) {
				r.Post("/register", authHandler.Register)
				r.Post("/login", authHandler.Login)

				r.Group(func(r chi.Router) {
					r.Use(middleware.IsAuthenticated(s.deps.SessionManager))
					r.Post("/logout", authHandler.Logout)
					r.Get("/me", authHandler.Me)
					r.Post("/change-password", authHandler.ChangePassword)
				})
			})

			keysHandler := handlers.NewKeysHandler(s.deps.LicenseService)
			r.Route("/keys", func(r chi.Router) {
				r.Use(middleware.IsAuthenticated(s.deps.SessionManager))
				r.Get("/", keysHandler.ListMine)
				r.Post("/claim", keysHandler.Claim)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(middleware.IsAuthenticated(s.deps.SessionManager))
				r.Use(middleware.RequireAdmin())

				adminKeysHandler := handlers.NewAdminKeysHandler(s.deps.LicenseService)
				r.Route("/keys", func(r chi.Router) {
					r.Get("/", adminKeysHandler.List)
					r.Post("/", adminKeysHandler.Issue)
					r.Post("/bulk", adminKeysHandler.IssueBulk)

					r.Route("/{keyID}", func(r chi.Router) {
						r.Get("/", adminKeysHandler.Get)
						r.Delete("/", adminKeysHandler.Delete)
						r.Post("/extend", adminKeysHandler.Extend)
						r.Post("/status", adminKeysHandler.SetStatus)
						r.Get("/attempts", adminKeysHandler.Attempts)
					})
				})

				productsHandler := handlers.NewProductsHandler(s.deps.LicenseService)
				r.Route("/products", func(r chi.Router) {
					r.Get("/", productsHandler.List)
					r.Post("/", productsHandler.Create)
					r.Delete("/{productID}", productsHandler.Delete)
				})

				usersHandler := handlers.NewUsersHandler(s.deps.UserStore)
				r.Get("/users", usersHandler.List)
			})
		})
	})

	return r
}

// Serve runs the HTTP server until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.deps.Config.Config.Host, s.deps.Config.Config.Port)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("API server listening")
		errCh <- s.http.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

func normalizeBaseURL(baseURL string) string {
	baseURL = "/" + strings.Trim(baseURL, "/")
	return baseURL
}
