// Package server sets up the HTTP server, router, and all route definitions.
//
// SERVER ARCHITECTURE:
// This package is the "wiring" layer: it connects handlers, middleware, and
// routes, and it owns the resources that live as long as the process (the
// database, the image bucket, the session sweeper).
//
// DEPENDENCY INJECTION FLOW:
// main.go loads config.Config and builds the logger, then New creates:
//
//	sqlite.DB ─┬─ SessionManager ─┬─ AuthService ──── AuthHandler
//	           │                  └─ FederatedLogin ─┘  (+ OIDCClient)
//	           ├─ PostService (+ storage.Images) ─┬─ PostHandler
//	           └─ CommentService ─────────────────┘
//	ContactService (+ mailer.Mailer, optional) ── ContactHandler
//
// This is the "composition root" pattern: every dependency is wired in one
// place instead of being scattered across the codebase.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/sakif/blog-platform/internal/auth"
	"github.com/sakif/blog-platform/internal/config"
	"github.com/sakif/blog-platform/internal/handler"
	"github.com/sakif/blog-platform/internal/mailer"
	"github.com/sakif/blog-platform/internal/middleware"
	sqliteRepo "github.com/sakif/blog-platform/internal/repository/sqlite"
	"github.com/sakif/blog-platform/internal/service"
	"github.com/sakif/blog-platform/internal/storage"
)

const (
	sessionSweepInterval = time.Hour
	shutdownTimeout      = 30 * time.Second
)

// Server represents the HTTP server and all its dependencies.
//
// RESOURCE MANAGEMENT:
// The Server owns the database connection and the image bucket. Close
// releases both; Start calls it once the HTTP server has drained.
type Server struct {
	router   *chi.Mux
	config   config.Config
	logger   *slog.Logger
	db       *sqliteRepo.DB
	images   *storage.Images
	sessions *service.SessionManager

	stopSweeper context.CancelFunc
}

// New creates a Server from cfg and starts its background session sweeper.
// Call Start to serve, or Handler plus Close to drive it from tests.
func New(cfg config.Config, logger *slog.Logger) (*Server, error) {
	// === STORAGE ===
	db, err := sqliteRepo.New(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	bucket, err := storage.OpenBucket(cfg.Upload.Dir)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("opening upload bucket: %w", err)
	}
	images := storage.NewImages(bucket, cfg.Upload.MaxBytes)

	// === AUTH PRIMITIVES ===
	tokens, err := auth.NewTokenService(cfg.Session.Secret)
	if err != nil {
		images.Close()
		db.Close()
		return nil, fmt.Errorf("creating token service: %w", err)
	}
	sessions := service.NewSessionManager(db, tokens, cfg.Session.TTL, logger)

	s := &Server{
		router:   chi.NewRouter(),
		config:   cfg,
		logger:   logger,
		db:       db,
		images:   images,
		sessions: sessions,
	}

	if err := s.setupRoutes(); err != nil {
		s.Close()
		return nil, fmt.Errorf("setting up routes: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweeper = cancel
	go sessions.RunSweeper(ctx, sessionSweepInterval)

	return s, nil
}

// setupRoutes configures all middleware and route handlers.
//
// ROUTE STRUCTURE:
//
//	GET    /api/health
//	POST   /api/auth/register
//	POST   /api/auth/login
//	GET    /api/auth/google/login
//	GET    /api/auth/google/login/callback
//	GET    /api/auth/logout                      [auth]
//	GET    /api/auth/me                          [auth]
//	GET    /api/blog/posts                       [optional auth]
//	GET    /api/blog/posts/{id}                  [optional auth]
//	POST   /api/blog/posts                       [auth]
//	PUT    /api/blog/posts/{id}                  [auth, owner]
//	DELETE /api/blog/posts/{id}                  [auth, owner]
//	PUT    /api/blog/posts/{id}/visibility       [auth, owner]
//	POST   /api/blog/posts/{id}/comments         [auth]
//	GET    /api/blog/user/posts                  [auth]
//	GET    /api/blog/uploads/{filename}
//	POST   /api/blog/contact
//
// MIDDLEWARE ORDER MATTERS:
// RequestID runs first so the logger can include the id; Recoverer sits
// inside the logger so a recovered panic is still logged as a 500.
func (s *Server) setupRoutes() error {
	cfg := s.config

	// === SERVICES ===
	authService := service.NewAuthService(s.db, auth.NewPasswordService(cfg.Session.BcryptCost), s.sessions, s.logger)

	oidc := auth.NewOIDCClient(auth.OIDCConfig{
		ClientID:     cfg.Google.ClientID,
		ClientSecret: cfg.Google.ClientSecret,
		DiscoveryURL: cfg.Google.DiscoveryURL,
		Timeout:      cfg.Google.Timeout,
	}, nil)
	if !cfg.Google.Enabled() {
		s.logger.Warn("GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set, federated login is disabled")
	}
	federated := service.NewFederatedLogin(s.db, oidc, s.sessions, s.logger)

	posts := service.NewPostService(s.db, s.images, s.logger)
	comments := service.NewCommentService(s.db, s.logger)

	// A nil *mailer.Mailer stored in the interface would not compare equal
	// to nil, so the interface is only assigned when forwarding is on.
	var contactMailer service.Mailer
	if cfg.SMTP.Enabled() {
		m, err := mailer.New(mailer.Config{
			Host:     cfg.SMTP.Host,
			Port:     cfg.SMTP.Port,
			Username: cfg.SMTP.Username,
			Password: cfg.SMTP.Password,
			From:     cfg.SMTP.From,
		})
		if err != nil {
			return fmt.Errorf("creating mailer: %w", err)
		}
		contactMailer = m
	}
	contact := service.NewContactService(contactMailer, cfg.SMTP.Recipient, s.logger)

	// === HANDLERS ===
	authHandler := handler.NewAuthHandler(authService, federated, s.sessions, handler.AuthHandlerConfig{
		FrontendURL:  cfg.FrontendURL,
		CallbackURL:  cfg.Google.CallbackURL,
		SecureCookie: cfg.Session.CookieSecure,
	}, s.logger)
	postHandler := handler.NewPostHandler(posts, comments, cfg.Upload.MaxBytes, s.logger)
	uploadHandler := handler.NewUploadHandler(s.images, s.logger)
	contactHandler := handler.NewContactHandler(contact, s.logger)
	healthHandler := handler.NewHealthHandler(s.db, s.logger)

	requireAuth := auth.RequireAuth(s.sessions, s.logger)
	optionalAuth := auth.OptionalAuth(s.sessions)

	// === Global Middleware ===
	s.router.Use(chimiddleware.RequestID)
	s.router.Use(chimiddleware.RealIP)
	s.router.Use(middleware.Logger(s.logger))
	s.router.Use(chimiddleware.Recoverer)

	// === API Routes ===
	s.router.Route("/api", func(r chi.Router) {
		// Cookies cross origins only when the frontend is explicitly allowed
		// and credentials are enabled.
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{cfg.FrontendURL},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
			AllowCredentials: true,
			MaxAge:           300,
		}))

		r.Get("/health", healthHandler.HandleHealth)

		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", authHandler.HandleRegister)
			r.Post("/login", authHandler.HandleLogin)
			r.Get("/google/login", authHandler.HandleGoogleLogin)
			r.Get("/google/login/callback", authHandler.HandleGoogleCallback)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Get("/logout", authHandler.HandleLogout)
				r.Get("/me", authHandler.HandleMe)
			})
		})

		r.Route("/blog", func(r chi.Router) {
			r.Get("/uploads/{filename}", uploadHandler.HandleServe)
			r.Post("/contact", contactHandler.HandleSubmit)

			r.Group(func(r chi.Router) {
				r.Use(optionalAuth)
				r.Get("/posts", postHandler.HandleList)
				r.Get("/posts/{id}", postHandler.HandleGet)
			})

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/posts", postHandler.HandleCreate)
				r.Put("/posts/{id}", postHandler.HandleUpdate)
				r.Delete("/posts/{id}", postHandler.HandleDelete)
				r.Put("/posts/{id}/visibility", postHandler.HandleSetVisibility)
				r.Post("/posts/{id}/comments", postHandler.HandleComment)
				r.Get("/user/posts", postHandler.HandleListMine)
			})
		})
	})

	return nil
}

// Handler exposes the router, mainly for httptest servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Close stops the session sweeper and releases the bucket and database.
func (s *Server) Close() error {
	if s.stopSweeper != nil {
		s.stopSweeper()
	}
	return errors.Join(s.images.Close(), s.db.Close())
}

// Start serves HTTP until SIGINT or SIGTERM, then shuts down gracefully.
//
// GRACEFUL SHUTDOWN:
//  1. Stop accepting new HTTP connections
//  2. Wait for in-flight requests to finish (30s timeout)
//  3. Close the bucket and the database (flushes WAL, releases file lock)
func (s *Server) Start() error {
	defer func() {
		if err := s.Close(); err != nil {
			s.logger.Error("closing resources", slog.String("error", err.Error()))
		}
	}()

	// Uploads run longer than ordinary requests, so the write timeout is
	// generous.
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	serverErrors := make(chan error, 1)

	go func() {
		s.logger.Info("server starting",
			slog.Int("port", s.config.Port),
			slog.String("database", s.config.DBPath),
			slog.String("uploads", s.config.Upload.Dir),
			slog.String("frontend", s.config.FrontendURL),
		)
		serverErrors <- srv.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}

	case sig := <-quit:
		s.logger.Info("shutdown signal received", slog.String("signal", sig.String()))

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		s.logger.Info("server stopped gracefully")
	}

	return nil
}
