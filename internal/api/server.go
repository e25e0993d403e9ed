// Package api provides the HTTP API server for the marketplace.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/factorhub/marketplace/internal/api/handlers"
	"github.com/factorhub/marketplace/internal/api/health"
	"github.com/factorhub/marketplace/internal/api/middleware"
	"github.com/factorhub/marketplace/internal/auth"
	"github.com/factorhub/marketplace/internal/marketplace"
	"github.com/factorhub/marketplace/internal/store"
	"github.com/factorhub/marketplace/pkg/config"
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	svc           *marketplace.Service
	auth          *auth.Service
	limiter       middleware.Limiter
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies. limiter
// may be nil, which disables rate limiting of one-time links.
func NewServer(cfg *config.Config, st store.Store, svc *marketplace.Service, authSvc *auth.Service, limiter middleware.Limiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		svc:           svc,
		auth:          authSvc,
		limiter:       limiter,
		config:        cfg,
		logger:        logger,
		healthChecker: health.NewChecker(st, Version),
	}

	s.setupRouter()
	return s
}

// AddHealthCheck reports an optional dependency, such as the cache, on /health.
func (s *Server) AddHealthCheck(name string, p health.Pinger) {
	s.healthChecker.AddOptional(name, p)
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", s.healthChecker.Handler())

	authHandler := handlers.NewAuthHandler(s.auth, s.logger)
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", authHandler.Register)
		r.Post("/login", authHandler.Login)
	})

	// One-time links from emails; the token is the credential.
	linkHandler := handlers.NewLinkHandler(s.svc, s.logger)
	r.Route("/links", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.limiter, "links", s.config.Links.RateLimit, s.config.Links.RateWindow, s.logger))
		r.Get("/fee/{token}", linkHandler.ShowFee)
		r.Get("/validate/{token}", linkHandler.ShowValidate)
		r.Get("/payment/{token}", linkHandler.ShowPayment)
		r.Post("/fee/{token}", linkHandler.ApproveFee)
		r.Post("/validate/{token}", linkHandler.Validate)
		r.Post("/payment/{token}", linkHandler.ConfirmPayment)
	})

	r.Route("/v1", func(r chi.Router) {
		authMiddleware := middleware.NewAuthMiddleware(s.auth, s.logger)
		r.Use(authMiddleware.Authenticate)

		require := func(p auth.Permission) func(http.Handler) http.Handler {
			return middleware.RequirePermission(p, s.logger)
		}

		assetHandler := handlers.NewAssetHandler(s.svc, s.logger)
		r.Route("/assets", func(r chi.Router) {
			r.With(require(auth.PermissionManageAssets)).Post("/", assetHandler.Create)
			r.With(require(auth.PermissionManageAssets)).Get("/", assetHandler.List)
			r.Route("/{assetID}", func(r chi.Router) {
				r.Get("/", assetHandler.Get)
				r.Get("/bids", assetHandler.ListBids)
				r.With(require(auth.PermissionPlaceBids)).Put("/bid", assetHandler.PlaceBid)

				r.Group(func(r chi.Router) {
					r.Use(require(auth.PermissionManageAssets))
					r.Post("/approve-fee", assetHandler.ApproveFee)
					r.Post("/post", assetHandler.Post)
					r.Post("/cancel", assetHandler.Cancel)
				})

				r.Route("/bids/{bidID}", func(r chi.Router) {
					r.Use(require(auth.PermissionReviewBids))
					r.Post("/accept", assetHandler.AcceptBid)
					r.Post("/reject", assetHandler.RejectBid)
					r.Post("/cancel-acceptance", assetHandler.CancelAcceptance)
				})
			})
		})

		r.With(require(auth.PermissionBrowseMarketplace)).Get("/marketplace", assetHandler.Marketplace)

		bidHandler := handlers.NewBidHandler(s.svc, s.logger)
		r.Route("/bids", func(r chi.Router) {
			r.With(require(auth.PermissionPlaceBids)).Get("/", bidHandler.ListMine)
			r.Route("/{bidID}", func(r chi.Router) {
				r.Get("/", bidHandler.Get)
				r.With(require(auth.PermissionConfirmPayment)).Patch("/payment", bidHandler.ConfirmPayment)
				r.With(require(auth.PermissionResendNotifications)).Post("/notifications/resend", bidHandler.ResendNotifications)
			})
		})

		notificationHandler := handlers.NewNotificationHandler(s.svc, s.logger)
		r.Route("/notifications", func(r chi.Router) {
			r.Get("/", notificationHandler.List)
			r.Post("/{notificationID}/read", notificationHandler.MarkRead)
		})
	})

	s.router = r
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.APIHost, s.config.APIPort)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	timeout := s.config.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
