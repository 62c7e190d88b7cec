package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/vidtube/apiserver/config"
	"github.com/vidtube/apiserver/internal/auth"
	"github.com/vidtube/apiserver/internal/db"
	"github.com/vidtube/apiserver/internal/events"
	"github.com/vidtube/apiserver/internal/handlers"
	"github.com/vidtube/apiserver/internal/logging"
	"github.com/vidtube/apiserver/internal/media"
	"github.com/vidtube/apiserver/internal/metrics"
	"github.com/vidtube/apiserver/internal/mq"
	"github.com/vidtube/apiserver/internal/services"
	"github.com/vidtube/apiserver/internal/storage"
	"github.com/vidtube/apiserver/internal/store"
)

// Server wraps the HTTP server, router and the process-scoped handles.
type Server struct {
	httpServer *http.Server
	router     *chi.Mux
	db         *sql.DB
	queue      *mq.MQ
	logger     zerolog.Logger
}

// New opens the database, storage and broker, and builds the router.
func New(ctx context.Context, cfg config.Config, logger zerolog.Logger) (*Server, error) {
	dbConn, err := db.Open(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	srv, err := build(ctx, cfg, logger, dbConn)
	if err != nil {
		_ = dbConn.Close()
		return nil, err
	}
	return srv, nil
}

func build(ctx context.Context, cfg config.Config, logger zerolog.Logger, dbConn *sql.DB) (*Server, error) {
	tokens, err := auth.NewTokens(
		cfg.Auth.AccessTokenSecret, cfg.Auth.AccessTokenExpiry,
		cfg.Auth.RefreshTokenSecret, cfg.Auth.RefreshTokenExpiry,
	)
	if err != nil {
		return nil, err
	}

	objectStorage, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}
	if err := objectStorage.EnsureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket %q: %w", objectStorage.Bucket(), err)
	}

	stager, err := media.NewStager(cfg.Upload.TempDir, cfg.Upload.MaxBytes)
	if err != nil {
		return nil, err
	}

	queue, err := mq.Open(ctx, cfg.MQ)
	switch {
	case errors.Is(err, mq.ErrDisabled):
		logger.Info().Msg("account events disabled")
	case err != nil:
		return nil, fmt.Errorf("init mq: %w", err)
	}

	var eventQueue events.Queue
	if queue != nil {
		eventQueue = queue
	}
	publisher := events.NewPublisher(eventQueue, logger)

	userRepo := store.NewUserRepository(dbConn)
	graphRepo := store.NewGraphRepository(dbConn)

	userService := services.NewUserService(userRepo, tokens)
	sessions := services.NewSessionManager(userService, userRepo, logger)
	relay := media.NewRelay(objectStorage, cfg.Storage.KeyPrefix, logger)
	accounts := services.NewAccountService(userService, sessions, relay, publisher, logger)
	graph := services.NewGraphService(graphRepo)
	authn := handlers.NewAuthenticator(userService)

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		middleware.RealIP,
		logging.Middleware(logger),
		metrics.Middleware,
		middleware.Recoverer,
		middleware.Timeout(60*time.Second),
	)
	router.Get("/healthz", handlers.Healthz)
	router.Handle("/metrics", metrics.Handler())
	router.Route("/api/v1/users", func(r chi.Router) {
		handlers.UserRouter(r, accounts, graph, authn, stager, handlers.CookieOptions{
			Secure:     cfg.Auth.SecureCookies,
			AccessTTL:  cfg.Auth.AccessTokenExpiry,
			RefreshTTL: cfg.Auth.RefreshTokenExpiry,
		})
	})

	port := cfg.ServerPort
	if port == 0 {
		port = 8080
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: httpServer,
		router:     router,
		db:         dbConn,
		queue:      queue,
		logger:     logger,
	}, nil
}

// Router exposes the chi router for route registration.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Start runs the HTTP server. It returns nil after a graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, then releases the broker and database.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.httpServer.Shutdown(ctx)
	if s.queue != nil {
		if closeErr := s.queue.Close(); closeErr != nil {
			s.logger.Warn().Err(closeErr).Msg("closing mq")
		}
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	return err
}
