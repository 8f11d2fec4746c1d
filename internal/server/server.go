package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/yigit/problemportal/internal/bootstrap"
	"github.com/yigit/problemportal/internal/config"
	"github.com/yigit/problemportal/internal/db"
)

// Server holds the state for the HTTP server.
type Server struct {
	config *config.Config
	router *gin.Engine
	db     *db.DB
	redis  *redis.Client
	logger zerolog.Logger
	http   *http.Server
}

// NewServer creates and initializes a new server instance by calling bootstrap functions.
func NewServer() (*Server, error) {
	cfg, lgr, err := bootstrap.LoadConfigAndSetupLogger()
	if err != nil {
		return nil, fmt.Errorf("failed to load config or setup logger: %w", err)
	}

	ctx := context.Background()
	database, err := bootstrap.SetupDatabase(ctx, cfg, lgr)
	if err != nil {
		return nil, fmt.Errorf("failed to setup database: %w", err)
	}

	deps, err := bootstrap.BuildDependencies(ctx, cfg, database, lgr)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to setup dependencies: %w", err)
	}

	return &Server{
		config: cfg,
		router: bootstrap.SetupRouter(cfg, deps, lgr),
		db:     database,
		redis:  deps.Redis,
		logger: lgr,
	}, nil
}

// Run serves until the listener fails or SIGINT/SIGTERM arrives, then shuts
// down.
func (s *Server) Run() error {
	s.http = &http.Server{
		Addr:        ":" + s.config.Server.Port,
		Handler:     s.router,
		ReadTimeout: 30 * time.Second,
		// uploads and CSV downloads can be slow
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	serveErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.http.Addr).Str("backend", s.db.Backend()).Msg("HTTP server listening")
		serveErr <- s.http.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("error starting server: %w", err)
		}
	case <-ctx.Done():
		s.logger.Info().Msg("Shutdown signal received")
	}

	return s.Shutdown(context.Background())
}

// Shutdown stops accepting requests, then releases redis and the database.
// It waits at most 10 seconds for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	closers := []struct {
		name  string
		close func() error
	}{
		{"http", func() error {
			if s.http == nil {
				return nil
			}
			return s.http.Shutdown(ctx)
		}},
		{"redis", func() error {
			if s.redis == nil {
				return nil
			}
			return s.redis.Close()
		}},
		{"database", func() error {
			if s.db == nil {
				return nil
			}
			return s.db.Close()
		}},
	}

	var errs []error
	for _, c := range closers {
		if err := c.close(); err != nil {
			s.logger.Error().Err(err).Str("resource", c.name).Msg("Shutdown error")
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}

	s.logger.Info().Msg("Server stopped")
	return errors.Join(errs...)
}
