// Package server exposes the lookup, data-access and operational services
// of an app.Container over HTTP.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-playground/validator/v10"

	"github.com/acessivel/mobility/internal/app"
	"github.com/acessivel/mobility/internal/logger"
	"github.com/acessivel/mobility/pkg/config"
)

// QuotaWarningHeader is set on every response while backend usage is near
// the daily limit.
const QuotaWarningHeader = "X-Quota-Warning"

type Server struct {
	c        *app.Container
	cfg      config.ServerConfig
	log      logger.Logger
	validate *validator.Validate
	handler  http.Handler
}

func New(c *app.Container) *Server {
	s := &Server{
		c:        c,
		cfg:      c.Config.Server,
		log:      c.Log.WithField("component", "server"),
		validate: validator.New(),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the configured router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger(s.log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", QuotaWarningHeader},
		MaxAge:         300,
	}))
	r.Use(s.quotaWarning)

	r.Get("/healthz", s.health)
	r.Handle("/metrics", s.c.Metrics.Handler())

	r.Route("/cep", func(r chi.Router) {
		r.Get("/search", s.searchCeps)
		r.Get("/{code}", s.getCep)
	})

	r.Route("/geocode", func(r chi.Router) {
		r.Get("/search", s.searchLocations)
		r.Get("/reverse", s.reverseGeocode)
		r.Get("/address", s.searchAddress)
		r.Get("/poi", s.searchPOI)
	})

	r.Get("/drivers/available", s.availableDrivers)

	r.Route("/users", func(r chi.Router) {
		r.Get("/nearby", s.nearbyUsers)
		r.Route("/{id}", func(r chi.Router) {
			r.Patch("/", s.updateUser)
			r.Get("/profile", s.userProfile)
			r.Get("/rides", s.rideHistory)
			r.Get("/rides/stats", s.rideStats)
		})
	})

	r.Get("/collections/{collection}/pages/{page}", s.collectionPage)
	r.Post("/batch", s.batch)

	r.Get("/quota", s.quotaUsage)
	r.Route("/cache", func(r chi.Router) {
		r.Get("/stats", s.cacheStats)
		r.Post("/clean", s.cleanCache)
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:      s.handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("address", ln.Addr().String()).Info("HTTP server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	timeout := s.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s.log.Info("Shutting down HTTP server")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
