// Package server exposes the nestling HTTP API: auth, record CRUD, baby
// profiles, growth series and snapshot image upload/serving. Routing is chi;
// request logging is zap; /metrics is Prometheus.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nestling/internal/auth"
	"nestling/internal/config"
	"nestling/internal/images"
	"nestling/internal/logging"
	"nestling/internal/store"
)

// Server holds the wired dependencies behind the HTTP API.
type Server struct {
	cfg     *config.Config
	store   *store.Store
	auth    *auth.Service
	images  *images.Storage
	logger  *zap.Logger
	metrics *apiMetrics
}

// New wires a server from its dependencies.
func New(cfg *config.Config, st *store.Store, authSvc *auth.Service, imgs *images.Storage, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		store:   st,
		auth:    authSvc,
		images:  imgs,
		logger:  logger,
		metrics: newAPIMetrics(),
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)
	r.Use(s.metricsMiddleware)

	r.Get("/healthz", s.handleHealth)
	if s.cfg.Server.Metrics {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))
	}

	// Stored snapshot images. URLs are content-addressed and unguessable
	// enough for a family deployment; auth happens at upload and record
	// access, not file fetch, so <img> tags work without headers.
	r.Handle(images.URLPrefix+"*", http.StripPrefix(images.URLPrefix,
		http.FileServer(http.Dir(s.images.Dir()))))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)

		// Everything below requires a session.
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)

			r.Post("/auth/logout", s.handleLogout)
			r.Get("/auth/me", s.handleMe)

			r.Get("/babies", s.handleListBabies)
			r.Post("/babies", s.handleCreateBaby)
			r.Get("/babies/{babyID}/profile", s.handleGetProfile)
			r.Put("/babies/{babyID}/profile", s.handleUpdateProfile)
			r.Get("/babies/{babyID}/records", s.handleListRecords)
			r.Get("/babies/{babyID}/snapshots", s.handleGetSnapshots)
			r.Get("/babies/{babyID}/measurements", s.handleGetMeasurements)
			r.Get("/babies/{babyID}/growth", s.handleGrowthSeries)

			r.Post("/records", s.handleAddRecord)
			r.Get("/records/{recordID}", s.handleGetRecord)
			r.Patch("/records/{recordID}", s.handleUpdateRecord)
			r.Delete("/records/{recordID}", s.handleDeleteRecord)

			r.Post("/images", s.handleUploadImage)
		})
	})

	return r
}

// Run serves the API until ctx is cancelled. Alongside the listener it runs
// the config watcher (logging hot reload) and a periodic session purge.
func (s *Server) Run(ctx context.Context, configPath string) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr,
		Handler:      s.Routes(),
		ReadTimeout:  s.cfg.GetReadTimeout(),
		WriteTimeout: s.cfg.GetWriteTimeout(),
	}

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("serving", zap.String("addr", srv.Addr))
		logging.Boot("HTTP server listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		return s.watchConfig(ctx, configPath)
	})

	g.Go(func() error {
		return s.purgeSessionsLoop(ctx)
	})

	return g.Wait()
}

// purgeSessionsLoop drops expired sessions hourly.
func (s *Server) purgeSessionsLoop(ctx context.Context) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.store.PurgeExpiredSessions()
			if err != nil {
				s.logger.Warn("session purge failed", zap.Error(err))
				continue
			}
			if n > 0 {
				s.logger.Info("purged expired sessions", zap.Int("count", n))
			}
		}
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats()
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "store unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"tables": stats,
	})
}
