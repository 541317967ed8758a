package server

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/securecookie"
	"github.com/gorilla/sessions"
	"golang.org/x/sync/errgroup"

	"github.com/attrib-app/attrib/internal/attribution"
	"github.com/attrib-app/attrib/internal/model"
	"github.com/attrib-app/attrib/internal/store"
)

// Config holds everything the web app needs.
type Config struct {
	Store          store.Store
	Port           int
	SessionSecret  string
	MaxUploadBytes int64
	UploadTTL      time.Duration
	ShapleySeed    uint64
	ShapleyWorkers int
	Logger         *slog.Logger
}

type Server struct {
	store        store.Store
	sessionStore *sessions.CookieStore
	port         int
	maxUpload    int64
	uploadTTL    time.Duration
	seed         uint64
	workers      int
	logger       *slog.Logger
	pages        *template.Template
	layout       *template.Template
	router       chi.Router
	startTime    time.Time
}

// New builds the server and its routes. Templates are parsed up front so a
// broken template fails here rather than on the first request.
func New(cfg Config) (*Server, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	secret := []byte(cfg.SessionSecret)
	if len(secret) == 0 {
		secret = securecookie.GenerateRandomKey(32)
		logger.Debug("no session secret configured, using a random key")
	}
	sessionStore := sessions.NewCookieStore(secret)
	sessionStore.MaxAge(int(cfg.UploadTTL / time.Second))
	sessionStore.Options.Path = "/"
	sessionStore.Options.HttpOnly = true
	sessionStore.Options.SameSite = http.SameSiteLaxMode

	layout, pages, err := parseTemplates()
	if err != nil {
		return nil, err
	}

	srv := &Server{
		store:        cfg.Store,
		sessionStore: sessionStore,
		port:         cfg.Port,
		maxUpload:    cfg.MaxUploadBytes,
		uploadTTL:    cfg.UploadTTL,
		seed:         cfg.ShapleySeed,
		workers:      cfg.ShapleyWorkers,
		logger:       logger,
		pages:        pages,
		layout:       layout,
		startTime:    time.Now(),
	}

	srv.setupRoutes()
	return srv, nil
}

func (s *Server) setupRoutes() {
	r := chi.NewMux()
	r.Use(
		middleware.RequestLogger(&middleware.DefaultLogFormatter{
			Logger:  slog.NewLogLogger(s.logger.Handler(), slog.LevelInfo),
			NoColor: true,
		}),
		middleware.Recoverer,
		middleware.Compress(5),
	)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)
	r.Post("/upload", s.handleUpload)
	r.Post("/run", s.handleRun)
	r.Post("/export", s.handleExport)
	r.Get("/export.csv", s.handleExportCSV)
	r.Post("/feedback/{event}", s.handleFeedback)

	s.router = r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) StartTime() time.Time {
	return s.startTime
}

// library returns the attribution collaborator configured for one run.
func (s *Server) library(req model.Request) *attribution.Library {
	return &attribution.Library{
		JourneyCol: req.JourneyCol,
		Seed:       s.seed,
		Workers:    s.workers,
	}
}

// Serve starts the server and blocks until the context is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.port)
	s.logger.Info("starting server", "addr", fmt.Sprintf("http://localhost:%d", s.port))

	eg, egctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
		BaseContext: func(_ net.Listener) context.Context {
			return egctx
		},
		ReadHeaderTimeout: 10 * time.Second,
	}

	eg.Go(func() error {
		return s.purgeUploads(egctx)
	})

	eg.Go(func() error {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// Graceful shutdown
	eg.Go(func() error {
		<-egctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Debug("shutting down server...")
		return srv.Shutdown(shutdownCtx)
	})

	return eg.Wait()
}

// purgeUploads drops cached uploads older than the upload TTL until ctx ends.
func (s *Server) purgeUploads(ctx context.Context) error {
	interval := s.uploadTTL / 2
	if interval < time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n, err := s.store.PurgeExpired(ctx, time.Now().Add(-s.uploadTTL))
			if err != nil {
				s.logger.Error("failed to purge uploads", "error", err)
				continue
			}
			if n > 0 {
				s.logger.Debug("purged expired uploads", "count", n)
			}
		}
	}
}
