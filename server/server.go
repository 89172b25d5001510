// Package server exposes the persisted digests and the history ledger over a
// small read-only JSON API.
package server

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/go-pkgz/lgr"
	"github.com/go-pkgz/rest"
	"github.com/go-pkgz/rest/logger"
	"github.com/go-pkgz/routegroup"

	"github.com/aitides/aitides/pkg/domain"
	"github.com/aitides/aitides/pkg/repository"
)

// Server represents HTTP server instance
type Server struct {
	config  ConfigProvider
	store   Store
	version string
	debug   bool

	lock       sync.Mutex
	httpServer *http.Server
	router     *routegroup.Bundle
}

// Store is the read side of digest persistence.
type Store interface {
	GetDigest(ctx context.Context, date string) (domain.Digest, error)
	GetLatestDigest(ctx context.Context) (domain.Digest, error)
	ListHistory(ctx context.Context) ([]domain.HistoryEntry, error)
}

// ConfigProvider provides server configuration
type ConfigProvider interface {
	GetServerConfig() (listen string, timeout time.Duration)
}

// New initializes a new server instance
func New(cfg ConfigProvider, store Store, version string, debug bool) *Server {
	s := &Server{
		config:  cfg,
		store:   store,
		version: version,
		debug:   debug,
		router:  routegroup.New(http.NewServeMux()),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// Run starts the HTTP server and handles graceful shutdown
func (s *Server) Run(ctx context.Context) error {
	listen, timeout := s.config.GetServerConfig()
	log.Printf("[INFO] starting server on %s", listen)

	s.lock.Lock()
	s.httpServer = &http.Server{
		Addr:         listen,
		Handler:      s.router,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	}
	s.lock.Unlock()

	go func() {
		<-ctx.Done()
		log.Printf("[INFO] shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] server shutdown error: %v", err)
		}
	}()

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}

	return nil
}

// setupMiddleware configures standard middleware for the server
func (s *Server) setupMiddleware() {
	s.router.Use(rest.AppInfo("aitides", "aitides", s.version))
	s.router.Use(rest.Ping)

	if s.debug {
		s.router.Use(logger.New(logger.Log(lgr.Default()), logger.Prefix("[DEBUG]")).Handler)
	}

	s.router.Use(rest.Recoverer(lgr.Default()))
	s.router.Use(rest.Throttle(100))
	s.router.Use(rest.SizeLimit(1024 * 1024)) // 1MB
}

// setupRoutes configures application routes
func (s *Server) setupRoutes() {
	s.router.Mount("/api/v1").Route(func(r *routegroup.Bundle) {
		r.HandleFunc("GET /status", s.statusHandler)
		r.HandleFunc("GET /digest/latest", s.latestDigestHandler)
		r.HandleFunc("GET /digest/{date}", s.digestHandler)
		r.HandleFunc("GET /history", s.historyHandler)
	})
}

// statusHandler returns server status
func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	rest.RenderJSON(w, rest.JSON{
		"status":  "ok",
		"version": s.version,
		"time":    time.Now().UTC(),
	})
}

// latestDigestHandler returns the most recent digest
func (s *Server) latestDigestHandler(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.GetLatestDigest(r.Context())
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "no digest yet", http.StatusNotFound)
		return
	}
	if err != nil {
		lgr.Printf("[WARN] latest digest lookup failed: %v", err)
		http.Error(w, "failed to load digest", http.StatusInternalServerError)
		return
	}
	rest.RenderJSON(w, d)
}

// digestHandler returns the digest for one date (YYYY-MM-DD)
func (s *Server) digestHandler(w http.ResponseWriter, r *http.Request) {
	date := r.PathValue("date")
	if _, err := time.Parse("2006-01-02", date); err != nil {
		http.Error(w, "invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
		return
	}

	d, err := s.store.GetDigest(r.Context(), date)
	if errors.Is(err, repository.ErrNotFound) {
		http.Error(w, "no digest for "+date, http.StatusNotFound)
		return
	}
	if err != nil {
		lgr.Printf("[WARN] digest lookup for %s failed: %v", date, err)
		http.Error(w, "failed to load digest", http.StatusInternalServerError)
		return
	}
	rest.RenderJSON(w, d)
}

// historyHandler returns the run ledger, oldest first
func (s *Server) historyHandler(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ListHistory(r.Context())
	if err != nil {
		lgr.Printf("[WARN] history lookup failed: %v", err)
		http.Error(w, "failed to load history", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []domain.HistoryEntry{}
	}
	rest.RenderJSON(w, entries)
}
