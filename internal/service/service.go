// Package service exposes provider invocations over HTTP for collaborators
// that cannot link the provider package directly.
package service

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"phobos.org.uk/foreman/internal/api"
	"phobos.org.uk/foreman/internal/config"
	"phobos.org.uk/foreman/internal/logging"
	"phobos.org.uk/foreman/internal/metrics"
	"phobos.org.uk/foreman/internal/provider"
	"phobos.org.uk/foreman/internal/sessionlog"
	"phobos.org.uk/foreman/internal/tlsutil"
)

// StatusResponse represents the /status response
type StatusResponse struct {
	Type          string       `json:"type"`
	Interfaces    []string     `json:"interfaces"`
	Version       string       `json:"version"`
	UptimeSeconds float64      `json:"uptime_seconds"`
	Running       int          `json:"running"`
	Config        StatusConfig `json:"config"`
}

// StatusConfig shows service config in status
type StatusConfig struct {
	Port            int    `json:"port"`
	DefaultProvider string `json:"default_provider"`
	SessionLogs     bool   `json:"session_logs"`
	TLS             bool   `json:"tls"`
}

// DefaultRetainedInvocations is how many finished invocations stay
// queryable before the oldest are dropped.
const DefaultRetainedInvocations = 500

// Options override the collaborators a Service builds for itself.
type Options struct {
	Logger   *logging.Logger
	Registry *provider.Registry
	// Retain caps finished invocations kept in memory. Running ones are
	// never dropped. Zero means DefaultRetainedInvocations.
	Retain int
	// Registerer and Gatherer back the metrics endpoint. Both default to a
	// private prometheus registry.
	Registerer prometheus.Registerer
	Gatherer   prometheus.Gatherer
}

// Service is the HTTP front end for provider invocations
type Service struct {
	config    *config.Config
	version   string
	startTime time.Time
	log       *logging.Logger
	registry  *provider.Registry
	metrics   *metrics.Metrics
	gatherer  prometheus.Gatherer
	auth      *tokenAuth
	retain    int

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.RWMutex
	invocations map[string]*invocation
	wg          sync.WaitGroup

	server *http.Server
}

// New creates a Service. Zero-value options build a private logger, metrics
// registry and provider registry from cfg.
func New(cfg *config.Config, version string, opts Options) *Service {
	log := opts.Logger
	if log == nil {
		level := logging.ParseLevel(cfg.LogLevel)
		if lvl := os.Getenv("FOREMAN_LOG_LEVEL"); lvl != "" {
			level = logging.ParseLevel(lvl)
		}
		log = logging.New(logging.Config{
			Output:     os.Stderr,
			Level:      level,
			Component:  "service",
			MaxEntries: 1000,
		})
	}

	reg, gatherer := opts.Registerer, opts.Gatherer
	if reg == nil || gatherer == nil {
		r := prometheus.NewRegistry()
		reg, gatherer = r, r
	}
	m := metrics.New(reg)

	registry := opts.Registry
	if registry == nil {
		registry = provider.NewRegistry(provider.OptionsFromConfig(cfg, log, m))
	}

	if cfg.SessionLogDir != "" {
		if removed, err := sessionlog.Prune(cfg.SessionLogDir, sessionlog.MaxLogFiles); err != nil {
			log.Warn("failed to prune session logs", map[string]any{"error": err.Error()})
		} else if removed > 0 {
			log.Info("pruned session logs", map[string]any{"removed": removed})
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		config:      cfg,
		version:     version,
		startTime:   time.Now(),
		log:         log,
		registry:    registry,
		metrics:     m,
		gatherer:    gatherer,
		ctx:         ctx,
		cancel:      cancel,
		invocations: make(map[string]*invocation),
		retain:      opts.Retain,
	}
	if s.retain <= 0 {
		s.retain = DefaultRetainedInvocations
	}
	if cfg.TokenHash != "" {
		s.auth = &tokenAuth{hash: cfg.TokenHash}
	}
	return s
}

// Router returns the HTTP router
func (s *Service) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/status", s.handleStatus)

	r.Group(func(r chi.Router) {
		if s.auth != nil {
			r.Use(s.auth.middleware)
		}

		r.Get("/providers", s.handleProviders)

		r.Post("/invocations", s.handleCreateInvocation)
		r.Get("/invocations", s.handleListInvocations)
		r.Get("/invocations/{id}", s.handleGetInvocation)
		r.Post("/invocations/{id}/cancel", s.handleCancelInvocation)

		r.Get("/sessions", s.handleListSessions)
		r.Get("/sessions/{logID}", s.handleGetSession)

		r.Get("/logs", s.handleLogs)
		r.Get("/logs/stats", s.handleLogStats)

		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	})

	return r
}

// Start starts the HTTP server and blocks until it stops
func (s *Service) Start() error {
	addr := net.JoinHostPort(s.config.Bind, strconv.Itoa(s.config.Port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.mu.Lock()
	s.server = srv
	s.mu.Unlock()

	s.log.Info("service starting", map[string]any{
		"addr":             addr,
		"version":          s.version,
		"default_provider": s.config.DefaultProvider,
		"auth":             s.auth != nil,
		"tls":              s.config.TLS.Enabled,
	})
	if !s.config.TLS.Enabled {
		return srv.ListenAndServe()
	}

	if err := tlsutil.EnsureCert(s.config.TLS.Cert, s.config.TLS.Key); err != nil {
		return fmt.Errorf("preparing TLS certificate: %w", err)
	}
	srv.TLSConfig = tlsutil.ServerConfig()
	return srv.ListenAndServeTLS(s.config.TLS.Cert, s.config.TLS.Key)
}

// Shutdown cancels running invocations, waits for them to finish and stops
// the server.
func (s *Service) Shutdown(ctx context.Context) error {
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.log.Warn("shutdown timed out waiting for invocations", nil)
	}

	s.mu.RLock()
	srv := s.server
	s.mu.RUnlock()
	if srv != nil {
		return srv.Shutdown(ctx)
	}
	return nil
}

// handleStatus returns version, uptime and how many invocations are running.
func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	running := 0
	for _, inv := range s.invocations {
		if inv.snapshot().State == stateRunning {
			running++
		}
	}
	s.mu.RUnlock()

	api.WriteJSON(w, http.StatusOK, StatusResponse{
		Type:          api.TypeOrchestrator,
		Interfaces:    []string{api.InterfaceStatusable, api.InterfaceInvokable, api.InterfaceObservable},
		Version:       s.version,
		UptimeSeconds: time.Since(s.startTime).Seconds(),
		Running:       running,
		Config: StatusConfig{
			Port:            s.config.Port,
			DefaultProvider: s.config.DefaultProvider,
			SessionLogs:     s.config.SessionLogDir != "",
			TLS:             s.config.TLS.Enabled,
		},
	})
}

func (s *Service) defaultProvider() provider.Type {
	if t, err := provider.ParseType(s.config.DefaultProvider); err == nil {
		return t
	}
	return provider.TypeClaude
}

func notFound(w http.ResponseWriter, kind, id string) {
	api.WriteError(w, http.StatusNotFound, api.ErrorNotFound, fmt.Sprintf("%s %s not found", kind, id))
}
