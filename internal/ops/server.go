package ops

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/evtrade/auctioncore/pkg/logger"
)

const (
	readTimeout     = 5 * time.Second
	writeTimeout    = 10 * time.Second
	shutdownTimeout = 10 * time.Second
	probeTimeout    = 3 * time.Second
)

// Pinger is a dependency whose connectivity gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerParams configure the operational HTTP server shared by the worker
// binaries.
type ServerParams struct {
	Logger  *logger.Logger
	Port    string
	Service string
	// Readiness maps a dependency name to its pinger; /readyz fails when
	// any of them does.
	Readiness map[string]Pinger
}

// Server exposes /healthz, /readyz and /metrics.
type Server struct {
	logg      *logger.Logger
	service   string
	readiness map[string]Pinger
	http      *http.Server
}

// NewServer builds the ops server.
func NewServer(params ServerParams) (*Server, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Port == "" {
		return nil, fmt.Errorf("port required")
	}
	s := &Server{
		logg:      params.Logger,
		service:   params.Service,
		readiness: params.Readiness,
	}
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Get("/healthz", s.handleHealthz)
	router.Get("/readyz", s.handleReadyz)
	router.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         ":" + params.Port,
		Handler:      router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s, nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Run serves until the context is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return s.http.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"service": s.service,
	})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), probeTimeout)
	defer cancel()

	checks := make(map[string]string, len(s.readiness))
	healthy := true
	for name, pinger := range s.readiness {
		if err := pinger.Ping(ctx); err != nil {
			s.logg.Error(r.Context(), "readiness probe "+name, err)
			checks[name] = err.Error()
			healthy = false
			continue
		}
		checks[name] = "ok"
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, checks)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
