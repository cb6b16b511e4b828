// Package server exposes the dispatcher over HTTP for hosts that trigger
// invocations remotely instead of from cron.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"connectrpc.com/grpchealth"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/stegverse/stegagents/internal/config"
	"github.com/stegverse/stegagents/internal/dispatch"
	"github.com/stegverse/stegagents/pkg/cerr"
	"github.com/stegverse/stegagents/pkg/clog"
)

// ShutdownTimeout bounds how long in-flight requests may take after the
// server is asked to stop.
const ShutdownTimeout = 10 * time.Second

type Server struct {
	env        *config.ServerEnv
	dispatcher *dispatch.Dispatcher
	now        func() time.Time
}

func NewServer(env *config.ServerEnv, dispatcher *dispatch.Dispatcher) *Server {
	return &Server{
		env:        env,
		dispatcher: dispatcher,
		now:        time.Now,
	}
}

// Handler returns the full HTTP handler tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Use(clog.SlogChiMiddleware())
		r.Post("/run", s.handleRun)
		r.Get("/agents", s.handleAgents)
		r.NotFound(func(w http.ResponseWriter, r *http.Request) {
			cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.NotFound, "not found", nil))
		})
	})

	mux := http.NewServeMux()
	mux.Handle("/health", &HealthChecker{})
	mux.Handle("/api/", r)
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker()))

	return h2c.NewHandler(cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(s.apiKeyMiddleware(mux)), &http2.Server{})
}

// ListenAndServe serves until ctx is done and then shuts down gracefully.
// ctx is also the base context of every request.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.env.HTTPHost, s.env.HTTPPort)
	slog.Info("starting server", "addr", addr)

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	slog.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

type HealthChecker struct{}

func (hc *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.env.APIKey == "" || r.URL.Path == "/health" || r.URL.Path == "/grpc.health.v1.Health/Check" {
			next.ServeHTTP(w, r)
			return
		}
		apiKey := r.Header.Get("X-API-Key")
		if apiKey == "" {
			apiKey = strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		}
		if subtle.ConstantTimeCompare([]byte(apiKey), []byte(s.env.APIKey)) != 1 {
			cerr.WriteJSONError(r.Context(), w, cerr.NewError(cerr.Unauthenticated, "unauthorized", nil))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type runRequest struct {
	At   *time.Time        `json:"at"`
	Only []string          `json:"only"`
	Vars map[string]string `json:"vars"`
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req runRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			cerr.WriteJSONError(ctx, w, cerr.NewError(cerr.InvalidArgument, "invalid request body", err))
			return
		}
	}

	inv := dispatch.Invocation{Only: req.Only, Vars: req.Vars}
	if req.At != nil {
		inv.At = *req.At
	}
	report, err := s.dispatcher.Run(ctx, inv)
	if err != nil {
		cerr.WriteJSONError(ctx, w, err)
		return
	}
	clog.AddAttributes(ctx, map[string]any{
		"run_id":  report.RunID,
		"written": report.Count(dispatch.StatusWritten),
	})
	cerr.WriteJSON(ctx, w, report)
}

type agentsResponse struct {
	At     time.Time            `json:"at"`
	Agents []dispatch.AgentPlan `json:"agents"`
}

func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	at := s.now().UTC().Truncate(time.Second)
	plans, err := s.dispatcher.Plan(at)
	if err != nil {
		cerr.WriteJSONError(r.Context(), w, err)
		return
	}
	cerr.WriteJSON(r.Context(), w, agentsResponse{At: at, Agents: plans})
}
