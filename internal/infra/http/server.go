// Package http serves the HTTP intake: Discord interactions, the debug trigger,
// the job status API, health and metrics.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"async-ask-bot/internal/infra/adapters/discord"
	"async-ask-bot/internal/infra/i18n"
	"async-ask-bot/internal/usecase"
)

type Options struct {
	Addr            string
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	DebugEnabled    bool
}

type Server struct {
	opts     Options
	intake   usecase.IntakeUseCase
	verifier *discord.Verifier // nil disables /interactions
	texts    *i18n.Bundle
	auth     *AuthManager // nil or disabled hides /api/v1 and /mcp
	mcp      http.Handler
	log      *zerolog.Logger

	srv *http.Server
}

func NewServer(opts Options, intake usecase.IntakeUseCase, verifier *discord.Verifier, texts *i18n.Bundle, auth *AuthManager, log *zerolog.Logger) (*Server, error) {
	if intake == nil {
		return nil, errors.New("intake use case is nil")
	}
	if texts == nil {
		b, err := i18n.LoadBundle(i18n.LocalesFS)
		if err != nil {
			return nil, err
		}
		texts = b
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 15 * time.Second
	}
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "http").Logger()
	return &Server{opts: opts, intake: intake, verifier: verifier, texts: texts, auth: auth, log: &l}, nil
}

// MountMCP serves h at /mcp behind the same bearer auth as the job API.
func (s *Server) MountMCP(h http.Handler) { s.mcp = h }

// Routes builds the router. Exposed for tests.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID, Recover(s.log), RequestLog(s.log), Timeout(s.opts.RequestTimeout))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", promhttp.Handler())

	if s.verifier != nil {
		r.Post("/interactions", s.handleInteraction)
	}
	if s.opts.DebugEnabled {
		r.Get("/debug", s.handleDebug)
	}
	if s.auth.Enabled() {
		r.Route("/api/v1", func(r chi.Router) {
			r.Use(s.auth.RequireJWT)
			r.Get("/jobs/{id}", s.handleJobStatus)
		})
		if s.mcp != nil {
			r.With(s.auth.RequireJWT).Handle("/mcp", s.mcp)
		}
	}
	return r
}

// Start blocks until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	s.srv = &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	s.log.Info().Str("addr", s.opts.Addr).Msg("http server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.ShutdownTimeout)
	defer cancel()
	return s.srv.Shutdown(ctx)
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
