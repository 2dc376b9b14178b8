// Package server wires the HTTP surface: one path segment per configured
// chain, routed to the shared dispatcher against that chain's State, plus
// an ungated health endpoint and a metrics endpoint that shares the chain
// routes' optional bearer-token gate.
package server

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/rpccache/gateway/internal/chain"
	"github.com/rpccache/gateway/internal/dispatcher"
	"github.com/rpccache/gateway/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// AppState is the fully-built, read-only set of chains this process
// serves, keyed by upper-cased chain name for case-insensitive lookup.
type AppState struct {
	Chains map[string]*chain.State
}

func (a *AppState) lookup(name string) (*chain.State, bool) {
	cs, ok := a.Chains[strings.ToUpper(name)]
	return cs, ok
}

type Server struct {
	logger     *zap.Logger
	httpServer *http.Server
}

// New builds the chi router and wraps it in an http.Server bound to addr.
// d runs one chain's worth of request/response cycle; authToken,
// if non-empty, gates /metrics (and every chain route) behind a bearer
// token check.
func New(logger *zap.Logger, addr string, state *AppState, d *dispatcher.Dispatcher, authToken string) *Server {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	r.Group(func(r chi.Router) {
		if authToken != "" {
			r.Use(bearerAuth(authToken))
		}

		r.Handle("/metrics", promhttp.Handler())
		r.Post("/{chain}", chainHandler(logger, state, d))
	})

	return &Server{
		logger: logger,
		httpServer: &http.Server{
			Addr:    addr,
			Handler: r,
		},
	}
}

func bearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") != "Bearer "+token {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

const maxBodyBytes = 10 << 20

func chainHandler(logger *zap.Logger, state *AppState, d *dispatcher.Dispatcher) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "chain")
		cs, ok := state.lookup(name)
		if !ok {
			http.Error(w, "endpoint not supported.", http.StatusNotFound)
			return
		}

		if cs.Limiter != nil {
			if err := cs.Limiter.Wait(r.Context()); err != nil {
				http.Error(w, "rate limit wait aborted", http.StatusTooManyRequests)
				return
			}
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		if len(body) > maxBodyBytes {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return
		}

		out, err := d.Dispatch(r.Context(), cs, body, metrics.Observer{})
		if err != nil {
			logger.Error("dispatch failed", zap.String("chain", cs.Name), zap.Error(err))
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.Write(out)
	}
}

func (s *Server) Start() error {
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
