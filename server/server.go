// Package server exposes the console over HTTP: JSON endpoints for every panel operation and
// a websocket stream of decoded contract events.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/smartcontractkit/contract-admin/console"
	"github.com/smartcontractkit/contract-admin/contracts"
	"github.com/smartcontractkit/contract-admin/operations"
	"github.com/smartcontractkit/contract-admin/panel"
	"github.com/smartcontractkit/contract-admin/pkg/logger"
	"github.com/smartcontractkit/contract-admin/roles"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 30 * time.Second
)

// Console is the part of console.Console the server depends on.
type Console interface {
	AccountInfo(ctx context.Context) (console.AccountInfo, error)
	Sections() []contracts.Section
	Section(key string) (contracts.Section, []*panel.Panel, error)
	Panel(key string) (*panel.Panel, error)
	Registry() *roles.Registry
	History() ([]operations.Report[any, any], error)
	Report(id string) (operations.Report[any, any], error)
	TxURL(hash common.Hash) string
}

// Server routes HTTP requests to the console.
type Server struct {
	console   Console
	validator *Validator
	lggr      logger.Logger
	router    *mux.Router
}

// New creates a Server with every route registered.
func New(c Console, lggr logger.Logger) *Server {
	s := &Server{
		console:   c,
		validator: NewValidator(),
		lggr:      lggr,
		router:    mux.NewRouter(),
	}
	s.routes()

	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(Recovery(s.lggr))
	r.Use(RequestID)
	r.Use(Logging(s.lggr))

	r.HandleFunc("/health", s.health).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/account", s.account).Methods(http.MethodGet)
	api.HandleFunc("/sections", s.sections).Methods(http.MethodGet)
	api.HandleFunc("/sections/{section}", s.section).Methods(http.MethodGet)
	api.HandleFunc("/panels/{panel}", s.panel).Methods(http.MethodGet)
	api.HandleFunc("/panels/{panel}/refresh", s.refresh).Methods(http.MethodPost)
	api.HandleFunc("/panels/{panel}/actions/{action}", s.submit).Methods(http.MethodPost)
	api.HandleFunc("/panels/{panel}/roles", s.panelRoles).Methods(http.MethodGet)
	api.HandleFunc("/panels/{panel}/events", s.events).Methods(http.MethodGet)
	api.HandleFunc("/roles", s.roles).Methods(http.MethodGet)
	api.HandleFunc("/roles/hash", s.roleHash).Methods(http.MethodGet)
	api.HandleFunc("/history", s.history).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", s.report).Methods(http.MethodGet)

	r.HandleFunc("/ws/panels/{panel}/events", s.streamEvents).Methods(http.MethodGet)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		s.lggr.Infow("Server started", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	s.lggr.Infow("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	return nil
}
