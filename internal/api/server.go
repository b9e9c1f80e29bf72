// Package api provides the HTTP control surface of command-bot: queueing
// API tasks, cancelling and listing tasks, managing access tokens and a
// websocket stream of task events.
package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/paritytech/command-bot-sub000/internal/engine"
	boterrors "github.com/paritytech/command-bot-sub000/internal/errors"
	"github.com/paritytech/command-bot-sub000/internal/events"
	"github.com/paritytech/command-bot-sub000/internal/task"
)

const (
	maxBodySize     = 1 << 20
	shutdownTimeout = 5 * time.Second
)

// Engine is the part of the orchestration engine the API drives.
type Engine interface {
	Enqueue(ctx context.Context, t *task.Task) (*engine.Enqueued, error)
	NextID() string
	Cancel(ctx context.Context, id string) error
	Tasks(ctx context.Context) ([]*task.Task, error)
	Version() string
}

// TokenStore persists API access tokens.
type TokenStore interface {
	CreateAccessToken(ctx context.Context, token, label string) error
	AccessTokenExists(ctx context.Context, token string) (bool, error)
	DeleteAccessToken(ctx context.Context, token string) (bool, error)
}

// Config holds server configuration.
type Config struct {
	Addr string
	// MasterToken authorizes access token management. Token endpoints are
	// disabled when empty.
	MasterToken string
	// CORSOrigin is sent as Access-Control-Allow-Origin; "*" when empty.
	CORSOrigin string
	Logger     *slog.Logger
}

// Server is the command-bot API server.
type Server struct {
	addr        string
	corsOrigin  string
	masterToken string
	mux         *http.ServeMux
	logger      *slog.Logger

	engine    Engine
	tokens    TokenStore
	publisher events.Publisher
	wsHandler *WSHandler
}

// New creates a new API server.
func New(cfg Config, eng Engine, tokens TokenStore, pub events.Publisher) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if pub == nil {
		pub = events.NopPublisher{}
	}
	origin := cfg.CORSOrigin
	if origin == "" {
		origin = "*"
	}

	s := &Server{
		addr:        cfg.Addr,
		corsOrigin:  origin,
		masterToken: cfg.MasterToken,
		mux:         http.NewServeMux(),
		logger:      logger,
		engine:      eng,
		tokens:      tokens,
		publisher:   pub,
	}
	s.wsHandler = NewWSHandler(pub, eng, logger)
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	cors := func(h http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Access-Control-Allow-Origin", s.corsOrigin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusOK)
				return
			}
			h(w, r)
		}
	}

	s.mux.HandleFunc("GET /api/health", cors(s.handleHealth))
	s.mux.HandleFunc("OPTIONS /api/", cors(func(http.ResponseWriter, *http.Request) {}))

	s.mux.HandleFunc("POST /api/queue", cors(s.requireToken(s.handleQueue)))
	s.mux.HandleFunc("DELETE /api/task/{id}", cors(s.requireToken(s.handleCancelTask)))
	s.mux.HandleFunc("GET /api/tasks", cors(s.requireToken(s.handleListTasks)))

	s.mux.HandleFunc("POST /api/access-token", cors(s.requireMaster(s.handleCreateToken)))
	s.mux.HandleFunc("DELETE /api/access-token/{token}", cors(s.requireMaster(s.handleDeleteToken)))

	s.mux.Handle("GET /api/ws", s.requireToken(s.wsHandler.ServeHTTP))
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// StartContext serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) StartContext(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.wsHandler.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("starting API server", "addr", s.addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(h, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireToken accepts registered access tokens and the master token.
func (s *Server) requireToken(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			HandleError(w, boterrors.ErrInvalidToken())
			return
		}
		if s.isMaster(token) {
			h(w, r)
			return
		}
		ok, err := s.tokens.AccessTokenExists(r.Context(), token)
		if err != nil {
			s.logger.Error("check access token", "error", err)
			JSONError(w, "could not verify access token", http.StatusInternalServerError)
			return
		}
		if !ok {
			HandleError(w, boterrors.ErrInvalidToken())
			return
		}
		h(w, r)
	}
}

func (s *Server) requireMaster(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !s.isMaster(bearerToken(r)) {
			HandleError(w, boterrors.ErrInvalidToken())
			return
		}
		h(w, r)
	}
}

func (s *Server) isMaster(token string) bool {
	if s.masterToken == "" || token == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.masterToken)) == 1
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	JSONResponse(w, map[string]string{
		"status":  "ok",
		"version": s.engine.Version(),
	})
}
