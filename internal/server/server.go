// Package server implements the event chat REST API on top of a chatlog
// Store. It serves the /event-chats routes the polling client consumes, plus
// health and Prometheus endpoints.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/gameday/event-chat/internal/chatlog"
	"github.com/gameday/event-chat/internal/messaging"
	"github.com/gameday/event-chat/internal/metrics"
	"github.com/gameday/event-chat/internal/ratelimit"
)

// Config holds HTTP server tuning parameters.
type Config struct {
	ListenAddr   string        // host:port to bind (default: ":8080")
	ReadTimeout  time.Duration // max time to read a request (default: 10s)
	WriteTimeout time.Duration // max time to write a response (default: 10s)
	SendRule     ratelimit.Rule // per-user limit on POST; zero Limit disables
	DeleteRule   ratelimit.Rule // per-user limit on DELETE; zero Limit disables
}

// DefaultConfig returns sensible defaults for the chat API.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendRule:     ratelimit.RuleSend,
		DeleteRule:   ratelimit.RuleDelete,
	}
}

// Limiter decides whether a user may perform another action.
type Limiter interface {
	Allow(ctx context.Context, identifier string, rule ratelimit.Rule) (bool, error)
}

// Publisher receives chat events after they are committed.
type Publisher interface {
	PublishChatEvent(ev messaging.ChatEvent) error
}

// Option configures a Server.
type Option func(*Server)

// WithLimiter enables per-user send rate limiting.
func WithLimiter(l Limiter) Option {
	return func(s *Server) { s.limiter = l }
}

// WithPublisher enables the chat event feed.
func WithPublisher(p Publisher) Option {
	return func(s *Server) { s.feed = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// Server is the chat API HTTP server.
type Server struct {
	config  Config
	store   chatlog.Store
	limiter Limiter
	feed    Publisher
	logger  *zap.Logger

	handler    http.Handler
	httpServer *http.Server
}

// New creates a Server backed by store.
func New(config Config, store chatlog.Store, opts ...Option) *Server {
	s := &Server{
		config: config,
		store:  store,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("server")

	mux := http.NewServeMux()
	s.route(mux, "GET /event-chats/event/{eventId}", s.handleList)
	s.route(mux, "POST /event-chats/{$}", s.requireUser(s.handleCreate))
	s.route(mux, "POST /event-chats", s.requireUser(s.handleCreate))
	s.route(mux, "GET /event-chats/{messageId}", s.handleGet)
	s.route(mux, "DELETE /event-chats/{messageId}", s.requireUser(s.handleDelete))
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())
	s.handler = s.withRequestID(mux)

	s.httpServer = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      s.handler,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}
	return s
}

// Handler returns the root handler, e.g. for httptest.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("listening",
		zap.String("addr", s.config.ListenAddr),
		zap.Bool("rate_limit", s.limiter != nil),
		zap.Bool("feed", s.feed != nil),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	return s.httpServer.Shutdown(ctx)
}
