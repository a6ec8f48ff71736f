// ABOUTME: HTTP server wiring for the chat API
// ABOUTME: Registers routes with optional JWT auth on bot management

package httpapi

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ttc-labs/ttc-chat/internal/auth"
	"github.com/ttc-labs/ttc-chat/internal/chat"
	"github.com/ttc-labs/ttc-chat/internal/dedupe"
	"github.com/ttc-labs/ttc-chat/internal/store"
)

// Retry window for client-supplied idempotency keys on chat turns.
const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 10000
)

// Server exposes the chat service and bot registry over HTTP.
type Server struct {
	chat     *chat.Service
	store    store.Store
	verifier auth.TokenVerifier // nil disables auth
	dedupe   *dedupe.Cache
	logger   *slog.Logger
}

// NewServer creates an HTTP API server. A nil verifier leaves the bot
// management endpoints unauthenticated.
func NewServer(chatSvc *chat.Service, st store.Store, verifier auth.TokenVerifier, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		chat:     chatSvc,
		store:    st,
		verifier: verifier,
		dedupe:   dedupe.New(dedupeTTL, dedupeMaxSize),
		logger:   logger.With("component", "httpapi"),
	}
}

// Close stops the background goroutines owned by the server.
func (s *Server) Close() {
	s.dedupe.Close()
}

// RegisterRoutes registers all API routes on the mux. Bot management
// routes go through JWT auth when a verifier is configured; chat and
// conversation routes are always open.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/conversations", s.handleConversations)
	mux.HandleFunc("/conversations/", s.handleConversationRoutes)
	mux.HandleFunc("/chat/", s.handleChatRoutes)

	if s.verifier != nil {
		authMiddleware := auth.HTTPAuthMiddleware(s.verifier)
		mux.Handle("/bots", authMiddleware(http.HandlerFunc(s.handleBots)))
		mux.Handle("/bots/", authMiddleware(http.HandlerFunc(s.handleBotRoutes)))
		s.logger.Info("bot management routes registered with JWT auth")
	} else {
		mux.HandleFunc("/bots", s.handleBots)
		mux.HandleFunc("/bots/", s.handleBotRoutes)
		s.logger.Warn("bot management routes registered without authentication")
	}
}

// Handler returns the complete HTTP handler for the API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return mux
}

// NewHTTPServer builds an http.Server with sane timeouts. Write timeout
// stays unset so long-lived chat streams are not cut off.
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}
