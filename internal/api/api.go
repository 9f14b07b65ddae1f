// Package api is the HTTP control surface for the auto-link pipeline.
package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/matching"
	"solana-autolink/internal/storage"
)

// Matcher is the matching engine surface the API drives.
type Matcher interface {
	ProcessPending(ctx context.Context, opts matching.ProcessOptions) (*matching.BatchStats, error)
	ResolveManualReview(ctx context.Context, signature, resolution, userID, walletID string) (*domain.PendingTransferLink, error)
}

// Subscriber is the stream subscription surface the API drives.
type Subscriber interface {
	Subscribe(ctx context.Context, userID, address string, kind domain.SubscriptionType, signature string) (*domain.StreamSubscription, error)
	Unsubscribe(ctx context.Context, userID, address string, kind domain.SubscriptionType) error
}

// Server holds the handlers' dependencies.
type Server struct {
	matcher    Matcher
	subscriber Subscriber
	links      storage.LinkStore
	settings   storage.SettingsStore
	wallets    storage.WalletStore
	logger     *log.Logger
}

// Options contains configuration for creating a Server.
type Options struct {
	Matcher       Matcher
	Subscriber    Subscriber
	LinkStore     storage.LinkStore
	SettingsStore storage.SettingsStore
	WalletStore   storage.WalletStore
	Logger        *log.Logger
}

// NewServer creates a new API server.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		matcher:    opts.Matcher,
		subscriber: opts.Subscriber,
		links:      opts.LinkStore,
		settings:   opts.SettingsStore,
		wallets:    opts.WalletStore,
		logger:     logger,
	}
}

// Router builds the chi router for the control surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Route("/auto-link", func(r chi.Router) {
		r.Post("/", s.handleAutoLinkAction)
		r.Get("/", s.handleAutoLinkStatus)
		r.Put("/", s.handleSettingsUpsert)
	})
	r.Route("/subscriptions", func(r chi.Router) {
		r.Post("/", s.handleSubscribe)
		r.Delete("/", s.handleUnsubscribe)
	})

	return r
}

// errorResponse is the JSON error envelope.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Printf("Error encoding response: %v", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}
