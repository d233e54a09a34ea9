package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/jdziat/agent-escrow/pkg/admin"
	"github.com/jdziat/agent-escrow/pkg/ledger"
	"github.com/jdziat/agent-escrow/pkg/resolver"
)

type server struct {
	ledger   *ledger.Ledger
	resolver *resolver.Resolver
	admin    *admin.Admin
	config   *config
	logger   *slog.Logger
}

// Handler creates an http.Handler exposing l, r and a.
//
// Usage:
//
//	http.ListenAndServe(":8080", api.Handler(l, r, a))
func Handler(l *ledger.Ledger, r *resolver.Resolver, a *admin.Admin, opts ...Option) http.Handler {
	cfg := &config{
		logger:       l.Logger(),
		pingInterval: defaultPingInterval,
		maxBodyBytes: 4 << 20,
		window:       defaultSignatureWindow,
		clock:        time.Now,
	}
	for _, opt := range opts {
		opt.apply(cfg)
	}

	s := &server{ledger: l, resolver: r, admin: a, config: cfg, logger: cfg.logger}

	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := router.PathPrefix("/v1").Subrouter()

	// Jobs
	v1.Handle("/jobs", s.signed(s.handleCreateJob)).Methods(http.MethodPost)
	v1.HandleFunc("/jobs", s.handleListJobs).Methods(http.MethodGet)
	v1.HandleFunc("/jobs/{id:[0-9]+}", s.handleGetJob).Methods(http.MethodGet)
	v1.HandleFunc("/requests/{handle}", s.handleGetRequest).Methods(http.MethodGet)

	// Oracle
	v1.Handle("/oracle/callback", s.signed(s.handleCallback)).Methods(http.MethodPost)

	// Admin
	v1.Handle("/admin/{setting}", s.signed(s.handleAdmin)).Methods(http.MethodPut)
	v1.HandleFunc("/settings", s.handleSettings).Methods(http.MethodGet)

	// Outbox and reporting
	v1.HandleFunc("/notifications", s.handleNotifications).Methods(http.MethodGet)
	v1.HandleFunc("/events", s.handleEvents).Methods(http.MethodGet)
	v1.HandleFunc("/escrow", s.handleEscrow).Methods(http.MethodGet)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, http.StatusNotFound, "route not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErrorStatus(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	c := cors.New(cors.Options{
		AllowedOrigins: cfg.origins(),
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", SignatureHeader, TimestampHeader, NonceHeader},
	})

	// HTTP/2 over cleartext for clients behind plain-text proxies.
	h := h2c.NewHandler(c.Handler(router), &http2.Server{})

	if cfg.middleware != nil {
		return cfg.middleware(h)
	}
	return h
}

func (c *config) origins() []string {
	if len(c.allowedOrigins) == 0 {
		return []string{"*"}
	}
	return c.allowedOrigins
}

func (c *config) originAllowed(origin string) bool {
	for _, o := range c.origins() {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.ledger.Storage().GetSettings(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
