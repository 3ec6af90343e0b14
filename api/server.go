// Package api exposes the desk as an HTTP JSON API on a Go 1.22 ServeMux.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/hupe1980/caredesk"
	"github.com/hupe1980/caredesk/auth"
	"github.com/hupe1980/caredesk/logging"
	"github.com/hupe1980/caredesk/metrics"
	"github.com/hupe1980/caredesk/supportagent"
	"github.com/hupe1980/caredesk/ticket"
)

// Desk is the part of *caredesk.Desk the API serves.
type Desk interface {
	CreateTicket(ctx context.Context, in caredesk.TicketInput) (*ticket.Ticket, error)
	ListTickets(ctx context.Context, filter ticket.Filter) ([]*ticket.Ticket, error)
	GetTicket(ctx context.Context, id string) (*ticket.Ticket, error)
	UpdateTicket(ctx context.Context, id string, patch ticket.Patch) (*ticket.Ticket, error)
	DeleteTicket(ctx context.Context, id string) error
	ReviewTicket(ctx context.Context, id string, in caredesk.ReviewInput) (*ticket.Ticket, error)
	ProcessTicket(ctx context.Context, ticketID, agentID string) (*caredesk.ProcessResult, error)
	DraftProposals(ctx context.Context, query string) (*caredesk.Proposals, error)

	CreateAgent(ctx context.Context, draft supportagent.Draft) (*supportagent.SupportAgent, error)
	ListAgents(ctx context.Context) ([]*supportagent.SupportAgent, error)
	GetAgent(ctx context.Context, id string) (*supportagent.SupportAgent, error)
	UpdateAgent(ctx context.Context, id string, patch supportagent.Patch) (*supportagent.SupportAgent, error)
}

// Options configures a Server.
type Options struct {
	Logger logging.Logger
	// Verifier enables bearer token auth when it has a secret.
	Verifier *auth.Verifier
	// Metrics records request metrics and mounts /metrics when set.
	Metrics *metrics.Metrics
	// Events serves the /api/events websocket stream when set.
	Events http.Handler
	// AllowedOrigins lists CORS origins; "*" allows any.
	AllowedOrigins []string
	// Tracing wraps the handler with otelhttp.
	Tracing bool
	// Version is reported by the health endpoint.
	Version string
}

// Server routes HTTP requests to the desk.
type Server struct {
	desk    Desk
	opts    Options
	logger  logging.Logger
	started time.Time
	handler http.Handler
}

// New builds a Server and its middleware chain.
func New(desk Desk, optFns ...func(o *Options)) *Server {
	opts := Options{
		Logger:  logging.NoOpLogger{},
		Version: "dev",
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	s := &Server{
		desk:    desk,
		opts:    opts,
		logger:  logging.OrNoOp(opts.Logger),
		started: time.Now(),
	}

	var h http.Handler = s.routes()
	if opts.Metrics != nil {
		h = opts.Metrics.Middleware(h)
	}
	if opts.Verifier != nil {
		h = opts.Verifier.Middleware(h)
	}
	h = s.loggingMiddleware(h)
	h = s.corsMiddleware(h)
	if opts.Tracing {
		h = otelhttp.NewHandler(h, "caredesk.http",
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				return r.Method + " " + r.URL.Path
			}),
		)
	}

	s.handler = h

	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.handler }

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.handler.ServeHTTP(w, r) }

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)

	mux.HandleFunc("GET /api/tickets", s.handleListTickets)
	mux.HandleFunc("POST /api/tickets", s.handleCreateTicket)
	mux.HandleFunc("GET /api/tickets/{id}", s.handleGetTicket)
	mux.HandleFunc("PUT /api/tickets/{id}", s.handleUpdateTicket)
	mux.HandleFunc("DELETE /api/tickets/{id}", s.handleDeleteTicket)
	mux.HandleFunc("POST /api/tickets/{id}/review", s.handleReviewTicket)

	mux.HandleFunc("GET /api/agents", s.handleListAgents)
	mux.HandleFunc("POST /api/agents", s.handleCreateAgent)
	mux.HandleFunc("GET /api/agents/{id}", s.handleGetAgent)
	mux.HandleFunc("PUT /api/agents/{id}", s.handleUpdateAgent)

	mux.HandleFunc("POST /api/generate-answers", s.handleGenerateAnswers)
	mux.HandleFunc("POST /api/proposals", s.handleProposals)

	if s.opts.Events != nil {
		mux.Handle("GET /api/events", s.opts.Events)
	}
	if s.opts.Metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	return mux
}

// loggingMiddleware logs every request with its status and duration.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newResponseRecorder(w)

		next.ServeHTTP(rec, r)

		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote", r.RemoteAddr,
		)
	})
}

// corsMiddleware handles CORS headers and answers preflight requests.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); origin != "" {
			switch {
			case slices.Contains(s.opts.AllowedOrigins, "*"):
				w.Header().Set("Access-Control-Allow-Origin", "*")
			case slices.Contains(s.opts.AllowedOrigins, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
		}

		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondError writes an {"error": ...} response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondMessage writes a {"message": ...} response, the shape of the item routes
func respondMessage(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"message": message})
}

// parseJSON parses a JSON request body
func parseJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	return dec.Decode(v)
}

func pathID(r *http.Request) string {
	return strings.TrimSpace(r.PathValue("id"))
}
