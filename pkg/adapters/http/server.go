// Package http exposes agents, conversations and their steps over a JSON API.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aretw0/tendril"
	"github.com/aretw0/tendril/internal/codec"
	"github.com/aretw0/tendril/internal/logging"
	"github.com/aretw0/tendril/pkg/domain"
	"github.com/aretw0/tendril/pkg/ports"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Conversations is the conversation service the API drives.
type Conversations interface {
	CreateConv(ctx context.Context, agentUID, title string) (*domain.Conversation, error)
	AddMessage(ctx context.Context, convID int64, text string) (*domain.Message, error)
	ListMessages(ctx context.Context, convID int64) ([]*domain.Message, error)
	ListSteps(ctx context.Context, convID int64) ([]*domain.Step, error)
}

// Agents lists the configured agents.
type Agents interface {
	List(ctx context.Context) ([]*domain.Agent, error)
	GetByUID(ctx context.Context, uid string) (*domain.Agent, error)
}

// Server holds the handlers' dependencies.
type Server struct {
	convs    Conversations
	agents   Agents
	hub      ports.Hub
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the handler.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithHub enables GET /convs/{id}/events, streaming work events as SSE.
func WithHub(h ports.Hub) Option {
	return func(s *Server) {
		s.hub = h
	}
}

// WithGatherer serves the metrics of g on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler.
func NewHandler(convs Conversations, agents Agents, opts ...Option) http.Handler {
	s := &Server{
		convs:  convs,
		agents: agents,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.GetHealth)
	r.Get("/info", s.GetInfo)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/agents", func(r chi.Router) {
		r.Get("/", s.ListAgents)
		r.Get("/{uid}", s.GetAgent)
	})

	r.Route("/convs", func(r chi.Router) {
		r.Post("/", s.CreateConv)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/messages", s.ListMessages)
			r.Post("/messages", s.AddMessage)
			r.Get("/steps", s.ListSteps)
			if s.hub != nil {
				r.Get("/events", s.SubscribeEvents)
			}
		})
	})

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetHealth handles GET /healthz.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GetInfo handles GET /info.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":     "tendril-http",
		"version": strings.TrimSpace(tendril.Version),
	})
}

// ListAgents handles GET /agents.
func (s *Server) ListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agents.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, agents)
}

// GetAgent handles GET /agents/{uid}.
func (s *Server) GetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agents.GetByUID(r.Context(), chi.URLParam(r, "uid"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, agent)
}

type createConvRequest struct {
	AgentUID string `json:"agent_uid"`
	Title    string `json:"title"`
}

// CreateConv handles POST /convs.
func (s *Server) CreateConv(w http.ResponseWriter, r *http.Request) {
	var body createConvRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("CreateConv: Invalid request body", "err", err)
		return
	}
	if body.AgentUID == "" {
		http.Error(w, "agent_uid is required", http.StatusBadRequest)
		return
	}

	conv, err := s.convs.CreateConv(r.Context(), body.AgentUID, body.Title)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, conv)
}

type addMessageRequest struct {
	Text string `json:"text"`
}

// AddMessage handles POST /convs/{id}/messages. The answer is produced
// asynchronously by the worker.
func (s *Server) AddMessage(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.convID(w, r)
	if !ok {
		return
	}
	var body addMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		s.logger.Warn("AddMessage: Invalid request body", "err", err)
		return
	}

	msg, err := s.convs.AddMessage(r.Context(), convID, body.Text)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, msg)
}

// ListMessages handles GET /convs/{id}/messages.
func (s *Server) ListMessages(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.convID(w, r)
	if !ok {
		return
	}
	msgs, err := s.convs.ListMessages(r.Context(), convID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

// ListSteps handles GET /convs/{id}/steps.
func (s *Server) ListSteps(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.convID(w, r)
	if !ok {
		return
	}
	steps, err := s.convs.ListSteps(r.Context(), convID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, steps)
}

// SubscribeEvents handles GET /convs/{id}/events (SSE). Every work event of
// the conversation is forwarded as one SSE event named after its kind.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	convID, ok := s.convID(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		return
	}

	events, err := s.hub.Subscribe(r.Context(), domain.TopicConvWork)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected", "conv_id", convID)
			return
		case payload, ok := <-events:
			if !ok {
				return
			}
			ev, err := codec.DecodeWorkEvent(payload)
			if err != nil || ev.ConvID != convID {
				continue
			}
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Kind, data)
			flusher.Flush()
		}
	}
}

// -- Helpers --

func (s *Server) convID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		http.Error(w, "Invalid conversation id", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrAgentNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrStepNoMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request failed", "method", r.Method, "path", r.URL.Path, "err", err)
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Response encode failed", "err", err)
	}
}
