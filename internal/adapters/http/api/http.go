// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/tops/internal/domain/types"
)

const defaultMaxLimit = 1000

// Dependencies required by HTTP handlers. Implementations report missing
// boards and identifiers as ErrNotFound and invalid input as ErrBadRequest.
type Dependencies interface {
	BoardDependencies
	PositionDependencies
	ActivityDependencies
}

// Server wires HTTP routes for the business API.
type Server struct {
	healthHandler   *HealthHandler
	boardHandler    *BoardHandler
	positionHandler *PositionHandler
	activityHandler *ActivityHandler
}

// Option configures a Server.
type Option func(*serverConfig)

type serverConfig struct {
	maxLimit int
	ready    func() bool
}

// WithMaxLimit caps the limit query parameter of GET /tops/{id}.
func WithMaxLimit(n int) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxLimit = n
		}
	}
}

// WithReadiness makes /healthz report 503 until ready returns true.
func WithReadiness(ready func() bool) Option {
	return func(c *serverConfig) { c.ready = ready }
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, opts ...Option) *Server {
	cfg := serverConfig{maxLimit: defaultMaxLimit}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Server{
		healthHandler:   NewHealthHandler(cfg.ready),
		boardHandler:    NewBoardHandler(deps, cfg.maxLimit),
		positionHandler: NewPositionHandler(deps),
		activityHandler: NewActivityHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("GET /tops", MetricsMiddleware(s.boardHandler.HandleListBoards, "tops"))
	mux.HandleFunc("GET /tops/{id}", MetricsMiddleware(s.boardHandler.HandleGetBoard, "top"))
	mux.HandleFunc("GET /tops/{id}/position/{identifier}", MetricsMiddleware(s.positionHandler.HandleGetPosition, "position"))
	mux.HandleFunc("GET /tops/{id}/entry/{pos}", MetricsMiddleware(s.positionHandler.HandleGetEntry, "entry"))
	mux.HandleFunc("POST /activity", MetricsMiddleware(s.activityHandler.HandlePostActivity, "activity"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// writeFailure maps an upstream error onto a status code.
func writeFailure(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", Wrap(op, err))
	case errors.Is(err, ErrBadRequest):
		writeError(w, http.StatusBadRequest, "bad_request", Wrap(op, err))
	case errors.Is(err, ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "unavailable", Wrap(op, err))
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", Wrap(op, err))
	}
}

// topResponse is the body of GET /tops/{id}.
type topResponse struct {
	Board   types.Board   `json:"board"`
	Entries []types.Entry `json:"entries"`
}
