// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/okian/hatch/internal/adapters/repository"
	service "github.com/okian/hatch/internal/app"
	"github.com/okian/hatch/internal/domain/failure"
	"github.com/okian/hatch/internal/domain/incubation"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	TalentDependencies
	SessionDependencies
	EvaluateDependencies
}

// Server wires HTTP routes for the progression API.
type Server struct {
	healthHandler   *HealthHandler
	statsHandler    *StatsHandler
	talentsHandler  *TalentsHandler
	sessionsHandler *SessionsHandler
	evaluateHandler *EvaluateHandler
}

// NewServer creates a new API server with all handlers.
func NewServer(deps Dependencies, statsProvider StatsProvider) *Server {
	return &Server{
		healthHandler:   NewHealthHandler(),
		statsHandler:    NewStatsHandler(statsProvider),
		talentsHandler:  NewTalentsHandler(deps),
		sessionsHandler: NewSessionsHandler(deps),
		evaluateHandler: NewEvaluateHandler(deps),
	}
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	mux.HandleFunc("GET /healthz", MetricsMiddleware(s.healthHandler.HandleHealth, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))

	mux.HandleFunc("GET /talents", MetricsMiddleware(s.talentsHandler.HandleList, "talents"))
	mux.HandleFunc("POST /talents", MetricsMiddleware(s.talentsHandler.HandleCreate, "talents"))
	mux.HandleFunc("GET /talents/{id}", MetricsMiddleware(s.talentsHandler.HandleGet, "talent"))
	mux.HandleFunc("PUT /talents/{id}", MetricsMiddleware(s.talentsHandler.HandleUpdate, "talent"))
	mux.HandleFunc("DELETE /talents/{id}", MetricsMiddleware(s.talentsHandler.HandleDelete, "talent"))

	mux.HandleFunc("POST /talents/{id}/start", MetricsMiddleware(s.sessionsHandler.HandleStart, "start"))
	mux.HandleFunc("GET /sessions", MetricsMiddleware(s.sessionsHandler.HandleList, "sessions"))
	mux.HandleFunc("GET /incubation", MetricsMiddleware(s.sessionsHandler.HandlePoll, "incubation"))
	mux.HandleFunc("POST /incubation/stop", MetricsMiddleware(s.sessionsHandler.HandleStop, "stop"))

	mux.HandleFunc("POST /evaluate", MetricsMiddleware(s.evaluateHandler.HandleEvaluate, "evaluate"))
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

// writeFailure translates upstream errors to a status and a stable code.
func writeFailure(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeError(w, status, code, err)
}

func classify(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrInvalidTalent),
		errors.Is(err, incubation.ErrInvalidTarget):
		return http.StatusBadRequest, "bad_request"
	case errors.Is(err, repository.ErrOpenSession),
		errors.Is(err, repository.ErrSessionClosed):
		return http.StatusConflict, "conflict"
	}

	switch kind := failure.Classify(err); kind {
	case failure.KindInactiveIncubation:
		return http.StatusConflict, kind.String()
	case failure.KindUnterminatedSession, failure.KindNotConfigured:
		return http.StatusInternalServerError, kind.String()
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id < 0 {
		return 0, ErrBadID
	}
	return id, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Join(ErrBadRequest, err)
	}
	return nil
}
