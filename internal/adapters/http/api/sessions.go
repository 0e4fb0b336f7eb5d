package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/okian/hatch/internal/domain/model"
)

// SessionDependencies defines the interface for session control.
type SessionDependencies interface {
	StartSession(ctx context.Context, talentID int64) (model.Pair, error)
	StopSession(ctx context.Context) (model.Session, error)
	PollSession(ctx context.Context) (*model.Pair, error)
	ListSessions(ctx context.Context, talentID *int64) ([]model.Session, error)
}

// SessionsHandler handles session and incubation requests.
type SessionsHandler struct {
	deps SessionDependencies
}

// NewSessionsHandler creates a new sessions handler.
func NewSessionsHandler(deps SessionDependencies) *SessionsHandler {
	return &SessionsHandler{deps: deps}
}

// HandleStart handles POST /talents/{id}/start requests.
func (h *SessionsHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	pair, err := h.deps.StartSession(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pair)
}

// HandleList handles GET /sessions requests, optionally filtered by
// ?talent_id=N.
func (h *SessionsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	var talentID *int64
	if raw := r.URL.Query().Get("talent_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			writeError(w, http.StatusBadRequest, "bad_request", ErrBadID)
			return
		}
		talentID = &id
	}

	sessions, err := h.deps.ListSessions(r.Context(), talentID)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if sessions == nil {
		sessions = []model.Session{}
	}
	writeJSON(w, http.StatusOK, sessions)
}

// HandlePoll handles GET /incubation requests. It answers 204 while idle.
func (h *SessionsHandler) HandlePoll(w http.ResponseWriter, r *http.Request) {
	pair, err := h.deps.PollSession(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	if pair == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, pair)
}

// HandleStop handles POST /incubation/stop requests. It answers 409 while
// idle.
func (h *SessionsHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	session, err := h.deps.StopSession(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}
