package api

import (
	"context"
	"net/http"

	"github.com/okian/hatch/internal/domain/model"
	"github.com/okian/hatch/internal/domain/streak"
)

// EvaluateDependencies defines the interface for on-demand evaluation.
type EvaluateDependencies interface {
	RunEvaluation(ctx context.Context) (*streak.Result, error)
}

// EvaluateHandler handles evaluation requests.
type EvaluateHandler struct {
	deps EvaluateDependencies
}

// NewEvaluateHandler creates a new evaluate handler.
func NewEvaluateHandler(deps EvaluateDependencies) *EvaluateHandler {
	return &EvaluateHandler{deps: deps}
}

type evaluateResponse struct {
	Talents  []model.Talent  `json:"talents"`
	Sessions []model.Session `json:"sessions"`
}

// HandleEvaluate handles POST /evaluate requests. A no-op evaluation
// answers 204; an unterminated session answers 500.
func (h *EvaluateHandler) HandleEvaluate(w http.ResponseWriter, r *http.Request) {
	res, err := h.deps.RunEvaluation(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	if res == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, evaluateResponse{Talents: res.Talents, Sessions: res.Sessions})
}
