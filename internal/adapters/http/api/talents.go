package api

import (
	"context"
	"net/http"

	"github.com/okian/hatch/internal/domain/model"
)

// TalentDependencies defines the interface for talent operations.
type TalentDependencies interface {
	NewTalent(ctx context.Context, name string, progressTarget float64) (model.Talent, error)
	ListTalents(ctx context.Context) ([]model.Talent, error)
	GetTalent(ctx context.Context, id int64) (model.Talent, error)
	UpdateTalent(ctx context.Context, t model.Talent) (model.Talent, error)
	DeleteTalent(ctx context.Context, id int64) error
}

// TalentsHandler handles talent CRUD requests.
type TalentsHandler struct {
	deps TalentDependencies
}

// NewTalentsHandler creates a new talents handler.
func NewTalentsHandler(deps TalentDependencies) *TalentsHandler {
	return &TalentsHandler{deps: deps}
}

// createTalentRequest mirrors the OpenAPI schema for POST /talents.
type createTalentRequest struct {
	Name           string  `json:"name"`
	ProgressTarget float64 `json:"progressTarget"`
}

// updateTalentRequest mirrors the OpenAPI schema for PUT /talents/{id}.
// Absent fields keep their stored values.
type updateTalentRequest struct {
	Name           *string  `json:"name"`
	ProgressTarget *float64 `json:"progressTarget"`
	WhiteStars     *int     `json:"whiteStars"`
}

// HandleList handles GET /talents requests.
func (h *TalentsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	talents, err := h.deps.ListTalents(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	if talents == nil {
		talents = []model.Talent{}
	}
	writeJSON(w, http.StatusOK, talents)
}

// HandleCreate handles POST /talents requests.
func (h *TalentsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createTalentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	t, err := h.deps.NewTalent(r.Context(), req.Name, req.ProgressTarget)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// HandleGet handles GET /talents/{id} requests.
func (h *TalentsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	t, err := h.deps.GetTalent(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// HandleUpdate handles PUT /talents/{id} requests.
func (h *TalentsHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	var req updateTalentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}

	t, err := h.deps.GetTalent(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if req.Name != nil {
		t.Name = *req.Name
	}
	if req.ProgressTarget != nil {
		t.ProgressTarget = *req.ProgressTarget
	}
	if req.WhiteStars != nil {
		t.WhiteStars = *req.WhiteStars
	}

	updated, err := h.deps.UpdateTalent(r.Context(), t)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// HandleDelete handles DELETE /talents/{id} requests.
func (h *TalentsHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if err := h.deps.DeleteTalent(r.Context(), id); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
