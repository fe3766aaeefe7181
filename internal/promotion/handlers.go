package promotion

import (
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes promotion management endpoints.
type Handler struct {
	Svc *Service
}

type activePayload struct {
	Active *bool `json:"active" validate:"required"`
}

// List handles GET /api/v1/promotions?active=true.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.List(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, items)
}

// Create handles POST /api/v1/promotions.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.Create(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

// SetActive handles PATCH /api/v1/promotions/{id}.
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	id, err := common.URLUUID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var payload activePayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	promo, err := h.Svc.SetActive(r.Context(), id, *payload.Active)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, promo)
}

// Delete handles DELETE /api/v1/promotions/{id}.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	id, err := common.URLUUID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	if err := h.Svc.Delete(r.Context(), id); err != nil {
		common.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
