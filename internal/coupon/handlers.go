package coupon

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes coupon endpoints.
type Handler struct {
	Svc *Service
}

type previewPayload struct {
	Code     string          `json:"code" validate:"required"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type activePayload struct {
	Active *bool `json:"active" validate:"required"`
}

// List handles GET /api/v1/coupons.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	items, err := h.Svc.List(r.Context(), r.URL.Query().Get("active") == "true")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, items)
}

// Create handles POST /api/v1/coupons.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	var createdBy *uuid.UUID
	if id, err := common.ActorID(r.Context()); err == nil {
		createdBy = &id
	}
	c, err := h.Svc.Create(r.Context(), in, createdBy)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, c)
}

// SetActive handles PATCH /api/v1/coupons/{id}.
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
	c, err := h.Svc.SetActive(r.Context(), id, *payload.Active)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, c)
}

// Preview handles POST /api/v1/coupons/preview.
func (h *Handler) Preview(w http.ResponseWriter, r *http.Request) {
	var payload previewPayload
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Preview(r.Context(), payload.Subtotal, payload.Code)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}
