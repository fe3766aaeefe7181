package purchase

import (
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes purchase order endpoints.
type Handler struct {
	Svc *Service
}

// Create handles POST /api/v1/purchase-orders.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, err := common.ActorID(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var in CreateInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.Create(r.Context(), in, actor)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, view)
}

// List handles GET /api/v1/purchase-orders?status=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 20)
	rows, err := h.Svc.List(r.Context(), r.URL.Query().Get("status"), page, perPage)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Paged(w, rows, common.Pagination{Page: page, PerPage: perPage, TotalItems: len(rows)})
}

// Get handles GET /api/v1/purchase-orders/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := common.URLUUID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	view, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, view)
}

// Receive handles POST /api/v1/purchase-orders/{id}/receive.
func (h *Handler) Receive(w http.ResponseWriter, r *http.Request) {
	id, err := common.URLUUID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	actor, err := common.ActorID(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var in ReceiveInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Receive(r.Context(), id, in, actor)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, res)
}
