package returns

import (
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes return endpoints nested under a sale.
type Handler struct {
	Svc *Service
}

// Create handles POST /api/v1/sales/{id}/returns.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	saleID, err := common.URLUUID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	actor, err := common.ActorID(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var req Request
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Process(r.Context(), saleID, req, actor)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, res)
}

// List handles GET /api/v1/sales/{id}/returns.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	saleID, err := common.URLUUID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	rows, err := h.Svc.List(r.Context(), saleID)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, rows)
}
