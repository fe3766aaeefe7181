package stock

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes stock ledger endpoints.
type Handler struct {
	Svc *Service
}

// Movements handles GET /api/v1/stock/movements?productId=&kind=.
func (h *Handler) Movements(w http.ResponseWriter, r *http.Request) {
	var in ListInput
	if raw := r.URL.Query().Get("productId"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			common.WriteError(w, common.ErrBadRequest("invalid productId"))
			return
		}
		in.ProductID = &id
	}
	in.Kind = r.URL.Query().Get("kind")
	in.Page, in.PerPage = common.ParsePagination(r, 50)
	rows, err := h.Svc.Movements(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Paged(w, rows, common.Pagination{Page: in.Page, PerPage: in.PerPage, TotalItems: len(rows)})
}

// Adjust handles POST /api/v1/stock/adjustments.
func (h *Handler) Adjust(w http.ResponseWriter, r *http.Request) {
	actor, err := common.ActorID(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var in AdjustInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Adjust(r.Context(), in, actor)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusCreated, res)
}

// Verify handles GET /api/v1/stock/verify (admin).
func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	rows, err := h.Svc.Verify(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, map[string]any{"drift": rows, "consistent": len(rows) == 0})
}
