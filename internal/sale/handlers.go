package sale

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes sale endpoints.
type Handler struct {
	Svc *Service
}

// Commit handles POST /api/v1/sales. The Idempotency-Key header is used when
// the body carries no key.
func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	cashier, err := common.ActorID(r.Context())
	if err != nil {
		common.WriteError(w, err)
		return
	}
	var in CommitInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	in.CashierID = cashier
	if strings.TrimSpace(in.IdempotencyKey) == "" {
		in.IdempotencyKey = r.Header.Get(common.IdempotencyHeader)
	}
	receipt, err := h.Svc.Commit(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	status := http.StatusCreated
	if receipt.Replayed {
		status = http.StatusOK
	}
	common.Data(w, status, receipt)
}

// Get handles GET /api/v1/sales/{id}.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := common.URLUUID(r, "id")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	receipt, err := h.Svc.Get(r.Context(), id)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, receipt)
}

// GetByInvoice handles GET /api/v1/sales/invoice/{invoiceNo}.
func (h *Handler) GetByInvoice(w http.ResponseWriter, r *http.Request) {
	receipt, err := h.Svc.GetByInvoice(r.Context(), chi.URLParam(r, "invoiceNo"))
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, receipt)
}

// List handles GET /api/v1/sales?from=&to=&page=&limit=.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	from, err := common.QueryTime(r, "from")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	to, err := common.QueryTime(r, "to")
	if err != nil {
		common.WriteError(w, err)
		return
	}
	page, perPage := common.ParsePagination(r, 20)
	sales, err := h.Svc.List(r.Context(), ListInput{From: from, To: to, Page: page, PerPage: perPage})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Paged(w, sales, common.Pagination{Page: page, PerPage: perPage, TotalItems: len(sales)})
}
