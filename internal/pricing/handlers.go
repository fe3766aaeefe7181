package pricing

import (
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes the quote endpoint.
type Handler struct {
	Svc *Service
}

// Quote handles POST /api/v1/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var in QuoteInput
	if err := common.DecodeJSON(r, &in); err != nil {
		common.WriteError(w, err)
		return
	}
	q, err := h.Svc.Quote(r.Context(), in)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.Data(w, http.StatusOK, q.Totals)
}
