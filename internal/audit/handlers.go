package audit

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes the audit trail to administrators.
type Handler struct {
	Service Service
}

// List handles GET /audit?page=&limit=.
func (h Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := common.ParsePagination(r, 50)
	limit, offset := common.Window(page, perPage)
	rows, err := h.Service.List(r.Context(), limit, offset)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("list audit logs")
		common.JSONError(w, http.StatusInternalServerError, "AUDIT_QUERY_FAILED", "unable to fetch audit logs", nil)
		return
	}
	common.Paged(w, rows, common.Pagination{Page: page, PerPage: int(limit)})
}
