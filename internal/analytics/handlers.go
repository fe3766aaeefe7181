package analytics

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/backend-pos/internal/common"
)

// Handler exposes analytics read endpoints.
type Handler struct {
	Svc *Service
}

func (h *Handler) report(w http.ResponseWriter, r *http.Request) (Report, bool) {
	if h.Svc == nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_NOT_CONFIGURED", "analytics service not configured", nil)
		return Report{}, false
	}
	fromPtr, err := common.QueryTime(r, "from")
	if err != nil {
		common.WriteError(w, err)
		return Report{}, false
	}
	toPtr, err := common.QueryTime(r, "to")
	if err != nil {
		common.WriteError(w, err)
		return Report{}, false
	}
	var from, to time.Time
	if fromPtr != nil && toPtr != nil {
		from, to = *fromPtr, *toPtr
	}
	from, to, err = h.Svc.Range(from, to, ParseDays(r.URL.Query().Get("days"), 0))
	if err != nil {
		common.JSONError(w, http.StatusBadRequest, "BAD_REQUEST", err.Error(), nil)
		return Report{}, false
	}
	report, err := h.Svc.Report(r.Context(), from, to)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("build report")
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "report unavailable", nil)
		return Report{}, false
	}
	return report, true
}

// Report returns the aggregated report for ?from&to, or the last ?days.
func (h *Handler) Report(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	common.Data(w, http.StatusOK, report)
}

// Export streams the same report as an XLSX workbook.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	report, ok := h.report(w, r)
	if !ok {
		return
	}
	data, err := WriteXLSX(report)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("export report")
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", "export failed", nil)
		return
	}
	name := fmt.Sprintf("report-%s-%s.xlsx", report.Window.From.Format("20060102"), report.Window.To.Format("20060102"))
	w.Header().Set("Content-Type", XLSXContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// Invalidate drops cached reports. Admin only.
func (h *Handler) Invalidate(w http.ResponseWriter, r *http.Request) {
	if err := h.Svc.Invalidate(r.Context()); err != nil {
		common.JSONError(w, http.StatusInternalServerError, "ANALYTICS_ERROR", err.Error(), nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
