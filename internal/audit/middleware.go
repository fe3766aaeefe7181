package audit

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// HTTPRecorder records HTTP requests after they have been handled.
type HTTPRecorder struct {
	Service Service
}

// HTTPConfig customises how the audit entry is produced for a route.
type HTTPConfig struct {
	Action          string
	ResourceType    string
	ResourceIDParam string
	MetadataFunc    func(*http.Request, int) map[string]any
}

// Middleware returns a chi middleware that records an entry per request.
// Recording failures are logged and never change the response.
func (r HTTPRecorder) Middleware(cfg HTTPConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !r.Service.Enabled {
				next.ServeHTTP(w, req)
				return
			}

			recorder := &statusRecorder{ResponseWriter: w}
			next.ServeHTTP(recorder, req)

			entry := Entry{
				Actor:        ActorFromRequest(req),
				Action:       cfg.Action,
				ResourceType: cfg.ResourceType,
				Status:       recorder.Status(),
			}
			if cfg.ResourceIDParam != "" {
				entry.ResourceID = chi.URLParam(req, cfg.ResourceIDParam)
			}
			if cfg.MetadataFunc != nil {
				entry.Metadata = cfg.MetadataFunc(req, entry.Status)
			}
			if err := r.Service.Record(req.Context(), req, entry); err != nil {
				zerolog.Ctx(req.Context()).Warn().Err(err).Str("action", entry.Action).Msg("audit record failed")
			}
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Status() int {
	if s.status == 0 {
		return http.StatusOK
	}
	return s.status
}
