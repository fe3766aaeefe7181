package security

import (
	"net/http"

	"github.com/noah-isme/backend-pos/internal/common"
)

// BodyLimit caps request payloads. Routes matched by Exempt (spreadsheet
// uploads) enforce their own limit.
type BodyLimit struct {
	Max    int64
	Exempt func(*http.Request) bool
}

// Middleware rejects declared oversize bodies with 413 and caps the rest with
// http.MaxBytesReader so decoders fail once the limit is crossed.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil || (b.Exempt != nil && b.Exempt(r)) {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request entity too large", map[string]int64{"limit": b.Max})
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
