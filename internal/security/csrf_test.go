package security

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCSRFMiddleware(t *testing.T) {
	handler := CSRF{SessionCookie: "pos_access"}.Middleware(ok())
	session := &http.Cookie{Name: "pos_access", Value: "jwt"}

	cases := []struct {
		name   string
		method string
		build  func(*http.Request)
		want   int
	}{
		{"safe method", http.MethodGet, func(r *http.Request) { r.AddCookie(session) }, http.StatusOK},
		{"bearer client", http.MethodPost, func(r *http.Request) { r.Header.Set("Authorization", "Bearer abc") }, http.StatusOK},
		{"no session cookie", http.MethodPost, func(*http.Request) {}, http.StatusOK},
		{"cookie session without token", http.MethodPost, func(r *http.Request) { r.AddCookie(session) }, http.StatusForbidden},
		{"mismatched token", http.MethodPost, func(r *http.Request) {
			r.AddCookie(session)
			r.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "a"})
			r.Header.Set("X-CSRF-Token", "b")
		}, http.StatusForbidden},
		{"matching token", http.MethodDelete, func(r *http.Request) {
			r.AddCookie(session)
			r.AddCookie(&http.Cookie{Name: "X-CSRF-Token", Value: "secure-token"})
			r.Header.Set("X-CSRF-Token", "secure-token")
		}, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(tc.method, "/api/v1/products/1", nil)
			tc.build(req)
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.want, rr.Code)
		})
	}
}
