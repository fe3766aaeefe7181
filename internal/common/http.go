package common

import (
	"context"
	"net"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

// ClientIP attempts to determine the real client IP address from the request.
func ClientIP(r *http.Request) string {
	if r == nil {
		return ""
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); ip != "" {
		parts := strings.Split(ip, ",")
		if len(parts) > 0 {
			candidate := strings.TrimSpace(parts[0])
			if candidate != "" {
				return candidate
			}
		}
		return strings.TrimSpace(ip)
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}

// URLUUID parses the named chi route parameter as a UUID.
func URLUUID(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, NewAppError("BAD_REQUEST", "invalid "+name, http.StatusBadRequest, err)
	}
	return id, nil
}

// ActorID returns the authenticated user id as a UUID.
func ActorID(ctx context.Context) (uuid.UUID, error) {
	raw, ok := UserID(ctx)
	if !ok || raw == "" {
		return uuid.Nil, NewAppError("UNAUTHORIZED", "authentication required", http.StatusUnauthorized, nil)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, NewAppError("UNAUTHORIZED", "invalid subject", http.StatusUnauthorized, err)
	}
	return id, nil
}
