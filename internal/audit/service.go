// Package audit records who changed prices, stock and sales, and serves the
// trail to administrators.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/noah-isme/backend-pos/internal/common"
	"github.com/noah-isme/backend-pos/internal/db"
	"github.com/noah-isme/backend-pos/internal/obs"
)

// ActorKind represents the source of an audited action.
type ActorKind string

const (
	ActorKindUser      ActorKind = "user"
	ActorKindSystem    ActorKind = "system"
	ActorKindAnonymous ActorKind = "anonymous"
)

// Actor describes the entity performing the action.
type Actor struct {
	Kind   ActorKind
	UserID string
	Role   string
}

// ActorFromRequest reads the authenticated caller off the request context.
func ActorFromRequest(r *http.Request) Actor {
	if r == nil {
		return Actor{Kind: ActorKindAnonymous}
	}
	if id, ok := common.UserID(r.Context()); ok && strings.TrimSpace(id) != "" {
		return Actor{Kind: ActorKindUser, UserID: id, Role: common.Role(r.Context())}
	}
	return Actor{Kind: ActorKindAnonymous}
}

// Entry is one audited request.
type Entry struct {
	Actor        Actor
	Action       string
	ResourceType string
	ResourceID   string
	Status       int
	Metadata     map[string]any
}

// Store defines the database operations required for auditing.
type Store interface {
	InsertAuditLog(ctx context.Context, arg db.InsertAuditLogParams) (db.AuditLog, error)
	ListAuditLogs(ctx context.Context, arg db.ListAuditLogsParams) ([]db.AuditLog, error)
}

// Service persists audit logs for write operations.
type Service struct {
	Store        Store
	Enabled      bool
	SamplingRate float64
}

// Record persists e for req when auditing is enabled. Failed requests are
// recorded too; the status tells them apart.
func (s Service) Record(ctx context.Context, req *http.Request, e Entry) error {
	if !s.Enabled {
		return nil
	}
	if s.SamplingRate > 0 && s.SamplingRate < 1 && rand.Float64() > s.SamplingRate {
		return nil
	}
	if req == nil {
		return errors.New("audit: request is required")
	}
	if s.Store == nil {
		return errors.New("audit: store not configured")
	}

	route := obs.RoutePattern(req.Context())
	if route == "" {
		route = strings.TrimSpace(req.URL.Path)
	}
	status := e.Status
	if status == 0 {
		status = http.StatusOK
	}

	_, err := s.Store.InsertAuditLog(ctx, db.InsertAuditLogParams{
		ActorKind:    string(normalizeActorKind(e.Actor.Kind)),
		ActorUserID:  toNullUUID(e.Actor.UserID),
		Action:       buildAction(e.Action, req.Method, route),
		ResourceType: buildResource(e.ResourceType, route),
		ResourceID:   toNullText(e.ResourceID),
		Method:       req.Method,
		Path:         req.URL.Path,
		Route:        toNullText(route),
		Status:       int32(status),
		Ip:           toNullText(common.ClientIP(req)),
		UserAgent:    toNullText(req.Header.Get("User-Agent")),
		RequestID:    toNullText(req.Header.Get("X-Request-ID")),
		Metadata:     metadataJSON(e, req.URL.RawQuery),
	})
	return err
}

// List returns the newest entries first.
func (s Service) List(ctx context.Context, limit, offset int32) ([]db.AuditLog, error) {
	if s.Store == nil {
		return nil, errors.New("audit: store not configured")
	}
	rows, err := s.Store.ListAuditLogs(ctx, db.ListAuditLogsParams{Limit: limit, Offset: offset})
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []db.AuditLog{}
	}
	return rows, nil
}

func buildAction(action, method, route string) string {
	if trimmed := strings.TrimSpace(action); trimmed != "" {
		return trimmed
	}
	if route == "" {
		route = "/"
	}
	return strings.ToUpper(strings.TrimSpace(method)) + " " + route
}

// buildResource derives "sales.returns" style names from /api/v1 routes,
// dropping path parameters.
func buildResource(resourceType, route string) string {
	if trimmed := strings.TrimSpace(resourceType); trimmed != "" {
		return trimmed
	}
	segments := strings.Split(strings.Trim(route, "/ "), "/")
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "v1" {
		segments = segments[2:]
	}
	kept := segments[:0]
	for _, seg := range segments {
		if seg == "" || strings.HasPrefix(seg, "{") {
			continue
		}
		kept = append(kept, seg)
	}
	if len(kept) == 0 {
		return "unknown"
	}
	return strings.Join(kept, ".")
}

func normalizeActorKind(kind ActorKind) ActorKind {
	switch kind {
	case ActorKindUser, ActorKindSystem:
		return kind
	default:
		return ActorKindAnonymous
	}
}

func toNullUUID(value string) pgtype.UUID {
	parsed, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return pgtype.UUID{}
	}
	return pgtype.UUID{Bytes: parsed, Valid: true}
}

func toNullText(value string) pgtype.Text {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return pgtype.Text{}
	}
	return pgtype.Text{String: trimmed, Valid: true}
}

func metadataJSON(e Entry, query string) []byte {
	meta := make(map[string]any, len(e.Metadata)+2)
	for k, v := range e.Metadata {
		meta[k] = v
	}
	if e.Actor.Role != "" {
		meta["role"] = e.Actor.Role
	}
	// Non-uuid subjects are kept here since actor_user_id is a uuid column.
	if e.Actor.UserID != "" && !toNullUUID(e.Actor.UserID).Valid {
		meta["subject"] = e.Actor.UserID
	}
	if q := strings.TrimSpace(query); q != "" {
		meta["query"] = q
	}
	if len(meta) == 0 {
		return nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return nil
	}
	return data
}
