package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type InsertDomainEventParams struct {
	Topic       string
	AggregateID uuid.UUID
	Payload     []byte
}

func (q *Queries) InsertDomainEvent(ctx context.Context, arg InsertDomainEventParams) (DomainEvent, error) {
	var e DomainEvent
	err := q.db.QueryRow(ctx, `
		INSERT INTO domain_events (topic, aggregate_id, payload)
		VALUES ($1, $2, $3)
		RETURNING id, topic, aggregate_id, payload, occurred_at`,
		arg.Topic, arg.AggregateID, arg.Payload).Scan(&e.ID, &e.Topic, &e.AggregateID, &e.Payload, &e.OccurredAt)
	return e, mapErr(err)
}

type InsertAuditLogParams struct {
	ActorKind    string
	ActorUserID  pgtype.UUID
	Action       string
	ResourceType string
	ResourceID   pgtype.Text
	Method       string
	Path         string
	Route        pgtype.Text
	Status       int32
	Ip           pgtype.Text
	UserAgent    pgtype.Text
	RequestID    pgtype.Text
	Metadata     []byte
}

const auditLogColumns = `id, actor_kind, actor_user_id, action, resource_type, resource_id, method, path, route,
	status, ip, user_agent, request_id, metadata, occurred_at`

func (q *Queries) InsertAuditLog(ctx context.Context, arg InsertAuditLogParams) (AuditLog, error) {
	var a AuditLog
	err := q.db.QueryRow(ctx, `
		INSERT INTO audit_logs (actor_kind, actor_user_id, action, resource_type, resource_id, method, path,
			route, status, ip, user_agent, request_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+auditLogColumns,
		arg.ActorKind, arg.ActorUserID, arg.Action, arg.ResourceType, arg.ResourceID, arg.Method, arg.Path,
		arg.Route, arg.Status, arg.Ip, arg.UserAgent, arg.RequestID, arg.Metadata).
		Scan(&a.ID, &a.ActorKind, &a.ActorUserID, &a.Action, &a.ResourceType, &a.ResourceID, &a.Method, &a.Path,
			&a.Route, &a.Status, &a.Ip, &a.UserAgent, &a.RequestID, &a.Metadata, &a.OccurredAt)
	return a, mapErr(err)
}

type ListAuditLogsParams struct {
	Limit  int32
	Offset int32
}

func (q *Queries) ListAuditLogs(ctx context.Context, arg ListAuditLogsParams) ([]AuditLog, error) {
	rows, err := q.db.Query(ctx, `
		SELECT `+auditLogColumns+` FROM audit_logs
		ORDER BY occurred_at DESC, id
		LIMIT $1 OFFSET $2`, arg.Limit, arg.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AuditLog
	for rows.Next() {
		var a AuditLog
		if err := rows.Scan(&a.ID, &a.ActorKind, &a.ActorUserID, &a.Action, &a.ResourceType, &a.ResourceID,
			&a.Method, &a.Path, &a.Route, &a.Status, &a.Ip, &a.UserAgent, &a.RequestID, &a.Metadata, &a.OccurredAt); err != nil {
			return nil, err
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
