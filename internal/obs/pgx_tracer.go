package obs

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type pgxSpanKey struct{}

type pgxQueryState struct {
	span  trace.Span
	op    string
	start time.Time
}

// PGXTracer implements pgx.QueryTracer. Each statement gets a span and, when
// Duration is set, a latency observation labelled by SQL verb.
type PGXTracer struct {
	Duration *prometheus.HistogramVec
}

// NewPGXQueryHistogram registers the query latency histogram used by PGXTracer.
func NewPGXQueryHistogram(namespace string, reg prometheus.Registerer) *prometheus.HistogramVec {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "db_query_duration_ms",
		Help:      "Database statement latency in milliseconds.",
		Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 1000},
	}, []string{"operation", "result"})
	registerOrReuse(reg, &h)
	return h
}

// TraceQueryStart starts a span for the SQL statement.
func (PGXTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	op := sqlOperation(data.SQL)
	ctx, span := otel.Tracer("db.pgx").Start(ctx, "pgx."+strings.ToLower(op), trace.WithSpanKind(trace.SpanKindClient))
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", op),
		attribute.String("db.statement", truncateSQL(data.SQL)),
	)
	return context.WithValue(ctx, pgxSpanKey{}, &pgxQueryState{span: span, op: op, start: time.Now()})
}

// TraceQueryEnd ends the span and records any error.
func (t PGXTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	state, ok := ctx.Value(pgxSpanKey{}).(*pgxQueryState)
	if !ok {
		return
	}
	result := "ok"
	if data.Err != nil {
		result = "error"
		state.span.RecordError(data.Err)
		state.span.SetStatus(codes.Error, data.Err.Error())
	} else {
		state.span.SetAttributes(attribute.Int64("db.rows_affected", data.CommandTag.RowsAffected()))
	}
	state.span.End()
	if t.Duration != nil {
		t.Duration.WithLabelValues(state.op, result).Observe(DurationMillis(time.Since(state.start)))
	}
}

func sqlOperation(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "UNKNOWN"
	}
	return strings.ToUpper(fields[0])
}

func truncateSQL(sql string) string {
	trimmed := strings.TrimSpace(sql)
	if len(trimmed) > 300 {
		return trimmed[:300] + "..."
	}
	return trimmed
}
