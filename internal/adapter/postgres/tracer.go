package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pscheid92/hoodpulse/internal/adapter/metrics"
)

// queryTracer feeds pgx query timings into DBMetrics.
type queryTracer struct {
	metrics *metrics.DBMetrics
	now     func() time.Time
}

var _ pgx.QueryTracer = (*queryTracer)(nil)

type queryStartKey struct{}

type queryStart struct {
	at        time.Time
	operation string
}

func newQueryTracer(m *metrics.DBMetrics) *queryTracer {
	return &queryTracer{metrics: m, now: time.Now}
}

func (t *queryTracer) TraceQueryStart(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	return context.WithValue(ctx, queryStartKey{}, queryStart{at: t.now(), operation: operationName(data.SQL)})
}

func (t *queryTracer) TraceQueryEnd(ctx context.Context, _ *pgx.Conn, data pgx.TraceQueryEndData) {
	start, ok := ctx.Value(queryStartKey{}).(queryStart)
	if !ok {
		return
	}
	t.metrics.ObserveQuery(start.operation, t.now().Sub(start.at), data.Err)
}

// operationName labels a query by its leading keyword to keep cardinality bounded.
func operationName(sql string) string {
	fields := strings.Fields(sql)
	if len(fields) == 0 {
		return "unknown"
	}
	op := strings.ToUpper(fields[0])
	switch op {
	case "SELECT", "INSERT", "UPDATE", "DELETE", "WITH", "BEGIN", "COMMIT", "ROLLBACK":
		return op
	default:
		return "other"
	}
}
