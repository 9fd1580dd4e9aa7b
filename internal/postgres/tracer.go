package postgres

import (
	"context"
	"errors"
	"runtime"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
)

var queryObserver atomic.Pointer[queryObserverHolder]

// context keys for query metadata.
type ctxKey string

const (
	ctxKeyQuery     ctxKey = "pgx.query"
	ctxKeyOperation ctxKey = "db.operation"
)

// queryStart is stashed between TraceQueryStart and TraceQueryEnd.
type queryStart struct {
	sql     string
	args    []any
	at      time.Time
	caller  string
	handler string
}

type queryObserverHolder struct{ QueryObserver }

// QueryObserver receives per-query metrics (wired by main for Prometheus).
// operation is the label set with WithOperation, route the chi route
// pattern when the query runs inside an API request.
type QueryObserver interface {
	ObserveQuery(ctx context.Context, operation, route, outcome string, dur time.Duration)
}

// QueryObserverFunc adapts a plain function to QueryObserver.
type QueryObserverFunc func(ctx context.Context, operation, route, outcome string, dur time.Duration)

// ObserveQuery implements QueryObserver.
func (f QueryObserverFunc) ObserveQuery(ctx context.Context, operation, route, outcome string, dur time.Duration) {
	f(ctx, operation, route, outcome, dur)
}

// SetQueryObserver sets the global query observer (typically a Prometheus histogram).
func SetQueryObserver(o QueryObserver) {
	if o == nil {
		queryObserver.Store(nil)
		return
	}
	queryObserver.Store(&queryObserverHolder{QueryObserver: o})
}

func getQueryObserver() QueryObserver {
	h := queryObserver.Load()
	if h == nil {
		return nil
	}
	return h.QueryObserver
}

// WithOperation labels queries issued under ctx, e.g. "POST" for an API
// request or "batch" for the batch runner.
func WithOperation(ctx context.Context, operation string) context.Context {
	if operation == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKeyOperation, operation)
}

func operationFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKeyOperation).(string); ok {
		return v
	}
	return "unknown"
}

func routePatternFromContext(ctx context.Context) string {
	if rc := chi.RouteContext(ctx); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "none"
}

// loggingTracer wraps another pgx.QueryTracer (otelpgx) and adds a
// structured log line, query stats and the metrics hook for every query.
type loggingTracer struct {
	inner pgx.QueryTracer
}

func wrapQueryTracer(inner pgx.QueryTracer) pgx.QueryTracer {
	return loggingTracer{inner: inner}
}

func (t loggingTracer) TraceQueryStart(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryStartData) context.Context {
	caller, handler := findDBCallerAndHandler()

	// inner tracer creates its span first so the annotations below land on it
	if t.inner != nil {
		ctx = t.inner.TraceQueryStart(ctx, conn, data)
	}

	if span := trace.SpanFromContext(ctx); span.IsRecording() {
		attrs := make([]attribute.KeyValue, 0, 2)
		if caller != "" {
			attrs = append(attrs, attribute.String("db.caller", caller))
		}
		if handler != "" {
			attrs = append(attrs, attribute.String("db.handler", handler))
		}
		span.SetAttributes(attrs...)
	}

	return context.WithValue(ctx, ctxKeyQuery, &queryStart{
		sql:     data.SQL,
		args:    data.Args,
		at:      time.Now(),
		caller:  caller,
		handler: handler,
	})
}

func (t loggingTracer) TraceQueryEnd(ctx context.Context, conn *pgx.Conn, data pgx.TraceQueryEndData) {
	if t.inner != nil {
		t.inner.TraceQueryEnd(ctx, conn, data)
	}

	q, _ := ctx.Value(ctxKeyQuery).(*queryStart)
	if q == nil {
		q = &queryStart{}
	}
	var dur time.Duration
	if !q.at.IsZero() {
		dur = time.Since(q.at)
	}

	if s, ok := QueryStatsFromContext(ctx); ok {
		s.Add(dur, data.Err)
	}

	outcome := "ok"
	if data.Err != nil {
		outcome = "error"
	}
	if obs := getQueryObserver(); obs != nil {
		obs.ObserveQuery(ctx, operationFromContext(ctx), routePatternFromContext(ctx), outcome, dur)
	}

	fields := []any{
		"db.statement", q.sql,
		"db.args", len(q.args),
		"db.duration", dur.Seconds(),
	}

	if tag := strings.TrimSpace(data.CommandTag.String()); tag != "" {
		if parts := strings.Fields(tag); len(parts) > 0 {
			fields = append(fields, "db.operation.name", strings.ToUpper(parts[0]))
		}
		fields = append(fields, "pg.command_tag", tag, "db.rows", data.CommandTag.RowsAffected())
	}
	if q.caller != "" {
		fields = append(fields, "db.caller", q.caller)
	}
	if q.handler != "" {
		fields = append(fields, "db.handler", q.handler)
	}

	L := log.FromContext(ctx)
	if data.Err != nil {
		var pgErr *pgconn.PgError
		if errors.As(data.Err, &pgErr) {
			fields = append(fields,
				"db.error_code", pgErr.Code,
				"db.error_constraint", pgErr.ConstraintName,
			)
		}
		L.Error(ctx, data.Err, "db query failed", fields...)
		return
	}
	L.Info(ctx, "db query", fields...)
}

// findDBCallerAndHandler walks the stack to find:
//   - caller: the store function actually issuing the query
//   - handler: the next meaningful frame above it (service, API handler)
func findDBCallerAndHandler() (caller, handler string) {
	pcs := make([]uintptr, 32)
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])

	for {
		fr, more := frames.Next()
		fn := fr.Function

		switch {
		case fn == "":
		case strings.HasPrefix(fn, "runtime."),
			strings.Contains(fn, "github.com/jackc/pgx/v5"),
			strings.Contains(fn, "github.com/exaring/otelpgx"),
			strings.Contains(fn, "loggingTracer.TraceQuery"):
		case caller == "":
			caller = shortenFuncName(fn)
		case strings.Contains(fn, "/internal/postgres."),
			strings.Contains(fn, "/pgstore."):
			// skip further store helpers
		default:
			return caller, shortenFuncName(fn)
		}

		if !more {
			return caller, handler
		}
	}
}

func shortenFuncName(fn string) string {
	// Trim package path.
	if i := strings.LastIndex(fn, "/"); i >= 0 && i+1 < len(fn) {
		fn = fn[i+1:]
	}
	// Trim package name, keep receiver + method.
	if dot := strings.Index(fn, "."); dot >= 0 && dot+1 < len(fn) {
		fn = fn[dot+1:]
	}
	return fn
}
