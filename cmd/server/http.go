package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/linnemanlabs/switchboard/internal/authmw"
	"github.com/linnemanlabs/switchboard/internal/postgres"
	"github.com/linnemanlabs/switchboard/internal/ticketapi"
)

const (
	healthyPath = "/-/healthy"
	readyPath   = "/-/ready"
)

// apiDeps is what the public listener serves.
type apiDeps struct {
	logger         log.Logger
	svc            ticketapi.TriageService
	apiToken       string
	clientIP       httpmw.ClientIPOptions
	healthy, ready http.HandlerFunc
	metricsWrap    func(http.Handler) http.Handler
}

// newRouter builds the chi router: per-route middleware, health endpoints
// and the token-guarded ticket API.
func newRouter(d apiDeps) chi.Router {
	r := chi.NewRouter()

	// JSON only
	r.Use(middleware.Compress(5, "application/json"))

	// renames the request span and tags the logger with the route pattern
	r.Use(httpmw.AnnotateHTTPRoute)
	r.Use(queryStats)
	r.Use(httpmw.AccessLog())

	// 413 past the batch limit
	r.Use(httpmw.MaxBody(ticketapi.MaxBodyBytes))

	r.Get(healthyPath, d.healthy)
	r.Get(readyPath, d.ready)

	r.Group(func(r chi.Router) {
		r.Use(authmw.Guard(d.apiToken, d.logger))
		ticketapi.New(d.logger, d.svc).RegisterRoutes(r)
	})
	return r
}

// newAPIHandler wraps the router in the listener-wide middleware. Wrappers
// applied later run first on the request.
func newAPIHandler(d apiDeps) http.Handler {
	var h http.Handler = newRouter(d)

	// innermost so request logs carry trace ids and the chi route
	h = httpmw.WithLogger(d.logger)(h)
	h = httpmw.TraceResponseHeaders("X-Trace-Id", "X-Span-Id")(h)

	h = otelhttp.NewHandler(h, "http.server",
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != healthyPath && r.URL.Path != readyPath
		}),
		// replaced with the route pattern once chi has matched
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + r.URL.Path
		}),
		otelhttp.WithPublicEndpointFn(func(_ *http.Request) bool { return true }),
	)

	if d.metricsWrap != nil {
		h = d.metricsWrap(h)
	}

	h = httpmw.ClientIPWithOptions(d.clientIP)(h)
	h = httpmw.RequestID("X-Request-Id")(h)

	// catches panics from everything inside it
	h = httpmw.Recover(d.logger, nil)(h)

	// outermost so every response carries them
	return httpmw.SecurityHeaders(h)
}

// queryStats tags the request context with its method as the DB operation
// and logs how many queries the request ran.
func queryStats(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ctx := postgres.WithOperation(req.Context(), req.Method)
		ctx, stats := postgres.WithQueryStats(ctx)
		next.ServeHTTP(w, req.WithContext(ctx))

		if count, failed, total := stats.Snapshot(); count > 0 {
			log.FromContext(ctx).Info(ctx, "db queries",
				"queries", count,
				"failed", failed,
				"db_ms", total.Milliseconds(),
			)
		}
	})
}
