// Switchboard serves the support ticket triage pipeline over HTTP.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	otelpyroscope "github.com/grafana/otel-profiling-go"
	"github.com/linnemanlabs/go-core/health"
	"github.com/linnemanlabs/go-core/httpmw"
	"github.com/linnemanlabs/go-core/httpserver"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/metrics"
	"github.com/linnemanlabs/go-core/opshttp"
	"github.com/linnemanlabs/go-core/otelx"
	"github.com/linnemanlabs/go-core/prof"
	v "github.com/linnemanlabs/go-core/version"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/linnemanlabs/switchboard/internal/agent"
	"github.com/linnemanlabs/switchboard/internal/llm/claude"
	"github.com/linnemanlabs/switchboard/internal/notify/slack"
	"github.com/linnemanlabs/switchboard/internal/postgres"
	kafkapub "github.com/linnemanlabs/switchboard/internal/publish/kafka"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

const appName = "switchboard"
const component = "server"

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal error:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	v.AppName = appName
	v.Component = component
	vi := v.Get()

	c, err := parseConfig(flag.CommandLine, os.Args[1:], os.Stderr)
	if err != nil {
		return err
	}
	if c.showVersion {
		fmt.Printf(
			"%s (%s) %s (commit=%s, commit_date=%s, build_id=%s, build_date=%s, go=%s, dirty=%v)\n",
			vi.AppName, vi.Component, vi.Version, vi.Commit, vi.CommitDate, vi.BuildId, vi.BuildDate, vi.GoVersion,
			vi.VCSDirty != nil && *vi.VCSDirty,
		)
		return nil
	}
	if err := c.validate(); err != nil {
		return err
	}

	lg, err := log.New(c.log.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", vi.Component)
	ctx = log.WithContext(ctx, L)

	L.Info(ctx, "initializing application",
		"version", vi.Version,
		"commit", vi.Commit,
		"build_id", vi.BuildId,
		"go_version", vi.GoVersion,
		"vcs_dirty", vi.VCSDirty,
		"http_port", c.app.APIPort,
		"admin_port", c.ops.Port,
		"mode", c.app.Mode,
		"api_auth", c.app.APIToken != "",
		"database", c.app.DatabaseURL != "",
		"enable_pprof", c.ops.EnablePprof,
		"enable_pyroscope", c.prof.EnablePyroscope,
		"enable_tracing", c.trace.EnableTracing,
		"trace_sample", c.trace.TraceSample,
		"otlp_endpoint", c.trace.OTLPEndpoint,
		"trusted_proxy_hops", c.httpmw.TrustedProxyHops,
	)

	// components register their stop functions here as they start; anything
	// started before an early return is still stopped
	var stops stopList
	budget := time.Duration(c.app.ShutdownBudgetSeconds) * time.Second
	defer stops.run(L, budget)

	// profiles from the whole process lifetime
	profOpts := c.prof.ToOptions()
	profOpts.AppName = v.AppName
	profOpts.Tags = map[string]string{
		"app":       v.AppName,
		"component": v.Component,
		"version":   vi.Version,
		"commit":    vi.Commit,
		"build_id":  vi.BuildId,
	}
	stopProf, profErr := prof.Start(ctx, profOpts)
	if profErr != nil {
		L.Error(ctx, profErr, "pyroscope start failed", "pyro_server", c.prof.PyroServer)
	}
	if stopProf != nil {
		defer stopProf()
	}

	traceOpts := c.trace.ToOptions()
	traceOpts.Service = v.AppName
	traceOpts.Component = v.Component
	traceOpts.Version = v.Version
	shutdownOtelx, err := otelx.Init(ctx, traceOpts)
	if err != nil {
		L.Error(ctx, err, "otel init failed")
	}
	stops.add("otel", shutdownOtelx)

	// span ids become pyroscope labels so a trace links to its profile
	if profErr == nil && c.prof.EnablePyroscope {
		otel.SetTracerProvider(otelpyroscope.NewTracerProvider(otel.GetTracerProvider()))
	}

	m := metrics.New()
	m.SetBuildInfoFromVersion(v.AppName, component, &vi)
	m.SetProfilingActive(profErr == nil && c.prof.EnablePyroscope)

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "switchboard_db_query_duration_seconds",
		Help:    "Duration of individual database queries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "route", "outcome"})
	m.Registry().MustRegister(dbQueryDuration)
	postgres.SetQueryObserver(postgres.QueryObserverFunc(
		func(_ context.Context, operation, route, outcome string, dur time.Duration) {
			dbQueryDuration.WithLabelValues(operation, route, outcome).Observe(dur.Seconds())
		},
	))

	st, err := openStores(ctx, L, c.app.DatabaseURL, c.app.SeedFile, time.Now())
	if err != nil {
		return err
	}
	stops.add("stores", func(context.Context) error {
		st.close()
		return nil
	})

	svc, err := newTriageService(ctx, L, c, st, triage.NewMetrics(m.Registry()), &stops)
	if err != nil {
		return err
	}

	// readiness fails once the gate closes so the load balancer drains us
	var shutdownGate health.ShutdownGate
	readiness := health.All(shutdownGate.Probe())
	liveness := health.Fixed(true, "")

	opsOpts := c.ops.ToOptions()
	opsOpts.Metrics = m.Handler()
	opsOpts.Health = liveness
	opsOpts.Readiness = readiness
	opsOpts.UseRecoverMW = true
	opsOpts.OnPanic = m.IncHttpPanic

	// the ops listener rejects public and forwarded requests itself
	opsHTTPStop, err := opshttp.Start(ctx, L, opsOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start ops http listener")
		return err
	}
	stops.add("ops http server", opsHTTPStop)

	h := newAPIHandler(apiDeps{
		logger:      L,
		svc:         svc,
		apiToken:    c.app.APIToken,
		clientIP:    httpmw.ClientIPOptions{TrustedHops: c.httpmw.TrustedProxyHops},
		healthy:     health.HealthzHandler(liveness),
		ready:       health.ReadyzHandler(readiness),
		metricsWrap: m.Middleware,
	})

	apiOpts, err := c.http.ToOptions()
	if err != nil {
		L.Error(ctx, err, "invalid http config")
		return err
	}
	apiHTTPStop, err := httpserver.Start(ctx, fmt.Sprintf(":%d", c.app.APIPort), h, L, apiOpts)
	if err != nil {
		L.Error(ctx, err, "failed to start api http listener")
		return err
	}
	stops.add("api http server", apiHTTPStop)

	if err := notifySystemd(); err != nil {
		// systemd kills us after its start timeout if this really mattered
		L.Warn(ctx, "failed to notify systemd of readiness", "error", err)
	}

	<-ctx.Done()
	L.Info(context.Background(), "shutdown signal received")

	shutdownGate.Set("draining")
	L.Info(context.Background(), "shutdown gate closed")
	drain(L, time.Duration(c.app.DrainSeconds)*time.Second)

	stops.run(L, budget)
	L.Info(context.Background(), "shutdown complete")
	return nil
}

// newTriageService builds the provider, strategies, engine and sinks for
// the configured mode. Sinks that hold connections register with stops.
func newTriageService(ctx context.Context, L log.Logger, c *config, st *stores, tm *triage.Metrics, stops *stopList) (*triage.Service, error) {
	hooks := tm.Hooks()

	var provider triage.Provider
	if c.app.ModelBacked() {
		provider = claude.New(c.app.ClaudeAPIKey, c.app.ClaudeModel)
		L.Info(ctx, "initialized LLM provider", "provider", "claude", "model", c.app.ClaudeModel)
	}

	strategies, err := agent.Strategies(c.app.StrategyMode(), st.dir, provider, L, hooks)
	if err != nil {
		return nil, fmt.Errorf("strategy selection: %w", err)
	}
	engine := triage.NewEngine(strategies, L, hooks, c.app.EngineOptions())
	L.Info(ctx, "initialized triage engine",
		"mode", c.app.Mode,
		"workers", c.app.Workers,
		"history_limit", c.app.HistoryLimit,
		"stage_timeout_seconds", c.app.StageTimeoutSeconds,
	)

	var notifier triage.Notifier
	if c.app.SlackWebhookURL != "" {
		notifier = slack.New(c.app.SlackWebhookURL, L)
		L.Info(ctx, "notifier enabled", "type", "slack")
	}

	opts := []triage.Option{triage.WithWorkers(c.app.Workers)}
	if brokers := c.app.Brokers(); len(brokers) > 0 {
		publisher := kafkapub.New(brokers, c.app.KafkaTopic, L)
		opts = append(opts, triage.WithPublisher(publisher))
		stops.add("kafka publisher", func(context.Context) error { return publisher.Close() })
		L.Info(ctx, "publisher enabled", "type", "kafka", "brokers", brokers, "topic", c.app.KafkaTopic)
	}

	return triage.NewService(st.decisions, engine, L, tm, notifier, opts...), nil
}
