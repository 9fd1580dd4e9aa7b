// Package cfg holds switchboard's application configuration.
package cfg

import (
	"errors"
	"flag"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/switchboard/internal/agent"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

// Triage holds the decision pipeline settings shared by the server and the
// batch runner.
type Triage struct {
	Mode                string
	ClaudeAPIKey        string
	ClaudeModel         string
	SeedFile            string
	Workers             int
	HistoryLimit        int
	RetryDelay          time.Duration
	StageTimeoutSeconds int
}

// RegisterFlags binds Triage fields to the given FlagSet with defaults inline
func (c *Triage) RegisterFlags(fs *flag.FlagSet) {
	fs.StringVar(&c.Mode, "mode", string(agent.ModeDeterministic), "decision strategy: deterministic, model-stages or model-narrative")
	fs.StringVar(&c.ClaudeAPIKey, "claude-api-key", "", "API key for the Claude LLM provider (model modes only)")
	fs.StringVar(&c.ClaudeModel, "claude-model", "claude-sonnet-4-20250514", "Claude model to use")
	fs.StringVar(&c.SeedFile, "seed-file", "", "reference data YAML file (empty = embedded dataset)")
	fs.IntVar(&c.Workers, "workers", 4, "tickets decided concurrently per batch (1..64)")
	fs.IntVar(&c.HistoryLimit, "history-limit", triage.DefaultHistoryLimit, "recent tickets included in historical context (1..100)")
	fs.DurationVar(&c.RetryDelay, "retry-delay", triage.DefaultRetryDelay, "wait before retrying a throttled stage (0..60s]")
	fs.IntVar(&c.StageTimeoutSeconds, "stage-timeout-seconds", int(triage.DefaultStageTimeout/time.Second), "timeout for a single pipeline stage (1..300)")
}

// StrategyMode returns the configured strategy mode.
func (c *Triage) StrategyMode() agent.Mode {
	return agent.Mode(c.Mode)
}

// ModelBacked reports whether the configured mode calls the model provider.
func (c *Triage) ModelBacked() bool {
	return c.StrategyMode().ModelBacked()
}

// EngineOptions converts the settings into engine options.
func (c *Triage) EngineOptions() triage.Options {
	return triage.Options{
		StageTimeout: time.Duration(c.StageTimeoutSeconds) * time.Second,
		RetryDelay:   c.RetryDelay,
		HistoryLimit: c.HistoryLimit,
	}
}

// Validate checks the pipeline settings.
func (c *Triage) Validate() error {
	var errs []error

	if _, err := agent.ParseMode(c.Mode); err != nil {
		errs = append(errs, fmt.Errorf("invalid MODE: %w", err))
	}

	// model modes need provider credentials
	if c.ModelBacked() {
		if c.ClaudeAPIKey == "" {
			errs = append(errs, fmt.Errorf("CLAUDE_API_KEY is required for mode %s", c.Mode))
		}
		if c.ClaudeModel == "" {
			errs = append(errs, fmt.Errorf("CLAUDE_MODEL is required for mode %s", c.Mode))
		}
	}

	if c.Workers < 1 || c.Workers > 64 {
		errs = append(errs, fmt.Errorf("invalid WORKERS %d (must be 1..64)", c.Workers))
	}
	if c.HistoryLimit < 1 || c.HistoryLimit > 100 {
		errs = append(errs, fmt.Errorf("invalid HISTORY_LIMIT %d (must be 1..100)", c.HistoryLimit))
	}
	if c.RetryDelay <= 0 || c.RetryDelay > time.Minute {
		errs = append(errs, fmt.Errorf("invalid RETRY_DELAY %s (must be within (0,60s])", c.RetryDelay))
	}
	if c.StageTimeoutSeconds < 1 || c.StageTimeoutSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid STAGE_TIMEOUT_SECONDS %d (must be 1..300)", c.StageTimeoutSeconds))
	}

	return errors.Join(errs...)
}

// Config is the server configuration: listener, lifecycle, persistence and
// delivery settings plus the shared pipeline settings.
type Config struct {
	Triage

	DrainSeconds          int
	ShutdownBudgetSeconds int
	APIPort               int
	APIToken              string
	DatabaseURL           string
	SlackWebhookURL       string
	KafkaBrokers          string
	KafkaTopic            string
}

// RegisterFlags binds Config fields to the given FlagSet with defaults inline
func (c *Config) RegisterFlags(fs *flag.FlagSet) {
	c.Triage.RegisterFlags(fs)
	fs.IntVar(&c.DrainSeconds, "drain-seconds", 60, "seconds to wait for in-flight requests to drain before shutdown (1..300)")
	fs.IntVar(&c.ShutdownBudgetSeconds, "shutdown-budget-seconds", 90, "total seconds for component shutdown after drain (1..300)")
	fs.IntVar(&c.APIPort, "http-port", 8080, "API listen TCP port (1..65535)")
	fs.StringVar(&c.APIToken, "api-token", "", "bearer token required on API requests (empty = no auth)")
	fs.StringVar(&c.DatabaseURL, "database-url", "", "PostgreSQL connection URL (empty = in-memory stores)")
	fs.StringVar(&c.SlackWebhookURL, "slack-webhook-url", "", "Slack webhook URL for manual-review notifications")
	fs.StringVar(&c.KafkaBrokers, "kafka-brokers", "", "comma-separated Kafka brokers for decision publishing (empty = disabled)")
	fs.StringVar(&c.KafkaTopic, "kafka-topic", "switchboard.decisions", "Kafka topic for published decisions")
}

// Brokers returns the configured Kafka brokers.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks all configuration fields for correctness.
// It returns an error if any field is invalid, or nil if all fields are valid.
func (c *Config) Validate() error {
	errs := []error{c.Triage.Validate()}

	// Drain and shutdown budgets
	if c.DrainSeconds <= 0 || c.DrainSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid DRAIN_SECONDS %d (must be 1..300)", c.DrainSeconds))
	}
	if c.ShutdownBudgetSeconds <= 0 || c.ShutdownBudgetSeconds > 300 {
		errs = append(errs, fmt.Errorf("invalid SHUTDOWN_BUDGET_SECONDS %d (must be 1..300)", c.ShutdownBudgetSeconds))
	}

	// Shutdown budget must be greater than drain time
	if c.ShutdownBudgetSeconds <= c.DrainSeconds {
		errs = append(errs, fmt.Errorf("SHUTDOWN_BUDGET_SECONDS %d must be greater than DRAIN_SECONDS %d", c.ShutdownBudgetSeconds, c.DrainSeconds))
	}

	// API port must be valid TCP port number
	if c.APIPort <= 0 || c.APIPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP_PORT %d (must be 1..65535)", c.APIPort))
	}

	if len(c.Brokers()) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}

	return errors.Join(errs...)
}
