// Batch triages a file of support tickets and writes the routing decisions
// to disk.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/linnemanlabs/go-core/cfg"
	"github.com/linnemanlabs/go-core/log"
	v "github.com/linnemanlabs/go-core/version"

	"github.com/linnemanlabs/switchboard/internal/agent"
	vc "github.com/linnemanlabs/switchboard/internal/cfg"
	"github.com/linnemanlabs/switchboard/internal/llm/claude"
	"github.com/linnemanlabs/switchboard/internal/refdata"
	refmem "github.com/linnemanlabs/switchboard/internal/refdata/memstore"
	"github.com/linnemanlabs/switchboard/internal/report"
	"github.com/linnemanlabs/switchboard/internal/resultfile"
	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
	"github.com/linnemanlabs/switchboard/internal/triage/memstore"
)

const appName = "switchboard"
const component = "batch"

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

	var (
		input     string
		outputDir string
		triageCfg vc.Triage
		logCfg    log.Config
	)
	flag.StringVar(&input, "input", "", "JSON ticket file (empty = embedded sample tickets)")
	flag.StringVar(&outputDir, "output", "results", "directory for result files")
	triageCfg.RegisterFlags(flag.CommandLine)
	logCfg.RegisterFlags(flag.CommandLine)
	flag.Parse()

	cfg.FillFromEnv(flag.CommandLine, "SWITCHBOARD_", func(format string, args ...any) {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	})

	if err := errors.Join(triageCfg.Validate(), logCfg.Validate()); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	lg, err := log.New(logCfg.ToOptions(v.AppName))
	if err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	defer func() { _ = lg.Sync() }()

	L := lg.With("component", component)
	ctx = log.WithContext(ctx, L)

	now := time.Now()
	tickets, rejected, err := loadInput(input, now)
	if err != nil {
		return err
	}
	if err := writeRejections(os.Stdout, rejected); err != nil {
		return err
	}
	L.Info(ctx, "loaded tickets", "input", input, "tickets", len(tickets), "rejected", len(rejected))

	var provider triage.Provider
	if triageCfg.ModelBacked() {
		provider = claude.New(triageCfg.ClaudeAPIKey, triageCfg.ClaudeModel)
	}

	_, err = execute(ctx, L, triageCfg, provider, tickets, outputDir, os.Stdout)
	return err
}

// loadInput reads tickets from path, or the embedded samples when path is
// empty. Records that fail validation are returned as rejections.
func loadInput(path string, now time.Time) ([]ticket.Ticket, []ticket.Rejection, error) {
	if path == "" {
		raws, err := sampleTickets(now)
		if err != nil {
			return nil, nil, err
		}
		tickets, rejected := ticket.Admit(raws)
		return tickets, rejected, nil
	}

	f, err := os.Open(path) //nolint:gosec // path is operator input
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	defer func() { _ = f.Close() }()

	tickets, rejected, err := ticket.DecodeTickets(f)
	if err != nil {
		return nil, nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return tickets, rejected, nil
}

func writeRejections(w io.Writer, rejected []ticket.Rejection) error {
	for _, r := range rejected {
		id := r.TicketID
		if id == "" {
			id = "-"
		}
		for _, f := range r.Fields {
			if _, err := fmt.Fprintf(w, "Skipped record %d (ticket %s): %s %s\n", r.Index, id, f.Field, f.Reason); err != nil {
				return err
			}
		}
	}
	return nil
}

// execute decides tickets with in-memory stores, writes the result files
// under outputDir and prints the decisions and summary to w.
func execute(ctx context.Context, L log.Logger, tc vc.Triage, provider triage.Provider, tickets []ticket.Ticket, outputDir string, w io.Writer) ([]ticket.FinalDecision, error) {
	seed, err := refdata.LoadSeedFile(tc.SeedFile, time.Now())
	if err != nil {
		return nil, fmt.Errorf("reference seed: %w", err)
	}
	dir := refdata.NewDirectory(refmem.New(seed))

	strategies, err := agent.Strategies(tc.StrategyMode(), dir, provider, L, triage.EngineHooks{})
	if err != nil {
		return nil, fmt.Errorf("strategy selection: %w", err)
	}
	engine := triage.NewEngine(strategies, L, triage.EngineHooks{}, tc.EngineOptions())
	svc := triage.NewService(memstore.New(), engine, L, nil, nil, triage.WithWorkers(tc.Workers))

	start := time.Now()
	decisions := svc.Process(ctx, tickets)
	L.Info(ctx, "batch complete", "tickets", len(decisions), "elapsed_ms", time.Since(start).Milliseconds())

	subjects := make(map[string]string, len(tickets))
	for _, t := range tickets {
		subjects[t.TicketID] = t.Subject
	}
	if err := report.WriteDecisions(w, decisions, subjects); err != nil {
		return nil, err
	}

	path, err := resultfile.WriteDecisions(outputDir, decisions)
	if err != nil {
		return nil, fmt.Errorf("write decisions: %w", err)
	}
	n, err := resultfile.WriteTicketResults(outputDir, tickets, decisions)
	if err != nil {
		return nil, fmt.Errorf("write ticket results: %w", err)
	}
	if _, err := fmt.Fprintf(w, "Results saved to: %s\nIndividual ticket results saved: %d\n", path, n); err != nil {
		return nil, err
	}

	if err := report.Summarize(decisions).Write(w); err != nil {
		return nil, err
	}
	return decisions, nil
}
