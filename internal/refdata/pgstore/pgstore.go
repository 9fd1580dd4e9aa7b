// Package pgstore provides a PostgreSQL implementation of refdata.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/switchboard/internal/refdata"
	"github.com/linnemanlabs/switchboard/internal/ticket"
)

var tracer = otel.Tracer("github.com/linnemanlabs/switchboard/internal/refdata/pgstore")

//go:embed schema.sql
var schema string

// Store reads reference data from PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// New applies the schema on pool and returns a ready Store. The caller owns
// the pool.
func New(ctx context.Context, pool *pgxpool.Pool) (*Store, error) {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{pool: pool}, nil
}

func startSpan(ctx context.Context, name, op string) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", op),
	))
}

func fail(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// Customer returns a customer profile by id.
func (s *Store) Customer(ctx context.Context, id string) (ticket.Customer, bool, error) {
	ctx, span := startSpan(ctx, "refdata.pgstore.Customer", "SELECT")
	defer span.End()

	var (
		c    ticket.Customer
		tier string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT customer_id, is_vip, account_type, lifetime_value, account_standing, service_plan
		 FROM customers WHERE customer_id = $1`, id,
	).Scan(&c.CustomerID, &c.IsVIP, &tier, &c.LifetimeValue, &c.AccountStanding, &c.ServicePlan)
	if errors.Is(err, pgx.ErrNoRows) {
		return ticket.Customer{}, false, nil
	}
	if err != nil {
		fail(span, err)
		return ticket.Customer{}, false, fmt.Errorf("scan customer: %w", err)
	}

	c.AccountType, err = ticket.ParseAccountTier(tier)
	if err != nil {
		fail(span, err)
		return ticket.Customer{}, false, err
	}
	return c, true, nil
}

// Service returns a service's health and active outages by id.
func (s *Store) Service(ctx context.Context, id string) (refdata.Service, bool, error) {
	ctx, span := startSpan(ctx, "refdata.pgstore.Service", "SELECT")
	defer span.End()

	var health string
	err := s.pool.QueryRow(ctx, `SELECT health FROM services WHERE service_id = $1`, id).Scan(&health)
	if errors.Is(err, pgx.ErrNoRows) {
		return refdata.Service{}, false, nil
	}
	if err != nil {
		fail(span, err)
		return refdata.Service{}, false, fmt.Errorf("scan service: %w", err)
	}

	svc := refdata.Service{ServiceID: id, Outages: []ticket.Outage{}}
	if svc.Health, err = ticket.ParseHealth(health); err != nil {
		fail(span, err)
		return refdata.Service{}, false, err
	}

	rows, err := s.pool.Query(ctx,
		`SELECT severity, started_at, description FROM service_outages
		 WHERE service_id = $1 ORDER BY id`, id)
	if err != nil {
		fail(span, err)
		return refdata.Service{}, false, fmt.Errorf("query outages: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		o := ticket.Outage{ServiceID: id}
		if err := rows.Scan(&o.Severity, &o.StartedAt, &o.Description); err != nil {
			fail(span, err)
			return refdata.Service{}, false, fmt.Errorf("scan outage: %w", err)
		}
		o.StartedAt = o.StartedAt.UTC()
		svc.Outages = append(svc.Outages, o)
	}
	if err := rows.Err(); err != nil {
		fail(span, err)
		return refdata.Service{}, false, fmt.Errorf("iterate outages: %w", err)
	}
	return svc, true, nil
}

// History returns a customer's resolved tickets in insertion order.
func (s *Store) History(ctx context.Context, customerID string) ([]ticket.HistoricalTicket, error) {
	ctx, span := startSpan(ctx, "refdata.pgstore.History", "SELECT")
	defer span.End()

	rows, err := s.pool.Query(ctx,
		`SELECT ticket_id, issue_type, resolution_time_hours, escalated, resolved_at
		 FROM ticket_history WHERE customer_id = $1 ORDER BY seq`, customerID)
	if err != nil {
		fail(span, err)
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []ticket.HistoricalTicket
	for rows.Next() {
		var (
			h         ticket.HistoricalTicket
			issueType string
		)
		if err := rows.Scan(&h.TicketID, &issueType, &h.ResolutionTimeHours, &h.Escalated, &h.ResolvedAt); err != nil {
			fail(span, err)
			return nil, fmt.Errorf("scan history: %w", err)
		}
		if h.IssueType, err = ticket.ParseCategory(issueType); err != nil {
			fail(span, err)
			return nil, err
		}
		h.ResolvedAt = h.ResolvedAt.UTC()
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		fail(span, err)
		return nil, fmt.Errorf("iterate history: %w", err)
	}
	return out, nil
}

// Load replaces the stored dataset with seed in one transaction.
func (s *Store) Load(ctx context.Context, seed refdata.Seed) error {
	ctx, span := startSpan(ctx, "refdata.pgstore.Load", "UPSERT")
	defer span.End()

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		fail(span, err)
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is harmless

	if err := load(ctx, tx, seed); err != nil {
		fail(span, err)
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		fail(span, err)
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func load(ctx context.Context, tx pgx.Tx, seed refdata.Seed) error {
	if _, err := tx.Exec(ctx, `TRUNCATE customers, services, service_outages, ticket_history`); err != nil {
		return fmt.Errorf("truncate: %w", err)
	}

	for _, c := range seed.Customers {
		_, err := tx.Exec(ctx,
			`INSERT INTO customers (customer_id, is_vip, account_type, lifetime_value, account_standing, service_plan)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			c.CustomerID, c.IsVIP, string(c.AccountType), c.LifetimeValue, c.AccountStanding, c.ServicePlan,
		)
		if err != nil {
			return fmt.Errorf("insert customer %s: %w", c.CustomerID, err)
		}
	}

	for _, svc := range seed.Services {
		if _, err := tx.Exec(ctx,
			`INSERT INTO services (service_id, health) VALUES ($1, $2)`,
			svc.ServiceID, string(svc.Health),
		); err != nil {
			return fmt.Errorf("insert service %s: %w", svc.ServiceID, err)
		}
		for _, o := range svc.Outages {
			if _, err := tx.Exec(ctx,
				`INSERT INTO service_outages (service_id, severity, started_at, description) VALUES ($1, $2, $3, $4)`,
				svc.ServiceID, o.Severity, o.StartedAt, o.Description,
			); err != nil {
				return fmt.Errorf("insert outage %s: %w", svc.ServiceID, err)
			}
		}
	}

	seq := make(map[string]int)
	for _, h := range seed.History {
		for _, t := range h.Tickets {
			resolved := t.ResolvedAt
			if resolved.IsZero() {
				resolved = time.Unix(0, 0).UTC()
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO ticket_history (customer_id, seq, ticket_id, issue_type, resolution_time_hours, escalated, resolved_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				h.CustomerID, seq[h.CustomerID], t.TicketID, string(t.IssueType), t.ResolutionTimeHours, t.Escalated, resolved,
			); err != nil {
				return fmt.Errorf("insert history %s: %w", t.TicketID, err)
			}
			seq[h.CustomerID]++
		}
	}
	return nil
}
