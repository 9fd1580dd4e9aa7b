// Package pgstore provides a PostgreSQL implementation of triage.Store.
package pgstore

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

var tracer = otel.Tracer("github.com/linnemanlabs/switchboard/internal/triage/pgstore")

//go:embed schema.sql
var schema string

// Store persists decided tickets in PostgreSQL.
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

const resultColumns = `batch_id, ticket_id, customer_id, subject, description, submitted_at,
	assigned_team, priority_level, confidence_score, reasoning, processing_time_ms,
	requires_manual_review, decided_at, failure_kind`

// Get retrieves a result by ticket ID.
func (s *Store) Get(ctx context.Context, ticketID string) (*triage.Result, bool, error) {
	ctx, span := tracer.Start(ctx, "pgstore.Get", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	query := `SELECT ` + resultColumns + ` FROM ticket_decisions WHERE ticket_id = $1`
	r, err := scanResult(s.pool.QueryRow(ctx, query, ticketID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, false, err
	}
	return r, true, nil
}

// Put inserts or replaces the result for its ticket. A replaced result
// keeps its original list position.
func (s *Store) Put(ctx context.Context, r *triage.Result) error {
	ctx, span := tracer.Start(ctx, "pgstore.Put", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "UPSERT"),
	))
	defer span.End()

	t, d := r.Ticket, r.Decision
	_, err := s.pool.Exec(ctx, `INSERT INTO ticket_decisions (`+resultColumns+`)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	ON CONFLICT (ticket_id) DO UPDATE SET
		batch_id               = EXCLUDED.batch_id,
		customer_id            = EXCLUDED.customer_id,
		subject                = EXCLUDED.subject,
		description            = EXCLUDED.description,
		submitted_at           = EXCLUDED.submitted_at,
		assigned_team          = EXCLUDED.assigned_team,
		priority_level         = EXCLUDED.priority_level,
		confidence_score       = EXCLUDED.confidence_score,
		reasoning              = EXCLUDED.reasoning,
		processing_time_ms     = EXCLUDED.processing_time_ms,
		requires_manual_review = EXCLUDED.requires_manual_review,
		decided_at             = EXCLUDED.decided_at,
		failure_kind           = EXCLUDED.failure_kind`,
		r.BatchID, t.TicketID, t.CustomerID, t.Subject, t.Description, t.Timestamp,
		string(d.AssignedTeam), string(d.PriorityLevel), d.ConfidenceScore, d.Reasoning, d.ProcessingTimeMS,
		d.RequiresManualReview, d.Timestamp, d.FailureKind,
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("upsert decision %s: %w", t.TicketID, err)
	}
	return nil
}

// List returns every result in first-stored order.
func (s *Store) List(ctx context.Context) ([]*triage.Result, error) {
	ctx, span := tracer.Start(ctx, "pgstore.List", trace.WithAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation.name", "SELECT"),
	))
	defer span.End()

	rows, err := s.pool.Query(ctx, `SELECT `+resultColumns+` FROM ticket_decisions ORDER BY seq`)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("query decisions: %w", err)
	}
	defer rows.Close()

	out := []*triage.Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return nil, err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("iterate decisions: %w", err)
	}
	return out, nil
}

// scanResult scans one row. pgx.ErrNoRows is returned unwrapped.
func scanResult(row pgx.Row) (*triage.Result, error) {
	var (
		r           triage.Result
		team, level string
	)
	t, d := &r.Ticket, &r.Decision
	err := row.Scan(
		&r.BatchID, &t.TicketID, &t.CustomerID, &t.Subject, &t.Description, &t.Timestamp,
		&team, &level, &d.ConfidenceScore, &d.Reasoning, &d.ProcessingTimeMS,
		&d.RequiresManualReview, &d.Timestamp, &d.FailureKind,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}

	if d.AssignedTeam, err = ticket.ParseTeam(team); err != nil {
		return nil, err
	}
	if d.PriorityLevel, err = ticket.ParsePriority(level); err != nil {
		return nil, err
	}
	d.TicketID = t.TicketID
	d.CustomerID = t.CustomerID
	t.Timestamp = t.Timestamp.UTC()
	d.Timestamp = d.Timestamp.UTC()
	return &r, nil
}
