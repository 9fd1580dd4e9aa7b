// Package kafka publishes final decisions to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

const writeTimeout = 10 * time.Second

// writer is the subset of *kafka.Writer the publisher uses.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Event is the message value written for each decision.
type Event struct {
	BatchID  string               `json:"batch_id"`
	Subject  string               `json:"subject"`
	Decision ticket.FinalDecision `json:"decision"`
}

// Publisher writes one message per decision, keyed by ticket id so every
// decision for a ticket lands on the same partition.
type Publisher struct {
	w      writer
	topic  string
	logger log.Logger
}

// New creates a publisher writing to topic on brokers.
func New(brokers []string, topic string, logger log.Logger) *Publisher {
	return newPublisher(&kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireOne,
		WriteTimeout: writeTimeout,
	}, topic, logger)
}

func newPublisher(w writer, topic string, logger log.Logger) *Publisher {
	if logger == nil {
		logger = log.Nop()
	}
	return &Publisher{w: w, topic: topic, logger: logger}
}

// Publish writes r to the topic.
func (p *Publisher) Publish(ctx context.Context, r *triage.Result) error {
	msg, err := message(r)
	if err != nil {
		return err
	}
	if err := p.w.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("kafka: write %s: %w", p.topic, err)
	}

	p.logger.Info(ctx, "decision published", "topic", p.topic, "ticket_id", r.Decision.TicketID)
	return nil
}

// Close flushes pending writes and closes the connection.
func (p *Publisher) Close() error {
	return p.w.Close()
}

func message(r *triage.Result) (kafka.Message, error) {
	data, err := json.Marshal(Event{BatchID: r.BatchID, Subject: r.Ticket.Subject, Decision: r.Decision})
	if err != nil {
		return kafka.Message{}, fmt.Errorf("kafka: marshal decision: %w", err)
	}

	review := "false"
	if r.Decision.RequiresManualReview {
		review = "true"
	}
	return kafka.Message{
		Key:   []byte(r.Decision.TicketID),
		Value: data,
		Time:  r.Decision.Timestamp,
		Headers: []kafka.Header{
			{Key: "content-type", Value: []byte("application/json")},
			{Key: "team", Value: []byte(r.Decision.AssignedTeam)},
			{Key: "priority", Value: []byte(r.Decision.PriorityLevel)},
			{Key: "manual-review", Value: []byte(review)},
		},
	}, nil
}
