package refdata

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

//go:embed seed.yaml
var defaultSeed []byte

// Seed is a complete reference dataset.
type Seed struct {
	Customers []ticket.Customer
	Services  []Service
	History   []CustomerHistory
}

// CustomerHistory is one customer's resolved tickets, oldest entry first as
// listed in the source.
type CustomerHistory struct {
	CustomerID string
	Tickets    []ticket.HistoricalTicket
}

type seedDoc struct {
	Customers []ticket.Customer `yaml:"customers"`
	Services  []seedService     `yaml:"services"`
	History   []seedHistory     `yaml:"history"`
}

type seedService struct {
	ServiceID string        `yaml:"service_id"`
	Health    ticket.Health `yaml:"health"`
	Outages   []seedOutage  `yaml:"outages"`
}

// seedOutage accepts either an absolute start time or a duration before
// load time, so shipped datasets stay "active".
type seedOutage struct {
	Severity    string        `yaml:"severity"`
	StartedAt   time.Time     `yaml:"started_at"`
	StartedAgo  time.Duration `yaml:"started_ago"`
	Description string        `yaml:"description"`
}

type seedHistory struct {
	CustomerID string           `yaml:"customer_id"`
	Tickets    []seedHistTicket `yaml:"tickets"`
}

type seedHistTicket struct {
	ticket.HistoricalTicket `yaml:",inline"`
	ResolvedAt              time.Time     `yaml:"resolved_at"`
	ResolvedAgo             time.Duration `yaml:"resolved_ago"`
}

// LoadSeed parses a YAML reference dataset. Relative times are resolved
// against now.
func LoadSeed(r io.Reader, now time.Time) (Seed, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var doc seedDoc
	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return Seed{}, fmt.Errorf("decode seed: %w", err)
	}

	var seed Seed
	var errs []error
	customers := make(map[string]bool)

	for i, c := range doc.Customers {
		if err := c.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("customers[%d]: %w", i, err))
			continue
		}
		if customers[c.CustomerID] {
			errs = append(errs, fmt.Errorf("customers[%d]: duplicate customer_id %q", i, c.CustomerID))
			continue
		}
		customers[c.CustomerID] = true
		seed.Customers = append(seed.Customers, c)
	}

	services := make(map[string]bool)
	for i, s := range doc.Services {
		if s.ServiceID == "" {
			errs = append(errs, fmt.Errorf("services[%d]: service_id is empty", i))
			continue
		}
		if !s.Health.Valid() {
			errs = append(errs, fmt.Errorf("services[%d]: unknown health %q", i, s.Health))
			continue
		}
		if services[s.ServiceID] {
			errs = append(errs, fmt.Errorf("services[%d]: duplicate service_id %q", i, s.ServiceID))
			continue
		}
		services[s.ServiceID] = true

		svc := Service{ServiceID: s.ServiceID, Health: s.Health, Outages: []ticket.Outage{}}
		for _, o := range s.Outages {
			started := o.StartedAt
			if started.IsZero() {
				started = now.Add(-o.StartedAgo)
			}
			svc.Outages = append(svc.Outages, ticket.Outage{
				ServiceID:   s.ServiceID,
				Severity:    o.Severity,
				StartedAt:   started.UTC(),
				Description: o.Description,
			})
		}
		seed.Services = append(seed.Services, svc)
	}

	for i, h := range doc.History {
		if h.CustomerID == "" {
			errs = append(errs, fmt.Errorf("history[%d]: customer_id is empty", i))
			continue
		}
		ch := CustomerHistory{CustomerID: h.CustomerID, Tickets: []ticket.HistoricalTicket{}}
		for j, st := range h.Tickets {
			ht := st.HistoricalTicket
			if err := ht.Validate(); err != nil {
				errs = append(errs, fmt.Errorf("history[%d].tickets[%d]: %w", i, j, err))
				continue
			}
			ht.ResolvedAt = st.ResolvedAt
			if ht.ResolvedAt.IsZero() {
				ht.ResolvedAt = now.Add(-st.ResolvedAgo)
			}
			ht.ResolvedAt = ht.ResolvedAt.UTC()
			ch.Tickets = append(ch.Tickets, ht)
		}
		seed.History = append(seed.History, ch)
	}

	if err := errors.Join(errs...); err != nil {
		return Seed{}, err
	}
	return seed, nil
}

// DefaultSeed loads the embedded reference dataset.
func DefaultSeed(now time.Time) (Seed, error) {
	return LoadSeed(bytes.NewReader(defaultSeed), now)
}

// LoadSeedFile loads the dataset at path, or the embedded dataset when path
// is empty.
func LoadSeedFile(path string, now time.Time) (Seed, error) {
	if path == "" {
		return DefaultSeed(now)
	}
	f, err := os.Open(path) //nolint:gosec // path is operator config
	if err != nil {
		return Seed{}, fmt.Errorf("open seed: %w", err)
	}
	defer func() { _ = f.Close() }()
	return LoadSeed(f, now)
}
