package agent

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

const extractorSystem = `You are an expert at extracting structured information from customer support tickets.

Extract these entities:
- Account numbers (format: ACC-12345)
- Service IDs (format: SVC001, SVC002)
- Error codes (format: NET-500, AUTH-403)
- Phone numbers (format: 555-123-4567)
- Monetary amounts (format: $150.00, $2,500.00)

Respond with a single JSON object and nothing else, using empty lists for
entities that do not occur:
{"account_numbers": [], "service_ids": [], "error_codes": [], "phone_numbers": [], "monetary_amounts": [<number without $ or separators>]}`

// Extractor pulls entities out of tickets with one model call.
type Extractor struct {
	provider  triage.Provider
	hooks     triage.EngineHooks
	maxTokens int
}

// NewExtractor returns a model-backed extractor.
func NewExtractor(p triage.Provider, hooks triage.EngineHooks) *Extractor {
	return &Extractor{provider: p, hooks: hooks, maxTokens: DefaultStageTokens}
}

type entitiesAnswer struct {
	AccountNumbers  []string  `json:"account_numbers"`
	ServiceIDs      []string  `json:"service_ids"`
	ErrorCodes      []string  `json:"error_codes"`
	PhoneNumbers    []string  `json:"phone_numbers"`
	MonetaryAmounts []float64 `json:"monetary_amounts"`
}

func (a entitiesAnswer) present() bool {
	return a.AccountNumbers != nil || a.ServiceIDs != nil || a.ErrorCodes != nil ||
		a.PhoneNumbers != nil || a.MonetaryAmounts != nil
}

var entityKeys = []string{"ACCOUNT_NUMBERS", "SERVICE_IDS", "ERROR_CODES", "PHONE_NUMBERS", "MONETARY_AMOUNTS"}

// Extract implements triage.Extractor.
func (e *Extractor) Extract(ctx context.Context, t ticket.Ticket) (ticket.ExtractedEntities, error) {
	prompt := fmt.Sprintf("Extract entities from this support ticket:\n\nSubject: %s\nDescription: %s", t.Subject, t.Description)
	text, err := complete(ctx, e.provider, e.hooks, e.maxTokens, extractorSystem, prompt)
	if err != nil {
		return ticket.ExtractedEntities{}, err
	}
	return ParseEntities(text)
}

// ParseEntities reads extracted entities from a model answer in JSON or in
// the ACCOUNT_NUMBERS/SERVICE_IDS/ERROR_CODES/PHONE_NUMBERS/MONETARY_AMOUNTS
// line format, where "none" means an empty list. Values are trimmed and
// deduplicated in order; amounts must be finite and non-negative.
func ParseEntities(text string) (ticket.ExtractedEntities, error) {
	a, err := decode(text, entitiesAnswer.present, func(kv map[string]string) (entitiesAnswer, error) {
		found := false
		for _, k := range entityKeys {
			if _, ok := kv[k]; ok {
				found = true
			}
		}
		if !found {
			return entitiesAnswer{}, malformed("no entity fields in response")
		}
		amounts := []float64{}
		for _, s := range list(kv["MONETARY_AMOUNTS"]) {
			f, err := strconv.ParseFloat(strings.NewReplacer("$", "", ",", "").Replace(s), 64)
			if err != nil {
				return entitiesAnswer{}, malformed("monetary amount %q is not a number", s)
			}
			amounts = append(amounts, f)
		}
		return entitiesAnswer{
			AccountNumbers:  list(kv["ACCOUNT_NUMBERS"]),
			ServiceIDs:      list(kv["SERVICE_IDS"]),
			ErrorCodes:      list(kv["ERROR_CODES"]),
			PhoneNumbers:    list(kv["PHONE_NUMBERS"]),
			MonetaryAmounts: amounts,
		}, nil
	})
	if err != nil {
		return ticket.ExtractedEntities{}, err
	}

	amounts := []float64{}
	for _, f := range a.MonetaryAmounts {
		if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) {
			return ticket.ExtractedEntities{}, malformed("monetary amount %v out of range", f)
		}
		if !containsFloat(amounts, f) {
			amounts = append(amounts, f)
		}
	}
	return ticket.ExtractedEntities{
		AccountNumbers:  unique(a.AccountNumbers),
		ServiceIDs:      unique(a.ServiceIDs),
		ErrorCodes:      unique(a.ErrorCodes),
		PhoneNumbers:    unique(a.PhoneNumbers),
		MonetaryAmounts: amounts,
	}, nil
}

func unique(vs []string) []string {
	out := []string{}
	seen := make(map[string]bool, len(vs))
	for _, v := range vs {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func containsFloat(fs []float64, f float64) bool {
	for _, x := range fs {
		if x == f {
			return true
		}
	}
	return false
}
