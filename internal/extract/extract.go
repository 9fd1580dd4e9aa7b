// Package extract pulls structured references out of free ticket text.
package extract

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/linnemanlabs/switchboard/internal/ticket"
)

var (
	accountRe = regexp.MustCompile(`(?i)ACC-\d+`)
	serviceRe = regexp.MustCompile(`(?i)SVC\d+`)
	// error codes overlap account numbers; both lists keep the match
	errorCodeRe = regexp.MustCompile(`[A-Z]+-\d+`)
	phoneRe     = regexp.MustCompile(`\d{3}-\d{3}-\d{4}`)
	moneyRe     = regexp.MustCompile(`\$(\d{1,3}(?:,\d{3})*(?:\.\d{2})?)`)
)

// Extract returns every non-overlapping match of each entity pattern in
// order of appearance. It never fails; absent entities yield empty lists.
func Extract(text string) ticket.ExtractedEntities {
	return ticket.ExtractedEntities{
		AccountNumbers:  findAll(accountRe, text),
		ServiceIDs:      findAll(serviceRe, text),
		ErrorCodes:      findAll(errorCodeRe, text),
		PhoneNumbers:    findAll(phoneRe, text),
		MonetaryAmounts: amounts(text),
	}
}

func findAll(re *regexp.Regexp, text string) []string {
	m := re.FindAllString(text, -1)
	if m == nil {
		return []string{}
	}
	return m
}

func amounts(text string) []float64 {
	out := []float64{}
	for _, m := range moneyRe.FindAllStringSubmatch(text, -1) {
		v, err := strconv.ParseFloat(strings.ReplaceAll(m[1], ",", ""), 64)
		if err != nil {
			continue
		}
		out = append(out, v)
	}
	return out
}

// Regex is the deterministic extraction strategy.
type Regex struct{}

// Extract implements the orchestrator's extractor contract. It never fails.
func (Regex) Extract(_ context.Context, t ticket.Ticket) (ticket.ExtractedEntities, error) {
	return Extract(t.Text()), nil
}
