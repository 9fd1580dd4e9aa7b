// Package agent implements the triage strategies on a model provider: a
// classifier, an extractor and a router that each make one model call, and
// a narrator that decides a ticket end to end through the pipeline tools.
package agent

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/linnemanlabs/switchboard/internal/structured"
	"github.com/linnemanlabs/switchboard/internal/ticket"
	"github.com/linnemanlabs/switchboard/internal/triage"
)

// ErrMalformedResponse is wrapped by every failure to read a usable answer
// out of a model response.
var ErrMalformedResponse = errors.New("malformed model response")

// DefaultStageTokens bounds the reply of a single-call strategy.
const DefaultStageTokens = 1024

func malformed(format string, args ...any) error {
	return triage.Tag(triage.KindUnknown, fmt.Errorf("%w: %s", ErrMalformedResponse, fmt.Sprintf(format, args...)))
}

// complete makes one model call without tools and returns its text. Token
// usage of a successful call is reported through hooks.OnLLMCall.
func complete(ctx context.Context, p triage.Provider, hooks triage.EngineHooks, maxTokens int, system, prompt string) (string, error) {
	if maxTokens <= 0 {
		maxTokens = DefaultStageTokens
	}
	start := time.Now()
	resp, err := p.Send(ctx, &triage.LLMRequest{
		MaxTokens: maxTokens,
		System:    system,
		Messages: []triage.Message{{
			Role:    "user",
			Content: []triage.ContentBlock{{Type: "text", Text: prompt}},
		}},
	})
	if err != nil {
		return "", err
	}
	if hooks.OnLLMCall != nil {
		hooks.OnLLMCall(resp.Usage.InputTokens, resp.Usage.OutputTokens, time.Since(start).Seconds())
	}
	text := strings.TrimSpace(resp.TextOf())
	if text == "" {
		return "", malformed("empty response (stop reason %s)", resp.StopReason)
	}
	return text, nil
}

// decode reads a JSON answer into T. When the text holds no JSON object,
// or the object lacks the answer (present reports false), the KEY: value
// line format is read through lines instead.
func decode[T any](text string, present func(T) bool, lines func(map[string]string) (T, error)) (T, error) {
	v, err := structured.Decode[T](text)
	if err == nil && present(v) {
		return v, nil
	}
	if err != nil && !errors.Is(err, structured.ErrNoJSON) {
		return v, malformed("%v", err)
	}
	return lines(keyValues(text))
}

var keyRe = regexp.MustCompile(`^[A-Z][A-Z_]*$`)

// keyValues collects "KEY: value" lines. Keys are matched upper-cased and
// later lines win.
func keyValues(text string) map[string]string {
	out := make(map[string]string)
	for _, line := range strings.Split(text, "\n") {
		k, v, ok := strings.Cut(strings.TrimSpace(line), ":")
		if !ok {
			continue
		}
		k = strings.ToUpper(strings.Trim(strings.TrimSpace(k), "*-# "))
		if !keyRe.MatchString(k) {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// list splits a comma-separated value; "none" and empty mean no items.
func list(v string) []string {
	if v == "" || strings.EqualFold(v, "none") {
		return []string{}
	}
	out := []string{}
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func unit(key, v string) (*float64, error) {
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(v, "%"), 64)
	if err != nil {
		return nil, malformed("%s %q is not a number", key, v)
	}
	return &f, nil
}

// category accepts a category display string in any case.
func category(s string) (ticket.Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range ticket.Categories() {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// team accepts a team display string in any case, or a name containing
// one of the team cue words.
func team(s string) (ticket.Team, bool) {
	s = strings.TrimSpace(s)
	for _, t := range ticket.Teams() {
		if strings.EqualFold(string(t), s) {
			return t, true
		}
	}
	lower := strings.ToLower(s)
	switch {
	case strings.Contains(lower, "network"):
		return ticket.TeamNetworkOperations, true
	case strings.Contains(lower, "billing"):
		return ticket.TeamBillingSupport, true
	case strings.Contains(lower, "technical"):
		return ticket.TeamTechnicalSupport, true
	case strings.Contains(lower, "account"):
		return ticket.TeamAccountManagement, true
	}
	return "", false
}

func joinOrNone(vs []string) string {
	if len(vs) == 0 {
		return "none"
	}
	return strings.Join(vs, ", ")
}
