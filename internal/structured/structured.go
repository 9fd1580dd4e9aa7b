// Package structured decodes JSON objects out of model responses, which may
// wrap the object in a markdown fence or surround it with prose.
package structured

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrNoJSON is returned when no decodable JSON object is found.
var ErrNoJSON = errors.New("no JSON object in response")

var fenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// Decode unmarshals text into T. It tries the whole text, then the first
// fenced block, then the span from the first '{' to the last '}'.
func Decode[T any](text string) (T, error) {
	var out T
	text = strings.TrimSpace(text)

	for _, candidate := range candidates(text) {
		var v T
		if err := json.Unmarshal([]byte(candidate), &v); err == nil {
			return v, nil
		}
	}

	preview := text
	if len(preview) > 200 {
		preview = preview[:200] + "..."
	}
	return out, fmt.Errorf("%w: %q", ErrNoJSON, preview)
}

func candidates(text string) []string {
	out := []string{text}
	if m := fenceRe.FindStringSubmatch(text); len(m) >= 2 {
		out = append(out, strings.TrimSpace(m[1]))
	}
	if i, j := strings.Index(text, "{"), strings.LastIndex(text, "}"); i >= 0 && j > i {
		out = append(out, text[i:j+1])
	}
	return out
}
