package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/pavelanni/coursegen/internal/apperr"
)

var (
	jsonFenceRegex = regexp.MustCompile("```json\\s*")
	fenceRegex     = regexp.MustCompile("```\\s*")
)

// StripCodeFences removes markdown code fences the service sometimes wraps around JSON.
func StripCodeFences(raw string) string {
	s := strings.TrimSpace(raw)
	s = jsonFenceRegex.ReplaceAllString(s, "")
	s = fenceRegex.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// DecodeJSON strips code fences and unmarshals raw into v. Any failure is
// reported as apperr.ErrMalformedOutput.
func DecodeJSON(raw string, v any) error {
	if err := json.Unmarshal([]byte(StripCodeFences(raw)), v); err != nil {
		return fmt.Errorf("parse LLM response: %w: %v (raw: %s)", apperr.ErrMalformedOutput, err, snippet(raw, 300))
	}
	return nil
}

// DecodeList decodes a JSON array of T. Because JSON response mode only allows
// objects, an object holding the array under any key is accepted too; keys are
// tried in sorted order. A response without such an array, or with an empty one,
// is malformed output.
func DecodeList[T any](raw string) ([]T, error) {
	cleaned := StripCodeFences(raw)

	var list []T
	if err := json.Unmarshal([]byte(cleaned), &list); err == nil {
		return nonEmpty(list, raw)
	}

	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(cleaned), &obj); err != nil {
		return nil, fmt.Errorf("parse LLM response: %w: %v (raw: %s)", apperr.ErrMalformedOutput, err, snippet(raw, 300))
	}

	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		var items []T
		if err := json.Unmarshal(obj[k], &items); err == nil && len(items) > 0 {
			return items, nil
		}
	}
	return nil, fmt.Errorf("LLM response holds no list: %w (raw: %s)", apperr.ErrMalformedOutput, snippet(raw, 300))
}

func nonEmpty[T any](items []T, raw string) ([]T, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("LLM response list is empty: %w (raw: %s)", apperr.ErrMalformedOutput, snippet(raw, 300))
	}
	return items, nil
}

func snippet(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
