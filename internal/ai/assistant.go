package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// Metadata keys understood by generators. Mock generators use them to pick canned responses.
const (
	MetaBucket    = "bucket"
	MetaFieldID   = "field_id"
	MetaFieldName = "field_name"
	MetaJobURL    = "job_url"
	MetaBucketKey = "bucket_key"
)

// Generator produces a JSON object for a prompt.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt string, meta map[string]string) (map[string]any, error)
}

// Ordered is implemented by generators whose responses depend on call order.
// Callers must then issue requests one at a time, in a stable order.
type Ordered interface {
	Ordered() bool
}

// IsOrdered reports whether g requires ordered calls.
func IsOrdered(g Generator) bool {
	o, ok := g.(Ordered)
	return ok && o.Ordered()
}

// DecodeObject parses a model response into a JSON object, tolerating markdown code fences.
func DecodeObject(raw string) (map[string]any, error) {
	cleaned := ExtractJSON(raw)
	if cleaned == "" {
		return nil, fmt.Errorf("empty response")
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		return nil, fmt.Errorf("parse json response: %w", err)
	}
	if data == nil {
		return nil, fmt.Errorf("response is not a json object")
	}

	return data, nil
}

// ExtractJSON strips markdown code fences around a JSON payload.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func CoerceBool(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		lower := strings.ToLower(strings.TrimSpace(val))
		return lower == "true" || lower == "yes"
	case float64:
		return val != 0
	default:
		return false
	}
}

// CoerceString renders a decoded JSON value as a trimmed string. Nil becomes "".
func CoerceString(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(val)
	case bool:
		if val {
			return "true"
		}
		return "false"
	case float64:
		return strings.TrimSpace(fmt.Sprintf("%v", val))
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}
