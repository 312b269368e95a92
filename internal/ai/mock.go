package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
)

const (
	mockDefaultKey = "__default__"
	mockListKey    = "__list__"
)

// mockLookupKeys are the metadata keys tried, in order, against a bucket's entries.
var mockLookupKeys = []string{MetaJobURL, MetaFieldID, MetaBucketKey}

// Mock returns canned responses grouped by bucket.
// A bucket is either a list (served in order) or an object keyed by metadata value or "__default__".
// Values that are lists are sequences: each call advances and the last element sticks.
type Mock struct {
	mu      sync.Mutex
	data    map[string]any
	cursors map[string]int
	calls   int
	logger  *zap.Logger
}

// NewMock builds a mock generator from already decoded bucket data.
func NewMock(data map[string]any, logger *zap.Logger) *Mock {
	if logger == nil {
		logger = zap.NewNop()
	}
	if data == nil {
		data = map[string]any{}
	}
	return &Mock{data: data, cursors: make(map[string]int), logger: logger}
}

// LoadMock reads bucket data from a JSON file.
func LoadMock(path string, logger *zap.Logger) (*Mock, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mock responses %q: %w", path, err)
	}

	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse mock responses %q: %w", path, err)
	}

	return NewMock(data, logger), nil
}

func (m *Mock) GenerateJSON(_ context.Context, _ string, meta map[string]string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++

	bucket := meta[MetaBucket]
	value, key, ok := m.lookup(bucket, meta)
	if !ok {
		return nil, fmt.Errorf("no mock response for bucket %q", bucket)
	}

	m.logger.Debug("serving mock response", zap.String("bucket", bucket), zap.String("key", key))

	switch v := value.(type) {
	case map[string]any:
		return cloneObject(v)
	case string:
		return DecodeObject(v)
	default:
		return nil, fmt.Errorf("mock response for bucket %q key %q is not an object", bucket, key)
	}
}

// Ordered is always true: sequence entries are handed out in call order.
func (m *Mock) Ordered() bool { return true }

// Calls returns how many times GenerateJSON was invoked.
func (m *Mock) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *Mock) lookup(bucket string, meta map[string]string) (any, string, bool) {
	entries, ok := m.data[bucket]
	if !ok {
		return nil, "", false
	}

	switch v := entries.(type) {
	case []any:
		return m.next(bucket, mockListKey, v), mockListKey, true
	case map[string]any:
		for _, name := range mockLookupKeys {
			key := meta[name]
			if key == "" {
				continue
			}
			if value, ok := v[key]; ok {
				return m.next(bucket, key, value), key, true
			}
		}
		if value, ok := v[mockDefaultKey]; ok {
			return m.next(bucket, mockDefaultKey, value), mockDefaultKey, true
		}
	}

	return nil, "", false
}

func (m *Mock) next(bucket, key string, value any) any {
	sequence, ok := value.([]any)
	if !ok {
		return value
	}
	if len(sequence) == 0 {
		return nil
	}

	cursor := bucket + "/" + key
	idx := m.cursors[cursor]
	if idx >= len(sequence) {
		idx = len(sequence) - 1
	}
	m.cursors[cursor] = idx + 1
	return sequence[idx]
}

func cloneObject(v map[string]any) (map[string]any, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("copy mock response: %w", err)
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("copy mock response: %w", err)
	}
	return out, nil
}
