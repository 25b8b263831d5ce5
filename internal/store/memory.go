package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/medatlas/harvester/internal/harvest"
)

// Memory implements harvest.Store in process memory. It backs tests and dry
// runs where no database is configured.
type Memory struct {
	mu      sync.Mutex
	records map[harvest.Kind]map[string]json.RawMessage
	order   map[harvest.Kind][]string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		records: make(map[harvest.Kind]map[string]json.RawMessage),
		order:   make(map[harvest.Kind][]string),
	}
}

// Upsert stores the record under its key, overwriting any previous value.
func (m *Memory) Upsert(_ context.Context, kind harvest.Kind, key string, record any) error {
	if key == "" {
		return fmt.Errorf("upsert into %s: empty natural key", kind)
	}
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshal record: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.records[kind] == nil {
		m.records[kind] = make(map[string]json.RawMessage)
	}
	if _, exists := m.records[kind][key]; !exists {
		m.order[kind] = append(m.order[kind], key)
	}
	m.records[kind][key] = payload
	return nil
}

// Count returns the number of records matching the filter.
func (m *Memory) Count(_ context.Context, kind harvest.Kind, filter harvest.Filter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, key := range m.order[kind] {
		if matchesFilter(m.records[kind][key], filter) {
			count++
		}
	}
	return count, nil
}

// Find returns matching payloads in insertion order.
func (m *Memory) Find(_ context.Context, kind harvest.Kind, filter harvest.Filter) ([]json.RawMessage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var payloads []json.RawMessage
	for _, key := range m.order[kind] {
		if payload := m.records[kind][key]; matchesFilter(payload, filter) {
			payloads = append(payloads, payload)
		}
	}
	return payloads, nil
}

// Close is a no-op.
func (m *Memory) Close() {}

// matchesFilter compares top-level payload fields against the filter by
// string value.
func matchesFilter(payload json.RawMessage, filter harvest.Filter) bool {
	if len(filter) == 0 {
		return true
	}
	var fields map[string]any
	if err := json.Unmarshal(payload, &fields); err != nil {
		return false
	}
	for key, want := range filter {
		got, ok := fields[key]
		if !ok || fmt.Sprintf("%v", got) != want {
			return false
		}
	}
	return true
}
