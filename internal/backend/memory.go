package backend

import (
	"context"
	"encoding/json"
	"sync"
)

// Memory is an in-process Backend. It is safe for concurrent use.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[string]json.RawMessage)}
}

func (m *Memory) Fetch(_ context.Context, familyID, key string) (json.RawMessage, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.data[familyID][key]
	return value, ok, nil
}

func (m *Memory) FetchAll(_ context.Context, familyID string) (map[string]json.RawMessage, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]json.RawMessage, len(m.data[familyID]))
	for k, v := range m.data[familyID] {
		out[k] = v
	}
	return out, nil
}

func (m *Memory) Push(_ context.Context, familyID, key string, value json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	family, ok := m.data[familyID]
	if !ok {
		family = make(map[string]json.RawMessage)
		m.data[familyID] = family
	}
	family[key] = value
	return nil
}

func (m *Memory) Remove(_ context.Context, familyID, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data[familyID], key)
	return nil
}

func (m *Memory) Ping(context.Context) error {
	return nil
}
