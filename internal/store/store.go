package store

import (
	"sync"
)

// Memory is an in-process key/value store for the status cache.
type Memory struct {
	mu     sync.Mutex
	values map[string]string
	writes map[string]int
}

func NewMemory() *Memory {
	return &Memory{
		values: make(map[string]string),
		writes: make(map[string]int),
	}
}

func (m *Memory) Read(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *Memory) Write(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	m.writes[key]++
	return nil
}

// Writes returns how many times key has been written.
func (m *Memory) Writes(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key]
}
