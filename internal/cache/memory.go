package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const DefaultMemorySize = 256

// Memory is a bounded in-process LRU. Entries older than the TTL read as
// misses; a TTL of 0 keeps them until evicted.
type Memory struct {
	lru *expirable.LRU[string, string]
}

func NewMemory(size int, ttl time.Duration) *Memory {
	if size <= 0 {
		size = DefaultMemorySize
	}
	return &Memory{lru: expirable.NewLRU[string, string](size, nil, ttl)}
}

func (m *Memory) Get(_ context.Context, key string) (string, bool, error) {
	v, ok := m.lru.Get(key)
	return v, ok, nil
}

func (m *Memory) Set(_ context.Context, key, value string) error {
	m.lru.Add(key, value)
	return nil
}

func (m *Memory) Len() int {
	return m.lru.Len()
}
