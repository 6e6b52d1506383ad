package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps the presence maps in process memory. It is only correct for a
// single server instance and is what tests run against.
type MemoryStore struct {
	mu     sync.Mutex
	spaces map[string]*orderedMap
	locks  map[string]memoryLock
	now    func() time.Time
}

type memoryLock struct {
	token     string
	expiresAt time.Time
}

type orderedMap struct {
	keys   []string
	values map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		spaces: make(map[string]*orderedMap),
		locks:  make(map[string]memoryLock),
		now:    time.Now,
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) space(ns string) *orderedMap {
	m := s.spaces[ns]
	if m == nil {
		m = &orderedMap{values: make(map[string]string)}
		s.spaces[ns] = m
	}
	return m
}

func (m *orderedMap) remove(key string) bool {
	if _, ok := m.values[key]; !ok {
		return false
	}
	delete(m.values, key)
	for i, k := range m.keys {
		if k == key {
			m.keys = append(m.keys[:i], m.keys[i+1:]...)
			break
		}
	}
	return true
}

func (s *MemoryStore) Get(_ context.Context, ns, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.space(ns).values[key]
	if !ok {
		return "", ErrMiss
	}
	return v, nil
}

func (s *MemoryStore) Set(_ context.Context, ns, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.space(ns)
	if _, ok := m.values[key]; !ok {
		m.keys = append(m.keys, key)
	}
	m.values[key] = value
	return nil
}

func (s *MemoryStore) SetNX(_ context.Context, ns, key, value string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.space(ns)
	if _, ok := m.values[key]; ok {
		return false, nil
	}
	m.keys = append(m.keys, key)
	m.values[key] = value
	return true, nil
}

func (s *MemoryStore) Delete(_ context.Context, ns, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.space(ns).remove(key), nil
}

func (s *MemoryStore) CompareAndDelete(_ context.Context, ns, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.space(ns)
	if v, ok := m.values[key]; !ok || v != expected {
		return false, nil
	}
	return m.remove(key), nil
}

func (s *MemoryStore) PopPair(_ context.Context, ns, self string) (string, string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.space(ns)
	for _, k := range m.keys {
		if k == self {
			continue
		}
		v := m.values[k]
		m.remove(k)
		m.remove(self)
		return k, v, true, nil
	}
	return "", "", false, nil
}

func (s *MemoryStore) Keys(_ context.Context, ns string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m := s.space(ns)
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out, nil
}

func (s *MemoryStore) Lock(_ context.Context, key, token string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if l, ok := s.locks[key]; ok && now.Before(l.expiresAt) {
		return false, nil
	}
	s.locks[key] = memoryLock{token: token, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *MemoryStore) Unlock(_ context.Context, key, token string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[key]
	if !ok || l.token != token {
		return false, nil
	}
	delete(s.locks, key)
	return true, nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }
