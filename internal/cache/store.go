package cache

import (
	"errors"
	"net/http"
	"sort"
	"sync"
	"time"
)

// ErrCacheMiss is returned by a Store when no entry exists for a key.
// It never reaches a request initiator: the proxy falls through to its next tier.
var ErrCacheMiss = errors.New("cache miss")

// Entry is one cached response
type Entry struct {
	Key        string      `json:"key"`
	Generation string      `json:"generation"`
	Status     int         `json:"status"`
	Header     http.Header `json:"header"`
	Body       []byte      `json:"-"`
	StoredAt   time.Time   `json:"storedAt"`
}

// Store holds entries grouped in namespaces. Writes are atomic per key and all
// methods are safe for concurrent use.
type Store interface {
	Get(namespace, key string) (*Entry, error)
	Put(namespace string, entry *Entry) error
	Keys(namespace string) ([]string, error)
	Namespaces() ([]string, error)
	DeleteNamespace(namespace string) error
	Close() error
}

// MemoryStore keeps entries in process memory
type MemoryStore struct {
	mu         sync.RWMutex
	namespaces map[string]map[string]*Entry
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{namespaces: make(map[string]map[string]*Entry)}
}

func (m *MemoryStore) Get(namespace, key string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.namespaces[namespace][key]
	if !ok {
		return nil, ErrCacheMiss
	}
	return e.clone(), nil
}

func (m *MemoryStore) Put(namespace string, entry *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ns, ok := m.namespaces[namespace]
	if !ok {
		ns = make(map[string]*Entry)
		m.namespaces[namespace] = ns
	}
	ns[entry.Key] = entry.clone()
	return nil
}

func (m *MemoryStore) Keys(namespace string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.namespaces[namespace]))
	for k := range m.namespaces[namespace] {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, nil
}

func (m *MemoryStore) Namespaces() ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.namespaces))
	for n := range m.namespaces {
		names = append(names, n)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemoryStore) DeleteNamespace(namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.namespaces, namespace)
	return nil
}

func (m *MemoryStore) Close() error { return nil }

func (e *Entry) clone() *Entry {
	cp := *e
	cp.Header = e.Header.Clone()
	cp.Body = append([]byte(nil), e.Body...)
	return &cp
}
