package draft

import (
	"context"
	"errors"
	"strings"
	"sync"
)

// ErrNotFound is returned by a Backend when a key has no value.
var ErrNotFound = errors.New("draft not found")

// Backend is a string key-value store. Keys returns the keys beginning
// with prefix.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context, prefix string) ([]string, error)
}

type MemoryBackend struct {
	mu    sync.RWMutex
	order []string
	vals  map[string]string
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{vals: map[string]string{}}
}

func (m *MemoryBackend) Get(_ context.Context, key string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.vals[key]
	if !ok {
		return "", ErrNotFound
	}
	return v, nil
}

func (m *MemoryBackend) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; !ok {
		m.order = append(m.order, key)
	}
	m.vals[key] = value
	return nil
}

func (m *MemoryBackend) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; !ok {
		return nil
	}
	delete(m.vals, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryBackend) Keys(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for _, k := range m.order {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

// namespaced partitions one Backend among several owners.
type namespaced struct {
	inner Backend
	ns    string
}

var nsEscaper = strings.NewReplacer("%", "%25", ":", "%3A")

// Namespace returns a view of b whose keys are isolated under ns. The
// separator is escaped inside ns, so no namespace is a prefix of another.
func Namespace(b Backend, ns string) Backend {
	return &namespaced{inner: b, ns: nsEscaper.Replace(ns) + ":"}
}

func (n *namespaced) Get(ctx context.Context, key string) (string, error) {
	return n.inner.Get(ctx, n.ns+key)
}

func (n *namespaced) Set(ctx context.Context, key, value string) error {
	return n.inner.Set(ctx, n.ns+key, value)
}

func (n *namespaced) Delete(ctx context.Context, key string) error {
	return n.inner.Delete(ctx, n.ns+key)
}

func (n *namespaced) Keys(ctx context.Context, prefix string) ([]string, error) {
	keys, err := n.inner.Keys(ctx, n.ns+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, strings.TrimPrefix(k, n.ns))
	}
	return out, nil
}

func (n *namespaced) Ping(ctx context.Context) error {
	if p, ok := n.inner.(interface{ Ping(context.Context) error }); ok {
		return p.Ping(ctx)
	}
	return nil
}
