package remote

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRemote is an in-memory RemoteQuery fake for tests and the debug
// CLI, grounded on bt-go/internal/vault/memory.go's pattern of backing a
// collaborator interface with a plain in-memory map instead of a fake
// server.
type MemoryRemote struct {
	mu       sync.RWMutex
	children map[string][]Child // dirUUID -> children
	items    map[string]Child   // uuid -> item, for GetItem
	searches map[string][]SearchMatch
	recents  []SearchMatch
}

// NewMemoryRemote creates an empty fake remote.
func NewMemoryRemote() *MemoryRemote {
	return &MemoryRemote{
		children: make(map[string][]Child),
		items:    make(map[string]Child),
		searches: make(map[string][]SearchMatch),
	}
}

// SetChildren registers dirUUID's listing and indexes each child for GetItem.
func (m *MemoryRemote) SetChildren(dirUUID string, children []Child) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.children[dirUUID] = children
	for _, c := range children {
		m.items[c.UUID] = c
	}
}

// SetSearchResults registers what Search(q) should return for query q.
func (m *MemoryRemote) SetSearchResults(query string, matches []SearchMatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches[query] = matches
}

// SetRecents registers what Search(SearchQuery{IsRecents: true}) returns.
func (m *MemoryRemote) SetRecents(matches []SearchMatch) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recents = matches
}

func (m *MemoryRemote) ListDir(_ context.Context, dirUUID string) ([]Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	children, ok := m.children[dirUUID]
	if !ok {
		return nil, fmt.Errorf("remote: no such directory %s", dirUUID)
	}
	out := make([]Child, len(children))
	copy(out, children)
	return out, nil
}

func (m *MemoryRemote) GetItem(_ context.Context, uuid string) (Child, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.items[uuid]
	if !ok {
		return Child{}, fmt.Errorf("remote: no such item %s", uuid)
	}
	return c, nil
}

func (m *MemoryRemote) Search(_ context.Context, q SearchQuery) ([]SearchMatch, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if q.IsRecents {
		out := make([]SearchMatch, len(m.recents))
		copy(out, m.recents)
		return out, nil
	}
	matches := m.searches[q.Query]
	out := make([]SearchMatch, len(matches))
	copy(out, matches)
	return out, nil
}
