package store

import (
	"sync"

	"github.com/hsie-lab/hsie-pipeline/evidence"
)

// Memory is an in-process Store used by tests and dry runs. Safe for
// concurrent use.
type Memory struct {
	mu       sync.RWMutex
	nodes    map[string]evidence.Evidence
	children map[string][]string
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		nodes:    make(map[string]evidence.Evidence),
		children: make(map[string][]string),
	}
}

func (m *Memory) Put(ev evidence.Evidence) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.nodes[ev.ID]; ok {
		return ev.ID, nil
	}
	err := validate(ev, func(id string) (evidence.Evidence, bool) {
		p, ok := m.nodes[id]
		return p, ok
	})
	if err != nil {
		return "", err
	}
	m.nodes[ev.ID] = ev
	if ev.ParentID != "" {
		m.children[ev.ParentID] = append(m.children[ev.ParentID], ev.ID)
	}
	return ev.ID, nil
}

func (m *Memory) Get(id string) (evidence.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ev, ok := m.nodes[id]
	if !ok {
		return evidence.Evidence{}, &evidence.NotFoundError{Evidence: id}
	}
	return ev, nil
}

func (m *Memory) Children(id string) ([]evidence.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.nodes[id]; !ok {
		return nil, &evidence.NotFoundError{Evidence: id}
	}
	out := make([]evidence.Evidence, 0, len(m.children[id]))
	for _, cid := range m.children[id] {
		out = append(out, m.nodes[cid])
	}
	sortEvidence(out)
	return out, nil
}

func (m *Memory) Lineage(id string) ([]evidence.Evidence, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var chain []evidence.Evidence
	cur, ok := m.nodes[id]
	if !ok {
		return nil, &evidence.NotFoundError{Evidence: id}
	}
	for {
		chain = append([]evidence.Evidence{cur}, chain...)
		if cur.ParentID == "" {
			return chain, nil
		}
		parent, ok := m.nodes[cur.ParentID]
		if !ok {
			return nil, &evidence.IntegrityError{Evidence: cur.ID, Reason: "parent " + cur.ParentID + " missing from store"}
		}
		cur = parent
	}
}
