// Package store provides DocumentStore implementations.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/entraide/caisse-engine/generic"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu          sync.RWMutex
	documents   map[key]generic.Document
	journal     map[key][]generic.Entry
	idempotency map[string]bool
}

type key struct {
	Product generic.ProductKind
	ID      generic.ContractID
}

func NewMemory() *Memory {
	return &Memory{
		documents:   make(map[key]generic.Document),
		journal:     make(map[key][]generic.Entry),
		idempotency: make(map[string]bool),
	}
}

func (m *Memory) Load(_ context.Context, product generic.ProductKind, id generic.ContractID) (generic.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	doc, ok := m.documents[key{product, id}]
	if !ok {
		return generic.Document{}, generic.ErrContractNotFound
	}
	return cloneDocument(doc), nil
}

// Save checks version and idempotency keys before writing anything, so a
// rejected save leaves both maps untouched.
func (m *Memory) Save(_ context.Context, doc generic.Document, expectedVersion int64, entries []generic.Entry) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := key{doc.Product, doc.ID}
	current, exists := m.documents[k]
	actual := int64(0)
	if exists {
		actual = current.Version
	}
	if actual != expectedVersion {
		return 0, &generic.ConcurrentModificationError{
			ContractID:      doc.ID,
			ExpectedVersion: expectedVersion,
			ActualVersion:   actual,
		}
	}

	seen := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.IdempotencyKey == "" {
			continue
		}
		if m.idempotency[e.IdempotencyKey] || seen[e.IdempotencyKey] {
			return 0, generic.ErrDuplicateIdempotencyKey
		}
		seen[e.IdempotencyKey] = true
	}

	doc = cloneDocument(doc)
	doc.Version = expectedVersion + 1
	m.documents[k] = doc

	for _, e := range entries {
		m.appendLocked(k, e)
	}
	return doc.Version, nil
}

func (m *Memory) appendLocked(k key, e generic.Entry) {
	entries := m.journal[k]

	// Binary search for insertion point keeps the journal ordered by effective time
	i := sort.Search(len(entries), func(i int) bool {
		return entries[i].EffectiveAt.After(e.EffectiveAt)
	})
	entries = append(entries, generic.Entry{})
	copy(entries[i+1:], entries[i:])
	entries[i] = e
	m.journal[k] = entries

	if e.IdempotencyKey != "" {
		m.idempotency[e.IdempotencyKey] = true
	}
}

func (m *Memory) List(_ context.Context, product generic.ProductKind) ([]generic.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []generic.Document
	for k, doc := range m.documents {
		if k.Product == product {
			out = append(out, cloneDocument(doc))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListOpen(ctx context.Context, product generic.ProductKind) ([]generic.ContractID, error) {
	docs, err := m.List(ctx, product)
	if err != nil {
		return nil, err
	}
	var ids []generic.ContractID
	for _, d := range docs {
		if d.Open {
			ids = append(ids, d.ID)
		}
	}
	return ids, nil
}

func (m *Memory) Entries(_ context.Context, product generic.ProductKind, id generic.ContractID) ([]generic.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	src := m.journal[key{product, id}]
	result := make([]generic.Entry, len(src))
	copy(result, src)
	return result, nil
}

func cloneDocument(d generic.Document) generic.Document {
	d.Body = append([]byte(nil), d.Body...)
	return d
}

// Reset drops every document and journal entry.
func (m *Memory) Reset(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.documents = make(map[key]generic.Document)
	m.journal = make(map[key][]generic.Entry)
	m.idempotency = make(map[string]bool)
	return nil
}
