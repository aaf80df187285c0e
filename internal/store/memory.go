package store

import (
	"context"
	"fmt"
	"sync"
)

// Memory is an in-memory Store used by tests and ephemeral runs.
type Memory struct {
	mu    sync.Mutex
	colls map[string]*memColl
}

type memColl struct {
	docs  map[string]Fields
	order []string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{colls: map[string]*memColl{}}
}

func (m *Memory) coll(name string) *memColl {
	c, ok := m.colls[name]
	if !ok {
		c = &memColl{docs: map[string]Fields{}}
		m.colls[name] = c
	}
	return c
}

func (m *Memory) Create(ctx context.Context, collection, id string, fields Fields) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(collection)
	if _, exists := c.docs[id]; exists {
		return Record{}, fmt.Errorf("create %s/%s: already exists", collection, id)
	}
	c.docs[id] = cloneFields(fields)
	c.order = append(c.order, id)
	return Record{ID: id, Fields: cloneFields(fields)}, nil
}

func (m *Memory) Get(ctx context.Context, collection, id string) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(collection)
	f, ok := c.docs[id]
	if !ok {
		return Record{}, fmt.Errorf("get %s/%s: %w", collection, id, ErrNotFound)
	}
	return Record{ID: id, Fields: cloneFields(f)}, nil
}

func (m *Memory) Update(ctx context.Context, collection, id string, fields Fields) (Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(collection)
	f, ok := c.docs[id]
	if !ok {
		return Record{}, fmt.Errorf("update %s/%s: %w", collection, id, ErrNotFound)
	}
	for k, v := range fields {
		f[k] = v
	}
	return Record{ID: id, Fields: cloneFields(f)}, nil
}

func (m *Memory) Delete(ctx context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(collection)
	if _, ok := c.docs[id]; !ok {
		return fmt.Errorf("delete %s/%s: %w", collection, id, ErrNotFound)
	}
	delete(c.docs, id)
	for i, other := range c.order {
		if other == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	return nil
}

func (m *Memory) List(ctx context.Context, collection string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := m.coll(collection)
	res := make([]Record, 0, len(c.order))
	for _, id := range c.order {
		res = append(res, Record{ID: id, Fields: cloneFields(c.docs[id])})
	}
	return res, nil
}

func cloneFields(f Fields) Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}
