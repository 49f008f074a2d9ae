package store

import (
	"container/list"
	"sort"
	"sync"
)

// Store keeps scan sessions or monitors by id
type Store[T any] interface {
	Get(id string) (T, bool)
	Put(id string, v T)
	// List returns every entry in insertion order
	List() []T
	Len() int
}

type entry[T any] struct {
	id    string
	seq   uint64
	value T
}

// Memory is an in-memory Store. With maxEntries > 0 it evicts the least
// recently used entry that is not active.
type Memory[T any] struct {
	mu         sync.Mutex
	items      map[string]*list.Element
	lru        *list.List
	seq        uint64
	maxEntries int
	active     func(T) bool
}

// NewMemory creates an in-memory store. active may be nil.
func NewMemory[T any](maxEntries int, active func(T) bool) *Memory[T] {
	if active == nil {
		active = func(T) bool { return false }
	}
	return &Memory[T]{
		items:      make(map[string]*list.Element),
		lru:        list.New(),
		maxEntries: maxEntries,
		active:     active,
	}
}

func (m *Memory[T]) Get(id string) (T, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, ok := m.items[id]
	if !ok {
		var zero T
		return zero, false
	}
	m.lru.MoveToFront(el)
	return el.Value.(*entry[T]).value, true
}

func (m *Memory[T]) Put(id string, v T) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, ok := m.items[id]; ok {
		el.Value.(*entry[T]).value = v
		m.lru.MoveToFront(el)
		return
	}
	m.seq++
	m.items[id] = m.lru.PushFront(&entry[T]{id: id, seq: m.seq, value: v})
	m.evictLocked()
}

func (m *Memory[T]) evictLocked() {
	if m.maxEntries <= 0 {
		return
	}
	// the entry just inserted sits at the front and is never a candidate
	for el := m.lru.Back(); el != nil && el != m.lru.Front() && m.lru.Len() > m.maxEntries; {
		prev := el.Prev()
		e := el.Value.(*entry[T])
		if !m.active(e.value) {
			m.lru.Remove(el)
			delete(m.items, e.id)
		}
		el = prev
	}
}

func (m *Memory[T]) List() []T {
	m.mu.Lock()
	entries := make([]*entry[T], 0, len(m.items))
	for el := m.lru.Front(); el != nil; el = el.Next() {
		entries = append(entries, el.Value.(*entry[T]))
	}
	m.mu.Unlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]T, len(entries))
	for i, e := range entries {
		out[i] = e.value
	}
	return out
}

func (m *Memory[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
