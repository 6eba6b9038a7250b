package pkg

import (
	"cmp"
	"slices"
)

type Map[K comparable, V any] map[K]V

func (m Map[K, V]) Get(key K) V {
	return m[key]
}

func (m Map[K, V]) Set(key K, value V) {
	m[key] = value
}

func (m Map[K, V]) Has(key K) bool {
	_, ok := m[key]
	return ok
}

func (m Map[K, V]) Delete(key K) {
	delete(m, key)
}

func (m Map[K, V]) Keys() []K {
	keys := make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

// Clone returns a shallow copy of m.
func (m Map[K, V]) Clone() Map[K, V] {
	c := make(Map[K, V], len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m Map[K, V]) []K {
	keys := m.Keys()
	slices.Sort(keys)
	return keys
}

// InsertSortMap is a map that remembers the order keys were first pushed in.
type InsertSortMap[K comparable, V any] struct {
	Idx    Map[K, V]
	Sorted []K
}

func NewInsertSortMap[K comparable, V any]() *InsertSortMap[K, V] {
	return &InsertSortMap[K, V]{Idx: Map[K, V]{}, Sorted: []K{}}
}

func (m *InsertSortMap[K, V]) Len() int { return len(m.Sorted) }

func (m *InsertSortMap[K, V]) Get(key K) V { return m.Idx.Get(key) }

func (m *InsertSortMap[K, V]) Has(key K) bool { return m.Idx.Has(key) }

// Push sets key to value. A new key is appended to the order, an existing
// key keeps its position.
func (m *InsertSortMap[K, V]) Push(key K, value V) {
	if !m.Idx.Has(key) {
		m.Sorted = append(m.Sorted, key)
	}
	m.Idx.Set(key, value)
}

func (m *InsertSortMap[K, V]) Delete(key K) {
	if !m.Idx.Has(key) {
		return
	}
	m.Idx.Delete(key)
	for i, k := range m.Sorted {
		if k == key {
			m.Sorted = append(m.Sorted[:i], m.Sorted[i+1:]...)
			break
		}
	}
}

// Each calls f for every entry in insertion order until f returns false.
func (m *InsertSortMap[K, V]) Each(f func(K, V) bool) {
	for _, k := range m.Sorted {
		if !f(k, m.Idx[k]) {
			return
		}
	}
}

func (m *InsertSortMap[K, V]) Clone() *InsertSortMap[K, V] {
	return &InsertSortMap[K, V]{Idx: m.Idx.Clone(), Sorted: slices.Clone(m.Sorted)}
}
