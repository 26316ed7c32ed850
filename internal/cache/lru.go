// internal/cache/lru.go
package cache

import (
	"container/list"
)

// Store is an ordered map of fingerprint -> Entry bounded by entry count.
// The front of the list is the most recently used entry.
// Store is not safe for concurrent use; SpanCache serializes access.
type Store struct {
	capacity int
	items    map[string]*list.Element
	lruList  *list.List

	evictions int64
}

// NewStore creates a store holding at most capacity entries
func NewStore(capacity int) *Store {
	if capacity < 1 {
		capacity = 1
	}
	return &Store{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		lruList:  list.New(),
	}
}

// Peek returns an entry without changing its position
func (s *Store) Peek(key string) (*Entry, bool) {
	elem, ok := s.items[key]
	if !ok {
		return nil, false
	}
	return elem.Value.(*Entry), true
}

// Promote moves an entry to the most recently used position
func (s *Store) Promote(key string) {
	if elem, ok := s.items[key]; ok {
		s.lruList.MoveToFront(elem)
	}
}

// Put inserts or replaces an entry at the most recently used position and
// returns the keys evicted to get back under capacity.
func (s *Store) Put(entry *Entry) []string {
	key := string(entry.Key)

	if elem, ok := s.items[key]; ok {
		elem.Value = entry
		s.lruList.MoveToFront(elem)
		return nil
	}

	s.items[key] = s.lruList.PushFront(entry)

	var evicted []string
	for s.lruList.Len() > s.capacity {
		evicted = append(evicted, s.evictOldest())
	}
	return evicted
}

// PutOldest inserts an entry at the least recently used position. It never replaces an
// existing entry and never evicts; it reports false when the key exists or the store is full.
func (s *Store) PutOldest(entry *Entry) bool {
	key := string(entry.Key)
	if _, ok := s.items[key]; ok {
		return false
	}
	if s.lruList.Len() >= s.capacity {
		return false
	}
	s.items[key] = s.lruList.PushBack(entry)
	return true
}

// Delete removes an entry
func (s *Store) Delete(key string) {
	if elem, ok := s.items[key]; ok {
		s.lruList.Remove(elem)
		delete(s.items, key)
	}
}

// evictOldest removes the least recently used entry
func (s *Store) evictOldest() string {
	elem := s.lruList.Back()
	if elem == nil {
		return ""
	}

	s.lruList.Remove(elem)
	entry := elem.Value.(*Entry)
	delete(s.items, string(entry.Key))
	s.evictions++
	return string(entry.Key)
}

// Len returns the number of entries
func (s *Store) Len() int {
	return s.lruList.Len()
}

// Evictions returns how many entries were dropped for capacity
func (s *Store) Evictions() int64 {
	return s.evictions
}

// Entries returns all entries, least recently used first
func (s *Store) Entries() []*Entry {
	out := make([]*Entry, 0, s.lruList.Len())
	for elem := s.lruList.Back(); elem != nil; elem = elem.Prev() {
		out = append(out, elem.Value.(*Entry))
	}
	return out
}

// Clear removes all entries
func (s *Store) Clear() {
	s.items = make(map[string]*list.Element)
	s.lruList = list.New()
}
