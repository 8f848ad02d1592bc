package membership

import (
	"sort"
	"sync"
)

// Set is a set of entity ids for one binary user relationship
// (liked, bookmarked, read). Safe for concurrent use.
type Set struct {
	name string
	ids  map[int64]struct{}
	mu   sync.RWMutex
}

// NewSet creates an empty named set
func NewSet(name string) *Set {
	return &Set{
		name: name,
		ids:  make(map[int64]struct{}),
	}
}

// Name returns the relationship the set tracks
func (s *Set) Name() string {
	return s.name
}

// Add inserts id and reports whether the set changed
func (s *Set) Add(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; ok {
		return false
	}
	s.ids[id] = struct{}{}
	return true
}

// Remove deletes id and reports whether the set changed
func (s *Set) Remove(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[id]; !ok {
		return false
	}
	delete(s.ids, id)
	return true
}

// Apply adds id when add is true and removes it otherwise
func (s *Set) Apply(id int64, add bool) bool {
	if add {
		return s.Add(id)
	}
	return s.Remove(id)
}

// Has reports whether id is a member
func (s *Set) Has(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.ids[id]
	return ok
}

// Replace swaps the whole membership for ids
func (s *Set) Replace(ids []int64) {
	next := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}

	s.mu.Lock()
	s.ids = next
	s.mu.Unlock()
}

// Clear removes every member
func (s *Set) Clear() {
	s.Replace(nil)
}

// IDs returns the members in ascending order
func (s *Set) IDs() []int64 {
	s.mu.RLock()
	ids := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	s.mu.RUnlock()

	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Len returns the number of members
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}
