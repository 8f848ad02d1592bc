package membership

import (
	"sync"

	"github.com/nkkko/verse/pkg/proto"
)

// Set names
const (
	LikedPoems      = "liked_poems"
	BookmarkedPoems = "bookmarked_poems"
	ReadBooks       = "read_books"
)

// Store holds the session state of the signed-in user: who they are and
// the three membership sets the action coordinators mutate.
type Store struct {
	Liked      *Set
	Bookmarked *Set
	Read       *Set

	user *proto.User
	mu   sync.RWMutex
}

// Snapshot is a point-in-time copy of a Store's membership sets
type Snapshot struct {
	UserID     int64   `json:"user_id"`
	Liked      []int64 `json:"liked"`
	Bookmarked []int64 `json:"bookmarked"`
	Read       []int64 `json:"read"`
}

// NewStore creates an empty store
func NewStore() *Store {
	return &Store{
		Liked:      NewSet(LikedPoems),
		Bookmarked: NewSet(BookmarkedPoems),
		Read:       NewSet(ReadBooks),
	}
}

// SetUser records the signed-in user
func (s *Store) SetUser(user *proto.User) {
	s.mu.Lock()
	s.user = user
	s.mu.Unlock()
}

// User returns the signed-in user, or nil
func (s *Store) User() *proto.User {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user
}

// UserID returns the signed-in user's id, or 0 when nobody is signed in
func (s *Store) UserID() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.user == nil {
		return 0
	}
	return s.user.Id
}

// Snapshot copies the current membership
func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		UserID:     s.UserID(),
		Liked:      s.Liked.IDs(),
		Bookmarked: s.Bookmarked.IDs(),
		Read:       s.Read.IDs(),
	}
}

// Restore replaces the membership with a snapshot. The user is left alone.
func (s *Store) Restore(snap Snapshot) {
	s.Liked.Replace(snap.Liked)
	s.Bookmarked.Replace(snap.Bookmarked)
	s.Read.Replace(snap.Read)
}

// Reset signs the user out and clears every set
func (s *Store) Reset() {
	s.SetUser(nil)
	s.Liked.Clear()
	s.Bookmarked.Clear()
	s.Read.Clear()
}
