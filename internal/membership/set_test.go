package membership

import (
	"sync"
	"testing"

	"github.com/nkkko/verse/pkg/proto"
	"github.com/stretchr/testify/assert"
)

func TestSetAddRemoveIdempotent(t *testing.T) {
	s := NewSet("liked")

	assert.True(t, s.Add(1))
	assert.False(t, s.Add(1), "second add should not change the set")
	assert.True(t, s.Has(1))
	assert.Equal(t, 1, s.Len())

	assert.True(t, s.Remove(1))
	assert.False(t, s.Remove(1), "removing an absent id should not change the set")
	assert.False(t, s.Has(1))
	assert.Equal(t, 0, s.Len())
}

func TestSetApply(t *testing.T) {
	s := NewSet("read")

	assert.True(t, s.Apply(5, true))
	assert.True(t, s.Has(5))
	assert.True(t, s.Apply(5, false))
	assert.False(t, s.Has(5))
}

func TestSetReplaceAndIDs(t *testing.T) {
	s := NewSet("bookmarked")
	s.Add(100)

	s.Replace([]int64{3, 1, 2, 2})
	assert.Equal(t, []int64{1, 2, 3}, s.IDs())
	assert.False(t, s.Has(100))

	s.Clear()
	assert.Empty(t, s.IDs())
}

func TestSetConcurrentAccess(t *testing.T) {
	s := NewSet("liked")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			s.Add(id)
			s.Has(id)
			s.IDs()
		}(int64(i))
	}
	wg.Wait()

	assert.Equal(t, 50, s.Len())
}

func TestStoreSnapshotRestore(t *testing.T) {
	store := NewStore()
	store.SetUser(&proto.User{Id: 9, Username: "nedim"})
	store.Liked.Add(1)
	store.Bookmarked.Add(2)
	store.Read.Add(3)

	snap := store.Snapshot()
	assert.Equal(t, int64(9), snap.UserID)
	assert.Equal(t, []int64{1}, snap.Liked)

	other := NewStore()
	other.Restore(snap)
	assert.True(t, other.Liked.Has(1))
	assert.True(t, other.Bookmarked.Has(2))
	assert.True(t, other.Read.Has(3))
	assert.Nil(t, other.User())
	assert.Equal(t, int64(0), other.UserID())
}

func TestStoreReset(t *testing.T) {
	store := NewStore()
	store.SetUser(&proto.User{Id: 1})
	store.Liked.Add(1)

	store.Reset()
	assert.Nil(t, store.User())
	assert.Equal(t, 0, store.Liked.Len())
	assert.Equal(t, LikedPoems, store.Liked.Name())
}
