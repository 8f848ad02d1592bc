package actions

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/nkkko/verse/internal/lockmanager"
	"github.com/nkkko/verse/internal/membership"
	"github.com/nkkko/verse/pkg/client"
	"github.com/nkkko/verse/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	api       *fakeAPI
	store     *membership.Store
	publisher *recordingPublisher
	locks     *lockmanager.LockManager
	poems     *PoemActions
	books     *BookActions
	friends   *FriendActions
}

func newFixture() *fixture {
	api := &fakeAPI{}
	store := membership.NewStore()
	store.SetUser(&proto.User{Id: 1, Username: "fuzuli"})
	publisher := &recordingPublisher{}
	locks := lockmanager.NewLockManager(lockmanager.DefaultConfig())
	coordinator := NewCoordinator(locks, publisher)

	return &fixture{
		api:       api,
		store:     store,
		publisher: publisher,
		locks:     locks,
		poems:     NewPoemActions(api, store, coordinator),
		books:     NewBookActions(api, store, coordinator),
		friends:   NewFriendActions(api, coordinator),
	}
}

func TestMarkAsReadShortCircuit(t *testing.T) {
	f := newFixture()
	f.store.Read.Add(5)

	err := f.books.MarkAsRead(context.Background(), &proto.Book{Id: 5})
	require.NoError(t, err)
	assert.Empty(t, f.api.recorded(), "already-read book must not reach the server")
	assert.True(t, f.books.IsRead(5))

	err = f.books.MarkAsUnread(context.Background(), &proto.Book{Id: 6})
	require.NoError(t, err)
	assert.Empty(t, f.api.recorded())
	assert.False(t, f.books.IsRead(6))
}

func TestMembershipShortCircuit(t *testing.T) {
	f := newFixture()
	f.store.Liked.Add(3)

	require.NoError(t, f.poems.Like(context.Background(), &proto.Poem{Id: 3}))
	require.NoError(t, f.poems.Unbookmark(context.Background(), &proto.Poem{Id: 3}))
	assert.Empty(t, f.api.recorded())
}

func TestRollbackRestoresMembership(t *testing.T) {
	tests := []struct {
		name   string
		seed   bool
		run    func(*fixture) error
		set    func(*fixture) *membership.Set
		remote string
	}{
		{"like", false, func(f *fixture) error { return f.poems.Like(context.Background(), &proto.Poem{Id: 9}) },
			func(f *fixture) *membership.Set { return f.store.Liked }, "like"},
		{"unlike", true, func(f *fixture) error { return f.poems.Unlike(context.Background(), &proto.Poem{Id: 9}) },
			func(f *fixture) *membership.Set { return f.store.Liked }, "unlike"},
		{"bookmark", false, func(f *fixture) error { return f.poems.Bookmark(context.Background(), &proto.Poem{Id: 9}) },
			func(f *fixture) *membership.Set { return f.store.Bookmarked }, "bookmark"},
		{"unbookmark", true, func(f *fixture) error { return f.poems.Unbookmark(context.Background(), &proto.Poem{Id: 9}) },
			func(f *fixture) *membership.Set { return f.store.Bookmarked }, "unbookmark"},
		{"toggle read", false, func(f *fixture) error { return f.books.ToggleReadStatus(context.Background(), &proto.Book{Id: 9}) },
			func(f *fixture) *membership.Set { return f.store.Read }, "add_read"},
		{"toggle unread", true, func(f *fixture) error { return f.books.ToggleReadStatus(context.Background(), &proto.Book{Id: 9}) },
			func(f *fixture) *membership.Set { return f.store.Read }, "remove_read"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture()
			set := tt.set(f)
			set.Add(100)
			if tt.seed {
				set.Add(9)
			}
			before := set.IDs()

			f.api.failWith(&client.APIError{Status: http.StatusInternalServerError})
			err := tt.run(f)

			require.Error(t, err)
			assert.Equal(t, before, set.IDs(), "membership must equal the pre-call state")
			assert.Equal(t, []string{tt.remote}, f.api.recorded())
			assert.NotEmpty(t, f.publisher.lastError())
		})
	}
}

func TestCommitAppliesIntendedState(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	poem := &proto.Poem{Id: 4}

	require.NoError(t, f.poems.Like(ctx, poem))
	assert.True(t, f.poems.IsLiked(4))

	require.NoError(t, f.poems.Bookmark(ctx, poem))
	assert.True(t, f.poems.IsBookmarked(4))

	require.NoError(t, f.poems.Unlike(ctx, poem))
	assert.False(t, f.poems.IsLiked(4))

	book := &proto.Book{Id: 2}
	require.NoError(t, f.books.ToggleReadStatus(ctx, book))
	assert.True(t, f.books.IsRead(2))
	require.NoError(t, f.books.ToggleReadStatus(ctx, book))
	assert.False(t, f.books.IsRead(2))

	assert.Equal(t, []string{"like", "bookmark", "unlike", "add_read", "remove_read"}, f.api.recorded())
	assert.Empty(t, f.publisher.lastSuccess(), "membership actions succeed silently")
}

func TestFailureMessageFromAPI(t *testing.T) {
	f := newFixture()
	f.api.failWith(&client.APIError{Status: http.StatusConflict, Message: "zaten beğenildi"})

	err := f.poems.Like(context.Background(), &proto.Poem{Id: 1})

	var actionErr *Error
	require.ErrorAs(t, err, &actionErr)
	assert.Equal(t, "like", actionErr.Action)
	assert.Equal(t, int64(1), actionErr.ID)
	assert.Equal(t, "zaten beğenildi", actionErr.Message)
	assert.Equal(t, "zaten beğenildi", f.publisher.lastError())
	assert.Equal(t, http.StatusConflict, client.StatusCode(err))
}

func TestFailureFallbackMessage(t *testing.T) {
	f := newFixture()
	f.api.failWith(&client.APIError{Status: http.StatusBadGateway, Body: "bad gateway"})

	err := f.poems.Bookmark(context.Background(), &proto.Poem{Id: 1})
	assert.Equal(t, bookmarkFailed, UserMessage(err))
	assert.Equal(t, bookmarkFailed, f.publisher.lastError())
}

func TestLoadingFlag(t *testing.T) {
	f := newFixture()
	f.api.release = make(chan struct{})
	f.api.started = make(chan string, 1)

	assert.False(t, f.books.Loading())

	done := make(chan error, 1)
	go func() {
		done <- f.books.ToggleReadStatus(context.Background(), &proto.Book{Id: 7})
	}()

	<-f.api.started
	assert.True(t, f.books.Loading())
	assert.True(t, f.books.IsRead(7), "local change is applied before the remote call resolves")
	assert.False(t, f.poems.Loading(), "loading is tracked per action group")

	close(f.api.release)
	require.NoError(t, <-done)
	assert.False(t, f.books.Loading())
}

func TestLoadingClearedOnFailure(t *testing.T) {
	f := newFixture()
	f.api.failWith(errors.New("boom"))

	err := f.friends.AcceptRequest(context.Background(), 3)
	require.Error(t, err)
	assert.False(t, f.friends.Loading())
}

func TestConcurrentTogglesAreSerialized(t *testing.T) {
	f := newFixture()
	f.api.release = make(chan struct{})
	f.api.started = make(chan string, 2)
	book := &proto.Book{Id: 11}

	first := make(chan error, 1)
	go func() { first <- f.books.ToggleReadStatus(context.Background(), book) }()
	assert.Equal(t, "add_read", <-f.api.started)

	second := make(chan error, 1)
	go func() { second <- f.books.ToggleReadStatus(context.Background(), book) }()

	require.Eventually(t, func() bool {
		return f.locks.IsLocked(lockmanager.ResourcePath(membership.ReadBooks, 11))
	}, time.Second, time.Millisecond)
	select {
	case name := <-f.api.started:
		t.Fatalf("second toggle reached the server while the first was in flight: %s", name)
	case <-time.After(20 * time.Millisecond):
	}

	close(f.api.release)
	require.NoError(t, <-first)
	assert.Equal(t, "remove_read", <-f.api.started, "second toggle sees the committed state")
	require.NoError(t, <-second)

	assert.False(t, f.books.IsRead(11))
	assert.Equal(t, []string{"add_read", "remove_read"}, f.api.recorded())
	assert.Equal(t, 0, f.locks.ActiveLocks())
}

func TestCancellationRollsBack(t *testing.T) {
	f := newFixture()
	f.api.release = make(chan struct{})
	f.api.started = make(chan string, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.poems.Like(ctx, &proto.Poem{Id: 8}) }()

	<-f.api.started
	assert.True(t, f.poems.IsLiked(8))
	cancel()

	err := <-done
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, f.poems.IsLiked(8))
	assert.Equal(t, likeFailed, UserMessage(err))
}

func TestActionsRequireUser(t *testing.T) {
	f := newFixture()
	f.store.Reset()

	err := f.poems.Like(context.Background(), &proto.Poem{Id: 1})
	assert.ErrorIs(t, err, ErrNoUser)
	err = f.books.MarkAsRead(context.Background(), &proto.Book{Id: 1})
	assert.ErrorIs(t, err, ErrNoUser)

	assert.Empty(t, f.api.recorded())
	assert.False(t, f.poems.IsLiked(1))
}

func TestInvalidTarget(t *testing.T) {
	f := newFixture()

	assert.Error(t, f.poems.Like(context.Background(), nil))
	assert.Error(t, f.books.ToggleReadStatus(context.Background(), &proto.Book{}))
	assert.Error(t, f.friends.SendRequest(context.Background(), "  "))
	assert.Empty(t, f.api.recorded())
}

func TestFriendActionsSuccessMessages(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	require.NoError(t, f.friends.SendRequest(ctx, "leyla"))
	assert.Equal(t, sendRequestDone, f.publisher.lastSuccess())

	f.api.resp = &proto.MessageResponse{Message: "Kabul edildi"}
	require.NoError(t, f.friends.AcceptRequest(ctx, 1))
	assert.Equal(t, "Kabul edildi", f.publisher.lastSuccess(), "server message wins over the default")

	f.api.resp = nil
	require.NoError(t, f.friends.RejectRequest(ctx, 2))
	assert.Equal(t, "Arkadaşlık isteği reddedildi", f.publisher.lastSuccess())
	require.NoError(t, f.friends.CancelRequest(ctx, 3))
	assert.Equal(t, "Arkadaşlık isteği iptal edildi", f.publisher.lastSuccess())
	require.NoError(t, f.friends.RemoveFriend(ctx, 4))
	assert.Equal(t, "Arkadaş çıkarıldı", f.publisher.lastSuccess())

	assert.Equal(t, []string{"send_request", "accept_request", "reject_request", "cancel_request", "remove_friend"}, f.api.recorded())
}

func TestFriendActionFailure(t *testing.T) {
	f := newFixture()
	f.api.failWith(&client.APIError{Status: http.StatusNotFound, Message: "Kullanıcı bulunamadı"})

	err := f.friends.SendRequest(context.Background(), "mecnun")
	assert.Equal(t, "Kullanıcı bulunamadı", UserMessage(err))
	assert.Equal(t, "Kullanıcı bulunamadı", f.publisher.lastError())
	assert.Empty(t, f.publisher.lastSuccess())

	f.api.failWith(errors.New(""))
	err = f.friends.RemoveFriend(context.Background(), 5)
	assert.Equal(t, "Arkadaş çıkarılamadı", UserMessage(err))
}

func TestErrorString(t *testing.T) {
	err := &Error{Action: "like", ID: 3, Message: "nope"}
	assert.Equal(t, "like 3 failed: nope", err.Error())

	err = &Error{Action: "send_friend_request", Message: "nope"}
	assert.Equal(t, "send_friend_request failed: nope", err.Error())

	assert.Empty(t, UserMessage(errors.New("plain")))
}
