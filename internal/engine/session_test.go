package engine

import (
	"context"
	"testing"
	"time"

	"github.com/nkkko/verse/internal/lockmanager"
	"github.com/nkkko/verse/internal/membership"
	"github.com/nkkko/verse/internal/notifier"
	"github.com/nkkko/verse/internal/realtime"
	"github.com/nkkko/verse/internal/storage"
	"github.com/nkkko/verse/pkg/client"
	"github.com/nkkko/verse/pkg/proto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sessionFixture struct {
	platform  *platform
	client    *client.Client
	channel   *realtime.Manager
	notifier  *notifier.Notifier
	snapshots storage.SnapshotStore
	session   *Session
}

func newSessionFixture(t *testing.T, reconnect bool) *sessionFixture {
	t.Helper()
	p := newPlatform(t)

	c, err := client.New(p.URL(), client.WithTimeout(5*time.Second))
	require.NoError(t, err)

	snapshots, err := storage.NewStorage(storage.Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { snapshots.Close() })

	channel := realtime.NewManager(realtime.Config{
		BaseURL:              p.URL(),
		PingInterval:         time.Minute,
		ReconnectDelay:       10 * time.Millisecond,
		MaxReconnectAttempts: 5,
		DisableReconnect:     !reconnect,
		HandshakeTimeout:     time.Second,
	})
	t.Cleanup(channel.Disconnect)

	n := notifier.NewNotifier(notifier.DefaultConfig())
	t.Cleanup(func() { n.Close() })

	session := NewSession(DefaultSessionConfig(), c, channel, n,
		lockmanager.NewLockManager(lockmanager.DefaultConfig()), snapshots)

	return &sessionFixture{
		platform:  p,
		client:    c,
		channel:   channel,
		notifier:  n,
		snapshots: snapshots,
		session:   session,
	}
}

func TestLoginSeedsMembershipAndConnects(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()

	user, err := f.session.Login(ctx, goodToken)
	require.NoError(t, err)
	assert.Equal(t, int64(testUserID), user.Id)
	assert.Equal(t, goodToken, f.client.Token())

	assert.ElementsMatch(t, []int64{1, 2}, f.session.Store().Liked.IDs())
	assert.ElementsMatch(t, []int64{3}, f.session.Store().Bookmarked.IDs())
	assert.Zero(t, f.session.Store().Read.Len())
	assert.Len(t, f.session.FriendList.Friends(), 1)
	assert.Len(t, f.session.FriendList.Requests(), 1)

	require.Eventually(t, func() bool {
		return f.channel.State() == realtime.StateConnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{goodToken}, f.platform.tokens())

	status := f.session.Status()
	assert.True(t, status.SignedIn)
	assert.Equal(t, "ahmet", status.Username)
	assert.Equal(t, 2, status.LikedPoems)
	assert.Equal(t, 1, status.Friends)
	assert.True(t, status.Realtime.Connected)
	assert.Equal(t, "connected", status.Realtime.State)
}

func TestLoginRejectsBadToken(t *testing.T) {
	f := newSessionFixture(t, true)

	_, err := f.session.Login(context.Background(), "stale")
	require.Error(t, err)

	var apiErr *client.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 401, apiErr.Status)

	assert.Empty(t, f.client.Token())
	assert.Nil(t, f.session.Store().User())
	assert.Equal(t, realtime.StateDisconnected, f.channel.State())
	assert.False(t, f.session.Status().SignedIn)
}

func TestLoginRequiresToken(t *testing.T) {
	f := newSessionFixture(t, true)

	_, err := f.session.Login(context.Background(), "")
	assert.Error(t, err)
	assert.Zero(t, f.platform.hitCount("/user"))
}

func TestLoginKeepsSnapshotWhenSeedFails(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()

	require.NoError(t, f.snapshots.Save(ctx, membership.Snapshot{
		UserID:     testUserID,
		Liked:      []int64{9},
		Bookmarked: []int64{8},
	}))
	f.platform.fail("/get-liked-poems-id/7")

	_, err := f.session.Login(ctx, goodToken)
	require.NoError(t, err)

	// The failed set keeps the saved content; the others follow the server
	assert.Equal(t, []int64{9}, f.session.Store().Liked.IDs())
	assert.Equal(t, []int64{3}, f.session.Store().Bookmarked.IDs())
}

func TestSessionActions(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()

	_, err := f.session.Login(ctx, goodToken)
	require.NoError(t, err)

	require.NoError(t, f.session.LikePoem(ctx, 5))
	assert.True(t, f.session.IsMember(membership.LikedPoems, 5))
	assert.Equal(t, 1, f.platform.hitCount("/add-poem-to-liked/7"))

	// Already liked: no request goes out
	require.NoError(t, f.session.LikePoem(ctx, 5))
	assert.Equal(t, 1, f.platform.hitCount("/add-poem-to-liked/7"))

	require.NoError(t, f.session.ToggleBookRead(ctx, 4))
	assert.True(t, f.session.IsMember(membership.ReadBooks, 4))

	f.platform.fail("/add-bookmark/7")
	err = f.session.BookmarkPoem(ctx, 6)
	require.Error(t, err)
	assert.False(t, f.session.IsMember(membership.BookmarkedPoems, 6))

	current := f.notifier.Current()
	assert.True(t, current.Visible)
	assert.Equal(t, notifier.LevelError, current.Level)
	assert.NotEmpty(t, current.Message)
	assert.Zero(t, f.session.Status().PendingActions)
}

func TestSessionActionsRequireUser(t *testing.T) {
	f := newSessionFixture(t, true)

	err := f.session.LikePoem(context.Background(), 5)
	require.Error(t, err)
	assert.Zero(t, f.platform.hitCount("/add-poem-to-liked/7"))
	assert.ErrorIs(t, f.session.RefreshFriends(context.Background()), ErrNotSignedIn)
}

func TestFriendActionsRefreshLists(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()

	_, err := f.session.Login(ctx, goodToken)
	require.NoError(t, err)
	before := f.platform.hitCount("/get-friends")

	require.NoError(t, f.session.AcceptFriendRequest(ctx, 10))
	assert.Equal(t, 1, f.platform.hitCount("/accept-friend-request/10"))
	assert.Greater(t, f.platform.hitCount("/get-friends"), before)

	require.NoError(t, f.session.SendFriendRequest(ctx, "leyla"))
	assert.Equal(t, 1, f.platform.hitCount("/send-friend-request"))
	assert.Equal(t, 2, f.platform.hitCount("/get-sent-requests"))
}

func TestFriendEventRefetchesLists(t *testing.T) {
	f := newSessionFixture(t, true)

	_, err := f.session.Login(context.Background(), goodToken)
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return f.channel.State() == realtime.StateConnected
	}, 2*time.Second, 10*time.Millisecond)

	before := f.platform.hitCount("/get-friend-requests")
	f.platform.push(proto.TopicFriendRequestReceived)

	assert.Eventually(t, func() bool {
		return f.platform.hitCount("/get-friend-requests") > before
	}, 2*time.Second, 10*time.Millisecond)
}

func TestExhaustedChannelWarns(t *testing.T) {
	f := newSessionFixture(t, false)
	f.platform.mu.Lock()
	f.platform.refuseWS = true
	f.platform.mu.Unlock()

	_, err := f.session.Login(context.Background(), goodToken)
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		current := f.notifier.Current()
		return current.Visible && current.Level == notifier.LevelWarning && current.Message == connectionLost
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, realtime.StateDisconnected, f.channel.State())
}

func TestLogoutClearsSession(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()

	_, err := f.session.Login(ctx, goodToken)
	require.NoError(t, err)
	require.NoError(t, f.session.SaveSnapshot(ctx))

	require.NoError(t, f.session.Logout(ctx))

	assert.Nil(t, f.session.Store().User())
	assert.Zero(t, f.session.Store().Liked.Len())
	assert.Empty(t, f.client.Token())
	assert.Equal(t, realtime.StateDisconnected, f.channel.State())

	_, found, err := f.snapshots.Load(ctx, testUserID)
	require.NoError(t, err)
	assert.False(t, found)

	assert.ErrorIs(t, f.session.Logout(ctx), ErrNotSignedIn)
}

func TestCloseSavesSnapshot(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()

	_, err := f.session.Login(ctx, goodToken)
	require.NoError(t, err)
	require.NoError(t, f.session.LikePoem(ctx, 5))

	require.NoError(t, f.session.Close(ctx))
	assert.Equal(t, realtime.StateDisconnected, f.channel.State())

	snap, found, err := f.snapshots.Load(ctx, testUserID)
	require.NoError(t, err)
	require.True(t, found)
	assert.ElementsMatch(t, []int64{1, 2, 5}, snap.Liked)
	assert.Equal(t, []int64{3}, snap.Bookmarked)

	// Closing keeps the user signed in
	assert.NotNil(t, f.session.Store().User())
}

func TestLoginReplacesPreviousSession(t *testing.T) {
	f := newSessionFixture(t, true)
	ctx := context.Background()

	_, err := f.session.Login(ctx, goodToken)
	require.NoError(t, err)
	_, err = f.session.Login(ctx, goodToken)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return f.channel.State() == realtime.StateConnected
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, 2, f.platform.hitCount("/user"))
}
