package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/nkkko/verse/internal/actions"
	"github.com/nkkko/verse/internal/friends"
	"github.com/nkkko/verse/internal/lockmanager"
	"github.com/nkkko/verse/internal/membership"
	"github.com/nkkko/verse/internal/notifier"
	"github.com/nkkko/verse/internal/realtime"
	"github.com/nkkko/verse/internal/storage"
	"github.com/nkkko/verse/pkg/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ErrNotSignedIn is returned by session operations that need a user
var ErrNotSignedIn = errors.New("not signed in")

// connectionLost is shown once the push channel gives up reconnecting
const connectionLost = "Canlı bağlantı kurulamadı"

// SessionAPI is the part of the API client a session uses
type SessionAPI interface {
	actions.PoemAPI
	actions.BookAPI
	actions.FriendAPI
	friends.API

	SetToken(token string)
	CurrentUser(ctx context.Context) (*proto.User, error)
	LikedPoemIDs(ctx context.Context, userID int64) ([]int64, error)
	BookmarkedPoemIDs(ctx context.Context, userID int64) ([]int64, error)
	ReadBookIDs(ctx context.Context, userID int64) ([]int64, error)
}

// Channel is the push channel a session keeps open; *realtime.Manager
// satisfies it
type Channel interface {
	friends.Subscriber
	Connect(token string)
	Disconnect()
	State() realtime.State
	Attempts() int
}

// SessionConfig contains session behaviour switches
type SessionConfig struct {
	// Connect the push channel on login
	Realtime bool

	// Refetch friend lists when a friend event arrives
	RefreshFriendsOnEvent bool
}

// DefaultSessionConfig returns a default configuration
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Realtime:              true,
		RefreshFriendsOnEvent: true,
	}
}

// Session is one signed-in user's client state: membership sets, friend
// lists and the push channel, plus the actions that mutate them
type Session struct {
	config    SessionConfig
	api       SessionAPI
	channel   Channel
	store     *membership.Store
	snapshots storage.SnapshotStore
	notifier  *notifier.Notifier
	locks     *lockmanager.LockManager

	Poems         *actions.PoemActions
	Books         *actions.BookActions
	FriendActions *actions.FriendActions
	FriendList    *friends.List

	mu     sync.Mutex
	cancel context.CancelFunc
	unbind []func()

	logger zerolog.Logger
}

// NewSession wires a session. snapshots may be nil.
func NewSession(
	config SessionConfig,
	api SessionAPI,
	channel Channel,
	n *notifier.Notifier,
	locks *lockmanager.LockManager,
	snapshots storage.SnapshotStore,
) *Session {
	if locks == nil {
		locks = lockmanager.NewLockManager(lockmanager.DefaultConfig())
	}

	store := membership.NewStore()
	var publisher notifier.Publisher
	if n != nil {
		publisher = n
	}
	coordinator := actions.NewCoordinator(locks, publisher)

	return &Session{
		config:        config,
		api:           api,
		channel:       channel,
		store:         store,
		snapshots:     snapshots,
		notifier:      n,
		locks:         locks,
		Poems:         actions.NewPoemActions(api, store, coordinator),
		Books:         actions.NewBookActions(api, store, coordinator),
		FriendActions: actions.NewFriendActions(api, coordinator),
		FriendList:    friends.NewList(api),
		logger:        log.With().Str("component", "session").Logger(),
	}
}

// Store returns the membership store
func (s *Session) Store() *membership.Store {
	return s.store
}

// Login signs in with token: it resolves the user, restores the last saved
// membership, seeds membership and friend lists from the API and opens the
// push channel. Seeding failures are logged; the session stays usable.
func (s *Session) Login(ctx context.Context, token string) (*proto.User, error) {
	if token == "" {
		return nil, fmt.Errorf("login: empty token")
	}

	// A second login replaces the first
	if s.store.User() != nil {
		s.detach()
	}

	s.api.SetToken(token)
	user, err := s.api.CurrentUser(ctx)
	if err != nil {
		s.api.SetToken("")
		return nil, fmt.Errorf("login: fetch current user: %w", err)
	}
	if user == nil || user.Id == 0 {
		s.api.SetToken("")
		return nil, fmt.Errorf("login: server returned no user")
	}

	s.store.Reset()
	s.store.SetUser(user)
	logger := s.logger.With().Int64("user_id", user.Id).Logger()

	s.restore(ctx, user.Id)
	s.seed(ctx, user.Id)
	if err := s.FriendList.FetchAll(ctx); err != nil {
		logger.Warn().Err(err).Msg("Initial friend list fetch incomplete")
	}

	s.attach(token)
	logger.Info().Str("username", user.Username).Msg("Signed in")
	return user, nil
}

// Logout closes the push channel, forgets the saved membership and clears
// the session
func (s *Session) Logout(ctx context.Context) error {
	userID := s.store.UserID()
	if userID == 0 {
		return ErrNotSignedIn
	}

	s.detach()

	var err error
	if s.snapshots != nil {
		if err = s.snapshots.Delete(ctx, userID); err != nil {
			s.logger.Warn().Err(err).Int64("user_id", userID).Msg("Failed to delete membership snapshot")
		}
	}

	s.store.Reset()
	s.api.SetToken("")
	s.logger.Info().Int64("user_id", userID).Msg("Signed out")
	return err
}

// Close closes the push channel and saves the membership for the next
// start. The user stays signed in.
func (s *Session) Close(ctx context.Context) error {
	s.detach()
	return s.SaveSnapshot(ctx)
}

// SaveSnapshot persists the current membership. A no-op without storage
// or a signed-in user.
func (s *Session) SaveSnapshot(ctx context.Context) error {
	if s.snapshots == nil || s.store.UserID() == 0 {
		return nil
	}
	if err := s.snapshots.Save(ctx, s.store.Snapshot()); err != nil {
		return fmt.Errorf("save membership snapshot: %w", err)
	}
	return nil
}

// restore loads the saved membership so state is visible before seeding
// completes
func (s *Session) restore(ctx context.Context, userID int64) {
	if s.snapshots == nil {
		return
	}
	snap, found, err := s.snapshots.Load(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Int64("user_id", userID).Msg("Failed to load membership snapshot")
		return
	}
	if found {
		s.store.Restore(snap)
		s.logger.Debug().Int64("user_id", userID).Msg("Restored membership snapshot")
	}
}

// seed replaces each membership set with the server's view. A set whose
// fetch fails keeps its restored content.
func (s *Session) seed(ctx context.Context, userID int64) {
	seeds := []struct {
		set   *membership.Set
		fetch func(context.Context, int64) ([]int64, error)
	}{
		{s.store.Liked, s.api.LikedPoemIDs},
		{s.store.Bookmarked, s.api.BookmarkedPoemIDs},
		{s.store.Read, s.api.ReadBookIDs},
	}

	var g errgroup.Group
	for _, seed := range seeds {
		g.Go(func() error {
			ids, err := seed.fetch(ctx, userID)
			if err != nil {
				s.logger.Warn().Err(err).Str("set", seed.set.Name()).Msg("Failed to seed membership set")
				return err
			}
			seed.set.Replace(ids)
			return nil
		})
	}
	_ = g.Wait()
}

// attach binds push-event handlers and opens the channel
func (s *Session) attach(token string) {
	if s.channel == nil || !s.config.Realtime {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	var unbind []func()

	if s.config.RefreshFriendsOnEvent {
		unbind = append(unbind, s.FriendList.Bind(ctx, s.channel))
	}

	h := s.channel.On(proto.TopicConnectionExhausted, func(json.RawMessage) {
		if s.notifier != nil {
			s.notifier.Warning(connectionLost)
		}
	})
	unbind = append(unbind, func() { s.channel.Off(proto.TopicConnectionExhausted, h) })

	s.mu.Lock()
	s.cancel = cancel
	s.unbind = unbind
	s.mu.Unlock()

	s.channel.Connect(token)
}

// detach closes the channel and unbinds every handler attach registered
func (s *Session) detach() {
	s.mu.Lock()
	cancel, unbind := s.cancel, s.unbind
	s.cancel, s.unbind = nil, nil
	s.mu.Unlock()

	if s.channel != nil {
		s.channel.Disconnect()
	}
	for _, fn := range unbind {
		fn()
	}
	if cancel != nil {
		cancel()
	}
}
