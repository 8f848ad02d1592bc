package friends

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/nkkko/verse/internal/metrics"
	"github.com/nkkko/verse/pkg/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// API is the part of the API client the friend lists read from
type API interface {
	Friends(ctx context.Context) ([]*proto.Friend, error)
	FriendRequests(ctx context.Context) ([]*proto.FriendRequest, error)
	SentRequests(ctx context.Context) ([]*proto.FriendRequest, error)
}

// List names used in logs and metrics
const (
	listFriends  = "friends"
	listRequests = "requests"
	listSent     = "sent_requests"
)

// List caches the current user's friends, received requests and sent
// requests. A failed fetch empties the affected list.
type List struct {
	api API

	mu       sync.RWMutex
	friends  []*proto.Friend
	requests []*proto.FriendRequest
	sent     []*proto.FriendRequest

	// Started fetches per list; only the latest one may store its result
	friendsSeq  atomic.Uint64
	requestsSeq atomic.Uint64
	sentSeq     atomic.Uint64

	loadingFriends  atomic.Int32
	loadingRequests atomic.Int32
	loadingSent     atomic.Int32

	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewList creates an empty list
func NewList(api API) *List {
	return &List{
		api:     api,
		logger:  log.With().Str("component", "friends").Logger(),
		metrics: metrics.GetMetrics(),
	}
}

// FetchFriends reloads the friend list
func (l *List) FetchFriends(ctx context.Context) error {
	return fetchInto(ctx, l, listFriends, &l.friendsSeq, &l.loadingFriends, &l.friends, l.api.Friends)
}

// FetchRequests reloads the received friend requests
func (l *List) FetchRequests(ctx context.Context) error {
	return fetchInto(ctx, l, listRequests, &l.requestsSeq, &l.loadingRequests, &l.requests, l.api.FriendRequests)
}

// FetchSentRequests reloads the sent friend requests
func (l *List) FetchSentRequests(ctx context.Context) error {
	return fetchInto(ctx, l, listSent, &l.sentSeq, &l.loadingSent, &l.sent, l.api.SentRequests)
}

// fetchInto loads one list into dst. When fetches of the same list
// overlap, the one started last wins and earlier results are dropped.
func fetchInto[T any](
	ctx context.Context,
	l *List,
	list string,
	seq *atomic.Uint64,
	loading *atomic.Int32,
	dst *[]*T,
	get func(context.Context) ([]*T, error),
) error {
	mine := seq.Add(1)
	loading.Add(1)
	defer loading.Add(-1)

	items, err := get(ctx)
	l.record(list, err)

	l.mu.Lock()
	defer l.mu.Unlock()
	if seq.Load() != mine {
		l.logger.Debug().Str("list", list).Msg("Dropping superseded friend list fetch")
		return err
	}
	if err != nil {
		*dst = nil
		return err
	}
	*dst = items
	return nil
}

// FetchAll reloads the three lists concurrently. Every fetch runs to
// completion; the first error is returned.
func (l *List) FetchAll(ctx context.Context) error {
	var g errgroup.Group
	g.Go(func() error { return l.FetchFriends(ctx) })
	g.Go(func() error { return l.FetchRequests(ctx) })
	g.Go(func() error { return l.FetchSentRequests(ctx) })
	return g.Wait()
}

// Friends returns the cached friends
func (l *List) Friends() []*proto.Friend {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*proto.Friend(nil), l.friends...)
}

// Requests returns the cached received requests
func (l *List) Requests() []*proto.FriendRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*proto.FriendRequest(nil), l.requests...)
}

// SentRequests returns the cached sent requests
func (l *List) SentRequests() []*proto.FriendRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]*proto.FriendRequest(nil), l.sent...)
}

// LoadingFriends reports whether the friend list is being fetched
func (l *List) LoadingFriends() bool { return l.loadingFriends.Load() > 0 }

// LoadingRequests reports whether received requests are being fetched
func (l *List) LoadingRequests() bool { return l.loadingRequests.Load() > 0 }

// LoadingSentRequests reports whether sent requests are being fetched
func (l *List) LoadingSentRequests() bool { return l.loadingSent.Load() > 0 }

func (l *List) record(list string, err error) {
	if err != nil {
		l.metrics.FriendFetchesTotal.WithLabelValues(list, "failure").Inc()
		l.logger.Error().Err(err).Str("list", list).Msg("Failed to fetch friend list")
		return
	}
	l.metrics.FriendFetchesTotal.WithLabelValues(list, "success").Inc()
}
