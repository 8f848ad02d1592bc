package friends

import (
	"context"
	"encoding/json"

	"github.com/nkkko/verse/internal/realtime"
	"github.com/nkkko/verse/pkg/proto"
	"github.com/rs/zerolog/log"
)

// Subscriber registers push-channel callbacks; *realtime.Manager satisfies it
type Subscriber interface {
	On(topic proto.Topic, cb realtime.Callback) realtime.Handle
	Off(topic proto.Topic, h realtime.Handle)
}

// Callbacks are invoked on friend push events. Nil callbacks are skipped.
type Callbacks struct {
	OnRequestReceived func()
	OnRequestUpdate   func()
	OnRequestAccepted func()
	OnFriendRemoved   func()
}

// Watch registers cb for the four friend topics and returns a func that
// unregisters them. Calling the returned func more than once is harmless.
func Watch(sub Subscriber, cb Callbacks) func() {
	logger := log.With().Str("component", "friends-watch").Logger()

	bindings := []struct {
		topic proto.Topic
		fn    func()
	}{
		{proto.TopicFriendRequestReceived, cb.OnRequestReceived},
		{proto.TopicFriendRequestUpdate, cb.OnRequestUpdate},
		{proto.TopicFriendRequestAccepted, cb.OnRequestAccepted},
		{proto.TopicFriendRemoved, cb.OnFriendRemoved},
	}

	type registered struct {
		topic  proto.Topic
		handle realtime.Handle
	}
	var handles []registered

	for _, b := range bindings {
		topic, fn := b.topic, b.fn
		h := sub.On(topic, func(json.RawMessage) {
			logger.Debug().Str("topic", string(topic)).Msg("Friend event received")
			if fn != nil {
				fn()
			}
		})
		handles = append(handles, registered{topic: topic, handle: h})
	}

	return func() {
		for _, r := range handles {
			sub.Off(r.topic, r.handle)
		}
	}
}

// Bind keeps l fresh from push events: each event refetches the lists it
// can change. Fetches run off the delivery goroutine and stop once ctx is
// done; when refreshes of a list overlap, the last one started wins. The
// returned func unbinds.
func (l *List) Bind(ctx context.Context, sub Subscriber) func() {
	refresh := func(fetches ...func(context.Context) error) func() {
		return func() {
			if ctx.Err() != nil {
				return
			}
			go func() {
				for _, fetch := range fetches {
					_ = fetch(ctx)
				}
			}()
		}
	}

	return Watch(sub, Callbacks{
		OnRequestReceived: refresh(l.FetchRequests),
		OnRequestUpdate:   refresh(l.FetchRequests, l.FetchSentRequests),
		OnRequestAccepted: refresh(l.FetchFriends, l.FetchSentRequests),
		OnFriendRemoved:   refresh(l.FetchFriends),
	})
}
