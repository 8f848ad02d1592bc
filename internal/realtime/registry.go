package realtime

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/nkkko/verse/internal/metrics"
	"github.com/nkkko/verse/pkg/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Callback receives the opaque payload of a push event
type Callback func(payload json.RawMessage)

// Handle identifies one registered callback
type Handle uint64

type registration struct {
	handle   Handle
	callback Callback
}

// Registry maps topics to ordered callback lists.
// Off is O(n) in the number of callbacks registered for the topic.
type Registry struct {
	topics  map[proto.Topic][]registration
	next    Handle
	mu      sync.RWMutex
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		topics:  make(map[proto.Topic][]registration),
		logger:  log.With().Str("component", "realtime-registry").Logger(),
		metrics: metrics.GetMetrics(),
	}
}

// On registers cb for topic. Callbacks fire in registration order.
func (r *Registry) On(topic proto.Topic, cb Callback) Handle {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	h := r.next
	r.topics[topic] = append(r.topics[topic], registration{handle: h, callback: cb})
	r.metrics.RealtimeSubscribersActive.WithLabelValues(string(topic)).Set(float64(len(r.topics[topic])))
	return h
}

// Off removes the callback registered under h. Unknown pairs are ignored.
func (r *Registry) Off(topic proto.Topic, h Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	regs := r.topics[topic]
	for i, reg := range regs {
		if reg.handle != h {
			continue
		}
		// Copy so snapshots taken by an in-progress Dispatch stay intact
		next := make([]registration, 0, len(regs)-1)
		next = append(next, regs[:i]...)
		next = append(next, regs[i+1:]...)
		if len(next) == 0 {
			delete(r.topics, topic)
		} else {
			r.topics[topic] = next
		}
		r.metrics.RealtimeSubscribersActive.WithLabelValues(string(topic)).Set(float64(len(next)))
		return true
	}
	return false
}

// Count returns the number of callbacks registered for topic
func (r *Registry) Count(topic proto.Topic) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.topics[topic])
}

// Dispatch invokes every callback for topic in registration order and
// returns how many were invoked. A panicking callback is logged and does not
// stop its siblings.
func (r *Registry) Dispatch(topic proto.Topic, payload json.RawMessage) int {
	r.mu.RLock()
	regs := r.topics[topic]
	r.mu.RUnlock()

	for _, reg := range regs {
		r.invoke(topic, reg, payload)
	}
	return len(regs)
}

func (r *Registry) invoke(topic proto.Topic, reg registration, payload json.RawMessage) {
	defer func() {
		if p := recover(); p != nil {
			r.metrics.RealtimeCallbackPanics.WithLabelValues(string(topic)).Inc()
			r.logger.Error().
				Str("topic", string(topic)).
				Uint64("handle", uint64(reg.handle)).
				Str("panic", fmt.Sprint(p)).
				Msg("Topic callback panicked")
		}
	}()
	reg.callback(payload)
}
