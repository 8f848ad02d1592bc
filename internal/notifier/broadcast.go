package notifier

import (
	"sync"
	"time"

	"github.com/nkkko/verse/internal/metrics"
	"github.com/rs/zerolog/log"
)

// BroadcastBuffer batches notifications and fans them out to subscriber
// channels without blocking the publisher
type BroadcastBuffer struct {
	bufferSize    int
	flushInterval time.Duration

	subscribers     map[string]chan Notification
	subscribersLock sync.RWMutex

	currentBuffer     []Notification
	currentBufferLock sync.Mutex

	forceFlush chan struct{}
	close      chan struct{}
	done       chan struct{}
	closeOnce  sync.Once

	metrics *metrics.Metrics
}

// NewBroadcastBuffer creates a new broadcast buffer and starts its flush loop
func NewBroadcastBuffer(bufferSize int, flushInterval time.Duration) *BroadcastBuffer {
	b := &BroadcastBuffer{
		bufferSize:    bufferSize,
		flushInterval: flushInterval,
		subscribers:   make(map[string]chan Notification),
		currentBuffer: make([]Notification, 0, bufferSize),
		forceFlush:    make(chan struct{}, 1),
		close:         make(chan struct{}),
		done:          make(chan struct{}),
		metrics:       metrics.GetMetrics(),
	}

	go b.bufferFlushLoop()

	return b
}

// Subscribe adds a new subscriber to the broadcast
func (b *BroadcastBuffer) Subscribe(id string, buffer int) <-chan Notification {
	b.subscribersLock.Lock()
	defer b.subscribersLock.Unlock()

	if old, ok := b.subscribers[id]; ok {
		close(old)
		b.metrics.NotificationSubscribers.Dec()
	}

	channel := make(chan Notification, buffer)
	b.subscribers[id] = channel
	b.metrics.NotificationSubscribers.Inc()

	return channel
}

// Unsubscribe removes a subscriber and closes its channel
func (b *BroadcastBuffer) Unsubscribe(id string) {
	b.subscribersLock.Lock()
	defer b.subscribersLock.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
		b.metrics.NotificationSubscribers.Dec()
	}
}

// Subscribers returns the number of active subscribers
func (b *BroadcastBuffer) Subscribers() int {
	b.subscribersLock.RLock()
	defer b.subscribersLock.RUnlock()
	return len(b.subscribers)
}

// Publish queues a notification for the next flush
func (b *BroadcastBuffer) Publish(n Notification) {
	b.currentBufferLock.Lock()
	defer b.currentBufferLock.Unlock()

	b.currentBuffer = append(b.currentBuffer, n)

	if len(b.currentBuffer) >= b.bufferSize {
		select {
		case b.forceFlush <- struct{}{}:
		default:
			// A flush is already pending
		}
	}
}

func (b *BroadcastBuffer) bufferFlushLoop() {
	defer close(b.done)

	ticker := time.NewTicker(b.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			b.flush()
		case <-b.forceFlush:
			b.flush()
		case <-b.close:
			b.flush()
			return
		}
	}
}

// flush sends buffered notifications to all subscribers
func (b *BroadcastBuffer) flush() {
	b.currentBufferLock.Lock()
	buffer := b.currentBuffer
	if len(buffer) == 0 {
		b.currentBufferLock.Unlock()
		return
	}
	b.currentBuffer = make([]Notification, 0, b.bufferSize)
	b.currentBufferLock.Unlock()

	// Hold the read lock while sending so Unsubscribe cannot close a
	// channel mid-send. Sends never block.
	b.subscribersLock.RLock()
	defer b.subscribersLock.RUnlock()

	for id, ch := range b.subscribers {
		skipped := 0
		for _, n := range buffer {
			select {
			case ch <- n:
			default:
				skipped++
			}
		}
		if skipped > 0 {
			b.metrics.NotificationsDropped.Add(float64(skipped))
			log.Warn().
				Str("subscriber_id", id).
				Int("dropped", skipped).
				Msg("Subscriber channel is full, dropping notifications")
		}
	}
}

// Close flushes pending notifications and closes every subscriber channel
func (b *BroadcastBuffer) Close() error {
	b.closeOnce.Do(func() {
		close(b.close)
		<-b.done

		b.subscribersLock.Lock()
		defer b.subscribersLock.Unlock()
		for id, ch := range b.subscribers {
			close(ch)
			delete(b.subscribers, id)
			b.metrics.NotificationSubscribers.Dec()
		}
	})
	return nil
}
