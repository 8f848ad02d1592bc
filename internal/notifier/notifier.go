package notifier

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nkkko/verse/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config contains notifier configuration
type Config struct {
	// Broadcast buffer size for batching notifications
	BroadcastBufferSize int

	// Flush interval for broadcast buffer
	BroadcastFlushInterval time.Duration

	// Channel capacity handed to each subscriber
	SubscriberBuffer int
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		BroadcastBufferSize:    32,
		BroadcastFlushInterval: 50 * time.Millisecond,
		SubscriberBuffer:       16,
	}
}

// Notifier holds the single user-facing notification slot. Every change is
// also broadcast to subscribers (a UI, the daemon log, tests).
type Notifier struct {
	config  Config
	current Notification
	mu      sync.RWMutex
	buffer  *BroadcastBuffer
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewNotifier creates a new notifier
func NewNotifier(config Config) *Notifier {
	if config.BroadcastBufferSize == 0 {
		config.BroadcastBufferSize = DefaultConfig().BroadcastBufferSize
	}
	if config.BroadcastFlushInterval == 0 {
		config.BroadcastFlushInterval = DefaultConfig().BroadcastFlushInterval
	}
	if config.SubscriberBuffer == 0 {
		config.SubscriberBuffer = DefaultConfig().SubscriberBuffer
	}

	return &Notifier{
		config:  config,
		current: Notification{Level: LevelSuccess},
		buffer:  NewBroadcastBuffer(config.BroadcastBufferSize, config.BroadcastFlushInterval),
		logger:  log.With().Str("component", "notifier").Logger(),
		metrics: metrics.GetMetrics(),
	}
}

// Show replaces the current notification and makes it visible
func (n *Notifier) Show(message string, level Level) Notification {
	if level == "" {
		level = LevelSuccess
	}
	note := Notification{
		Id:        uuid.NewString(),
		Level:     level,
		Message:   message,
		Visible:   true,
		CreatedAt: time.Now(),
	}

	n.mu.Lock()
	n.current = note
	n.mu.Unlock()

	n.metrics.NotificationsTotal.WithLabelValues(string(level)).Inc()
	n.logEvent(level).Str("id", note.Id).Msg(message)
	n.buffer.Publish(note)
	return note
}

// Hide hides the current notification, keeping its message
func (n *Notifier) Hide() {
	n.mu.Lock()
	if !n.current.Visible {
		n.mu.Unlock()
		return
	}
	n.current.Visible = false
	note := n.current
	n.mu.Unlock()

	n.buffer.Publish(note)
}

// Success shows a success notification
func (n *Notifier) Success(message string) { n.Show(message, LevelSuccess) }

// Error shows an error notification
func (n *Notifier) Error(message string) { n.Show(message, LevelError) }

// Warning shows a warning notification
func (n *Notifier) Warning(message string) { n.Show(message, LevelWarning) }

// Info shows an informational notification
func (n *Notifier) Info(message string) { n.Show(message, LevelInfo) }

// Current returns the notification slot as it is now
func (n *Notifier) Current() Notification {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.current
}

// Subscribe returns a subscription id and a channel receiving every change
// to the notification slot. Slow subscribers lose notifications.
func (n *Notifier) Subscribe() (string, <-chan Notification) {
	id := uuid.NewString()
	return id, n.buffer.Subscribe(id, n.config.SubscriberBuffer)
}

// Unsubscribe closes the subscription's channel
func (n *Notifier) Unsubscribe(id string) {
	n.buffer.Unsubscribe(id)
}

// Close flushes pending notifications and closes all subscriptions
func (n *Notifier) Close() error {
	n.logger.Debug().Msg("Closing notifier")
	return n.buffer.Close()
}

func (n *Notifier) logEvent(level Level) *zerolog.Event {
	if level == LevelError || level == LevelWarning {
		return n.logger.Warn().Str("severity", string(level))
	}
	return n.logger.Info().Str("severity", string(level))
}
