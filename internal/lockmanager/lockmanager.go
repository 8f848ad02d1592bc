package lockmanager

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nkkko/verse/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Config contains lock manager configuration
type Config struct {
	// Upper bound on waiting for a held lock. Zero means wait until the
	// caller's context is done.
	AcquisitionTimeout time.Duration
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		AcquisitionTimeout: 30 * time.Second,
	}
}

// ReleaseFunc releases a held lock. Calling it more than once is a no-op.
type ReleaseFunc func()

// lockEntry is one resource's lock plus the number of holders and waiters
type lockEntry struct {
	slot chan struct{}
	refs int
}

// LockManager serializes work per resource path, e.g. "like:42".
// Entries exist only while someone holds or waits for the lock.
type LockManager struct {
	config  Config
	locks   map[string]*lockEntry
	mu      sync.Mutex
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewLockManager creates a new lock manager
func NewLockManager(config Config) *LockManager {
	return &LockManager{
		config:  config,
		locks:   make(map[string]*lockEntry),
		logger:  log.With().Str("component", "lockmanager").Logger(),
		metrics: metrics.GetMetrics(),
	}
}

// ResourcePath builds the lock key for an entity
func ResourcePath(kind string, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

// AcquireLock blocks until the lock on resourcePath is held or ctx is done
func (m *LockManager) AcquireLock(ctx context.Context, resourcePath string) (ReleaseFunc, error) {
	start := time.Now()

	m.mu.Lock()
	entry, ok := m.locks[resourcePath]
	if !ok {
		entry = &lockEntry{slot: make(chan struct{}, 1)}
		m.locks[resourcePath] = entry
	}
	entry.refs++
	m.mu.Unlock()

	select {
	case entry.slot <- struct{}{}:
	default:
		m.metrics.LockContentionTotal.Inc()
		m.logger.Debug().Str("resource", resourcePath).Msg("Waiting for held lock")

		if m.config.AcquisitionTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, m.config.AcquisitionTimeout)
			defer cancel()
		}

		select {
		case entry.slot <- struct{}{}:
		case <-ctx.Done():
			m.drop(resourcePath, entry)
			m.metrics.LocksTimeoutTotal.Inc()
			return nil, fmt.Errorf("failed to acquire lock on '%s': %w", resourcePath, ctx.Err())
		}
	}

	m.metrics.LocksAcquiredTotal.Inc()
	m.metrics.LocksActiveGauge.Inc()
	m.metrics.LockAcquisitionDuration.Observe(time.Since(start).Seconds())

	var once sync.Once
	return func() {
		once.Do(func() {
			<-entry.slot
			m.drop(resourcePath, entry)
			m.metrics.LocksActiveGauge.Dec()
		})
	}, nil
}

// IsLocked reports whether someone holds or waits for resourcePath
func (m *LockManager) IsLocked(resourcePath string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.locks[resourcePath]
	return ok
}

// ActiveLocks returns the number of resources with a holder or waiter
func (m *LockManager) ActiveLocks() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.locks)
}

func (m *LockManager) drop(resourcePath string, entry *lockEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry.refs--
	if entry.refs == 0 && m.locks[resourcePath] == entry {
		delete(m.locks, resourcePath)
	}
}
