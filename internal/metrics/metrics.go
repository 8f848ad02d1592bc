package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// singleton instance
	instance *Metrics
	once     sync.Once
)

// Metrics holds Prometheus metrics for the verse client
type Metrics struct {
	// Realtime channel metrics
	RealtimeConnected         prometheus.Gauge
	RealtimeConnectsTotal     *prometheus.CounterVec
	RealtimeReconnectsTotal   prometheus.Counter
	RealtimeExhaustedTotal    prometheus.Counter
	RealtimeFramesTotal       *prometheus.CounterVec
	RealtimePingsTotal        prometheus.Counter
	RealtimeCallbackPanics    *prometheus.CounterVec
	RealtimeSubscribersActive *prometheus.GaugeVec

	// Mutation metrics
	MutationsTotal    *prometheus.CounterVec
	MutationDuration  *prometheus.HistogramVec
	MutationRollbacks *prometheus.CounterVec
	MutationsInFlight prometheus.Gauge

	// Entity lock metrics
	LocksAcquiredTotal      prometheus.Counter
	LocksActiveGauge        prometheus.Gauge
	LockContentionTotal     prometheus.Counter
	LocksTimeoutTotal       prometheus.Counter
	LockAcquisitionDuration prometheus.Histogram

	// Notification metrics
	NotificationsTotal      *prometheus.CounterVec
	NotificationsDropped    prometheus.Counter
	NotificationSubscribers prometheus.Gauge

	// Friend list refresh metrics
	FriendFetchesTotal *prometheus.CounterVec

	// Status API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Snapshot storage metrics
	StorageOperations        *prometheus.CounterVec
	StorageOperationDuration *prometheus.HistogramVec
}

// GetMetrics returns the metrics singleton
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics initializes and registers all metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	// Realtime channel metrics
	m.RealtimeConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "verse_realtime_connected",
			Help: "1 while the push channel is open",
		},
	)

	m.RealtimeConnectsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verse_realtime_connects_total",
			Help: "Total number of push channel dial attempts",
		},
		[]string{"result"}, // success, failure
	)

	m.RealtimeReconnectsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verse_realtime_reconnects_scheduled_total",
			Help: "Total number of scheduled reconnect attempts",
		},
	)

	m.RealtimeExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verse_realtime_reconnect_exhausted_total",
			Help: "Number of times the reconnect budget ran out",
		},
	)

	m.RealtimeFramesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verse_realtime_frames_total",
			Help: "Total number of inbound push frames",
		},
		[]string{"status"}, // delivered, unhandled, malformed
	)

	m.RealtimePingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verse_realtime_pings_total",
			Help: "Total number of liveness pings sent",
		},
	)

	m.RealtimeCallbackPanics = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verse_realtime_callback_panics_total",
			Help: "Total number of topic callbacks that panicked",
		},
		[]string{"topic"},
	)

	m.RealtimeSubscribersActive = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "verse_realtime_subscribers_active",
			Help: "Number of registered callbacks per topic",
		},
		[]string{"topic"},
	)

	// Mutation metrics
	m.MutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verse_mutations_total",
			Help: "Total number of optimistic mutations",
		},
		[]string{"action", "outcome"}, // outcome: committed, rolled_back, skipped, failed
	)

	m.MutationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verse_mutation_duration_seconds",
			Help:    "Duration of mutation remote calls in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // from 5ms to ~10s
		},
		[]string{"action"},
	)

	m.MutationRollbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verse_mutation_rollbacks_total",
			Help: "Total number of local changes reverted after a failed remote call",
		},
		[]string{"set"},
	)

	m.MutationsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "verse_mutations_in_flight",
			Help: "Number of mutations awaiting a remote response",
		},
	)

	// Entity lock metrics
	m.LocksAcquiredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verse_entity_locks_acquired_total",
			Help: "Total number of entity locks acquired",
		},
	)

	m.LocksActiveGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "verse_entity_locks_active",
			Help: "Number of entity locks currently held",
		},
	)

	m.LockContentionTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verse_entity_lock_contention_total",
			Help: "Total number of lock acquisitions that had to wait",
		},
	)

	m.LocksTimeoutTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verse_entity_lock_timeouts_total",
			Help: "Total number of lock acquisitions abandoned by context cancellation",
		},
	)

	m.LockAcquisitionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "verse_entity_lock_acquisition_duration_seconds",
			Help:    "Time spent waiting for an entity lock",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15), // from 0.1ms to ~1.6s
		},
	)

	// Notification metrics
	m.NotificationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verse_notifications_total",
			Help: "Total number of user notifications shown",
		},
		[]string{"level"},
	)

	m.NotificationsDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "verse_notifications_dropped_total",
			Help: "Notifications not delivered to a full subscriber channel",
		},
	)

	m.NotificationSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "verse_notification_subscribers",
			Help: "Number of active notification subscribers",
		},
	)

	// Friend list refresh metrics
	m.FriendFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verse_friend_fetches_total",
			Help: "Friend list fetches by list and result",
		},
		[]string{"list", "result"},
	)

	// Status API metrics
	m.APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verse_api_requests_total",
			Help: "Total number of status API requests",
		},
		[]string{"method", "path", "status"},
	)

	m.APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verse_api_request_duration_seconds",
			Help:    "Duration of status API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Snapshot storage metrics
	m.StorageOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verse_storage_operations_total",
			Help: "Total number of snapshot storage operations",
		},
		[]string{"operation", "success"},
	)

	m.StorageOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "verse_storage_operation_duration_seconds",
			Help:    "Duration of snapshot storage operations in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 15),
		},
		[]string{"operation"},
	)

	return m
}
