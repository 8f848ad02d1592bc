package actions

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/nkkko/verse/internal/lockmanager"
	"github.com/nkkko/verse/internal/membership"
	"github.com/nkkko/verse/internal/metrics"
	"github.com/nkkko/verse/internal/notifier"
	"github.com/nkkko/verse/internal/telemetry"
	"github.com/nkkko/verse/pkg/proto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
)

// Mutation outcomes, as recorded in metrics
const (
	OutcomeCommitted  = "committed"
	OutcomeRolledBack = "rolled_back"
	OutcomeNoop       = "noop"
	OutcomeAborted    = "aborted"
)

// RemoteFunc performs the server side of a mutation. add is the direction
// that was applied locally.
type RemoteFunc func(ctx context.Context, add bool) (*proto.MessageResponse, error)

// Mutation describes one optimistic action on one entity
type Mutation struct {
	// Action name used in logs, spans and metrics, e.g. "like"
	Action string

	// ID of the target entity
	ID int64

	// Lock key serializing mutations on the same entity
	LockKey string

	// Membership set toggled before the remote call; nil for actions
	// without local state
	Set *membership.Set

	// Desired membership. Ignored when Toggle is set.
	Add bool

	// Toggle derives the direction from the current membership
	Toggle bool

	// Message shown on failure when the error carries none
	Fallback string

	// Message shown on success when the response carries none. Empty
	// means success is silent.
	Success string

	Remote RemoteFunc

	loading *loadingFlag
}

// loadingFlag counts in-flight actions of one action group
type loadingFlag struct {
	n atomic.Int32
}

// Loading reports whether an action of the group is in progress
func (l *loadingFlag) Loading() bool {
	return l.n.Load() > 0
}

func (l *loadingFlag) begin() func() {
	l.n.Add(1)
	return func() { l.n.Add(-1) }
}

// Coordinator runs optimistic mutations: apply the local change, call the
// server, then keep the change or roll it back. Mutations on the same lock
// key never overlap.
type Coordinator struct {
	locks     *lockmanager.LockManager
	errors    *ErrorHandler
	publisher notifier.Publisher
	logger    zerolog.Logger
	metrics   *metrics.Metrics
}

// NewCoordinator creates a coordinator. publisher may be nil.
func NewCoordinator(locks *lockmanager.LockManager, publisher notifier.Publisher) *Coordinator {
	if locks == nil {
		locks = lockmanager.NewLockManager(lockmanager.DefaultConfig())
	}
	return &Coordinator{
		locks:     locks,
		errors:    NewErrorHandler(publisher),
		publisher: publisher,
		logger:    log.With().Str("component", "coordinator").Logger(),
		metrics:   metrics.GetMetrics(),
	}
}

// Errors returns the handler used to report failures
func (c *Coordinator) Errors() *ErrorHandler {
	return c.errors
}

// Run executes m. It returns nil on success, including when the membership
// already matched, and an *Error after rolling back otherwise.
func (c *Coordinator) Run(ctx context.Context, m Mutation) error {
	if m.loading != nil {
		defer m.loading.begin()()
	}

	start := time.Now()
	c.metrics.MutationsInFlight.Inc()
	defer c.metrics.MutationsInFlight.Dec()

	ctx, span := telemetry.StartSpan(ctx, "mutation."+m.Action,
		attribute.String("mutation.action", m.Action),
		attribute.Int64("mutation.entity_id", m.ID),
	)

	outcome, err := c.run(ctx, m)

	telemetry.EndSpan(span, err)
	c.metrics.MutationsTotal.WithLabelValues(m.Action, outcome).Inc()
	c.metrics.MutationDuration.WithLabelValues(m.Action).Observe(time.Since(start).Seconds())
	return err
}

func (c *Coordinator) run(ctx context.Context, m Mutation) (string, error) {
	logger := c.logger.With().Str("action", m.Action).Int64("id", m.ID).Logger()

	release, err := c.locks.AcquireLock(ctx, m.LockKey)
	if err != nil {
		return OutcomeAborted, c.fail(m, err)
	}
	defer release()

	add := m.Add
	if m.Set != nil {
		current := m.Set.Has(m.ID)
		if m.Toggle {
			add = !current
		}
		// Read under the entity lock, so an earlier mutation on the same
		// entity has already settled
		if current == add {
			logger.Debug().Bool("member", current).Msg("Membership already matches, skipping")
			return OutcomeNoop, nil
		}
		m.Set.Apply(m.ID, add)
		telemetry.AddSpanEvent(ctx, "local_apply", attribute.Bool("add", add))
	}

	resp, err := m.Remote(ctx, add)
	if err != nil {
		if m.Set != nil {
			m.Set.Apply(m.ID, !add)
			c.metrics.MutationRollbacks.WithLabelValues(m.Set.Name()).Inc()
			telemetry.AddSpanEvent(ctx, "rollback")
		}
		logger.Warn().Err(err).Bool("add", add).Msg("Remote mutation failed, local change rolled back")
		return OutcomeRolledBack, c.fail(m, err)
	}

	if m.Success != "" && c.publisher != nil {
		message := m.Success
		if resp != nil && resp.Message != "" {
			message = resp.Message
		}
		c.publisher.Success(message)
	}

	logger.Debug().Bool("add", add).Msg("Mutation committed")
	return OutcomeCommitted, nil
}

func (c *Coordinator) fail(m Mutation, err error) error {
	return &Error{
		Action:  m.Action,
		ID:      m.ID,
		Message: c.errors.Handle(err, m.Fallback),
		Err:     err,
	}
}
