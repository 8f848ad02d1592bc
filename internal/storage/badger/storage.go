package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/nkkko/verse/internal/membership"
	"github.com/nkkko/verse/internal/metrics"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const prefixSnapshot = "snap:"

// ErrClosed is returned by operations on a closed store
var ErrClosed = errors.New("snapshot storage closed")

// Config contains badger storage configuration
type Config struct {
	// Base directory for data files
	DataDir string

	// Keep everything in memory
	InMemory bool

	// Sync every write to disk
	SyncWrites bool

	// Value log garbage collection interval; zero disables it
	GCInterval time.Duration

	// Discard ratio passed to RunValueLogGC
	GCDiscardRatio float64
}

// DefaultConfig returns a default configuration for badger storage
func DefaultConfig() Config {
	return Config{
		DataDir:        "./data",
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// record is the stored form of a snapshot
type record struct {
	Snapshot membership.Snapshot `json:"snapshot"`
	SavedAt  time.Time           `json:"saved_at"`
}

// Storage persists membership snapshots in badger
type Storage struct {
	config  Config
	db      *badger.DB
	done    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
	logger  zerolog.Logger
	metrics *metrics.Metrics
}

// NewStorage opens the badger database described by config
func NewStorage(config Config) (*Storage, error) {
	logger := log.With().Str("component", "storage-badger").Logger()

	if config.GCDiscardRatio <= 0 || config.GCDiscardRatio >= 1 {
		config.GCDiscardRatio = DefaultConfig().GCDiscardRatio
	}

	var options badger.Options
	if config.InMemory {
		options = badger.DefaultOptions("").WithInMemory(true)
	} else {
		dbPath := filepath.Join(config.DataDir, "badger")
		if err := os.MkdirAll(dbPath, 0755); err != nil {
			return nil, fmt.Errorf("failed to create badger directory: %w", err)
		}
		options = badger.DefaultOptions(dbPath).WithSyncWrites(config.SyncWrites)
	}
	options = options.WithLogger(badgerLogger{logger: logger})

	db, err := badger.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open Badger: %w", err)
	}

	s := &Storage{
		config:  config,
		db:      db,
		done:    make(chan struct{}),
		logger:  logger,
		metrics: metrics.GetMetrics(),
	}

	if config.GCInterval > 0 && !config.InMemory {
		s.wg.Add(1)
		go s.runPeriodicGC(config.GCInterval, config.GCDiscardRatio)
	}

	logger.Info().
		Str("data_dir", config.DataDir).
		Bool("in_memory", config.InMemory).
		Msg("Snapshot storage opened")
	return s, nil
}

// Save replaces the stored snapshot for snap.UserID
func (s *Storage) Save(ctx context.Context, snap membership.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if snap.UserID == 0 {
		return errors.New("snapshot has no user id")
	}

	start := time.Now()
	data, err := json.Marshal(record{Snapshot: snap, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(snapshotKey(snap.UserID), data)
	})
	s.observe("save", start, err)
	if err != nil {
		return fmt.Errorf("failed to save snapshot for user %d: %w", snap.UserID, s.translate(err))
	}

	s.logger.Debug().
		Int64("user_id", snap.UserID).
		Int("liked", len(snap.Liked)).
		Int("bookmarked", len(snap.Bookmarked)).
		Int("read", len(snap.Read)).
		Msg("Snapshot saved")
	return nil
}

// Load returns the stored snapshot for userID
func (s *Storage) Load(ctx context.Context, userID int64) (membership.Snapshot, bool, error) {
	if err := ctx.Err(); err != nil {
		return membership.Snapshot{}, false, err
	}

	start := time.Now()
	var rec record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(snapshotKey(userID))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		s.observe("load", start, nil)
		return membership.Snapshot{}, false, nil
	}
	s.observe("load", start, err)
	if err != nil {
		return membership.Snapshot{}, false, fmt.Errorf("failed to load snapshot for user %d: %w", userID, s.translate(err))
	}
	return rec.Snapshot, true, nil
}

// Delete removes the stored snapshot for userID
func (s *Storage) Delete(ctx context.Context, userID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(snapshotKey(userID))
	})
	s.observe("delete", start, err)
	if err != nil {
		return fmt.Errorf("failed to delete snapshot for user %d: %w", userID, s.translate(err))
	}
	return nil
}

// Close stops background GC and closes the database
func (s *Storage) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.db.Close()
		s.logger.Info().Msg("Snapshot storage closed")
	})
	return err
}

func (s *Storage) observe(op string, start time.Time, err error) {
	s.metrics.StorageOperations.WithLabelValues(op, strconv.FormatBool(err == nil)).Inc()
	s.metrics.StorageOperationDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (s *Storage) translate(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

func snapshotKey(userID int64) []byte {
	return []byte(prefixSnapshot + strconv.FormatInt(userID, 10))
}
