package storage

import (
	"context"
	"time"

	"github.com/nkkko/verse/internal/membership"
)

// SnapshotStore persists membership snapshots per user so a restarted
// client can show its last known state before the API answers
type SnapshotStore interface {
	// Save replaces the stored snapshot for snap.UserID
	Save(ctx context.Context, snap membership.Snapshot) error

	// Load returns the stored snapshot for userID; found is false when
	// nothing was saved
	Load(ctx context.Context, userID int64) (snap membership.Snapshot, found bool, err error)

	// Delete removes the stored snapshot for userID
	Delete(ctx context.Context, userID int64) error

	// Close releases the underlying database
	Close() error
}

// Config contains storage configuration
type Config struct {
	// Base directory for data files
	DataDir string

	// Keep everything in memory; nothing survives Close
	InMemory bool

	// Sync every write to disk
	SyncWrites bool

	// Value log garbage collection interval; zero disables it
	GCInterval time.Duration

	// Discard ratio passed to value log GC
	GCDiscardRatio float64
}

// DefaultConfig returns a default configuration
func DefaultConfig() Config {
	return Config{
		DataDir:        "./data",
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}
