package storage

import (
	"github.com/nkkko/verse/internal/storage/badger"
)

// NewStorage creates the badger-backed snapshot store
func NewStorage(config Config) (SnapshotStore, error) {
	return badger.NewStorage(badger.Config{
		DataDir:        config.DataDir,
		InMemory:       config.InMemory,
		SyncWrites:     config.SyncWrites,
		GCInterval:     config.GCInterval,
		GCDiscardRatio: config.GCDiscardRatio,
	})
}
