package database

import (
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// NewBadgerDB opens the cache database. With inMemory set, nothing touches
// disk; used by tests and by deployments that prefer a cold cache on restart.
func NewBadgerDB(dir string, inMemory bool, logger zerolog.Logger) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir).
		WithInMemory(inMemory).
		WithLogger(nil)
	if inMemory {
		opts = opts.WithDir("").WithValueDir("")
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger cache: %w", err)
	}

	logger.Info().Bool("in_memory", inMemory).Str("dir", dir).Msg("badger cache opened")
	return db, nil
}
