package badger

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// runPeriodicGC runs value log garbage collection on a regular interval
func (s *Storage) runPeriodicGC(interval time.Duration, discardRatio float64) {
	defer s.wg.Done()

	logger := s.logger.With().Str("task", "gc").Logger()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			err := s.db.RunValueLogGC(discardRatio)
			switch {
			case err == nil:
				logger.Info().Msg("Garbage collection completed")
			case errors.Is(err, badger.ErrNoRewrite):
				logger.Debug().Msg("No garbage collection needed")
			default:
				logger.Error().Err(err).Msg("Error during garbage collection")
			}
		case <-s.done:
			return
		}
	}
}

// badgerLogger routes badger's internal logging through zerolog. Info and
// debug output is demoted so it stays out of normal logs.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Msg(trim(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Msg(trim(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Msg(trim(fmt.Sprintf(format, args...)))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Msg(trim(fmt.Sprintf(format, args...)))
}

func trim(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == ' ') {
		s = s[:len(s)-1]
	}
	return s
}
