package sqlite

import (
	"context"
	"strings"
	"time"
)

// IsBusyError reports whether err is a SQLITE_BUSY or "database is locked"
// failure. Both are transient under concurrent writers.
func IsBusyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}

// withRetry runs fn, retrying busy errors with exponential backoff.
func (s *Store) withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < s.maxRetries; i++ {
		err = fn()
		if !IsBusyError(err) {
			return err
		}
		if i == s.maxRetries-1 {
			break
		}
		delay := s.retryDelay * time.Duration(1<<i)
		s.logger.Debug("Database locked, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
