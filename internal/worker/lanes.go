package worker

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/aretw0/tendril/pkg/ports"
)

// laneEntry holds the mutex of one conversation and its reference count.
type laneEntry struct {
	mu   sync.Mutex
	refs int
}

// lanes serializes work per conversation. Entries are reference counted and
// dropped once no goroutine waits on them. When a Locker is set, the lane is
// also held across processes.
type lanes struct {
	mu      sync.Mutex
	entries map[int64]*laneEntry

	locker  ports.Locker
	lockTTL time.Duration
	logger  *slog.Logger
}

func newLanes(logger *slog.Logger) *lanes {
	return &lanes{
		entries: make(map[int64]*laneEntry),
		lockTTL: 30 * time.Second,
		logger:  logger,
	}
}

func (l *lanes) acquire(convID int64) *laneEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[convID]
	if !ok {
		entry = &laneEntry{}
		l.entries[convID] = entry
	}
	entry.refs++
	return entry
}

func (l *lanes) release(convID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry, ok := l.entries[convID]
	if !ok {
		return
	}
	entry.refs--
	if entry.refs <= 0 {
		delete(l.entries, convID)
	}
}

// active returns the number of conversations with a held or awaited lane.
func (l *lanes) active() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// withLock runs fn while holding the lane of convID.
func (l *lanes) withLock(ctx context.Context, convID int64, fn func(context.Context) error) error {
	entry := l.acquire(convID)
	entry.mu.Lock()
	defer func() {
		entry.mu.Unlock()
		l.release(convID)
	}()

	if l.locker != nil {
		key := "conv:" + strconv.FormatInt(convID, 10)
		unlock, err := l.locker.Lock(ctx, key, l.lockTTL)
		if err != nil {
			return fmt.Errorf("failed to acquire conversation lock: %w", err)
		}
		defer func() {
			if err := unlock(context.WithoutCancel(ctx)); err != nil {
				l.logger.Warn("Failed to release conversation lock (will expire via TTL)",
					"conv_id", convID,
					"err", err,
				)
			}
		}()
	}

	return fn(ctx)
}
