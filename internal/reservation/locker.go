package reservation

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/medidir/booking-engine/internal/timerange"
)

// MemoryLocker serializes critical sections with one blocking mutex per
// (provider, date) key. It backs tests and single-node deployments; the
// Redis locker covers multi-node ones. Entries are refcounted and evicted
// when the last holder releases, so the map stays bounded by the number of
// keys currently contended rather than every key ever seen.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

type lockEntry struct {
	mu   sync.Mutex
	refs int
}

func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*lockEntry)}
}

func (l *MemoryLocker) WithProviderDateLock(ctx context.Context, providerID uuid.UUID, date timerange.Date, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("%s:%s", providerID, date)

	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &lockEntry{}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	e.mu.Lock()
	defer func() {
		e.mu.Unlock()
		l.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(l.locks, key)
		}
		l.mu.Unlock()
	}()

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn(ctx)
}
