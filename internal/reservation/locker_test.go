package reservation

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/medidir/booking-engine/internal/timerange"
)

func TestMemoryLockerSerializes(t *testing.T) {
	l := NewMemoryLocker()
	providerID := uuid.New()
	d := timerange.Date{Year: 2026, Month: 9, Day: 1}

	const workers = 50
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := l.WithProviderDateLock(context.Background(), providerID, d, func(context.Context) error {
				counter++
				return nil
			})
			if err != nil {
				t.Errorf("WithProviderDateLock: %v", err)
			}
		}()
	}
	wg.Wait()

	if counter != workers {
		t.Fatalf("counter = %d, want %d", counter, workers)
	}
}

func TestMemoryLockerEvictsReleasedKeys(t *testing.T) {
	l := NewMemoryLocker()
	providerID := uuid.New()

	for day := 1; day <= 28; day++ {
		d := timerange.Date{Year: 2026, Month: 9, Day: day}
		err := l.WithProviderDateLock(context.Background(), providerID, d, func(context.Context) error {
			return nil
		})
		if err != nil {
			t.Fatalf("WithProviderDateLock day %d: %v", day, err)
		}
	}

	l.mu.Lock()
	remaining := len(l.locks)
	l.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("locks map holds %d entries after release, want 0", remaining)
	}
}
