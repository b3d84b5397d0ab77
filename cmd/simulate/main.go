package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/medidir/booking-engine/internal/db"
)

// simulate hammers a running api-server with concurrent availability
// reads and reservation attempts so the contention behavior of the
// (provider, date) lock can be observed under load.

type simConfig struct {
	baseURL     string
	duration    time.Duration
	workers     int
	reserveRate float64
	postgresDSN string
}

type opStats struct {
	total    int64
	success  int64
	conflict int64
	failed   int64

	mu        sync.Mutex
	latencies []time.Duration
}

func (s *opStats) record(latency time.Duration, status int) {
	atomic.AddInt64(&s.total, 1)
	switch {
	case status >= 200 && status < 300:
		atomic.AddInt64(&s.success, 1)
	case status == http.StatusConflict:
		atomic.AddInt64(&s.conflict, 1)
	default:
		atomic.AddInt64(&s.failed, 1)
	}

	s.mu.Lock()
	s.latencies = append(s.latencies, latency)
	s.mu.Unlock()
}

func (s *opStats) report(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fmt.Printf("%-14s total=%d ok=%d conflict=%d failed=%d",
		name, s.total, s.success, s.conflict, s.failed)
	if len(s.latencies) > 0 {
		sort.Slice(s.latencies, func(i, j int) bool { return s.latencies[i] < s.latencies[j] })
		p50 := s.latencies[len(s.latencies)/2]
		p95 := s.latencies[len(s.latencies)*95/100]
		fmt.Printf(" p50=%s p95=%s", p50, p95)
	}
	fmt.Println()
}

type slot struct {
	Start      time.Time `json:"start"`
	LocationID uuid.UUID `json:"location_id"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)

	cfg := simConfig{postgresDSN: os.Getenv("POSTGRES_DSN")}
	flag.StringVar(&cfg.baseURL, "base-url", "http://localhost:8080", "api-server base URL")
	flag.DurationVar(&cfg.duration, "duration", 30*time.Second, "how long to run")
	flag.IntVar(&cfg.workers, "workers", 16, "concurrent workers")
	flag.Float64Var(&cfg.reserveRate, "reserve-rate", 0.4, "fraction of iterations that attempt a reservation")
	flag.Parse()

	providerIDs, err := loadProviders(cfg.postgresDSN)
	if err != nil {
		log.Fatalf("load providers: %v", err)
	}
	if len(providerIDs) == 0 {
		log.Fatal("no providers found, run cmd/seed first")
	}
	log.Printf("simulating against %d providers, %d workers, %s", len(providerIDs), cfg.workers, cfg.duration)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.duration)
	defer cancel()

	client := &http.Client{Timeout: 5 * time.Second}
	availStats := &opStats{}
	reserveStats := &opStats{}

	var wg sync.WaitGroup
	for w := 0; w < cfg.workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for ctx.Err() == nil {
				providerID := providerIDs[rng.Intn(len(providerIDs))]
				date := time.Now().AddDate(0, 0, 1+rng.Intn(10)).Format("2006-01-02")

				slots := fetchAvailability(ctx, client, cfg.baseURL, providerID, date, availStats)
				if len(slots) > 0 && rng.Float64() < cfg.reserveRate {
					// everyone aims at the first slot of the day to force contention
					target := slots[0]
					if rng.Intn(4) == 0 {
						target = slots[rng.Intn(len(slots))]
					}
					attemptReserve(ctx, client, cfg.baseURL, providerID, date, target, reserveStats)
				}
			}
		}(int64(w) + time.Now().UnixNano())
	}
	wg.Wait()

	fmt.Println("--- results ---")
	availStats.report("availability")
	reserveStats.report("reserve")
}

func loadProviders(dsn string) ([]uuid.UUID, error) {
	if dsn == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer pool.Close()

	rows, err := pool.Query(ctx, `SELECT id FROM providers LIMIT 200`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func fetchAvailability(ctx context.Context, client *http.Client, baseURL string, providerID uuid.UUID, date string, stats *opStats) []slot {
	url := fmt.Sprintf("%s/providers/%s/availability?date=%s", baseURL, providerID, date)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			stats.record(time.Since(start), 0)
		}
		return nil
	}
	defer resp.Body.Close()
	stats.record(time.Since(start), resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	var slots []slot
	if err := json.NewDecoder(resp.Body).Decode(&slots); err != nil {
		return nil
	}
	return slots
}

func attemptReserve(ctx context.Context, client *http.Client, baseURL string, providerID uuid.UUID, date string, target slot, stats *opStats) {
	body, err := json.Marshal(map[string]any{
		"provider_id": providerID.String(),
		"location_id": target.LocationID.String(),
		"date":        date,
		"slot_start":  target.Start.Format(time.RFC3339),
		"subject":     map[string]string{"name": "Load Tester", "phone": "+10000000000"},
	})
	if err != nil {
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/bookings", bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		if ctx.Err() == nil {
			stats.record(time.Since(start), 0)
		}
		return
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	stats.record(time.Since(start), resp.StatusCode)
}
