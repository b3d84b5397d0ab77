package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medidir/booking-engine/internal/db"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.Connect(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedProviders(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedServices(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed services: %v", err)
	}
	if err := seedAffiliations(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed affiliations: %v", err)
	}

	log.Println("seed complete")
}

// seedProviders inserts providers together with a standard working week:
// Mon-Fri open, a weekday lunch break, and a weekend off.
func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	slotChoices := []int{15, 20, 30, 45, 60}
	ids := make([]uuid.UUID, 0, count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := "Dr. " + gofakeit.Name()
		slotMinutes := slotChoices[gofakeit.Number(0, len(slotChoices)-1)]
		autoConfirm := gofakeit.Bool()

		_, err := tx.Exec(ctx, `
			INSERT INTO providers (id, name, primary_location_id, slot_minutes, auto_confirm, time_zone, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, now(), now())
		`, id, name, uuid.New(), slotMinutes, autoConfirm, "Europe/Berlin")
		if err != nil {
			return nil, err
		}

		// weekday = 0 is Sunday, matching time.Weekday
		for weekday := 0; weekday < 7; weekday++ {
			open := weekday >= 1 && weekday <= 5
			openMin, closeMin := 0, 0
			if open {
				openMin = 8 * 60
				closeMin = 17 * 60
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO week_rules (provider_id, weekday, is_open, open_minutes, close_minutes)
				VALUES ($1, $2, $3, $4, $5)
			`, id, weekday, open, openMin, closeMin)
			if err != nil {
				return nil, err
			}
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO breaks (provider_id, start_minutes, end_minutes) VALUES ($1, $2, $3)
		`, id, 12*60, 13*60)
		if err != nil {
			return nil, err
		}

		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("providers seeded")
	return ids, nil
}

func seedServices(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Printf("seeding services for %d providers", len(providerIDs))

	names := []string{
		"Initial consultation",
		"Follow-up visit",
		"Extended examination",
		"Preventive check-up",
		"Telehealth call",
	}
	durations := []int{15, 30, 45, 60}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, providerID := range providerIDs {
		n := gofakeit.Number(1, 4)
		for i := 0; i < n; i++ {
			price := int64(gofakeit.Number(2000, 25000))
			_, err := tx.Exec(ctx, `
				INSERT INTO services (id, provider_id, name, duration_minutes, price_minor, discount_price_minor, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, NULL, now(), now())
			`, uuid.New(), providerID, names[gofakeit.Number(0, len(names)-1)],
				durations[gofakeit.Number(0, len(durations)-1)], price)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("services seeded")
	return nil
}

// seedAffiliations proposes a handful of guest visit days in the next two
// weeks; roughly half are left pending so both lifecycle states show up.
func seedAffiliations(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Println("seeding guest affiliations")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, providerID := range providerIDs {
		if gofakeit.Number(0, 2) != 0 {
			continue
		}

		visitDate := time.Now().AddDate(0, 0, gofakeit.Number(3, 14)).Truncate(24 * time.Hour)
		status := "pending"
		if gofakeit.Bool() {
			status = "confirmed"
		}

		_, err := tx.Exec(ctx, `
			INSERT INTO guest_affiliations (id, provider_id, host_location_id, visit_date, window_start_minutes,
				window_end_minutes, slot_minutes, status, initiated_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		`, uuid.New(), providerID, uuid.New(), visitDate, 17*60, 20*60, 20, status, "host")
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("guest affiliations seeded")
	return nil
}
