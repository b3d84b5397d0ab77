package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/medidir/booking-engine/internal/schedule"
	"github.com/medidir/booking-engine/internal/timerange"
)

// PgRepository is the Postgres-backed Repository. Week rules, breaks and
// closures live in their own narrow tables keyed by provider; clock times
// are stored as minutes from midnight, dates as SQL dates.
type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.PrimaryLocationID,
		&p.SlotMinutes,
		&p.AutoConfirm,
		&p.TimeZone,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}
	return &p, nil
}

func scanService(row pgx.Row) (*Service, error) {
	var s Service
	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.Name,
		&s.DurationMinutes,
		&s.PriceMinor,
		&s.DiscountPriceMinor,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrServiceNotFound
		}
		return nil, err
	}
	return &s, nil
}

func scanBooking(row pgx.Row) (*Booking, error) {
	var b Booking
	err := row.Scan(
		&b.ID,
		&b.ProviderID,
		&b.LocationID,
		&b.AffiliationID,
		&b.SlotStart,
		&b.DurationMinutes,
		&b.ServiceID,
		&b.Subject.UserID,
		&b.Subject.Name,
		&b.Subject.Phone,
		&b.Status,
		&b.Reason,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrBookingNotFound
		}
		return nil, err
	}
	return &b, nil
}

func scanAffiliation(row pgx.Row) (*GuestAffiliation, error) {
	var (
		a         GuestAffiliation
		visitDate time.Time
		winStart  int
		winEnd    int
	)
	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.HostLocationID,
		&visitDate,
		&winStart,
		&winEnd,
		&a.SlotMinutes,
		&a.Status,
		&a.InitiatedBy,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAffiliationNotFound
		}
		return nil, err
	}
	a.Date = timerange.DateOf(visitDate, time.UTC)
	a.Window = timerange.TimeRange{Start: timerange.TimeOfDay(winStart), End: timerange.TimeOfDay(winEnd)}
	return &a, nil
}

const bookingColumns = `id, provider_id, location_id, affiliation_id, slot_start, duration_minutes,
	service_id, subject_user_id, subject_name, subject_phone, status, reason, created_at, updated_at`

const affiliationColumns = `id, provider_id, host_location_id, visit_date, window_start_minutes,
	window_end_minutes, slot_minutes, status, initiated_by, created_at, updated_at`

// Providers and services

func (r *PgRepository) GetProvider(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, name, primary_location_id, slot_minutes, auto_confirm, time_zone, created_at, updated_at
		FROM providers WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetService(ctx context.Context, id uuid.UUID) (*Service, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, provider_id, name, duration_minutes, price_minor, discount_price_minor, created_at, updated_at
		FROM services WHERE id = $1
	`, id)
	return scanService(row)
}

// Declared availability

func (r *PgRepository) GetCalendar(ctx context.Context, providerID uuid.UUID) (*schedule.Calendar, error) {
	if _, err := r.GetProvider(ctx, providerID); err != nil {
		return nil, err
	}

	var cal schedule.Calendar

	rows, err := r.pool.Query(ctx, `
		SELECT weekday, is_open, open_minutes, close_minutes
		FROM week_rules WHERE provider_id = $1
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("load week rules: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			weekday           int
			isOpen            bool
			openMin, closeMin int
		)
		if err := rows.Scan(&weekday, &isOpen, &openMin, &closeMin); err != nil {
			return nil, err
		}
		if weekday < 0 || weekday > 6 {
			continue
		}
		cal.Week[weekday] = schedule.DayRule{
			Open:  isOpen,
			Hours: timerange.TimeRange{Start: timerange.TimeOfDay(openMin), End: timerange.TimeOfDay(closeMin)},
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT start_minutes, end_minutes FROM breaks WHERE provider_id = $1
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("load breaks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var start, end int
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		cal.Breaks = append(cal.Breaks, schedule.Break{
			Range: timerange.TimeRange{Start: timerange.TimeOfDay(start), End: timerange.TimeOfDay(end)},
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	rows, err = r.pool.Query(ctx, `
		SELECT start_date, end_date, reason FROM closures WHERE provider_id = $1
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("load closures: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			startDate, endDate time.Time
			reason             string
		)
		if err := rows.Scan(&startDate, &endDate, &reason); err != nil {
			return nil, err
		}
		cal.Closures = append(cal.Closures, schedule.Closure{
			StartDate: timerange.DateOf(startDate, time.UTC),
			EndDate:   timerange.DateOf(endDate, time.UTC),
			Reason:    reason,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return &cal, nil
}

func (r *PgRepository) PutWeekCalendar(ctx context.Context, providerID uuid.UUID, week schedule.WeekCalendar) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM week_rules WHERE provider_id = $1`, providerID); err != nil {
		return fmt.Errorf("clear week rules: %w", err)
	}
	for weekday, rule := range week {
		_, err := tx.Exec(ctx, `
			INSERT INTO week_rules (provider_id, weekday, is_open, open_minutes, close_minutes)
			VALUES ($1, $2, $3, $4, $5)
		`, providerID, weekday, rule.Open, int(rule.Hours.Start), int(rule.Hours.End))
		if err != nil {
			return fmt.Errorf("insert week rule: %w", err)
		}
	}
	return tx.Commit(ctx)
}

func (r *PgRepository) AddBreak(ctx context.Context, providerID uuid.UUID, b schedule.Break) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO breaks (provider_id, start_minutes, end_minutes) VALUES ($1, $2, $3)
	`, providerID, int(b.Range.Start), int(b.Range.End))
	return err
}

func (r *PgRepository) RemoveBreak(ctx context.Context, providerID uuid.UUID, rng timerange.TimeRange) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM breaks WHERE provider_id = $1 AND start_minutes = $2 AND end_minutes = $3
	`, providerID, int(rng.Start), int(rng.End))
	return err
}

func (r *PgRepository) AddClosure(ctx context.Context, providerID uuid.UUID, c schedule.Closure) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO closures (provider_id, start_date, end_date, reason) VALUES ($1, $2, $3, $4)
	`, providerID, c.StartDate.At(0, time.UTC), c.EndDate.At(0, time.UTC), c.Reason)
	return err
}

func (r *PgRepository) RemoveClosure(ctx context.Context, providerID uuid.UUID, startDate timerange.Date) error {
	_, err := r.pool.Exec(ctx, `
		DELETE FROM closures WHERE provider_id = $1 AND start_date = $2
	`, providerID, startDate.At(0, time.UTC))
	return err
}

// Bookings

func (r *PgRepository) GetBooking(ctx context.Context, id uuid.UUID) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, id)
	return scanBooking(row)
}

func (r *PgRepository) CreateBooking(ctx context.Context, b *Booking) error {
	if b.ID == uuid.Nil {
		b.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO bookings (id, provider_id, location_id, affiliation_id, slot_start, duration_minutes,
			service_id, subject_user_id, subject_name, subject_phone, status, reason, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, now(), now())
		RETURNING created_at, updated_at
	`, b.ID, b.ProviderID, b.LocationID, b.AffiliationID, b.SlotStart, b.DurationMinutes,
		b.ServiceID, b.Subject.UserID, b.Subject.Name, b.Subject.Phone, b.Status, b.Reason)
	return row.Scan(&b.CreatedAt, &b.UpdatedAt)
}

func (r *PgRepository) UpdateBookingStatus(ctx context.Context, id uuid.UUID, from, to BookingStatus, reason string) (*Booking, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE bookings
		SET status = $3,
			reason = CASE WHEN $4 <> '' THEN $4 ELSE reason END,
			updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+bookingColumns+`
	`, id, from, to, reason)

	b, err := scanBooking(row)
	if err == nil {
		return b, nil
	}
	if !errors.Is(err, ErrBookingNotFound) {
		return nil, err
	}

	// Distinguish a missing booking from a lost status race.
	if _, getErr := r.GetBooking(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("booking %s is not %s anymore: %w", id, from, ErrStatusConflict)
}

func (r *PgRepository) ListBookingsOn(ctx context.Context, providerID uuid.UUID, dayStart, dayEnd time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE provider_id = $1 AND slot_start >= $2 AND slot_start < $3
		ORDER BY slot_start
	`, providerID, dayStart, dayEnd)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *PgRepository) ListBookingsByAffiliation(ctx context.Context, affiliationID uuid.UUID) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE affiliation_id = $1
		ORDER BY slot_start
	`, affiliationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func (r *PgRepository) FindSweepCandidates(ctx context.Context, providerID *uuid.UUID, now time.Time) ([]Booking, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = $1
		  AND slot_start + make_interval(mins => duration_minutes) <= $2
		  AND ($3::uuid IS NULL OR provider_id = $3)
		ORDER BY slot_start
	`, StatusConfirmed, now, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectBookings(rows)
}

func collectBookings(rows pgx.Rows) ([]Booking, error) {
	var out []Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

// Guest affiliations

func (r *PgRepository) GetAffiliation(ctx context.Context, id uuid.UUID) (*GuestAffiliation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+affiliationColumns+` FROM guest_affiliations WHERE id = $1`, id)
	return scanAffiliation(row)
}

func (r *PgRepository) CreateAffiliation(ctx context.Context, a *GuestAffiliation) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	row := r.pool.QueryRow(ctx, `
		INSERT INTO guest_affiliations (id, provider_id, host_location_id, visit_date, window_start_minutes,
			window_end_minutes, slot_minutes, status, initiated_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
		RETURNING created_at, updated_at
	`, a.ID, a.ProviderID, a.HostLocationID, a.Date.At(0, time.UTC), int(a.Window.Start),
		int(a.Window.End), a.SlotMinutes, a.Status, a.InitiatedBy)
	return row.Scan(&a.CreatedAt, &a.UpdatedAt)
}

func (r *PgRepository) UpdateAffiliationStatus(ctx context.Context, id uuid.UUID, from, to AffiliationStatus) (*GuestAffiliation, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE guest_affiliations
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2
		RETURNING `+affiliationColumns+`
	`, id, from, to)

	a, err := scanAffiliation(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, ErrAffiliationNotFound) {
		return nil, err
	}

	if _, getErr := r.GetAffiliation(ctx, id); getErr != nil {
		return nil, getErr
	}
	return nil, fmt.Errorf("affiliation %s is not %s anymore: %w", id, from, ErrStatusConflict)
}

func (r *PgRepository) ListConfirmedAffiliations(ctx context.Context, providerID uuid.UUID, date timerange.Date) ([]GuestAffiliation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+affiliationColumns+`
		FROM guest_affiliations
		WHERE provider_id = $1 AND status = $2 AND visit_date = $3
	`, providerID, AffiliationConfirmed, date.At(0, time.UTC))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []GuestAffiliation
	for rows.Next() {
		a, err := scanAffiliation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

// Event logging

func (r *PgRepository) InsertEvent(ctx context.Context, ev EventLog) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO event_log (event_type, booking_id, payload, created_at)
		VALUES ($1, $2, $3, $4)
	`, ev.EventType, ev.BookingID, ev.Payload, ev.CreatedAt)
	return err
}
