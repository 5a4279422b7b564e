// Package repo contains the Postgres archive of parking stays.
// The ledger is the live authority; this package only records transitions
// after the fact and reloads them at startup. No business logic lives here,
// only SQL and type mapping.
package repo

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/pkordes/parking-ledger/internal/domain"
)

// db is the minimal interface satisfied by *pgxpool.Pool, pgx.Conn, and pgx.Tx.
// Accepting this interface instead of *pgxpool.Pool directly allows integration
// tests to pass a transaction that is rolled back after each test, giving free
// per-test isolation without any manual cleanup.
type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StayRepo defines the persistence operations for archived stays.
// The archiver depends on this interface, not the Postgres implementation,
// so it can be unit-tested with a mock.
type StayRepo interface {
	// Upsert records a stay. Inserting an open stay and later upserting the
	// closed one completes the row; a closed row is never modified again.
	Upsert(ctx context.Context, stay domain.Stay) error

	// List returns every archived stay ordered by entry_time ascending.
	List(ctx context.Context) ([]domain.Stay, error)

	// GetByID retrieves a single archived stay.
	// Returns domain.ErrNotFound if no stay with that ID exists.
	GetByID(ctx context.Context, id uuid.UUID) (domain.Stay, error)
}

// pgStayRepo is the Postgres implementation of StayRepo.
type pgStayRepo struct {
	db db
}

// NewStayRepo constructs a StayRepo backed by the provided db connection.
// In production pass *pgxpool.Pool; in tests pass a pgx.Tx for rollback isolation.
func NewStayRepo(db db) StayRepo {
	return &pgStayRepo{db: db}
}

// Upsert inserts the stay or, if the row exists and is still open, records
// its exit. The WHERE guard keeps a closed row immutable even if an older
// "entered" event is replayed after the "exited" one.
func (r *pgStayRepo) Upsert(ctx context.Context, stay domain.Stay) error {
	const q = `
		INSERT INTO stays (id, plate, entry_time, exit_time, fare_cents, hourly_rate_cents)
		VALUES (@id, @plate, @entry_time, @exit_time, @fare_cents, @hourly_rate_cents)
		ON CONFLICT (id) DO UPDATE
		SET exit_time         = EXCLUDED.exit_time,
		    fare_cents        = EXCLUDED.fare_cents,
		    hourly_rate_cents = EXCLUDED.hourly_rate_cents,
		    updated_at        = now()
		WHERE stays.exit_time IS NULL
		  AND EXCLUDED.exit_time IS NOT NULL`

	args := pgx.NamedArgs{
		"id":                stay.ID,
		"plate":             string(stay.Plate),
		"entry_time":        stay.EntryTime,
		"exit_time":         stay.ExitTime, // nil becomes NULL
		"fare_cents":        centsOrNil(stay.Fare),
		"hourly_rate_cents": centsOrNil(stay.HourlyRate),
	}

	if _, err := r.db.Exec(ctx, q, args); err != nil {
		return fmt.Errorf("repo.StayRepo.Upsert: %w", err)
	}
	return nil
}

// List returns all archived stays, oldest entry first.
func (r *pgStayRepo) List(ctx context.Context) ([]domain.Stay, error) {
	const q = `
		SELECT id, plate, entry_time, exit_time, fare_cents, hourly_rate_cents
		FROM stays
		ORDER BY entry_time ASC, created_at ASC`

	rows, err := r.db.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("repo.StayRepo.List: %w", err)
	}
	defer rows.Close()

	var stays []domain.Stay
	for rows.Next() {
		s, err := scanStay(rows)
		if err != nil {
			return nil, fmt.Errorf("repo.StayRepo.List: scan: %w", err)
		}
		stays = append(stays, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repo.StayRepo.List: rows: %w", err)
	}

	return stays, nil
}

// GetByID retrieves an archived stay by primary key.
func (r *pgStayRepo) GetByID(ctx context.Context, id uuid.UUID) (domain.Stay, error) {
	const q = `
		SELECT id, plate, entry_time, exit_time, fare_cents, hourly_rate_cents
		FROM stays
		WHERE id = @id`

	row := r.db.QueryRow(ctx, q, pgx.NamedArgs{"id": id})
	s, err := scanStay(row)
	if err != nil {
		return domain.Stay{}, fmt.Errorf("repo.StayRepo.GetByID: %w", err)
	}
	return s, nil
}

// scanner is satisfied by both pgx.Row and pgx.Rows, allowing scanStay to be
// reused for both QueryRow and Query calls.
type scanner interface {
	Scan(dest ...any) error
}

// scanStay maps a single database row into a domain.Stay.
// It handles the UUID, the nullable exit_time / fare_cents pair and the
// nullable billed rate.
func scanStay(s scanner) (domain.Stay, error) {
	var (
		st    domain.Stay
		id    pgtype.UUID
		plate string
		exit  pgtype.Timestamptz
		fare  pgtype.Int8
		rate  pgtype.Int8
	)

	err := s.Scan(&id, &plate, &st.EntryTime, &exit, &fare, &rate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stay{}, domain.ErrNotFound
		}
		return domain.Stay{}, err
	}

	st.ID = uuid.UUID(id.Bytes)
	st.Plate = domain.Plate(plate)
	if exit.Valid {
		t := exit.Time
		st.ExitTime = &t
	}
	if fare.Valid {
		m := domain.Money(fare.Int64)
		st.Fare = &m
	}
	if rate.Valid {
		m := domain.Money(rate.Int64)
		st.HourlyRate = &m
	}

	return st, nil
}

func centsOrNil(m *domain.Money) *int64 {
	if m == nil {
		return nil
	}
	c := int64(*m)
	return &c
}
