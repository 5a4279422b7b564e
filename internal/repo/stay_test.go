package repo_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pkordes/parking-ledger/internal/domain"
	"github.com/pkordes/parking-ledger/internal/repo"
	"github.com/pkordes/parking-ledger/testutil"
)

// newTestRepo opens a transaction against the test database and returns a
// StayRepo backed by that transaction. The transaction is automatically rolled
// back when the test finishes, giving free per-test isolation.
//
// Requires TEST_DATABASE_URL; TestMain applies the migrations.
func newTestRepo(t *testing.T) repo.StayRepo {
	t.Helper()
	pool := testutil.NewPool(t)

	tx, err := pool.Begin(context.Background())
	require.NoError(t, err, "begin transaction")

	t.Cleanup(func() {
		// Rollback discards all changes made during the test; no cleanup SQL needed.
		_ = tx.Rollback(context.Background())
	})

	return repo.NewStayRepo(tx)
}

// openStayFixture returns an open stay ready for insertion.
func openStayFixture(plate string) domain.Stay {
	return domain.Stay{
		ID:        uuid.New(),
		Plate:     domain.Plate(plate),
		EntryTime: time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}
}

func TestStayRepo_Upsert_OpenThenClosed(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	open := openStayFixture("ABC1234")
	require.NoError(t, r.Upsert(ctx, open))

	got, err := r.GetByID(ctx, open.ID)
	require.NoError(t, err)
	assert.Equal(t, open.Plate, got.Plate)
	assert.True(t, got.EntryTime.Equal(open.EntryTime), "EntryTime mismatch")
	assert.Nil(t, got.ExitTime)
	assert.Nil(t, got.Fare)

	closed := open.Closed(open.EntryTime.Add(135*time.Minute), domain.Cents(1000), domain.Cents(3000))
	require.NoError(t, r.Upsert(ctx, closed))

	got, err = r.GetByID(ctx, open.ID)
	require.NoError(t, err)
	require.NotNil(t, got.ExitTime)
	require.NotNil(t, got.Fare)
	assert.True(t, got.ExitTime.Equal(*closed.ExitTime), "ExitTime mismatch")
	assert.Equal(t, domain.Cents(3000), *got.Fare)
	require.NotNil(t, got.HourlyRate)
	assert.Equal(t, domain.Cents(1000), *got.HourlyRate)
}

// TestStayRepo_Upsert_ClosedRowIsImmutable verifies a late "entered" replay or
// a second close does not change an archived closed stay.
func TestStayRepo_Upsert_ClosedRowIsImmutable(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	open := openStayFixture("ABC1234")
	closed := open.Closed(open.EntryTime.Add(time.Hour), domain.Cents(1000), domain.Cents(1000))
	require.NoError(t, r.Upsert(ctx, closed))

	require.NoError(t, r.Upsert(ctx, open))
	require.NoError(t, r.Upsert(ctx, open.Closed(open.EntryTime.Add(5*time.Hour), domain.Cents(1000), domain.Cents(5000))))

	got, err := r.GetByID(ctx, open.ID)
	require.NoError(t, err)
	require.NotNil(t, got.Fare)
	assert.Equal(t, domain.Cents(1000), *got.Fare)
}

// TestStayRepo_Upsert_SecondOpenStayForPlate verifies the partial unique index
// backs up the one-open-stay-per-plate rule.
func TestStayRepo_Upsert_SecondOpenStayForPlate(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Upsert(ctx, openStayFixture("ABC1234")))

	err := r.Upsert(ctx, openStayFixture("ABC1234"))

	assert.Error(t, err)
}

func TestStayRepo_List(t *testing.T) {
	r := newTestRepo(t)
	ctx := context.Background()

	later := openStayFixture("BBB2222")
	later.EntryTime = later.EntryTime.Add(time.Hour)
	earlier := openStayFixture("AAA1111")
	require.NoError(t, r.Upsert(ctx, later))
	require.NoError(t, r.Upsert(ctx, earlier))

	stays, err := r.List(ctx)

	require.NoError(t, err)
	require.Len(t, stays, 2)
	assert.Equal(t, earlier.ID, stays[0].ID)
	assert.Equal(t, later.ID, stays[1].ID)
}

func TestStayRepo_GetByID_NotFound(t *testing.T) {
	r := newTestRepo(t)

	_, err := r.GetByID(context.Background(), uuid.New())

	assert.ErrorIs(t, err, domain.ErrNotFound)
}
