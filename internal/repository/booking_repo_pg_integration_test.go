package repository

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/Domenick1991/courierbooking/internal/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testPool connects to COURIER_TEST_DATABASE_URL and applies the schema in a
// throwaway postgres schema dropped after the test.
func testPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("COURIER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("COURIER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	admin, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	schema := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	_, err = admin.Exec(ctx, `CREATE SCHEMA `+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.Exec(context.Background(), `DROP SCHEMA `+schema+` CASCADE`)
		admin.Close()
	})

	cfg, err := pgxpool.ParseConfig(url)
	require.NoError(t, err)
	cfg.ConnConfig.RuntimeParams["search_path"] = schema
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	ddl, err := os.ReadFile("../../migrations/000001_init.up.sql")
	require.NoError(t, err)
	for _, stmt := range strings.Split(string(ddl), ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		_, err := pool.Exec(ctx, stmt)
		require.NoError(t, err)
	}

	_, err = pool.Exec(ctx, `INSERT INTO pilots (id, name, status, is_online) VALUES
		('pl-1', 'Ravi', 'available', true),
		('pl-2', 'Asha', 'offline', false)`)
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `INSERT INTO bookings (id, status, pickup_address, dropoff_address, estimated_price) VALUES
		('bk-legacy', 'SEARCHING', '"12 MG Road"', '{"street":"4 Church St"}', 180),
		('bk-drop', 'ARRIVED_DROP', '{"street":"9 Brigade Rd"}', '{"street":"1 Lavelle Rd"}', 240)`)
	require.NoError(t, err)
	return pool
}

func countEvents(t *testing.T, pool *pgxpool.Pool, id string) int {
	t.Helper()
	var n int
	require.NoError(t, pool.QueryRow(context.Background(), `SELECT count(*) FROM booking_events WHERE booking_id=$1`, id).Scan(&n))
	return n
}

func TestPGBookingRepository_LegacyStatusCanBeMutated(t *testing.T) {
	pool := testPool(t)
	repo := NewBookingRepository(pool)
	ctx := context.Background()

	b, err := repo.Get(ctx, "bk-legacy")
	require.NoError(t, err)
	require.Equal(t, domain.StatusPending, b.Status)

	_, err = repo.AssignPilot(ctx, b.ID, b.Status, "pl-2")
	assert.ErrorIs(t, err, domain.ErrPilotUnavailable)

	assigned, err := repo.AssignPilot(ctx, b.ID, b.Status, "pl-1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusAccepted, assigned.Status)
	require.NotNil(t, assigned.PilotID)
	assert.Equal(t, "pl-1", *assigned.PilotID)

	// the same read is now stale
	_, err = repo.AssignPilot(ctx, b.ID, b.Status, "pl-1")
	assert.ErrorIs(t, err, domain.ErrConflict)

	var pilotStatus string
	require.NoError(t, pool.QueryRow(ctx, `SELECT status FROM pilots WHERE id='pl-1'`).Scan(&pilotStatus))
	assert.Equal(t, "busy", pilotStatus)
	assert.Equal(t, 1, countEvents(t, pool, "bk-legacy"))
}

func TestPGBookingRepository_FinalPriceIsSetOnce(t *testing.T) {
	pool := testPool(t)
	repo := NewBookingRepository(pool)
	ctx := context.Background()

	first := decimal.RequireFromString("250")
	delivered, err := repo.Transition(ctx, "bk-drop", domain.StatusArrivedDrop, domain.StatusDelivered, "", &first)
	require.NoError(t, err)
	require.NotNil(t, delivered.FinalPrice)
	assert.True(t, first.Equal(*delivered.FinalPrice))

	_, err = pool.Exec(ctx, `UPDATE bookings SET status='ARRIVED_DROP' WHERE id='bk-drop'`)
	require.NoError(t, err)

	second := decimal.RequireFromString("999")
	again, err := repo.Transition(ctx, "bk-drop", domain.StatusArrivedDrop, domain.StatusDelivered, "", &second)
	require.NoError(t, err)
	require.NotNil(t, again.FinalPrice)
	assert.True(t, first.Equal(*again.FinalPrice), "stored final price must not change")
	assert.Equal(t, 2, countEvents(t, pool, "bk-drop"))
}

func TestPGBookingRepository_NotFoundAndConflict(t *testing.T) {
	pool := testPool(t)
	repo := NewBookingRepository(pool)
	ctx := context.Background()

	_, err := repo.Transition(ctx, "bk-missing", domain.StatusPending, domain.StatusAccepted, "", nil)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = repo.Cancel(ctx, "bk-drop", domain.StatusPending, "customer changed plans")
	assert.ErrorIs(t, err, domain.ErrConflict)
	assert.Equal(t, 0, countEvents(t, pool, "bk-drop"))
}
