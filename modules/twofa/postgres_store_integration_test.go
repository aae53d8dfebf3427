//go:build integration

package twofa_test

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatterhq/twofactor/modules/twofa"
)

// newPostgresStore connects to the database named by PG_CONN_URL and
// ensures the user_2fa table exists. Run with:
//
//	PG_CONN_URL=postgres://... go test -tags integration ./modules/twofa/
func newPostgresStore(t *testing.T) *twofa.PostgresStore {
	t.Helper()

	dsn := os.Getenv("PG_CONN_URL")
	if dsn == "" {
		t.Skip("PG_CONN_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS user_2fa (
			user_id uuid PRIMARY KEY,
			secret text NOT NULL,
			is_enabled boolean NOT NULL DEFAULT FALSE,
			backup_codes text[] NOT NULL DEFAULT '{}',
			created_at timestamptz NOT NULL DEFAULT now(),
			updated_at timestamptz NOT NULL DEFAULT now()
		)`)
	require.NoError(t, err)

	return twofa.NewPostgresStore(pool)
}

func TestPostgresStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)
	userID := uuid.New()

	_, err := store.GetRecord(ctx, userID)
	assert.ErrorIs(t, err, twofa.ErrRecordNotFound)

	rec := twofa.Record{
		UserID:      userID,
		Secret:      "SECRETSECRETSECRET",
		BackupCodes: []string{},
	}
	require.NoError(t, store.UpsertRecord(ctx, rec))

	got, err := store.GetRecord(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, rec.Secret, got.Secret)
	assert.False(t, got.IsEnabled)
	assert.Empty(t, got.BackupCodes)

	// Upsert replaces the whole row.
	require.NoError(t, store.UpsertRecord(ctx, twofa.Record{UserID: userID, Secret: "NEW", BackupCodes: []string{}}))
	got, err = store.GetRecord(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "NEW", got.Secret)

	require.NoError(t, store.DeleteRecord(ctx, userID))
	_, err = store.GetRecord(ctx, userID)
	assert.ErrorIs(t, err, twofa.ErrRecordNotFound)

	require.NoError(t, store.DeleteRecord(ctx, userID))
}

func TestPostgresStore_EnableWithCodes(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)
	userID := uuid.New()
	t.Cleanup(func() { _ = store.DeleteRecord(ctx, userID) })

	flipped, err := store.EnableWithCodes(ctx, userID, []string{"A1B2-C3D4"})
	require.NoError(t, err)
	assert.False(t, flipped)

	require.NoError(t, store.UpsertRecord(ctx, twofa.Record{UserID: userID, Secret: "S", BackupCodes: []string{}}))

	flipped, err = store.EnableWithCodes(ctx, userID, []string{"A1B2-C3D4"})
	require.NoError(t, err)
	assert.True(t, flipped)

	// Exactly one transition per record.
	flipped, err = store.EnableWithCodes(ctx, userID, []string{"E5F6-0718"})
	require.NoError(t, err)
	assert.False(t, flipped)

	got, err := store.GetRecord(ctx, userID)
	require.NoError(t, err)
	assert.True(t, got.IsEnabled)
	assert.Equal(t, []string{"A1B2-C3D4"}, got.BackupCodes)
}

func TestPostgresStore_ConsumeBackupCode(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)
	userID := uuid.New()
	t.Cleanup(func() { _ = store.DeleteRecord(ctx, userID) })

	require.NoError(t, store.UpsertRecord(ctx, twofa.Record{UserID: userID, Secret: "S", BackupCodes: []string{}}))

	// Disabled records never consume.
	consumed, err := store.ConsumeBackupCode(ctx, userID, "A1B2-C3D4")
	require.NoError(t, err)
	assert.False(t, consumed)

	_, err = store.EnableWithCodes(ctx, userID, []string{"A1B2-C3D4", "E5F6-0718"})
	require.NoError(t, err)

	consumed, err = store.ConsumeBackupCode(ctx, userID, "a1b2c3d4")
	require.NoError(t, err)
	assert.True(t, consumed)

	consumed, err = store.ConsumeBackupCode(ctx, userID, "A1B2-C3D4")
	require.NoError(t, err)
	assert.False(t, consumed)

	got, err := store.GetRecord(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, []string{"E5F6-0718"}, got.BackupCodes)
}

// TestPostgresStore_ConcurrentConsume_SameCode races many logins spending
// one code: the compare-and-swap must let exactly one through, and the
// losers must re-read, find the code gone, and report false rather than
// error.
func TestPostgresStore_ConcurrentConsume_SameCode(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)
	userID := uuid.New()
	t.Cleanup(func() { _ = store.DeleteRecord(ctx, userID) })

	require.NoError(t, store.UpsertRecord(ctx, twofa.Record{UserID: userID, Secret: "S", BackupCodes: []string{}}))
	_, err := store.EnableWithCodes(ctx, userID, []string{"A1B2-C3D4"})
	require.NoError(t, err)

	const attempts = 16
	var wg sync.WaitGroup
	results := make(chan bool, attempts)
	for range attempts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumed, err := store.ConsumeBackupCode(ctx, userID, "A1B2-C3D4")
			assert.NoError(t, err)
			results <- err == nil && consumed
		}()
	}
	wg.Wait()
	close(results)

	won := 0
	for ok := range results {
		if ok {
			won++
		}
	}
	assert.Equal(t, 1, won, "a backup code must be spendable exactly once")
}

// TestPostgresStore_ConcurrentConsume_DistinctCodes makes every goroutine
// spend a different code against the same row, forcing swap conflicts where
// the retry must succeed rather than give up.
func TestPostgresStore_ConcurrentConsume_DistinctCodes(t *testing.T) {
	ctx := context.Background()
	store := newPostgresStore(t)
	userID := uuid.New()
	t.Cleanup(func() { _ = store.DeleteRecord(ctx, userID) })

	codes := []string{"AAAA-0001", "AAAA-0002", "AAAA-0003", "AAAA-0004"}
	require.NoError(t, store.UpsertRecord(ctx, twofa.Record{UserID: userID, Secret: "S", BackupCodes: []string{}}))
	_, err := store.EnableWithCodes(ctx, userID, codes)
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make(chan bool, len(codes))
	for _, code := range codes {
		wg.Add(1)
		go func() {
			defer wg.Done()
			consumed, err := store.ConsumeBackupCode(ctx, userID, code)
			assert.NoError(t, err)
			results <- err == nil && consumed
		}()
	}
	wg.Wait()
	close(results)

	for ok := range results {
		assert.True(t, ok, "every distinct code must be spendable despite conflicts")
	}

	got, err := store.GetRecord(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, got.BackupCodes)
}
