package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-autolink/internal/domain"
	"solana-autolink/internal/storage"
)

func testSubscription(userID, address string, kind domain.SubscriptionType) *domain.StreamSubscription {
	return &domain.StreamSubscription{
		UserID:           userID,
		WalletAddress:    address,
		SubscriptionType: kind,
		IsActive:         true,
	}
}

func TestSubscriptionStore_UpsertAndListActive(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSubscriptionStore(pool)

	require.NoError(t, store.Upsert(ctx, testSubscription("user1", "Addr1", domain.SubLogs)))
	require.NoError(t, store.Upsert(ctx, testSubscription("user1", "Addr2", domain.SubAccount)))

	subs, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 2)

	// Re-upserting the same key does not create a second row.
	require.NoError(t, store.Upsert(ctx, testSubscription("user1", "Addr1", domain.SubLogs)))
	subs, err = store.ListActive(ctx)
	require.NoError(t, err)
	assert.Len(t, subs, 2)
}

func TestSubscriptionStore_UpsertKeepsRemoteID(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSubscriptionStore(pool)

	require.NoError(t, store.Upsert(ctx, testSubscription("user1", "Addr1", domain.SubLogs)))
	require.NoError(t, store.SetRemoteID(ctx, "user1", "Addr1", domain.SubLogs, 42))

	// Upserting with a nil remote id keeps the confirmed one.
	require.NoError(t, store.Upsert(ctx, testSubscription("user1", "Addr1", domain.SubLogs)))

	subs, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].SubscriptionID)
	assert.Equal(t, int64(42), *subs[0].SubscriptionID)
}

func TestSubscriptionStore_Deactivate(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSubscriptionStore(pool)

	require.NoError(t, store.Upsert(ctx, testSubscription("user1", "Addr1", domain.SubLogs)))
	require.NoError(t, store.Deactivate(ctx, "user1", "Addr1", domain.SubLogs))

	subs, err := store.ListActive(ctx)
	require.NoError(t, err)
	assert.Empty(t, subs)

	err = store.Deactivate(ctx, "user1", "nope", domain.SubLogs)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSubscriptionStore_TouchNotification(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSubscriptionStore(pool)

	require.NoError(t, store.Upsert(ctx, testSubscription("user1", "Addr1", domain.SubLogs)))
	require.NoError(t, store.SetRemoteID(ctx, "user1", "Addr1", domain.SubLogs, 7))

	at := time.Now().UTC().Truncate(time.Microsecond)
	require.NoError(t, store.TouchNotification(ctx, 7, at))

	subs, err := store.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, subs, 1)
	require.NotNil(t, subs[0].LastNotificationAt)
	assert.True(t, subs[0].LastNotificationAt.Equal(at))

	err = store.TouchNotification(ctx, 999, at)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestSubscriptionStore_UpsertValidation(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewSubscriptionStore(pool)

	err := store.Upsert(ctx, testSubscription("", "Addr1", domain.SubLogs))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.Upsert(ctx, testSubscription("user1", "Addr1", "bogus"))
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}
