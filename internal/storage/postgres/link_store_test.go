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

func testLink(id, signature string) *domain.PendingTransferLink {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &domain.PendingTransferLink{
		ID:              id,
		Signature:       signature,
		WalletAddress:   "WalletAddr1",
		Amount:          2.5,
		TransferType:    domain.TransferIncoming,
		AutoLinkStatus:  domain.StatusPending,
		TimeWindowHours: 24,
		ExpiresAt:       now.Add(24 * time.Hour),
		CreatedAt:       now,
	}
}

func TestLinkStore_InsertAndGetBySignature(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)

	link := testLink("link-1", "Sig1")
	link.TokenMint = ptr("Mint111")
	require.NoError(t, store.Insert(ctx, link))

	got, err := store.GetBySignature(ctx, "Sig1")
	require.NoError(t, err)

	assert.Equal(t, link.ID, got.ID)
	assert.Equal(t, link.WalletAddress, got.WalletAddress)
	assert.InDelta(t, link.Amount, got.Amount, 0.0001)
	assert.Equal(t, ptr("Mint111"), got.TokenMint)
	assert.Equal(t, domain.StatusPending, got.AutoLinkStatus)
	assert.Equal(t, 0, got.Attempts)
	assert.Nil(t, got.LastAttemptAt)
}

func TestLinkStore_InsertDuplicateSignature(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)

	require.NoError(t, store.Insert(ctx, testLink("link-1", "Sig1")))
	err := store.Insert(ctx, testLink("link-2", "Sig1"))
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)
}

func TestLinkStore_GetBySignatureNotFound(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewLinkStore(pool).GetBySignature(context.Background(), "nope")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLinkStore_ClaimIncrementsAttempts(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)
	require.NoError(t, store.Insert(ctx, testLink("link-1", "Sig1")))

	now := time.Now().UTC()
	claimed, err := store.Claim(ctx, "link-1", now, 5*time.Minute, false)
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := store.GetBySignature(ctx, "Sig1")
	require.NoError(t, err)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.LastAttemptAt)
}

func TestLinkStore_ClaimRespectsCooldown(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)
	require.NoError(t, store.Insert(ctx, testLink("link-1", "Sig1")))

	now := time.Now().UTC()
	claimed, err := store.Claim(ctx, "link-1", now, 5*time.Minute, false)
	require.NoError(t, err)
	require.True(t, claimed)

	// Within cooldown: denied.
	claimed, err = store.Claim(ctx, "link-1", now.Add(time.Minute), 5*time.Minute, false)
	require.NoError(t, err)
	assert.False(t, claimed)

	// Within cooldown but forced: allowed.
	claimed, err = store.Claim(ctx, "link-1", now.Add(time.Minute), 5*time.Minute, true)
	require.NoError(t, err)
	assert.True(t, claimed)

	// Past cooldown: allowed.
	claimed, err = store.Claim(ctx, "link-1", now.Add(10*time.Minute), 5*time.Minute, false)
	require.NoError(t, err)
	assert.True(t, claimed)

	got, err := store.GetBySignature(ctx, "Sig1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Attempts)
}

func TestLinkStore_ClaimNonPendingDenied(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)
	require.NoError(t, store.Insert(ctx, testLink("link-1", "Sig1")))
	require.NoError(t, store.Transition(ctx, "link-1", domain.StatusPending, domain.StatusIgnored, 0.1, nil))

	claimed, err := store.Claim(ctx, "link-1", time.Now().UTC(), 5*time.Minute, true)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestLinkStore_ClaimMissingRow(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	_, err := NewLinkStore(pool).Claim(context.Background(), "nope", time.Now().UTC(), time.Minute, false)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLinkStore_TransitionToLinked(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)
	require.NoError(t, store.Insert(ctx, testLink("link-1", "Sig1")))

	err := store.Transition(ctx, "link-1", domain.StatusPending, domain.StatusLinked, 0.92, &storage.LinkIdentity{
		UserID:        "user1",
		WalletID:      "w1",
		TransactionID: "tx1",
	})
	require.NoError(t, err)

	got, err := store.GetBySignature(ctx, "Sig1")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusLinked, got.AutoLinkStatus)
	assert.InDelta(t, 0.92, got.ConfidenceScore, 0.0001)
	assert.Equal(t, ptr("user1"), got.LinkedUserID)
	assert.Equal(t, ptr("w1"), got.LinkedWalletID)
	assert.Equal(t, ptr("tx1"), got.LinkedTransactionID)
}

func TestLinkStore_TransitionWrongFromStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)
	require.NoError(t, store.Insert(ctx, testLink("link-1", "Sig1")))

	err := store.Transition(ctx, "link-1", domain.StatusManualReview, domain.StatusIgnored, 0.1, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidTransition)

	err = store.Transition(ctx, "nope", domain.StatusPending, domain.StatusIgnored, 0.1, nil)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestLinkStore_TransitionLinkedIdentityRequired(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)
	require.NoError(t, store.Insert(ctx, testLink("link-1", "Sig1")))

	err := store.Transition(ctx, "link-1", domain.StatusPending, domain.StatusLinked, 0.9, nil)
	assert.ErrorIs(t, err, storage.ErrInvalidInput)

	err = store.Transition(ctx, "link-1", domain.StatusPending, domain.StatusIgnored, 0.1, &storage.LinkIdentity{UserID: "u"})
	assert.ErrorIs(t, err, storage.ErrInvalidInput)
}

func TestLinkStore_ListScorable(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)
	now := time.Now().UTC()

	old := testLink("link-old", "SigOld")
	old.CreatedAt = now.Add(-2 * time.Hour)
	require.NoError(t, store.Insert(ctx, old))

	fresh := testLink("link-new", "SigNew")
	require.NoError(t, store.Insert(ctx, fresh))

	expired := testLink("link-exp", "SigExp")
	expired.ExpiresAt = now.Add(-time.Minute)
	require.NoError(t, store.Insert(ctx, expired))

	cooling := testLink("link-cool", "SigCool")
	cooling.LastAttemptAt = ptr(now.Add(-time.Minute))
	require.NoError(t, store.Insert(ctx, cooling))

	links, err := store.ListScorable(ctx, now, 5*time.Minute, 10, "", false)
	require.NoError(t, err)

	require.Len(t, links, 2)
	assert.Equal(t, "SigOld", links[0].Signature, "oldest first")
	assert.Equal(t, "SigNew", links[1].Signature)

	// Force ignores the cooldown, not expiry.
	links, err = store.ListScorable(ctx, now, 5*time.Minute, 10, "", true)
	require.NoError(t, err)
	assert.Len(t, links, 3)

	// Signature filter restricts to one row.
	links, err = store.ListScorable(ctx, now, 5*time.Minute, 10, "SigNew", false)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "SigNew", links[0].Signature)
}

func TestLinkStore_ListByWalletAndStatus(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)
	now := time.Now().UTC()

	a := testLink("link-a", "SigA")
	a.CreatedAt = now.Add(-time.Hour)
	require.NoError(t, store.Insert(ctx, a))

	b := testLink("link-b", "SigB")
	require.NoError(t, store.Insert(ctx, b))

	other := testLink("link-c", "SigC")
	other.WalletAddress = "WalletAddr2"
	require.NoError(t, store.Insert(ctx, other))

	require.NoError(t, store.Transition(ctx, "link-a", domain.StatusPending, domain.StatusManualReview, 0.5, nil))

	links, err := store.ListByWallet(ctx, "WalletAddr1", "", 10)
	require.NoError(t, err)
	require.Len(t, links, 2)
	assert.Equal(t, "SigB", links[0].Signature, "newest first")

	links, err = store.ListByWallet(ctx, "WalletAddr1", domain.StatusManualReview, 10)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "SigA", links[0].Signature)

	links, err = store.ListByStatus(ctx, domain.StatusManualReview, 10)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, "SigA", links[0].Signature)
}

func TestLinkStore_UpdateScore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewLinkStore(pool)
	require.NoError(t, store.Insert(ctx, testLink("link-1", "Sig1")))

	require.NoError(t, store.UpdateScore(ctx, "link-1", 0.42))

	got, err := store.GetBySignature(ctx, "Sig1")
	require.NoError(t, err)
	assert.InDelta(t, 0.42, got.ConfidenceScore, 0.0001)
	assert.Equal(t, domain.StatusPending, got.AutoLinkStatus)

	assert.ErrorIs(t, store.UpdateScore(ctx, "nope", 0.1), storage.ErrNotFound)
}
