//go:build integration

package ledger

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedActiveLocation(t *testing.T, ctx context.Context, locations *LocationRepository) *Location {
	t.Helper()
	loc := &Location{
		ID:         uuid.NewString(),
		Name:       "Active Spot",
		Latitude:   1,
		Longitude:  1,
		WriteToken: uuid.NewString(),
		Status:     LocationActive,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, locations.Create(ctx, loc))
	return loc
}

func TestMarkReceivedLocationDonation(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)
	donations := NewDonationRepository(db)

	loc := seedActiveLocation(t, ctx, locations)

	d := &Donation{
		ID:          uuid.NewString(),
		Invoice:     "inv-direct",
		PaymentHash: "hash-direct",
		LocationID:  &loc.ID,
		AmountMsats: 21_000,
		Status:      DonationCreated,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, donations.Create(ctx, d))

	received, splits, err := donations.MarkReceived(ctx, d.Invoice, time.Now())
	require.NoError(t, err)
	assert.Equal(t, DonationReceived, received.Status)
	assert.Empty(t, splits, "a location-targeted donation is never split")

	pool, err := donations.GetLocationPoolBalance(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(21_000), pool)
}

func TestMarkReceivedGlobalDonationSplitsAcrossActiveLocations(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)
	donations := NewDonationRepository(db)

	locA := seedActiveLocation(t, ctx, locations)
	locB := seedActiveLocation(t, ctx, locations)

	d := &Donation{
		ID:          uuid.NewString(),
		Invoice:     "inv-global",
		PaymentHash: "hash-global",
		LocationID:  nil,
		AmountMsats: 100_000,
		Status:      DonationCreated,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, donations.Create(ctx, d))

	received, splits, err := donations.MarkReceived(ctx, d.Invoice, time.Now())
	require.NoError(t, err)
	assert.Equal(t, DonationReceived, received.Status)
	require.Len(t, splits, 2)
	for _, split := range splits {
		assert.Equal(t, int64(50_000), split.AmountMsats)
		assert.Equal(t, d.ID, *split.SplitID)
	}

	poolA, err := donations.GetLocationPoolBalance(ctx, locA.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), poolA)

	poolB, err := donations.GetLocationPoolBalance(ctx, locB.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50_000), poolB)
}

func TestMarkReceivedIsIdempotent(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)
	donations := NewDonationRepository(db)

	loc := seedActiveLocation(t, ctx, locations)

	d := &Donation{
		ID:          uuid.NewString(),
		Invoice:     "inv-repeat",
		PaymentHash: "hash-repeat",
		LocationID:  &loc.ID,
		AmountMsats: 21_000,
		Status:      DonationCreated,
		CreatedAt:   time.Now(),
	}
	require.NoError(t, donations.Create(ctx, d))

	_, _, err := donations.MarkReceived(ctx, d.Invoice, time.Now())
	require.NoError(t, err)

	// A second receipt notification for the same invoice must not double-credit
	// the pool.
	_, splits, err := donations.MarkReceived(ctx, d.Invoice, time.Now())
	require.NoError(t, err)
	assert.Empty(t, splits)

	pool, err := donations.GetLocationPoolBalance(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(21_000), pool)
}
