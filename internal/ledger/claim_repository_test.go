//go:build integration

package ledger

import (
	"context"
	"testing"
	"time"

	"sathunt/internal/balance"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedLocationWithCard(t *testing.T, ctx context.Context, locations *LocationRepository, cards *CardRepository, donations *DonationRepository, poolMsats int64) (*Location, *NfcCard) {
	t.Helper()
	now := time.Now().Add(-30 * 24 * time.Hour)

	loc := &Location{
		ID:         uuid.NewString(),
		Name:       "Test Spot",
		Latitude:   1,
		Longitude:  1,
		WriteToken: uuid.NewString(),
		Status:     LocationProgrammed,
		CreatedAt:  now,
	}
	require.NoError(t, locations.Create(ctx, loc))

	card := &NfcCard{
		ID:         uuid.NewString(),
		LocationID: loc.ID,
		K0:         "00", K1: "00", K2: "00", K3: "00", K4: "00",
		Counter:   0,
		Version:   1,
		CreatedAt: now,
	}
	require.NoError(t, cards.Create(ctx, card))

	if poolMsats > 0 {
		donation := &Donation{
			ID:          uuid.NewString(),
			Invoice:     "inv-" + loc.ID,
			PaymentHash: "hash-" + loc.ID,
			LocationID:  &loc.ID,
			AmountMsats: poolMsats,
			Status:      DonationReceived,
			CreatedAt:   now,
			ReceivedAt:  &now,
		}
		require.NoError(t, donations.Create(ctx, donation))
	}

	return loc, card
}

func TestClaimCollectionHappyPath(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)
	cards := NewCardRepository(db)
	donations := NewDonationRepository(db)
	claims := NewClaimRepository(db)

	loc, card := seedLocationWithCard(t, ctx, locations, cards, donations, 1_000_000_000)

	userID := uuid.NewString()
	scan := &Scan{
		ID:          uuid.NewString(),
		LocationID:  loc.ID,
		CardCounter: card.Counter + 1,
		UserID:      &userID,
		ScannedAt:   time.Now(),
	}
	require.NoError(t, claims.RecordScan(ctx, scan))

	cfg := balance.DefaultConfig()
	result, err := claims.ClaimCollection(ctx, scan.ID, userID, time.Now(), cfg)
	require.NoError(t, err)
	assert.Greater(t, result.CollectedMsats, int64(0))
	assert.Equal(t, userID, result.Claim.UserID)
	assert.Equal(t, result.CollectedMsats, result.Claim.MsatsClaimed, "claim row must retain full msats precision, not a truncated sats value")

	// A second claim attempt against the same scan must fail: it is now
	// claimed.
	_, err = claims.ClaimCollection(ctx, scan.ID, userID, time.Now(), cfg)
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestClaimCollectionNotYourScan(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)
	cards := NewCardRepository(db)
	donations := NewDonationRepository(db)
	claims := NewClaimRepository(db)

	loc, card := seedLocationWithCard(t, ctx, locations, cards, donations, 1_000_000_000)

	scannerID := uuid.NewString()
	scan := &Scan{
		ID:          uuid.NewString(),
		LocationID:  loc.ID,
		CardCounter: card.Counter + 1,
		UserID:      &scannerID,
		ScannedAt:   time.Now(),
	}
	require.NoError(t, claims.RecordScan(ctx, scan))

	_, err := claims.ClaimCollection(ctx, scan.ID, uuid.NewString(), time.Now(), balance.DefaultConfig())
	assert.ErrorIs(t, err, ErrNotYourScan)
}

func TestClaimCollectionExpired(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)
	cards := NewCardRepository(db)
	donations := NewDonationRepository(db)
	claims := NewClaimRepository(db)

	loc, card := seedLocationWithCard(t, ctx, locations, cards, donations, 1_000_000_000)

	userID := uuid.NewString()
	scan := &Scan{
		ID:          uuid.NewString(),
		LocationID:  loc.ID,
		CardCounter: card.Counter + 1,
		UserID:      &userID,
		ScannedAt:   time.Now().Add(-2 * time.Hour),
	}
	require.NoError(t, claims.RecordScan(ctx, scan))

	_, err := claims.ClaimCollection(ctx, scan.ID, userID, time.Now(), balance.DefaultConfig())
	assert.ErrorIs(t, err, ErrScanExpired)
}

func TestClaimCollectionNotLastScanner(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)
	cards := NewCardRepository(db)
	donations := NewDonationRepository(db)
	claims := NewClaimRepository(db)

	loc, card := seedLocationWithCard(t, ctx, locations, cards, donations, 1_000_000_000)

	firstUser := uuid.NewString()
	firstScan := &Scan{
		ID:          uuid.NewString(),
		LocationID:  loc.ID,
		CardCounter: card.Counter + 1,
		UserID:      &firstUser,
		ScannedAt:   time.Now().Add(-time.Minute),
	}
	require.NoError(t, claims.RecordScan(ctx, firstScan))

	secondUser := uuid.NewString()
	secondScan := &Scan{
		ID:          uuid.NewString(),
		LocationID:  loc.ID,
		CardCounter: card.Counter + 2,
		UserID:      &secondUser,
		ScannedAt:   time.Now(),
	}
	require.NoError(t, claims.RecordScan(ctx, secondScan))

	_, err := claims.ClaimCollection(ctx, firstScan.ID, firstUser, time.Now(), balance.DefaultConfig())
	assert.ErrorIs(t, err, ErrNotLastScanner)
}

func TestClaimCollectionNoBalance(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)
	cards := NewCardRepository(db)
	donations := NewDonationRepository(db)
	claims := NewClaimRepository(db)

	loc, card := seedLocationWithCard(t, ctx, locations, cards, donations, 0)

	userID := uuid.NewString()
	scan := &Scan{
		ID:          uuid.NewString(),
		LocationID:  loc.ID,
		CardCounter: card.Counter + 1,
		UserID:      &userID,
		ScannedAt:   time.Now(),
	}
	require.NoError(t, claims.RecordScan(ctx, scan))

	_, err := claims.ClaimCollection(ctx, scan.ID, userID, time.Now(), balance.DefaultConfig())
	assert.ErrorIs(t, err, ErrNoBalance)
}
