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

func TestConsumeWriteTokenOnce(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)

	loc := &Location{
		ID:         uuid.NewString(),
		Name:       "Park Bench",
		Latitude:   1,
		Longitude:  1,
		WriteToken: uuid.NewString(),
		Status:     LocationCreated,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, locations.Create(ctx, loc))

	consumed, err := locations.ConsumeWriteToken(ctx, loc.WriteToken)
	require.NoError(t, err)
	assert.True(t, consumed.WriteTokenUsed)

	_, err = locations.ConsumeWriteToken(ctx, loc.WriteToken)
	assert.ErrorIs(t, err, ErrWriteTokenConsumed, "a second consumption of the same token must fail")
}

func TestConsumeWriteTokenUnknown(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)
	_, err := locations.ConsumeWriteToken(ctx, uuid.NewString())
	assert.ErrorIs(t, err, ErrWriteTokenConsumed)
}

func TestConsumeWriteTokenRefusesActiveLocation(t *testing.T) {
	db := SetupTestDB(t)
	defer CleanupTestDB(t, db)
	ctx := context.Background()

	locations := NewLocationRepository(db)

	loc := &Location{
		ID:         uuid.NewString(),
		Name:       "Already Live",
		Latitude:   1,
		Longitude:  1,
		WriteToken: uuid.NewString(),
		Status:     LocationActive,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, locations.Create(ctx, loc))

	_, err := locations.ConsumeWriteToken(ctx, loc.WriteToken)
	assert.ErrorIs(t, err, ErrWriteTokenConsumed)
}
