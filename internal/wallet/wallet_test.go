package wallet

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFeeBudgetFloor(t *testing.T) {
	assert.Equal(t, int64(2000), FeeBudget(0))
	assert.Equal(t, int64(2000), FeeBudget(1000))
}

func TestFeeBudgetScalesWithAmount(t *testing.T) {
	// 0.5% of 1,000,000 msats = 5,000, plus the 2000 floor.
	assert.Equal(t, int64(7000), FeeBudget(1_000_000))
}

func TestFeeBudgetRoundsUp(t *testing.T) {
	// 0.5% of 100,001 msats = 500.005, ceil'd to 501.
	assert.Equal(t, int64(2501), FeeBudget(100_001))
}
