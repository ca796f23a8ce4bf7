package balance

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testConfig() Config {
	return Config{TimeToFullDays: 21, MaxFillPercentage: 0.1}
}

func TestEmptyPoolReturnsZero(t *testing.T) {
	now := time.Now()
	assert.Equal(t, int64(0), ComputeBalanceMsats(0, nil, now, testConfig()))
}

func TestNegativePoolReturnsZero(t *testing.T) {
	now := time.Now()
	assert.Equal(t, int64(0), ComputeBalanceMsats(-1000, nil, now, testConfig()))
}

func TestNewLocationStartsAtZero(t *testing.T) {
	now := time.Now()
	assert.Equal(t, int64(0), ComputeBalanceMsats(1_000_000_000, nil, now, testConfig()))
}

func TestHalfTimeGivesHalfFill(t *testing.T) {
	cfg := testConfig()
	createdAt := time.Now().Add(-time.Duration(cfg.TimeToFullDays) * 24 * time.Hour / 2)

	poolMsats := int64(1_000_000_000)
	result := ComputeBalanceMsats(poolMsats, nil, createdAt, cfg)

	expected := int64(float64(poolMsats) * 0.1 * 0.5)
	assert.InDelta(t, expected, result, 1000)
}

func TestFullTimeGivesMaxFill(t *testing.T) {
	cfg := testConfig()
	createdAt := time.Now().Add(-time.Duration(cfg.TimeToFullDays) * 24 * time.Hour)

	poolMsats := int64(1_000_000_000)
	result := ComputeBalanceMsats(poolMsats, nil, createdAt, cfg)

	expected := int64(float64(poolMsats) * cfg.MaxFillPercentage)
	assert.InDelta(t, expected, result, 1000)
}

func TestOverTimeCapsAtMaxFill(t *testing.T) {
	cfg := testConfig()
	createdAt := time.Now().Add(-time.Duration(cfg.TimeToFullDays) * 24 * time.Hour * 2)

	poolMsats := int64(1_000_000_000)
	result := ComputeBalanceMsats(poolMsats, nil, createdAt, cfg)

	expected := int64(float64(poolMsats) * cfg.MaxFillPercentage)
	assert.InDelta(t, expected, result, 1000)
}

func TestWithdrawalResetsFill(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	createdAt := now.Add(-30 * 24 * time.Hour)
	lastWithdrawAt := now

	result := ComputeBalanceMsats(1_000_000_000, &lastWithdrawAt, createdAt, cfg)
	assert.InDelta(t, 0, result, 1000)
}

func TestPartialRefillAfterWithdrawal(t *testing.T) {
	cfg := testConfig()
	now := time.Now()
	createdAt := now.Add(-30 * 24 * time.Hour)
	lastWithdrawAt := now.Add(-7 * 24 * time.Hour)

	poolMsats := int64(1_000_000_000)
	result := ComputeBalanceMsats(poolMsats, &lastWithdrawAt, createdAt, cfg)

	expected := int64(float64(poolMsats) * 0.1 * (7.0 / 21.0))
	assert.InDelta(t, expected, result, 1000)
}

func TestDifferentFillPercentage(t *testing.T) {
	cfg := Config{TimeToFullDays: 21, MaxFillPercentage: 0.05}
	createdAt := time.Now().Add(-21 * 24 * time.Hour)

	poolMsats := int64(1_000_000_000)
	result := ComputeBalanceMsats(poolMsats, nil, createdAt, cfg)

	expected := int64(float64(poolMsats) * 0.05)
	assert.InDelta(t, expected, result, 1000)
}

// TestSmallPoolFloorsMaxFillBeforeRatio pins the two-step floor spec.md §4.3
// requires: max_fill = floor(pool_msats * P), then floor(max_fill * ratio).
// Flooring only once at the end (as a single float expression) diverges on
// small pools: pool=25, P=0.1, ratio=0.9 gives max_fill=floor(2.5)=2, then
// floor(2*0.9)=1 — not floor(25*0.1*0.9)=floor(2.25)=2.
func TestSmallPoolFloorsMaxFillBeforeRatio(t *testing.T) {
	cfg := Config{TimeToFullDays: 10, MaxFillPercentage: 0.1}
	now := time.Now()
	createdAt := now.Add(-9 * 24 * time.Hour) // ratio = 0.9

	result := ComputeBalanceMsats(25, nil, createdAt, cfg)
	assert.Equal(t, int64(1), result)
}

func TestDifferentTimeToFull(t *testing.T) {
	cfg := Config{TimeToFullDays: 7, MaxFillPercentage: 0.1}
	createdAt := time.Now().Add(-7 * 24 * time.Hour)

	poolMsats := int64(1_000_000_000)
	result := ComputeBalanceMsats(poolMsats, nil, createdAt, cfg)

	expected := int64(float64(poolMsats) * 0.1)
	assert.InDelta(t, expected, result, 1000)
}
