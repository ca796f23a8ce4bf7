// Package claim implements the two-phase tap-to-collect flow (C4): a scan
// is recorded as soon as a tap verifies, and a finder later confirms the
// claim to actually credit their wallet.
package claim

import (
	"context"
	"errors"
	"time"

	"sathunt/internal/balance"
	"sathunt/internal/ledger"
	"sathunt/internal/sun"
	"sathunt/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Result is the outcome tag of a Phase B confirmation, mirroring the
// non-error result set a finder can see after tapping "collect".
type Result string

const (
	ResultSuccess        Result = "success"
	ResultScanNotFound   Result = "scan_not_found"
	ResultNotYourScan    Result = "not_your_scan"
	ResultAlreadyClaimed Result = "already_claimed"
	ResultExpired        Result = "expired"
	ResultNotLastScanner Result = "not_last_scanner"
	ResultNoBalance      Result = "no_balance"
)

// resultForError maps a ledger-layer sentinel to its ClaimResult tag.
func resultForError(err error) (Result, bool) {
	switch {
	case errors.Is(err, ledger.ErrScanNotFound):
		return ResultScanNotFound, true
	case errors.Is(err, ledger.ErrNotYourScan):
		return ResultNotYourScan, true
	case errors.Is(err, ledger.ErrAlreadyClaimed):
		return ResultAlreadyClaimed, true
	case errors.Is(err, ledger.ErrScanExpired):
		return ResultExpired, true
	case errors.Is(err, ledger.ErrNotLastScanner):
		return ResultNotLastScanner, true
	case errors.Is(err, ledger.ErrNoBalance):
		return ResultNoBalance, true
	default:
		return "", false
	}
}

// ScanOutcome is what Phase A hands back to the tap-URL handler.
type ScanOutcome struct {
	ScanID         string
	UserID         string
	LocationName   string
	VisibleBalance int64
}

// ConfirmOutcome is what Phase B hands back to the collect button handler.
type ConfirmOutcome struct {
	Result         Result
	CollectedMsats int64
	ClaimID        string
	LocationName   string
}

// Engine wires the SUN verifier and balance oracle to the ledger's scan and
// claim repositories.
type Engine struct {
	cards     *ledger.CardRepository
	locations *ledger.LocationRepository
	claims    *ledger.ClaimRepository
	donations *ledger.DonationRepository
	balance   balance.Config
}

func NewEngine(cards *ledger.CardRepository, locations *ledger.LocationRepository, claims *ledger.ClaimRepository, donations *ledger.DonationRepository, cfg balance.Config) *Engine {
	return &Engine{cards: cards, locations: locations, claims: claims, donations: donations, balance: cfg}
}

// Scan runs C1 (SUN verification) and, on success, records a Scan row
// without mutating any balance. userID is the finder's cookie-identified
// opaque id, minted fresh by the caller if no cookie was present yet.
func (e *Engine) Scan(ctx context.Context, locationID, piccDataHex, cmacHex, userID string) (*ScanOutcome, error) {
	v, err := sun.Verify(ctx, e.cards, e.locations, locationID, piccDataHex, cmacHex)
	if err != nil {
		logger.Warn("sun verification failed", zap.String("location_id", locationID), zap.Error(err))
		return nil, err
	}

	pool, err := e.donations.GetLocationPoolBalance(ctx, locationID)
	if err != nil {
		return nil, err
	}
	visible := balance.ComputeBalanceMsats(pool, v.Location.LastWithdrawAt, v.Location.CreatedAt, e.balance)

	scan := &ledger.Scan{
		ID:          uuid.NewString(),
		LocationID:  locationID,
		CardCounter: int64(v.Counter),
		UserID:      &userID,
		ScannedAt:   time.Now(),
	}
	if err := e.claims.RecordScan(ctx, scan); err != nil {
		return nil, err
	}

	return &ScanOutcome{
		ScanID:         scan.ID,
		UserID:         userID,
		LocationName:   v.Location.Name,
		VisibleBalance: visible,
	}, nil
}

// Confirm runs C4's Phase B: it attempts to claim a previously recorded
// scan on behalf of userID, crediting their wallet if everything checks out.
func (e *Engine) Confirm(ctx context.Context, scanID, userID string) (*ConfirmOutcome, error) {
	now := time.Now()
	result, err := e.claims.ClaimCollection(ctx, scanID, userID, now, e.balance)
	if err != nil {
		if tag, ok := resultForError(err); ok {
			return &ConfirmOutcome{Result: tag}, nil
		}
		return nil, err
	}

	location, err := e.locations.GetByID(ctx, result.Claim.LocationID)
	if err != nil {
		return nil, err
	}

	logger.Info("claim collected",
		zap.String("claim_id", result.Claim.ID),
		zap.String("user_id", userID),
		zap.Int64("msats", result.CollectedMsats))

	return &ConfirmOutcome{
		Result:         ResultSuccess,
		CollectedMsats: result.CollectedMsats,
		ClaimID:        result.Claim.ID,
		LocationName:   location.Name,
	}, nil
}
