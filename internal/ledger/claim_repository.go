package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sathunt/internal/balance"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrScanNotFound    = errors.New("scan not found")
	ErrNotYourScan     = errors.New("scan does not belong to requesting user")
	ErrAlreadyClaimed  = errors.New("scan has already been claimed")
	ErrScanExpired     = errors.New("scan is older than the claim window")
	ErrNotLastScanner  = errors.New("a newer scan exists for this location")
	ErrNoBalance       = errors.New("location has no balance to collect")
)

type ClaimRepository struct {
	db *pgxpool.Pool
}

func NewClaimRepository(db *DB) *ClaimRepository {
	return &ClaimRepository{db: db.pool}
}

// RecordScan inserts a verified tap before the finder decides whether to
// claim it — C4's Phase A.
func (r *ClaimRepository) RecordScan(ctx context.Context, s *Scan) error {
	_, err := r.db.Exec(ctx, `INSERT INTO scans (id, location_id, card_counter, user_id, claim_id, scanned_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		s.ID, s.LocationID, s.CardCounter, s.UserID, s.ClaimID, s.ScannedAt)
	if err != nil {
		return fmt.Errorf("failed to record scan: %w", err)
	}
	return nil
}

func scanScan(row interface{ Scan(dest ...any) error }) (*Scan, error) {
	var s Scan
	if err := row.Scan(&s.ID, &s.LocationID, &s.CardCounter, &s.UserID, &s.ClaimID, &s.ScannedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *ClaimRepository) GetScan(ctx context.Context, id string) (*Scan, error) {
	row := r.db.QueryRow(ctx, `SELECT id, location_id, card_counter, user_id, claim_id, scanned_at FROM scans WHERE id = $1`, id)
	s, err := scanScan(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScanNotFound
		}
		return nil, fmt.Errorf("failed to get scan %s: %w", id, err)
	}
	return s, nil
}

func (r *ClaimRepository) ListByLocation(ctx context.Context, locationID string) ([]*Scan, error) {
	rows, err := r.db.Query(ctx, `SELECT id, location_id, card_counter, user_id, claim_id, scanned_at
		FROM scans WHERE location_id = $1 ORDER BY scanned_at DESC`, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list scans for location %s: %w", locationID, err)
	}
	defer rows.Close()

	var scans []*Scan
	for rows.Next() {
		s, err := scanScan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan scan row: %w", err)
		}
		scans = append(scans, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return scans, nil
}

// ClaimCollectionResult is the outcome of a successful collect transaction.
type ClaimCollectionResult struct {
	Claim          *Claim
	CollectedMsats int64
}

// ClaimCollection performs C4's Phase B as a single serializable
// transaction: it validates the scan is the caller's, unclaimed, latest for
// its location and still within the claim window; computes the location's
// live balance via the balance oracle; and if positive, advances the card's
// counter, zeroes the location's cached balance, debits the donation pool,
// credits the finder's ledger, and links the scan to the new claim. A
// rejected claim returns one of the typed ClaimResult errors above so callers
// can render the exact reason without a second query; a missing card or
// location returns ErrCardNotFound or ErrLocationNotFound, and database
// failures are returned wrapped.
func (r *ClaimRepository) ClaimCollection(ctx context.Context, scanID, userID string, now time.Time, cfg balance.Config) (*ClaimCollectionResult, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return nil, fmt.Errorf("failed to begin claim transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var scan Scan
	err = tx.QueryRow(ctx, `SELECT id, location_id, card_counter, user_id, claim_id, scanned_at
		FROM scans WHERE id = $1 FOR UPDATE`, scanID).
		Scan(&scan.ID, &scan.LocationID, &scan.CardCounter, &scan.UserID, &scan.ClaimID, &scan.ScannedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScanNotFound
		}
		return nil, fmt.Errorf("failed to lock scan for claim: %w", err)
	}

	if scan.UserID == nil || *scan.UserID != userID {
		return nil, ErrNotYourScan
	}
	if scan.ClaimID != nil {
		return nil, ErrAlreadyClaimed
	}
	if scan.IsExpired(now) {
		return nil, ErrScanExpired
	}

	var latestScanID string
	err = tx.QueryRow(ctx, `SELECT id FROM scans WHERE location_id = $1 ORDER BY scanned_at DESC LIMIT 1`, scan.LocationID).
		Scan(&latestScanID)
	if err != nil {
		return nil, fmt.Errorf("failed to determine latest scan: %w", err)
	}
	if latestScanID != scan.ID {
		return nil, ErrNotLastScanner
	}

	var cardID string
	var storedCounter int64
	err = tx.QueryRow(ctx, `SELECT id, counter FROM nfc_cards WHERE location_id = $1 FOR UPDATE`, scan.LocationID).
		Scan(&cardID, &storedCounter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to lock card for claim: %w", err)
	}
	if scan.CardCounter <= storedCounter {
		return nil, ErrAlreadyClaimed
	}

	var locStatus LocationStatus
	var lastWithdrawAt *time.Time
	var createdAt time.Time
	err = tx.QueryRow(ctx, `SELECT status, last_withdraw_at, created_at FROM locations WHERE id = $1 FOR UPDATE`, scan.LocationID).
		Scan(&locStatus, &lastWithdrawAt, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, fmt.Errorf("failed to lock location for claim: %w", err)
	}

	poolMsats, err := sumLocationPool(ctx, tx, scan.LocationID)
	if err != nil {
		return nil, err
	}

	collected := balance.ComputeBalanceMsats(poolMsats, lastWithdrawAt, createdAt, cfg)
	if collected <= 0 {
		return nil, ErrNoBalance
	}

	if _, err := tx.Exec(ctx, `UPDATE nfc_cards SET counter = $2, last_used_at = $3 WHERE id = $1`,
		cardID, scan.CardCounter, now); err != nil {
		return nil, fmt.Errorf("failed to advance card counter: %w", err)
	}

	newStatus := locStatus
	if locStatus == LocationProgrammed {
		newStatus = LocationActive
	}
	if _, err := tx.Exec(ctx, `UPDATE locations SET current_msats = 0, last_withdraw_at = $2, status = $3 WHERE id = $1`,
		scan.LocationID, now, newStatus); err != nil {
		return nil, fmt.Errorf("failed to zero location balance: %w", err)
	}

	debit := &LocationPoolDebit{
		ID:          uuid.NewString(),
		LocationID:  scan.LocationID,
		AmountMsats: collected,
		Reason:      "claim",
		CreatedAt:   now,
	}
	if _, err := tx.Exec(ctx, `INSERT INTO location_pool_debits (id, location_id, amount_msats, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)`, debit.ID, debit.LocationID, debit.AmountMsats, debit.Reason, debit.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to record pool debit: %w", err)
	}

	userRepo := &UserRepository{}
	if err := userRepo.GetOrCreateAnonymous(ctx, tx, userID, now); err != nil {
		return nil, err
	}

	claim := &Claim{
		ID:           uuid.NewString(),
		ScanID:       scan.ID,
		LocationID:   scan.LocationID,
		UserID:       userID,
		MsatsClaimed: collected,
		ClaimedAt:    now,
	}
	if _, err := tx.Exec(ctx, `INSERT INTO claims (id, scan_id, location_id, user_id, msats_claimed, claimed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, claim.ID, claim.ScanID, claim.LocationID, claim.UserID, claim.MsatsClaimed, claim.ClaimedAt); err != nil {
		return nil, fmt.Errorf("failed to insert claim: %w", err)
	}

	txnID := uuid.NewString()
	if _, err := tx.Exec(ctx, `INSERT INTO user_transactions (id, user_id, kind, msats, ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, txnID, userID, TransactionCollect, collected, scan.LocationID, now); err != nil {
		return nil, fmt.Errorf("failed to insert collect transaction: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE scans SET claim_id = $2 WHERE id = $1`, scan.ID, claim.ID); err != nil {
		return nil, fmt.Errorf("failed to link scan to claim: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit claim transaction: %w", err)
	}

	return &ClaimCollectionResult{Claim: claim, CollectedMsats: collected}, nil
}

// sumLocationPool computes received donations minus recorded debits for a
// location within an existing transaction — the pool the balance oracle
// ramps up from (see DonationRepository.GetLocationPoolBalance for the
// equivalent outside-transaction read).
func sumLocationPool(ctx context.Context, tx pgx.Tx, locationID string) (int64, error) {
	var received, debited int64
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount_msats), 0) FROM donations
		WHERE location_id = $1 AND status = $2`, locationID, DonationReceived).Scan(&received); err != nil {
		return 0, fmt.Errorf("failed to sum location donations: %w", err)
	}
	if err := tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount_msats), 0) FROM location_pool_debits WHERE location_id = $1`,
		locationID).Scan(&debited); err != nil {
		return 0, fmt.Errorf("failed to sum location pool debits: %w", err)
	}
	return received - debited, nil
}
