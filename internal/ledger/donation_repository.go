package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrDonationNotFound = errors.New("donation not found")

const donationColumns = `id, invoice, payment_hash, location_id, amount_msats, status, split_id, created_at, received_at`

type DonationRepository struct {
	db *pgxpool.Pool
}

func NewDonationRepository(db *DB) *DonationRepository {
	return &DonationRepository{db: db.pool}
}

func (r *DonationRepository) Create(ctx context.Context, d *Donation) error {
	query := `INSERT INTO donations (` + donationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := r.db.Exec(ctx, query,
		d.ID, d.Invoice, d.PaymentHash, d.LocationID, d.AmountMsats, d.Status, d.SplitID, d.CreatedAt, d.ReceivedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create donation: %w", err)
	}
	return nil
}

func scanDonation(row interface{ Scan(dest ...any) error }) (*Donation, error) {
	var d Donation
	if err := row.Scan(
		&d.ID, &d.Invoice, &d.PaymentHash, &d.LocationID, &d.AmountMsats, &d.Status, &d.SplitID, &d.CreatedAt, &d.ReceivedAt,
	); err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DonationRepository) GetByInvoice(ctx context.Context, invoice string) (*Donation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE invoice = $1`, invoice)
	d, err := scanDonation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDonationNotFound
		}
		return nil, fmt.Errorf("failed to get donation by invoice: %w", err)
	}
	return d, nil
}

func (r *DonationRepository) GetByPaymentHash(ctx context.Context, paymentHash string) (*Donation, error) {
	row := r.db.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE payment_hash = $1`, paymentHash)
	d, err := scanDonation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDonationNotFound
		}
		return nil, fmt.Errorf("failed to get donation by payment hash: %w", err)
	}
	return d, nil
}

// ListPending returns all donations still awaiting payment, oldest first —
// used at startup to repopulate the donation service's in-memory watch set.
func (r *DonationRepository) ListPending(ctx context.Context) ([]*Donation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+donationColumns+` FROM donations WHERE status = $1 ORDER BY created_at ASC`, DonationCreated)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending donations: %w", err)
	}
	defer rows.Close()

	var donations []*Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation row: %w", err)
		}
		donations = append(donations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return donations, nil
}

func (r *DonationRepository) MarkTimedOut(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE donations SET status = $2 WHERE id = $1 AND status = $3`, id, DonationTimedOut, DonationCreated)
	if err != nil {
		return fmt.Errorf("failed to mark donation timed out: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDonationNotFound
	}
	return nil
}

// MarkReceived settles a donation and, when it was a global donation (no
// location_id), fans it out evenly across every currently-active location
// by inserting one child donation row per location. The fan-out and the
// parent update happen in one transaction so a crash mid-split can never
// leave a partially-split global donation.
func (r *DonationRepository) MarkReceived(ctx context.Context, invoice string, receivedAt time.Time) (*Donation, []*Donation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx, `SELECT `+donationColumns+` FROM donations WHERE invoice = $1 FOR UPDATE`, invoice)
	donation, err := scanDonation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, ErrDonationNotFound
		}
		return nil, nil, fmt.Errorf("failed to get donation for receipt: %w", err)
	}
	if donation.Status != DonationCreated {
		return donation, nil, nil
	}

	_, err = tx.Exec(ctx, `UPDATE donations SET status = $2, received_at = $3 WHERE id = $1`,
		donation.ID, DonationReceived, receivedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to mark donation received: %w", err)
	}
	donation.Status = DonationReceived
	donation.ReceivedAt = &receivedAt

	var splits []*Donation
	if donation.LocationID == nil {
		rows, err := tx.Query(ctx, `SELECT `+locationColumns+` FROM locations WHERE status = $1 ORDER BY created_at ASC`, LocationActive)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to list active locations for split: %w", err)
		}
		var locations []*Location
		for rows.Next() {
			l, err := scanLocation(rows)
			if err != nil {
				rows.Close()
				return nil, nil, fmt.Errorf("failed to scan location for split: %w", err)
			}
			locations = append(locations, l)
		}
		rows.Close()

		if n := len(locations); n > 0 {
			amountPerLocation := donation.AmountMsats / int64(n)
			for _, loc := range locations {
				split := &Donation{
					ID:          uuid.NewString(),
					Invoice:     fmt.Sprintf("%s-split-%s", invoice, loc.ID),
					PaymentHash: donation.PaymentHash,
					LocationID:  &loc.ID,
					AmountMsats: amountPerLocation,
					Status:      DonationReceived,
					SplitID:     &donation.ID,
					CreatedAt:   receivedAt,
					ReceivedAt:  &receivedAt,
				}
				_, err := tx.Exec(ctx, `INSERT INTO donations (`+donationColumns+`)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
					split.ID, split.Invoice, split.PaymentHash, split.LocationID, split.AmountMsats,
					split.Status, split.SplitID, split.CreatedAt, split.ReceivedAt,
				)
				if err != nil {
					return nil, nil, fmt.Errorf("failed to insert split donation for location %s: %w", loc.ID, err)
				}
				splits = append(splits, split)
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("failed to commit donation receipt: %w", err)
	}
	return donation, splits, nil
}

// GetLocationPoolBalance sums received non-split-parent donations for a
// location minus recorded debits, giving the pool balance the balance
// oracle ramps up from.
func (r *DonationRepository) GetLocationPoolBalance(ctx context.Context, locationID string) (int64, error) {
	var received, debited int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount_msats), 0) FROM donations
		WHERE location_id = $1 AND status = $2`,
		locationID, DonationReceived).Scan(&received)
	if err != nil {
		return 0, fmt.Errorf("failed to sum location donations: %w", err)
	}

	err = r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount_msats), 0) FROM location_pool_debits WHERE location_id = $1`,
		locationID).Scan(&debited)
	if err != nil {
		return 0, fmt.Errorf("failed to sum location pool debits: %w", err)
	}

	return received - debited, nil
}

func (r *DonationRepository) RecordPoolDebit(ctx context.Context, tx pgx.Tx, d *LocationPoolDebit) error {
	_, err := tx.Exec(ctx, `INSERT INTO location_pool_debits (id, location_id, amount_msats, reason, created_at)
		VALUES ($1, $2, $3, $4, $5)`, d.ID, d.LocationID, d.AmountMsats, d.Reason, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record pool debit: %w", err)
	}
	return nil
}

// ListAllReceived returns every received donation that is not itself a
// split child, for admin reporting.
func (r *DonationRepository) ListAllReceived(ctx context.Context) ([]*Donation, error) {
	rows, err := r.db.Query(ctx, `SELECT `+donationColumns+` FROM donations WHERE status = $1 AND invoice NOT LIKE '%-split-%' ORDER BY received_at DESC`, DonationReceived)
	if err != nil {
		return nil, fmt.Errorf("failed to list received donations: %w", err)
	}
	defer rows.Close()

	var donations []*Donation
	for rows.Next() {
		d, err := scanDonation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan donation row: %w", err)
		}
		if strings.Contains(d.Invoice, "-split-") {
			continue
		}
		donations = append(donations, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return donations, nil
}
