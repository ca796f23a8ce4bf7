package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrCardNotFound = errors.New("nfc card not found")

const cardColumns = `id, location_id, uid, k0, k1, k2, k3, k4, counter, version,
	created_at, programmed_at, last_used_at`

type CardRepository struct {
	db *pgxpool.Pool
}

func NewCardRepository(db *DB) *CardRepository {
	return &CardRepository{db: db.pool}
}

func (r *CardRepository) Create(ctx context.Context, c *NfcCard) error {
	query := `INSERT INTO nfc_cards (` + cardColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		c.ID, c.LocationID, c.UID, c.K0, c.K1, c.K2, c.K3, c.K4, c.Counter, c.Version,
		c.CreatedAt, c.ProgrammedAt, c.LastUsedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create nfc card: %w", err)
	}
	return nil
}

func scanCard(row interface{ Scan(dest ...any) error }) (*NfcCard, error) {
	var c NfcCard
	if err := row.Scan(
		&c.ID, &c.LocationID, &c.UID, &c.K0, &c.K1, &c.K2, &c.K3, &c.K4, &c.Counter, &c.Version,
		&c.CreatedAt, &c.ProgrammedAt, &c.LastUsedAt,
	); err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *CardRepository) GetByLocation(ctx context.Context, locationID string) (*NfcCard, error) {
	row := r.db.QueryRow(ctx, `SELECT `+cardColumns+` FROM nfc_cards WHERE location_id = $1`, locationID)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card for location %s: %w", locationID, err)
	}
	return c, nil
}

func (r *CardRepository) GetByUID(ctx context.Context, tx pgx.Tx, uid string) (*NfcCard, error) {
	row := tx.QueryRow(ctx, `SELECT `+cardColumns+` FROM nfc_cards WHERE uid = $1`, uid)
	c, err := scanCard(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCardNotFound
		}
		return nil, fmt.Errorf("failed to get card by uid: %w", err)
	}
	return c, nil
}

// MarkProgrammed records the chip's real UID once it has been written and
// scanned for the first time, transitioning the card out of its blank state.
func (r *CardRepository) MarkProgrammed(ctx context.Context, id, uid string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE nfc_cards SET uid = $2, programmed_at = $3 WHERE id = $1`, id, uid, at)
	if err != nil {
		return fmt.Errorf("failed to mark card programmed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

// UpdateCounter bumps the replay-protection counter and last-used timestamp
// inside an already-open transaction. ClaimCollection advances the counter
// with its own UPDATE and does not call it.
func (r *CardRepository) UpdateCounter(ctx context.Context, tx pgx.Tx, id string, counter int64, at time.Time) error {
	tag, err := tx.Exec(ctx, `UPDATE nfc_cards SET counter = $2, last_used_at = $3 WHERE id = $1`, id, counter, at)
	if err != nil {
		return fmt.Errorf("failed to update card counter: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}

// IncrementVersion bumps the card's key-diversification version, used when
// re-keying a sticker after suspected compromise.
func (r *CardRepository) IncrementVersion(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE nfc_cards SET version = version + 1 WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to increment card version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCardNotFound
	}
	return nil
}
