package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrLocationNotFound = errors.New("location not found")

const locationColumns = `id, name, description, latitude, longitude, write_token, write_token_used, status,
	current_msats, last_refill_at, last_withdraw_at, creator_user_id, created_at`

type LocationRepository struct {
	db *pgxpool.Pool
}

func NewLocationRepository(db *DB) *LocationRepository {
	return &LocationRepository{db: db.pool}
}

func (r *LocationRepository) Create(ctx context.Context, l *Location) error {
	query := `INSERT INTO locations (` + locationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	_, err := r.db.Exec(ctx, query,
		l.ID, l.Name, l.Description, l.Latitude, l.Longitude, l.WriteToken, l.WriteTokenUsed, l.Status,
		l.CurrentMsats, l.LastRefillAt, l.LastWithdrawAt, l.CreatorUserID, l.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create location: %w", err)
	}
	return nil
}

func scanLocation(row interface{ Scan(dest ...any) error }) (*Location, error) {
	var l Location
	if err := row.Scan(
		&l.ID, &l.Name, &l.Description, &l.Latitude, &l.Longitude, &l.WriteToken, &l.WriteTokenUsed, &l.Status,
		&l.CurrentMsats, &l.LastRefillAt, &l.LastWithdrawAt, &l.CreatorUserID, &l.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &l, nil
}

func (r *LocationRepository) GetByID(ctx context.Context, id string) (*Location, error) {
	row := r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE id = $1`, id)
	l, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, fmt.Errorf("failed to get location %s: %w", id, err)
	}
	return l, nil
}

// GetByWriteTokenUnprogrammed looks up a location by its write token, but
// only while it has not yet gone active — mirrors the original's guard
// against re-programming a live sticker.
func (r *LocationRepository) GetByWriteTokenUnprogrammed(ctx context.Context, token string) (*Location, error) {
	row := r.db.QueryRow(ctx, `SELECT `+locationColumns+` FROM locations WHERE write_token = $1 AND status != $2`, token, LocationActive)
	l, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLocationNotFound
		}
		return nil, fmt.Errorf("failed to get location by write token: %w", err)
	}
	return l, nil
}

// ErrWriteTokenConsumed is returned by ConsumeWriteToken when no location
// matches the token, when its location is active, or when the one-shot
// boltcard programming token has already been handed out once.
var ErrWriteTokenConsumed = errors.New("write token already consumed")

// ConsumeWriteToken atomically flips write_token_used, so a boltcard
// programmer app can only ever be handed the card's keys once per token —
// a second request with the same token fails even if issued concurrently.
func (r *LocationRepository) ConsumeWriteToken(ctx context.Context, token string) (*Location, error) {
	row := r.db.QueryRow(ctx, `UPDATE locations SET write_token_used = true
		WHERE write_token = $1 AND write_token_used = false AND status != $2
		RETURNING `+locationColumns, token, LocationActive)
	l, err := scanLocation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrWriteTokenConsumed
		}
		return nil, fmt.Errorf("failed to consume write token: %w", err)
	}
	return l, nil
}

func (r *LocationRepository) ListActive(ctx context.Context) ([]*Location, error) {
	return r.list(ctx, `SELECT `+locationColumns+` FROM locations WHERE status = $1 ORDER BY created_at ASC`, LocationActive)
}

func (r *LocationRepository) ListAll(ctx context.Context) ([]*Location, error) {
	return r.list(ctx, `SELECT `+locationColumns+` FROM locations ORDER BY created_at DESC`)
}

func (r *LocationRepository) ListByCreator(ctx context.Context, userID string) ([]*Location, error) {
	return r.list(ctx, `SELECT `+locationColumns+` FROM locations WHERE creator_user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *LocationRepository) list(ctx context.Context, query string, args ...any) ([]*Location, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	var locations []*Location
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location row: %w", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return locations, nil
}

func (r *LocationRepository) UpdateStatus(ctx context.Context, id string, status LocationStatus) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		return fmt.Errorf("failed to update location status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLocationNotFound
	}
	return nil
}

// UpdateMsats sets the location's live balance inside an already-open
// transaction. ClaimCollection zeroes the balance with its own UPDATE and
// does not call it.
func (r *LocationRepository) UpdateMsats(ctx context.Context, tx pgx.Tx, id string, msats int64) error {
	tag, err := tx.Exec(ctx, `UPDATE locations SET current_msats = $2 WHERE id = $1`, id, msats)
	if err != nil {
		return fmt.Errorf("failed to update location balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLocationNotFound
	}
	return nil
}

func (r *LocationRepository) UpdateLastRefill(ctx context.Context, id string, at time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE locations SET last_refill_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("failed to update last refill: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLocationNotFound
	}
	return nil
}

// Delete removes a location, but refuses to delete one that is currently
// active — mirrors the original's guard against deleting a live sticker.
func (r *LocationRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM locations WHERE id = $1 AND status != $2`, id, LocationActive)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrLocationNotFound
	}
	return nil
}
