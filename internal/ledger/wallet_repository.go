package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrPendingWithdrawalNotFound = errors.New("pending withdrawal not found")
	ErrInsufficientBalance       = errors.New("insufficient available balance")
)

type WalletRepository struct {
	db *pgxpool.Pool
}

func NewWalletRepository(db *DB) *WalletRepository {
	return &WalletRepository{db: db.pool}
}

// GetBalance returns a user's available balance in msats: the sum of their
// collect transactions minus withdraw transactions minus any still-pending
// withdrawal reservations.
func (r *WalletRepository) GetBalance(ctx context.Context, userID string) (int64, error) {
	var txBalance int64
	err := r.db.QueryRow(ctx, `SELECT COALESCE(SUM(
		CASE WHEN kind = $2 THEN msats ELSE -msats END
	), 0) FROM user_transactions WHERE user_id = $1`, userID, TransactionCollect).Scan(&txBalance)
	if err != nil {
		return 0, fmt.Errorf("failed to sum user transactions: %w", err)
	}

	var pending int64
	err = r.db.QueryRow(ctx, `SELECT COALESCE(SUM(amount_msats + fee_msats), 0) FROM pending_withdrawals
		WHERE user_id = $1 AND status = $2`, userID, WithdrawalPending).Scan(&pending)
	if err != nil {
		return 0, fmt.Errorf("failed to sum pending withdrawals: %w", err)
	}

	return txBalance - pending, nil
}

func (r *WalletRepository) ListTransactions(ctx context.Context, userID string) ([]*UserTransaction, error) {
	rows, err := r.db.Query(ctx, `SELECT id, user_id, kind, msats, ref_id, created_at
		FROM user_transactions WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list user transactions: %w", err)
	}
	defer rows.Close()

	var txns []*UserTransaction
	for rows.Next() {
		var t UserTransaction
		if err := rows.Scan(&t.ID, &t.UserID, &t.Kind, &t.Msats, &t.RefID, &t.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		txns = append(txns, &t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}
	return txns, nil
}

// CreatePendingWithdrawal reserves amountMsats+feeMsats against the user's
// available balance and inserts a pending withdrawal row, atomically, so
// two concurrent withdrawal requests can never both succeed against the
// same balance.
func (r *WalletRepository) CreatePendingWithdrawal(ctx context.Context, p *PendingWithdrawal) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return fmt.Errorf("failed to begin withdrawal transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var txBalance int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(
		CASE WHEN kind = $2 THEN msats ELSE -msats END
	), 0) FROM user_transactions WHERE user_id = $1`, p.UserID, TransactionCollect).Scan(&txBalance)
	if err != nil {
		return fmt.Errorf("failed to sum user transactions: %w", err)
	}

	var pending int64
	err = tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount_msats + fee_msats), 0) FROM pending_withdrawals
		WHERE user_id = $1 AND status = $2`, p.UserID, WithdrawalPending).Scan(&pending)
	if err != nil {
		return fmt.Errorf("failed to sum pending withdrawals: %w", err)
	}

	available := txBalance - pending
	total := p.AmountMsats + p.FeeMsats
	if available < total {
		return ErrInsufficientBalance
	}

	_, err = tx.Exec(ctx, `INSERT INTO pending_withdrawals (id, user_id, amount_msats, fee_msats, destination, status, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		p.ID, p.UserID, p.AmountMsats, p.FeeMsats, p.Destination, WithdrawalPending, p.CreatedAt, p.CompletedAt)
	if err != nil {
		return fmt.Errorf("failed to insert pending withdrawal: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit withdrawal reservation: %w", err)
	}
	return nil
}

// CompletePendingWithdrawal marks a pending withdrawal completed and
// appends the corresponding debit to the user's transaction ledger.
func (r *WalletRepository) CompletePendingWithdrawal(ctx context.Context, id string, completedAt time.Time) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin completion transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var p PendingWithdrawal
	err = tx.QueryRow(ctx, `SELECT id, user_id, amount_msats, fee_msats, destination, status, created_at, completed_at
		FROM pending_withdrawals WHERE id = $1 AND status = $2 FOR UPDATE`, id, WithdrawalPending).
		Scan(&p.ID, &p.UserID, &p.AmountMsats, &p.FeeMsats, &p.Destination, &p.Status, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrPendingWithdrawalNotFound
		}
		return fmt.Errorf("failed to fetch pending withdrawal: %w", err)
	}

	if _, err := tx.Exec(ctx, `UPDATE pending_withdrawals SET status = $2, completed_at = $3 WHERE id = $1`,
		id, WithdrawalCompleted, completedAt); err != nil {
		return fmt.Errorf("failed to mark withdrawal completed: %w", err)
	}

	if _, err := tx.Exec(ctx, `INSERT INTO user_transactions (id, user_id, kind, msats, ref_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`, id, p.UserID, TransactionWithdraw, p.AmountMsats+p.FeeMsats, id, completedAt); err != nil {
		return fmt.Errorf("failed to insert withdraw transaction: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit withdrawal completion: %w", err)
	}
	return nil
}

// FailPendingWithdrawal releases the reservation without touching the
// ledger, used when the outbound Lightning payment fails.
func (r *WalletRepository) FailPendingWithdrawal(ctx context.Context, id string) error {
	tag, err := r.db.Exec(ctx, `UPDATE pending_withdrawals SET status = $2 WHERE id = $1 AND status = $3`,
		id, WithdrawalFailed, WithdrawalPending)
	if err != nil {
		return fmt.Errorf("failed to mark withdrawal failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPendingWithdrawalNotFound
	}
	return nil
}

func (r *WalletRepository) GetPendingWithdrawal(ctx context.Context, id string) (*PendingWithdrawal, error) {
	var p PendingWithdrawal
	err := r.db.QueryRow(ctx, `SELECT id, user_id, amount_msats, fee_msats, destination, status, created_at, completed_at
		FROM pending_withdrawals WHERE id = $1`, id).
		Scan(&p.ID, &p.UserID, &p.AmountMsats, &p.FeeMsats, &p.Destination, &p.Status, &p.CreatedAt, &p.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPendingWithdrawalNotFound
		}
		return nil, fmt.Errorf("failed to get pending withdrawal %s: %w", id, err)
	}
	return &p, nil
}
