// Package wallet implements the custodial withdrawal engine (C5): balance
// accounting, reserve/complete/fail bookkeeping, and paying a finder's
// destination — a pasted BOLT11 invoice or a resolved Lightning Address —
// over the LN adapter.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"sathunt/internal/ledger"
	"sathunt/internal/lnd"
	"sathunt/internal/lnurl"
	"sathunt/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInsufficientBalance = ledger.ErrInsufficientBalance
	ErrInvalidDestination  = errors.New("destination is neither a BOLT11 invoice nor a Lightning Address")
)

const (
	feeFloorMsats = 2000
	feeRateBps    = 50 // 0.5%, expressed in basis points
)

// FeeBudget computes the routing-fee reserve for a withdrawal: a fixed
// floor plus 0.5% of the amount, rounded up.
func FeeBudget(amountMsats int64) int64 {
	return feeFloorMsats + int64(math.Ceil(float64(amountMsats)*feeRateBps/10000))
}

// Engine orchestrates withdrawals against the custodial ledger.
type Engine struct {
	wallet *ledger.WalletRepository
	ln     lnd.LightningClient
	lnurl  *lnurl.Client
}

func NewEngine(wallet *ledger.WalletRepository, ln lnd.LightningClient, lnurlClient *lnurl.Client) *Engine {
	return &Engine{wallet: wallet, ln: ln, lnurl: lnurlClient}
}

// Balance returns a user's available msats: collects minus withdrawals
// minus outstanding reservations.
func (e *Engine) Balance(ctx context.Context, userID string) (int64, error) {
	return e.wallet.GetBalance(ctx, userID)
}

// History returns a user's ledger entries, newest first.
func (e *Engine) History(ctx context.Context, userID string) ([]*ledger.UserTransaction, error) {
	return e.wallet.ListTransactions(ctx, userID)
}

// resolveInvoice turns a withdrawal destination into a payable BOLT11
// invoice: a pasted invoice is decoded as-is, a Lightning Address
// (user@host) is resolved and quoted for the requested amount.
func (e *Engine) resolveInvoice(ctx context.Context, destination string, amountMsats int64) (string, error) {
	if _, _, err := lnurl.ParseAddress(destination); err == nil {
		return e.lnurl.InvoiceForAddress(ctx, destination, amountMsats)
	}

	decoded, err := e.ln.DecodeInvoice(ctx, destination)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrInvalidDestination, err)
	}
	if decoded.IsExpired {
		return "", fmt.Errorf("invoice has expired")
	}
	return destination, nil
}

// Withdraw reserves the finder's available balance, resolves their
// destination to a payable invoice, pays it, and settles the reservation:
// complete on success, fail (releasing the hold) otherwise.
func (e *Engine) Withdraw(ctx context.Context, userID, destination string, amountMsats int64) (*ledger.PendingWithdrawal, *lnd.PaymentResult, error) {
	feeBudget := FeeBudget(amountMsats)

	pending := &ledger.PendingWithdrawal{
		ID:          uuid.NewString(),
		UserID:      userID,
		AmountMsats: amountMsats,
		FeeMsats:    feeBudget,
		Destination: destination,
		Status:      ledger.WithdrawalPending,
		CreatedAt:   time.Now(),
	}
	if err := e.wallet.CreatePendingWithdrawal(ctx, pending); err != nil {
		return nil, nil, err
	}

	bolt11, err := e.resolveInvoice(ctx, destination, amountMsats)
	if err != nil {
		e.failAndLog(ctx, pending.ID, err)
		return pending, nil, err
	}

	maxFeeSats := feeBudget / 1000
	result, err := e.ln.PayInvoice(ctx, bolt11, maxFeeSats)
	if err != nil {
		e.failAndLog(ctx, pending.ID, err)
		return pending, nil, err
	}
	if result.Status != lnd.PaymentSucceeded {
		payErr := fmt.Errorf("payment did not succeed, status=%d", result.Status)
		e.failAndLog(ctx, pending.ID, payErr)
		return pending, result, payErr
	}

	if err := e.wallet.CompletePendingWithdrawal(ctx, pending.ID, time.Now()); err != nil {
		return pending, result, err
	}

	logger.Info("withdrawal completed",
		zap.String("user_id", userID),
		zap.String("pending_id", pending.ID),
		zap.Int64("amount_msats", amountMsats),
		zap.Int64("fee_sats", result.FeeSats))

	return pending, result, nil
}

func (e *Engine) failAndLog(ctx context.Context, pendingID string, cause error) {
	if err := e.wallet.FailPendingWithdrawal(ctx, pendingID); err != nil {
		logger.Error("failed to release withdrawal reservation", zap.String("pending_id", pendingID), zap.Error(err))
	}
	logger.Warn("withdrawal failed", zap.String("pending_id", pendingID), zap.Error(cause))
}
