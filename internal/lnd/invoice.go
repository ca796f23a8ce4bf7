package lnd

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"

	"sathunt/pkg/logger"

	"github.com/lightningnetwork/lnd/lnrpc"
	"github.com/lightningnetwork/lnd/lnrpc/invoicesrpc"
	"go.uber.org/zap"
)

// CreateInvoice issues a BOLT11 invoice on our own node for the given amount
// and memo. Used by the donation-invoice HTTP handler to request global and
// per-location donations paid into this node.
func (c *Client) CreateInvoice(ctx context.Context, amountMsats int64, memo string, expirySeconds int64) (*Invoice, error) {
	resp, err := c.lnClient.AddInvoice(ctx, &lnrpc.Invoice{
		Memo:      memo,
		ValueMsat: amountMsats,
		Expiry:    expirySeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("lnd AddInvoice: %w", err)
	}

	return &Invoice{
		PaymentRequest: resp.PaymentRequest,
		AmountSats:     amountMsats / 1000,
		PaymentHash:    hex.EncodeToString(resp.RHash),
		Expiry:         expirySeconds,
		Description:    memo,
	}, nil
}

// AwaitPayment blocks until the invoice identified by paymentHash is
// settled, the invoice is cancelled, or the context is cancelled. It uses
// SubscribeSingleInvoice so callers can wait on a single donation or
// withdrawal-collection invoice without draining the whole invoice stream.
func (c *Client) AwaitPayment(ctx context.Context, paymentHash []byte) error {
	stream, err := c.invoiceClient.SubscribeSingleInvoice(ctx, &invoicesrpc.SubscribeSingleInvoiceRequest{
		RHash: paymentHash,
	})
	if err != nil {
		return fmt.Errorf("lnd SubscribeSingleInvoice: %w", err)
	}

	for {
		inv, err := stream.Recv()
		if err == io.EOF {
			return fmt.Errorf("invoice stream closed before settlement")
		}
		if err != nil {
			return fmt.Errorf("invoice stream error: %w", err)
		}

		switch inv.State {
		case lnrpc.Invoice_SETTLED:
			logger.Info("invoice settled", zap.String("payment_hash", hex.EncodeToString(paymentHash)))
			return nil
		case lnrpc.Invoice_CANCELED:
			return fmt.Errorf("invoice was cancelled")
		case lnrpc.Invoice_OPEN, lnrpc.Invoice_ACCEPTED:
			continue
		default:
			continue
		}
	}
}
