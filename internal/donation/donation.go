// Package donation runs the background service that watches pending
// donation invoices and credits a location's pool the moment one is paid
// (C6). It survives process restarts by reloading pending donations from
// the ledger at startup, and survives a crashed single instance by also
// durably queuing new-donation notifications on a Redis stream so a
// sweeper worker can pick up what an in-process channel would otherwise
// lose.
package donation

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"sathunt/internal/ledger"
	"sathunt/internal/lnd"
	"sathunt/pkg/logger"
	"sathunt/pkg/queue"

	"go.uber.org/zap"
)

// NewDonation notifies the service of a freshly created, not-yet-paid
// invoice to start awaiting.
type NewDonation struct {
	Invoice     string `json:"invoice"`
	AmountMsats int64  `json:"amount_msats"`
}

// Service tracks pending donations and fans a receipt out to the ledger's
// pool accounting once the underlying invoice is paid.
type Service struct {
	donations *ledger.DonationRepository
	ln        lnd.LightningClient

	notify chan NewDonation

	mu     sync.Mutex
	active map[string]bool

	queue  *queue.StreamQueue
	stream string
	group  string
}

// NewService constructs a donation watcher. queue/stream/group may be the
// zero value to run in-process only (no cross-restart durability beyond
// the startup reload from the ledger).
func NewService(donations *ledger.DonationRepository, ln lnd.LightningClient, q *queue.StreamQueue, stream, group string) *Service {
	return &Service{
		donations: donations,
		ln:        ln,
		notify:    make(chan NewDonation, 64),
		active:    make(map[string]bool),
		queue:     q,
		stream:    stream,
		group:     group,
	}
}

// Create records a freshly issued donation invoice in the ledger, ahead of
// calling Notify to start awaiting it.
func (s *Service) Create(ctx context.Context, d *ledger.Donation) error {
	return s.donations.Create(ctx, d)
}

// GetByInvoice looks up a donation's current status, used by the long-poll
// wait handler.
func (s *Service) GetByInvoice(ctx context.Context, invoice string) (*ledger.Donation, error) {
	return s.donations.GetByInvoice(ctx, invoice)
}

// Notify registers a newly created donation invoice to be awaited. If a
// durable queue is configured, the notification is also published there so
// a separately running sweeper can recover it after a crash.
func (s *Service) Notify(ctx context.Context, invoice string, amountMsats int64) {
	if s.queue != nil {
		payload, err := json.Marshal(NewDonation{Invoice: invoice, AmountMsats: amountMsats})
		if err != nil {
			logger.Error("failed to marshal donation notification", zap.Error(err))
		} else if _, err := s.queue.Publish(ctx, s.stream, payload); err != nil {
			logger.Error("failed to publish donation notification", zap.Error(err))
		}
	}

	select {
	case s.notify <- NewDonation{Invoice: invoice, AmountMsats: amountMsats}:
	default:
		logger.Warn("donation notification channel full, relying on queue/startup reload", zap.String("invoice", invoice))
	}
}

// Start loads every still-pending donation from the ledger (startup
// recovery) and then blocks, spawning a waiter for each new notification,
// until ctx is cancelled.
func (s *Service) Start(ctx context.Context) {
	pending, err := s.donations.ListPending(ctx)
	if err != nil {
		logger.Error("failed to load pending donations", zap.Error(err))
	} else {
		logger.Info("loaded pending donations", zap.Int("count", len(pending)))
		for _, d := range pending {
			s.spawnAwaitTask(ctx, d.Invoice, d.AmountMsats)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case d := <-s.notify:
			s.spawnAwaitTask(ctx, d.Invoice, d.AmountMsats)
		}
	}
}

// Handle processes one consumed queue message: decode by the caller,
// dispatch here. Exported so a standalone sweeper process, consuming the
// durable Redis stream independently of this service's in-process
// "notify" channel, can recover a notification this instance's channel
// would otherwise have dropped on crash.
func (s *Service) Handle(ctx context.Context, d NewDonation) {
	s.spawnAwaitTask(ctx, d.Invoice, d.AmountMsats)
}

// spawnAwaitTask starts a goroutine that blocks on the LN adapter until the
// invoice is paid, then settles it against the ledger. An invoice that
// already has a running waiter is skipped; its entry leaves the active set
// when that waiter returns.
func (s *Service) spawnAwaitTask(ctx context.Context, invoice string, amountMsats int64) {
	s.mu.Lock()
	if s.active[invoice] {
		s.mu.Unlock()
		return
	}
	s.active[invoice] = true
	s.mu.Unlock()

	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.active, invoice)
			s.mu.Unlock()
		}()

		logger.Info("awaiting donation payment", zap.Int64("amount_sats", amountMsats/1000))

		donation, err := s.donations.GetByInvoice(ctx, invoice)
		if err != nil {
			logger.Error("failed to look up donation before awaiting", zap.Error(err))
			return
		}

		paymentHash, err := decodePaymentHash(donation.PaymentHash)
		if err != nil {
			logger.Error("donation has malformed payment hash", zap.String("invoice", invoice), zap.Error(err))
			return
		}

		if err := s.ln.AwaitPayment(ctx, paymentHash); err != nil {
			logger.Error("failed to await donation payment", zap.String("invoice", invoice), zap.Error(err))
			return
		}

		logger.Info("donation payment received", zap.Int64("amount_sats", amountMsats/1000))

		received, splits, err := s.donations.MarkReceived(ctx, invoice, time.Now())
		if err != nil {
			logger.Error("failed to mark donation received", zap.String("invoice", invoice), zap.Error(err))
			return
		}
		if len(splits) > 0 {
			logger.Info("split global donation across active locations",
				zap.String("invoice", invoice), zap.Int("locations", len(splits)))
		}
		_ = received
	}()
}

func decodePaymentHash(hexHash string) ([]byte, error) {
	return hex.DecodeString(hexHash)
}
