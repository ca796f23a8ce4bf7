// Package httpserver exposes sathunt's external interfaces (§6): the NFC
// tap URL, claim confirmation, withdrawals, donations, and one-shot card
// programming. Routing follows the corpus's chi-based server pattern.
package httpserver

import (
	"context"
	"net/http"
	"time"

	"sathunt/internal/auth"
	"sathunt/internal/card"
	"sathunt/internal/claim"
	"sathunt/internal/donation"
	"sathunt/internal/ledger"
	"sathunt/internal/lnd"
	"sathunt/internal/wallet"
	"sathunt/pkg/cache"
	"sathunt/pkg/logger"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Config carries the server's own settings, distinct from the dependencies
// it is constructed with.
type Config struct {
	Addr          string
	PublicBaseURL string
}

// Server wires handlers, middleware, and dependencies for the public API.
type Server struct {
	cfg          Config
	cookieSecret []byte

	claimEngine *claim.Engine
	walletEngine *wallet.Engine
	donations    *donation.Service
	cards        *card.Service
	auth         *auth.Service
	locations    *ledger.LocationRepository
	ln           lnd.LightningClient

	httpServer *http.Server
}

// New builds the HTTP server with a configured chi router.
func New(
	cfg Config,
	cookieSecretHex string,
	claimEngine *claim.Engine,
	walletEngine *wallet.Engine,
	donations *donation.Service,
	cards *card.Service,
	authSvc *auth.Service,
	locations *ledger.LocationRepository,
	ln lnd.LightningClient,
) *Server {
	s := &Server{
		cfg:          cfg,
		cookieSecret: []byte(cookieSecretHex),
		claimEngine:  claimEngine,
		walletEngine: walletEngine,
		donations:    donations,
		cards:        cards,
		auth:         authSvc,
		locations:    locations,
		ln:           ln,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(requestLogger)
	router.Use(middleware.Timeout(30 * time.Second))

	router.Get("/t/{location_id}", s.handleTap)
	router.Post("/api/claim/{scan_id}", s.handleClaimConfirm)
	router.Post("/api/withdraw/{location_id}/ln-address", s.handleWithdrawLNAddress)
	router.Post("/api/withdraw/{location_id}/invoice", s.handleWithdrawInvoice)
	router.Post("/api/donate/invoice", s.handleDonateInvoice)
	router.Get("/api/donate/wait/{invoice}", s.handleDonateWait)
	router.Post("/api/boltcard/{write_token}", s.handleBoltcardProgram)
	router.Post("/api/locations/{location_id}/deactivate", s.handleLocationDeactivate)
	router.Post("/api/locations/{location_id}/reactivate", s.handleLocationReactivate)
	router.Post("/api/admin/locations/{location_id}/deactivate", s.handleAdminLocationDeactivate)
	router.Post("/api/admin/locations/{location_id}/reactivate", s.handleAdminLocationReactivate)

	s.httpServer = &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}
	return s
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		logger.Info("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("elapsed", time.Since(start)),
		)
	})
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// rateLimited applies a simple per-key fixed-window counter on top of the
// shared Redis cache: the window starts at the key's first hit and expires
// after window. handleTap uses it to throttle repeated taps on the same
// location.
func rateLimited(ctx context.Context, key string, limit int64, window time.Duration) bool {
	if cache.Client == nil {
		return false
	}
	count, err := cache.Incr(ctx, key)
	if err != nil {
		return false
	}
	if count == 1 {
		_ = cache.Expire(ctx, key, window)
	}
	return count > limit
}
