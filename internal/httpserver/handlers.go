package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"sathunt/internal/card"
	"sathunt/internal/claim"
	"sathunt/internal/ledger"
	"sathunt/internal/lnurl"
	"sathunt/internal/wallet"
	"sathunt/pkg/logger"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleTap serves the NFC sticker's tap URL: verify the SUN message,
// record the scan, and render the HTML collect page the finder sees.
func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "location_id")
	piccData := r.URL.Query().Get("p")
	cmac := r.URL.Query().Get("c")
	if piccData == "" || cmac == "" {
		piccData = r.URL.Query().Get("picc_data")
		cmac = r.URL.Query().Get("cmac")
	}

	ctx := r.Context()
	if rateLimited(ctx, "scan:"+locationID, 30, time.Minute) {
		http.Error(w, "too many taps, slow down", http.StatusTooManyRequests)
		return
	}

	userID := s.identifyFinder(w, r)

	outcome, err := s.claimEngine.Scan(ctx, locationID, piccData, cmac, userID)
	if err != nil {
		logger.Warn("tap verification failed", zap.String("location_id", locationID), zap.Error(err))
		renderCollectError(w, "This tap could not be verified. Try again.")
		return
	}

	s.setFinderCookie(w, userID)
	renderCollectPage(w, outcome)
}

// handleClaimConfirm is the "collect" button: POST /api/claim/{scan_id}.
func (s *Server) handleClaimConfirm(w http.ResponseWriter, r *http.Request) {
	scanID := chi.URLParam(r, "scan_id")
	userID := s.identifyFinder(w, r)

	outcome, err := s.claimEngine.Confirm(r.Context(), scanID, userID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	s.setFinderCookie(w, userID)

	if outcome.Result != claim.ResultSuccess {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"error":   string(outcome.Result),
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"collected_sats": outcome.CollectedMsats / 1000,
		"location_name":  outcome.LocationName,
		"user_id":        userID,
	})
}

// verifyWithdrawTap locates the location/card the picc_data+cmac pair
// refers to, re-verifying the tap so a withdrawal can only be requested by
// someone who can currently produce a valid signature from the sticker.
func (s *Server) verifyWithdrawTap(w http.ResponseWriter, r *http.Request) (string, bool) {
	locationID := chi.URLParam(r, "location_id")
	piccData := r.URL.Query().Get("picc_data")
	cmac := r.URL.Query().Get("cmac")

	userID := s.identifyFinder(w, r)
	if _, err := s.claimEngine.Scan(r.Context(), locationID, piccData, cmac, userID); err != nil {
		writeError(w, http.StatusUnauthorized, "tap verification failed")
		return "", false
	}
	return userID, true
}

type withdrawLNAddressRequest struct {
	LNAddress string `json:"ln_address"`
	AmountSats int64  `json:"amount_sats"`
}

func (s *Server) handleWithdrawLNAddress(w http.ResponseWriter, r *http.Request) {
	userID := s.identifyFinder(w, r)

	var req withdrawLNAddressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if _, _, err := lnurl.ParseAddress(req.LNAddress); err != nil {
		writeError(w, http.StatusBadRequest, "invalid lightning address")
		return
	}

	s.doWithdraw(w, r, userID, req.LNAddress, req.AmountSats)
}

type withdrawInvoiceRequest struct {
	Invoice string `json:"invoice"`
}

func (s *Server) handleWithdrawInvoice(w http.ResponseWriter, r *http.Request) {
	userID := s.identifyFinder(w, r)

	var req withdrawInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	decoded, err := s.ln.DecodeInvoice(r.Context(), req.Invoice)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invoice")
		return
	}

	s.doWithdraw(w, r, userID, req.Invoice, decoded.AmountSats)
}

func (s *Server) doWithdraw(w http.ResponseWriter, r *http.Request, userID, destination string, amountSats int64) {
	if amountSats <= 0 {
		writeError(w, http.StatusBadRequest, "amount must be positive")
		return
	}

	pending, result, err := s.walletEngine.Withdraw(r.Context(), userID, destination, amountSats*1000)
	if err != nil {
		if errors.Is(err, wallet.ErrInsufficientBalance) {
			writeError(w, http.StatusBadRequest, "insufficient balance")
			return
		}
		logger.Error("withdrawal failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "payment failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"pending_id":     pending.ID,
		"fee_sats":       result.FeeSats,
		"payment_hash":   result.PaymentHash,
	})
}

type donateInvoiceRequest struct {
	AmountSats int64   `json:"amount"`
	LocationID *string `json:"location_id,omitempty"`
}

// handleDonateInvoice issues a fresh invoice to be topped up into a
// location's pool (or the global pool when location_id is omitted) and
// registers it with the donation watcher so payment is credited the moment
// it settles.
func (s *Server) handleDonateInvoice(w http.ResponseWriter, r *http.Request) {
	var req donateInvoiceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.AmountSats <= 0 {
		writeError(w, http.StatusBadRequest, "invalid donation amount")
		return
	}

	amountMsats := req.AmountSats * 1000
	memo := "sathunt donation"

	inv, err := s.ln.CreateInvoice(r.Context(), amountMsats, memo, 3600)
	if err != nil {
		writeError(w, http.StatusBadGateway, "failed to create invoice")
		return
	}

	donationRow := &ledger.Donation{
		ID:          inv.PaymentHash,
		Invoice:     inv.PaymentRequest,
		PaymentHash: inv.PaymentHash,
		LocationID:  req.LocationID,
		AmountMsats: amountMsats,
		Status:      ledger.DonationCreated,
		CreatedAt:   time.Now(),
	}
	if err := s.donations.Create(r.Context(), donationRow); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to record donation")
		return
	}
	s.donations.Notify(r.Context(), inv.PaymentRequest, amountMsats)

	writeJSON(w, http.StatusOK, map[string]any{
		"invoice": inv.PaymentRequest,
		"qr_code": "lightning:" + inv.PaymentRequest,
	})
}

// handleDonateWait long-polls for a donation's settlement, per §6's
// `{invoice}:{amount}[:prefix]` path encoding.
func (s *Server) handleDonateWait(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "invoice")
	parts := strings.SplitN(raw, ":", 3)
	invoice := parts[0]

	deadline := time.Now().Add(50 * time.Second)
	ctx := r.Context()

	for time.Now().Before(deadline) {
		d, err := s.donations.GetByInvoice(ctx, invoice)
		if err == nil && d.Status == ledger.DonationReceived {
			renderDonationReceivedFragment(w, d)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}

	renderDonationPendingFragment(w)
}

// handleBoltcardProgram hands a location owner the five NTAG424 keys and a
// callback URL for a Boltcard-compatible programmer app. The write token is
// consumed atomically: once its write_token_used flag is set, a repeat call
// with the same token fails.
func (s *Server) handleBoltcardProgram(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "write_token")

	location, nfcCard, err := s.cards.ConsumeWriteToken(r.Context(), token)
	if err != nil {
		if errors.Is(err, ledger.ErrWriteTokenConsumed) {
			writeError(w, http.StatusGone, "write token already consumed")
			return
		}
		writeError(w, http.StatusNotFound, "write token not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"card_name": location.Name,
		"uid_mirror": "04",
		"k0":         nfcCard.K0,
		"k1":         nfcCard.K1,
		"k2":         nfcCard.K2,
		"k3":         nfcCard.K3,
		"k4":         nfcCard.K4,
		"protocol": map[string]any{
			"version":          1,
			"base_url":         s.cfg.PublicBaseURL,
			"uid_mirror_byte":  0,
			"sdm_meta_read_enabled": true,
		},
	})
}

// handleLocationDeactivate lets a location's creator take it offline:
// active -> deactivated.
func (s *Server) handleLocationDeactivate(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "location_id")
	userID := s.identifyFinder(w, r)

	if err := s.cards.Deactivate(r.Context(), locationID, userID); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleLocationReactivate lets a location's creator bring it back online:
// deactivated -> active. It is not a way out of admin_deactivated.
func (s *Server) handleLocationReactivate(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "location_id")
	userID := s.identifyFinder(w, r)

	if err := s.cards.Reactivate(r.Context(), locationID, userID); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleAdminLocationDeactivate force-closes a location regardless of its
// owner's wishes: active or deactivated -> admin_deactivated.
func (s *Server) handleAdminLocationDeactivate(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "location_id")
	userID := s.identifyFinder(w, r)

	role, err := s.auth.RoleOf(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusForbidden, "not authorized")
		return
	}
	if err := s.cards.AdminDeactivate(r.Context(), locationID, role); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleAdminLocationReactivate is the only way out of admin_deactivated.
func (s *Server) handleAdminLocationReactivate(w http.ResponseWriter, r *http.Request) {
	locationID := chi.URLParam(r, "location_id")
	userID := s.identifyFinder(w, r)

	role, err := s.auth.RoleOf(r.Context(), userID)
	if err != nil {
		writeError(w, http.StatusForbidden, "not authorized")
		return
	}
	if err := s.cards.AdminReactivate(r.Context(), locationID, role); err != nil {
		writeTransitionError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

func writeTransitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, card.ErrForbidden):
		writeError(w, http.StatusForbidden, "not authorized for this transition")
	case errors.Is(err, card.ErrIllegalStatusTransition):
		writeError(w, http.StatusConflict, "location is not in a state this transition applies to")
	case errors.Is(err, ledger.ErrLocationNotFound):
		writeError(w, http.StatusNotFound, "location not found")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

