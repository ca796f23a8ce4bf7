package sun

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"

	"sathunt/internal/ledger"
)

var (
	ErrCardNotProgrammed = errors.New("nfc card has no uid set, not yet programmed")
)

// Verification is the outcome of successfully verifying a SUN message: the
// location and card it belongs to, and the tap counter that must now be
// persisted to block replay.
type Verification struct {
	Location *ledger.Location
	Card     *ledger.NfcCard
	Counter  uint32
}

// Verify decrypts and authenticates a SUN message for the given location,
// checking the card's UID and replay counter. It does not persist the new
// counter — that happens as part of the claim engine's atomic transaction,
// since advancing the counter and crediting the finder must happen
// together or not at all.
func Verify(ctx context.Context, cardRepo *ledger.CardRepository, locationRepo *ledger.LocationRepository, locationID, piccDataHex, cmacHex string) (*Verification, error) {
	card, err := cardRepo.GetByLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if card.UID == nil {
		return nil, ErrCardNotProgrammed
	}

	msg, err := DecryptPiccData(piccDataHex, card.K1)
	if err != nil {
		return nil, err
	}

	valid, err := VerifyCMAC(msg, cmacHex, card.K2)
	if err != nil {
		return nil, err
	}
	if !valid {
		return nil, ErrCmacMismatch
	}

	storedUID, err := hex.DecodeString(*card.UID)
	if err != nil {
		return nil, fmt.Errorf("stored card uid malformed: %w", err)
	}
	if hex.EncodeToString(storedUID) != msg.UIDHex() {
		return nil, ErrUidMismatch
	}

	if int64(msg.Counter) <= card.Counter {
		return nil, ErrReplayDetected
	}

	location, err := locationRepo.GetByID(ctx, locationID)
	if err != nil {
		return nil, err
	}

	return &Verification{Location: location, Card: card, Counter: msg.Counter}, nil
}
