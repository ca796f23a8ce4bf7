// Package card provisions treasure locations and their NTAG424 DNA NFC
// chips: creating a location with a one-time write token, generating a
// fresh set of AES-128 keys for its sticker, and recording the chip's real
// UID once it is written and tapped for the first time.
package card

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"sathunt/internal/auth"
	"sathunt/internal/ledger"

	"github.com/google/uuid"
)

const aesKeyBytes = 16

// ErrForbidden is returned when the caller does not own the location (for
// owner-triggered transitions) or lacks the admin role (for admin-only
// ones).
var ErrForbidden = errors.New("caller is not authorized for this transition")

// ErrIllegalStatusTransition is returned when the location is not currently
// in a state the requested transition is legal from, per spec.md's Location
// state machine.
var ErrIllegalStatusTransition = errors.New("illegal location status transition")

// Service provisions locations and their NFC cards.
type Service struct {
	locations *ledger.LocationRepository
	cards     *ledger.CardRepository
}

func NewService(locations *ledger.LocationRepository, cards *ledger.CardRepository) *Service {
	return &Service{locations: locations, cards: cards}
}

// CreateLocation registers a new treasure spot and a blank (unprogrammed)
// NFC card for it, returning both. The location starts in status "created"
// and the card has no uid until it is flashed and tapped once.
func (s *Service) CreateLocation(ctx context.Context, name string, lat, lon float64, description *string, creatorUserID *string) (*ledger.Location, *ledger.NfcCard, error) {
	now := time.Now()

	loc := &ledger.Location{
		ID:            uuid.NewString(),
		Name:          name,
		Description:   description,
		Latitude:      lat,
		Longitude:     lon,
		WriteToken:    uuid.NewString(),
		Status:        ledger.LocationCreated,
		CurrentMsats:  0,
		CreatorUserID: creatorUserID,
		CreatedAt:     now,
	}
	if err := s.locations.Create(ctx, loc); err != nil {
		return nil, nil, err
	}

	keys, err := generateKeySet()
	if err != nil {
		return nil, nil, err
	}

	nfcCard := &ledger.NfcCard{
		ID:         uuid.NewString(),
		LocationID: loc.ID,
		K0:         keys[0],
		K1:         keys[1],
		K2:         keys[2],
		K3:         keys[3],
		K4:         keys[4],
		Counter:    0,
		Version:    1,
		CreatedAt:  now,
	}
	if err := s.cards.Create(ctx, nfcCard); err != nil {
		return nil, nil, err
	}

	return loc, nfcCard, nil
}

// ResolveWriteToken looks up the location awaiting programming for a write
// token, failing once the location has already gone active.
func (s *Service) ResolveWriteToken(ctx context.Context, token string) (*ledger.Location, *ledger.NfcCard, error) {
	loc, err := s.locations.GetByWriteTokenUnprogrammed(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	nfcCard, err := s.cards.GetByLocation(ctx, loc.ID)
	if err != nil {
		return nil, nil, err
	}
	return loc, nfcCard, nil
}

// ConsumeWriteToken hands a boltcard programmer app the card's keys exactly
// once: the token is atomically marked used, so a replayed or concurrent
// call with the same token fails rather than handing out the keys twice.
func (s *Service) ConsumeWriteToken(ctx context.Context, token string) (*ledger.Location, *ledger.NfcCard, error) {
	loc, err := s.locations.ConsumeWriteToken(ctx, token)
	if err != nil {
		return nil, nil, err
	}
	nfcCard, err := s.cards.GetByLocation(ctx, loc.ID)
	if err != nil {
		return nil, nil, err
	}
	return loc, nfcCard, nil
}

// ProgramCard records the chip's real UID, read back from the first
// successful write, and transitions the location to "programmed".
func (s *Service) ProgramCard(ctx context.Context, locationID, cardID, uid string) error {
	now := time.Now()
	if err := s.cards.MarkProgrammed(ctx, cardID, uid, now); err != nil {
		return err
	}
	return s.locations.UpdateStatus(ctx, locationID, ledger.LocationProgrammed)
}

// Rekey bumps a card's key-diversification version after a suspected
// compromise, without changing its stored AES keys (re-flashing the
// physical chip with a fresh key set is an out-of-band operator step).
func (s *Service) Rekey(ctx context.Context, cardID string) error {
	return s.cards.IncrementVersion(ctx, cardID)
}

// Deactivate takes a location offline at its owner's request: active ->
// deactivated. Only the creator may do this, and only from active.
func (s *Service) Deactivate(ctx context.Context, locationID, requesterUserID string) error {
	loc, err := s.locations.GetByID(ctx, locationID)
	if err != nil {
		return err
	}
	if loc.CreatorUserID == nil || *loc.CreatorUserID != requesterUserID {
		return ErrForbidden
	}
	if !loc.CanCreatorDeactivate() {
		return ErrIllegalStatusTransition
	}
	return s.locations.UpdateStatus(ctx, locationID, ledger.LocationDeactivated)
}

// Reactivate brings a location back online at its owner's request:
// deactivated -> active. Only the creator may do this, and it is not a way
// out of admin_deactivated.
func (s *Service) Reactivate(ctx context.Context, locationID, requesterUserID string) error {
	loc, err := s.locations.GetByID(ctx, locationID)
	if err != nil {
		return err
	}
	if loc.CreatorUserID == nil || *loc.CreatorUserID != requesterUserID {
		return ErrForbidden
	}
	if !loc.CanCreatorReactivate() {
		return ErrIllegalStatusTransition
	}
	return s.locations.UpdateStatus(ctx, locationID, ledger.LocationActive)
}

// AdminDeactivate force-closes a location regardless of its owner's wishes:
// active or deactivated -> admin_deactivated. Requires the admin role.
func (s *Service) AdminDeactivate(ctx context.Context, locationID string, requesterRole auth.Role) error {
	if !requesterRole.HasAtLeast(auth.RoleAdmin) {
		return ErrForbidden
	}
	loc, err := s.locations.GetByID(ctx, locationID)
	if err != nil {
		return err
	}
	if !loc.CanAdminDeactivate() {
		return ErrIllegalStatusTransition
	}
	return s.locations.UpdateStatus(ctx, locationID, ledger.LocationAdminDeactivated)
}

// AdminReactivate is the only way out of admin_deactivated, per spec.md's
// state machine. Requires the admin role.
func (s *Service) AdminReactivate(ctx context.Context, locationID string, requesterRole auth.Role) error {
	if !requesterRole.HasAtLeast(auth.RoleAdmin) {
		return ErrForbidden
	}
	loc, err := s.locations.GetByID(ctx, locationID)
	if err != nil {
		return err
	}
	if !loc.CanAdminReactivate() {
		return ErrIllegalStatusTransition
	}
	return s.locations.UpdateStatus(ctx, locationID, ledger.LocationActive)
}

func generateKeySet() ([5]string, error) {
	var keys [5]string
	for i := range keys {
		buf := make([]byte, aesKeyBytes)
		if _, err := rand.Read(buf); err != nil {
			return keys, fmt.Errorf("failed to generate card key: %w", err)
		}
		keys[i] = hex.EncodeToString(buf)
	}
	return keys, nil
}
