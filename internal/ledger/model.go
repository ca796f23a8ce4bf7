package ledger

import "time"

// LocationStatus is the lifecycle state of a treasure location.
type LocationStatus string

const (
	LocationCreated         LocationStatus = "created"
	LocationProgrammed      LocationStatus = "programmed"
	LocationActive          LocationStatus = "active"
	LocationDeactivated     LocationStatus = "deactivated"
	LocationAdminDeactivated LocationStatus = "admin_deactivated"
)

// DonationStatus tracks an awaited BOLT11 invoice through its lifecycle.
type DonationStatus string

const (
	DonationCreated  DonationStatus = "created"
	DonationReceived DonationStatus = "received"
	DonationTimedOut DonationStatus = "timed_out"
)

// WithdrawalStatus tracks a pending Lightning payout.
type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalFailed    WithdrawalStatus = "failed"
)

// TransactionKind distinguishes the two ledger entry types a user can have.
type TransactionKind string

const (
	TransactionCollect TransactionKind = "collect"
	TransactionWithdraw TransactionKind = "withdraw"
)

// User is an account holder: a registered human or a lazily-created
// anonymous finder. Auth method details live in AuthMethodType/AuthData,
// opaque to this package and interpreted by internal/auth.
type User struct {
	ID            string
	Username      *string
	Email         *string
	AuthMethodType string
	AuthData      string
	CreatedAt     time.Time
	LastLoginAt   *time.Time
	Role          int
}

// DisplayName returns the username if set, else a short anonymous handle
// derived from the user's id.
func (u *User) DisplayName() string {
	if u.Username != nil && *u.Username != "" {
		return *u.Username
	}
	id := u.ID
	if len(id) > 8 {
		id = id[:8]
	}
	return "anon_" + id
}

// Location is a treasure sticker's server-side record.
type Location struct {
	ID             string
	Name           string
	Description    *string
	Latitude       float64
	Longitude      float64
	WriteToken     string
	WriteTokenUsed bool
	Status         LocationStatus
	CurrentMsats   int64
	LastRefillAt   *time.Time
	LastWithdrawAt *time.Time
	CreatorUserID  *string
	CreatedAt      time.Time
}

func (l *Location) IsCreated() bool     { return l.Status == LocationCreated }
func (l *Location) IsProgrammed() bool  { return l.Status == LocationProgrammed }
func (l *Location) IsActive() bool      { return l.Status == LocationActive }
func (l *Location) IsDeactivated() bool { return l.Status == LocationDeactivated }
func (l *Location) IsAdminDeactivated() bool {
	return l.Status == LocationAdminDeactivated
}
func (l *Location) IsVisible() bool { return l.Status == LocationActive }
func (l *Location) CanCreatorReactivate() bool {
	return l.Status == LocationDeactivated
}
func (l *Location) CanCreatorDeactivate() bool {
	return l.Status == LocationActive
}
func (l *Location) CanAdminDeactivate() bool {
	return l.Status == LocationActive || l.Status == LocationDeactivated
}
func (l *Location) CanAdminReactivate() bool {
	return l.Status == LocationAdminDeactivated
}

// NfcCard holds the NTAG424 DNA keys and replay-protection state for one
// sticker's chip.
type NfcCard struct {
	ID           string
	LocationID   string
	UID          *string
	K0, K1, K2, K3, K4 string
	Counter      int64
	Version      int
	CreatedAt    time.Time
	ProgrammedAt *time.Time
	LastUsedAt   *time.Time
}

// Donation is a tracked global or per-location invoice awaiting payment.
type Donation struct {
	ID          string
	Invoice     string
	PaymentHash string
	LocationID  *string
	AmountMsats int64
	Status      DonationStatus
	SplitID     *string
	CreatedAt   time.Time
	ReceivedAt  *time.Time
}

func (d *Donation) AmountSats() int64 { return d.AmountMsats / 1000 }

// LocationPoolDebit records a withdrawal against a location's donation
// pool, so the pool balance can be recomputed as receipts minus debits.
type LocationPoolDebit struct {
	ID          string
	LocationID  string
	AmountMsats int64
	Reason      string
	CreatedAt   time.Time
}

// Scan is a verified NFC tap, recorded before the finder decides to claim.
type Scan struct {
	ID          string
	LocationID  string
	CardCounter int64
	UserID      *string
	ClaimID     *string
	ScannedAt   time.Time
}

func (s *Scan) IsClaimable(now time.Time) bool {
	return s.ClaimID == nil && now.Sub(s.ScannedAt) <= time.Hour
}

func (s *Scan) IsExpired(now time.Time) bool {
	return now.Sub(s.ScannedAt) > time.Hour
}

// Claim is the outcome of a finder confirming a scan, crediting their
// wallet with the location's collected balance.
type Claim struct {
	ID          string
	ScanID      string
	LocationID  string
	UserID      string
	MsatsClaimed int64
	ClaimedAt   time.Time
}

// UserTransaction is one entry in a user's ledger: a collect from a
// location or a completed withdrawal.
type UserTransaction struct {
	ID        string
	UserID    string
	Kind      TransactionKind
	Msats     int64
	RefID     *string
	CreatedAt time.Time
}

func (t *UserTransaction) IsCollect() bool  { return t.Kind == TransactionCollect }
func (t *UserTransaction) IsWithdraw() bool { return t.Kind == TransactionWithdraw }
func (t *UserTransaction) Sats() int64      { return t.Msats / 1000 }

// PendingWithdrawal reserves funds for an in-flight Lightning payout until
// it is completed or fails.
type PendingWithdrawal struct {
	ID            string
	UserID        string
	AmountMsats   int64
	FeeMsats      int64
	Destination   string
	Status        WithdrawalStatus
	CreatedAt     time.Time
	CompletedAt   *time.Time
}
