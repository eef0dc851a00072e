package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// IdentityKind distinguishes end-user accounts from contract instances.
// Only accounts may bid; contracts are rejected at the guard.
type IdentityKind string

const (
	IdentityAccount  IdentityKind = "account"
	IdentityContract IdentityKind = "contract"
)

// Identity is an authenticated principal able to place bids or receive transfers.
type Identity struct {
	Kind    IdentityKind `json:"kind"`
	Address string       `json:"address"`
}

// IsAccount reports whether the identity is an end-user account.
func (i Identity) IsAccount() bool {
	return i.Kind == IdentityAccount
}

// Phase is the coarse lifecycle state of an auction record.
type Phase string

const (
	// PhaseOpen accepts bids until the close time passes.
	PhaseOpen Phase = "open"
	// PhaseSettled is terminal: the item sold to the recorded winner.
	PhaseSettled Phase = "settled"
	// PhaseUnsold is terminal: the auction closed without a single bid.
	PhaseUnsold Phase = "unsold"
)

// Terminal reports whether the phase admits no further transitions.
func (p Phase) Terminal() bool {
	return p == PhaseSettled || p == PhaseUnsold
}

// AuctionRecord is the sole persisted entity of the state machine.
// Winner is set exactly when Phase is PhaseSettled, and equals the
// highest bidder at the moment of settlement.
type AuctionRecord struct {
	Phase         Phase     `json:"phase"`
	Winner        *Identity `json:"winner,omitempty"`
	HighestBidder *Identity `json:"highest_bidder,omitempty"`
	ItemLabel     string    `json:"item_label"`
	CloseTime     time.Time `json:"close_time"`
}

// Transfer is an outbound fund movement requested by a state transition.
// Transfers are returned as effects alongside the new record; the host
// must apply them atomically with the record update.
type Transfer struct {
	To     Identity
	Amount decimal.Decimal
}

// BidInput carries the host-attested facts the bid guard sequence needs.
// EscrowedBefore is the auction's escrowed balance before the attached
// funds were applied, EscrowedAfter the balance afterwards; the difference
// is the bid amount.
type BidInput struct {
	Caller         Identity
	Now            time.Time
	EscrowedBefore decimal.Decimal
	EscrowedAfter  decimal.Decimal
}

// Amount returns the bid amount implied by the escrow balances.
func (in BidInput) Amount() decimal.Decimal {
	return in.EscrowedAfter.Sub(in.EscrowedBefore)
}

// FinalizeInput carries the host-attested facts finalization needs.
// Beneficiary is the identity fixed at auction creation that receives
// the payout; Escrowed is the full escrowed balance at this moment.
type FinalizeInput struct {
	Now         time.Time
	Beneficiary Identity
	Escrowed    decimal.Decimal
}
