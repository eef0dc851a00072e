package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// NewAuctionRecord creates the initial record for a single-item auction.
// This corresponds to deployment and runs exactly once per auction instance:
// the phase starts open and no bidder is recorded.
func NewAuctionRecord(itemLabel string, closeTime time.Time) AuctionRecord {
	return AuctionRecord{
		Phase:     PhaseOpen,
		ItemLabel: itemLabel,
		CloseTime: closeTime,
	}
}

// Bid applies one bid to the record and returns the new record plus the
// transfers the host must execute atomically with the record update.
//
// Guards run in order; the first failing guard wins and the record is
// returned unchanged:
//  1. the phase must be open (ErrAuctionAlreadyFinalized)
//  2. the caller must be an account, not a contract (ErrOnlyAccountsMayBid)
//  3. the bid must arrive at or before the close time (ErrBidTooLate)
//  4. the bid amount must strictly exceed the escrowed balance that existed
//     before this call (ErrBidTooLow); ties are rejected
//
// Guard 4 relies on the external invariant that the escrowed balance before
// a bid equals the previous highest bid, so comparing the attached amount
// against EscrowedBefore is exactly the strictly-greater English auction
// rule. On success the previous highest bidder, if any, is refunded the full
// prior escrowed balance.
func Bid(rec AuctionRecord, in BidInput) (AuctionRecord, []Transfer, error) {
	if rec.Phase != PhaseOpen {
		return rec, nil, ErrAuctionAlreadyFinalized
	}

	if !in.Caller.IsAccount() {
		return rec, nil, ErrOnlyAccountsMayBid
	}

	if in.Now.After(rec.CloseTime) {
		return rec, nil, ErrBidTooLate
	}

	if !in.Amount().GreaterThan(in.EscrowedBefore) {
		return rec, nil, ErrBidTooLow
	}

	var transfers []Transfer
	if prev := rec.HighestBidder; prev != nil {
		transfers = append(transfers, Transfer{To: *prev, Amount: in.EscrowedBefore})
	}

	caller := in.Caller
	rec.HighestBidder = &caller

	return rec, transfers, nil
}

// Finalize settles the auction and returns the new record plus the payout
// transfer to the beneficiary.
//
// Guards run in order; the first failing guard wins and the record is
// returned unchanged:
//  1. the phase must be open (ErrAuctionAlreadyFinalized); finalize is
//     single-shot and a repeat call is rejected, never silently accepted
//  2. the close time must have strictly passed (ErrAuctionStillActive);
//     at the boundary instant bidding is still admitted, not finalization
//
// With a highest bidder present the record settles on that bidder and the
// full escrowed balance is paid to the beneficiary. Without any bid the
// record transitions to the terminal unsold phase and no funds move.
// Any caller may finalize; only the beneficiary receives funds.
func Finalize(rec AuctionRecord, in FinalizeInput) (AuctionRecord, []Transfer, error) {
	if rec.Phase != PhaseOpen {
		return rec, nil, ErrAuctionAlreadyFinalized
	}

	if !in.Now.After(rec.CloseTime) {
		return rec, nil, ErrAuctionStillActive
	}

	if rec.HighestBidder == nil {
		rec.Phase = PhaseUnsold
		return rec, nil, nil
	}

	winner := *rec.HighestBidder
	rec.Phase = PhaseSettled
	rec.Winner = &winner

	transfers := []Transfer{{To: in.Beneficiary, Amount: in.Escrowed}}

	return rec, transfers, nil
}

// HighestBid returns the current highest bid implied by the escrowed
// balance: zero when no bid has ever been accepted. The escrowed balance
// equals the highest bid by invariant, so this is a pure projection.
func HighestBid(rec AuctionRecord, escrowed decimal.Decimal) decimal.Decimal {
	if rec.HighestBidder == nil {
		return decimal.Zero
	}
	return escrowed
}
