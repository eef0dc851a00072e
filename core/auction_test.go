package core

import (
	"errors"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
	"github.com/shopspring/decimal"
)

const testItem = "Starry Night by Van Gogh"

var closeTime = time.UnixMilli(1)

func account(addr string) Identity {
	return Identity{Kind: IdentityAccount, Address: addr}
}

func contract(addr string) Identity {
	return Identity{Kind: IdentityContract, Address: addr}
}

func amt(v int64) decimal.Decimal {
	return decimal.NewFromInt(v)
}

// bidInput builds a BidInput for a bid of the given amount on top of the
// given escrowed balance, placed at the given epoch millisecond.
func bidInput(caller Identity, atMillis int64, escrowedBefore, amount decimal.Decimal) BidInput {
	return BidInput{
		Caller:         caller,
		Now:            time.UnixMilli(atMillis),
		EscrowedBefore: escrowedBefore,
		EscrowedAfter:  escrowedBefore.Add(amount),
	}
}

func TestNewAuctionRecord(t *testing.T) {
	rec := NewAuctionRecord(testItem, closeTime)

	check.Equal(t, PhaseOpen, rec.Phase)
	check.Nil(t, rec.HighestBidder)
	check.Nil(t, rec.Winner)
	check.Equal(t, testItem, rec.ItemLabel)
	check.True(t, rec.CloseTime.Equal(closeTime))
}

func TestBid_FirstBidAccepted(t *testing.T) {
	rec := NewAuctionRecord(testItem, closeTime)

	rec, transfers, err := Bid(rec, bidInput(account("alice"), 0, amt(0), amt(10)))
	assert.Nil(t, err)

	check.Equal(t, PhaseOpen, rec.Phase)
	assert.NotNil(t, rec.HighestBidder)
	check.Equal(t, "alice", rec.HighestBidder.Address)

	// No previous bidder, so no refund is scheduled
	check.Equal(t, 0, len(transfers))
}

func TestBid_HigherBidRefundsPreviousBidder(t *testing.T) {
	rec := NewAuctionRecord(testItem, closeTime)

	rec, _, err := Bid(rec, bidInput(account("alice"), 0, amt(0), amt(10)))
	assert.Nil(t, err)

	rec, transfers, err := Bid(rec, bidInput(account("bob"), 0, amt(10), amt(15)))
	assert.Nil(t, err)

	check.Equal(t, "bob", rec.HighestBidder.Address)

	// Exactly one refund of exactly the prior escrowed balance
	assert.Equal(t, 1, len(transfers))
	check.Equal(t, "alice", transfers[0].To.Address)
	check.True(t, transfers[0].Amount.Equal(amt(10)))
}

func TestBid_GuardOrder(t *testing.T) {
	// A call failing several guards at once must report the earliest one.
	settled := NewAuctionRecord(testItem, closeTime)
	winner := account("alice")
	settled.Phase = PhaseSettled
	settled.Winner = &winner
	settled.HighestBidder = &winner

	tests := []struct {
		name string
		rec  AuctionRecord
		in   BidInput
		want error
	}{
		{
			name: "terminal phase wins over contract caller and lateness",
			rec:  settled,
			in:   bidInput(contract("mkt"), 5, amt(15), amt(1)),
			want: ErrAuctionAlreadyFinalized,
		},
		{
			name: "contract caller wins over lateness and low amount",
			rec:  NewAuctionRecord(testItem, closeTime),
			in:   bidInput(contract("mkt"), 5, amt(10), amt(1)),
			want: ErrOnlyAccountsMayBid,
		},
		{
			name: "lateness wins over low amount",
			rec:  NewAuctionRecord(testItem, closeTime),
			in:   bidInput(account("carol"), 5, amt(10), amt(1)),
			want: ErrBidTooLate,
		},
		{
			name: "low amount is the last guard",
			rec:  NewAuctionRecord(testItem, closeTime),
			in:   bidInput(account("carol"), 0, amt(10), amt(10)),
			want: ErrBidTooLow,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, transfers, err := Bid(tt.rec, tt.in)
			check.True(t, errors.Is(err, tt.want))
			check.Equal(t, 0, len(transfers))
			// Rejected calls leave the record unchanged
			check.Equal(t, tt.rec.Phase, got.Phase)
			check.Equal(t, tt.rec.HighestBidder, got.HighestBidder)
		})
	}
}

func TestBid_AtCloseTimeStillAdmitted(t *testing.T) {
	rec := NewAuctionRecord(testItem, closeTime)

	rec, _, err := Bid(rec, bidInput(account("alice"), 1, amt(0), amt(10)))
	assert.Nil(t, err)
	check.Equal(t, "alice", rec.HighestBidder.Address)
}

func TestBid_TieRejected(t *testing.T) {
	rec := NewAuctionRecord(testItem, closeTime)

	rec, _, err := Bid(rec, bidInput(account("alice"), 0, amt(0), amt(10)))
	assert.Nil(t, err)

	_, transfers, err := Bid(rec, bidInput(account("bob"), 0, amt(10), amt(10)))
	check.True(t, errors.Is(err, ErrBidTooLow))
	check.Equal(t, 0, len(transfers))
	check.Equal(t, "alice", rec.HighestBidder.Address)
}

func TestBid_MonotonicHighestBid(t *testing.T) {
	// Successful bids strictly increase; any non-increasing attempt fails
	// with ErrBidTooLow and leaves the record unchanged.
	rec := NewAuctionRecord(testItem, closeTime)
	escrowed := amt(0)

	for _, amount := range []int64{1, 2, 5, 50} {
		var err error
		rec, _, err = Bid(rec, bidInput(account("alice"), 0, escrowed, amt(amount)))
		assert.Nil(t, err)
		escrowed = amt(amount)

		// Re-bidding the same or a lower amount must fail
		_, _, err = Bid(rec, bidInput(account("bob"), 0, escrowed, amt(amount)))
		check.True(t, errors.Is(err, ErrBidTooLow))
		_, _, err = Bid(rec, bidInput(account("bob"), 0, escrowed, amt(amount-1)))
		check.True(t, errors.Is(err, ErrBidTooLow))
	}
}

func TestFinalize_PaysBeneficiaryAndSettles(t *testing.T) {
	rec := NewAuctionRecord(testItem, closeTime)
	owner := account("owner")

	rec, _, err := Bid(rec, bidInput(account("alice"), 0, amt(0), amt(10)))
	assert.Nil(t, err)
	rec, _, err = Bid(rec, bidInput(account("bob"), 0, amt(10), amt(15)))
	assert.Nil(t, err)

	rec, transfers, err := Finalize(rec, FinalizeInput{
		Now:         time.UnixMilli(2),
		Beneficiary: owner,
		Escrowed:    amt(15),
	})
	assert.Nil(t, err)

	check.Equal(t, PhaseSettled, rec.Phase)
	assert.NotNil(t, rec.Winner)
	check.Equal(t, "bob", rec.Winner.Address)
	// The winner recorded at settlement is exactly the last accepted bidder
	check.Equal(t, rec.HighestBidder.Address, rec.Winner.Address)

	assert.Equal(t, 1, len(transfers))
	check.Equal(t, "owner", transfers[0].To.Address)
	check.True(t, transfers[0].Amount.Equal(amt(15)))
}

func TestFinalize_SingleShot(t *testing.T) {
	rec := NewAuctionRecord(testItem, closeTime)
	owner := account("owner")

	rec, _, err := Bid(rec, bidInput(account("alice"), 0, amt(0), amt(10)))
	assert.Nil(t, err)

	rec, _, err = Finalize(rec, FinalizeInput{Now: time.UnixMilli(2), Beneficiary: owner, Escrowed: amt(10)})
	assert.Nil(t, err)

	// The second call must be rejected and perform no transfer
	got, transfers, err := Finalize(rec, FinalizeInput{Now: time.UnixMilli(3), Beneficiary: owner, Escrowed: amt(10)})
	check.True(t, errors.Is(err, ErrAuctionAlreadyFinalized))
	check.Equal(t, 0, len(transfers))
	check.Equal(t, PhaseSettled, got.Phase)
	check.Equal(t, "alice", got.Winner.Address)
}

func TestFinalize_AtCloseTimeRejected(t *testing.T) {
	// The time windows for bid and finalize are disjoint at the boundary:
	// now == close admits bidding, not finalization.
	rec := NewAuctionRecord(testItem, closeTime)

	_, transfers, err := Finalize(rec, FinalizeInput{
		Now:         closeTime,
		Beneficiary: account("owner"),
		Escrowed:    amt(0),
	})
	check.True(t, errors.Is(err, ErrAuctionStillActive))
	check.Equal(t, 0, len(transfers))
}

func TestFinalize_NoBidsEndsUnsold(t *testing.T) {
	rec := NewAuctionRecord(testItem, closeTime)

	rec, transfers, err := Finalize(rec, FinalizeInput{
		Now:         time.UnixMilli(2),
		Beneficiary: account("owner"),
		Escrowed:    amt(0),
	})
	assert.Nil(t, err)

	check.Equal(t, PhaseUnsold, rec.Phase)
	check.Nil(t, rec.Winner)
	check.Equal(t, 0, len(transfers))

	// Unsold is terminal: finalize stays single-shot regardless of bid history
	_, _, err = Finalize(rec, FinalizeInput{Now: time.UnixMilli(3), Beneficiary: account("owner"), Escrowed: amt(0)})
	check.True(t, errors.Is(err, ErrAuctionAlreadyFinalized))
}

func TestFinalize_AnyCallerMayTrigger(t *testing.T) {
	// There is no access restriction on who triggers settlement, only on
	// who receives funds; the beneficiary is fixed at creation.
	rec := NewAuctionRecord(testItem, closeTime)

	rec, _, err := Bid(rec, bidInput(account("alice"), 0, amt(0), amt(10)))
	assert.Nil(t, err)

	_, transfers, err := Finalize(rec, FinalizeInput{
		Now:         time.UnixMilli(2),
		Beneficiary: account("owner"),
		Escrowed:    amt(10),
	})
	assert.Nil(t, err)
	check.Equal(t, "owner", transfers[0].To.Address)
}

func TestHighestBid(t *testing.T) {
	rec := NewAuctionRecord(testItem, closeTime)

	check.True(t, HighestBid(rec, amt(0)).IsZero())

	rec, _, err := Bid(rec, bidInput(account("alice"), 0, amt(0), amt(10)))
	assert.Nil(t, err)
	check.True(t, HighestBid(rec, amt(10)).Equal(amt(10)))
}

func TestAuctionLifecycle_FullScenario(t *testing.T) {
	// Close at t=1. X bids 10 at t=0, Y outbids with 15 refunding X,
	// Z's 12 is too low, finalize at t=2 pays 15 to the owner and settles
	// on Y, and a repeat finalize fails.
	rec := NewAuctionRecord(testItem, closeTime)
	owner := account("owner")

	rec, transfers, err := Bid(rec, bidInput(account("x"), 0, amt(0), amt(10)))
	assert.Nil(t, err)
	check.Equal(t, 0, len(transfers))
	check.Equal(t, "x", rec.HighestBidder.Address)

	rec, transfers, err = Bid(rec, bidInput(account("y"), 0, amt(10), amt(15)))
	assert.Nil(t, err)
	assert.Equal(t, 1, len(transfers))
	check.Equal(t, "x", transfers[0].To.Address)
	check.True(t, transfers[0].Amount.Equal(amt(10)))
	check.Equal(t, "y", rec.HighestBidder.Address)

	_, _, err = Bid(rec, bidInput(account("z"), 0, amt(15), amt(12)))
	check.True(t, errors.Is(err, ErrBidTooLow))

	rec, transfers, err = Finalize(rec, FinalizeInput{Now: time.UnixMilli(2), Beneficiary: owner, Escrowed: amt(15)})
	assert.Nil(t, err)
	check.Equal(t, PhaseSettled, rec.Phase)
	check.Equal(t, "y", rec.Winner.Address)
	assert.Equal(t, 1, len(transfers))
	check.True(t, transfers[0].Amount.Equal(amt(15)))

	_, _, err = Finalize(rec, FinalizeInput{Now: time.UnixMilli(3), Beneficiary: owner, Escrowed: amt(15)})
	check.True(t, errors.Is(err, ErrAuctionAlreadyFinalized))
}
