package core

import "errors"

// Guard failures returned by Bid and Finalize. Every failure rejects the
// whole call and leaves the record unchanged; none is retried internally.
var (
	// ErrAuctionAlreadyFinalized rejects bids and repeat finalizations
	// once the record has reached a terminal phase.
	ErrAuctionAlreadyFinalized = errors.New("auction already finalized")

	// ErrOnlyAccountsMayBid rejects bids from contract identities.
	ErrOnlyAccountsMayBid = errors.New("only accounts may bid")

	// ErrBidTooLate rejects bids arriving after the close time.
	ErrBidTooLate = errors.New("bid arrived after close time")

	// ErrBidTooLow rejects bids that do not strictly exceed the current
	// highest bid.
	ErrBidTooLow = errors.New("bid does not exceed current highest bid")

	// ErrAuctionStillActive rejects finalization at or before the close time.
	ErrAuctionStillActive = errors.New("auction still active")
)
