package main

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/hostapi"
)

// Runtime is the hosting execution environment of the auction state
// machine: it owns the trusted clock, the record store, the escrow ledger,
// and the settlement attester, and admits one operation at a time per
// auction through SQLite transactions.
type Runtime struct {
	store        *Store
	nowFunc      func() time.Time
	attesterFunc func() (EnclaveAttester, error)
}

// NewRuntime creates a runtime over the given store using the system clock
// and the NSM attester.
func NewRuntime(store *Store) *Runtime {
	return &Runtime{
		store:        store,
		nowFunc:      time.Now,
		attesterFunc: getEnclaveAttester,
	}
}

// errorCode maps operation failures onto the stable wire codes.
func errorCode(err error) string {
	switch {
	case errors.Is(err, core.ErrAuctionAlreadyFinalized):
		return hostapi.ErrCodeAuctionAlreadyFinalized
	case errors.Is(err, core.ErrOnlyAccountsMayBid):
		return hostapi.ErrCodeOnlyAccountsMayBid
	case errors.Is(err, core.ErrBidTooLate):
		return hostapi.ErrCodeBidTooLate
	case errors.Is(err, core.ErrBidTooLow):
		return hostapi.ErrCodeBidTooLow
	case errors.Is(err, core.ErrAuctionStillActive):
		return hostapi.ErrCodeAuctionStillActive
	case errors.Is(err, ErrAuctionNotFound):
		return hostapi.ErrCodeAuctionNotFound
	case errors.Is(err, errTransferFailed):
		return hostapi.ErrCodeTransferFailure
	default:
		return hostapi.ErrCodeInternal
	}
}

// errTransferFailed marks host-originated transfer failures. A failed
// transfer aborts the enclosing operation; the record never advances
// without the money moving.
var errTransferFailed = errors.New("transfer failed")

// applyTransfers credits each transfer destination inside the transaction.
// Only account identities can receive funds.
func (r *Runtime) applyTransfers(tx *sql.Tx, transfers []core.Transfer) error {
	for _, transfer := range transfers {
		if !transfer.To.IsAccount() || transfer.To.Address == "" {
			return fmt.Errorf("%w: destination %s/%s is not an account",
				errTransferFailed, transfer.To.Kind, transfer.To.Address)
		}
		if err := r.store.CreditAccount(tx, transfer.To.Address, transfer.Amount); err != nil {
			return fmt.Errorf("%w: %v", errTransferFailed, err)
		}
	}
	return nil
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		log.Printf("ERROR: Failed to roll back transaction: %v", err)
	}
}

// CreateAuction deploys a new auction instance. The creator identity is
// recorded as the fixed beneficiary of the eventual payout.
func (r *Runtime) CreateAuction(req hostapi.CreateAuctionRequest) hostapi.CreateAuctionResponse {
	fail := func(code, msg string) hostapi.CreateAuctionResponse {
		return hostapi.CreateAuctionResponse{Type: "create_auction_response", Error: code, Message: msg}
	}

	if req.Creator.Address == "" {
		return fail(hostapi.ErrCodeInternal, "creator identity is required")
	}
	if req.CloseTime.IsZero() {
		return fail(hostapi.ErrCodeInternal, "close time is required")
	}

	rec := core.NewAuctionRecord(req.ItemLabel, req.CloseTime)
	encoded, err := hostapi.EncodeAuctionRecord(rec)
	if err != nil {
		return fail(hostapi.ErrCodeInternal, err.Error())
	}

	id := uuid.NewString()

	tx, err := r.store.Begin()
	if err != nil {
		return fail(hostapi.ErrCodeInternal, err.Error())
	}
	defer rollback(tx)

	row := auctionRow{
		ID:              id,
		Record:          encoded,
		BeneficiaryKind: string(req.Creator.Kind),
		BeneficiaryAddr: req.Creator.Address,
		Escrowed:        decimal.Zero,
	}
	if err := r.store.InsertAuction(tx, row); err != nil {
		return fail(hostapi.ErrCodeInternal, err.Error())
	}
	if err := tx.Commit(); err != nil {
		return fail(hostapi.ErrCodeInternal, err.Error())
	}

	log.Printf("INFO: Auction %s created: item=%q close=%s creator=%s",
		id, req.ItemLabel, req.CloseTime.UTC().Format(time.RFC3339), req.Creator.Address)

	return hostapi.CreateAuctionResponse{Type: "create_auction_response", Success: true, AuctionID: id}
}

// Bid applies one bid. The attached amount is added to the auction's
// escrow, the guard sequence runs against the balances before and after,
// and on success the displaced bidder's refund commits atomically with the
// record update.
func (r *Runtime) Bid(req hostapi.BidRequest) hostapi.BidResponse {
	fail := func(err error) hostapi.BidResponse {
		return hostapi.BidResponse{Type: "bid_response", Error: errorCode(err), Message: err.Error()}
	}

	tx, err := r.store.Begin()
	if err != nil {
		return fail(err)
	}
	defer rollback(tx)

	row, err := r.store.GetAuction(tx, req.AuctionID)
	if err != nil {
		return fail(err)
	}
	rec, err := hostapi.DecodeAuctionRecord(row.Record)
	if err != nil {
		return fail(err)
	}

	escrowedBefore := row.Escrowed
	escrowedAfter := escrowedBefore.Add(req.Amount)

	rec, transfers, err := core.Bid(rec, core.BidInput{
		Caller:         req.Caller,
		Now:            r.nowFunc(),
		EscrowedBefore: escrowedBefore,
		EscrowedAfter:  escrowedAfter,
	})
	if err != nil {
		log.Printf("INFO: Bid rejected on auction %s: caller=%s amount=%s: %v",
			req.AuctionID, req.Caller.Address, req.Amount, err)
		return fail(err)
	}

	if err := r.applyTransfers(tx, transfers); err != nil {
		log.Printf("ERROR: Refund failed on auction %s, aborting bid: %v", req.AuctionID, err)
		return fail(err)
	}

	// Refunds drain escrow back to exactly the new highest bid
	escrowed := escrowedAfter
	for _, transfer := range transfers {
		escrowed = escrowed.Sub(transfer.Amount)
	}

	row.Escrowed = escrowed
	row.Record, err = hostapi.EncodeAuctionRecord(rec)
	if err != nil {
		return fail(err)
	}
	if err := r.store.UpdateAuction(tx, row); err != nil {
		return fail(err)
	}
	if err := tx.Commit(); err != nil {
		return fail(err)
	}

	resp := hostapi.BidResponse{
		Type:       "bid_response",
		Success:    true,
		HighestBid: escrowed,
	}
	if len(transfers) > 0 {
		refunded := transfers[0].To
		resp.RefundedBidder = &refunded
		resp.RefundedAmount = transfers[0].Amount
	}

	log.Printf("INFO: Bid accepted on auction %s: bidder=%s amount=%s escrowed=%s",
		req.AuctionID, req.Caller.Address, req.Amount, escrowed)

	return resp
}

// Finalize settles the auction: the payout to the beneficiary, the record
// transition, and the settlement receipt all succeed together or the
// operation aborts with no observable change.
func (r *Runtime) Finalize(req hostapi.FinalizeRequest) hostapi.FinalizeResponse {
	fail := func(err error) hostapi.FinalizeResponse {
		return hostapi.FinalizeResponse{Type: "finalize_response", Error: errorCode(err), Message: err.Error()}
	}

	tx, err := r.store.Begin()
	if err != nil {
		return fail(err)
	}
	defer rollback(tx)

	row, err := r.store.GetAuction(tx, req.AuctionID)
	if err != nil {
		return fail(err)
	}
	rec, err := hostapi.DecodeAuctionRecord(row.Record)
	if err != nil {
		return fail(err)
	}

	beneficiary := core.Identity{
		Kind:    core.IdentityKind(row.BeneficiaryKind),
		Address: row.BeneficiaryAddr,
	}

	rec, transfers, err := core.Finalize(rec, core.FinalizeInput{
		Now:         r.nowFunc(),
		Beneficiary: beneficiary,
		Escrowed:    row.Escrowed,
	})
	if err != nil {
		log.Printf("INFO: Finalize rejected on auction %s: caller=%s: %v",
			req.AuctionID, req.Caller.Address, err)
		return fail(err)
	}

	if err := r.applyTransfers(tx, transfers); err != nil {
		log.Printf("ERROR: Payout failed on auction %s, aborting finalize: %v", req.AuctionID, err)
		return fail(err)
	}

	payout := decimal.Zero
	for _, transfer := range transfers {
		payout = payout.Add(transfer.Amount)
	}

	row.Escrowed = row.Escrowed.Sub(payout)
	row.Record, err = hostapi.EncodeAuctionRecord(rec)
	if err != nil {
		return fail(err)
	}
	if err := r.store.UpdateAuction(tx, row); err != nil {
		return fail(err)
	}

	// The receipt is the auditable half of settlement: if attestation is
	// unavailable the whole operation aborts and stays retryable.
	attester, err := r.attesterFunc()
	if err != nil {
		log.Printf("ERROR: Attester unavailable, aborting finalize of auction %s: %v", req.AuctionID, err)
		return fail(err)
	}
	receipt, err := GenerateSettlementReceipt(attester, req.AuctionID, rec, beneficiary, payout)
	if err != nil {
		return fail(err)
	}

	if err := tx.Commit(); err != nil {
		return fail(err)
	}

	log.Printf("INFO: Auction %s finalized: phase=%s payout=%s beneficiary=%s",
		req.AuctionID, rec.Phase, payout, beneficiary.Address)

	return hostapi.FinalizeResponse{
		Type:                  "finalize_response",
		Success:               true,
		Phase:                 rec.Phase,
		Winner:                rec.Winner,
		Payout:                payout,
		AttestationCOSEBase64: receipt.EncodeBase64(),
	}
}

// View returns the full record projection. Read-only, no guards.
func (r *Runtime) View(req hostapi.ViewRequest) hostapi.ViewResponse {
	fail := func(err error) hostapi.ViewResponse {
		return hostapi.ViewResponse{Type: "view_response", Error: errorCode(err), Message: err.Error()}
	}

	row, rec, err := r.loadAuction(req.AuctionID)
	if err != nil {
		return fail(err)
	}

	return hostapi.ViewResponse{
		Type:    "view_response",
		Success: true,
		Record: &hostapi.RecordView{
			Phase:         rec.Phase,
			Winner:        rec.Winner,
			HighestBidder: rec.HighestBidder,
			ItemLabel:     rec.ItemLabel,
			CloseTime:     rec.CloseTime,
			Escrowed:      row.Escrowed,
		},
	}
}

// ViewHighestBid returns the current highest bid, zero if no bid has ever
// been accepted. Read-only, no guards.
func (r *Runtime) ViewHighestBid(req hostapi.ViewHighestBidRequest) hostapi.ViewHighestBidResponse {
	fail := func(err error) hostapi.ViewHighestBidResponse {
		return hostapi.ViewHighestBidResponse{Type: "view_highest_bid_response", Error: errorCode(err), Message: err.Error()}
	}

	row, rec, err := r.loadAuction(req.AuctionID)
	if err != nil {
		return fail(err)
	}

	return hostapi.ViewHighestBidResponse{
		Type:       "view_highest_bid_response",
		Success:    true,
		HighestBid: core.HighestBid(rec, row.Escrowed),
	}
}

// loadAuction reads one auction outside of any writer operation.
func (r *Runtime) loadAuction(id string) (auctionRow, core.AuctionRecord, error) {
	tx, err := r.store.Begin()
	if err != nil {
		return auctionRow{}, core.AuctionRecord{}, err
	}
	defer rollback(tx)

	row, err := r.store.GetAuction(tx, id)
	if err != nil {
		return auctionRow{}, core.AuctionRecord{}, err
	}
	rec, err := hostapi.DecodeAuctionRecord(row.Record)
	if err != nil {
		return auctionRow{}, core.AuctionRecord{}, err
	}
	return row, rec, nil
}
