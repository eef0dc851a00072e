package core

import (
	"crypto/sha256"
	"fmt"
)

// ComputeSettlementHash computes the hash binding a settlement receipt to
// one auction outcome. It is used by both the host (to generate receipts)
// and validation (to verify them).
//
// Formula: SHA256(auction_id + "|" + phase + "|" + winner_address + "|" + amount + "|" + nonce)
//
// The amount is the canonical decimal string so the hash is independent of
// how the value was represented in memory. An unsold auction hashes with an
// empty winner address and a zero amount.
func ComputeSettlementHash(auctionID string, phase Phase, winnerAddress string, amount string, nonce string) string {
	data := fmt.Sprintf("%s|%s|%s|%s|%s", auctionID, phase, winnerAddress, amount, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}

// ComputeRecordHash computes the hash of the immutable auction parameters.
// This lets a receipt holder verify the receipt refers to the auction they
// participated in without the host disclosing the record itself.
//
// Formula: SHA256(item_label + "|" + close_time_ms + "|" + nonce)
//
// The close time is hashed as epoch milliseconds, matching the persisted
// encoding.
func ComputeRecordHash(itemLabel string, closeTimeMillis int64, nonce string) string {
	data := fmt.Sprintf("%s|%d|%s", itemLabel, closeTimeMillis, nonce)
	hash := sha256.Sum256([]byte(data))
	return fmt.Sprintf("%x", hash)
}
