package main

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/hostapi"
)

// EnclaveAttester interface for dependency injection and testing
type EnclaveAttester interface {
	Attest(options enclave.AttestationOptions) ([]byte, error)
}

// getEnclaveAttester attempts to get the NSM attester, returns error if not available
func getEnclaveAttester() (EnclaveAttester, error) {
	handle, err := enclave.GetOrInitializeHandle()
	if err != nil {
		return nil, fmt.Errorf("NSM not available: %w", err)
	}
	return handle, nil
}

// generateSecureRandomBytes generates cryptographically secure random bytes.
func generateSecureRandomBytes(length int) ([]byte, error) {
	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return nil, fmt.Errorf("entropy generation failed: %w", err)
	}
	return randomBytes, nil
}

func generateNonce() (string, error) {
	randomBytes, err := generateSecureRandomBytes(32) // 256 bits of entropy
	if err != nil {
		return "", fmt.Errorf("failed to generate secure nonce - %w", err)
	}
	return hex.EncodeToString(randomBytes), nil
}

// GenerateSettlementReceipt attests the outcome of one finalized auction.
// The user data embeds the settlement hash binding the receipt to the
// outcome and the record hash binding it to the auction parameters, each
// under its own nonce so holders can recompute them independently.
func GenerateSettlementReceipt(
	attester EnclaveAttester,
	auctionID string,
	rec core.AuctionRecord,
	beneficiary core.Identity,
	payout decimal.Decimal,
) (hostapi.AttestationCOSE, error) {
	if attester == nil {
		return nil, fmt.Errorf("enclave attester is nil")
	}

	settlementNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate settlement nonce: %w", err)
	}
	recordNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate record nonce: %w", err)
	}

	winnerAddress := ""
	if rec.Winner != nil {
		winnerAddress = rec.Winner.Address
	}

	userData := &hostapi.SettlementUserData{
		AuctionID:          auctionID,
		Phase:              rec.Phase,
		WinnerAddress:      winnerAddress,
		BeneficiaryAddress: beneficiary.Address,
		PayoutAmount:       payout.String(),
		SettlementHash:     core.ComputeSettlementHash(auctionID, rec.Phase, winnerAddress, payout.String(), settlementNonce),
		SettlementNonce:    settlementNonce,
		RecordHash:         core.ComputeRecordHash(rec.ItemLabel, rec.CloseTime.UnixMilli(), recordNonce),
		RecordNonce:        recordNonce,
		Timestamp:          time.Now(),
	}

	userDataBytes, err := json.Marshal(userData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal settlement user data: %w", err)
	}

	attestationNonce, err := generateNonce()
	if err != nil {
		return nil, fmt.Errorf("failed to generate attestation nonce: %w", err)
	}

	attestationCBOR, err := attester.Attest(enclave.AttestationOptions{
		UserData: userDataBytes,
		Nonce:    []byte(attestationNonce),
	})
	if err != nil {
		log.Printf("ERROR: NSM attestation failed: %v", err)
		return nil, fmt.Errorf("NSM attestation failed: %w", err)
	}

	log.Printf("INFO: Settlement receipt generated for auction %s: %d bytes", auctionID, len(attestationCBOR))

	return hostapi.AttestationCOSE(attestationCBOR), nil
}
