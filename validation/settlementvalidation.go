package validation

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/hostapi"
)

// SettlementValidationInput contains all inputs needed for settlement receipt
// validation. The expected fields are what the verifying party believes the
// outcome to be; the label and close time are the public auction parameters.
type SettlementValidationInput struct {
	AttestationCOSEBase64 hostapi.AttestationCOSEBase64
	AuctionID             string
	ExpectedPhase         core.Phase
	ExpectedWinner        string          // empty when no winner is expected
	ExpectedPayout        decimal.Decimal // zero when no winner is expected
	ItemLabel             string
	CloseTime             time.Time
	PCRConfigPath         string // empty = package default pcrs.json
}

// ValidateSettlementAttestation validates a settlement receipt and verifies:
// - Receipt covers the expected auction
// - Phase, winner, and payout match the expected outcome
// - Settlement hash recomputes from the attested outcome and nonce
// - Record hash recomputes from the public auction parameters and nonce
//
// Returns:
//   - SettlementValidationResult with detailed results (call result.IsValid() to check overall status)
//   - error if validation cannot be performed (e.g., malformed input, missing config)
func ValidateSettlementAttestation(input *SettlementValidationInput) (*SettlementValidationResult, error) {
	// Perform common attestation validation (PCRs, certificate, signature)
	baseResult, err := validateCommonAttestation(input.AttestationCOSEBase64, input.PCRConfigPath)
	if err != nil {
		return nil, err
	}

	// Parse settlement attestation to get user data for outcome validation
	settlementAttestation, err := parseSettlementAttestationFromCOSE(input.AttestationCOSEBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to parse attestation from attestation_cose_base64: %w", err)
	}

	result := &SettlementValidationResult{
		BaseValidationResult: *baseResult,
	}

	userData := settlementAttestation.UserData
	if userData == nil {
		result.ValidationDetails = append(result.ValidationDetails, "Attestation user data missing")
		return result, nil
	}

	result.AuctionIDValid = validateAuctionID(input, userData, result)
	result.PhaseValid = validatePhase(input, userData, result)
	result.WinnerValid = validateWinner(input, userData, result)
	result.PayoutValid = validatePayout(input, userData, result)
	result.SettlementHashValid = validateSettlementHash(userData, result)
	result.RecordHashValid = validateRecordHash(input, userData, result)

	return result, nil
}

func validateAuctionID(input *SettlementValidationInput, userData *hostapi.SettlementUserData, result *SettlementValidationResult) bool {
	if userData.AuctionID == input.AuctionID {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Auction ID validation passed: %s", input.AuctionID))
		return true
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Auction ID mismatch: expected %s, attestation has %s", input.AuctionID, userData.AuctionID))
	return false
}

func validatePhase(input *SettlementValidationInput, userData *hostapi.SettlementUserData, result *SettlementValidationResult) bool {
	if !userData.Phase.Terminal() {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Phase validation failed: attestation phase %s is not terminal", userData.Phase))
		return false
	}
	if userData.Phase == input.ExpectedPhase {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Phase validation passed: %s", userData.Phase))
		return true
	}
	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Phase mismatch: expected %s, attestation has %s", input.ExpectedPhase, userData.Phase))
	return false
}

func validateWinner(input *SettlementValidationInput, userData *hostapi.SettlementUserData, result *SettlementValidationResult) bool {
	if input.ExpectedWinner == "" {
		// Verifier expects an unsold outcome
		if userData.WinnerAddress == "" {
			result.ValidationDetails = append(result.ValidationDetails, "Winner validation passed: no winner expected and no winner in attestation")
			return true
		}
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Winner mismatch: expected no winner, but attestation has winner %s", userData.WinnerAddress))
		return false
	}

	if userData.WinnerAddress == "" {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Winner mismatch: expected winner %s, but attestation has no winner", input.ExpectedWinner))
		return false
	}

	if userData.WinnerAddress == input.ExpectedWinner {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Winner validation passed: %s", input.ExpectedWinner))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Winner mismatch: expected %s, attestation has %s", input.ExpectedWinner, userData.WinnerAddress))
	return false
}

func validatePayout(input *SettlementValidationInput, userData *hostapi.SettlementUserData, result *SettlementValidationResult) bool {
	attestedPayout, err := decimal.NewFromString(userData.PayoutAmount)
	if err != nil {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Payout validation failed: unparseable payout amount %q", userData.PayoutAmount))
		return false
	}

	if attestedPayout.Equal(input.ExpectedPayout) {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Payout validation passed: %s", attestedPayout))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Payout mismatch: expected %s, attestation has %s", input.ExpectedPayout, attestedPayout))
	return false
}

func validateSettlementHash(userData *hostapi.SettlementUserData, result *SettlementValidationResult) bool {
	if userData.SettlementNonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Settlement nonce missing from attestation")
		return false
	}

	computedHash := core.ComputeSettlementHash(
		userData.AuctionID, userData.Phase, userData.WinnerAddress,
		userData.PayoutAmount, userData.SettlementNonce)

	if computedHash == userData.SettlementHash {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement hash validation passed: %s", computedHash))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Settlement hash mismatch: computed %s, attestation has %s", computedHash, userData.SettlementHash))
	return false
}

func validateRecordHash(input *SettlementValidationInput, userData *hostapi.SettlementUserData, result *SettlementValidationResult) bool {
	if userData.RecordNonce == "" {
		result.ValidationDetails = append(result.ValidationDetails, "Record nonce missing from attestation")
		return false
	}

	computedHash := core.ComputeRecordHash(input.ItemLabel, input.CloseTime.UnixMilli(), userData.RecordNonce)

	if computedHash == userData.RecordHash {
		result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Record hash validation passed: %s", computedHash))
		return true
	}

	result.ValidationDetails = append(result.ValidationDetails, fmt.Sprintf("Record hash mismatch: computed %s, attestation has %s", computedHash, userData.RecordHash))
	return false
}

// parseSettlementAttestationFromCOSE parses a SettlementAttestationDoc from base64-encoded COSE bytes
// This extracts the attestation document from the COSE_Sign1 payload
func parseSettlementAttestationFromCOSE(attestationCOSEB64 hostapi.AttestationCOSEBase64) (*hostapi.SettlementAttestationDoc, error) {
	// Decode base64 COSE bytes
	coseBytes, err := attestationCOSEB64.Decode()
	if err != nil {
		return nil, fmt.Errorf("decode COSE bytes: %w", err)
	}

	// ParseAttestationDoc internally extracts the COSE_Sign1 payload and parses it
	attestationDoc, userDataBytes, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		return nil, err
	}

	// Parse user data as SettlementUserData
	var userData hostapi.SettlementUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		return nil, fmt.Errorf("parse user data: %w", err)
	}

	return &hostapi.SettlementAttestationDoc{
		AttestationDoc: attestationDoc,
		UserData:       &userData,
	}, nil
}
