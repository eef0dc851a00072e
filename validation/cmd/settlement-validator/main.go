package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/core"
	"github.com/cloudx-io/escrowauction/hostapi"
	"github.com/cloudx-io/escrowauction/validation"
)

func main() {
	// Define CLI flags
	var (
		receiptInput  = flag.String("receipt", "", "Base64 COSE settlement receipt (file path or inline string)")
		expectedInput = flag.String("expected", "", "Expected outcome JSON (file path or inline JSON)")
		pcrConfig     = flag.String("pcr-config", "", "Path to PCR configuration file (default: bundled pcrs.json)")
		outputFormat  = flag.String("format", "text", "Output format: text or json")
		help          = flag.Bool("help", false, "Show usage information")
	)

	flag.Parse()

	// Show help
	if *help {
		showUsage()
		os.Exit(0)
	}

	// Check for required inputs
	if *receiptInput == "" || *expectedInput == "" {
		showUsage()
		fmt.Fprintf(os.Stderr, "\nError: Both inputs are required (--receipt, --expected)\n")
		os.Exit(1)
	}

	receipt, err := readInput(*receiptInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading receipt: %v\n", err)
		os.Exit(2)
	}

	expectedJSON, err := readInput(*expectedInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error reading expected outcome: %v\n", err)
		os.Exit(2)
	}

	validationInput, err := extractValidationInput(receipt, expectedJSON, *pcrConfig)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error extracting validation data: %v\n", err)
		os.Exit(2)
	}

	// Validate using library
	result, err := validation.ValidateSettlementAttestation(validationInput)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Validation error: %v\n", err)
		os.Exit(2)
	}

	// Output results
	if *outputFormat == "json" {
		outputJSON(result)
	} else {
		outputText(result)
	}

	// Exit with appropriate code
	if !result.IsValid() {
		os.Exit(1)
	}
	os.Exit(0)
}

func showUsage() {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println()
	fmt.Println("Validates auction settlement receipts against the expected outcome.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  settlement-validator --receipt <base64> --expected <json> [options]")
	fmt.Println()
	fmt.Println("Required Flags:")
	fmt.Println("  --receipt <base64>                Base64 COSE receipt from the finalize response")
	fmt.Println("  --expected <json>                 Expected settlement outcome")
	fmt.Println()
	fmt.Println("Optional Flags:")
	fmt.Println("  --pcr-config <path>               PCR configuration file (default: bundled pcrs.json)")
	fmt.Println("  --format <text|json>              Output format (default: text)")
	fmt.Println("  --help                            Show this help message")
	fmt.Println()
	fmt.Println("Input Format:")
	fmt.Println("  Each flag accepts either a file path or an inline string.")
	fmt.Println()
	fmt.Println("Expected Outcome:")
	fmt.Println("  {")
	fmt.Println("    \"auction_id\": \"7f3c9a2e-...\",")
	fmt.Println("    \"phase\": \"settled\",                // or \"unsold\"")
	fmt.Println("    \"winner_address\": \"acct-42\",       // omit for unsold")
	fmt.Println("    \"payout_amount\": \"150.25\",         // omit for unsold")
	fmt.Println("    \"item_label\": \"Starry Night by Van Gogh\",")
	fmt.Println("    \"close_time\": \"2026-09-01T00:00:00Z\"")
	fmt.Println("  }")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  # Receipt saved to a file, expected outcome inline")
	fmt.Println("  settlement-validator \\")
	fmt.Println("    --receipt receipt.b64 \\")
	fmt.Println("    --expected '{\"auction_id\":\"7f3c\",\"phase\":\"settled\",\"winner_address\":\"acct-42\",\"payout_amount\":\"150.25\",\"item_label\":\"lot 7\",\"close_time\":\"2026-09-01T00:00:00Z\"}'")
	fmt.Println()
	fmt.Println("Exit Codes:")
	fmt.Println("  0 - Validation passed")
	fmt.Println("  1 - Validation failed")
	fmt.Println("  2 - Invalid input or runtime error")
}

func readInput(input string) (string, error) {
	// Try reading as file first
	if data, err := os.ReadFile(input); err == nil {
		return strings.TrimSpace(string(data)), nil
	}
	// Treat as inline value
	return input, nil
}

type expectedOutcome struct {
	AuctionID     string `json:"auction_id"`
	Phase         string `json:"phase"`
	WinnerAddress string `json:"winner_address"`
	PayoutAmount  string `json:"payout_amount"`
	ItemLabel     string `json:"item_label"`
	CloseTime     string `json:"close_time"`
}

func extractValidationInput(receipt, expectedJSON, pcrConfig string) (*validation.SettlementValidationInput, error) {
	var expected expectedOutcome
	if err := json.Unmarshal([]byte(expectedJSON), &expected); err != nil {
		return nil, fmt.Errorf("parse expected outcome: %w", err)
	}

	if expected.AuctionID == "" {
		return nil, fmt.Errorf("missing 'auction_id' in expected outcome")
	}

	phase := core.Phase(expected.Phase)
	if !phase.Terminal() {
		return nil, fmt.Errorf("invalid 'phase' in expected outcome: %q (want settled or unsold)", expected.Phase)
	}

	payout := decimal.Zero
	if expected.PayoutAmount != "" {
		var err error
		payout, err = decimal.NewFromString(expected.PayoutAmount)
		if err != nil {
			return nil, fmt.Errorf("parse 'payout_amount': %w", err)
		}
	}

	closeTime, err := time.Parse(time.RFC3339, expected.CloseTime)
	if err != nil {
		return nil, fmt.Errorf("parse 'close_time': %w", err)
	}

	return &validation.SettlementValidationInput{
		AttestationCOSEBase64: hostapi.AttestationCOSEBase64(receipt),
		AuctionID:             expected.AuctionID,
		ExpectedPhase:         phase,
		ExpectedWinner:        expected.WinnerAddress,
		ExpectedPayout:        payout,
		ItemLabel:             expected.ItemLabel,
		CloseTime:             closeTime,
		PCRConfigPath:         pcrConfig,
	}, nil
}

func outputText(result *validation.SettlementValidationResult) {
	fmt.Println("Settlement Receipt Validator")
	fmt.Println("============================")
	fmt.Println()

	fmt.Println("Summary:")
	fmt.Printf("  PCRs Valid:              %v\n", result.PCRsValid)
	fmt.Printf("  Certificate Valid:       %v\n", result.CertificateValid)
	fmt.Printf("  Signature Valid:         %v\n", result.SignatureValid)
	fmt.Printf("  Auction ID Valid:        %v\n", result.AuctionIDValid)
	fmt.Printf("  Phase Valid:             %v\n", result.PhaseValid)
	fmt.Printf("  Winner Valid:            %v\n", result.WinnerValid)
	fmt.Printf("  Payout Valid:            %v\n", result.PayoutValid)
	fmt.Printf("  Settlement Hash Valid:   %v\n", result.SettlementHashValid)
	fmt.Printf("  Record Hash Valid:       %v\n", result.RecordHashValid)

	fmt.Println()
	fmt.Println("Details:")
	for _, detail := range result.ValidationDetails {
		fmt.Printf("  - %s\n", detail)
	}

	fmt.Println()
	fmt.Println("============================")
	if result.IsValid() {
		fmt.Println("VALIDATION: ✓ PASSED")
		fmt.Println("Exit Code: 0")
	} else {
		fmt.Println("VALIDATION: ✗ FAILED")
		fmt.Println("Exit Code: 1")
	}
}

func outputJSON(result *validation.SettlementValidationResult) {
	output := map[string]any{
		"valid":                 result.IsValid(),
		"pcrs_valid":            result.PCRsValid,
		"certificate_valid":     result.CertificateValid,
		"signature_valid":       result.SignatureValid,
		"auction_id_valid":      result.AuctionIDValid,
		"phase_valid":           result.PhaseValid,
		"winner_valid":          result.WinnerValid,
		"payout_valid":          result.PayoutValid,
		"settlement_hash_valid": result.SettlementHashValid,
		"record_hash_valid":     result.RecordHashValid,
		"details":               result.ValidationDetails,
	}

	data, err := json.MarshalIndent(output, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error marshaling JSON: %v\n", err)
		os.Exit(2)
	}
	fmt.Println(string(data))
}
