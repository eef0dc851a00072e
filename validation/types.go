package validation

// BaseValidationResult contains validation results common to all receipt types
type BaseValidationResult struct {
	PCRsValid         bool
	CertificateValid  bool
	SignatureValid    bool
	ValidationDetails []string
}

// SettlementValidationResult contains validation results specific to
// settlement receipts
type SettlementValidationResult struct {
	BaseValidationResult
	AuctionIDValid      bool
	PhaseValid          bool
	WinnerValid         bool
	PayoutValid         bool
	SettlementHashValid bool
	RecordHashValid     bool
}

// IsValid returns true if all settlement validation checks passed
func (r *SettlementValidationResult) IsValid() bool {
	return r.PCRsValid && r.CertificateValid && r.SignatureValid &&
		r.AuctionIDValid && r.PhaseValid && r.WinnerValid && r.PayoutValid &&
		r.SettlementHashValid && r.RecordHashValid
}

// PCRSet represents a known-good set of PCR measurements
type PCRSet struct {
	PCR0       string `json:"pcr0"`
	PCR1       string `json:"pcr1"`
	PCR2       string `json:"pcr2"`
	CommitHash string `json:"commit_hash"` // escrowauction repo commit used to build the enclave image
}

// PCRConfig represents the PCR configuration file structure
type PCRConfig struct {
	PCRSets []PCRSet `json:"pcr_sets"`
}
