package hostapi

import (
	"encoding/base64"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cloudx-io/escrowauction/core"
)

// Request type tags dispatched by the host server.
const (
	TypePing           = "ping"
	TypeCreateAuction  = "create_auction"
	TypeBid            = "bid"
	TypeFinalize       = "finalize"
	TypeView           = "view"
	TypeViewHighestBid = "view_highest_bid"
)

// Stable error codes surfaced to callers for guard failures. Each maps
// one-to-one onto a core sentinel error.
const (
	ErrCodeAuctionAlreadyFinalized = "auction_already_finalized"
	ErrCodeOnlyAccountsMayBid      = "only_accounts_may_bid"
	ErrCodeBidTooLate              = "bid_too_late"
	ErrCodeBidTooLow               = "bid_too_low"
	ErrCodeAuctionStillActive      = "auction_still_active"
	ErrCodeTransferFailure         = "transfer_failure"
	ErrCodeAuctionNotFound         = "auction_not_found"
	ErrCodeInternal                = "internal_error"
)

// CreateAuctionRequest deploys a new auction instance. The creator becomes
// the fixed beneficiary of the eventual payout.
type CreateAuctionRequest struct {
	Type      string        `json:"type"`
	ItemLabel string        `json:"item_label"`
	CloseTime time.Time     `json:"close_time"`
	Creator   core.Identity `json:"creator"`
}

// CreateAuctionResponse returns the host-assigned auction ID.
type CreateAuctionResponse struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	Message   string `json:"message,omitempty"`
	Error     string `json:"error,omitempty"`
	AuctionID string `json:"auction_id,omitempty"`
}

// BidRequest places a bid with the given amount attached. The host applies
// the attached funds to the auction's escrow before running the guard
// sequence; a rejected bid returns them implicitly by rolling back.
type BidRequest struct {
	Type      string          `json:"type"`
	AuctionID string          `json:"auction_id"`
	Caller    core.Identity   `json:"caller"`
	Amount    decimal.Decimal `json:"amount"`
}

// BidResponse reports the outcome of a bid. On success RefundedBidder and
// RefundedAmount describe the refund issued to the displaced bidder, if any.
type BidResponse struct {
	Type           string          `json:"type"`
	Success        bool            `json:"success"`
	Message        string          `json:"message,omitempty"`
	Error          string          `json:"error,omitempty"`
	HighestBid     decimal.Decimal `json:"highest_bid"`
	RefundedBidder *core.Identity  `json:"refunded_bidder,omitempty"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
}

// FinalizeRequest settles an auction. Any caller may trigger settlement
// once the close time has passed; the caller identity is recorded only for
// logging.
type FinalizeRequest struct {
	Type      string        `json:"type"`
	AuctionID string        `json:"auction_id"`
	Caller    core.Identity `json:"caller"`
}

// FinalizeResponse reports the settlement outcome together with the
// base64-encoded COSE settlement receipt generated inside the host.
type FinalizeResponse struct {
	Type                  string                `json:"type"`
	Success               bool                  `json:"success"`
	Message               string                `json:"message,omitempty"`
	Error                 string                `json:"error,omitempty"`
	Phase                 core.Phase            `json:"phase,omitempty"`
	Winner                *core.Identity        `json:"winner,omitempty"`
	Payout                decimal.Decimal       `json:"payout"`
	AttestationCOSEBase64 AttestationCOSEBase64 `json:"attestation_cose_base64,omitempty"`
}

// ViewRequest queries the full auction record. Read-only, no guards.
type ViewRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

// RecordView is the externally visible projection of one auction record
// plus its escrowed balance.
type RecordView struct {
	Phase         core.Phase      `json:"phase"`
	Winner        *core.Identity  `json:"winner,omitempty"`
	HighestBidder *core.Identity  `json:"highest_bidder,omitempty"`
	ItemLabel     string          `json:"item_label"`
	CloseTime     time.Time       `json:"close_time"`
	Escrowed      decimal.Decimal `json:"escrowed"`
}

// ViewResponse wraps a RecordView.
type ViewResponse struct {
	Type    string      `json:"type"`
	Success bool        `json:"success"`
	Message string      `json:"message,omitempty"`
	Error   string      `json:"error,omitempty"`
	Record  *RecordView `json:"record,omitempty"`
}

// ViewHighestBidRequest queries the current highest bid. Read-only.
type ViewHighestBidRequest struct {
	Type      string `json:"type"`
	AuctionID string `json:"auction_id"`
}

// ViewHighestBidResponse returns the escrowed balance, which equals the
// current highest bid by invariant (zero if no bid was ever accepted).
type ViewHighestBidResponse struct {
	Type       string          `json:"type"`
	Success    bool            `json:"success"`
	Message    string          `json:"message,omitempty"`
	Error      string          `json:"error,omitempty"`
	HighestBid decimal.Decimal `json:"highest_bid"`
}

// PCRs represents the Platform Configuration Registers from AWS Nitro Enclaves
type PCRs struct {
	// PCR0: Hash of the Enclave Image File (EIF)
	ImageFileHash string `json:"0"`

	// PCR1: Hash of the Linux kernel and initial RAM data (initramfs)
	KernelHash string `json:"1"`

	// PCR2: Hash of user applications, excluding the boot ramfs
	ApplicationHash string `json:"2"`

	// PCR3: Hash of the IAM role assigned to the parent instance
	IAMRoleHash string `json:"3"`

	// PCR4: Hash of the parent instance's ID
	InstanceIDHash string `json:"4"`

	// PCR8: Hash of the enclave image file's signing certificate
	SigningCertHash string `json:"8,omitempty"`
}

// AttestationDoc represents the base structured attestation data from AWS
// Nitro Enclaves, shared by all receipt types.
type AttestationDoc struct {
	// Module ID identifies the enclave
	ModuleID string `json:"module_id"`

	// Timestamp when the attestation was generated
	Timestamp time.Time `json:"timestamp"`

	// Digest algorithm used (e.g., "SHA384")
	DigestAlgorithm string `json:"digest"`

	// PCRs (Platform Configuration Registers) containing measurements
	PCRs PCRs `json:"pcrs"`

	// Certificate containing the attestation signature
	Certificate string `json:"certificate"`

	// Cabundle for certificate chain validation
	CABundle []string `json:"cabundle"`

	// Public key used for attestation
	PublicKey string `json:"public_key"`

	// Nonce for replay protection
	Nonce string `json:"nonce"`
}

// SettlementUserData is the auction outcome embedded in a settlement
// receipt. SettlementHash binds the receipt to the outcome; RecordHash
// binds it to the immutable auction parameters.
type SettlementUserData struct {
	AuctionID          string     `json:"auction_id"`
	Phase              core.Phase `json:"phase"`
	WinnerAddress      string     `json:"winner_address,omitempty"`
	BeneficiaryAddress string     `json:"beneficiary_address"`
	PayoutAmount       string     `json:"payout_amount"`
	SettlementHash     string     `json:"settlement_hash"`
	SettlementNonce    string     `json:"settlement_nonce"`
	RecordHash         string     `json:"record_hash"`
	RecordNonce        string     `json:"record_nonce"`
	Timestamp          time.Time  `json:"timestamp"`
}

// SettlementAttestationDoc is the parsed settlement receipt: the Nitro
// attestation document with the settlement user data decoded.
type SettlementAttestationDoc struct {
	AttestationDoc
	UserData *SettlementUserData `json:"user_data"`
}

// AttestationCOSE holds raw COSE_Sign1 bytes as produced by the NSM.
type AttestationCOSE []byte

// EncodeBase64 encodes the COSE bytes for JSON transport.
func (c AttestationCOSE) EncodeBase64() AttestationCOSEBase64 {
	return AttestationCOSEBase64(base64.StdEncoding.EncodeToString(c))
}

// AttestationCOSEBase64 is the base64 transport encoding of AttestationCOSE.
type AttestationCOSEBase64 string

// Decode returns the raw COSE bytes.
func (b AttestationCOSEBase64) Decode() (AttestationCOSE, error) {
	data, err := base64.StdEncoding.DecodeString(string(b))
	if err != nil {
		return nil, err
	}
	return AttestationCOSE(data), nil
}
