package main

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	enclave "github.com/edgebitio/nitro-enclaves-sdk-go"
	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/escrowauction/hostapi"
)

// MockEnclaveHandle implements the Attest method for testing
type MockEnclaveHandle struct {
	AttestFunc func(options enclave.AttestationOptions) ([]byte, error)
}

func (m *MockEnclaveHandle) Attest(options enclave.AttestationOptions) ([]byte, error) {
	if m.AttestFunc != nil {
		return m.AttestFunc(options)
	}
	return nil, fmt.Errorf("mock not configured")
}

// CreateMockEnclave creates a mock enclave handle that wraps the supplied
// user data in a realistic Nitro attestation document.
func CreateMockEnclave(t *testing.T) *MockEnclaveHandle {
	t.Helper()
	return &MockEnclaveHandle{
		AttestFunc: func(options enclave.AttestationOptions) ([]byte, error) {
			nestedDoc := map[string]any{
				"module_id": "test-enclave-12345",
				"digest":    "SHA384",
				"timestamp": uint64(1234567890000),
				"pcrs": map[uint64][]byte{
					0: {0x3b, 0x4c},
					1: {0x4b, 0x4d},
					2: {0x2b, 0xdd},
				},
				"certificate": []byte("test-certificate-data"),
				"cabundle":    [][]byte{[]byte("test-ca-cert")},
				"public_key":  []byte("test-public-key-data"),
				"user_data":   options.UserData,
				"nonce":       options.Nonce,
			}

			nestedBytes, err := cbor.Marshal(nestedDoc)
			if err != nil {
				return nil, err
			}

			// AWS Nitro untagged COSE_Sign1: [header, metadata, nested_doc, signature]
			return cbor.Marshal([]any{
				[]byte{0x01, 0x02, 0x03},
				map[string]any{},
				nestedBytes,
				[]byte{0x04, 0x05, 0x06},
			})
		},
	}
}

// newTestRuntime builds a runtime over a throwaway SQLite database with a
// controllable clock and the mock attester. The returned time pointer moves
// the runtime clock.
func newTestRuntime(t *testing.T) (*Runtime, *Store, *time.Time) {
	t.Helper()

	store, err := OpenStore(filepath.Join(t.TempDir(), "auctions.db"))
	if err != nil {
		t.Fatalf("Failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("Failed to close test store: %v", err)
		}
	})

	now := time.UnixMilli(0).UTC()
	attester := CreateMockEnclave(t)

	runtime := NewRuntime(store)
	runtime.nowFunc = func() time.Time { return now }
	runtime.attesterFunc = func() (EnclaveAttester, error) { return attester, nil }

	return runtime, store, &now
}

// accountBalance reads one account balance outside any operation.
func accountBalance(t *testing.T, store *Store, address string) string {
	t.Helper()

	tx, err := store.Begin()
	if err != nil {
		t.Fatalf("Failed to begin transaction: %v", err)
	}
	defer rollback(tx)

	balance, err := store.AccountBalance(tx, address)
	if err != nil {
		t.Fatalf("Failed to read balance of %s: %v", address, err)
	}
	return balance.String()
}

// parseSettlementReceipt decodes the base64 COSE receipt from a finalize
// response into its settlement user data.
func parseSettlementReceipt(t *testing.T, receipt hostapi.AttestationCOSEBase64) *hostapi.SettlementUserData {
	t.Helper()

	coseBytes, err := receipt.Decode()
	if err != nil {
		t.Fatalf("Failed to decode receipt: %v", err)
	}

	_, userDataBytes, err := coseBytes.ParseAttestationDoc()
	if err != nil {
		t.Fatalf("Failed to parse receipt: %v", err)
	}

	var userData hostapi.SettlementUserData
	if err := json.Unmarshal(userDataBytes, &userData); err != nil {
		t.Fatalf("Failed to unmarshal settlement user data: %v", err)
	}
	return &userData
}
