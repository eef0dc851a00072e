package hostapi

import (
	"encoding/json"
	"testing"

	"github.com/fxamacker/cbor/v2"
	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"

	"github.com/cloudx-io/escrowauction/core"
)

// buildTestCOSE assembles an untagged COSE_Sign1 array around a minimal
// Nitro attestation document, the shape the NSM produces.
func buildTestCOSE(t *testing.T, userData []byte) AttestationCOSE {
	t.Helper()

	nestedDoc := map[string]any{
		"module_id": "test-enclave-12345",
		"digest":    "SHA384",
		"timestamp": uint64(1234567890000),
		"pcrs": map[uint64][]byte{
			0: {0xaa, 0xbb},
			1: {0xcc},
			2: {0xdd},
		},
		"certificate": []byte("test-certificate-data"),
		"cabundle":    [][]byte{[]byte("test-ca-cert")},
		"public_key":  []byte("test-public-key-data"),
		"user_data":   userData,
		"nonce":       []byte("test-nonce"),
	}
	nestedBytes, err := cbor.Marshal(nestedDoc)
	assert.Nil(t, err)

	coseBytes, err := cbor.Marshal([]any{
		[]byte{0x01, 0x02, 0x03},
		map[string]any{},
		nestedBytes,
		[]byte{0x04, 0x05, 0x06},
	})
	assert.Nil(t, err)

	return AttestationCOSE(coseBytes)
}

func TestParseAttestationDoc(t *testing.T) {
	userData, err := json.Marshal(SettlementUserData{
		AuctionID:     "auction-1",
		Phase:         core.PhaseSettled,
		WinnerAddress: "bob",
		PayoutAmount:  "15",
	})
	assert.Nil(t, err)

	cose := buildTestCOSE(t, userData)

	doc, gotUserData, err := cose.ParseAttestationDoc()
	assert.Nil(t, err)

	check.Equal(t, "test-enclave-12345", doc.ModuleID)
	check.Equal(t, "SHA384", doc.DigestAlgorithm)
	check.Equal(t, "aabb", doc.PCRs.ImageFileHash)
	check.Equal(t, "cc", doc.PCRs.KernelHash)
	check.Equal(t, "dd", doc.PCRs.ApplicationHash)
	check.Equal(t, "test-nonce", doc.Nonce)
	check.Equal(t, 1, len(doc.CABundle))

	var settlement SettlementUserData
	assert.Nil(t, json.Unmarshal(gotUserData, &settlement))
	check.Equal(t, "auction-1", settlement.AuctionID)
	check.Equal(t, core.PhaseSettled, settlement.Phase)
	check.Equal(t, "bob", settlement.WinnerAddress)
}

func TestExtractCOSEPayload_RejectsWrongArity(t *testing.T) {
	short, err := cbor.Marshal([]any{[]byte{0x01}, map[string]any{}, []byte{0x02}})
	assert.Nil(t, err)

	_, err = ExtractCOSEPayload(short)
	check.NotNil(t, err)
}

func TestAttestationCOSEBase64RoundTrip(t *testing.T) {
	cose := AttestationCOSE([]byte{0x01, 0x02, 0x03})

	decoded, err := cose.EncodeBase64().Decode()
	assert.Nil(t, err)
	check.Equal(t, []byte(cose), []byte(decoded))

	_, err = AttestationCOSEBase64("not base64!!!").Decode()
	check.NotNil(t, err)
}
