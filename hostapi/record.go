package hostapi

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/cloudx-io/escrowauction/core"
)

// persistedIdentity is the CBOR shape of an identity in the stored record.
type persistedIdentity struct {
	Kind    string `cbor:"kind"`
	Address string `cbor:"address"`
}

// persistedRecord is the CBOR shape of an AuctionRecord. The close time is
// stored as epoch milliseconds so the encoding is independent of time zone
// and sub-millisecond precision.
type persistedRecord struct {
	Phase         string             `cbor:"phase"`
	Winner        *persistedIdentity `cbor:"winner,omitempty"`
	HighestBidder *persistedIdentity `cbor:"highest_bidder,omitempty"`
	ItemLabel     string             `cbor:"item_label"`
	CloseTimeMS   int64              `cbor:"close_time_ms"`
}

func toPersistedIdentity(id *core.Identity) *persistedIdentity {
	if id == nil {
		return nil
	}
	return &persistedIdentity{Kind: string(id.Kind), Address: id.Address}
}

func fromPersistedIdentity(id *persistedIdentity) *core.Identity {
	if id == nil {
		return nil
	}
	return &core.Identity{Kind: core.IdentityKind(id.Kind), Address: id.Address}
}

// EncodeAuctionRecord serializes a record for storage.
func EncodeAuctionRecord(rec core.AuctionRecord) ([]byte, error) {
	data, err := cbor.Marshal(persistedRecord{
		Phase:         string(rec.Phase),
		Winner:        toPersistedIdentity(rec.Winner),
		HighestBidder: toPersistedIdentity(rec.HighestBidder),
		ItemLabel:     rec.ItemLabel,
		CloseTimeMS:   rec.CloseTime.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode auction record: %w", err)
	}
	return data, nil
}

// DecodeAuctionRecord deserializes a stored record. The close time comes
// back in UTC.
func DecodeAuctionRecord(data []byte) (core.AuctionRecord, error) {
	var stored persistedRecord
	if err := cbor.Unmarshal(data, &stored); err != nil {
		return core.AuctionRecord{}, fmt.Errorf("decode auction record: %w", err)
	}

	phase := core.Phase(stored.Phase)
	switch phase {
	case core.PhaseOpen, core.PhaseSettled, core.PhaseUnsold:
	default:
		return core.AuctionRecord{}, fmt.Errorf("decode auction record: unknown phase %q", stored.Phase)
	}

	return core.AuctionRecord{
		Phase:         phase,
		Winner:        fromPersistedIdentity(stored.Winner),
		HighestBidder: fromPersistedIdentity(stored.HighestBidder),
		ItemLabel:     stored.ItemLabel,
		CloseTime:     time.UnixMilli(stored.CloseTimeMS).UTC(),
	}, nil
}
