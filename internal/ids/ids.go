// Package ids generates the identifiers the engine and its surrounding host
// exchange: google/uuid for opaque order/request correlation ids, and
// lukechampine.com/blake3 for the deterministic content hash a host derives
// to key an emitted TradeRecord -- grounded on the hashing call in
// native/creator/engine.go (`blake3.Sum256(...)`), generalized from hashing
// a creator record to hashing a trade/liquidation record's canonical bytes.
package ids

import (
	"encoding/hex"

	"github.com/google/uuid"
	"lukechampine.com/blake3"
)

// NewCorrelationID returns a fresh random UUID for correlating a
// place_order/fill_perp_order call pair across logs and traces.
func NewCorrelationID() string {
	return uuid.NewString()
}

// RecordHash returns the hex-encoded blake3-256 digest of a record's
// canonical byte representation, suitable as a content-addressed id for an
// emitted trade/funding/liquidation record.
func RecordHash(canonicalBytes []byte) string {
	sum := blake3.Sum256(canonicalBytes)
	return hex.EncodeToString(sum[:])
}
