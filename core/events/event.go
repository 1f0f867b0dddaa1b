// Package events defines the bit-exact record schemas spec §6 requires the
// core to emit, plus the narrow Sink interface the matching/funding/
// liquidation packages write them through. Grounded on the teacher's
// core/events.Emitter pattern (event.go): a one-method interface the core
// calls and the surrounding host implements (persistence, wire encoding,
// and indexing are all out of scope per spec §1).
package events

import "math/big"

// Direction mirrors user.Direction without importing core/user, so this
// package stays a leaf the rest of core/* can depend on.
type Direction int8

const (
	Long Direction = iota
	Short
)

func (d Direction) String() string {
	if d == Short {
		return "short"
	}
	return "long"
}

// TradeRecord is the bit-exact trade record of spec §6.
type TradeRecord struct {
	Ts               int64
	RecordID         uint64
	UserAuthority    string
	User             string
	Direction        Direction
	BaseAssetAmount  *big.Int
	QuoteAssetAmount *big.Int
	MarkPriceBefore  *big.Int
	MarkPriceAfter   *big.Int
	Fee              *big.Int
	MarketIndex      uint16
}

// FundingPaymentRecord follows the "analogous struct layout" spec §6
// describes for funding records.
type FundingPaymentRecord struct {
	Ts                    int64
	User                  string
	MarketIndex           uint16
	Amount                *big.Int
	CumulativeFundingAtSettlement *big.Int
}

// LiquidationRecord follows the same layout for liquidation records.
type LiquidationRecord struct {
	Ts                  int64
	User                string
	MarketIndex         uint16
	Amount              *big.Int
	PenaltyAtSettlement *big.Int
}

// Sink is the narrow write side the core emits records through. A nil Sink
// is never passed to matching/funding/liquidation code directly; callers
// use NopSink when no downstream recorder is wired.
type Sink interface {
	EmitTrade(TradeRecord)
	EmitFundingPayment(FundingPaymentRecord)
	EmitLiquidation(LiquidationRecord)
}

// NopSink discards every record. It is the default Sink for an Engine
// constructed with sink=nil.
type NopSink struct{}

func (NopSink) EmitTrade(TradeRecord)                     {}
func (NopSink) EmitFundingPayment(FundingPaymentRecord)    {}
func (NopSink) EmitLiquidation(LiquidationRecord)          {}

// Recorder is a Sink that appends every record to an in-memory slice,
// useful for tests and for a host that wants to batch-flush records after
// an instruction commits.
type Recorder struct {
	Trades           []TradeRecord
	FundingPayments  []FundingPaymentRecord
	Liquidations     []LiquidationRecord
}

func (r *Recorder) EmitTrade(rec TradeRecord) { r.Trades = append(r.Trades, rec) }
func (r *Recorder) EmitFundingPayment(rec FundingPaymentRecord) {
	r.FundingPayments = append(r.FundingPayments, rec)
}
func (r *Recorder) EmitLiquidation(rec LiquidationRecord) {
	r.Liquidations = append(r.Liquidations, rec)
}
