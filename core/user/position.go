package user

import "math/big"

// PerpPosition is one slot of a user's fixed 8-perp-position array, spec §3.
// Invariant (enforced by the order-placement path, not this type):
// open_bids - open_asks >= |sum of open-order sizes| on this market.
type PerpPosition struct {
	MarketIndex  uint16
	BaseAssetAmount  *big.Int // i64 domain
	QuoteAssetAmount *big.Int // i64 domain, net of fees
	QuoteEntryAmount *big.Int
	QuoteBreakEvenAmount *big.Int
	LastCumulativeFundingRate *big.Int
	LastCumulativeRepegRebate *big.Int

	OpenOrders int32
	OpenBids   *big.Int // >= 0
	OpenAsks   *big.Int // <= 0
	LPShares   *big.Int
}

// IsOpen reports whether this slot holds a nonzero position.
func (p *PerpPosition) IsOpen() bool {
	return p.BaseAssetAmount != nil && p.BaseAssetAmount.Sign() != 0
}

// IsLong/IsShort classify a nonzero position's sign.
func (p *PerpPosition) IsLong() bool  { return p.BaseAssetAmount != nil && p.BaseAssetAmount.Sign() > 0 }
func (p *PerpPosition) IsShort() bool { return p.BaseAssetAmount != nil && p.BaseAssetAmount.Sign() < 0 }

// Clone returns a deep copy.
func (p *PerpPosition) Clone() *PerpPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.BaseAssetAmount = cloneBig(p.BaseAssetAmount)
	clone.QuoteAssetAmount = cloneBig(p.QuoteAssetAmount)
	clone.QuoteEntryAmount = cloneBig(p.QuoteEntryAmount)
	clone.QuoteBreakEvenAmount = cloneBig(p.QuoteBreakEvenAmount)
	clone.LastCumulativeFundingRate = cloneBig(p.LastCumulativeFundingRate)
	clone.LastCumulativeRepegRebate = cloneBig(p.LastCumulativeRepegRebate)
	clone.OpenBids = cloneBig(p.OpenBids)
	clone.OpenAsks = cloneBig(p.OpenAsks)
	clone.LPShares = cloneBig(p.LPShares)
	return &clone
}

// BalanceType distinguishes a spot position that is a net deposit from one
// that is a net borrow.
type BalanceType int8

const (
	Deposit BalanceType = iota
	Borrow
)

// SpotPosition is one slot of a user's fixed 8-spot-position array, spec §3.
type SpotPosition struct {
	MarketIndex       uint16
	ScaledBalance     *big.Int // u64 domain, interest-scaled units
	BalanceType       BalanceType
	OpenOrders        int32
	OpenBids          *big.Int
	OpenAsks          *big.Int
	CumulativeDeposits *big.Int
}

// IsOpen reports whether this slot holds a nonzero scaled balance.
func (p *SpotPosition) IsOpen() bool {
	return p.ScaledBalance != nil && p.ScaledBalance.Sign() != 0
}

// TokenAmount converts the scaled balance to actual token units given the
// market's current cumulative interest index (spec §3: token amount =
// scaled_balance · cumulative_interest / PRECISION).
func (p *SpotPosition) TokenAmount(cumulativeInterest, precision *big.Int) *big.Int {
	if p.ScaledBalance == nil || cumulativeInterest == nil || precision == nil || precision.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(p.ScaledBalance, cumulativeInterest)
	return num.Quo(num, precision)
}

// Clone returns a deep copy.
func (p *SpotPosition) Clone() *SpotPosition {
	if p == nil {
		return nil
	}
	clone := *p
	clone.ScaledBalance = cloneBig(p.ScaledBalance)
	clone.OpenBids = cloneBig(p.OpenBids)
	clone.OpenAsks = cloneBig(p.OpenAsks)
	clone.CumulativeDeposits = cloneBig(p.CumulativeDeposits)
	return &clone
}
