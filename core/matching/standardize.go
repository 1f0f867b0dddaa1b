// Package matching implements the order lifecycle and fulfillment pipeline
// of spec §4.2-§4.7: standardization, trigger transitions, auction pricing,
// maker selection, and perp/spot fulfillment, grounded on the orchestration
// style of native/lending.Engine (validation helpers followed by a single
// state-mutating pass) generalized from a lending action to a multi-source
// matching loop.
package matching

import (
	"math/big"

	"dexcore/core/market"
	"dexcore/core/user"
	"dexcore/dexerr"
)

// StandardizeBaseAssetAmount rounds amount down to a multiple of stepSize.
// When the order was previously partially filled (remainder carried on
// unfilled size, spec §4.2 step 1), the caller passes the order's
// *remaining* size so the dropped remainder stays attached to future fills
// of the same order rather than being discarded.
func StandardizeBaseAssetAmount(amount, stepSize *big.Int) *big.Int {
	if stepSize == nil || stepSize.Sign() <= 0 {
		return new(big.Int).Set(amount)
	}
	rem := new(big.Int)
	q := new(big.Int)
	q.QuoRem(amount, stepSize, rem)
	return new(big.Int).Mul(q, stepSize)
}

// StandardizePrice rounds price to the nearest multiple of tickSize at or
// below it (spec §4.2 step 2).
func StandardizePrice(price, tickSize *big.Int) *big.Int {
	if tickSize == nil || tickSize.Sign() <= 0 || price == nil {
		return price
	}
	rem := new(big.Int)
	q := new(big.Int)
	q.QuoRem(price, tickSize, rem)
	return new(big.Int).Mul(q, tickSize)
}

// ValidateOrderSize rejects orders below min_order_size (spec §4.2 step 3).
func ValidateOrderSize(amount, minOrderSize *big.Int) error {
	if minOrderSize != nil && minOrderSize.Sign() > 0 && amount.Cmp(minOrderSize) < 0 {
		return dexerr.ErrTradeSizeTooSmall
	}
	return nil
}

// ValidateOpenInterest rejects a fill that would push the market above
// max_open_interest (spec §4.2 step 4). newLong/newShort are the
// post-fill absolute long/short open interest.
func ValidateOpenInterest(newLong, newShort, maxOpenInterest *big.Int) error {
	if maxOpenInterest == nil || maxOpenInterest.Sign() <= 0 {
		return nil
	}
	if newLong != nil && newLong.CmpAbs(maxOpenInterest) > 0 {
		return dexerr.ErrMaxOpenInterest
	}
	if newShort != nil && newShort.CmpAbs(maxOpenInterest) > 0 {
		return dexerr.ErrMaxOpenInterest
	}
	return nil
}

// EvaluateTrigger applies the §4.2 Above/Below -> TriggeredAbove/
// TriggeredBelow state machine. crossingPrice is the oracle or mark price
// (per order_type) compared against order.TriggerPrice. It is an error to
// retrigger an already-triggered order.
func EvaluateTrigger(o *user.Order, crossingPrice *big.Int, nowSlot uint64, minAuctionDuration uint8, marginRatioInitial uint32, divisor int64) error {
	switch o.TriggerCondition {
	case user.TriggeredAbove, user.TriggeredBelow:
		return dexerr.ErrCantTriggerIfAlreadyTriggered
	case user.Above:
		if crossingPrice.Cmp(o.TriggerPrice) <= 0 {
			return dexerr.ErrOrderDidNotSatisfyTrigger
		}
		o.TriggerCondition = user.TriggeredAbove
	case user.Below:
		if crossingPrice.Cmp(o.TriggerPrice) >= 0 {
			return dexerr.ErrOrderDidNotSatisfyTrigger
		}
		o.TriggerCondition = user.TriggeredBelow
	default:
		return dexerr.ErrOrderDidNotSatisfyTrigger
	}

	o.Slot = nowSlot
	o.AuctionDuration = minAuctionDuration

	oracle := crossingPrice
	offset := fixedpointMulDivInt64(oracle, int64(marginRatioInitial), divisor)
	o.AuctionStartPrice = new(big.Int).Set(oracle)
	if o.Direction == user.Long {
		o.AuctionEndPrice = new(big.Int).Add(oracle, offset)
	} else {
		o.AuctionEndPrice = new(big.Int).Sub(oracle, offset)
	}
	return nil
}

func fixedpointMulDivInt64(v *big.Int, num, den int64) *big.Int {
	if den == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(v, big.NewInt(num))
	return out.Quo(out, big.NewInt(den))
}

// EnforceReduceOnly returns ErrReduceOnlyViolation when fillDelta would move
// the position further from zero instead of toward it.
func EnforceReduceOnly(reduceOnly bool, currentBase, fillDelta *big.Int) error {
	if !reduceOnly {
		return nil
	}
	newBase := new(big.Int).Add(currentBase, fillDelta)
	if new(big.Int).Abs(newBase).Cmp(new(big.Int).Abs(currentBase)) > 0 {
		return dexerr.ErrReduceOnlyViolation
	}
	if (currentBase.Sign() > 0) != (newBase.Sign() > 0) && newBase.Sign() != 0 {
		return dexerr.ErrReduceOnlyViolation
	}
	return nil
}

// MarketAcceptsOrder enforces §4.11's per-status order acceptance rule for a
// freshly placed (non-reducing) order versus a reduce-only order.
func MarketAcceptsOrder(status market.Status, reduceOnly bool) error {
	if reduceOnly {
		if status.AcceptsReducingOrders() {
			return nil
		}
		return dexerr.ErrMarketNotActive
	}
	if status.AcceptsNewOrders() {
		return nil
	}
	return dexerr.ErrMarketNotActive
}
