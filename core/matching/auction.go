package matching

import (
	"math/big"

	"dexcore/core/market"
	"dexcore/core/user"
	"dexcore/dexerr"
	"dexcore/pkg/fixedpoint"
)

// EffectiveLimitPrice derives the order's current effective limit price at
// slot s, per spec §4.3. existingBase is the user's current base position in
// the market (used by the AMM fallback's depth weighting); secondsToExpiry
// is clamped to 0 by the caller when max_ts is unset.
func EffectiveLimitPrice(o *user.Order, s uint64, amm *market.AMM, oraclePrice, existingBase *big.Int, secondsToExpiry int64) (*big.Int, error) {
	if o.OrderType == user.Oracle {
		if oraclePrice == nil {
			return nil, dexerr.ErrOracleInvalid
		}
		offset := o.OraclePriceOffset
		if offset == nil {
			offset = big.NewInt(0)
		}
		return new(big.Int).Add(oraclePrice, offset), nil
	}

	if o.AuctionDuration == 0 {
		if o.Price != nil && o.Price.Sign() > 0 {
			return o.Price, nil
		}
		if amm == nil {
			return oraclePrice, nil
		}
		return amm.GetFallbackPrice(toDirection(o.Direction), existingBase, oraclePrice, secondsToExpiry), nil
	}

	start := o.Slot
	end := o.Slot + uint64(o.AuctionDuration)

	switch {
	case s <= start:
		return o.AuctionStartPrice, nil
	case s >= end:
		if o.Price != nil && o.Price.Sign() > 0 {
			return o.Price, nil
		}
		if amm == nil {
			return o.AuctionEndPrice, nil
		}
		return amm.GetFallbackPrice(toDirection(o.Direction), existingBase, oraclePrice, secondsToExpiry), nil
	default:
		return interpolate(o.AuctionStartPrice, o.AuctionEndPrice, s-start, end-start), nil
	}
}

func interpolate(start, end *big.Int, elapsed, total uint64) *big.Int {
	if total == 0 {
		return start
	}
	delta := new(big.Int).Sub(end, start)
	delta.Mul(delta, new(big.Int).SetUint64(elapsed))
	delta.Quo(delta, new(big.Int).SetUint64(total))
	return new(big.Int).Add(start, delta)
}

func toDirection(d user.Direction) fixedpoint.Direction {
	if d == user.Short {
		return fixedpoint.Short
	}
	return fixedpoint.Long
}

// SlidePostOnly adjusts a post-only order's submitted limit price by one
// tick away from the AMM bid/ask before it rests, so it cannot immediately
// cross the AMM (spec §4.3). It is kept isolated from the rest of the
// auction/pricing logic per Design Notes §9 ("post-only slide is a separate
// policy layer"): no other code path calls it.
func SlidePostOnly(direction user.Direction, submittedPrice *big.Int, ammBid, ammAsk, tickSize *big.Int) (*big.Int, error) {
	if tickSize == nil || tickSize.Sign() <= 0 {
		tickSize = big.NewInt(1)
	}
	slid := new(big.Int).Set(submittedPrice)
	if direction == user.Long {
		if ammAsk != nil && slid.Cmp(ammAsk) >= 0 {
			slid = new(big.Int).Sub(ammAsk, tickSize)
		}
		if ammAsk != nil && slid.Cmp(ammAsk) >= 0 {
			return nil, dexerr.ErrPostOnlyWouldCross
		}
	} else {
		if ammBid != nil && slid.Cmp(ammBid) <= 0 {
			slid = new(big.Int).Add(ammBid, tickSize)
		}
		if ammBid != nil && slid.Cmp(ammBid) <= 0 {
			return nil, dexerr.ErrPostOnlyWouldCross
		}
	}
	return slid, nil
}
