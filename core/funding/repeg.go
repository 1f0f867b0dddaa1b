package funding

import (
	"math/big"

	"dexcore/core/market"
	"dexcore/dexerr"
	"dexcore/pkg/fixedpoint"
	"dexcore/pkg/oracle"
)

// RepegResult reports the outcome of a proposed peg change (spec §4.9).
type RepegResult struct {
	PnL          *big.Int // counterfactual PnL of the repeg, signed
	RebatePerUnitLong  *big.Int
	RebatePerUnitShort *big.Int
}

// Repeg implements repeg_amm_curve (spec §4.9): the proposal is permitted
// only if it moves mark closer to oracle AND either PnL is non-negative or
// the shortfall is covered by (cumulative_fee_realized - cumulative_fee/2).
// A negative-PnL repeg distributes a rebate per base unit on the rewarded
// side, credited lazily via AMM.CumulativeRepegRebateLong/Short and claimed
// by each position on its next funding settlement (Design Notes §9) rather
// than paid out here by iterating every user.
func Repeg(m *market.PerpMarket, newPeg *big.Int, oracleView oracle.View) (RepegResult, error) {
	if newPeg == nil || newPeg.Sign() <= 0 {
		return RepegResult{}, dexerr.ErrInvalidRepegDirection
	}
	if m.AMM.PegMultiplier != nil && newPeg.Cmp(m.AMM.PegMultiplier) == 0 {
		return RepegResult{}, dexerr.ErrInvalidRepegRedundant
	}

	priceData, err := oracleView.GetPrice(m.OracleKey)
	if err != nil {
		return RepegResult{}, err
	}

	oldPrice, err := m.AMM.ReservePrice()
	if err != nil {
		return RepegResult{}, err
	}
	oldSpread := new(big.Int).Sub(oldPrice, priceData.Price)
	oldSpread.Abs(oldSpread)

	oldPeg := m.AMM.PegMultiplier
	m.AMM.PegMultiplier = newPeg
	newPrice, err := m.AMM.ReservePrice()
	if err != nil {
		m.AMM.PegMultiplier = oldPeg
		return RepegResult{}, err
	}
	newSpread := new(big.Int).Sub(newPrice, priceData.Price)
	newSpread.Abs(newSpread)

	if newSpread.Cmp(oldSpread) >= 0 {
		m.AMM.PegMultiplier = oldPeg
		return RepegResult{}, dexerr.ErrInvalidRepegDirection
	}

	// Counterfactual PnL of holding reserves constant while moving the peg:
	// the quote side of the pool is worth (new_price - old_price) per unit
	// of net base exposure the AMM itself holds.
	priceDelta := new(big.Int).Sub(newPrice, oldPrice)
	netBase := m.AMM.BaseAssetAmountWithAMM
	if netBase == nil {
		netBase = big.NewInt(0)
	}
	pnl := fixedpoint.MulDiv(priceDelta, netBase, fixedpoint.BasePrecisionBig)

	if pnl.Sign() < 0 {
		shortfall := new(big.Int).Neg(pnl)
		cumulativeFee := nzBig(m.AMM.TotalFee)
		realized := nzBig(m.AMM.TotalFeeMinusDistributions)
		half := new(big.Int).Quo(cumulativeFee, big.NewInt(2))
		allowance := new(big.Int).Sub(realized, half)
		if shortfall.Cmp(allowance) > 0 {
			m.AMM.PegMultiplier = oldPeg
			return RepegResult{}, dexerr.ErrInvalidRepegProfitability
		}

		result := distributeRebate(m, shortfall)
		return result, nil
	}

	return RepegResult{PnL: pnl}, nil
}

// distributeRebate spreads a negative-PnL repeg's shortfall as a per-base-
// unit rebate onto whichever side the repeg favored, added to the AMM's
// lazily-claimed cumulative rebate fields.
func distributeRebate(m *market.PerpMarket, shortfall *big.Int) RepegResult {
	longOI := nzBig(m.AMM.BaseAssetAmountLong)
	shortOI := new(big.Int).Abs(nzBig(m.AMM.BaseAssetAmountShort))

	m.AMM.TotalFeeMinusDistributions = new(big.Int).Sub(nzBig(m.AMM.TotalFeeMinusDistributions), shortfall)

	result := RepegResult{PnL: new(big.Int).Neg(shortfall)}

	if longOI.Sign() > 0 {
		perUnit := new(big.Int).Mul(shortfall, fixedpoint.BasePrecisionBig)
		perUnit.Quo(perUnit, longOI)
		m.AMM.CumulativeRepegRebateLong = new(big.Int).Add(nzBig(m.AMM.CumulativeRepegRebateLong), perUnit)
		result.RebatePerUnitLong = perUnit
	}
	if shortOI.Sign() > 0 {
		perUnit := new(big.Int).Mul(shortfall, fixedpoint.BasePrecisionBig)
		perUnit.Quo(perUnit, shortOI)
		m.AMM.CumulativeRepegRebateShort = new(big.Int).Add(nzBig(m.AMM.CumulativeRepegRebateShort), perUnit)
		result.RebatePerUnitShort = perUnit
	}
	return result
}

func nzBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
