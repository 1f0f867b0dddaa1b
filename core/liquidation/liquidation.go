// Package liquidation implements the liquidation controller of spec §4.10,
// grounded on native/lending.Engine's Liquidate method (engine.go) --
// reusing its collateral-then-penalty-then-transfer sequencing -- adapted
// from a single-collateral seize to the multi-position partial/full close
// this spec requires.
package liquidation

import (
	"math/big"

	"dexcore/core/events"
	"dexcore/core/margin"
	"dexcore/core/market"
	"dexcore/core/user"
	"dexcore/dexerr"
	"dexcore/pkg/fixedpoint"
	"dexcore/pkg/oracle"
)

// Mode distinguishes a partial close from a full close (spec §4.10).
type Mode int8

const (
	NotEligible Mode = iota
	Partial
	Full
)

// MarginRatio computes total_collateral / margin_requirement_denominator
// style ratio in MARGIN_PRECISION, using the Maintenance requirement
// calculation's total collateral and the position notional as the
// denominator. Returns a very large ratio (no liquidation risk) if the
// account carries no perp/spot liability notional.
func MarginRatio(calc margin.Calculation, totalNotional *big.Int) uint32 {
	if totalNotional == nil || totalNotional.Sign() == 0 {
		return ^uint32(0)
	}
	ratio := new(big.Int).Mul(calc.TotalCollateral, big.NewInt(fixedpoint.MarginPrecision))
	ratio.Quo(ratio, totalNotional)
	if !ratio.IsInt64() || ratio.Int64() < 0 {
		return 0
	}
	if ratio.Int64() > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(ratio.Int64())
}

// DetermineMode implements the entry condition of spec §4.10:
// margin_ratio <= margin_ratio_partial enters the controller; margin_ratio
// <= margin_ratio_maintenance escalates to a full liquidation.
func DetermineMode(marginRatio uint32, marginRatioPartial, marginRatioMaintenance uint32) Mode {
	if marginRatio > marginRatioPartial {
		return NotEligible
	}
	if marginRatio <= marginRatioMaintenance {
		return Full
	}
	return Partial
}

// PenaltySplit computes the liquidator's share and the insurance vault's
// share of a penalty amount, given a 1/denominator liquidator cut (spec
// §4.10).
func PenaltySplit(penalty *big.Int, liquidatorShareDenominator int64) (liquidatorShare, insuranceShare *big.Int) {
	if penalty == nil || penalty.Sign() <= 0 || liquidatorShareDenominator <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	liquidatorShare = new(big.Int).Quo(penalty, big.NewInt(liquidatorShareDenominator))
	insuranceShare = new(big.Int).Sub(penalty, liquidatorShare)
	return liquidatorShare, insuranceShare
}

// ClosePerpPositionAtMid closes percentagePPM (PercentagePrecision) of a
// position's notional against the market's raw (unspread) mid/mark price,
// returning the quote proceeds and the base amount closed. Used by both the
// full (100%) and partial (partial_liquidation_close_percentage) paths.
func ClosePerpPositionAtMid(pos *user.PerpPosition, amm *market.AMM, percentagePPM uint32) (baseClosed, quoteProceeds *big.Int, err error) {
	if pos.BaseAssetAmount == nil || pos.BaseAssetAmount.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0), nil
	}
	price, err := amm.ReservePrice()
	if err != nil {
		return nil, nil, err
	}

	baseClosed = fixedpoint.MulDiv(new(big.Int).Abs(pos.BaseAssetAmount), big.NewInt(int64(percentagePPM)), fixedpoint.PercentagePrecisionBig)
	if pos.BaseAssetAmount.Sign() < 0 {
		baseClosed.Neg(baseClosed)
	}

	quoteProceeds = fixedpoint.MulDiv(new(big.Int).Abs(baseClosed), price, fixedpoint.BasePrecisionBig)
	if pos.BaseAssetAmount.Sign() > 0 {
		quoteProceeds = new(big.Int).Neg(quoteProceeds) // closing a long reports negative proceeds; the subtraction below then credits the quote balance.
	}

	pos.BaseAssetAmount = new(big.Int).Sub(pos.BaseAssetAmount, baseClosed)
	pos.QuoteAssetAmount = new(big.Int).Sub(nzBig(pos.QuoteAssetAmount), quoteProceeds)

	return baseClosed, quoteProceeds, nil
}

// Liquidate implements the liquidate operation of spec §4.10 and §6: it
// determines partial vs. full mode, closes the affected perp positions at
// mid, applies the penalty split, and returns the liquidator's and
// insurance vault's share. An account that is not eligible is rejected with
// dexerr.ErrSufficientCollateral. Emits one LiquidationRecord per closed position, the
// account-level penalty shared across all of them.
type Outcome struct {
	Mode             Mode
	LiquidatorReward *big.Int
	InsuranceReward  *big.Int
}

func Liquidate(u *user.User, perpMarkets map[uint16]*market.PerpMarket, spotMarkets map[uint16]*market.SpotMarket, oracleView oracle.View, marginRatioPartial uint32, now int64, sink events.Sink) (Outcome, error) {
	maintCalc, err := margin.Calculate(u, toMarketSet(perpMarkets), toSpotMarketSet(spotMarkets), oracleView, margin.Context{RequirementType: margin.Maintenance})
	if err != nil {
		return Outcome{}, err
	}

	totalNotional, notionalByMarket := perpNotionalByMarket(u, perpMarkets)
	ratio := MarginRatio(maintCalc, totalNotional)
	mode := DetermineMode(ratio, marginRatioPartial, marginRatioMaintenanceOf(perpMarkets, notionalByMarket, totalNotional))
	if mode == NotEligible {
		return Outcome{Mode: NotEligible}, dexerr.ErrSufficientCollateral
	}

	// The account-level penalty (applied once, to collateral remaining after
	// every position is closed) needs a single market's risk parameters; use
	// the position carrying the largest notional, tie-broken by market index,
	// so the choice is a function of the account's actual exposure rather
	// than Go's randomized map iteration order.
	dominant := dominantMarket(perpMarkets, notionalByMarket)
	penaltyNum, penaltyDen := int64(5), int64(100)
	liquidatorShareDen := int64(5)
	if dominant != nil {
		if mode == Partial {
			penaltyNum, penaltyDen = dominant.Risk.PartialLiquidationPenaltyNumerator, dominant.Risk.PartialLiquidationPenaltyDenominator
			liquidatorShareDen = dominant.Risk.PartialLiquidationLiquidatorShareDenom
		} else {
			penaltyNum, penaltyDen = dominant.Risk.FullLiquidationPenaltyNumerator, dominant.Risk.FullLiquidationPenaltyDenominator
			liquidatorShareDen = dominant.Risk.FullLiquidationLiquidatorShareDenom
		}
	}

	type closedPosition struct {
		marketIndex uint16
		baseClosed  *big.Int
	}
	var closed []closedPosition
	totalQuoteProceeds := big.NewInt(0)
	for i := range u.PerpPositions {
		pos := &u.PerpPositions[i]
		if !pos.IsOpen() {
			continue
		}
		pm, ok := perpMarkets[pos.MarketIndex]
		if !ok || pm == nil {
			continue
		}
		// Each position closes against its own market's close percentage,
		// never another market's.
		percentage := uint32(fixedpoint.PercentagePrecision)
		if mode == Partial {
			percentage = pm.Risk.PartialLiquidationClosePercentage
		}
		baseClosed, proceeds, err := ClosePerpPositionAtMid(pos, &pm.AMM, percentage)
		if err != nil {
			return Outcome{}, err
		}
		totalQuoteProceeds.Add(totalQuoteProceeds, proceeds)
		if baseClosed.Sign() != 0 {
			closed = append(closed, closedPosition{marketIndex: pos.MarketIndex, baseClosed: baseClosed})
		}
	}

	collateralAfter := new(big.Int).Add(maintCalc.TotalCollateral, totalQuoteProceeds)
	if collateralAfter.Sign() < 0 {
		collateralAfter.SetInt64(0)
	}
	penalty := fixedpoint.MulDiv(collateralAfter, big.NewInt(penaltyNum), big.NewInt(penaltyDen))
	liquidatorShare, insuranceShare := PenaltySplit(penalty, liquidatorShareDen)

	if sink != nil {
		for _, c := range closed {
			sink.EmitLiquidation(events.LiquidationRecord{
				Ts:                  now,
				User:                u.Authority,
				MarketIndex:         c.marketIndex,
				Amount:              c.baseClosed,
				PenaltyAtSettlement: penalty,
			})
		}
	}

	return Outcome{Mode: mode, LiquidatorReward: liquidatorShare, InsuranceReward: insuranceShare}, nil
}

func toMarketSet(m map[uint16]*market.PerpMarket) margin.MarketSet         { return margin.MarketSet(m) }
func toSpotMarketSet(m map[uint16]*market.SpotMarket) margin.SpotMarketSet { return margin.SpotMarketSet(m) }

// perpNotionalByMarket sums each open position's notional (spec §4.10's
// margin-ratio denominator) both account-wide and per market index, so
// downstream threshold selection can weight by each position's own
// contribution instead of picking one market arbitrarily.
func perpNotionalByMarket(u *user.User, markets map[uint16]*market.PerpMarket) (*big.Int, map[uint16]*big.Int) {
	total := big.NewInt(0)
	byMarket := make(map[uint16]*big.Int)
	for i := range u.PerpPositions {
		pos := &u.PerpPositions[i]
		if !pos.IsOpen() {
			continue
		}
		pm, ok := markets[pos.MarketIndex]
		if !ok || pm == nil {
			continue
		}
		notional, _, err := pm.AMM.CalculateBaseAssetValueAndPnl(pos.BaseAssetAmount, nzBig(pos.QuoteEntryAmount))
		if err != nil {
			continue
		}
		total.Add(total, notional)
		byMarket[pos.MarketIndex] = new(big.Int).Add(nzBig(byMarket[pos.MarketIndex]), notional)
	}
	return total, byMarket
}

// marginRatioMaintenanceOf derives the full-liquidation threshold as the
// notional-weighted average of MarginRatioMaintenance across the markets the
// account actually holds positions in (spec §4.10), rather than an arbitrary
// single market's value: the result is a pure function of the account's
// held notional and is independent of map iteration order.
func marginRatioMaintenanceOf(markets map[uint16]*market.PerpMarket, notionalByMarket map[uint16]*big.Int, totalNotional *big.Int) uint32 {
	if totalNotional == nil || totalNotional.Sign() == 0 {
		return 0
	}
	weighted := big.NewInt(0)
	for marketIndex, notional := range notionalByMarket {
		pm, ok := markets[marketIndex]
		if !ok || pm == nil || notional == nil {
			continue
		}
		weighted.Add(weighted, new(big.Int).Mul(notional, big.NewInt(int64(pm.Risk.MarginRatioMaintenance))))
	}
	weighted.Quo(weighted, totalNotional)
	if !weighted.IsInt64() || weighted.Int64() < 0 {
		return 0
	}
	if weighted.Int64() > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(weighted.Int64())
}

// dominantMarket picks the position carrying the largest notional, with
// ties broken by the lower market index, so the choice of which market's
// risk parameters govern the account-level penalty is deterministic rather
// than dependent on Go's randomized map iteration order.
func dominantMarket(markets map[uint16]*market.PerpMarket, notionalByMarket map[uint16]*big.Int) *market.PerpMarket {
	var best *market.PerpMarket
	var bestIndex uint16
	var bestNotional *big.Int
	for marketIndex, notional := range notionalByMarket {
		pm, ok := markets[marketIndex]
		if !ok || pm == nil || notional == nil {
			continue
		}
		if best == nil {
			best, bestIndex, bestNotional = pm, marketIndex, notional
			continue
		}
		cmp := notional.Cmp(bestNotional)
		if cmp > 0 || (cmp == 0 && marketIndex < bestIndex) {
			best, bestIndex, bestNotional = pm, marketIndex, notional
		}
	}
	return best
}

func nzBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
