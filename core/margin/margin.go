// Package margin implements the collateral and risk calculator of spec §4.8,
// grounded on native/lending.Engine's positionHealthy health-factor check
// (engine.go) generalized from a single-collateral/single-debt health factor
// to the multi-spot/multi-perp summation the spec requires, with IMF scaling
// and strict-TWAP pricing folded in.
package margin

import (
	"math/big"

	"dexcore/core/market"
	"dexcore/core/user"
	"dexcore/dexerr"
	"dexcore/pkg/fixedpoint"
	"dexcore/pkg/oracle"
)

// RequirementType selects which margin threshold a calculation targets.
type RequirementType int8

const (
	Initial RequirementType = iota
	Maintenance
	Fill
)

// Context parameterizes one margin calculation (spec §4.8).
type Context struct {
	RequirementType  RequirementType
	Strict           bool
	LiquidationBuffer uint32 // MARGIN_PRECISION; carried on the context, not read by Calculate
}

// Calculation is the output of Calculate: the summed requirement and
// collateral across every position and open order (spec §4.8).
type Calculation struct {
	MarginRequirement        *big.Int // u128, always >= 0
	TotalCollateral          *big.Int // i128, signed
	NumSpotLiabilities       int
	NumPerpLiabilities       int
	WithPerpIsolatedLiability bool
}

// MarketSet and SpotMarketSet are the read views the calculator walks,
// indexed exactly as spec §4.8 step-zero mandates: spot markets by index,
// then perp markets by index, so the result is reproducible under replay.
type MarketSet map[uint16]*market.PerpMarket
type SpotMarketSet map[uint16]*market.SpotMarket

// Calculate computes a Calculation for u under ctx, deterministically
// iterating spot positions by market index and then perp positions by
// market index (spec §4.8).
func Calculate(u *user.User, perpMarkets MarketSet, spotMarkets SpotMarketSet, oracleView oracle.View, ctx Context) (Calculation, error) {
	if u == nil {
		return Calculation{}, dexerr.ErrNilUser
	}
	if oracleView == nil {
		return Calculation{}, dexerr.ErrNilOracle
	}

	calc := Calculation{
		MarginRequirement: big.NewInt(0),
		TotalCollateral:   big.NewInt(0),
	}

	spotIndexes := sortedSpotIndexes(u)
	for _, idx := range spotIndexes {
		pos := u.FindSpotPosition(idx)
		if pos == nil || !pos.IsOpen() {
			continue
		}
		sm, ok := spotMarkets[idx]
		if !ok || sm == nil {
			return Calculation{}, dexerr.ErrNilMarket
		}
		if err := accumulateSpot(&calc, pos, sm, oracleView, ctx); err != nil {
			return Calculation{}, err
		}
	}

	perpIndexes := sortedPerpIndexes(u)
	for _, idx := range perpIndexes {
		pos := u.FindPerpPosition(idx)
		if pos == nil {
			continue
		}
		pm, ok := perpMarkets[idx]
		if !ok || pm == nil {
			return Calculation{}, dexerr.ErrNilMarket
		}
		if err := accumulatePerp(&calc, u, pos, pm, oracleView, ctx); err != nil {
			return Calculation{}, err
		}
	}

	return calc, nil
}

func sortedSpotIndexes(u *user.User) []uint16 {
	var out []uint16
	for i := range u.SpotPositions {
		p := &u.SpotPositions[i]
		if p.IsOpen() || p.OpenOrders > 0 {
			out = append(out, p.MarketIndex)
		}
	}
	return sortUint16(out)
}

func sortedPerpIndexes(u *user.User) []uint16 {
	var out []uint16
	for i := range u.PerpPositions {
		p := &u.PerpPositions[i]
		if p.IsOpen() || p.OpenOrders > 0 {
			out = append(out, p.MarketIndex)
		}
	}
	return sortUint16(out)
}

func sortUint16(in []uint16) []uint16 {
	for i := 1; i < len(in); i++ {
		for j := i; j > 0 && in[j-1] > in[j]; j-- {
			in[j-1], in[j] = in[j], in[j-1]
		}
	}
	return in
}

// strictPrice returns the oracle price used for valuation: the plain
// current price, or the min/max against the 5-minute TWAP when ctx.Strict,
// choosing min for the liability side and max for the asset side (spec
// §4.8 step 1).
func strictPrice(data oracle.PriceData, strict, liabilitySide bool) *big.Int {
	if !strict || data.TWAP5Min == nil {
		return data.Price
	}
	if liabilitySide {
		if data.TWAP5Min.Cmp(data.Price) < 0 {
			return data.TWAP5Min
		}
		return data.Price
	}
	if data.TWAP5Min.Cmp(data.Price) > 0 {
		return data.TWAP5Min
	}
	return data.Price
}

func accumulateSpot(calc *Calculation, pos *user.SpotPosition, sm *market.SpotMarket, oracleView oracle.View, ctx Context) error {
	priceData, err := oracleView.GetPrice(sm.OracleKey)
	if err != nil {
		return err
	}
	if priceData.Validity.BlocksMarginOps() {
		return dexerr.ErrOracleInvalid
	}

	isLiability := pos.BalanceType == user.Borrow
	price := strictPrice(priceData, ctx.Strict, isLiability)

	cumulativeInterest := sm.CumulativeDepositInterest
	if isLiability {
		cumulativeInterest = sm.CumulativeBorrowInterest
	}
	tokenAmount := pos.TokenAmount(cumulativeInterest, fixedpoint.InterestIndexPrecisionBig)
	notional := fixedpoint.MulDiv(tokenAmount, price, fixedpoint.PricePrecisionBig)

	assetWeight, liabilityWeight := weightsFor(sm.Weights, ctx.RequirementType)
	weight := assetWeight
	if isLiability {
		weight = liabilityWeight
	}
	weight = applySpotIMF(weight, notional, sm.IMFFactor, isLiability)

	weighted := fixedpoint.MulDiv(notional, big.NewInt(int64(weight)), fixedpoint.MarginPrecisionBig)

	if isLiability {
		calc.MarginRequirement = new(big.Int).Add(calc.MarginRequirement, weighted)
		calc.NumSpotLiabilities++
	} else {
		calc.TotalCollateral = new(big.Int).Add(calc.TotalCollateral, weighted)
	}
	return nil
}

func weightsFor(w market.AssetWeights, rt RequirementType) (assetWeight, liabilityWeight uint32) {
	if rt == Maintenance {
		return w.MaintenanceAssetWeight, w.MaintenanceLiabilityWeight
	}
	return w.InitialAssetWeight, w.InitialLiabilityWeight
}

// applySpotIMF scales the weight down (asset side) or up (liability side)
// once notional exceeds the IMF threshold, per spec §4.8 step 2, reusing
// the same sqrt-kink curve as the perp path (see imf.go).
func applySpotIMF(weight uint32, notional, imfFactor *big.Int, isLiability bool) uint32 {
	if imfFactor == nil || imfFactor.Sign() <= 0 {
		return weight
	}
	scaled := imfScaledWeight(notional, imfFactor)
	if isLiability {
		sum := uint64(weight) + uint64(scaled)
		if sum > fixedpoint.MarginPrecision {
			return uint32(fixedpoint.MarginPrecision)
		}
		return uint32(sum)
	}
	if uint64(scaled) >= uint64(weight) {
		return 0
	}
	return weight - scaled
}

func accumulatePerp(calc *Calculation, u *user.User, pos *user.PerpPosition, pm *market.PerpMarket, oracleView oracle.View, ctx Context) error {
	priceData, err := oracleView.GetPrice(pm.OracleKey)
	if err != nil {
		return err
	}
	if priceData.Validity.BlocksMarginOps() {
		return dexerr.ErrOracleInvalid
	}

	isLiability := pos.IsOpen()
	price := strictPrice(priceData, ctx.Strict, true)
	if !isLiability {
		price = priceData.Price
	}

	if pos.IsOpen() {
		notional, pnl, err := pm.AMM.CalculateBaseAssetValueAndPnl(pos.BaseAssetAmount, pos.QuoteEntryAmount)
		if err != nil {
			return err
		}
		calc.TotalCollateral = new(big.Int).Add(calc.TotalCollateral, pnl)

		marginRatio := marginRatioFor(pm, ctx.RequirementType, u.MaxMarginRatio)
		marginRatio = applyPerpIMF(marginRatio, notional, pm.Risk.IMFFactor)

		requirement := fixedpoint.MulDiv(notional, big.NewInt(int64(marginRatio)), fixedpoint.MarginPrecisionBig)
		calc.MarginRequirement = new(big.Int).Add(calc.MarginRequirement, requirement)
		calc.NumPerpLiabilities++
	}

	if pos.OpenOrders > 0 {
		worst := worstCaseOrderNotional(pos, price)
		if worst.Sign() > 0 {
			marginRatio := marginRatioFor(pm, ctx.RequirementType, u.MaxMarginRatio)
			orderRequirement := fixedpoint.MulDiv(worst, big.NewInt(int64(marginRatio)), fixedpoint.MarginPrecisionBig)
			calc.MarginRequirement = new(big.Int).Add(calc.MarginRequirement, orderRequirement)
		}
	}
	return nil
}

// worstCaseOrderNotional values open orders at the larger of the
// long-side and short-side worst-case fill, per spec §4.8 step 3.
func worstCaseOrderNotional(pos *user.PerpPosition, price *big.Int) *big.Int {
	base := pos.BaseAssetAmount
	if base == nil {
		base = big.NewInt(0)
	}
	bids := pos.OpenBids
	if bids == nil {
		bids = big.NewInt(0)
	}
	asks := pos.OpenAsks
	if asks == nil {
		asks = big.NewInt(0)
	}
	longWorst := new(big.Int).Abs(new(big.Int).Add(base, bids))
	shortWorst := new(big.Int).Abs(new(big.Int).Sub(base, asks))
	worstBase := longWorst
	if shortWorst.Cmp(worstBase) > 0 {
		worstBase = shortWorst
	}
	return fixedpoint.MulDiv(worstBase, price, fixedpoint.BasePrecisionBig)
}

// marginRatioFor selects the market's margin ratio for rt, then applies the
// user's custom leverage cap (spec §4.8 step 4): the effective initial
// ratio is the larger (stricter) of the market default and the user's cap.
func marginRatioFor(pm *market.PerpMarket, rt RequirementType, userMaxMarginRatio uint32) uint32 {
	switch rt {
	case Maintenance:
		return pm.Risk.MarginRatioMaintenance
	case Fill:
		return pm.EffectiveMarginRatioInitial(userMaxMarginRatio)
	default:
		return pm.EffectiveMarginRatioInitial(userMaxMarginRatio)
	}
}

// applyPerpIMF replaces marginRatio with the sqrt-kink IMF-scaled ratio once
// notional exceeds the threshold implied by imfFactor (spec §4.8 step 2,
// SPEC_FULL.md §D).
func applyPerpIMF(marginRatio uint32, notional, imfFactor *big.Int) uint32 {
	if imfFactor == nil || imfFactor.Sign() <= 0 {
		return marginRatio
	}
	scaled := imfScaledWeight(notional, imfFactor)
	sum := uint64(marginRatio) + uint64(scaled)
	if sum > fixedpoint.MarginPrecision {
		return uint32(fixedpoint.MarginPrecision)
	}
	return uint32(sum)
}

// SelectFillMarginType implements select_margin_type_for_perp_maker (spec
// §4.8): Maintenance when the fill strictly reduces |position| without
// flipping its sign, else Initial.
func SelectFillMarginType(currentBase, fillDelta *big.Int) RequirementType {
	if currentBase == nil || currentBase.Sign() == 0 || fillDelta == nil {
		return Initial
	}
	newBase := new(big.Int).Add(currentBase, fillDelta)
	if newBase.Sign() == 0 {
		return Maintenance
	}
	sameSign := (currentBase.Sign() > 0) == (newBase.Sign() > 0)
	if !sameSign {
		return Initial
	}
	if new(big.Int).Abs(newBase).Cmp(new(big.Int).Abs(currentBase)) < 0 {
		return Maintenance
	}
	return Initial
}

// MeetsRequirement reports margin_requirement(user) <= total_collateral(user)
// (spec §8).
func (c Calculation) MeetsRequirement() bool {
	return c.MarginRequirement.Cmp(c.TotalCollateral) <= 0
}
