package matching

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

// Clock is the host-provided slot/timestamp pair (spec §6).
type Clock struct {
	Slot          uint64
	UnixTimestamp int64
}

// PerpFillRequest bundles the parameters of fill_perp_order (spec §6) into
// one "fill context" struct, per Design Notes §9: a helper that takes many
// individually-borrowed entities is grouped here while preserving that each
// entity is still mutated by exactly one owner (FillPerpOrder never reaches
// into a maker's User beyond the single position/order slot it touches).
type PerpFillRequest struct {
	Clock      Clock
	OracleView oracle.View

	Market          *market.PerpMarket
	QuoteSpotMarket *market.SpotMarket

	Taker           *user.User
	TakerOrderIndex int
	TakerStats      *user.UserStats

	Makers     []MakerCandidate
	MakerUsers map[string]*user.User  // keyed by MakerCandidate.MakerKey
	MakerStats map[string]*user.UserStats

	Filler      *user.User
	FillerStats *user.UserStats

	JITMakerOrderID int

	Sink          events.Sink
	NextRecordID  func() uint64
}

// FillPerpOrder implements fulfill_perp_order / …_with_match / …_with_amm
// (spec §4.5): it walks the sorted maker list and the AMM, repeatedly filling
// against whichever offers the taker a better price, until the taker order
// is filled, no better liquidity remains, or the fill is terminated by a
// size or margin guard. It returns the total base amount filled this call.
func FillPerpOrder(req *PerpFillRequest) (*big.Int, error) {
	if req.Market == nil {
		return nil, dexerr.ErrNilMarket
	}
	if req.Taker == nil {
		return nil, dexerr.ErrNilUser
	}
	taker := &req.Taker.Orders[req.TakerOrderIndex]
	if taker.Status != user.OrderOpen {
		return nil, dexerr.ErrOrderNotOpen
	}

	priceData, err := req.OracleView.GetPrice(req.Market.OracleKey)
	if err != nil {
		return nil, err
	}
	if priceData.Validity.BlocksMarginOps() {
		return nil, dexerr.ErrOracleInvalid
	}

	takerPos, err := req.Taker.GetPerpPosition(taker.MarketIndex)
	if err != nil {
		return nil, err
	}

	existingBase := takerPos.BaseAssetAmount
	secondsToExpiry := int64(0)
	if taker.MaxTs != 0 {
		secondsToExpiry = taker.MaxTs - req.Clock.UnixTimestamp
	}
	limitPrice, err := EffectiveLimitPrice(taker, req.Clock.Slot, &req.Market.AMM, priceData.Price, existingBase, secondsToExpiry)
	if err != nil {
		return nil, err
	}

	makerEntries, cancellations := SelectMakers(req.Makers, taker, req.Clock.UnixTimestamp, priceData.Price, req.Market.Risk.MarginRatioInitial, req.JITMakerOrderID)
	applyCancellations(req, cancellations)

	totalFilled := big.NewInt(0)
	makerIdx := 0
	iterations := 0
	maxIterations := len(makerEntries) + 1

	for taker.RemainingBaseAssetAmount().Sign() > 0 && iterations <= maxIterations {
		iterations++

		ammPrice, err := req.Market.AMM.AmmPriceAtLimit(toDirection(taker.Direction))
		if err != nil {
			return nil, err
		}

		var makerPrice *big.Int
		haveMaker := makerIdx < len(makerEntries)
		if haveMaker {
			makerPrice = makerEntries[makerIdx].Price
		}

		useMaker := false
		switch {
		case haveMaker && withinLimit(taker.Direction, makerPrice, limitPrice) && betterOrEqual(taker.Direction, makerPrice, ammPrice):
			useMaker = true
		case withinLimit(taker.Direction, ammPrice, limitPrice):
			useMaker = false
		default:
			// Neither source is reachable within the taker's limit.
			iterations = maxIterations + 1
			continue
		}

		if useMaker {
			filled, err := fillAgainstMaker(req, taker, takerPos, makerEntries[makerIdx], priceData)
			if err != nil {
				return nil, err
			}
			makerIdx++
			if filled.Sign() == 0 {
				continue
			}
			totalFilled.Add(totalFilled, filled)
		} else {
			filled, err := fillAgainstAMM(req, taker, takerPos, limitPrice, priceData)
			if err != nil {
				return nil, err
			}
			if filled.Sign() == 0 {
				break
			}
			totalFilled.Add(totalFilled, filled)
		}
	}

	if totalFilled.Sign() > 0 {
		remaining := taker.RemainingBaseAssetAmount()
		if remaining.Sign() == 0 {
			taker.Status = user.OrderFilled
		}
	}
	auctionEnded := taker.AuctionDuration > 0 && req.Clock.Slot >= taker.Slot+uint64(taker.AuctionDuration)
	if taker.RemainingBaseAssetAmount().Sign() > 0 && (taker.ImmediateOrCancel || auctionEnded) {
		taker.Status = user.OrderCanceled
	}

	return totalFilled, nil
}

func applyCancellations(req *PerpFillRequest, cancellations []Cancellation) {
	for _, c := range cancellations {
		makerUser, ok := req.MakerUsers[c.MakerKey]
		if !ok || makerUser == nil || c.OrderIndex >= len(makerUser.Orders) {
			continue
		}
		makerUser.Orders[c.OrderIndex].Status = user.OrderCanceled
		if c.CreditsFiller && req.FillerStats != nil {
			req.FillerStats.RecordFillerVolume(big.NewInt(0))
		}
	}
}

func withinLimit(direction user.Direction, candidate, limit *big.Int) bool {
	if candidate == nil || limit == nil {
		return false
	}
	if direction == user.Long {
		return candidate.Cmp(limit) <= 0
	}
	return candidate.Cmp(limit) >= 0
}

// betterOrEqual reports whether makerPrice is at least as good for the
// taker as ammPrice; ties favor the maker (spec §4.5 step c).
func betterOrEqual(direction user.Direction, makerPrice, ammPrice *big.Int) bool {
	if ammPrice == nil {
		return true
	}
	if direction == user.Long {
		return makerPrice.Cmp(ammPrice) <= 0
	}
	return makerPrice.Cmp(ammPrice) >= 0
}

func fillAgainstMaker(req *PerpFillRequest, taker *user.Order, takerPos *user.PerpPosition, entry MakerEntry, priceData oracle.PriceData) (*big.Int, error) {
	makerUser, ok := req.MakerUsers[entry.MakerKey]
	if !ok || makerUser == nil {
		return big.NewInt(0), nil
	}
	makerOrder := &makerUser.Orders[entry.OrderIndex]
	makerPos, err := makerUser.GetPerpPosition(makerOrder.MarketIndex)
	if err != nil {
		return nil, err
	}

	size := minBig(taker.RemainingBaseAssetAmount(), makerOrder.RemainingBaseAssetAmount())
	size = StandardizeBaseAssetAmount(size, req.Market.AMM.OrderStepSize)
	if size.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	takerDelta := signedDelta(taker.Direction, size)
	makerDelta := signedDelta(makerOrder.Direction, size)

	if err := checkTakerFillConstraints(req, taker, takerPos, takerDelta); err != nil {
		return nil, err
	}
	if err := checkFillMargin(req, req.Taker, takerPos, takerDelta, entry.Price, false); err != nil {
		return nil, err
	}
	if err := checkFillMargin(req, makerUser, makerPos, makerDelta, entry.Price, true); err != nil {
		return nil, err
	}

	notional := fixedpoint.MulDiv(size, entry.Price, fixedpoint.BasePrecisionBig)
	tier := req.Market.FeeTierFor(req.TakerStats.TakerVolume30D)
	takerFee := fixedpoint.MulDiv(notional, big.NewInt(tier.TakerFeeNumerator), big.NewInt(tier.TakerFeeDenominator))
	makerRebate := fixedpoint.MulDiv(notional, big.NewInt(tier.MakerRebateNumerator), big.NewInt(tier.MakerRebateDenominator))

	prevTakerBase := new(big.Int).Set(nz(takerPos.BaseAssetAmount))
	prevMakerBase := new(big.Int).Set(nz(makerPos.BaseAssetAmount))
	projectedLong, projectedShort := projectOpenInterest(&req.Market.AMM,
		[2]*big.Int{prevTakerBase, new(big.Int).Add(prevTakerBase, takerDelta)},
		[2]*big.Int{prevMakerBase, new(big.Int).Add(prevMakerBase, makerDelta)})
	if err := ValidateOpenInterest(projectedLong, projectedShort, req.Market.AMM.MaxOpenInterest); err != nil {
		return nil, err
	}
	netFee := new(big.Int).Sub(takerFee, makerRebate)
	totalFee, err := fixedpoint.CheckedAdd128(nz(req.Market.AMM.TotalFee), takerFee)
	if err != nil {
		return nil, err
	}
	totalFeeMinusDistributions, err := fixedpoint.CheckedAdd128(nz(req.Market.AMM.TotalFeeMinusDistributions), netFee)
	if err != nil {
		return nil, err
	}

	applyPositionFill(takerPos, takerDelta, signedQuote(taker.Direction, notional, takerFee, false))
	applyPositionFill(makerPos, makerDelta, signedQuote(makerOrder.Direction, notional, makerRebate, true))
	req.Market.AMM.BaseAssetAmountLong = projectedLong
	req.Market.AMM.BaseAssetAmountShort = projectedShort
	req.Market.AMM.TotalFee = totalFee
	req.Market.AMM.TotalFeeMinusDistributions = totalFeeMinusDistributions
	req.Market.AMM.NetRevenueSinceLastFunding = new(big.Int).Add(nz(req.Market.AMM.NetRevenueSinceLastFunding), netFee)

	taker.BaseAssetAmountFilled = new(big.Int).Add(nz(taker.BaseAssetAmountFilled), size)
	makerOrder.BaseAssetAmountFilled = new(big.Int).Add(nz(makerOrder.BaseAssetAmountFilled), size)
	if makerOrder.RemainingBaseAssetAmount().Sign() == 0 {
		makerOrder.Status = user.OrderFilled
	}

	req.TakerStats.RecordTakerVolume(notional)
	req.TakerStats.RecordFee(takerFee)
	if stats, ok := req.MakerStats[entry.MakerKey]; ok && stats != nil {
		stats.RecordMakerVolume(notional)
		stats.RecordFee(new(big.Int).Neg(makerRebate))
	}

	creditFiller(req, takerFee)
	emitTrade(req, req.Taker.Authority, taker.Direction, size, notional, takerFee)
	emitTrade(req, makerUser.Authority, makerOrder.Direction, size, notional, new(big.Int).Neg(makerRebate))

	return size, nil
}

func fillAgainstAMM(req *PerpFillRequest, taker *user.Order, takerPos *user.PerpPosition, limitPrice *big.Int, priceData oracle.PriceData) (*big.Int, error) {
	remaining := taker.RemainingBaseAssetAmount()
	if remaining.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	amountIn := remaining
	if toDirection(taker.Direction) == fixedpoint.Long {
		notionalCap := fixedpoint.MulDiv(remaining, limitPrice, fixedpoint.BasePrecisionBig)
		amountIn = notionalCap
	}

	result, err := req.Market.AMM.Swap(amountIn, toDirection(taker.Direction))
	if err != nil {
		return big.NewInt(0), nil // AMM cannot offer more liquidity within limits; caller's loop terminates.
	}

	size := new(big.Int).Abs(result.BaseDelta)
	size = StandardizeBaseAssetAmount(size, req.Market.AMM.OrderStepSize)
	if size.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	takerDelta := signedDelta(taker.Direction, size)
	if err := checkTakerFillConstraints(req, taker, takerPos, takerDelta); err != nil {
		return nil, err
	}
	if err := checkFillMargin(req, req.Taker, takerPos, takerDelta, result.AvgExecPrice, false); err != nil {
		return nil, err
	}

	notional := new(big.Int).Abs(result.QuoteDelta)
	tier := req.Market.FeeTierFor(req.TakerStats.TakerVolume30D)
	takerFee := fixedpoint.MulDiv(notional, big.NewInt(tier.TakerFeeNumerator), big.NewInt(tier.TakerFeeDenominator))

	prevTakerBase := new(big.Int).Set(nz(takerPos.BaseAssetAmount))
	projectedLong, projectedShort := projectOpenInterest(&req.Market.AMM,
		[2]*big.Int{prevTakerBase, new(big.Int).Add(prevTakerBase, takerDelta)})
	if err := ValidateOpenInterest(projectedLong, projectedShort, req.Market.AMM.MaxOpenInterest); err != nil {
		return nil, err
	}
	totalFee, err := fixedpoint.CheckedAdd128(nz(req.Market.AMM.TotalFee), takerFee)
	if err != nil {
		return nil, err
	}
	totalFeeMinusDistributions, err := fixedpoint.CheckedAdd128(nz(req.Market.AMM.TotalFeeMinusDistributions), takerFee)
	if err != nil {
		return nil, err
	}

	applyPositionFill(takerPos, takerDelta, signedQuote(taker.Direction, notional, takerFee, false))
	taker.BaseAssetAmountFilled = new(big.Int).Add(nz(taker.BaseAssetAmountFilled), size)
	req.Market.AMM.BaseAssetAmountLong = projectedLong
	req.Market.AMM.BaseAssetAmountShort = projectedShort

	req.Market.AMM.TotalFee = totalFee
	req.Market.AMM.TotalFeeMinusDistributions = totalFeeMinusDistributions
	req.Market.AMM.NetRevenueSinceLastFunding = new(big.Int).Add(nz(req.Market.AMM.NetRevenueSinceLastFunding), takerFee)
	req.Market.AMM.BaseAssetAmountWithAMM = new(big.Int).Sub(nz(req.Market.AMM.BaseAssetAmountWithAMM), takerDelta)

	req.TakerStats.RecordTakerVolume(notional)
	req.TakerStats.RecordFee(takerFee)
	creditFiller(req, takerFee)
	emitTrade(req, req.Taker.Authority, taker.Direction, size, notional, takerFee)

	return size, nil
}

// checkTakerFillConstraints enforces the two taker-side fill guards that sit
// outside margin accounting: reduce_only (§4.5, the order never moves the
// position further from zero) and the market-wide oracle price band (§4.7,
// a risk-increasing fill is rejected outright once mark has diverged from
// the oracle's 5-minute TWAP beyond the market's configured threshold; a
// risk-reducing fill is still allowed if its size clears the minimum ratio).
func checkTakerFillConstraints(req *PerpFillRequest, taker *user.Order, pos *user.PerpPosition, delta *big.Int) error {
	currentBase := nz(pos.BaseAssetAmount)
	if err := EnforceReduceOnly(taker.ReduceOnly, currentBase, delta); err != nil {
		return err
	}

	mark, err := req.Market.AMM.ReservePrice()
	if err != nil {
		return err
	}
	risk := req.Market.Risk
	return ValidateFillAgainstPriceBand(mark, req.Market.AMM.LastOraclePriceTwap5Min, risk.MarkOraclePercentDivergence,
		new(big.Int).Abs(delta), req.Market.AMM.OrderStepSize, isRiskReducing(currentBase, delta), risk.RiskReducingFillRatioMin)
}

// isRiskReducing reports whether delta moves the position toward zero
// (spec §4.7's "risk-reducing fill" test, shared with EnforceReduceOnly's
// own toward-zero comparison).
func isRiskReducing(currentBase, delta *big.Int) bool {
	if currentBase.Sign() == 0 {
		return false
	}
	newBase := new(big.Int).Add(currentBase, delta)
	return new(big.Int).Abs(newBase).Cmp(new(big.Int).Abs(currentBase)) <= 0
}

// checkFillMargin enforces the per-fill collateral guard of spec §4.5: the
// account, with delta applied at execPrice, must stay above Initial margin,
// or above Maintenance when the fill strictly reduces risk (isMaker selects
// Fill-mode margin, spec §4.8).
func checkFillMargin(req *PerpFillRequest, u *user.User, pos *user.PerpPosition, delta, execPrice *big.Int, isMaker bool) error {
	rt := margin.Initial
	if isMaker {
		rt = margin.SelectFillMarginType(pos.BaseAssetAmount, delta)
	} else if margin.SelectFillMarginType(pos.BaseAssetAmount, delta) == margin.Maintenance {
		rt = margin.Maintenance
	}

	perpMarkets := margin.MarketSet{req.Market.MarketIndex: req.Market}
	spotMarkets := margin.SpotMarketSet{}
	if req.QuoteSpotMarket != nil {
		spotMarkets[req.QuoteSpotMarket.MarketIndex] = req.QuoteSpotMarket
	}

	// Evaluate the account as it stands after this fill: a copy of u whose
	// touched position has delta applied at execPrice.
	projected := *u
	for i := range u.PerpPositions {
		if &u.PerpPositions[i] == pos {
			quoteDelta := fixedpoint.MulDiv(new(big.Int).Neg(delta), execPrice, fixedpoint.BasePrecisionBig)
			applyPositionFill(&projected.PerpPositions[i], delta, quoteDelta)
		}
	}

	calc, err := margin.Calculate(&projected, perpMarkets, spotMarkets, req.OracleView, margin.Context{RequirementType: rt})
	if err != nil {
		return err
	}
	if !calc.MeetsRequirement() {
		return dexerr.ErrInsufficientCollateral
	}
	return nil
}

func creditFiller(req *PerpFillRequest, takerFee *big.Int) {
	if req.Filler == nil || req.FillerStats == nil || takerFee == nil || takerFee.Sign() <= 0 {
		return
	}
	num, den := req.Market.FillerRewardNumerator, req.Market.FillerRewardDenominator
	if den <= 0 {
		num, den = 1, 10
	}
	reward := fixedpoint.MulDiv(takerFee, big.NewInt(num), big.NewInt(den))
	req.FillerStats.RecordFillerVolume(reward)
}

func emitTrade(req *PerpFillRequest, authority string, direction user.Direction, base, quote, fee *big.Int) {
	if req.Sink == nil || base.Sign() == 0 {
		return
	}
	recordID := uint64(0)
	if req.NextRecordID != nil {
		recordID = req.NextRecordID()
	}
	d := events.Long
	if direction == user.Short {
		d = events.Short
	}
	req.Sink.EmitTrade(events.TradeRecord{
		Ts:              req.Clock.UnixTimestamp,
		RecordID:        recordID,
		UserAuthority:   authority,
		Direction:       d,
		BaseAssetAmount: base,
		QuoteAssetAmount: quote,
		Fee:             fee,
		MarketIndex:     req.Market.MarketIndex,
	})
}

func applyPositionFill(pos *user.PerpPosition, baseDelta, quoteDelta *big.Int) {
	pos.BaseAssetAmount = new(big.Int).Add(nz(pos.BaseAssetAmount), baseDelta)
	pos.QuoteAssetAmount = new(big.Int).Add(nz(pos.QuoteAssetAmount), quoteDelta)
	if baseDelta.Sign() > 0 {
		pos.QuoteEntryAmount = new(big.Int).Sub(nz(pos.QuoteEntryAmount), quoteDelta)
	} else {
		pos.QuoteEntryAmount = new(big.Int).Add(nz(pos.QuoteEntryAmount), quoteDelta)
	}
}

// projectOpenInterest computes what the market's aggregate long/short
// open-interest totals would become if each (prevBase, newBase) position
// move in moves were applied, without mutating the AMM. Callers validate
// the projection against max_open_interest before committing any position
// mutation, so a rejected fill never leaves partial state (spec §7). Per
// spec §9's open question on max_open_interest, this runs only at fill time
// (never at place_order), so a resting post-only order's reservation
// against OI stays inconsistent with the source on purpose.
func projectOpenInterest(amm *market.AMM, moves ...[2]*big.Int) (long, short *big.Int) {
	long = new(big.Int).Set(nz(amm.BaseAssetAmountLong))
	short = new(big.Int).Set(nz(amm.BaseAssetAmountShort))
	for _, move := range moves {
		prevLong, prevShort := splitOI(move[0])
		newLong, newShort := splitOI(move[1])
		long.Add(long, new(big.Int).Sub(newLong, prevLong))
		short.Add(short, new(big.Int).Sub(newShort, prevShort))
	}
	return long, short
}

func splitOI(base *big.Int) (*big.Int, *big.Int) {
	if base == nil || base.Sign() == 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	if base.Sign() > 0 {
		return new(big.Int).Set(base), big.NewInt(0)
	}
	return big.NewInt(0), new(big.Int).Set(base)
}

func signedDelta(direction user.Direction, size *big.Int) *big.Int {
	if direction == user.Short {
		return new(big.Int).Neg(size)
	}
	return new(big.Int).Set(size)
}

// signedQuote derives the signed quote-balance delta for a fill: a taker
// going long pays notional+fee (negative quote delta); a maker receiving a
// rebate is credited (isRebate inverts the fee's sign contribution).
func signedQuote(direction user.Direction, notional, fee *big.Int, isRebate bool) *big.Int {
	feeSigned := new(big.Int).Set(fee)
	if isRebate {
		feeSigned.Neg(feeSigned)
	}
	if direction == user.Long {
		return new(big.Int).Neg(new(big.Int).Add(notional, feeSigned))
	}
	return new(big.Int).Sub(notional, feeSigned)
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) <= 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

func nz(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
