package matching

import (
	"math/big"

	"dexcore/core/events"
	"dexcore/core/market"
	"dexcore/core/user"
	"dexcore/dexerr"
	"dexcore/pkg/fixedpoint"
	"dexcore/pkg/oracle"
)

// SpotFillRequest bundles fill_spot_order's parameters (spec §6, §4.6).
// Spot fulfillment mirrors the perp path but has no AMM side: matching is
// strictly maker-to-taker against a single priced candidate.
type SpotFillRequest struct {
	Clock      Clock
	OracleView oracle.View

	BaseMarket  *market.SpotMarket
	QuoteMarket *market.SpotMarket

	Taker           *user.User
	TakerOrderIndex int
	TakerStats      *user.UserStats

	Maker      *user.User
	MakerOrderIndex int
	MakerStats *user.UserStats

	Filler      *user.User
	FillerStats *user.UserStats

	MakerPrice *big.Int

	Sink         events.Sink
	NextRecordID func() uint64
}

// BorrowCapacity implements the borrow liquidity cap of spec §4.6: a fill
// that would increase borrowBalanceTokens on this market is capped at the
// smaller of 1/6 of (depositTokenTwap - borrowBalanceTokens) and the amount
// requested. utilizationCeiling zeroes the fill outright once crossed.
func BorrowCapacity(requested, depositTokenTwap, borrowBalanceTokens *big.Int, utilizationAfterPPM, utilizationCeilingPPM uint32) *big.Int {
	if utilizationCeilingPPM > 0 && utilizationAfterPPM > utilizationCeilingPPM {
		return big.NewInt(0)
	}
	headroom, err := fixedpoint.CheckedSubNonNegative(depositTokenTwap, borrowBalanceTokens)
	if err != nil {
		return big.NewInt(0)
	}
	cap := new(big.Int).Quo(headroom, big.NewInt(6))
	if requested.Cmp(cap) <= 0 {
		return new(big.Int).Set(requested)
	}
	return cap
}

// FillSpotOrder implements the spot fulfillment path of spec §4.6: a single
// maker/taker match, each side's base-market AND quote-market scaled_balance
// updated against each market's own current cumulative interest index, fees
// credited to the base market's fee pool.
func FillSpotOrder(req *SpotFillRequest) (*big.Int, error) {
	if req.BaseMarket == nil || req.QuoteMarket == nil {
		return nil, dexerr.ErrNilMarket
	}
	taker := &req.Taker.Orders[req.TakerOrderIndex]
	if taker.Status != user.OrderOpen {
		return nil, dexerr.ErrOrderNotOpen
	}
	maker := &req.Maker.Orders[req.MakerOrderIndex]
	if maker.Status != user.OrderOpen {
		return big.NewInt(0), nil
	}
	if maker.Direction == taker.Direction {
		return big.NewInt(0), nil
	}

	size := minBig(taker.RemainingBaseAssetAmount(), maker.RemainingBaseAssetAmount())
	if size.Sign() <= 0 {
		return big.NewInt(0), nil
	}

	takerPos, err := req.Taker.GetSpotPosition(taker.MarketIndex)
	if err != nil {
		return nil, err
	}
	if isBorrowIncreasing(takerPos, taker.Direction) {
		requested := size
		headroomTokens := req.BaseMarket.DepositTokenTwap
		borrowIndex := req.BaseMarket.CumulativeBorrowInterest
		if borrowIndex == nil || borrowIndex.Sign() == 0 {
			borrowIndex = fixedpoint.InterestIndexPrecisionBig
		}
		borrowTokens := fixedpoint.MulDiv(nz(req.BaseMarket.BorrowBalance), borrowIndex, fixedpoint.InterestIndexPrecisionBig)
		capped := BorrowCapacity(requested, headroomTokens, borrowTokens, req.BaseMarket.Utilization(), req.BaseMarket.OptimalUtilization)
		size = minBig(size, capped)
		if size.Sign() <= 0 {
			return big.NewInt(0), nil
		}
	}

	notional := fixedpoint.MulDiv(size, req.MakerPrice, fixedpoint.BasePrecisionBig)
	feeNumerator, feeDenominator := int64(5), int64(10_000)
	fee := fixedpoint.MulDiv(notional, big.NewInt(feeNumerator), big.NewInt(feeDenominator))

	updateScaledBalance(takerPos, req.BaseMarket, signedDelta(taker.Direction, size))
	makerPos, err := req.Maker.GetSpotPosition(maker.MarketIndex)
	if err != nil {
		return nil, err
	}
	updateScaledBalance(makerPos, req.BaseMarket, signedDelta(maker.Direction, size))

	takerQuotePos, err := req.Taker.GetSpotPosition(req.QuoteMarket.MarketIndex)
	if err != nil {
		return nil, err
	}
	updateScaledBalance(takerQuotePos, req.QuoteMarket, signedQuote(taker.Direction, notional, fee, false))
	makerQuotePos, err := req.Maker.GetSpotPosition(req.QuoteMarket.MarketIndex)
	if err != nil {
		return nil, err
	}
	updateScaledBalance(makerQuotePos, req.QuoteMarket, signedQuote(maker.Direction, notional, big.NewInt(0), false))

	taker.BaseAssetAmountFilled = new(big.Int).Add(nz(taker.BaseAssetAmountFilled), size)
	maker.BaseAssetAmountFilled = new(big.Int).Add(nz(maker.BaseAssetAmountFilled), size)
	if maker.RemainingBaseAssetAmount().Sign() == 0 {
		maker.Status = user.OrderFilled
	}
	if taker.RemainingBaseAssetAmount().Sign() == 0 {
		taker.Status = user.OrderFilled
	}

	req.BaseMarket.FeePoolBalance = new(big.Int).Add(nz(req.BaseMarket.FeePoolBalance), fee)
	req.TakerStats.RecordTakerVolume(notional)
	req.TakerStats.RecordFee(fee)
	if req.MakerStats != nil {
		req.MakerStats.RecordMakerVolume(notional)
	}

	if req.Sink != nil && size.Sign() > 0 {
		recordID := uint64(0)
		if req.NextRecordID != nil {
			recordID = req.NextRecordID()
		}
		d := events.Long
		if taker.Direction == user.Short {
			d = events.Short
		}
		req.Sink.EmitTrade(events.TradeRecord{
			Ts:              req.Clock.UnixTimestamp,
			RecordID:        recordID,
			UserAuthority:   req.Taker.Authority,
			Direction:       d,
			BaseAssetAmount: size,
			QuoteAssetAmount: notional,
			Fee:             fee,
			MarketIndex:     req.BaseMarket.MarketIndex,
		})
	}

	return size, nil
}

func isBorrowIncreasing(pos *user.SpotPosition, direction user.Direction) bool {
	if pos.BalanceType == user.Borrow {
		return true
	}
	return direction == user.Short && (pos.ScaledBalance == nil || pos.ScaledBalance.Sign() == 0)
}

// updateScaledBalance converts a signed token delta into the market's scaled
// units using its current cumulative interest index and applies it (spec
// §3: token amount = scaled_balance · cumulative_interest / PRECISION).
func updateScaledBalance(pos *user.SpotPosition, m *market.SpotMarket, tokenDelta *big.Int) {
	index := m.CumulativeDepositInterest
	if pos.BalanceType == user.Borrow {
		index = m.CumulativeBorrowInterest
	}
	if index == nil || index.Sign() == 0 {
		index = fixedpoint.InterestIndexPrecisionBig
	}
	scaledDelta := new(big.Int).Mul(tokenDelta, fixedpoint.InterestIndexPrecisionBig)
	scaledDelta.Quo(scaledDelta, index)
	pos.ScaledBalance = new(big.Int).Add(nz(pos.ScaledBalance), scaledDelta)
	if pos.ScaledBalance.Sign() < 0 {
		pos.BalanceType = user.Borrow
		pos.ScaledBalance.Neg(pos.ScaledBalance)
	}
}
