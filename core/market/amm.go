// Package market models the AMM, perp, and spot market state of spec §3/§4.1,
// adapted from the accounting shape of native/lending.Market (supply/borrow
// indices, reserve factor, last-update timestamps) generalized to a
// constant-product perpetual curve instead of a lending pool.
package market

import (
	"math/big"

	"dexcore/dexerr"
	"dexcore/pkg/fixedpoint"
)

// AMM is the constant-product pair backing a PerpMarket, spec §3.
type AMM struct {
	BaseAssetReserve  *big.Int
	QuoteAssetReserve *big.Int
	SqrtK             *big.Int
	PegMultiplier     *big.Int

	BidBaseAssetReserve  *big.Int
	BidQuoteAssetReserve *big.Int
	AskBaseAssetReserve  *big.Int
	AskQuoteAssetReserve *big.Int

	BaseSpread  uint32 // fraction of PercentagePrecision
	LongSpread  uint32
	ShortSpread uint32

	CumulativeFundingRate      *big.Int // i128
	CumulativeFundingRateLong  *big.Int
	CumulativeFundingRateShort *big.Int
	LastFundingRateTs          int64

	CumulativeRepegRebateLong  *big.Int // u128, lazily claimed on next funding settlement
	CumulativeRepegRebateShort *big.Int

	LastMarkPriceTwap    *big.Int
	LastBidPriceTwap     *big.Int
	LastAskPriceTwap     *big.Int
	LastMarkPriceTwap5Min *big.Int
	LastBidPriceTwap5Min  *big.Int
	LastAskPriceTwap5Min  *big.Int
	LastOraclePriceTwap5Min *big.Int
	LastTwapTs           int64

	TotalFee                    *big.Int
	TotalFeeMinusDistributions  *big.Int
	NetRevenueSinceLastFunding  *big.Int

	BaseAssetAmountLong    *big.Int // i64-domain, stored as big.Int
	BaseAssetAmountShort   *big.Int
	BaseAssetAmountWithAMM *big.Int
	QuoteAssetAmount       *big.Int

	OrderStepSize          *big.Int
	OrderTickSize          *big.Int
	MinOrderSize           *big.Int
	MaxFillReserveFraction uint32
	MaxSlippageRatio       uint32
	MaxOpenInterest        *big.Int

	MinBaseAssetReserve *big.Int
	MaxBaseAssetReserve *big.Int

	FundingPeriod int64
}

func (a *AMM) reserves() (fixedpoint.Reserves, error) {
	return fixedpoint.NewReserves(a.BaseAssetReserve, a.QuoteAssetReserve)
}

// ReservePrice returns the raw (unspread) mark price.
func (a *AMM) ReservePrice() (*big.Int, error) {
	r, err := a.reserves()
	if err != nil {
		return nil, err
	}
	return fixedpoint.ReservePrice(r, a.PegMultiplier)
}

// UpdateSpreadReserves recomputes the bid/ask spread reserves from the raw
// reserves, and the bid/ask prices derived from them (spec §4.1).
func (a *AMM) UpdateSpreadReserves() error {
	r, err := a.reserves()
	if err != nil {
		return err
	}
	bid, ask, err := fixedpoint.SpreadReserves(r, a.LongSpread, a.ShortSpread)
	if err != nil {
		return err
	}
	a.BidBaseAssetReserve = bid.Base.ToBig()
	a.BidQuoteAssetReserve = bid.Quote.ToBig()
	a.AskBaseAssetReserve = ask.Base.ToBig()
	a.AskQuoteAssetReserve = ask.Quote.ToBig()
	return nil
}

// BidAskPrice returns the spread-adjusted bid and ask prices.
func (a *AMM) BidAskPrice() (bid, ask *big.Int, err error) {
	bidRes, err := fixedpoint.NewReserves(a.BidBaseAssetReserve, a.BidQuoteAssetReserve)
	if err != nil {
		return nil, nil, err
	}
	askRes, err := fixedpoint.NewReserves(a.AskBaseAssetReserve, a.AskQuoteAssetReserve)
	if err != nil {
		return nil, nil, err
	}
	bid, err = fixedpoint.ReservePrice(bidRes, a.PegMultiplier)
	if err != nil {
		return nil, nil, err
	}
	ask, err = fixedpoint.ReservePrice(askRes, a.PegMultiplier)
	if err != nil {
		return nil, nil, err
	}
	return bid, ask, nil
}

// Swap executes a constant-product swap against the spread-adjusted side of
// the curve appropriate for the taker's direction (a taker going long buys
// against the ask reserves; a taker going short sells into the bid
// reserves), enforcing the max_fill_reserve_fraction guard, and commits the
// resulting reserves back onto the AMM.
func (a *AMM) Swap(amountIn *big.Int, direction fixedpoint.Direction) (fixedpoint.SwapResult, error) {
	var before fixedpoint.Reserves
	var err error
	if direction == fixedpoint.Long {
		before, err = fixedpoint.NewReserves(a.AskBaseAssetReserve, a.AskQuoteAssetReserve)
	} else {
		before, err = fixedpoint.NewReserves(a.BidBaseAssetReserve, a.BidQuoteAssetReserve)
	}
	if err != nil {
		return fixedpoint.SwapResult{}, err
	}

	result, err := fixedpoint.SwapOutBaseAssetAmount(before, amountIn, direction)
	if err != nil {
		return fixedpoint.SwapResult{}, err
	}
	if err := fixedpoint.CheckFillReserveFraction(before.Base.ToBig(), result.NewReserves.Base.ToBig(), a.MaxFillReserveFraction); err != nil {
		return fixedpoint.SwapResult{}, err
	}

	// Re-derive the raw reserves by applying the same signed base/quote
	// delta the swap produced against the spread-adjusted side: the raw
	// pool gives up exactly what the taker received (and vice versa).
	a.BaseAssetReserve = new(big.Int).Sub(a.BaseAssetReserve, result.BaseDelta)
	a.QuoteAssetReserve = new(big.Int).Sub(a.QuoteAssetReserve, result.QuoteDelta)
	if a.BaseAssetReserve.Sign() <= 0 || a.QuoteAssetReserve.Sign() <= 0 {
		return fixedpoint.SwapResult{}, dexerr.ErrMath
	}
	if a.MinBaseAssetReserve != nil && a.BaseAssetReserve.Cmp(a.MinBaseAssetReserve) < 0 {
		return fixedpoint.SwapResult{}, dexerr.ErrSlippageOutsideLimit
	}
	if a.MaxBaseAssetReserve != nil && a.BaseAssetReserve.Cmp(a.MaxBaseAssetReserve) > 0 {
		return fixedpoint.SwapResult{}, dexerr.ErrSlippageOutsideLimit
	}
	if err := a.UpdateSpreadReserves(); err != nil {
		return fixedpoint.SwapResult{}, err
	}
	return result, nil
}

// AmmPriceAtLimit returns the AMM's current spread-adjusted ask for a Long
// taker or bid for a Short taker (spec §4.5 step (a)). It takes neither the
// taker's limit price nor the slippage bound into account. It does not
// mutate AMM state.
func (a *AMM) AmmPriceAtLimit(direction fixedpoint.Direction) (*big.Int, error) {
	bid, ask, err := a.BidAskPrice()
	if err != nil {
		return nil, err
	}
	if direction == fixedpoint.Long {
		return ask, nil
	}
	return bid, nil
}

// GetFallbackPrice derives the post-auction fallback limit price for a
// market/oracle order with no explicit price, widening from the oracle price
// toward the AMM's TWAP bid/ask based on requested depth and time-to-expiry
// (spec §4.3).
func (a *AMM) GetFallbackPrice(direction fixedpoint.Direction, existingBase, oraclePrice *big.Int, secondsToExpiry int64) *big.Int {
	twap := a.LastAskPriceTwap
	if direction == fixedpoint.Short {
		twap = a.LastBidPriceTwap
	}
	if twap == nil || oraclePrice == nil {
		return oraclePrice
	}

	// The more time remains before expiry, or the larger the existing
	// unfilled size, the more of the gap to the AMM TWAP is conceded.
	depthWeight := int64(1)
	if existingBase != nil && a.OrderStepSize != nil && a.OrderStepSize.Sign() > 0 {
		steps := new(big.Int).Quo(new(big.Int).Abs(existingBase), a.OrderStepSize)
		if steps.IsInt64() {
			depthWeight += steps.Int64()
		}
		if depthWeight > 10 {
			depthWeight = 10
		}
	}
	timeWeight := secondsToExpiry
	if timeWeight < 0 {
		timeWeight = 0
	}
	if timeWeight > 60 {
		timeWeight = 60
	}
	weightPPM := (depthWeight*10_000 + timeWeight*1_000)
	if weightPPM > fixedpoint.PercentagePrecision {
		weightPPM = fixedpoint.PercentagePrecision
	}

	gap := new(big.Int).Sub(twap, oraclePrice)
	weighted := fixedpoint.MulDiv(gap, big.NewInt(weightPPM), big.NewInt(fixedpoint.PercentagePrecision))
	return new(big.Int).Add(oraclePrice, weighted)
}

// CalculateBaseAssetValueAndPnl prices baseAmount at the current AMM mark
// and derives unrealized PnL versus quoteEntryAmount (spec §4.1). A positive
// baseAmount is a long exposure.
func (a *AMM) CalculateBaseAssetValueAndPnl(baseAmount, quoteEntryAmount *big.Int) (notional *big.Int, pnl *big.Int, err error) {
	price, err := a.ReservePrice()
	if err != nil {
		return nil, nil, err
	}
	notional = fixedpoint.MulDiv(new(big.Int).Abs(baseAmount), price, fixedpoint.BasePrecisionBig)
	if baseAmount.Sign() >= 0 {
		pnl = new(big.Int).Sub(notional, quoteEntryAmount)
	} else {
		pnl = new(big.Int).Sub(quoteEntryAmount, notional)
	}
	return notional, pnl, nil
}
