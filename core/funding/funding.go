// Package funding implements per-period funding-rate updates, per-position
// funding settlement, and AMM repegging (spec §4.9), grounded on the
// delta-based interest-index update style of native/lending.Engine's
// accrueInterest (engine.go), generalized from a single borrow/deposit index
// pair to the AMM's long/short cumulative funding rate and repeg-rebate
// fields.
package funding

import (
	"math/big"

	"dexcore/core/events"
	"dexcore/core/market"
	"dexcore/core/user"
	"dexcore/dexerr"
	"dexcore/pkg/fixedpoint"
	"dexcore/pkg/oracle"
)

const periodAdjustmentBase = 24 * 3600 // 24h in seconds, spec §4.9

// UpdateFundingRate implements the per-market funding update of spec §4.9.
// It is a no-op (idempotent, spec §5) if now-lastFundingTs has not yet
// reached the market's funding_period.
func UpdateFundingRate(m *market.PerpMarket, oracleView oracle.View, now int64) error {
	if now-m.AMM.LastFundingRateTs < m.AMM.FundingPeriod {
		return nil
	}
	priceData, err := oracleView.GetPrice(m.OracleKey)
	if err != nil {
		return err
	}
	if priceData.Validity.BlocksMarginOps() {
		return dexerr.ErrOracleInvalid
	}

	oracleTwap := priceData.TWAPLong
	if oracleTwap == nil {
		oracleTwap = priceData.Price
	}
	markTwap := m.AMM.LastMarkPriceTwap
	if markTwap == nil {
		markTwap = oracleTwap
	}

	priceSpread := new(big.Int).Sub(markTwap, oracleTwap)

	periodAdjustment := int64(periodAdjustmentBase)
	if m.AMM.FundingPeriod > 0 {
		periodAdjustment = periodAdjustmentBase / m.AMM.FundingPeriod
		if periodAdjustment == 0 {
			periodAdjustment = 1
		}
	}

	fundingRate := new(big.Int).Mul(priceSpread, big.NewInt(fixedpoint.FundingPaymentPrecision))
	fundingRate.Quo(fundingRate, big.NewInt(periodAdjustment))

	longRate, shortRate := applyImbalanceHaircut(fundingRate, m.AMM.BaseAssetAmountLong, m.AMM.BaseAssetAmountShort)

	m.AMM.CumulativeFundingRate = new(big.Int).Add(nz(m.AMM.CumulativeFundingRate), fundingRate)
	m.AMM.CumulativeFundingRateLong = new(big.Int).Add(nz(m.AMM.CumulativeFundingRateLong), longRate)
	m.AMM.CumulativeFundingRateShort = new(big.Int).Add(nz(m.AMM.CumulativeFundingRateShort), shortRate)
	m.AMM.LastFundingRateTs = now

	return nil
}

// applyImbalanceHaircut scales the side with more open interest down by
// lighter/heavier (the "overfunded" side pays less) when base_long + base_short != 0 (spec
// §4.9). baseLong/baseShort follow the AMM's sign convention: baseLong >= 0,
// baseShort <= 0.
func applyImbalanceHaircut(rate, baseLong, baseShort *big.Int) (longRate, shortRate *big.Int) {
	longRate = new(big.Int).Set(rate)
	shortRate = new(big.Int).Set(rate)
	if baseLong == nil || baseShort == nil {
		return longRate, shortRate
	}
	shortAbs := new(big.Int).Abs(baseShort)
	imbalance := new(big.Int).Add(baseLong, baseShort)
	if imbalance.Sign() == 0 {
		return longRate, shortRate
	}
	if imbalance.Sign() > 0 && baseLong.Sign() > 0 {
		// Longs outweigh shorts: the long side's effective rate is scaled by
		// (short OI / long OI), i.e. haircut_num / base_long.
		longRate = fixedpoint.MulDiv(rate, shortAbs, baseLong)
	} else if imbalance.Sign() < 0 && shortAbs.Sign() > 0 {
		shortRate = fixedpoint.MulDiv(rate, baseLong, shortAbs)
	}
	return longRate, shortRate
}

// SettleFundingPayment implements settle_funding_payment (spec §4.9): for
// each of u's perp positions, applies
// delta = (cumulative_side - position.last_cumulative_funding_rate) *
// base_asset_amount / FUNDING_PAYMENT_PRECISION to the position's quote
// balance, and additionally pays out any pending lazy repeg rebate (Design
// Notes §9), tracked the same way via last_cumulative_repeg_rebate so a
// rebate is never paid twice. Idempotent: calling twice with unchanged
// market state is a no-op on the second call because both cumulative
// fields are advanced to match what was just claimed. Emits a
// FundingPaymentRecord per position with a nonzero net payment.
func SettleFundingPayment(u *user.User, markets map[uint16]*market.PerpMarket, now int64, sink events.Sink) error {
	for i := range u.PerpPositions {
		pos := &u.PerpPositions[i]
		if !pos.IsOpen() {
			continue
		}
		m, ok := markets[pos.MarketIndex]
		if !ok || m == nil {
			return dexerr.ErrNilMarket
		}

		cumulative := m.AMM.CumulativeFundingRateLong
		rebate := m.AMM.CumulativeRepegRebateLong
		if pos.IsShort() {
			cumulative = m.AMM.CumulativeFundingRateShort
			rebate = m.AMM.CumulativeRepegRebateShort
		}
		if cumulative == nil {
			cumulative = big.NewInt(0)
		}
		last := pos.LastCumulativeFundingRate
		if last == nil {
			last = big.NewInt(0)
		}

		rateDelta := new(big.Int).Sub(cumulative, last)
		payment := new(big.Int).Mul(rateDelta, pos.BaseAssetAmount)
		payment.Quo(payment, big.NewInt(fixedpoint.FundingPaymentPrecision))

		pos.QuoteAssetAmount = new(big.Int).Sub(nz(pos.QuoteAssetAmount), payment)
		pos.LastCumulativeFundingRate = new(big.Int).Set(cumulative)
		netPayment := new(big.Int).Neg(payment)

		lastRebate := pos.LastCumulativeRepegRebate
		if lastRebate == nil {
			lastRebate = big.NewInt(0)
		}
		if rebate == nil {
			rebate = big.NewInt(0)
		}
		rebateDelta := new(big.Int).Sub(rebate, lastRebate)
		if rebateDelta.Sign() > 0 {
			rebatePayment := new(big.Int).Mul(rebateDelta, new(big.Int).Abs(pos.BaseAssetAmount))
			rebatePayment.Quo(rebatePayment, fixedpoint.BasePrecisionBig)
			pos.QuoteAssetAmount = new(big.Int).Add(pos.QuoteAssetAmount, rebatePayment)
			netPayment.Add(netPayment, rebatePayment)
			pos.LastCumulativeRepegRebate = new(big.Int).Set(rebate)
		}

		if sink != nil && netPayment.Sign() != 0 {
			sink.EmitFundingPayment(events.FundingPaymentRecord{
				Ts:                            now,
				User:                          u.Authority,
				MarketIndex:                   pos.MarketIndex,
				Amount:                        netPayment,
				CumulativeFundingAtSettlement: cumulative,
			})
		}
	}
	return nil
}

func nz(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}
