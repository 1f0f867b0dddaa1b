package matching

import (
	"math/big"

	"dexcore/core/user"
	"dexcore/dexerr"
	"dexcore/pkg/fixedpoint"
)

// PriceBandBreach reports whether mark has diverged from the oracle's
// 5-minute TWAP beyond markOraclePercentDivergence (PercentagePrecision),
// per spec §4.7.
func PriceBandBreach(mark, oracleTwap5Min *big.Int, markOraclePercentDivergence uint32) bool {
	if oracleTwap5Min == nil || oracleTwap5Min.Sign() == 0 || mark == nil {
		return false
	}
	diff := new(big.Int).Sub(mark, oracleTwap5Min)
	diff.Abs(diff)
	ratio := new(big.Int).Mul(diff, fixedpoint.PercentagePrecisionBig)
	ratio.Quo(ratio, new(big.Int).Abs(oracleTwap5Min))
	return ratio.Cmp(big.NewInt(int64(markOraclePercentDivergence))) > 0
}

// ValidateFillAgainstPriceBand implements validate_market_within_price_band
// (spec §4.7): a breached market still allows risk-reducing fills whose
// fill-to-step ratio clears riskReducingFillRatioMin; a risk-increasing fill
// against a breached market is rejected.
func ValidateFillAgainstPriceBand(mark, oracleTwap5Min *big.Int, markOraclePercentDivergence uint32, fillSize, stepSize *big.Int, isRiskReducing bool, riskReducingFillRatioMin uint32) error {
	if !PriceBandBreach(mark, oracleTwap5Min, markOraclePercentDivergence) {
		return nil
	}
	if !isRiskReducing {
		return dexerr.ErrPriceBandsBreached
	}
	if stepSize == nil || stepSize.Sign() <= 0 {
		return dexerr.ErrPriceBandsBreached
	}
	ratio := new(big.Int).Mul(fillSize, fixedpoint.PercentagePrecisionBig)
	ratio.Quo(ratio, stepSize)
	if ratio.Cmp(big.NewInt(int64(riskReducingFillRatioMin))) < 0 {
		return dexerr.ErrPriceBandsBreached
	}
	return nil
}

// MakerOrderBreachesPriceBand implements
// order_breaches_maker_oracle_price_bands (spec §4.7): a bid above
// oracle·(1+margin_ratio_initial) or an ask below
// oracle·(1-margin_ratio_initial) is rejected outright.
func MakerOrderBreachesPriceBand(direction user.Direction, price, oraclePrice *big.Int, marginRatioInitial uint32) bool {
	if oraclePrice == nil || price == nil {
		return false
	}
	band := new(big.Int).Mul(oraclePrice, big.NewInt(int64(marginRatioInitial)))
	band.Quo(band, fixedpoint.MarginPrecisionBig)

	if direction == user.Long {
		ceiling := new(big.Int).Add(oraclePrice, band)
		return price.Cmp(ceiling) > 0
	}
	floor := new(big.Int).Sub(oraclePrice, band)
	return price.Cmp(floor) < 0
}
