package margin

import (
	"math/big"

	"dexcore/pkg/fixedpoint"
)

// imfDivisor is the imf_factor at which the extra weight (in MARGIN_PRECISION)
// equals sqrt(notional in whole quote units): at that factor a notional of
// 1e8 quote units adds one full MARGIN_PRECISION; imf_factor scales the
// curve linearly per market.
const imfDivisor = 100_000

// imfScaledWeight is the IMF scaling function f(size, imf_factor) of spec
// §4.8 step 2 and SPEC_FULL.md's supplemented-feature section: it grows with
// the square root of notional rather than linearly, so the marginal
// requirement per extra dollar of size tapers off at very large notional
// while still strictly increasing, matching the "monotonically decreases
// asset weight / increases liability weight with notional" requirement
// without letting a single whale position blow through MARGIN_PRECISION at
// moderate size.
func imfScaledWeight(notional, imfFactor *big.Int) uint32 {
	if notional == nil || notional.Sign() <= 0 || imfFactor == nil || imfFactor.Sign() <= 0 {
		return 0
	}
	wholeUnits := new(big.Int).Quo(new(big.Int).Abs(notional), fixedpoint.QuotePrecisionBig)
	sqrtUnits := fixedpoint.Sqrt(wholeUnits)

	weighted := new(big.Int).Mul(sqrtUnits, imfFactor)
	weighted.Quo(weighted, big.NewInt(imfDivisor))

	if !weighted.IsInt64() || weighted.Int64() > fixedpoint.MarginPrecision {
		return uint32(fixedpoint.MarginPrecision)
	}
	return uint32(weighted.Int64())
}
