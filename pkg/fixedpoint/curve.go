package fixedpoint

import (
	"math/big"

	"github.com/holiman/uint256"

	"dexcore/dexerr"
)

// Direction mirrors the taker's intended position change; it is re-declared
// here (rather than imported from core/user) so this package stays leaf-level
// and dependency-free, matching the teacher's leaf math package (math.go)
// which never imports from native/lending's own engine package.
type Direction int8

const (
	Long Direction = iota
	Short
)

// Reserves is the constant-product pair (base, quote) of an AMM or one of its
// spread-adjusted variants (bid/ask). base·quote is invariant (k) across a
// swap that does not also change the peg. Reserves are stored as uint256.Int
// to match the on-chain u128/u256 field widths; the arithmetic itself is
// carried out in the big.Int domain (unbounded) with explicit bit-width
// checks (CheckedMul128 et al.) standing in for the checked u128/u256 ops the
// source relies on, so an overflow of the *declared* width aborts cleanly
// instead of silently wrapping at 2^256.
type Reserves struct {
	Base  *uint256.Int
	Quote *uint256.Int
}

func NewReserves(base, quote *big.Int) (Reserves, error) {
	if base == nil || quote == nil || base.Sign() < 0 || quote.Sign() < 0 {
		return Reserves{}, dexerr.ErrMath
	}
	b, overflow := uint256.FromBig(base)
	if overflow {
		return Reserves{}, dexerr.ErrMath
	}
	q, overflow := uint256.FromBig(quote)
	if overflow {
		return Reserves{}, dexerr.ErrMath
	}
	return Reserves{Base: b, Quote: q}, nil
}

func (r Reserves) baseBig() *big.Int  { return r.Base.ToBig() }
func (r Reserves) quoteBig() *big.Int { return r.Quote.ToBig() }

// K returns the constant-product invariant base·quote, checked against the
// 256-bit bound.
func (r Reserves) K() (*big.Int, error) {
	return CheckedMul128FullWidth(r.baseBig(), r.quoteBig())
}

// CheckedMul128FullWidth multiplies two reserve-sized values checked against
// the 256-bit bound (reserve·reserve, as opposed to reserve·peg which is
// bounded at 128 bits).
func CheckedMul128FullWidth(a, b *big.Int) (*big.Int, error) {
	return CheckedMulDivBits(a, b, big.NewInt(1), 256)
}

// ReservePrice derives reserve_price = (quote/base)·peg, in PRICE_PRECISION
// units, given a peg_multiplier already expressed in PRICE_PRECISION.
func ReservePrice(r Reserves, pegMultiplier *big.Int) (*big.Int, error) {
	if r.Base.IsZero() {
		return nil, dexerr.ErrMath
	}
	num, err := CheckedMul128(r.quoteBig(), pegMultiplier)
	if err != nil {
		return nil, err
	}
	return DivFloor(num, r.baseBig())
}

// SpreadReserves derives the bid and ask reserve pairs used for quoting away
// from the raw reserve price, per spec §4.1: the bid side inflates base and
// deflates quote by short_spread/2 (fraction of PercentagePrecision); the
// ask side is symmetric using long_spread.
func SpreadReserves(r Reserves, longSpread, shortSpread uint32) (bid, ask Reserves, err error) {
	bid, err = adjustReserves(r, shortSpread, true)
	if err != nil {
		return Reserves{}, Reserves{}, err
	}
	ask, err = adjustReserves(r, longSpread, false)
	if err != nil {
		return Reserves{}, Reserves{}, err
	}
	return bid, ask, nil
}

// adjustReserves scales base up and quote down (inflateBase=true, i.e. bid
// side) or base down and quote up (ask side) by half of spreadPPM, where
// spreadPPM is a fraction of PercentagePrecision (1e6).
func adjustReserves(r Reserves, spreadPPM uint32, inflateBase bool) (Reserves, error) {
	half := int64(spreadPPM / 2)
	denom := big.NewInt(PercentagePrecision)
	up := new(big.Int).Add(denom, big.NewInt(half))
	down := new(big.Int).Sub(denom, big.NewInt(half))
	if down.Sign() < 0 {
		down.SetInt64(0)
	}

	var newBase, newQuote *big.Int
	var err error
	if inflateBase {
		newBase, err = CheckedMulDivBits(r.baseBig(), up, denom, 256)
		if err != nil {
			return Reserves{}, err
		}
		newQuote, err = CheckedMulDivBits(r.quoteBig(), down, denom, 256)
		if err != nil {
			return Reserves{}, err
		}
	} else {
		newBase, err = CheckedMulDivBits(r.baseBig(), down, denom, 256)
		if err != nil {
			return Reserves{}, err
		}
		newQuote, err = CheckedMulDivBits(r.quoteBig(), up, denom, 256)
		if err != nil {
			return Reserves{}, err
		}
	}
	return NewReserves(newBase, newQuote)
}

// SwapResult captures the post-swap reserves and the signed base-asset delta
// applied to the taker's position (positive = taker received base / went
// long, negative = taker gave up base / went short).
type SwapResult struct {
	NewReserves  Reserves
	BaseDelta    *big.Int
	QuoteDelta   *big.Int
	AvgExecPrice *big.Int
}

// SwapOutBaseAssetAmount executes a constant-product swap against reserves r.
// When direction is Long, amountIn is taker quote entering the pool (the AMM
// sells base to the taker); when Short, amountIn is taker base entering the
// pool (the AMM buys base from the taker). base·quote is held invariant up to
// integer rounding of at most one unit, per spec §8.
func SwapOutBaseAssetAmount(r Reserves, amountIn *big.Int, direction Direction) (SwapResult, error) {
	if amountIn == nil || amountIn.Sign() <= 0 {
		return SwapResult{}, dexerr.ErrInvalidAmount
	}
	k, err := r.K()
	if err != nil {
		return SwapResult{}, err
	}

	switch direction {
	case Long:
		newQuote := new(big.Int).Add(r.quoteBig(), amountIn)
		if newQuote.Sign() == 0 {
			return SwapResult{}, dexerr.ErrMath
		}
		newBase, err := DivFloor(k, newQuote)
		if err != nil {
			return SwapResult{}, err
		}
		if newBase.Cmp(r.baseBig()) > 0 {
			// Rounding pushed the base reserve up; clamp so base·quote
			// never increases, satisfying the monotone-k invariant.
			newBase = r.baseBig()
		}
		baseOut := new(big.Int).Sub(r.baseBig(), newBase)
		reserves, err := NewReserves(newBase, newQuote)
		if err != nil {
			return SwapResult{}, err
		}
		quoteDelta := new(big.Int).Neg(amountIn)
		return SwapResult{
			NewReserves:  reserves,
			BaseDelta:    baseOut,
			QuoteDelta:   quoteDelta,
			AvgExecPrice: avgPrice(baseOut, amountIn),
		}, nil
	case Short:
		newBase := new(big.Int).Add(r.baseBig(), amountIn)
		if newBase.Sign() == 0 {
			return SwapResult{}, dexerr.ErrMath
		}
		newQuote, err := DivFloor(k, newBase)
		if err != nil {
			return SwapResult{}, err
		}
		if newQuote.Cmp(r.quoteBig()) > 0 {
			newQuote = r.quoteBig()
		}
		quoteOut := new(big.Int).Sub(r.quoteBig(), newQuote)
		reserves, err := NewReserves(newBase, newQuote)
		if err != nil {
			return SwapResult{}, err
		}
		baseDelta := new(big.Int).Neg(amountIn)
		return SwapResult{
			NewReserves:  reserves,
			BaseDelta:    baseDelta,
			QuoteDelta:   quoteOut,
			AvgExecPrice: avgPrice(amountIn, quoteOut),
		}, nil
	default:
		return SwapResult{}, dexerr.ErrMath
	}
}

// avgPrice derives the average execution price (PRICE_PRECISION) of a swap
// that moved |baseAmount| base units for |quoteAmount| quote units.
func avgPrice(baseAmount, quoteAmount *big.Int) *big.Int {
	base := new(big.Int).Abs(baseAmount)
	quote := new(big.Int).Abs(quoteAmount)
	if base.Sign() == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(quote, BasePrecisionBig)
	num.Quo(num, QuotePrecisionBig)
	num.Mul(num, PricePrecisionBig)
	return num.Quo(num, base)
}

// CheckFillReserveFraction enforces the slippage guard of spec §4.1: a single
// swap may consume at most maxFractionPPM (fraction of PercentagePrecision)
// of the pre-swap reserve.
func CheckFillReserveFraction(before, after *big.Int, maxFractionPPM uint32) error {
	if before == nil || before.Sign() == 0 {
		return dexerr.ErrMath
	}
	diff := new(big.Int).Sub(after, before)
	diff.Abs(diff)
	limit := MulDiv(before, big.NewInt(int64(maxFractionPPM)), big.NewInt(PercentagePrecision))
	if diff.Cmp(limit) > 0 {
		return dexerr.ErrSlippageOutsideLimit
	}
	return nil
}
