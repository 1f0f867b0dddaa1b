package user

import "math/big"

// UserStats is shared across every subaccount of one authority and is
// mutated alongside whichever subaccount performs an action (spec §3).
type UserStats struct {
	Authority string

	TakerVolume30D  *big.Int
	MakerVolume30D  *big.Int
	FillerVolume30D *big.Int

	TotalFeePaid         *big.Int
	TotalFeeRebate       *big.Int
	TotalRefereeDiscount *big.Int
	TotalTokenDiscount   *big.Int

	Referrer string
}

// RecordTakerVolume accumulates a new taker fill into the rolling total.
// Rolling-window decay is a bookkeeping concern of the surrounding host
// (spec §1 OUT OF SCOPE: historical recording); this method only maintains
// the running total the core itself reads for fee-tier selection.
func (s *UserStats) RecordTakerVolume(quoteNotional *big.Int) {
	s.TakerVolume30D = addNonNil(s.TakerVolume30D, quoteNotional)
}

// RecordMakerVolume accumulates a new maker fill into the rolling total.
func (s *UserStats) RecordMakerVolume(quoteNotional *big.Int) {
	s.MakerVolume30D = addNonNil(s.MakerVolume30D, quoteNotional)
}

// RecordFillerVolume adds the amount a caller credits to the filler (the
// filler reward itself, not a fill's notional) to FillerVolume30D.
func (s *UserStats) RecordFillerVolume(quoteNotional *big.Int) {
	s.FillerVolume30D = addNonNil(s.FillerVolume30D, quoteNotional)
}

// RecordFee updates the running fee-paid and fee-rebate totals for one fill;
// feeDelta is the signed fee charged (positive) or rebate credited
// (negative).
func (s *UserStats) RecordFee(feeDelta *big.Int) {
	if feeDelta == nil {
		return
	}
	if feeDelta.Sign() >= 0 {
		s.TotalFeePaid = addNonNil(s.TotalFeePaid, feeDelta)
		return
	}
	s.TotalFeeRebate = addNonNil(s.TotalFeeRebate, new(big.Int).Neg(feeDelta))
}

func addNonNil(acc, delta *big.Int) *big.Int {
	if delta == nil {
		if acc == nil {
			return big.NewInt(0)
		}
		return acc
	}
	if acc == nil {
		return new(big.Int).Set(delta)
	}
	return new(big.Int).Add(acc, delta)
}
