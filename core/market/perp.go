package market

import "math/big"

// FeeTier is one row of a market's maker/taker fee schedule, indexed by
// rolling 30-day volume (UserStats.TakerVolume30D / MakerVolume30D).
type FeeTier struct {
	MinVolume          *big.Int
	TakerFeeNumerator   int64
	TakerFeeDenominator int64
	MakerRebateNumerator   int64
	MakerRebateDenominator int64
}

// RiskParameters groups the per-market risk/margin configuration of spec §4.
type RiskParameters struct {
	MarginRatioInitial     uint32 // MARGIN_PRECISION
	MarginRatioMaintenance uint32
	IMFFactor              *big.Int
	LiquidatorFeeBps       uint32
	MaxOpenInterest        *big.Int

	MarkOraclePercentDivergence uint32 // PercentagePrecision
	RiskReducingFillRatioMin    uint32 // PercentagePrecision, §4.7

	FullLiquidationPenaltyNumerator     int64
	FullLiquidationPenaltyDenominator   int64
	FullLiquidationLiquidatorShareDenom int64

	PartialLiquidationClosePercentage      uint32 // PercentagePrecision
	PartialLiquidationPenaltyNumerator     int64
	PartialLiquidationPenaltyDenominator   int64
	PartialLiquidationLiquidatorShareDenom int64

	MarginRatioPartial uint32 // entry threshold into the liquidation controller (§4.10)
}

// PerpMarket wraps an AMM with the perp-specific lifecycle and risk state of
// spec §3.
type PerpMarket struct {
	MarketIndex  uint16
	Status       Status
	AMM          AMM
	Risk         RiskParameters
	FeeTiers     []FeeTier
	FillerRewardNumerator   int64
	FillerRewardDenominator int64 // default 1/10, spec §4.5
	QuoteSpotMarketIndex    uint16
	NumberOfUsersWithPositions uint32
	OracleKey string
}

// FeeTierFor selects the fee tier applicable to the given rolling volume,
// falling back to the lowest tier (index 0) when no tier's MinVolume is met.
func (m *PerpMarket) FeeTierFor(volume30D *big.Int) FeeTier {
	best := FeeTier{TakerFeeNumerator: 5, TakerFeeDenominator: 10_000, MakerRebateNumerator: 3, MakerRebateDenominator: 10_000}
	if len(m.FeeTiers) > 0 {
		best = m.FeeTiers[0]
	}
	if volume30D == nil {
		return best
	}
	for _, tier := range m.FeeTiers {
		if tier.MinVolume != nil && volume30D.Cmp(tier.MinVolume) >= 0 {
			best = tier
		}
	}
	return best
}

// EffectiveMarginRatioInitial applies a user's custom leverage cap, spec
// §4.8 step 4: the effective initial margin ratio is the larger (stricter)
// of the market default and the user's cap.
func (m *PerpMarket) EffectiveMarginRatioInitial(userMaxMarginRatio uint32) uint32 {
	if userMaxMarginRatio > m.Risk.MarginRatioInitial {
		return userMaxMarginRatio
	}
	return m.Risk.MarginRatioInitial
}
