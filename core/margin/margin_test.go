package margin

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"dexcore/core/market"
	"dexcore/core/user"
	"dexcore/pkg/fixedpoint"
	"dexcore/pkg/oracle"
)

func TestImfScaledWeight_GrowsWithSqrtOfNotional(t *testing.T) {
	imfFactor := big.NewInt(100_000) // 1x
	small := imfScaledWeight(big.NewInt(10_000*fixedpoint.QuotePrecision), imfFactor)  // $10,000
	large := imfScaledWeight(big.NewInt(1_000_000*fixedpoint.QuotePrecision), imfFactor) // $1,000,000, 100x notional

	require.Equal(t, uint32(100), small)
	require.Equal(t, uint32(1000), large)
	// 100x notional only grows weight by sqrt(100) = 10x, not 100x.
	require.Equal(t, large, small*10)
}

func TestImfScaledWeight_ZeroOnNilOrNonPositive(t *testing.T) {
	require.Equal(t, uint32(0), imfScaledWeight(nil, big.NewInt(100_000)))
	require.Equal(t, uint32(0), imfScaledWeight(big.NewInt(-5), big.NewInt(100_000)))
	require.Equal(t, uint32(0), imfScaledWeight(big.NewInt(5), nil))
}

func TestApplyPerpIMF_ClampsAtMarginPrecision(t *testing.T) {
	hugeNotional := new(big.Int).Mul(big.NewInt(1_000_000_000_000), fixedpoint.QuotePrecisionBig)
	ratio := applyPerpIMF(fixedpoint.MarginPrecision/10, hugeNotional, big.NewInt(100_000))
	require.Equal(t, uint32(fixedpoint.MarginPrecision), ratio)
}

func TestApplyPerpIMF_NoImfFactorIsUnchanged(t *testing.T) {
	ratio := applyPerpIMF(500, big.NewInt(1_000_000), nil)
	require.Equal(t, uint32(500), ratio)
}

func TestStrictPrice_LiabilitySideTakesTheLowerOfSpotAndTwap(t *testing.T) {
	data := oracle.PriceData{Price: big.NewInt(110_000_000), TWAP5Min: big.NewInt(100_000_000)}
	require.Equal(t, data.TWAP5Min, strictPrice(data, true, true))
	require.Equal(t, data.Price, strictPrice(data, true, false))
	require.Equal(t, data.Price, strictPrice(data, false, true))
}

func quoteMarketFor(index uint16) *market.SpotMarket {
	return &market.SpotMarket{
		MarketIndex:               index,
		OracleKey:                 "USDC",
		CumulativeDepositInterest: fixedpoint.InterestIndexPrecisionBig,
		CumulativeBorrowInterest:  fixedpoint.InterestIndexPrecisionBig,
		Weights: market.AssetWeights{
			InitialAssetWeight:         fixedpoint.MarginPrecision,
			MaintenanceAssetWeight:     fixedpoint.MarginPrecision,
			InitialLiabilityWeight:     fixedpoint.MarginPrecision,
			MaintenanceLiabilityWeight: fixedpoint.MarginPrecision,
		},
	}
}

// TestCalculate_SpotCollateralAgainstPerpRequirement exercises both
// accumulateSpot and accumulatePerp together: a user with $1,000 of quote
// collateral and a perp position with a known notional and margin ratio,
// verifying MarginRequirement/TotalCollateral and MeetsRequirement.
func TestCalculate_SpotCollateralAgainstPerpRequirement(t *testing.T) {
	u := &user.User{Authority: "trader"}
	spotPos, err := u.GetSpotPosition(0)
	require.NoError(t, err)
	spotPos.BalanceType = user.Deposit
	spotPos.ScaledBalance = big.NewInt(1_000_000_000) // 1000 USDC tokens (InterestIndexPrecision-scaled)

	perpPos, err := u.GetPerpPosition(0)
	require.NoError(t, err)
	perpPos.BaseAssetAmount = big.NewInt(1_000_000_000) // 1 unit long
	perpPos.QuoteEntryAmount = big.NewInt(100_000_000)  // entered at $100

	spotMarkets := SpotMarketSet{0: quoteMarketFor(0)}
	perpMarkets := MarketSet{0: &market.PerpMarket{
		MarketIndex: 0,
		OracleKey:   "PERP-0",
		AMM:         market.AMM{PegMultiplier: fixedpoint.PricePrecisionBig, BaseAssetReserve: big.NewInt(1_000_000_000_000), QuoteAssetReserve: big.NewInt(100_000_000_000_000)},
		Risk:        market.RiskParameters{MarginRatioInitial: fixedpoint.MarginPrecision / 10}, // 10%
	}}
	oracleView := oracle.StaticView{
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
		"PERP-0": {Price: big.NewInt(100_000_000), Validity: oracle.Valid},
	}

	calc, err := Calculate(u, perpMarkets, spotMarkets, oracleView, Context{RequirementType: Initial})
	require.NoError(t, err)

	// $1000 spot collateral at 100% asset weight.
	require.Equal(t, big.NewInt(1_000_000_000), calc.TotalCollateral)
	// Notional = 1 unit * $100 = $100; margin requirement = $100 * 10% = $10.
	require.Equal(t, big.NewInt(10_000_000), calc.MarginRequirement)
	require.Equal(t, 1, calc.NumPerpLiabilities)
	require.True(t, calc.MeetsRequirement())
}

func TestSelectFillMarginType(t *testing.T) {
	require.Equal(t, Initial, SelectFillMarginType(nil, big.NewInt(1)))
	require.Equal(t, Initial, SelectFillMarginType(big.NewInt(0), big.NewInt(1)))
	// Long growing longer stays Initial.
	require.Equal(t, Initial, SelectFillMarginType(big.NewInt(100), big.NewInt(50)))
	// Long shrinking without flipping sign is Maintenance.
	require.Equal(t, Maintenance, SelectFillMarginType(big.NewInt(100), big.NewInt(-50)))
	// Flipping sign entirely is Initial.
	require.Equal(t, Initial, SelectFillMarginType(big.NewInt(100), big.NewInt(-150)))
	// Closing exactly to zero is Maintenance.
	require.Equal(t, Maintenance, SelectFillMarginType(big.NewInt(100), big.NewInt(-100)))
}
