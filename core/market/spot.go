package market

import "math/big"

// AssetWeights holds the initial and maintenance collateral/liability
// weights for a spot market, both in MARGIN_PRECISION, grounded on
// native/lending.RiskParameters' LTV/liquidation-threshold pair generalized
// to the spec's deposit/borrow weight split (spec §3/§4.8).
type AssetWeights struct {
	InitialAssetWeight      uint32
	MaintenanceAssetWeight  uint32
	InitialLiabilityWeight  uint32
	MaintenanceLiabilityWeight uint32
}

// HistoricalOracleData mirrors the TWAP bookkeeping the AMM keeps for its own
// mark price, applied here to the spot market's oracle feed (spec §3).
type HistoricalOracleData struct {
	LastOraclePrice       *big.Int
	LastOraclePriceTwap    *big.Int
	LastOraclePriceTwap5Min *big.Int
	LastOraclePriceTwapTs  int64
}

// SpotMarket is a borrow/lend pool for one token, used both as tradable spot
// collateral and as the quote asset backing perp markets (spec §3),
// grounded on native/lending.Market's index/utilization accounting adapted
// from a single lending pool to one market per supported asset.
type SpotMarket struct {
	MarketIndex uint16
	Decimals    uint8
	OracleKey   string
	Status      Status

	CumulativeDepositInterest *big.Int // InterestIndexPrecision
	CumulativeBorrowInterest  *big.Int

	DepositBalance *big.Int // SpotBalancePrecision, scaled shares
	BorrowBalance  *big.Int

	DepositTokenTwap  *big.Int
	BorrowTokenTwap   *big.Int
	UtilizationTwap   uint32 // PercentagePrecision
	LastInterestTs    int64

	Weights AssetWeights
	IMFFactor *big.Int

	LiquidatorFeeBps   uint32
	MaxTokenDeposits   *big.Int
	MaxTokenBorrows    *big.Int
	MinBorrowRate      uint32
	OptimalUtilization uint32 // PercentagePrecision, kink point
	OptimalBorrowRate  uint32
	MaxBorrowRate      uint32

	HistoricalOracle HistoricalOracleData
	FeePoolBalance   *big.Int
}

// Utilization returns borrow_balance / deposit_balance in PercentagePrecision,
// or zero when there are no deposits, matching the teacher's InterestModel
// zero-utilization guard for an empty pool.
func (m *SpotMarket) Utilization() uint32 {
	if m.DepositBalance == nil || m.DepositBalance.Sign() == 0 || m.BorrowBalance == nil {
		return 0
	}
	num := new(big.Int).Mul(m.BorrowBalance, big.NewInt(1_000_000))
	num.Quo(num, m.DepositBalance)
	if !num.IsInt64() {
		return 1_000_000
	}
	u := num.Int64()
	if u > 1_000_000 {
		u = 1_000_000
	}
	return uint32(u)
}

// EffectiveAssetWeight scales the initial or maintenance asset weight down
// for large single-user concentration per the IMF curve (spec §4.8), mirrored
// from PerpMarket's IMF scaling but applied to a deposit notional instead of
// perp position notional.
func (m *SpotMarket) EffectiveAssetWeight(weight uint32, imfScaled uint32) uint32 {
	if imfScaled >= weight {
		return 0
	}
	return weight - imfScaled
}
