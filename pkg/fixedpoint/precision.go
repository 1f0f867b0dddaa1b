// Package fixedpoint provides the checked fixed-point arithmetic and
// constant-product curve primitives shared by the matching, margin, and
// funding packages. All amounts that cross a package boundary are plain
// *big.Int/*uint256.Int values scaled by one of the precisions below; nothing
// in this package allocates per-fill beyond the values it is handed.
package fixedpoint

import "math/big"

// Precision constants, load-bearing per spec §6.
const (
	PricePrecision         = 1_000_000         // 1e6
	QuotePrecision         = 1_000_000         // 1e6
	BasePrecision          = 1_000_000_000     // 1e9
	PercentagePrecision    = 1_000_000         // 1e6
	MarginPrecision        = 10_000            // 1e4
	SpotBalancePrecision   = 1_000_000_000     // 1e9 (scaled balance units)
	InterestIndexPrecision = 10_000_000_000    // 1e10
	FundingPaymentPrecision = PricePrecision   // funding is price-denominated
)

var (
	// PricePrecisionBig, QuotePrecisionBig, ... are big.Int mirrors of the
	// constants above, pre-allocated so hot paths never call big.NewInt for
	// the same literal twice.
	PricePrecisionBig         = big.NewInt(PricePrecision)
	QuotePrecisionBig         = big.NewInt(QuotePrecision)
	BasePrecisionBig          = big.NewInt(BasePrecision)
	PercentagePrecisionBig    = big.NewInt(PercentagePrecision)
	MarginPrecisionBig        = big.NewInt(MarginPrecision)
	InterestIndexPrecisionBig = big.NewInt(InterestIndexPrecision)
)
