package matching

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"dexcore/core/events"
	"dexcore/core/market"
	"dexcore/core/user"
	"dexcore/dexerr"
	"dexcore/pkg/fixedpoint"
	"dexcore/pkg/oracle"
)

// newNeutralMarket builds a PerpMarket whose AMM quotes reservePrice on both
// sides (zero spread) with reserves large enough that no test fill ever
// approaches max_fill_reserve_fraction, so the AMM never wins a fill in
// tests that only exercise the maker side of spec §4.5's matching loop.
func newNeutralMarket(reservePrice int64) *market.PerpMarket {
	base := big.NewInt(1_000_000_000_000) // 1e12 base units
	quote := new(big.Int).Mul(base, big.NewInt(reservePrice))
	quote.Quo(quote, fixedpoint.PricePrecisionBig)

	pm := &market.PerpMarket{
		MarketIndex: 0,
		Status:      market.Active,
		OracleKey:   "PERP-0",
		AMM: market.AMM{
			BaseAssetReserve:       base,
			QuoteAssetReserve:      quote,
			PegMultiplier:          fixedpoint.PricePrecisionBig,
			MaxFillReserveFraction: fixedpoint.PercentagePrecision,
			OrderStepSize:          big.NewInt(1_000_000_000), // 1 base unit, spec §8 scenarios
			OrderTickSize:          big.NewInt(1),
			MinOrderSize:           big.NewInt(1_000_000),
			TotalFee:               big.NewInt(0),
			NetRevenueSinceLastFunding: big.NewInt(0),
			BaseAssetAmountWithAMM: big.NewInt(0),
		},
		Risk: market.RiskParameters{
			MarginRatioInitial:     fixedpoint.MarginPrecision / 10, // 10%
			MarginRatioMaintenance: fixedpoint.MarginPrecision / 20, // 5%
		},
	}
	return pm
}

func mustNeutralMarket(t *testing.T, reservePrice int64) *market.PerpMarket {
	pm := newNeutralMarket(reservePrice)
	if err := pm.AMM.UpdateSpreadReserves(); err != nil {
		t.Fatalf("UpdateSpreadReserves: %v", err)
	}
	return pm
}

func newWellCollateralizedUser(authority string) *user.User {
	return &user.User{
		Authority:             authority,
		Stats:                 &user.UserStats{Authority: authority, TakerVolume30D: big.NewInt(0), MakerVolume30D: big.NewInt(0)},
		CumulativeSpotFees:    big.NewInt(0),
		CumulativePerpFunding: big.NewInt(0),
	}
}

// addDepositCollateral gives u a large spot deposit in the quote market so
// margin checks never reject a fill in tests that are not exercising the
// margin guard itself.
func addDepositCollateral(u *user.User, spotMarketIndex uint16, amount *big.Int) {
	pos, err := u.GetSpotPosition(spotMarketIndex)
	if err != nil {
		panic(err)
	}
	pos.BalanceType = user.Deposit
	pos.ScaledBalance = amount
}

func newQuoteSpotMarket(index uint16) *market.SpotMarket {
	return &market.SpotMarket{
		MarketIndex:               index,
		OracleKey:                 "USDC",
		Decimals:                  6,
		CumulativeDepositInterest: fixedpoint.InterestIndexPrecisionBig,
		CumulativeBorrowInterest:  fixedpoint.InterestIndexPrecisionBig,
		Weights: market.AssetWeights{
			InitialAssetWeight:         fixedpoint.MarginPrecision,
			MaintenanceAssetWeight:     fixedpoint.MarginPrecision,
			InitialLiabilityWeight:     fixedpoint.MarginPrecision,
			MaintenanceLiabilityWeight: fixedpoint.MarginPrecision,
		},
		DepositBalance: big.NewInt(1_000_000_000_000_000),
		BorrowBalance:  big.NewInt(0),
	}
}

// scenario 1 of spec §8: long taker fills fully against a maker short at
// the maker's posted price, auction evaluated at slot 1.
func TestFillPerpOrder_LongTakerFullFillAtAuctionStart(t *testing.T) {
	pm := mustNeutralMarket(t, 1_000_000_000) // AMM priced far above any maker so the maker always wins
	quoteMarket := newQuoteSpotMarket(0)

	taker := newWellCollateralizedUser("taker")
	addDepositCollateral(taker, 0, big.NewInt(1_000_000_000_000))
	taker.Orders[0] = user.Order{
		Status:            user.OrderOpen,
		OrderType:         user.Market,
		MarketType:        user.PerpMarketType,
		Direction:         user.Long,
		BaseAssetAmount:   big.NewInt(1_000_000_000),
		AuctionStartPrice: big.NewInt(100_000_000),
		AuctionEndPrice:   big.NewInt(200_000_000),
		AuctionDuration:   5,
		Slot:              0,
	}

	maker := newWellCollateralizedUser("maker")
	addDepositCollateral(maker, 0, big.NewInt(1_000_000_000_000))
	maker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Short,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(100_000_000),
	}

	oracleView := oracle.StaticView{
		"PERP-0": {Price: big.NewInt(100_000_000), Validity: oracle.Valid},
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
	}

	req := &PerpFillRequest{
		Clock:           Clock{Slot: 1, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker,
		TakerOrderIndex: 0,
		TakerStats:      taker.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker", OrderIndex: 0, Order: &maker.Orders[0], Price: big.NewInt(100_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker": maker},
		MakerStats: map[string]*user.UserStats{"maker": maker.Stats},
	}

	filled, err := FillPerpOrder(req)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000_000), filled)

	require.Equal(t, user.OrderFilled, taker.Orders[0].Status)
	require.Equal(t, user.OrderFilled, maker.Orders[0].Status)

	takerPos := taker.FindPerpPosition(0)
	require.NotNil(t, takerPos)
	require.Equal(t, big.NewInt(1_000_000_000), takerPos.BaseAssetAmount)
	require.Equal(t, big.NewInt(-100_050_000), takerPos.QuoteAssetAmount)

	makerPos := maker.FindPerpPosition(0)
	require.NotNil(t, makerPos)
	require.Equal(t, big.NewInt(-1_000_000_000), makerPos.BaseAssetAmount)
	require.Equal(t, big.NewInt(100_030_000), makerPos.QuoteAssetAmount)

	// gross taker fee 50,000; net market fee after the maker rebate (30,000)
	// is 20,000, per spec §8 scenario 1.
	require.Equal(t, big.NewInt(50_000), pm.AMM.TotalFee)
	require.Equal(t, big.NewInt(20_000), pm.AMM.TotalFeeMinusDistributions)
}

// scenario 3 of spec §8: the auction never reaches the maker's ask, so
// nothing fills.
func TestFillPerpOrder_AuctionDoesNotSatisfyMaker(t *testing.T) {
	pm := mustNeutralMarket(t, 1_000_000_000)
	quoteMarket := newQuoteSpotMarket(0)

	taker := newWellCollateralizedUser("taker")
	addDepositCollateral(taker, 0, big.NewInt(1_000_000_000_000))
	taker.Orders[0] = user.Order{
		Status:            user.OrderOpen,
		OrderType:         user.Market,
		MarketType:        user.PerpMarketType,
		Direction:         user.Long,
		BaseAssetAmount:   big.NewInt(1_000_000_000),
		AuctionStartPrice: big.NewInt(100_000_000),
		AuctionEndPrice:   big.NewInt(200_000_000),
		AuctionDuration:   5,
		Slot:              0,
	}

	maker := newWellCollateralizedUser("maker")
	addDepositCollateral(maker, 0, big.NewInt(1_000_000_000_000))
	maker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Short,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(201_000_000),
	}

	oracleView := oracle.StaticView{
		"PERP-0": {Price: big.NewInt(150_000_000), Validity: oracle.Valid},
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
	}

	req := &PerpFillRequest{
		Clock:           Clock{Slot: 0, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker,
		TakerOrderIndex: 0,
		TakerStats:      taker.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker", OrderIndex: 0, Order: &maker.Orders[0], Price: big.NewInt(201_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker": maker},
		MakerStats: map[string]*user.UserStats{"maker": maker.Stats},
	}

	filled, err := FillPerpOrder(req)
	require.NoError(t, err)
	require.Equal(t, 0, filled.Sign())
	require.Equal(t, user.OrderOpen, taker.Orders[0].Status)
	require.Equal(t, user.OrderOpen, maker.Orders[0].Status)
}

// scenario 4 of spec §8: the taker is much larger than the single maker, so
// the maker is closed and the taker is left open with 99e9 remaining.
func TestFillPerpOrder_TakerLargerThanMaker(t *testing.T) {
	pm := mustNeutralMarket(t, 1_000_000_000)
	quoteMarket := newQuoteSpotMarket(0)

	taker := newWellCollateralizedUser("taker")
	addDepositCollateral(taker, 0, big.NewInt(100_000_000_000_000))
	taker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Long,
		BaseAssetAmount: big.NewInt(100_000_000_000),
		Price:           big.NewInt(130_000_000),
	}

	maker := newWellCollateralizedUser("maker")
	addDepositCollateral(maker, 0, big.NewInt(1_000_000_000_000))
	maker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Short,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(120_000_000),
	}

	oracleView := oracle.StaticView{
		"PERP-0": {Price: big.NewInt(120_000_000), Validity: oracle.Valid},
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
	}

	req := &PerpFillRequest{
		Clock:           Clock{Slot: 0, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker,
		TakerOrderIndex: 0,
		TakerStats:      taker.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker", OrderIndex: 0, Order: &maker.Orders[0], Price: big.NewInt(120_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker": maker},
		MakerStats: map[string]*user.UserStats{"maker": maker.Stats},
	}

	filled, err := FillPerpOrder(req)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000_000), filled)
	require.Equal(t, user.OrderFilled, maker.Orders[0].Status)
	require.Equal(t, user.OrderOpen, taker.Orders[0].Status)
	require.Equal(t, big.NewInt(99_000_000_000), taker.Orders[0].RemainingBaseAssetAmount())
}

// scenario 2 of spec §8: a short taker auctioning from 200e6 down to 100e6
// meets a long maker resting at 140e6 exactly at the auction's midpoint.
func TestFillPerpOrder_ShortTakerFillsMidAuction(t *testing.T) {
	// A short taker prefers the highest available price, so (unlike the
	// long-taker scenarios) the AMM must be priced far *below* the maker
	// for the maker to win the fill.
	pm := mustNeutralMarket(t, 1_000_000)
	quoteMarket := newQuoteSpotMarket(0)

	taker := newWellCollateralizedUser("taker")
	addDepositCollateral(taker, 0, big.NewInt(1_000_000_000_000))
	taker.Orders[0] = user.Order{
		Status:            user.OrderOpen,
		OrderType:         user.Market,
		MarketType:        user.PerpMarketType,
		Direction:         user.Short,
		BaseAssetAmount:   big.NewInt(1_000_000_000),
		AuctionStartPrice: big.NewInt(200_000_000),
		AuctionEndPrice:   big.NewInt(100_000_000),
		AuctionDuration:   5,
		Slot:              0,
	}

	maker := newWellCollateralizedUser("maker")
	addDepositCollateral(maker, 0, big.NewInt(1_000_000_000_000))
	maker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Long,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(140_000_000),
	}

	oracleView := oracle.StaticView{
		"PERP-0": {Price: big.NewInt(140_000_000), Validity: oracle.Valid},
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
	}

	req := &PerpFillRequest{
		Clock:           Clock{Slot: 3, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker,
		TakerOrderIndex: 0,
		TakerStats:      taker.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker", OrderIndex: 0, Order: &maker.Orders[0], Price: big.NewInt(140_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker": maker},
		MakerStats: map[string]*user.UserStats{"maker": maker.Stats},
	}

	filled, err := FillPerpOrder(req)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000_000), filled)

	takerPos := taker.FindPerpPosition(0)
	require.Equal(t, big.NewInt(139_930_000), takerPos.QuoteAssetAmount)

	makerPos := maker.FindPerpPosition(0)
	require.Equal(t, big.NewInt(-139_958_000), makerPos.QuoteAssetAmount)

	// gross taker fee 70,000; net market fee after the maker rebate (42,000)
	// is 28,000, per spec §8 scenario 2.
	require.Equal(t, big.NewInt(70_000), pm.AMM.TotalFee)
	require.Equal(t, big.NewInt(28_000), pm.AMM.TotalFeeMinusDistributions)
}

// scenario 5 of spec §8: with no explicit limit and no auction, the taker's
// effective limit falls back to the oracle/AMM fallback price, which does
// not cross the resting maker ask; MaxFillReserveFraction=0 keeps the AMM
// itself from offering a fallback fill, isolating the assertion to pricing.
func TestFillPerpOrder_AMMFallbackDoesNotCrossMaker(t *testing.T) {
	pm := mustNeutralMarket(t, 100_000_000) // reserve price 100e6, per scenario 5
	pm.AMM.MaxFillReserveFraction = 0
	quoteMarket := newQuoteSpotMarket(0)

	taker := newWellCollateralizedUser("taker")
	addDepositCollateral(taker, 0, big.NewInt(1_000_000_000_000))
	taker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Market,
		MarketType:      user.PerpMarketType,
		Direction:       user.Long,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		AuctionDuration: 0,
		Slot:            0,
	}

	maker := newWellCollateralizedUser("maker")
	addDepositCollateral(maker, 0, big.NewInt(1_000_000_000_000))
	maker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Short,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(120_000_000),
	}

	oracleView := oracle.StaticView{
		"PERP-0": {Price: big.NewInt(100_000_000), Validity: oracle.Valid},
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
	}

	req := &PerpFillRequest{
		Clock:           Clock{Slot: 0, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker,
		TakerOrderIndex: 0,
		TakerStats:      taker.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker", OrderIndex: 0, Order: &maker.Orders[0], Price: big.NewInt(120_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker": maker},
		MakerStats: map[string]*user.UserStats{"maker": maker.Stats},
	}

	filled, err := FillPerpOrder(req)
	require.NoError(t, err)
	require.Equal(t, 0, filled.Sign())
	require.Equal(t, user.OrderOpen, maker.Orders[0].Status)
}

// scenario 6 of spec §8 uses the original source's own ask_breaches values
// (spec.md's literal 105e6/10% example is inconsistent with the rule text
// it is illustrating and with original_source's own test of the same
// function; see DESIGN.md): oracle 100e6 and margin_ratio_initial=5% put the
// floor at 95e6, and an ask of 94e6 falls strictly below it, so the maker is
// dropped from the candidate list and matching continues without it.
func TestFillPerpOrder_MakerBreachingPriceBandIsDropped(t *testing.T) {
	pm := mustNeutralMarket(t, 1_000_000_000)
	pm.Risk.MarginRatioInitial = fixedpoint.MarginPrecision / 20 // 5%
	quoteMarket := newQuoteSpotMarket(0)

	taker := newWellCollateralizedUser("taker")
	addDepositCollateral(taker, 0, big.NewInt(1_000_000_000_000))
	taker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Long,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(95_000_000),
	}

	maker := newWellCollateralizedUser("maker")
	addDepositCollateral(maker, 0, big.NewInt(1_000_000_000_000))
	maker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Short,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(94_000_000),
	}

	oracleView := oracle.StaticView{
		"PERP-0": {Price: big.NewInt(100_000_000), Validity: oracle.Valid},
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
	}

	req := &PerpFillRequest{
		Clock:           Clock{Slot: 0, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker,
		TakerOrderIndex: 0,
		TakerStats:      taker.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker", OrderIndex: 0, Order: &maker.Orders[0], Price: big.NewInt(94_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker": maker},
		MakerStats: map[string]*user.UserStats{"maker": maker.Stats},
	}

	filled, err := FillPerpOrder(req)
	require.NoError(t, err)
	require.Equal(t, 0, filled.Sign(), "the only candidate maker breached the band and must be dropped, not matched")
	require.Equal(t, user.OrderCanceled, maker.Orders[0].Status)
}

// TestFillPerpOrder_UpdatesOpenInterestAndRejectsBreach verifies the market's
// aggregate long/short open-interest totals move with each fill, and that a
// fill pushing past max_open_interest is rejected (spec §9 open question:
// checked only at fill time).
func TestFillPerpOrder_UpdatesOpenInterestAndRejectsBreach(t *testing.T) {
	pm := mustNeutralMarket(t, 1_000_000_000)
	quoteMarket := newQuoteSpotMarket(0)

	taker := newWellCollateralizedUser("taker")
	addDepositCollateral(taker, 0, big.NewInt(1_000_000_000_000))
	taker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Long,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(100_000_000),
	}
	maker := newWellCollateralizedUser("maker")
	addDepositCollateral(maker, 0, big.NewInt(1_000_000_000_000))
	maker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Short,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(100_000_000),
	}
	oracleView := oracle.StaticView{
		"PERP-0": {Price: big.NewInt(100_000_000), Validity: oracle.Valid},
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
	}
	req := &PerpFillRequest{
		Clock:           Clock{Slot: 0, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker,
		TakerOrderIndex: 0,
		TakerStats:      taker.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker", OrderIndex: 0, Order: &maker.Orders[0], Price: big.NewInt(100_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker": maker},
		MakerStats: map[string]*user.UserStats{"maker": maker.Stats},
	}

	filled, err := FillPerpOrder(req)
	require.NoError(t, err)
	require.Equal(t, big.NewInt(1_000_000_000), filled)
	require.Equal(t, big.NewInt(1_000_000_000), pm.AMM.BaseAssetAmountLong)
	require.Equal(t, big.NewInt(-1_000_000_000), pm.AMM.BaseAssetAmountShort)

	pm.AMM.MaxOpenInterest = big.NewInt(1_000_000_000) // already at the cap

	taker2 := newWellCollateralizedUser("taker2")
	addDepositCollateral(taker2, 0, big.NewInt(1_000_000_000_000))
	taker2.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Long,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(100_000_000),
	}
	maker2 := newWellCollateralizedUser("maker2")
	addDepositCollateral(maker2, 0, big.NewInt(1_000_000_000_000))
	maker2.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Short,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(100_000_000),
	}
	req2 := &PerpFillRequest{
		Clock:           Clock{Slot: 0, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker2,
		TakerOrderIndex: 0,
		TakerStats:      taker2.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker2", OrderIndex: 0, Order: &maker2.Orders[0], Price: big.NewInt(100_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker2": maker2},
		MakerStats: map[string]*user.UserStats{"maker2": maker2.Stats},
	}
	_, err = FillPerpOrder(req2)
	require.ErrorIs(t, err, dexerr.ErrMaxOpenInterest)
}

// emitTrade must only fire for nonzero fills (Design Notes open question):
// verifying via the Recorder sink that a zero-filled request (scenario 3)
// never reaches EmitTrade.
func TestFillPerpOrder_NoTradeRecordOnZeroFill(t *testing.T) {
	pm := mustNeutralMarket(t, 1_000_000_000)
	quoteMarket := newQuoteSpotMarket(0)

	taker := newWellCollateralizedUser("taker")
	addDepositCollateral(taker, 0, big.NewInt(1_000_000_000_000))
	taker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Long,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(50_000_000),
	}
	maker := newWellCollateralizedUser("maker")
	addDepositCollateral(maker, 0, big.NewInt(1_000_000_000_000))
	maker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Short,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(60_000_000),
	}
	oracleView := oracle.StaticView{
		"PERP-0": {Price: big.NewInt(55_000_000), Validity: oracle.Valid},
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
	}
	sink := &events.Recorder{}

	req := &PerpFillRequest{
		Clock:           Clock{Slot: 0, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker,
		TakerOrderIndex: 0,
		TakerStats:      taker.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker", OrderIndex: 0, Order: &maker.Orders[0], Price: big.NewInt(60_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker": maker},
		MakerStats: map[string]*user.UserStats{"maker": maker.Stats},
		Sink:       sink,
	}

	filled, err := FillPerpOrder(req)
	require.NoError(t, err)
	require.Equal(t, 0, filled.Sign())
	require.Empty(t, sink.Trades)
}

// TestFillPerpOrder_ReduceOnlyTakerRejectsPositionIncrease covers spec
// §4.5's reduce_only guard: a taker starting flat with reduce_only set can
// never fill, since any nonzero delta moves the position away from zero.
func TestFillPerpOrder_ReduceOnlyTakerRejectsPositionIncrease(t *testing.T) {
	pm := mustNeutralMarket(t, 100_000_000)
	quoteMarket := newQuoteSpotMarket(0)

	taker := newWellCollateralizedUser("taker")
	addDepositCollateral(taker, 0, big.NewInt(1_000_000_000_000))
	taker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Long,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(100_000_000),
		ReduceOnly:      true,
	}
	maker := newWellCollateralizedUser("maker")
	addDepositCollateral(maker, 0, big.NewInt(1_000_000_000_000))
	maker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Short,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(100_000_000),
	}
	oracleView := oracle.StaticView{
		"PERP-0": {Price: big.NewInt(100_000_000), Validity: oracle.Valid},
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
	}

	req := &PerpFillRequest{
		Clock:           Clock{Slot: 0, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker,
		TakerOrderIndex: 0,
		TakerStats:      taker.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker", OrderIndex: 0, Order: &maker.Orders[0], Price: big.NewInt(100_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker": maker},
		MakerStats: map[string]*user.UserStats{"maker": maker.Stats},
	}

	_, err := FillPerpOrder(req)
	require.ErrorIs(t, err, dexerr.ErrReduceOnlyViolation)
}

// TestFillPerpOrder_RiskIncreasingFillRejectedOnPriceBandBreach covers spec
// §4.7's market-wide price band: once mark has diverged from the oracle's
// 5-minute TWAP beyond the configured threshold, a risk-increasing fill
// (starting flat, not reduce_only) is rejected outright.
func TestFillPerpOrder_RiskIncreasingFillRejectedOnPriceBandBreach(t *testing.T) {
	pm := mustNeutralMarket(t, 100_000_000) // mark = $100
	pm.AMM.LastOraclePriceTwap5Min = big.NewInt(50_000_000) // TWAP = $50, 100% divergence
	pm.Risk.MarkOraclePercentDivergence = 100_000           // 10% threshold
	pm.Risk.RiskReducingFillRatioMin = 100_000
	quoteMarket := newQuoteSpotMarket(0)

	taker := newWellCollateralizedUser("taker")
	addDepositCollateral(taker, 0, big.NewInt(1_000_000_000_000))
	taker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Long,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(100_000_000),
	}
	maker := newWellCollateralizedUser("maker")
	addDepositCollateral(maker, 0, big.NewInt(1_000_000_000_000))
	maker.Orders[0] = user.Order{
		Status:          user.OrderOpen,
		OrderType:       user.Limit,
		MarketType:      user.PerpMarketType,
		Direction:       user.Short,
		BaseAssetAmount: big.NewInt(1_000_000_000),
		Price:           big.NewInt(100_000_000),
	}
	oracleView := oracle.StaticView{
		"PERP-0": {Price: big.NewInt(100_000_000), Validity: oracle.Valid},
		"USDC":   {Price: big.NewInt(1_000_000), Validity: oracle.Valid},
	}

	req := &PerpFillRequest{
		Clock:           Clock{Slot: 0, UnixTimestamp: 1000},
		OracleView:      oracleView,
		Market:          pm,
		QuoteSpotMarket: quoteMarket,
		Taker:           taker,
		TakerOrderIndex: 0,
		TakerStats:      taker.Stats,
		Makers: []MakerCandidate{
			{MakerKey: "maker", OrderIndex: 0, Order: &maker.Orders[0], Price: big.NewInt(100_000_000)},
		},
		MakerUsers: map[string]*user.User{"maker": maker},
		MakerStats: map[string]*user.UserStats{"maker": maker.Stats},
	}

	_, err := FillPerpOrder(req)
	require.ErrorIs(t, err, dexerr.ErrPriceBandsBreached)
}
