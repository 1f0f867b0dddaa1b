// Package engine wires the core/* packages into the external operation set
// of spec §6, grounded on native/lending.Engine's public-method-per-
// instruction shape (engine.go): each exported Engine method here validates
// preconditions, delegates to the appropriate core/* package, and leaves no
// partial state on error (spec §5, §7). FillPerpOrder and Liquidate settle
// funding first (Design Notes §9); the other methods do not.
package engine

import (
	"math/big"

	"dexcore/core/events"
	"dexcore/core/funding"
	"dexcore/core/liquidation"
	"dexcore/core/margin"
	"dexcore/core/market"
	"dexcore/core/matching"
	"dexcore/core/user"
	"dexcore/dexerr"
	"dexcore/pkg/oracle"
)

// Engine is the single entry point surrounding layers call into. It holds
// no state of its own beyond a monotonic record-id counter; all durable
// state lives in the User/Market/SpotMarket records passed into each call
// (spec §5: the host owns storage and concurrency control).
type Engine struct {
	Sink        events.Sink
	nextRecordID uint64
}

// NewEngine constructs an Engine. sink may be nil, in which case emitted
// records are discarded (events.NopSink).
func NewEngine(sink events.Sink) *Engine {
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Engine{Sink: sink}
}

func (e *Engine) allocRecordID() uint64 {
	e.nextRecordID++
	return e.nextRecordID
}

// PlaceOrderParams mirrors the place_order instruction's parameter struct
// (spec §6).
type PlaceOrderParams struct {
	OrderType         user.OrderType
	MarketType        user.MarketType
	MarketIndex       uint16
	Direction         user.Direction
	BaseAssetAmount   *big.Int
	Price             *big.Int
	ReduceOnly        bool
	PostOnly          bool
	ImmediateOrCancel bool
	TriggerPrice      *big.Int
	TriggerCondition  user.TriggerCondition
	OraclePriceOffset *big.Int
	AuctionDuration   uint8
	AuctionStartPrice *big.Int
	AuctionEndPrice   *big.Int
	MaxTs             int64
}

// PlaceOrder implements place_order (spec §6): standardizes the order,
// validates it against the market's status and size bounds, slides a
// post-only price away from the AMM, and writes it into the user's next
// free order slot.
func (e *Engine) PlaceOrder(u *user.User, pm *market.PerpMarket, params PlaceOrderParams, clock matching.Clock, oracleView oracle.View) error {
	if u == nil {
		return dexerr.ErrNilUser
	}
	if pm == nil {
		return dexerr.ErrNilMarket
	}
	if err := matching.MarketAcceptsOrder(pm.Status, params.ReduceOnly); err != nil {
		return err
	}

	slot := u.FindAvailableOrderSlot()
	if slot < 0 {
		return dexerr.ErrNoFreeOrderSlot
	}

	size := matching.StandardizeBaseAssetAmount(params.BaseAssetAmount, pm.AMM.OrderStepSize)
	if err := matching.ValidateOrderSize(size, pm.AMM.MinOrderSize); err != nil {
		return err
	}
	price := matching.StandardizePrice(params.Price, pm.AMM.OrderTickSize)

	if params.PostOnly {
		bid, ask, err := pm.AMM.BidAskPrice()
		if err != nil {
			return err
		}
		slid, err := matching.SlidePostOnly(params.Direction, price, bid, ask, pm.AMM.OrderTickSize)
		if err != nil {
			return err
		}
		price = slid
	}

	o := &u.Orders[slot]
	*o = user.Order{
		Status:            user.OrderOpen,
		OrderType:         params.OrderType,
		MarketType:        params.MarketType,
		MarketIndex:       params.MarketIndex,
		Direction:         params.Direction,
		BaseAssetAmount:   size,
		Price:             price,
		ReduceOnly:        params.ReduceOnly,
		PostOnly:          params.PostOnly,
		ImmediateOrCancel: params.ImmediateOrCancel,
		TriggerPrice:      params.TriggerPrice,
		TriggerCondition:  params.TriggerCondition,
		OraclePriceOffset: params.OraclePriceOffset,
		AuctionDuration:   params.AuctionDuration,
		AuctionStartPrice: params.AuctionStartPrice,
		AuctionEndPrice:   params.AuctionEndPrice,
		Slot:              clock.Slot,
		MaxTs:             params.MaxTs,
	}

	pos, err := u.GetPerpPosition(params.MarketIndex)
	if err != nil {
		return err
	}
	pos.OpenOrders++
	if params.Direction == user.Long {
		pos.OpenBids = addBig(pos.OpenBids, size)
	} else {
		pos.OpenAsks = subBig(pos.OpenAsks, size)
	}
	return nil
}

// CancelOrder implements cancel_order (spec §6): a unilateral state
// transition that releases the order's open_bids/open_asks/open_orders
// reservation (spec §5).
func (e *Engine) CancelOrder(u *user.User, orderIndex int) error {
	if u == nil {
		return dexerr.ErrNilUser
	}
	o := &u.Orders[orderIndex]
	if o.Status != user.OrderOpen {
		return dexerr.ErrOrderNotOpen
	}
	pos := u.FindPerpPosition(o.MarketIndex)
	if pos != nil {
		remaining := o.RemainingBaseAssetAmount()
		pos.OpenOrders--
		if o.Direction == user.Long {
			pos.OpenBids = subBig(pos.OpenBids, remaining)
		} else {
			pos.OpenAsks = addBig(pos.OpenAsks, remaining)
		}
	}
	o.Status = user.OrderCanceled
	return nil
}

// ForceCancelOrders implements force_cancel_orders (spec §6): callable only
// when the user is below initial margin; cancels every open order and adds
// the number of canceled orders to the filler's FillerVolume30D. No
// collateral moves to the filler.
func (e *Engine) ForceCancelOrders(u *user.User, filler *user.UserStats, perpMarkets margin.MarketSet, spotMarkets margin.SpotMarketSet, oracleView oracle.View) (int, error) {
	calc, err := margin.Calculate(u, perpMarkets, spotMarkets, oracleView, margin.Context{RequirementType: margin.Initial})
	if err != nil {
		return 0, err
	}
	if calc.MeetsRequirement() {
		return 0, dexerr.ErrSufficientCollateral
	}

	count := 0
	for i := range u.Orders {
		if u.Orders[i].Status == user.OrderOpen {
			if err := e.CancelOrder(u, i); err != nil {
				return count, err
			}
			count++
		}
	}
	if filler != nil && count > 0 {
		filler.RecordFillerVolume(big.NewInt(int64(count)))
	}
	return count, nil
}

// TriggerOrder implements trigger_order (spec §6, §4.2).
func (e *Engine) TriggerOrder(u *user.User, orderIndex int, crossingPrice *big.Int, nowSlot uint64, minAuctionDuration uint8, marginRatioInitial uint32) error {
	if u == nil {
		return dexerr.ErrNilUser
	}
	o := &u.Orders[orderIndex]
	return matching.EvaluateTrigger(o, crossingPrice, nowSlot, minAuctionDuration, marginRatioInitial, 10)
}

// FillPerpOrder implements fill_perp_order (spec §6): funding is settled on
// the taker's touched position before the matching loop runs (Design Notes
// §9 precondition, enforced here rather than merely documented).
func (e *Engine) FillPerpOrder(req *matching.PerpFillRequest, markets map[uint16]*market.PerpMarket) (*big.Int, error) {
	if req.Sink == nil {
		req.Sink = e.Sink
	}
	if req.NextRecordID == nil {
		req.NextRecordID = e.allocRecordID
	}
	if err := funding.SettleFundingPayment(req.Taker, markets, req.Clock.UnixTimestamp, req.Sink); err != nil {
		return nil, err
	}
	return matching.FillPerpOrder(req)
}

// FillSpotOrder implements fill_spot_order (spec §6).
func (e *Engine) FillSpotOrder(req *matching.SpotFillRequest) (*big.Int, error) {
	if req.Sink == nil {
		req.Sink = e.Sink
	}
	if req.NextRecordID == nil {
		req.NextRecordID = e.allocRecordID
	}
	return matching.FillSpotOrder(req)
}

// UpdateFundingRate implements update_funding_rate (spec §6).
func (e *Engine) UpdateFundingRate(m *market.PerpMarket, oracleView oracle.View, now int64) error {
	return funding.UpdateFundingRate(m, oracleView, now)
}

// SettleFundingPayment implements settle_funding_payment (spec §6).
func (e *Engine) SettleFundingPayment(u *user.User, markets map[uint16]*market.PerpMarket, now int64) error {
	return funding.SettleFundingPayment(u, markets, now, e.Sink)
}

// RepegAMMCurve implements repeg_amm_curve (spec §6).
func (e *Engine) RepegAMMCurve(m *market.PerpMarket, newPeg *big.Int, oracleView oracle.View) (funding.RepegResult, error) {
	return funding.Repeg(m, newPeg, oracleView)
}

// Liquidate implements liquidate (spec §6): funding is settled across every
// touched position first (Design Notes §9).
func (e *Engine) Liquidate(u *user.User, perpMarkets map[uint16]*market.PerpMarket, spotMarkets map[uint16]*market.SpotMarket, oracleView oracle.View, marginRatioPartial uint32, now int64) (liquidation.Outcome, error) {
	if err := funding.SettleFundingPayment(u, perpMarkets, now, e.Sink); err != nil {
		return liquidation.Outcome{}, err
	}
	return liquidation.Liquidate(u, perpMarkets, spotMarkets, oracleView, marginRatioPartial, now, e.Sink)
}

// UpdateMarketStatus implements update_perp_market_status (spec §4.11, §6),
// an administrative operation restricted to the status state machine's
// allowed transitions.
func (e *Engine) UpdateMarketStatus(pm *market.PerpMarket, to market.Status) error {
	next, err := market.Transition(pm.Status, to)
	if err != nil {
		return err
	}
	pm.Status = next
	return nil
}

// WithdrawFromInsuranceFund implements calculate_withdrawal_amounts (spec
// §4.10, §6): a request exceeding the vault's current balance is paid out
// to the balance and the remainder reported as socialized shortfall, rather
// than rejected outright.
func (e *Engine) WithdrawFromInsuranceFund(requested, insuranceBalance *big.Int) (payable, shortfall *big.Int) {
	return liquidation.CalculateWithdrawalAmounts(requested, insuranceBalance)
}

// SocializeInsuranceWithdrawals implements spec §4.10's pro-rata scale-down
// of a batch of insurance-fund withdrawal requests when their sum exceeds
// the vault's available balance.
func (e *Engine) SocializeInsuranceWithdrawals(requests []*big.Int, available *big.Int) []*big.Int {
	return liquidation.SocializeProRata(requests, available)
}

// InitializeMarket implements initialize_market (spec §6), an
// administrative operation: it may not overwrite an already-active market.
func (e *Engine) InitializeMarket(pm *market.PerpMarket, marketIndex uint16) error {
	if pm.Status != market.Initialized {
		return dexerr.ErrMarketAlreadyInitialized
	}
	pm.MarketIndex = marketIndex
	pm.Status = market.Initialized
	return nil
}

// InitializeUser implements initialize_user (spec §6).
func (e *Engine) InitializeUser(authority string) *user.User {
	return &user.User{Authority: authority, Stats: &user.UserStats{Authority: authority}}
}

func addBig(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	return new(big.Int).Add(a, b)
}

func subBig(a, b *big.Int) *big.Int {
	if a == nil {
		a = big.NewInt(0)
	}
	return new(big.Int).Sub(a, b)
}
