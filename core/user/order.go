// Package user models the per-authority state the matching and margin
// packages operate on: fixed-size order and position arrays, and the
// rolling-volume statistics record, grounded on the struct shape of
// native/lending.UserAccount (types.go) generalized from a single lending
// position to the order/perp/spot arrays of spec §3.
package user

import "math/big"

// OrderStatus is the lifecycle state of one order slot, spec §4.11.
type OrderStatus int8

const (
	OrderInit OrderStatus = iota
	OrderOpen
	OrderFilled
	OrderCanceled
)

// OrderType selects how an order's effective limit price is derived, spec §4.3.
type OrderType int8

const (
	Market OrderType = iota
	Limit
	TriggerMarket
	TriggerLimit
	Oracle
)

// MarketType distinguishes a perp order slot from a spot order slot.
type MarketType int8

const (
	PerpMarketType MarketType = iota
	SpotMarketType
)

// Direction is the taker/maker side of an order.
type Direction int8

const (
	Long Direction = iota
	Short
)

// TriggerCondition is the one-way state machine of spec §4.11: Above only
// ever becomes TriggeredAbove, Below only ever becomes TriggeredBelow.
type TriggerCondition int8

const (
	TriggerNone TriggerCondition = iota
	Above
	Below
	TriggeredAbove
	TriggeredBelow
)

// Order is one slot of a user's fixed 32-order array, spec §3.
type Order struct {
	Status     OrderStatus
	OrderType  OrderType
	MarketType MarketType
	MarketIndex uint16
	Direction  Direction

	BaseAssetAmount       *big.Int
	BaseAssetAmountFilled *big.Int
	QuoteAssetAmountFilled *big.Int

	Price             *big.Int // 0 = no explicit limit
	OraclePriceOffset *big.Int

	AuctionStartPrice *big.Int // signed
	AuctionEndPrice   *big.Int
	AuctionDuration   uint8 // slots
	Slot              uint64

	TriggerPrice     *big.Int
	TriggerCondition TriggerCondition

	PostOnly          bool
	ReduceOnly        bool
	ImmediateOrCancel bool
	MaxTs             int64
}

// IsAvailable reports whether this slot may be reused for a new order.
func (o *Order) IsAvailable() bool {
	return o.Status == OrderInit || o.Status == OrderFilled || o.Status == OrderCanceled
}

// RemainingBaseAssetAmount returns base_asset_amount - base_asset_amount_filled.
func (o *Order) RemainingBaseAssetAmount() *big.Int {
	if o.BaseAssetAmount == nil {
		return big.NewInt(0)
	}
	filled := o.BaseAssetAmountFilled
	if filled == nil {
		filled = big.NewInt(0)
	}
	return new(big.Int).Sub(o.BaseAssetAmount, filled)
}

// IsExpired reports whether max_ts has passed as of now (max_ts == 0 means
// no expiry).
func (o *Order) IsExpired(now int64) bool {
	return o.MaxTs != 0 && o.MaxTs < now
}

// Clone returns a deep copy of the order, matching native/lending's
// defensive-copy convention for records handed across package boundaries.
func (o *Order) Clone() *Order {
	if o == nil {
		return nil
	}
	clone := *o
	clone.BaseAssetAmount = cloneBig(o.BaseAssetAmount)
	clone.BaseAssetAmountFilled = cloneBig(o.BaseAssetAmountFilled)
	clone.QuoteAssetAmountFilled = cloneBig(o.QuoteAssetAmountFilled)
	clone.Price = cloneBig(o.Price)
	clone.OraclePriceOffset = cloneBig(o.OraclePriceOffset)
	clone.AuctionStartPrice = cloneBig(o.AuctionStartPrice)
	clone.AuctionEndPrice = cloneBig(o.AuctionEndPrice)
	clone.TriggerPrice = cloneBig(o.TriggerPrice)
	return &clone
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
