package user

import (
	"math/big"

	"dexcore/dexerr"
)

const (
	MaxOrders        = 32
	MaxPerpPositions = 8
	MaxSpotPositions = 8
)

// User is one subaccount, holding fixed-size arrays of orders and positions
// per spec §3. Array slots are never reallocated; "delete" is a zero-out of
// the slot in place (spec §9, "fixed-size user records, no dynamic
// allocation per fill"), mirrored here as an in-place struct reset rather
// than a slice append/remove.
type User struct {
	Authority string

	Orders         [MaxOrders]Order
	PerpPositions  [MaxPerpPositions]PerpPosition
	SpotPositions  [MaxSpotPositions]SpotPosition

	Stats *UserStats

	MaxMarginRatio uint32 // custom leverage cap, MARGIN_PRECISION; 0 = no cap
	LastActiveSlot uint64

	CumulativeSpotFees    *big.Int
	CumulativePerpFunding *big.Int
}

// FindAvailableOrderSlot returns the index of the first order slot that can
// accept a new order, or -1 if all 32 are occupied.
func (u *User) FindAvailableOrderSlot() int {
	for i := range u.Orders {
		if u.Orders[i].IsAvailable() {
			return i
		}
	}
	return -1
}

// GetPerpPosition returns a pointer to the position for marketIndex,
// creating it lazily in the first empty slot on first touch (spec §3,
// "positions are created lazily on first fill"). Returns
// ErrMaxNumberOfPositions if no slot is free and none already exists.
func (u *User) GetPerpPosition(marketIndex uint16) (*PerpPosition, error) {
	var firstEmpty *PerpPosition
	for i := range u.PerpPositions {
		p := &u.PerpPositions[i]
		if p.MarketIndex == marketIndex && (p.IsOpen() || p.OpenOrders > 0) {
			return p, nil
		}
		if firstEmpty == nil && !p.IsOpen() && p.OpenOrders == 0 {
			firstEmpty = p
		}
	}
	if firstEmpty == nil {
		return nil, dexerr.ErrMaxNumberOfPositions
	}
	firstEmpty.MarketIndex = marketIndex
	return firstEmpty, nil
}

// FindPerpPosition returns the existing position for marketIndex without
// creating one, or nil.
func (u *User) FindPerpPosition(marketIndex uint16) *PerpPosition {
	for i := range u.PerpPositions {
		p := &u.PerpPositions[i]
		if p.MarketIndex == marketIndex && (p.IsOpen() || p.OpenOrders > 0) {
			return p
		}
	}
	return nil
}

// GetSpotPosition mirrors GetPerpPosition for the spot-position array.
func (u *User) GetSpotPosition(marketIndex uint16) (*SpotPosition, error) {
	var firstEmpty *SpotPosition
	for i := range u.SpotPositions {
		p := &u.SpotPositions[i]
		if p.MarketIndex == marketIndex && (p.IsOpen() || p.OpenOrders > 0) {
			return p, nil
		}
		if firstEmpty == nil && !p.IsOpen() && p.OpenOrders == 0 {
			firstEmpty = p
		}
	}
	if firstEmpty == nil {
		return nil, dexerr.ErrMaxNumberOfPositions
	}
	firstEmpty.MarketIndex = marketIndex
	return firstEmpty, nil
}

// FindSpotPosition mirrors FindPerpPosition.
func (u *User) FindSpotPosition(marketIndex uint16) *SpotPosition {
	for i := range u.SpotPositions {
		p := &u.SpotPositions[i]
		if p.MarketIndex == marketIndex && (p.IsOpen() || p.OpenOrders > 0) {
			return p
		}
	}
	return nil
}
