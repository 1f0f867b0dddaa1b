// Package dexerr collects the externally-surfaced error codes of the
// matching and settlement core (spec §6, §7). Every error returned across a
// public Engine method is one of these sentinels (or wraps one via %w); the
// engine never panics on well-formed input. A failed checked-arithmetic
// operation always surfaces as ErrMath, indicating a programming invariant
// was violated rather than a user-correctable condition.
package dexerr

import "errors"

var (
	ErrInsufficientCollateral   = errors.New("dexcore: insufficient collateral")
	ErrSufficientCollateral     = errors.New("dexcore: sufficient collateral, liquidation rejected")
	ErrMarketAlreadyInitialized = errors.New("dexcore: market index already initialized")
	ErrMarketNotInitialized     = errors.New("dexcore: market index not initialized")
	ErrTradeSizeTooSmall        = errors.New("dexcore: trade size too small")
	ErrSlippageOutsideLimit     = errors.New("dexcore: slippage outside limit")
	ErrPriceBandsBreached       = errors.New("dexcore: price bands breached")
	ErrInvalidRepegDirection    = errors.New("dexcore: invalid repeg direction")
	ErrInvalidRepegProfitability = errors.New("dexcore: invalid repeg profitability")
	ErrInvalidRepegRedundant    = errors.New("dexcore: invalid repeg, redundant")
	ErrMaxNumberOfPositions     = errors.New("dexcore: max number of positions reached")
	ErrMaxOpenInterest          = errors.New("dexcore: max open interest exceeded")
	ErrOrderDidNotSatisfyTrigger = errors.New("dexcore: order did not satisfy trigger condition")
	ErrCantTriggerIfAlreadyTriggered = errors.New("dexcore: cannot trigger an already-triggered order")
	ErrPostOnlyWouldCross       = errors.New("dexcore: post only order would cross")
	ErrUserHasNoPositionInMarket = errors.New("dexcore: user has no position in market")
	ErrOracleInvalid            = errors.New("dexcore: oracle invalid")

	// ErrMath indicates a checked arithmetic operation would overflow or
	// underflow an invariant bound. This always aborts the enclosing
	// instruction; no partial state is observable afterwards.
	ErrMath = errors.New("dexcore: math invariant violated")

	// Internal preconditions, analogous to native/lending's errNilState family.
	ErrNilMarket  = errors.New("dexcore: market not configured")
	ErrNilUser    = errors.New("dexcore: user not configured")
	ErrNilOracle  = errors.New("dexcore: oracle view not configured")
	ErrInvalidAmount = errors.New("dexcore: amount must be positive")
	ErrOrderNotOpen = errors.New("dexcore: order is not open")
	ErrNoFreeOrderSlot = errors.New("dexcore: user has no free order slot")
	ErrNoFreePositionSlot = errors.New("dexcore: user has no free position slot")
	ErrReduceOnlyViolation = errors.New("dexcore: reduce-only order would increase position")
	ErrMarketNotActive = errors.New("dexcore: market is not active for new orders")
)
