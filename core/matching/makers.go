package matching

import (
	"math/big"
	"sort"

	"dexcore/core/user"
)

// MaxMakerEntries bounds the staging vector built by SelectMakers (spec
// §4.4, §5): the matching loop must not allocate beyond this bound.
const MaxMakerEntries = 64

// MakerCandidate is one (maker authority, order slot index) pair the caller
// proposes as a potential counterparty (spec §4.4 input).
type MakerCandidate struct {
	MakerKey   string
	OrderIndex int
	Order      *user.Order
	Position   *user.PerpPosition // nil for a spot candidate; used only for the reduce-only check
	Price      *big.Int           // the candidate's effective limit price at the current slot, pre-computed by the caller
	Arrival    int                // input-list position, used to break price ties deterministically
}

// MakerEntry is a validated, priced candidate ready for the matching loop.
type MakerEntry struct {
	MakerKey   string
	OrderIndex int
	Price      *big.Int
	Arrival    int
}

// CancelReason explains why a candidate was dropped during selection.
type CancelReason int8

const (
	CancelWrongMarket CancelReason = iota
	CancelSameDirection
	CancelNotOpen
	CancelExpired
	CancelReduceOnlyViolation
	CancelPriceBandBreach
)

// Cancellation records a maker order that SelectMakers dropped as a side
// effect. CreditsFiller is set for expired, reduce-only and price-band
// drops; applyCancellations records each such drop on the filler's stats
// with a zero amount, and no collateral moves from the maker to the filler.
type Cancellation struct {
	MakerKey      string
	OrderIndex    int
	Reason        CancelReason
	CreditsFiller bool
}

// SelectMakers implements get_maker_orders_info (spec §4.4): filters
// candidates for eligibility, drops price-band breaches (flagged
// CreditsFiller), and returns the remaining entries sorted into a bounded
// (MaxMakerEntries) vector in taker-favorable price order -- ascending when
// the taker is buying (asks), descending when the taker is selling (bids) --
// with ties broken by arrival order. jitMakerOrderID, if nonzero, excludes
// that maker order index from the result (a privileged taker hint).
func SelectMakers(
	candidates []MakerCandidate,
	taker *user.Order,
	now int64,
	oraclePrice *big.Int,
	marginRatioInitial uint32,
	jitMakerOrderID int,
) ([]MakerEntry, []Cancellation) {
	var entries []MakerEntry
	var cancellations []Cancellation

	for _, c := range candidates {
		o := c.Order
		if o == nil {
			continue
		}
		if o.MarketIndex != taker.MarketIndex || o.MarketType != taker.MarketType {
			continue
		}
		if o.Direction == taker.Direction {
			continue
		}
		if o.Status != user.OrderOpen {
			cancellations = append(cancellations, Cancellation{c.MakerKey, c.OrderIndex, CancelNotOpen, false})
			continue
		}
		if o.IsExpired(now) {
			cancellations = append(cancellations, Cancellation{c.MakerKey, c.OrderIndex, CancelExpired, true})
			continue
		}
		if o.ReduceOnly && c.Position != nil && !reducesPosition(c.Position, o.Direction) {
			cancellations = append(cancellations, Cancellation{c.MakerKey, c.OrderIndex, CancelReduceOnlyViolation, true})
			continue
		}
		if jitMakerOrderID != 0 && c.OrderIndex == jitMakerOrderID {
			continue
		}
		if MakerOrderBreachesPriceBand(o.Direction, c.Price, oraclePrice, marginRatioInitial) {
			cancellations = append(cancellations, Cancellation{c.MakerKey, c.OrderIndex, CancelPriceBandBreach, true})
			continue
		}
		entries = append(entries, MakerEntry{MakerKey: c.MakerKey, OrderIndex: c.OrderIndex, Price: c.Price, Arrival: c.Arrival})
	}

	// Taker buying (Long) wants asks sorted ascending; taker selling (Short)
	// wants bids sorted descending. Both cases: "better for taker" first.
	ascending := taker.Direction == user.Long
	sort.SliceStable(entries, func(i, j int) bool {
		cmp := entries[i].Price.Cmp(entries[j].Price)
		if cmp == 0 {
			return entries[i].Arrival < entries[j].Arrival
		}
		if ascending {
			return cmp < 0
		}
		return cmp > 0
	})

	if len(entries) > MaxMakerEntries {
		entries = entries[:MaxMakerEntries]
	}
	return entries, cancellations
}

// reducesPosition reports whether a maker order with the given direction
// would reduce (not increase) the maker's existing position.
func reducesPosition(pos *user.PerpPosition, orderDirection user.Direction) bool {
	if pos.BaseAssetAmount == nil || pos.BaseAssetAmount.Sign() == 0 {
		return false
	}
	if pos.IsLong() {
		return orderDirection == user.Short
	}
	return orderDirection == user.Long
}
