package liquidation

import "math/big"

// CalculateWithdrawalAmounts implements calculate_withdrawal_amounts (spec
// §4.10): when the insurance vault balance is insufficient to cover a
// requested withdrawal, the deficit is socialized by pro-rating the
// withdrawable amount down to the available balance. Returns the amount
// actually payable and the shortfall that was socialized away.
func CalculateWithdrawalAmounts(requested, insuranceBalance *big.Int) (payable, shortfall *big.Int) {
	if requested == nil || requested.Sign() <= 0 {
		return big.NewInt(0), big.NewInt(0)
	}
	if insuranceBalance == nil || insuranceBalance.Sign() <= 0 {
		return big.NewInt(0), new(big.Int).Set(requested)
	}
	if insuranceBalance.Cmp(requested) >= 0 {
		return new(big.Int).Set(requested), big.NewInt(0)
	}
	return new(big.Int).Set(insuranceBalance), new(big.Int).Sub(requested, insuranceBalance)
}

// SocializeProRata scales every requester's withdrawal proportionally to
// the available balance when the sum of requests exceeds it.
func SocializeProRata(requests []*big.Int, available *big.Int) []*big.Int {
	total := big.NewInt(0)
	for _, r := range requests {
		if r != nil {
			total.Add(total, r)
		}
	}
	out := make([]*big.Int, len(requests))
	if available == nil || total.Sign() == 0 || available.Cmp(total) >= 0 {
		for i, r := range requests {
			if r == nil {
				out[i] = big.NewInt(0)
				continue
			}
			out[i] = new(big.Int).Set(r)
		}
		return out
	}
	for i, r := range requests {
		if r == nil {
			out[i] = big.NewInt(0)
			continue
		}
		scaled := new(big.Int).Mul(r, available)
		scaled.Quo(scaled, total)
		out[i] = scaled
	}
	return out
}
