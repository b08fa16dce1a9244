package escrow

import (
	"fmt"
	"math/big"
)

var basisPoints = big.NewInt(10_000)

// InterestModel selects how late-payment interest accrues on an overdue
// installment.
type InterestModel uint8

const (
	// InterestSimple charges a flat daily rate on the base amount.
	InterestSimple InterestModel = iota
	// InterestCompound capitalises the accrued interest day by day.
	InterestCompound
)

// Valid reports whether the model value is within the supported range.
func (m InterestModel) Valid() bool {
	return m == InterestSimple || m == InterestCompound
}

// String returns the canonical name used in events and the query surface.
func (m InterestModel) String() string {
	switch m {
	case InterestSimple:
		return "simple"
	case InterestCompound:
		return "compound"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(m))
	}
}

// ceilDiv returns ceil(num / den) for positive den. Rounding up avoids
// under-charging on fractional daily interest.
func ceilDiv(num, den *big.Int) *big.Int {
	quo, rem := new(big.Int).QuoRem(num, den, new(big.Int))
	if rem.Sign() != 0 {
		quo.Add(quo, big.NewInt(1))
	}
	return quo
}

// SimpleInterest computes ceil(base * rateBps * days / 10000). A zero base,
// rate or day count yields zero interest.
func SimpleInterest(base *big.Int, rateBps uint32, overdueDays uint64) *big.Int {
	if base == nil || base.Sign() <= 0 || rateBps == 0 || overdueDays == 0 {
		return big.NewInt(0)
	}
	num := new(big.Int).Mul(base, big.NewInt(int64(rateBps)))
	num.Mul(num, new(big.Int).SetUint64(overdueDays))
	return ceilDiv(num, basisPoints)
}

// CompoundInterest accrues interest day by day, each day adding
// ceil(current * rateBps / 10000) to the running total, and returns only the
// accumulated interest. The per-day loop mirrors the contractual daily
// accrual promise exactly, including the per-day ceiling.
func CompoundInterest(base *big.Int, rateBps uint32, overdueDays uint64) *big.Int {
	if base == nil || base.Sign() <= 0 || rateBps == 0 || overdueDays == 0 {
		return big.NewInt(0)
	}
	rate := big.NewInt(int64(rateBps))
	current := new(big.Int).Set(base)
	for day := uint64(0); day < overdueDays; day++ {
		daily := ceilDiv(new(big.Int).Mul(current, rate), basisPoints)
		current.Add(current, daily)
	}
	return current.Sub(current, base)
}

// AccruedInterest dispatches to the configured interest model.
func AccruedInterest(model InterestModel, base *big.Int, rateBps uint32, overdueDays uint64) *big.Int {
	if model == InterestCompound {
		return CompoundInterest(base, rateBps, overdueDays)
	}
	return SimpleInterest(base, rateBps, overdueDays)
}
