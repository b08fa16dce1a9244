package fees

import "math/big"

var basisPoints = big.NewInt(10_000)

// MaxBps is the upper bound accepted for any basis-point rate.
const MaxBps uint32 = 10_000

// Policy captures the platform fee configuration applied to escrow
// distributions. The rate is expressed in basis points of the distributed
// amount.
type Policy struct {
	FeeBps   uint32
	Treasury [20]byte
}

// Clone returns a copy of the policy so callers cannot alias the stored
// configuration.
func (p Policy) Clone() Policy {
	return Policy{FeeBps: p.FeeBps, Treasury: p.Treasury}
}

// Valid reports whether the configured rate is within the supported range.
func (p Policy) Valid() bool {
	return p.FeeBps <= MaxBps
}

// Apply computes the platform fee owed on the supplied gross amount and the
// net remainder. The fee is floored and clamped so the net amount is never
// negative; a nil or non-positive gross yields zero fee and zero net.
func (p Policy) Apply(gross *big.Int) (fee, net *big.Int) {
	fee = big.NewInt(0)
	net = big.NewInt(0)
	if gross == nil || gross.Sign() <= 0 {
		return fee, net
	}
	net = new(big.Int).Set(gross)
	if p.FeeBps == 0 {
		return fee, net
	}
	fee = new(big.Int).Mul(net, big.NewInt(int64(p.FeeBps)))
	fee.Div(fee, basisPoints)
	if fee.Sign() <= 0 {
		fee = big.NewInt(0)
		return fee, net
	}
	if fee.Cmp(net) >= 0 {
		fee = new(big.Int).Set(net)
		net = big.NewInt(0)
		return fee, net
	}
	net = new(big.Int).Sub(net, fee)
	return fee, net
}
