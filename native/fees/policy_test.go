package fees

import (
	"math/big"
	"testing"
)

func TestApplySplitsFeeAndNet(t *testing.T) {
	policy := Policy{FeeBps: 300}
	fee, net := policy.Apply(big.NewInt(10_000))
	if fee.Cmp(big.NewInt(300)) != 0 {
		t.Fatalf("expected fee 300, got %s", fee)
	}
	if net.Cmp(big.NewInt(9_700)) != 0 {
		t.Fatalf("expected net 9700, got %s", net)
	}
}

func TestApplyFloorsFractionalFee(t *testing.T) {
	policy := Policy{FeeBps: 300}
	fee, net := policy.Apply(big.NewInt(33))
	// 33 * 300 / 10000 = 0.99 floors to zero.
	if fee.Sign() != 0 {
		t.Fatalf("expected zero fee, got %s", fee)
	}
	if net.Cmp(big.NewInt(33)) != 0 {
		t.Fatalf("expected net unchanged, got %s", net)
	}
}

func TestApplyZeroRate(t *testing.T) {
	policy := Policy{}
	fee, net := policy.Apply(big.NewInt(500))
	if fee.Sign() != 0 || net.Cmp(big.NewInt(500)) != 0 {
		t.Fatalf("expected passthrough, got fee=%s net=%s", fee, net)
	}
}

func TestApplyNilAndNegativeGross(t *testing.T) {
	policy := Policy{FeeBps: 300}
	fee, net := policy.Apply(nil)
	if fee.Sign() != 0 || net.Sign() != 0 {
		t.Fatalf("expected zeroes for nil gross")
	}
	fee, net = policy.Apply(big.NewInt(-10))
	if fee.Sign() != 0 || net.Sign() != 0 {
		t.Fatalf("expected zeroes for negative gross")
	}
}

func TestApplyFullRateConsumesGross(t *testing.T) {
	policy := Policy{FeeBps: MaxBps}
	fee, net := policy.Apply(big.NewInt(250))
	if fee.Cmp(big.NewInt(250)) != 0 {
		t.Fatalf("expected fee to consume gross, got %s", fee)
	}
	if net.Sign() != 0 {
		t.Fatalf("expected zero net, got %s", net)
	}
}
