package escrow

import (
	"math/big"
	"testing"
)

func TestSimpleInterest(t *testing.T) {
	cases := []struct {
		name string
		base int64
		bps  uint32
		days uint64
		want int64
	}{
		{"zero days", 1000, 100, 0, 0},
		{"zero rate", 1000, 0, 5, 0},
		{"one day one percent", 1000, 100, 1, 10},
		{"three days", 500, 100, 3, 15},
		{"rounds up", 1, 1, 1, 1},
		{"rounds up fractional", 999, 1, 1, 1},
		{"exact division", 10000, 50, 2, 100},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := SimpleInterest(big.NewInt(tc.base), tc.bps, tc.days)
			if got.Int64() != tc.want {
				t.Fatalf("SimpleInterest(%d, %d, %d) = %s, want %d", tc.base, tc.bps, tc.days, got, tc.want)
			}
		})
	}
}

func TestSimpleInterestNilBase(t *testing.T) {
	if got := SimpleInterest(nil, 100, 3); got.Sign() != 0 {
		t.Fatalf("nil base accrued %s", got)
	}
}

func TestCompoundInterest(t *testing.T) {
	// 10000 at 1% daily: day1 +100 -> 10100, day2 +101 -> 10201.
	got := CompoundInterest(big.NewInt(10000), 100, 2)
	if got.Int64() != 201 {
		t.Fatalf("CompoundInterest(10000, 100, 2) = %s, want 201", got)
	}
}

func TestCompoundInterestPerDayCeiling(t *testing.T) {
	// 999 at 1 bps: each day charges ceil(999*1/10000) = 1.
	got := CompoundInterest(big.NewInt(999), 1, 3)
	if got.Int64() != 3 {
		t.Fatalf("CompoundInterest(999, 1, 3) = %s, want 3", got)
	}
}

func TestCompoundNeverBelowSimple(t *testing.T) {
	base := big.NewInt(12345)
	for days := uint64(1); days <= 30; days++ {
		simple := SimpleInterest(base, 250, days)
		compound := CompoundInterest(base, 250, days)
		if compound.Cmp(simple) < 0 {
			t.Fatalf("day %d: compound %s below simple %s", days, compound, simple)
		}
	}
}

func TestAccruedInterestDispatch(t *testing.T) {
	base := big.NewInt(10000)
	if got := AccruedInterest(InterestSimple, base, 100, 2); got.Int64() != 200 {
		t.Fatalf("simple dispatch = %s, want 200", got)
	}
	if got := AccruedInterest(InterestCompound, base, 100, 2); got.Int64() != 201 {
		t.Fatalf("compound dispatch = %s, want 201", got)
	}
}

func TestInterestModelString(t *testing.T) {
	if InterestSimple.String() != "simple" || InterestCompound.String() != "compound" {
		t.Fatalf("unexpected model names %q %q", InterestSimple, InterestCompound)
	}
	if !InterestSimple.Valid() || !InterestCompound.Valid() || InterestModel(9).Valid() {
		t.Fatal("model validity mismatch")
	}
}
