package escrow

import (
	"errors"
	"math/big"
	"testing"
)

func TestAssetKeys(t *testing.T) {
	cases := []struct {
		ref  AssetRef
		want string
	}{
		{NativeAsset(), "native"},
		{FungibleAsset("usdc"), "fungible:USDC"},
		{NonFungibleAsset("deed", big.NewInt(7)), "nft:DEED:7"},
		{SemiFungibleAsset("ticket", big.NewInt(12)), "sft:TICKET:12"},
	}
	for _, tc := range cases {
		if got := tc.ref.Key(); got != tc.want {
			t.Fatalf("Key() = %q, want %q", got, tc.want)
		}
	}
}

func TestAssetValidate(t *testing.T) {
	if err := NativeAsset().Validate(); err != nil {
		t.Fatalf("native: %v", err)
	}
	if err := FungibleAsset("").Validate(); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("empty token: %v", err)
	}
	if err := NonFungibleAsset("deed", nil).Validate(); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("nil item id: %v", err)
	}
	if err := (AssetRef{Kind: AssetNative, Token: "x"}).Validate(); !errors.Is(err, ErrInvalidAsset) {
		t.Fatalf("native with token: %v", err)
	}
}

func TestAssetEqual(t *testing.T) {
	a := NonFungibleAsset("deed", big.NewInt(7))
	b := NonFungibleAsset("deed", big.NewInt(7))
	if !a.Equal(b) {
		t.Fatal("identical refs not equal")
	}
	if a.Equal(NonFungibleAsset("deed", big.NewInt(8))) {
		t.Fatal("different items compared equal")
	}
	if a.Equal(SemiFungibleAsset("deed", big.NewInt(7))) {
		t.Fatal("different kinds compared equal")
	}
}

func TestAssetCloneIsDeep(t *testing.T) {
	a := NonFungibleAsset("deed", big.NewInt(7))
	clone := a.Clone()
	clone.ItemID.SetInt64(99)
	if a.ItemID.Int64() != 7 {
		t.Fatalf("clone aliased item id: %s", a.ItemID)
	}
}
