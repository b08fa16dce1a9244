package escrow

import (
	"fmt"
	"math/big"
	"strings"
)

// AssetKind discriminates the supported collateral and payment asset
// families. Transfer behaviour is selected per kind through the single
// AssetTransfer capability rather than duplicated branches at call sites.
type AssetKind uint8

const (
	// AssetNative denotes the environment's native value unit.
	AssetNative AssetKind = iota
	// AssetFungible denotes a standard fungible token balance.
	AssetFungible
	// AssetNonFungible denotes a unique item identified by token and item id.
	AssetNonFungible
	// AssetSemiFungible denotes a quantified item identified by token and
	// item id.
	AssetSemiFungible
)

// Valid reports whether the kind is within the supported range.
func (k AssetKind) Valid() bool {
	switch k {
	case AssetNative, AssetFungible, AssetNonFungible, AssetSemiFungible:
		return true
	default:
		return false
	}
}

// String returns the canonical short name used in ledger keys and events.
func (k AssetKind) String() string {
	switch k {
	case AssetNative:
		return "native"
	case AssetFungible:
		return "fungible"
	case AssetNonFungible:
		return "nft"
	case AssetSemiFungible:
		return "sft"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(k))
	}
}

// AssetRef is a tagged reference to an asset. Token is empty for the native
// asset; ItemID is set only for non- and semi-fungible items.
type AssetRef struct {
	Kind   AssetKind
	Token  string
	ItemID *big.Int
}

// NativeAsset returns the reference for the native value unit.
func NativeAsset() AssetRef {
	return AssetRef{Kind: AssetNative}
}

// FungibleAsset returns a reference to a fungible token balance.
func FungibleAsset(token string) AssetRef {
	return AssetRef{Kind: AssetFungible, Token: strings.ToUpper(strings.TrimSpace(token))}
}

// NonFungibleAsset returns a reference to a unique item.
func NonFungibleAsset(token string, itemID *big.Int) AssetRef {
	return AssetRef{Kind: AssetNonFungible, Token: strings.ToUpper(strings.TrimSpace(token)), ItemID: cloneBigInt(itemID)}
}

// SemiFungibleAsset returns a reference to a quantified item.
func SemiFungibleAsset(token string, itemID *big.Int) AssetRef {
	return AssetRef{Kind: AssetSemiFungible, Token: strings.ToUpper(strings.TrimSpace(token)), ItemID: cloneBigInt(itemID)}
}

// Clone returns a deep copy of the reference.
func (a AssetRef) Clone() AssetRef {
	clone := AssetRef{Kind: a.Kind, Token: a.Token}
	if a.ItemID != nil {
		clone.ItemID = new(big.Int).Set(a.ItemID)
	}
	return clone
}

// Validate checks the reference is internally consistent.
func (a AssetRef) Validate() error {
	if !a.Kind.Valid() {
		return fmt.Errorf("%w: unknown asset kind %d", ErrInvalidAsset, a.Kind)
	}
	switch a.Kind {
	case AssetNative:
		if a.Token != "" || a.ItemID != nil {
			return fmt.Errorf("%w: native asset carries no token or item id", ErrInvalidAsset)
		}
	case AssetFungible:
		if strings.TrimSpace(a.Token) == "" {
			return fmt.Errorf("%w: fungible asset requires a token", ErrInvalidAsset)
		}
		if a.ItemID != nil {
			return fmt.Errorf("%w: fungible asset carries no item id", ErrInvalidAsset)
		}
	case AssetNonFungible, AssetSemiFungible:
		if strings.TrimSpace(a.Token) == "" {
			return fmt.Errorf("%w: item asset requires a token", ErrInvalidAsset)
		}
		if a.ItemID == nil || a.ItemID.Sign() < 0 {
			return fmt.Errorf("%w: item asset requires a non-negative item id", ErrInvalidAsset)
		}
	}
	return nil
}

// Key returns the canonical ledger key for the asset. Distinct assets always
// map to distinct keys.
func (a AssetRef) Key() string {
	switch a.Kind {
	case AssetNative:
		return "native"
	case AssetFungible:
		return "fungible:" + a.Token
	default:
		item := "0"
		if a.ItemID != nil {
			item = a.ItemID.String()
		}
		return a.Kind.String() + ":" + a.Token + ":" + item
	}
}

// Equal reports whether two references denote the same asset.
func (a AssetRef) Equal(b AssetRef) bool {
	return a.Key() == b.Key()
}

// String implements fmt.Stringer using the ledger key form.
func (a AssetRef) String() string { return a.Key() }

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return nil
	}
	return new(big.Int).Set(v)
}
