package escrow

import (
	"fmt"
	"math/big"
)

// GuaranteeItem is a single collateral position offered by the depositor
// when funding the guarantee vault.
type GuaranteeItem struct {
	Asset  AssetRef
	Amount *big.Int
}

// ProvideGuarantee funds the guarantee vault for an escrow that requires
// collateral. The whole multi-asset guarantee is provided in one call and
// the provided flag flips once, irreversibly; no further guarantee may be
// added afterwards.
func (e *Engine) ProvideGuarantee(id uint64, caller [20]byte, items []GuaranteeItem) error {
	if err := e.ready(); err != nil {
		return err
	}
	if e.allowList == nil {
		return errNilAllowList
	}
	if err := e.enter(id); err != nil {
		return err
	}
	defer e.leave(id)

	record, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != record.Depositor {
		return ErrNotDepositor
	}
	if !record.RequiresGuarantee {
		return ErrGuaranteeNotRequired
	}
	if record.GuaranteeProvided {
		return ErrGuaranteeAlreadyProvided
	}
	if record.State != EscrowInactive {
		return ErrNotInactive
	}
	if len(items) == 0 {
		return ErrInvalidAmount
	}
	seen := make(map[string]bool, len(items))
	for i, item := range items {
		if err := item.Asset.Validate(); err != nil {
			return err
		}
		key := item.Asset.Key()
		if seen[key] {
			return fmt.Errorf("%w: duplicate guarantee asset %s", ErrInvalidAsset, key)
		}
		seen[key] = true
		switch item.Asset.Kind {
		case AssetNative:
		case AssetFungible:
			if !e.allowList.IsAssetAllowed(item.Asset.Token) {
				return fmt.Errorf("%w: %s", ErrAssetNotAllowed, item.Asset.Token)
			}
		case AssetNonFungible, AssetSemiFungible:
			if !e.allowList.IsAssetAllowed(item.Asset.Token) {
				return fmt.Errorf("%w: %s", ErrAssetNotAllowed, item.Asset.Token)
			}
			if !e.allowList.IsItemAllowed(item.Asset.Token, item.Asset.ItemID) {
				return fmt.Errorf("%w: %s item %s", ErrItemNotAllowed, item.Asset.Token, item.Asset.ItemID)
			}
		}
		if item.Amount == nil || item.Amount.Sign() <= 0 {
			return fmt.Errorf("%w: guarantee item %d", ErrInvalidAmount, i)
		}
		if item.Asset.Kind == AssetNonFungible && item.Amount.Cmp(big.NewInt(1)) != 0 {
			return fmt.Errorf("%w: unique item quantity must be 1", ErrInvalidAmount)
		}
	}

	snapshot := record.Clone()
	for _, item := range items {
		entry := &GuaranteeEntry{Asset: item.Asset.Clone(), Amount: new(big.Int).Set(item.Amount)}
		if err := e.state.GuaranteePut(id, entry); err != nil {
			return err
		}
	}
	record.GuaranteeProvided = true
	if err := e.storeEscrow(record); err != nil {
		return err
	}

	// Bookkeeping is final; pull the collateral in. If the first transfer
	// fails the whole provision is unwound.
	moved := false
	for _, item := range items {
		if err := e.assets.TransferIn(record.Depositor, item.Asset, item.Amount); err != nil {
			if !moved {
				for _, undo := range items {
					if delErr := e.state.GuaranteeDelete(id, undo.Asset.Key()); delErr != nil {
						return fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, delErr)
					}
				}
				if putErr := e.state.EscrowPut(snapshot); putErr != nil {
					return fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, putErr)
				}
				return fmt.Errorf("%w: %v", ErrTransferFailed, err)
			}
			if delErr := e.state.GuaranteeDelete(id, item.Asset.Key()); delErr != nil {
				return fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, delErr)
			}
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		moved = true
	}
	e.emit(NewGuaranteeProvidedEvent(record, items))
	return nil
}

// ReturnGuarantee returns a specific collateral position to the depositor
// once the escrow is complete. Each guarantee entry is zeroed exactly once;
// returning it again fails.
func (e *Engine) ReturnGuarantee(id uint64, caller [20]byte, asset AssetRef) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.enter(id); err != nil {
		return err
	}
	defer e.leave(id)

	record, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if caller != record.Depositor {
		return ErrNotDepositor
	}
	if record.State != EscrowComplete {
		return ErrNotComplete
	}
	if !record.Approvals.All() && record.Disputed {
		return ErrDisputed
	}
	entry, ok, err := e.state.GuaranteeGet(id, asset.Key())
	if err != nil {
		return err
	}
	if !ok {
		return ErrGuaranteeNotFound
	}
	if entry.Returned {
		return ErrGuaranteeAlreadyReturned
	}
	amount := new(big.Int).Set(entry.Amount)
	entry.Returned = true
	if err := e.state.GuaranteePut(id, entry); err != nil {
		return err
	}

	if err := e.assets.TransferOut(record.Depositor, asset, amount); err != nil {
		entry.Returned = false
		if putErr := e.state.GuaranteePut(id, entry); putErr != nil {
			return fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, putErr)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(NewGuaranteeReturnedEvent(record, asset, amount))
	return nil
}
