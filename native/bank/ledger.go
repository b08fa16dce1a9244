// Package bank provides an in-process asset ledger implementing the escrow
// engine's asset transfer capability. Accounts hold native value, fungible
// balances and item quantities; the vault account holds everything the
// escrow module has pulled in.
package bank

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"escrowd/native/escrow"
)

// ErrInsufficientFunds is returned when a transfer exceeds the source
// account's balance.
var ErrInsufficientFunds = errors.New("bank: insufficient funds")

type accountKey struct {
	addr  string
	asset string
}

// Ledger is a thread-safe account ledger. The zero-value address acts as the
// escrow vault: TransferIn moves value from an account into the vault and
// TransferOut moves it back out.
type Ledger struct {
	mu       sync.Mutex
	balances map[accountKey]*big.Int
}

// NewLedger constructs an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{balances: make(map[accountKey]*big.Int)}
}

var vaultAddr = [20]byte{}

func key(addr [20]byte, asset escrow.AssetRef) accountKey {
	return accountKey{addr: hex.EncodeToString(addr[:]), asset: asset.Key()}
}

func (l *Ledger) balance(k accountKey) *big.Int {
	if existing, ok := l.balances[k]; ok && existing != nil {
		return existing
	}
	fresh := big.NewInt(0)
	l.balances[k] = fresh
	return fresh
}

// Mint credits an account with new value. Used at bootstrap and in tests.
func (l *Ledger) Mint(addr [20]byte, asset escrow.AssetRef, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: mint amount must be non-negative")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balance(key(addr, asset))
	balance.Add(balance, amount)
	return nil
}

func (l *Ledger) move(from, to [20]byte, asset escrow.AssetRef, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("bank: transfer amount must be non-negative")
	}
	if amount.Sign() == 0 {
		return nil
	}
	if err := asset.Validate(); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	source := l.balance(key(from, asset))
	if source.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s of %s, need %s", ErrInsufficientFunds, hex.EncodeToString(from[:]), source, asset, amount)
	}
	source.Sub(source, amount)
	dest := l.balance(key(to, asset))
	dest.Add(dest, amount)
	return nil
}

// TransferIn pulls value from the account into the vault.
func (l *Ledger) TransferIn(from [20]byte, asset escrow.AssetRef, amount *big.Int) error {
	return l.move(from, vaultAddr, asset, amount)
}

// TransferOut pushes value from the vault to the account.
func (l *Ledger) TransferOut(to [20]byte, asset escrow.AssetRef, amount *big.Int) error {
	return l.move(vaultAddr, to, asset, amount)
}

// BalanceOf returns the account's balance in the supplied asset.
func (l *Ledger) BalanceOf(owner [20]byte, asset escrow.AssetRef) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(key(owner, asset))), nil
}

// VaultBalance returns the aggregate vault holding for the asset.
func (l *Ledger) VaultBalance(asset escrow.AssetRef) (*big.Int, error) {
	return l.BalanceOf(vaultAddr, asset)
}
