package bank

import (
	"errors"
	"math/big"
	"testing"

	"escrowd/native/escrow"
)

var (
	alice = [20]byte{1}
	bob   = [20]byte{2}
)

func TestMintAndBalance(t *testing.T) {
	l := NewLedger()
	if err := l.Mint(alice, escrow.NativeAsset(), big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	balance, err := l.BalanceOf(alice, escrow.NativeAsset())
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Int64() != 100 {
		t.Fatalf("balance %s, want 100", balance)
	}
}

func TestTransferInOut(t *testing.T) {
	l := NewLedger()
	native := escrow.NativeAsset()
	if err := l.Mint(alice, native, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}

	if err := l.TransferIn(alice, native, big.NewInt(60)); err != nil {
		t.Fatalf("transfer in: %v", err)
	}
	vault, _ := l.VaultBalance(native)
	if vault.Int64() != 60 {
		t.Fatalf("vault %s, want 60", vault)
	}

	if err := l.TransferOut(bob, native, big.NewInt(25)); err != nil {
		t.Fatalf("transfer out: %v", err)
	}
	got, _ := l.BalanceOf(bob, native)
	if got.Int64() != 25 {
		t.Fatalf("bob balance %s, want 25", got)
	}
	vault, _ = l.VaultBalance(native)
	if vault.Int64() != 35 {
		t.Fatalf("vault %s, want 35", vault)
	}
}

func TestTransferInsufficientFunds(t *testing.T) {
	l := NewLedger()
	if err := l.TransferIn(alice, escrow.NativeAsset(), big.NewInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestBalancesAreAssetScoped(t *testing.T) {
	l := NewLedger()
	token := escrow.FungibleAsset("usdc")
	if err := l.Mint(alice, token, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	if err := l.TransferIn(alice, escrow.NativeAsset(), big.NewInt(1)); !errors.Is(err, ErrInsufficientFunds) {
		t.Fatalf("token funds satisfied a native transfer: %v", err)
	}
}

func TestZeroAmountTransferIsNoop(t *testing.T) {
	l := NewLedger()
	if err := l.TransferIn(alice, escrow.NativeAsset(), big.NewInt(0)); err != nil {
		t.Fatalf("zero transfer: %v", err)
	}
	if err := l.TransferIn(alice, escrow.NativeAsset(), big.NewInt(-1)); err == nil {
		t.Fatal("negative transfer accepted")
	}
}

func TestBalanceOfReturnsCopy(t *testing.T) {
	l := NewLedger()
	native := escrow.NativeAsset()
	if err := l.Mint(alice, native, big.NewInt(100)); err != nil {
		t.Fatalf("mint: %v", err)
	}
	balance, _ := l.BalanceOf(alice, native)
	balance.SetInt64(0)
	again, _ := l.BalanceOf(alice, native)
	if again.Int64() != 100 {
		t.Fatalf("ledger balance aliased: %s", again)
	}
}
