package state

import (
	"errors"
	"math/big"
	"testing"

	"escrowd/native/escrow"
	"escrowd/storage"
)

var testAdmin = [20]byte{0xAD}

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	return NewManager(storage.NewMemDB(), testAdmin)
}

func TestNextEscrowIDMonotonic(t *testing.T) {
	m := newTestManager(t)
	for want := uint64(1); want <= 5; want++ {
		got, err := m.NextEscrowID()
		if err != nil {
			t.Fatalf("next id: %v", err)
		}
		if got != want {
			t.Fatalf("id %d, want %d", got, want)
		}
	}
}

func TestEscrowRecordRoundTrip(t *testing.T) {
	m := newTestManager(t)
	record := &escrow.EscrowRecord{
		ID:                     1,
		Depositor:              [20]byte{1},
		Beneficiary:            [20]byte{2},
		Arbiter:                [20]byte{3},
		State:                  escrow.EscrowActive,
		PaymentAsset:           escrow.NativeAsset(),
		TotalAmount:            big.NewInt(900),
		TotalInstallments:      3,
		PaymentIntervalSeconds: 60,
		Schedule: []*escrow.InstallmentDetail{
			{DueDate: 60, Amount: big.NewInt(300)},
			{DueDate: 120, Amount: big.NewInt(300), Paid: true},
			{DueDate: 180, Amount: big.NewInt(300)},
		},
		InstallmentsPaid: 1,
	}
	if err := m.EscrowPut(record); err != nil {
		t.Fatalf("put: %v", err)
	}
	loaded, ok := m.EscrowGet(1)
	if !ok {
		t.Fatal("record not found after put")
	}
	if loaded.TotalAmount.Cmp(record.TotalAmount) != 0 {
		t.Fatalf("total %s, want %s", loaded.TotalAmount, record.TotalAmount)
	}
	if len(loaded.Schedule) != 3 || !loaded.Schedule[1].Paid || loaded.Schedule[0].Paid {
		t.Fatalf("schedule did not survive round trip: %+v", loaded.Schedule)
	}
	if loaded.State != escrow.EscrowActive {
		t.Fatalf("state %v, want active", loaded.State)
	}
}

func TestEscrowPutRejectsInvalidRecord(t *testing.T) {
	m := newTestManager(t)
	if err := m.EscrowPut(&escrow.EscrowRecord{ID: 1}); err == nil {
		t.Fatal("expected sanitize failure for empty record")
	}
}

func TestBalanceAccounting(t *testing.T) {
	m := newTestManager(t)
	native := escrow.NativeAsset()

	if err := m.EscrowCredit(1, native, big.NewInt(500)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	if err := m.EscrowDebit(1, native, big.NewInt(200)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	balance, err := m.EscrowBalance(1, native)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Int64() != 300 {
		t.Fatalf("balance %s, want 300", balance)
	}

	if err := m.EscrowDebit(1, native, big.NewInt(301)); !errors.Is(err, escrow.ErrInsufficientBalance) {
		t.Fatalf("overdraft: %v", err)
	}

	// Balances are keyed per escrow and per asset.
	other, _ := m.EscrowBalance(2, native)
	if other.Sign() != 0 {
		t.Fatalf("cross-escrow balance leak: %s", other)
	}
	token, _ := m.EscrowBalance(1, escrow.FungibleAsset("usdc"))
	if token.Sign() != 0 {
		t.Fatalf("cross-asset balance leak: %s", token)
	}
}

func TestGuaranteeLedger(t *testing.T) {
	m := newTestManager(t)
	nft := escrow.NonFungibleAsset("deed", big.NewInt(7))
	entries := []*escrow.GuaranteeEntry{
		{Asset: escrow.NativeAsset(), Amount: big.NewInt(100)},
		{Asset: nft, Amount: big.NewInt(1)},
	}
	for _, entry := range entries {
		if err := m.GuaranteePut(1, entry); err != nil {
			t.Fatalf("put %s: %v", entry.Asset.Key(), err)
		}
	}

	entry, ok, err := m.GuaranteeGet(1, nft.Key())
	if err != nil || !ok {
		t.Fatalf("get nft entry: ok=%v err=%v", ok, err)
	}
	if entry.Amount.Int64() != 1 || entry.Returned {
		t.Fatalf("unexpected entry %+v", entry)
	}

	listed, err := m.GuaranteeList(1)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("listed %d entries, want 2", len(listed))
	}

	otherEscrow, err := m.GuaranteeList(2)
	if err != nil {
		t.Fatalf("list other: %v", err)
	}
	if len(otherEscrow) != 0 {
		t.Fatalf("guarantee leak across escrows: %d entries", len(otherEscrow))
	}

	if err := m.GuaranteeDelete(1, nft.Key()); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := m.GuaranteeGet(1, nft.Key()); ok {
		t.Fatal("entry survived delete")
	}
}

func TestFeeAccounting(t *testing.T) {
	m := newTestManager(t)
	native := escrow.NativeAsset()

	if err := m.FeeAccrue(native, big.NewInt(7)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	if err := m.FeeAccrue(native, big.NewInt(3)); err != nil {
		t.Fatalf("accrue: %v", err)
	}
	balance, err := m.FeeBalance(native)
	if err != nil {
		t.Fatalf("fee balance: %v", err)
	}
	if balance.Int64() != 10 {
		t.Fatalf("fees %s, want 10", balance)
	}
	if err := m.FeeReset(native); err != nil {
		t.Fatalf("reset: %v", err)
	}
	balance, _ = m.FeeBalance(native)
	if balance.Sign() != 0 {
		t.Fatalf("fees %s after reset", balance)
	}
}

func TestRegistriesAreAdminGated(t *testing.T) {
	m := newTestManager(t)
	intruder := [20]byte{0xBB}
	arbiter := [20]byte{0xCC}

	if err := m.SetAssetAllowed(intruder, "usdc", true); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := m.SetPaused(intruder, "escrow", true); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}

	if err := m.SetAssetAllowed(testAdmin, "usdc", true); err != nil {
		t.Fatalf("allow asset: %v", err)
	}
	if !m.IsAssetAllowed("usdc") || m.IsAssetAllowed("other") {
		t.Fatal("asset allow list mismatch")
	}

	if err := m.SetItemAllowed(testAdmin, "deed", big.NewInt(7), true); err != nil {
		t.Fatalf("allow item: %v", err)
	}
	if !m.IsItemAllowed("deed", big.NewInt(7)) || m.IsItemAllowed("deed", big.NewInt(8)) {
		t.Fatal("item allow list mismatch")
	}

	if err := m.SetArbiterAllowed(testAdmin, arbiter, true); err != nil {
		t.Fatalf("allow arbiter: %v", err)
	}
	if !m.IsArbiterAllowed(arbiter) {
		t.Fatal("arbiter not allowed after set")
	}
	if err := m.SetArbiterAllowed(testAdmin, arbiter, false); err != nil {
		t.Fatalf("disallow arbiter: %v", err)
	}
	if m.IsArbiterAllowed(arbiter) {
		t.Fatal("arbiter still allowed after unset")
	}

	if err := m.SetPaused(testAdmin, "escrow", true); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if !m.IsPaused("escrow") || m.IsPaused("other") {
		t.Fatal("pause registry mismatch")
	}
}
