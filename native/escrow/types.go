package escrow

import (
	"fmt"
	"math/big"
)

// EscrowState represents the lifecycle states of an escrow record.
type EscrowState uint8

const (
	// EscrowInactive marks a freshly created record awaiting activation.
	EscrowInactive EscrowState = iota
	// EscrowActive marks a record accepting installment payments.
	EscrowActive
	// EscrowDisputed marks a record frozen pending arbitration or
	// settlement.
	EscrowDisputed
	// EscrowComplete is terminal; only the guarantee ledger's single
	// zeroing on return mutates afterwards.
	EscrowComplete
)

// Valid reports whether the state value is within the supported range.
func (s EscrowState) Valid() bool {
	switch s {
	case EscrowInactive, EscrowActive, EscrowDisputed, EscrowComplete:
		return true
	default:
		return false
	}
}

// String returns the canonical name used in events and the query surface.
func (s EscrowState) String() string {
	switch s {
	case EscrowInactive:
		return "inactive"
	case EscrowActive:
		return "active"
	case EscrowDisputed:
		return "disputed"
	case EscrowComplete:
		return "complete"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(s))
	}
}

// Approvals tracks the three independent party sign-off bits.
type Approvals struct {
	Depositor   bool
	Beneficiary bool
	Arbiter     bool
}

// All reports unanimous approval.
func (a Approvals) All() bool {
	return a.Depositor && a.Beneficiary && a.Arbiter
}

// SettlementProposal is a voluntary split proposed by one party and
// acceptable by the other before the deadline elapses.
type SettlementProposal struct {
	AmountToDepositor   *big.Int
	AmountToBeneficiary *big.Int
	Proposer            [20]byte
	ProposedAt          int64
}

// Clone returns a deep copy of the proposal.
func (p *SettlementProposal) Clone() *SettlementProposal {
	if p == nil {
		return nil
	}
	clone := *p
	if p.AmountToDepositor != nil {
		clone.AmountToDepositor = new(big.Int).Set(p.AmountToDepositor)
	}
	if p.AmountToBeneficiary != nil {
		clone.AmountToBeneficiary = new(big.Int).Set(p.AmountToBeneficiary)
	}
	return &clone
}

// EscrowRecord is the central entity of the module: parties, schedule,
// payment progress, approvals, dispute flag, settlement proposal and the
// timeout deadlines. Identifiers increase monotonically from 1; id 0 is
// reserved and invalid.
type EscrowRecord struct {
	ID          uint64
	Depositor   [20]byte
	Beneficiary [20]byte
	Arbiter     [20]byte

	State                EscrowState
	RequiresGuarantee    bool
	GuaranteeProvided    bool
	AllowPartialWithdraw bool

	PaymentAsset           AssetRef
	TotalAmount            *big.Int
	TotalInstallments      uint32
	InstallmentsPaid       uint32
	PaymentIntervalSeconds int64
	DailyInterestRateBps   uint32
	InterestModel          InterestModel

	CreatedAt          int64
	StartedAt          int64
	LastPaymentAt      int64
	AutoExecuteAt      int64
	SettlementDeadline int64
	LastInteraction    int64

	Approvals Approvals

	Disputed        bool
	DisputeRaisedBy [20]byte

	Settlement *SettlementProposal

	Schedule []*InstallmentDetail
}

// Clone returns a deep copy so callers can mutate the copy without touching
// the stored instance.
func (r *EscrowRecord) Clone() *EscrowRecord {
	if r == nil {
		return nil
	}
	clone := *r
	if r.TotalAmount != nil {
		clone.TotalAmount = new(big.Int).Set(r.TotalAmount)
	} else {
		clone.TotalAmount = big.NewInt(0)
	}
	clone.PaymentAsset = r.PaymentAsset.Clone()
	clone.Settlement = r.Settlement.Clone()
	if len(r.Schedule) > 0 {
		clone.Schedule = make([]*InstallmentDetail, len(r.Schedule))
		for i, detail := range r.Schedule {
			clone.Schedule[i] = detail.Clone()
		}
	}
	return &clone
}

// UnpaidInstallments returns the count of installments still outstanding.
func (r *EscrowRecord) UnpaidInstallments() uint32 {
	if r == nil || r.InstallmentsPaid >= r.TotalInstallments {
		return 0
	}
	return r.TotalInstallments - r.InstallmentsPaid
}

// NextUnpaid returns the earliest unpaid schedule entry, or nil when the
// schedule is settled.
func (r *EscrowRecord) NextUnpaid() *InstallmentDetail {
	if r == nil {
		return nil
	}
	for _, detail := range r.Schedule {
		if detail != nil && !detail.Paid {
			return detail
		}
	}
	return nil
}

// IsParty reports whether the address is the depositor, beneficiary or
// arbiter of the record.
func (r *EscrowRecord) IsParty(addr [20]byte) bool {
	if r == nil {
		return false
	}
	return addr == r.Depositor || addr == r.Beneficiary || addr == r.Arbiter
}

// SanitizeRecord validates invariants on a record prior to persistence and
// returns a defensive clone. The original value is never mutated.
func SanitizeRecord(r *EscrowRecord) (*EscrowRecord, error) {
	if r == nil {
		return nil, fmt.Errorf("escrow: nil record")
	}
	clone := r.Clone()
	if clone.ID == 0 {
		return nil, fmt.Errorf("escrow: record id 0 is reserved")
	}
	if !clone.State.Valid() {
		return nil, fmt.Errorf("escrow: invalid state %d", clone.State)
	}
	if err := clone.PaymentAsset.Validate(); err != nil {
		return nil, err
	}
	if clone.TotalAmount.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if clone.TotalInstallments == 0 {
		return nil, ErrInvalidInstallments
	}
	if clone.InstallmentsPaid > clone.TotalInstallments {
		return nil, fmt.Errorf("escrow: installments paid %d exceeds total %d", clone.InstallmentsPaid, clone.TotalInstallments)
	}
	if clone.DailyInterestRateBps >= 10_000 {
		return nil, ErrInterestRateTooHigh
	}
	if len(clone.Schedule) != int(clone.TotalInstallments) {
		return nil, fmt.Errorf("escrow: schedule length %d does not match installment count %d", len(clone.Schedule), clone.TotalInstallments)
	}
	sum := big.NewInt(0)
	for _, detail := range clone.Schedule {
		if detail == nil || detail.Amount == nil || detail.Amount.Sign() <= 0 {
			return nil, ErrInvalidAmount
		}
		sum.Add(sum, detail.Amount)
	}
	if sum.Cmp(clone.TotalAmount) != 0 {
		return nil, fmt.Errorf("%w: schedule sums to %s, total is %s", ErrScheduleMismatch, sum, clone.TotalAmount)
	}
	return clone, nil
}

// GuaranteeEntry is a single collateral position held for an escrow. Amount
// is the fungible quantity, or 1 for a unique item. Returned flips exactly
// once, at return time.
type GuaranteeEntry struct {
	Asset    AssetRef
	Amount   *big.Int
	Returned bool
}

// Clone returns a deep copy of the guarantee entry.
func (g *GuaranteeEntry) Clone() *GuaranteeEntry {
	if g == nil {
		return nil
	}
	clone := *g
	clone.Asset = g.Asset.Clone()
	if g.Amount != nil {
		clone.Amount = new(big.Int).Set(g.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}
