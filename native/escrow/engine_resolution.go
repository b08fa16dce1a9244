package escrow

import (
	"fmt"
	"math/big"
)

type payout struct {
	to     [20]byte
	amount *big.Int
}

// settle moves already-debited value out of the vault. Bookkeeping is final
// before settle runs; when the very first external transfer fails the
// pre-call record and balance are restored so the call has no effect. A
// failure after value has moved cannot be unwound and surfaces as an
// explicit error with the remainder re-credited to the escrow ledger.
func (e *Engine) settle(id uint64, snapshot *EscrowRecord, asset AssetRef, payouts []payout, fee *big.Int, debited *big.Int) error {
	moved := false
	remainder := new(big.Int).Set(debited)
	fail := func(err error) error {
		if !moved {
			if creditErr := e.state.EscrowCredit(id, asset, debited); creditErr != nil {
				return fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, creditErr)
			}
			if putErr := e.state.EscrowPut(snapshot); putErr != nil {
				return fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, putErr)
			}
			return fmt.Errorf("%w: %v", ErrTransferFailed, err)
		}
		if creditErr := e.state.EscrowCredit(id, asset, remainder); creditErr != nil {
			return fmt.Errorf("%w: %v (remainder restore failed: %v)", ErrTransferFailed, err, creditErr)
		}
		return fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	for _, p := range payouts {
		if p.amount == nil || p.amount.Sign() <= 0 {
			continue
		}
		if err := e.assets.TransferOut(p.to, asset, p.amount); err != nil {
			return fail(err)
		}
		moved = true
		remainder.Sub(remainder, p.amount)
	}
	if fee != nil && fee.Sign() > 0 {
		// Native fees are queued for pull-withdrawal so a low-trust
		// external call can never block a resolution; fungible fees are
		// pushed directly since that interface fails with a clean error.
		if asset.Kind == AssetNative {
			if err := e.state.FeeAccrue(asset, fee); err != nil {
				return fail(err)
			}
		} else {
			if err := e.assets.TransferOut(e.feePolicy.Treasury, asset, fee); err != nil {
				return fail(err)
			}
		}
		remainder.Sub(remainder, fee)
	}
	return nil
}

// OpenDispute freezes an active escrow pending arbitration or settlement.
// Only the depositor or beneficiary may raise a dispute.
func (e *Engine) OpenDispute(id uint64, caller [20]byte) error {
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
	if caller != record.Depositor && caller != record.Beneficiary {
		return ErrNotParty
	}
	if record.State != EscrowActive {
		return ErrNotActive
	}
	record.State = EscrowDisputed
	record.Disputed = true
	record.DisputeRaisedBy = caller
	if err := e.storeEscrow(record); err != nil {
		return err
	}
	e.emit(NewDisputeOpenedEvent(record))
	return nil
}

// ResolveDispute settles a disputed escrow with an explicit split chosen by
// the arbiter. All three parties must have set their approval bit, signalling
// acceptance of the arbitration mechanism. The split plus the platform fee
// must fit within the accounted balance.
func (e *Engine) ResolveDispute(id uint64, caller [20]byte, toDepositor, toBeneficiary *big.Int) error {
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
	if caller != record.Arbiter {
		return ErrNotArbiter
	}
	if record.State != EscrowDisputed {
		return ErrNotDisputed
	}
	if !record.Approvals.All() {
		return ErrApprovalsIncomplete
	}
	if toDepositor == nil || toDepositor.Sign() < 0 || toBeneficiary == nil || toBeneficiary.Sign() < 0 {
		return ErrInvalidAmount
	}
	asset := record.PaymentAsset
	balance, err := e.state.EscrowBalance(id, asset)
	if err != nil {
		return err
	}
	gross := new(big.Int).Add(toDepositor, toBeneficiary)
	fee, _ := e.feePolicy.Apply(gross)
	required := new(big.Int).Add(gross, fee)
	if required.Cmp(balance) > 0 {
		return fmt.Errorf("%w: need %s, have %s", ErrDistributionExceedsBalance, required, balance)
	}

	snapshot := record.Clone()
	if err := e.state.EscrowDebit(id, asset, balance); err != nil {
		return err
	}
	record.State = EscrowComplete
	record.Disputed = false
	record.Settlement = nil
	record.SettlementDeadline = 0
	if err := e.storeEscrow(record); err != nil {
		return err
	}

	payouts := []payout{
		{to: record.Depositor, amount: toDepositor},
		{to: record.Beneficiary, amount: toBeneficiary},
	}
	if err := e.settle(id, snapshot, asset, payouts, fee, balance); err != nil {
		return err
	}
	e.emit(NewDisputeResolvedEvent(record, toDepositor, toBeneficiary, fee))
	return nil
}

// ProposeSettlement records a voluntary split offered by one party to the
// other. The proposal opens a fixed acceptance window; a fresh proposal
// overwrites any previous one.
func (e *Engine) ProposeSettlement(id uint64, caller [20]byte, toDepositor, toBeneficiary *big.Int) error {
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
	if caller != record.Depositor && caller != record.Beneficiary {
		return ErrNotParty
	}
	if record.State != EscrowActive {
		return ErrNotActive
	}
	if toDepositor == nil || toDepositor.Sign() < 0 || toBeneficiary == nil || toBeneficiary.Sign() < 0 {
		return ErrInvalidAmount
	}
	balance, err := e.state.EscrowBalance(id, record.PaymentAsset)
	if err != nil {
		return err
	}
	gross := new(big.Int).Add(toDepositor, toBeneficiary)
	fee, _ := e.feePolicy.Apply(gross)
	required := new(big.Int).Add(gross, fee)
	if required.Cmp(balance) > 0 {
		return fmt.Errorf("%w: need %s, have %s", ErrDistributionExceedsBalance, required, balance)
	}
	now := e.now()
	record.Settlement = &SettlementProposal{
		AmountToDepositor:   new(big.Int).Set(toDepositor),
		AmountToBeneficiary: new(big.Int).Set(toBeneficiary),
		Proposer:            caller,
		ProposedAt:          now,
	}
	record.SettlementDeadline = now + e.settlementWindow
	if err := e.storeEscrow(record); err != nil {
		return err
	}
	e.emit(NewSettlementProposedEvent(record))
	return nil
}

// AcceptSettlement executes a pending proposal. Only the counterparty of the
// proposer may accept, and only before the deadline elapses. An expired
// proposal is inert; it neither executes nor blocks a fresh proposal.
func (e *Engine) AcceptSettlement(id uint64, caller [20]byte) error {
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
	if caller != record.Depositor && caller != record.Beneficiary {
		return ErrNotParty
	}
	if record.State != EscrowActive {
		return ErrNotActive
	}
	proposal := record.Settlement
	if proposal == nil {
		return ErrNoSettlementProposal
	}
	if caller == proposal.Proposer {
		return ErrNotCounterparty
	}
	if e.now() > record.SettlementDeadline {
		return ErrSettlementExpired
	}
	asset := record.PaymentAsset
	balance, err := e.state.EscrowBalance(id, asset)
	if err != nil {
		return err
	}
	toDepositor := cloneOrZero(proposal.AmountToDepositor)
	toBeneficiary := cloneOrZero(proposal.AmountToBeneficiary)
	gross := new(big.Int).Add(toDepositor, toBeneficiary)
	fee, _ := e.feePolicy.Apply(gross)
	required := new(big.Int).Add(gross, fee)
	if required.Cmp(balance) > 0 {
		return fmt.Errorf("%w: need %s, have %s", ErrDistributionExceedsBalance, required, balance)
	}

	snapshot := record.Clone()
	if err := e.state.EscrowDebit(id, asset, balance); err != nil {
		return err
	}
	record.State = EscrowComplete
	record.Disputed = false
	record.Settlement = nil
	record.SettlementDeadline = 0
	if err := e.storeEscrow(record); err != nil {
		return err
	}

	payouts := []payout{
		{to: record.Depositor, amount: toDepositor},
		{to: record.Beneficiary, amount: toBeneficiary},
	}
	if err := e.settle(id, snapshot, asset, payouts, fee, balance); err != nil {
		return err
	}
	e.emit(NewSettlementAcceptedEvent(record, caller, toDepositor, toBeneficiary, fee))
	return nil
}

// Withdraw pays the full accounted balance, net of the platform fee, to the
// beneficiary and completes the escrow. While still active it requires
// unanimous approval; a disputed escrow can never be withdrawn from.
func (e *Engine) Withdraw(id uint64, caller [20]byte) error {
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
	if caller != record.Beneficiary {
		return ErrNotBeneficiary
	}
	if record.Disputed {
		return ErrDisputed
	}
	switch record.State {
	case EscrowComplete:
	case EscrowActive:
		if !record.Approvals.All() {
			return ErrApprovalsIncomplete
		}
	default:
		return ErrNotActive
	}
	asset := record.PaymentAsset
	balance, err := e.state.EscrowBalance(id, asset)
	if err != nil {
		return err
	}
	if balance.Sign() <= 0 {
		return ErrInsufficientBalance
	}
	fee, net := e.feePolicy.Apply(balance)

	snapshot := record.Clone()
	if err := e.state.EscrowDebit(id, asset, balance); err != nil {
		return err
	}
	record.State = EscrowComplete
	if err := e.storeEscrow(record); err != nil {
		return err
	}

	if err := e.settle(id, snapshot, asset, []payout{{to: record.Beneficiary, amount: net}}, fee, balance); err != nil {
		return err
	}
	e.emit(NewWithdrawnEvent(record, net, fee, false))
	return nil
}

// PartialWithdraw releases only the requested slice of the accounted balance
// to the beneficiary while the escrow stays active. Permitted only when the
// record was created with partial withdrawal enabled; the fee is charged
// proportionally on the withdrawn slice.
func (e *Engine) PartialWithdraw(id uint64, caller [20]byte, amount *big.Int) error {
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
	if caller != record.Beneficiary {
		return ErrNotBeneficiary
	}
	if record.Disputed {
		return ErrDisputed
	}
	if record.State != EscrowActive {
		return ErrNotActive
	}
	if !record.AllowPartialWithdraw {
		return ErrPartialWithdrawDisabled
	}
	if !record.Approvals.All() {
		return ErrApprovalsIncomplete
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset := record.PaymentAsset
	balance, err := e.state.EscrowBalance(id, asset)
	if err != nil {
		return err
	}
	if amount.Cmp(balance) > 0 {
		return fmt.Errorf("%w: requested %s, have %s", ErrInsufficientBalance, amount, balance)
	}
	fee, net := e.feePolicy.Apply(amount)

	snapshot := record.Clone()
	if err := e.state.EscrowDebit(id, asset, amount); err != nil {
		return err
	}
	if err := e.storeEscrow(record); err != nil {
		return err
	}

	if err := e.settle(id, snapshot, asset, []payout{{to: record.Beneficiary, amount: net}}, fee, amount); err != nil {
		return err
	}
	e.emit(NewWithdrawnEvent(record, net, fee, true))
	return nil
}

// AutoExecute forces resolution of a fully paid, undisputed escrow whose
// consensus never completed, once the fixed horizon from creation has
// passed. Anyone may invoke it; the beneficiary receives the net balance on
// the assumption that delivery occurred if every payment was made.
func (e *Engine) AutoExecute(id uint64, caller [20]byte) error {
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
	if record.State != EscrowActive {
		return ErrNotActive
	}
	if record.Disputed {
		return ErrDisputed
	}
	if record.InstallmentsPaid != record.TotalInstallments {
		return ErrInstallmentsOutstanding
	}
	if e.now() < record.AutoExecuteAt {
		return ErrDeadlineNotReached
	}
	asset := record.PaymentAsset
	balance, err := e.state.EscrowBalance(id, asset)
	if err != nil {
		return err
	}
	if balance.Sign() <= 0 {
		return ErrInsufficientBalance
	}
	fee, net := e.feePolicy.Apply(balance)

	snapshot := record.Clone()
	if err := e.state.EscrowDebit(id, asset, balance); err != nil {
		return err
	}
	record.State = EscrowComplete
	if err := e.storeEscrow(record); err != nil {
		return err
	}

	if err := e.settle(id, snapshot, asset, []payout{{to: record.Beneficiary, amount: net}}, fee, balance); err != nil {
		return err
	}
	e.emit(NewAutoExecutedEvent(record, caller, net, fee))
	return nil
}

// EmergencyTimeout is the operator-only escape hatch of last resort, opening
// a long horizon beyond the auto-execute deadline. It may run even while
// disputed or with incomplete payments; the operator explicitly chooses the
// recipient and supplies a justification recorded in the event log.
func (e *Engine) EmergencyTimeout(id uint64, caller, recipient [20]byte, reason string) error {
	if err := e.ready(); err != nil {
		return err
	}
	if err := e.enter(id); err != nil {
		return err
	}
	defer e.leave(id)

	if caller != e.operator || e.operator == ([20]byte{}) {
		return ErrNotOperator
	}
	record, err := e.loadEscrow(id)
	if err != nil {
		return err
	}
	if record.State == EscrowComplete {
		return ErrAlreadyComplete
	}
	if recipient != record.Depositor && recipient != record.Beneficiary {
		return ErrNotParty
	}
	if e.now() < record.AutoExecuteAt+e.emergencyExtension {
		return ErrEmergencyWindowNotReached
	}
	asset := record.PaymentAsset
	balance, err := e.state.EscrowBalance(id, asset)
	if err != nil {
		return err
	}
	fee, net := e.feePolicy.Apply(balance)

	snapshot := record.Clone()
	if balance.Sign() > 0 {
		if err := e.state.EscrowDebit(id, asset, balance); err != nil {
			return err
		}
	}
	record.State = EscrowComplete
	record.Disputed = false
	record.Settlement = nil
	record.SettlementDeadline = 0
	if err := e.storeEscrow(record); err != nil {
		return err
	}

	if balance.Sign() > 0 {
		if err := e.settle(id, snapshot, asset, []payout{{to: recipient, amount: net}}, fee, balance); err != nil {
			return err
		}
	}
	e.emit(NewEmergencyTimeoutEvent(record, recipient, net, fee, reason))
	return nil
}

// WithdrawFees pulls the accrued native-asset platform fees to the
// configured treasury. Only the system operator may invoke it.
func (e *Engine) WithdrawFees(caller [20]byte, asset AssetRef) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if caller != e.operator || e.operator == ([20]byte{}) {
		return nil, ErrNotOperator
	}
	balance, err := e.state.FeeBalance(asset)
	if err != nil {
		return nil, err
	}
	if balance.Sign() <= 0 {
		return nil, ErrInsufficientBalance
	}
	if err := e.state.FeeReset(asset); err != nil {
		return nil, err
	}
	if err := e.assets.TransferOut(e.feePolicy.Treasury, asset, balance); err != nil {
		if accrueErr := e.state.FeeAccrue(asset, balance); accrueErr != nil {
			return nil, fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, accrueErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	e.emit(NewFeesWithdrawnEvent(asset, balance))
	return balance, nil
}

func cloneOrZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}
