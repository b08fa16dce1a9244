package escrow

import (
	"fmt"
	"math/big"
)

// PaymentReceipt summarises the accounting of a completed installment
// payment for callers and the event log.
type PaymentReceipt struct {
	InstallmentsCovered uint32
	BaseAmount          *big.Int
	Interest            *big.Int
	AmountDue           *big.Int
	Refunded            *big.Int
}

// overdueDays converts elapsed time beyond the payment interval into whole
// overdue days. Sub-day lateness accrues no interest.
func (e *Engine) overdueDays(record *EscrowRecord, now int64) uint64 {
	elapsed := now - record.LastPaymentAt
	if elapsed <= record.PaymentIntervalSeconds {
		return 0
	}
	return uint64(elapsed-record.PaymentIntervalSeconds) / secondsPerDay
}

// currentInstallmentDue computes the base amount, accrued interest and total
// due for the next unpaid installment at the supplied time.
func (e *Engine) currentInstallmentDue(record *EscrowRecord, now int64) (base, interest, due *big.Int) {
	next := record.NextUnpaid()
	if next == nil {
		return big.NewInt(0), big.NewInt(0), big.NewInt(0)
	}
	base = new(big.Int).Set(next.Amount)
	interest = AccruedInterest(record.InterestModel, base, record.DailyInterestRateBps, e.overdueDays(record, now))
	due = new(big.Int).Add(base, interest)
	return base, interest, due
}

func (e *Engine) checkPayment(record *EscrowRecord, caller [20]byte, asset AssetRef, amount *big.Int) error {
	if caller != record.Depositor {
		return ErrNotDepositor
	}
	if record.State != EscrowActive {
		return ErrNotActive
	}
	if record.UnpaidInstallments() == 0 {
		return ErrAllInstallmentsPaid
	}
	if !asset.Equal(record.PaymentAsset) {
		return fmt.Errorf("%w: got %s, want %s", ErrAssetMismatch, asset, record.PaymentAsset)
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// PayInstallment settles the next unpaid installment. The amount offered
// must cover the base amount plus any accrued late interest; the exact
// excess of an overpayment is refunded and never reflected in the accounted
// balance. All bookkeeping completes before the asset moves.
func (e *Engine) PayInstallment(id uint64, caller [20]byte, asset AssetRef, amount *big.Int) (*PaymentReceipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.enter(id); err != nil {
		return nil, err
	}
	defer e.leave(id)

	record, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if err := e.checkPayment(record, caller, asset, amount); err != nil {
		return nil, err
	}
	now := e.now()
	base, interest, due := e.currentInstallmentDue(record, now)
	if amount.Cmp(due) < 0 {
		return nil, fmt.Errorf("%w: offered %s, due %s", ErrInsufficientPayment, amount, due)
	}
	excess := new(big.Int).Sub(amount, due)

	snapshot := record.Clone()
	record.NextUnpaid().Paid = true
	record.InstallmentsPaid++
	record.LastPaymentAt = now
	if err := e.state.EscrowCredit(id, asset, amount); err != nil {
		return nil, err
	}
	if excess.Sign() > 0 {
		if err := e.state.EscrowDebit(id, asset, excess); err != nil {
			return nil, err
		}
	}
	e.evaluateAutoCompletion(record)
	if err := e.storeEscrow(record); err != nil {
		return nil, err
	}

	// Bookkeeping is final; only now does value move. The engine pulls
	// exactly the due amount so the excess never leaves the payer.
	if err := e.assets.TransferIn(record.Depositor, asset, due); err != nil {
		if debitErr := e.state.EscrowDebit(id, asset, due); debitErr != nil {
			return nil, fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, debitErr)
		}
		if putErr := e.state.EscrowPut(snapshot); putErr != nil {
			return nil, fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, putErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	receipt := &PaymentReceipt{
		InstallmentsCovered: 1,
		BaseAmount:          base,
		Interest:            interest,
		AmountDue:           due,
		Refunded:            excess,
	}
	e.emit(NewInstallmentPaidEvent(record, receipt))
	if record.State == EscrowComplete {
		e.emit(NewCompletedEvent(record))
	}
	return receipt, nil
}

// PayAllRemaining settles every outstanding installment in one call. The due
// amount is the current installment's due (base plus its accrued interest)
// multiplied by the remaining count; per-installment interest is not
// recalculated individually.
func (e *Engine) PayAllRemaining(id uint64, caller [20]byte, asset AssetRef, amount *big.Int) (*PaymentReceipt, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := e.enter(id); err != nil {
		return nil, err
	}
	defer e.leave(id)

	record, err := e.loadEscrow(id)
	if err != nil {
		return nil, err
	}
	if err := e.checkPayment(record, caller, asset, amount); err != nil {
		return nil, err
	}
	now := e.now()
	remaining := record.UnpaidInstallments()
	base, interest, perDue := e.currentInstallmentDue(record, now)
	due := new(big.Int).Mul(perDue, big.NewInt(int64(remaining)))
	if amount.Cmp(due) < 0 {
		return nil, fmt.Errorf("%w: offered %s, due %s", ErrInsufficientPayment, amount, due)
	}
	excess := new(big.Int).Sub(amount, due)

	snapshot := record.Clone()
	for _, detail := range record.Schedule {
		if detail != nil && !detail.Paid {
			detail.Paid = true
		}
	}
	record.InstallmentsPaid = record.TotalInstallments
	record.LastPaymentAt = now
	if err := e.state.EscrowCredit(id, asset, amount); err != nil {
		return nil, err
	}
	if excess.Sign() > 0 {
		if err := e.state.EscrowDebit(id, asset, excess); err != nil {
			return nil, err
		}
	}
	e.evaluateAutoCompletion(record)
	if err := e.storeEscrow(record); err != nil {
		return nil, err
	}

	if err := e.assets.TransferIn(record.Depositor, asset, due); err != nil {
		if debitErr := e.state.EscrowDebit(id, asset, due); debitErr != nil {
			return nil, fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, debitErr)
		}
		if putErr := e.state.EscrowPut(snapshot); putErr != nil {
			return nil, fmt.Errorf("%w: %v (revert failed: %v)", ErrTransferFailed, err, putErr)
		}
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}

	receipt := &PaymentReceipt{
		InstallmentsCovered: remaining,
		BaseAmount:          base,
		Interest:            interest,
		AmountDue:           due,
		Refunded:            excess,
	}
	e.emit(NewInstallmentPaidEvent(record, receipt))
	if record.State == EscrowComplete {
		e.emit(NewCompletedEvent(record))
	}
	return receipt, nil
}
