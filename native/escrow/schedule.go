package escrow

import (
	"fmt"
	"math/big"
)

// InstallmentDetail is a single entry of an escrow's payment schedule. The
// schedule is built once at creation and only the Paid flag mutates
// afterwards.
type InstallmentDetail struct {
	DueDate int64
	Amount  *big.Int
	Paid    bool
}

// Clone returns a deep copy of the installment entry.
func (d *InstallmentDetail) Clone() *InstallmentDetail {
	if d == nil {
		return nil
	}
	clone := *d
	if d.Amount != nil {
		clone.Amount = new(big.Int).Set(d.Amount)
	} else {
		clone.Amount = big.NewInt(0)
	}
	return &clone
}

// BuildEvenSchedule divides the total evenly across count installments with
// due dates incrementing by intervalSeconds from start. Creation fails when
// the total does not divide evenly.
func BuildEvenSchedule(total *big.Int, count uint32, start, intervalSeconds int64) ([]*InstallmentDetail, error) {
	if total == nil || total.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if count == 0 {
		return nil, ErrInvalidInstallments
	}
	if intervalSeconds <= 0 {
		return nil, ErrInvalidInterval
	}
	per, rem := new(big.Int).QuoRem(total, big.NewInt(int64(count)), new(big.Int))
	if rem.Sign() != 0 {
		return nil, fmt.Errorf("%w: %s across %d installments", ErrUnevenSplit, total, count)
	}
	schedule := make([]*InstallmentDetail, count)
	for i := uint32(0); i < count; i++ {
		schedule[i] = &InstallmentDetail{
			DueDate: start + int64(i+1)*intervalSeconds,
			Amount:  new(big.Int).Set(per),
		}
	}
	return schedule, nil
}

// BuildCustomSchedule assembles a caller-supplied schedule. The amounts must
// sum exactly to total and every entry must be positive.
func BuildCustomSchedule(total *big.Int, amounts []*big.Int, dueDates []int64) ([]*InstallmentDetail, error) {
	if total == nil || total.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	if len(amounts) == 0 {
		return nil, ErrInvalidInstallments
	}
	if len(amounts) != len(dueDates) {
		return nil, fmt.Errorf("%w: %d amounts against %d due dates", ErrScheduleMismatch, len(amounts), len(dueDates))
	}
	sum := big.NewInt(0)
	schedule := make([]*InstallmentDetail, len(amounts))
	for i, amount := range amounts {
		if amount == nil || amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: installment %d must be positive", ErrInvalidAmount, i)
		}
		sum.Add(sum, amount)
		schedule[i] = &InstallmentDetail{DueDate: dueDates[i], Amount: new(big.Int).Set(amount)}
	}
	if sum.Cmp(total) != 0 {
		return nil, fmt.Errorf("%w: schedule sums to %s, total is %s", ErrScheduleMismatch, sum, total)
	}
	return schedule, nil
}
