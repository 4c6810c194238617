/*
ledger.go - Installment payments

PURPOSE:
  Records repayments against installments. A payment may be full or partial;
  without an explicit installment number it is allocated oldest first and
  spills forward into the next installments.

INSTALLMENT STATUS:
  PENDING ──(now >= dueDate, unpaid)──▶ DUE ──(0 < paid < total)──▶ PARTIAL
                                                                      │
                                                    (paid >= total) ──▶ PAID

  OVERDUE is a flag once the unpaid installment is past dueDate by more than
  the configured threshold. A PARTIAL installment keeps its status and
  carries the flag; an untouched one shows OVERDUE.

OVERPAYMENT:
  A payment larger than what it targets (one installment, or the whole
  outstanding balance when auto-allocated) is refused with
  OverpaymentRejectedError naming the installment.
*/
package credit

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/generic"
)

type PaymentInput struct {
	InstallmentNumber *int
	Payment           generic.Contribution
}

// RecordPayment allocates the payment and returns one journal entry per
// installment it touched. The loan closes once every installment is PAID.
func (l *LoanContract) RecordPayment(in PaymentInput) ([]generic.Entry, error) {
	if l.Status != StatusActive {
		return nil, l.notEligible("record payment", "loan is not active")
	}
	pay := in.Payment
	pay.Amount = generic.RoundMoney(pay.Amount)
	if err := generic.ValidateContribution(pay); err != nil {
		return nil, err
	}
	if pay.IdempotencyKey != "" {
		for i := range l.Installments {
			if l.Installments[i].Payments.HasKey(pay.IdempotencyKey) {
				return nil, generic.ErrDuplicateIdempotencyKey
			}
		}
	}
	if pay.ID == "" {
		pay.ID = uuid.NewString()
	}
	if pay.IdempotencyKey == "" {
		pay.IdempotencyKey = pay.ID
	}

	targets, err := l.allocationTargets(in.InstallmentNumber, pay.Amount)
	if err != nil {
		return nil, err
	}

	var entries []generic.Entry
	left := pay.Amount
	for _, idx := range targets {
		if !left.IsPositive() {
			break
		}
		inst := &l.Installments[idx]
		part := generic.MinMoney(left, inst.RemainingAmount)
		left = left.Sub(part)

		c := pay
		c.Amount = part
		inst.Payments = append(inst.Payments, c)
		inst.PaymentRef = pay.PaymentRef
		inst.refresh(generic.DateOf(pay.At), nil)
		if inst.IsPaid() {
			paidAt := pay.At
			inst.PaidAt = &paidAt
		}

		entries = append(entries, generic.Entry{
			ID:             fmt.Sprintf("%s/%d", pay.ID, inst.Number),
			ContractID:     l.ID,
			Product:        generic.ProductCredit,
			Type:           generic.EntryInstallmentPayment,
			Amount:         part,
			EffectiveAt:    pay.At,
			ObligationRef:  l.InstallmentRef(inst.Number),
			Reason:         "installment payment",
			IdempotencyKey: fmt.Sprintf("%s/%d", pay.IdempotencyKey, inst.Number),
			RecordedBy:     pay.RecordedBy,
			Metadata:       map[string]string{"payment_ref": pay.PaymentRef},
		})
	}
	l.UpdatedAt = pay.At

	if l.Outstanding().IsZero() {
		l.ClosedReason = ClosedRepaid
		l.transition(StatusClosed, pay.At, "all installments paid", pay.RecordedBy)
	}
	return entries, nil
}

func (l *LoanContract) allocationTargets(number *int, amount decimal.Decimal) ([]int, error) {
	if number != nil {
		idx := *number - 1
		if idx < 0 || idx >= len(l.Installments) {
			return nil, &generic.InvalidTermsError{Field: "installment_number", Reason: "out of range"}
		}
		inst := &l.Installments[idx]
		if amount.GreaterThan(inst.RemainingAmount) {
			return nil, l.overpayment(inst, amount)
		}
		return []int{idx}, nil
	}

	var targets []int
	for i := range l.Installments {
		if !l.Installments[i].IsPaid() {
			targets = append(targets, i)
		}
	}
	if len(targets) == 0 {
		return nil, l.notEligible("record payment", "every installment is already paid")
	}
	if amount.GreaterThan(l.Outstanding()) {
		return nil, l.overpayment(&l.Installments[targets[len(targets)-1]], amount)
	}
	return targets, nil
}

func (l *LoanContract) overpayment(inst *Installment, amount decimal.Decimal) error {
	return &generic.OverpaymentRejectedError{
		ContractID:    l.ID,
		ObligationRef: l.InstallmentRef(inst.Number),
		AmountDue:     inst.TotalAmount,
		AlreadyPaid:   inst.PaidAmount,
		Attempted:     amount,
	}
}

// Refresh re-derives every installment status at now and returns the
// numbers of installments that just became overdue.
func (l *LoanContract) Refresh(now time.Time) ([]int, error) {
	if l.Status != StatusActive {
		return nil, nil
	}
	newlyOverdue := l.refreshInstallments(generic.DateOf(now))
	if l.Rates == nil {
		return newlyOverdue, &generic.ConfigurationMissingError{
			PlanKind: PlanKind, At: generic.DateOf(now), Detail: "loan has no pinned rate schedule",
		}
	}
	return newlyOverdue, nil
}

func (l *LoanContract) refreshInstallments(today generic.TimePoint) []int {
	var calc *generic.LatenessCalculator
	if l.Rates != nil {
		if c, err := generic.NewLatenessCalculator(*l.Rates); err == nil {
			calc = c
		}
	}
	var newlyOverdue []int
	for i := range l.Installments {
		inst := &l.Installments[i]
		was := inst.Overdue
		inst.refresh(today, calc)
		if inst.Overdue && !was {
			newlyOverdue = append(newlyOverdue, inst.Number)
		}
	}
	return newlyOverdue
}
