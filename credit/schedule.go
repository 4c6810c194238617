/*
schedule.go - Flat-rate amortization

PURPOSE:
  Produces the loan's installments at activation. Interest is flat: it is
  computed once on the full principal, never on a declining balance.

FORMULA:
  interestTotal   = principal × rate / 100
  principal_i     = round(principal / n)         for i < n
  interest_i      = round(interestTotal / n)     for i < n
  last installment absorbs both rounding remainders, so

    Σ total_i == principal × (1 + rate/100)      exactly

EXAMPLE:
  principal 100000, rate 0, n 3
    #1  33333   #2  33333   #3  33334   Σ 100000

LOCKING:
  Principal terms are editable only while APPROVED. Once ACTIVE, Reschedule
  may move the due dates until the first payment is recorded.
*/
package credit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/generic"
)

// InterestTotal is principal × rate / 100, unrounded.
func InterestTotal(principal, ratePercent decimal.Decimal) decimal.Decimal {
	return generic.Percent(principal, ratePercent)
}

// GenerateInstallments builds durationMonths installments from firstPaymentDate.
func GenerateInstallments(t Terms) ([]Installment, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	n := t.DurationMonths
	principals := generic.SplitEvenly(t.PrincipalAmount, n)
	interests := generic.SplitEvenly(InterestTotal(t.PrincipalAmount, t.InterestRate), n)
	dues := generic.MonthlyDueDates(t.FirstPaymentDate, n)

	installments := make([]Installment, n)
	for i := 0; i < n; i++ {
		total := principals[i].Add(interests[i])
		installments[i] = Installment{
			Number:          i + 1,
			DueDate:         dues[i],
			PrincipalAmount: principals[i],
			InterestAmount:  interests[i],
			TotalAmount:     total,
			PaidAmount:      decimal.Zero,
			RemainingAmount: total,
			Status:          InstallmentPending,
			Payments:        generic.Contributions{},
		}
	}
	return installments, nil
}

func flatMonthlyPayment(t Terms) decimal.Decimal {
	if t.DurationMonths <= 0 {
		return decimal.Zero
	}
	n := decimal.NewFromInt(int64(t.DurationMonths))
	return generic.RoundMoney(t.PrincipalAmount.Div(n)).Add(generic.RoundMoney(InterestTotal(t.PrincipalAmount, t.InterestRate).Div(n)))
}

// ScheduleTotal is Σ installment.totalAmount.
func (l *LoanContract) ScheduleTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range l.Installments {
		total = total.Add(l.Installments[i].TotalAmount)
	}
	return total
}

// MonthlyInterest is the one-month interest the early-exit commission charges.
func (l *LoanContract) MonthlyInterest() decimal.Decimal {
	if len(l.Installments) > 0 {
		return l.Installments[0].InterestAmount
	}
	if l.DurationMonths <= 0 {
		return decimal.Zero
	}
	return generic.RoundMoney(InterestTotal(l.PrincipalAmount, l.InterestRate).Div(decimal.NewFromInt(int64(l.DurationMonths))))
}

// Activate generates the installments and moves APPROVED -> ACTIVE.
func (l *LoanContract) Activate(now time.Time, actor string) error {
	if l.Status != StatusApproved {
		return l.notEligible("activate", "loan must be APPROVED")
	}
	installments, err := GenerateInstallments(l.terms())
	if err != nil {
		return err
	}
	l.Installments = installments
	l.refreshInstallments(generic.DateOf(now))
	l.transition(StatusActive, now, "installment schedule generated", actor)
	return nil
}

// AmendTerms edits principal terms before activation only.
func (l *LoanContract) AmendTerms(t Terms, now time.Time) error {
	switch l.Status {
	case StatusClosed:
		return l.notEligible("amend terms", "loan is closed")
	case StatusActive:
		return fmt.Errorf("%w: loan %s schedule already generated", generic.ErrScheduleLocked, l.ID)
	}
	t.ID = l.ID
	if t.BorrowerRef == "" {
		t.BorrowerRef = l.BorrowerRef
	}
	if err := t.Validate(); err != nil {
		return err
	}
	l.applyTerms(t)
	l.UpdatedAt = now
	return nil
}

// Reschedule moves every due date to start at firstPaymentDate. Amounts are unchanged.
func (l *LoanContract) Reschedule(firstPaymentDate generic.TimePoint, now time.Time, actor string) error {
	if l.Status == StatusClosed {
		return l.notEligible("reschedule", "loan is closed")
	}
	if l.HasPayments() {
		return fmt.Errorf("%w: loan %s has recorded payments", generic.ErrScheduleLocked, l.ID)
	}
	if firstPaymentDate.IsZero() {
		return &generic.InvalidTermsError{Field: "first_payment_date", Reason: "is required"}
	}
	l.FirstPaymentDate = firstPaymentDate
	dues := generic.MonthlyDueDates(firstPaymentDate, len(l.Installments))
	for i := range l.Installments {
		l.Installments[i].DueDate = dues[i]
	}
	l.refreshInstallments(generic.DateOf(now))
	l.History = append(l.History, generic.Transition{
		From:   string(l.Status),
		To:     string(l.Status),
		At:     now,
		Reason: "rescheduled to " + firstPaymentDate.String(),
		Actor:  actor,
	})
	l.UpdatedAt = now
	return nil
}
