package credit

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/generic"
)

// =============================================================================
// EARLY EXIT - Commission rule and settlement
// =============================================================================

// EarlyExitQuote is what a borrower pays to close the loan today.
type EarlyExitQuote struct {
	ContractID           generic.ContractID `json:"contract_id"`
	PrincipalOutstanding decimal.Decimal    `json:"principal_outstanding"`
	MonthsElapsed        int                `json:"months_elapsed"`
	CommissionDue        decimal.Decimal    `json:"commission_due"`
	PayoutAmount         decimal.Decimal    `json:"payout_amount"`
	ComputedAt           time.Time          `json:"computed_at"`
}

// PrincipalOutstanding is the principal not yet repaid, with every payment
// allocated to its installment's interest first.
func (l *LoanContract) PrincipalOutstanding() decimal.Decimal {
	repaid := decimal.Zero
	for i := range l.Installments {
		repaid = repaid.Add(l.Installments[i].principalPaid())
	}
	return generic.FloorZero(l.PrincipalAmount.Sub(repaid))
}

// ComputeEarlyExitRefund quotes an early exit: once at least one full month
// has elapsed since firstPaymentDate, one month of interest is owed on top of
// the outstanding principal; before that no interest is due.
func ComputeEarlyExitRefund(l *LoanContract, now time.Time) (EarlyExitQuote, error) {
	if l.Status == StatusClosed {
		return EarlyExitQuote{}, l.notEligible("compute early exit refund", "loan is closed")
	}
	elapsed := generic.FullMonthsBetween(l.FirstPaymentDate, generic.DateOf(now))
	commission := decimal.Zero
	if elapsed >= 1 {
		commission = l.MonthlyInterest()
	}
	principal := l.PrincipalOutstanding()
	return EarlyExitQuote{
		ContractID:           l.ID,
		PrincipalOutstanding: principal,
		MonthsElapsed:        elapsed,
		CommissionDue:        commission,
		PayoutAmount:         principal.Add(commission),
		ComputedAt:           now,
	}, nil
}

// SettleEarly accepts the quoted payout and closes the loan.
func (l *LoanContract) SettleEarly(amount decimal.Decimal, paymentRef, actor string, now time.Time) ([]generic.Entry, error) {
	if l.Status != StatusActive {
		return nil, l.notEligible("settle early", "loan is not active")
	}
	quote, err := ComputeEarlyExitRefund(l, now)
	if err != nil {
		return nil, err
	}
	if !amount.Equal(quote.PayoutAmount) {
		return nil, fmt.Errorf("%w: settlement of %s does not match quoted payout %s", generic.ErrInvalidAmount, amount, quote.PayoutAmount)
	}
	l.Settlement = &Settlement{Quote: quote, PaidAt: now, PaymentRef: paymentRef, RecordedBy: actor}
	l.ClosedReason = ClosedSettledEarly
	l.transition(StatusClosed, now, "settled early", actor)

	key := fmt.Sprintf("%s-settlement", l.ID)
	return []generic.Entry{{
		ID:             key,
		ContractID:     l.ID,
		Product:        generic.ProductCredit,
		Type:           generic.EntrySettlement,
		Amount:         quote.PayoutAmount,
		EffectiveAt:    now,
		Reason:         "early settlement",
		IdempotencyKey: key,
		RecordedBy:     actor,
		Metadata: map[string]string{
			"payment_ref": paymentRef,
			"commission":  quote.CommissionDue.String(),
			"principal":   quote.PrincipalOutstanding.String(),
		},
	}}, nil
}
