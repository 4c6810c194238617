package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/credit"
	"github.com/entraide/caisse-engine/generic"
	"github.com/entraide/caisse-engine/savings"
)

// =============================================================================
// SAVINGS TERMS
// =============================================================================

// SavingsTermsJSON is the wire form of savings.Terms. Money is accepted as a
// JSON number or a quoted decimal string.
type SavingsTermsJSON struct {
	ID             string          `json:"id,omitempty"`
	SubscriberKind string          `json:"subscriber_kind,omitempty" validate:"omitempty,oneof=MEMBER GROUP"`
	SubscriberID   string          `json:"subscriber_id" validate:"required"`
	Plan           string          `json:"plan" validate:"required,oneof=STANDARD DAILY FREEFORM STANDARD_CHARITABLE DAILY_CHARITABLE FREEFORM_CHARITABLE"`
	PeriodicAmount decimal.Decimal `json:"periodic_amount"`
	MonthsPlanned  int             `json:"months_planned" validate:"required,gte=1,lte=12"`
	FirstDueAt     string          `json:"first_due_at" validate:"required"`
}

func (f *Factory) ParseSavingsTerms(data []byte) (savings.Terms, error) {
	var sj SavingsTermsJSON
	if err := json.Unmarshal(data, &sj); err != nil {
		return savings.Terms{}, fmt.Errorf("failed to parse savings terms JSON: %w", err)
	}
	return f.SavingsTerms(sj)
}

// SavingsTerms validates sj and converts it. The subscriber kind defaults to MEMBER.
func (f *Factory) SavingsTerms(sj SavingsTermsJSON) (savings.Terms, error) {
	if err := f.Validate(sj); err != nil {
		return savings.Terms{}, err
	}
	first, err := generic.ParseDate(sj.FirstDueAt)
	if err != nil {
		return savings.Terms{}, &generic.InvalidTermsError{Field: "first_due_at", Reason: err.Error()}
	}
	kind := generic.SubscriberKind(sj.SubscriberKind)
	if kind == "" {
		kind = generic.SubscriberMember
	}
	t := savings.Terms{
		ID:             generic.ContractID(sj.ID),
		Subscriber:     generic.SubscriberRef{Kind: kind, ID: sj.SubscriberID},
		Plan:           savings.PlanKind(sj.Plan),
		PeriodicAmount: sj.PeriodicAmount,
		MonthsPlanned:  sj.MonthsPlanned,
		FirstDueAt:     first,
	}
	return t, t.Validate()
}

// =============================================================================
// LOAN TERMS
// =============================================================================

type LoanTermsJSON struct {
	ID               string          `json:"id,omitempty"`
	BorrowerRef      string          `json:"borrower_ref" validate:"required"`
	GuarantorRef     string          `json:"guarantor_ref,omitempty"`
	PrincipalAmount  decimal.Decimal `json:"principal_amount"`
	InterestRate     decimal.Decimal `json:"interest_rate"`
	DurationMonths   int             `json:"duration_months" validate:"required,gte=1,lte=120"`
	FirstPaymentDate string          `json:"first_payment_date" validate:"required"`
}

func (f *Factory) ParseLoanTerms(data []byte) (credit.Terms, error) {
	var lj LoanTermsJSON
	if err := json.Unmarshal(data, &lj); err != nil {
		return credit.Terms{}, fmt.Errorf("failed to parse loan terms JSON: %w", err)
	}
	return f.LoanTerms(lj)
}

func (f *Factory) LoanTerms(lj LoanTermsJSON) (credit.Terms, error) {
	if err := f.Validate(lj); err != nil {
		return credit.Terms{}, err
	}
	first, err := generic.ParseDate(lj.FirstPaymentDate)
	if err != nil {
		return credit.Terms{}, &generic.InvalidTermsError{Field: "first_payment_date", Reason: err.Error()}
	}
	t := credit.Terms{
		ID:               generic.ContractID(lj.ID),
		BorrowerRef:      lj.BorrowerRef,
		GuarantorRef:     lj.GuarantorRef,
		PrincipalAmount:  lj.PrincipalAmount,
		InterestRate:     lj.InterestRate,
		DurationMonths:   lj.DurationMonths,
		FirstPaymentDate: first,
	}
	return t, t.Validate()
}
