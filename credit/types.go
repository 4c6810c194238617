// Package credit implements the Crédit Spéciale loan engine: flat-rate
// amortization, installment payments and the early-exit commission rule.
package credit

import (
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/generic"
)

// PlanKind is the rate-book key loans resolve their schedule under.
const PlanKind = "CREDIT"

// =============================================================================
// LOAN STATUS
// =============================================================================

type Status string

const (
	StatusApproved Status = "APPROVED"
	StatusActive   Status = "ACTIVE"
	StatusClosed   Status = "CLOSED"
)

type ClosedReason string

const (
	ClosedRepaid       ClosedReason = "REPAID"
	ClosedSettledEarly ClosedReason = "SETTLED_EARLY"
)

type StatusInfo struct {
	Status      Status `json:"status"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Terminal    bool   `json:"terminal"`
	Severity    string `json:"severity"`
}

var statusTable = []StatusInfo{
	{StatusApproved, "Approuvé", "Loan approved, schedule not generated", false, "info"},
	{StatusActive, "En cours", "Installments being repaid", false, "success"},
	{StatusClosed, "Soldé", "Loan repaid or settled early", true, "success"},
}

func Statuses() []StatusInfo { return append([]StatusInfo(nil), statusTable...) }

func (s Status) Info() StatusInfo {
	for _, info := range statusTable {
		if info.Status == s {
			return info
		}
	}
	return StatusInfo{Status: s, Label: string(s), Severity: "info"}
}

func (s Status) IsTerminal() bool { return s.Info().Terminal }

// =============================================================================
// INSTALLMENT
// =============================================================================

type InstallmentStatus string

const (
	InstallmentPending InstallmentStatus = "PENDING"
	InstallmentDue     InstallmentStatus = "DUE"
	InstallmentPartial InstallmentStatus = "PARTIAL"
	InstallmentPaid    InstallmentStatus = "PAID"
	InstallmentOverdue InstallmentStatus = "OVERDUE"
)

var installmentLabels = map[InstallmentStatus]string{
	InstallmentPending: "À venir",
	InstallmentDue:     "Échue",
	InstallmentPartial: "Partiellement payée",
	InstallmentPaid:    "Payée",
	InstallmentOverdue: "En retard",
}

func (s InstallmentStatus) Label() string { return installmentLabels[s] }

type Installment struct {
	Number          int                   `json:"installment_number"`
	DueDate         generic.TimePoint     `json:"due_date"`
	PrincipalAmount decimal.Decimal       `json:"principal_amount"`
	InterestAmount  decimal.Decimal       `json:"interest_amount"`
	TotalAmount     decimal.Decimal       `json:"total_amount"`
	PaidAmount      decimal.Decimal       `json:"paid_amount"`
	RemainingAmount decimal.Decimal       `json:"remaining_amount"`
	Status          InstallmentStatus     `json:"status"`
	Overdue         bool                  `json:"overdue"` // orthogonal to PARTIAL
	PaidAt          *time.Time            `json:"paid_at,omitempty"`
	PaymentRef      string                `json:"payment_ref,omitempty"`
	Payments        generic.Contributions `json:"payments"`
}

func (i *Installment) IsPaid() bool { return i.RemainingAmount.IsZero() }

// principalPaid allocates payments to interest first.
func (i *Installment) principalPaid() decimal.Decimal {
	return generic.MinMoney(generic.FloorZero(i.PaidAmount.Sub(i.InterestAmount)), i.PrincipalAmount)
}

// refresh re-derives remaining and status. calc may be nil when no rate
// schedule is pinned; the overdue flag is then left as it was.
func (i *Installment) refresh(today generic.TimePoint, calc *generic.LatenessCalculator) {
	i.PaidAmount = i.Payments.Total()
	i.RemainingAmount = generic.FloorZero(i.TotalAmount.Sub(i.PaidAmount))
	if i.RemainingAmount.IsZero() {
		i.Status = InstallmentPaid
		i.Overdue = false
		return
	}
	if calc != nil {
		i.Overdue = calc.IsOverdue(i.DueDate, today)
	}
	switch {
	case i.PaidAmount.IsPositive():
		i.Status = InstallmentPartial
	case i.Overdue:
		i.Status = InstallmentOverdue
	case today.AfterOrEqual(i.DueDate):
		i.Status = InstallmentDue
	default:
		i.Status = InstallmentPending
	}
}

// =============================================================================
// LOAN CONTRACT - The aggregate
// =============================================================================

type Settlement struct {
	Quote      EarlyExitQuote `json:"quote"`
	PaidAt     time.Time      `json:"paid_at"`
	PaymentRef string         `json:"payment_ref"`
	RecordedBy string         `json:"recorded_by"`
}

type LoanContract struct {
	ID                   generic.ContractID `json:"id"`
	BorrowerRef          string             `json:"borrower_ref"`
	GuarantorRef         string             `json:"guarantor_ref,omitempty"`
	PrincipalAmount      decimal.Decimal    `json:"principal_amount"`
	InterestRate         decimal.Decimal    `json:"interest_rate"`
	MonthlyPaymentAmount decimal.Decimal    `json:"monthly_payment_amount"`
	DurationMonths       int                `json:"duration_months"`
	FirstPaymentDate     generic.TimePoint  `json:"first_payment_date"`

	Status       Status        `json:"status"`
	ClosedReason ClosedReason  `json:"closed_reason,omitempty"`
	Installments []Installment `json:"installments"`
	Settlement   *Settlement   `json:"settlement,omitempty"`

	Rates                *generic.RateSchedule `json:"rates,omitempty"`
	ConfigurationMissing bool                  `json:"configuration_missing"`

	History   []generic.Transition `json:"history"`
	Version   int64                `json:"version"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

type Terms struct {
	ID               generic.ContractID
	BorrowerRef      string
	GuarantorRef     string
	PrincipalAmount  decimal.Decimal
	InterestRate     decimal.Decimal
	DurationMonths   int
	FirstPaymentDate generic.TimePoint
}

func (t Terms) Validate() error {
	if t.BorrowerRef == "" {
		return &generic.InvalidTermsError{Field: "borrower_ref", Reason: "is required"}
	}
	if err := generic.ValidatePositiveAmount("principal_amount", t.PrincipalAmount); err != nil {
		return err
	}
	if t.InterestRate.IsNegative() {
		return &generic.InvalidTermsError{Field: "interest_rate", Reason: "must not be negative"}
	}
	if err := generic.ValidateTermCount("duration_months", t.DurationMonths, 0); err != nil {
		return err
	}
	// Every installment must carry principal or it would be PAID on creation.
	if t.PrincipalAmount.LessThan(decimal.NewFromInt(int64(t.DurationMonths))) {
		return &generic.InvalidTermsError{Field: "principal_amount", Reason: "must be at least one unit per month"}
	}
	if t.FirstPaymentDate.IsZero() {
		return &generic.InvalidTermsError{Field: "first_payment_date", Reason: "is required"}
	}
	return nil
}

// NewLoan records an approved loan. The schedule is generated on Activate.
func NewLoan(terms Terms, rates *generic.RateSchedule, now time.Time) (*LoanContract, error) {
	if err := terms.Validate(); err != nil {
		return nil, err
	}
	l := &LoanContract{
		ID:                   terms.ID,
		Status:               StatusApproved,
		Rates:                rates,
		ConfigurationMissing: rates == nil,
		CreatedAt:            now,
		UpdatedAt:            now,
	}
	l.applyTerms(terms)
	return l, nil
}

func (l *LoanContract) applyTerms(t Terms) {
	l.BorrowerRef = t.BorrowerRef
	l.GuarantorRef = t.GuarantorRef
	l.PrincipalAmount = t.PrincipalAmount
	l.InterestRate = t.InterestRate
	l.DurationMonths = t.DurationMonths
	l.FirstPaymentDate = t.FirstPaymentDate
	l.MonthlyPaymentAmount = flatMonthlyPayment(t)
}

func (l *LoanContract) terms() Terms {
	return Terms{
		ID:               l.ID,
		BorrowerRef:      l.BorrowerRef,
		GuarantorRef:     l.GuarantorRef,
		PrincipalAmount:  l.PrincipalAmount,
		InterestRate:     l.InterestRate,
		DurationMonths:   l.DurationMonths,
		FirstPaymentDate: l.FirstPaymentDate,
	}
}

func (l *LoanContract) InstallmentRef(number int) string {
	return string(l.ID) + "/" + strconv.Itoa(number)
}

// Outstanding is Σ remainingAmount.
func (l *LoanContract) Outstanding() decimal.Decimal {
	total := decimal.Zero
	for i := range l.Installments {
		total = total.Add(l.Installments[i].RemainingAmount)
	}
	return total
}

func (l *LoanContract) HasPayments() bool {
	for i := range l.Installments {
		if len(l.Installments[i].Payments) > 0 {
			return true
		}
	}
	return false
}

func (l *LoanContract) transition(to Status, at time.Time, reason, actor string) {
	if actor == "" {
		actor = generic.ActorSystem
	}
	l.History = append(l.History, generic.Transition{
		From:   string(l.Status),
		To:     string(to),
		At:     at,
		Reason: reason,
		Actor:  actor,
	})
	l.Status = to
	l.UpdatedAt = at
}

func (l *LoanContract) notEligible(op, reason string) error {
	return &generic.ContractNotEligibleError{
		ContractID: l.ID,
		Operation:  op,
		Status:     string(l.Status),
		Reason:     reason,
	}
}
