/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Request types carry
  validator struct tags; the handlers run them through factory.Validate so
  every validation failure surfaces as an InvalidTermsError (HTTP 400).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Amounts are decimals. Clients may send a JSON number or a quoted string;
  responses always carry quoted strings so no precision is lost.

SEE ALSO:
  - handlers.go, loans.go: Use these types
  - factory/terms.go: Contract terms JSON (create/amend bodies)
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/credit"
	"github.com/entraide/caisse-engine/generic"
	"github.com/entraide/caisse-engine/savings"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ContributionRequest records money received against a savings contract.
// Without obligation_index the first unpaid obligation is targeted.
type ContributionRequest struct {
	Amount          decimal.Decimal `json:"amount"`
	ObligationIndex *int            `json:"obligation_index,omitempty" validate:"omitempty,gte=0,lte=11"`
	At              *time.Time      `json:"at,omitempty"`
	RecordedBy      string          `json:"recorded_by" validate:"required"`
	PaymentRef      string          `json:"payment_ref,omitempty"`
	IdempotencyKey  string          `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

func (r ContributionRequest) contribution() generic.Contribution {
	c := generic.Contribution{
		Amount:         r.Amount,
		RecordedBy:     r.RecordedBy,
		PaymentRef:     r.PaymentRef,
		IdempotencyKey: r.IdempotencyKey,
	}
	if r.At != nil {
		c.At = *r.At
	}
	return c
}

// PaymentRequest records a loan repayment. Without installment_number the
// amount is allocated oldest installment first.
type PaymentRequest struct {
	Amount            decimal.Decimal `json:"amount"`
	InstallmentNumber *int            `json:"installment_number,omitempty" validate:"omitempty,gte=1"`
	At                *time.Time      `json:"at,omitempty"`
	RecordedBy        string          `json:"recorded_by" validate:"required"`
	PaymentRef        string          `json:"payment_ref,omitempty"`
	IdempotencyKey    string          `json:"idempotency_key,omitempty" validate:"omitempty,max=128"`
}

func (r PaymentRequest) payment() generic.Contribution {
	c := generic.Contribution{
		Amount:         r.Amount,
		RecordedBy:     r.RecordedBy,
		PaymentRef:     r.PaymentRef,
		IdempotencyKey: r.IdempotencyKey,
	}
	if r.At != nil {
		c.At = *r.At
	}
	return c
}

// ActorRequest is the body of simple administrative transitions.
type ActorRequest struct {
	Actor  string `json:"actor,omitempty"`
	Reason string `json:"reason,omitempty" validate:"omitempty,max=500"`
}

type ApproveRefundRequest struct {
	ApproverID string `json:"approver_id" validate:"required"`
}

type PayRefundRequest struct {
	PaymentRef string `json:"payment_ref" validate:"required"`
	Actor      string `json:"actor,omitempty"`
}

type RescheduleRequest struct {
	FirstPaymentDate string `json:"first_payment_date" validate:"required"`
	Actor            string `json:"actor,omitempty"`
}

type SettleRequest struct {
	Amount     decimal.Decimal `json:"amount"`
	PaymentRef string          `json:"payment_ref" validate:"required"`
	Actor      string          `json:"actor,omitempty"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// SavingsContractDTO is the contract document plus its status metadata.
type SavingsContractDTO struct {
	*savings.Contract
	StatusInfo   savings.StatusInfo `json:"status_info"`
	SurplusTotal decimal.Decimal    `json:"surplus_total"`
}

func toSavingsDTO(c *savings.Contract) SavingsContractDTO {
	return SavingsContractDTO{Contract: c, StatusInfo: c.Status.Info(), SurplusTotal: c.SurplusTotal()}
}

type LoanDTO struct {
	*credit.LoanContract
	StatusInfo           credit.StatusInfo `json:"status_info"`
	Outstanding          decimal.Decimal   `json:"outstanding"`
	PrincipalOutstanding decimal.Decimal   `json:"principal_outstanding"`
}

func toLoanDTO(l *credit.LoanContract) LoanDTO {
	return LoanDTO{
		LoanContract:         l,
		StatusInfo:           l.Status.Info(),
		Outstanding:          l.Outstanding(),
		PrincipalOutstanding: l.PrincipalOutstanding(),
	}
}

// FinalRefundDTO answers GET /api/savings/{id}/final-refund.
type FinalRefundDTO struct {
	ContractID    generic.ContractID `json:"contract_id"`
	PaidPrincipal decimal.Decimal    `json:"paid_principal"`
	BonusAccrued  decimal.Decimal    `json:"bonus_accrued"`
	Amount        decimal.Decimal    `json:"amount"`
}

type InstallmentStatusDTO struct {
	Status credit.InstallmentStatus `json:"status"`
	Label  string                   `json:"label"`
}

// StatusesDTO is the read-only status metadata table for presentation layers.
type StatusesDTO struct {
	Savings      []savings.StatusInfo   `json:"savings"`
	Loans        []credit.StatusInfo    `json:"loans"`
	Installments []InstallmentStatusDTO `json:"installments"`
}

type JournalDTO struct {
	ContractID generic.ContractID `json:"contract_id"`
	Entries    []generic.Entry    `json:"entries"`
	Total      decimal.Decimal    `json:"total"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

// ErrorResponse is returned for every failed request.
type ErrorResponse struct {
	Error         string `json:"error"`
	Details       string `json:"details,omitempty"`
	Field         string `json:"field,omitempty"`
	ObligationRef string `json:"obligation_ref,omitempty"`
}
