/*
refund.go - Refund case lifecycle

PURPOSE:
  A RefundCase is the closing money movement of a savings contract: the
  nominal returned to the subscriber at full term (FINAL) or on early exit
  (EARLY). It follows an approval workflow before money leaves the caisse.

REFUND FLOW:
  ┌──────────────────────────────────────────────────────────────┐
  │                                                              │
  │  Refund processor    Treasurer           Cashier             │
  │  opens case    ──▶   approves     ──▶    pays out            │
  │   PENDING            APPROVED            PAID                │
  │                                            │                 │
  │                                            ▼                 │
  │                               contract recompute ──▶ CLOSED  │
  │                                                              │
  └──────────────────────────────────────────────────────────────┘

GUARDS:
  - Approve only from PENDING, MarkPaid only from APPROVED
  - A contract may hold at most one case that is not PAID; early withdrawal
    is refused while one exists

SEE ALSO:
  - savings/refund.go: computes AmountNominal
  - savings/machine.go: FINAL_REFUND_PENDING | EARLY_REFUND_PENDING -> CLOSED
*/
package generic

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type RefundKind string

const (
	RefundFinal RefundKind = "FINAL"
	RefundEarly RefundKind = "EARLY"
)

type RefundStatus string

const (
	RefundPending  RefundStatus = "PENDING"
	RefundApproved RefundStatus = "APPROVED"
	RefundPaid     RefundStatus = "PAID"
)

type RefundCase struct {
	ContractRef   ContractID      `json:"contract_ref"`
	Kind          RefundKind      `json:"kind"`
	Status        RefundStatus    `json:"status"`
	AmountNominal decimal.Decimal `json:"amount_nominal"`
	RequestedAt   time.Time       `json:"requested_at"`
	DecidedAt     *time.Time      `json:"decided_at,omitempty"`
	DecidedBy     string          `json:"decided_by,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	PaymentRef    string          `json:"payment_ref,omitempty"`
}

func NewRefundCase(contract ContractID, kind RefundKind, amount decimal.Decimal, at time.Time) *RefundCase {
	return &RefundCase{
		ContractRef:   contract,
		Kind:          kind,
		Status:        RefundPending,
		AmountNominal: FloorZero(amount),
		RequestedAt:   at,
	}
}

// IsOpen is true until the money has been paid out.
func (r *RefundCase) IsOpen() bool { return r != nil && r.Status != RefundPaid }

// Approve moves PENDING -> APPROVED.
func (r *RefundCase) Approve(approverID string, at time.Time) error {
	if r.Status != RefundPending {
		return &ContractNotEligibleError{
			ContractID: r.ContractRef,
			Operation:  "approve refund",
			Status:     string(r.Status),
			Reason:     "refund must be pending",
		}
	}
	r.Status = RefundApproved
	r.DecidedAt = &at
	r.DecidedBy = approverID
	return nil
}

// MarkPaid moves APPROVED -> PAID.
func (r *RefundCase) MarkPaid(paymentRef string, at time.Time) error {
	if r.Status != RefundApproved {
		return &ContractNotEligibleError{
			ContractID: r.ContractRef,
			Operation:  "pay refund",
			Status:     string(r.Status),
			Reason:     "refund must be approved",
		}
	}
	r.Status = RefundPaid
	r.PaidAt = &at
	r.PaymentRef = paymentRef
	return nil
}

// Entry journals the payout.
func (r *RefundCase) Entry(product ProductKind, recordedBy string) Entry {
	at := r.RequestedAt
	if r.PaidAt != nil {
		at = *r.PaidAt
	}
	return Entry{
		ID:             fmt.Sprintf("%s-refund-%s", r.ContractRef, r.Kind),
		ContractID:     r.ContractRef,
		Product:        product,
		Type:           EntryRefund,
		Amount:         r.AmountNominal.Neg(),
		EffectiveAt:    at,
		Reason:         fmt.Sprintf("%s refund paid", r.Kind),
		IdempotencyKey: fmt.Sprintf("%s-refund-%s-paid", r.ContractRef, r.Kind),
		RecordedBy:     recordedBy,
		Metadata:       map[string]string{"payment_ref": r.PaymentRef},
	}
}
