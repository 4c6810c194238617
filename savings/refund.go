package savings

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/generic"
)

// =============================================================================
// REFUND / CLOSURE PROCESSOR - Savings side
// =============================================================================

// EarlyExitQuote is what a subscriber leaving before term gets back.
// Savings early exit carries no commission and no bonus.
type EarlyExitQuote struct {
	ContractID    generic.ContractID `json:"contract_id"`
	PaidPrincipal decimal.Decimal    `json:"paid_principal"`
	Penalties     decimal.Decimal    `json:"penalties"`
	CommissionDue decimal.Decimal    `json:"commission_due"`
	PayoutAmount  decimal.Decimal    `json:"payout_amount"`
	ComputedAt    time.Time          `json:"computed_at"`
}

// ComputeFinalRefund is paidPrincipalTotal + bonusAccrued - penaltiesTotal, floored at 0.
func ComputeFinalRefund(c *Contract) decimal.Decimal {
	return finalRefundAmount(c, c.BonusAccrued)
}

func finalRefundAmount(c *Contract, bonus decimal.Decimal) decimal.Decimal {
	return generic.FloorZero(c.PaidPrincipalTotal.Add(bonus).Sub(c.PenaltiesTotal))
}

// ComputeEarlyExitRefund is paid principal minus penalties, floored at 0.
func ComputeEarlyExitRefund(c *Contract, now time.Time) (EarlyExitQuote, error) {
	if c.Status == StatusClosed || c.Status == StatusRescinded {
		return EarlyExitQuote{}, c.notEligible("compute early exit refund", "contract is terminal")
	}
	return EarlyExitQuote{
		ContractID:    c.ID,
		PaidPrincipal: c.PaidPrincipalTotal,
		Penalties:     c.PenaltiesTotal,
		CommissionDue: decimal.Zero,
		PayoutAmount:  generic.FloorZero(c.PaidPrincipalTotal.Sub(c.PenaltiesTotal)),
		ComputedAt:    now,
	}, nil
}
