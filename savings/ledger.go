/*
ledger.go - Savings contribution ledger

PURPOSE:
  Records money received against a DueObligation and moves the contract's
  paidPrincipalTotal by the delta that money makes to the principal.

PLAN RULES:
  STANDARD:          one fixed amount per month. A contribution that would
                     push amountPaid past amountDue is refused with
                     OverpaymentRejectedError naming the obligation.
  DAILY / FREEFORM:  many contributions per month, any day of the period.
                     Overpayment is accepted; the surplus stays on the
                     obligation and becomes bonus at completion.

PRINCIPAL DELTA:
  principal(o) = min(amountPaid, amountDue)
  paidPrincipalTotal += principal(o after) - principal(o before)

  So paidPrincipalTotal <= periodicAmount × monthsPlanned always holds and a
  retried contribution (same idempotency key) can never count twice.

TARGETING:
  Without an explicit obligation index the contribution goes to the current
  obligation (earliest not PAID).

SEE ALSO:
  - generic/ledger.go: Contributions, ValidateContribution
  - machine.go: recompute runs after every contribution
*/
package savings

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/generic"
)

// ContributionInput is one payment handed in by a cashier.
type ContributionInput struct {
	ObligationIndex *int
	Contribution    generic.Contribution
}

// RecordContribution appends the contribution and returns the journal entry
// to save with the contract.
func (c *Contract) RecordContribution(in ContributionInput) ([]generic.Entry, error) {
	if !c.Status.acceptsContributions() {
		return nil, c.notEligible("record contribution", "contract does not accept contributions")
	}
	contrib := in.Contribution
	// Validate the amount that will be stored: sub-unit amounts round to zero.
	contrib.Amount = generic.RoundMoney(contrib.Amount)
	if err := generic.ValidateContribution(contrib); err != nil {
		return nil, err
	}
	if contrib.IdempotencyKey != "" {
		for i := range c.Obligations {
			if c.Obligations[i].Contributions.HasKey(contrib.IdempotencyKey) {
				return nil, generic.ErrDuplicateIdempotencyKey
			}
		}
	}

	index, err := c.targetObligation(in.ObligationIndex)
	if err != nil {
		return nil, err
	}
	o := &c.Obligations[index]
	ref := c.ObligationRef(index)

	if !c.Plan.AllowsOverpayment() && o.AmountPaid().Add(contrib.Amount).GreaterThan(o.AmountDue) {
		return nil, &generic.OverpaymentRejectedError{
			ContractID:    c.ID,
			ObligationRef: ref,
			AmountDue:     o.AmountDue,
			AlreadyPaid:   o.AmountPaid(),
			Attempted:     contrib.Amount,
		}
	}

	if contrib.ID == "" {
		contrib.ID = uuid.NewString()
	}
	if contrib.IdempotencyKey == "" {
		contrib.IdempotencyKey = contrib.ID
	}

	before := o.principalPaid()
	o.Contributions = append(o.Contributions, contrib)
	o.refreshStatus()
	c.PaidPrincipalTotal = c.PaidPrincipalTotal.Add(o.principalPaid().Sub(before))
	c.refreshNextDue()
	c.UpdatedAt = contrib.At

	return []generic.Entry{{
		ID:             contrib.ID,
		ContractID:     c.ID,
		Product:        generic.ProductSavings,
		Type:           generic.EntryContribution,
		Amount:         contrib.Amount,
		EffectiveAt:    contrib.At,
		ObligationRef:  ref,
		Reason:         "contribution",
		IdempotencyKey: contrib.IdempotencyKey,
		RecordedBy:     contrib.RecordedBy,
		Metadata:       map[string]string{"payment_ref": contrib.PaymentRef},
	}}, nil
}

func (c *Contract) targetObligation(explicit *int) (int, error) {
	if explicit != nil {
		i := *explicit
		if i < 0 || i >= len(c.Obligations) {
			return 0, &generic.InvalidTermsError{Field: "obligation_index", Reason: "out of range"}
		}
		return i, nil
	}
	i := c.CurrentObligation()
	if i < 0 {
		return 0, c.notEligible("record contribution", "every obligation is already paid")
	}
	return i, nil
}

// SurplusTotal is Σ obligation surplus, credited as bonus at completion.
func (c *Contract) SurplusTotal() decimal.Decimal {
	total := decimal.Zero
	for i := range c.Obligations {
		total = total.Add(c.Obligations[i].Surplus())
	}
	return total
}
