/*
machine.go - Savings contract state machine

PURPOSE:
  Status is derived from stored due dates, contributions and "now". The
  derivation is a pure function: DeriveStatus(contract, now) computes a
  Decision without touching the contract, Apply writes it. The service saves
  the result atomically; a failed save discards it.

STATES:

     DRAFT ──activate──▶ ACTIVE ◀──────────────┐ (current obligation PAID,
                           │                   │  next one evaluated)
                           ▼                   │
                     LATE_NO_PENALTY ──▶ LATE_WITH_PENALTY ──▶ DEFAULTED_AFTER_J12
                                                                  │        │
                                                       confirm rescission  reinstate
                                                                  ▼        ▼
                                                              RESCINDED   (re-derived)
                                                                  │
                                                              reopen ──▶ DRAFT

     any non-terminal ──request──▶ EARLY_WITHDRAW_REQUESTED ──▶ EARLY_REFUND_PENDING ─┐
     all obligations PAID ───────────────────────────────────▶ FINAL_REFUND_PENDING ─┤
                                                                refund PAID ──▶ CLOSED

RECOMPUTE PRIORITY:
  1. CLOSED, RESCINDED, DRAFT:             unchanged
  2. *_REFUND_PENDING:                      CLOSED once the refund case is PAID
  3. EARLY_WITHDRAW_REQUESTED:              EARLY_REFUND_PENDING, EARLY case opened
  4. DEFAULTED_AFTER_J12:                   unchanged until an administrator acts
  5. every obligation PAID:                 FINAL_REFUND_PENDING, bonus credited,
                                            FINAL case opened
  6. lateness band of current obligation:   ON_TIME -> ACTIVE, GRACE -> LATE_NO_PENALTY,
                                            PENALTY -> LATE_WITH_PENALTY,
                                            DEFAULT -> DEFAULTED_AFTER_J12

NO BACKWARD TRANSITION:
  A late status is tied to the obligation that raised it (LateObligation).
  Recompute never lowers the status while that obligation is unpaid.

PENALTY IDEMPOTENCE:
  An obligation is charged once (PenaltyApplied). Recomputing twice with the
  same now never adds to penaltiesTotal. The journal key
  "<contract>-g<generation>-penalty-<index>" backs this up in the store.

MISSING RATES:
  Lateness and the rate bonus need the pinned RateSchedule. Without it the
  derivation returns ConfigurationMissingError and the contract keeps its
  last-known status.
*/
package savings

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/generic"
)

// PenaltyCharge is one obligation's one-time penalty.
type PenaltyCharge struct {
	ObligationIndex int
	Band            generic.LatenessBand
	Amount          decimal.Decimal
}

// Decision is the computed, not yet applied, outcome of a recompute.
type Decision struct {
	From           Status
	To             Status
	Reason         string
	Band           generic.LatenessBand
	LateObligation *int
	Penalty        *PenaltyCharge
	Bonus          decimal.Decimal
	OpenRefund     *generic.RefundCase
}

func (d Decision) Changed() bool {
	return d.From != d.To || d.Penalty != nil || d.OpenRefund != nil || d.Bonus.IsPositive()
}

// DeriveStatus computes the status the contract should be in at now.
func DeriveStatus(c *Contract, now time.Time) (Decision, error) {
	d := Decision{From: c.Status, To: c.Status, Bonus: decimal.Zero, LateObligation: c.LateObligation}
	today := generic.DateOf(now)

	switch c.Status {
	case StatusClosed, StatusRescinded, StatusDraft:
		return d, nil

	case StatusFinalRefundPending, StatusEarlyRefundPending:
		if c.Refund != nil && c.Refund.Status == generic.RefundPaid {
			d.To = StatusClosed
			d.Reason = fmt.Sprintf("%s refund paid", c.Refund.Kind)
		}
		return d, nil

	case StatusEarlyWithdrawRequested:
		quote, err := ComputeEarlyExitRefund(c, now)
		if err != nil {
			return d, err
		}
		d.To = StatusEarlyRefundPending
		d.Reason = "early exit refund computed"
		d.OpenRefund = generic.NewRefundCase(c.ID, generic.RefundEarly, quote.PayoutAmount, now)
		return d, nil

	case StatusDefaultedAfterJ12:
		return d, nil
	}

	if c.AllPaid() {
		bonus, err := completionBonus(c)
		if err != nil {
			return d, err
		}
		d.To = StatusFinalRefundPending
		d.Reason = "all obligations paid"
		d.Bonus = bonus
		d.LateObligation = nil
		// The bonus is not applied yet; price the refund as if it were.
		amount := finalRefundAmount(c, c.BonusAccrued.Add(bonus))
		d.OpenRefund = generic.NewRefundCase(c.ID, generic.RefundFinal, amount, now)
		return d, nil
	}

	index := c.CurrentObligation()
	if index < 0 {
		return d, nil
	}
	if c.Rates == nil {
		return d, &generic.ConfigurationMissingError{PlanKind: string(c.Plan), At: today, Detail: "contract has no pinned rate schedule"}
	}
	calc, err := generic.NewLatenessCalculator(*c.Rates)
	if err != nil {
		return d, err
	}

	o := &c.Obligations[index]
	band := calc.Classify(o.DueAt, today)
	d.Band = band

	if band.AccruesPenalty() && !o.PenaltyApplied {
		d.Penalty = &PenaltyCharge{
			ObligationIndex: index,
			Band:            band,
			Amount:          calc.PenaltyAmount(band, o.AmountDue),
		}
	}

	target, reason := statusForBand(band, o.DueAt)
	if target == StatusActive {
		d.LateObligation = nil
	} else {
		i := index
		d.LateObligation = &i
	}

	if target.latenessRank() < c.Status.latenessRank() && c.LateObligation != nil {
		late := *c.LateObligation
		if late < len(c.Obligations) && !c.Obligations[late].IsPaid() {
			d.LateObligation = c.LateObligation
			return d, nil
		}
	}
	d.To = target
	d.Reason = reason
	return d, nil
}

func statusForBand(band generic.LatenessBand, due generic.TimePoint) (Status, string) {
	switch band {
	case generic.BandGrace:
		return StatusLateNoPenalty, fmt.Sprintf("obligation due %s in grace window", due)
	case generic.BandPenalty:
		return StatusLateWithPenalty, fmt.Sprintf("obligation due %s in penalty window", due)
	case generic.BandDefault:
		return StatusDefaultedAfterJ12, fmt.Sprintf("obligation due %s unpaid past penalty window", due)
	default:
		return StatusActive, "up to date"
	}
}

// completionBonus is the surplus of DAILY/FREEFORM obligations plus, for
// non-charitable plans, bonusRatePercent of the paid principal.
func completionBonus(c *Contract) (decimal.Decimal, error) {
	bonus := c.SurplusTotal()
	if c.Plan.IsCharitable() {
		return bonus, nil
	}
	if c.Rates == nil {
		return decimal.Zero, &generic.ConfigurationMissingError{
			PlanKind: string(c.Plan), At: generic.DateOf(c.CreatedAt), Detail: "bonus rate unavailable",
		}
	}
	return bonus.Add(generic.RoundMoney(generic.Percent(c.PaidPrincipalTotal, c.Rates.BonusRatePercent))), nil
}

// Apply writes a decision into the contract and returns the journal entries
// for the money it moved.
func (c *Contract) Apply(d Decision, now time.Time) []generic.Entry {
	var entries []generic.Entry

	if p := d.Penalty; p != nil {
		o := &c.Obligations[p.ObligationIndex]
		o.PenaltyApplied = true
		o.PenaltyAmount = p.Amount
		c.PenaltiesTotal = c.PenaltiesTotal.Add(p.Amount)
		ref := c.ObligationRef(p.ObligationIndex)
		entries = append(entries, generic.Entry{
			ID:             fmt.Sprintf("%s-g%d-penalty-%d", c.ID, c.Generation, p.ObligationIndex),
			ContractID:     c.ID,
			Product:        generic.ProductSavings,
			Type:           generic.EntryPenalty,
			Amount:         p.Amount,
			EffectiveAt:    now,
			ObligationRef:  ref,
			Reason:         fmt.Sprintf("late payment penalty (%s)", p.Band),
			IdempotencyKey: fmt.Sprintf("%s-g%d-penalty-%d", c.ID, c.Generation, p.ObligationIndex),
			RecordedBy:     generic.ActorSystem,
		})
	}

	if d.Bonus.IsPositive() {
		c.BonusAccrued = c.BonusAccrued.Add(d.Bonus)
		entries = append(entries, generic.Entry{
			ID:             fmt.Sprintf("%s-g%d-bonus", c.ID, c.Generation),
			ContractID:     c.ID,
			Product:        generic.ProductSavings,
			Type:           generic.EntryBonus,
			Amount:         d.Bonus,
			EffectiveAt:    now,
			Reason:         "completion bonus",
			IdempotencyKey: fmt.Sprintf("%s-g%d-bonus", c.ID, c.Generation),
			RecordedBy:     generic.ActorSystem,
		})
	}

	if d.OpenRefund != nil {
		c.Refund = d.OpenRefund
	}
	c.LateObligation = d.LateObligation
	if d.From != d.To {
		c.transition(d.To, now, d.Reason, generic.ActorSystem)
	}
	if d.Changed() {
		c.UpdatedAt = now
	}
	return entries
}

// Recompute derives and applies in one step.
func (c *Contract) Recompute(now time.Time) ([]generic.Entry, error) {
	d, err := DeriveStatus(c, now)
	if err != nil {
		return nil, err
	}
	return c.Apply(d, now), nil
}

// =============================================================================
// EXPLICIT TRANSITIONS - Subscriber and administrator requests
// =============================================================================

// RequestEarlyWithdraw moves any non-terminal contract to EARLY_WITHDRAW_REQUESTED.
func (c *Contract) RequestEarlyWithdraw(now time.Time, actor string) error {
	if c.Status.IsTerminal() {
		return c.notEligible("request early withdraw", "contract is terminal")
	}
	if c.Refund.IsOpen() {
		return c.notEligible("request early withdraw", "a refund case is already open")
	}
	if c.Status == StatusEarlyWithdrawRequested {
		return c.notEligible("request early withdraw", "already requested")
	}
	c.transition(StatusEarlyWithdrawRequested, now, "early withdraw requested by subscriber", actor)
	return nil
}

// ConfirmRescission is the administrator's decision on a defaulted contract.
func (c *Contract) ConfirmRescission(now time.Time, actor, reason string) error {
	if c.Status != StatusDefaultedAfterJ12 {
		return c.notEligible("confirm rescission", "contract is not defaulted")
	}
	if reason == "" {
		reason = "rescission confirmed"
	}
	c.transition(StatusRescinded, now, reason, actor)
	return nil
}

// Reinstate lifts a default once the defaulting obligation is PAID. The
// caller recomputes right after to land on the derived status.
func (c *Contract) Reinstate(now time.Time, actor string) error {
	if c.Status != StatusDefaultedAfterJ12 {
		return c.notEligible("reinstate", "contract is not defaulted")
	}
	if c.LateObligation != nil {
		late := *c.LateObligation
		if late < len(c.Obligations) && !c.Obligations[late].IsPaid() {
			return c.notEligible("reinstate", "defaulting obligation "+c.ObligationRef(late)+" is not paid")
		}
	}
	c.LateObligation = nil
	c.transition(StatusActive, now, "reinstated by administrator", actor)
	return nil
}

// Reopen brings a rescinded contract back to DRAFT. Only allowed when no
// payment was ever recorded; schedule, penalties and refund are cleared.
func (c *Contract) Reopen(now time.Time, actor string) ([]generic.Entry, error) {
	if c.Status != StatusRescinded {
		return nil, c.notEligible("reopen", "contract is not rescinded")
	}
	if c.HasPayments() {
		return nil, c.notEligible("reopen", "contributions were recorded")
	}
	var entries []generic.Entry
	if c.PenaltiesTotal.IsPositive() {
		entries = append(entries, generic.Entry{
			ID:             fmt.Sprintf("%s-penalty-reversal-%d", c.ID, len(c.History)),
			ContractID:     c.ID,
			Product:        generic.ProductSavings,
			Type:           generic.EntryPenalty,
			Amount:         c.PenaltiesTotal.Neg(),
			EffectiveAt:    now,
			Reason:         "penalties cleared on reopen",
			IdempotencyKey: fmt.Sprintf("%s-penalty-reversal-%d", c.ID, len(c.History)),
			RecordedBy:     actor,
		})
	}
	c.Obligations = nil
	c.PaidPrincipalTotal = decimal.Zero
	c.BonusAccrued = decimal.Zero
	c.PenaltiesTotal = decimal.Zero
	c.Refund = nil
	c.LateObligation = nil
	c.NextDueAt = c.FirstDueAt
	c.transition(StatusDraft, now, "reopened by administrator", actor)
	return entries, nil
}

// ApproveRefund moves the open refund case PENDING -> APPROVED.
func (c *Contract) ApproveRefund(now time.Time, approver string) error {
	if c.Refund == nil {
		return c.notEligible("approve refund", "no refund case")
	}
	if err := c.Refund.Approve(approver, now); err != nil {
		return err
	}
	c.UpdatedAt = now
	return nil
}

// PayRefund moves the refund case APPROVED -> PAID; recompute then closes the contract.
func (c *Contract) PayRefund(now time.Time, paymentRef, actor string) ([]generic.Entry, error) {
	if c.Refund == nil {
		return nil, c.notEligible("pay refund", "no refund case")
	}
	if err := c.Refund.MarkPaid(paymentRef, now); err != nil {
		return nil, err
	}
	c.UpdatedAt = now
	return []generic.Entry{c.Refund.Entry(generic.ProductSavings, actor)}, nil
}
