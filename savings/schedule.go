package savings

import (
	"fmt"
	"time"

	"github.com/entraide/caisse-engine/generic"
)

// =============================================================================
// SCHEDULE GENERATOR - One obligation per planned month
// =============================================================================

// GenerateSchedule returns exactly monthsPlanned obligations, one per month
// starting at firstDueAt, each due periodicAmount. For DAILY and FREEFORM the
// amount is a monthly target that many contributions fill.
func GenerateSchedule(t Terms) ([]Obligation, error) {
	if err := t.Validate(); err != nil {
		return nil, err
	}
	amount := generic.RoundMoney(t.PeriodicAmount)
	dues := generic.MonthlyDueDates(t.FirstDueAt, t.MonthsPlanned)
	periods := generic.MonthlyPeriods(t.FirstDueAt, t.MonthsPlanned)

	obligations := make([]Obligation, len(dues))
	for i, due := range dues {
		obligations[i] = Obligation{
			PeriodIndex:   i,
			DueAt:         due,
			Period:        periods[i],
			AmountDue:     amount,
			Status:        ObligationDue,
			Contributions: generic.Contributions{},
		}
	}
	return obligations, nil
}

func (c *Contract) terms() Terms {
	return Terms{
		ID:             c.ID,
		Subscriber:     c.Subscriber,
		Plan:           c.Plan,
		PeriodicAmount: c.PeriodicAmount,
		MonthsPlanned:  c.MonthsPlanned,
		FirstDueAt:     c.FirstDueAt,
	}
}

// scheduleLocked reports why the schedule can no longer be regenerated.
func (c *Contract) scheduleLocked() error {
	switch {
	case c.HasPayments():
		return fmt.Errorf("%w: contract %s has recorded contributions", generic.ErrScheduleLocked, c.ID)
	case c.Refund != nil:
		return fmt.Errorf("%w: contract %s has a refund case", generic.ErrScheduleLocked, c.ID)
	case c.penaltyApplied():
		return fmt.Errorf("%w: contract %s has charged penalties", generic.ErrScheduleLocked, c.ID)
	}
	return nil
}

// penaltyApplied is true once any obligation went through the penalty band,
// including at a zero rate: its penalty entry is already journaled.
func (c *Contract) penaltyApplied() bool {
	for i := range c.Obligations {
		if c.Obligations[i].PenaltyApplied {
			return true
		}
	}
	return false
}

// Activate generates the schedule and moves DRAFT -> ACTIVE.
func (c *Contract) Activate(now time.Time, actor string) error {
	if c.Status != StatusDraft {
		return c.notEligible("activate", "contract must be in DRAFT")
	}
	obligations, err := GenerateSchedule(c.terms())
	if err != nil {
		return err
	}
	c.Obligations = obligations
	c.Generation++
	c.refreshNextDue()
	c.transition(StatusActive, now, "schedule generated", actor)
	return nil
}

// AmendTerms replaces the subscription terms and, once activated, regenerates
// the schedule. Refused with ErrScheduleLocked once money moved.
func (c *Contract) AmendTerms(t Terms, now time.Time) error {
	if c.Status.IsTerminal() {
		return c.notEligible("amend terms", "contract is terminal")
	}
	if err := c.scheduleLocked(); err != nil {
		return err
	}
	t.ID = c.ID
	if t.Subscriber.ID == "" {
		t.Subscriber = c.Subscriber
	}
	if err := t.Validate(); err != nil {
		return err
	}
	if len(c.Obligations) > 0 {
		obligations, err := GenerateSchedule(t)
		if err != nil {
			return err
		}
		c.Obligations = obligations
	}
	c.applyTerms(t)
	c.refreshNextDue()
	c.LateObligation = nil
	c.UpdatedAt = now
	return nil
}
