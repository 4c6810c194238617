/*
lateness.go - Grace / penalty / default classification

PURPOSE:
  Pure functions answering two questions for one due obligation:
    1. How late is it?      Classify(dueAt, now) -> LatenessBand
    2. What does it cost?   PenaltyAmount(band, amountDue) -> money

BANDS (with the documented defaults graceDays=3, penaltyWindowDays=12):

  daysLate   0        1..3        4..12         13..
           ON_TIME    GRACE      PENALTY       DEFAULT

  daysLate is whole days between dueAt and now, 0 when now <= dueAt.
  Classification is monotonic: as now advances the band never improves.

PENALTY:
  A fixed percentage of the due amount, charged once per obligation. The
  calculator has no memory of what was charged; idempotency is the state
  machine's job (it checks "already applied for this obligation").

SEE ALSO:
  - rates.go: RateSchedule supplies the thresholds and percentage
  - savings/machine.go: persists the penalty into penaltiesTotal
*/
package generic

import "github.com/shopspring/decimal"

// LatenessBand values are ordered by severity.
type LatenessBand int

const (
	BandOnTime LatenessBand = iota
	BandGrace
	BandPenalty
	BandDefault
)

func (b LatenessBand) String() string {
	switch b {
	case BandOnTime:
		return "ON_TIME"
	case BandGrace:
		return "GRACE"
	case BandPenalty:
		return "PENALTY"
	case BandDefault:
		return "DEFAULT"
	default:
		return "UNKNOWN"
	}
}

// AccruesPenalty is true for bands that carry the one-time penalty. An
// obligation that jumps straight to DEFAULT between two recomputes is still
// charged.
func (b LatenessBand) AccruesPenalty() bool { return b >= BandPenalty }

// LatenessCalculator classifies lateness under one validated RateSchedule.
type LatenessCalculator struct {
	rates RateSchedule
}

// NewLatenessCalculator refuses incomplete schedules with ConfigurationMissingError.
func NewLatenessCalculator(rates RateSchedule) (*LatenessCalculator, error) {
	if err := rates.Validate(); err != nil {
		return nil, err
	}
	return &LatenessCalculator{rates: rates}, nil
}

func (c *LatenessCalculator) Rates() RateSchedule { return c.rates }

func (c *LatenessCalculator) Classify(dueAt, now TimePoint) LatenessBand {
	daysLate := DaysLate(dueAt, now)
	switch {
	case daysLate == 0:
		return BandOnTime
	case daysLate <= c.rates.GraceDays:
		return BandGrace
	case daysLate <= c.rates.PenaltyWindowDays:
		return BandPenalty
	default:
		return BandDefault
	}
}

// PenaltyAmount is zero for ON_TIME and GRACE, otherwise the configured
// percentage of amountDue rounded to the currency scale.
func (c *LatenessCalculator) PenaltyAmount(band LatenessBand, amountDue decimal.Decimal) decimal.Decimal {
	if !band.AccruesPenalty() || !amountDue.IsPositive() {
		return decimal.Zero
	}
	return RoundMoney(Percent(amountDue, c.rates.PenaltyRatePercent.Decimal))
}

// IsOverdue reports whether an unpaid item is past the loan overdue threshold.
func (c *LatenessCalculator) IsOverdue(dueAt, now TimePoint) bool {
	return DaysLate(dueAt, now) > c.rates.OverdueThresholdDays
}
