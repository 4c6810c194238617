/*
rates.go - Versioned association rates

PURPOSE:
  The association's penalty settings (grace window, penalty window, penalty
  percentage, bonus percentage, loan overdue threshold) are configured by
  administrators and change over time. A RateSchedule is one immutable
  version of those settings for one plan kind; a RateBook holds every
  version and resolves the one in force at a given date.

VERSIONING:
  Contracts resolve their RateSchedule ONCE, at creation, and keep a copy.
  A later configuration version never changes the rates of an existing
  contract. Schedules are values; nothing mutates them in place.

RESOLUTION:
  Resolve(planKind, at) returns the schedule with the greatest EffectiveAt
  <= at for planKind, falling back to the "*" wildcard plan. No match is a
  ConfigurationMissingError.

EXAMPLE:
  book := NewRateBook(
      RateSchedule{Version: 1, PlanKind: "*", EffectiveAt: jan2024,
          GraceDays: 3, PenaltyWindowDays: 12,
          PenaltyRatePercent: decimal.NewNullDecimal(decimal.NewFromInt(5))},
  )
  rs, err := book.Resolve("STANDARD", generic.DateOf(now))

SEE ALSO:
  - lateness.go: consumes a RateSchedule
  - factory/rates.go: JSON rate book parsing
*/
package generic

import (
	"sort"

	"github.com/shopspring/decimal"
)

// WildcardPlan matches every plan kind that has no dedicated schedule.
const WildcardPlan = "*"

// Defaults documented by the association.
const (
	DefaultGraceDays            = 3
	DefaultPenaltyWindowDays    = 12
	DefaultOverdueThresholdDays = 3
)

// =============================================================================
// RATE SCHEDULE - One immutable version of the settings
// =============================================================================

type RateSchedule struct {
	Version     int       `json:"version"`
	PlanKind    string    `json:"plan_kind"`
	EffectiveAt TimePoint `json:"effective_at"`

	// Lateness bands: days 1..GraceDays are grace, GraceDays+1..PenaltyWindowDays
	// accrue the penalty, beyond PenaltyWindowDays is default.
	GraceDays         int `json:"grace_days"`
	PenaltyWindowDays int `json:"penalty_window_days"`

	// PenaltyRatePercent has no default: it is sourced from association settings.
	PenaltyRatePercent decimal.NullDecimal `json:"penalty_rate_percent"`

	// BonusRatePercent is credited on paid principal at full term for
	// non-charitable savings plans.
	BonusRatePercent decimal.Decimal `json:"bonus_rate_percent"`

	// OverdueThresholdDays flags loan installments OVERDUE once this many days past due.
	OverdueThresholdDays int `json:"overdue_threshold_days"`
}

// Validate reports a ConfigurationMissingError when the schedule cannot drive
// penalty or default decisions.
func (rs RateSchedule) Validate() error {
	switch {
	case !rs.PenaltyRatePercent.Valid:
		return &ConfigurationMissingError{PlanKind: rs.PlanKind, At: rs.EffectiveAt, Detail: "penalty rate not set"}
	case rs.PenaltyRatePercent.Decimal.IsNegative():
		return &ConfigurationMissingError{PlanKind: rs.PlanKind, At: rs.EffectiveAt, Detail: "penalty rate negative"}
	case rs.GraceDays < 0 || rs.PenaltyWindowDays < rs.GraceDays:
		return &ConfigurationMissingError{PlanKind: rs.PlanKind, At: rs.EffectiveAt, Detail: "penalty window shorter than grace window"}
	case rs.OverdueThresholdDays < 0:
		return &ConfigurationMissingError{PlanKind: rs.PlanKind, At: rs.EffectiveAt, Detail: "overdue threshold negative"}
	}
	return nil
}

// =============================================================================
// RATE SOURCE - Where schedules are resolved from
// =============================================================================

type RateSource interface {
	Resolve(planKind string, at TimePoint) (RateSchedule, error)
}

// RateBook is an immutable, ordered set of schedule versions.
type RateBook struct {
	schedules []RateSchedule
}

// NewRateBook copies and orders the schedules by EffectiveAt then Version.
func NewRateBook(schedules ...RateSchedule) *RateBook {
	sorted := append([]RateSchedule(nil), schedules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].EffectiveAt.Equal(sorted[j].EffectiveAt) {
			return sorted[i].Version < sorted[j].Version
		}
		return sorted[i].EffectiveAt.Before(sorted[j].EffectiveAt)
	})
	return &RateBook{schedules: sorted}
}

func (b *RateBook) Resolve(planKind string, at TimePoint) (RateSchedule, error) {
	if rs, ok := b.latest(planKind, at); ok {
		return rs, rs.Validate()
	}
	if rs, ok := b.latest(WildcardPlan, at); ok {
		return rs, rs.Validate()
	}
	return RateSchedule{}, &ConfigurationMissingError{PlanKind: planKind, At: at}
}

func (b *RateBook) latest(planKind string, at TimePoint) (RateSchedule, bool) {
	var (
		found RateSchedule
		ok    bool
	)
	for _, rs := range b.schedules {
		if rs.PlanKind != planKind || rs.EffectiveAt.After(at) {
			continue
		}
		found, ok = rs, true
	}
	return found, ok
}

// Schedules returns a copy of every version, oldest first.
func (b *RateBook) Schedules() []RateSchedule {
	return append([]RateSchedule(nil), b.schedules...)
}
