/*
Package factory provides JSON to Go conversion for rate books and contract terms.

PURPOSE:
  Association settings (grace window, penalty window, penalty and bonus
  percentages, loan overdue threshold) are edited by administrators, not
  developers. The factory turns their JSON into a generic.RateBook, and
  turns JSON contract terms into savings.Terms and credit.Terms, validating
  both with struct tags.

JSON SCHEMA (rate book):
  {
    "schedules": [
      {
        "version": 1,
        "plan_kind": "*",
        "effective_at": "2024-01-01",
        "grace_days": 3,
        "penalty_window_days": 12,
        "penalty_rate_percent": "5",
        "bonus_rate_percent": "0",
        "overdue_threshold_days": 3
      }
    ]
  }

  Omitted windows fall back to the documented defaults (3 / 12 / 3).
  penalty_rate_percent has no default: a schedule without it resolves but
  cannot drive penalty decisions, and the contract is flagged
  configuration_missing.

USAGE:
  f := factory.NewFactory()
  book, err := f.ParseRateBook([]byte(factory.DefaultRateBookJSON))
  svc := savings.NewService(store, book, clock, publisher)

SEE ALSO:
  - generic/rates.go: RateSchedule and RateBook
  - factory/terms.go: contract terms
*/
package factory

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/entraide/caisse-engine/generic"
)

// DefaultRateBookJSON is used when no rates file is configured.
const DefaultRateBookJSON = `{
  "schedules": [
    {
      "version": 1,
      "plan_kind": "*",
      "effective_at": "2024-01-01",
      "grace_days": 3,
      "penalty_window_days": 12,
      "penalty_rate_percent": "5",
      "bonus_rate_percent": "0",
      "overdue_threshold_days": 3
    }
  ]
}`

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

type RateBookJSON struct {
	Schedules []RateScheduleJSON `json:"schedules" validate:"required,min=1,dive"`
}

type RateScheduleJSON struct {
	Version              int              `json:"version" validate:"required,gte=1"`
	PlanKind             string           `json:"plan_kind" validate:"required"`
	EffectiveAt          string           `json:"effective_at" validate:"required"`
	GraceDays            *int             `json:"grace_days,omitempty" validate:"omitempty,gte=0"`
	PenaltyWindowDays    *int             `json:"penalty_window_days,omitempty" validate:"omitempty,gte=0"`
	PenaltyRatePercent   *decimal.Decimal `json:"penalty_rate_percent,omitempty"`
	BonusRatePercent     *decimal.Decimal `json:"bonus_rate_percent,omitempty"`
	OverdueThresholdDays *int             `json:"overdue_threshold_days,omitempty" validate:"omitempty,gte=0"`
}

// =============================================================================
// FACTORY
// =============================================================================

// Factory converts JSON documents to engine types.
type Factory struct {
	validate *validator.Validate
}

func NewFactory() *Factory {
	v := validator.New()
	// Report json field names so errors match what the caller sent.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Factory{validate: v}
}

// Validate runs struct-tag validation and returns the first failure as an
// InvalidTermsError.
func (f *Factory) Validate(v interface{}) error {
	err := f.validate.Struct(v)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) || len(validationErrors) == 0 {
		return &generic.InvalidTermsError{Field: "body", Reason: err.Error()}
	}
	e := validationErrors[0]
	return &generic.InvalidTermsError{Field: e.Field(), Reason: describe(e)}
}

func describe(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return "is required"
	case "gt":
		return "must be greater than " + e.Param()
	case "gte", "min":
		return "must be at least " + e.Param()
	case "lte", "max":
		return "must be at most " + e.Param()
	case "oneof":
		return "must be one of " + e.Param()
	}
	return "failed " + e.Tag() + " check"
}

// ParseRateBook parses a JSON rate book.
func (f *Factory) ParseRateBook(data []byte) (*generic.RateBook, error) {
	var rb RateBookJSON
	if err := json.Unmarshal(data, &rb); err != nil {
		return nil, fmt.Errorf("failed to parse rate book JSON: %w", err)
	}
	return f.RateBookFromJSON(rb)
}

// LoadRateBook reads a rate book file; an empty path yields the default book.
func (f *Factory) LoadRateBook(path string) (*generic.RateBook, error) {
	if path == "" {
		return f.ParseRateBook([]byte(DefaultRateBookJSON))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read rate book %s: %w", path, err)
	}
	return f.ParseRateBook(data)
}

// RateBookFromJSON converts RateBookJSON into a generic.RateBook.
func (f *Factory) RateBookFromJSON(rb RateBookJSON) (*generic.RateBook, error) {
	if err := f.Validate(rb); err != nil {
		return nil, err
	}
	schedules := make([]generic.RateSchedule, 0, len(rb.Schedules))
	seen := make(map[string]bool)
	for _, sj := range rb.Schedules {
		rs, err := parseRateSchedule(sj)
		if err != nil {
			return nil, err
		}
		key := fmt.Sprintf("%s@%d", rs.PlanKind, rs.Version)
		if seen[key] {
			return nil, &generic.InvalidTermsError{Field: "version", Reason: "duplicate version " + key}
		}
		seen[key] = true
		schedules = append(schedules, rs)
	}
	return generic.NewRateBook(schedules...), nil
}

func parseRateSchedule(sj RateScheduleJSON) (generic.RateSchedule, error) {
	effective, err := generic.ParseDate(sj.EffectiveAt)
	if err != nil {
		return generic.RateSchedule{}, &generic.InvalidTermsError{Field: "effective_at", Reason: err.Error()}
	}
	rs := generic.RateSchedule{
		Version:              sj.Version,
		PlanKind:             sj.PlanKind,
		EffectiveAt:          effective,
		GraceDays:            intOr(sj.GraceDays, generic.DefaultGraceDays),
		PenaltyWindowDays:    intOr(sj.PenaltyWindowDays, generic.DefaultPenaltyWindowDays),
		BonusRatePercent:     decimal.Zero,
		OverdueThresholdDays: intOr(sj.OverdueThresholdDays, generic.DefaultOverdueThresholdDays),
	}
	if sj.PenaltyRatePercent != nil {
		if sj.PenaltyRatePercent.IsNegative() {
			return generic.RateSchedule{}, &generic.InvalidTermsError{Field: "penalty_rate_percent", Reason: "must not be negative"}
		}
		rs.PenaltyRatePercent = decimal.NewNullDecimal(*sj.PenaltyRatePercent)
	}
	if sj.BonusRatePercent != nil {
		if sj.BonusRatePercent.IsNegative() {
			return generic.RateSchedule{}, &generic.InvalidTermsError{Field: "bonus_rate_percent", Reason: "must not be negative"}
		}
		rs.BonusRatePercent = *sj.BonusRatePercent
	}
	if rs.PenaltyWindowDays < rs.GraceDays {
		return generic.RateSchedule{}, &generic.InvalidTermsError{Field: "penalty_window_days", Reason: "must be at least grace_days"}
	}
	return rs, nil
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}
