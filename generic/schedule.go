package generic

import "github.com/shopspring/decimal"

// =============================================================================
// SCHEDULE HELPERS - Shared by the savings and loan schedule generators
// =============================================================================

// MaxSavingsMonths caps savings plans at one year.
const MaxSavingsMonths = 12

// MonthlyDueDates returns n due dates one calendar month apart starting at first.
func MonthlyDueDates(first TimePoint, n int) []TimePoint {
	if n <= 0 {
		return nil
	}
	dates := make([]TimePoint, n)
	for i := range dates {
		dates[i] = first.AddMonths(i)
	}
	return dates
}

// SplitEvenly divides total into n parts truncated to the currency scale; the
// remainder is absorbed by the LAST part so Σ parts == total exactly and no
// part of a non-negative total is ever negative.
func SplitEvenly(total decimal.Decimal, n int) []decimal.Decimal {
	if n <= 0 {
		return nil
	}
	parts := make([]decimal.Decimal, n)
	share := total.Div(decimal.NewFromInt(int64(n))).RoundFloor(MoneyScale)
	allocated := decimal.Zero
	for i := 0; i < n-1; i++ {
		parts[i] = share
		allocated = allocated.Add(share)
	}
	parts[n-1] = total.Sub(allocated)
	return parts
}

// ValidateTermCount checks a months/duration term.
func ValidateTermCount(field string, n, max int) error {
	if n <= 0 {
		return &InvalidTermsError{Field: field, Reason: "must be at least 1"}
	}
	if max > 0 && n > max {
		return &InvalidTermsError{Field: field, Reason: "exceeds maximum"}
	}
	return nil
}

// ValidatePositiveAmount checks a money term.
func ValidatePositiveAmount(field string, d decimal.Decimal) error {
	if !d.IsPositive() {
		return &InvalidTermsError{Field: field, Reason: "must be positive"}
	}
	return nil
}
