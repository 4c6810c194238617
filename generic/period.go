package generic

// =============================================================================
// PERIOD - The window an obligation or installment covers
// =============================================================================

// Period is a closed calendar window [Start, End].
//
// Examples:
//   - Savings obligation #0 due 2025-01-01: [2025-01-01, 2025-01-31]
//   - Loan installment #3 due 2025-04-15: [2025-04-15, 2025-05-14]
type Period struct {
	Start TimePoint `json:"start"`
	End   TimePoint `json:"end"`
}

// Contains returns true if the time point is within the period [Start, End]
func (p Period) Contains(t TimePoint) bool {
	return t.AfterOrEqual(p.Start) && t.BeforeOrEqual(p.End)
}

// Days returns the number of calendar days covered.
func (p Period) Days() int {
	if p.End.Before(p.Start) {
		return 0
	}
	return DaysBetween(p.Start, p.End) + 1
}

func (p Period) String() string {
	return "[" + p.Start.String() + ", " + p.End.String() + "]"
}

// Validate rejects windows that end before they start.
func (p Period) Validate() error {
	if p.End.Before(p.Start) {
		return ErrInvalidPeriod
	}
	return nil
}

// MonthlyPeriods returns n contiguous one-month windows, the first starting at first.
// Window i starts at first+i months and ends the day before window i+1 starts.
func MonthlyPeriods(first TimePoint, n int) []Period {
	if n <= 0 {
		return nil
	}
	periods := make([]Period, 0, n)
	for i := 0; i < n; i++ {
		start := first.AddMonths(i)
		end := first.AddMonths(i + 1).AddDays(-1)
		periods = append(periods, Period{Start: start, End: end})
	}
	return periods
}

// PeriodIndexFor returns the index of the window containing t, or -1.
func PeriodIndexFor(periods []Period, t TimePoint) int {
	for i, p := range periods {
		if p.Contains(t) {
			return i
		}
	}
	return -1
}
