package generic

import (
	"encoding/json"
	"sync"
	"time"
)

// =============================================================================
// TIME POINT - Calendar date (due dates, first payment dates)
// =============================================================================

// TimePoint is a calendar day in UTC. Every due date in the engine is a
// TimePoint; wall-clock instants (payments) stay time.Time and are reduced
// to their day with DateOf before any lateness math.
type TimePoint struct {
	Time time.Time
}

const dateLayout = "2006-01-02"

// Constructors
func NewTimePoint(year int, month time.Month, day int) TimePoint {
	return TimePoint{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) TimePoint {
	u := t.UTC()
	return NewTimePoint(u.Year(), u.Month(), u.Day())
}

func ParseDate(s string) (TimePoint, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return TimePoint{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (tp TimePoint) Before(other TimePoint) bool        { return tp.normalize().Before(other.normalize()) }
func (tp TimePoint) Equal(other TimePoint) bool         { return tp.normalize().Equal(other.normalize()) }
func (tp TimePoint) After(other TimePoint) bool         { return tp.normalize().After(other.normalize()) }
func (tp TimePoint) BeforeOrEqual(other TimePoint) bool { return !tp.After(other) }
func (tp TimePoint) AfterOrEqual(other TimePoint) bool  { return !tp.Before(other) }

func (tp TimePoint) normalize() time.Time {
	u := tp.Time.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// Arithmetic
func (tp TimePoint) AddDays(n int) TimePoint { return TimePoint{Time: tp.normalize().AddDate(0, 0, n)} }

// AddMonths moves n calendar months, clamping to the last day of the target
// month: Jan 31 + 1 month is Feb 28 (or 29), never Mar 3.
func (tp TimePoint) AddMonths(n int) TimePoint {
	t := tp.normalize()
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC).AddDate(0, n, 0)
	day := t.Day()
	if last := DaysInMonth(first.Year(), first.Month()); day > last {
		day = last
	}
	return NewTimePoint(first.Year(), first.Month(), day)
}

// Properties
func (tp TimePoint) Year() int         { return tp.Time.Year() }
func (tp TimePoint) Month() time.Month { return tp.Time.Month() }
func (tp TimePoint) Day() int          { return tp.Time.Day() }
func (tp TimePoint) IsZero() bool      { return tp.Time.IsZero() }

func (tp TimePoint) String() string {
	return tp.normalize().Format(dateLayout)
}

func (tp TimePoint) MarshalJSON() ([]byte, error) {
	if tp.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(tp.String())
}

func (tp *TimePoint) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*tp = TimePoint{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*tp = parsed
	return nil
}

// =============================================================================
// CALENDAR UTILITIES
// =============================================================================

// DaysBetween returns the signed number of whole days from -> to.
func DaysBetween(from, to TimePoint) int {
	return int(to.normalize().Sub(from.normalize()).Hours() / 24)
}

// DaysLate is the whole number of days now is past dueAt, 0 when not past.
func DaysLate(dueAt, now TimePoint) int {
	if !now.After(dueAt) {
		return 0
	}
	return DaysBetween(dueAt, now)
}

// SameDay reports whether two instants fall on the same UTC calendar day.
func SameDay(a, b time.Time) bool { return DateOf(a).Equal(DateOf(b)) }

func DaysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func StartOfMonth(year int, month time.Month) TimePoint { return NewTimePoint(year, month, 1) }
func EndOfMonth(year int, month time.Month) TimePoint {
	return NewTimePoint(year, month, DaysInMonth(year, month))
}

// FullMonthsBetween counts whole calendar months elapsed from -> to.
func FullMonthsBetween(from, to TimePoint) int {
	if to.Before(from) {
		return 0
	}
	months := (to.Year()-from.Year())*12 + int(to.Month()-from.Month())
	if from.AddMonths(months).After(to) {
		months--
	}
	return months
}

// =============================================================================
// CLOCK - Injectable "now"
// =============================================================================

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock returns a settable instant; used by tests and scenario loading.
type FixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFixedClock(t time.Time) *FixedClock { return &FixedClock{t: t} }

func (c *FixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FixedClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = t
}

func (c *FixedClock) AdvanceDays(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.AddDate(0, 0, n)
}
