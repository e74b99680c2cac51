// Package recurrence computes occurrence dates for recurring transactions.
package recurrence

import (
	"errors"
	"fmt"
	"time"

	"github.com/avezhov/finance-service/internal/models"
)

// ErrInvalidInterval is returned when an interval kind outside the four
// defined cadences is passed in.
var ErrInvalidInterval = errors.New("invalid recurring interval")

// NextOccurrence returns the occurrence date one interval after ref.
// Month and year addition clamps to the last valid day of the target
// month, so Jan 31 + 1 month yields Feb 28 (or Feb 29 in a leap year)
// rather than rolling over into March.
func NextOccurrence(ref time.Time, interval models.RecurringInterval) (time.Time, error) {
	switch interval {
	case models.IntervalDaily:
		return ref.AddDate(0, 0, 1), nil
	case models.IntervalWeekly:
		return ref.AddDate(0, 0, 7), nil
	case models.IntervalMonthly:
		return addMonths(ref, 1), nil
	case models.IntervalYearly:
		return addMonths(ref, 12), nil
	default:
		return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidInterval, interval)
	}
}

// addMonths adds whole calendar months, clamping the day-of-month.
// time.AddDate normalizes overflow (Jan 31 + 1 month = Mar 3), which is
// the wrong behavior for a billing schedule.
func addMonths(t time.Time, months int) time.Time {
	year, month, day := t.Date()
	firstOfTarget := time.Date(year, month, 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location()).AddDate(0, months, 0)
	if last := daysInMonth(firstOfTarget.Year(), firstOfTarget.Month()); day > last {
		day = last
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

func daysInMonth(year int, month time.Month) int {
	// day 0 of the next month is the last day of this month
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
