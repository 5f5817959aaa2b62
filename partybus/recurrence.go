package partybus

import (
	"database/sql/driver"
	"fmt"
	"log/slog"
	"time"
)

// IntervalType discriminates the two recurring-opening patterns a venue
// schedule entry can use.
type IntervalType string

const (
	// IntervalEveryXWeeks repeats on a fixed weekly cadence.
	IntervalEveryXWeeks IntervalType = "every_x_weeks"

	// IntervalEveryXthDayOfMonth repeats on an ordinal weekday-of-month
	// pattern ("2nd Friday", "last Saturday").
	IntervalEveryXthDayOfMonth IntervalType = "every_xth_day_of_month"
)

// Scan implements the sql.Scanner interface.
func (i *IntervalType) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return i.parse(string(v))
	case string:
		return i.parse(v)
	default:
		return fmt.Errorf("unexpected type for IntervalType: %T", value)
	}
}

// Value implements the driver.Valuer interface.
func (i IntervalType) Value() (driver.Value, error) {
	return string(i), nil
}

func (i *IntervalType) parse(s string) error {
	switch IntervalType(s) {
	case IntervalEveryXWeeks, IntervalEveryXthDayOfMonth:
		*i = IntervalType(s)
		return nil
	default:
		return fmt.Errorf("unknown interval type: %q", s)
	}
}

// GormDataType is used by GORM to determine the default data type for a field.
func (IntervalType) GormDataType() string {
	return "string"
}

// RecurrenceRule is one entry of a venue's recurring operating hours. Rules
// belong to exactly one venue and are replaced wholesale whenever the
// venue's schedule is re-imported from its upstream listing - they are
// never partially mutated.
//
// Weekday and Open may be unset on a freshly imported rule (the upstream
// listing allows incomplete hours); Resolve returns nil for such rules.
// Close is optional: a rule with no close time renders as open-ended.
// All stored times are UTC.
type RecurrenceRule struct {
	ModelUintID
	VenueID     string       `json:"venue_id" gorm:"index;not null"`
	Weekday     *Weekday     `json:"weekday"`
	Open        *TimeOfDay   `json:"open"`
	Close       *TimeOfDay   `json:"close"`
	Interval    IntervalType `json:"interval" gorm:"not null"`
	IntervalArg int          `json:"interval_arg"`
	ModelUnixTime
}

// Resolve computes the next concrete opening instant for the rule, on or
// after ref. It is a pure function of its inputs - no state, no clock.
// Returns nil when the rule has no weekday or open time set; "no upcoming
// occurrence" is otherwise impossible for well-formed rules.
//
// For IntervalEveryXWeeks the result is the first date on/after ref
// matching the weekday, plus IntervalArg whole weeks. The interval is added
// even when ref itself lands on the weekday, so IntervalArg=1 skips the
// immediately upcoming occurrence. This mirrors the behavior of the venue
// listing service the schedule is imported from; do not "fix" it here
// without confirming the upstream changed.
//
// For IntervalEveryXthDayOfMonth a positive IntervalArg picks the Nth
// matching weekday from the start of ref's month (1-indexed) and a negative
// one picks from the end (-1 = last). If the month has fewer matching dates
// than requested, or the picked date already passed, resolution moves to
// the following month.
func (r *RecurrenceRule) Resolve(ref time.Time) *time.Time {
	if r.Weekday == nil || r.Open == nil {
		return nil
	}
	ref = ref.UTC()

	var date time.Time
	switch r.Interval {
	case IntervalEveryXthDayOfMonth:
		date = nthWeekdayOfMonthOnOrAfter(ref, *r.Weekday, r.IntervalArg)
	default:
		date = nextDateForWeekday(ref, *r.Weekday).AddDate(0, 0, 7*r.IntervalArg)
	}

	at := r.Open.On(date)
	return &at
}

// ResolveClose derives the closing instant for a resolved opening. A close
// time numerically before the open time rolls over to the day after openAt;
// rules with no close time return nil.
func (r *RecurrenceRule) ResolveClose(openAt time.Time) *time.Time {
	if r.Close == nil || r.Open == nil {
		return nil
	}
	at := r.Close.On(openAt)
	if r.Close.MinuteOfDay() < r.Open.MinuteOfDay() {
		at = at.AddDate(0, 0, 1)
	}
	return &at
}

func (r *RecurrenceRule) String() string {
	if r.Weekday == nil || r.Open == nil {
		return "unscheduled"
	}
	closes := "N/A"
	if r.Close != nil {
		closes = r.Close.String()
	}
	switch r.Interval {
	case IntervalEveryXthDayOfMonth:
		return fmt.Sprintf(
			"%s #%d of the month, %s-%s UTC",
			*r.Weekday, r.IntervalArg, r.Open, closes,
		)
	default:
		return fmt.Sprintf(
			"every %d week(s) on %s, %s-%s UTC",
			r.IntervalArg, *r.Weekday, r.Open, closes,
		)
	}
}

func (r *RecurrenceRule) LogValue() slog.Value {
	if r == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("venue_id", r.VenueID),
		slog.String("interval", string(r.Interval)),
		slog.Int("interval_arg", r.IntervalArg),
		slog.String("rule", r.String()),
	)
}

// weekdayDatesInMonth returns every date in the month containing ref that
// falls on the given weekday, in order.
func weekdayDatesInMonth(ref time.Time, w Weekday) []time.Time {
	year, month, _ := ref.Date()
	first := time.Date(year, month, 1, 0, 0, 0, 0, ref.Location())

	var dates []time.Time
	d := nextDateForWeekday(first, w)
	for d.Month() == month {
		dates = append(dates, d)
		d = d.AddDate(0, 0, 7)
	}
	return dates
}

// nthWeekdayOfMonthOnOrAfter picks the ordinal-th date matching w in ref's
// month: positive ordinals count from the start (1-indexed), negative from
// the end. When the month doesn't hold enough matching dates, or the picked
// date precedes ref's date, the search advances to the next month. Every
// month has at least four of each weekday, so the recursion terminates for
// any ordinal a month can ever satisfy.
func nthWeekdayOfMonthOnOrAfter(ref time.Time, w Weekday, ordinal int) time.Time {
	if ordinal == 0 {
		// never produced by the schedule importer; treat as "first"
		ordinal = 1
	}
	refDate := time.Date(ref.Year(), ref.Month(), ref.Day(), 0, 0, 0, 0, ref.Location())

	for {
		dates := weekdayDatesInMonth(refDate, w)
		idx := -1
		switch {
		case ordinal > 0 && ordinal <= len(dates):
			idx = ordinal - 1
		case ordinal < 0 && -ordinal <= len(dates):
			idx = len(dates) + ordinal
		}

		if idx >= 0 && !dates[idx].Before(refDate) {
			return dates[idx]
		}

		// 1st of the following month
		refDate = time.Date(
			refDate.Year(), refDate.Month(), 1, 0, 0, 0, 0, refDate.Location(),
		).AddDate(0, 1, 0)
	}
}
