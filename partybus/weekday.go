package partybus

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Weekday is the day-of-week discriminant used by all weekly recurrence
// logic. Values are fixed at Monday=0 through Sunday=6 and are shared by
// every component - availability windows, venue schedules and the
// eligibility matcher all agree on this mapping.
//
// Note this differs from time.Weekday, which starts the week on Sunday.
// Use [WeekdayFromTime] and [Weekday.TimeWeekday] to convert.
type Weekday int

const (
	Monday Weekday = iota
	Tuesday
	Wednesday
	Thursday
	Friday
	Saturday
	Sunday
)

var weekdayNames = [7]string{
	"Monday",
	"Tuesday",
	"Wednesday",
	"Thursday",
	"Friday",
	"Saturday",
	"Sunday",
}

// WeekdayFromTime converts a time.Weekday (Sunday=0) to a Weekday (Monday=0).
func WeekdayFromTime(d time.Weekday) Weekday {
	return Weekday((int(d) + 6) % 7)
}

// ParseWeekday parses a day name (case-insensitive) into a Weekday.
func ParseWeekday(s string) (Weekday, error) {
	for i, name := range weekdayNames {
		if strings.EqualFold(s, name) {
			return Weekday(i), nil
		}
	}
	return 0, fmt.Errorf("unknown weekday: %q", s)
}

// Valid reports whether the weekday is within Monday..Sunday.
func (w Weekday) Valid() bool {
	return w >= Monday && w <= Sunday
}

// TimeWeekday converts to the stdlib time.Weekday (Sunday=0).
func (w Weekday) TimeWeekday() time.Weekday {
	return time.Weekday((int(w) + 1) % 7)
}

func (w Weekday) String() string {
	if !w.Valid() {
		return fmt.Sprintf("Weekday(%d)", int(w))
	}
	return weekdayNames[w]
}

// Scan implements the sql.Scanner interface.
func (w *Weekday) Scan(value any) error {
	switch v := value.(type) {
	case int64:
		*w = Weekday(v)
	case []byte:
		return w.parse(string(v))
	case string:
		return w.parse(v)
	default:
		return fmt.Errorf("unexpected type for Weekday: %T", value)
	}
	if !w.Valid() {
		return fmt.Errorf("weekday out of range: %d", int(*w))
	}
	return nil
}

// Value implements the driver.Valuer interface.
func (w Weekday) Value() (driver.Value, error) {
	return int64(w), nil
}

func (w *Weekday) parse(s string) error {
	day, err := ParseWeekday(s)
	if err != nil {
		return err
	}
	*w = day
	return nil
}

// GormDataType is used by GORM to determine the default data type for a field.
func (Weekday) GormDataType() string {
	return "int"
}

// MarshalJSON implements the json.Marshaller interface.
func (w Weekday) MarshalJSON() ([]byte, error) {
	return json.Marshal(w.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface.
func (w *Weekday) UnmarshalJSON(data []byte) error {
	var name string
	if err := json.Unmarshal(data, &name); err != nil {
		return err
	}
	return w.parse(name)
}

// nextDateForWeekday returns the next calendar date in t's location whose
// weekday matches w. If t already falls on w, t's date is returned
// unchanged (same-day counts as the next occurrence - callers needing a
// strictly future date must adjust themselves).
func nextDateForWeekday(t time.Time, w Weekday) time.Time {
	daysAhead := (int(w.TimeWeekday()) - int(t.Weekday()) + 7) % 7
	year, month, day := t.AddDate(0, 0, daysAhead).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}
