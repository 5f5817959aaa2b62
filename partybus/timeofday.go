package partybus

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidTimeOfDay indicates an hour/minute combination outside the
// supported range. The UI only offers quarter-hour granularity, so minutes
// are restricted to 0, 15, 30 and 45.
var ErrInvalidTimeOfDay = errors.New("invalid time of day")

// TimeOfDay is an (hour, minute) pair quantized to 15-minute increments.
// A TimeOfDay on its own carries no timezone - once past the original entry
// step it is always interpreted in one specific, explicit zone (stored
// values are UTC).
type TimeOfDay struct {
	Hour   int `json:"hour"`
	Minute int `json:"minute"`
}

// NewTimeOfDay validates and returns a TimeOfDay. The hour must be 0-23 and
// the minute one of 0/15/30/45.
func NewTimeOfDay(hour, minute int) (TimeOfDay, error) {
	t := TimeOfDay{Hour: hour, Minute: minute}
	if !t.valid() {
		return TimeOfDay{}, fmt.Errorf(
			"%w: %02d:%02d (hour must be 0-23, minute one of 0/15/30/45)",
			ErrInvalidTimeOfDay, hour, minute,
		)
	}
	return t, nil
}

func (t TimeOfDay) valid() bool {
	if t.Hour < 0 || t.Hour > 23 {
		return false
	}
	switch t.Minute {
	case 0, 15, 30, 45:
		return true
	default:
		return false
	}
}

// MinuteOfDay returns the minutes elapsed since midnight.
func (t TimeOfDay) MinuteOfDay() int {
	return t.Hour*60 + t.Minute
}

// On renders the time of day on the given calendar date, in date's location.
func (t TimeOfDay) On(date time.Time) time.Time {
	year, month, day := date.Date()
	return time.Date(year, month, day, t.Hour, t.Minute, 0, 0, date.Location())
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// ParseTimeOfDay parses an "HH:MM" string.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	var t TimeOfDay
	if err := t.parse(s); err != nil {
		return TimeOfDay{}, err
	}
	return t, nil
}

// Scan implements the sql.Scanner interface.
func (t *TimeOfDay) Scan(value any) error {
	switch v := value.(type) {
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unexpected type for TimeOfDay: %T", value)
	}
}

// Value implements the driver.Valuer interface.
func (t TimeOfDay) Value() (driver.Value, error) {
	return t.String(), nil
}

func (t *TimeOfDay) parse(s string) error {
	var hour, minute int
	if _, err := fmt.Sscanf(s, "%d:%d", &hour, &minute); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidTimeOfDay, s)
	}
	parsed, err := NewTimeOfDay(hour, minute)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// GormDataType is used by GORM to determine the default data type for a field.
func (TimeOfDay) GormDataType() string {
	return "string"
}
