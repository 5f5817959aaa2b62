package partybus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

const minutesPerDay = 1440

// AvailabilityWindow is a recurring weekly interval during which a profile
// is available for work. Each window is owned by exactly one profile, and a
// profile holds at most one window per weekday - setting a new window for a
// day replaces the old one (see [database.SetAvailability]).
//
// Weekday is the day the user picked in their own timezone. Start and End
// hold the UTC clock times produced by converting the user's local entry on
// the next calendar occurrence of that weekday. An End numerically at or
// before Start means the window crosses midnight; the stored values are not
// wrapped, containment checks account for it.
type AvailabilityWindow struct {
	ModelUintID
	ProfileID string    `json:"profile_id" gorm:"index;not null"`
	Weekday   Weekday   `json:"weekday" gorm:"not null"`
	Start     TimeOfDay `json:"start" gorm:"not null"`
	End       TimeOfDay `json:"end" gorm:"not null"`
	ModelUnixTime
}

// NewAvailabilityWindow converts a local-time availability entry to its
// stored UTC form. The local start/end are anchored on the next calendar
// occurrence of weekday in loc (same-day counts), because a bare
// (hour, minute) pair can't be converted to UTC without knowing which side
// of a DST boundary it falls on.
//
// Returns an error wrapping ErrInvalidTimeOfDay if either local time can't
// be realized on the anchor date (a DST-gap instant).
func NewAvailabilityWindow(
	profileID string,
	weekday Weekday,
	startLocal TimeOfDay,
	endLocal TimeOfDay,
	loc *time.Location,
	now time.Time,
) (*AvailabilityWindow, error) {
	if !weekday.Valid() {
		return nil, fmt.Errorf("weekday out of range: %d", int(weekday))
	}
	anchor := nextDateForWeekday(now.In(loc), weekday)

	start, err := realizeOn(anchor, startLocal)
	if err != nil {
		return nil, err
	}
	end, err := realizeOn(anchor, endLocal)
	if err != nil {
		return nil, err
	}

	startUTC := start.UTC()
	endUTC := end.UTC()
	return &AvailabilityWindow{
		ProfileID: profileID,
		Weekday:   weekday,
		Start:     TimeOfDay{Hour: startUTC.Hour(), Minute: startUTC.Minute()},
		End:       TimeOfDay{Hour: endUTC.Hour(), Minute: endUTC.Minute()},
	}, nil
}

// realizeOn renders t on date's calendar day and verifies the wall clock
// survived the conversion. time.Date silently normalizes instants that fall
// into a DST gap; that normalization is exactly the "guess a substitute
// time" behavior we refuse to do.
func realizeOn(date time.Time, t TimeOfDay) (time.Time, error) {
	realized := t.On(date)
	if realized.Hour() != t.Hour || realized.Minute() != t.Minute {
		return time.Time{}, fmt.Errorf(
			"%w: %s does not exist on %s in %s (DST transition)",
			ErrInvalidTimeOfDay,
			t, date.Format(time.DateOnly), date.Location(),
		)
	}
	return realized, nil
}

// Contains reports whether the query range lies fully inside the window.
// Both ranges are normalized to minutes since midnight; an end at or before
// its start gets 1440 added (midnight crossing), and a query starting
// before a wrapped window's start is shifted into the following day. This
// is closed containment, not overlap: a query that merely intersects but
// extends past either boundary is false.
func (w *AvailabilityWindow) Contains(queryStart, queryEnd TimeOfDay) bool {
	ws := w.Start.MinuteOfDay()
	we := w.End.MinuteOfDay()
	if we <= ws {
		we += minutesPerDay
	}

	qs := queryStart.MinuteOfDay()
	qe := queryEnd.MinuteOfDay()
	if qe <= qs {
		qe += minutesPerDay
	}
	if we > minutesPerDay && qs < ws {
		qs += minutesPerDay
		qe += minutesPerDay
	}

	return qs >= ws && qe <= we
}

// ContainsRange is Contains over absolute instants: the query's start and
// end are reduced to their UTC clock times.
func (w *AvailabilityWindow) ContainsRange(start, end time.Time) bool {
	su := start.UTC()
	eu := end.UTC()
	return w.Contains(
		TimeOfDay{Hour: su.Hour(), Minute: su.Minute()},
		TimeOfDay{Hour: eu.Hour(), Minute: eu.Minute()},
	)
}

// NextOccurrence returns the next concrete timestamp for this recurring
// window: the next calendar date matching the weekday in loc (today counts
// if the weekday matches), with the stored UTC start time rendered on that
// date. The result is recomputed from now on every call - never cached -
// so two calls on different days return different dates for the same
// stored window.
func (w *AvailabilityWindow) NextOccurrence(now time.Time, loc *time.Location) time.Time {
	year, month, day := nextDateForWeekday(now.In(loc), w.Weekday).Date()
	return time.Date(year, month, day, w.Start.Hour, w.Start.Minute, 0, 0, time.UTC)
}

func (w *AvailabilityWindow) String() string {
	return fmt.Sprintf("%s %s-%s UTC", w.Weekday, w.Start, w.End)
}

func (w *AvailabilityWindow) LogValue() slog.Value {
	if w == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("profile_id", w.ProfileID),
		slog.String("weekday", w.Weekday.String()),
		slog.String("start", w.Start.String()),
		slog.String("end", w.End.String()),
	)
}

// SetAvailability stores a window for (window.ProfileID, window.Weekday),
// deleting any prior window for that pair first. Replace, never merge.
func (d *database) SetAvailability(
	ctx context.Context,
	window *AvailabilityWindow,
) error {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}
	return d.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			err := tx.Where(
				"profile_id = ? AND weekday = ?",
				window.ProfileID,
				window.Weekday,
			).Delete(&AvailabilityWindow{}).Error
			if err != nil {
				return err
			}
			return tx.Create(window).Error
		},
	)
}

// ClearAvailability removes the window for (profileID, weekday), if any.
func (d *database) ClearAvailability(
	ctx context.Context,
	profileID string,
	weekday Weekday,
) (rowsAffected int64, err error) {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	rv := d.db.WithContext(ctx).Where(
		"profile_id = ? AND weekday = ?", profileID, weekday,
	).Delete(&AvailabilityWindow{})
	return rv.RowsAffected, rv.Error
}
