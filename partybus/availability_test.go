package partybus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowContains(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		window    [2]TimeOfDay
		query     [2]TimeOfDay
		contained bool
	}{
		{
			name:      "identical range",
			window:    [2]TimeOfDay{{9, 0}, {17, 0}},
			query:     [2]TimeOfDay{{9, 0}, {17, 0}},
			contained: true,
		},
		{
			name:      "strictly inside",
			window:    [2]TimeOfDay{{9, 0}, {17, 0}},
			query:     [2]TimeOfDay{{10, 15}, {16, 45}},
			contained: true,
		},
		{
			name:      "starts before window",
			window:    [2]TimeOfDay{{9, 0}, {17, 0}},
			query:     [2]TimeOfDay{{8, 0}, {17, 0}},
			contained: false,
		},
		{
			name:      "ends after window",
			window:    [2]TimeOfDay{{9, 0}, {17, 0}},
			query:     [2]TimeOfDay{{9, 0}, {17, 15}},
			contained: false,
		},
		{
			name:      "overlap is not containment",
			window:    [2]TimeOfDay{{9, 0}, {17, 0}},
			query:     [2]TimeOfDay{{16, 0}, {18, 0}},
			contained: false,
		},
		{
			name:      "wrapped window contains wrapped query",
			window:    [2]TimeOfDay{{22, 0}, {2, 0}},
			query:     [2]TimeOfDay{{23, 0}, {1, 0}},
			contained: true,
		},
		{
			name:      "wrapped window contains pre-midnight query",
			window:    [2]TimeOfDay{{22, 0}, {2, 0}},
			query:     [2]TimeOfDay{{22, 30}, {23, 30}},
			contained: true,
		},
		{
			name:      "wrapped window contains post-midnight query",
			window:    [2]TimeOfDay{{22, 0}, {2, 0}},
			query:     [2]TimeOfDay{{0, 30}, {1, 30}},
			contained: true,
		},
		{
			name:      "wrapped window, query ends at boundary",
			window:    [2]TimeOfDay{{22, 0}, {2, 0}},
			query:     [2]TimeOfDay{{23, 0}, {2, 0}},
			contained: true,
		},
		{
			name:      "wrapped window, query extends past close",
			window:    [2]TimeOfDay{{22, 0}, {2, 0}},
			query:     [2]TimeOfDay{{1, 0}, {3, 0}},
			contained: false,
		},
		{
			name:      "wrapped window, query starts before open",
			window:    [2]TimeOfDay{{22, 0}, {2, 0}},
			query:     [2]TimeOfDay{{21, 0}, {23, 0}},
			contained: false,
		},
		{
			name:      "equal start and end spans the full day",
			window:    [2]TimeOfDay{{0, 0}, {0, 0}},
			query:     [2]TimeOfDay{{10, 0}, {11, 0}},
			contained: true,
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(
			tc.name, func(t *testing.T) {
				t.Parallel()
				w := &AvailabilityWindow{
					Weekday: Monday,
					Start:   tc.window[0],
					End:     tc.window[1],
				}
				assert.Equal(t, tc.contained, w.Contains(tc.query[0], tc.query[1]))
			},
		)
	}
}

func TestNewAvailabilityWindowConvertsToUTC(t *testing.T) {
	t.Parallel()
	catalog := testCatalog(t)
	loc, err := catalog.Resolve("US/Eastern")
	require.NoError(t, err)

	// Monday, well clear of any DST boundary (EST, UTC-5)
	now := utcDate(2024, time.January, 8, 12, 0)

	window, err := NewAvailabilityWindow(
		"user-1",
		Wednesday,
		mustTimeOfDay(t, 14, 0),
		mustTimeOfDay(t, 18, 0),
		loc,
		now,
	)
	require.NoError(t, err)

	assert.Equal(t, Wednesday, window.Weekday)
	assert.Equal(t, "19:00", window.Start.String())
	assert.Equal(t, "23:00", window.End.String())
}

func TestNewAvailabilityWindowMidnightWrap(t *testing.T) {
	t.Parallel()
	catalog := testCatalog(t)
	loc, err := catalog.Resolve("US/Eastern")
	require.NoError(t, err)

	now := utcDate(2024, time.January, 8, 12, 0)

	// 18:00-22:00 EST crosses midnight once converted to UTC
	window, err := NewAvailabilityWindow(
		"user-1",
		Monday,
		mustTimeOfDay(t, 18, 0),
		mustTimeOfDay(t, 22, 0),
		loc,
		now,
	)
	require.NoError(t, err)

	assert.Equal(t, "23:00", window.Start.String())
	assert.Equal(t, "03:00", window.End.String())
	assert.True(
		t,
		window.Contains(TimeOfDay{Hour: 0, Minute: 0}, TimeOfDay{Hour: 1, Minute: 0}),
	)
}

func TestNewAvailabilityWindowDSTGap(t *testing.T) {
	t.Parallel()
	catalog := testCatalog(t)
	loc, err := catalog.Resolve("US/Pacific")
	require.NoError(t, err)

	// 2024-03-10 02:30 does not exist in US/Pacific (spring-forward gap)
	now := utcDate(2024, time.March, 8, 12, 0)

	_, err = NewAvailabilityWindow(
		"user-1",
		Sunday,
		mustTimeOfDay(t, 2, 30),
		mustTimeOfDay(t, 6, 0),
		loc,
		now,
	)
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	// the same entry on a non-transition weekday is fine
	_, err = NewAvailabilityWindow(
		"user-1",
		Monday,
		mustTimeOfDay(t, 2, 30),
		mustTimeOfDay(t, 6, 0),
		loc,
		now,
	)
	assert.NoError(t, err)
}

func TestNextOccurrenceIsNeverCached(t *testing.T) {
	t.Parallel()
	catalog := testCatalog(t)
	loc, err := catalog.Resolve("US/Eastern")
	require.NoError(t, err)

	window := &AvailabilityWindow{
		ProfileID: "user-1",
		Weekday:   Wednesday,
		Start:     TimeOfDay{Hour: 19, Minute: 0},
		End:       TimeOfDay{Hour: 23, Minute: 0},
	}

	monday := utcDate(2024, time.January, 8, 12, 0)
	assert.Equal(
		t,
		utcDate(2024, time.January, 10, 19, 0),
		window.NextOccurrence(monday, loc),
	)

	// a week later, the same stored window resolves to the next date
	thursday := utcDate(2024, time.January, 11, 12, 0)
	assert.Equal(
		t,
		utcDate(2024, time.January, 17, 19, 0),
		window.NextOccurrence(thursday, loc),
	)
}

func TestSetAvailabilityReplaces(t *testing.T) {
	t.Parallel()
	writeDB := newTestDatabase(t)
	ctx := context.Background()

	profile := &Profile{ID: "user-1", Username: "someone", TimezoneLabel: "UTC"}
	_, err := writeDB.Create(ctx, profile)
	require.NoError(t, err)

	first := &AvailabilityWindow{
		ProfileID: profile.ID,
		Weekday:   Monday,
		Start:     TimeOfDay{Hour: 9, Minute: 0},
		End:       TimeOfDay{Hour: 17, Minute: 0},
	}
	require.NoError(t, writeDB.SetAvailability(ctx, first))

	other := &AvailabilityWindow{
		ProfileID: profile.ID,
		Weekday:   Tuesday,
		Start:     TimeOfDay{Hour: 9, Minute: 0},
		End:       TimeOfDay{Hour: 17, Minute: 0},
	}
	require.NoError(t, writeDB.SetAvailability(ctx, other))

	// setting Monday again replaces the old Monday window entirely
	replacement := &AvailabilityWindow{
		ProfileID: profile.ID,
		Weekday:   Monday,
		Start:     TimeOfDay{Hour: 12, Minute: 30},
		End:       TimeOfDay{Hour: 20, Minute: 0},
	}
	require.NoError(t, writeDB.SetAvailability(ctx, replacement))

	var windows []AvailabilityWindow
	require.NoError(
		t,
		writeDB.DB().Where(
			"profile_id = ? AND weekday = ?", profile.ID, Monday,
		).Find(&windows).Error,
	)
	require.Len(t, windows, 1)
	assert.Equal(t, "12:30", windows[0].Start.String())
	assert.Equal(t, "20:00", windows[0].End.String())

	// the Tuesday window is untouched
	var count int64
	require.NoError(
		t,
		writeDB.DB().Model(&AvailabilityWindow{}).Where(
			"profile_id = ?", profile.ID,
		).Count(&count).Error,
	)
	assert.Equal(t, int64(2), count)
}

func TestClearAvailability(t *testing.T) {
	t.Parallel()
	writeDB := newTestDatabase(t)
	ctx := context.Background()

	profile := &Profile{ID: "user-1", Username: "someone", TimezoneLabel: "UTC"}
	_, err := writeDB.Create(ctx, profile)
	require.NoError(t, err)

	window := &AvailabilityWindow{
		ProfileID: profile.ID,
		Weekday:   Friday,
		Start:     TimeOfDay{Hour: 9, Minute: 0},
		End:       TimeOfDay{Hour: 17, Minute: 0},
	}
	require.NoError(t, writeDB.SetAvailability(ctx, window))

	affected, err := writeDB.ClearAvailability(ctx, profile.ID, Friday)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	// clearing a day with no window is a no-op, not an error
	affected, err = writeDB.ClearAvailability(ctx, profile.ID, Friday)
	require.NoError(t, err)
	assert.Equal(t, int64(0), affected)
}

// Local entry to UTC storage and back again lands on the original local
// weekday and clock times. Dates near a DST transition are deliberately
// not used here; the gap behavior has its own test.
func TestAvailabilityWindowRoundTrip(t *testing.T) {
	t.Parallel()

	loc, err := testCatalog(t).Resolve("US/Eastern")
	require.NoError(t, err)
	now := utcDate(2024, time.January, 8, 12, 0)

	window, err := NewAvailabilityWindow(
		"profile-1",
		Wednesday,
		mustTimeOfDay(t, 14, 0),
		mustTimeOfDay(t, 18, 0),
		loc,
		now,
	)
	require.NoError(t, err)

	startBack := window.NextOccurrence(now, loc).In(loc)
	assert.Equal(t, time.Wednesday, startBack.Weekday())
	assert.Equal(t, 14, startBack.Hour())
	assert.Equal(t, 0, startBack.Minute())

	endBack := window.End.On(window.NextOccurrence(now, loc)).In(loc)
	assert.Equal(t, 18, endBack.Hour())
	assert.Equal(t, 0, endBack.Minute())
}
