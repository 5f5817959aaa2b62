package partybus

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStringList(t *testing.T) {
	t.Parallel()

	list := StringList{"Aether", "Crystal"}
	assert.True(t, list.Contains("Crystal"))
	assert.False(t, list.Contains("Primal"))
	assert.False(t, list.Contains(""))

	assert.True(t, list.Overlaps(StringList{"Primal", "Aether"}))
	assert.False(t, list.Overlaps(StringList{"Primal"}))
	assert.False(t, list.Overlaps(nil))
	assert.False(t, StringList(nil).Overlaps(list))

	value, err := list.Value()
	require.NoError(t, err)

	var scanned StringList
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, list, scanned)

	var empty StringList
	require.NoError(t, empty.Scan(""))
	assert.Empty(t, empty)
}

func TestDuration(t *testing.T) {
	t.Parallel()

	d := Duration{90 * time.Second}
	value, err := d.Value()
	require.NoError(t, err)

	var scanned Duration
	require.NoError(t, scanned.Scan(value))
	assert.Equal(t, 90*time.Second, scanned.Duration)

	assert.Error(t, scanned.Scan("not a duration"))
}

func TestGetOrCreateProfile(t *testing.T) {
	t.Parallel()
	writeDB := newTestDatabase(t)
	ctx := context.Background()

	user := discordgo.User{
		ID:         "user-1",
		Username:   "someone",
		GlobalName: "Someone",
	}

	profile, created, err := writeDB.GetOrCreateProfile(ctx, user, "US/Eastern")
	require.NoError(t, err)
	require.NotNil(t, profile)
	assert.True(t, created)
	assert.Equal(t, "US/Eastern", profile.TimezoneLabel)

	// second call hits the cache and keeps the stored profile
	again, created, err := writeDB.GetOrCreateProfile(ctx, user, "UTC")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, profile.ID, again.ID)
	assert.Equal(t, "US/Eastern", again.TimezoneLabel)
}

func TestGetOrCreateProfileUsernameDrift(t *testing.T) {
	t.Parallel()
	writeDB := newTestDatabase(t)
	ctx := context.Background()

	user := discordgo.User{ID: "user-1", Username: "oldname", GlobalName: "Old"}
	_, _, err := writeDB.GetOrCreateProfile(ctx, user, "UTC")
	require.NoError(t, err)

	user.Username = "newname"
	user.GlobalName = "New"
	profile, created, err := writeDB.GetOrCreateProfile(ctx, user, "UTC")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "newname", profile.Username)
	assert.Equal(t, "New", profile.GlobalName)

	stored := writeDB.ReloadProfile(user.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "newname", stored.Username)
}

func TestUpdateProfileTimezoneClearsAvailability(t *testing.T) {
	t.Parallel()
	writeDB := newTestDatabase(t)
	ctx := context.Background()

	user := discordgo.User{ID: "user-1", Username: "someone"}
	profile, _, err := writeDB.GetOrCreateProfile(ctx, user, "US/Eastern")
	require.NoError(t, err)

	window := &AvailabilityWindow{
		ProfileID: profile.ID,
		Weekday:   Monday,
		Start:     TimeOfDay{Hour: 23, Minute: 0},
		End:       TimeOfDay{Hour: 3, Minute: 0},
	}
	require.NoError(t, writeDB.SetAvailability(ctx, window))

	require.NoError(t, writeDB.UpdateProfileTimezone(ctx, profile, "Japan"))
	assert.Equal(t, "Japan", profile.TimezoneLabel)
	assert.Empty(t, profile.Windows)

	// the stored windows were deleted, not re-converted
	var count int64
	require.NoError(
		t,
		writeDB.DB().Model(&AvailabilityWindow{}).Where(
			"profile_id = ?", profile.ID,
		).Count(&count).Error,
	)
	assert.Equal(t, int64(0), count)

	stored := writeDB.ReloadProfile(profile.ID)
	require.NotNil(t, stored)
	assert.Equal(t, "Japan", stored.TimezoneLabel)
}

func TestLoadProfilesPreloadsWindows(t *testing.T) {
	t.Parallel()
	writeDB := newTestDatabase(t)
	ctx := context.Background()

	user := discordgo.User{ID: "user-1", Username: "someone"}
	profile, _, err := writeDB.GetOrCreateProfile(ctx, user, "UTC")
	require.NoError(t, err)

	window := &AvailabilityWindow{
		ProfileID: profile.ID,
		Weekday:   Wednesday,
		Start:     TimeOfDay{Hour: 9, Minute: 0},
		End:       TimeOfDay{Hour: 17, Minute: 0},
	}
	require.NoError(t, writeDB.SetAvailability(ctx, window))

	profiles := writeDB.LoadProfiles()
	require.Len(t, profiles, 1)
	require.Len(t, profiles[0].Windows, 1)
	assert.Equal(t, Wednesday, profiles[0].Windows[0].Weekday)

	cached := writeDB.GetProfile(profile.ID)
	require.NotNil(t, cached)
	assert.Len(t, cached.Windows, 1)
}

func TestReplaceVenueSchedule(t *testing.T) {
	t.Parallel()
	writeDB := newTestDatabase(t)
	ctx := context.Background()

	day := Friday
	open := mustTimeOfDay(t, 20, 0)
	venue := &Venue{
		ID:     "venue-1",
		Name:   "The Lazy Moon",
		Region: "Crystal",
		Rules: []RecurrenceRule{
			{
				Weekday:     &day,
				Open:        &open,
				Interval:    IntervalEveryXWeeks,
				IntervalArg: 0,
			},
		},
	}
	_, err := writeDB.Create(ctx, venue)
	require.NoError(t, err)

	newDay := Saturday
	newOpen := mustTimeOfDay(t, 21, 0)
	replacement := []RecurrenceRule{
		{
			Weekday:     &newDay,
			Open:        &newOpen,
			Interval:    IntervalEveryXthDayOfMonth,
			IntervalArg: 2,
		},
		{
			Weekday:     &newDay,
			Open:        &newOpen,
			Interval:    IntervalEveryXthDayOfMonth,
			IntervalArg: -1,
		},
	}
	require.NoError(t, writeDB.ReplaceVenueSchedule(ctx, venue.ID, replacement))

	var rules []RecurrenceRule
	require.NoError(
		t,
		writeDB.DB().Where("venue_id = ?", venue.ID).Find(&rules).Error,
	)
	require.Len(t, rules, 2)
	for _, rule := range rules {
		assert.Equal(t, IntervalEveryXthDayOfMonth, rule.Interval)
		require.NotNil(t, rule.Weekday)
		assert.Equal(t, Saturday, *rule.Weekday)
	}

	// replacing with nothing leaves the venue unscheduled
	require.NoError(t, writeDB.ReplaceVenueSchedule(ctx, venue.ID, nil))
	var count int64
	require.NoError(
		t,
		writeDB.DB().Model(&RecurrenceRule{}).Where(
			"venue_id = ?", venue.ID,
		).Count(&count).Error,
	)
	assert.Equal(t, int64(0), count)
}

func TestUpdatesWhere(t *testing.T) {
	t.Parallel()
	writeDB := newTestDatabase(t)
	ctx := context.Background()

	venue := &Venue{ID: "venue-1", Name: "The Lazy Moon", Region: "Crystal"}
	_, err := writeDB.Create(ctx, venue)
	require.NoError(t, err)

	open := NewJobPosting(
		venue.ID,
		"Bartender",
		utcDate(2024, time.January, 15, 10, 0),
		utcDate(2024, time.January, 15, 11, 0),
	)
	stale := NewJobPosting(
		venue.ID,
		"Greeter",
		utcDate(2024, time.January, 1, 10, 0),
		utcDate(2024, time.January, 1, 11, 0),
	)
	_, err = writeDB.Create(ctx, open)
	require.NoError(t, err)
	_, err = writeDB.Create(ctx, stale)
	require.NoError(t, err)

	now := utcDate(2024, time.January, 10, 0, 0)
	affected, err := writeDB.UpdatesWhere(
		ctx,
		&JobPosting{},
		map[string]any{columnJobStatus: JobStatusExpired},
		"status = ? AND end_at <= ?",
		JobStatusOpen,
		now.UnixMilli(),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), affected)

	var expired JobPosting
	require.NoError(
		t, writeDB.DB().Where("id = ?", stale.ID).First(&expired).Error,
	)
	assert.Equal(t, JobStatusExpired, expired.Status)
	assert.True(t, expired.Expired(now))

	var stillOpen JobPosting
	require.NoError(
		t, writeDB.DB().Where("id = ?", open.ID).First(&stillOpen).Error,
	)
	assert.Equal(t, JobStatusOpen, stillOpen.Status)
}

func TestCreateDBConfiguredLogging(t *testing.T) {
	t.Parallel()

	db, err := CreateDB(
		context.Background(),
		"sqlite",
		t.TempDir()+"/test.sqlite3",
		slog.LevelDebug,
		42*time.Millisecond,
	)
	require.NoError(t, err)
	t.Cleanup(
		func() {
			sqlDB, _ := db.DB()
			if sqlDB != nil {
				_ = sqlDB.Close()
			}
		},
	)

	gl, ok := db.Config.Logger.(*gormStructuredLogger)
	require.True(t, ok)
	assert.Equal(t, 42*time.Millisecond, gl.SlowThreshold)
}
