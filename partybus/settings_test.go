package partybus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSettingsTestBus builds a PartyBus with just enough wiring to exercise
// the settings write path.
func newSettingsTestBus(t testing.TB) *PartyBus {
	t.Helper()
	gdb := setupTestDB(t)
	b := &PartyBus{
		db:      gdb,
		writeDB: NewDatabase(gdb, testLogger(t), false),
		logger:  testLogger(t),
	}
	settings, err := getBotSettings(context.Background(), gdb, b.logger)
	require.NoError(t, err)
	b.setSettings(settings)
	return b
}

func TestPauseResume(t *testing.T) {
	t.Parallel()
	b := newSettingsTestBus(t)
	ctx := context.Background()

	assert.False(t, b.Paused())
	require.NoError(t, b.Pause(ctx))
	assert.True(t, b.Paused())

	var stored BotSettings
	require.NoError(t, b.db.Last(&stored).Error)
	assert.True(t, stored.Paused)

	require.NoError(t, b.Resume(ctx))
	assert.False(t, b.Paused())
	require.NoError(t, b.db.Last(&stored).Error)
	assert.False(t, stored.Paused)
}

func TestNotifyJobSkippedWhilePaused(t *testing.T) {
	t.Parallel()
	b := newSettingsTestBus(t)
	b.matcher = NewMatcher(testCatalog(t), testLogger(t))
	sender := &recordingDMSender{}
	b.notifier = NewNotifier(sender, b.matcher, 100, testLogger(t))

	candidates, job, venue := testFanoutFixture(t, "a")
	require.NoError(t, b.db.Create(&candidates[0]).Error)
	require.NoError(t, b.db.Create(venue).Error)
	b.writeDB.LoadProfiles()

	ctx := context.Background()
	require.NoError(t, b.Pause(ctx))
	assert.Equal(t, 0, b.NotifyJob(ctx, job, venue))
	assert.Empty(t, sender.channels)

	require.NoError(t, b.Resume(ctx))
	assert.Equal(t, 1, b.NotifyJob(ctx, job, venue))
	assert.Equal(t, []string{"dm-a"}, sender.channels)
}

func TestUpdateAdminCredentials(t *testing.T) {
	t.Parallel()
	b := newSettingsTestBus(t)
	ctx := context.Background()

	hashed, err := HashPassword("correct horse battery staple")
	require.NoError(t, err)
	require.NoError(t, b.UpdateAdminCredentials(ctx, "partyadmin", hashed))

	assert.Equal(t, "partyadmin", b.Settings().AdminUsername)
	assert.Equal(t, hashed, b.Settings().AdminPassword)

	var stored BotSettings
	require.NoError(t, b.db.Last(&stored).Error)
	assert.Equal(t, "partyadmin", stored.AdminUsername)
	ok, err := VerifyPassword(stored.AdminPassword, "correct horse battery staple")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRefreshSettingsPicksUpExternalUpdates(t *testing.T) {
	t.Parallel()
	b := newSettingsTestBus(t)
	ctx := context.Background()

	// another instance updating the row directly
	err := b.db.Model(&BotSettings{}).
		Where("id = ?", b.Settings().ID).
		Update("paused", true).Error
	require.NoError(t, err)
	assert.False(t, b.Paused())

	require.NoError(t, b.refreshSettings(ctx))
	assert.True(t, b.Paused())
}

func TestGetBotSettingsCreatesDefaults(t *testing.T) {
	t.Parallel()
	gdb := setupTestDB(t)
	ctx := context.Background()

	settings, err := getBotSettings(ctx, gdb, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, DefaultDiscordCustomStatus, settings.DiscordCustomStatus)
	assert.Equal(t, DefaultFanoutPerSecond, settings.FanoutPerSecond)
	assert.True(t, settings.RequireNSFWOptIn)
	assert.NotZero(t, settings.ID)

	again, err := getBotSettings(ctx, gdb, testLogger(t))
	require.NoError(t, err)
	assert.Equal(t, settings.ID, again.ID)
}
