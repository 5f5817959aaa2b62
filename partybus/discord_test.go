package partybus

import (
	"context"
	"log/slog"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDiscordRequiresToken(t *testing.T) {
	t.Parallel()
	_, err := newDiscord(&DiscordConfig{})
	require.Error(t, err)
}

// Not parallel: newSession assigns the discordgo package-level logger.
func TestNewSessionWiresLogger(t *testing.T) {
	d, err := newDiscord(
		&DiscordConfig{
			Token:             "test-token",
			DiscordGoLogLevel: newLevelVar(slog.LevelDebug),
			GatewayIntents:    DefaultDiscordGatewayIntent,
		},
	)
	require.NoError(t, err)
	d.logger = testLogger(t)

	discordgo.Logger = nil
	require.NoError(t, d.newSession(context.Background(), slog.Default().Handler()))
	require.NotNil(t, d.session)
	assert.Equal(t, DefaultDiscordGatewayIntent, d.session.Identify.Intents)
	assert.Equal(t, discordgo.LogDebug, d.session.LogLevel)
	assert.NotNil(t, discordgo.Logger)
}
