package partybus

import (
	"context"
	"errors"
	"log/slog"

	"github.com/lmittmann/tint"
	"gorm.io/gorm"
)

var (
	columnBotSettingsAdminUsername = "admin_username"
	columnBotSettingsAdminPassword = "admin_password"
	columnBotSettingsPaused        = "paused"
)

// BotSettings is the bot's live, DB-backed state: settings an admin can
// change at runtime that must survive restarts. Loaded at startup and
// refreshed when a notifier announces an update from another instance.
//
//nolint:lll // struct tags can't be split
type BotSettings struct {
	ModelUintID
	ModelUnixTime

	// Paused indicates whether the bot is currently paused. While paused,
	// job postings don't fan out and the revisit loop idles.
	Paused bool `json:"paused" gorm:"not null;default:false"`

	// DiscordCustomStatus is the custom status message displayed for the bot on Discord.
	DiscordCustomStatus string `json:"discord_custom_status" gorm:"type:string"`

	// NotificationChannelID is the channel new job postings are announced in,
	// in addition to the per-candidate DMs
	NotificationChannelID string `json:"notification_channel_id" gorm:"type:string"`

	// FanoutPerSecond caps how many notification DMs are sent per second
	FanoutPerSecond int `json:"fanout_per_second" gorm:"column:fanout_per_second;default:2" binding:"min=1"`

	// RevisitAfter is how long after their last update profiles are asked
	// to confirm they're still current
	RevisitAfter Duration `json:"revisit_after" gorm:"column:revisit_after"`

	// RequireNSFWOptIn gates NSFW opportunities on candidate opt-in during
	// fan-out. Disabling it is only intended for test guilds.
	RequireNSFWOptIn bool `json:"require_nsfw_opt_in" gorm:"not null;default:true"`

	// AdminUsername for the admin API
	AdminUsername string `json:"admin_username" gorm:"type:string" log:"[redacted]"`

	// AdminPassword stores the hashed password for the admin user
	AdminPassword string `json:"admin_password" gorm:"type:string" log:"[redacted]"`
}

func DefaultBotSettings() BotSettings {
	return BotSettings{
		DiscordCustomStatus: DefaultDiscordCustomStatus,
		FanoutPerSecond:     DefaultFanoutPerSecond,
		RevisitAfter:        Duration{DefaultRevisitAfter},
		RequireNSFWOptIn:    true,
	}
}

func (s BotSettings) LogValue() slog.Value {
	return structToSlogValue(s)
}

// getBotSettings loads the latest settings row, creating a default one if
// none exists yet.
func getBotSettings(ctx context.Context, db *gorm.DB, logger *slog.Logger) (
	*BotSettings,
	error,
) {
	var settings BotSettings
	err := db.WithContext(ctx).Last(&settings).Error
	if err == nil {
		return &settings, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	settings = DefaultBotSettings()
	logger.InfoContext(ctx, "creating default bot settings", "settings", settings)
	if err = db.WithContext(ctx).Create(&settings).Error; err != nil {
		logger.ErrorContext(ctx, "error creating bot settings", tint.Err(err))
		return nil, err
	}
	return &settings, nil
}
