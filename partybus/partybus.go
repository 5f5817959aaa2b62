package partybus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

var (
	// When building, set these like:
	// -ldflags "-X github.com/AllegroVivo/StaffPartyBotv2-sub000/partybus.Version=$$(date +'%Y%m%d')"

	Version   = "dev"
	CommitSHA = "unknown"
	BuildTime = "unknown"
)

// PartyBus is the root of the bot: it owns the database, the Discord
// session, the admin API, and the scheduling core (timezone catalog,
// matcher, notifier), and runs the periodic revisit loop.
type PartyBus struct {
	config     *Config
	logger     *slog.Logger
	logHandler slog.Handler

	db      *gorm.DB
	writeDB DBI

	discord    *Discord
	api        *API
	catalog    *TimezoneCatalog
	matcher    *Matcher
	notifier   *Notifier
	dbNotifier DBNotifier

	settings   atomic.Pointer[BotSettings]
	settingsMu sync.Mutex

	signalStop                     chan struct{}
	triggerProfileCacheRefreshCh   chan bool
	triggerProfileUpdatedRefreshCh chan string
	triggerScheduleRefreshCh       chan string

	eg *errgroup.Group
}

// New creates a PartyBus from the given config. The database and Discord
// connections aren't opened until [PartyBus.Run].
func New(config *Config) (*PartyBus, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if err := structValidator.Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	handler := tint.NewHandler(
		os.Stdout,
		&tint.Options{Level: config.LogLevel, AddSource: true},
	)
	logger := slog.New(handler).With(loggerNameKey, "partybus")

	labels := config.Timezones
	if len(labels) == 0 {
		labels = defaultTimezoneIANANames
	}
	catalog, err := NewTimezoneCatalog(labels)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone catalog: %w", err)
	}

	b := &PartyBus{
		config:                         config,
		logger:                         logger,
		logHandler:                     handler,
		catalog:                        catalog,
		signalStop:                     make(chan struct{}, 1),
		triggerProfileCacheRefreshCh:   make(chan bool, 1),
		triggerProfileUpdatedRefreshCh: make(chan string, 1),
		triggerScheduleRefreshCh:       make(chan string, 1),
	}
	b.matcher = NewMatcher(catalog, logger)

	discord, err := newDiscord(config.Discord)
	if err != nil {
		return nil, err
	}
	discord.logger = slog.New(handler).With(loggerNameKey, "discord")
	discord.bus = b
	b.discord = discord

	b.api, err = newAPI(b, config.API)
	if err != nil {
		return nil, err
	}

	return b, nil
}

// Settings returns the current BotSettings. Never nil after Run starts.
func (b *PartyBus) Settings() *BotSettings {
	return b.settings.Load()
}

func (b *PartyBus) setSettings(s *BotSettings) {
	b.settings.Store(s)
}

// Paused reports whether an admin paused the bot.
func (b *PartyBus) Paused() bool {
	s := b.Settings()
	return s != nil && s.Paused
}

// Run starts the bot and blocks until ctx is canceled or a stop signal
// arrives, then shuts down gracefully within [Config.ShutdownTimeout].
func (b *PartyBus) Run(ctx context.Context) error {
	startupCtx, startupCancel := context.WithTimeout(ctx, b.config.StartupTimeout)
	defer startupCancel()

	if err := b.init(startupCtx); err != nil {
		return err
	}

	runCtx, runCancel := context.WithCancel(ctx)
	defer runCancel()

	eg, egCtx := errgroup.WithContext(runCtx)
	b.eg = eg

	eg.Go(
		func() error {
			return b.api.Serve(egCtx)
		},
	)
	eg.Go(
		func() error {
			b.runRevisitLoop(egCtx)
			return nil
		},
	)
	eg.Go(
		func() error {
			b.watchRefreshSignals(egCtx)
			return nil
		},
	)
	if b.config.DatabaseType == dbTypePostgres {
		for _, channel := range []string{
			b.dbNotifier.ProfileCacheChannelName(),
			b.dbNotifier.ProfileUpdateChannelName(),
			b.dbNotifier.ScheduleUpdateChannelName(),
			b.dbNotifier.StopChannelName(),
		} {
			channel := channel
			eg.Go(
				func() error {
					return b.dbNotifier.Listen(egCtx, channel)
				},
			)
		}
	}

	if err := b.discord.connect(runCtx); err != nil {
		runCancel()
		return err
	}

	b.logger.Info("startup complete", "config", b.config)

	select {
	case <-ctx.Done():
		b.logger.Info("context canceled, shutting down")
	case <-b.signalStop:
		b.logger.Info("received stop signal, shutting down")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		b.config.ShutdownTimeout,
	)
	defer shutdownCancel()
	return b.shutdown(shutdownCtx, runCancel)
}

// init opens the database, loads settings and the profile cache, and
// prepares the Discord session.
func (b *PartyBus) init(ctx context.Context) error {
	db, err := CreateDB(
		ctx,
		b.config.DatabaseType,
		b.config.Database,
		b.config.DatabaseLogLevel,
		b.config.DatabaseSlowThreshold,
	)
	if err != nil {
		return fmt.Errorf("error creating database: %w", err)
	}
	b.db = db
	b.writeDB = NewDatabase(
		db,
		slog.New(b.logHandler),
		b.config.DatabaseType == dbTypePostgres,
	)

	settings, err := getBotSettings(ctx, db, b.logger)
	if err != nil {
		return fmt.Errorf("error loading bot settings: %w", err)
	}
	b.setSettings(settings)

	profiles := b.writeDB.LoadProfiles()
	b.logger.InfoContext(ctx, "loaded profiles", "count", len(profiles))

	b.dbNotifier, err = newDBNotifier(b)
	if err != nil {
		return err
	}

	if err = b.discord.newSession(ctx, b.logHandler); err != nil {
		return err
	}

	b.notifier = NewNotifier(
		b.discord.session,
		b.matcher,
		settings.FanoutPerSecond,
		b.logger,
	)
	return nil
}

func (b *PartyBus) shutdown(ctx context.Context, cancelRun context.CancelFunc) error {
	b.discord.close()
	cancelRun()

	done := make(chan error, 1)
	go func() {
		done <- b.eg.Wait()
	}()
	select {
	case err := <-done:
		if err != nil && !errors.Is(err, context.Canceled) {
			b.logger.Warn("shutdown finished with error", tint.Err(err))
		}
	case <-ctx.Done():
		b.logger.Warn("shutdown timeout exceeded, exiting")
	}

	if sqlDB, err := b.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	b.logger.Info("shutdown complete")
	return nil
}

// runRevisitLoop re-evaluates posting expirations and profile revisit
// timers once per RevisitInterval. The work is idempotent - expiring an
// already-expired posting is a no-op - so a missed or doubled tick is
// harmless.
func (b *PartyBus) runRevisitLoop(ctx context.Context) {
	interval := b.config.RevisitInterval
	if interval <= 0 {
		interval = DefaultRevisitInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log := b.logger.With(loggerNameKey, "revisit_loop")
	log.Info("revisit loop started", "interval", interval)

	for {
		select {
		case <-ctx.Done():
			log.Info("revisit loop stopped")
			return
		case <-ticker.C:
			if b.Paused() {
				continue
			}
			b.expireJobPostings(ctx)
			b.promptRevisits(ctx)
		}
	}
}

// expireJobPostings marks open postings whose end time has passed.
func (b *PartyBus) expireJobPostings(ctx context.Context) {
	rowsAffected, err := b.writeDB.UpdatesWhere(
		ctx,
		&JobPosting{},
		map[string]any{columnJobStatus: string(JobStatusExpired)},
		"status = ? AND end_at <= ?",
		string(JobStatusOpen),
		time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		b.logger.Error("error expiring job postings", tint.Err(err))
		return
	}
	if rowsAffected > 0 {
		b.logger.InfoContext(ctx, "expired job postings", "count", rowsAffected)
	}
}

// promptRevisits nudges profiles whose revisit timer has come due, and
// pushes the timer forward. Delivery is best-effort per profile.
func (b *PartyBus) promptRevisits(ctx context.Context) {
	settings := b.Settings()
	if settings == nil || settings.RevisitAfter.Duration <= 0 {
		return
	}
	now := time.Now().UTC()

	var due []Profile
	err := b.db.WithContext(ctx).Where(
		"revisit_at > 0 AND revisit_at <= ?", now.UnixMilli(),
	).Find(&due).Error
	if err != nil {
		b.logger.Error("error loading due revisits", tint.Err(err))
		return
	}

	for i := range due {
		profile := &due[i]
		next := now.Add(settings.RevisitAfter.Duration).UnixMilli()
		if _, err = b.writeDB.Update(ctx, profile, "revisit_at", next); err != nil {
			b.logger.Error(
				"error rescheduling revisit",
				"profile", profile,
				tint.Err(err),
			)
			continue
		}
		channel, dmErr := b.discord.session.UserChannelCreate(profile.ID)
		if dmErr == nil {
			_, dmErr = b.discord.session.ChannelMessageSend(
				channel.ID,
				"It's been a while! Is your staff profile still up to date? "+
					"Use /profile to confirm or update it.",
			)
		}
		if dmErr != nil {
			b.logger.Warn(
				"could not deliver revisit prompt",
				"profile", profile,
				tint.Err(dmErr),
			)
		}
	}
}

// watchRefreshSignals services the notifier channels: full profile cache
// reloads, single-profile reloads, and venue schedule updates. It also
// drives the TTL-based refreshes of the profile cache and cached settings.
func (b *PartyBus) watchRefreshSignals(ctx context.Context) {
	var cacheTicker *time.Ticker
	var cacheTick <-chan time.Time
	if b.config.ProfileCacheTTL > 0 {
		cacheTicker = time.NewTicker(b.config.ProfileCacheTTL)
		cacheTick = cacheTicker.C
		defer cacheTicker.Stop()
	}

	var settingsTicker *time.Ticker
	var settingsTick <-chan time.Time
	if b.config.SettingsTTL > 0 {
		settingsTicker = time.NewTicker(b.config.SettingsTTL)
		settingsTick = settingsTicker.C
		defer settingsTicker.Stop()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-cacheTick:
			profiles := b.writeDB.LoadProfiles()
			b.logger.Debug("refreshed profile cache", "count", len(profiles))
		case <-settingsTick:
			if err := b.refreshSettings(ctx); err != nil {
				b.logger.Error("error refreshing settings", tint.Err(err))
			}
		case <-b.triggerProfileCacheRefreshCh:
			profiles := b.writeDB.LoadProfiles()
			b.logger.Info("reloaded profile cache", "count", len(profiles))
		case profileID := <-b.triggerProfileUpdatedRefreshCh:
			b.writeDB.ReloadProfile(profileID)
			b.logger.Info("reloaded profile", "profile_id", profileID)
		case venueID := <-b.triggerScheduleRefreshCh:
			b.logger.Info("venue schedule updated", "venue_id", venueID)
		}
	}
}

// refreshSettings reloads BotSettings from the database, so updates made
// from another instance eventually take effect here.
func (b *PartyBus) refreshSettings(ctx context.Context) error {
	b.settingsMu.Lock()
	defer b.settingsMu.Unlock()
	settings, err := getBotSettings(ctx, b.db, b.logger)
	if err != nil {
		return err
	}
	b.setSettings(settings)
	b.logger.DebugContext(ctx, "refreshed settings", "settings", settings)
	return nil
}

// PostJob persists a new posting and fans out notifications: the
// announcement channel first (if configured), then DMs to each eligible
// candidate. Returns how many candidates were notified.
func (b *PartyBus) PostJob(
	ctx context.Context,
	job *JobPosting,
	venue *Venue,
) (int, error) {
	if _, err := b.writeDB.Create(ctx, job); err != nil {
		return 0, fmt.Errorf("error creating job posting: %w", err)
	}
	return b.NotifyJob(ctx, job, venue), nil
}

// NotifyJob runs the fan-out for an existing (new or rescheduled) posting.
// While paused, nothing is announced and no DMs are sent.
func (b *PartyBus) NotifyJob(
	ctx context.Context,
	job *JobPosting,
	venue *Venue,
) int {
	if b.Paused() {
		b.logger.InfoContext(
			ctx,
			"paused, skipping job fan-out",
			"job_id", job.ID,
		)
		return 0
	}
	settings := b.Settings()
	if settings != nil && settings.NotificationChannelID != "" {
		_, err := b.discord.session.ChannelMessageSendComplex(
			settings.NotificationChannelID,
			&discordgo.MessageSend{
				Embeds: []*discordgo.MessageEmbed{jobAnnouncementEmbed(job, venue)},
			},
		)
		if err != nil {
			b.logger.Warn("error announcing job posting", tint.Err(err))
		}
	}

	b.writeDB.ProfileCacheLock()
	candidates := make([]Profile, 0, len(b.writeDB.ProfileCache()))
	for _, p := range b.writeDB.ProfileCache() {
		candidates = append(candidates, *p)
	}
	b.writeDB.ProfileCacheUnlock()

	flags := NotificationFlags()
	// NSFW opt-in gating follows the runtime setting (default on)
	flags.CheckNSFW = settings == nil || settings.RequireNSFWOptIn

	return b.notifier.NotifyEligible(ctx, candidates, job, venue, flags)
}

// handleSetTimezone services the /timezone command.
func (b *PartyBus) handleSetTimezone(
	ctx context.Context,
	user discordgo.User,
	i *discordgo.InteractionCreate,
) string {
	options := discordInteractionOptions(i)
	label := options[timezoneOptionLabel].StringValue()
	if _, err := b.catalog.Resolve(label); err != nil {
		b.logger.Warn("rejected timezone label", "label", label, tint.Err(err))
		return fmt.Sprintf("Sorry, %q isn't a timezone I know.", label)
	}

	profile, created, err := b.writeDB.GetOrCreateProfile(ctx, user, label)
	if err != nil {
		return DefaultDiscordErrorMessage
	}
	if created || profile.TimezoneLabel == label {
		return fmt.Sprintf("Your timezone is set to **%s**.", label)
	}

	// changing zones invalidates stored windows: force re-entry rather
	// than silently shifting their displayed local times
	if err = b.writeDB.UpdateProfileTimezone(ctx, profile, label); err != nil {
		b.logger.Error("error updating timezone", "profile", profile, tint.Err(err))
		return DefaultDiscordErrorMessage
	}
	b.dbNotifier.ProfileUpdated(ctx, profile.ID)
	return fmt.Sprintf(
		"Your timezone is now **%s**. Your saved availability was cleared - "+
			"please re-enter it with /%s.",
		label, DiscordSlashCommandAvailability,
	)
}

// handleSetAvailability services the /availability command.
func (b *PartyBus) handleSetAvailability(
	ctx context.Context,
	user discordgo.User,
	i *discordgo.InteractionCreate,
) string {
	profile := b.writeDB.GetProfile(user.ID)
	if profile == nil || profile.TimezoneLabel == "" {
		return fmt.Sprintf(
			"Please set your timezone first, with /%s.",
			DiscordSlashCommandTimezone,
		)
	}
	loc, err := profile.Location(b.catalog)
	if err != nil {
		b.logger.Error("profile timezone no longer resolves", "profile", profile, tint.Err(err))
		return fmt.Sprintf(
			"Your saved timezone is no longer supported - please pick a new one with /%s.",
			DiscordSlashCommandTimezone,
		)
	}

	options := discordInteractionOptions(i)
	weekday, err := ParseWeekday(options[availabilityOptionWeekday].StringValue())
	if err != nil {
		return DefaultDiscordErrorMessage
	}
	start, err := ParseTimeOfDay(options[availabilityOptionStart].StringValue())
	if err != nil {
		return "Start time must look like `18:30`, in quarter hours."
	}
	end, err := ParseTimeOfDay(options[availabilityOptionEnd].StringValue())
	if err != nil {
		return "End time must look like `22:00`, in quarter hours."
	}

	window, err := NewAvailabilityWindow(
		profile.ID, weekday, start, end, loc, time.Now(),
	)
	if err != nil {
		if errors.Is(err, ErrInvalidTimeOfDay) {
			return "That time doesn't exist on the next " + weekday.String() +
				" in your timezone (daylight saving transition) - " +
				"please pick a different time."
		}
		return DefaultDiscordErrorMessage
	}

	if err = b.writeDB.SetAvailability(ctx, window); err != nil {
		b.logger.Error("error saving availability", "window", window, tint.Err(err))
		return DefaultDiscordErrorMessage
	}
	b.writeDB.ReloadProfile(profile.ID)
	b.dbNotifier.ProfileUpdated(ctx, profile.ID)

	return fmt.Sprintf(
		"Availability saved: **%s %s-%s** (%s).",
		weekday, start, end, profile.TimezoneLabel,
	)
}

// handlePostProfile services the /profile command, publishing the
// caller's profile for matching.
func (b *PartyBus) handlePostProfile(ctx context.Context, user discordgo.User) string {
	profile := b.writeDB.GetProfile(user.ID)
	if profile == nil || profile.TimezoneLabel == "" {
		return fmt.Sprintf(
			"Please set your timezone first, with /%s.",
			DiscordSlashCommandTimezone,
		)
	}

	settings := b.Settings()
	updates := map[string]any{columnProfilePosted: true}
	if settings != nil && settings.RevisitAfter.Duration > 0 {
		updates["revisit_at"] = time.Now().
			Add(settings.RevisitAfter.Duration).UTC().UnixMilli()
	}
	if _, err := b.writeDB.Updates(ctx, profile, updates); err != nil {
		b.logger.Error("error posting profile", "profile", profile, tint.Err(err))
		return DefaultDiscordErrorMessage
	}
	profile.Posted = true
	b.dbNotifier.ProfileUpdated(ctx, profile.ID)
	return "Your profile is posted! You'll be notified about matching venue jobs."
}

// Pause stops fan-out and the revisit loop until Resume.
func (b *PartyBus) Pause(ctx context.Context) error {
	return b.updatePaused(ctx, true)
}

// Resume reverses Pause.
func (b *PartyBus) Resume(ctx context.Context) error {
	return b.updatePaused(ctx, false)
}

func (b *PartyBus) updatePaused(ctx context.Context, paused bool) error {
	b.settingsMu.Lock()
	defer b.settingsMu.Unlock()
	settings := b.Settings()
	if settings == nil {
		return errors.New("settings not loaded")
	}
	updated := *settings
	updated.Paused = paused
	if _, err := b.writeDB.Updates(
		ctx, &updated, map[string]any{columnBotSettingsPaused: paused},
	); err != nil {
		return err
	}
	b.setSettings(&updated)
	b.logger.InfoContext(ctx, "updated paused state", "paused", paused)
	return nil
}

// UpdateAdminCredentials replaces the admin username and password hash.
func (b *PartyBus) UpdateAdminCredentials(
	ctx context.Context,
	username string,
	passwordHash string,
) error {
	b.settingsMu.Lock()
	defer b.settingsMu.Unlock()
	settings := b.Settings()
	if settings == nil {
		return errors.New("settings not loaded")
	}
	updated := *settings
	updated.AdminUsername = username
	updated.AdminPassword = passwordHash
	if _, err := b.writeDB.Updates(
		ctx, &updated, map[string]any{
			columnBotSettingsAdminUsername: username,
			columnBotSettingsAdminPassword: passwordHash,
		},
	); err != nil {
		return err
	}
	b.setSettings(&updated)
	b.logger.InfoContext(ctx, "updated admin credentials", "username", username)
	return nil
}
