package partybus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
)

const (
	availabilityOptionWeekday = "weekday"
	availabilityOptionStart   = "start"
	availabilityOptionEnd     = "end"
	timezoneOptionLabel       = "label"

	discordAckTimeout = 3 * time.Second
)

// Discord manages the bot's gateway session: connecting, registering slash
// commands, and dispatching interactions to their handlers.
type Discord struct {
	session                     *discordgo.Session
	config                      *DiscordConfig
	logger                      *slog.Logger
	metricConnects              atomic.Int64
	metricDisconnects           atomic.Int64
	connected                   atomic.Bool
	discordgoRemoveHandlerFuncs []func()
	bus                         *PartyBus
}

func newDiscord(config *DiscordConfig) (*Discord, error) {
	if config.Token == "" {
		return nil, errors.New("discord token required")
	}
	return &Discord{
		config:                      config,
		discordgoRemoveHandlerFuncs: []func(){},
	}, nil
}

// newSession initializes the discordgo session, wiring its logger into the
// bot's slog handler.
func (d *Discord) newSession(ctx context.Context, handler slog.Handler) error {
	session, err := discordgo.New(fmt.Sprintf("Bot %s", d.config.Token))
	if err != nil {
		return fmt.Errorf("error creating discord session: %w", err)
	}
	session.Identify.Intents = d.config.GatewayIntents
	discordgo.Logger = discordgoLoggerFunc(ctx, handler)
	if d.config.DiscordGoLogLevel != nil {
		session.LogLevel = discordgoLogLevel(d.config.DiscordGoLogLevel.Level())
	}
	d.session = session
	return nil
}

func discordgoLogLevel(level slog.Level) int {
	switch level {
	case slog.LevelDebug:
		return discordgo.LogDebug
	case slog.LevelWarn:
		return discordgo.LogWarning
	case slog.LevelError:
		return discordgo.LogError
	default:
		return discordgo.LogInformational
	}
}

// connect opens the gateway connection and registers the bot's handlers
// and slash commands.
func (d *Discord) connect(ctx context.Context) error {
	d.discordgoRemoveHandlerFuncs = append(
		d.discordgoRemoveHandlerFuncs,
		d.session.AddHandler(d.onReady),
		d.session.AddHandler(d.onConnect),
		d.session.AddHandler(d.onDisconnect),
		d.session.AddHandler(d.handleInteraction),
	)
	if err := d.session.Open(); err != nil {
		return fmt.Errorf("error opening discord session: %w", err)
	}
	if err := d.registerCommands(ctx); err != nil {
		return err
	}
	return nil
}

func (d *Discord) close() {
	for _, remove := range d.discordgoRemoveHandlerFuncs {
		remove()
	}
	d.discordgoRemoveHandlerFuncs = nil
	if d.session != nil {
		if err := d.session.Close(); err != nil {
			d.logger.Warn("error closing discord session", tint.Err(err))
		}
	}
}

func (d *Discord) onReady(s *discordgo.Session, _ *discordgo.Ready) {
	d.logger.Info("discord session ready")
	settings := d.bus.Settings()
	if settings != nil && settings.DiscordCustomStatus != "" {
		if err := s.UpdateCustomStatus(settings.DiscordCustomStatus); err != nil {
			d.logger.Warn("error setting custom status", tint.Err(err))
		}
	}
	if settings != nil && settings.NotificationChannelID != "" && d.config.StartupMessage != "" {
		_, err := s.ChannelMessageSend(
			settings.NotificationChannelID,
			d.config.StartupMessage,
		)
		if err != nil {
			d.logger.Warn("error sending startup message", tint.Err(err))
		}
	}
}

func (d *Discord) onConnect(_ *discordgo.Session, _ *discordgo.Connect) {
	d.metricConnects.Add(1)
	d.connected.Store(true)
	d.logger.Info("connected to discord gateway")
}

func (d *Discord) onDisconnect(_ *discordgo.Session, _ *discordgo.Disconnect) {
	d.metricDisconnects.Add(1)
	d.connected.Store(false)
	d.logger.Warn("disconnected from discord gateway")
}

// applicationCommands builds the bot's slash command definitions. Weekday
// and timezone options enumerate their closed catalogs as choices, so
// invalid values can't be submitted at all.
func (d *Discord) applicationCommands() []*discordgo.ApplicationCommand {
	weekdayChoices := make([]*discordgo.ApplicationCommandOptionChoice, 7)
	for i := Monday; i <= Sunday; i++ {
		weekdayChoices[i] = &discordgo.ApplicationCommandOptionChoice{
			Name:  i.String(),
			Value: i.String(),
		}
	}

	labels := d.bus.catalog.Labels()
	tzChoices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(labels))
	for _, label := range labels {
		tzChoices = append(
			tzChoices, &discordgo.ApplicationCommandOptionChoice{
				Name:  label,
				Value: label,
			},
		)
	}

	return []*discordgo.ApplicationCommand{
		{
			Name:        DiscordSlashCommandTimezone,
			Description: "Set the timezone your availability is entered in",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        timezoneOptionLabel,
					Description: "Your timezone",
					Required:    true,
					Choices:     tzChoices,
				},
			},
		},
		{
			Name:        DiscordSlashCommandAvailability,
			Description: "Set your availability for one day of the week",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        availabilityOptionWeekday,
					Description: "Day of the week",
					Required:    true,
					Choices:     weekdayChoices,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        availabilityOptionStart,
					Description: "Start time (HH:MM, quarter hours)",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        availabilityOptionEnd,
					Description: "End time (HH:MM, quarter hours)",
					Required:    true,
				},
			},
		},
		{
			Name:        DiscordSlashCommandProfile,
			Description: "Post your staff profile so venues can find you",
		},
	}
}

func (d *Discord) registerCommands(ctx context.Context) error {
	commands := d.applicationCommands()
	registered, err := d.session.ApplicationCommandBulkOverwrite(
		d.config.ApplicationID,
		d.config.GuildID,
		commands,
	)
	if err != nil {
		return fmt.Errorf("error registering application commands: %w", err)
	}
	d.logger.InfoContext(
		ctx,
		"registered application commands",
		"count", len(registered),
	)
	return nil
}

// handleInteraction dispatches slash commands. Responses are always
// ephemeral - the bot's prompts are between it and the user.
func (d *Discord) handleInteraction(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	// non-deferred responses have to land within discord's ack window
	ctx, cancel := context.WithTimeout(context.Background(), discordAckTimeout)
	defer cancel()
	ctx = WithLogger(ctx, d.logger)

	user := interactionUser(i)
	if user == nil || user.Bot {
		return
	}

	var reply string
	switch i.ApplicationCommandData().Name {
	case DiscordSlashCommandTimezone:
		reply = d.bus.handleSetTimezone(ctx, *user, i)
	case DiscordSlashCommandAvailability:
		reply = d.bus.handleSetAvailability(ctx, *user, i)
	case DiscordSlashCommandProfile:
		reply = d.bus.handlePostProfile(ctx, *user)
	default:
		d.logger.Warn(
			"unknown command",
			"command", i.ApplicationCommandData().Name,
		)
		return
	}

	err := s.InteractionRespond(
		i.Interaction,
		&discordgo.InteractionResponse{
			Type: discordgo.InteractionResponseChannelMessageWithSource,
			Data: &discordgo.InteractionResponseData{
				Content: reply,
				Flags:   discordgo.MessageFlagsEphemeral,
			},
		},
	)
	if err != nil {
		d.logger.Error("error responding to interaction", tint.Err(err))
	}
}

func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i.User != nil {
		return i.User
	}
	if i.Member != nil {
		return i.Member.User
	}
	return nil
}
