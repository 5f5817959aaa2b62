package partybus

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"golang.org/x/time/rate"
)

// tagsPerAnnouncementField keeps each embed field comfortably under
// discord's 1024-character value limit.
const tagsPerAnnouncementField = 10

// DiscordDMSender is the slice of discordgo.Session the notifier needs,
// separated out so tests can substitute a recorder.
type DiscordDMSender interface {
	UserChannelCreate(
		recipientID string,
		options ...discordgo.RequestOption,
	) (*discordgo.Channel, error)
	ChannelMessageSendComplex(
		channelID string,
		data *discordgo.MessageSend,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
}

// Notifier delivers job-posting announcements to every eligible candidate.
// Deliveries are best-effort and independent: a recipient who blocks DMs
// (or any other per-recipient error) is logged and skipped, never aborting
// the rest of the fan-out. DM sends are rate-limited to stay under
// Discord's per-bot limits.
type Notifier struct {
	sender  DiscordDMSender
	matcher *Matcher
	limiter *rate.Limiter
	logger  *slog.Logger
}

func NewNotifier(
	sender DiscordDMSender,
	matcher *Matcher,
	perSecond int,
	logger *slog.Logger,
) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	if perSecond <= 0 {
		perSecond = DefaultFanoutPerSecond
	}
	return &Notifier{
		sender:  sender,
		matcher: matcher,
		limiter: rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:  logger.With(loggerNameKey, "notifier"),
	}
}

// NotifyEligible fans a posting announcement out to every candidate passing
// the given checks, and returns how many DMs were delivered. Callers
// typically start from [NotificationFlags].
func (n *Notifier) NotifyEligible(
	ctx context.Context,
	candidates []Profile,
	job *JobPosting,
	venue *Venue,
	flags EligibilityFlags,
) int {
	eligible := n.matcher.EligibleProfiles(candidates, job, venue, flags)
	log := n.logger.With("job", job, "venue", venue)
	log.InfoContext(
		ctx,
		"starting notification fan-out",
		"candidates", len(candidates),
		"eligible", len(eligible),
	)

	embed := jobAnnouncementEmbed(job, venue)
	var delivered int
	for _, candidate := range eligible {
		if err := n.limiter.Wait(ctx); err != nil {
			log.WarnContext(ctx, "fan-out canceled", tint.Err(err))
			break
		}
		if n.notifyOne(ctx, candidate, embed, log) {
			delivered++
		}
	}

	log.InfoContext(ctx, "fan-out complete", "delivered", delivered)
	return delivered
}

// notifyOne sends one DM, returning whether it was delivered. Failures are
// per-recipient and non-fatal.
func (n *Notifier) notifyOne(
	ctx context.Context,
	candidate *Profile,
	embed *discordgo.MessageEmbed,
	log *slog.Logger,
) bool {
	channel, err := n.sender.UserChannelCreate(candidate.ID)
	if err != nil {
		log.WarnContext(
			ctx,
			"could not open DM channel",
			"profile", candidate,
			tint.Err(err),
		)
		return false
	}
	_, err = n.sender.ChannelMessageSendComplex(
		channel.ID,
		&discordgo.MessageSend{Embeds: []*discordgo.MessageEmbed{embed}},
	)
	if err != nil {
		log.WarnContext(
			ctx,
			"could not deliver notification",
			"profile", candidate,
			tint.Err(err),
		)
		return false
	}
	return true
}

func jobAnnouncementEmbed(job *JobPosting, venue *Venue) *discordgo.MessageEmbed {
	window := job.TimeWindow()
	fields := []*discordgo.MessageEmbedField{
		{
			Name:   "Venue",
			Value:  venue.Name,
			Inline: true,
		},
		{
			Name:   "Position",
			Value:  job.Position,
			Inline: true,
		},
		{
			Name: "When",
			Value: fmt.Sprintf(
				"<t:%d:F> - <t:%d:t>",
				window.Start.Unix(),
				window.End.Unix(),
			),
		},
	}
	for i, row := range chunkItems(tagsPerAnnouncementField, job.Tags...) {
		name := "Looking for"
		if i > 0 {
			name = "Looking for (cont.)"
		}
		fields = append(
			fields, &discordgo.MessageEmbedField{
				Name:  name,
				Value: strings.Join(row, ", "),
			},
		)
	}
	if job.Description != "" {
		fields = append(
			fields, &discordgo.MessageEmbedField{
				Name:  "Details",
				Value: truncate(job.Description, 1024),
			},
		)
	}
	return &discordgo.MessageEmbed{
		Title:     "A venue near you is hiring!",
		Fields:    fields,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
