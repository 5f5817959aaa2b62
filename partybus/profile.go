package partybus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"
)

var (
	columnProfileUsername   = "username"
	columnProfileGlobalName = "global_name"
	columnProfileLastSeen   = "last_seen"
	columnProfilePosted     = "posted"
)

// Profile is a staff member's record: their Discord identity plus the
// staffing preferences the bot collects through its prompt sequences.
//
// A profile owns its availability windows - at most one per weekday -
// which are deleted with the profile. The timezone label is resolved
// against the catalog for every local/UTC conversion the profile is
// involved in. Changing the label later does not re-convert previously
// stored UTC windows; the bot clears the profile's availability instead
// (see [database.UpdateProfileTimezone]).
//
//nolint:lll // struct tags can't be split
type Profile struct {
	// ID is the Discord user ID
	ID string `json:"id" gorm:"primaryKey;unique;type:string"`

	// Username, not unique
	Username string `json:"username" gorm:"type:string"`

	// User's display name
	GlobalName string `json:"global_name" gorm:"type:string"`

	// Indicates this user is a Discord bot user. Bots never get profiles
	// posted and are excluded from fan-out.
	Bot bool `json:"bot" gorm:"type:bool"`

	// TimezoneLabel is the catalog label the user picked. All of this
	// profile's local times are interpreted in the resolved zone.
	TimezoneLabel string `json:"timezone_label" gorm:"column:timezone_label"`

	// HomeRegions the user declared as their playable data centers/regions
	HomeRegions StringList `json:"home_regions" gorm:"column:home_regions"`

	// Tags holds the user's preferred positions and genres
	Tags StringList `json:"tags" gorm:"column:tags"`

	// NSFWOptIn indicates the user accepts NSFW venue work
	NSFWOptIn bool `json:"nsfw_opt_in" gorm:"type:bool;default:false"`

	// Posted indicates the profile has been published and may be matched
	// against job postings
	Posted bool `json:"posted" gorm:"type:bool;default:false"`

	// MutedVenueIDs lists venues the user never wants to hear about
	MutedVenueIDs StringList `json:"muted_venue_ids" gorm:"column:muted_venue_ids"`

	// LastSeen is the last time this user was seen in a Discord interaction
	LastSeen int64 `json:"last_seen" gorm:"column:last_seen"`

	// RevisitAt, when set, is the next time the revisit loop should prompt
	// the user to confirm their profile is still current (unix ms)
	RevisitAt int64 `json:"revisit_at" gorm:"column:revisit_at"`

	Windows []AvailabilityWindow `json:"windows" gorm:"foreignKey:ProfileID;constraint:OnDelete:CASCADE"`

	ModelUnixTime
}

func NewProfile(u discordgo.User, timezoneLabel string) *Profile {
	return &Profile{
		ID:            u.ID,
		Username:      u.Username,
		GlobalName:    u.GlobalName,
		Bot:           u.Bot,
		TimezoneLabel: timezoneLabel,
		LastSeen:      time.Now().UTC().UnixMilli(),
	}
}

func (p *Profile) String() string {
	return fmt.Sprintf("%s [%s]", p.Username, p.ID)
}

// Location resolves the profile's timezone label against the catalog.
func (p *Profile) Location(catalog *TimezoneCatalog) (*time.Location, error) {
	return catalog.Resolve(p.TimezoneLabel)
}

// MutedVenue reports whether the profile has muted the given venue.
func (p *Profile) MutedVenue(venueID string) bool {
	return p.MutedVenueIDs.Contains(venueID)
}

// WindowsForWeekday returns the profile's availability windows matching the
// given weekday. With replace-not-merge semantics there is at most one, but
// the matcher iterates rather than assuming.
func (p *Profile) WindowsForWeekday(w Weekday) []AvailabilityWindow {
	var matched []AvailabilityWindow
	for i := range p.Windows {
		if p.Windows[i].Weekday == w {
			matched = append(matched, p.Windows[i])
		}
	}
	return matched
}

// profileChangedDiscordUsername compares [Profile.Username] and
// [Profile.GlobalName] with the given discordgo.User, to avoid 'drift' when
// the user updates their Discord profile.
func (p *Profile) profileChangedDiscordUsername(d discordgo.User) bool {
	return (d.Username != p.Username) || (d.GlobalName != p.GlobalName)
}

func (p *Profile) LogValue() slog.Value {
	if p == nil {
		return slog.Value{}
	}
	attrs := []slog.Attr{
		slog.String("id", p.ID),
		slog.String(columnProfileUsername, p.Username),
		slog.String(columnProfileGlobalName, p.GlobalName),
		slog.Bool(columnProfilePosted, p.Posted),
		slog.Bool("nsfw_opt_in", p.NSFWOptIn),
	}
	if p.TimezoneLabel != "" {
		attrs = append(attrs, slog.String("timezone_label", p.TimezoneLabel))
	}
	return slog.GroupValue(attrs...)
}
