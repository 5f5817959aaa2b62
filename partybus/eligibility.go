package partybus

import (
	"log/slog"

	"github.com/lmittmann/tint"
)

// EligibilityFlags selects which checks the matcher runs. Each flag gates
// one predicate; every enabled predicate must pass. There is no weighting
// or partial-match scoring.
type EligibilityFlags struct {
	// CompareRegions requires the venue's region to appear in the
	// candidate's home regions (any-match, not strict subset)
	CompareRegions bool `json:"compare_regions"`

	// CompareSchedule requires one of the candidate's availability windows
	// to fully contain the opportunity's time range
	CompareSchedule bool `json:"compare_schedule"`

	// RequirePostedProfile excludes candidates whose profile isn't posted
	RequirePostedProfile bool `json:"require_posted_profile"`

	// CheckNSFW excludes candidates who haven't opted in, when the venue
	// or opportunity is flagged NSFW. SFW opportunities are never gated.
	CheckNSFW bool `json:"check_nsfw"`

	// CheckTags requires any overlap between the opportunity's tags and
	// the candidate's preferences
	CheckTags bool `json:"check_tags"`

	// CheckMutes excludes candidates who muted the venue, or whom the
	// venue muted
	CheckMutes bool `json:"check_mutes"`
}

// NotificationFlags are the checks used when building the fan-out
// recipient list for a newly posted or rescheduled opportunity.
func NotificationFlags() EligibilityFlags {
	return EligibilityFlags{
		CompareRegions:       true,
		CompareSchedule:      true,
		RequirePostedProfile: true,
		CheckTags:            true,
	}
}

// Matcher decides whether candidate profiles qualify for posted
// opportunities. It holds no mutable state; every method is a pure
// predicate over the entities passed in, so the revisit loop can re-run it
// every minute with consistent results.
type Matcher struct {
	catalog *TimezoneCatalog
	logger  *slog.Logger
}

func NewMatcher(catalog *TimezoneCatalog, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{
		catalog: catalog,
		logger:  logger.With(loggerNameKey, "matcher"),
	}
}

// IsEligible reports whether the candidate qualifies for the posting. All
// enabled checks must pass. Absence of a match is false, never an error -
// a candidate whose timezone label no longer resolves simply fails the
// schedule check (logged, since it indicates a stale profile).
func (m *Matcher) IsEligible(
	candidate *Profile,
	job *JobPosting,
	venue *Venue,
	flags EligibilityFlags,
) bool {
	if flags.CheckMutes {
		// either direction suffices to exclude
		if candidate.MutedVenue(venue.ID) || venue.MutedUser(candidate.ID) {
			return false
		}
	}

	if flags.RequirePostedProfile && !candidate.Posted {
		return false
	}

	if flags.CompareRegions && !candidate.HomeRegions.Contains(venue.Region) {
		return false
	}

	if flags.CheckNSFW && (venue.NSFW || job.NSFW) && !candidate.NSFWOptIn {
		return false
	}

	if flags.CheckTags && !job.Tags.Overlaps(candidate.Tags) {
		return false
	}

	if flags.CompareSchedule && !m.scheduleCovers(candidate, job) {
		return false
	}

	return true
}

// scheduleCovers checks the opportunity's time range against the
// candidate's availability. The opportunity's start instant is mapped into
// the candidate's own zone to pick the weekday, then one of that weekday's
// windows must contain the full range. No window on that weekday means
// ineligible, even with availability on adjacent days.
func (m *Matcher) scheduleCovers(candidate *Profile, job *JobPosting) bool {
	loc, err := candidate.Location(m.catalog)
	if err != nil {
		m.logger.Warn(
			"profile timezone no longer resolves",
			"profile", candidate,
			tint.Err(err),
		)
		return false
	}

	window := job.TimeWindow()
	weekday := WeekdayFromTime(window.Start.In(loc).Weekday())

	for _, w := range candidate.WindowsForWeekday(weekday) {
		if w.ContainsRange(window.Start, window.End) {
			return true
		}
	}
	return false
}

// EligibleProfiles filters candidates down to those passing IsEligible.
func (m *Matcher) EligibleProfiles(
	candidates []Profile,
	job *JobPosting,
	venue *Venue,
	flags EligibilityFlags,
) []*Profile {
	var eligible []*Profile
	for i := range candidates {
		if m.IsEligible(&candidates[i], job, venue, flags) {
			eligible = append(eligible, &candidates[i])
		}
	}
	return eligible
}
