package partybus

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
)

// Venue is a roleplay venue that hires staff through the bot. A venue owns
// its recurring operating-hours rules; the rules are swapped wholesale when
// the venue's upstream listing is re-imported (see
// [database.ReplaceVenueSchedule]) and deleted with the venue.
//
//nolint:lll // struct tags can't be split
type Venue struct {
	// ID is the venue's upstream listing ID
	ID string `json:"id" gorm:"primaryKey;unique;type:string"`

	Name string `json:"name" gorm:"type:string"`

	// Region is the data center/region the venue operates in
	Region string `json:"region" gorm:"type:string"`

	// NSFW indicates the venue hosts adult content. Opportunities at NSFW
	// venues only reach candidates who opted in.
	NSFW bool `json:"nsfw" gorm:"type:bool;default:false"`

	// MutedUserIDs lists users the venue's managers never want matched
	MutedUserIDs StringList `json:"muted_user_ids" gorm:"column:muted_user_ids"`

	// ManagerIDs are the Discord users allowed to post jobs for this venue
	ManagerIDs StringList `json:"manager_ids" gorm:"column:manager_ids"`

	Rules []RecurrenceRule `json:"rules" gorm:"foreignKey:VenueID;constraint:OnDelete:CASCADE"`

	ModelUnixTime
}

func (v *Venue) String() string {
	return fmt.Sprintf("%s [%s]", v.Name, v.ID)
}

// MutedUser reports whether the venue's managers muted the given user.
func (v *Venue) MutedUser(userID string) bool {
	return v.MutedUserIDs.Contains(userID)
}

// NextOpening resolves the earliest upcoming opening across all of the
// venue's rules, with its derived closing instant (nil when the rule has no
// close time). Returns (nil, nil) when no rule resolves - a venue whose
// schedule hasn't been imported yet.
func (v *Venue) NextOpening(ref time.Time) (openAt, closeAt *time.Time) {
	for i := range v.Rules {
		rule := &v.Rules[i]
		at := rule.Resolve(ref)
		if at == nil {
			continue
		}
		if openAt == nil || at.Before(*openAt) {
			openAt = at
			closeAt = rule.ResolveClose(*at)
		}
	}
	return openAt, closeAt
}

func (v *Venue) LogValue() slog.Value {
	if v == nil {
		return slog.Value{}
	}
	return slog.GroupValue(
		slog.String("id", v.ID),
		slog.String("name", v.Name),
		slog.String("region", v.Region),
		slog.Bool("nsfw", v.NSFW),
		slog.Int("rules", len(v.Rules)),
	)
}

// ReplaceVenueSchedule swaps out a venue's entire schedule for the given
// rules, in one transaction. Re-imports always go through here; individual
// rules are never updated in place.
func (d *database) ReplaceVenueSchedule(
	ctx context.Context,
	venueID string,
	rules []RecurrenceRule,
) error {
	if !d.enableConcurrentWrites {
		d.mu.Lock()
		defer d.mu.Unlock()
	}
	_, ok := ctx.Deadline()
	if !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, dbOperationTimeout)
		defer cancel()
	}
	return d.db.WithContext(ctx).Transaction(
		func(tx *gorm.DB) error {
			err := tx.Where(
				"venue_id = ?", venueID,
			).Delete(&RecurrenceRule{}).Error
			if err != nil {
				return err
			}
			if len(rules) == 0 {
				return nil
			}
			for i := range rules {
				rules[i].VenueID = venueID
				rules[i].ID = 0
			}
			return tx.Create(&rules).Error
		},
	)
}
