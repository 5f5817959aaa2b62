package partybus

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// JobStatus tracks a posting through its lifecycle.
type JobStatus string

const (
	JobStatusOpen    JobStatus = "open"
	JobStatusFilled  JobStatus = "filled"
	JobStatusExpired JobStatus = "expired"
)

var columnJobStatus = "status"

// JobTimeWindow is a posting's concrete time range. Start and End are
// absolute UTC instants; the eligibility matcher never interprets them in
// the posting's declared display timezone, only in each candidate's own.
type JobTimeWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// JobPosting is a staffing opportunity at a venue: a position, a concrete
// time window, and the filters candidates are matched against.
//
//nolint:lll // struct tags can't be split
type JobPosting struct {
	ID string `json:"id" gorm:"primaryKey;unique;type:string"`

	VenueID string `json:"venue_id" gorm:"index;not null"`

	// CandidateID is set once the position is filled
	CandidateID *string `json:"candidate_id" gorm:"column:candidate_id"`

	// Position being hired for (bartender, dancer, DJ, ...)
	Position string `json:"position" gorm:"type:string"`

	Description string `json:"description" gorm:"type:string"`

	// StartAt/EndAt are the shift boundaries, unix ms UTC
	StartAt int64 `json:"start_at" gorm:"column:start_at"`
	EndAt   int64 `json:"end_at" gorm:"column:end_at"`

	// DisplayTimezoneLabel is the catalog label the poster entered the
	// times in. Kept only so the posting UI can re-open with the same zone
	// selected - matching always uses the absolute instants above.
	DisplayTimezoneLabel string `json:"display_timezone_label" gorm:"column:display_timezone_label"`

	// Tags/genres declared on the posting, matched any-overlap against
	// candidate preferences
	Tags StringList `json:"tags" gorm:"column:tags"`

	// NSFW marks the opportunity itself as adult content, independent of
	// the venue flag
	NSFW bool `json:"nsfw" gorm:"type:bool;default:false"`

	Status JobStatus `json:"status" gorm:"type:string;default:open"`

	ModelUnixTime
}

// NewJobPosting creates an open posting for the venue with a fresh ID.
func NewJobPosting(
	venueID string,
	position string,
	start time.Time,
	end time.Time,
) *JobPosting {
	return &JobPosting{
		ID:       uuid.NewString(),
		VenueID:  venueID,
		Position: position,
		StartAt:  start.UTC().UnixMilli(),
		EndAt:    end.UTC().UnixMilli(),
		Status:   JobStatusOpen,
	}
}

// TimeWindow returns the posting's shift boundaries as absolute instants.
func (j *JobPosting) TimeWindow() JobTimeWindow {
	return JobTimeWindow{
		Start: time.UnixMilli(j.StartAt).UTC(),
		End:   time.UnixMilli(j.EndAt).UTC(),
	}
}

// Expired reports whether the posting's end has passed.
func (j *JobPosting) Expired(now time.Time) bool {
	return now.UTC().UnixMilli() >= j.EndAt
}

func (j *JobPosting) String() string {
	return fmt.Sprintf("%s @ %s [%s]", j.Position, j.VenueID, j.ID)
}

func (j *JobPosting) LogValue() slog.Value {
	if j == nil {
		return slog.Value{}
	}
	attrs := []slog.Attr{
		slog.String("id", j.ID),
		slog.String("venue_id", j.VenueID),
		slog.String("position", j.Position),
		slog.String(columnJobStatus, string(j.Status)),
		slog.Time("start", time.UnixMilli(j.StartAt).UTC()),
		slog.Time("end", time.UnixMilli(j.EndAt).UTC()),
	}
	if j.CandidateID != nil {
		attrs = append(attrs, slog.String("candidate_id", *j.CandidateID))
	}
	return slog.GroupValue(attrs...)
}
