package partybus

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// ErrUnknownTimezone indicates a timezone label outside the enumerated
// catalog. Labels are never silently defaulted.
var ErrUnknownTimezone = errors.New("unknown timezone")

// defaultTimezoneIANANames maps the user-facing timezone labels offered in
// the bot's select menus to their IANA zone identifiers. Adding a supported
// zone means adding a row here - no other component changes.
var defaultTimezoneIANANames = map[string]string{
	"US/Pacific":       "America/Los_Angeles",
	"US/Mountain":      "America/Denver",
	"US/Central":       "America/Chicago",
	"US/Eastern":       "America/New_York",
	"UTC":              "UTC",
	"UK/Ireland":       "Europe/London",
	"Central Europe":   "Europe/Berlin",
	"Eastern Europe":   "Europe/Helsinki",
	"Japan":            "Asia/Tokyo",
	"Australia (East)": "Australia/Sydney",
	"New Zealand":      "Pacific/Auckland",
}

// TimezoneCatalog maps user-facing timezone labels to IANA zones. The
// catalog is immutable after construction and is passed by reference into
// the components that need it, rather than living in package-global state.
type TimezoneCatalog struct {
	zones  map[string]*time.Location
	labels []string
}

// NewTimezoneCatalog loads each IANA zone named in labelToIANA and returns
// a catalog over them. Loading fails if any zone name is unknown to the
// host's tz database.
func NewTimezoneCatalog(labelToIANA map[string]string) (*TimezoneCatalog, error) {
	c := &TimezoneCatalog{
		zones:  make(map[string]*time.Location, len(labelToIANA)),
		labels: make([]string, 0, len(labelToIANA)),
	}
	for label, name := range labelToIANA {
		loc, err := time.LoadLocation(name)
		if err != nil {
			return nil, fmt.Errorf(
				"loading zone %q for label %q: %w", name, label, err,
			)
		}
		c.zones[label] = loc
		c.labels = append(c.labels, label)
	}
	sort.Strings(c.labels)
	return c, nil
}

// DefaultTimezoneCatalog returns a catalog over the bot's built-in labels.
func DefaultTimezoneCatalog() (*TimezoneCatalog, error) {
	return NewTimezoneCatalog(defaultTimezoneIANANames)
}

// Resolve returns the IANA zone for a catalog label. Labels outside the
// catalog fail with ErrUnknownTimezone.
func (c *TimezoneCatalog) Resolve(label string) (*time.Location, error) {
	loc, ok := c.zones[label]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTimezone, label)
	}
	return loc, nil
}

// Labels returns the catalog's labels in sorted order, for building
// select-menu options.
func (c *TimezoneCatalog) Labels() []string {
	labels := make([]string, len(c.labels))
	copy(labels, c.labels)
	return labels
}
