package partybus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimezoneCatalogResolve(t *testing.T) {
	t.Parallel()
	catalog := testCatalog(t)

	loc, err := catalog.Resolve("US/Eastern")
	require.NoError(t, err)

	expected, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	assert.Equal(t, expected.String(), loc.String())

	// labels outside the catalog are an error, never a silent default
	for _, label := range []string{"", "Mars/Olympus", "America/New_York"} {
		_, err = catalog.Resolve(label)
		assert.ErrorIsf(t, err, ErrUnknownTimezone, "label %q", label)
	}
}

func TestTimezoneCatalogLabels(t *testing.T) {
	t.Parallel()
	catalog := testCatalog(t)

	labels := catalog.Labels()
	assert.Len(t, labels, len(defaultTimezoneIANANames))
	assert.IsIncreasing(t, labels)

	// callers get a copy, not the catalog's backing slice
	labels[0] = "mutated"
	assert.NotEqual(t, labels[0], catalog.Labels()[0])
}

func TestNewTimezoneCatalogUnknownZone(t *testing.T) {
	t.Parallel()

	_, err := NewTimezoneCatalog(map[string]string{"Nowhere": "Not/AZone"})
	assert.Error(t, err)
}
