package partybus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTimeOfDay(t *testing.T) {
	t.Parallel()

	tod, err := NewTimeOfDay(7, 45)
	require.NoError(t, err)
	assert.Equal(t, "07:45", tod.String())
	assert.Equal(t, 465, tod.MinuteOfDay())

	for _, tc := range []struct {
		hour   int
		minute int
	}{
		{hour: 24, minute: 0},
		{hour: -1, minute: 0},
		{hour: 12, minute: 10},
		{hour: 12, minute: 60},
	} {
		_, err = NewTimeOfDay(tc.hour, tc.minute)
		assert.ErrorIsf(
			t, err, ErrInvalidTimeOfDay, "%02d:%02d", tc.hour, tc.minute,
		)
	}
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	tod, err := ParseTimeOfDay("23:15")
	require.NoError(t, err)
	assert.Equal(t, TimeOfDay{Hour: 23, Minute: 15}, tod)

	_, err = ParseTimeOfDay("23:59")
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)

	_, err = ParseTimeOfDay("midnightish")
	assert.ErrorIs(t, err, ErrInvalidTimeOfDay)
}

func TestTimeOfDayOn(t *testing.T) {
	t.Parallel()

	date := utcDate(2024, time.June, 3, 22, 10)
	at := TimeOfDay{Hour: 9, Minute: 30}.On(date)
	assert.Equal(t, utcDate(2024, time.June, 3, 9, 30), at)
	assert.Equal(t, time.UTC, at.Location())
}
