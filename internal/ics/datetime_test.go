package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDateTimeUTC(t *testing.T) {
	got, err := ParseDateTime("20220401T180000Z", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 4, 1, 18, 0, 0, 0, time.UTC), got)
}

func TestParseDateTimeWithTimezone(t *testing.T) {
	t.Run("Helsinki summer time", func(t *testing.T) {
		got, err := ParseDateTime("20220401T180000", "Europe/Helsinki")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2022, 4, 1, 15, 0, 0, 0, time.UTC), got)
	})

	t.Run("New York summer time", func(t *testing.T) {
		got, err := ParseDateTime("20220701T180000", "America/New_York")
		require.NoError(t, err)
		assert.Equal(t, time.Date(2022, 7, 1, 22, 0, 0, 0, time.UTC), got)
	})
}

func TestParseDateTimeAllDay(t *testing.T) {
	got, err := ParseDateTime("20220401", "")
	require.NoError(t, err)

	want := time.Date(2022, 4, 1, 0, 0, 0, 0, time.Local).UTC()
	assert.Equal(t, want, got)
}

func TestParseDateTimeUnknownTimezoneFallsBack(t *testing.T) {
	got, err := ParseDateTime("20220401T180000", "Not/AZone")
	require.NoError(t, err)

	want := time.Date(2022, 4, 1, 18, 0, 0, 0, time.Local).UTC()
	assert.Equal(t, want, got)
}

func TestParseDateTimeTruncatedToken(t *testing.T) {
	got, err := ParseDateTime("20220401T1830Z", "")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2022, 4, 1, 18, 30, 0, 0, time.UTC), got)
}

func TestParseDateTimeErrors(t *testing.T) {
	_, err := ParseDateTime("", "")
	assert.Error(t, err)

	_, err = ParseDateTime("202204", "")
	assert.Error(t, err)

	_, err = ParseDateTime("not-a-date-at-all", "")
	assert.Error(t, err)
}

func TestParseExDates(t *testing.T) {
	prop := Property{
		Value:  "20220401T180000,garbage,20220408T180000",
		Params: map[string]string{"TZID": "Europe/Helsinki"},
	}

	got := ParseExDates(prop)
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2022, 4, 1, 15, 0, 0, 0, time.UTC), got[0])
	assert.Equal(t, time.Date(2022, 4, 8, 15, 0, 0, 0, time.UTC), got[1])
}

func TestIsDateOnly(t *testing.T) {
	assert.True(t, IsDateOnly("20220401"))
	assert.False(t, IsDateOnly("20220401T180000"))
	assert.False(t, IsDateOnly("2022"))
}
