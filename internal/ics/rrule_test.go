package ics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/teambition/rrule-go"
)

func TestParseRecurrenceRule(t *testing.T) {
	t.Run("weekly with byday", func(t *testing.T) {
		rule, err := ParseRecurrenceRule("FREQ=WEEKLY;INTERVAL=2;BYDAY=MO,WE")
		require.NoError(t, err)
		assert.Equal(t, "WEEKLY", rule.Freq)
		assert.Equal(t, 2, rule.Interval)
		assert.Equal(t, []rrule.Weekday{rrule.MO, rrule.WE}, rule.ByDay)
	})

	t.Run("monthly with ordinal byday", func(t *testing.T) {
		rule, err := ParseRecurrenceRule("FREQ=MONTHLY;BYDAY=2TU")
		require.NoError(t, err)
		assert.Equal(t, []rrule.Weekday{rrule.TU.Nth(2)}, rule.ByDay)
	})

	t.Run("count and until", func(t *testing.T) {
		rule, err := ParseRecurrenceRule("FREQ=DAILY;COUNT=10;UNTIL=20251231T000000Z")
		require.NoError(t, err)
		assert.Equal(t, 10, rule.Count)
		assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), rule.Until)
	})

	t.Run("bysetpos and bymonth", func(t *testing.T) {
		rule, err := ParseRecurrenceRule("FREQ=MONTHLY;BYDAY=MO;BYSETPOS=-1;BYMONTH=1,7")
		require.NoError(t, err)
		assert.Equal(t, []int{-1}, rule.BySetPos)
		assert.Equal(t, []int{1, 7}, rule.ByMonth)
	})

	t.Run("missing freq", func(t *testing.T) {
		_, err := ParseRecurrenceRule("INTERVAL=2;COUNT=3")
		assert.Error(t, err)
	})

	t.Run("unsupported freq", func(t *testing.T) {
		_, err := ParseRecurrenceRule("FREQ=SECONDLY")
		assert.Error(t, err)
	})

	t.Run("invalid byday token", func(t *testing.T) {
		_, err := ParseRecurrenceRule("FREQ=WEEKLY;BYDAY=XX")
		assert.Error(t, err)
	})

	t.Run("unknown parts are skipped", func(t *testing.T) {
		rule, err := ParseRecurrenceRule("FREQ=WEEKLY;WKST=MO;X-CUSTOM=1")
		require.NoError(t, err)
		assert.Equal(t, "WEEKLY", rule.Freq)
	})
}

func TestRecurrenceRuleDefaults(t *testing.T) {
	rule, err := ParseRecurrenceRule("FREQ=DAILY")
	require.NoError(t, err)
	assert.Equal(t, 1, rule.Interval)
	assert.Zero(t, rule.Count)
	assert.True(t, rule.Until.IsZero())
}
