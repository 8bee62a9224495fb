package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDayBucketUsesTenantZone(t *testing.T) {
	zones, err := NewZones("")
	require.NoError(t, err)
	ba := zones.Location("")

	// 01:30 UTC is still the previous evening in Buenos Aires (UTC-3)
	at := time.Date(2024, 3, 10, 1, 30, 0, 0, time.UTC)
	assert.Equal(t, "2024-03-09", DayBucket(at, ba))
	assert.Equal(t, "2024-03-10", DayBucket(at, time.UTC))
}

func TestZonesFallback(t *testing.T) {
	zones, err := NewZones("UTC")
	require.NoError(t, err)

	assert.Equal(t, time.UTC, zones.Location("Not/AZone"))
	assert.Equal(t, "Europe/Madrid", zones.Location("Europe/Madrid").String())
	assert.True(t, Valid("Europe/Madrid"))
	assert.False(t, Valid("Mars/Olympus"))
	assert.False(t, Valid(""))

	_, err = NewZones("Mars/Olympus")
	assert.Error(t, err)
}

func TestPeriodBoundaries(t *testing.T) {
	// Wednesday
	at := time.Date(2024, 5, 15, 18, 45, 0, 0, time.UTC)

	assert.Equal(t, time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC), StartOfDay(at, time.UTC))
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), StartOfWeek(at, time.UTC))
	assert.Equal(t, time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), StartOfMonth(at, time.UTC))

	sunday := time.Date(2024, 5, 19, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, time.Date(2024, 5, 13, 0, 0, 0, 0, time.UTC), StartOfWeek(sunday, time.UTC))
}

func TestManualClock(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewManual(start)
	c.Advance(time.Hour)
	assert.Equal(t, start.Add(time.Hour), c.Now())

	c.Set(start)
	assert.Equal(t, start, c.Now())
}
