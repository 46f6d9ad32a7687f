package scheduler

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustZone(t *testing.T, label string) Zone {
	t.Helper()
	zone, err := DefaultZoneResolver().Resolve(label)
	require.NoError(t, err)
	return zone
}

func mustDate(t *testing.T, value string) CivilDate {
	t.Helper()
	date, err := ParseCivilDate(value)
	require.NoError(t, err)
	return date
}

func mustClock(t *testing.T, value string) ClockTime {
	t.Helper()
	clock, err := ParseClockTime(value)
	require.NoError(t, err)
	return clock
}

func TestFindTransition(t *testing.T) {
	eastern := mustZone(t, "(UTC-05) Eastern Time")

	spring, ok := FindTransition(mustDate(t, "2025-03-09"), eastern.Location)
	require.True(t, ok)
	assert.Equal(t, 120, spring.Minute)
	assert.Equal(t, -5*3600, spring.OldOffset)
	assert.Equal(t, -4*3600, spring.NewOffset)

	fall, ok := FindTransition(mustDate(t, "2025-11-02"), eastern.Location)
	require.True(t, ok)
	assert.Equal(t, 120, fall.Minute)
	assert.Equal(t, -60, fall.Delta())

	_, ok = FindTransition(mustDate(t, "2025-03-10"), eastern.Location)
	assert.False(t, ok)
}

func TestToInstantStrictSpringForward(t *testing.T) {
	eastern := mustZone(t, "(UTC-05) Eastern Time")
	date := mustDate(t, "2025-03-09")

	_, err := ToInstantStrict(date, mustClock(t, "02:15"), eastern)
	var localErr *LocalTimeError
	require.ErrorAs(t, err, &localErr)
	assert.ErrorIs(t, err, ErrNonexistentLocalTime)
	assert.Equal(t, "02:00", localErr.WindowStart.String())
	assert.Equal(t, "03:00", localErr.WindowEnd.String())
	assert.Equal(t, "America/New_York", localErr.Zone)

	for _, value := range []string{"02:00", "02:59"} {
		_, err := ToInstantStrict(date, mustClock(t, value), eastern)
		assert.ErrorIs(t, err, ErrNonexistentLocalTime, value)
	}

	before, err := ToInstantStrict(date, mustClock(t, "01:59"), eastern)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 9, 6, 59, 0, 0, time.UTC), before.UTC())

	after, err := ToInstantStrict(date, mustClock(t, "03:00"), eastern)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 9, 7, 0, 0, 0, time.UTC), after.UTC())
}

func TestToInstantStrictFallBack(t *testing.T) {
	eastern := mustZone(t, "America/New_York")
	date := mustDate(t, "2025-11-02")

	for _, value := range []string{"01:00", "01:30", "01:59"} {
		_, err := ToInstantStrict(date, mustClock(t, value), eastern)
		var localErr *LocalTimeError
		require.ErrorAs(t, err, &localErr, value)
		assert.ErrorIs(t, err, ErrAmbiguousLocalTime)
		assert.Equal(t, "01:00", localErr.WindowStart.String())
		assert.Equal(t, "02:00", localErr.WindowEnd.String())
	}

	before, err := ToInstantStrict(date, mustClock(t, "00:59"), eastern)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.November, 2, 4, 59, 0, 0, time.UTC), before.UTC())

	after, err := ToInstantStrict(date, mustClock(t, "02:00"), eastern)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.November, 2, 7, 0, 0, 0, time.UTC), after.UTC())
}

func TestToInstantStrictIsDeterministic(t *testing.T) {
	eastern := mustZone(t, "(UTC-05) Eastern Time")
	date := mustDate(t, "2025-03-09")

	var first error
	for i := 0; i < 5; i++ {
		_, err := ToInstantStrict(date, mustClock(t, "02:15"), eastern)
		require.Error(t, err)
		if first == nil {
			first = err
			continue
		}
		assert.Equal(t, first.Error(), err.Error())
	}
}

func TestToInstantStrictSouthernHemisphere(t *testing.T) {
	sydney := mustZone(t, "Sydney, Melbourne")

	_, err := ToInstantStrict(mustDate(t, "2025-10-05"), mustClock(t, "02:30"), sydney)
	assert.True(t, errors.Is(err, ErrNonexistentLocalTime))

	_, err = ToInstantStrict(mustDate(t, "2025-04-06"), mustClock(t, "02:30"), sydney)
	assert.True(t, errors.Is(err, ErrAmbiguousLocalTime))

	_, err = ToInstantStrict(mustDate(t, "2025-04-06"), mustClock(t, "03:00"), sydney)
	assert.NoError(t, err)
}

func TestToInstantStrictFallBackAtMidnight(t *testing.T) {
	cases := []struct {
		zone    string
		lastDay string
		nextDay string
		instant time.Time
	}{
		{
			zone:    "America/Santiago",
			lastDay: "2025-04-05",
			nextDay: "2025-04-06",
			instant: time.Date(2025, time.April, 6, 1, 59, 0, 0, time.UTC),
		},
		{
			zone:    "Africa/Cairo",
			lastDay: "2025-10-30",
			nextDay: "2025-10-31",
			instant: time.Date(2025, time.October, 30, 19, 59, 0, 0, time.UTC),
		},
	}
	for _, tc := range cases {
		t.Run(tc.zone, func(t *testing.T) {
			zone := mustZone(t, tc.zone)
			date := mustDate(t, tc.lastDay)

			_, err := ToInstantStrict(date, mustClock(t, "23:30"), zone)
			var localErr *LocalTimeError
			require.ErrorAs(t, err, &localErr)
			assert.ErrorIs(t, err, ErrAmbiguousLocalTime)
			assert.Equal(t, "23:00", localErr.WindowStart.String())
			assert.Equal(t, "00:00", localErr.WindowEnd.String())

			for _, value := range []string{"23:00", "23:59"} {
				_, err := ToInstantStrict(date, mustClock(t, value), zone)
				assert.ErrorIs(t, err, ErrAmbiguousLocalTime, value)
			}

			before, err := ToInstantStrict(date, mustClock(t, "22:59"), zone)
			require.NoError(t, err)
			assert.Equal(t, tc.instant, before.UTC())

			_, err = ToInstantStrict(mustDate(t, tc.nextDay), mustClock(t, "00:00"), zone)
			assert.NoError(t, err)
			_, err = ToInstantStrict(mustDate(t, tc.nextDay), mustClock(t, "23:30"), zone)
			assert.NoError(t, err)
		})
	}
}

func TestToInstantStrictSpringForwardAtMidnight(t *testing.T) {
	santiago := mustZone(t, "Santiago")
	_, err := ToInstantStrict(mustDate(t, "2025-09-07"), mustClock(t, "00:30"), santiago)
	assert.ErrorIs(t, err, ErrNonexistentLocalTime)
	_, err = ToInstantStrict(mustDate(t, "2025-09-06"), mustClock(t, "23:30"), santiago)
	assert.NoError(t, err)

	cairo := mustZone(t, "Cairo")
	_, err = ToInstantStrict(mustDate(t, "2025-04-25"), mustClock(t, "00:15"), cairo)
	assert.ErrorIs(t, err, ErrNonexistentLocalTime)
	_, err = ToInstantStrict(mustDate(t, "2025-04-24"), mustClock(t, "23:45"), cairo)
	assert.NoError(t, err)
}

func TestToInstantStrictWithoutTransitions(t *testing.T) {
	tokyo := mustZone(t, "(UTC+09) Japan Standard Time")

	instant, err := ToInstantStrict(mustDate(t, "2025-03-09"), mustClock(t, "02:15"), tokyo)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, time.March, 8, 17, 15, 0, 0, time.UTC), instant.UTC())
}

func TestToInstantStrictRejectsBadInput(t *testing.T) {
	eastern := mustZone(t, "Eastern Time")

	_, err := ToInstantStrict(CivilDate{Year: 2025, Month: time.February, Day: 30}, ClockTime{Hour: 9}, eastern)
	assert.ErrorIs(t, err, ErrInvalidDate)

	_, err = ToInstantStrict(mustDate(t, "2025-02-10"), ClockTime{Hour: 24}, eastern)
	assert.ErrorIs(t, err, ErrInvalidClockTime)

	_, err = ToInstantStrict(mustDate(t, "2025-02-10"), ClockTime{Hour: 9}, Zone{Label: "broken"})
	assert.ErrorIs(t, err, ErrZoneNotFound)

	_, err = ParseClockTime("9am")
	assert.ErrorIs(t, err, ErrInvalidClockTime)

	_, err = ParseCivilDate("03/09/2025")
	assert.ErrorIs(t, err, ErrInvalidDate)
}

func TestCivilDateInReprojectsStoredInstant(t *testing.T) {
	tokyo := mustZone(t, "Asia/Tokyo")
	eastern := mustZone(t, "America/New_York")

	stored := time.Date(2025, time.March, 9, 20, 0, 0, 0, time.UTC)
	assert.Equal(t, "2025-03-10", CivilDateIn(stored, tokyo.Location).String())
	assert.Equal(t, "2025-03-09", CivilDateIn(stored, eastern.Location).String())
}

func TestCivilDateHelpers(t *testing.T) {
	date := mustDate(t, "2025-02-27")
	assert.Equal(t, "2025-03-01", date.AddDays(2).String())
	assert.Equal(t, time.Thursday, date.Weekday())
	assert.True(t, date.Before(date.AddDays(1)))
	assert.False(t, date.AddDays(1).Before(date))
	assert.Equal(t, "23:30", ClockTimeFromMinutes(-30).String())
}
