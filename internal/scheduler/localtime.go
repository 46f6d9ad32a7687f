package scheduler

import (
	"errors"
	"fmt"
	"time"
)

const minutesPerDay = 24 * 60

var (
	// ErrNonexistentLocalTime marks a wall-clock time skipped by a
	// spring-forward transition.
	ErrNonexistentLocalTime = errors.New("NonexistentLocalTime")
	// ErrAmbiguousLocalTime marks a wall-clock time repeated by a fall-back
	// transition.
	ErrAmbiguousLocalTime = errors.New("AmbiguousLocalTime")
	// ErrInvalidDate and ErrInvalidClockTime report malformed inputs.
	ErrInvalidDate      = errors.New("scheduler: invalid date")
	ErrInvalidClockTime = errors.New("scheduler: invalid time of day")
)

// CivilDate is a calendar date without a zone.
type CivilDate struct {
	Year  int
	Month time.Month
	Day   int
}

// ParseCivilDate parses YYYY-MM-DD.
func ParseCivilDate(value string) (CivilDate, error) {
	parsed, err := time.Parse(time.DateOnly, value)
	if err != nil {
		return CivilDate{}, fmt.Errorf("%w: %q", ErrInvalidDate, value)
	}
	return CivilDate{Year: parsed.Year(), Month: parsed.Month(), Day: parsed.Day()}, nil
}

// CivilDateIn re-projects a stored instant onto the calendar of loc. The
// server's local zone never takes part.
func CivilDateIn(t time.Time, loc *time.Location) CivilDate {
	y, m, d := t.In(loc).Date()
	return CivilDate{Year: y, Month: m, Day: d}
}

func (d CivilDate) String() string {
	return fmt.Sprintf("%04d-%02d-%02d", d.Year, d.Month, d.Day)
}

// AddDays returns the date n calendar days later.
func (d CivilDate) AddDays(n int) CivilDate {
	t := time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC)
	return CivilDate{Year: t.Year(), Month: t.Month(), Day: t.Day()}
}

// Weekday reports the day of the week.
func (d CivilDate) Weekday() time.Weekday {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC).Weekday()
}

// Before reports whether d is earlier than other.
func (d CivilDate) Before(other CivilDate) bool {
	if d.Year != other.Year {
		return d.Year < other.Year
	}
	if d.Month != other.Month {
		return d.Month < other.Month
	}
	return d.Day < other.Day
}

// ClockTime is a wall-clock time of day with minute precision.
type ClockTime struct {
	Hour   int
	Minute int
}

// ParseClockTime parses "HH:mm" in 24 hour notation.
func ParseClockTime(value string) (ClockTime, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return ClockTime{}, fmt.Errorf("%w: %q", ErrInvalidClockTime, value)
	}
	return ClockTime{Hour: parsed.Hour(), Minute: parsed.Minute()}, nil
}

// ClockTimeFromMinutes converts a minute-of-day into a ClockTime. Values
// outside the day wrap around.
func ClockTimeFromMinutes(minutes int) ClockTime {
	minutes = ((minutes % minutesPerDay) + minutesPerDay) % minutesPerDay
	return ClockTime{Hour: minutes / 60, Minute: minutes % 60}
}

// Minutes returns the minute of day.
func (c ClockTime) Minutes() int {
	return c.Hour*60 + c.Minute
}

func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// Transition describes the first UTC offset change within a local day.
type Transition struct {
	// Minute is the wall-clock minute of day, under the old offset, at
	// which the change happens.
	Minute int
	// OldOffset and NewOffset are in seconds east of UTC.
	OldOffset int
	NewOffset int
}

// Delta is the wall-clock jump in minutes. Positive for spring-forward.
func (t Transition) Delta() int {
	return (t.NewOffset - t.OldOffset) / 60
}

// Window returns the half-open range of minutes of day that cannot be mapped
// to exactly one instant, along with the reason.
func (t Transition) Window() (start, end int, reason error) {
	delta := t.Delta()
	if delta > 0 {
		return t.Minute, t.Minute + delta, ErrNonexistentLocalTime
	}
	after := t.Minute + delta
	return after, after + (t.OldOffset-t.NewOffset)/60, ErrAmbiguousLocalTime
}

// FindTransition scans the 1440 minutes of date in loc and reports the first
// offset change. The scan starts at local midnight under the offset in force
// at noon of the previous day.
func FindTransition(date CivilDate, loc *time.Location) (Transition, bool) {
	_, previous := time.Date(date.Year, date.Month, date.Day-1, 12, 0, 0, 0, loc).Zone()
	midnight := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC).
		Add(-time.Duration(previous) * time.Second)

	for minute := 0; minute < minutesPerDay; minute++ {
		_, offset := midnight.Add(time.Duration(minute) * time.Minute).In(loc).Zone()
		if offset != previous {
			return Transition{Minute: minute, OldOffset: previous, NewOffset: offset}, true
		}
	}
	return Transition{}, false
}

type localWindow struct {
	start, end int
	reason     error
}

// rejectionWindows lists the minutes of date that do not map to exactly one
// instant. A fall-back at the next local midnight repeats the last minutes
// of date, so the next day's transition is consulted too.
func rejectionWindows(date CivilDate, loc *time.Location) []localWindow {
	var windows []localWindow
	if transition, ok := FindTransition(date, loc); ok {
		start, end, reason := transition.Window()
		windows = append(windows, localWindow{start: start, end: end, reason: reason})
	}
	if transition, ok := FindTransition(date.AddDays(1), loc); ok {
		start, end, reason := transition.Window()
		if start < 0 {
			windows = append(windows, localWindow{
				start:  start + minutesPerDay,
				end:    min(end, 0) + minutesPerDay,
				reason: reason,
			})
		}
	}
	return windows
}

// LocalTimeError reports a wall-clock time rejected by the strict DST policy.
type LocalTimeError struct {
	Reason      error
	Date        CivilDate
	Time        ClockTime
	Zone        string
	WindowStart ClockTime
	WindowEnd   ClockTime
}

func (e *LocalTimeError) Error() string {
	return fmt.Sprintf("%s: %s %s in %s falls within [%s, %s)",
		e.Reason, e.Date, e.Time, e.Zone, e.WindowStart, e.WindowEnd)
}

func (e *LocalTimeError) Unwrap() error {
	return e.Reason
}

// ToInstantStrict converts a local date and time in zone into an instant.
// Times inside a spring-forward gap or a fall-back overlap are rejected with
// a *LocalTimeError rather than normalised.
func ToInstantStrict(date CivilDate, clock ClockTime, zone Zone) (time.Time, error) {
	if zone.Location == nil {
		return time.Time{}, fmt.Errorf("%w: zone %q has no location", ErrZoneNotFound, zone.Label)
	}
	if clock.Hour < 0 || clock.Hour > 23 || clock.Minute < 0 || clock.Minute > 59 {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidClockTime, clock)
	}
	check := time.Date(date.Year, date.Month, date.Day, 0, 0, 0, 0, time.UTC)
	if check.Year() != date.Year || check.Month() != date.Month || check.Day() != date.Day {
		return time.Time{}, fmt.Errorf("%w: %s", ErrInvalidDate, date)
	}

	minute := clock.Minutes()
	for _, window := range rejectionWindows(date, zone.Location) {
		if minute >= window.start && minute < window.end {
			return time.Time{}, &LocalTimeError{
				Reason:      window.reason,
				Date:        date,
				Time:        clock,
				Zone:        zone.Name,
				WindowStart: ClockTimeFromMinutes(window.start),
				WindowEnd:   ClockTimeFromMinutes(window.end),
			}
		}
	}

	return time.Date(date.Year, date.Month, date.Day, clock.Hour, clock.Minute, 0, 0, zone.Location), nil
}
