package recurrence

import (
	"errors"
	"time"

	"github.com/example/session-orchestrator/internal/scheduler"
)

const defaultMaxOccurrences = 366

// Frequency represents supported recurrence intervals.
type Frequency int

const (
	// FrequencyUnspecified indicates the rule frequency is not set.
	FrequencyUnspecified Frequency = iota
	// FrequencyDaily generates occurrences for each day within the range.
	FrequencyDaily
	// FrequencyWeekly generates occurrences for the selected weekdays.
	FrequencyWeekly
)

// ParseFrequency maps "daily" and "weekly" to a Frequency.
func ParseFrequency(value string) (Frequency, error) {
	switch value {
	case "daily":
		return FrequencyDaily, nil
	case "weekly":
		return FrequencyWeekly, nil
	default:
		return FrequencyUnspecified, ErrInvalidFrequency
	}
}

// Rule describes a series of calendar dates in a project's zone. Dates are
// civil so expansion never drifts across DST changes; each date is converted
// to an instant separately.
type Rule struct {
	Frequency Frequency
	// Every repeats the rule every N days or weeks. Zero means 1.
	Every    int
	Weekdays []time.Weekday
	StartsOn scheduler.CivilDate
	EndsOn   *scheduler.CivilDate
	// Count caps the number of dates. Zero means unbounded.
	Count int
}

// Engine expands recurrence rules into dates.
type Engine struct {
	maxOccurrences int
}

// NewEngine constructs an Engine that refuses to produce more than
// maxOccurrences dates. Non-positive values select a one year cap.
func NewEngine(maxOccurrences int) *Engine {
	if maxOccurrences <= 0 {
		maxOccurrences = defaultMaxOccurrences
	}
	return &Engine{maxOccurrences: maxOccurrences}
}

// ErrInvalidFrequency indicates the recurrence frequency is not supported.
var ErrInvalidFrequency = errors.New("recurrence: invalid frequency")

// ErrInvalidWindow indicates the rule has neither an end date nor a count, or
// ends before it starts.
var ErrInvalidWindow = errors.New("recurrence: rule requires an end date or a count")

// ErrTooManyOccurrences indicates the rule expands past the engine cap.
var ErrTooManyOccurrences = errors.New("recurrence: rule produces too many occurrences")

// ExpandDates lists the dates selected by rule in ascending order.
//
// Daily rules may be narrowed with Weekdays. Weekly rules with no Weekdays
// repeat on the weekday of StartsOn; weeks are counted from the Monday on or
// before StartsOn.
func (e *Engine) ExpandDates(rule Rule) ([]scheduler.CivilDate, error) {
	if rule.Frequency != FrequencyDaily && rule.Frequency != FrequencyWeekly {
		return nil, ErrInvalidFrequency
	}
	if rule.EndsOn == nil && rule.Count <= 0 {
		return nil, ErrInvalidWindow
	}
	if rule.EndsOn != nil && rule.EndsOn.Before(rule.StartsOn) {
		return nil, ErrInvalidWindow
	}
	every := rule.Every
	if every <= 0 {
		every = 1
	}

	weekdays := make(map[time.Weekday]struct{}, len(rule.Weekdays))
	for _, day := range rule.Weekdays {
		weekdays[day] = struct{}{}
	}
	if rule.Frequency == FrequencyWeekly && len(weekdays) == 0 {
		weekdays[rule.StartsOn.Weekday()] = struct{}{}
	}

	anchor := mondayOnOrBefore(rule.StartsOn)
	dates := make([]scheduler.CivilDate, 0)
	for offset := 0; ; offset++ {
		current := rule.StartsOn.AddDays(offset)
		if rule.EndsOn != nil && rule.EndsOn.Before(current) {
			break
		}
		if rule.Count > 0 && len(dates) >= rule.Count {
			break
		}

		if include(rule.Frequency, every, offset, daysBetween(anchor, current)/7, weekdays, current.Weekday()) {
			if len(dates) >= e.maxOccurrences {
				return nil, ErrTooManyOccurrences
			}
			dates = append(dates, current)
		}

		// Stop runaway scans for count-only rules that can never match.
		if rule.EndsOn == nil && offset > e.maxOccurrences*7*every {
			return nil, ErrTooManyOccurrences
		}
	}
	return dates, nil
}

func include(freq Frequency, every, dayOffset, weekIndex int, weekdays map[time.Weekday]struct{}, day time.Weekday) bool {
	switch freq {
	case FrequencyDaily:
		if dayOffset%every != 0 {
			return false
		}
		if len(weekdays) == 0 {
			return true
		}
		_, ok := weekdays[day]
		return ok
	case FrequencyWeekly:
		if weekIndex%every != 0 {
			return false
		}
		_, ok := weekdays[day]
		return ok
	default:
		return false
	}
}

func mondayOnOrBefore(date scheduler.CivilDate) scheduler.CivilDate {
	shift := (int(date.Weekday()) + 6) % 7
	return date.AddDays(-shift)
}

func daysBetween(from, to scheduler.CivilDate) int {
	a := time.Date(from.Year, from.Month, from.Day, 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year, to.Month, to.Day, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
