package scheduler

import (
	"sort"
	"time"
)

// Interval is a scheduled session's [Start, End) span.
type Interval struct {
	ID    string
	Title string
	Start time.Time
	End   time.Time
}

// Valid reports whether the interval has a positive length.
func (i Interval) Valid() bool {
	return i.Start.Before(i.End)
}

// Overlaps reports whether two half-open intervals share any instant.
// Touching endpoints do not overlap.
func Overlaps(a, b Interval) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Conflict names the pair of intervals that overlap. In batch checks
// Candidate is the earlier of the two; in existing checks Existing is the
// stored interval.
type Conflict struct {
	Candidate Interval
	Existing  Interval
}

// CheckBatch verifies that none of the candidates overlap each other. It
// returns the first conflicting pair in start order, or nil.
func CheckBatch(candidates []Interval) *Conflict {
	sorted := sortedIntervals(candidates)
	for i := range sorted {
		for j := i + 1; j < len(sorted); j++ {
			if !sorted[j].Start.Before(sorted[i].End) {
				break
			}
			if Overlaps(sorted[i], sorted[j]) {
				return &Conflict{Candidate: sorted[i], Existing: sorted[j]}
			}
		}
	}
	return nil
}

// CheckAgainstExisting compares every candidate with every existing interval
// and returns the first overlap. Existing intervals whose ID equals excludeID
// are skipped so an edited interval is never compared with itself.
func CheckAgainstExisting(candidates, existing []Interval, excludeID string) *Conflict {
	others := make([]Interval, 0, len(existing))
	for _, interval := range existing {
		if excludeID != "" && interval.ID == excludeID {
			continue
		}
		others = append(others, interval)
	}
	others = sortedIntervals(others)

	for _, candidate := range candidates {
		for _, other := range others {
			if !other.Start.Before(candidate.End) {
				break
			}
			if Overlaps(candidate, other) {
				return &Conflict{Candidate: candidate, Existing: other}
			}
		}
	}
	return nil
}

func sortedIntervals(intervals []Interval) []Interval {
	sorted := make([]Interval, len(intervals))
	copy(sorted, intervals)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].Start.Equal(sorted[j].Start) {
			return sorted[i].Start.Before(sorted[j].Start)
		}
		if !sorted[i].End.Equal(sorted[j].End) {
			return sorted[i].End.Before(sorted[j].End)
		}
		return sorted[i].ID < sorted[j].ID
	})
	return sorted
}
