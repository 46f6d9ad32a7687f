package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func at(hour, minute int) time.Time {
	return time.Date(2025, time.April, 7, hour, minute, 0, 0, time.UTC)
}

func interval(id string, startHour, startMinute, endHour, endMinute int) Interval {
	return Interval{ID: id, Title: "session " + id, Start: at(startHour, startMinute), End: at(endHour, endMinute)}
}

func TestOverlaps(t *testing.T) {
	cases := []struct {
		name string
		a, b Interval
		want bool
	}{
		{"touching endpoints", interval("a", 10, 0, 11, 0), interval("b", 11, 0, 12, 0), false},
		{"disjoint", interval("a", 8, 0, 9, 0), interval("b", 10, 0, 11, 0), false},
		{"partial overlap", interval("a", 10, 0, 11, 0), interval("b", 10, 30, 11, 30), true},
		{"containment", interval("a", 9, 0, 12, 0), interval("b", 10, 0, 11, 0), true},
		{"identical", interval("a", 9, 0, 10, 0), interval("b", 9, 0, 10, 0), true},
		{"one minute overlap", interval("a", 9, 0, 10, 1), interval("b", 10, 0, 11, 0), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Overlaps(tc.a, tc.b))
			assert.Equal(t, Overlaps(tc.a, tc.b), Overlaps(tc.b, tc.a), "overlap must be symmetric")
		})
	}
}

func TestOverlapsSymmetryExhaustive(t *testing.T) {
	var intervals []Interval
	for start := 0; start < 6; start++ {
		for length := 1; length <= 3; length++ {
			intervals = append(intervals, Interval{
				Start: at(8+start, 0),
				End:   at(8+start+length, 0),
			})
		}
	}
	for _, a := range intervals {
		for _, b := range intervals {
			require.Equal(t, Overlaps(a, b), Overlaps(b, a))
		}
	}
}

func TestCheckBatch(t *testing.T) {
	t.Run("touching sessions are accepted", func(t *testing.T) {
		conflict := CheckBatch([]Interval{
			interval("b", 11, 0, 12, 0),
			interval("a", 10, 0, 11, 0),
		})
		assert.Nil(t, conflict)
	})

	t.Run("reports first pair in start order", func(t *testing.T) {
		conflict := CheckBatch([]Interval{
			interval("late", 15, 0, 16, 0),
			interval("late-overlap", 15, 30, 16, 30),
			interval("early", 9, 0, 10, 0),
			interval("early-overlap", 9, 45, 10, 15),
		})
		require.NotNil(t, conflict)
		assert.Equal(t, "early", conflict.Candidate.ID)
		assert.Equal(t, "early-overlap", conflict.Existing.ID)
	})

	t.Run("long interval overlapping a distant neighbour", func(t *testing.T) {
		conflict := CheckBatch([]Interval{
			interval("long", 8, 0, 14, 0),
			interval("short", 9, 0, 9, 30),
			interval("later", 13, 0, 13, 30),
		})
		require.NotNil(t, conflict)
		assert.Equal(t, "long", conflict.Candidate.ID)
		assert.Equal(t, "short", conflict.Existing.ID)
	})

	t.Run("empty and single inputs", func(t *testing.T) {
		assert.Nil(t, CheckBatch(nil))
		assert.Nil(t, CheckBatch([]Interval{interval("only", 9, 0, 10, 0)}))
	})
}

func TestCheckAgainstExisting(t *testing.T) {
	existing := []Interval{
		interval("x", 9, 0, 10, 0),
		interval("y", 13, 0, 14, 0),
	}

	t.Run("conflict names the existing interval", func(t *testing.T) {
		conflict := CheckAgainstExisting([]Interval{interval("new", 13, 30, 14, 30)}, existing, "")
		require.NotNil(t, conflict)
		assert.Equal(t, "new", conflict.Candidate.ID)
		assert.Equal(t, "y", conflict.Existing.ID)
		assert.Equal(t, "session y", conflict.Existing.Title)
	})

	t.Run("gap between existing sessions is free", func(t *testing.T) {
		assert.Nil(t, CheckAgainstExisting([]Interval{interval("new", 10, 0, 13, 0)}, existing, ""))
	})

	t.Run("edited interval never conflicts with itself", func(t *testing.T) {
		edited := interval("x", 9, 15, 10, 15)
		assert.Nil(t, CheckAgainstExisting([]Interval{edited}, existing, "x"))
		assert.NotNil(t, CheckAgainstExisting([]Interval{edited}, existing, ""))
	})
}
