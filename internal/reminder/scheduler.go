// Package reminder computes randomized reminder times inside a daily
// window.
//
// The window is split into Frequency equal segments and one minute is
// drawn from each, less a fixed slack at the end of the segment, so two
// reminders on the same day are always at least MinimumGapMinutes apart.
// The package does no I/O; arming the returned times is the caller's job.
package reminder

import (
	"math/rand/v2"
	"sort"
	"time"

	"github.com/kimhsiao/glimm/backend/internal/models"
)

const (
	// MinimumGapMinutes is the slack removed from the end of every segment.
	MinimumGapMinutes = 30

	// DefaultHorizonDays is how many days ahead a schedule is computed.
	DefaultHorizonDays = 7
)

// Source draws uniform integers in [0, n). *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
}

type globalSource struct{}

func (globalSource) IntN(n int) int { return rand.IntN(n) }

// DefaultSource is goroutine-safe and randomly seeded.
var DefaultSource Source = globalSource{}

// Scheduler computes reminder times. The zero value is not usable; call
// NewScheduler.
type Scheduler struct {
	src        Source
	minimumGap int
}

// NewScheduler creates a Scheduler drawing from src. A nil src means
// DefaultSource.
func NewScheduler(src Source) *Scheduler {
	if src == nil {
		src = DefaultSource
	}
	return &Scheduler{src: src, minimumGap: MinimumGapMinutes}
}

// Schedule returns the reminder times for horizonDays days starting with
// the day of now, in now's location, ascending and strictly after now.
//
// A disabled window, a window whose end is not after its start, or a
// frequency below one yields no times. When a segment is shorter than the
// minimum gap it yields nothing, so very high frequencies on a narrow
// window can produce fewer reminders than requested, or none. A drawn
// wall time that does not exist on its day, because it falls in a
// daylight saving gap, is dropped rather than shifted out of its segment.
func (s *Scheduler) Schedule(window models.ReminderWindow, horizonDays int, now time.Time) []time.Time {
	if !window.Enabled || window.Frequency < 1 {
		return nil
	}

	startMin := window.DayStart.Minutes()
	endMin := window.DayEnd.Minutes()
	if endMin <= startMin {
		return nil
	}

	var result []time.Time
	for d := 0; d < horizonDays; d++ {
		day := now.AddDate(0, 0, d)
		for _, t := range s.day(day, startMin, endMin, window.Frequency) {
			if t.After(now) {
				result = append(result, t)
			}
		}
	}
	return result
}

// day draws one time per usable segment on the calendar day of date.
func (s *Scheduler) day(date time.Time, startMin, endMin, frequency int) []time.Time {
	segmentSize := (endMin - startMin) / frequency
	year, month, dom := date.Date()

	times := make([]time.Time, 0, frequency)
	for i := 0; i < frequency; i++ {
		lower := startMin + i*segmentSize
		upper := min(lower+segmentSize-s.minimumGap, endMin)
		if upper <= lower {
			continue
		}

		offset := lower + s.src.IntN(upper-lower)
		t := time.Date(year, month, dom, offset/60, offset%60, 0, 0, date.Location())
		// time.Date normalizes nonexistent wall times by an hour either way
		if t.Day() != dom || t.Hour()*60+t.Minute() != offset {
			continue
		}
		times = append(times, t)
	}

	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })
	return times
}
