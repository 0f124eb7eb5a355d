package reminder

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kimhsiao/glimm/backend/internal/models"
)

// =====================================================
// Helpers
// =====================================================

// fixedSource always returns the same fraction of n.
type fixedSource struct{ pick func(n int) int }

func (f fixedSource) IntN(n int) int { return f.pick(n) }

var lowest = fixedSource{pick: func(int) int { return 0 }}
var highest = fixedSource{pick: func(n int) int { return n - 1 }}

func window(start, end string, frequency int) models.ReminderWindow {
	s, err := models.ParseClockTime(start)
	if err != nil {
		panic(err)
	}
	e, err := models.ParseClockTime(end)
	if err != nil {
		panic(err)
	}
	return models.ReminderWindow{DayStart: s, DayEnd: e, Frequency: frequency, Enabled: true}
}

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

var midnight = time.Date(2024, 5, 20, 0, 0, 0, 0, time.UTC)

// =====================================================
// Schedule
// =====================================================

func TestSchedule_defaultWindowExample(t *testing.T) {
	s := NewScheduler(rand.New(rand.NewPCG(1, 2)))

	times := s.Schedule(window("09:00", "21:00", 3), 1, midnight)

	require.Len(t, times, 3)
	for i, tm := range times {
		assert.GreaterOrEqual(t, minuteOfDay(tm), 9*60)
		assert.Less(t, minuteOfDay(tm), 21*60)
		if i > 0 {
			assert.GreaterOrEqual(t, tm.Sub(times[i-1]), MinimumGapMinutes*time.Minute)
		}
	}
}

func TestSchedule_segmentLowerBounds(t *testing.T) {
	s := NewScheduler(lowest)

	times := s.Schedule(window("09:00", "21:00", 3), 1, midnight)

	assert.Equal(t, []time.Time{
		midnight.Add(9 * time.Hour),
		midnight.Add(13 * time.Hour),
		midnight.Add(17 * time.Hour),
	}, times)
}

func TestSchedule_segmentUpperBounds(t *testing.T) {
	s := NewScheduler(highest)

	times := s.Schedule(window("09:00", "21:00", 3), 1, midnight)

	// each segment stops MinimumGapMinutes short of the next one
	assert.Equal(t, []time.Time{
		midnight.Add(12*time.Hour + 29*time.Minute),
		midnight.Add(16*time.Hour + 29*time.Minute),
		midnight.Add(20*time.Hour + 29*time.Minute),
	}, times)
}

func TestSchedule_properties(t *testing.T) {
	windows := []models.ReminderWindow{
		window("09:00", "21:00", 3),
		window("07:15", "22:45", 8),
		window("00:00", "23:59", 1),
		window("12:00", "13:30", 2),
		window("06:00", "06:45", 1),
		window("08:00", "20:00", 24),
	}

	for seed := uint64(0); seed < 50; seed++ {
		s := NewScheduler(rand.New(rand.NewPCG(seed, seed*7+3)))
		now := midnight.Add(time.Duration(seed*37) * time.Minute)

		for _, w := range windows {
			times := s.Schedule(w, 3, now)

			for i, tm := range times {
				// bounds
				assert.GreaterOrEqual(t, minuteOfDay(tm), w.DayStart.Minutes())
				assert.Less(t, minuteOfDay(tm), w.DayEnd.Minutes())
				assert.True(t, tm.After(now))

				if i == 0 {
					continue
				}
				// strictly ascending
				assert.True(t, tm.After(times[i-1]), "seed %d window %v not ascending", seed, w)
				// same-day gap
				if sameDay(tm, times[i-1]) {
					assert.GreaterOrEqual(t, tm.Sub(times[i-1]), MinimumGapMinutes*time.Minute,
						"seed %d window %v", seed, w)
				}
			}
		}
	}
}

func TestSchedule_horizon(t *testing.T) {
	s := NewScheduler(lowest)

	times := s.Schedule(window("09:00", "21:00", 2), DefaultHorizonDays, midnight)

	require.Len(t, times, 2*DefaultHorizonDays)
	assert.Equal(t, midnight.Add(9*time.Hour), times[0])
	assert.Equal(t, midnight.AddDate(0, 0, DefaultHorizonDays-1).Add(15*time.Hour), times[len(times)-1])
}

func TestSchedule_dropsPastTimesOnFirstDay(t *testing.T) {
	s := NewScheduler(lowest)
	now := midnight.Add(15 * time.Hour)

	times := s.Schedule(window("09:00", "21:00", 3), 2, now)

	// 09:00 and 13:00 have passed today; 17:00 remains, then all of tomorrow
	assert.Equal(t, []time.Time{
		midnight.Add(17 * time.Hour),
		midnight.AddDate(0, 0, 1).Add(9 * time.Hour),
		midnight.AddDate(0, 0, 1).Add(13 * time.Hour),
		midnight.AddDate(0, 0, 1).Add(17 * time.Hour),
	}, times)
}

func TestSchedule_timeEqualToNowIsDropped(t *testing.T) {
	s := NewScheduler(lowest)
	now := midnight.Add(9 * time.Hour)

	times := s.Schedule(window("09:00", "21:00", 1), 1, now)
	assert.Empty(t, times)
}

func TestSchedule_keepsLocation(t *testing.T) {
	zone := time.FixedZone("UTC+9", 9*60*60)
	now := time.Date(2024, 5, 20, 0, 0, 0, 0, zone)
	s := NewScheduler(lowest)

	times := s.Schedule(window("10:00", "11:00", 1), 1, now)

	require.Len(t, times, 1)
	assert.Equal(t, time.Date(2024, 5, 20, 10, 0, 0, 0, zone), times[0])
	assert.Equal(t, zone, times[0].Location())
}

func TestSchedule_springForwardGapIsDropped(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	// clocks jump from 02:00 to 03:00 on 2024-03-10
	now := time.Date(2024, 3, 10, 0, 0, 0, 0, ny)
	s := NewScheduler(highest)

	times := s.Schedule(window("01:30", "03:30", 2), 1, now)

	// the second segment draws 02:59, which does not exist that day
	require.Len(t, times, 1)
	assert.Equal(t, 1, times[0].Hour())
	assert.Equal(t, 59, times[0].Minute())
	assert.True(t, sameDay(times[0], now))
}

func TestSchedule_springForwardKeepsWindowAndGap(t *testing.T) {
	ny, err := time.LoadLocation("America/New_York")
	if err != nil {
		t.Skip("tzdata unavailable")
	}
	now := time.Date(2024, 3, 9, 0, 0, 0, 0, ny)
	w := window("00:30", "04:30", 4)

	for seed := uint64(0); seed < 50; seed++ {
		s := NewScheduler(rand.New(rand.NewPCG(seed, seed+1)))
		times := s.Schedule(w, 3, now)

		for i, tm := range times {
			m := minuteOfDay(tm)
			assert.GreaterOrEqual(t, m, w.DayStart.Minutes(), "seed %d: %s", seed, tm)
			assert.Less(t, m, w.DayEnd.Minutes(), "seed %d: %s", seed, tm)
			if i > 0 && sameDay(tm, times[i-1]) {
				assert.GreaterOrEqual(t, tm.Sub(times[i-1]), MinimumGapMinutes*time.Minute, "seed %d", seed)
			}
		}
	}
}

// =====================================================
// Degenerate windows
// =====================================================

func TestSchedule_emptyResults(t *testing.T) {
	disabled := window("09:00", "21:00", 3)
	disabled.Enabled = false

	tests := []struct {
		name   string
		window models.ReminderWindow
	}{
		{"disabled", disabled},
		{"end before start", window("21:00", "09:00", 3)},
		{"end equals start", window("09:00", "09:00", 3)},
		{"zero frequency", window("09:00", "21:00", 0)},
		{"negative frequency", window("09:00", "21:00", -1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewScheduler(rand.New(rand.NewPCG(9, 9)))
			assert.Empty(t, s.Schedule(tt.window, DefaultHorizonDays, midnight))
		})
	}
}

func TestSchedule_zeroHorizon(t *testing.T) {
	s := NewScheduler(lowest)
	assert.Empty(t, s.Schedule(window("09:00", "21:00", 3), 0, midnight))
}

func TestSchedule_segmentsNarrowerThanGapYieldNothing(t *testing.T) {
	s := NewScheduler(rand.New(rand.NewPCG(4, 2)))

	// 90 minutes in 3 segments of 30: every usable range is empty
	assert.Empty(t, s.Schedule(window("09:00", "10:30", 3), DefaultHorizonDays, midnight))

	// 60 minutes in 4 segments of 15
	assert.Empty(t, s.Schedule(window("09:00", "10:00", 4), DefaultHorizonDays, midnight))

	// the same window with fewer segments still schedules
	assert.Len(t, s.Schedule(window("09:00", "10:30", 2), 1, midnight), 2)
}

func TestSchedule_truncatedTailIsNeverUsed(t *testing.T) {
	s := NewScheduler(highest)

	// 121 minutes / 2 = 60; the final minute of the window is left over
	times := s.Schedule(window("09:00", "11:01", 2), 1, midnight)

	require.Len(t, times, 2)
	assert.Equal(t, midnight.Add(9*time.Hour+29*time.Minute), times[0])
	assert.Equal(t, midnight.Add(10*time.Hour+29*time.Minute), times[1])
}

func TestSchedule_lastSegmentClampedToWindowEnd(t *testing.T) {
	// a one-segment window shorter than the gap yields nothing
	s := NewScheduler(highest)
	assert.Empty(t, s.Schedule(window("09:00", "09:20", 1), 1, midnight))

	// exactly one usable minute
	times := s.Schedule(window("09:00", "09:31", 1), 1, midnight)
	assert.Equal(t, []time.Time{midnight.Add(9 * time.Hour)}, times)
}

// =====================================================
// Messages
// =====================================================

func TestMessage(t *testing.T) {
	assert.Equal(t, Messages[0], Message(lowest))
	assert.Equal(t, Messages[len(Messages)-1], Message(highest))
	assert.Contains(t, Messages, Message(nil))
}

func TestNewScheduler_nilSourceUsesDefault(t *testing.T) {
	s := NewScheduler(nil)
	assert.Len(t, s.Schedule(window("09:00", "21:00", 3), 1, midnight), 3)
}
