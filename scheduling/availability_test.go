package scheduling

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"remanflow/domain"
)

// 2026-03-02 is a Monday.
func at(day, hour, minute int) time.Time {
	return time.Date(2026, 3, day, hour, minute, 0, 0, time.UTC)
}

func weekdayShop() WorkingHours {
	return WorkingHours{
		Location:    time.UTC,
		WorkStart:   Clock{Hour: 8},
		WorkEnd:     Clock{Hour: 17},
		Lunch:       &Break{Start: Clock{Hour: 12}, End: Clock{Hour: 13}},
		WorkingDays: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

func spans(segs []domain.TimeSegment) [][2]time.Time {
	out := make([][2]time.Time, len(segs))
	for i, s := range segs {
		out[i] = [2]time.Time{s.Start, s.End}
	}
	return out
}

func TestWorkingSegmentsSplitsAtLunch(t *testing.T) {
	segs := WorkingSegments(domain.TimeWindow{Start: at(2, 0, 0), End: at(3, 0, 0)}, weekdayShop())
	assert.Equal(t, [][2]time.Time{
		{at(2, 8, 0), at(2, 12, 0)},
		{at(2, 13, 0), at(2, 17, 0)},
	}, spans(segs))
}

func TestWorkingSegmentsSkipsWeekend(t *testing.T) {
	// Saturday 7th through Monday 9th 00:00.
	segs := WorkingSegments(domain.TimeWindow{Start: at(7, 0, 0), End: at(9, 0, 0)}, weekdayShop())
	assert.Empty(t, segs)
}

func TestWorkingSegmentsExtraBreaksAndClamping(t *testing.T) {
	wh := weekdayShop()
	wh.Breaks = []Break{{Start: Clock{Hour: 10}, End: Clock{Hour: 10, Minute: 15}}}

	segs := WorkingSegments(domain.TimeWindow{Start: at(2, 9, 0), End: at(3, 9, 30)}, wh)
	assert.Equal(t, [][2]time.Time{
		{at(2, 9, 0), at(2, 10, 0)},
		{at(2, 10, 15), at(2, 12, 0)},
		{at(2, 13, 0), at(2, 17, 0)},
		{at(3, 8, 0), at(3, 9, 30)},
	}, spans(segs))
}

func TestWorkingSegmentsAlwaysOpen(t *testing.T) {
	w := domain.TimeWindow{Start: at(7, 3, 0), End: at(8, 3, 0)}
	segs := WorkingSegments(w, WorkingHours{AlwaysOpen: true})
	assert.Equal(t, [][2]time.Time{{w.Start, w.End}}, spans(segs))
}

func TestSubtractBookingsSplitsMiddle(t *testing.T) {
	segs := WorkingSegments(domain.TimeWindow{Start: at(2, 0, 0), End: at(3, 0, 0)}, weekdayShop())
	free := SubtractBookings(segs, []Booking{
		{Start: at(2, 9, 0), End: at(2, 11, 0)},
		// spans lunch: only the working portions are consumed
		{Start: at(2, 11, 30), End: at(2, 13, 30)},
	})
	assert.Equal(t, [][2]time.Time{
		{at(2, 8, 0), at(2, 9, 0)},
		{at(2, 11, 0), at(2, 11, 30)},
		{at(2, 13, 30), at(2, 17, 0)},
	}, spans(free))
}

func TestComputeAvailableSlots(t *testing.T) {
	window := domain.TimeWindow{Start: at(2, 8, 0), End: at(2, 17, 0)}
	slots := ComputeAvailableSlots(window, 2, weekdayShop(), nil)

	var got [][2]time.Time
	for _, s := range slots {
		got = append(got, [2]time.Time{s.Start, s.End})
	}
	assert.Equal(t, [][2]time.Time{
		{at(2, 8, 0), at(2, 10, 0)},
		{at(2, 9, 0), at(2, 11, 0)},
		{at(2, 10, 0), at(2, 12, 0)},
		{at(2, 11, 0), at(2, 14, 0)},
		{at(2, 13, 0), at(2, 15, 0)},
		{at(2, 14, 0), at(2, 16, 0)},
		{at(2, 15, 0), at(2, 17, 0)},
	}, got)

	// the slot spanning lunch shows the break explicitly
	lunchSlot := slots[3]
	require.Len(t, lunchSlot.Segments, 3)
	assert.Equal(t, domain.SegmentWorkingTime, lunchSlot.Segments[0].Kind)
	assert.Equal(t, domain.SegmentBreak, lunchSlot.Segments[1].Kind)
	assert.Equal(t, at(2, 12, 0), lunchSlot.Segments[1].Start)
	assert.Equal(t, at(2, 13, 0), lunchSlot.Segments[1].End)
	assert.InDelta(t, 2.0, lunchSlot.WorkingHours(), 1e-9)
}

func TestComputeAvailableSlotsRespectsBookings(t *testing.T) {
	window := domain.TimeWindow{Start: at(2, 8, 0), End: at(2, 17, 0)}
	booked := []Booking{{Start: at(2, 8, 0), End: at(2, 16, 0)}}

	slots := ComputeAvailableSlots(window, 1, weekdayShop(), booked)
	require.Len(t, slots, 1)
	assert.Equal(t, at(2, 16, 0), slots[0].Start)
	assert.Equal(t, at(2, 17, 0), slots[0].End)
}

func TestComputeAvailableSlotsNoCapacity(t *testing.T) {
	window := domain.TimeWindow{Start: at(2, 8, 0), End: at(2, 17, 0)}
	booked := []Booking{{Start: at(2, 0, 0), End: at(3, 0, 0)}}

	slots := ComputeAvailableSlots(window, 1, weekdayShop(), booked)
	assert.Empty(t, slots)

	// more hours than the window holds
	assert.Empty(t, ComputeAvailableSlots(window, 9, weekdayShop(), nil))
}

func TestComputeAvailableSlotsZeroHours(t *testing.T) {
	window := domain.TimeWindow{Start: at(2, 8, 0), End: at(2, 17, 0)}
	slots := ComputeAvailableSlots(window, 0, weekdayShop(), nil)
	require.NotEmpty(t, slots)
	for _, s := range slots {
		assert.True(t, s.Start.Equal(s.End))
		assert.Empty(t, s.Segments)
	}
	assert.Equal(t, at(2, 8, 0), slots[0].Start)
}

func TestComputeAvailableSlotsAlwaysOpen(t *testing.T) {
	window := domain.TimeWindow{Start: at(7, 22, 0), End: at(8, 1, 0)}
	slots := ComputeAvailableSlots(window, 1, WorkingHours{AlwaysOpen: true}, nil)
	require.Len(t, slots, 3)
	assert.Equal(t, at(8, 0, 0), slots[2].Start)
	assert.Equal(t, at(8, 1, 0), slots[2].End)
}

func TestSlotSegmentsCoverSlotExactly(t *testing.T) {
	wh := weekdayShop()
	wh.Breaks = []Break{{Start: Clock{Hour: 15}, End: Clock{Hour: 15, Minute: 30}}}
	window := domain.TimeWindow{Start: at(2, 6, 0), End: at(5, 20, 0)}
	booked := []Booking{
		{Start: at(2, 9, 30), End: at(2, 10, 45)},
		{Start: at(3, 14, 0), End: at(4, 9, 0)},
	}

	for _, hours := range []float64{0.5, 3, 7.25, 12} {
		slots := ComputeAvailableSlots(window, hours, wh, booked)
		require.NotEmpty(t, slots, "hours=%v", hours)
		for _, s := range slots {
			require.NotEmpty(t, s.Segments)
			assert.Equal(t, s.Start, s.Segments[0].Start)
			assert.Equal(t, s.End, s.Segments[len(s.Segments)-1].End)
			for i := 1; i < len(s.Segments); i++ {
				assert.Equal(t, s.Segments[i-1].End, s.Segments[i].Start, "gap or overlap in slot %v", s.Start)
				assert.NotEqual(t, s.Segments[i-1].Kind, s.Segments[i].Kind)
			}
			assert.InDelta(t, hours, s.WorkingHours(), 1e-9)
			for _, seg := range s.Segments {
				if seg.Kind != domain.SegmentWorkingTime {
					continue
				}
				for _, b := range booked {
					assert.False(t, seg.Start.Before(b.End) && b.Start.Before(seg.End), "working segment overlaps booking")
				}
			}
		}
		for i := 1; i < len(slots); i++ {
			assert.False(t, slots[i].Start.Before(slots[i-1].Start))
		}
	}
}

func TestWorkingHoursValidate(t *testing.T) {
	assert.NoError(t, weekdayShop().Validate())
	assert.NoError(t, WorkingHours{AlwaysOpen: true}.Validate())

	inverted := weekdayShop()
	inverted.WorkEnd = Clock{Hour: 7}
	assert.Error(t, inverted.Validate())

	outside := weekdayShop()
	outside.Breaks = []Break{{Start: Clock{Hour: 18}, End: Clock{Hour: 19}}}
	assert.Error(t, outside.Validate())

	noDays := weekdayShop()
	noDays.WorkingDays = nil
	assert.Error(t, noDays.Validate())
}

func TestParseClockAndWeekday(t *testing.T) {
	c, err := ParseClock("07:45")
	require.NoError(t, err)
	assert.Equal(t, Clock{Hour: 7, Minute: 45}, c)
	_, err = ParseClock("25:00")
	assert.Error(t, err)

	d, err := ParseWeekday("tue")
	require.NoError(t, err)
	assert.Equal(t, time.Tuesday, d)
	_, err = ParseWeekday("someday")
	assert.Error(t, err)
}
