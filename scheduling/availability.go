package scheduling

import (
	"sort"
	"time"

	"remanflow/domain"
)

// ComputeAvailableSlots returns every distinct slot inside window that holds
// requiredHours of free working time, sorted by start. Each slot carries its
// full WorkingTime/Break decomposition. No capacity yields an empty result.
func ComputeAvailableSlots(window domain.TimeWindow, requiredHours float64, wh WorkingHours, booked []Booking) []domain.TimeWindow {
	if !window.End.After(window.Start) || requiredHours < 0 {
		return nil
	}

	free := SubtractBookings(WorkingSegments(window, wh), booked)
	if len(free) == 0 {
		return nil
	}

	required := time.Duration(requiredHours * float64(time.Hour))
	type key struct{ start, end int64 }
	seen := make(map[key]bool)
	var slots []domain.TimeWindow

	for cursor := window.Start; cursor.Before(window.End); cursor = cursor.Add(time.Hour) {
		start, end, ok := accumulate(free, cursor, required)
		if !ok {
			continue
		}
		k := key{start.UnixNano(), end.UnixNano()}
		if seen[k] {
			continue
		}
		seen[k] = true
		slots = append(slots, domain.TimeWindow{Start: start, End: end})
	}

	sort.Slice(slots, func(i, j int) bool {
		if slots[i].Start.Equal(slots[j].Start) {
			return slots[i].End.Before(slots[j].End)
		}
		return slots[i].Start.Before(slots[j].Start)
	})

	for i := range slots {
		slots[i].Segments = Decompose(slots[i].Start, slots[i].End, free)
	}
	return slots
}

// accumulate walks the free segments from cursor until required working time
// has been collected. Free segments never extend past the requested window.
func accumulate(free []domain.TimeSegment, cursor time.Time, required time.Duration) (time.Time, time.Time, bool) {
	var start time.Time
	started := false
	remaining := required

	for _, seg := range free {
		if !seg.End.After(cursor) {
			continue
		}
		from := seg.Start
		if from.Before(cursor) {
			from = cursor
		}
		if !started {
			start = from
			started = true
			if remaining == 0 {
				return start, start, true
			}
		}
		avail := seg.End.Sub(from)
		if avail >= remaining {
			return start, from.Add(remaining), true
		}
		remaining -= avail
	}
	return time.Time{}, time.Time{}, false
}

// WorkingSegments splits window into maximal contiguous working periods.
func WorkingSegments(window domain.TimeWindow, wh WorkingHours) []domain.TimeSegment {
	if !window.End.After(window.Start) {
		return nil
	}
	if wh.AlwaysOpen {
		return []domain.TimeSegment{{Start: window.Start, End: window.End, Kind: domain.SegmentWorkingTime}}
	}

	loc := wh.location()
	breaks := wh.breaks()
	first := window.Start.In(loc)
	day := time.Date(first.Year(), first.Month(), first.Day(), 0, 0, 0, 0, loc)

	var segs []domain.TimeSegment
	for day.Before(window.End) {
		if wh.works(day.Weekday()) {
			dayStart := maxTime(wh.WorkStart.on(day), window.Start)
			dayEnd := minTime(wh.WorkEnd.on(day), window.End)
			if dayStart.Before(dayEnd) {
				segs = append(segs, cutBreaks(day, dayStart, dayEnd, breaks)...)
			}
		}
		day = time.Date(day.Year(), day.Month(), day.Day()+1, 0, 0, 0, 0, loc)
	}
	return segs
}

func cutBreaks(day, dayStart, dayEnd time.Time, breaks []Break) []domain.TimeSegment {
	var segs []domain.TimeSegment
	t := dayStart
	for _, b := range breaks {
		bs, be := b.Start.on(day), b.End.on(day)
		if !be.After(t) {
			continue
		}
		if !bs.Before(dayEnd) {
			break
		}
		if bs.After(t) {
			segs = append(segs, domain.TimeSegment{Start: t, End: bs, Kind: domain.SegmentWorkingTime})
		}
		t = maxTime(t, be)
	}
	if t.Before(dayEnd) {
		segs = append(segs, domain.TimeSegment{Start: t, End: dayEnd, Kind: domain.SegmentWorkingTime})
	}
	return segs
}

// SubtractBookings removes the booked portions of each working segment. A
// booking inside a segment splits it in two.
func SubtractBookings(segs []domain.TimeSegment, booked []Booking) []domain.TimeSegment {
	free := append([]domain.TimeSegment(nil), segs...)
	for _, b := range booked {
		if !b.End.After(b.Start) {
			continue
		}
		next := make([]domain.TimeSegment, 0, len(free)+1)
		for _, s := range free {
			if !(s.Start.Before(b.End) && b.Start.Before(s.End)) {
				next = append(next, s)
				continue
			}
			if b.Start.After(s.Start) {
				next = append(next, domain.TimeSegment{Start: s.Start, End: b.Start, Kind: domain.SegmentWorkingTime})
			}
			if b.End.Before(s.End) {
				next = append(next, domain.TimeSegment{Start: b.End, End: s.End, Kind: domain.SegmentWorkingTime})
			}
		}
		free = next
	}
	return free
}

// Decompose covers [start, end) with WorkingTime segments where free time
// exists and Break segments in the gaps.
func Decompose(start, end time.Time, free []domain.TimeSegment) []domain.TimeSegment {
	if !end.After(start) {
		return nil
	}
	var out []domain.TimeSegment
	t := start
	for _, f := range free {
		if !f.End.After(t) || !f.Start.Before(end) {
			continue
		}
		s := maxTime(f.Start, t)
		e := minTime(f.End, end)
		if s.After(t) {
			out = append(out, domain.TimeSegment{Start: t, End: s, Kind: domain.SegmentBreak})
		}
		out = append(out, domain.TimeSegment{Start: s, End: e, Kind: domain.SegmentWorkingTime})
		t = e
	}
	if t.Before(end) {
		out = append(out, domain.TimeSegment{Start: t, End: end, Kind: domain.SegmentBreak})
	}
	return out
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
