package domain

import (
	"fmt"
	"strings"
	"time"
)

type SegmentKind int

const (
	SegmentWorkingTime SegmentKind = iota + 1
	SegmentBreak
)

func (k SegmentKind) String() string {
	switch k {
	case SegmentWorkingTime:
		return "WorkingTime"
	case SegmentBreak:
		return "Break"
	default:
		return fmt.Sprintf("SegmentKind(%d)", int(k))
	}
}

func (k SegmentKind) MarshalText() ([]byte, error) {
	if k != SegmentWorkingTime && k != SegmentBreak {
		return nil, fmt.Errorf("invalid segment kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *SegmentKind) UnmarshalText(b []byte) error {
	switch strings.ToLower(string(b)) {
	case "workingtime":
		*k = SegmentWorkingTime
	case "break":
		*k = SegmentBreak
	default:
		return fmt.Errorf("unknown segment kind %q", string(b))
	}
	return nil
}

type TimeSegment struct {
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
	Kind  SegmentKind `json:"kind"`
}

func (s TimeSegment) Duration() time.Duration { return s.End.Sub(s.Start) }

// TimeWindow is a half-open interval [Start, End). Segments, when present,
// are ordered, disjoint, and cover the window exactly.
type TimeWindow struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Segments []TimeSegment `json:"segments,omitempty"`
}

func (w TimeWindow) Duration() time.Duration { return w.End.Sub(w.Start) }

// Overlaps reports whether the two half-open intervals intersect.
func (w TimeWindow) Overlaps(start, end time.Time) bool {
	return w.Start.Before(end) && start.Before(w.End)
}

// WorkingHours sums the WorkingTime segments.
func (w TimeWindow) WorkingHours() float64 {
	var d time.Duration
	for _, s := range w.Segments {
		if s.Kind == SegmentWorkingTime {
			d += s.Duration()
		}
	}
	return d.Hours()
}
