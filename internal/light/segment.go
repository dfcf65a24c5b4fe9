package light

import (
	"fmt"
	"math"
	"time"
)

var (
	// DistantPast and DistantFuture bound segments that never change.
	DistantPast   = time.Date(1, time.January, 1, 0, 0, 0, 0, time.UTC)
	DistantFuture = time.Date(9999, time.December, 31, 23, 59, 59, 0, time.UTC)
)

// IsFinite reports whether t lies strictly between DistantPast and DistantFuture.
func IsFinite(t time.Time) bool {
	return t.After(DistantPast) && t.Before(DistantFuture)
}

// Segment is a brightness ramp between two concrete instants.
type Segment struct {
	StartBrightness Brightness
	EndBrightness   Brightness
	Start           time.Time
	End             time.Time
}

// Identity is the neutral element of UnionByLayer: full brightness, forever.
func Identity() Segment {
	return Segment{
		StartBrightness: 1.0,
		EndBrightness:   1.0,
		Start:           DistantPast,
		End:             DistantFuture,
	}
}

// Delta is the signed change in brightness across the segment.
func (s Segment) Delta() float64 {
	return float64(s.EndBrightness - s.StartBrightness)
}

// Magnitude is |Delta|.
func (s Segment) Magnitude() float64 {
	return math.Abs(s.Delta())
}

func (s Segment) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Contains reports whether t is in [Start, End).
func (s Segment) Contains(t time.Time) bool {
	return !t.Before(s.Start) && t.Before(s.End)
}

// Interpolate returns the linear brightness at t, holding the end values
// outside the window.
func (s Segment) Interpolate(t time.Time) Brightness {
	if !t.After(s.Start) {
		return s.StartBrightness
	}
	if !t.Before(s.End) {
		return s.EndBrightness
	}

	total := s.End.Sub(s.Start).Seconds()
	if total <= 0 {
		return s.EndBrightness
	}
	factor := clamp01(t.Sub(s.Start).Seconds() / total)
	return s.StartBrightness + Brightness(factor*s.Delta())
}

// LightLevel interpolates and then bounds the result to the segment's own range.
func (s Segment) LightLevel(t time.Time) Brightness {
	lo := math.Min(float64(s.StartBrightness), float64(s.EndBrightness))
	hi := math.Max(float64(s.StartBrightness), float64(s.EndBrightness))
	return Brightness(math.Min(math.Max(float64(s.Interpolate(t)), lo), hi))
}

func (s Segment) String() string {
	return fmt.Sprintf("[%s %.4f -> %s %.4f]",
		s.Start.Format(time.RFC3339), float64(s.StartBrightness),
		s.End.Format(time.RFC3339), float64(s.EndBrightness))
}

func intersect(a, b Segment) (time.Time, time.Time) {
	start, end := a.Start, a.End
	if b.Start.After(start) {
		start = b.Start
	}
	if b.End.Before(end) {
		end = b.End
	}
	return start, end
}

// UnionByLayer stacks two layers of the same channel. The window is the
// intersection and each bound is the product of both inputs at that bound.
func UnionByLayer(a, b Segment) Segment {
	start, end := intersect(a, b)
	return Segment{
		StartBrightness: a.Interpolate(start) * b.Interpolate(start),
		EndBrightness:   a.Interpolate(end) * b.Interpolate(end),
		Start:           start,
		End:             end,
	}
}

// UnionByChannel keeps whichever input changes the most across its own span,
// restricted to the intersected window. Ties keep a.
func UnionByChannel(a, b Segment) Segment {
	start, end := intersect(a, b)
	chosen := a
	if b.Magnitude() > a.Magnitude() {
		chosen = b
	}
	return Segment{
		StartBrightness: chosen.Interpolate(start),
		EndBrightness:   chosen.Interpolate(end),
		Start:           start,
		End:             end,
	}
}
