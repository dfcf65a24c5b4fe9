package daytime

import (
	"errors"
	"fmt"
	"time"
)

// ErrUnresolvable is returned when a time of day cannot be placed on the
// requested side of a reference instant.
var ErrUnresolvable = errors.New("time of day cannot be resolved")

// Direction selects which occurrence Resolve searches for.
type Direction int

const (
	// Forward finds the nearest occurrence at or after the reference.
	Forward Direction = iota
	// Backward finds the nearest occurrence at or before the reference.
	Backward
)

func (d Direction) String() string {
	if d == Backward {
		return "backward"
	}
	return "forward"
}

// TimeOfDay is a recurring civil time, repeated every calendar day.
type TimeOfDay struct {
	hour   int
	minute int
	second int
}

// New builds a TimeOfDay, rejecting out of range components.
func New(hour, minute, second int) (TimeOfDay, error) {
	if hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("hour %d out of range [0,23]", hour)
	}
	if minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("minute %d out of range [0,59]", minute)
	}
	if second < 0 || second > 59 {
		return TimeOfDay{}, fmt.Errorf("second %d out of range [0,59]", second)
	}
	return TimeOfDay{hour: hour, minute: minute, second: second}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(s string) TimeOfDay {
	t, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return t
}

// Parse reads "HH:mm:ss" or "HH:mm".
func Parse(s string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04:05", "15:04"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return FromTime(parsed), nil
		}
	}
	return TimeOfDay{}, fmt.Errorf("failed to parse time of day %q: expected HH:mm:ss", s)
}

// FromTime takes the civil time of t in its own location, truncated to the second.
func FromTime(t time.Time) TimeOfDay {
	return TimeOfDay{hour: t.Hour(), minute: t.Minute(), second: t.Second()}
}

func (t TimeOfDay) Hour() int   { return t.hour }
func (t TimeOfDay) Minute() int { return t.minute }
func (t TimeOfDay) Second() int { return t.second }

// Seconds since midnight.
func (t TimeOfDay) Seconds() int {
	return t.hour*3600 + t.minute*60 + t.second
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", t.hour, t.minute, t.second)
}

// On places the time of day on the calendar day of ref, offset by days.
func (t TimeOfDay) On(ref time.Time, days int) time.Time {
	y, mo, d := ref.Date()
	return time.Date(y, mo, d+days, t.hour, t.minute, t.second, 0, ref.Location())
}

// Resolve returns the occurrence of t nearest to ref in the given direction.
// An exact match resolves to ref itself in both directions.
func (t TimeOfDay) Resolve(ref time.Time, dir Direction) (time.Time, error) {
	ref = ref.Round(0)
	candidate := t.On(ref, 0)

	switch dir {
	case Forward:
		if candidate.Before(ref) {
			candidate = t.On(ref, 1)
		}
		if candidate.Before(ref) {
			return time.Time{}, fmt.Errorf("%w: %s %s of %s", ErrUnresolvable, t, dir, ref)
		}
	case Backward:
		if candidate.After(ref) {
			candidate = t.On(ref, -1)
		}
		if candidate.After(ref) {
			return time.Time{}, fmt.Errorf("%w: %s %s of %s", ErrUnresolvable, t, dir, ref)
		}
	default:
		return time.Time{}, fmt.Errorf("%w: unknown direction %d", ErrUnresolvable, dir)
	}

	return candidate, nil
}
