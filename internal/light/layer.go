package light

import (
	"errors"
	"fmt"
	"time"

	"github.com/Kaiede/RPiLight-sub000/internal/daytime"
)

// ErrTooFewKeyframes is returned when a layer has fewer than two keyframes.
var ErrTooFewKeyframes = errors.New("layer needs at least two keyframes")

// Keyframe pins a brightness to a time of day.
type Keyframe struct {
	Time       daytime.TimeOfDay
	Brightness Brightness
}

// Layer is a daily brightness curve through its keyframes. The keyframe
// list is cyclic: the last keyframe ramps into the first one of the next day.
type Layer struct {
	name      string
	keyframes []Keyframe

	activeIndex int
	active      Segment
	cached      bool
}

// NewLayer copies the keyframes into a new layer.
func NewLayer(name string, keyframes []Keyframe) (*Layer, error) {
	if len(keyframes) < 2 {
		return nil, fmt.Errorf("layer %q: %w", name, ErrTooFewKeyframes)
	}
	frames := make([]Keyframe, len(keyframes))
	copy(frames, keyframes)
	return &Layer{name: name, keyframes: frames, activeIndex: -1}, nil
}

func (l *Layer) Name() string { return l.name }

// Keyframes returns a copy of the layer's keyframes.
func (l *Layer) Keyframes() []Keyframe {
	frames := make([]Keyframe, len(l.keyframes))
	copy(frames, l.keyframes)
	return frames
}

// ActiveIndex is the start keyframe of the cached segment, -1 before first use.
func (l *Layer) ActiveIndex() int { return l.activeIndex }

// Segment resolves the keyframe pair in force at t without touching the cache.
func (l *Layer) Segment(t time.Time) (Segment, error) {
	_, segment, err := l.resolve(t)
	return segment, err
}

// LightLevel returns the brightness at t, refreshing the cached segment when
// t has left it.
func (l *Layer) LightLevel(t time.Time) (Brightness, error) {
	if !l.cached || !l.active.Contains(t) {
		index, segment, err := l.resolve(t)
		if err != nil {
			return 0, err
		}
		l.activeIndex = index
		l.active = segment
		l.cached = true
	}
	return l.active.LightLevel(t), nil
}

func (l *Layer) resolve(t time.Time) (int, Segment, error) {
	index := -1
	var start time.Time
	for i, frame := range l.keyframes {
		occurred, err := frame.Time.Resolve(t, daytime.Backward)
		if err != nil {
			return 0, Segment{}, fmt.Errorf("layer %q keyframe %d: %w", l.name, i, err)
		}
		// Later keyframes win ties so zero length pairs are skipped.
		if index < 0 || !occurred.Before(start) {
			index = i
			start = occurred
		}
	}

	next := l.keyframes[(index+1)%len(l.keyframes)]
	end, err := next.Time.Resolve(start, daytime.Forward)
	if err != nil {
		return 0, Segment{}, fmt.Errorf("layer %q keyframe %d: %w", l.name, index, err)
	}
	if !end.After(start) {
		// Only a single distinct time remains: hold until the same time tomorrow.
		end = next.Time.On(start, 1)
	}

	return index, Segment{
		StartBrightness: l.keyframes[index].Brightness,
		EndBrightness:   next.Brightness,
		Start:           start,
		End:             end,
	}, nil
}
