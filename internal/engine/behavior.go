package engine

import (
	"math"
	"time"

	"github.com/Kaiede/RPiLight-sub000/internal/light"
)

// UpdateKind is the refresh cadence a behavior asks for.
type UpdateKind int

const (
	UpdateStop UpdateKind = iota
	UpdateOneShot
	UpdateRepeating
)

func (k UpdateKind) String() string {
	switch k {
	case UpdateStop:
		return "stop"
	case UpdateOneShot:
		return "one-shot"
	case UpdateRepeating:
		return "repeating"
	default:
		return "unknown"
	}
}

// Update describes when the next refresh should happen.
type Update struct {
	Kind     UpdateKind
	At       time.Time
	Interval time.Duration
}

func StopUpdate() Update {
	return Update{Kind: UpdateStop}
}

func OneShot(at time.Time) Update {
	return Update{Kind: UpdateOneShot, At: at}
}

func Repeating(at time.Time, interval time.Duration) Update {
	return Update{Kind: UpdateRepeating, At: at, Interval: interval}
}

// BehaviorSegment is the controller wide window a behavior plans against.
type BehaviorSegment struct {
	Start time.Time
	End   time.Time
	Next  Update
}

// Host is the controller as seen from code running on its loop:
// behaviors and event sources.
type Host interface {
	Channels() []*ChannelController
	Channel(token string) (*ChannelController, bool)
	Gamma() light.Gamma
	// Reschedule recomputes the refresh timer once the current operation finishes.
	Reschedule()
	SetBehavior(b Behavior)
	RestorePrevious() bool
}

// Behavior decides how channels are refreshed and how often.
type Behavior interface {
	Name() string
	Refresh(h Host, now time.Time)
	Segment(h Host, now time.Time) BehaviorSegment
	NextUpdate(h Host, now time.Time) Update
}

const (
	// changeEpsilon is the smallest aggregate change worth refreshing for.
	changeEpsilon = 0.0001
	// targetSteps is the number of refreshes spread across a full 0..1 ramp.
	targetSteps = 4096
	minInterval = 10 * time.Millisecond
)

// DefaultBehavior refreshes just often enough to keep ramps smooth and
// sleeps through flat segments.
type DefaultBehavior struct{}

func NewDefaultBehavior() *DefaultBehavior {
	return &DefaultBehavior{}
}

func (b *DefaultBehavior) Name() string { return "default" }

func (b *DefaultBehavior) Refresh(h Host, now time.Time) {
	for _, channel := range h.Channels() {
		channel.Update(now)
	}
}

func (b *DefaultBehavior) Segment(h Host, now time.Time) BehaviorSegment {
	segment := aggregateSegment(h, now)
	return BehaviorSegment{
		Start: segment.Start,
		End:   segment.End,
		Next:  cadence(segment),
	}
}

func (b *DefaultBehavior) NextUpdate(h Host, now time.Time) Update {
	return cadence(aggregateSegment(h, now))
}

// aggregateSegment picks the most urgently changing channel.
func aggregateSegment(h Host, now time.Time) light.Segment {
	segment := light.Identity()
	for _, channel := range h.Channels() {
		segment = light.UnionByChannel(segment, channel.Segment(now))
	}
	return segment
}

func cadence(segment light.Segment) Update {
	magnitude := segment.Magnitude()
	if magnitude < changeEpsilon {
		return OneShot(segment.End)
	}

	duration := segment.Duration()
	if duration <= 0 {
		return OneShot(segment.End)
	}
	steps := math.Max(1, math.Round(magnitude*targetSteps))
	interval := time.Duration(float64(duration) / steps)
	if interval < minInterval {
		interval = minInterval
	}
	if interval > duration {
		interval = duration
	}
	return Repeating(segment.Start, interval)
}

const (
	// previewSpeed plays a full day in one real minute.
	previewSpeed    = 24 * 60
	previewDuration = time.Minute
	previewInterval = 10 * time.Millisecond
)

// PreviewBehavior replays a full day starting at midnight, accelerated so it
// finishes a minute after it first runs, then asks to stop.
type PreviewBehavior struct {
	started time.Time
}

func NewPreviewBehavior() *PreviewBehavior {
	return &PreviewBehavior{}
}

func (b *PreviewBehavior) Name() string { return "preview" }

func (b *PreviewBehavior) elapsed(now time.Time) time.Duration {
	if b.started.IsZero() {
		b.started = now
	}
	return now.Sub(b.started)
}

// SimulatedTime maps real time onto the accelerated day.
func (b *PreviewBehavior) SimulatedTime(now time.Time) time.Time {
	elapsed := b.elapsed(now)
	y, m, d := b.started.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, b.started.Location())
	return midnight.Add(elapsed * previewSpeed)
}

func (b *PreviewBehavior) Refresh(h Host, now time.Time) {
	simulated := b.SimulatedTime(now)
	for _, channel := range h.Channels() {
		channel.Update(simulated)
	}
	if b.elapsed(now) >= previewDuration {
		h.Reschedule()
	}
}

func (b *PreviewBehavior) Segment(h Host, now time.Time) BehaviorSegment {
	next := b.NextUpdate(h, now)
	end := b.started.Add(previewDuration)
	if next.Kind == UpdateStop {
		end = now
	}
	return BehaviorSegment{Start: now, End: end, Next: next}
}

func (b *PreviewBehavior) NextUpdate(h Host, now time.Time) Update {
	if b.elapsed(now) >= previewDuration {
		return StopUpdate()
	}
	return Repeating(now, previewInterval)
}
