package engine

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/Kaiede/RPiLight-sub000/internal/daytime"
	"github.com/Kaiede/RPiLight-sub000/internal/light"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func day(hour, minute, second int) time.Time {
	return time.Date(2024, time.June, 15, hour, minute, second, 0, time.UTC)
}

func kf(tod string, b light.Brightness) light.Keyframe {
	return light.Keyframe{Time: daytime.MustParse(tod), Brightness: b}
}

func dawnKeyframes() []light.Keyframe {
	return []light.Keyframe{
		kf("08:00:00", 0.0),
		kf("08:30:00", 0.25),
		kf("23:00:00", 0.0),
	}
}

// fakeChannel records everything written to it.
type fakeChannel struct {
	mu        sync.Mutex
	token     string
	min       light.Intensity
	minSet    bool
	intensity light.Intensity
	writes    int
}

func newFakeChannel(token string) *fakeChannel {
	return &fakeChannel{token: token}
}

func (f *fakeChannel) Token() string { return f.token }

func (f *fakeChannel) SetIntensity(i light.Intensity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.intensity = i
	f.writes++
}

func (f *fakeChannel) SetMinIntensity(i light.Intensity) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.min = i
	f.minSet = true
}

func (f *fakeChannel) Intensity() light.Intensity {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.intensity
}

// fakeClock only moves when told to.
type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	f       func()
	stopped bool
	fired   bool
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	pending := !t.stopped && !t.fired
	t.stopped = true
	return pending
}

// Set moves the clock without firing anything.
func (c *fakeClock) Set(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Advance moves the clock and fires every timer that became due, in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	pending := c.timers[:0]
	for _, t := range c.timers {
		switch {
		case t.stopped || t.fired:
		case !t.at.After(c.now):
			t.fired = true
			due = append(due, t)
		default:
			pending = append(pending, t)
		}
	}
	c.timers = pending
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

// countingEvent records how often it fired and optionally runs an action.
type countingEvent struct {
	mu      sync.Mutex
	token   string
	at      daytime.TimeOfDay
	onStart bool
	fired   []time.Time
	action  func(h Host, now time.Time)
}

func (e *countingEvent) Token() string           { return e.token }
func (e *countingEvent) Time() daytime.TimeOfDay { return e.at }
func (e *countingEvent) FiresOnStart() bool      { return e.onStart }

func (e *countingEvent) Fire(h Host, now time.Time) {
	e.mu.Lock()
	e.fired = append(e.fired, now)
	e.mu.Unlock()
	if e.action != nil {
		e.action(h, now)
	}
}

func (e *countingEvent) count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.fired)
}

// runController starts the loop and stops it when the test ends.
func runController(t *testing.T, c *LightController) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})
}

func status(t *testing.T, c *LightController) Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := c.Status(ctx)
	require.NoError(t, err)
	return st
}

// testHost drives behaviors outside a controller.
type testHost struct {
	channels    []*ChannelController
	reschedules int
	refreshes   int
	explicit    int
}

func (h *testHost) Channels() []*ChannelController { return h.channels }

func (h *testHost) Channel(token string) (*ChannelController, bool) {
	for _, cc := range h.channels {
		if cc.Token() == token {
			return cc, true
		}
	}
	return nil, false
}

func (h *testHost) Gamma() light.Gamma     { return light.DefaultGamma }
func (h *testHost) Reschedule()            { h.explicit++ }
func (h *testHost) SetBehavior(b Behavior) {}
func (h *testHost) RestorePrevious() bool  { return false }

func (h *testHost) requestReschedule(r bool) {
	h.reschedules++
	if r {
		h.refreshes++
	}
}

func (h *testHost) addChannel(t *testing.T, token string, keyframes []light.Keyframe) *fakeChannel {
	t.Helper()
	channel := newFakeChannel(token)
	cc := newChannelController(channel, light.DefaultGamma, h, nopRecorder{}, testLogger())
	if keyframes != nil {
		layer, err := light.NewLayer("schedule", keyframes)
		require.NoError(t, err)
		cc.layers[ScheduleLayer] = layer
	}
	h.channels = append(h.channels, cc)
	return channel
}
