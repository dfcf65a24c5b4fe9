package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/Kaiede/RPiLight-sub000/internal/daytime"
	"github.com/Kaiede/RPiLight-sub000/internal/light"
)

var (
	// ErrMissingToken is returned when a schedule names a channel that does not exist.
	ErrMissingToken = errors.New("unknown channel token")
	// ErrDuplicateToken is returned when two channels share a token.
	ErrDuplicateToken = errors.New("duplicate channel token")
	// ErrNoSchedulableEvent means every registered event failed to resolve.
	ErrNoSchedulableEvent = errors.New("no event can be scheduled")
	// ErrClosed is returned by queries once the controller loop has exited.
	ErrClosed = errors.New("light controller is not running its loop")
)

// lateTolerance is how far past its expected time a refresh may run before
// the watchdog reports it as late.
const lateTolerance = 100 * time.Millisecond

// ChannelSchedule is the daily schedule layer of one channel.
type ChannelSchedule struct {
	MinIntensity light.Intensity
	Keyframes    []light.Keyframe
}

// Options configures a LightController. Zero values select defaults.
type Options struct {
	Clock    Clock
	Logger   *slog.Logger
	Gamma    light.Gamma
	Recorder Recorder
	Behavior Behavior
}

// StopHandler is called once, on its own goroutine, when the controller stops.
// err is non-nil when the controller stopped because it could not continue.
type StopHandler func(c *LightController, err error)

// LightController drives every channel from a single loop goroutine.
// Exported methods enqueue work for that loop and return immediately.
type LightController struct {
	clock    Clock
	logger   *slog.Logger
	recorder Recorder
	gamma    light.Gamma
	host     loopHost

	commands chan func()
	done     chan struct{}

	// Everything below is owned by the loop.
	channels []*ChannelController
	byToken  map[string]*ChannelController
	events   map[string]EventSource

	behavior Behavior
	previous []Behavior

	running bool
	stopped bool

	refresh  *alarm
	watchdog *alarm
	event    *alarm

	refreshOneShot   bool
	refreshKind      UpdateKind
	watchdogInterval time.Duration
	lastRefresh      time.Time
	expectedBy       time.Time
	nextEventTokens  []string

	pendingRefresh    bool
	pendingReschedule bool

	stopHandler StopHandler
}

// New builds a controller for the given channels with their schedule layers.
// It fails without side effects when a schedule is invalid or names an
// unknown channel.
func New(channels []Channel, schedules map[string]ChannelSchedule, opts Options) (*LightController, error) {
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Gamma <= 0 {
		opts.Gamma = light.DefaultGamma
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}
	if opts.Behavior == nil {
		opts.Behavior = NewDefaultBehavior()
	}

	c := &LightController{
		clock:    opts.Clock,
		logger:   opts.Logger,
		recorder: opts.Recorder,
		gamma:    opts.Gamma,
		commands: make(chan func(), 64),
		done:     make(chan struct{}),
		byToken:  make(map[string]*ChannelController),
		events:   make(map[string]EventSource),
		behavior: opts.Behavior,
	}
	c.host = loopHost{c: c}
	c.refresh = newAlarm(c, "refresh", c.onRefresh)
	c.watchdog = newAlarm(c, "watchdog", c.onWatchdog)
	c.event = newAlarm(c, "event", c.onEvent)

	for _, channel := range channels {
		token := channel.Token()
		if _, exists := c.byToken[token]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateToken, token)
		}
		cc := newChannelController(channel, c.gamma, c, c.recorder, c.logger)
		c.byToken[token] = cc
		c.channels = append(c.channels, cc)
	}
	sort.Slice(c.channels, func(i, j int) bool { return c.channels[i].token < c.channels[j].token })

	layers := make(map[string]*light.Layer, len(schedules))
	for token, schedule := range schedules {
		if _, ok := c.byToken[token]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingToken, token)
		}
		layer, err := light.NewLayer(ScheduleLayer.String(), schedule.Keyframes)
		if err != nil {
			return nil, fmt.Errorf("failed to build schedule for channel %s: %w", token, err)
		}
		layers[token] = layer
	}

	for token, layer := range layers {
		cc := c.byToken[token]
		cc.layers[ScheduleLayer] = layer
		cc.channel.SetMinIntensity(schedules[token].MinIntensity)
	}

	return c, nil
}

// Run drains the command queue until ctx is cancelled. It must be called once.
func (c *LightController) Run(ctx context.Context) error {
	defer close(c.done)
	c.logger.Info("Light controller loop started", "channels", len(c.channels), "behavior", c.behavior.Name())

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			c.logger.Info("Light controller loop stopped")
			return nil
		case fn := <-c.commands:
			fn()
			c.flush()
		}
	}
}

func (c *LightController) post(fn func()) {
	select {
	case c.commands <- fn:
	case <-c.done:
	}
}

// Start begins refreshing channels and firing events.
func (c *LightController) Start() {
	c.post(c.start)
}

// Stop halts all timers and invokes the stop handler.
func (c *LightController) Stop() {
	c.post(func() { c.stopInternal(nil) })
}

// InvalidateRefreshTimer recomputes the refresh cadence from the active behavior.
func (c *LightController) InvalidateRefreshTimer() {
	c.post(func() { c.invalidate(c.now()) })
}

// SetEvent registers or replaces a daily event source.
func (c *LightController) SetEvent(source EventSource) {
	c.post(func() { c.setEvent(source) })
}

// RemoveEvent unregisters an event source by token.
func (c *LightController) RemoveEvent(token string) {
	c.post(func() {
		if _, ok := c.events[token]; !ok {
			return
		}
		delete(c.events, token)
		c.logger.Info("Event removed", "event", token)
		if c.running {
			c.scheduleEvents(c.now())
		}
	})
}

// Apply fires an event source once, without registering it.
func (c *LightController) Apply(source EventSource) {
	c.post(func() {
		if !c.running {
			c.logger.Warn("Ignoring event while stopped", "event", source.Token())
			return
		}
		c.fireEvent(source, c.now())
	})
}

// SetBehavior activates b on top of the current behavior.
func (c *LightController) SetBehavior(b Behavior) {
	c.post(func() { c.setBehavior(b) })
}

// RestorePreviousBehavior returns to the behavior active before the last SetBehavior.
func (c *LightController) RestorePreviousBehavior() {
	c.post(func() { c.restorePrevious() })
}

// SetStopHandler replaces the stop handler.
func (c *LightController) SetStopHandler(handler StopHandler) {
	c.post(func() { c.stopHandler = handler })
}

func (c *LightController) now() time.Time {
	return c.clock.Now()
}

func (c *LightController) start() {
	if c.running {
		c.logger.Warn("Light controller already running")
		return
	}
	if c.stopped {
		c.logger.Warn("Light controller cannot be restarted after stop")
		return
	}

	now := c.now()
	c.running = true
	c.refreshOneShot = true
	c.recorder.SetRunning(true)
	c.logger.Info("Light controller started", "behavior", c.behavior.Name(), "events", len(c.events))

	c.fireRefresh(now)
	for _, token := range c.eventTokens() {
		if source := c.events[token]; source.FiresOnStart() {
			c.fireEvent(source, now)
		}
	}
	c.scheduleEvents(now)
}

func (c *LightController) stopInternal(err error) {
	if !c.running {
		return
	}
	c.running = false
	c.stopped = true
	c.suspendAll()
	c.recorder.SetRunning(false)

	if err != nil {
		c.logger.Error("Light controller stopped", "error", err)
	} else {
		c.logger.Info("Light controller stopped")
	}

	if handler := c.stopHandler; handler != nil {
		go handler(c, err)
	}
}

func (c *LightController) shutdown() {
	c.suspendAll()
	if c.running {
		c.running = false
		c.recorder.SetRunning(false)
	}
}

func (c *LightController) suspendAll() {
	c.refresh.suspend()
	c.watchdog.suspend()
	c.event.suspend()
}

// requestReschedule is called by channels while the loop is busy. The work
// is done once the current command returns.
func (c *LightController) requestReschedule(refresh bool) {
	c.pendingReschedule = true
	if refresh {
		c.pendingRefresh = true
	}
}

func (c *LightController) flush() {
	for c.pendingRefresh || c.pendingReschedule {
		refresh := c.pendingRefresh
		c.pendingRefresh = false
		c.pendingReschedule = false
		if !c.running {
			return
		}

		now := c.now()
		if refresh {
			c.lastRefresh = now
			c.behavior.Refresh(c.host, now)
		}
		c.invalidate(now)
	}
}

func (c *LightController) fireRefresh(now time.Time) {
	c.lastRefresh = now
	if !c.refreshOneShot {
		c.expectedBy = now.Add(c.watchdogInterval)
	}
	c.recorder.RefreshFired(c.behavior.Name())
	c.behavior.Refresh(c.host, now)
	if c.refreshOneShot {
		c.pendingReschedule = true
	}
}

// invalidate asks the active behavior for its plan and re-arms the refresh
// and watchdog timers to match.
func (c *LightController) invalidate(now time.Time) {
	if !c.running {
		return
	}

	segment := c.behavior.Segment(c.host, now)
	next := segment.Next

	switch next.Kind {
	case UpdateStop:
		// A finished overlay hands control back instead of stopping.
		if len(c.previous) > 0 {
			c.restorePrevious()
			return
		}
		c.stopInternal(nil)
		return
	case UpdateOneShot:
		c.refreshOneShot = true
		if light.IsFinite(next.At) {
			c.refresh.arm(next.At, 0)
		} else {
			c.refresh.suspend()
		}
		c.watchdogInterval = next.At.Sub(now)
		c.expectedBy = next.At
	case UpdateRepeating:
		c.refreshOneShot = false
		c.refresh.arm(next.At, next.Interval)
		c.watchdogInterval = next.Interval
		c.expectedBy = now.Add(next.Interval)
		if next.At.After(now) {
			c.expectedBy = next.At
		}
	}
	c.refreshKind = next.Kind
	c.recorder.RefreshScheduled(next.Kind, next.Interval)

	if light.IsFinite(segment.End) {
		c.watchdog.arm(segment.End, 0)
	} else {
		c.watchdog.suspend()
	}

	c.logger.Debug("Refresh scheduled",
		"behavior", c.behavior.Name(),
		"kind", next.Kind.String(),
		"at", next.At,
		"interval", next.Interval,
		"segment_end", segment.End)
}

func (c *LightController) onRefresh(now, _ time.Time) {
	if !c.running {
		return
	}
	c.fireRefresh(now)
}

func (c *LightController) onWatchdog(now, _ time.Time) {
	if !c.running {
		return
	}
	drift := now.Sub(c.expectedBy)
	late := c.lastRefresh.Before(c.expectedBy) && drift > lateTolerance
	if late {
		c.logger.Warn("Refresh is late, rescheduling",
			"drift", drift,
			"expected_interval", c.watchdogInterval,
			"last_refresh", c.lastRefresh)
	} else {
		c.logger.Debug("Watchdog fired at segment end", "drift", drift)
	}
	c.recorder.WatchdogFired(late, drift)

	// Re-arming below discards a refresh due at the same deadline, so run
	// the one that was due and has not happened yet.
	if c.lastRefresh.Before(c.expectedBy) && !now.Before(c.expectedBy) {
		c.lastRefresh = now
		c.recorder.RefreshFired(c.behavior.Name())
		c.behavior.Refresh(c.host, now)
	}
	c.invalidate(now)
}

func (c *LightController) onEvent(now, deadline time.Time) {
	if !c.running {
		return
	}
	for _, token := range c.nextEventTokens {
		source, ok := c.events[token]
		if !ok {
			continue
		}
		c.fireEvent(source, now)
	}

	after := now
	if !after.After(deadline) {
		after = deadline.Add(time.Nanosecond)
	}
	c.scheduleEvents(after)
}

func (c *LightController) fireEvent(source EventSource, now time.Time) {
	c.logger.Info("Firing event", "event", source.Token(), "time", source.Time().String())
	c.recorder.EventFired(source.Token())
	source.Fire(c.host, now)
}

func (c *LightController) setEvent(source EventSource) {
	token := source.Token()
	c.events[token] = source
	c.logger.Info("Event registered", "event", token, "time", source.Time().String(), "fires_on_start", source.FiresOnStart())

	if !c.running {
		return
	}
	if source.FiresOnStart() {
		c.fireEvent(source, c.now())
	}
	c.scheduleEvents(c.now())
}

func (c *LightController) eventTokens() []string {
	tokens := make([]string, 0, len(c.events))
	for token := range c.events {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

// scheduleEvents arms the event timer for the nearest occurrence at or
// after the given instant.
func (c *LightController) scheduleEvents(after time.Time) {
	c.nextEventTokens = nil
	if len(c.events) == 0 {
		c.event.suspend()
		return
	}

	var next time.Time
	var tokens []string
	var lastErr error
	for _, token := range c.eventTokens() {
		at, err := c.events[token].Time().Resolve(after, daytime.Forward)
		if err != nil {
			c.logger.Error("Failed to schedule event", "event", token, "error", err)
			lastErr = err
			continue
		}
		switch {
		case tokens == nil || at.Before(next):
			next = at
			tokens = []string{token}
		case at.Equal(next):
			tokens = append(tokens, token)
		}
	}

	if tokens == nil {
		c.event.suspend()
		c.stopInternal(fmt.Errorf("%w: %v", ErrNoSchedulableEvent, lastErr))
		return
	}

	c.nextEventTokens = tokens
	c.event.arm(next, 0)
	c.logger.Debug("Next event scheduled", "events", tokens, "at", next)
}

func (c *LightController) setBehavior(b Behavior) {
	c.previous = append(c.previous, c.behavior)
	c.logger.Info("Behavior changed", "from", c.behavior.Name(), "to", b.Name(), "depth", len(c.previous))
	c.behavior = b
	c.pendingRefresh = true
	c.pendingReschedule = true
}

func (c *LightController) restorePrevious() bool {
	if len(c.previous) == 0 {
		c.logger.Warn("No previous behavior to restore", "behavior", c.behavior.Name())
		return false
	}
	last := len(c.previous) - 1
	restored := c.previous[last]
	c.previous = c.previous[:last]
	c.logger.Info("Behavior restored", "from", c.behavior.Name(), "to", restored.Name(), "depth", len(c.previous))
	c.behavior = restored
	c.pendingRefresh = true
	c.pendingReschedule = true
	return true
}

// loopHost exposes the controller to behaviors and event sources.
type loopHost struct {
	c *LightController
}

func (h loopHost) Channels() []*ChannelController { return h.c.channels }

func (h loopHost) Channel(token string) (*ChannelController, bool) {
	cc, ok := h.c.byToken[token]
	return cc, ok
}

func (h loopHost) Gamma() light.Gamma { return h.c.gamma }

func (h loopHost) Reschedule() { h.c.pendingReschedule = true }

func (h loopHost) SetBehavior(b Behavior) { h.c.setBehavior(b) }

func (h loopHost) RestorePrevious() bool { return h.c.restorePrevious() }
