package engine

import "time"

// coalesceSlack is how early an alarm may fire instead of arming a
// sub-millisecond timer.
const coalesceSlack = time.Millisecond

// Clock supplies wall time and deferred callbacks to the controller.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancellable pending callback.
type Timer interface {
	Stop() bool
}

// SystemClock is the real wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// alarm fires a handler on the controller loop at a wall clock deadline,
// either once or periodically. It is owned by the loop.
type alarm struct {
	name  string
	owner *LightController
	fire  func(now, deadline time.Time)

	gen      uint64
	timer    Timer
	armed    bool
	deadline time.Time
	interval time.Duration
}

func newAlarm(owner *LightController, name string, fire func(now, deadline time.Time)) *alarm {
	return &alarm{name: name, owner: owner, fire: fire}
}

// arm replaces any pending schedule. A zero interval fires once.
func (a *alarm) arm(at time.Time, interval time.Duration) {
	a.suspend()
	a.armed = true
	a.deadline = at.Round(0)
	a.interval = interval
	a.start()
}

// suspend cancels the pending fire. Calling it again is harmless.
func (a *alarm) suspend() {
	a.gen++
	if a.timer != nil {
		a.timer.Stop()
		a.timer = nil
	}
	a.armed = false
}

func (a *alarm) start() {
	wait := a.deadline.Sub(a.owner.clock.Now().Round(0))
	if wait < coalesceSlack {
		wait = 0
	}
	gen := a.gen
	a.timer = a.owner.clock.AfterFunc(wait, func() {
		a.owner.post(func() { a.expire(gen) })
	})
}

// expire runs on the loop. Fires from a cancelled schedule are dropped.
func (a *alarm) expire(gen uint64) {
	if gen != a.gen || !a.armed {
		return
	}
	now := a.owner.clock.Now().Round(0)
	deadline := a.deadline

	if a.interval > 0 {
		next := deadline.Add(a.interval)
		if !next.After(now) {
			missed := now.Sub(deadline) / a.interval
			next = deadline.Add((missed + 1) * a.interval)
		}
		a.deadline = next
		a.start()
	} else {
		a.armed = false
		a.timer = nil
	}

	a.fire(now, deadline)
}

// next returns the pending deadline, or the zero time when idle.
func (a *alarm) next() time.Time {
	if !a.armed {
		return time.Time{}
	}
	return a.deadline
}
