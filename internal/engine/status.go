package engine

import (
	"context"
	"time"
)

// Status is a point in time snapshot of the controller.
type Status struct {
	Running         bool            `json:"running"`
	Behavior        string          `json:"behavior"`
	BehaviorDepth   int             `json:"behavior_depth"`
	RefreshKind     string          `json:"refresh_kind"`
	NextRefresh     time.Time       `json:"next_refresh"`
	RefreshInterval time.Duration   `json:"refresh_interval_ns"`
	LastRefresh     time.Time       `json:"last_refresh"`
	Watchdog        time.Time       `json:"watchdog"`
	NextEvent       time.Time       `json:"next_event"`
	NextEvents      []string        `json:"next_events"`
	Channels        []ChannelStatus `json:"channels"`
}

// Status queries the loop for a snapshot. It must not be called from a
// behavior or event source.
func (c *LightController) Status(ctx context.Context) (Status, error) {
	reply := make(chan Status, 1)

	select {
	case c.commands <- func() { reply <- c.snapshot() }:
	case <-c.done:
		return Status{}, ErrClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}

	select {
	case st := <-reply:
		return st, nil
	case <-c.done:
		return Status{}, ErrClosed
	case <-ctx.Done():
		return Status{}, ctx.Err()
	}
}

func (c *LightController) snapshot() Status {
	st := Status{
		Running:       c.running,
		Behavior:      c.behavior.Name(),
		BehaviorDepth: len(c.previous),
		LastRefresh:   c.lastRefresh,
		NextRefresh:   c.refresh.next(),
		Watchdog:      c.watchdog.next(),
		NextEvent:     c.event.next(),
		NextEvents:    append([]string(nil), c.nextEventTokens...),
		Channels:      make([]ChannelStatus, 0, len(c.channels)),
	}
	if c.running {
		st.RefreshKind = c.refreshKind.String()
		if c.refreshKind == UpdateRepeating {
			st.RefreshInterval = c.refresh.interval
		}
	}
	for _, cc := range c.channels {
		st.Channels = append(st.Channels, cc.status())
	}
	return st
}
