package engine

import (
	"time"

	"github.com/Kaiede/RPiLight-sub000/internal/daytime"
)

// EventSource fires once a day at a fixed time of day, usually to install
// an overlay layer or switch behaviors.
type EventSource interface {
	Token() string
	Time() daytime.TimeOfDay
	FiresOnStart() bool
	Fire(h Host, now time.Time)
}
