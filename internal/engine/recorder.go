package engine

import (
	"time"

	"github.com/Kaiede/RPiLight-sub000/internal/light"
)

// Recorder receives controller activity for metrics export.
type Recorder interface {
	RefreshFired(behavior string)
	RefreshScheduled(kind UpdateKind, interval time.Duration)
	WatchdogFired(late bool, drift time.Duration)
	EventFired(token string)
	ChannelLevel(token string, b light.Brightness, i light.Intensity)
	SetRunning(running bool)
}

type nopRecorder struct{}

func (nopRecorder) RefreshFired(string)                                    {}
func (nopRecorder) RefreshScheduled(UpdateKind, time.Duration)             {}
func (nopRecorder) WatchdogFired(bool, time.Duration)                      {}
func (nopRecorder) EventFired(string)                                      {}
func (nopRecorder) ChannelLevel(string, light.Brightness, light.Intensity) {}
func (nopRecorder) SetRunning(bool)                                        {}
