package events

import (
	"log/slog"
	"time"

	"github.com/sixdouglas/suncalc"

	"github.com/Kaiede/RPiLight-sub000/internal/daytime"
	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/internal/light"
)

// LunarToken identifies the lunar cycle event.
const LunarToken = "lunar"

// lunarTransition is how long the lights take to dim into and out of the night.
const lunarTransition = 5 * time.Minute

// Illuminator reports the illuminated fraction of the moon at an instant.
type Illuminator interface {
	Illumination(t time.Time) float64
}

// MoonPhase computes moon illumination with suncalc.
type MoonPhase struct{}

func (MoonPhase) Illumination(t time.Time) float64 {
	return suncalc.GetMoonIllumination(t).Fraction
}

// LunarCycle dims every channel at night in proportion to the moon phase.
type LunarCycle struct {
	start  daytime.TimeOfDay
	end    daytime.TimeOfDay
	moon   Illuminator
	logger *slog.Logger
}

// NewLunarCycle builds the lunar event for a night running from start to end.
func NewLunarCycle(start, end daytime.TimeOfDay, moon Illuminator, logger *slog.Logger) *LunarCycle {
	if moon == nil {
		moon = MoonPhase{}
	}
	return &LunarCycle{
		start:  start,
		end:    end,
		moon:   moon,
		logger: logger.With("event", LunarToken),
	}
}

func (l *LunarCycle) Token() string           { return LunarToken }
func (l *LunarCycle) Time() daytime.TimeOfDay { return l.start }
func (l *LunarCycle) FiresOnStart() bool      { return true }

// Fire installs tonight's lunar layer on every channel.
func (l *LunarCycle) Fire(h engine.Host, now time.Time) {
	nightStart, err := l.start.Resolve(now, daytime.Backward)
	if err != nil {
		l.logger.Error("Unable to calculate when lunar night begins", "error", err)
		return
	}
	nightEnd, err := l.end.Resolve(nightStart, daytime.Forward)
	if err != nil {
		l.logger.Error("Unable to calculate when lunar night ends", "error", err)
		return
	}
	if !nightEnd.After(nightStart) {
		l.logger.Warn("Lunar night has no length, skipping", "start", l.start.String(), "end", l.end.String())
		return
	}

	startFactor := light.Intensity(l.moon.Illumination(nightStart)).Clamp()
	endFactor := light.Intensity(l.moon.Illumination(nightEnd)).Clamp()
	l.logger.Info("Lunar night period",
		"start", nightStart,
		"end", nightEnd,
		"illumination_start", float64(startFactor),
		"illumination_end", float64(endFactor))

	for _, cc := range h.Channels() {
		gamma := cc.Gamma()
		layer, err := lunarLayer(nightStart, nightEnd, startFactor.Brightness(gamma), endFactor.Brightness(gamma))
		if err != nil {
			l.logger.Error("Failed to build lunar layer", "channel", cc.Token(), "error", err)
			continue
		}
		cc.Set(engine.LunarLayer, layer)
	}
}

// lunarLayer ramps from full brightness down to the moonlit factor at the
// start of the night and back up at its end.
func lunarLayer(nightStart, nightEnd time.Time, startFactor, endFactor light.Brightness) (*light.Layer, error) {
	transition := lunarTransition
	if night := nightEnd.Sub(nightStart); night <= 2*lunarTransition {
		transition = night / 2
	}

	return light.NewLayer(engine.LunarLayer.String(), []light.Keyframe{
		{Time: daytime.FromTime(nightStart), Brightness: 1.0},
		{Time: daytime.FromTime(nightStart.Add(transition)), Brightness: startFactor},
		{Time: daytime.FromTime(nightEnd.Add(-transition)), Brightness: endFactor},
		{Time: daytime.FromTime(nightEnd), Brightness: 1.0},
	})
}
