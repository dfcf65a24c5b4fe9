package events

import (
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/Kaiede/RPiLight-sub000/internal/daytime"
	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/internal/light"
)

// StormToken identifies the storm event.
const StormToken = "storm"

// DefaultClouds is the number of cloud dips in a storm when none is configured.
const DefaultClouds = 3

// minCloudSpan keeps every keyframe of a dip on its own second.
const minCloudSpan = 4 * time.Second

// StormConfig describes the daily storm window.
type StormConfig struct {
	Start       daytime.TimeOfDay
	End         daytime.TimeOfDay
	Probability float64
	Depth       light.Brightness
	Clouds      int
	Seed        uint64
}

// Storm occasionally darkens a daily window with passing clouds. Whether a
// day has a storm is decided by a generator seeded with the day, so
// restarts within the same day produce the same weather.
type Storm struct {
	cfg    StormConfig
	forced bool
	logger *slog.Logger
}

// NewStorm builds the storm event.
func NewStorm(cfg StormConfig, logger *slog.Logger) *Storm {
	if cfg.Clouds <= 0 {
		cfg.Clouds = DefaultClouds
	}
	cfg.Depth = cfg.Depth.Clamp()
	cfg.Probability = min(max(cfg.Probability, 0), 1)
	return &Storm{cfg: cfg, logger: logger.With("event", StormToken)}
}

// Forced returns a copy of the storm that always happens.
func (s *Storm) Forced() *Storm {
	forced := *s
	forced.forced = true
	return &forced
}

func (s *Storm) Token() string           { return StormToken }
func (s *Storm) Time() daytime.TimeOfDay { return s.cfg.Start }
func (s *Storm) FiresOnStart() bool      { return true }

// Fire decides today's weather and installs or clears the storm layer.
func (s *Storm) Fire(h engine.Host, now time.Time) {
	windowStart, err := s.cfg.Start.Resolve(now, daytime.Backward)
	if err != nil {
		s.logger.Error("Unable to calculate when the storm window begins", "error", err)
		return
	}
	windowEnd, err := s.cfg.End.Resolve(windowStart, daytime.Forward)
	if err != nil {
		s.logger.Error("Unable to calculate when the storm window ends", "error", err)
		return
	}

	keyframes := s.Keyframes(windowStart, windowEnd)
	if keyframes == nil {
		s.logger.Info("No storm today", "window_start", windowStart)
		for _, cc := range h.Channels() {
			if cc.Layer(engine.StormLayer) != nil {
				cc.Set(engine.StormLayer, nil)
			}
		}
		return
	}

	s.logger.Info("Storm rolling in", "window_start", windowStart, "window_end", windowEnd, "keyframes", len(keyframes), "forced", s.forced)
	for _, cc := range h.Channels() {
		layer, err := light.NewLayer(engine.StormLayer.String(), keyframes)
		if err != nil {
			s.logger.Error("Failed to build storm layer", "channel", cc.Token(), "error", err)
			continue
		}
		cc.Set(engine.StormLayer, layer)
	}
}

// Keyframes returns the cloud dips for the window starting at windowStart,
// or nil when the day stays clear.
func (s *Storm) Keyframes(windowStart, windowEnd time.Time) []light.Keyframe {
	window := windowEnd.Sub(windowStart)
	if window <= 0 {
		return nil
	}

	year, month, dayOfMonth := windowStart.Date()
	dayKey := uint64(year)*10000 + uint64(month)*100 + uint64(dayOfMonth)
	r := rand.New(rand.NewPCG(s.cfg.Seed, dayKey))

	roll := r.Float64()
	if !s.forced && roll >= s.cfg.Probability {
		return nil
	}

	clouds := s.cfg.Clouds
	if limit := int(window / minCloudSpan); clouds > limit {
		clouds = limit
	}
	if clouds == 0 {
		return nil
	}

	slot := window / time.Duration(clouds)
	keyframes := make([]light.Keyframe, 0, 3*clouds)
	for i := 0; i < clouds; i++ {
		slotStart := windowStart.Add(time.Duration(i) * slot)

		// Each dip covers between 40% and 90% of its slot.
		span := time.Duration(float64(slot) * (0.4 + 0.5*r.Float64()))
		span = max(span, minCloudSpan)
		offset := time.Duration(float64(slot-span) * r.Float64())
		start := slotStart.Add(offset)
		peak := start.Add(span / 2)
		end := start.Add(span)

		factor := s.cfg.Depth + light.Brightness(r.Float64()*0.5)*(1-s.cfg.Depth)
		keyframes = append(keyframes,
			light.Keyframe{Time: daytime.FromTime(start), Brightness: 1.0},
			light.Keyframe{Time: daytime.FromTime(peak), Brightness: factor},
			light.Keyframe{Time: daytime.FromTime(end), Brightness: 1.0},
		)
	}
	return keyframes
}
