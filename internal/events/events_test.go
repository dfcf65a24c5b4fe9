package events

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaiede/RPiLight-sub000/internal/daytime"
	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/internal/light"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func at(day, hour, minute, second int) time.Time {
	return time.Date(2024, time.June, day, hour, minute, second, 0, time.UTC)
}

type fixedMoon struct {
	fractions map[time.Time]float64
	fallback  float64
}

func (m fixedMoon) Illumination(t time.Time) float64 {
	if f, ok := m.fractions[t]; ok {
		return f
	}
	return m.fallback
}

type stillClock struct{ now time.Time }

func (c stillClock) Now() time.Time { return c.now }

func (c stillClock) AfterFunc(time.Duration, func()) engine.Timer { return stillTimer{} }

type stillTimer struct{}

func (stillTimer) Stop() bool { return true }

type sinkChannel struct {
	mu        sync.Mutex
	token     string
	intensity light.Intensity
}

func (s *sinkChannel) Token() string                   { return s.token }
func (s *sinkChannel) SetMinIntensity(light.Intensity) {}

func (s *sinkChannel) SetIntensity(i light.Intensity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intensity = i
}

func (s *sinkChannel) Intensity() light.Intensity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.intensity
}

// startController runs a controller frozen at now with one flat channel.
func startController(t *testing.T, now time.Time) (*engine.LightController, *sinkChannel) {
	t.Helper()
	channel := &sinkChannel{token: "white"}
	schedules := map[string]engine.ChannelSchedule{
		"white": {Keyframes: []light.Keyframe{
			{Time: daytime.MustParse("00:00"), Brightness: 0.5},
			{Time: daytime.MustParse("12:00"), Brightness: 0.5},
		}},
	}
	c, err := engine.New([]engine.Channel{channel}, schedules, engine.Options{
		Clock:  stillClock{now: now},
		Logger: testLogger(),
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- c.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-errCh)
	})

	c.Start()
	return c, channel
}

func status(t *testing.T, c *engine.LightController) engine.Status {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	st, err := c.Status(ctx)
	require.NoError(t, err)
	return st
}

func TestLunarLayerRampsIntoTheNight(t *testing.T) {
	layer, err := lunarLayer(at(15, 21, 0, 0), at(16, 6, 0, 0), 0.4, 0.2)
	require.NoError(t, err)

	frames := layer.Keyframes()
	require.Len(t, frames, 4)
	assert.Equal(t, "21:00:00", frames[0].Time.String())
	assert.Equal(t, "21:05:00", frames[1].Time.String())
	assert.Equal(t, "05:55:00", frames[2].Time.String())
	assert.Equal(t, "06:00:00", frames[3].Time.String())

	level, err := layer.LightLevel(at(15, 12, 0, 0))
	require.NoError(t, err)
	assert.Equal(t, light.Brightness(1.0), level, "daytime is untouched")

	level, err = layer.LightLevel(at(15, 21, 5, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.4, float64(level), 1e-9)

	level, err = layer.LightLevel(at(16, 1, 30, 0))
	require.NoError(t, err)
	assert.InDelta(t, 0.3, float64(level), 1e-9)
}

func TestLunarLayerShortNightSplitsTransition(t *testing.T) {
	layer, err := lunarLayer(at(15, 21, 0, 0), at(15, 21, 8, 0), 0.5, 0.5)
	require.NoError(t, err)

	frames := layer.Keyframes()
	assert.Equal(t, "21:04:00", frames[1].Time.String())
	assert.Equal(t, "21:04:00", frames[2].Time.String())
}

func TestLunarCycleSamplesNightBounds(t *testing.T) {
	moon := fixedMoon{fractions: map[time.Time]float64{
		at(15, 21, 0, 0): 0.25,
		at(16, 6, 0, 0):  0.25,
	}, fallback: 1}
	c, channel := startController(t, at(15, 23, 0, 0))

	cycle := NewLunarCycle(daytime.MustParse("21:00"), daytime.MustParse("06:00"), moon, testLogger())
	assert.Equal(t, LunarToken, cycle.Token())
	assert.True(t, cycle.FiresOnStart())
	c.Apply(cycle)

	st := status(t, c)
	require.Len(t, st.Channels, 1)
	assert.Equal(t, []string{"schedule", "lunar"}, st.Channels[0].Layers)

	want := light.Brightness(0.5).Intensity(light.DefaultGamma) * 0.25
	assert.InDelta(t, float64(want), float64(channel.Intensity()), 1e-9)
}

func TestLunarCycleIgnoresEmptyNight(t *testing.T) {
	c, _ := startController(t, at(15, 23, 0, 0))
	c.Apply(NewLunarCycle(daytime.MustParse("21:00"), daytime.MustParse("21:00"), fixedMoon{}, testLogger()))

	st := status(t, c)
	assert.Equal(t, []string{"schedule"}, st.Channels[0].Layers)
}

func newTestStorm(probability float64) *Storm {
	return NewStorm(StormConfig{
		Start:       daytime.MustParse("14:00"),
		End:         daytime.MustParse("16:00"),
		Probability: probability,
		Depth:       0.3,
		Clouds:      4,
		Seed:        42,
	}, testLogger())
}

func TestStormKeyframesStayInWindow(t *testing.T) {
	storm := newTestStorm(0).Forced()
	start, end := at(15, 14, 0, 0), at(15, 16, 0, 0)

	frames := storm.Keyframes(start, end)
	require.Len(t, frames, 12)

	previous := -1
	for i, frame := range frames {
		seconds := frame.Time.Seconds()
		assert.GreaterOrEqual(t, seconds, 14*3600, "keyframe %d", i)
		assert.LessOrEqual(t, seconds, 16*3600, "keyframe %d", i)
		assert.GreaterOrEqual(t, seconds, previous, "keyframe %d", i)
		previous = seconds

		if i%3 == 1 {
			assert.GreaterOrEqual(t, float64(frame.Brightness), 0.3)
			assert.Less(t, float64(frame.Brightness), 1.0)
		} else {
			assert.Equal(t, light.Brightness(1.0), frame.Brightness)
		}
	}
}

func TestStormIsDeterministicPerDay(t *testing.T) {
	storm := newTestStorm(0).Forced()
	first := storm.Keyframes(at(15, 14, 0, 0), at(15, 16, 0, 0))
	again := storm.Keyframes(at(15, 14, 0, 0), at(15, 16, 0, 0))
	tomorrow := storm.Keyframes(at(16, 14, 0, 0), at(16, 16, 0, 0))

	assert.Equal(t, first, again)
	assert.NotEqual(t, first, tomorrow)
}

func TestStormProbability(t *testing.T) {
	start, end := at(15, 14, 0, 0), at(15, 16, 0, 0)
	assert.Nil(t, newTestStorm(0).Keyframes(start, end))
	assert.NotNil(t, newTestStorm(1).Keyframes(start, end))
	assert.Nil(t, newTestStorm(1).Keyframes(end, start), "empty window")
}

func TestStormLimitsCloudsToWindow(t *testing.T) {
	storm := newTestStorm(1)
	frames := storm.Keyframes(at(15, 14, 0, 0), at(15, 14, 0, 8))
	assert.Len(t, frames, 6)
}

func TestStormInstallsAndClearsLayer(t *testing.T) {
	c, _ := startController(t, at(15, 14, 30, 0))

	c.Apply(newTestStorm(0).Forced())
	assert.Equal(t, []string{"schedule", "storm"}, status(t, c).Channels[0].Layers)

	c.Apply(newTestStorm(0))
	assert.Equal(t, []string{"schedule"}, status(t, c).Channels[0].Layers)
}
