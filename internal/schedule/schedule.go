// Package schedule loads the daily lighting schedule and turns it into
// controller layers and events.
package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/Kaiede/RPiLight-sub000/internal/daytime"
	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/internal/events"
	"github.com/Kaiede/RPiLight-sub000/internal/light"
	"github.com/Kaiede/RPiLight-sub000/pkg/config"
)

// ErrInvalidSchedule wraps every validation failure.
var ErrInvalidSchedule = errors.New("invalid schedule")

// File is the on-disk schedule document.
type File struct {
	LunarCycle *LunarCycle        `yaml:"lunarCycle,omitempty" json:"lunarCycle,omitempty"`
	Storm      *Storm             `yaml:"storm,omitempty" json:"storm,omitempty"`
	Channels   map[string]Channel `yaml:"channels" json:"channels"`
}

// LunarCycle is the nightly window dimmed by the moon phase.
type LunarCycle struct {
	Start string `yaml:"start" json:"start"`
	End   string `yaml:"end" json:"end"`
}

// Storm is the daily window in which a storm may roll through.
type Storm struct {
	Start       string  `yaml:"start" json:"start"`
	End         string  `yaml:"end" json:"end"`
	Probability float64 `yaml:"probability" json:"probability"`
	Depth       float64 `yaml:"depth" json:"depth"`
	Clouds      int     `yaml:"clouds,omitempty" json:"clouds,omitempty"`
	Seed        uint64  `yaml:"seed,omitempty" json:"seed,omitempty"`
}

// Channel is the schedule of one output channel.
type Channel struct {
	MinIntensity float64 `yaml:"minIntensity,omitempty" json:"minIntensity,omitempty"`
	Schedule     []Point `yaml:"schedule" json:"schedule"`
}

// Point sets either a brightness or an intensity at a time of day.
type Point struct {
	Time       string   `yaml:"time" json:"time"`
	Brightness *float64 `yaml:"brightness,omitempty" json:"brightness,omitempty"`
	Intensity  *float64 `yaml:"intensity,omitempty" json:"intensity,omitempty"`
}

// Load reads and validates a schedule file.
func Load(path string) (*File, error) {
	var f File
	if err := config.LoadFile(path, &f); err != nil {
		return nil, err
	}
	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &f, nil
}

// Validate checks the whole document and reports the first problem found.
func (f *File) Validate() error {
	if len(f.Channels) == 0 {
		return fmt.Errorf("%w: no channels scheduled", ErrInvalidSchedule)
	}
	for _, token := range f.Tokens() {
		if err := f.Channels[token].validate(); err != nil {
			return fmt.Errorf("%w: channel %s: %v", ErrInvalidSchedule, token, err)
		}
	}

	if lc := f.LunarCycle; lc != nil {
		if _, _, err := window(lc.Start, lc.End); err != nil {
			return fmt.Errorf("%w: lunarCycle: %v", ErrInvalidSchedule, err)
		}
	}

	if s := f.Storm; s != nil {
		if _, _, err := window(s.Start, s.End); err != nil {
			return fmt.Errorf("%w: storm: %v", ErrInvalidSchedule, err)
		}
		if !unit(s.Probability) {
			return fmt.Errorf("%w: storm: probability %v out of range [0,1]", ErrInvalidSchedule, s.Probability)
		}
		if !unit(s.Depth) {
			return fmt.Errorf("%w: storm: depth %v out of range [0,1]", ErrInvalidSchedule, s.Depth)
		}
		if s.Clouds < 0 {
			return fmt.Errorf("%w: storm: clouds must not be negative", ErrInvalidSchedule)
		}
	}
	return nil
}

// Tokens lists the scheduled channels in sorted order.
func (f *File) Tokens() []string {
	tokens := make([]string, 0, len(f.Channels))
	for token := range f.Channels {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}

func (c Channel) validate() error {
	if !unit(c.MinIntensity) {
		return fmt.Errorf("minIntensity %v out of range [0,1]", c.MinIntensity)
	}
	if len(c.Schedule) < 2 {
		return fmt.Errorf("schedule needs at least two points, got %d", len(c.Schedule))
	}

	previous := -1
	for i, p := range c.Schedule {
		tod, err := daytime.Parse(p.Time)
		if err != nil {
			return fmt.Errorf("point %d: %w", i, err)
		}
		if tod.Seconds() <= previous {
			return fmt.Errorf("point %d: time %s is not after the previous point", i, p.Time)
		}
		previous = tod.Seconds()

		switch {
		case p.Brightness != nil && p.Intensity != nil:
			return fmt.Errorf("point %d: only one of brightness or intensity allowed", i)
		case p.Brightness != nil:
			if !unit(*p.Brightness) {
				return fmt.Errorf("point %d: brightness %v out of range [0,1]", i, *p.Brightness)
			}
		case p.Intensity != nil:
			if !unit(*p.Intensity) {
				return fmt.Errorf("point %d: intensity %v out of range [0,1]", i, *p.Intensity)
			}
		default:
			return fmt.Errorf("point %d: brightness or intensity required", i)
		}
	}
	return nil
}

// Build converts every channel schedule into keyframes, translating
// intensity points through gamma.
func (f *File) Build(gamma light.Gamma) (map[string]engine.ChannelSchedule, error) {
	schedules := make(map[string]engine.ChannelSchedule, len(f.Channels))
	for token, channel := range f.Channels {
		keyframes := make([]light.Keyframe, 0, len(channel.Schedule))
		for i, p := range channel.Schedule {
			tod, err := daytime.Parse(p.Time)
			if err != nil {
				return nil, fmt.Errorf("channel %s point %d: %w", token, i, err)
			}
			keyframes = append(keyframes, light.Keyframe{Time: tod, Brightness: p.brightness(gamma)})
		}
		schedules[token] = engine.ChannelSchedule{
			MinIntensity: light.Intensity(channel.MinIntensity),
			Keyframes:    keyframes,
		}
	}
	return schedules, nil
}

func (p Point) brightness(gamma light.Gamma) light.Brightness {
	if p.Intensity != nil {
		return light.Intensity(*p.Intensity).Brightness(gamma)
	}
	if p.Brightness != nil {
		return light.Brightness(*p.Brightness)
	}
	return 0
}

// Events builds the event sources described by the file.
func (f *File) Events(moon events.Illuminator, logger *slog.Logger) ([]engine.EventSource, error) {
	var sources []engine.EventSource

	if lc := f.LunarCycle; lc != nil {
		start, end, err := window(lc.Start, lc.End)
		if err != nil {
			return nil, fmt.Errorf("lunarCycle: %w", err)
		}
		sources = append(sources, events.NewLunarCycle(start, end, moon, logger))
	}

	if s := f.Storm; s != nil {
		storm, err := f.StormEvent(logger)
		if err != nil {
			return nil, err
		}
		sources = append(sources, storm)
	}

	return sources, nil
}

// StormEvent builds the storm event, or returns nil when none is configured.
func (f *File) StormEvent(logger *slog.Logger) (*events.Storm, error) {
	s := f.Storm
	if s == nil {
		return nil, nil
	}
	start, end, err := window(s.Start, s.End)
	if err != nil {
		return nil, fmt.Errorf("storm: %w", err)
	}
	return events.NewStorm(events.StormConfig{
		Start:       start,
		End:         end,
		Probability: s.Probability,
		Depth:       light.Brightness(s.Depth),
		Clouds:      s.Clouds,
		Seed:        s.Seed,
	}, logger), nil
}

func window(startText, endText string) (daytime.TimeOfDay, daytime.TimeOfDay, error) {
	start, err := daytime.Parse(startText)
	if err != nil {
		return daytime.TimeOfDay{}, daytime.TimeOfDay{}, fmt.Errorf("start: %w", err)
	}
	end, err := daytime.Parse(endText)
	if err != nil {
		return daytime.TimeOfDay{}, daytime.TimeOfDay{}, fmt.Errorf("end: %w", err)
	}
	if start == end {
		return daytime.TimeOfDay{}, daytime.TimeOfDay{}, fmt.Errorf("start and end are both %s", start)
	}
	return start, end, nil
}

func unit(v float64) bool {
	return v >= 0 && v <= 1
}
