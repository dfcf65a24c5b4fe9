// Package telemetry mirrors channel output levels and controller status to
// MQTT and Redis.
package telemetry

import (
	"context"
	"encoding/json"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/internal/light"
	"github.com/Kaiede/RPiLight-sub000/pkg/mqtt"
	"github.com/Kaiede/RPiLight-sub000/pkg/redis"
)

// StatusSource answers controller status queries.
type StatusSource interface {
	Status(ctx context.Context) (engine.Status, error)
}

// StatusFunc adapts a function to StatusSource.
type StatusFunc func(ctx context.Context) (engine.Status, error)

// Status calls f(ctx).
func (f StatusFunc) Status(ctx context.Context) (engine.Status, error) { return f(ctx) }

// PublishRecorder counts telemetry writes.
type PublishRecorder interface {
	RecordPublish(target string, err error)
}

// Options configures a Reporter. Publisher, Store and Status may be nil.
type Options struct {
	Service        string
	Publisher      mqtt.Publisher
	Store          redis.Writer
	Status         StatusSource
	Recorder       PublishRecorder
	RateHz         float64
	StatusInterval time.Duration
	TTL            time.Duration
	Logger         *slog.Logger
}

// Reporter publishes channel levels whenever they change, no faster than
// its rate limit, and the controller status on a fixed interval.
type Reporter struct {
	opts    Options
	limiter *rate.Limiter
	logger  *slog.Logger

	mu      sync.Mutex
	levels  map[string]light.Intensity
	changed chan struct{}
}

// ChannelsPayload is the JSON document published for channel levels.
type ChannelsPayload struct {
	Timestamp string             `json:"timestamp"`
	Channels  map[string]float64 `json:"channels"`
}

// NewReporter creates a reporter.
func NewReporter(opts Options) *Reporter {
	if opts.RateHz <= 0 {
		opts.RateHz = 2
	}
	if opts.StatusInterval <= 0 {
		opts.StatusInterval = 10 * time.Second
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Reporter{
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(opts.RateHz), 1),
		logger:  opts.Logger.With("component", "telemetry"),
		levels:  make(map[string]light.Intensity),
		changed: make(chan struct{}, 1),
	}
}

// Wrap mirrors every intensity written to the channels into the reporter.
func (r *Reporter) Wrap(channels []engine.Channel) []engine.Channel {
	wrapped := make([]engine.Channel, len(channels))
	for i, channel := range channels {
		wrapped[i] = &mirror{Channel: channel, reporter: r}
	}
	return wrapped
}

type mirror struct {
	engine.Channel
	reporter *Reporter
}

func (m *mirror) SetIntensity(i light.Intensity) {
	m.Channel.SetIntensity(i)
	m.reporter.record(m.Token(), i)
}

func (r *Reporter) record(token string, i light.Intensity) {
	r.mu.Lock()
	previous, seen := r.levels[token]
	r.levels[token] = i
	r.mu.Unlock()

	if seen && previous == i {
		return
	}
	select {
	case r.changed <- struct{}{}:
	default:
	}
}

// Levels returns a copy of the last intensity of every channel.
func (r *Reporter) Levels() map[string]float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	levels := make(map[string]float64, len(r.levels))
	for token, i := range r.levels {
		levels[token] = float64(i)
	}
	return levels
}

// Run publishes until ctx is cancelled.
func (r *Reporter) Run(ctx context.Context) error {
	r.logger.Info("Telemetry reporter started",
		"service", r.opts.Service,
		"rate_hz", r.opts.RateHz,
		"mqtt", r.opts.Publisher != nil,
		"redis", r.opts.Store != nil)

	ticker := time.NewTicker(r.opts.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.clear()
			r.logger.Info("Telemetry reporter stopped")
			return nil
		case <-ticker.C:
			r.PublishStatus(ctx)
		case <-r.changed:
			if err := r.limiter.Wait(ctx); err != nil {
				continue
			}
			r.PublishLevels(ctx)
		}
	}
}

// PublishLevels sends the current channel levels to every configured target.
func (r *Reporter) PublishLevels(ctx context.Context) {
	levels := r.Levels()

	if r.opts.Publisher != nil {
		payload, err := json.Marshal(ChannelsPayload{
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Channels:  levels,
		})
		if err == nil {
			err = r.opts.Publisher.Publish(mqtt.ChannelsTopic(r.opts.Service), 0, true, payload)
		}
		r.recordPublish("mqtt", err)
	}

	if r.opts.Store != nil {
		fields := make(map[string]interface{}, len(levels))
		for token, level := range levels {
			fields[token] = strconv.FormatFloat(level, 'f', 6, 64)
		}
		err := r.opts.Store.HSetWithTTL(ctx, redis.ChannelsKey(r.opts.Service), fields, r.opts.TTL)
		r.recordPublish("redis", err)
	}
}

// PublishStatus stores the controller status document in Redis.
func (r *Reporter) PublishStatus(ctx context.Context) {
	if r.opts.Store == nil || r.opts.Status == nil {
		return
	}

	queryCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	st, err := r.opts.Status.Status(queryCtx)
	if err != nil {
		r.logger.Warn("Failed to query controller status", "error", err)
		return
	}

	payload, err := json.Marshal(st)
	if err != nil {
		r.logger.Error("Failed to encode controller status", "error", err)
		return
	}
	err = r.opts.Store.Set(ctx, redis.StatusKey(r.opts.Service), payload, r.opts.TTL)
	r.recordPublish("redis", err)
}

func (r *Reporter) clear() {
	if r.opts.Store == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := r.opts.Store.Del(ctx, redis.StatusKey(r.opts.Service)); err != nil {
		r.logger.Warn("Failed to clear status", "error", err)
	}
}

func (r *Reporter) recordPublish(target string, err error) {
	if err != nil {
		r.logger.Warn("Telemetry publish failed", "target", target, "error", err)
	}
	if r.opts.Recorder != nil {
		r.opts.Recorder.RecordPublish(target, err)
	}
}
