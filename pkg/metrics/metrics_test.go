package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaiede/RPiLight-sub000/internal/engine"
)

func scrape(t *testing.T, c *Collector) string {
	t.Helper()
	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestNewCollector(t *testing.T) {
	c := NewCollector("")
	if c == nil {
		t.Fatal("NewCollector returned nil")
	}
	if c.Registry() == nil {
		t.Error("registry should not be nil")
	}
}

func TestCollectorRecordsControllerActivity(t *testing.T) {
	c := NewCollector("test")

	c.SetRunning(true)
	c.RefreshFired("default")
	c.RefreshFired("default")
	c.RefreshScheduled(engine.UpdateRepeating, 500*time.Millisecond)
	c.WatchdogFired(true, 2*time.Second)
	c.WatchdogFired(false, 0)
	c.EventFired("lunar")
	c.ChannelLevel("white", 0.5, 0.25)
	c.RecordPublish("mqtt", nil)
	c.RecordPublish("redis", errors.New("down"))

	body := scrape(t, c)
	assert.Contains(t, body, "test_controller_running 1")
	assert.Contains(t, body, `test_controller_refreshes_total{behavior="default"} 2`)
	assert.Contains(t, body, `test_controller_refresh_schedules_total{kind="repeating"} 1`)
	assert.Contains(t, body, "test_controller_refresh_interval_seconds 0.5")
	assert.Contains(t, body, `test_watchdog_fires_total{result="late"} 1`)
	assert.Contains(t, body, `test_watchdog_fires_total{result="on_time"} 1`)
	assert.Contains(t, body, "test_watchdog_drift_seconds_count 1")
	assert.Contains(t, body, `test_events_fired_total{event="lunar"} 1`)
	assert.Contains(t, body, `test_channel_brightness{channel="white"} 0.5`)
	assert.Contains(t, body, `test_channel_intensity{channel="white"} 0.25`)
	assert.Contains(t, body, `test_telemetry_publishes_total{result="error",target="redis"} 1`)

	c.SetRunning(false)
	assert.Contains(t, scrape(t, c), "test_controller_running 0")
}
