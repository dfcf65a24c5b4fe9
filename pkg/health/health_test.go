package health

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/pkg/mqtt"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeMQTT struct{ connected bool }

func (f *fakeMQTT) Connect(context.Context) error                     { return nil }
func (f *fakeMQTT) Disconnect()                                       {}
func (f *fakeMQTT) Subscribe(string, byte, mqtt.MessageHandler) error { return nil }
func (f *fakeMQTT) Publish(string, byte, bool, []byte) error          { return nil }
func (f *fakeMQTT) IsConnected() bool                                 { return f.connected }

type fakeRedis struct{ err error }

func (f *fakeRedis) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (f *fakeRedis) HSetWithTTL(context.Context, string, map[string]interface{}, time.Duration) error {
	return nil
}
func (f *fakeRedis) Del(context.Context, ...string) error { return nil }
func (f *fakeRedis) Ping(context.Context) error           { return f.err }
func (f *fakeRedis) Close() error                         { return nil }

type fakeController struct {
	status engine.Status
	err    error
}

func (f *fakeController) Status(context.Context) (engine.Status, error) { return f.status, f.err }

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthAlwaysOK(t *testing.T) {
	checker := NewChecker(nil, nil, nil, testLogger())
	rec := get(t, checker.Router(nil), "/health")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var resp HealthResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Nil(t, resp.Services)
}

func TestDetailedHealth(t *testing.T) {
	tests := []struct {
		name       string
		mqtt       mqtt.Client
		redis      *fakeRedis
		controller *fakeController
		wantCode   int
		want       Services
	}{
		{
			name:       "disabled integrations are healthy",
			controller: &fakeController{status: engine.Status{Running: true}},
			wantCode:   http.StatusOK,
			want:       Services{Controller: "running", Redis: "disabled", MQTT: "disabled"},
		},
		{
			name:       "everything connected",
			mqtt:       &fakeMQTT{connected: true},
			redis:      &fakeRedis{},
			controller: &fakeController{status: engine.Status{Running: true}},
			wantCode:   http.StatusOK,
			want:       Services{Controller: "running", Redis: "connected", MQTT: "connected"},
		},
		{
			name:       "redis down",
			redis:      &fakeRedis{err: errors.New("refused")},
			controller: &fakeController{status: engine.Status{Running: true}},
			wantCode:   http.StatusServiceUnavailable,
			want:       Services{Controller: "running", Redis: "disconnected", MQTT: "disabled"},
		},
		{
			name:       "controller stopped",
			mqtt:       &fakeMQTT{connected: true},
			controller: &fakeController{},
			wantCode:   http.StatusServiceUnavailable,
			want:       Services{Controller: "stopped", Redis: "disabled", MQTT: "connected"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			checker := &Checker{mqtt: tt.mqtt, controller: tt.controller, logger: testLogger()}
			if tt.redis != nil {
				checker.redis = tt.redis
			}

			rec := get(t, checker.Router(nil), "/health/detailed")
			assert.Equal(t, tt.wantCode, rec.Code)

			var resp HealthResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
			require.NotNil(t, resp.Services)
			assert.Equal(t, tt.want, *resp.Services)
		})
	}
}

func TestStatusEndpoint(t *testing.T) {
	controller := &fakeController{status: engine.Status{Running: true, Behavior: "preview", BehaviorDepth: 1}}
	checker := NewChecker(nil, nil, controller, testLogger())
	router := checker.Router(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rec := get(t, router, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	var st engine.Status
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&st))
	assert.Equal(t, "preview", st.Behavior)
	assert.Equal(t, 1, st.BehaviorDepth)

	assert.Equal(t, http.StatusTeapot, get(t, router, "/metrics").Code)

	controller.err = engine.ErrClosed
	assert.Equal(t, http.StatusServiceUnavailable, get(t, router, "/status").Code)
}
