package health

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/pkg/mqtt"
	"github.com/Kaiede/RPiLight-sub000/pkg/redis"
)

// StatusSource answers light controller status queries.
type StatusSource interface {
	Status(ctx context.Context) (engine.Status, error)
}

// Checker provides health check functionality for the light agent.
// A nil MQTT or Redis client means that integration is disabled.
type Checker struct {
	mqtt       mqtt.Client
	redis      redis.Client
	controller StatusSource
	logger     *slog.Logger
}

// NewChecker creates a new health checker with the given dependencies
func NewChecker(mqttClient mqtt.Client, redisClient redis.Client, controller StatusSource, logger *slog.Logger) *Checker {
	return &Checker{
		mqtt:       mqttClient,
		redis:      redisClient,
		controller: controller,
		logger:     logger,
	}
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string    `json:"status"`
	Timestamp string    `json:"timestamp"`
	Services  *Services `json:"services,omitempty"`
}

// Services represents the status of the controller and external dependencies
type Services struct {
	Controller string `json:"controller"`
	Redis      string `json:"redis"`
	MQTT       string `json:"mqtt"`
}

// Router mounts the health, status and metrics endpoints.
func (h *Checker) Router(metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/health", h.HandlerFunc())
	r.Get("/health/detailed", h.DetailedHandlerFunc())
	r.Get("/status", h.StatusHandlerFunc())
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	return r
}

// HandlerFunc returns 200 while the process is alive without checking dependencies
func (h *Checker) HandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.writeJSON(w, http.StatusOK, HealthResponse{
			Status:    "ok",
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

// DetailedHandlerFunc returns a handler that checks the controller and every enabled dependency
func (h *Checker) DetailedHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := &Services{
			Controller: "unknown",
			Redis:      "disabled",
			MQTT:       "disabled",
		}
		healthy := true

		if h.mqtt != nil {
			if h.mqtt.IsConnected() {
				services.MQTT = "connected"
			} else {
				services.MQTT = "disconnected"
				healthy = false
			}
		}

		if h.redis != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			err := h.redis.Ping(ctx)
			cancel()
			if err == nil {
				services.Redis = "connected"
			} else {
				services.Redis = "disconnected"
				healthy = false
			}
		}

		if h.controller != nil {
			ctx, cancel := context.WithTimeout(r.Context(), time.Second)
			st, err := h.controller.Status(ctx)
			cancel()
			switch {
			case err != nil:
				services.Controller = "unreachable"
				healthy = false
			case st.Running:
				services.Controller = "running"
			default:
				services.Controller = "stopped"
				healthy = false
			}
		}

		status := "healthy"
		statusCode := http.StatusOK
		if !healthy {
			status = "degraded"
			statusCode = http.StatusServiceUnavailable
		}

		h.writeJSON(w, statusCode, HealthResponse{
			Status:    status,
			Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
			Services:  services,
		})
	}
}

// StatusHandlerFunc returns the controller status snapshot
func (h *Checker) StatusHandlerFunc() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.controller == nil {
			http.Error(w, "controller not available", http.StatusServiceUnavailable)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		st, err := h.controller.Status(ctx)
		if err != nil {
			h.logger.Warn("Failed to query controller status", "error", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		h.writeJSON(w, http.StatusOK, st)
	}
}

func (h *Checker) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("Failed to encode health response", "error", err)
	}
}
