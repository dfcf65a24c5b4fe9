// Package remote accepts light controller commands over MQTT.
package remote

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/pkg/mqtt"
)

// ErrUnknownCommand is returned for command names the router does not handle.
var ErrUnknownCommand = errors.New("unknown command")

// Controller is the part of the light controller commands act on.
type Controller interface {
	InvalidateRefreshTimer()
	SetBehavior(b engine.Behavior)
	RestorePreviousBehavior()
	Apply(source engine.EventSource)
}

// Command is the JSON body of a command message.
type Command struct {
	Command string `json:"command"`
}

// Router dispatches command messages to the controller.
type Router struct {
	service    string
	controller Controller
	storm      engine.EventSource
	logger     *slog.Logger
}

// NewRouter creates a router. storm may be nil when no storm is configured.
func NewRouter(service string, controller Controller, storm engine.EventSource, logger *slog.Logger) *Router {
	return &Router{
		service:    service,
		controller: controller,
		storm:      storm,
		logger:     logger.With("component", "remote"),
	}
}

// Subscribe listens on the service command topic.
func (r *Router) Subscribe(sub mqtt.Subscriber) error {
	topic := mqtt.CommandTopic(r.service)
	if err := sub.Subscribe(topic, 1, r.HandleMessage); err != nil {
		return fmt.Errorf("failed to subscribe to commands: %w", err)
	}
	return nil
}

// HandleMessage decodes and executes one command message.
func (r *Router) HandleMessage(msg mqtt.Message) {
	var cmd Command
	if err := json.Unmarshal(msg.Payload(), &cmd); err != nil {
		// A bare command name is accepted too.
		cmd.Command = strings.TrimSpace(string(msg.Payload()))
	}

	if err := r.Execute(cmd.Command); err != nil {
		r.logger.Warn("Rejected command", "topic", msg.Topic(), "command", cmd.Command, "error", err)
		return
	}
	r.logger.Info("Command accepted", "command", cmd.Command)
}

// Execute runs a named command.
func (r *Router) Execute(name string) error {
	switch strings.ToLower(name) {
	case mqtt.CommandRefresh:
		r.controller.InvalidateRefreshTimer()
	case mqtt.CommandPreview:
		r.controller.SetBehavior(engine.NewPreviewBehavior())
	case mqtt.CommandRestore:
		r.controller.RestorePreviousBehavior()
	case mqtt.CommandStorm:
		if r.storm == nil {
			return errors.New("no storm configured")
		}
		r.controller.Apply(r.storm)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return nil
}
