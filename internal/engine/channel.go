package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/Kaiede/RPiLight-sub000/internal/light"
)

// Channel is a write-only output sink driven by a ChannelController.
// Implementations force values below the minimum intensity to zero.
type Channel interface {
	Token() string
	SetIntensity(light.Intensity)
	SetMinIntensity(light.Intensity)
}

// Layer is the view of a brightness curve a channel composes.
type Layer interface {
	ActiveIndex() int
	Segment(t time.Time) (light.Segment, error)
	LightLevel(t time.Time) (light.Brightness, error)
}

// LayerSlot names one of the fixed layer positions of a channel.
type LayerSlot int

const (
	ScheduleLayer LayerSlot = iota
	LunarLayer
	StormLayer

	layerSlotCount
)

// LayerSlots lists every slot in composition order.
var LayerSlots = [layerSlotCount]LayerSlot{ScheduleLayer, LunarLayer, StormLayer}

func (s LayerSlot) String() string {
	switch s {
	case ScheduleLayer:
		return "schedule"
	case LunarLayer:
		return "lunar"
	case StormLayer:
		return "storm"
	default:
		return fmt.Sprintf("slot(%d)", int(s))
	}
}

// rescheduler is implemented by the controller loop.
type rescheduler interface {
	requestReschedule(refresh bool)
}

// ChannelController composes the layers of one output channel.
// It is only touched from the owning controller's loop.
type ChannelController struct {
	token   string
	channel Channel
	gamma   light.Gamma
	owner   rescheduler
	logger  *slog.Logger

	layers  [layerSlotCount]Layer
	indices [layerSlotCount]int

	brightness light.Brightness
	intensity  light.Intensity
	dark       bool
	recorder   Recorder
}

func newChannelController(channel Channel, gamma light.Gamma, owner rescheduler, recorder Recorder, logger *slog.Logger) *ChannelController {
	cc := &ChannelController{
		token:    channel.Token(),
		channel:  channel,
		gamma:    gamma,
		owner:    owner,
		recorder: recorder,
		logger:   logger.With("channel", channel.Token()),
	}
	for i := range cc.indices {
		cc.indices[i] = -1
	}
	return cc
}

func (cc *ChannelController) Token() string { return cc.token }

func (cc *ChannelController) Gamma() light.Gamma { return cc.gamma }

// Layer returns the layer bound to slot, or nil.
func (cc *ChannelController) Layer(slot LayerSlot) Layer {
	return cc.layers[slot]
}

// Set replaces the layer bound to slot. A nil layer clears the slot.
func (cc *ChannelController) Set(slot LayerSlot, layer Layer) {
	cc.layers[slot] = layer
	cc.indices[slot] = -1
	cc.logger.Debug("Layer replaced", "slot", slot.String(), "cleared", layer == nil)
	cc.owner.requestReschedule(true)
}

// Update pushes the composed brightness at now to the output channel.
func (cc *ChannelController) Update(now time.Time) {
	brightness := light.Brightness(1.0)
	active := 0
	changed := false

	for _, slot := range LayerSlots {
		layer := cc.layers[slot]
		if layer == nil {
			continue
		}
		level, err := layer.LightLevel(now)
		if err != nil {
			cc.logger.Error("Failed to compute layer level", "slot", slot.String(), "error", err)
			continue
		}
		active++
		brightness *= level

		if index := layer.ActiveIndex(); index != cc.indices[slot] {
			cc.logger.Debug("Switched to segment", "slot", slot.String(), "index", index, "previous", cc.indices[slot])
			cc.indices[slot] = index
			changed = true
		}
	}

	if active == 0 {
		if !cc.dark {
			cc.logger.Warn("Channel has no active layers, turning off")
		}
		cc.dark = true
		brightness = 0
	} else if cc.dark {
		cc.logger.Info("Channel has active layers again")
		cc.dark = false
	}

	cc.brightness = brightness.Clamp()
	cc.intensity = cc.brightness.Intensity(cc.gamma).Clamp()
	cc.channel.SetIntensity(cc.intensity)
	cc.recorder.ChannelLevel(cc.token, cc.brightness, cc.intensity)

	if changed {
		cc.owner.requestReschedule(false)
	}
}

// Segment is the product of every populated layer's segment at now.
func (cc *ChannelController) Segment(now time.Time) light.Segment {
	segment := light.Identity()
	for _, slot := range LayerSlots {
		layer := cc.layers[slot]
		if layer == nil {
			continue
		}
		s, err := layer.Segment(now)
		if err != nil {
			cc.logger.Error("Failed to compute layer segment", "slot", slot.String(), "error", err)
			continue
		}
		segment = light.UnionByLayer(segment, s)
	}
	return segment
}

// ChannelStatus is a snapshot of a channel's last output.
type ChannelStatus struct {
	Token      string   `json:"token"`
	Brightness float64  `json:"brightness"`
	Intensity  float64  `json:"intensity"`
	Layers     []string `json:"layers"`
}

func (cc *ChannelController) status() ChannelStatus {
	st := ChannelStatus{
		Token:      cc.token,
		Brightness: float64(cc.brightness),
		Intensity:  float64(cc.intensity),
		Layers:     []string{},
	}
	for _, slot := range LayerSlots {
		if cc.layers[slot] != nil {
			st.Layers = append(st.Layers, slot.String())
		}
	}
	return st
}
