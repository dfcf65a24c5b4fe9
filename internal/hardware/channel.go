package hardware

import (
	"log/slog"
	"math"

	"github.com/Kaiede/RPiLight-sub000/internal/light"
)

// floor drops intensities below the channel minimum to zero, since most
// drivers cannot hold a stable output that low.
type floor struct {
	min light.Intensity
}

func (f *floor) SetMinIntensity(i light.Intensity) { f.min = i.Clamp() }

func (f *floor) apply(i light.Intensity) light.Intensity {
	i = i.Clamp()
	if i < f.min {
		return 0
	}
	return i
}

// steps scales an intensity onto [0, full].
func steps(i light.Intensity, full uint16) uint16 {
	return uint16(math.Round(float64(i) * float64(full)))
}

// simulatedChannel only logs its output.
type simulatedChannel struct {
	floor
	token   string
	current light.Intensity
	logger  *slog.Logger
}

func newSimulatedChannel(token string, logger *slog.Logger) *simulatedChannel {
	return &simulatedChannel{token: token, logger: logger.With("channel", token, "type", TypeSimulated)}
}

func (c *simulatedChannel) Token() string { return c.token }

func (c *simulatedChannel) SetIntensity(i light.Intensity) {
	i = c.apply(i)
	if i == c.current {
		return
	}
	c.current = i
	c.logger.Debug("Intensity changed", "intensity", float64(i))
}

// Intensity is the last value written.
func (c *simulatedChannel) Intensity() light.Intensity { return c.current }

// pwmChannel drives one PCA9685 output.
type pwmChannel struct {
	floor
	token  string
	pwm    *pca9685
	index  int
	last   int
	logger *slog.Logger
}

func newPWMChannel(token string, pwm *pca9685, index int, logger *slog.Logger) *pwmChannel {
	return &pwmChannel{
		token:  token,
		pwm:    pwm,
		index:  index,
		last:   -1,
		logger: logger.With("channel", token, "type", TypePCA9685, "output", index),
	}
}

func (c *pwmChannel) Token() string { return c.token }

func (c *pwmChannel) SetIntensity(i light.Intensity) {
	width := steps(c.apply(i), pca9685MaxStep)
	if int(width) == c.last {
		return
	}
	if err := c.pwm.setWidth(c.index, width); err != nil {
		c.logger.Error("Failed to set PWM width", "width", width, "error", err)
		return
	}
	c.last = int(width)
}

// dacChannel drives an MCP4725 output voltage.
type dacChannel struct {
	floor
	token  string
	dac    *mcp4725
	last   int
	logger *slog.Logger
}

func newDACChannel(token string, dac *mcp4725, logger *slog.Logger) *dacChannel {
	return &dacChannel{
		token:  token,
		dac:    dac,
		last:   -1,
		logger: logger.With("channel", token, "type", TypeMCP4725),
	}
}

func (c *dacChannel) Token() string { return c.token }

func (c *dacChannel) SetIntensity(i light.Intensity) {
	value := steps(c.apply(i), mcp4725MaxValue)
	if int(value) == c.last {
		return
	}
	if err := c.dac.setValue(value); err != nil {
		c.logger.Error("Failed to set DAC value", "value", value, "error", err)
		return
	}
	c.last = int(value)
}

// relayChannel switches a GPIO line: on for any intensity above the minimum.
type relayChannel struct {
	floor
	token  string
	lines  gpioLines
	index  int
	last   int
	logger *slog.Logger
}

func newRelayChannel(token string, lines gpioLines, index int, logger *slog.Logger) *relayChannel {
	return &relayChannel{
		token:  token,
		lines:  lines,
		index:  index,
		last:   -1,
		logger: logger.With("channel", token, "type", TypeGPIO),
	}
}

func (c *relayChannel) Token() string { return c.token }

func (c *relayChannel) SetIntensity(i light.Intensity) {
	value := 0
	if c.apply(i) > 0 {
		value = 1
	}
	if value == c.last {
		return
	}
	if err := c.lines.set(c.index, value); err != nil {
		c.logger.Error("Failed to switch relay", "value", value, "error", err)
		return
	}
	c.last = value
	c.logger.Info("Relay switched", "on", value == 1)
}
