// Package hardware turns the hardware configuration file into output
// channels: simulated, PCA9685 PWM, MCP4725 DAC or GPIO relays.
package hardware

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/Kaiede/RPiLight-sub000/internal/engine"
	"github.com/Kaiede/RPiLight-sub000/internal/light"
	"github.com/Kaiede/RPiLight-sub000/pkg/config"
)

// Controller types
const (
	TypeSimulated = "simulated"
	TypePCA9685   = "pca9685"
	TypeMCP4725   = "mcp4725"
	TypeGPIO      = "gpio"
)

// PWM frequency limits in Hz
const (
	DefaultFrequency = 480
	MinFrequency     = 120
	MaxFrequency     = 2000
)

// ErrInvalidConfig wraps every hardware configuration problem.
var ErrInvalidConfig = errors.New("invalid hardware configuration")

// Config is the hardware configuration document.
type Config struct {
	Gamma       float64            `yaml:"gamma,omitempty" json:"gamma,omitempty"`
	Controllers []ControllerConfig `yaml:"controllers" json:"controllers"`
}

// ControllerConfig describes one output board and the channels it drives.
type ControllerConfig struct {
	Type      string         `yaml:"type" json:"type"`
	Channels  map[string]int `yaml:"channels" json:"channels"`
	Address   int            `yaml:"address,omitempty" json:"address,omitempty"`
	Frequency int            `yaml:"frequency,omitempty" json:"frequency,omitempty"`
	Bus       string         `yaml:"bus,omitempty" json:"bus,omitempty"`
	Chip      string         `yaml:"chip,omitempty" json:"chip,omitempty"`
}

// Load reads and validates a hardware configuration file.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := config.LoadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// GammaValue is the configured gamma, clamped, or the default.
func (c *Config) GammaValue() light.Gamma {
	return light.NewGamma(c.Gamma)
}

// Validate checks controller types, channel indices and token uniqueness.
func (c *Config) Validate() error {
	if len(c.Controllers) == 0 {
		return fmt.Errorf("%w: no controllers configured", ErrInvalidConfig)
	}

	seen := make(map[string]bool)
	for i, ctrl := range c.Controllers {
		if len(ctrl.Channels) == 0 {
			return fmt.Errorf("%w: controller %d (%s) has no channels", ErrInvalidConfig, i, ctrl.Type)
		}
		for token, index := range ctrl.Channels {
			if seen[token] {
				return fmt.Errorf("%w: channel %s is configured twice", ErrInvalidConfig, token)
			}
			seen[token] = true
			if index < 0 {
				return fmt.Errorf("%w: channel %s has negative index %d", ErrInvalidConfig, token, index)
			}
		}

		switch ctrl.Type {
		case TypeSimulated, TypeGPIO:
		case TypePCA9685:
			for token, index := range ctrl.Channels {
				if index >= pca9685Channels {
					return fmt.Errorf("%w: channel %s index %d exceeds %d PWM outputs", ErrInvalidConfig, token, index, pca9685Channels)
				}
			}
		case TypeMCP4725:
			if len(ctrl.Channels) != 1 {
				return fmt.Errorf("%w: controller %d (mcp4725) drives exactly one channel", ErrInvalidConfig, i)
			}
		default:
			return fmt.Errorf("%w: controller %d has unknown type %q", ErrInvalidConfig, i, ctrl.Type)
		}
	}
	return nil
}

// ClampFrequency maps an unset frequency to the default and keeps the rest in range.
func ClampFrequency(hz int) int {
	if hz <= 0 {
		return DefaultFrequency
	}
	return min(max(hz, MinFrequency), MaxFrequency)
}

// Closers releases hardware handles in reverse order of acquisition.
type Closers []io.Closer

func (c Closers) Close() error {
	var errs []error
	for i := len(c) - 1; i >= 0; i-- {
		if err := c[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Build opens every controller and returns its channels sorted by token.
// On error everything opened so far is closed again.
func Build(cfg *Config, logger *slog.Logger) ([]engine.Channel, Closers, error) {
	return build(cfg, logger, defaultDrivers())
}

// drivers opens the buses behind each controller type.
type drivers struct {
	openI2C  func(name string) (i2cBus, error)
	openGPIO func(chip string, offsets []int) (gpioLines, error)
}

func build(cfg *Config, logger *slog.Logger, d drivers) ([]engine.Channel, Closers, error) {
	var channels []engine.Channel
	var closers Closers

	fail := func(err error) ([]engine.Channel, Closers, error) {
		if cerr := closers.Close(); cerr != nil {
			logger.Warn("Failed to release hardware after error", "error", cerr)
		}
		return nil, nil, err
	}

	for i, ctrl := range cfg.Controllers {
		tokens := sortedTokens(ctrl.Channels)

		switch ctrl.Type {
		case TypeSimulated:
			for _, token := range tokens {
				channels = append(channels, newSimulatedChannel(token, logger))
			}

		case TypePCA9685:
			bus, err := d.openI2C(ctrl.Bus)
			if err != nil {
				return fail(fmt.Errorf("failed to open I2C bus %q for controller %d: %w", ctrl.Bus, i, err))
			}
			closers = append(closers, bus)

			address := uint16(ctrl.Address)
			if address == 0 {
				address = pca9685Address
			}
			frequency := ClampFrequency(ctrl.Frequency)
			if frequency != ctrl.Frequency && ctrl.Frequency != 0 {
				logger.Warn("PWM frequency clamped", "requested", ctrl.Frequency, "frequency", frequency)
			}
			pwm, err := newPCA9685(bus, address, frequency)
			if err != nil {
				return fail(fmt.Errorf("failed to initialise pca9685 at 0x%02x: %w", address, err))
			}
			closers = append(closers, pwm)
			for _, token := range tokens {
				channels = append(channels, newPWMChannel(token, pwm, ctrl.Channels[token], logger))
			}

		case TypeMCP4725:
			bus, err := d.openI2C(ctrl.Bus)
			if err != nil {
				return fail(fmt.Errorf("failed to open I2C bus %q for controller %d: %w", ctrl.Bus, i, err))
			}
			closers = append(closers, bus)

			address := uint16(ctrl.Address)
			if address == 0 {
				address = mcp4725Address
			}
			dac := newMCP4725(bus, address)
			closers = append(closers, dac)
			channels = append(channels, newDACChannel(tokens[0], dac, logger))

		case TypeGPIO:
			offsets := make([]int, len(tokens))
			for j, token := range tokens {
				offsets[j] = ctrl.Channels[token]
			}
			chip := ctrl.Chip
			if chip == "" {
				chip = defaultGPIOChip
			}
			lines, err := d.openGPIO(chip, offsets)
			if err != nil {
				return fail(fmt.Errorf("failed to request GPIO lines on %s: %w", chip, err))
			}
			closers = append(closers, lines)
			for j, token := range tokens {
				channels = append(channels, newRelayChannel(token, lines, j, logger))
			}

		default:
			return fail(fmt.Errorf("%w: controller %d has unknown type %q", ErrInvalidConfig, i, ctrl.Type))
		}

		logger.Info("Controller ready", "type", ctrl.Type, "channels", tokens)
	}

	sort.Slice(channels, func(i, j int) bool { return channels[i].Token() < channels[j].Token() })
	return channels, closers, nil
}

func sortedTokens(channels map[string]int) []string {
	tokens := make([]string, 0, len(channels))
	for token := range channels {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return tokens
}
