package hardware

import (
	"fmt"
	"math"
	"sync"
	"time"

	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
)

type i2cBus = i2c.BusCloser

var hostInit = sync.OnceValue(func() error {
	_, err := host.Init()
	return err
})

func openI2C(name string) (i2cBus, error) {
	if err := hostInit(); err != nil {
		return nil, fmt.Errorf("failed to initialise host drivers: %w", err)
	}
	return i2creg.Open(name)
}

// PCA9685 registers and bits
const (
	pca9685Address  = 0x40
	pca9685Channels = 16
	pca9685MaxStep  = 4095
	pca9685Clock    = 25_000_000

	regMode1    = 0x00
	regMode2    = 0x01
	regLED0OnL  = 0x06
	regAllOnL   = 0xFA
	regPrescale = 0xFE

	mode1Sleep   = 0x10
	mode1AutoInc = 0x20
	mode1Restart = 0x80
	mode2OutDrv  = 0x04

	ledFull = 0x10
)

// pca9685 is a 16 channel, 12 bit PWM controller.
type pca9685 struct {
	mu  sync.Mutex
	dev *i2c.Dev
}

func newPCA9685(bus i2c.Bus, address uint16, frequency int) (*pca9685, error) {
	p := &pca9685{dev: &i2c.Dev{Bus: bus, Addr: address}}

	// The prescaler can only be written while the oscillator sleeps.
	writes := [][]byte{
		{regMode1, mode1Sleep},
		{regPrescale, prescale(frequency)},
		{regMode2, mode2OutDrv},
		{regMode1, mode1AutoInc},
	}
	for _, w := range writes {
		if err := p.dev.Tx(w, nil); err != nil {
			return nil, fmt.Errorf("failed to write register 0x%02x: %w", w[0], err)
		}
	}
	time.Sleep(500 * time.Microsecond)
	if err := p.dev.Tx([]byte{regMode1, mode1AutoInc | mode1Restart}, nil); err != nil {
		return nil, fmt.Errorf("failed to restart oscillator: %w", err)
	}
	return p, nil
}

// prescale is the register value for an output frequency in Hz.
func prescale(frequency int) byte {
	return byte(math.Round(float64(pca9685Clock)/(4096*float64(frequency))) - 1)
}

// setWidth sets the on time of one output in steps of 1/4096.
func (p *pca9685) setWidth(channel int, width uint16) error {
	var on, off uint16
	switch {
	case width >= pca9685MaxStep:
		on = ledFull << 8
	case width == 0:
		off = ledFull << 8
	default:
		off = width
	}

	reg := byte(regLED0OnL + 4*channel)
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.Tx([]byte{reg, byte(on), byte(on >> 8), byte(off), byte(off >> 8)}, nil)
}

// Close turns every output off.
func (p *pca9685) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.dev.Tx([]byte{regAllOnL, 0, 0, 0, ledFull}, nil)
}

// MCP4725 constants
const (
	mcp4725Address  = 0x60
	mcp4725MaxValue = 4095
)

// mcp4725 is a single channel 12 bit DAC.
type mcp4725 struct {
	mu  sync.Mutex
	dev *i2c.Dev
}

func newMCP4725(bus i2c.Bus, address uint16) *mcp4725 {
	return &mcp4725{dev: &i2c.Dev{Bus: bus, Addr: address}}
}

// setValue uses the two byte fast write command.
func (m *mcp4725) setValue(value uint16) error {
	value = min(value, mcp4725MaxValue)
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dev.Tx([]byte{byte(value>>8) & 0x0F, byte(value)}, nil)
}

// Close drives the output to zero.
func (m *mcp4725) Close() error {
	return m.setValue(0)
}
