//go:build linux

package hardware

import (
	"errors"
	"fmt"

	"github.com/warthog618/go-gpiocdev"
)

// cdevLines drives relays through the Linux GPIO character device.
type cdevLines struct {
	chip  *gpiocdev.Chip
	lines []*gpiocdev.Line
}

func openGPIO(chipName string, offsets []int) (gpioLines, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	c := &cdevLines{chip: chip}
	for _, offset := range offsets {
		line, err := chip.RequestLine(offset, gpiocdev.AsOutput(0))
		if err != nil {
			c.Close()
			return nil, fmt.Errorf("request line %d: %w", offset, err)
		}
		c.lines = append(c.lines, line)
	}
	return c, nil
}

func (c *cdevLines) set(index, value int) error {
	return c.lines[index].SetValue(value)
}

// Close switches every relay off and returns the lines to inputs.
func (c *cdevLines) Close() error {
	var errs []error
	for _, line := range c.lines {
		if err := line.SetValue(0); err != nil {
			errs = append(errs, fmt.Errorf("switch off line: %w", err))
		}
		if err := line.Reconfigure(gpiocdev.AsInput); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure line: %w", err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close line: %w", err))
		}
	}
	if c.chip != nil {
		if err := c.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}
	return errors.Join(errs...)
}
