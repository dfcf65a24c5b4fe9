//go:build !linux

package hardware

import "errors"

func openGPIO(string, []int) (gpioLines, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}
