package hardware

import "io"

const defaultGPIOChip = "gpiochip0"

// gpioLines is a set of output lines requested together.
type gpioLines interface {
	io.Closer
	set(index, value int) error
}

func defaultDrivers() drivers {
	return drivers{openI2C: openI2C, openGPIO: openGPIO}
}
