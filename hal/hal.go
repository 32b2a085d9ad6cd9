// Package hal declares the host hardware abstraction the board-support
// package consumes. A firmware build or a bench host provides a Device;
// IO expanders provide further PinControllers.
package hal

import (
	"io"

	"tinygo.org/x/drivers"

	"projectlab-go/types"
)

// MCU is the controller name of the host device itself.
const MCU = "mcu"

// ---- GPIO abstractions ----

type Pull uint8

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return "none"
	}
}

// Edge selection for interrupts.
type Edge uint8

const (
	EdgeNone Edge = iota
	EdgeRising
	EdgeFalling
	EdgeBoth
)

func (e Edge) String() string {
	switch e {
	case EdgeRising:
		return "rising"
	case EdgeFalling:
		return "falling"
	case EdgeBoth:
		return "both"
	default:
		return "none"
	}
}

// Wants reports whether a transition old->new is selected by e.
func (e Edge) Wants(old, new bool) bool {
	switch {
	case !old && new:
		return e == EdgeRising || e == EdgeBoth
	case old && !new:
		return e == EdgeFalling || e == EdgeBoth
	default:
		return false
	}
}

type DigitalOutputPort interface {
	Set(level bool) error
	State() bool
	Close() error
}

type DigitalInterruptPort interface {
	Read() (bool, error)
	// SetHandler installs the callback run with the new level on every
	// configured edge. A nil handler disables delivery.
	SetHandler(h func(level bool))
	Close() error
}

// PinController creates ports on the pins it owns, by name.
type PinController interface {
	Name() string
	CreateDigitalOutputPort(pin string, initial bool) (DigitalOutputPort, error)
	CreateDigitalInterruptPort(pin string, edge Edge, pull Pull) (DigitalInterruptPort, error)
}

// ---- PWM ----

type PWMPort interface {
	SetFrequency(hz uint32) error
	Frequency() uint32
	// SetDutyCycle takes a fraction in [0, 1].
	SetDutyCycle(duty float64) error
	DutyCycle() float64
	Start() error
	Stop() error
	Close() error
}

// ---- SPI ----

type SPIMode uint8

const (
	SPIMode0 SPIMode = iota
	SPIMode1
	SPIMode2
	SPIMode3
)

type SPIConfig struct {
	Frequency uint32 // Hz
	Mode      SPIMode
}

// SPIBus is a tinygo drivers.SPI that can be reclocked per peripheral.
type SPIBus interface {
	drivers.SPI
	Configure(cfg SPIConfig) error
}

// ---- Serial ----

type SerialPort interface {
	io.ReadWriter
	Configure(cfg types.SerialConfig) error
	Close() error
}

// ---- Host device ----

// Device is the host module (microcontroller) the carrier board is built on.
type Device interface {
	PinController
	Family() types.Family
	CreatePWMPort(pin string, frequency uint32, duty float64, inverted bool) (PWMPort, error)
	CreateSPIBus(sck, copi, cipo string, cfg SPIConfig) (SPIBus, error)
	CreateSerialPort(name string, cfg types.SerialConfig) (SerialPort, error)
	// SerialPortName resolves a friendly name such as "com4" to a port name
	// accepted by CreateSerialPort.
	SerialPortName(friendly string) (string, bool)
}
