// Package connector describes the expansion connectors of a carrier board
// as named pin tables plus the bus identities behind them.
package connector

import (
	"github.com/pkg/errors"

	"projectlab-go/errcode"
	"projectlab-go/hal"
)

// PinAlias binds a connector signal to a physical pin. Shared marks a pin
// that legitimately appears under more than one signal in the same table.
type PinAlias struct {
	Signal string
	Pin    hal.Pin
	Shared bool
}

// PinMapping is an ordered alias table.
type PinMapping []PinAlias

// Lookup returns the pin behind signal.
func (m PinMapping) Lookup(signal string) (hal.Pin, bool) {
	for _, a := range m {
		if a.Signal == signal {
			return a.Pin, true
		}
	}
	return hal.Pin{}, false
}

// Signals lists the signal names in declaration order.
func (m PinMapping) Signals() []string {
	out := make([]string, len(m))
	for i, a := range m {
		out[i] = a.Signal
	}
	return out
}

// Validate checks that every signal is unique, every pin is set and no two
// signals share a pin unless one of them is marked Shared.
func (m PinMapping) Validate() error {
	signals := make(map[string]bool, len(m))
	owners := make(map[string]PinAlias, len(m))
	for _, a := range m {
		if a.Signal == "" {
			return errcode.New(errcode.InvalidParams, "pin mapping", "empty signal name")
		}
		if signals[a.Signal] {
			return errcode.New(errcode.InvalidParams, "pin mapping", "duplicate signal "+a.Signal)
		}
		signals[a.Signal] = true
		if a.Pin.IsZero() {
			return errcode.New(errcode.UnknownPin, "pin mapping", a.Signal+" has no pin")
		}
		key := a.Pin.Key()
		if prev, ok := owners[key]; ok && !prev.Shared && !a.Shared {
			return errcode.New(errcode.PinInUse, "pin mapping", key+" on "+prev.Signal+" and "+a.Signal)
		}
		owners[key] = a
	}
	return nil
}

// ---------------- Connector kinds ----------------

type Kind string

const (
	KindMikroBus      Kind = "mikrobus"
	KindGroveDigital  Kind = "grove_digital"
	KindGroveAnalog   Kind = "grove_analog"
	KindGroveUart     Kind = "grove_uart"
	KindQwiic         Kind = "qwiic"
	KindIOTerminal    Kind = "io_terminal"
	KindDisplayHeader Kind = "display_header"
)

// Signal names per connector kind.
var kindSignals = map[Kind][]string{
	KindMikroBus:      {"AN", "RST", "CS", "SCK", "CIPO", "COPI", "PWM", "INT", "RX", "TX", "SCL", "SDA"},
	KindGroveDigital:  {"D0", "D1"},
	KindGroveAnalog:   {"D0", "D1"},
	KindGroveUart:     {"RX", "TX"},
	KindQwiic:         {"SCL", "SDA"},
	KindIOTerminal:    {"A1", "D2", "D3"},
	KindDisplayHeader: {"DISPLAY_CS", "DISPLAY_RST", "DISPLAY_DC", "DISPLAY_CLK", "DISPLAY_COPI", "DISPLAY_LED"},
}

// Signals returns the signal names a connector of kind k may declare.
func (k Kind) Signals() []string { return append([]string(nil), kindSignals[k]...) }

func (k Kind) has(signal string) bool {
	for _, s := range kindSignals[k] {
		if s == signal {
			return true
		}
	}
	return false
}

// ---------------- Bus mappings ----------------

// SerialMapping names a native port by its friendly name ("com1") or
// carries an already open port, such as a channel of a UART bridge.
type SerialMapping struct {
	PortName string
	Port     hal.SerialPort
}

func (s SerialMapping) IsZero() bool { return s.PortName == "" && s.Port == nil }

func (s SerialMapping) String() string {
	switch {
	case s.PortName != "":
		return s.PortName
	case s.Port != nil:
		return "bridge"
	default:
		return ""
	}
}

type I2CBusMapping struct {
	Bus int
}

type SPIBusMapping struct {
	SCK, COPI, CIPO hal.Pin
}

// ---------------- Connector ----------------

type Connector struct {
	Name   string
	Kind   Kind
	Pins   PinMapping
	Serial SerialMapping
	I2C    *I2CBusMapping
	SPI    *SPIBusMapping
}

// Pin returns the pin behind signal.
func (c *Connector) Pin(signal string) (hal.Pin, bool) { return c.Pins.Lookup(signal) }

// Validate checks the pin table and that every signal belongs to the kind.
func (c *Connector) Validate() error {
	if _, ok := kindSignals[c.Kind]; !ok {
		return errcode.New(errcode.InvalidParams, c.Name, "unknown connector kind "+string(c.Kind))
	}
	for _, a := range c.Pins {
		if !c.Kind.has(a.Signal) {
			return errcode.New(errcode.InvalidParams, c.Name, "signal "+a.Signal+" not on a "+string(c.Kind)+" connector")
		}
	}
	if err := c.Pins.Validate(); err != nil {
		return errors.Wrap(err, c.Name)
	}
	return nil
}
