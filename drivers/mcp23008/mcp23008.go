// Package mcp23008 provides a driver for the MCP23008 8-bit I2C IO expander.
//
// The expander's eight pins (GP0..GP7) are exposed as a hal.PinController so
// they can back connector pin tables exactly like host pins. Input changes
// are reported either through the expander's INT line (wired to a host
// interrupt port) or by calling Poll.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when
// both w and r are provided.
package mcp23008

import (
	"errors"
	"strconv"
	"sync"

	"go.uber.org/multierr"
	"tinygo.org/x/drivers"

	"projectlab-go/errcode"
	"projectlab-go/hal"
)

// BaseAddress is the address with A2..A0 strapped low.
const BaseAddress = 0x20

// Register map (IOCON.BANK has no effect on the 8-bit part).
const (
	regIODIR   = 0x00
	regIPOL    = 0x01
	regGPINTEN = 0x02
	regDEFVAL  = 0x03
	regINTCON  = 0x04
	regIOCON   = 0x05
	regGPPU    = 0x06
	regINTF    = 0x07
	regINTCAP  = 0x08
	regGPIO    = 0x09
	regOLAT    = 0x0A

	ioconSEQOP  = 1 << 5
	ioconDISSLW = 1 << 4
	ioconODR    = 1 << 2
	ioconINTPOL = 1 << 1
)

// NumPins on the expander.
const NumPins = 8

// Errors returned by the driver.
var (
	ErrNotPresent = errors.New("mcp23008: device not responding")
	ErrPin        = errors.New("mcp23008: invalid pin")
)

// Config controls addressing and the optional control lines.
type Config struct {
	// Address defaults to BaseAddress if zero.
	Address uint16
	// Name is the controller name used in pin keys. Defaults to
	// "mcp23008@0x<addr>".
	Name string
	// Interrupt is the host port wired to INT. The driver configures INT as
	// active-high push-pull, so the port should trigger on a rising edge.
	Interrupt hal.DigitalInterruptPort
	// Reset is the host port wired to the active-low RESET line.
	Reset hal.DigitalOutputPort
}

// Device is one MCP23008 on an I2C bus.
type Device struct {
	bus  drivers.I2C
	addr uint16
	name string

	intr  hal.DigitalInterruptPort
	reset hal.DigitalOutputPort

	mu      sync.Mutex
	iodir   byte
	gppu    byte
	gpinten byte
	olat    byte
	last    byte // last observed input levels
	claimed [NumPins]bool
	irq     [NumPins]*interruptPort
	buf     [2]byte
}

// New resets (when a reset line is given), configures and probes the
// expander. An error means the device did not answer and nothing was kept.
func New(bus drivers.I2C, cfg Config) (*Device, error) {
	addr := cfg.Address
	if addr == 0 {
		addr = BaseAddress
	}
	name := cfg.Name
	if name == "" {
		name = "mcp23008@0x" + strconv.FormatUint(uint64(addr), 16)
	}
	d := &Device{bus: bus, addr: addr, name: name, intr: cfg.Interrupt, reset: cfg.Reset}

	if d.reset != nil {
		if err := d.reset.Set(false); err != nil {
			return nil, err
		}
		if err := d.reset.Set(true); err != nil {
			return nil, err
		}
	}

	const iocon = ioconINTPOL
	if err := d.writeReg(regIOCON, iocon); err != nil {
		return nil, errcode.Wrap(errcode.Unavailable, name, errors.Join(ErrNotPresent, err))
	}
	got, err := d.readReg(regIOCON)
	if err != nil || got&^ioconDISSLW != iocon {
		return nil, errcode.Wrap(errcode.Unavailable, name, errors.Join(ErrNotPresent, err))
	}

	// Power-on defaults are all inputs without pull-ups; take whatever the
	// part reports so a warm restart keeps driven outputs.
	var regs [NumPins + 3]byte
	if err := d.bus.Tx(d.addr, []byte{regIODIR}, regs[:regOLAT+1]); err != nil {
		return nil, errcode.Wrap(errcode.Unavailable, name, err)
	}
	d.iodir = regs[regIODIR]
	d.gppu = regs[regGPPU]
	d.gpinten = regs[regGPINTEN]
	d.olat = regs[regOLAT]
	d.last = regs[regGPIO]

	if d.intr != nil {
		d.intr.SetHandler(func(level bool) {
			if level {
				_ = d.Service()
			}
		})
	}
	return d, nil
}

func (d *Device) Name() string    { return d.name }
func (d *Device) Address() uint16 { return d.addr }

// PinName returns "GP<n>".
func PinName(n int) string { return "GP" + strconv.Itoa(n) }

// Pin returns expander pin n as a hal.Pin.
func (d *Device) Pin(n int) hal.Pin { return hal.Pin{Name: PinName(n), Controller: d} }

func parsePin(name string) (int, error) {
	if len(name) != 3 || name[0] != 'G' || name[1] != 'P' || name[2] < '0' || name[2] > '7' {
		return 0, ErrPin
	}
	return int(name[2] - '0'), nil
}

// ReadPort returns the GPIO register: the level of all eight pins.
func (d *Device) ReadPort() (byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.readReg(regGPIO)
}

// WritePort sets the output latch of all eight pins.
func (d *Device) WritePort(v byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.writeReg(regOLAT, v); err != nil {
		return err
	}
	d.olat = v
	return nil
}

func (d *Device) claim(n int) error {
	if d.claimed[n] {
		return errcode.New(errcode.PinInUse, d.name, PinName(n))
	}
	d.claimed[n] = true
	return nil
}

func (d *Device) CreateDigitalOutputPort(pin string, initial bool) (hal.DigitalOutputPort, error) {
	n, err := parsePin(pin)
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownPin, d.name, err)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.claim(n); err != nil {
		return nil, err
	}
	bit := byte(1) << n
	olat := setBit(d.olat, bit, initial)
	if err := d.writeReg(regOLAT, olat); err != nil {
		d.claimed[n] = false
		return nil, err
	}
	d.olat = olat
	iodir := d.iodir &^ bit
	if err := d.writeReg(regIODIR, iodir); err != nil {
		d.claimed[n] = false
		return nil, err
	}
	d.iodir = iodir
	return &outputPort{d: d, n: n}, nil
}

func (d *Device) CreateDigitalInterruptPort(pin string, edge hal.Edge, pull hal.Pull) (hal.DigitalInterruptPort, error) {
	n, err := parsePin(pin)
	if err != nil {
		return nil, errcode.Wrap(errcode.UnknownPin, d.name, err)
	}
	if pull == hal.PullDown {
		return nil, errcode.New(errcode.Unsupported, d.name, "no internal pull-down")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.claim(n); err != nil {
		return nil, err
	}
	fail := func(err error) (hal.DigitalInterruptPort, error) {
		d.claimed[n] = false
		return nil, err
	}
	bit := byte(1) << n

	iodir := d.iodir | bit
	if err := d.writeReg(regIODIR, iodir); err != nil {
		return fail(err)
	}
	d.iodir = iodir

	gppu := setBit(d.gppu, bit, pull == hal.PullUp)
	if err := d.writeReg(regGPPU, gppu); err != nil {
		return fail(err)
	}
	d.gppu = gppu

	if edge != hal.EdgeNone {
		// INTCON stays 0: interrupt on any change versus the previous value.
		gpinten := d.gpinten | bit
		if err := d.writeReg(regGPINTEN, gpinten); err != nil {
			return fail(err)
		}
		d.gpinten = gpinten
	}

	lvl, err := d.readReg(regGPIO)
	if err != nil {
		return fail(err)
	}
	d.last = setBit(d.last, bit, lvl&bit != 0)

	p := &interruptPort{d: d, n: n, edge: edge}
	d.irq[n] = p
	return p, nil
}

// Service reads the interrupt flags and capture registers and dispatches
// the changed pins. It is called from the INT handler and may be called
// directly.
func (d *Device) Service() error {
	d.mu.Lock()
	var flags [2]byte
	if err := d.bus.Tx(d.addr, []byte{regINTF}, flags[:]); err != nil {
		d.mu.Unlock()
		return err
	}
	// INTCAP holds the port at interrupt time; reading it clears INT.
	intf, intcap := flags[0], flags[1]
	calls := d.collectLocked(intf, intcap)
	d.mu.Unlock()
	for _, c := range calls {
		c()
	}
	return nil
}

// Poll reads the GPIO register and dispatches any pin whose level changed
// since the last observation. It serves boards without the INT line.
func (d *Device) Poll() error {
	d.mu.Lock()
	lvl, err := d.readReg(regGPIO)
	if err != nil {
		d.mu.Unlock()
		return err
	}
	calls := d.collectLocked(lvl^d.last, lvl)
	d.mu.Unlock()
	for _, c := range calls {
		c()
	}
	return nil
}

func (d *Device) collectLocked(changed, levels byte) []func() {
	var calls []func()
	for n := 0; n < NumPins; n++ {
		bit := byte(1) << n
		if changed&bit == 0 {
			continue
		}
		old := d.last&bit != 0
		now := levels&bit != 0
		d.last = setBit(d.last, bit, now)
		p := d.irq[n]
		if p == nil || p.handler == nil || !p.edge.Wants(old, now) {
			continue
		}
		h := p.handler
		calls = append(calls, func() { h(now) })
	}
	return calls
}

// Close detaches from the interrupt line and releases the control ports.
func (d *Device) Close() error {
	var err error
	if d.intr != nil {
		d.intr.SetHandler(nil)
		err = multierr.Append(err, d.intr.Close())
	}
	if d.reset != nil {
		err = multierr.Append(err, d.reset.Close())
	}
	return err
}

func (d *Device) readReg(reg byte) (byte, error) {
	d.buf[0] = reg
	if err := d.bus.Tx(d.addr, d.buf[:1], d.buf[1:2]); err != nil {
		return 0, err
	}
	return d.buf[1], nil
}

func (d *Device) writeReg(reg, v byte) error {
	d.buf[0], d.buf[1] = reg, v
	return d.bus.Tx(d.addr, d.buf[:2], nil)
}

func setBit(v, bit byte, on bool) byte {
	if on {
		return v | bit
	}
	return v &^ bit
}
