// Package sc16is7x2 provides a driver for the NXP SC16IS752/SC16IS762 I2C
// dual UART.
//
// Each of the two channels is opened as a hal.SerialPort. A channel can be
// opened in RS-485 mode, where the chip's RTS output drives the transceiver
// direction automatically while the transmit FIFO is not empty.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when
// both w and r are provided.
package sc16is7x2

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"tinygo.org/x/drivers"

	"projectlab-go/errcode"
	"projectlab-go/types"
)

// ---------------- Addressing and clocks ----------------

// DefaultAddress is the address with A1 and A0 tied to VDD.
const DefaultAddress = 0x48

// Crystal1_8432MHz is the crystal fitted on most carrier boards. It divides
// exactly to every standard baud rate up to 115200.
const Crystal1_8432MHz = 1_843_200

// pollInterval is how often a blocked Read or Write re-checks the FIFO level.
const pollInterval = time.Millisecond

// Channel selects UART A or B.
type Channel uint8

const (
	ChannelA Channel = 0
	ChannelB Channel = 1
)

func (c Channel) String() string {
	if c == ChannelB {
		return "B"
	}
	return "A"
}

var (
	ErrNotPresent = errors.New("sc16is7x2: device not responding")
	ErrBaud       = errors.New("sc16is7x2: baud rate not reachable from crystal")
	ErrFraming    = errors.New("sc16is7x2: unsupported framing")
	ErrPortOpen   = errors.New("sc16is7x2: channel already open")
)

// ---------------- Types and configuration ----------------

type Config struct {
	// Address defaults to DefaultAddress if zero.
	Address uint16
	// Crystal is the XTAL1 frequency in Hz. Defaults to Crystal1_8432MHz.
	Crystal uint32
	// Clock paces FIFO polling and timeouts. Defaults to the wall clock.
	Clock clock.Clock
}

// Device is one SC16IS7x2 on an I2C bus. Register access is serialised
// across both channels.
type Device struct {
	bus     drivers.I2C
	addr    uint16
	crystal uint32
	clk     clock.Clock

	mu    sync.Mutex
	ports [2]*Port
	w     [FIFOSize + 1]byte
	r     [1]byte
}

// New probes the device through its scratch-pad register and resets both
// FIFOs. Channels stay closed until OpenPort or OpenRS485Port.
func New(bus drivers.I2C, cfg Config) (*Device, error) {
	d := &Device{
		bus:     bus,
		addr:    cfg.Address,
		crystal: cfg.Crystal,
		clk:     cfg.Clock,
	}
	if d.addr == 0 {
		d.addr = DefaultAddress
	}
	if d.crystal == 0 {
		d.crystal = Crystal1_8432MHz
	}
	if d.clk == nil {
		d.clk = clock.New()
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ch := range []Channel{ChannelA, ChannelB} {
		const probe = 0x5A
		if err := d.writeReg(ch, regSPR, probe); err != nil {
			return nil, errcode.Wrap(errcode.Unavailable, d.name(), errors.Join(ErrNotPresent, err))
		}
		v, err := d.readReg(ch, regSPR)
		if err != nil || v != probe {
			return nil, errcode.Wrap(errcode.Unavailable, d.name(), errors.Join(ErrNotPresent, err))
		}
		if err := d.writeReg(ch, regFCR, fcrFIFOEnable|fcrRxReset|fcrTxReset); err != nil {
			return nil, err
		}
		if err := d.writeReg(ch, regEFCR, efcrRxDisable|efcrTxDisable); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (d *Device) Address() uint16 { return d.addr }
func (d *Device) Crystal() uint32 { return d.crystal }

func (d *Device) name() string { return "sc16is7x2@0x" + strconv.FormatUint(uint64(d.addr), 16) }

// Divisor returns the baud generator divisor for baud with the prescaler
// at 1, rounded to nearest, and the baud rate it actually produces.
func Divisor(crystal, baud uint32) (uint16, uint32, error) {
	if baud == 0 {
		return 0, 0, ErrBaud
	}
	div := (uint64(crystal) + 8*uint64(baud)) / (16 * uint64(baud))
	if div == 0 || div > 0xFFFF {
		return 0, 0, ErrBaud
	}
	actual := uint32(uint64(crystal) / (16 * div))
	// More than 2% off will not frame reliably.
	diff := int64(actual) - int64(baud)
	if diff < 0 {
		diff = -diff
	}
	if diff*50 > int64(baud) {
		return 0, 0, ErrBaud
	}
	return uint16(div), actual, nil
}

// LineControl encodes framing into the LCR value.
func LineControl(cfg types.SerialConfig) (byte, error) {
	if cfg.DataBits < 5 || cfg.DataBits > 8 {
		return 0, ErrFraming
	}
	lcr := byte(cfg.DataBits-5) | lcrWordLen5
	switch cfg.StopBits {
	case types.StopBitsOne:
	case types.StopBitsOnePointFive:
		// The chip produces 1.5 stop bits only for 5-bit words.
		if cfg.DataBits != 5 {
			return 0, ErrFraming
		}
		lcr |= lcrStop2
	case types.StopBitsTwo:
		if cfg.DataBits == 5 {
			return 0, ErrFraming
		}
		lcr |= lcrStop2
	default:
		return 0, ErrFraming
	}
	switch cfg.Parity {
	case types.ParityNone:
	case types.ParityOdd:
		lcr |= lcrParityOn
	case types.ParityEven:
		lcr |= lcrParityOn | lcrParityEven
	default:
		return 0, ErrFraming
	}
	return lcr, nil
}

// OpenPort opens ch as a plain UART.
func (d *Device) OpenPort(ch Channel, cfg types.SerialConfig) (*Port, error) {
	return d.open(ch, cfg, rs485Off, false)
}

// OpenRS485Port opens ch with automatic RS-485 direction control on RTS.
// With invert false RTS is high while transmitting.
func (d *Device) OpenRS485Port(ch Channel, cfg types.SerialConfig, invert bool) (*Port, error) {
	return d.open(ch, cfg, rs485On, invert)
}

type rs485Mode bool

const (
	rs485Off rs485Mode = false
	rs485On  rs485Mode = true
)

func (d *Device) open(ch Channel, cfg types.SerialConfig, mode rs485Mode, invert bool) (*Port, error) {
	if ch > ChannelB {
		return nil, errcode.New(errcode.UnknownBus, d.name(), "channel "+strconv.Itoa(int(ch)))
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ports[ch] != nil {
		return nil, errcode.Wrap(errcode.PinInUse, d.name(), ErrPortOpen)
	}
	p := &Port{d: d, ch: ch, rs485: bool(mode), invert: invert}
	if err := d.configureLocked(p, cfg); err != nil {
		return nil, err
	}
	d.ports[ch] = p
	return p, nil
}

// configureLocked programs divisor, framing, FIFOs and direction control.
func (d *Device) configureLocked(p *Port, cfg types.SerialConfig) error {
	cfg = cfg.WithDefaults()
	div, _, err := Divisor(d.crystal, cfg.Baud)
	if err != nil {
		return errcode.Wrap(errcode.InvalidParams, d.name(), err)
	}
	lcr, err := LineControl(cfg)
	if err != nil {
		return errcode.Wrap(errcode.InvalidParams, d.name(), err)
	}
	ch := p.ch
	steps := []struct{ reg, v byte }{
		{regLCR, lcrDivisorLatch},
		{regDLL, byte(div)},
		{regDLH, byte(div >> 8)},
		{regLCR, lcr},
		{regFCR, fcrFIFOEnable | fcrRxReset | fcrTxReset},
		{regEFCR, efcr(p.rs485, p.invert)},
	}
	for _, s := range steps {
		if err := d.writeReg(ch, s.reg, s.v); err != nil {
			return err
		}
	}
	p.cfg = cfg
	return nil
}

func efcr(rs485, invert bool) byte {
	var v byte
	if rs485 {
		v |= efcrRTSCon
		if invert {
			v |= efcrRTSInvert
		}
	}
	return v
}

// ---------------- FIFO access ----------------

func (d *Device) rxLevel(ch Channel) (int, error) {
	v, err := d.readReg(ch, regRXLVL)
	return int(v), err
}

func (d *Device) txSpace(ch Channel) (int, error) {
	v, err := d.readReg(ch, regTXLVL)
	return int(v), err
}

// readFIFO drains up to len(p) bytes from RHR in one transaction.
func (d *Device) readFIFO(ch Channel, p []byte) error {
	return d.bus.Tx(d.addr, []byte{Subaddress(regRHR, ch)}, p)
}

// writeFIFO pushes p (at most FIFOSize bytes) into THR in one transaction.
func (d *Device) writeFIFO(ch Channel, p []byte) error {
	d.w[0] = Subaddress(regTHR, ch)
	n := copy(d.w[1:], p)
	return d.bus.Tx(d.addr, d.w[:1+n], nil)
}

func (d *Device) readReg(ch Channel, reg byte) (byte, error) {
	if err := d.bus.Tx(d.addr, []byte{Subaddress(reg, ch)}, d.r[:]); err != nil {
		return 0, err
	}
	return d.r[0], nil
}

func (d *Device) writeReg(ch Channel, reg, v byte) error {
	d.w[0], d.w[1] = Subaddress(reg, ch), v
	return d.bus.Tx(d.addr, d.w[:2], nil)
}
