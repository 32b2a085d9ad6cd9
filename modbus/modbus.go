// Package modbus implements a Modbus RTU client over a serial port.
//
// On a half-duplex RS-485 link the transceiver direction is either switched
// by the UART itself (auto-direction) or by a driver-enable output that the
// client raises for the duration of each request.
package modbus

import (
	"context"
	"encoding/binary"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"github.com/sigurn/crc16"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/types"
)

// Function codes.
const (
	FuncReadCoils              = 0x01
	FuncReadDiscreteInputs     = 0x02
	FuncReadHoldingRegisters   = 0x03
	FuncReadInputRegisters     = 0x04
	FuncWriteSingleCoil        = 0x05
	FuncWriteSingleRegister    = 0x06
	FuncWriteMultipleCoils     = 0x0F
	FuncWriteMultipleRegisters = 0x10
)

// Protocol limits per request.
const (
	MaxReadRegisters  = 125
	MaxWriteRegisters = 123
	MaxReadBits       = 2000
	MaxWriteBits      = 1968
)

const (
	DefaultResponseTimeout = time.Second
	maxADU                 = 256
	pollInterval           = time.Millisecond
)

var crcTable = crc16.MakeTable(crc16.CRC16_MODBUS)

// CRC returns the Modbus CRC of b.
func CRC(b []byte) uint16 { return crc16.Checksum(b, crcTable) }

var (
	ErrCRC          = errors.New("modbus: crc mismatch")
	ErrShortFrame   = errors.New("modbus: short frame")
	ErrUnexpected   = errors.New("modbus: unexpected response")
	ErrNotConnected = errors.New("modbus: client not connected")
)

// ExceptionError is an exception response from a server.
type ExceptionError struct {
	Function  byte
	Exception byte
}

func (e *ExceptionError) Error() string {
	return "modbus: exception " + strconv.Itoa(int(e.Exception)) + " (" + exceptionText(e.Exception) + ") for function " + strconv.Itoa(int(e.Function))
}

func (e *ExceptionError) Code() errcode.Code { return errcode.Protocol }

func exceptionText(c byte) string {
	switch c {
	case 1:
		return "illegal function"
	case 2:
		return "illegal data address"
	case 3:
		return "illegal data value"
	case 4:
		return "server device failure"
	case 6:
		return "server device busy"
	default:
		return "unknown"
	}
}

type Config struct {
	// Serial is the framing the port was opened with. It sets the
	// inter-frame gap and the turnaround hold of the driver-enable line.
	Serial types.SerialConfig
	// DriverEnable is raised while transmitting. Nil when the UART
	// switches direction itself.
	DriverEnable hal.DigitalOutputPort
	// ResponseTimeout bounds the wait for each reply. Defaults to the
	// serial ReadTimeout, then DefaultResponseTimeout.
	ResponseTimeout time.Duration
	Clock           clock.Clock
	Logger          *zap.SugaredLogger
}

// Client is safe for concurrent use; requests are serialised.
type Client struct {
	port    hal.SerialPort
	de      hal.DigitalOutputPort
	serial  types.SerialConfig
	timeout time.Duration
	clk     clock.Clock
	log     *zap.SugaredLogger

	mu        sync.Mutex
	connected bool
	lastTx    time.Time
	buf       [maxADU]byte
}

// NewClient wraps an open serial port. The client is connected on return.
func NewClient(port hal.SerialPort, cfg Config) *Client {
	c := &Client{
		port:      port,
		de:        cfg.DriverEnable,
		serial:    cfg.Serial.WithDefaults(),
		timeout:   cfg.ResponseTimeout,
		clk:       cfg.Clock,
		log:       cfg.Logger,
		connected: true,
	}
	if c.timeout <= 0 {
		c.timeout = c.serial.ReadTimeout
	}
	if c.timeout <= 0 {
		c.timeout = DefaultResponseTimeout
	}
	if c.clk == nil {
		c.clk = clock.New()
	}
	if c.log == nil {
		c.log = zap.NewNop().Sugar()
	}
	return c
}

func (c *Client) SerialConfig() types.SerialConfig { return c.serial }
func (c *Client) HasDriverEnable() bool            { return c.de != nil }

// Connect re-enables a client after Disconnect.
func (c *Client) Connect() {
	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()
}

// Disconnect makes further requests fail without closing the port.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.connected = false
	c.mu.Unlock()
}

func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Close releases the serial port and driver-enable line.
func (c *Client) Close() error {
	c.Disconnect()
	err := c.port.Close()
	if c.de != nil {
		err = multierr.Append(err, c.de.Close())
	}
	return err
}

// charTime is the duration of one character on the wire.
func (c *Client) charTime() time.Duration {
	bits := 1 + int(c.serial.DataBits) + 1
	if c.serial.Parity != types.ParityNone {
		bits++
	}
	if c.serial.StopBits == types.StopBitsTwo {
		bits++
	}
	return time.Duration(bits) * time.Second / time.Duration(c.serial.Baud)
}

// frameGap is the silent interval separating frames: 3.5 characters, fixed
// at 1.75 ms above 19200 baud.
func (c *Client) frameGap() time.Duration {
	if c.serial.Baud > 19200 {
		return 1750 * time.Microsecond
	}
	return c.charTime() * 7 / 2
}

// ---------------- Requests ----------------

func (c *Client) ReadHoldingRegisters(ctx context.Context, unit byte, start, count uint16) ([]uint16, error) {
	return c.readRegisters(ctx, unit, FuncReadHoldingRegisters, start, count)
}

func (c *Client) ReadInputRegisters(ctx context.Context, unit byte, start, count uint16) ([]uint16, error) {
	return c.readRegisters(ctx, unit, FuncReadInputRegisters, start, count)
}

func (c *Client) ReadCoils(ctx context.Context, unit byte, start, count uint16) ([]bool, error) {
	return c.readBits(ctx, unit, FuncReadCoils, start, count)
}

func (c *Client) ReadDiscreteInputs(ctx context.Context, unit byte, start, count uint16) ([]bool, error) {
	return c.readBits(ctx, unit, FuncReadDiscreteInputs, start, count)
}

func (c *Client) WriteHoldingRegister(ctx context.Context, unit byte, addr, value uint16) error {
	pdu := binary.BigEndian.AppendUint16([]byte{FuncWriteSingleRegister}, addr)
	pdu = binary.BigEndian.AppendUint16(pdu, value)
	resp, err := c.transact(ctx, unit, pdu)
	if err != nil {
		return err
	}
	return expectEcho(pdu, resp)
}

func (c *Client) WriteCoil(ctx context.Context, unit byte, addr uint16, on bool) error {
	var v uint16
	if on {
		v = 0xFF00
	}
	pdu := binary.BigEndian.AppendUint16([]byte{FuncWriteSingleCoil}, addr)
	pdu = binary.BigEndian.AppendUint16(pdu, v)
	resp, err := c.transact(ctx, unit, pdu)
	if err != nil {
		return err
	}
	return expectEcho(pdu, resp)
}

func (c *Client) WriteHoldingRegisters(ctx context.Context, unit byte, start uint16, values []uint16) error {
	if len(values) == 0 || len(values) > MaxWriteRegisters {
		return errcode.New(errcode.InvalidParams, "modbus", "register count")
	}
	pdu := binary.BigEndian.AppendUint16([]byte{FuncWriteMultipleRegisters}, start)
	pdu = binary.BigEndian.AppendUint16(pdu, uint16(len(values)))
	pdu = append(pdu, byte(2*len(values)))
	for _, v := range values {
		pdu = binary.BigEndian.AppendUint16(pdu, v)
	}
	resp, err := c.transact(ctx, unit, pdu)
	if err != nil {
		return err
	}
	return expectEcho(pdu[:5], resp)
}

func (c *Client) WriteCoils(ctx context.Context, unit byte, start uint16, values []bool) error {
	if len(values) == 0 || len(values) > MaxWriteBits {
		return errcode.New(errcode.InvalidParams, "modbus", "coil count")
	}
	packed := make([]byte, (len(values)+7)/8)
	for i, on := range values {
		if on {
			packed[i/8] |= 1 << (i % 8)
		}
	}
	pdu := binary.BigEndian.AppendUint16([]byte{FuncWriteMultipleCoils}, start)
	pdu = binary.BigEndian.AppendUint16(pdu, uint16(len(values)))
	pdu = append(pdu, byte(len(packed)))
	pdu = append(pdu, packed...)
	resp, err := c.transact(ctx, unit, pdu)
	if err != nil {
		return err
	}
	return expectEcho(pdu[:5], resp)
}

func (c *Client) readRegisters(ctx context.Context, unit, fn byte, start, count uint16) ([]uint16, error) {
	if count == 0 || count > MaxReadRegisters {
		return nil, errcode.New(errcode.InvalidParams, "modbus", "register count")
	}
	if unit == 0 {
		return nil, errcode.New(errcode.InvalidParams, "modbus", "broadcast read")
	}
	pdu := binary.BigEndian.AppendUint16([]byte{fn}, start)
	pdu = binary.BigEndian.AppendUint16(pdu, count)
	resp, err := c.transact(ctx, unit, pdu)
	if err != nil {
		return nil, err
	}
	if len(resp) != 2+2*int(count) || int(resp[1]) != 2*int(count) {
		return nil, errcode.Wrap(errcode.Protocol, "modbus", ErrUnexpected)
	}
	out := make([]uint16, count)
	for i := range out {
		out[i] = binary.BigEndian.Uint16(resp[2+2*i:])
	}
	return out, nil
}

func (c *Client) readBits(ctx context.Context, unit, fn byte, start, count uint16) ([]bool, error) {
	if count == 0 || count > MaxReadBits {
		return nil, errcode.New(errcode.InvalidParams, "modbus", "bit count")
	}
	if unit == 0 {
		return nil, errcode.New(errcode.InvalidParams, "modbus", "broadcast read")
	}
	pdu := binary.BigEndian.AppendUint16([]byte{fn}, start)
	pdu = binary.BigEndian.AppendUint16(pdu, count)
	resp, err := c.transact(ctx, unit, pdu)
	if err != nil {
		return nil, err
	}
	n := (int(count) + 7) / 8
	if len(resp) != 2+n || int(resp[1]) != n {
		return nil, errcode.Wrap(errcode.Protocol, "modbus", ErrUnexpected)
	}
	out := make([]bool, count)
	for i := range out {
		out[i] = resp[2+i/8]&(1<<(i%8)) != 0
	}
	return out, nil
}

// expectEcho checks a write response. Broadcasts have none.
func expectEcho(want, resp []byte) error {
	if resp == nil {
		return nil
	}
	if len(resp) < len(want) {
		return errcode.Wrap(errcode.Protocol, "modbus", ErrShortFrame)
	}
	for i := range want {
		if resp[i] != want[i] {
			return errcode.Wrap(errcode.Protocol, "modbus", ErrUnexpected)
		}
	}
	return nil
}

// ---------------- Framing ----------------

// transact sends one request PDU to unit and returns the response PDU
// (function code onwards, CRC stripped). Broadcasts (unit 0) return nil.
func (c *Client) transact(ctx context.Context, unit byte, pdu []byte) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.connected {
		return nil, errcode.Wrap(errcode.Unavailable, "modbus", ErrNotConnected)
	}

	adu := append([]byte{unit}, pdu...)
	adu = binary.LittleEndian.AppendUint16(adu, CRC(adu))

	if wait := c.frameGap() - c.clk.Since(c.lastTx); wait > 0 {
		c.clk.Sleep(wait)
	}
	if err := c.send(adu); err != nil {
		return nil, err
	}
	c.log.Debugw("modbus request", "unit", unit, "function", pdu[0], "len", len(adu))
	if unit == 0 {
		return nil, nil
	}

	resp, err := c.receive(ctx, unit, pdu[0])
	if err != nil {
		c.log.Debugw("modbus response failed", "unit", unit, "function", pdu[0], "error", err)
		return nil, err
	}
	return resp, nil
}

func (c *Client) send(adu []byte) error {
	if c.de != nil {
		if err := c.de.Set(true); err != nil {
			return err
		}
	}
	_, err := c.port.Write(adu)
	if c.de != nil {
		// Hold the transmitter until the last character has left the UART.
		c.clk.Sleep(c.charTime() * time.Duration(len(adu)))
		err = multierr.Append(err, c.de.Set(false))
	}
	c.lastTx = c.clk.Now()
	return err
}

// receive reads one response frame for fn from unit.
func (c *Client) receive(ctx context.Context, unit, fn byte) ([]byte, error) {
	deadline := c.clk.Now().Add(c.timeout)
	frame := c.buf[:0]
	want := 5 // smallest complete frame: unit, fn, exception, crc
	for len(frame) < want {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := c.port.Read(c.buf[len(frame):want])
		frame = c.buf[:len(frame)+n]
		if err != nil && !isReadTimeout(err) {
			return nil, err
		}
		if n == 0 {
			if !c.clk.Now().Before(deadline) {
				return nil, errcode.Wrap(errcode.Timeout, "modbus", errTimeoutFrom(unit, fn))
			}
			c.clk.Sleep(pollInterval)
			continue
		}
		if len(frame) >= 3 {
			l, err := expectedLen(fn, frame)
			if err != nil {
				return nil, err
			}
			want = l
		}
	}

	if got := binary.LittleEndian.Uint16(frame[len(frame)-2:]); got != CRC(frame[:len(frame)-2]) {
		return nil, errcode.Wrap(errcode.Protocol, "modbus", ErrCRC)
	}
	if frame[0] != unit {
		return nil, errcode.Wrap(errcode.Protocol, "modbus", ErrUnexpected)
	}
	if frame[1] == fn|0x80 {
		return nil, &ExceptionError{Function: fn, Exception: frame[2]}
	}
	if frame[1] != fn {
		return nil, errcode.Wrap(errcode.Protocol, "modbus", ErrUnexpected)
	}
	return append([]byte(nil), frame[1:len(frame)-2]...), nil
}

// expectedLen derives the full ADU length from the first three bytes.
func expectedLen(fn byte, head []byte) (int, error) {
	if head[1] == fn|0x80 {
		return 5, nil
	}
	switch fn {
	case FuncReadCoils, FuncReadDiscreteInputs, FuncReadHoldingRegisters, FuncReadInputRegisters:
		n := 3 + int(head[2]) + 2
		if n > maxADU {
			return 0, errcode.Wrap(errcode.Protocol, "modbus", ErrUnexpected)
		}
		return n, nil
	default:
		return 8, nil
	}
}

// isReadTimeout reports whether err only means "nothing arrived yet".
func isReadTimeout(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, errcode.Timeout)
}

func errTimeoutFrom(unit, fn byte) error {
	return errors.Errorf("no response from unit %d to function %#02x", unit, fn)
}
