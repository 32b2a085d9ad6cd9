// Package tft drives MIPI-DCS style TFT controllers (ILI9341, ST7789) over
// a hal.SPIBus with chip-select, data/command and reset lines supplied as
// digital output ports, so the control lines may sit on an IO expander.
//
// Only raw controller access is provided: windows, fills and pixel writes.
package tft

import (
	"errors"
	"image/color"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"

	"projectlab-go/errcode"
	"projectlab-go/hal"
)

// ---------------- Controllers ----------------

type Controller uint8

const (
	ILI9341 Controller = iota + 1
	ST7789
)

func (c Controller) String() string {
	switch c {
	case ILI9341:
		return "ili9341"
	case ST7789:
		return "st7789"
	default:
		return "unknown"
	}
}

// Rotation is the clockwise rotation of the panel in degrees.
type Rotation uint16

const (
	Rotation0   Rotation = 0
	Rotation90  Rotation = 90
	Rotation180 Rotation = 180
	Rotation270 Rotation = 270
)

// ColorMode is the pixel format sent over SPI.
type ColorMode uint8

const (
	RGB565 ColorMode = iota // 16 bpp
	RGB444                  // 12 bpp, two pixels per three bytes
)

// MIPI DCS commands used by both controllers.
const (
	cmdSWRESET = 0x01
	cmdSLPIN   = 0x10
	cmdSLPOUT  = 0x11
	cmdNORON   = 0x13
	cmdINVOFF  = 0x20
	cmdINVON   = 0x21
	cmdDISPOFF = 0x28
	cmdDISPON  = 0x29
	cmdCASET   = 0x2A
	cmdRASET   = 0x2B
	cmdRAMWR   = 0x2C
	cmdMADCTL  = 0x36
	cmdCOLMOD  = 0x3A
)

// MADCTL bits.
const (
	madMY  = 0x80
	madMX  = 0x40
	madMV  = 0x20
	madBGR = 0x08
)

const (
	resetPulse = 10 * time.Millisecond
	resetWait  = 120 * time.Millisecond
	wakeWait   = 120 * time.Millisecond
)

var ErrBounds = errors.New("tft: window out of bounds")

// Config selects geometry and bus parameters. Zero Width/Height take the
// controller's native panel size.
type Config struct {
	Width, Height int16
	Rotation      Rotation
	ColorMode     ColorMode
	SPI           hal.SPIConfig
	// Clock paces the reset and wake delays. Defaults to the wall clock.
	Clock clock.Clock
}

// Display is one initialised panel.
type Display struct {
	ctrl Controller
	spi  hal.SPIBus
	cs   hal.DigitalOutputPort
	dc   hal.DigitalOutputPort
	rst  hal.DigitalOutputPort
	clk  clock.Clock

	nativeW, nativeH int16 // panel geometry at rotation 0
	width, height    int16
	rowOff, colOff   int16
	rotation         Rotation
	mode             ColorMode
	spiCfg           hal.SPIConfig

	buf [96]byte
}

// New resets and initialises the controller. rst may be nil when the reset
// line is not wired.
func New(ctrl Controller, spi hal.SPIBus, cs, dc, rst hal.DigitalOutputPort, cfg Config) (*Display, error) {
	if spi == nil || dc == nil {
		return nil, errcode.New(errcode.InvalidParams, "tft", "spi bus and dc port are required")
	}
	d := &Display{ctrl: ctrl, spi: spi, cs: cs, dc: dc, rst: rst, clk: cfg.Clock, mode: cfg.ColorMode, spiCfg: cfg.SPI}
	if d.clk == nil {
		d.clk = clock.New()
	}
	d.nativeW, d.nativeH = cfg.Width, cfg.Height
	if d.nativeW == 0 || d.nativeH == 0 {
		switch ctrl {
		case ILI9341:
			d.nativeW, d.nativeH = 240, 320
		case ST7789:
			d.nativeW, d.nativeH = 240, 240
		default:
			return nil, errcode.New(errcode.Unsupported, "tft", "controller "+ctrl.String())
		}
	}
	if err := spi.Configure(cfg.SPI); err != nil {
		return nil, err
	}
	if err := d.reset(); err != nil {
		return nil, err
	}
	if err := d.init(); err != nil {
		return nil, err
	}
	if err := d.SetRotation(cfg.Rotation); err != nil {
		return nil, err
	}
	if err := d.Command(cmdDISPON); err != nil {
		return nil, err
	}
	return d, nil
}

func (d *Display) Controller() Controller { return d.ctrl }
func (d *Display) ColorMode() ColorMode   { return d.mode }
func (d *Display) Rotation() Rotation     { return d.rotation }
func (d *Display) SPIConfig() hal.SPIConfig {
	return d.spiCfg
}

// Size returns the drawable size at the current rotation.
func (d *Display) Size() (w, h int16) { return d.width, d.height }

func (d *Display) reset() error {
	if d.cs != nil {
		if err := d.cs.Set(true); err != nil {
			return err
		}
	}
	if d.rst == nil {
		if err := d.Command(cmdSWRESET); err != nil {
			return err
		}
		d.clk.Sleep(resetWait)
		return nil
	}
	for _, step := range []struct {
		level bool
		wait  time.Duration
	}{{true, resetPulse}, {false, resetPulse}, {true, resetWait}} {
		if err := d.rst.Set(step.level); err != nil {
			return err
		}
		d.clk.Sleep(step.wait)
	}
	return nil
}

func (d *Display) init() error {
	if err := d.Command(cmdSLPOUT); err != nil {
		return err
	}
	d.clk.Sleep(wakeWait)

	colmod := byte(0x55)
	if d.mode == RGB444 {
		colmod = 0x53
	}
	if err := d.Command(cmdCOLMOD, colmod); err != nil {
		return err
	}
	// IPS ST7789 panels are wired inverted.
	inv := byte(cmdINVOFF)
	if d.ctrl == ST7789 {
		inv = cmdINVON
	}
	if err := d.Command(inv); err != nil {
		return err
	}
	return d.Command(cmdNORON)
}

// SetRotation programs the scan direction and updates Size.
func (d *Display) SetRotation(r Rotation) error {
	mad, err := madctl(d.ctrl, r)
	if err != nil {
		return err
	}
	if err := d.Command(cmdMADCTL, mad); err != nil {
		return err
	}
	d.rotation = r
	d.width, d.height = d.nativeW, d.nativeH
	if r == Rotation90 || r == Rotation270 {
		d.width, d.height = d.nativeH, d.nativeW
	}
	d.rowOff, d.colOff = 0, 0
	// A square ST7789 panel sits at one end of the 240x320 frame memory.
	if d.ctrl == ST7789 && d.nativeH < 320 {
		gap := 320 - d.nativeH
		switch r {
		case Rotation180:
			d.rowOff = gap
		case Rotation270:
			d.colOff = gap
		}
	}
	return nil
}

func madctl(ctrl Controller, r Rotation) (byte, error) {
	switch ctrl {
	case ILI9341:
		switch r {
		case Rotation0:
			return madMX | madBGR, nil
		case Rotation90:
			return madMV | madBGR, nil
		case Rotation180:
			return madMY | madBGR, nil
		case Rotation270:
			return madMX | madMY | madMV | madBGR, nil
		}
	case ST7789:
		switch r {
		case Rotation0:
			return 0, nil
		case Rotation90:
			return madMX | madMV, nil
		case Rotation180:
			return madMX | madMY, nil
		case Rotation270:
			return madMY | madMV, nil
		}
	}
	return 0, errcode.New(errcode.InvalidParams, "tft", "rotation")
}

// ---------------- Drawing ----------------

// SetWindow selects the frame memory region written by the next RAMWR.
func (d *Display) SetWindow(x, y, w, h int16) error {
	if w <= 0 || h <= 0 || x < 0 || y < 0 || x+w > d.width || y+h > d.height {
		return errcode.Wrap(errcode.InvalidParams, "tft", ErrBounds)
	}
	x0, x1 := uint16(x+d.colOff), uint16(x+w-1+d.colOff)
	y0, y1 := uint16(y+d.rowOff), uint16(y+h-1+d.rowOff)
	if err := d.Command(cmdCASET, byte(x0>>8), byte(x0), byte(x1>>8), byte(x1)); err != nil {
		return err
	}
	return d.Command(cmdRASET, byte(y0>>8), byte(y0), byte(y1>>8), byte(y1))
}

// FillRect paints a rectangle with one colour.
func (d *Display) FillRect(x, y, w, h int16, c color.RGBA) error {
	if err := d.SetWindow(x, y, w, h); err != nil {
		return err
	}
	n := int(w) * int(h)
	return d.stream(func(emit func(color.RGBA) error) error {
		for i := 0; i < n; i++ {
			if err := emit(c); err != nil {
				return err
			}
		}
		return nil
	})
}

// Fill paints the whole screen.
func (d *Display) Fill(c color.RGBA) error { return d.FillRect(0, 0, d.width, d.height, c) }

// SetPixel paints a single pixel.
func (d *Display) SetPixel(x, y int16, c color.RGBA) error { return d.FillRect(x, y, 1, 1, c) }

// DrawBitmap writes w*h pixels in row-major order.
func (d *Display) DrawBitmap(x, y, w, h int16, px []color.RGBA) error {
	if len(px) != int(w)*int(h) {
		return errcode.New(errcode.InvalidParams, "tft", "bitmap size")
	}
	if err := d.SetWindow(x, y, w, h); err != nil {
		return err
	}
	return d.stream(func(emit func(color.RGBA) error) error {
		for _, c := range px {
			if err := emit(c); err != nil {
				return err
			}
		}
		return nil
	})
}

// stream starts RAMWR and packs the produced pixels into the chunk buffer
// in the configured colour mode.
func (d *Display) stream(produce func(emit func(color.RGBA) error) error) error {
	if err := d.begin(); err != nil {
		return err
	}
	defer d.end()
	if err := d.writeCmd(cmdRAMWR); err != nil {
		return err
	}
	if err := d.dc.Set(true); err != nil {
		return err
	}

	n := 0
	var half uint16 // pending 12-bit pixel in RGB444 mode
	odd := false
	flushAt := len(d.buf) - 3
	flush := func() error {
		if n == 0 {
			return nil
		}
		err := d.spi.Tx(d.buf[:n], nil)
		n = 0
		return err
	}
	emit := func(c color.RGBA) error {
		switch d.mode {
		case RGB444:
			v := RGB444Of(c)
			if !odd {
				half, odd = v, true
				return nil
			}
			d.buf[n] = byte(half >> 4)
			d.buf[n+1] = byte(half<<4) | byte(v>>8)
			d.buf[n+2] = byte(v)
			n += 3
			odd = false
		default:
			v := RGB565Of(c)
			d.buf[n], d.buf[n+1] = byte(v>>8), byte(v)
			n += 2
		}
		if n >= flushAt {
			return flush()
		}
		return nil
	}
	if err := produce(emit); err != nil {
		return err
	}
	if odd {
		d.buf[n] = byte(half >> 4)
		d.buf[n+1] = byte(half << 4)
		n += 2
	}
	return flush()
}

// RGB565Of packs c into 16 bits.
func RGB565Of(c color.RGBA) uint16 {
	return uint16(c.R&0xF8)<<8 | uint16(c.G&0xFC)<<3 | uint16(c.B)>>3
}

// RGB444Of packs c into the low 12 bits.
func RGB444Of(c color.RGBA) uint16 {
	return uint16(c.R>>4)<<8 | uint16(c.G>>4)<<4 | uint16(c.B>>4)
}

// ---------------- Power ----------------

// Sleep enters or leaves controller sleep mode.
func (d *Display) Sleep(on bool) error {
	if on {
		if err := d.Command(cmdDISPOFF); err != nil {
			return err
		}
		return d.Command(cmdSLPIN)
	}
	if err := d.Command(cmdSLPOUT); err != nil {
		return err
	}
	d.clk.Sleep(wakeWait)
	return d.Command(cmdDISPON)
}

// Invert toggles colour inversion relative to the panel default.
func (d *Display) Invert(on bool) error {
	if (d.ctrl == ST7789) != on {
		return d.Command(cmdINVOFF)
	}
	return d.Command(cmdINVON)
}

// Close releases the control ports. The SPI bus belongs to the caller.
func (d *Display) Close() error {
	var err error
	for _, p := range []hal.DigitalOutputPort{d.cs, d.dc, d.rst} {
		if p != nil {
			err = multierr.Append(err, p.Close())
		}
	}
	return err
}

// ---------------- Bus access ----------------

// Command sends cmd followed by its parameter bytes in one chip-select
// frame.
func (d *Display) Command(cmd byte, params ...byte) error {
	if err := d.begin(); err != nil {
		return err
	}
	defer d.end()
	if err := d.writeCmd(cmd); err != nil {
		return err
	}
	if len(params) == 0 {
		return nil
	}
	if err := d.dc.Set(true); err != nil {
		return err
	}
	return d.spi.Tx(params, nil)
}

func (d *Display) writeCmd(cmd byte) error {
	if err := d.dc.Set(false); err != nil {
		return err
	}
	d.buf[0] = cmd
	return d.spi.Tx(d.buf[:1], nil)
}

func (d *Display) begin() error {
	if d.cs == nil {
		return nil
	}
	return d.cs.Set(false)
}

func (d *Display) end() {
	if d.cs != nil {
		_ = d.cs.Set(true)
	}
}
