// Package projectlab is the board-support package for the Project Lab
// carrier boards. Create inspects the host module, brings up the IO
// expanders and buttons of the detected revision and hands back a Hardware
// whose display, speaker, LED and connector tables are built on first use.
package projectlab

import (
	"strconv"

	"github.com/benbjohnson/clock"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"tinygo.org/x/drivers"

	"projectlab-go/bus"
	"projectlab-go/connector"
	"projectlab-go/devices/button"
	"projectlab-go/devices/piezo"
	"projectlab-go/devices/rgbled"
	"projectlab-go/drivers/tft"
	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/modbus"
	"projectlab-go/projectlab/internal/platform"
	"projectlab-go/types"
)

// TopicState carries the retained types.BoardState.
var TopicState = bus.T("projectlab", "state")

// Hardware is one Project Lab carrier. Peripherals that failed to come up
// are nil; connectors report why they are unavailable.
type Hardware interface {
	RevisionString() string
	Revision() types.Revision
	Family() types.Family
	I2C() drivers.I2C

	Display() *tft.Display
	Speaker() *piezo.Speaker
	RgbLed() *rgbled.LED

	UpButton() *button.PushButton
	DownButton() *button.PushButton
	LeftButton() *button.PushButton
	RightButton() *button.PushButton

	MikroBus1() (*connector.Connector, error)
	MikroBus2() (*connector.Connector, error)
	GroveDigital() (*connector.Connector, error)
	GroveAnalog() (*connector.Connector, error)
	GroveUart() (*connector.Connector, error)
	Qwiic() (*connector.Connector, error)
	IOTerminal() (*connector.Connector, error)
	DisplayHeader() (*connector.Connector, error)

	// ModbusRtuClient opens the RS-485 port with cfg (zero fields take
	// types.DefaultSerialConfig). The client belongs to the caller.
	ModbusRtuClient(cfg types.SerialConfig) (*modbus.Client, error)

	Close() error
}

var (
	_ Hardware = (*V1)(nil)
	_ Hardware = (*V3)(nil)
)

// Create builds the hardware object matching dev's host module. Expander
// and peripheral failures are logged and leave the dependent parts nil;
// only an unsupported host is an error.
func Create(dev hal.Device, i2c drivers.I2C, opts ...Option) (Hardware, error) {
	if dev == nil {
		return nil, errcode.New(errcode.InvalidParams, "projectlab", "nil device")
	}
	o := buildOptions(opts)
	switch dev.Family() {
	case types.FamilyF7FeatherV2:
		return newV1(dev, i2c, o), nil
	case types.FamilyF7CoreComputeV2:
		return newV3(dev, i2c, o), nil
	default:
		return nil, errcode.New(errcode.Unsupported, "projectlab", "host module "+string(dev.Family()))
	}
}

// ---------------- Shared parts ----------------

// base holds what both revisions share: the host, the logger and the
// lazily built peripherals.
type base struct {
	dev   hal.Device
	i2c   drivers.I2C
	board *platform.Board
	log   *zap.SugaredLogger
	clk   clock.Clock
	conn  *bus.Connection
	opts  options

	up, down, left, right *button.PushButton

	spi     lazy[hal.SPIBus]
	display lazy[*tft.Display]
	speaker lazy[*piezo.Speaker]
	led     lazy[*rgbled.LED]

	speakerPin string
	ledPins    [3]string

	closed bool
}

func newBase(dev hal.Device, i2c drivers.I2C, o options) base {
	b := base{
		dev:  dev,
		i2c:  i2c,
		log:  o.log.Named("projectlab").Sugar(),
		clk:  o.clk,
		opts: o,
	}
	b.board, _ = platform.Lookup(dev.Family())
	if o.bus != nil {
		b.conn = o.bus.NewConnection("projectlab")
	}
	return b
}

func (b *base) Family() types.Family { return b.dev.Family() }
func (b *base) I2C() drivers.I2C     { return b.i2c }

func (b *base) UpButton() *button.PushButton    { return b.up }
func (b *base) DownButton() *button.PushButton  { return b.down }
func (b *base) LeftButton() *button.PushButton  { return b.left }
func (b *base) RightButton() *button.PushButton { return b.right }

// hostPin names a pin of the host module.
func (b *base) hostPin(name string) hal.Pin { return hal.Pin{Name: name, Controller: b.dev} }

func (b *base) checkPins(names ...string) error {
	for _, n := range names {
		if err := b.board.CheckPin(n); err != nil {
			return err
		}
	}
	return nil
}

// spiBus is the host SPI bus on SCK/COPI/CIPO, shared by the display and
// connectors. The first caller's config is kept; the display sets its own
// once, when it is built, and never again.
func (b *base) spiBus(cfg hal.SPIConfig) (hal.SPIBus, error) {
	return b.spi.get(func() (hal.SPIBus, error) {
		if err := b.checkPins("SCK", "COPI", "CIPO"); err != nil {
			return nil, err
		}
		s, err := b.dev.CreateSPIBus("SCK", "COPI", "CIPO", cfg)
		if err != nil {
			return nil, err
		}
		b.log.Debugw("spi bus up", "hz", cfg.Frequency)
		return s, nil
	})
}

func (b *base) Speaker() *piezo.Speaker {
	s, _ := b.speaker.get(func() (*piezo.Speaker, error) {
		b.log.Debugw("creating speaker", "pin", b.speakerPin)
		if err := b.checkPins(b.speakerPin); err != nil {
			b.log.Errorw("unable to create the piezo speaker", "pin", b.speakerPin, "error", err)
			return nil, err
		}
		s, err := piezo.FromPin(b.dev, b.speakerPin, b.clk)
		if err != nil {
			b.log.Errorw("unable to create the piezo speaker", "pin", b.speakerPin, "error", err)
			return nil, err
		}
		return s, nil
	})
	return s
}

func (b *base) RgbLed() *rgbled.LED {
	l, _ := b.led.get(func() (*rgbled.LED, error) {
		r, g, bl := b.ledPins[0], b.ledPins[1], b.ledPins[2]
		b.log.Debugw("creating rgb led", "red", r, "green", g, "blue", bl)
		if err := b.checkPins(r, g, bl); err != nil {
			b.log.Errorw("unable to create the rgb led", "error", err)
			return nil, err
		}
		l, err := rgbled.FromPins(b.dev, r, g, bl, rgbled.Config{Common: rgbled.CommonAnode})
		if err != nil {
			b.log.Errorw("unable to create the rgb led", "error", err)
			return nil, err
		}
		return l, nil
	})
	return l
}

// newButton wraps pin in a push button named name. A failure is logged and
// yields nil.
func (b *base) newButton(name string, pin hal.Pin, pull hal.Pull, activeLow bool) *button.PushButton {
	btn, err := button.FromPin(pin, pull, button.Config{
		Name:      name,
		ActiveLow: activeLow,
		Conn:      b.conn,
		Clock:     b.clk,
	})
	if err != nil {
		b.log.Errorw("unable to create button", "button", name, "pin", pin.Key(), "error", err)
		return nil
	}
	return btn
}

// finish validates a connector table and checks its host pins against the
// module descriptor.
func (b *base) finish(c *connector.Connector) (*connector.Connector, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	for _, a := range c.Pins {
		if a.Pin.Controller != hal.PinController(b.dev) {
			continue
		}
		if err := b.board.CheckPin(a.Pin.Name); err != nil {
			return nil, errcode.Wrap(errcode.UnknownPin, c.Name, err)
		}
	}
	if c.I2C != nil && !b.board.HasI2C(c.I2C.Bus) {
		return nil, errcode.New(errcode.UnknownBus, c.Name, "i2c bus "+strconv.Itoa(c.I2C.Bus)+" not on "+b.board.Name)
	}
	if name := c.Serial.PortName; name != "" && !b.board.HasUART(name) {
		return nil, errcode.New(errcode.UnknownBus, c.Name, "serial port "+name+" not on "+b.board.Name)
	}
	b.log.Debugw("connector ready", "connector", c.Name, "kind", string(c.Kind))
	return c, nil
}

// publishState stores the retained board state when a bus is attached.
func (b *base) publishState(rev string, present, missing []string) {
	if b.conn == nil {
		return
	}
	b.conn.Publish(b.conn.NewMessage(TopicState, types.BoardState{
		Family:   b.dev.Family(),
		Revision: rev,
		Present:  present,
		Missing:  missing,
	}, true))
}

// closeBase releases the peripherals both revisions own.
func (b *base) closeBase() error {
	if b.closed {
		return nil
	}
	b.closed = true
	var err error
	for _, btn := range []*button.PushButton{b.up, b.down, b.left, b.right} {
		if btn != nil {
			err = multierr.Append(err, btn.Close())
		}
	}
	b.up, b.down, b.left, b.right = nil, nil, nil, nil
	if d, ok := b.display.peek(); ok {
		err = multierr.Append(err, d.Close())
	}
	if s, ok := b.speaker.peek(); ok {
		err = multierr.Append(err, s.Close())
	}
	if l, ok := b.led.peek(); ok {
		err = multierr.Append(err, l.Close())
	}
	if b.conn != nil {
		// A nil retained payload clears the stored state.
		b.conn.Publish(b.conn.NewMessage(TopicState, nil, true))
		b.conn.Disconnect()
	}
	return err
}
