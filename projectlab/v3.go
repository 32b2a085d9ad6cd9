package projectlab

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"tinygo.org/x/drivers"

	"projectlab-go/connector"
	"projectlab-go/drivers/mcp23008"
	"projectlab-go/drivers/tft"
	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/modbus"
	"projectlab-go/types"
)

// Expander addresses on the V3 carrier.
const (
	mcp1Address    = 0x20
	mcp2Address    = 0x21
	versionAddress = 0x27
)

const v3DisplayHz = 24_000_000

// V3 is a Project Lab v3 carrier on an F7 Core Compute V2. Buttons and the
// display control lines hang off mcp1, MikroBus2 control lines and the IO
// terminal off mcp2; a third expander carries the revision strapping.
type V3 struct {
	base

	mcp1, mcp2, version *mcp23008.Device
	provider            connectorProvider

	revOnce sync.Once
	rev     types.Revision

	enableMu   sync.Mutex
	enablePort hal.DigitalOutputPort

	mikroBus1     lazy[*connector.Connector]
	mikroBus2     lazy[*connector.Connector]
	groveDigital  lazy[*connector.Connector]
	groveAnalog   lazy[*connector.Connector]
	groveUart     lazy[*connector.Connector]
	qwiic         lazy[*connector.Connector]
	ioTerminal    lazy[*connector.Connector]
	displayHeader lazy[*connector.Connector]
}

func newV3(dev hal.Device, i2c drivers.I2C, o options) *V3 {
	h := &V3{base: newBase(dev, i2c, o)}
	h.speakerPin = "PA0"
	h.ledPins = [3]string{"PC6", "PC7", "PC9"}

	h.mcp1 = h.expander("mcp1", mcp1Address, "A05", hal.PullDown, "PB4")
	h.mcp2 = h.expander("mcp2", mcp2Address, "PC8", hal.PullNone, "")
	h.version = h.expander("version", versionAddress, "", hal.PullNone, "")

	if h.mcp1 != nil {
		h.log.Debugw("instantiating buttons")
		h.left = h.newButton("left", h.mcp1.Pin(2), hal.PullUp, true)
		h.right = h.newButton("right", h.mcp1.Pin(1), hal.PullUp, true)
		h.up = h.newButton("up", h.mcp1.Pin(0), hal.PullUp, true)
		h.down = h.newButton("down", h.mcp1.Pin(3), hal.PullUp, true)
		h.log.Debugw("buttons up")
	}

	rev := h.Revision()
	if rev.AtLeast3e() {
		h.provider = newProviderV3e(h)
	} else {
		h.provider = newProviderV3(h)
	}
	h.log.Debugw("hardware revision", "revision", rev.String(), "provider", h.provider.name())

	var present, missing []string
	for _, e := range []struct {
		name string
		d    *mcp23008.Device
	}{{"mcp1", h.mcp1}, {"mcp2", h.mcp2}, {"version", h.version}} {
		if e.d != nil {
			present = append(present, e.name)
		} else {
			missing = append(missing, e.name)
		}
	}
	h.publishState(rev.String(), present, missing)
	return h
}

// expander brings up one MCP23008. The optional interrupt pin triggers on
// the rising edge of INT; the optional reset pin drives RESET. Any failure
// is logged, the host ports are released and nil is returned.
func (h *V3) expander(name string, addr uint16, intPin string, pull hal.Pull, resetPin string) *mcp23008.Device {
	var (
		intr  hal.DigitalInterruptPort
		reset hal.DigitalOutputPort
		err   error
	)
	release := func() {
		if intr != nil {
			_ = intr.Close()
		}
		if reset != nil {
			_ = reset.Close()
		}
	}
	if intPin != "" {
		if err = h.checkPins(intPin); err == nil {
			intr, err = h.dev.CreateDigitalInterruptPort(intPin, hal.EdgeRising, pull)
		}
	}
	if err == nil && resetPin != "" {
		if err = h.checkPins(resetPin); err == nil {
			reset, err = h.dev.CreateDigitalOutputPort(resetPin, true)
		}
	}
	if err != nil {
		h.log.Debugw("expander control lines unavailable", "expander", name, "addr", addr, "error", err)
		release()
		return nil
	}
	d, err := mcp23008.New(h.i2c, mcp23008.Config{
		Address:   addr,
		Name:      name,
		Interrupt: intr,
		Reset:     reset,
	})
	if err != nil {
		h.log.Debugw("failed to create expander", "expander", name, "addr", addr, "error", err)
		release()
		return nil
	}
	h.log.Debugw("expander up", "expander", name, "addr", addr)
	return d
}

// Mcp1 is the expander carrying the buttons and display control lines.
func (h *V3) Mcp1() *mcp23008.Device { return h.mcp1 }

// Mcp2 is the expander carrying MikroBus2 and IO terminal lines.
func (h *V3) Mcp2() *mcp23008.Device { return h.mcp2 }

// Revision reads the version expander's port once and caches the result.
// An absent or failing expander yields revision byte 0.
func (h *V3) Revision() types.Revision {
	h.revOnce.Do(func() {
		h.rev = types.Revision{Major: 3}
		if h.version == nil {
			return
		}
		v, err := h.version.ReadPort()
		if err != nil {
			h.log.Warnw("unable to read hardware revision", "error", err)
			return
		}
		h.rev.Minor, h.rev.Known = v, true
	})
	return h.rev
}

func (h *V3) RevisionString() string { return h.Revision().String() }

// ---------------- Display ----------------

// DisplayEnablePort is the mcp1 GP4 output created with the display, or
// nil before the first Display call or without mcp1.
func (h *V3) DisplayEnablePort() hal.DigitalOutputPort {
	h.enableMu.Lock()
	defer h.enableMu.Unlock()
	return h.enablePort
}

// Display is the ILI9341 panel on the display header, built on first call.
func (h *V3) Display() *tft.Display {
	d, _ := h.display.get(func() (*tft.Display, error) {
		h.log.Debugw("instantiating display")
		d, err := h.newV3Display()
		if err != nil {
			h.log.Errorw("unable to create the display", "error", err)
			return nil, err
		}
		h.log.Debugw("display up")
		return d, nil
	})
	return d
}

func (h *V3) newV3Display() (*tft.Display, error) {
	if h.mcp1 == nil {
		return nil, errcode.New(errcode.Unavailable, "display", "mcp1 not present")
	}
	h.enableMu.Lock()
	if h.enablePort == nil {
		p, err := h.mcp1.Pin(4).CreateDigitalOutputPort(false)
		if err != nil {
			h.enableMu.Unlock()
			return nil, errors.Wrap(err, "display enable")
		}
		h.enablePort = p
	}
	h.enableMu.Unlock()

	header, err := h.DisplayHeader()
	if err != nil {
		return nil, err
	}
	cs, _ := header.Pin("DISPLAY_CS")
	dc, _ := header.Pin("DISPLAY_DC")
	rst, _ := header.Pin("DISPLAY_RST")
	ports, err := openOutputs(cs, dc, rst)
	if err != nil {
		return nil, err
	}

	h.clk.Sleep(h.opts.displayResetDelay)

	spiCfg := hal.SPIConfig{Frequency: v3DisplayHz, Mode: hal.SPIMode3}
	spi, err := h.spiBus(spiCfg)
	if err != nil {
		return nil, multierr.Append(err, closeOutputs(ports))
	}
	d, err := tft.New(tft.ILI9341, spi, ports[0], ports[1], ports[2], tft.Config{
		Rotation:  tft.Rotation270,
		ColorMode: tft.RGB444,
		SPI:       spiCfg,
		Clock:     h.clk,
	})
	if err != nil {
		return nil, multierr.Append(err, closeOutputs(ports))
	}
	return d, nil
}

// ---------------- Connectors ----------------

func (h *V3) MikroBus1() (*connector.Connector, error) {
	return h.mikroBus1.getRetry(func() (*connector.Connector, error) {
		c, err := h.provider.createMikroBus1(h.dev, h.mcp2)
		if err != nil {
			return nil, err
		}
		return h.finish(c)
	})
}

func (h *V3) MikroBus2() (*connector.Connector, error) {
	return h.mikroBus2.getRetry(func() (*connector.Connector, error) {
		c, err := h.provider.createMikroBus2(h.dev, h.mcp2)
		if err != nil {
			return nil, err
		}
		return h.finish(c)
	})
}

func (h *V3) GroveDigital() (*connector.Connector, error) {
	return h.groveDigital.getRetry(func() (*connector.Connector, error) {
		return h.finish(&connector.Connector{
			Name: "GroveDigital",
			Kind: connector.KindGroveDigital,
			Pins: connector.PinMapping{
				{Signal: "D0", Pin: h.hostPin("D16")},
				{Signal: "D1", Pin: h.hostPin("D17")},
			},
		})
	})
}

func (h *V3) GroveAnalog() (*connector.Connector, error) {
	return h.groveAnalog.getRetry(func() (*connector.Connector, error) {
		return h.finish(&connector.Connector{
			Name: "GroveAnalog",
			Kind: connector.KindGroveAnalog,
			Pins: connector.PinMapping{
				{Signal: "D0", Pin: h.hostPin("PA4")},
				{Signal: "D1", Pin: h.hostPin("PA5")},
			},
		})
	})
}

func (h *V3) GroveUart() (*connector.Connector, error) {
	return h.groveUart.getRetry(func() (*connector.Connector, error) {
		return h.finish(&connector.Connector{
			Name: "GroveUart",
			Kind: connector.KindGroveUart,
			Pins: connector.PinMapping{
				{Signal: "RX", Pin: h.hostPin("PI9")},
				{Signal: "TX", Pin: h.hostPin("PH13")},
			},
			Serial: connector.SerialMapping{PortName: "com4"},
		})
	})
}

func (h *V3) Qwiic() (*connector.Connector, error) {
	return h.qwiic.getRetry(func() (*connector.Connector, error) {
		return h.finish(&connector.Connector{
			Name: "Qwiic",
			Kind: connector.KindQwiic,
			Pins: connector.PinMapping{
				{Signal: "SCL", Pin: h.hostPin("PB6")},
				{Signal: "SDA", Pin: h.hostPin("PB7")},
			},
			I2C: &connector.I2CBusMapping{Bus: 1},
		})
	})
}

func (h *V3) IOTerminal() (*connector.Connector, error) {
	return h.ioTerminal.getRetry(func() (*connector.Connector, error) {
		if h.mcp2 == nil {
			return nil, errcode.New(errcode.Unavailable, "IOTerminal", "mcp2 not present")
		}
		return h.finish(&connector.Connector{
			Name: "IOTerminal",
			Kind: connector.KindIOTerminal,
			Pins: connector.PinMapping{
				{Signal: "A1", Pin: h.hostPin("PB1")},
				{Signal: "D2", Pin: h.mcp2.Pin(6)},
				{Signal: "D3", Pin: h.mcp2.Pin(5)},
			},
		})
	})
}

func (h *V3) DisplayHeader() (*connector.Connector, error) {
	return h.displayHeader.getRetry(func() (*connector.Connector, error) {
		if h.mcp1 == nil {
			return nil, errcode.New(errcode.Unavailable, "DisplayHeader", "mcp1 not present")
		}
		p := h.hostPin
		return h.finish(&connector.Connector{
			Name: "DisplayHeader",
			Kind: connector.KindDisplayHeader,
			Pins: connector.PinMapping{
				{Signal: "DISPLAY_CS", Pin: h.mcp1.Pin(5)},
				{Signal: "DISPLAY_RST", Pin: h.mcp1.Pin(7)},
				{Signal: "DISPLAY_DC", Pin: h.mcp1.Pin(6)},
				{Signal: "DISPLAY_CLK", Pin: p("SCK")},
				{Signal: "DISPLAY_COPI", Pin: p("COPI")},
				{Signal: "DISPLAY_LED", Pin: h.mcp1.Pin(4)},
			},
			SPI: &connector.SPIBusMapping{SCK: p("SCK"), COPI: p("COPI"), CIPO: p("CIPO")},
		})
	})
}

// ---------------- Modbus ----------------

// ModbusRtuClient delegates to the connector provider of the detected
// revision. Boards before 3.e have no RS-485 transceiver.
func (h *V3) ModbusRtuClient(cfg types.SerialConfig) (*modbus.Client, error) {
	return h.provider.modbusClient(cfg.WithDefaults())
}

// ---------------- Teardown ----------------

func (h *V3) Close() error {
	err := h.closeBase()
	h.enableMu.Lock()
	if h.enablePort != nil {
		err = multierr.Append(err, h.enablePort.Close())
		h.enablePort = nil
	}
	h.enableMu.Unlock()
	err = multierr.Append(err, h.provider.close())
	for _, d := range []*mcp23008.Device{h.mcp1, h.mcp2, h.version} {
		if d != nil {
			err = multierr.Append(err, d.Close())
		}
	}
	h.mcp1, h.mcp2, h.version = nil, nil, nil
	return err
}
