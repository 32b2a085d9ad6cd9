package projectlab

import (
	"time"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"tinygo.org/x/drivers"

	"projectlab-go/connector"
	"projectlab-go/devices/button"
	"projectlab-go/drivers/tft"
	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/modbus"
	"projectlab-go/types"
)

// V1 display and Modbus parameters.
const (
	v1DisplayHz     = 48_000_000
	v1ModbusTimeout = 5 * time.Second
)

// V1 is a Project Lab v1 carrier on an F7 Feather V2. All peripherals sit
// on host pins; there are no IO expanders.
type V1 struct {
	base

	mikroBus1 lazy[*connector.Connector]
	mikroBus2 lazy[*connector.Connector]
}

func newV1(dev hal.Device, i2c drivers.I2C, o options) *V1 {
	h := &V1{base: newBase(dev, i2c, o)}
	h.speakerPin = "D11"
	h.ledPins = [3]string{"OnboardLedRed", "OnboardLedGreen", "OnboardLedBlue"}

	h.log.Debugw("instantiating buttons")
	h.left = h.v1Button("left", "D10")
	h.right = h.v1Button("right", "D05")
	h.up = h.v1Button("up", "D15")
	h.down = h.v1Button("down", "D02")
	h.log.Debugw("buttons up")

	h.publishState(h.RevisionString(), nil, nil)
	return h
}

func (h *V1) v1Button(name, pin string) *button.PushButton {
	if err := h.checkPins(pin); err != nil {
		h.log.Errorw("unable to create button", "button", name, "pin", pin, "error", err)
		return nil
	}
	return h.newButton(name, h.hostPin(pin), hal.PullDown, false)
}

func (h *V1) RevisionString() string { return h.Revision().String() }

func (h *V1) Revision() types.Revision { return types.Revision{Major: 1} }

// Display is the ST7789 240x240 panel, built on first call.
func (h *V1) Display() *tft.Display {
	d, _ := h.display.get(func() (*tft.Display, error) {
		h.log.Debugw("instantiating display")
		d, err := h.newV1Display()
		if err != nil {
			h.log.Errorw("unable to create the display", "error", err)
			return nil, err
		}
		h.log.Debugw("display up")
		return d, nil
	})
	return d
}

func (h *V1) newV1Display() (*tft.Display, error) {
	spiCfg := hal.SPIConfig{Frequency: v1DisplayHz, Mode: hal.SPIMode3}
	spi, err := h.spiBus(spiCfg)
	if err != nil {
		return nil, err
	}
	if err := h.checkPins("A03", "A04", "A05"); err != nil {
		return nil, err
	}
	ports, err := openOutputs(h.hostPin("A03"), h.hostPin("A04"), h.hostPin("A05"))
	if err != nil {
		return nil, err
	}
	d, err := tft.New(tft.ST7789, spi, ports[0], ports[1], ports[2], tft.Config{
		Rotation:  tft.Rotation270,
		ColorMode: tft.RGB565,
		SPI:       spiCfg,
		Clock:     h.clk,
	})
	if err != nil {
		return nil, multierr.Append(err, closeOutputs(ports))
	}
	return d, nil
}

// ---------------- Connectors ----------------

func (h *V1) MikroBus1() (*connector.Connector, error) {
	return h.mikroBus1.getRetry(func() (*connector.Connector, error) {
		return h.finish(h.v1MikroBus("MikroBus1", "A00", "D14", "D04", "D03"))
	})
}

func (h *V1) MikroBus2() (*connector.Connector, error) {
	return h.mikroBus2.getRetry(func() (*connector.Connector, error) {
		return h.finish(h.v1MikroBus("MikroBus2", "A01", "A02", "D03", "D04"))
	})
}

// v1MikroBus builds a socket table; the two sockets differ only in AN, CS
// and the swapped PWM/INT pair. Neither wires RST.
func (h *V1) v1MikroBus(name, an, cs, pwm, irq string) *connector.Connector {
	p := h.hostPin
	return &connector.Connector{
		Name: name,
		Kind: connector.KindMikroBus,
		Pins: connector.PinMapping{
			{Signal: "AN", Pin: p(an)},
			{Signal: "CS", Pin: p(cs)},
			{Signal: "SCK", Pin: p("SCK")},
			{Signal: "CIPO", Pin: p("CIPO")},
			{Signal: "COPI", Pin: p("COPI")},
			{Signal: "PWM", Pin: p(pwm)},
			{Signal: "INT", Pin: p(irq)},
			{Signal: "RX", Pin: p("D12")},
			{Signal: "TX", Pin: p("D13")},
			{Signal: "SCL", Pin: p("D08")},
			{Signal: "SDA", Pin: p("D07")},
		},
		I2C: &connector.I2CBusMapping{Bus: 1},
		SPI: &connector.SPIBusMapping{SCK: p("SCK"), COPI: p("COPI"), CIPO: p("CIPO")},
	}
}

func (h *V1) GroveDigital() (*connector.Connector, error) { return nil, h.noConnector("GroveDigital") }
func (h *V1) GroveAnalog() (*connector.Connector, error)  { return nil, h.noConnector("GroveAnalog") }
func (h *V1) GroveUart() (*connector.Connector, error)    { return nil, h.noConnector("GroveUart") }
func (h *V1) Qwiic() (*connector.Connector, error)        { return nil, h.noConnector("Qwiic") }
func (h *V1) IOTerminal() (*connector.Connector, error)   { return nil, h.noConnector("IOTerminal") }
func (h *V1) DisplayHeader() (*connector.Connector, error) {
	return nil, h.noConnector("DisplayHeader")
}

func (h *V1) noConnector(name string) error {
	return errcode.New(errcode.Unsupported, name, "not present on "+h.RevisionString())
}

// ---------------- Modbus ----------------

// ModbusRtuClient opens native com4 with 5 s timeouts and drives the
// transceiver's driver-enable line on D09.
func (h *V1) ModbusRtuClient(cfg types.SerialConfig) (*modbus.Client, error) {
	cfg = cfg.WithDefaults()
	cfg.ReadTimeout, cfg.WriteTimeout = v1ModbusTimeout, v1ModbusTimeout

	if !h.board.HasUART("com4") {
		return nil, errcode.New(errcode.UnknownBus, "projectlab", "com4 not on "+h.board.Name)
	}
	name, ok := h.dev.SerialPortName("com4")
	if !ok {
		return nil, errcode.New(errcode.UnknownBus, "projectlab", "no serial port com4")
	}
	if err := h.checkPins("D09"); err != nil {
		return nil, err
	}
	port, err := h.dev.CreateSerialPort(name, cfg)
	if err != nil {
		return nil, errors.Wrap(err, "open rs485 port "+name)
	}
	de, err := h.dev.CreateDigitalOutputPort("D09", false)
	if err != nil {
		return nil, multierr.Append(errors.Wrap(err, "rs485 driver enable"), port.Close())
	}
	h.log.Debugw("rs485 port created", "port", name, "baud", cfg.Baud)
	return modbus.NewClient(port, modbus.Config{
		Serial:       cfg,
		DriverEnable: de,
		Clock:        h.clk,
		Logger:       h.log.Named("modbus"),
	}), nil
}

func (h *V1) Close() error { return h.closeBase() }

// ---------------- Helpers ----------------

// openOutputs creates an output port, initially low, on each pin. On error
// the ports already created are closed.
func openOutputs(pins ...hal.Pin) ([]hal.DigitalOutputPort, error) {
	ports := make([]hal.DigitalOutputPort, 0, len(pins))
	for _, pin := range pins {
		p, err := pin.CreateDigitalOutputPort(false)
		if err != nil {
			return nil, multierr.Append(errors.Wrap(err, pin.Key()), closeOutputs(ports))
		}
		ports = append(ports, p)
	}
	return ports, nil
}

func closeOutputs(ports []hal.DigitalOutputPort) error {
	var err error
	for _, p := range ports {
		err = multierr.Append(err, p.Close())
	}
	return err
}
