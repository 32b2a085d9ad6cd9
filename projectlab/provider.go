package projectlab

import (
	"sync"

	"github.com/benbjohnson/clock"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"projectlab-go/connector"
	"projectlab-go/drivers/mcp23008"
	"projectlab-go/drivers/sc16is7x2"
	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/modbus"
	"projectlab-go/types"
)

// connectorProvider is the part of a V3 board that changed at revision
// 3.e: the MikroBus tables and where RS-485 comes from.
type connectorProvider interface {
	name() string
	createMikroBus1(dev hal.Device, mcp2 *mcp23008.Device) (*connector.Connector, error)
	createMikroBus2(dev hal.Device, mcp2 *mcp23008.Device) (*connector.Connector, error)
	modbusClient(cfg types.SerialConfig) (*modbus.Client, error)
	close() error
}

// uartBridgeAddress is the SC16IS752 on 3.e and later boards.
const uartBridgeAddress = 0x4D

// ErrUARTBridge is returned when the RS-485 port on the UART bridge cannot
// be opened.
var ErrUARTBridge = errcode.New(errcode.Error, "projectlab", "unable to connect to UART expander")

// mikroBus1V3 is shared by both providers: SPI5, I2C3 and com1.
func mikroBus1V3(dev hal.Device) *connector.Connector {
	p := func(n string) hal.Pin { return hal.Pin{Name: n, Controller: dev} }
	return &connector.Connector{
		Name: "MikroBus1",
		Kind: connector.KindMikroBus,
		Pins: connector.PinMapping{
			{Signal: "AN", Pin: p("PA3")},
			{Signal: "RST", Pin: p("PH10")},
			{Signal: "CS", Pin: p("PB12")},
			{Signal: "SCK", Pin: p("SPI5_SCK")},
			{Signal: "CIPO", Pin: p("SPI5_CIPO")},
			{Signal: "COPI", Pin: p("SPI5_COPI")},
			{Signal: "PWM", Pin: p("PB8")},
			{Signal: "INT", Pin: p("PC2")},
			{Signal: "RX", Pin: p("PB15")},
			{Signal: "TX", Pin: p("PB14")},
			{Signal: "SCL", Pin: p("I2C3_SCL")},
			{Signal: "SDA", Pin: p("I2C3_SDA")},
		},
		Serial: connector.SerialMapping{PortName: "com1"},
		I2C:    &connector.I2CBusMapping{Bus: 3},
		SPI:    &connector.SPIBusMapping{SCK: p("SPI5_SCK"), COPI: p("SPI5_COPI"), CIPO: p("SPI5_CIPO")},
	}
}

func needMcp2(mcp2 *mcp23008.Device) error {
	if mcp2 == nil {
		return errcode.New(errcode.Unavailable, "MikroBus2", "mcp2 not present")
	}
	return nil
}

// ---------------- 3.a to 3.d ----------------

type providerV3 struct{}

func newProviderV3(*V3) *providerV3 { return &providerV3{} }

func (p *providerV3) name() string { return "v3" }

func (p *providerV3) createMikroBus1(dev hal.Device, _ *mcp23008.Device) (*connector.Connector, error) {
	return mikroBus1V3(dev), nil
}

func (p *providerV3) createMikroBus2(dev hal.Device, mcp2 *mcp23008.Device) (*connector.Connector, error) {
	if err := needMcp2(mcp2); err != nil {
		return nil, err
	}
	h := func(n string) hal.Pin { return hal.Pin{Name: n, Controller: dev} }
	// SPI signals are on the main bus, yet the SPI mapping names SPI5 as
	// wired on these revisions.
	return &connector.Connector{
		Name: "MikroBus2",
		Kind: connector.KindMikroBus,
		Pins: connector.PinMapping{
			{Signal: "AN", Pin: h("PB0")},
			{Signal: "RST", Pin: mcp2.Pin(1)},
			{Signal: "CS", Pin: mcp2.Pin(2)},
			{Signal: "SCK", Pin: h("SCK")},
			{Signal: "CIPO", Pin: h("CIPO")},
			{Signal: "COPI", Pin: h("COPI")},
			{Signal: "PWM", Pin: h("PB9")},
			{Signal: "INT", Pin: mcp2.Pin(3)},
			{Signal: "RX", Pin: h("PB15")},
			{Signal: "TX", Pin: h("PB14")},
			{Signal: "SCL", Pin: h("I2C1_SCL")},
			{Signal: "SDA", Pin: h("I2C1_SDA")},
		},
		Serial: connector.SerialMapping{PortName: "com1"},
		I2C:    &connector.I2CBusMapping{Bus: 1},
		SPI:    &connector.SPIBusMapping{SCK: h("SPI5_SCK"), COPI: h("SPI5_COPI"), CIPO: h("SPI5_CIPO")},
	}, nil
}

func (p *providerV3) modbusClient(types.SerialConfig) (*modbus.Client, error) {
	return nil, errcode.New(errcode.Unsupported, "projectlab", "RS485 is not supported on hardware revisions before 3.e")
}

func (p *providerV3) close() error { return nil }

// ---------------- 3.e and later ----------------

// providerV3e sources RS-485 and the MikroBus2 UART from an SC16IS752:
// port A serves MikroBus2, port B the RS-485 transceiver.
type providerV3e struct {
	log *zap.SugaredLogger
	clk clock.Clock

	bridge    *sc16is7x2.Device
	bridgeErr error

	mu    sync.Mutex
	portA *sc16is7x2.Port
}

func newProviderV3e(h *V3) *providerV3e {
	p := &providerV3e{log: h.log, clk: h.clk}
	p.bridge, p.bridgeErr = sc16is7x2.New(h.i2c, sc16is7x2.Config{
		Address: uartBridgeAddress,
		Crystal: sc16is7x2.Crystal1_8432MHz,
		Clock:   h.clk,
	})
	if p.bridgeErr != nil {
		p.log.Warnw("uart expander not responding", "addr", uartBridgeAddress, "error", p.bridgeErr)
		p.bridge = nil
	}
	return p
}

func (p *providerV3e) name() string { return "v3e" }

func (p *providerV3e) createMikroBus1(dev hal.Device, _ *mcp23008.Device) (*connector.Connector, error) {
	return mikroBus1V3(dev), nil
}

// createMikroBus2 omits RX/TX: those lines run to the bridge, whose port A
// is the socket's serial port.
func (p *providerV3e) createMikroBus2(dev hal.Device, mcp2 *mcp23008.Device) (*connector.Connector, error) {
	if err := needMcp2(mcp2); err != nil {
		return nil, err
	}
	port, err := p.openPortA()
	if err != nil {
		return nil, err
	}
	h := func(n string) hal.Pin { return hal.Pin{Name: n, Controller: dev} }
	return &connector.Connector{
		Name: "MikroBus2",
		Kind: connector.KindMikroBus,
		Pins: connector.PinMapping{
			{Signal: "AN", Pin: h("PB0")},
			{Signal: "RST", Pin: mcp2.Pin(1)},
			{Signal: "CS", Pin: mcp2.Pin(2)},
			{Signal: "SCK", Pin: h("SCK")},
			{Signal: "CIPO", Pin: h("CIPO")},
			{Signal: "COPI", Pin: h("COPI")},
			{Signal: "PWM", Pin: h("PB9")},
			{Signal: "INT", Pin: mcp2.Pin(3)},
			{Signal: "SCL", Pin: h("I2C1_SCL")},
			{Signal: "SDA", Pin: h("I2C1_SDA")},
		},
		Serial: connector.SerialMapping{Port: port},
		I2C:    &connector.I2CBusMapping{Bus: 1},
		SPI:    &connector.SPIBusMapping{SCK: h("SCK"), COPI: h("COPI"), CIPO: h("CIPO")},
	}, nil
}

func (p *providerV3e) openPortA() (*sc16is7x2.Port, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.portA != nil {
		return p.portA, nil
	}
	if p.bridge == nil {
		return nil, errors.Wrap(errcode.Wrap(errcode.Unavailable, "MikroBus2", p.bridgeErr), ErrUARTBridge.Msg)
	}
	port, err := p.bridge.OpenPort(sc16is7x2.ChannelA, types.DefaultSerialConfig())
	if err != nil {
		return nil, errors.Wrap(err, "MikroBus2 serial")
	}
	p.portA = port
	return port, nil
}

// modbusClient opens bridge port B as an RS-485 port with automatic
// direction control; no driver-enable line is needed.
func (p *providerV3e) modbusClient(cfg types.SerialConfig) (*modbus.Client, error) {
	if p.bridge == nil {
		p.log.Warnw("error creating 485 port", "error", p.bridgeErr)
		return nil, &errcode.E{C: errcode.Error, Op: ErrUARTBridge.Op, Msg: ErrUARTBridge.Msg, Err: p.bridgeErr}
	}
	port, err := p.bridge.OpenRS485Port(sc16is7x2.ChannelB, cfg, false)
	if err != nil {
		p.log.Warnw("error creating 485 port", "error", err)
		return nil, &errcode.E{C: errcode.Error, Op: ErrUARTBridge.Op, Msg: ErrUARTBridge.Msg, Err: err}
	}
	p.log.Debugw("485 port created", "baud", cfg.Baud)
	return modbus.NewClient(port, modbus.Config{
		Serial: cfg,
		Clock:  p.clk,
		Logger: p.log.Named("modbus"),
	}), nil
}

func (p *providerV3e) close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.portA == nil {
		return nil
	}
	err := p.portA.Close()
	p.portA = nil
	return err
}
