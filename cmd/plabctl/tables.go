package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"projectlab-go/connector"
	"projectlab-go/errcode"
	"projectlab-go/hal/halfake"
	"projectlab-go/projectlab"
	"projectlab-go/types"
)

// I2C addresses of the carrier's expanders and UART bridge.
const (
	addrMcp1    = 0x20
	addrMcp2    = 0x21
	addrVersion = 0x27
	addrBridge  = 0x4D
)

// simulate builds the named revision on a fake host with every chip
// answering.
func simulate(board string, log *zap.Logger) (projectlab.Hardware, error) {
	var (
		family types.Family
		rev    byte
	)
	switch board {
	case "v1":
		family = types.FamilyF7FeatherV2
	case "v3":
		family, rev = types.FamilyF7CoreComputeV2, 0
	case "v3e":
		family, rev = types.FamilyF7CoreComputeV2, types.Revision3e
	default:
		return nil, errcode.New(errcode.InvalidParams, "plabctl", "unknown board "+strconv.Quote(board))
	}
	dev := halfake.NewDevice(family)
	dev.MapSerial("com1", "/dev/ttyS1")
	dev.MapSerial("com4", "/dev/ttyS3")
	bus := halfake.NewI2C()
	if family == types.FamilyF7CoreComputeV2 {
		for _, addr := range []uint16{addrMcp1, addrMcp2} {
			t := bus.Attach(addr, halfake.NewTarget())
			t.Set(0x00, 0xFF)
			t.Set(0x09, 0xFF) // buttons idle high
		}
		v := bus.Attach(addrVersion, halfake.NewTarget())
		v.Set(0x00, 0xFF)
		v.Set(0x09, rev)
		bus.Attach(addrBridge, halfake.NewTarget())
	}
	return projectlab.Create(dev, bus, projectlab.WithLogger(log), projectlab.WithDisplayResetDelay(0))
}

func (e *env) tablesAction(c *cli.Context) error {
	hw, err := simulate(c.String(flagBoard), e.log)
	if err != nil {
		return err
	}
	defer hw.Close()

	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.SetTitle("Project Lab " + hw.RevisionString())
	t.AppendHeader(table.Row{"Connector", "Signal", "Pin", "Buses"})
	for _, g := range connectorGetters(hw) {
		conn, err := g.get()
		if err != nil {
			t.AppendRow(table.Row{g.name, "", "", errcode.Of(err)})
			t.AppendSeparator()
			continue
		}
		appendConnector(t, conn)
	}
	t.Render()
	return nil
}

type getter struct {
	name string
	get  func() (*connector.Connector, error)
}

func connectorGetters(hw projectlab.Hardware) []getter {
	return []getter{
		{"MikroBus1", hw.MikroBus1},
		{"MikroBus2", hw.MikroBus2},
		{"GroveDigital", hw.GroveDigital},
		{"GroveAnalog", hw.GroveAnalog},
		{"GroveUart", hw.GroveUart},
		{"Qwiic", hw.Qwiic},
		{"IOTerminal", hw.IOTerminal},
		{"DisplayHeader", hw.DisplayHeader},
	}
}

func appendConnector(t table.Writer, conn *connector.Connector) {
	buses := busSummary(conn)
	for i, a := range conn.Pins {
		row := table.Row{"", a.Signal, a.Pin.Key(), ""}
		if i == 0 {
			row[0] = conn.Name
		}
		if i < len(buses) {
			row[3] = buses[i]
		}
		t.AppendRow(row)
	}
	t.AppendSeparator()
}

func busSummary(conn *connector.Connector) []string {
	var out []string
	if !conn.Serial.IsZero() {
		out = append(out, "serial "+conn.Serial.String())
	}
	if conn.I2C != nil {
		out = append(out, "i2c "+strconv.Itoa(conn.I2C.Bus))
	}
	if conn.SPI != nil {
		out = append(out, "spi "+conn.SPI.SCK.Name+"/"+conn.SPI.COPI.Name+"/"+conn.SPI.CIPO.Name)
	}
	return out
}

// connectorError wraps a getter failure with the connector name.
func connectorError(name string, err error) error {
	return errors.Wrap(err, name)
}
