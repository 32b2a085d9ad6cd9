package main

import (
	"context"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"projectlab-go/errcode"
	"projectlab-go/types"
)

const (
	flagUnit    = "unit"
	flagStart   = "start"
	flagCount   = "count"
	flagBaud    = "baud"
	flagParity  = "parity"
	flagTimeout = "timeout"
)

func modbusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.PathFlag{
			Name:     flagConfig,
			Usage:    "bench host config `FILE` (JSON5)",
			Required: true,
		},
		&cli.UintFlag{Name: flagUnit, Value: 1, Usage: "server unit id"},
		&cli.UintFlag{Name: flagStart, Usage: "first holding register"},
		&cli.UintFlag{Name: flagCount, Value: 1, Usage: "number of registers (1-125)"},
		&cli.UintFlag{Name: flagBaud, Value: 19200, Usage: "baud rate"},
		&cli.StringFlag{Name: flagParity, Value: "none", Usage: "none, even or odd"},
		&cli.DurationFlag{Name: flagTimeout, Value: 2 * time.Second, Usage: "overall request timeout"},
	}
}

func parseParity(s string) (types.Parity, error) {
	switch s {
	case "none", "n":
		return types.ParityNone, nil
	case "even", "e":
		return types.ParityEven, nil
	case "odd", "o":
		return types.ParityOdd, nil
	}
	return 0, errcode.New(errcode.InvalidParams, "plabctl", "unknown parity "+strconv.Quote(s))
}

func (e *env) modbusAction(c *cli.Context) error {
	parity, err := parseParity(c.String(flagParity))
	if err != nil {
		return err
	}
	count := c.Uint(flagCount)
	if count == 0 || count > 125 {
		return errcode.New(errcode.InvalidParams, "plabctl", "count must be 1-125")
	}
	unit := c.Uint(flagUnit)
	if unit > 247 {
		return errcode.New(errcode.InvalidParams, "plabctl", "unit must be 0-247")
	}
	start := c.Uint(flagStart)
	if start+count > 0x10000 {
		return errcode.New(errcode.InvalidParams, "plabctl", "registers must lie within 0-65535")
	}

	host, hw, err := e.openBench(c, nil)
	if err != nil {
		return err
	}
	defer host.Close()
	defer hw.Close()

	client, err := hw.ModbusRtuClient(types.SerialConfig{
		Baud:   uint32(c.Uint(flagBaud)),
		Parity: parity,
	})
	if err != nil {
		return errors.Wrap(err, "rs-485")
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(c.Context, c.Duration(flagTimeout))
	defer cancel()
	regs, err := client.ReadHoldingRegisters(ctx, byte(unit), uint16(start), uint16(count))
	if err != nil {
		return errors.Wrapf(err, "read %d registers from unit %d", count, unit)
	}

	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.AppendHeader(table.Row{"Register", "Value", "Hex"})
	for i, v := range regs {
		t.AppendRow(table.Row{int(start) + i, v, "0x" + strconv.FormatUint(uint64(v), 16)})
	}
	t.Render()
	return nil
}
