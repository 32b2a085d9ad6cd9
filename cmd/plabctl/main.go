// Command plabctl inspects Project Lab carriers: it prints the connector
// tables of each revision, probes a carrier wired to a Linux bench host and
// talks Modbus RTU over its RS-485 port.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

const (
	flagDebug  = "debug"
	flagConfig = "config"
	flagBoard  = "board"
)

// env carries what the global flags set up for the commands.
type env struct {
	log *zap.Logger
}

func newApp(out io.Writer) *cli.App {
	e := &env{log: zap.NewNop()}
	return &cli.App{
		Name:   "plabctl",
		Usage:  "inspect and exercise Project Lab carrier boards",
		Writer: out,
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  flagDebug,
				Usage: "enable debug logging",
			},
		},
		Before: func(c *cli.Context) error {
			var (
				log *zap.Logger
				err error
			)
			if c.Bool(flagDebug) {
				log, err = zap.NewDevelopment()
			} else {
				log, err = zap.NewProduction()
			}
			if err != nil {
				return err
			}
			e.log = log
			return nil
		},
		After: func(*cli.Context) error {
			_ = e.log.Sync()
			return nil
		},
		Commands: []*cli.Command{
			{
				Name:  "tables",
				Usage: "print the connector pin tables of a simulated carrier",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  flagBoard,
						Value: "v3e",
						Usage: "carrier revision: v1, v3 or v3e",
					},
				},
				Action: e.tablesAction,
			},
			{
				Name:  "probe",
				Usage: "bring up a carrier wired to this host and report what answered",
				Flags: []cli.Flag{
					&cli.PathFlag{
						Name:     flagConfig,
						Usage:    "bench host config `FILE` (JSON5)",
						Required: true,
					},
					&cli.BoolFlag{
						Name:  flagWatch,
						Usage: "print button events until interrupted",
					},
				},
				Action: e.probeAction,
			},
			{
				Name:   "modbus",
				Usage:  "read holding registers over the carrier's RS-485 port",
				Flags:  modbusFlags(),
				Action: e.modbusAction,
			},
		},
	}
}

func main() {
	if err := newApp(os.Stdout).Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "plabctl:", err)
		os.Exit(1)
	}
}
