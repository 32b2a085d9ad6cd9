package main

import (
	"os/signal"
	"strings"
	"syscall"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"

	"projectlab-go/bus"
	"projectlab-go/devices/button"
	"projectlab-go/errcode"
	"projectlab-go/hal/linuxhost"
	"projectlab-go/projectlab"
	"projectlab-go/types"
)

const flagWatch = "watch"

func (e *env) openBench(c *cli.Context, b *bus.Bus) (*linuxhost.Host, projectlab.Hardware, error) {
	cfg, err := linuxhost.LoadConfig(c.Path(flagConfig))
	if err != nil {
		return nil, nil, err
	}
	host, err := linuxhost.Open(cfg, e.log)
	if err != nil {
		return nil, nil, errors.Wrap(err, "open bench host")
	}
	opts := []projectlab.Option{projectlab.WithLogger(e.log)}
	if b != nil {
		opts = append(opts, projectlab.WithBus(b))
	}
	hw, err := projectlab.Create(host, host.I2C(), opts...)
	if err != nil {
		_ = host.Close()
		return nil, nil, err
	}
	return host, hw, nil
}

func (e *env) probeAction(c *cli.Context) error {
	b := bus.NewBus(8)
	conn := b.NewConnection("plabctl")
	defer conn.Disconnect()

	host, hw, err := e.openBench(c, b)
	if err != nil {
		return err
	}
	defer host.Close()
	defer hw.Close()

	state := conn.Subscribe(projectlab.TopicState)
	var bs types.BoardState
	select {
	case m := <-state.Channel():
		bs, _ = m.Payload.(types.BoardState)
	default:
	}
	state.Unsubscribe()

	t := table.NewWriter()
	t.SetOutputMirror(c.App.Writer)
	t.SetTitle("Project Lab " + hw.RevisionString() + " on " + string(hw.Family()))
	t.AppendHeader(table.Row{"Part", "Status"})
	t.AppendRow(table.Row{"expanders present", strings.Join(bs.Present, ", ")})
	t.AppendRow(table.Row{"expanders missing", strings.Join(bs.Missing, ", ")})
	t.AppendSeparator()
	t.AppendRow(table.Row{"display", present(hw.Display() != nil)})
	t.AppendRow(table.Row{"speaker", present(hw.Speaker() != nil)})
	t.AppendRow(table.Row{"rgb led", present(hw.RgbLed() != nil)})
	for _, btn := range []struct {
		name string
		b    *button.PushButton
	}{
		{"up", hw.UpButton()},
		{"down", hw.DownButton()},
		{"left", hw.LeftButton()},
		{"right", hw.RightButton()},
	} {
		t.AppendRow(table.Row{btn.name + " button", present(btn.b != nil)})
	}
	t.AppendSeparator()
	for _, g := range connectorGetters(hw) {
		status := "ok"
		if _, err := g.get(); err != nil {
			status = string(errcode.Of(err)) + ": " + connectorError(g.name, err).Error()
		}
		t.AppendRow(table.Row{g.name, status})
	}
	t.Render()

	if !c.Bool(flagWatch) {
		return nil
	}
	return watchButtons(c, conn)
}

// watchButtons prints button events until interrupted.
func watchButtons(c *cli.Context, conn *bus.Connection) error {
	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sub := conn.Subscribe(button.TopicPrefix.Append(bus.WildOne))
	defer sub.Unsubscribe()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-sub.Channel():
			if ev, ok := m.Payload.(types.ButtonEvent); ok {
				if _, err := c.App.Writer.Write([]byte(ev.Name + " " + string(ev.Kind) + "\n")); err != nil {
					return err
				}
			}
		}
	}
}

func present(ok bool) string {
	if ok {
		return "ok"
	}
	return "unavailable"
}
