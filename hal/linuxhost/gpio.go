package linuxhost

import (
	"sync"

	"github.com/warthog618/go-gpiocdev"

	"projectlab-go/errcode"
	"projectlab-go/hal"
)

func (h *Host) offset(pin string) (int, error) {
	off, ok := h.cfg.Lines[pin]
	if !ok {
		return 0, errcode.New(errcode.UnknownPin, hal.MCU, pin+" has no line")
	}
	return off, nil
}

func (h *Host) CreateDigitalOutputPort(pin string, initial bool) (hal.DigitalOutputPort, error) {
	off, err := h.offset(pin)
	if err != nil {
		return nil, err
	}
	if err := h.claim(pin); err != nil {
		return nil, err
	}
	line, err := h.chip.RequestLine(off, gpiocdev.AsOutput(level(initial)))
	if err != nil {
		h.release(pin)
		return nil, errcode.Wrap(errcode.Unavailable, pin, err)
	}
	h.log.Debugw("output line", "pin", pin, "offset", off, "initial", initial)
	return &outputLine{h: h, pin: pin, line: line, state: initial}, nil
}

func (h *Host) CreateDigitalInterruptPort(pin string, edge hal.Edge, pull hal.Pull) (hal.DigitalInterruptPort, error) {
	off, err := h.offset(pin)
	if err != nil {
		return nil, err
	}
	if err := h.claim(pin); err != nil {
		return nil, err
	}
	p := &interruptLine{h: h, pin: pin}
	opts := []gpiocdev.LineReqOption{gpiocdev.AsInput, biasOption(pull)}
	if eo, ok := edgeOption(edge); ok {
		opts = append(opts, eo, gpiocdev.WithEventHandler(p.event))
	}
	line, err := h.chip.RequestLine(off, opts...)
	if err != nil {
		h.release(pin)
		return nil, errcode.Wrap(errcode.Unavailable, pin, err)
	}
	p.line = line
	h.log.Debugw("interrupt line", "pin", pin, "offset", off, "edge", edge.String(), "pull", pull.String())
	return p, nil
}

func level(on bool) int {
	if on {
		return 1
	}
	return 0
}

func biasOption(p hal.Pull) gpiocdev.LineReqOption {
	switch p {
	case hal.PullUp:
		return gpiocdev.WithPullUp
	case hal.PullDown:
		return gpiocdev.WithPullDown
	default:
		return gpiocdev.WithBiasDisabled
	}
}

func edgeOption(e hal.Edge) (gpiocdev.LineReqOption, bool) {
	switch e {
	case hal.EdgeRising:
		return gpiocdev.WithRisingEdge, true
	case hal.EdgeFalling:
		return gpiocdev.WithFallingEdge, true
	case hal.EdgeBoth:
		return gpiocdev.WithBothEdges, true
	default:
		return nil, false
	}
}

// ---------------- Ports ----------------

type outputLine struct {
	h    *Host
	pin  string
	line *gpiocdev.Line

	mu    sync.Mutex
	state bool
}

func (o *outputLine) Set(on bool) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.line.SetValue(level(on)); err != nil {
		return err
	}
	o.state = on
	return nil
}

func (o *outputLine) State() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

func (o *outputLine) Close() error {
	defer o.h.release(o.pin)
	return o.line.Close()
}

type interruptLine struct {
	h    *Host
	pin  string
	line *gpiocdev.Line

	mu      sync.Mutex
	handler func(bool)
}

func (p *interruptLine) Read() (bool, error) {
	v, err := p.line.Value()
	return v != 0, err
}

func (p *interruptLine) SetHandler(fn func(bool)) {
	p.mu.Lock()
	p.handler = fn
	p.mu.Unlock()
}

// event runs on the gpiocdev watcher goroutine.
func (p *interruptLine) event(evt gpiocdev.LineEvent) {
	p.mu.Lock()
	fn := p.handler
	p.mu.Unlock()
	if fn != nil {
		fn(evt.Type == gpiocdev.LineEventRisingEdge)
	}
}

func (p *interruptLine) Close() error {
	p.SetHandler(nil)
	defer p.h.release(p.pin)
	return p.line.Close()
}
