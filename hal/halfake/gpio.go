// Package halfake implements the hal interfaces in memory for host-side tests
// and for tools that only need pin identities.
package halfake

import (
	"sync"

	"projectlab-go/errcode"
	"projectlab-go/hal"
)

// Pin is the simulated state of one pin.
type Pin struct {
	mu      sync.Mutex
	name    string
	level   bool
	output  bool
	pull    hal.Pull
	edge    hal.Edge
	handler func(bool)
	open    int
}

func (p *Pin) Name() string { return p.name }

// Level returns the current line level.
func (p *Pin) Level() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.level
}

// IsOutput reports whether the pin was last configured as an output.
func (p *Pin) IsOutput() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.output
}

func (p *Pin) Pull() hal.Pull {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pull
}

// Open reports how many ports currently hold the pin.
func (p *Pin) Open() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.open
}

// Drive sets the line level from outside, as a peripheral would, and runs
// the interrupt handler when the transition matches the configured edge.
func (p *Pin) Drive(level bool) {
	p.mu.Lock()
	old := p.level
	p.level = level
	h := p.handler
	want := p.edge.Wants(old, level)
	p.mu.Unlock()
	if want && h != nil {
		h(level)
	}
}

// Controller is a named set of fake pins. It is the base of Device and can
// stand in for an IO expander.
type Controller struct {
	mu    sync.Mutex
	name  string
	pins  map[string]*Pin
	known map[string]bool // nil accepts any name
	fail  map[string]error
}

// NewController returns a controller that accepts any pin name unless
// names are given.
func NewController(name string, names ...string) *Controller {
	c := &Controller{name: name, pins: make(map[string]*Pin), fail: make(map[string]error)}
	if len(names) > 0 {
		c.known = make(map[string]bool, len(names))
		for _, n := range names {
			c.known[n] = true
		}
	}
	return c
}

func (c *Controller) Name() string { return c.name }

// FailPin makes every port creation on pin return err.
func (c *Controller) FailPin(pin string, err error) {
	c.mu.Lock()
	c.fail[pin] = err
	c.mu.Unlock()
}

// Pin returns the simulated pin, creating it on first use.
func (c *Controller) Pin(name string) *Pin {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pinLocked(name)
}

func (c *Controller) pinLocked(name string) *Pin {
	p, ok := c.pins[name]
	if !ok {
		p = &Pin{name: name}
		c.pins[name] = p
	}
	return p
}

func (c *Controller) claim(name string) (*Pin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known != nil && !c.known[name] {
		return nil, errcode.New(errcode.UnknownPin, c.name, name)
	}
	if err := c.fail[name]; err != nil {
		return nil, err
	}
	return c.pinLocked(name), nil
}

func (c *Controller) CreateDigitalOutputPort(pin string, initial bool) (hal.DigitalOutputPort, error) {
	p, err := c.claim(pin)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.output = true
	p.level = initial
	p.open++
	p.mu.Unlock()
	return &OutputPort{pin: p}, nil
}

func (c *Controller) CreateDigitalInterruptPort(pin string, edge hal.Edge, pull hal.Pull) (hal.DigitalInterruptPort, error) {
	p, err := c.claim(pin)
	if err != nil {
		return nil, err
	}
	p.mu.Lock()
	p.output = false
	p.pull = pull
	p.edge = edge
	switch pull {
	case hal.PullUp:
		p.level = true
	case hal.PullDown:
		p.level = false
	}
	p.open++
	p.mu.Unlock()
	return &InterruptPort{pin: p}, nil
}

// OutputPort drives a fake pin.
type OutputPort struct {
	pin    *Pin
	closed bool
}

func (o *OutputPort) Set(level bool) error {
	if o.closed {
		return errcode.Closed
	}
	o.pin.mu.Lock()
	o.pin.level = level
	o.pin.mu.Unlock()
	return nil
}

func (o *OutputPort) State() bool { return o.pin.Level() }

func (o *OutputPort) Close() error {
	if o.closed {
		return nil
	}
	o.closed = true
	o.pin.mu.Lock()
	o.pin.open--
	o.pin.mu.Unlock()
	return nil
}

// InterruptPort reads a fake pin and receives its edges.
type InterruptPort struct {
	pin    *Pin
	closed bool
}

func (i *InterruptPort) Read() (bool, error) {
	if i.closed {
		return false, errcode.Closed
	}
	return i.pin.Level(), nil
}

func (i *InterruptPort) SetHandler(h func(bool)) {
	i.pin.mu.Lock()
	i.pin.handler = h
	i.pin.mu.Unlock()
}

func (i *InterruptPort) Close() error {
	if i.closed {
		return nil
	}
	i.closed = true
	i.pin.mu.Lock()
	i.pin.handler = nil
	i.pin.edge = hal.EdgeNone
	i.pin.open--
	i.pin.mu.Unlock()
	return nil
}
