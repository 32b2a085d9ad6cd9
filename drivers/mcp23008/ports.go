package mcp23008

import (
	"projectlab-go/errcode"
	"projectlab-go/hal"
)

type outputPort struct {
	d      *Device
	n      int
	closed bool
}

func (o *outputPort) Set(level bool) error {
	d := o.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if o.closed {
		return errcode.Closed
	}
	olat := setBit(d.olat, 1<<o.n, level)
	if olat == d.olat {
		return nil
	}
	if err := d.writeReg(regOLAT, olat); err != nil {
		return err
	}
	d.olat = olat
	return nil
}

func (o *outputPort) State() bool {
	o.d.mu.Lock()
	defer o.d.mu.Unlock()
	return o.d.olat&(1<<o.n) != 0
}

// Close returns the pin to a high-impedance input.
func (o *outputPort) Close() error {
	d := o.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true
	d.claimed[o.n] = false
	iodir := d.iodir | 1<<o.n
	if err := d.writeReg(regIODIR, iodir); err != nil {
		return err
	}
	d.iodir = iodir
	return nil
}

type interruptPort struct {
	d       *Device
	n       int
	edge    hal.Edge
	handler func(bool)
	closed  bool
}

func (p *interruptPort) Read() (bool, error) {
	d := p.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.closed {
		return false, errcode.Closed
	}
	v, err := d.readReg(regGPIO)
	if err != nil {
		return false, err
	}
	return v&(1<<p.n) != 0, nil
}

func (p *interruptPort) SetHandler(h func(bool)) {
	p.d.mu.Lock()
	p.handler = h
	p.d.mu.Unlock()
}

func (p *interruptPort) Close() error {
	d := p.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	p.handler = nil
	d.irq[p.n] = nil
	d.claimed[p.n] = false
	gpinten := d.gpinten &^ (1 << p.n)
	if gpinten == d.gpinten {
		return nil
	}
	if err := d.writeReg(regGPINTEN, gpinten); err != nil {
		return err
	}
	d.gpinten = gpinten
	return nil
}
