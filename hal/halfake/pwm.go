package halfake

import (
	"sync"

	"projectlab-go/errcode"
)

// PWM is a fake PWM channel that records its settings.
type PWM struct {
	mu       sync.Mutex
	pin      string
	freq     uint32
	duty     float64
	inverted bool
	running  bool
	closed   bool
	starts   int
}

func (p *PWM) Pin() string { return p.pin }

func (p *PWM) Inverted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inverted
}

func (p *PWM) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Starts counts Start calls.
func (p *PWM) Starts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.starts
}

func (p *PWM) SetFrequency(hz uint32) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errcode.Closed
	}
	if hz == 0 {
		return errcode.InvalidParams
	}
	p.freq = hz
	return nil
}

func (p *PWM) Frequency() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.freq
}

func (p *PWM) SetDutyCycle(d float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errcode.Closed
	}
	if d < 0 || d > 1 {
		return errcode.InvalidParams
	}
	p.duty = d
	return nil
}

func (p *PWM) DutyCycle() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

func (p *PWM) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errcode.Closed
	}
	p.running = true
	p.starts++
	return nil
}

func (p *PWM) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	return nil
}

func (p *PWM) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	p.closed = true
	return nil
}
