package linuxhost

import (
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/conn/v3/physic"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/x/mathx"
)

// pwmPin is the part of gpio.PinIO a PWM port drives.
type pwmPin interface {
	PWM(duty gpio.Duty, f physic.Frequency) error
	Out(l gpio.Level) error
	Halt() error
}

func (h *Host) CreatePWMPort(pin string, frequency uint32, duty float64, inverted bool) (hal.PWMPort, error) {
	name, ok := h.cfg.PWM[pin]
	if !ok {
		return nil, errcode.New(errcode.UnknownPin, hal.MCU, pin+" has no pwm")
	}
	p := gpioreg.ByName(name)
	if p == nil {
		return nil, errcode.New(errcode.UnknownPin, hal.MCU, "gpioreg has no "+name)
	}
	if err := h.claim(pin); err != nil {
		return nil, err
	}
	h.log.Debugw("pwm port", "pin", pin, "gpio", name, "hz", frequency, "inverted", inverted)
	return newPWM(p, frequency, duty, inverted, func() { h.release(pin) }), nil
}

type pwmPort struct {
	pin      pwmPin
	inverted bool
	release  func()

	mu      sync.Mutex
	hz      uint32
	duty    float64
	running bool
}

func newPWM(p pwmPin, hz uint32, duty float64, inverted bool, release func()) *pwmPort {
	if release == nil {
		release = func() {}
	}
	return &pwmPort{pin: p, inverted: inverted, release: release, hz: hz, duty: mathx.Unit(duty)}
}

// level is the duty the pin actually sees.
func (p *pwmPort) level() gpio.Duty {
	d := p.duty
	if p.inverted {
		d = 1 - d
	}
	return gpio.Duty(d * float64(gpio.DutyMax))
}

func (p *pwmPort) apply() error {
	if !p.running {
		return nil
	}
	return p.pin.PWM(p.level(), physic.Frequency(p.hz)*physic.Hertz)
}

func (p *pwmPort) SetFrequency(hz uint32) error {
	if hz == 0 {
		return errcode.New(errcode.InvalidParams, "pwm", "zero frequency")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.hz = hz
	return p.apply()
}

func (p *pwmPort) Frequency() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hz
}

func (p *pwmPort) SetDutyCycle(duty float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.duty = mathx.Unit(duty)
	return p.apply()
}

func (p *pwmPort) DutyCycle() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.duty
}

func (p *pwmPort) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = true
	return p.apply()
}

// Stop parks the pin at its idle level: low, or high when inverted.
func (p *pwmPort) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.running = false
	if err := p.pin.Halt(); err != nil {
		return err
	}
	return p.pin.Out(gpio.Level(p.inverted))
}

func (p *pwmPort) Close() error {
	defer p.release()
	return p.Stop()
}
