// Package rgbled drives a three-channel RGB LED from PWM ports.
package rgbled

import (
	"sync"

	"github.com/lucasb-eyer/go-colorful"
	"go.uber.org/multierr"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/x/mathx"
)

// Common says which LED terminal is shared.
type Common uint8

const (
	CommonCathode Common = iota // channel on = pin high
	CommonAnode                 // channel on = pin low
)

func (c Common) String() string {
	if c == CommonAnode {
		return "common_anode"
	}
	return "common_cathode"
}

// DefaultFrequency is the PWM frequency used by FromPins.
const DefaultFrequency = 1000

var (
	Off   = colorful.Color{}
	Red   = colorful.Color{R: 1}
	Green = colorful.Color{G: 1}
	Blue  = colorful.Color{B: 1}
	White = colorful.Color{R: 1, G: 1, B: 1}
)

type Config struct {
	Common Common
	// Frequency in Hz; defaults to DefaultFrequency.
	Frequency uint32
}

type LED struct {
	ports  [3]hal.PWMPort
	common Common

	mu         sync.Mutex
	color      colorful.Color
	brightness float64
	off        bool
}

// New wraps three ports that already have the LED's polarity applied, and
// starts them dark.
func New(r, g, b hal.PWMPort, common Common) (*LED, error) {
	l := &LED{ports: [3]hal.PWMPort{r, g, b}, common: common, brightness: 1}
	for _, p := range l.ports {
		if p == nil {
			return nil, errcode.New(errcode.InvalidParams, "rgbled", "missing channel")
		}
		if err := p.SetDutyCycle(0); err != nil {
			return nil, err
		}
		if err := p.Start(); err != nil {
			return nil, err
		}
	}
	return l, nil
}

// FromPins creates the three PWM ports on dev. For a common-anode LED the
// ports are inverted so a duty cycle of 1 is full brightness.
func FromPins(dev hal.Device, red, green, blue string, cfg Config) (*LED, error) {
	freq := cfg.Frequency
	if freq == 0 {
		freq = DefaultFrequency
	}
	inverted := cfg.Common == CommonAnode
	var ports []hal.PWMPort
	fail := func(err error) (*LED, error) {
		for _, p := range ports {
			err = multierr.Append(err, p.Close())
		}
		return nil, err
	}
	for _, pin := range []string{red, green, blue} {
		p, err := dev.CreatePWMPort(pin, freq, 0, inverted)
		if err != nil {
			return fail(err)
		}
		ports = append(ports, p)
	}
	l, err := New(ports[0], ports[1], ports[2], cfg.Common)
	if err != nil {
		return fail(err)
	}
	return l, nil
}

func (l *LED) Common() Common { return l.common }

// Color returns the colour last set, before brightness scaling.
func (l *LED) Color() colorful.Color {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.color
}

func (l *LED) Brightness() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.brightness
}

func (l *LED) IsOn() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.off && l.brightness > 0 && l.color != Off
}

// SetColor shows c at the current brightness. Out-of-gamut values are
// clamped per channel.
func (l *LED) SetColor(c colorful.Color) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.apply(c, l.brightness); err != nil {
		return err
	}
	l.color, l.off = c, false
	return nil
}

// SetHex parses "#rrggbb" and shows it.
func (l *LED) SetHex(s string) error {
	c, err := colorful.Hex(s)
	if err != nil {
		return errcode.Wrap(errcode.InvalidParams, "rgbled", err)
	}
	return l.SetColor(c)
}

// SetBrightness scales all channels; b is clamped to [0, 1].
func (l *LED) SetBrightness(b float64) error {
	b = mathx.Unit(b)
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.apply(l.color, b); err != nil {
		return err
	}
	l.brightness, l.off = b, false
	return nil
}

// Blend moves the LED to the fraction t of the way from its colour to c,
// interpolating in CIE L*a*b*.
func (l *LED) Blend(c colorful.Color, t float64) error {
	cur := l.Color()
	return l.SetColor(cur.BlendLab(c, mathx.Unit(t)).Clamped())
}

// TurnOff darkens the LED but keeps colour and brightness.
func (l *LED) TurnOff() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.apply(Off, 0); err != nil {
		return err
	}
	l.off = true
	return nil
}

func (l *LED) apply(c colorful.Color, brightness float64) error {
	c = c.Clamped()
	duty := [3]float64{c.R, c.G, c.B}
	for i, p := range l.ports {
		if err := p.SetDutyCycle(mathx.Unit(duty[i]*brightness)); err != nil {
			return err
		}
	}
	return nil
}

// Close stops and releases all three channels.
func (l *LED) Close() error {
	var err error
	for _, p := range l.ports {
		err = multierr.Append(err, p.Stop())
		err = multierr.Append(err, p.Close())
	}
	return err
}
