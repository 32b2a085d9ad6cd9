// Package piezo plays tones on a piezo speaker driven by a PWM port.
package piezo

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/x/mathx"
)

// Audible range accepted by PlayTone.
const (
	MinFrequency = 20
	MaxFrequency = 20_000
)

// idleFrequency is programmed while silent so the port can be created
// before any tone is known.
const idleFrequency = 440

type Speaker struct {
	port hal.PWMPort
	clk  clock.Clock

	mu      sync.Mutex
	volume  float64
	playing bool
}

// New takes ownership of port. A nil clk uses the wall clock.
func New(port hal.PWMPort, clk clock.Clock) *Speaker {
	if clk == nil {
		clk = clock.New()
	}
	return &Speaker{port: port, clk: clk, volume: 1}
}

// FromPin creates the PWM port on dev and wraps it.
func FromPin(dev hal.Device, pin string, clk clock.Clock) (*Speaker, error) {
	p, err := dev.CreatePWMPort(pin, idleFrequency, 0, false)
	if err != nil {
		return nil, err
	}
	return New(p, clk), nil
}

// SetVolume scales the duty cycle; v is clamped to [0, 1]. A square wave
// at 50% duty is full volume.
func (s *Speaker) SetVolume(v float64) {
	s.mu.Lock()
	s.volume = mathx.Unit(v)
	s.mu.Unlock()
}

func (s *Speaker) Volume() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.volume
}

func (s *Speaker) Playing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.playing
}

// PlayTone sounds hz for d and then stops. With d == 0 the tone keeps
// playing until Stop. Cancelling ctx stops the tone early and returns
// ctx.Err().
func (s *Speaker) PlayTone(ctx context.Context, hz uint32, d time.Duration) error {
	if hz < MinFrequency || hz > MaxFrequency {
		return errcode.New(errcode.InvalidParams, "piezo", "frequency out of range")
	}
	s.mu.Lock()
	err := s.start(hz)
	s.mu.Unlock()
	if err != nil || d == 0 {
		return err
	}

	t := s.clk.Timer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		_ = s.Stop()
		return ctx.Err()
	case <-t.C:
		return s.Stop()
	}
}

func (s *Speaker) start(hz uint32) error {
	if err := s.port.SetFrequency(hz); err != nil {
		return err
	}
	if err := s.port.SetDutyCycle(s.volume / 2); err != nil {
		return err
	}
	if err := s.port.Start(); err != nil {
		return err
	}
	s.playing = true
	return nil
}

// Stop silences the speaker.
func (s *Speaker) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playing = false
	return s.port.Stop()
}

func (s *Speaker) Close() error {
	_ = s.Stop()
	return s.port.Close()
}
