package piezo

import (
	"context"
	"errors"
	"testing"
	"time"

	"projectlab-go/errcode"
	"projectlab-go/hal/halfake"
	"projectlab-go/types"
)

func newSpeaker(t *testing.T) (*Speaker, *halfake.PWM) {
	t.Helper()
	dev := halfake.NewDevice(types.FamilyF7CoreComputeV2)
	s, err := FromPin(dev, "PA0", nil)
	if err != nil {
		t.Fatal(err)
	}
	p, _ := dev.PWM("PA0")
	return s, p
}

func TestContinuousTone(t *testing.T) {
	s, p := newSpeaker(t)
	s.SetVolume(0.5)
	if err := s.PlayTone(context.Background(), 880, 0); err != nil {
		t.Fatal(err)
	}
	if !p.Running() || p.Frequency() != 880 || p.DutyCycle() != 0.25 {
		t.Fatalf("running=%v f=%d duty=%v", p.Running(), p.Frequency(), p.DutyCycle())
	}
	_ = s.Stop()
	if p.Running() || s.Playing() {
		t.Fatal("still playing")
	}
}

func TestTimedTone(t *testing.T) {
	s, p := newSpeaker(t)
	if err := s.PlayTone(context.Background(), 440, 5*time.Millisecond); err != nil {
		t.Fatal(err)
	}
	if p.Running() || p.Starts() != 1 {
		t.Fatalf("running=%v starts=%d", p.Running(), p.Starts())
	}
}

func TestCancelledTone(t *testing.T) {
	s, p := newSpeaker(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := s.PlayTone(ctx, 440, time.Hour); !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v", err)
	}
	if p.Running() {
		t.Fatal("cancelled tone left running")
	}
}

func TestRejectsInaudible(t *testing.T) {
	s, p := newSpeaker(t)
	if err := s.PlayTone(context.Background(), 5, 0); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("got %v", err)
	}
	if p.Starts() != 0 {
		t.Fatal("must not start")
	}
	s.SetVolume(3)
	if s.Volume() != 1 {
		t.Fatalf("volume %v", s.Volume())
	}
}
