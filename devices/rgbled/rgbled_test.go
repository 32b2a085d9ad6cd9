package rgbled

import (
	"errors"
	"math"
	"testing"

	"projectlab-go/errcode"
	"projectlab-go/hal/halfake"
	"projectlab-go/types"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func newLED(t *testing.T, common Common) (*LED, *halfake.Device) {
	t.Helper()
	dev := halfake.NewDevice(types.FamilyF7CoreComputeV2)
	l, err := FromPins(dev, "PC6", "PC7", "PC9", Config{Common: common})
	if err != nil {
		t.Fatalf("FromPins: %v", err)
	}
	return l, dev
}

func duty(t *testing.T, dev *halfake.Device, pin string) float64 {
	t.Helper()
	p, ok := dev.PWM(pin)
	if !ok {
		t.Fatalf("no pwm on %s", pin)
	}
	return p.DutyCycle()
}

func TestCommonAnodeInvertsPorts(t *testing.T) {
	l, dev := newLED(t, CommonAnode)
	for _, pin := range []string{"PC6", "PC7", "PC9"} {
		p, _ := dev.PWM(pin)
		if !p.Inverted() || !p.Running() || p.Frequency() != DefaultFrequency {
			t.Fatalf("%s: inverted=%v running=%v freq=%d", pin, p.Inverted(), p.Running(), p.Frequency())
		}
	}
	if l.IsOn() {
		t.Fatal("LED starts dark")
	}
}

func TestSetColorAndBrightness(t *testing.T) {
	l, dev := newLED(t, CommonCathode)
	if err := l.SetHex("#ff8000"); err != nil {
		t.Fatal(err)
	}
	if !near(duty(t, dev, "PC6"), 1) || !near(duty(t, dev, "PC9"), 0) {
		t.Fatalf("duty r=%v b=%v", duty(t, dev, "PC6"), duty(t, dev, "PC9"))
	}
	if err := l.SetBrightness(1.5); err != nil {
		t.Fatal(err)
	}
	if l.Brightness() != 1 {
		t.Fatalf("brightness not clamped: %v", l.Brightness())
	}
	_ = l.SetBrightness(0.5)
	if !near(duty(t, dev, "PC6"), 0.5) {
		t.Fatalf("scaled red %v", duty(t, dev, "PC6"))
	}
	if !l.IsOn() {
		t.Fatal("expected on")
	}
	_ = l.TurnOff()
	if l.IsOn() || duty(t, dev, "PC7") != 0 {
		t.Fatal("expected off")
	}
	if l.Color() == Off {
		t.Fatal("TurnOff must keep the colour")
	}
}

func TestBadHex(t *testing.T) {
	l, _ := newLED(t, CommonAnode)
	if err := l.SetHex("orange"); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("want invalid_params, got %v", err)
	}
}

func TestFromPinsReleasesOnFailure(t *testing.T) {
	dev := halfake.NewDevice(types.FamilyF7CoreComputeV2)
	dev.FailPWM("PC9", errcode.Unsupported)
	if _, err := FromPins(dev, "PC6", "PC7", "PC9", Config{}); !errors.Is(err, errcode.Unsupported) {
		t.Fatalf("got %v", err)
	}
	if p, _ := dev.PWM("PC6"); p == nil || p.Running() {
		t.Fatal("red channel should have been closed")
	}
}

func TestClose(t *testing.T) {
	l, dev := newLED(t, CommonAnode)
	if err := l.Close(); err != nil {
		t.Fatal(err)
	}
	p, _ := dev.PWM("PC7")
	if p.Running() {
		t.Fatal("channel still running")
	}
	if err := p.SetDutyCycle(0.1); !errors.Is(err, errcode.Closed) {
		t.Fatalf("closed port accepted duty: %v", err)
	}
}
