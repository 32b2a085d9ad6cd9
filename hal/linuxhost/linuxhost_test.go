package linuxhost

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
	"go.bug.st/serial"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/types"
)

const benchConfig = `{
	// Raspberry Pi 4 standing in for the core compute module.
	family: "f7_core_compute_v2",
	i2c_bus: "1",
	spi_port: "SPI0.0",
	lines: {
		PA0: 18,
		A05: 17, // mcp1 interrupt
		PB4: 27,
	},
	pwm: { PC6: "GPIO12", PC7: "GPIO13" },
	serial: { com1: "/dev/ttyAMA1", com4: "/dev/ttyAMA0" },
}`

func TestParseConfig(t *testing.T) {
	cfg, err := ParseConfig([]byte(benchConfig))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	want := Config{
		Family:   types.FamilyF7CoreComputeV2,
		I2CBus:   "1",
		SPIPort:  "SPI0.0",
		GPIOChip: "gpiochip0",
		Lines:    map[string]int{"PA0": 18, "A05": 17, "PB4": 27},
		PWM:      map[string]string{"PC6": "GPIO12", "PC7": "GPIO13"},
		Serial:   map[string]string{"com1": "/dev/ttyAMA1", "com4": "/dev/ttyAMA0"},
		Consumer: "projectlab",
	}
	if d := cmp.Diff(want, cfg); d != "" {
		t.Fatalf("config (-want +got):\n%s", d)
	}
}

func TestParseConfigRejects(t *testing.T) {
	cases := map[string]struct {
		doc  string
		code errcode.Code
	}{
		"syntax":         {`{family: `, errcode.InvalidParams},
		"unknown family": {`{family: "pico"}`, errcode.InvalidParams},
		"negative line":  {`{family: "f7_feather_v2", lines: {D02: -1}}`, errcode.InvalidParams},
		"shared line":    {`{family: "f7_feather_v2", lines: {D02: 4, D05: 4}}`, errcode.PinInUse},
		"line and pwm":   {`{family: "f7_feather_v2", lines: {D11: 4}, pwm: {D11: "GPIO12"}}`, errcode.PinInUse},
	}
	for name, c := range cases {
		_, err := ParseConfig([]byte(c.doc))
		if got := errcode.Of(err); got != c.code {
			t.Errorf("%s: code %q (%v), want %q", name, got, err, c.code)
		}
	}
}

func TestSerialModeMapping(t *testing.T) {
	got := serialMode(types.SerialConfig{Baud: 9600, DataBits: 7, Parity: types.ParityEven, StopBits: types.StopBitsTwo})
	want := &serial.Mode{BaudRate: 9600, DataBits: 7, Parity: serial.EvenParity, StopBits: serial.TwoStopBits}
	if d := cmp.Diff(want, got); d != "" {
		t.Fatalf("mode (-want +got):\n%s", d)
	}
	got = serialMode(types.DefaultSerialConfig())
	if got.BaudRate != 19200 || got.Parity != serial.NoParity || got.StopBits != serial.OneStopBit {
		t.Fatalf("default mode %+v", got)
	}
}

func TestSPIModeMapping(t *testing.T) {
	for m, want := range map[hal.SPIMode]spi.Mode{
		hal.SPIMode0: spi.Mode0,
		hal.SPIMode1: spi.Mode1,
		hal.SPIMode2: spi.Mode2,
		hal.SPIMode3: spi.Mode3,
	} {
		if got := spiMode(m); got != want {
			t.Errorf("mode %d: got %v want %v", m, got, want)
		}
	}
}

// ---------------- PWM ----------------

type fakePin struct {
	duty   gpio.Duty
	freq   physic.Frequency
	level  gpio.Level
	halted int
	pwms   int
	fail   error
}

func (p *fakePin) PWM(d gpio.Duty, f physic.Frequency) error {
	if p.fail != nil {
		return p.fail
	}
	p.duty, p.freq = d, f
	p.pwms++
	return nil
}

func (p *fakePin) Out(l gpio.Level) error { p.level = l; return nil }
func (p *fakePin) Halt() error            { p.halted++; return nil }

func TestPWMOnlyDrivesWhileRunning(t *testing.T) {
	pin := &fakePin{}
	p := newPWM(pin, 440, 0.5, false, nil)
	if err := p.SetDutyCycle(0.25); err != nil {
		t.Fatal(err)
	}
	if pin.pwms != 0 {
		t.Fatalf("pin driven before Start")
	}
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	if pin.freq != 440*physic.Hertz || pin.duty != gpio.DutyMax/4 {
		t.Fatalf("pin at %v duty %v", pin.freq, pin.duty)
	}
	if err := p.SetFrequency(880); err != nil {
		t.Fatal(err)
	}
	if pin.freq != 880*physic.Hertz || p.Frequency() != 880 {
		t.Fatalf("frequency not applied: %v", pin.freq)
	}
	if err := p.Stop(); err != nil {
		t.Fatal(err)
	}
	if pin.halted != 1 || pin.level != gpio.Low {
		t.Fatalf("stop halted=%d level=%v", pin.halted, pin.level)
	}
}

func TestPWMInvertedIdlesHigh(t *testing.T) {
	pin := &fakePin{}
	released := false
	p := newPWM(pin, 1000, 0.2, true, func() { released = true })
	if err := p.Start(); err != nil {
		t.Fatal(err)
	}
	want := gpio.DutyMax * 8 / 10
	if d := pin.duty - want; d > 1 || d < -1 {
		t.Fatalf("inverted duty %v want %v", pin.duty, want)
	}
	if p.DutyCycle() != 0.2 {
		t.Fatalf("logical duty %v", p.DutyCycle())
	}
	if err := p.Close(); err != nil {
		t.Fatal(err)
	}
	if pin.level != gpio.High || !released {
		t.Fatalf("close level=%v released=%v", pin.level, released)
	}
}

func TestPWMClampsAndRejects(t *testing.T) {
	pin := &fakePin{}
	p := newPWM(pin, 1000, 2, false, nil)
	if p.DutyCycle() != 1 {
		t.Fatalf("duty %v not clamped", p.DutyCycle())
	}
	if err := p.SetFrequency(0); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("zero frequency: %v", err)
	}
	boom := errors.New("boom")
	pin.fail = boom
	if err := p.Start(); !errors.Is(err, boom) {
		t.Fatalf("start err %v", err)
	}
}
