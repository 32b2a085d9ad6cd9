package connector

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/hal/halfake"
)

var (
	mcu  = halfake.NewController(hal.MCU)
	mcp1 = halfake.NewController("mcp1")
)

func pin(c hal.PinController, name string) hal.Pin { return hal.Pin{Name: name, Controller: c} }

func TestLookupAndSignals(t *testing.T) {
	m := PinMapping{
		{Signal: "D0", Pin: pin(mcu, "D16")},
		{Signal: "D1", Pin: pin(mcu, "D17")},
	}
	p, ok := m.Lookup("D1")
	if !ok || p.Key() != "mcu:D17" {
		t.Fatalf("lookup %v %v", p, ok)
	}
	if _, ok := m.Lookup("D2"); ok {
		t.Fatal("unexpected signal")
	}
	if diff := cmp.Diff([]string{"D0", "D1"}, m.Signals()); diff != "" {
		t.Fatal(diff)
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name string
		m    PinMapping
		code errcode.Code
	}{
		{"ok", PinMapping{{Signal: "A", Pin: pin(mcu, "PA3")}, {Signal: "B", Pin: pin(mcp1, "PA3")}}, errcode.OK},
		{"duplicate signal", PinMapping{{Signal: "A", Pin: pin(mcu, "PA3")}, {Signal: "A", Pin: pin(mcu, "PA4")}}, errcode.InvalidParams},
		{"missing pin", PinMapping{{Signal: "A"}}, errcode.UnknownPin},
		{"shared pin", PinMapping{{Signal: "A", Pin: pin(mcp1, "GP4")}, {Signal: "B", Pin: pin(mcp1, "GP4")}}, errcode.PinInUse},
		{"marked shared", PinMapping{{Signal: "A", Pin: pin(mcp1, "GP4")}, {Signal: "B", Pin: pin(mcp1, "GP4"), Shared: true}}, errcode.OK},
	}
	for _, c := range cases {
		if got := errcode.Of(c.m.Validate()); got != c.code {
			t.Fatalf("%s: got %s want %s", c.name, got, c.code)
		}
	}
}

func TestConnectorValidate(t *testing.T) {
	c := &Connector{
		Name: "GroveUart",
		Kind: KindGroveUart,
		Pins: PinMapping{
			{Signal: "RX", Pin: pin(mcu, "PI9")},
			{Signal: "TX", Pin: pin(mcu, "PH13")},
		},
		Serial: SerialMapping{PortName: "com4"},
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	if c.Serial.String() != "com4" || c.Serial.IsZero() {
		t.Fatal("serial mapping")
	}

	c.Pins = append(c.Pins, PinAlias{Signal: "SCL", Pin: pin(mcu, "PB6")})
	if err := c.Validate(); !errors.Is(err, errcode.InvalidParams) {
		t.Fatalf("foreign signal: %v", err)
	}

	c.Pins = PinMapping{{Signal: "RX", Pin: pin(mcu, "PI9")}, {Signal: "TX", Pin: pin(mcu, "PI9")}}
	err := c.Validate()
	if !errors.Is(err, errcode.PinInUse) || err.Error()[:9] != "GroveUart" {
		t.Fatalf("pin clash: %v", err)
	}
}

func TestKindSignals(t *testing.T) {
	if n := len(KindMikroBus.Signals()); n != 12 {
		t.Fatalf("mikrobus signals %d", n)
	}
	s := KindQwiic.Signals()
	s[0] = "x"
	if KindQwiic.Signals()[0] != "SCL" {
		t.Fatal("Signals must return a copy")
	}
}
