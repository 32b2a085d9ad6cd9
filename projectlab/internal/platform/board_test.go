package platform

import (
	"errors"
	"testing"

	"projectlab-go/errcode"
	"projectlab-go/types"
)

func TestLookup(t *testing.T) {
	for _, f := range []types.Family{types.FamilyF7FeatherV2, types.FamilyF7CoreComputeV2} {
		b, ok := Lookup(f)
		if !ok || b.Family != f {
			t.Fatalf("%s: %v %v", f, b, ok)
		}
	}
	if _, ok := Lookup(types.FamilyUnknown); ok {
		t.Fatal("unknown family resolved")
	}
}

func TestPins(t *testing.T) {
	cases := []struct {
		b    *Board
		pin  string
		want bool
	}{
		{F7FeatherV2, "A00", true},
		{F7FeatherV2, "D15", true},
		{F7FeatherV2, "D16", false},
		{F7FeatherV2, "OnboardLedRed", true},
		{F7CoreComputeV2, "PH13", true},
		{F7CoreComputeV2, "PI9", true},
		{F7CoreComputeV2, "PJ0", false},
		{F7CoreComputeV2, "SPI5_CIPO", true},
		{F7CoreComputeV2, "D16", true},
	}
	for _, c := range cases {
		if got := c.b.HasPin(c.pin); got != c.want {
			t.Fatalf("%s %s: got %v", c.b.Name, c.pin, got)
		}
	}
	if err := F7FeatherV2.CheckPin("PA0"); !errors.Is(err, errcode.UnknownPin) {
		t.Fatalf("got %v", err)
	}
	if n := len(F7FeatherV2.Pins()); n != 6+16+5+3 {
		t.Fatalf("feather pins %d", n)
	}
}

func TestBuses(t *testing.T) {
	if !F7CoreComputeV2.HasI2C(3) || F7FeatherV2.HasI2C(3) {
		t.Fatal("i2c buses")
	}
	if !F7FeatherV2.HasUART("com4") || F7FeatherV2.HasUART("com2") {
		t.Fatal("uarts")
	}
}
