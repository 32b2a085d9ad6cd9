package halfake

import (
	"errors"
	"testing"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/types"
)

func TestInterruptPortDeliversConfiguredEdges(t *testing.T) {
	d := NewDevice(types.FamilyF7CoreComputeV2)
	ip, err := d.CreateDigitalInterruptPort("A05", hal.EdgeRising, hal.PullDown)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	var seen []bool
	ip.SetHandler(func(l bool) { seen = append(seen, l) })

	pin := d.Pin("A05")
	pin.Drive(true)
	pin.Drive(false)
	pin.Drive(true)
	if len(seen) != 2 || !seen[0] || !seen[1] {
		t.Fatalf("rising edges only, got %v", seen)
	}
	_ = ip.Close()
	pin.Drive(false)
	pin.Drive(true)
	if len(seen) != 2 {
		t.Fatal("handler must be cleared on close")
	}
	if d.Created("interrupt") != 1 || pin.Open() != 0 {
		t.Fatalf("bookkeeping: created=%d open=%d", d.Created("interrupt"), pin.Open())
	}
}

func TestRestrictedPinNames(t *testing.T) {
	d := NewDevice(types.FamilyF7FeatherV2, "D01")
	if _, err := d.CreateDigitalOutputPort("PA3", false); !errors.Is(err, errcode.UnknownPin) {
		t.Fatalf("want unknown_pin, got %v", err)
	}
	d.FailPin("D01", errcode.PinInUse)
	if _, err := d.CreateDigitalOutputPort("D01", false); !errors.Is(err, errcode.PinInUse) {
		t.Fatalf("want injected failure, got %v", err)
	}
}

func TestI2CTargetAutoIncrement(t *testing.T) {
	bus := NewI2C()
	tg := bus.Attach(0x20, nil)
	if err := bus.Tx(0x20, []byte{0x05, 0xAA, 0xBB}, nil); err != nil {
		t.Fatal(err)
	}
	r := make([]byte, 2)
	if err := bus.Tx(0x20, []byte{0x05}, r); err != nil {
		t.Fatal(err)
	}
	if r[0] != 0xAA || r[1] != 0xBB {
		t.Fatalf("read back %x", r)
	}
	if tg.Reads(0x05) != 1 || tg.Get(0x06) != 0xBB {
		t.Fatal("register bookkeeping wrong")
	}
	if err := bus.Tx(0x21, []byte{0}, r); !errors.Is(err, ErrNack) {
		t.Fatalf("absent target should nack, got %v", err)
	}
}

func TestSerialRespond(t *testing.T) {
	s := NewSerial("uart")
	s.Respond = func(f []byte) []byte { return append([]byte{0xEE}, f...) }
	if _, err := s.Write([]byte{1, 2}); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 8)
	n, err := s.Read(buf)
	if err != nil || n != 3 || buf[0] != 0xEE {
		t.Fatalf("read n=%d err=%v buf=%x", n, err, buf[:n])
	}
}
