package types

import (
	"testing"
	"time"
)

func TestRevisionString(t *testing.T) {
	cases := []struct {
		r    Revision
		want string
	}{
		{Revision{Major: 1}, "v1.x"},
		{Revision{Major: 3}, "v3.x"},
		{Revision{Major: 3, Known: true}, "v3.0"},
		{Revision{Major: 3, Minor: 14, Known: true}, "v3.14"},
		{Revision{Major: 3, Minor: 15, Known: true}, "v3.15"},
	}
	for _, c := range cases {
		if got := c.r.String(); got != c.want {
			t.Fatalf("%+v: got %q want %q", c.r, got, c.want)
		}
	}
}

func TestRevisionThreshold(t *testing.T) {
	if (Revision{Major: 3, Minor: 14, Known: true}).AtLeast3e() {
		t.Fatal("14 is before 3.e")
	}
	if !(Revision{Major: 3, Minor: 15, Known: true}).AtLeast3e() {
		t.Fatal("15 is 3.e")
	}
	if (Revision{Major: 1, Minor: 200}).AtLeast3e() {
		t.Fatal("V1 is never 3.e")
	}
}

func TestSerialDefaults(t *testing.T) {
	c := SerialConfig{Parity: ParityEven, ReadTimeout: time.Second}.WithDefaults()
	if c.Baud != 19200 || c.DataBits != 8 || c.Parity != ParityEven || c.ReadTimeout != time.Second {
		t.Fatalf("unexpected config %+v", c)
	}
	if ParityOdd.String() != "odd" || StopBitsTwo.String() != "2" {
		t.Fatal("enum strings changed")
	}
	b, _ := ParityNone.MarshalJSON()
	if string(b) != `"none"` {
		t.Fatalf("parity json %s", b)
	}
}
