package hal

import (
	"errors"
	"testing"

	"projectlab-go/errcode"
)

type namedController struct{ name string }

func (n namedController) Name() string { return n.name }
func (namedController) CreateDigitalOutputPort(string, bool) (DigitalOutputPort, error) {
	return nil, errcode.Unsupported
}
func (namedController) CreateDigitalInterruptPort(string, Edge, Pull) (DigitalInterruptPort, error) {
	return nil, errcode.Unsupported
}

func TestEdgeWants(t *testing.T) {
	cases := []struct {
		e        Edge
		old, new bool
		want     bool
	}{
		{EdgeRising, false, true, true},
		{EdgeRising, true, false, false},
		{EdgeFalling, true, false, true},
		{EdgeBoth, true, false, true},
		{EdgeBoth, false, true, true},
		{EdgeBoth, true, true, false},
		{EdgeNone, false, true, false},
	}
	for _, c := range cases {
		if got := c.e.Wants(c.old, c.new); got != c.want {
			t.Fatalf("%s %v->%v: got %v", c.e, c.old, c.new, got)
		}
	}
	if EdgeBoth.String() != "both" || PullDown.String() != "down" {
		t.Fatal("enum strings changed")
	}
}

func TestPinKey(t *testing.T) {
	a := Pin{Name: "GP1", Controller: namedController{"mcp2"}}
	b := Pin{Name: "GP1", Controller: namedController{"mcp1"}}
	if a.Key() == b.Key() {
		t.Fatal("same name on different controllers must differ")
	}
	if a.Key() != "mcp2:GP1" {
		t.Fatalf("key %q", a.Key())
	}
	if !(Pin{}).IsZero() || a.IsZero() {
		t.Fatal("IsZero wrong")
	}
}

func TestPinWithoutControllerIsUnknown(t *testing.T) {
	_, err := Pin{Name: "PA3"}.CreateDigitalOutputPort(false)
	if !errors.Is(err, errcode.UnknownPin) {
		t.Fatalf("want unknown_pin, got %v", err)
	}
}
