package errcode

import (
	"errors"
	"testing"

	pkgerrors "github.com/pkg/errors"
)

func TestCodesAreStableStrings(t *testing.T) {
	cases := map[string]Code{
		"ok":             OK,
		"unsupported":    Unsupported,
		"unavailable":    Unavailable,
		"invalid_params": InvalidParams,
		"unknown_pin":    UnknownPin,
		"unknown_bus":    UnknownBus,
		"pin_in_use":     PinInUse,
		"timeout":        Timeout,
		"protocol":       Protocol,
		"closed":         Closed,
		"error":          Error,
	}
	for want, c := range cases {
		if c.Error() != want {
			t.Fatalf("code %q mismatch: got %q", want, c.Error())
		}
	}
}

func TestOfThroughWrapping(t *testing.T) {
	if got := Of(nil); got != OK {
		t.Fatalf("Of(nil)=%q", got)
	}
	if got := Of(Unsupported); got != Unsupported {
		t.Fatalf("Of(code)=%q", got)
	}
	e := New(Unavailable, "mikrobus2", "mcp2 absent")
	wrapped := pkgerrors.Wrap(e, "create connector")
	if got := Of(wrapped); got != Unavailable {
		t.Fatalf("Of(wrapped E)=%q", got)
	}
	if !errors.Is(wrapped, Unavailable) {
		t.Fatal("errors.Is should match the code of a wrapped *E")
	}
	if got := Of(errors.New("boom")); got != Error {
		t.Fatalf("Of(plain)=%q", got)
	}
}

func TestEMessageAndUnwrap(t *testing.T) {
	cause := errors.New("nack")
	e := &E{C: Error, Op: "modbus", Msg: "unable to connect to UART expander", Err: cause}
	if e.Error() != "modbus: error: unable to connect to UART expander" {
		t.Fatalf("unexpected message %q", e.Error())
	}
	if !errors.Is(e, cause) {
		t.Fatal("cause not reachable through Unwrap")
	}
	if Wrap(Timeout, "", cause).Error() != "timeout" {
		t.Fatal("bare wrap should print the code only")
	}
}
