package main

import (
	"bytes"
	"strings"
	"testing"

	"go.uber.org/zap"

	"projectlab-go/errcode"
	"projectlab-go/types"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	err := newApp(&out).Run(append([]string{"plabctl"}, args...))
	return out.String(), err
}

func TestTablesV3e(t *testing.T) {
	out, err := run(t, "tables", "--board", "v3e")
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	for _, want := range []string{
		"PROJECT LAB V3.15",
		"mcp2:GP1", // MikroBus2 RST
		"mcu:PB12", // MikroBus1 CS
		"mcp1:GP4", // display LED
		"serial com1",
		"serial bridge",
		"i2c 3",
	} {
		if !strings.Contains(strings.ToUpper(out), strings.ToUpper(want)) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTablesV1MarksUnsupported(t *testing.T) {
	out, err := run(t, "tables", "--board", "v1")
	if err != nil {
		t.Fatalf("tables: %v", err)
	}
	if !strings.Contains(out, string(errcode.Unsupported)) {
		t.Fatalf("v1 connectors beyond MikroBus should be unsupported:\n%s", out)
	}
	if !strings.Contains(out, "mcu:D14") {
		t.Fatalf("MikroBus1 CS missing:\n%s", out)
	}
}

func TestTablesUnknownBoard(t *testing.T) {
	if _, err := run(t, "tables", "--board", "v2"); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("err %v", err)
	}
}

func TestSimulateRevisions(t *testing.T) {
	for board, want := range map[string]string{"v1": "v1.x", "v3": "v3.0", "v3e": "v3.15"} {
		hw, err := simulate(board, zap.NewNop())
		if err != nil {
			t.Fatalf("%s: %v", board, err)
		}
		if got := hw.RevisionString(); got != want {
			t.Errorf("%s: revision %q want %q", board, got, want)
		}
		_ = hw.Close()
	}
}

func TestParseParity(t *testing.T) {
	for in, want := range map[string]types.Parity{"none": types.ParityNone, "e": types.ParityEven, "odd": types.ParityOdd} {
		got, err := parseParity(in)
		if err != nil || got != want {
			t.Errorf("%q: %v, %v", in, got, err)
		}
	}
	if _, err := parseParity("mark"); errcode.Of(err) != errcode.InvalidParams {
		t.Fatalf("mark: %v", err)
	}
}

func TestModbusRejectsOutOfRangeAddressing(t *testing.T) {
	for _, args := range [][]string{
		{"--unit", "300"},
		{"--start", "70000"},
		{"--start", "65535", "--count", "2"},
		{"--count", "126"},
	} {
		_, err := run(t, append([]string{"modbus", "--config", "missing.json5"}, args...)...)
		if errcode.Of(err) != errcode.InvalidParams {
			t.Errorf("%v: %v", args, err)
		}
	}
}
