// Package platform describes the host modules a Project Lab carrier can be
// populated with: which pin names exist and which buses they expose.
// Descriptors say what the module can do; wiring choices live with the
// carrier revision.
package platform

import (
	"sort"
	"strconv"

	"projectlab-go/errcode"
	"projectlab-go/types"
)

type Board struct {
	Name   string
	Family types.Family

	// Controllers present (identities only).
	I2C  []int    // bus numbers
	UART []string // friendly names, "com1", ...

	pins map[string]bool
}

// HasPin reports whether name is a pin of the module.
func (b *Board) HasPin(name string) bool { return b.pins[name] }

// CheckPin returns errcode.UnknownPin for names the module does not have.
func (b *Board) CheckPin(name string) error {
	if !b.pins[name] {
		return errcode.New(errcode.UnknownPin, b.Name, name)
	}
	return nil
}

// Pins lists all pin names, sorted.
func (b *Board) Pins() []string {
	out := make([]string, 0, len(b.pins))
	for p := range b.pins {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// HasUART reports whether friendly names a serial port of the module.
func (b *Board) HasUART(friendly string) bool {
	for _, u := range b.UART {
		if u == friendly {
			return true
		}
	}
	return false
}

func (b *Board) HasI2C(bus int) bool {
	for _, n := range b.I2C {
		if n == bus {
			return true
		}
	}
	return false
}

func newBoard(b Board, groups ...[]string) *Board {
	b.pins = make(map[string]bool)
	for _, g := range groups {
		for _, p := range g {
			b.pins[p] = true
		}
	}
	return &b
}

// numbered returns prefix00..prefix<n-1> with two-digit indices.
func numbered(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		s := strconv.Itoa(i)
		if i < 10 {
			s = "0" + s
		}
		out[i] = prefix + s
	}
	return out
}

// stmPorts returns P<port><n> for the STM32 GPIO ports given.
func stmPorts(ports string, width int) []string {
	var out []string
	for _, p := range ports {
		for i := 0; i < width; i++ {
			out = append(out, "P"+string(p)+strconv.Itoa(i))
		}
	}
	return out
}

// Lookup returns the descriptor of a host family.
func Lookup(f types.Family) (*Board, bool) {
	switch f {
	case types.FamilyF7FeatherV2:
		return F7FeatherV2, true
	case types.FamilyF7CoreComputeV2:
		return F7CoreComputeV2, true
	}
	return nil, false
}
