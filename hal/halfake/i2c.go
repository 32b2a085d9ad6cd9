package halfake

import (
	"errors"
	"sync"
)

// ErrNack is returned for transactions to an address with no target.
var ErrNack = errors.New("halfake: i2c nack")

// Target is a register-file I2C peripheral. Writes store from the first
// byte's register with auto-increment; reads return from the last register
// pointer. Hooks override individual registers.
type Target struct {
	mu    sync.Mutex
	regs  [256]byte
	reads map[byte]int

	// Reg maps a register pointer byte to a register index (identity when nil).
	Reg func(ptr byte) byte
	// OnRead, when set and returning ok, supplies the value for reg.
	OnRead func(reg byte) (v byte, ok bool)
	// OnWrite runs after a register is stored.
	OnWrite func(reg, v byte)
	// NoIncrement disables pointer auto-increment.
	NoIncrement bool
}

func NewTarget() *Target { return &Target{reads: make(map[byte]int)} }

// Set stores v in reg without running hooks.
func (t *Target) Set(reg, v byte) {
	t.mu.Lock()
	t.regs[reg] = v
	t.mu.Unlock()
}

// Get returns reg without running hooks.
func (t *Target) Get(reg byte) byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.regs[reg]
}

// Reads counts reads of reg.
func (t *Target) Reads(reg byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reads[reg]
}

func (t *Target) index(ptr byte) byte {
	if t.Reg != nil {
		return t.Reg(ptr)
	}
	return ptr
}

func (t *Target) tx(w, r []byte) {
	if len(w) == 0 {
		return
	}
	ptr := w[0]
	for _, v := range w[1:] {
		reg := t.index(ptr)
		t.mu.Lock()
		t.regs[reg] = v
		hook := t.OnWrite
		t.mu.Unlock()
		if hook != nil {
			hook(reg, v)
		}
		if !t.NoIncrement {
			ptr++
		}
	}
	for i := range r {
		reg := t.index(ptr)
		t.mu.Lock()
		t.reads[reg]++
		v := t.regs[reg]
		hook := t.OnRead
		t.mu.Unlock()
		if hook != nil {
			if hv, ok := hook(reg); ok {
				v = hv
			}
		}
		r[i] = v
		if !t.NoIncrement {
			ptr++
		}
	}
}

// I2C is a fake bus implementing tinygo drivers.I2C.
type I2C struct {
	mu      sync.Mutex
	targets map[uint16]*Target
	fail    map[uint16]error
	txs     int
}

func NewI2C() *I2C {
	return &I2C{targets: make(map[uint16]*Target), fail: make(map[uint16]error)}
}

// Attach places a target at addr and returns it.
func (b *I2C) Attach(addr uint16, t *Target) *Target {
	if t == nil {
		t = NewTarget()
	}
	b.mu.Lock()
	b.targets[addr] = t
	b.mu.Unlock()
	return t
}

// Fail makes every transaction to addr return err.
func (b *I2C) Fail(addr uint16, err error) {
	b.mu.Lock()
	b.fail[addr] = err
	b.mu.Unlock()
}

// Transactions counts Tx calls.
func (b *I2C) Transactions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.txs
}

func (b *I2C) Tx(addr uint16, w, r []byte) error {
	b.mu.Lock()
	b.txs++
	err := b.fail[addr]
	t := b.targets[addr]
	b.mu.Unlock()
	if err != nil {
		return err
	}
	if t == nil {
		return ErrNack
	}
	t.tx(w, r)
	return nil
}
