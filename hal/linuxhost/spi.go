package linuxhost

import (
	"sync"

	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"

	"projectlab-go/errcode"
	"projectlab-go/hal"
)

// CreateSPIBus opens Config.SPIPort. The pin names only need to be known to
// the host; the kernel driver owns the actual lines.
func (h *Host) CreateSPIBus(sck, copi, cipo string, cfg hal.SPIConfig) (hal.SPIBus, error) {
	if err := h.claim("spi:" + h.cfg.SPIPort); err != nil {
		return nil, err
	}
	b := &spiBus{port: h.cfg.SPIPort}
	if err := b.Configure(cfg); err != nil {
		h.release("spi:" + h.cfg.SPIPort)
		return nil, err
	}
	h.track(b.close)
	h.log.Debugw("spi bus", "port", h.cfg.SPIPort, "sck", sck, "copi", copi, "cipo", cipo, "hz", cfg.Frequency, "mode", cfg.Mode)
	return b, nil
}

type spiBus struct {
	port string

	mu   sync.Mutex
	pc   spi.PortCloser
	conn spi.Conn
	cfg  hal.SPIConfig
}

// Configure reopens the port: a periph port can be connected only once.
func (b *spiBus) Configure(cfg hal.SPIConfig) error {
	if cfg.Frequency == 0 {
		return errcode.New(errcode.InvalidParams, "spi", "zero frequency")
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil && b.cfg == cfg {
		return nil
	}
	if b.pc != nil {
		_ = b.pc.Close()
		b.pc, b.conn = nil, nil
	}
	pc, err := spireg.Open(b.port)
	if err != nil {
		return errcode.Wrap(errcode.UnknownBus, "spi "+b.port, err)
	}
	conn, err := pc.Connect(physic.Hertz*physic.Frequency(cfg.Frequency), spiMode(cfg.Mode), 8)
	if err != nil {
		_ = pc.Close()
		return errcode.Wrap(errcode.Error, "spi "+b.port, err)
	}
	b.pc, b.conn, b.cfg = pc, conn, cfg
	return nil
}

func spiMode(m hal.SPIMode) spi.Mode {
	switch m {
	case hal.SPIMode1:
		return spi.Mode1
	case hal.SPIMode2:
		return spi.Mode2
	case hal.SPIMode3:
		return spi.Mode3
	default:
		return spi.Mode0
	}
}

// Tx needs w and r of equal length when both are set; a nil side is padded.
func (b *spiBus) Tx(w, r []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn == nil {
		return errcode.New(errcode.Closed, "spi", b.port)
	}
	switch {
	case w == nil:
		w = make([]byte, len(r))
	case r == nil:
		r = make([]byte, len(w))
	case len(w) != len(r):
		return errcode.New(errcode.InvalidParams, "spi", "tx length mismatch")
	}
	return b.conn.Tx(w, r)
}

func (b *spiBus) Transfer(w byte) (byte, error) {
	var r [1]byte
	err := b.Tx([]byte{w}, r[:])
	return r[0], err
}

func (b *spiBus) close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.pc == nil {
		return nil
	}
	err := b.pc.Close()
	b.pc, b.conn = nil, nil
	return err
}
