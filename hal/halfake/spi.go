package halfake

import (
	"sync"

	"projectlab-go/hal"
)

// SPI records every transfer. Reads return zeros.
type SPI struct {
	SCK, COPI, CIPO string

	mu  sync.Mutex
	cfg hal.SPIConfig
	tx  [][]byte
}

func (s *SPI) Configure(cfg hal.SPIConfig) error {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

func (s *SPI) Config() hal.SPIConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *SPI) Tx(w, r []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(w) > 0 {
		s.tx = append(s.tx, append([]byte(nil), w...))
	}
	for i := range r {
		r[i] = 0
	}
	return nil
}

func (s *SPI) Transfer(b byte) (byte, error) {
	s.mu.Lock()
	s.tx = append(s.tx, []byte{b})
	s.mu.Unlock()
	return 0, nil
}

// Writes returns a copy of the recorded write buffers.
func (s *SPI) Writes() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([][]byte, len(s.tx))
	copy(out, s.tx)
	return out
}

// Reset clears the recorded writes.
func (s *SPI) Reset() {
	s.mu.Lock()
	s.tx = nil
	s.mu.Unlock()
}
