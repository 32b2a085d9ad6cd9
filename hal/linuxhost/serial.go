package linuxhost

import (
	"sync"

	"go.bug.st/serial"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/types"
)

// CreateSerialPort opens a tty by path. Friendly names must be resolved
// with SerialPortName first.
func (h *Host) CreateSerialPort(name string, cfg types.SerialConfig) (hal.SerialPort, error) {
	if err := h.claim("tty:" + name); err != nil {
		return nil, err
	}
	cfg = cfg.WithDefaults()
	p, err := serial.Open(name, serialMode(cfg))
	if err != nil {
		h.release("tty:" + name)
		return nil, errcode.Wrap(errcode.Unavailable, name, err)
	}
	s := &ttyPort{name: name, port: p, release: func() { h.release("tty:" + name) }}
	if err := s.setTimeout(cfg); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.cfg = cfg
	h.log.Debugw("serial port", "tty", name, "baud", cfg.Baud, "parity", cfg.Parity.String(), "stop", cfg.StopBits.String())
	return s, nil
}

func serialMode(cfg types.SerialConfig) *serial.Mode {
	m := &serial.Mode{BaudRate: int(cfg.Baud), DataBits: int(cfg.DataBits)}
	switch cfg.Parity {
	case types.ParityEven:
		m.Parity = serial.EvenParity
	case types.ParityOdd:
		m.Parity = serial.OddParity
	default:
		m.Parity = serial.NoParity
	}
	switch cfg.StopBits {
	case types.StopBitsOnePointFive:
		m.StopBits = serial.OnePointFiveStopBits
	case types.StopBitsTwo:
		m.StopBits = serial.TwoStopBits
	default:
		m.StopBits = serial.OneStopBit
	}
	return m
}

// ttyPort adapts serial.Port. The library has no write deadline, so
// WriteTimeout is ignored here.
type ttyPort struct {
	name    string
	port    serial.Port
	release func()

	mu     sync.Mutex
	cfg    types.SerialConfig
	closed bool
}

func (s *ttyPort) setTimeout(cfg types.SerialConfig) error {
	t := serial.NoTimeout
	if cfg.ReadTimeout > 0 {
		t = cfg.ReadTimeout
	}
	return s.port.SetReadTimeout(t)
}

// Read returns errcode.Timeout when the read timeout passes with no data.
func (s *ttyPort) Read(p []byte) (int, error) {
	n, err := s.port.Read(p)
	if err != nil {
		return n, err
	}
	if n == 0 && len(p) > 0 {
		return 0, errcode.New(errcode.Timeout, s.name, "read timeout")
	}
	return n, nil
}

func (s *ttyPort) Write(p []byte) (int, error) { return s.port.Write(p) }

func (s *ttyPort) Configure(cfg types.SerialConfig) error {
	cfg = cfg.WithDefaults()
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.port.SetMode(serialMode(cfg)); err != nil {
		return errcode.Wrap(errcode.InvalidParams, s.name, err)
	}
	if err := s.setTimeout(cfg); err != nil {
		return err
	}
	s.cfg = cfg
	return nil
}

func (s *ttyPort) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.release()
	return s.port.Close()
}
