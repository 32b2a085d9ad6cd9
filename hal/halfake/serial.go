package halfake

import (
	"bytes"
	"io"
	"sync"

	"projectlab-go/errcode"
	"projectlab-go/types"
)

// Serial is a scripted serial port. Writes are recorded and, when Respond
// is set, its reply is queued for subsequent reads.
type Serial struct {
	mu      sync.Mutex
	name    string
	cfg     types.SerialConfig
	written bytes.Buffer
	rx      bytes.Buffer
	closed  bool

	// Respond, when set, is called with each written frame.
	Respond func(frame []byte) []byte
}

func NewSerial(name string) *Serial { return &Serial{name: name} }

func (s *Serial) Name() string { return s.name }

func (s *Serial) Configure(cfg types.SerialConfig) error {
	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}

func (s *Serial) Config() types.SerialConfig {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Feed queues bytes for Read.
func (s *Serial) Feed(b []byte) {
	s.mu.Lock()
	s.rx.Write(b)
	s.mu.Unlock()
}

// Written returns everything written so far.
func (s *Serial) Written() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.written.Bytes()...)
}

func (s *Serial) Write(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, errcode.Closed
	}
	s.written.Write(p)
	respond := s.Respond
	s.mu.Unlock()
	if respond != nil {
		if reply := respond(append([]byte(nil), p...)); len(reply) > 0 {
			s.Feed(reply)
		}
	}
	return len(p), nil
}

// Read returns queued bytes; with nothing queued it reports io.EOF, which
// callers treat as a read timeout.
func (s *Serial) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errcode.Closed
	}
	if s.rx.Len() == 0 {
		return 0, io.EOF
	}
	return s.rx.Read(p)
}

func (s *Serial) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Serial) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
