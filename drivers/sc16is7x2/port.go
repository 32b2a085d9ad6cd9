package sc16is7x2

import (
	"time"

	"projectlab-go/errcode"
	"projectlab-go/types"
)

// Port is one open channel. It implements hal.SerialPort.
type Port struct {
	d      *Device
	ch     Channel
	cfg    types.SerialConfig
	rs485  bool
	invert bool
	closed bool
}

func (p *Port) Channel() Channel           { return p.ch }
func (p *Port) RS485() bool                { return p.rs485 }
func (p *Port) Config() types.SerialConfig { return p.cfg }

// Configure changes framing and timeouts. FIFOs are flushed.
func (p *Port) Configure(cfg types.SerialConfig) error {
	d := p.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.closed {
		return errcode.Closed
	}
	return d.configureLocked(p, cfg)
}

// Available returns the number of bytes waiting in the receive FIFO.
func (p *Port) Available() (int, error) {
	d := p.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.closed {
		return 0, errcode.Closed
	}
	return d.rxLevel(p.ch)
}

// Read returns what is in the receive FIFO, waiting up to ReadTimeout for
// the first byte. With nothing received it returns errcode.Timeout.
func (p *Port) Read(b []byte) (int, error) {
	if len(b) == 0 {
		return 0, nil
	}
	d := p.d
	deadline := d.clk.Now().Add(p.cfg.ReadTimeout)
	for {
		d.mu.Lock()
		if p.closed {
			d.mu.Unlock()
			return 0, errcode.Closed
		}
		n, err := d.rxLevel(p.ch)
		if err == nil && n > 0 {
			if n > len(b) {
				n = len(b)
			}
			err = d.readFIFO(p.ch, b[:n])
			d.mu.Unlock()
			if err != nil {
				return 0, err
			}
			return n, nil
		}
		d.mu.Unlock()
		if err != nil {
			return 0, err
		}
		if !d.clk.Now().Before(deadline) {
			return 0, errcode.Timeout
		}
		d.clk.Sleep(pollInterval)
	}
}

// Write queues b into the transmit FIFO as space allows, waiting up to
// WriteTimeout for space each time the FIFO is full. A zero WriteTimeout
// waits for as long as two full FIFOs take to shift out.
func (p *Port) Write(b []byte) (int, error) {
	d := p.d
	written := 0
	wait := p.writeWait()
	deadline := d.clk.Now().Add(wait)
	for written < len(b) {
		d.mu.Lock()
		if p.closed {
			d.mu.Unlock()
			return written, errcode.Closed
		}
		space, err := d.txSpace(p.ch)
		if err == nil && space > 0 {
			chunk := b[written:]
			if len(chunk) > space {
				chunk = chunk[:space]
			}
			err = d.writeFIFO(p.ch, chunk)
			if err == nil {
				written += len(chunk)
				deadline = d.clk.Now().Add(wait)
			}
			d.mu.Unlock()
			if err != nil {
				return written, err
			}
			continue
		}
		d.mu.Unlock()
		if err != nil {
			return written, err
		}
		if !d.clk.Now().Before(deadline) {
			return written, errcode.Timeout
		}
		d.clk.Sleep(pollInterval)
	}
	return written, nil
}

func (p *Port) writeWait() time.Duration {
	if p.cfg.WriteTimeout > 0 {
		return p.cfg.WriteTimeout
	}
	return 2 * FIFOSize * CharTime(p.cfg)
}

// CharTime is how long one character takes on the wire with cfg's framing:
// start bit, data bits, optional parity and stop bits. 1.5 stop bits round
// up to 2.
func CharTime(cfg types.SerialConfig) time.Duration {
	cfg = cfg.WithDefaults()
	bits := 1 + int64(cfg.DataBits) + 1
	if cfg.Parity != types.ParityNone {
		bits++
	}
	if cfg.StopBits != types.StopBitsOne {
		bits++
	}
	return time.Duration(bits * int64(time.Second) / int64(cfg.Baud))
}

// Close disables the receiver and transmitter and releases the channel.
func (p *Port) Close() error {
	d := p.d
	d.mu.Lock()
	defer d.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	d.ports[p.ch] = nil
	return d.writeReg(p.ch, regEFCR, efcrRxDisable|efcrTxDisable)
}
