// Package linuxhost is a hal.Device for a Linux bench host wired to a
// Project Lab carrier in place of its host module. Digital lines go through
// the GPIO character device, I2C, SPI and PWM through periph, and UARTs
// through tty devices.
package linuxhost

import (
	"sync"

	"github.com/pkg/errors"
	"github.com/warthog618/go-gpiocdev"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"
	"tinygo.org/x/drivers"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/types"
)

// Host implements hal.Device.
type Host struct {
	cfg Config
	log *zap.SugaredLogger

	chip *gpiocdev.Chip
	i2c  i2c.BusCloser

	mu      sync.Mutex
	claimed map[string]bool
	closers []func() error
}

var _ hal.Device = (*Host)(nil)

// Open initialises periph, opens the GPIO chip and the I2C adapter.
func Open(cfg Config, log *zap.Logger) (*Host, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if log == nil {
		log = zap.NewNop()
	}
	h := &Host{cfg: cfg, log: log.Named("linuxhost").Sugar(), claimed: make(map[string]bool)}

	if _, err := host.Init(); err != nil {
		return nil, errors.Wrap(err, "periph host init")
	}
	chip, err := gpiocdev.NewChip(cfg.GPIOChip, gpiocdev.WithConsumer(cfg.Consumer))
	if err != nil {
		return nil, errcode.Wrap(errcode.Unavailable, cfg.GPIOChip, err)
	}
	h.chip = chip
	bus, err := i2creg.Open(cfg.I2CBus)
	if err != nil {
		_ = chip.Close()
		return nil, errcode.Wrap(errcode.UnknownBus, "i2c "+cfg.I2CBus, err)
	}
	h.i2c = bus
	h.log.Infow("bench host open", "family", cfg.Family, "chip", cfg.GPIOChip, "i2c", bus.String())
	return h, nil
}

func (h *Host) Name() string         { return hal.MCU }
func (h *Host) Family() types.Family { return h.cfg.Family }

// I2C is the adapter opened from Config.I2CBus. periph buses already have
// the Tx shape tinygo drivers expect.
func (h *Host) I2C() drivers.I2C { return h.i2c }

// SerialPortName resolves a friendly name through Config.Serial.
func (h *Host) SerialPortName(friendly string) (string, bool) {
	p, ok := h.cfg.Serial[friendly]
	return p, ok
}

func (h *Host) claim(name string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.claimed[name] {
		return errcode.New(errcode.PinInUse, hal.MCU, name)
	}
	h.claimed[name] = true
	return nil
}

func (h *Host) release(name string) {
	h.mu.Lock()
	delete(h.claimed, name)
	h.mu.Unlock()
}

func (h *Host) track(close func() error) {
	h.mu.Lock()
	h.closers = append(h.closers, close)
	h.mu.Unlock()
}

// Close releases the I2C adapter, the GPIO chip and any SPI ports.
func (h *Host) Close() error {
	h.mu.Lock()
	closers := h.closers
	h.closers = nil
	h.mu.Unlock()
	var err error
	for _, c := range closers {
		err = multierr.Append(err, c())
	}
	if h.i2c != nil {
		err = multierr.Append(err, h.i2c.Close())
	}
	if h.chip != nil {
		err = multierr.Append(err, h.chip.Close())
	}
	return err
}
