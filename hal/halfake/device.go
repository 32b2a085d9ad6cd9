package halfake

import (
	"sync"

	"projectlab-go/errcode"
	"projectlab-go/hal"
	"projectlab-go/types"
)

// Device is an in-memory hal.Device.
type Device struct {
	*Controller

	family types.Family

	mu      sync.Mutex
	pwm     map[string]*PWM
	spi     []*SPI
	serial  map[string]*Serial
	names   map[string]string
	failPWM map[string]error
	failSer map[string]error
	created map[string]int
}

var _ hal.Device = (*Device)(nil)

// NewDevice returns a fake host of the given family. pins restricts the
// accepted pin names; with none, any name is accepted.
func NewDevice(family types.Family, pins ...string) *Device {
	return &Device{
		Controller: NewController(hal.MCU, pins...),
		family:     family,
		pwm:        make(map[string]*PWM),
		serial:     make(map[string]*Serial),
		names:      make(map[string]string),
		failPWM:    make(map[string]error),
		failSer:    make(map[string]error),
		created:    make(map[string]int),
	}
}

func (d *Device) Family() types.Family { return d.family }

// MapSerial registers a friendly serial name ("com4" -> "/dev/ttyS3").
func (d *Device) MapSerial(friendly, name string) {
	d.mu.Lock()
	d.names[friendly] = name
	d.mu.Unlock()
}

// FailPWM makes CreatePWMPort on pin return err.
func (d *Device) FailPWM(pin string, err error) {
	d.mu.Lock()
	d.failPWM[pin] = err
	d.mu.Unlock()
}

// FailSerial makes CreateSerialPort on name return err.
func (d *Device) FailSerial(name string, err error) {
	d.mu.Lock()
	d.failSer[name] = err
	d.mu.Unlock()
}

// Created counts successful Create* calls by kind ("pwm", "spi", "serial",
// "output", "interrupt").
func (d *Device) Created(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.created[kind]
}

func (d *Device) count(kind string) {
	d.mu.Lock()
	d.created[kind]++
	d.mu.Unlock()
}

func (d *Device) CreateDigitalOutputPort(pin string, initial bool) (hal.DigitalOutputPort, error) {
	p, err := d.Controller.CreateDigitalOutputPort(pin, initial)
	if err == nil {
		d.count("output")
	}
	return p, err
}

func (d *Device) CreateDigitalInterruptPort(pin string, edge hal.Edge, pull hal.Pull) (hal.DigitalInterruptPort, error) {
	p, err := d.Controller.CreateDigitalInterruptPort(pin, edge, pull)
	if err == nil {
		d.count("interrupt")
	}
	return p, err
}

func (d *Device) CreatePWMPort(pin string, frequency uint32, duty float64, inverted bool) (hal.PWMPort, error) {
	if _, err := d.claim(pin); err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failPWM[pin]; err != nil {
		return nil, err
	}
	p := &PWM{pin: pin, freq: frequency, duty: duty, inverted: inverted}
	d.pwm[pin] = p
	d.created["pwm"]++
	return p, nil
}

// PWM returns the last PWM port created on pin.
func (d *Device) PWM(pin string) (*PWM, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	p, ok := d.pwm[pin]
	return p, ok
}

func (d *Device) CreateSPIBus(sck, copi, cipo string, cfg hal.SPIConfig) (hal.SPIBus, error) {
	for _, n := range []string{sck, copi, cipo} {
		if _, err := d.claim(n); err != nil {
			return nil, err
		}
	}
	s := &SPI{SCK: sck, COPI: copi, CIPO: cipo, cfg: cfg}
	d.mu.Lock()
	d.spi = append(d.spi, s)
	d.created["spi"]++
	d.mu.Unlock()
	return s, nil
}

// SPIBuses returns the SPI buses created so far.
func (d *Device) SPIBuses() []*SPI {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*SPI(nil), d.spi...)
}

func (d *Device) SerialPortName(friendly string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.names[friendly]
	return n, ok
}

func (d *Device) CreateSerialPort(name string, cfg types.SerialConfig) (hal.SerialPort, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failSer[name]; err != nil {
		return nil, err
	}
	known := false
	for _, n := range d.names {
		if n == name {
			known = true
			break
		}
	}
	if !known {
		return nil, errcode.New(errcode.UnknownBus, "serial", name)
	}
	s := NewSerial(name)
	_ = s.Configure(cfg)
	d.serial[name] = s
	d.created["serial"]++
	return s, nil
}

// Serial returns the last port opened under name.
func (d *Device) Serial(name string) (*Serial, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, ok := d.serial[name]
	return s, ok
}
