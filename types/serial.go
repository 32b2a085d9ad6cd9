package types

import "time"

// ------------------------
// Serial
// ------------------------

type Parity uint8

const (
	ParityNone Parity = iota
	ParityEven
	ParityOdd
)

func (p Parity) String() string {
	switch p {
	case ParityEven:
		return "even"
	case ParityOdd:
		return "odd"
	default:
		return "none"
	}
}

func (p Parity) MarshalJSON() ([]byte, error) { return []byte(`"` + p.String() + `"`), nil }

type StopBits uint8

const (
	StopBitsOne StopBits = iota
	StopBitsOnePointFive
	StopBitsTwo
)

func (s StopBits) String() string {
	switch s {
	case StopBitsOnePointFive:
		return "1.5"
	case StopBitsTwo:
		return "2"
	default:
		return "1"
	}
}

// SerialConfig is the framing and timing of a UART. Zero fields take the
// defaults of DefaultSerialConfig.
type SerialConfig struct {
	Baud         uint32        `json:"baud"`
	DataBits     uint8         `json:"data_bits"`
	Parity       Parity        `json:"parity"`
	StopBits     StopBits      `json:"stop_bits"`
	ReadTimeout  time.Duration `json:"read_timeout,omitempty"`
	WriteTimeout time.Duration `json:"write_timeout,omitempty"`
}

// DefaultSerialConfig is 19200 8N1, the Modbus RTU default used on the board.
func DefaultSerialConfig() SerialConfig {
	return SerialConfig{Baud: 19200, DataBits: 8, Parity: ParityNone, StopBits: StopBitsOne}
}

// WithDefaults fills zero Baud and DataBits from DefaultSerialConfig.
func (c SerialConfig) WithDefaults() SerialConfig {
	d := DefaultSerialConfig()
	if c.Baud == 0 {
		c.Baud = d.Baud
	}
	if c.DataBits == 0 {
		c.DataBits = d.DataBits
	}
	return c
}
