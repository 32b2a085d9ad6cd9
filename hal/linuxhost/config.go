package linuxhost

import (
	"os"
	"sort"

	"github.com/pkg/errors"
	"github.com/yosuke-furukawa/json5/encoding/json5"

	"projectlab-go/errcode"
	"projectlab-go/types"
)

// Config describes how a Linux test jig reaches the Project Lab: which host
// module it stands in for and which adapter, chip line or tty backs each
// named resource. It is read from a JSON5 file so wiring notes can live
// next to the numbers.
type Config struct {
	Family types.Family `json:"family"`

	// I2CBus is a periph i2creg name ("1", "/dev/i2c-1"); empty opens the
	// first bus found.
	I2CBus string `json:"i2c_bus"`
	// SPIPort is a periph spireg name ("SPI0.0"); empty opens the first.
	SPIPort string `json:"spi_port"`

	// GPIOChip is the character device ("gpiochip0").
	GPIOChip string `json:"gpio_chip"`
	// Lines maps host pin names to line offsets on GPIOChip.
	Lines map[string]int `json:"lines"`
	// PWM maps host pin names to periph gpioreg pin names with PWM support.
	PWM map[string]string `json:"pwm"`
	// Serial maps friendly port names ("com4") to tty paths.
	Serial map[string]string `json:"serial"`

	// Consumer labels requested lines. Defaults to "projectlab".
	Consumer string `json:"consumer"`
}

// LoadConfig reads and validates a JSON5 config file.
func LoadConfig(path string) (Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrap(err, "read bench config")
	}
	cfg, err := ParseConfig(b)
	if err != nil {
		return Config{}, errors.Wrapf(err, "bench config %s", path)
	}
	return cfg, nil
}

// ParseConfig decodes and validates a JSON5 document.
func ParseConfig(b []byte) (Config, error) {
	var cfg Config
	if err := json5.Unmarshal(b, &cfg); err != nil {
		return Config{}, errcode.Wrap(errcode.InvalidParams, "linuxhost config", err)
	}
	if cfg.Consumer == "" {
		cfg.Consumer = "projectlab"
	}
	if cfg.GPIOChip == "" {
		cfg.GPIOChip = "gpiochip0"
	}
	return cfg, cfg.Validate()
}

// Validate checks the family and that no line offset or PWM pin is claimed
// by two names.
func (c Config) Validate() error {
	switch c.Family {
	case types.FamilyF7FeatherV2, types.FamilyF7CoreComputeV2:
	default:
		return errcode.New(errcode.InvalidParams, "linuxhost config", "unknown family "+string(c.Family))
	}
	offsets := make(map[int]string, len(c.Lines))
	for _, name := range sortedKeys(c.Lines) {
		off := c.Lines[name]
		if off < 0 {
			return errcode.New(errcode.InvalidParams, "linuxhost config", "negative line offset for "+name)
		}
		if prev, dup := offsets[off]; dup {
			return errcode.New(errcode.PinInUse, "linuxhost config", "line shared by "+prev+" and "+name)
		}
		offsets[off] = name
	}
	for name := range c.PWM {
		if _, dup := c.Lines[name]; dup {
			return errcode.New(errcode.PinInUse, "linuxhost config", name+" is both a line and a pwm pin")
		}
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
