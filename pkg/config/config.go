package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/roffe/goccp/pkg/ccp"
	"github.com/roffe/goccp/pkg/transport"
	"gopkg.in/yaml.v3"
)

const maxExtendedID = 0x1FFFFFFF

// Config holds everything needed to reach one ECU.
type Config struct {
	Adapter  string  `yaml:"adapter"`
	Port     string  `yaml:"port"`
	Baudrate int     `yaml:"baudrate"`
	Bitrate  float64 `yaml:"bitrate"` // kbit/s

	CROID   uint32 `yaml:"cro_id"`
	DTOID   uint32 `yaml:"dto_id"`
	Station uint32 `yaml:"station"`

	Timeout time.Duration `yaml:"timeout"`

	RetryAttempts uint          `yaml:"retry_attempts"`
	RetryDelay    time.Duration `yaml:"retry_delay"`

	MinVersion string `yaml:"min_version"`
	Trace      string `yaml:"trace"`
	Debug      bool   `yaml:"debug"`
	DebugFile  string `yaml:"debug_file"`
}

func Default() *Config {
	return &Config{
		Adapter:       transport.SocketCANName,
		Port:          "can0",
		Baudrate:      115200,
		Bitrate:       500,
		CROID:         0x7E0,
		DTOID:         0x7E1,
		Station:       0x0200,
		Timeout:       ccp.DefaultTimeout,
		RetryAttempts: 4,
		RetryDelay:    1500 * time.Millisecond,
		MinVersion:    "2.1",
		DebugFile:     "debug.log",
	}
}

// Parse reads YAML on top of the defaults.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load reads the config file at path. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Save writes cfg as YAML.
func (c *Config) Save(path string) error {
	data, err := c.Marshal()
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (c *Config) Validate() error {
	var errs []error
	if c.Adapter == "" {
		errs = append(errs, errors.New("adapter is required"))
	}
	if c.CROID > maxExtendedID {
		errs = append(errs, fmt.Errorf("cro_id 0x%X is not a valid CAN identifier", c.CROID))
	}
	if c.DTOID > maxExtendedID {
		errs = append(errs, fmt.Errorf("dto_id 0x%X is not a valid CAN identifier", c.DTOID))
	}
	if c.CROID == c.DTOID {
		errs = append(errs, errors.New("cro_id and dto_id must differ"))
	}
	if c.Station > 0xFFFF {
		errs = append(errs, fmt.Errorf("station 0x%X does not fit in 16 bits", c.Station))
	}
	if c.Timeout <= 0 {
		errs = append(errs, errors.New("timeout must be positive"))
	}
	if c.RetryAttempts == 0 {
		errs = append(errs, errors.New("retry_attempts must be at least 1"))
	}
	if c.Debug && c.DebugFile == "" {
		errs = append(errs, errors.New("debug_file is required when debug is on"))
	}
	if c.Bitrate <= 0 {
		errs = append(errs, errors.New("bitrate must be positive"))
	}
	return errors.Join(errs...)
}

// Transport returns the bus settings for transport.Open.
func (c *Config) Transport() transport.Settings {
	return transport.Settings{
		Adapter:  c.Adapter,
		Port:     c.Port,
		Baudrate: c.Baudrate,
		Bitrate:  c.Bitrate,
		DTOID:    c.DTOID,
		Debug:    c.Debug,
	}
}
