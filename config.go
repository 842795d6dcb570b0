package ambient

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

var ErrWindowOrder = fmt.Errorf("interrupt window low threshold must be below the high one")

// InterruptConfig describes the window-threshold interrupt: any full-spectrum
// sample outside [Low, High] is a candidate trigger, and the filtered
// interrupt latches after Persist consecutive candidates (immediately for
// PersistAny). The device keeps the window until it is rewritten or cleared.
type InterruptConfig struct {
	Low     uint16      `yaml:"low"`
	High    uint16      `yaml:"high"`
	Persist Persistence `yaml:"persist"`
}

// Validate rejects windows the device behaves undefined for. It must pass
// before the configuration is handed to a driver.
func (c InterruptConfig) Validate() error {
	if c.Low >= c.High {
		return fmt.Errorf("%w (low=%d high=%d)", ErrWindowOrder, c.Low, c.High)
	}
	if !c.Persist.Valid() {
		return fmt.Errorf("unknown persistence value %d", c.Persist)
	}
	return nil
}

// Duration wraps time.Duration for yaml round trips in "500ms" notation.
type Duration time.Duration

func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

// SessionConfig is the sampling part of the configuration file.
type SessionConfig struct {
	Gain     Gain            `yaml:"gain"`
	Timing   IntegrationTime `yaml:"timing"`
	Interval Duration        `yaml:"interval"`
}

// StoreConfig points at the sqlite file used by the record and serve
// commands.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// ServeConfig configures the HTTP endpoint of the serve command.
type ServeConfig struct {
	Addr string `yaml:"addr"`
	SSL  bool   `yaml:"ssl"`
}

// Config is the yaml configuration file consumed by the CLI. Missing
// sections fall back to DefaultConfig values.
type Config struct {
	Session   SessionConfig    `yaml:"session"`
	Interrupt *InterruptConfig `yaml:"interrupt,omitempty"`
	Store     StoreConfig      `yaml:"store"`
	Serve     ServeConfig      `yaml:"serve"`
}

func DefaultConfig() Config {
	return Config{
		Session: SessionConfig{
			Gain:     GainMed,
			Timing:   IntegrationTime300ms,
			Interval: Duration(DefaultPollInterval),
		},
		Store: StoreConfig{Path: "ambient.db"},
		Serve: ServeConfig{Addr: ":8080"},
	}
}

// LoadConfig reads and validates a yaml configuration file. Values absent
// from the file keep their defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	raw, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("config: read failed: %w", err)
	}
	if err = yaml.Unmarshal(raw, &config); err != nil {
		return config, fmt.Errorf("config: parse failed: %w", err)
	}
	if err = config.Validate(); err != nil {
		return config, fmt.Errorf("config: %w", err)
	}
	return config, nil
}

func (c Config) Validate() error {
	if !c.Session.Gain.Valid() {
		return fmt.Errorf("unknown gain %d", c.Session.Gain)
	}
	if !c.Session.Timing.Valid() {
		return fmt.Errorf("unknown integration time %d", c.Session.Timing)
	}
	if c.Session.Interval <= 0 {
		return fmt.Errorf("poll interval must be positive, got %s", time.Duration(c.Session.Interval))
	}
	if c.Interrupt != nil {
		if err := c.Interrupt.Validate(); err != nil {
			return err
		}
	}
	return nil
}
