package ambient

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Gain selects the analog amplification applied to the photodiode signal
// before digitization. Higher gain resolves lower light but saturates sooner.
type Gain uint8

const (
	GainLow  Gain = iota // 1x
	GainMed              // 25x
	GainHigh             // 428x
	GainMax              // 9876x
)

// Multiplier returns the amplification factor of the setting.
func (g Gain) Multiplier() float64 {
	switch g {
	case GainMed:
		return 25.0
	case GainHigh:
		return 428.0
	case GainMax:
		return 9876.0
	default:
		return 1.0
	}
}

func (g Gain) Valid() bool {
	return g <= GainMax
}

func (g Gain) String() string {
	switch g {
	case GainLow:
		return "1x"
	case GainMed:
		return "25x"
	case GainHigh:
		return "428x"
	case GainMax:
		return "9876x"
	default:
		return fmt.Sprintf("gain(%d)", uint8(g))
	}
}

// ParseGain accepts the multiplier notation ("25x") or the level name
// ("low", "med", "high", "max").
func ParseGain(s string) (Gain, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1x", "1", "low":
		return GainLow, nil
	case "25x", "25", "med", "medium":
		return GainMed, nil
	case "428x", "428", "high":
		return GainHigh, nil
	case "9876x", "9876", "max":
		return GainMax, nil
	default:
		return GainLow, fmt.Errorf("unknown gain %q", s)
	}
}

func (g Gain) MarshalYAML() (interface{}, error) {
	return g.String(), nil
}

func (g *Gain) UnmarshalYAML(value *yaml.Node) error {
	// Node.Value covers both quoted and bare scalars ("25" and 25).
	parsed, err := ParseGain(value.Value)
	if err != nil {
		return err
	}
	*g = parsed
	return nil
}

// IntegrationTime selects how long the sensor accumulates charge before a
// sample is ready. Longer windows trade latency for low-light sensitivity.
type IntegrationTime uint8

const (
	IntegrationTime100ms IntegrationTime = iota
	IntegrationTime200ms
	IntegrationTime300ms
	IntegrationTime400ms
	IntegrationTime500ms
	IntegrationTime600ms
)

// Duration returns the length of the integration window.
func (t IntegrationTime) Duration() time.Duration {
	return time.Duration(t+1) * 100 * time.Millisecond
}

func (t IntegrationTime) Valid() bool {
	return t <= IntegrationTime600ms
}

func (t IntegrationTime) String() string {
	if !t.Valid() {
		return fmt.Sprintf("timing(%d)", uint8(t))
	}
	return fmt.Sprintf("%dms", (int(t)+1)*100)
}

// ParseIntegrationTime accepts the window length in milliseconds, with or
// without the unit suffix ("300ms", "300").
func ParseIntegrationTime(s string) (IntegrationTime, error) {
	trimmed := strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "ms")
	for t := IntegrationTime100ms; t <= IntegrationTime600ms; t++ {
		if trimmed == fmt.Sprintf("%d", (int(t)+1)*100) {
			return t, nil
		}
	}
	return IntegrationTime100ms, fmt.Errorf("unknown integration time %q", s)
}

func (t IntegrationTime) MarshalYAML() (interface{}, error) {
	return t.String(), nil
}

func (t *IntegrationTime) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := ParseIntegrationTime(value.Value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}
