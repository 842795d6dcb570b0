package ambient

import (
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Persistence is the debouncing filter of the window interrupt: the number
// of consecutive out-of-window samples required before the filtered
// interrupt latches. PersistAny latches on the first one.
type Persistence uint8

const (
	PersistAny Persistence = iota
	Persist2
	Persist3
	Persist5
	Persist10
	Persist15
	Persist20
	Persist25
	Persist30
	Persist35
	Persist40
	Persist45
	Persist50
	Persist55
	Persist60
)

var persistSamples = [...]int{1, 2, 3, 5, 10, 15, 20, 25, 30, 35, 40, 45, 50, 55, 60}

// Samples returns how many consecutive out-of-window samples latch the
// filtered interrupt. Zero for unknown values.
func (p Persistence) Samples() int {
	if !p.Valid() {
		return 0
	}
	return persistSamples[p]
}

func (p Persistence) Valid() bool {
	return int(p) < len(persistSamples)
}

func (p Persistence) String() string {
	if p == PersistAny {
		return "any"
	}
	if !p.Valid() {
		return fmt.Sprintf("persist(%d)", uint8(p))
	}
	return strconv.Itoa(persistSamples[p])
}

// ParsePersistence accepts "any" or one of the supported sample counts
// ("2", "3", "5", "10" ... "60").
func ParsePersistence(s string) (Persistence, error) {
	trimmed := strings.ToLower(strings.TrimSpace(s))
	if trimmed == "any" || trimmed == "1" {
		return PersistAny, nil
	}
	n, err := strconv.Atoi(trimmed)
	if err != nil {
		return PersistAny, fmt.Errorf("unknown persistence %q", s)
	}
	for p := Persist2; p.Valid(); p++ {
		if persistSamples[p] == n {
			return p, nil
		}
	}
	return PersistAny, fmt.Errorf("unsupported persistence count %d", n)
}

func (p Persistence) MarshalYAML() (interface{}, error) {
	return p.String(), nil
}

func (p *Persistence) UnmarshalYAML(value *yaml.Node) error {
	// Node.Value covers both quoted and bare scalars ("10" and 10).
	parsed, err := ParsePersistence(value.Value)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
