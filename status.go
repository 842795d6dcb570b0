package ambient

import "strings"

// StatusFlags is the latched interrupt bitmask read from the device. Two
// bits are observed; the rest of the status byte is masked out by the
// session.
type StatusFlags uint8

const (
	// StatusALSInterrupt latches once the persistence filter has seen the
	// configured run of consecutive out-of-window samples.
	StatusALSInterrupt StatusFlags = 0x10
	// StatusNoPersistInterrupt latches on any out-of-window sample,
	// bypassing the persistence filter.
	StatusNoPersistInterrupt StatusFlags = 0x20
)

func (s StatusFlags) ALSInterrupt() bool {
	return s&StatusALSInterrupt != 0
}

func (s StatusFlags) NoPersistInterrupt() bool {
	return s&StatusNoPersistInterrupt != 0
}

// Raised reports whether any observed interrupt bit is set.
func (s StatusFlags) Raised() bool {
	return s&(StatusALSInterrupt|StatusNoPersistInterrupt) != 0
}

func (s StatusFlags) String() string {
	if !s.Raised() {
		return "none"
	}
	var parts []string
	if s.ALSInterrupt() {
		parts = append(parts, "als")
	}
	if s.NoPersistInterrupt() {
		parts = append(parts, "no-persist")
	}
	return strings.Join(parts, "|")
}
