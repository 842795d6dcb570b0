package sim

import (
	"math"
	"math/rand/v2"
	"time"
)

// Behavior produces the raw channel counts for a sample taken at t, elapsed
// since the simulated device completed its handshake. Behaviors are invoked
// under the sensor mutex, one sample at a time, so they may keep state
// without their own locking.
type Behavior func(t time.Time, elapsed time.Duration) (ir, full uint16)

// Constant always returns the same channel counts.
func Constant(ir, full uint16) Behavior {
	return func(time.Time, time.Duration) (uint16, uint16) {
		return ir, full
	}
}

// Steps replays the given combined channel words in order, one per sample,
// repeating the last word once the script is exhausted. The combined form
// (infrared high 16 bits, full spectrum low) keeps scripted values in the
// same shape drivers report them.
func Steps(combined ...uint32) Behavior {
	i := 0
	return func(time.Time, time.Duration) (uint16, uint16) {
		if len(combined) == 0 {
			return 0, 0
		}
		word := combined[i]
		if i < len(combined)-1 {
			i++
		}
		return uint16(word >> 16), uint16(word & 0xFFFF)
	}
}

// Noisy disturbs base full-spectrum counts by up to ±variation per sample,
// with the infrared channel tracking at roughly a quarter of the total.
// Useful for dashboards that would flatline on Constant.
func Noisy(base, variation uint16) Behavior {
	return func(time.Time, time.Duration) (uint16, uint16) {
		full := int(base)
		if variation > 0 {
			full += rand.IntN(2*int(variation)+1) - int(variation)
		}
		if full < 0 {
			full = 0
		}
		if full > math.MaxUint16 {
			full = math.MaxUint16
		}
		return uint16(full / 4), uint16(full)
	}
}

// Daylight models a smooth day curve: full-spectrum counts rise from zero to
// peak and back over one period, then the next day starts. The infrared
// channel tracks at a quarter of the total.
func Daylight(period time.Duration, peak uint16) Behavior {
	return func(_ time.Time, elapsed time.Duration) (uint16, uint16) {
		if period <= 0 {
			return 0, 0
		}
		phase := float64(elapsed%period) / float64(period)
		level := math.Sin(math.Pi * phase)
		if level < 0 {
			level = 0
		}
		full := uint16(level * float64(peak))
		return full / 4, full
	}
}
