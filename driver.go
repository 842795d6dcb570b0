package ambient

import (
	"context"
	"fmt"
)

// ErrSensorUnavailable is reported when the device handshake fails because
// the sensor is not present or not responding.
var ErrSensorUnavailable = fmt.Errorf("sensor not present or not responding")

// ErrSaturated is reported when a channel sits at full scale and the lux
// value is indeterminate. Lowering gain or shortening the integration time
// usually recovers.
var ErrSaturated = fmt.Errorf("channel saturated (lux indeterminate)")

// Driver is the sensor-driver collaborator. It owns the register layout, the
// bus transaction framing and the lux calibration curve; Session only
// sequences calls against this contract. The sim package provides a software
// implementation for development and testing.
type Driver interface {
	// Begin performs the device handshake over the supplied bus.
	Begin(ctx context.Context, bus I2CBus) error
	SetGain(ctx context.Context, gain Gain) error
	GetGain(ctx context.Context) (Gain, error)
	SetTiming(ctx context.Context, timing IntegrationTime) error
	// GetFullLuminosity returns both channels in a single combined word:
	// infrared in the high 16 bits, full spectrum in the low 16 bits. The
	// call blocks until the running integration window completes.
	GetFullLuminosity(ctx context.Context) (uint32, error)
	// CalculateLux converts raw channel counts through the driver's
	// calibration curve. A full-scale channel makes the result
	// indeterminate and is reported through ErrSaturated.
	CalculateLux(full, ir uint16) (float64, error)
	// GetStatus returns the raw latched interrupt byte; see StatusFlags for
	// the observed bits.
	GetStatus(ctx context.Context) (byte, error)
	ClearInterrupt(ctx context.Context) error
	// RegisterInterrupt programs the window-threshold interrupt. The device
	// behavior for low >= high is undefined; callers validate the window
	// order before invoking (see InterruptConfig.Validate).
	RegisterInterrupt(ctx context.Context, low, high uint16, persist Persistence) error
	GetID(ctx context.Context) (byte, error)
}
