// Package sim implements the sensor collaborator contract entirely in
// software, so sessions can be developed and tested without hardware. The
// simulated device reproduces the observable behavior of the real one:
// samples block for the integration window (when enabled), the window
// interrupt latches through the persistence filter, and status bits stay
// latched until explicitly cleared.
package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/mklimuk/ambient"
)

// DeviceID is the identifier the simulated device reports, mirroring the
// value a physical part answers with.
const DeviceID byte = 0x50

type Opts struct {
	ID               byte
	BeginErr         error
	Behavior         Behavior
	IntegrationDelay bool
	Clock            clock.Clock
}

type Opt func(*Opts)

// WithID overrides the device identifier.
func WithID(id byte) Opt {
	return func(o *Opts) {
		o.ID = id
	}
}

// WithBeginError makes the handshake fail, simulating an absent or
// unresponsive device.
func WithBeginError(err error) Opt {
	return func(o *Opts) {
		o.BeginErr = err
	}
}

// WithBehavior sets the light source driving the channels.
func WithBehavior(behavior Behavior) Opt {
	return func(o *Opts) {
		o.Behavior = behavior
	}
}

// WithIntegrationDelay makes samples block for the configured integration
// window, like a real device integrating light. Tests usually leave it off.
func WithIntegrationDelay(enabled bool) Opt {
	return func(o *Opts) {
		o.IntegrationDelay = enabled
	}
}

func WithClock(clk clock.Clock) Opt {
	return func(o *Opts) {
		o.Clock = clk
	}
}

// Sensor is a software stand-in for the sensor-driver collaborator.
type Sensor struct {
	mx sync.Mutex

	config Opts
	clk    clock.Clock

	bus      ambient.I2CBus
	begun    bool
	openedAt time.Time

	gain   ambient.Gain
	timing ambient.IntegrationTime

	low, high uint16
	persist   ambient.Persistence
	armed     bool

	run    int  // consecutive out-of-window samples
	status byte // latched interrupt bits
}

var _ ambient.Driver = &Sensor{}

func New(opts ...Opt) *Sensor {
	config := Opts{
		ID:       DeviceID,
		Behavior: Constant(256, 1024),
	}
	for _, opt := range opts {
		opt(&config)
	}
	clk := clock.New()
	if config.Clock != nil {
		clk = config.Clock
	}
	return &Sensor{
		config: config,
		clk:    clk,
		gain:   ambient.GainLow,
		timing: ambient.IntegrationTime100ms,
	}
}

// Begin performs the simulated handshake. The bus handle is recorded but
// otherwise unused; a software device has no wire to talk over.
func (s *Sensor) Begin(ctx context.Context, bus ambient.I2CBus) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.config.BeginErr != nil {
		return s.config.BeginErr
	}
	s.bus = bus
	s.begun = true
	s.openedAt = s.clk.Now()
	return nil
}

func (s *Sensor) SetGain(ctx context.Context, gain ambient.Gain) error {
	if !gain.Valid() {
		return fmt.Errorf("sim: unknown gain %d", gain)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	s.gain = gain
	return nil
}

func (s *Sensor) GetGain(ctx context.Context) (ambient.Gain, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.gain, nil
}

func (s *Sensor) SetTiming(ctx context.Context, timing ambient.IntegrationTime) error {
	if !timing.Valid() {
		return fmt.Errorf("sim: unknown integration time %d", timing)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	s.timing = timing
	return nil
}

// GetFullLuminosity takes one sample from the behavior and runs it through
// the window interrupt evaluation, then returns the combined channel word
// (infrared high 16 bits, full spectrum low). With the integration delay
// enabled the call blocks for the configured window first.
func (s *Sensor) GetFullLuminosity(ctx context.Context) (uint32, error) {
	s.mx.Lock()
	if !s.begun {
		s.mx.Unlock()
		return 0, fmt.Errorf("sim: begin not called")
	}
	timing := s.timing
	s.mx.Unlock()

	if s.config.IntegrationDelay {
		timer := s.clk.Timer(timing.Duration())
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}

	s.mx.Lock()
	defer s.mx.Unlock()
	now := s.clk.Now()
	ir, full := s.config.Behavior(now, now.Sub(s.openedAt))
	s.evaluateWindow(full)
	return uint32(ir)<<16 | uint32(full), nil
}

// evaluateWindow advances the persistence filter with a fresh full-spectrum
// sample. The no-persist bit latches on any out-of-window sample; the
// filtered bit needs the configured run of consecutive ones. An in-window
// sample resets the run but never unlatches bits, only ClearInterrupt does.
func (s *Sensor) evaluateWindow(full uint16) {
	if !s.armed {
		return
	}
	if full >= s.low && full <= s.high {
		s.run = 0
		return
	}
	s.run++
	s.status |= byte(ambient.StatusNoPersistInterrupt)
	if s.run >= s.persist.Samples() {
		s.status |= byte(ambient.StatusALSInterrupt)
	}
}

// CalculateLux converts channel counts through a deliberately simple
// synthetic model: the visible count rate over the gain-scaled integration
// window. Real devices apply a calibrated spectral curve, so simulator lux
// must not be treated as photometric truth; it is merely monotonic in the
// light level and consistent across gain and timing changes.
func (s *Sensor) CalculateLux(full, ir uint16) (float64, error) {
	if full == 0xFFFF || ir == 0xFFFF {
		return 0, fmt.Errorf("sim: %w (ir=%d full=%d)", ambient.ErrSaturated, ir, full)
	}
	s.mx.Lock()
	gain := s.gain.Multiplier()
	window := s.timing.Duration().Seconds()
	s.mx.Unlock()
	visible := float64(full) - float64(ir)
	if visible < 0 {
		visible = 0
	}
	return visible / (gain * window), nil
}

func (s *Sensor) GetStatus(ctx context.Context) (byte, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.status, nil
}

// ClearInterrupt drops the latched bits. The persistence run is device
// state, not a latch, so it survives the clear; only an in-window sample
// resets it.
func (s *Sensor) ClearInterrupt(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.status = 0
	return nil
}

// RegisterInterrupt arms the window interrupt and resets the persistence
// run. The window order is the caller's contract; an inverted window is
// accepted here and simply never matches, so every sample latches.
func (s *Sensor) RegisterInterrupt(ctx context.Context, low, high uint16, persist ambient.Persistence) error {
	if !persist.Valid() {
		return fmt.Errorf("sim: unknown persistence %d", persist)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	s.low, s.high, s.persist = low, high, persist
	s.armed = true
	s.run = 0
	return nil
}

func (s *Sensor) GetID(ctx context.Context) (byte, error) {
	return s.config.ID, nil
}
