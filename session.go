package ambient

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultPollInterval is the inter-sample delay of the watch loop.
const DefaultPollInterval = 500 * time.Millisecond

type SessionOpts struct {
	PollInterval time.Duration
	Clock        clock.Clock
	Logger       *slog.Logger
}

type SessionOpt func(*SessionOpts)

func WithPollInterval(interval time.Duration) SessionOpt {
	return func(o *SessionOpts) {
		o.PollInterval = interval
	}
}

// WithClock replaces the wall clock driving the watch cadence. Tests inject
// a mock clock here.
func WithClock(clk clock.Clock) SessionOpt {
	return func(o *SessionOpts) {
		o.Clock = clk
	}
}

func WithLogger(log *slog.Logger) SessionOpt {
	return func(o *SessionOpts) {
		o.Logger = log
	}
}

// Sample is one cycle of the watch loop: the reading taken plus the
// interrupt flags latched since the previous cycle. Err carries the cycle's
// failure, if any; the channel fields of Reading stay meaningful for a
// saturated lux.
type Sample struct {
	Reading Reading
	Status  StatusFlags
	At      time.Time
	Err     error
}

// Session owns a driver and bus handle pair for the lifetime of its owner
// and sequences all configuration and polling against them. Both handles are
// injected at construction; Session performs no discovery of its own.
//
// Typical usage:
//
//	s := ambient.NewSession(driver, bus)
//	if err := s.Open(ctx); err != nil { ... }
//	if err := s.Configure(ctx, ambient.GainMed, ambient.IntegrationTime300ms); err != nil { ... }
//	reading, err := s.Poll(ctx)
//
// All operations serialize on an internal mutex, so a running watch loop and
// direct calls never interleave at the collaborator.
type Session struct {
	mx sync.Mutex

	config SessionOpts
	clk    clock.Clock
	log    *slog.Logger

	driver Driver
	bus    I2CBus

	id     byte
	gain   Gain
	timing IntegrationTime
}

func NewSession(driver Driver, bus I2CBus, opts ...SessionOpt) *Session {
	config := SessionOpts{
		PollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(&config)
	}
	s := &Session{
		config: config,
		clk:    clock.New(),
		log:    slog.Default(),
		driver: driver,
		bus:    bus,
		gain:   GainLow,
		timing: IntegrationTime100ms,
	}
	if config.Clock != nil {
		s.clk = config.Clock
	}
	if config.Logger != nil {
		s.log = config.Logger
	}
	return s
}

// Open performs the device handshake and captures the device ID. A sensor
// that is not present or not responding is reported through
// ErrSensorUnavailable; the session then stays untouched and no
// configuration is attempted.
func (s *Session) Open(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.driver.Begin(ctx, s.bus); err != nil {
		return fmt.Errorf("session: %w: %s", ErrSensorUnavailable, err)
	}
	id, err := s.driver.GetID(ctx)
	if err != nil {
		return fmt.Errorf("session: %w: %s", ErrSensorUnavailable, err)
	}
	s.id = id
	return nil
}

// ID returns the device identifier captured during Open.
func (s *Session) ID() byte {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.id
}

// Gain returns the amplification last applied through Configure or
// OptimizeGain.
func (s *Session) Gain() Gain {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.gain
}

// Timing returns the integration window last applied through Configure or
// OptimizeGain.
func (s *Session) Timing() IntegrationTime {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.timing
}

// Configure applies one of the four amplification settings and one of the
// six integration windows. Unknown enum values are rejected here; whether a
// particular combination suits the light level is for the driver to report.
func (s *Session) Configure(ctx context.Context, gain Gain, timing IntegrationTime) error {
	if !gain.Valid() {
		return fmt.Errorf("session: unknown gain %d", gain)
	}
	if !timing.Valid() {
		return fmt.Errorf("session: unknown integration time %d", timing)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.driver.SetGain(ctx, gain); err != nil {
		return fmt.Errorf("session: gain update failed: %w", err)
	}
	if err := s.driver.SetTiming(ctx, timing); err != nil {
		return fmt.Errorf("session: timing update failed: %w", err)
	}
	s.gain, s.timing = gain, timing
	return nil
}

// ConfigureInterrupt programs the window-threshold interrupt. The window
// order precondition is validated here because the device behavior for an
// inverted window is undefined; nothing reaches the driver on a rejected
// configuration.
func (s *Session) ConfigureInterrupt(ctx context.Context, cfg InterruptConfig) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("session: %w", err)
	}
	s.mx.Lock()
	defer s.mx.Unlock()
	if err := s.driver.RegisterInterrupt(ctx, cfg.Low, cfg.High, cfg.Persist); err != nil {
		return fmt.Errorf("session: interrupt registration failed: %w", err)
	}
	return nil
}

// Poll takes one measurement. The call blocks until the running integration
// window completes, so expect up to the configured integration time. On a
// saturated lux the returned error wraps ErrSaturated and the channel fields
// of the reading stay populated.
func (s *Session) Poll(ctx context.Context) (Reading, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.poll(ctx)
}

func (s *Session) poll(ctx context.Context) (Reading, error) {
	combined, err := s.driver.GetFullLuminosity(ctx)
	if err != nil {
		return Reading{}, fmt.Errorf("session: luminosity read failed: %w", err)
	}
	ir, full := SplitLuminosity(combined)
	reading := Reading{
		Infrared:     ir,
		FullSpectrum: full,
		Visible:      full - ir,
	}
	lux, err := s.driver.CalculateLux(full, ir)
	if err != nil {
		return reading, fmt.Errorf("session: %w", err)
	}
	reading.Lux = lux
	return reading, nil
}

// ReadStatus reads the latched interrupt flags and clears them in the same
// critical section, so each call observes exactly the interrupts latched
// since the previous one. The two device operations are never exposed
// separately; skipping the clear would leave stale flags set forever.
func (s *Session) ReadStatus(ctx context.Context) (StatusFlags, error) {
	s.mx.Lock()
	defer s.mx.Unlock()
	return s.readStatus(ctx)
}

func (s *Session) readStatus(ctx context.Context) (StatusFlags, error) {
	raw, err := s.driver.GetStatus(ctx)
	if err != nil {
		return 0, fmt.Errorf("session: status read failed: %w", err)
	}
	if err = s.driver.ClearInterrupt(ctx); err != nil {
		return 0, fmt.Errorf("session: interrupt clear failed: %w", err)
	}
	return StatusFlags(raw) & (StatusALSInterrupt | StatusNoPersistInterrupt), nil
}

// Watch polls on the configured interval until ctx is done, emitting one
// Sample per cycle. Every cycle performs the read-then-clear status step, so
// the flags in a sample were latched since the previous cycle. The returned
// channel is closed when the loop exits.
func (s *Session) Watch(ctx context.Context) <-chan Sample {
	out := make(chan Sample, 1)
	go func() {
		defer close(out)
		ticker := s.clk.Ticker(s.config.PollInterval)
		defer ticker.Stop()
		for {
			s.mx.Lock()
			reading, err := s.poll(ctx)
			var status StatusFlags
			if err == nil {
				status, err = s.readStatus(ctx)
			}
			s.mx.Unlock()
			if err != nil {
				s.log.Debug("watch cycle failed", "error", err)
			}
			select {
			case out <- Sample{Reading: reading, Status: status, At: s.clk.Now(), Err: err}:
			case <-ctx.Done():
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out
}

// OptimizeGain sweeps the gain and integration settings until the driver
// reports a usable lux value, leaving that combination applied. When every
// combination is saturated the lowest gain stays applied and the returned
// error wraps ErrSaturated.
func (s *Session) OptimizeGain(ctx context.Context) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	gains := []Gain{GainLow, GainMed, GainHigh, GainMax}
	timings := []IntegrationTime{
		IntegrationTime600ms, IntegrationTime500ms, IntegrationTime400ms,
		IntegrationTime300ms, IntegrationTime200ms, IntegrationTime100ms,
	}
	for _, gain := range gains {
		if err := s.driver.SetGain(ctx, gain); err != nil {
			return fmt.Errorf("session: gain update failed: %w", err)
		}
		for _, timing := range timings {
			if err := s.driver.SetTiming(ctx, timing); err != nil {
				return fmt.Errorf("session: timing update failed: %w", err)
			}
			s.log.Debug("probing sensitivity", "gain", gain.String(), "timing", timing.String())
			combined, err := s.driver.GetFullLuminosity(ctx)
			if err != nil {
				continue
			}
			ir, full := SplitLuminosity(combined)
			if ir == 0xFFFF || full == 0xFFFF {
				continue
			}
			lux, err := s.driver.CalculateLux(full, ir)
			if err != nil || lux == 0 {
				continue
			}
			s.gain, s.timing = gain, timing
			return nil
		}
	}
	if err := s.driver.SetGain(ctx, GainLow); err != nil {
		return fmt.Errorf("session: gain update failed: %w", err)
	}
	if err := s.driver.SetTiming(ctx, IntegrationTime600ms); err != nil {
		return fmt.Errorf("session: timing update failed: %w", err)
	}
	s.gain, s.timing = GainLow, IntegrationTime600ms
	return fmt.Errorf("session: no usable sensitivity found: %w", ErrSaturated)
}
