package ambient

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
)

// MockDriver is a mock implementation of Driver using testify/mock.
type MockDriver struct {
	mock.Mock
	concurrentOps int64 // tracks concurrent collaborator operations
	maxConcurrent int64 // maximum concurrent operations observed
}

func (m *MockDriver) enter() {
	concurrent := atomic.AddInt64(&m.concurrentOps, 1)
	if concurrent > atomic.LoadInt64(&m.maxConcurrent) {
		atomic.StoreInt64(&m.maxConcurrent, concurrent)
	}
}

func (m *MockDriver) leave() {
	atomic.AddInt64(&m.concurrentOps, -1)
}

func (m *MockDriver) Begin(ctx context.Context, bus I2CBus) error {
	args := m.Called(ctx, bus)
	return args.Error(0)
}

func (m *MockDriver) SetGain(ctx context.Context, gain Gain) error {
	args := m.Called(ctx, gain)
	return args.Error(0)
}

func (m *MockDriver) GetGain(ctx context.Context) (Gain, error) {
	args := m.Called(ctx)
	return args.Get(0).(Gain), args.Error(1)
}

func (m *MockDriver) SetTiming(ctx context.Context, timing IntegrationTime) error {
	args := m.Called(ctx, timing)
	return args.Error(0)
}

func (m *MockDriver) GetFullLuminosity(ctx context.Context) (uint32, error) {
	m.enter()
	defer m.leave()
	args := m.Called(ctx)
	return args.Get(0).(uint32), args.Error(1)
}

func (m *MockDriver) CalculateLux(full, ir uint16) (float64, error) {
	args := m.Called(full, ir)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockDriver) GetStatus(ctx context.Context) (byte, error) {
	args := m.Called(ctx)
	return args.Get(0).(byte), args.Error(1)
}

func (m *MockDriver) ClearInterrupt(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

func (m *MockDriver) RegisterInterrupt(ctx context.Context, low, high uint16, persist Persistence) error {
	args := m.Called(ctx, low, high, persist)
	return args.Error(0)
}

func (m *MockDriver) GetID(ctx context.Context) (byte, error) {
	args := m.Called(ctx)
	return args.Get(0).(byte), args.Error(1)
}

func TestSession_Open(t *testing.T) {
	driver := new(MockDriver)
	driver.On("Begin", mock.Anything, mock.Anything).Return(nil).Once()
	driver.On("GetID", mock.Anything).Return(byte(0x50), nil).Once()

	s := NewSession(driver, nil)
	err := s.Open(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, byte(0x50), s.ID())
	driver.AssertExpectations(t)
}

func TestSession_Open_SensorUnavailable(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*MockDriver)
	}{
		{
			name: "handshake fails",
			setupMock: func(driver *MockDriver) {
				driver.On("Begin", mock.Anything, mock.Anything).
					Return(errors.New("no ack at 0x29")).Once()
			},
		},
		{
			name: "id read fails",
			setupMock: func(driver *MockDriver) {
				driver.On("Begin", mock.Anything, mock.Anything).Return(nil).Once()
				driver.On("GetID", mock.Anything).
					Return(byte(0), errors.New("i2c read failed")).Once()
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := new(MockDriver)
			tt.setupMock(driver)

			s := NewSession(driver, nil)
			err := s.Open(context.Background())

			assert.ErrorIs(t, err, ErrSensorUnavailable)
			// A failed handshake must never be followed by configuration.
			driver.AssertNotCalled(t, "SetGain", mock.Anything, mock.Anything)
			driver.AssertNotCalled(t, "SetTiming", mock.Anything, mock.Anything)
			driver.AssertNotCalled(t, "RegisterInterrupt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			driver.AssertExpectations(t)
		})
	}
}

func TestSession_Configure(t *testing.T) {
	tests := []struct {
		gain   Gain
		timing IntegrationTime
	}{
		{GainLow, IntegrationTime100ms},
		{GainMed, IntegrationTime300ms},
		{GainHigh, IntegrationTime500ms},
		{GainMax, IntegrationTime600ms},
	}

	for _, tt := range tests {
		t.Run(tt.gain.String()+"/"+tt.timing.String(), func(t *testing.T) {
			driver := new(MockDriver)
			driver.On("SetGain", mock.Anything, tt.gain).Return(nil).Once()
			driver.On("SetTiming", mock.Anything, tt.timing).Return(nil).Once()

			s := NewSession(driver, nil)
			err := s.Configure(context.Background(), tt.gain, tt.timing)

			assert.NoError(t, err)
			assert.Equal(t, tt.gain, s.Gain())
			assert.Equal(t, tt.timing, s.Timing())
			driver.AssertExpectations(t)
		})
	}
}

func TestSession_Configure_UnknownEnum(t *testing.T) {
	driver := new(MockDriver)
	s := NewSession(driver, nil)

	err := s.Configure(context.Background(), Gain(7), IntegrationTime300ms)
	assert.ErrorContains(t, err, "unknown gain")

	err = s.Configure(context.Background(), GainLow, IntegrationTime(9))
	assert.ErrorContains(t, err, "unknown integration time")

	driver.AssertNotCalled(t, "SetGain", mock.Anything, mock.Anything)
	driver.AssertNotCalled(t, "SetTiming", mock.Anything, mock.Anything)
}

func TestSession_ConfigureInterrupt(t *testing.T) {
	tests := []struct {
		name       string
		cfg        InterruptConfig
		setupMock  func(*MockDriver)
		wantErr    error
		errMessage string
	}{
		{
			name: "valid window reaches the driver",
			cfg:  InterruptConfig{Low: 100, High: 1500, Persist: Persist60},
			setupMock: func(driver *MockDriver) {
				driver.On("RegisterInterrupt", mock.Anything, uint16(100), uint16(1500), Persist60).
					Return(nil).Once()
			},
		},
		{
			name: "any persistence is valid",
			cfg:  InterruptConfig{Low: 1, High: 2, Persist: PersistAny},
			setupMock: func(driver *MockDriver) {
				driver.On("RegisterInterrupt", mock.Anything, uint16(1), uint16(2), PersistAny).
					Return(nil).Once()
			},
		},
		{
			name:    "inverted window is rejected",
			cfg:     InterruptConfig{Low: 1500, High: 100, Persist: Persist2},
			wantErr: ErrWindowOrder,
		},
		{
			name:    "equal thresholds are rejected",
			cfg:     InterruptConfig{Low: 500, High: 500, Persist: Persist2},
			wantErr: ErrWindowOrder,
		},
		{
			name:       "unknown persistence is rejected",
			cfg:        InterruptConfig{Low: 100, High: 1500, Persist: Persistence(40)},
			errMessage: "unknown persistence",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := new(MockDriver)
			if tt.setupMock != nil {
				tt.setupMock(driver)
			}

			s := NewSession(driver, nil)
			err := s.ConfigureInterrupt(context.Background(), tt.cfg)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.errMessage != "" {
				assert.ErrorContains(t, err, tt.errMessage)
			}
			if tt.wantErr == nil && tt.errMessage == "" {
				assert.NoError(t, err)
			} else {
				// Rejected configurations must never reach the collaborator.
				driver.AssertNotCalled(t, "RegisterInterrupt", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
			}
			driver.AssertExpectations(t)
		})
	}
}

func TestSession_Poll(t *testing.T) {
	tests := []struct {
		name      string
		setupMock func(*MockDriver)
		want      Reading
		wantErr   error
	}{
		{
			name: "splits combined word into channels",
			setupMock: func(driver *MockDriver) {
				// ir=200 in the high half, full=1024 in the low half
				driver.On("GetFullLuminosity", mock.Anything).
					Return(uint32(0x00C8_0400), nil).Once()
				driver.On("CalculateLux", uint16(1024), uint16(200)).
					Return(412.5, nil).Once()
			},
			want: Reading{Infrared: 200, FullSpectrum: 1024, Visible: 824, Lux: 412.5},
		},
		{
			name: "visible wraps when infrared exceeds full spectrum",
			setupMock: func(driver *MockDriver) {
				// ir=1000, full=500: 500-1000 wraps to 65036 and is kept
				// that way, matching what stock drivers report.
				driver.On("GetFullLuminosity", mock.Anything).
					Return(uint32(0x03E8_01F4), nil).Once()
				driver.On("CalculateLux", uint16(500), uint16(1000)).
					Return(0.0, nil).Once()
			},
			want: Reading{Infrared: 1000, FullSpectrum: 500, Visible: 65036, Lux: 0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			driver := new(MockDriver)
			tt.setupMock(driver)

			s := NewSession(driver, nil)
			reading, err := s.Poll(context.Background())

			assert.NoError(t, err)
			assert.Equal(t, tt.want, reading)
			driver.AssertExpectations(t)
		})
	}
}

func TestSession_Poll_Saturated(t *testing.T) {
	driver := new(MockDriver)
	driver.On("GetFullLuminosity", mock.Anything).
		Return(uint32(0x1000_FFFF), nil).Once()
	driver.On("CalculateLux", uint16(0xFFFF), uint16(0x1000)).
		Return(0.0, ErrSaturated).Once()

	s := NewSession(driver, nil)
	reading, err := s.Poll(context.Background())

	assert.ErrorIs(t, err, ErrSaturated)
	// Channel values stay usable so the caller can re-gain and retry.
	assert.Equal(t, uint16(0xFFFF), reading.FullSpectrum)
	assert.Equal(t, uint16(0x1000), reading.Infrared)
	driver.AssertExpectations(t)
}

func TestSession_Poll_LuminosityError(t *testing.T) {
	driver := new(MockDriver)
	driver.On("GetFullLuminosity", mock.Anything).
		Return(uint32(0), errors.New("bus fault")).Once()

	s := NewSession(driver, nil)
	_, err := s.Poll(context.Background())

	assert.ErrorContains(t, err, "luminosity read failed: bus fault")
	driver.AssertNotCalled(t, "CalculateLux", mock.Anything, mock.Anything)
	driver.AssertExpectations(t)
}

func TestSession_ReadStatus_ReadThenClear(t *testing.T) {
	driver := new(MockDriver)
	var order []string
	driver.On("GetStatus", mock.Anything).Return(byte(0x30), nil).Once().
		Run(func(mock.Arguments) { order = append(order, "status") })
	driver.On("GetStatus", mock.Anything).Return(byte(0x00), nil).Once().
		Run(func(mock.Arguments) { order = append(order, "status") })
	driver.On("ClearInterrupt", mock.Anything).Return(nil).Twice().
		Run(func(mock.Arguments) { order = append(order, "clear") })

	s := NewSession(driver, nil)

	flags, err := s.ReadStatus(context.Background())
	assert.NoError(t, err)
	assert.True(t, flags.ALSInterrupt())
	assert.True(t, flags.NoPersistInterrupt())

	// Nothing new latched: the clear must have taken effect.
	flags, err = s.ReadStatus(context.Background())
	assert.NoError(t, err)
	assert.Equal(t, StatusFlags(0), flags)

	assert.Equal(t, []string{"status", "clear", "status", "clear"}, order)
	driver.AssertExpectations(t)
}

func TestSession_ReadStatus_MasksNonInterruptBits(t *testing.T) {
	driver := new(MockDriver)
	// Bit 0 is the device's data-valid flag, not an interrupt.
	driver.On("GetStatus", mock.Anything).Return(byte(0x11), nil).Once()
	driver.On("ClearInterrupt", mock.Anything).Return(nil).Once()

	s := NewSession(driver, nil)
	flags, err := s.ReadStatus(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, StatusALSInterrupt, flags)
	driver.AssertExpectations(t)
}

func TestSession_ReadStatus_ClearFailure(t *testing.T) {
	driver := new(MockDriver)
	driver.On("GetStatus", mock.Anything).Return(byte(0x10), nil).Once()
	driver.On("ClearInterrupt", mock.Anything).
		Return(errors.New("i2c write failed")).Once()

	s := NewSession(driver, nil)
	_, err := s.ReadStatus(context.Background())

	assert.ErrorContains(t, err, "interrupt clear failed")
	driver.AssertExpectations(t)
}

func TestSession_Watch(t *testing.T) {
	clk := clock.NewMock()
	driver := new(MockDriver)
	driver.On("GetFullLuminosity", mock.Anything).Return(uint32(0x00C8_0400), nil)
	driver.On("CalculateLux", uint16(1024), uint16(200)).Return(412.5, nil)
	driver.On("GetStatus", mock.Anything).Return(byte(0x20), nil)
	driver.On("ClearInterrupt", mock.Anything).Return(nil)

	interval := 500 * time.Millisecond
	s := NewSession(driver, nil, WithClock(clk), WithPollInterval(interval))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	samples := s.Watch(ctx)

	// The first cycle runs immediately, before any interval elapses.
	first := <-samples
	assert.NoError(t, first.Err)
	assert.Equal(t, uint16(824), first.Reading.Visible)
	assert.True(t, first.Status.NoPersistInterrupt())

	clk.Add(interval)
	second := <-samples
	assert.NoError(t, second.Err)
	assert.Equal(t, 412.5, second.Reading.Lux)

	cancel()
	_, open := <-samples
	assert.False(t, open, "channel should close once the context is done")
}

func TestSession_Watch_EmitsCycleErrors(t *testing.T) {
	clk := clock.NewMock()
	driver := new(MockDriver)
	driver.On("GetFullLuminosity", mock.Anything).
		Return(uint32(0), errors.New("bus fault"))

	s := NewSession(driver, nil, WithClock(clk))
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	samples := s.Watch(ctx)
	sample := <-samples

	assert.ErrorContains(t, sample.Err, "luminosity read failed")
	driver.AssertNotCalled(t, "GetStatus", mock.Anything)
}

func TestSession_OptimizeGain(t *testing.T) {
	driver := new(MockDriver)
	driver.On("SetGain", mock.Anything, mock.Anything).Return(nil)
	driver.On("SetTiming", mock.Anything, mock.Anything).Return(nil)
	// 600ms and 500ms saturate, 400ms produces a usable reading.
	driver.On("GetFullLuminosity", mock.Anything).Return(uint32(0x0000_FFFF), nil).Twice()
	driver.On("GetFullLuminosity", mock.Anything).Return(uint32(0x00C8_0400), nil).Once()
	driver.On("CalculateLux", uint16(1024), uint16(200)).Return(412.5, nil).Once()

	s := NewSession(driver, nil)
	err := s.OptimizeGain(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, GainLow, s.Gain())
	assert.Equal(t, IntegrationTime400ms, s.Timing())
	driver.AssertExpectations(t)
}

func TestSession_OptimizeGain_AllSaturated(t *testing.T) {
	driver := new(MockDriver)
	driver.On("SetGain", mock.Anything, mock.Anything).Return(nil)
	driver.On("SetTiming", mock.Anything, mock.Anything).Return(nil)
	driver.On("GetFullLuminosity", mock.Anything).Return(uint32(0x0000_FFFF), nil)

	s := NewSession(driver, nil)
	err := s.OptimizeGain(context.Background())

	assert.ErrorIs(t, err, ErrSaturated)
	// The lowest gain stays applied as the fallback.
	assert.Equal(t, GainLow, s.Gain())
	assert.Equal(t, IntegrationTime600ms, s.Timing())
	driver.AssertNotCalled(t, "CalculateLux", mock.Anything, mock.Anything)
}

func TestSession_SerializesCollaboratorAccess(t *testing.T) {
	driver := new(MockDriver)
	driver.On("GetFullLuminosity", mock.Anything).Return(uint32(0x00C8_0400), nil)
	driver.On("CalculateLux", uint16(1024), uint16(200)).Return(412.5, nil)

	s := NewSession(driver, nil)
	ctx := context.Background()

	const numOps = 8
	var wg sync.WaitGroup
	wg.Add(numOps)
	for range numOps {
		go func() {
			defer wg.Done()
			_, err := s.Poll(ctx)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt64(&driver.maxConcurrent), int64(1),
		"session mutex should serialize collaborator access")
}
