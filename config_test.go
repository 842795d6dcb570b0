package ambient

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "ambient.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfigFile(t, `
session:
  gain: 428x
  timing: 600ms
  interval: 2s
interrupt:
  low: 100
  high: 1500
  persist: 10
store:
  path: /var/lib/ambient/readings.db
serve:
  addr: :9090
  ssl: true
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, GainHigh, config.Session.Gain)
	assert.Equal(t, IntegrationTime600ms, config.Session.Timing)
	assert.Equal(t, 2*time.Second, time.Duration(config.Session.Interval))
	require.NotNil(t, config.Interrupt)
	assert.Equal(t, uint16(100), config.Interrupt.Low)
	assert.Equal(t, uint16(1500), config.Interrupt.High)
	assert.Equal(t, Persist10, config.Interrupt.Persist)
	assert.Equal(t, "/var/lib/ambient/readings.db", config.Store.Path)
	assert.Equal(t, ":9090", config.Serve.Addr)
	assert.True(t, config.Serve.SSL)
}

func TestLoadConfig_PartialFileKeepsDefaults(t *testing.T) {
	path := writeConfigFile(t, `
session:
  gain: max
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	defaults := DefaultConfig()
	assert.Equal(t, GainMax, config.Session.Gain)
	assert.Equal(t, defaults.Session.Timing, config.Session.Timing)
	assert.Equal(t, defaults.Session.Interval, config.Session.Interval)
	assert.Equal(t, defaults.Store.Path, config.Store.Path)
	assert.Equal(t, defaults.Serve.Addr, config.Serve.Addr)
	assert.Nil(t, config.Interrupt)
}

func TestLoadConfig_EnumSpellings(t *testing.T) {
	tests := []struct {
		name       string
		yaml       string
		wantGain   Gain
		wantTiming IntegrationTime
	}{
		{
			name:       "bare multiplier",
			yaml:       "session:\n  gain: 25\n  timing: 200\n",
			wantGain:   GainMed,
			wantTiming: IntegrationTime200ms,
		},
		{
			name:       "symbolic names",
			yaml:       "session:\n  gain: high\n  timing: 400ms\n",
			wantGain:   GainHigh,
			wantTiming: IntegrationTime400ms,
		},
		{
			name:       "quoted values",
			yaml:       "session:\n  gain: \"9876x\"\n  timing: \"100ms\"\n",
			wantGain:   GainMax,
			wantTiming: IntegrationTime100ms,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := LoadConfig(writeConfigFile(t, tt.yaml))
			require.NoError(t, err)
			assert.Equal(t, tt.wantGain, config.Session.Gain)
			assert.Equal(t, tt.wantTiming, config.Session.Timing)
		})
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name       string
		yaml       string
		wantErr    error
		errMessage string
	}{
		{
			name:       "unknown gain",
			yaml:       "session:\n  gain: 12x\n",
			errMessage: "unknown gain",
		},
		{
			name:       "unknown timing",
			yaml:       "session:\n  timing: 250ms\n",
			errMessage: "unknown integration time",
		},
		{
			name:       "unsupported persistence count",
			yaml:       "interrupt:\n  low: 1\n  high: 2\n  persist: 37\n",
			errMessage: "unsupported persistence count",
		},
		{
			name:    "inverted interrupt window",
			yaml:    "interrupt:\n  low: 1500\n  high: 100\n  persist: any\n",
			wantErr: ErrWindowOrder,
		},
		{
			name:       "malformed interval",
			yaml:       "session:\n  interval: soon\n",
			errMessage: "invalid duration",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfigFile(t, tt.yaml))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.errMessage != "" {
				assert.ErrorContains(t, err, tt.errMessage)
			}
		})
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.ErrorContains(t, err, "config: read failed")
}

func TestConfig_RoundTrip(t *testing.T) {
	original := DefaultConfig()
	original.Session.Gain = GainMax
	original.Session.Timing = IntegrationTime500ms
	original.Interrupt = &InterruptConfig{Low: 50, High: 8000, Persist: Persist15}

	raw, err := yaml.Marshal(original)
	require.NoError(t, err)

	var decoded Config
	require.NoError(t, yaml.Unmarshal(raw, &decoded))
	assert.Equal(t, original, decoded)
}
