package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.txt")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_DefaultsForMissingKeys(t *testing.T) {
	cfg, err := Load(writeConfig(t, "# only comments\n\n"))
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
	assert.Equal(t, 50*time.Millisecond, cfg.Debounce())
	assert.Equal(t, 7755, cfg.TargetPort)
	assert.False(t, cfg.AutoRecalibrate)
	assert.True(t, cfg.ImmediateSend)
}

func TestLoad_Values(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
TARGET_HOST = 192.168.1.40
DEBOUNCE_MS=20
AUTO_RECALIBRATE=true
IMMEDIATE_SEND=false
REPLAY_INTERVAL_MS=100
SERIAL_PORT=/dev/ttyUSB0
MOCK_HOST=true
STEPS_PER_REV=200
MOTOR1_STEP_PIN=GPIO13
DISPLAY_ENABLED=true
`))
	require.NoError(t, err)
	assert.Equal(t, "192.168.1.40", cfg.TargetHost)
	assert.Equal(t, 20*time.Millisecond, cfg.Debounce())
	assert.True(t, cfg.AutoRecalibrate)
	assert.False(t, cfg.ImmediateSend)
	assert.Equal(t, 100*time.Millisecond, cfg.ReplayInterval())
	assert.Equal(t, "/dev/ttyUSB0", cfg.SerialPort)
	assert.True(t, cfg.MockHost)
	assert.Equal(t, 200.0, cfg.StepsPerRev)
	assert.Equal(t, [3]string{"GPIO20", "GPIO12", "GPIO13"}, cfg.MotorPins[1])
	assert.True(t, cfg.DisplayEnabled)
}

func TestLoad_Errors(t *testing.T) {
	cases := map[string]string{
		"unknown key":     "NOPE=1\n",
		"missing equals":  "TARGET_HOST\n",
		"bad int":         "DEBOUNCE_MS=fast\n",
		"out of range":    "TARGET_PORT=70000\n",
		"bad bool":        "MOCK_HOST=maybe\n",
		"bad motor":       "MOTOR3_DIR_PIN=GPIO1\n",
		"bad pin role":    "MOTOR0_BRAKE_PIN=GPIO1\n",
		"empty host":      "TARGET_HOST=\n",
		"speed inversion": "MIN_DEG_PER_SECOND=400\n",
		"negative speed":  "MAX_DEG_PER_SECOND=-1\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.txt"))
	assert.ErrorContains(t, err, "failed to open config file")
}

func TestLoad_SampleFile(t *testing.T) {
	cfg, err := Load("../../motor_observer_config.txt")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), cfg)
}
