package app

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/motor_observer/internal/bridge"
	"github.com/relabs-tech/motor_observer/internal/broadcaster"
	"github.com/relabs-tech/motor_observer/internal/frame"
)

func TestFormatFrame(t *testing.T) {
	f := frame.New(frame.MotorState{Enabled: true, Angle: math.Pi / 2})
	assert.Equal(t, "[FRAME]  M0 on    90.00°  M1 off    0.00°  M2 off    0.00°", formatFrame(f))
}

func TestFormatFrame_FromPublishedJSON(t *testing.T) {
	payload, err := json.Marshal(frame.New(frame.MotorState{Enabled: true, Angle: math.Pi}))
	require.NoError(t, err)

	var f frame.StateFrame
	require.NoError(t, json.Unmarshal(payload, &f))
	assert.Contains(t, formatFrame(f), "M0 on   180.00°")
}

func TestFormatStatus(t *testing.T) {
	st := bridge.Status{
		Observers:      make([]bridge.ObserverStatus, 2),
		Broadcast:      broadcaster.Stats{Sent: 5, Suppressed: 1},
		Recording:      true,
		RecordedFrames: 4,
	}
	assert.Equal(t, "[STAT]  observers=2 sent=5 suppressed=1 recording=true frames=4 send=false", formatStatus(st))
}
