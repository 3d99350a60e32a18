package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/motor_observer/internal/frame"
)

type timedSender struct {
	mu    sync.Mutex
	sends []frame.StateFrame
	times []time.Time
	err   error
}

func (s *timedSender) Send(p []byte) error {
	f, err := frame.Decode(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends = append(s.sends, f)
	s.times = append(s.times, time.Now())
	return s.err
}

func distinctFrames(n int) []frame.StateFrame {
	out := make([]frame.StateFrame, n)
	for i := range out {
		out[i] = frame.New(frame.MotorState{Enabled: true, Angle: float32(i) * 0.1})
	}
	return out
}

func TestReplay_OrderAndSpacing(t *testing.T) {
	rec := NewRecording()
	frames := distinctFrames(5)
	for _, f := range frames {
		rec.Append(f)
	}
	s := &timedSender{}

	n, err := NewReplayer(s).Replay(context.Background(), rec, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, frames, s.sends)
	for i := 1; i < len(s.times); i++ {
		assert.GreaterOrEqual(t, s.times[i].Sub(s.times[i-1]), 10*time.Millisecond)
	}
	assert.Equal(t, 5, rec.Cursor())
}

func TestReplay_EmptyIsNoop(t *testing.T) {
	s := &timedSender{}
	n, err := NewReplayer(s).Replay(context.Background(), NewRecording(), time.Second)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Empty(t, s.sends)
}

func TestReplay_CancelBetweenFrames(t *testing.T) {
	rec := NewRecording()
	for _, f := range distinctFrames(10) {
		rec.Append(f)
	}
	s := &timedSender{}
	p := NewReplayer(s)

	ctx, cancel := context.WithCancel(context.Background())
	p.sleep = func(ctx context.Context, d time.Duration) error {
		if len(s.sends) == 3 {
			cancel()
		}
		return sleepCtx(ctx, d)
	}

	n, err := p.Replay(ctx, rec, time.Millisecond)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 3, n)
	assert.Len(t, s.sends, 3)
	assert.Equal(t, 3, rec.Cursor())
}

func TestReplay_SendErrorsDoNotStop(t *testing.T) {
	rec := NewRecording()
	for _, f := range distinctFrames(3) {
		rec.Append(f)
	}
	s := &timedSender{err: errors.New("socket closed")}
	n, err := NewReplayer(s).Replay(context.Background(), rec, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Len(t, s.sends, 3)
}

func TestRecording_ResetStartsNewSession(t *testing.T) {
	rec := NewRecording()
	first := rec.Session()
	rec.Append(frame.StateFrame{})
	assert.Equal(t, 1, rec.Len())

	rec.Reset()
	assert.Zero(t, rec.Len())
	assert.NotEqual(t, first, rec.Session())
}

func TestRecording_FramesIsACopy(t *testing.T) {
	rec := NewRecording()
	rec.Append(frame.New(frame.MotorState{Enabled: true, Angle: 1}))
	got := rec.Frames()
	got[0].Motors[0].Angle = 9
	assert.Equal(t, float32(1), rec.Frames()[0].Motors[0].Angle)
}
