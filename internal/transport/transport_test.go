package transport

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/motor_observer/internal/frame"
)

func TestUDP_SendReachesListener(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	port := l.LocalAddr().(*net.UDPAddr).Port
	u, err := DialUDP("127.0.0.1", port)
	require.NoError(t, err)
	defer u.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan frame.StateFrame, 1)
	go l.Run(ctx, func(f frame.StateFrame, _ time.Time) {
		select {
		case got <- f:
		default:
		}
	})

	want := frame.New(frame.MotorState{Enabled: true, Angle: 0.5235988})
	require.NoError(t, u.Send(frame.Encode(want)))

	select {
	case f := <-got:
		assert.True(t, want.Equal(f))
	case <-time.After(2 * time.Second):
		t.Fatal("frame not received")
	}
	assert.Equal(t, uint64(1), u.Stats().Sent)
	assert.NotNil(t, u.LocalAddr())
}

func TestUDP_SendAfterCloseIsSkipped(t *testing.T) {
	u, err := DialUDP("127.0.0.1", frame.Port)
	require.NoError(t, err)
	require.NoError(t, u.Close())
	require.NoError(t, u.Close())

	err = u.Send(make([]byte, frame.Size))
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, UDPStats{Skipped: 1}, u.Stats())
}

func TestUDP_ZeroValueIsUnavailable(t *testing.T) {
	var u UDP
	assert.ErrorIs(t, u.Send([]byte{1}), ErrUnavailable)
}

func TestUDP_NilInSenderIsUnavailable(t *testing.T) {
	var u *UDP
	var s Sender = u
	assert.ErrorIs(t, s.Send([]byte{1}), ErrUnavailable)
}

func TestListener_SkipsMalformed(t *testing.T) {
	l, err := Listen("127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	conn, err := net.Dial("udp", l.LocalAddr().String())
	require.NoError(t, err)
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var frames []frame.StateFrame
	done := make(chan error, 1)
	go func() {
		done <- l.Run(ctx, func(f frame.StateFrame, _ time.Time) {
			mu.Lock()
			frames = append(frames, f)
			mu.Unlock()
		})
	}()

	_, err = conn.Write(make([]byte, 24)) // native-aligned struct from old senders
	require.NoError(t, err)
	_, err = conn.Write(frame.Encode(frame.New(frame.MotorState{Enabled: true, Angle: 2})))
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(frames) == 1
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

type fakeSender struct {
	got [][]byte
	err error
}

func (f *fakeSender) Send(p []byte) error {
	f.got = append(f.got, p)
	return f.err
}

func TestFanout(t *testing.T) {
	a := &fakeSender{}
	b := &fakeSender{err: errors.New("unplugged")}
	c := &fakeSender{}

	err := Fanout{a, b, c}.Send([]byte{1, 2})
	assert.ErrorContains(t, err, "unplugged")
	assert.Len(t, a.got, 1)
	assert.Len(t, c.got, 1)

	assert.NoError(t, Fanout{a}.Send([]byte{3}))
}

type bufferPort struct {
	data   []byte
	closed bool
}

func (p *bufferPort) Write(b []byte) (int, error) {
	p.data = append(p.data, b...)
	return len(b), nil
}

func (p *bufferPort) Close() error {
	p.closed = true
	return nil
}

func TestSerial_WritesFrames(t *testing.T) {
	port := &bufferPort{}
	s := NewSerial("/dev/null", port)

	payload := frame.Encode(frame.New(frame.MotorState{Enabled: true, Angle: 1}))
	require.NoError(t, s.Send(payload))
	require.NoError(t, s.Send(payload))
	assert.Len(t, port.data, 2*frame.Size)

	require.NoError(t, s.Close())
	assert.True(t, port.closed)
	assert.ErrorIs(t, s.Send(payload), ErrUnavailable)
}
