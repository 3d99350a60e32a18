package app

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/motor_observer/internal/bridge"
	"github.com/relabs-tech/motor_observer/internal/frame"
	"github.com/relabs-tech/motor_observer/internal/loop"
	"github.com/relabs-tech/motor_observer/internal/observer"
	"github.com/relabs-tech/motor_observer/internal/orientation"
)

type syncSender struct {
	mu     sync.Mutex
	frames []frame.StateFrame
}

func (s *syncSender) Send(p []byte) error {
	f, err := frame.Decode(p)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
	return nil
}

func (s *syncSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

type webFixture struct {
	lp     *loop.Loop
	rt     *bridgeRuntime
	web    *webServer
	srv    *httptest.Server
	sender *syncSender
}

func newWebFixture(t *testing.T) *webFixture {
	t.Helper()
	lp := loop.New(0)
	sender := &syncSender{}
	rt := newBridgeRuntime(lp, sender, bridge.Options{Debounce: 5 * time.Millisecond, ImmediateSend: true}, 3)
	web := newWebServer(lp, rt.svc, time.Millisecond)
	srv := httptest.NewServer(web.routes())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		lp.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		srv.Close()
		web.close()
		cancel()
		<-done
	})
	return &webFixture{lp: lp, rt: rt, web: web, srv: srv, sender: sender}
}

func (f *webFixture) place(t *testing.T, id observer.ID, angle float64) {
	t.Helper()
	r := orientation.FromAxisAngle(orientation.Vector{Z: 1}, angle)
	require.NoError(t, f.lp.Call(context.Background(), func() error {
		f.rt.applyPlacement(Placement{ID: id, Rotation: quaternionOf(r)})
		return nil
	}))
}

func (f *webFixture) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.srv.URL, "http") + "/ws/control"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readType skips pushed frames and other messages until one of type typ.
func readType(t *testing.T, conn *websocket.Conn, typ string) ControlResponse {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var resp ControlResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Type == typ {
			return resp
		}
	}
}

func request(t *testing.T, conn *websocket.Conn, msg ControlMessage) ControlResponse {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var resp ControlResponse
		require.NoError(t, conn.ReadJSON(&resp))
		if resp.Action == msg.Action {
			return resp
		}
	}
}

func TestWeb_StatusEndpoint(t *testing.T) {
	f := newWebFixture(t)

	resp, err := http.Get(f.srv.URL + "/api/status")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var st bridge.Status
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
	assert.Len(t, st.Observers, 3)
	assert.True(t, st.ImmediateSend)
}

func TestWeb_ControlActions(t *testing.T) {
	f := newWebFixture(t)
	conn := f.dial(t)

	resp := request(t, conn, ControlMessage{Action: "create_observer"})
	assert.Equal(t, "ok", resp.Type)
	require.NotNil(t, resp.ID)
	assert.Equal(t, observer.ID(3), *resp.ID)

	resp = request(t, conn, ControlMessage{Action: "set_enabled"})
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Message, "id required")

	nine := observer.ID(9)
	on := true
	resp = request(t, conn, ControlMessage{Action: "set_enabled", ID: &nine, Enabled: &on})
	assert.Equal(t, "error", resp.Type)
	assert.Contains(t, resp.Message, "unknown observer")

	resp = request(t, conn, ControlMessage{Action: "launch"})
	assert.Equal(t, "error", resp.Type)

	resp = request(t, conn, ControlMessage{Action: "status"})
	assert.Equal(t, "status", resp.Type)
	require.NotNil(t, resp.Status)
	assert.Len(t, resp.Status.Observers, 4)
	assert.False(t, resp.Status.Observers[3].InGroup)
}

func TestWeb_FramesArePushed(t *testing.T) {
	f := newWebFixture(t)
	conn := f.dial(t)
	// make sure the client is registered before anything is broadcast
	request(t, conn, ControlMessage{Action: "status"})

	f.place(t, 1, 0.2) // first placement calibrates
	f.place(t, 1, 0.7)

	deadline := time.Now().Add(3 * time.Second)
	for {
		resp := readType(t, conn, "frame")
		require.NotNil(t, resp.Frame)
		if math.Abs(float64(resp.Frame.Motors[1].Angle)-0.5) < 1e-5 {
			break
		}
		require.True(t, time.Now().Before(deadline), "frame with the new angle not pushed")
	}

	zero := observer.ID(0)
	off := false
	resp := request(t, conn, ControlMessage{Action: "set_enabled", ID: &zero, Enabled: &off})
	assert.Equal(t, "ok", resp.Type)
}

func TestWeb_RecordAndReplay(t *testing.T) {
	f := newWebFixture(t)
	conn := f.dial(t)

	noSend := false
	resp := request(t, conn, ControlMessage{Action: "start_recording", Reset: true, Send: &noSend})
	require.Equal(t, "ok", resp.Type)

	f.place(t, 0, 0)
	for i := 1; i <= 3; i++ {
		f.place(t, 0, 0.3*float64(i))
		time.Sleep(20 * time.Millisecond)
	}
	assert.Eventually(t, func() bool { return f.rt.svc.Recording().Len() >= 3 }, 2*time.Second, 5*time.Millisecond)
	assert.Zero(t, f.sender.count())

	resp = request(t, conn, ControlMessage{Action: "stop_recording"})
	require.Equal(t, "ok", resp.Type)

	httpResp, err := http.Get(f.srv.URL + "/api/recording")
	require.NoError(t, err)
	var dump RecordingDump
	require.NoError(t, json.NewDecoder(httpResp.Body).Decode(&dump))
	httpResp.Body.Close()
	recorded := len(dump.Frames)
	assert.GreaterOrEqual(t, recorded, 3)
	assert.NotEmpty(t, dump.Session)

	// the end-of-replay message can overtake the ok
	require.NoError(t, conn.WriteJSON(ControlMessage{Action: "replay", IntervalMS: 1}))
	done := readType(t, conn, "replay")
	assert.Equal(t, recorded, done.Sent)
	assert.Equal(t, "done", done.Message)
	assert.Equal(t, recorded, f.sender.count())
}

func TestWeb_CancelReplay(t *testing.T) {
	f := newWebFixture(t)
	conn := f.dial(t)

	require.NoError(t, f.lp.Call(context.Background(), func() error {
		noSend := false
		f.rt.svc.StartRecording(true, &noSend)
		return nil
	}))
	f.place(t, 0, 0)
	f.place(t, 0, 1)
	assert.Eventually(t, func() bool { return f.rt.svc.Recording().Len() >= 1 }, 2*time.Second, 5*time.Millisecond)
	f.place(t, 0, 2)
	assert.Eventually(t, func() bool { return f.rt.svc.Recording().Len() >= 2 }, 2*time.Second, 5*time.Millisecond)

	resp := request(t, conn, ControlMessage{Action: "replay", IntervalMS: 60000})
	require.Equal(t, "ok", resp.Type)
	resp = request(t, conn, ControlMessage{Action: "replay"})
	assert.Equal(t, "error", resp.Type, "one replay at a time")

	require.NoError(t, conn.WriteJSON(ControlMessage{Action: "cancel_replay"}))
	done := readType(t, conn, "replay")
	assert.Equal(t, 1, done.Sent)
	assert.Contains(t, done.Message, "canceled")
}
