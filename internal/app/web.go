package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/relabs-tech/motor_observer/internal/bridge"
	"github.com/relabs-tech/motor_observer/internal/frame"
	"github.com/relabs-tech/motor_observer/internal/loop"
	"github.com/relabs-tech/motor_observer/internal/observer"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for local development
	},
}

// ControlMessage is a request on the control websocket.
type ControlMessage struct {
	Action     string       `json:"action"`
	ID         *observer.ID `json:"id,omitempty"`
	Enabled    *bool        `json:"enabled,omitempty"`
	Reversed   *bool        `json:"reversed,omitempty"`
	Reset      bool         `json:"reset,omitempty"`
	Send       *bool        `json:"send,omitempty"`
	IntervalMS int          `json:"interval_ms,omitempty"`
}

// ControlResponse is pushed back to the client. Type is one of ok, error,
// status, frame or replay.
type ControlResponse struct {
	Type    string            `json:"type"`
	Action  string            `json:"action,omitempty"`
	Message string            `json:"message,omitempty"`
	ID      *observer.ID      `json:"id,omitempty"`
	Status  *bridge.Status    `json:"status,omitempty"`
	Frame   *frame.StateFrame `json:"frame,omitempty"`
	Sent    int               `json:"sent,omitempty"`
}

// wsClient serializes writes to one websocket connection.
type wsClient struct {
	conn *websocket.Conn
	out  chan ControlResponse
}

func (c *wsClient) writeLoop() {
	for msg := range c.out {
		if err := c.conn.WriteJSON(msg); err != nil {
			log.Printf("web: websocket write error: %v", err)
			return
		}
	}
}

// push drops the message if the client is not keeping up.
func (c *wsClient) push(msg ControlResponse) {
	select {
	case c.out <- msg:
	default:
	}
}

type webServer struct {
	lp       *loop.Loop
	svc      *bridge.Service
	interval time.Duration

	mu      sync.Mutex
	clients map[*wsClient]struct{}
	replay  context.CancelFunc
	wg      sync.WaitGroup
}

// newWebServer must be called before the loop starts: it registers a
// broadcast listener on svc.
func newWebServer(lp *loop.Loop, svc *bridge.Service, replayInterval time.Duration) *webServer {
	s := &webServer{
		lp:       lp,
		svc:      svc,
		interval: replayInterval,
		clients:  make(map[*wsClient]struct{}),
	}
	svc.OnBroadcast(s.pushFrame)
	return s
}

func (s *webServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/recording", s.handleRecording)
	mux.HandleFunc("/ws/control", s.handleControlWS)
	return mux
}

func (s *webServer) pushFrame(f frame.StateFrame) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.clients {
		c.push(ControlResponse{Type: "frame", Frame: &f})
	}
}

func (s *webServer) status(ctx context.Context) (bridge.Status, error) {
	var st bridge.Status
	err := s.lp.Call(ctx, func() error {
		st = s.svc.Status()
		return nil
	})
	return st, err
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func (s *webServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, st)
}

// RecordingDump is the body of /api/recording.
type RecordingDump struct {
	Session string             `json:"session"`
	Cursor  int                `json:"cursor"`
	Frames  []frame.StateFrame `json:"frames"`
}

func (s *webServer) handleRecording(w http.ResponseWriter, r *http.Request) {
	rec := s.svc.Recording()
	writeJSON(w, RecordingDump{
		Session: rec.Session(),
		Cursor:  rec.Cursor(),
		Frames:  rec.Frames(),
	})
}

// handleControlWS handles the websocket connection for live control.
func (s *webServer) handleControlWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("web: websocket upgrade error: %v", err)
		return
	}
	defer conn.Close()

	c := &wsClient{conn: conn, out: make(chan ControlResponse, 64)}
	s.mu.Lock()
	s.clients[c] = struct{}{}
	s.mu.Unlock()
	go c.writeLoop()
	defer func() {
		s.mu.Lock()
		delete(s.clients, c)
		close(c.out)
		s.mu.Unlock()
	}()

	// Main message loop
	for {
		var msg ControlMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Printf("web: websocket read error: %v", err)
			}
			return
		}
		c.push(s.dispatch(r.Context(), c, msg))
	}
}

func needID(msg ControlMessage) (observer.ID, error) {
	if msg.ID == nil {
		return 0, fmt.Errorf("%s: id required", msg.Action)
	}
	return *msg.ID, nil
}

func (s *webServer) dispatch(ctx context.Context, c *wsClient, msg ControlMessage) ControlResponse {
	ok := ControlResponse{Type: "ok", Action: msg.Action}
	fail := func(err error) ControlResponse {
		return ControlResponse{Type: "error", Action: msg.Action, Message: err.Error()}
	}

	var err error
	switch msg.Action {
	case "create_observer":
		var id observer.ID
		err = s.lp.Call(ctx, func() error {
			id = s.svc.CreateObserver()
			return nil
		})
		ok.ID = &id

	case "calibrate":
		if msg.ID == nil {
			err = s.lp.Call(ctx, s.svc.CalibrateAll)
			break
		}
		id := *msg.ID
		err = s.lp.Call(ctx, func() error { return s.svc.Calibrate(id) })

	case "set_enabled":
		var id observer.ID
		if id, err = needID(msg); err != nil {
			break
		}
		if msg.Enabled == nil {
			err = errors.New("set_enabled: enabled required")
			break
		}
		err = s.lp.Call(ctx, func() error { return s.svc.SetEnabled(id, *msg.Enabled) })

	case "set_reversed":
		var id observer.ID
		if id, err = needID(msg); err != nil {
			break
		}
		if msg.Reversed == nil {
			err = errors.New("set_reversed: reversed required")
			break
		}
		err = s.lp.Call(ctx, func() error { return s.svc.SetReversed(id, *msg.Reversed) })

	case "start_recording":
		err = s.lp.Call(ctx, func() error {
			s.svc.StartRecording(msg.Reset, msg.Send)
			return nil
		})

	case "stop_recording":
		err = s.lp.Call(ctx, func() error {
			s.svc.StopRecording()
			return nil
		})

	case "set_immediate_send":
		if msg.Send == nil {
			err = errors.New("set_immediate_send: send required")
			break
		}
		err = s.lp.Call(ctx, func() error {
			s.svc.SetImmediateSend(*msg.Send)
			return nil
		})

	case "replay":
		interval := s.interval
		if msg.IntervalMS > 0 {
			interval = time.Duration(msg.IntervalMS) * time.Millisecond
		}
		err = s.startReplay(c, interval)

	case "cancel_replay":
		s.cancelReplay()

	case "status":
		var st bridge.Status
		if st, err = s.status(ctx); err == nil {
			return ControlResponse{Type: "status", Action: msg.Action, Status: &st}
		}

	default:
		err = fmt.Errorf("unknown action %q", msg.Action)
	}

	if err != nil {
		return fail(err)
	}
	return ok
}

// startReplay runs one replay at a time off the loop. The requesting
// client gets a "replay" message when it ends.
func (s *webServer) startReplay(c *wsClient, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replay != nil {
		return errors.New("replay already running")
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.replay = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		n, err := s.svc.Replay(ctx, interval)
		msg := ControlResponse{Type: "replay", Sent: n, Message: "done"}
		if err != nil {
			msg.Message = err.Error()
		}
		s.mu.Lock()
		s.replay = nil
		if _, ok := s.clients[c]; ok {
			c.push(msg)
		}
		s.mu.Unlock()
		cancel()
	}()
	return nil
}

func (s *webServer) cancelReplay() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.replay != nil {
		s.replay()
	}
}

// close cancels a running replay and waits for it.
func (s *webServer) close() {
	s.cancelReplay()
	s.wg.Wait()
}
