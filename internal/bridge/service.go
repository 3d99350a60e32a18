// Package bridge wires observers, the broadcaster, the transport and the
// recording into one service that a host application drives.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/relabs-tech/motor_observer/internal/broadcaster"
	"github.com/relabs-tech/motor_observer/internal/frame"
	"github.com/relabs-tech/motor_observer/internal/loop"
	"github.com/relabs-tech/motor_observer/internal/observer"
	"github.com/relabs-tech/motor_observer/internal/orientation"
	"github.com/relabs-tech/motor_observer/internal/recorder"
	"github.com/relabs-tech/motor_observer/internal/transport"
)

// ErrUnknownObserver is returned for an ID the service never created.
var ErrUnknownObserver = errors.New("unknown observer")

// Host is the application that owns the tracked objects.
type Host interface {
	// CurrentRotation is the object's latest orientation.
	CurrentRotation(id observer.ID) (orientation.Rotation, error)
	// ReferenceRotation is the orientation of the object's reference
	// (support) object, if it has one.
	ReferenceRotation(id observer.ID) (orientation.Rotation, bool)
}

// Options configures a Service.
type Options struct {
	Debounce        time.Duration
	AutoRecalibrate bool
	// ImmediateSend sends broadcast frames to the transport. Recording
	// works independently of it.
	ImmediateSend bool
}

// DefaultOptions are 50 ms debounce, no automatic
// recalibration, immediate sending on.
func DefaultOptions() Options {
	return Options{Debounce: broadcaster.DefaultDelay, ImmediateSend: true}
}

// Service is the context object that replaces global socket, timer and
// recording state. It is not safe for concurrent use: call it from the
// event loop that runs the scheduler's callbacks (see loop.Loop.Call).
// Replay is the exception and may run on another goroutine.
type Service struct {
	host   Host
	sender transport.Sender
	opts   Options

	observers map[observer.ID]*observer.Observer
	nextID    observer.ID
	group     *observer.Group
	bcast     *broadcaster.Broadcaster

	recording *recorder.Recording
	recActive bool
	sendOn    bool

	listeners []func(frame.StateFrame)
	closed    bool
}

// New builds a service. sender may be nil, in which case every send is
// skipped as unavailable.
func New(host Host, sched loop.Scheduler, sender transport.Sender, opts Options) *Service {
	s := &Service{
		host:      host,
		sender:    sender,
		opts:      opts,
		observers: make(map[observer.ID]*observer.Observer),
		group:     observer.NewGroup(),
		recording: recorder.NewRecording(),
		sendOn:    opts.ImmediateSend,
	}
	s.bcast = broadcaster.New(sched, opts.Debounce, s.group.Snapshot, broadcaster.SinkFunc(s.broadcast))
	return s
}

// CreateObserver registers a new observer. The first three join the
// broadcast group; later ones exist but are reported and left out.
func (s *Service) CreateObserver() observer.ID {
	id := s.nextID
	s.nextID++
	o := observer.New(id, s.opts.AutoRecalibrate)
	s.observers[id] = o
	if err := s.group.Add(o); err != nil {
		log.Printf("WARNING bridge: %v", err)
	} else {
		log.Printf("bridge: observer %d created in slot %d", id, s.group.Len()-1)
	}
	return id
}

func (s *Service) lookup(id observer.ID) (*observer.Observer, error) {
	o, ok := s.observers[id]
	if !ok {
		return nil, fmt.Errorf("observer %d: %w", id, ErrUnknownObserver)
	}
	return o, nil
}

// observe pulls the current and reference orientation from the host.
func (s *Service) observe(o *observer.Observer) error {
	cur, err := s.host.CurrentRotation(o.ID())
	if err != nil {
		return fmt.Errorf("observer %d: read rotation: %w", o.ID(), err)
	}
	ref, hasRef := s.host.ReferenceRotation(o.ID())
	o.Observe(cur, ref, hasRef)
	return nil
}

// Calibrate makes the observer's current orientation its zero angle.
func (s *Service) Calibrate(id observer.ID) error {
	o, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := s.observe(o); err != nil {
		return err
	}
	o.Calibrate()
	log.Printf("bridge: observer %d calibrated (reference: %t)", id, o.HasReference())
	s.notifyIfChanged(o)
	return nil
}

// CalibrateAll calibrates every observer, in creation order.
func (s *Service) CalibrateAll() error {
	var errs []error
	for _, id := range s.ids() {
		if err := s.Calibrate(id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PlacementChanged is the host's change notification for one object. A
// multi-axis rotation is logged as a warning and processing continues.
func (s *Service) PlacementChanged(id observer.ID) error {
	o, err := s.lookup(id)
	if err != nil {
		return err
	}
	cur, err := s.host.CurrentRotation(id)
	if err != nil {
		return fmt.Errorf("observer %d: read rotation: %w", id, err)
	}
	ref, hasRef := s.host.ReferenceRotation(id)
	if _, err := o.Update(cur, ref, hasRef); err != nil {
		if !errors.Is(err, observer.ErrMultiAxisRotation) {
			return err
		}
		log.Printf("WARNING bridge: %v, keeping previous angle", err)
	}
	s.notifyIfChanged(o)
	return nil
}

// SetEnabled switches a motor on or off.
func (s *Service) SetEnabled(id observer.ID, enabled bool) error {
	o, err := s.lookup(id)
	if err != nil {
		return err
	}
	o.SetEnabled(enabled)
	s.notifyIfChanged(o)
	return nil
}

// SetReversed flips the motor direction.
func (s *Service) SetReversed(id observer.ID, reversed bool) error {
	o, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err := o.SetReversed(reversed); err != nil {
		log.Printf("WARNING bridge: %v, keeping previous angle", err)
	}
	s.notifyIfChanged(o)
	return nil
}

func (s *Service) notifyIfChanged(o *observer.Observer) {
	if !s.group.Contains(o.ID()) {
		return
	}
	if !o.Changed() {
		return
	}
	s.bcast.Notify()
}

// broadcast records and sends f. Members are marked sent only when the
// frame was recorded or actually went out.
func (s *Service) broadcast(f frame.StateFrame) {
	delivered := false
	if s.recActive {
		s.recording.Append(f)
		delivered = true
	}
	if s.sendOn && s.send(f) {
		delivered = true
	}
	if delivered {
		s.group.MarkSent()
	}
	for _, fn := range s.listeners {
		fn(f)
	}
}

func (s *Service) send(f frame.StateFrame) bool {
	if s.sender == nil {
		log.Printf("WARNING bridge: no transport, skipping send")
		return false
	}
	if err := s.sender.Send(frame.Encode(f)); err != nil {
		log.Printf("WARNING bridge: send failed: %v", err)
		return false
	}
	return true
}

// resendPending schedules a broadcast if some member holds a state that
// never went out.
func (s *Service) resendPending() {
	for _, m := range s.group.Members() {
		if m.Changed() {
			s.bcast.Forget()
			s.bcast.Notify()
			return
		}
	}
}

// OnBroadcast registers fn to be called, on the loop, with every frame
// the broadcaster emits.
func (s *Service) OnBroadcast(fn func(frame.StateFrame)) {
	s.listeners = append(s.listeners, fn)
}

// StartRecording captures every broadcast frame. reset clears the log
// first. A non-nil send also sets immediate sending, as SetImmediateSend.
func (s *Service) StartRecording(reset bool, send *bool) {
	if reset {
		s.recording.Reset()
	}
	s.recActive = true
	if send != nil {
		s.SetImmediateSend(*send)
	}
	log.Printf("bridge: recording states: true, immediate send: %t, current number: %d", s.sendOn, s.recording.Len())
}

// StopRecording stops capturing. Immediate sending is left as it is.
func (s *Service) StopRecording() {
	s.recActive = false
	log.Printf("bridge: recording states: false, current number: %d", s.recording.Len())
}

// SetImmediateSend toggles live sending independently of recording.
// Turning it on sends any state that was held back while it was off.
func (s *Service) SetImmediateSend(on bool) {
	was := s.sendOn
	s.sendOn = on
	if on && !was {
		s.resendPending()
	}
}

// Recording exposes the frame log.
func (s *Service) Recording() *recorder.Recording { return s.recording }

// Replay sends the recorded frames through the transport, interval apart.
// It blocks until done or ctx is cancelled and may be called off-loop.
func (s *Service) Replay(ctx context.Context, interval time.Duration) (int, error) {
	if s.sender == nil {
		return 0, transport.ErrUnavailable
	}
	return recorder.NewReplayer(s.sender).Replay(ctx, s.recording, interval)
}

// Snapshot is the frame the group would produce now.
func (s *Service) Snapshot() frame.StateFrame { return s.group.Snapshot() }

// ObserverStatus describes one observer.
type ObserverStatus struct {
	ID         observer.ID `json:"id"`
	InGroup    bool        `json:"in_group"`
	Enabled    bool        `json:"enabled"`
	Reversed   bool        `json:"reversed"`
	Calibrated bool        `json:"calibrated"`
	Reference  bool        `json:"reference"`
	Angle      float32     `json:"angle"`
	Axis       string      `json:"axis"`
}

// Status summarizes the service.
type Status struct {
	Observers      []ObserverStatus  `json:"observers"`
	Last           *frame.StateFrame `json:"last_frame,omitempty"`
	Pending        bool              `json:"pending"`
	Broadcast      broadcaster.Stats `json:"broadcast"`
	Recording      bool              `json:"recording"`
	ImmediateSend  bool              `json:"immediate_send"`
	RecordedFrames int               `json:"recorded_frames"`
	Session        string            `json:"session"`
}

func (s *Service) Status() Status {
	st := Status{
		Pending:        s.bcast.Pending(),
		Broadcast:      s.bcast.Stats(),
		Recording:      s.recActive,
		ImmediateSend:  s.sendOn,
		RecordedFrames: s.recording.Len(),
		Session:        s.recording.Session(),
	}
	if last, ok := s.bcast.Last(); ok {
		st.Last = &last
	}
	for _, id := range s.ids() {
		o := s.observers[id]
		st.Observers = append(st.Observers, ObserverStatus{
			ID:         id,
			InGroup:    s.group.Contains(id),
			Enabled:    o.Enabled(),
			Reversed:   o.Reversed(),
			Calibrated: o.Calibrated(),
			Reference:  o.HasReference(),
			Angle:      o.Angle(),
			Axis:       o.LastResult().Axis.String(),
		})
	}
	return st
}

func (s *Service) ids() []observer.ID {
	ids := make([]observer.ID, 0, len(s.observers))
	for id := range s.observers {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Close cancels a pending broadcast. The transport is owned by the caller.
func (s *Service) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.bcast.Close()
}
