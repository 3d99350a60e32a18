// Package broadcaster coalesces bursts of observer change notifications
// into at most one frame broadcast per debounce window.
package broadcaster

import (
	"log"
	"time"

	"github.com/relabs-tech/motor_observer/internal/frame"
	"github.com/relabs-tech/motor_observer/internal/loop"
)

// DefaultDelay is the debounce window.
const DefaultDelay = 50 * time.Millisecond

// Sink receives every frame that differs from the previous broadcast.
type Sink interface {
	Broadcast(f frame.StateFrame)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(f frame.StateFrame)

func (fn SinkFunc) Broadcast(f frame.StateFrame) { fn(f) }

type nopSink struct{}

func (nopSink) Broadcast(frame.StateFrame) {}

// Stats counts what the broadcaster did with its notifications.
type Stats struct {
	Notifications uint64 `json:"notifications"`
	Fired         uint64 `json:"fired"`
	Sent          uint64 `json:"sent"`
	Suppressed    uint64 `json:"suppressed"`
}

// Broadcaster is Idle until Notify arms a one-shot timer, Pending until the
// timer fires, then Idle again. It must be used from the loop that runs
// its scheduler's callbacks.
type Broadcaster struct {
	sched    loop.Scheduler
	delay    time.Duration
	snapshot func() frame.StateFrame
	sink     Sink

	timer    loop.Timer
	pending  bool
	closed   bool
	last     frame.StateFrame
	haveLast bool
	stats    Stats
}

// New returns an idle broadcaster. snapshot is called once per window;
// a nil sink is replaced by a no-op.
func New(sched loop.Scheduler, delay time.Duration, snapshot func() frame.StateFrame, sink Sink) *Broadcaster {
	if delay <= 0 {
		delay = DefaultDelay
	}
	if sink == nil {
		sink = nopSink{}
	}
	return &Broadcaster{
		sched:    sched,
		delay:    delay,
		snapshot: snapshot,
		sink:     sink,
	}
}

// SetSink replaces the sink; nil installs the no-op sink.
func (b *Broadcaster) SetSink(s Sink) {
	if s == nil {
		s = nopSink{}
	}
	b.sink = s
}

// Notify reports that some observer changed. Only the first notification
// of a window arms the timer.
func (b *Broadcaster) Notify() {
	if b.closed {
		return
	}
	b.stats.Notifications++
	if b.pending {
		return
	}
	b.pending = true
	b.timer = b.sched.AfterFunc(b.delay, b.fire)
}

func (b *Broadcaster) fire() {
	b.pending = false
	b.timer = nil
	if b.closed {
		return
	}
	b.stats.Fired++

	f := b.snapshot()
	if b.haveLast && f.Equal(b.last) {
		b.stats.Suppressed++
		log.Println("broadcaster: state not changed, pass")
		return
	}
	b.last = f
	b.haveLast = true
	b.stats.Sent++
	b.sink.Broadcast(f)
}

// Forget drops the last broadcast frame, so the next window emits even an
// unchanged state.
func (b *Broadcaster) Forget() {
	b.last = frame.StateFrame{}
	b.haveLast = false
}

// Pending reports whether a broadcast is scheduled.
func (b *Broadcaster) Pending() bool { return b.pending }

// Last returns the most recently broadcast frame.
func (b *Broadcaster) Last() (frame.StateFrame, bool) { return b.last, b.haveLast }

func (b *Broadcaster) Stats() Stats { return b.stats }

// Close cancels a pending broadcast. Later notifications are ignored.
func (b *Broadcaster) Close() {
	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.pending = false
}
