// Package recorder keeps an in-memory log of broadcast frames and replays
// it through a transport.
package recorder

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/relabs-tech/motor_observer/internal/frame"
	"github.com/relabs-tech/motor_observer/internal/transport"
)

// Recording is an append-only sequence of frames with a replay cursor.
// It is safe for concurrent use: the loop appends while a replay reads.
type Recording struct {
	mu      sync.Mutex
	session uuid.UUID
	frames  []frame.StateFrame
	cursor  int
}

func NewRecording() *Recording {
	return &Recording{session: uuid.New()}
}

// Reset drops all frames and starts a new session.
func (r *Recording) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
	r.cursor = 0
	r.session = uuid.New()
}

func (r *Recording) Append(f frame.StateFrame) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = append(r.frames, f)
}

func (r *Recording) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.frames)
}

// Frames returns a copy of the log.
func (r *Recording) Frames() []frame.StateFrame {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]frame.StateFrame, len(r.frames))
	copy(out, r.frames)
	return out
}

// Session identifies the current recording between resets.
func (r *Recording) Session() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session.String()
}

// Cursor is the index of the next frame a replay will send.
func (r *Recording) Cursor() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cursor
}

func (r *Recording) setCursor(i int) {
	r.mu.Lock()
	r.cursor = i
	r.mu.Unlock()
}

// Replayer sends a recording frame by frame.
type Replayer struct {
	sender transport.Sender
	sleep  func(ctx context.Context, d time.Duration) error
}

func NewReplayer(sender transport.Sender) *Replayer {
	return &Replayer{sender: sender, sleep: sleepCtx}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Replay sends the frames recorded so far in order, waiting interval
// between consecutive sends. It stops between frames when ctx is
// cancelled and returns how many frames were sent. Send failures are
// logged and do not stop the replay.
func (p *Replayer) Replay(ctx context.Context, rec *Recording, interval time.Duration) (int, error) {
	frames := rec.Frames()
	total := len(frames)
	rec.setCursor(0)
	for i, f := range frames {
		if i > 0 {
			if err := p.sleep(ctx, interval); err != nil {
				return i, fmt.Errorf("replay cancelled after %d of %d frames: %w", i, total, err)
			}
		} else if err := ctx.Err(); err != nil {
			return 0, err
		}
		if err := p.sender.Send(frame.Encode(f)); err != nil {
			log.Printf("replay: send %d of %d failed: %v", i+1, total, err)
		} else {
			log.Printf("replay: sent %d of %d", i+1, total)
		}
		rec.setCursor(i + 1)
	}
	return total, nil
}
