package observer

import (
	"errors"
	"fmt"

	"github.com/relabs-tech/motor_observer/internal/frame"
)

// ErrGroupFull is returned when a group already holds frame.Slots
// observers.
var ErrGroupFull = errors.New("max 3 motors per group allowed")

// Group is an ordered set of at most frame.Slots observers. Its order is
// the slot order on the wire.
type Group struct {
	members []*Observer
}

func NewGroup() *Group {
	return &Group{members: make([]*Observer, 0, frame.Slots)}
}

// Add appends o. A full group rejects it with ErrGroupFull; the observer
// itself stays usable outside the group.
func (g *Group) Add(o *Observer) error {
	if len(g.members) >= frame.Slots {
		return fmt.Errorf("observer %d not added: %w", o.ID(), ErrGroupFull)
	}
	g.members = append(g.members, o)
	return nil
}

// Contains reports whether o has a slot in the group.
func (g *Group) Contains(id ID) bool {
	for _, m := range g.members {
		if m.ID() == id {
			return true
		}
	}
	return false
}

func (g *Group) Len() int { return len(g.members) }

// Members returns the observers in slot order.
func (g *Group) Members() []*Observer {
	out := make([]*Observer, len(g.members))
	copy(out, g.members)
	return out
}

// Snapshot builds the current frame. Empty slots are disabled with a
// zero angle.
func (g *Group) Snapshot() frame.StateFrame {
	var f frame.StateFrame
	for i, m := range g.members {
		f.Motors[i] = m.State()
	}
	return f
}

// MarkSent records every member's state as transmitted.
func (g *Group) MarkSent() {
	for _, m := range g.members {
		m.MarkSent()
	}
}
