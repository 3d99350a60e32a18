package app

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/relabs-tech/motor_observer/internal/observer"
	"github.com/relabs-tech/motor_observer/internal/orientation"
)

// ErrNoPlacement is returned for an object the host never reported.
var ErrNoPlacement = errors.New("no placement received")

// Quaternion is the wire form of a rotation.
type Quaternion struct {
	W float64 `json:"w"`
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Placement is one host update for a tracked object. Either Rotation or
// Pose describes the object; ReferenceRotation or ReferencePose, if
// present, describes its support object.
type Placement struct {
	ID                observer.ID       `json:"id"`
	Rotation          *Quaternion       `json:"rotation,omitempty"`
	Pose              *orientation.Pose `json:"pose,omitempty"`
	ReferenceRotation *Quaternion       `json:"reference,omitempty"`
	ReferencePose     *orientation.Pose `json:"reference_pose,omitempty"`
}

func quaternionOf(r orientation.Rotation) *Quaternion {
	w, x, y, z := r.Quaternion()
	return &Quaternion{W: w, X: x, Y: y, Z: z}
}

func rotationOf(q *Quaternion, p *orientation.Pose) (orientation.Rotation, bool, error) {
	switch {
	case q != nil:
		if q.W == 0 && q.X == 0 && q.Y == 0 && q.Z == 0 {
			return orientation.Rotation{}, false, fmt.Errorf("zero quaternion")
		}
		for _, v := range []float64{q.W, q.X, q.Y, q.Z} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return orientation.Rotation{}, false, fmt.Errorf("quaternion component %v", v)
			}
		}
		return orientation.FromQuaternion(q.W, q.X, q.Y, q.Z), true, nil
	case p != nil:
		return orientation.FromPose(*p), true, nil
	}
	return orientation.Rotation{}, false, nil
}

// DecodePlacement parses and checks one placement message.
func DecodePlacement(payload []byte) (Placement, error) {
	var p Placement
	if err := json.Unmarshal(payload, &p); err != nil {
		return Placement{}, fmt.Errorf("placement unmarshal: %w", err)
	}
	if p.ID < 0 {
		return Placement{}, fmt.Errorf("placement: negative id %d", p.ID)
	}
	if p.Rotation == nil && p.Pose == nil {
		return Placement{}, fmt.Errorf("placement %d: rotation or pose required", p.ID)
	}
	if _, _, err := rotationOf(p.Rotation, p.Pose); err != nil {
		return Placement{}, fmt.Errorf("placement %d: %w", p.ID, err)
	}
	if _, _, err := rotationOf(p.ReferenceRotation, p.ReferencePose); err != nil {
		return Placement{}, fmt.Errorf("placement %d reference: %w", p.ID, err)
	}
	return p, nil
}

type placed struct {
	current   orientation.Rotation
	reference orientation.Rotation
	hasRef    bool
}

// PlacementStore is the bridge's view of the host document: the latest
// placement of every tracked object. It is used from the event loop only.
type PlacementStore struct {
	objects map[observer.ID]placed
}

func NewPlacementStore() *PlacementStore {
	return &PlacementStore{objects: make(map[observer.ID]placed)}
}

// Set stores p and reports whether this was the object's first placement.
func (s *PlacementStore) Set(p Placement) (bool, error) {
	cur, ok, err := rotationOf(p.Rotation, p.Pose)
	if err != nil {
		return false, fmt.Errorf("placement %d: %w", p.ID, err)
	}
	if !ok {
		return false, fmt.Errorf("placement %d: rotation or pose required", p.ID)
	}
	ref, hasRef, err := rotationOf(p.ReferenceRotation, p.ReferencePose)
	if err != nil {
		return false, fmt.Errorf("placement %d reference: %w", p.ID, err)
	}
	_, seen := s.objects[p.ID]
	s.objects[p.ID] = placed{current: cur, reference: ref, hasRef: hasRef}
	return !seen, nil
}

func (s *PlacementStore) CurrentRotation(id observer.ID) (orientation.Rotation, error) {
	o, ok := s.objects[id]
	if !ok {
		return orientation.Rotation{}, fmt.Errorf("object %d: %w", id, ErrNoPlacement)
	}
	return o.current, nil
}

func (s *PlacementStore) ReferenceRotation(id observer.ID) (orientation.Rotation, bool) {
	o, ok := s.objects[id]
	if !ok {
		return orientation.Rotation{}, false
	}
	return o.reference, o.hasRef
}
