// Package observer turns the orientation of a tracked joint into a single
// motor angle and groups up to three joints into one motor frame.
package observer

import (
	"errors"
	"fmt"
	"log"

	"github.com/relabs-tech/motor_observer/internal/frame"
	"github.com/relabs-tech/motor_observer/internal/orientation"
)

// ErrMultiAxisRotation is returned by Update when the relative rotation is
// not about a single coordinate axis. It is recoverable: the previous
// angle is kept.
var ErrMultiAxisRotation = errors.New("multiple axis rotation")

// ID identifies an observer. IDs are assigned in creation order.
type ID int

// Observer tracks one joint. It is not safe for concurrent use; the
// bridge service drives it from its event loop.
type Observer struct {
	id ID

	base       orientation.Rotation
	reference  orientation.Rotation
	hasRef     bool
	current    orientation.Rotation
	calibrated bool

	enabled  bool
	reversed bool
	angle    float32
	last     Result

	lastSent frame.MotorState
	sent     bool

	autoRecalibrate bool
}

// New returns an enabled, uncalibrated observer. With autoRecalibrate, a
// multi-axis update re-zeroes the observer at that instant.
func New(id ID, autoRecalibrate bool) *Observer {
	return &Observer{
		id:              id,
		base:            orientation.Identity(),
		current:         orientation.Identity(),
		enabled:         true,
		autoRecalibrate: autoRecalibrate,
	}
}

func (o *Observer) ID() ID { return o.id }

// Calibrate makes the latest observed orientation the zero reference.
// Call it once after creation and whenever the reference object changes.
func (o *Observer) Calibrate() {
	if o.hasRef {
		o.base = o.reference.Inverse().Mul(o.current)
	} else {
		o.base = o.current
	}
	o.calibrated = true
	o.angle = 0
	o.last = Result{Valid: true}
}

// Observe records the current orientation (and the reference object's, if
// any) without recomputing the angle. Calibrate uses it.
func (o *Observer) Observe(current orientation.Rotation, reference orientation.Rotation, hasReference bool) {
	o.current = current
	o.reference = reference
	o.hasRef = hasReference
}

// Update records a new orientation and derives the motor angle from it.
// On a multi-axis rotation the angle is left unchanged and an error
// wrapping ErrMultiAxisRotation is returned.
func (o *Observer) Update(current orientation.Rotation, reference orientation.Rotation, hasReference bool) (Result, error) {
	o.Observe(current, reference, hasReference)
	return o.recompute()
}

func (o *Observer) relative() orientation.Rotation {
	zero := o.base
	if o.hasRef {
		zero = o.reference.Mul(o.base)
	}
	return zero.Inverse().Mul(o.current)
}

func (o *Observer) recompute() (Result, error) {
	res := Extract(o.relative(), o.reversed)
	if !res.Valid {
		err := fmt.Errorf("observer %d: %w", o.id, ErrMultiAxisRotation)
		if o.autoRecalibrate {
			o.Calibrate()
			log.Printf("observer %d: base rotation adjusted automatically", o.id)
		}
		return res, err
	}
	o.last = res
	o.angle = res.Angle
	return res, nil
}

// SetEnabled toggles the motor enable flag. It does not affect the angle.
func (o *Observer) SetEnabled(enabled bool) {
	o.enabled = enabled
}

// SetReversed flips the sign convention and re-derives the angle from the
// last observed orientation.
func (o *Observer) SetReversed(reversed bool) error {
	if o.reversed == reversed {
		return nil
	}
	o.reversed = reversed
	_, err := o.recompute()
	return err
}

func (o *Observer) Enabled() bool      { return o.enabled }
func (o *Observer) Reversed() bool     { return o.reversed }
func (o *Observer) Calibrated() bool   { return o.calibrated }
func (o *Observer) HasReference() bool { return o.hasRef }

// Angle is the last successfully extracted angle in radians.
func (o *Observer) Angle() float32 { return o.angle }

// LastResult is the last valid extraction.
func (o *Observer) LastResult() Result { return o.last }

// State is the motor state this observer would put on the wire.
func (o *Observer) State() frame.MotorState {
	return frame.MotorState{Enabled: o.enabled, Angle: o.angle}
}

// Changed reports whether State differs from what was last sent.
func (o *Observer) Changed() bool {
	return !o.sent || o.State() != o.lastSent
}

// MarkSent records the current state as transmitted.
func (o *Observer) MarkSent() {
	o.lastSent = o.State()
	o.sent = true
}
