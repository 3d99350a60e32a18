package observer

import (
	"math"

	"github.com/relabs-tech/motor_observer/internal/orientation"
)

// AxisThreshold is the cosine a rotation axis must exceed along one
// coordinate axis to count as a single-axis rotation.
const AxisThreshold = 0.99

const twoPi = 2 * math.Pi

// Axis names the coordinate axis a rotation was aligned with.
type Axis int

const (
	AxisNone Axis = iota
	AxisX
	AxisY
	AxisZ
)

func (a Axis) String() string {
	switch a {
	case AxisX:
		return "X"
	case AxisY:
		return "Y"
	case AxisZ:
		return "Z"
	}
	return "none"
}

// Result is the outcome of Extract. Angle is meaningful only when Valid.
type Result struct {
	Angle    float32
	Valid    bool
	Axis     Axis
	Negative bool
}

// Extract reduces a relative rotation to a single motor angle in [0, 2π).
// A rotation about a negative coordinate axis is mirrored to 2π-θ, and
// reversed mirrors it once more. Rotations whose axis is not within
// AxisThreshold of a coordinate axis are reported with Valid false.
func Extract(relative orientation.Rotation, reversed bool) Result {
	axis, angle := relative.AxisAngle()

	res := Result{Valid: true}
	switch {
	case axis.X > AxisThreshold:
		res.Axis = AxisX
	case axis.Y > AxisThreshold:
		res.Axis = AxisY
	case axis.Z > AxisThreshold:
		res.Axis = AxisZ
	case axis.X < -AxisThreshold:
		res.Axis, res.Negative = AxisX, true
	case axis.Y < -AxisThreshold:
		res.Axis, res.Negative = AxisY, true
	case axis.Z < -AxisThreshold:
		res.Axis, res.Negative = AxisZ, true
	default:
		return Result{}
	}

	if res.Negative {
		angle = twoPi - angle
	}
	if reversed {
		angle = twoPi - angle
	}
	res.Angle = wrap(angle)
	return res
}

// wrap folds angle into [0, 2π) after float32 rounding, which can push
// values just below 2π onto float32(2π).
func wrap(angle float64) float32 {
	angle = math.Mod(angle, twoPi)
	if angle < 0 {
		angle += twoPi
	}
	a := float32(angle)
	if float64(a) >= twoPi || a <= 0 {
		return 0
	}
	return a
}
