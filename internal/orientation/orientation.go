package orientation

import (
	"math"

	"gonum.org/v1/gonum/num/quat"
)

// Pose is a roll/pitch/yaw orientation in degrees, as sent by hosts that
// do not publish quaternions.
type Pose struct {
	Roll  float64 `json:"roll"`
	Pitch float64 `json:"pitch"`
	Yaw   float64 `json:"yaw"`
}

// Vector is a 3-D vector, used for rotation axes.
type Vector struct {
	X, Y, Z float64
}

// Rotation is a unit quaternion. All constructors normalize their input;
// the zero value behaves as the identity.
type Rotation struct {
	q quat.Number
}

// Source is anything that can provide rotations over time.
type Source interface {
	Next() (Rotation, error)
}

// Identity returns the rotation that does nothing.
func Identity() Rotation {
	return Rotation{q: quat.Number{Real: 1}}
}

// FromQuaternion builds a rotation from w, x, y, z components.
// A zero-length quaternion yields the identity.
func FromQuaternion(w, x, y, z float64) Rotation {
	return normalized(quat.Number{Real: w, Imag: x, Jmag: y, Kmag: z})
}

// FromAxisAngle builds a rotation of angle radians about axis.
func FromAxisAngle(axis Vector, angle float64) Rotation {
	n := math.Sqrt(axis.X*axis.X + axis.Y*axis.Y + axis.Z*axis.Z)
	if n == 0 {
		return Identity()
	}
	s := math.Sin(angle/2) / n
	return normalized(quat.Number{
		Real: math.Cos(angle / 2),
		Imag: axis.X * s,
		Jmag: axis.Y * s,
		Kmag: axis.Z * s,
	})
}

// FromPose converts roll (X), pitch (Y) and yaw (Z) in degrees into a
// rotation using the intrinsic Z-Y-X convention.
func FromPose(p Pose) Rotation {
	roll := FromAxisAngle(Vector{X: 1}, p.Roll*math.Pi/180)
	pitch := FromAxisAngle(Vector{Y: 1}, p.Pitch*math.Pi/180)
	yaw := FromAxisAngle(Vector{Z: 1}, p.Yaw*math.Pi/180)
	return yaw.Mul(pitch).Mul(roll)
}

func normalized(q quat.Number) Rotation {
	n := quat.Abs(q)
	if n == 0 || math.IsNaN(n) || math.IsInf(n, 0) {
		return Identity()
	}
	return Rotation{q: quat.Scale(1/n, q)}
}

// Mul returns r*o: o applied first, then r.
func (r Rotation) Mul(o Rotation) Rotation {
	return normalized(quat.Mul(r.quat(), o.quat()))
}

// Inverse returns the opposite rotation.
func (r Rotation) Inverse() Rotation {
	return Rotation{q: quat.Conj(r.quat())}
}

// Quaternion returns the w, x, y, z components.
func (r Rotation) Quaternion() (w, x, y, z float64) {
	q := r.quat()
	return q.Real, q.Imag, q.Jmag, q.Kmag
}

// AxisAngle decomposes the rotation into a unit axis and an angle in
// [0, 2π]. The quaternion sign is not canonicalized, so the same physical
// rotation may come back as (axis, θ) or (-axis, 2π-θ). The identity
// reports the +Z axis with angle 0.
func (r Rotation) AxisAngle() (Vector, float64) {
	q := r.quat()
	s := math.Sqrt(q.Imag*q.Imag + q.Jmag*q.Jmag + q.Kmag*q.Kmag)
	if s < 1e-9 {
		return Vector{Z: 1}, 0
	}
	angle := 2 * math.Atan2(s, q.Real)
	return Vector{X: q.Imag / s, Y: q.Jmag / s, Z: q.Kmag / s}, angle
}

// quat maps the zero value onto the identity so an uninitialized Rotation
// field behaves as "no rotation".
func (r Rotation) quat() quat.Number {
	if r.q == (quat.Number{}) {
		return quat.Number{Real: 1}
	}
	return r.q
}
