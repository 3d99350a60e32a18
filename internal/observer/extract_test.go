package observer

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/relabs-tech/motor_observer/internal/orientation"
)

const angleEps = 1e-5

func TestExtract_PositiveAxes(t *testing.T) {
	for _, tc := range []struct {
		axis orientation.Vector
		want Axis
	}{
		{orientation.Vector{X: 1}, AxisX},
		{orientation.Vector{Y: 1}, AxisY},
		{orientation.Vector{Z: 1}, AxisZ},
	} {
		for _, theta := range []float64{0.1, 1, math.Pi / 2, 3} {
			res := Extract(orientation.FromAxisAngle(tc.axis, theta), false)
			assert.True(t, res.Valid)
			assert.Equal(t, tc.want, res.Axis)
			assert.False(t, res.Negative)
			assert.InDelta(t, theta, res.Angle, angleEps)
		}
	}
}

func TestExtract_Reversed(t *testing.T) {
	theta := 1.2
	res := Extract(orientation.FromAxisAngle(orientation.Vector{X: 1}, theta), true)
	assert.True(t, res.Valid)
	assert.InDelta(t, 2*math.Pi-theta, res.Angle, angleEps)
}

func TestExtract_NegativeAxis(t *testing.T) {
	theta := 0.7
	rot := orientation.FromAxisAngle(orientation.Vector{X: -1}, theta)

	res := Extract(rot, false)
	assert.True(t, res.Valid)
	assert.True(t, res.Negative)
	assert.Equal(t, AxisX, res.Axis)
	assert.InDelta(t, 2*math.Pi-theta, res.Angle, angleEps)

	res = Extract(rot, true)
	assert.True(t, res.Valid)
	assert.InDelta(t, theta, res.Angle, angleEps)
}

func TestExtract_MultiAxisInvalid(t *testing.T) {
	axes := []orientation.Vector{
		{X: 1, Y: 1, Z: 1},
		{X: 1, Y: 1},
		{Y: 0.98, Z: 0.2},
	}
	for _, axis := range axes {
		res := Extract(orientation.FromAxisAngle(axis, 0.5), false)
		assert.False(t, res.Valid, "axis %+v", axis)
		assert.Equal(t, AxisNone, res.Axis)
	}
}

func TestExtract_NearAxisWithinThreshold(t *testing.T) {
	res := Extract(orientation.FromAxisAngle(orientation.Vector{Z: 1, X: 0.1}, 0.5), false)
	assert.True(t, res.Valid)
	assert.Equal(t, AxisZ, res.Axis)
}

func TestExtract_IdentityIsZero(t *testing.T) {
	res := Extract(orientation.Identity(), false)
	assert.True(t, res.Valid)
	assert.Equal(t, float32(0), res.Angle)

	res = Extract(orientation.Identity(), true)
	assert.True(t, res.Valid)
	assert.Equal(t, float32(0), res.Angle, "2π must wrap to 0")
}

func TestExtract_NeverNegativeOrFullTurn(t *testing.T) {
	for i := 0; i <= 720; i++ {
		theta := float64(i) * math.Pi / 360
		for _, axis := range []orientation.Vector{{Z: 1}, {Z: -1}} {
			for _, rev := range []bool{false, true} {
				res := Extract(orientation.FromAxisAngle(axis, theta), rev)
				if !res.Valid {
					continue
				}
				assert.GreaterOrEqual(t, res.Angle, float32(0))
				assert.Less(t, float64(res.Angle), 2*math.Pi)
			}
		}
	}
}

func TestWrap(t *testing.T) {
	assert.Equal(t, float32(0), wrap(2*math.Pi))
	assert.Equal(t, float32(0), wrap(2*math.Pi-1e-12))
	assert.Equal(t, float32(0), wrap(math.Copysign(0, -1)))
	assert.InDelta(t, 2*math.Pi-0.5, wrap(-0.5), angleEps)
	assert.InDelta(t, 0.5, wrap(4*math.Pi+0.5), angleEps)
}
