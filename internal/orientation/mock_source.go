// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package orientation

import (
	"math"
	"time"
)

type mockSource struct {
	start    time.Time
	axis     Vector
	rate     float64 // rad/s
	base     Rotation
	now      func() time.Time
	wobbling bool
}

// NewMockSource creates a mock source that turns steadily about axis at
// degPerSec, starting from base.
func NewMockSource(base Rotation, axis Vector, degPerSec float64) Source {
	return &mockSource{
		start: time.Now(),
		axis:  axis,
		rate:  degPerSec * math.Pi / 180,
		base:  base,
		now:   time.Now,
	}
}

// NewWobblingMockSource is like NewMockSource but adds a slow tilt about
// a second axis, so the motion is not confined to a single axis.
func NewWobblingMockSource(base Rotation, axis Vector, degPerSec float64) Source {
	s := NewMockSource(base, axis, degPerSec).(*mockSource)
	s.wobbling = true
	return s
}

func (m *mockSource) Next() (Rotation, error) {
	elapsed := m.now().Sub(m.start).Seconds()

	r := m.base.Mul(FromAxisAngle(m.axis, math.Mod(elapsed*m.rate, 2*math.Pi)))
	if m.wobbling {
		tilt := Vector{X: m.axis.Y, Y: m.axis.Z, Z: m.axis.X}
		r = r.Mul(FromAxisAngle(tilt, 0.3*math.Sin(elapsed*0.7)))
	}
	return r, nil
}
