// Package stepper turns received motor frames into DRV8825 step pulses.
package stepper

import (
	"fmt"
	"math"
	"time"

	"github.com/relabs-tech/motor_observer/internal/frame"
)

// LevelChangesPerStep is the number of STEP level changes per full step:
// the DRV8825 runs 32 microsteps per step and only the rising edge steps,
// so every microstep takes two toggles.
const LevelChangesPerStep = 64

// Config describes the motors and their speed limits.
type Config struct {
	StepsPerRev  float64
	MaxDegPerSec float64
	MinDegPerSec float64
}

func DefaultConfig() Config {
	return Config{StepsPerRev: 400, MaxDegPerSec: 360, MinDegPerSec: 10}
}

func (c Config) Validate() error {
	if c.StepsPerRev <= 0 {
		return fmt.Errorf("steps per revolution must be positive, got %v", c.StepsPerRev)
	}
	if c.MinDegPerSec <= 0 || c.MaxDegPerSec <= 0 {
		return fmt.Errorf("speed limits must be positive, got min %v max %v", c.MinDegPerSec, c.MaxDegPerSec)
	}
	if c.MinDegPerSec > c.MaxDegPerSec {
		return fmt.Errorf("min speed %v deg/s above max speed %v deg/s", c.MinDegPerSec, c.MaxDegPerSec)
	}
	return nil
}

// UstepsPerDeg is the number of STEP level changes per degree of output.
func (c Config) UstepsPerDeg() float64 {
	return c.StepsPerRev / 360 * LevelChangesPerStep
}

// MinInterval is the per-microstep pause at maximum speed.
func (c Config) MinInterval() time.Duration {
	return time.Duration(float64(time.Second) / (c.MaxDegPerSec * c.UstepsPerDeg()))
}

// MaxInterval is the per-microstep pause at minimum speed.
func (c Config) MaxInterval() time.Duration {
	return time.Duration(float64(time.Second) / (c.MinDegPerSec * c.UstepsPerDeg()))
}

// Tracker unwraps the [0, 2π) angles of consecutive frames into continuous
// angles by counting full revolutions. A jump of more than half a turn
// between two frames is taken as a wrap through zero.
type Tracker struct {
	old  [frame.Slots]float64
	revs [frame.Slots]int
}

// Update returns the continuous angle in radians for every slot.
func (t *Tracker) Update(f frame.StateFrame) [frame.Slots]float64 {
	var total [frame.Slots]float64
	for i, m := range f.Motors {
		a := float64(m.Angle)
		switch d := a - t.old[i]; {
		case d > math.Pi:
			t.revs[i]--
		case d < -math.Pi:
			t.revs[i]++
		}
		t.old[i] = a
		total[i] = float64(t.revs[i])*2*math.Pi + a
	}
	return total
}

// Revolutions is the number of full turns counted per slot.
func (t *Tracker) Revolutions() [frame.Slots]int { return t.revs }

// Position is a microstep count per motor.
type Position [frame.Slots]int

// Line3D walks from one position to another with a 3-D Bresenham line.
// The first element is from and the last is to; consecutive positions
// differ by at most one microstep per motor.
func Line3D(from, to Position) []Position {
	steps := []Position{from}

	// Order the axes so that the one with the largest travel drives the
	// loop; the other two follow with their own error terms.
	var d, s [frame.Slots]int
	for i := range from {
		d[i] = abs(to[i] - from[i])
		s[i] = -1
		if to[i] > from[i] {
			s[i] = 1
		}
	}
	major, a, b := 0, 1, 2
	switch {
	case d[0] >= d[1] && d[0] >= d[2]:
	case d[1] >= d[0] && d[1] >= d[2]:
		major, a, b = 1, 0, 2
	default:
		major, a, b = 2, 1, 0
	}

	p := from
	e1 := 2*d[a] - d[major]
	e2 := 2*d[b] - d[major]
	for p[major] != to[major] {
		p[major] += s[major]
		if e1 >= 0 {
			p[a] += s[a]
			e1 -= 2 * d[major]
		}
		if e2 >= 0 {
			p[b] += s[b]
			e2 -= 2 * d[major]
		}
		e1 += 2 * d[a]
		e2 += 2 * d[b]
		steps = append(steps, p)
	}
	return steps
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

// Plan is one frame's worth of motion.
type Plan struct {
	Enabled  [frame.Slots]bool
	Angles   [frame.Slots]float64 // continuous, radians
	Steps    []Position
	Interval time.Duration
	// Clamped is "min" or "max" when the interval hit a speed limit.
	Clamped string
}

// Distance is the largest single-motor travel in microsteps.
func (p Plan) Distance() int {
	if len(p.Steps) == 0 {
		return 0
	}
	first, last := p.Steps[0], p.Steps[len(p.Steps)-1]
	m := 0
	for i := range first {
		m = max(m, abs(last[i]-first[i]))
	}
	return m
}

// Planner converts frames into step plans, keeping the motor positions
// between frames. It is not safe for concurrent use.
type Planner struct {
	cfg     Config
	tracker Tracker
	current Position
}

func NewPlanner(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

// Current is the position the last plan ends at.
func (p *Planner) Current() Position { return p.current }

// Plan computes the motion towards f. sinceLast is the time since the
// previous frame arrived; queued is how many frames are still waiting and
// shortens the interval so latency does not build up.
func (p *Planner) Plan(f frame.StateFrame, sinceLast time.Duration, queued int) Plan {
	if queued > 1 {
		sinceLast /= time.Duration(queued)
	}

	plan := Plan{Angles: p.tracker.Update(f)}
	var target Position
	for i, m := range f.Motors {
		plan.Enabled[i] = m.Enabled
		target[i] = int(p.cfg.UstepsPerDeg() * plan.Angles[i] * 180 / math.Pi)
	}

	dist := 0
	for i := range target {
		dist = max(dist, abs(target[i]-p.current[i]))
	}
	plan.Interval = sinceLast / time.Duration(dist+1)
	if hi := p.cfg.MaxInterval(); plan.Interval > hi {
		plan.Interval = hi
		plan.Clamped = "min"
	}
	if lo := p.cfg.MinInterval(); plan.Interval < lo {
		plan.Interval = lo
		plan.Clamped = "max"
	}

	plan.Steps = Line3D(p.current, target)
	p.current = target
	return plan
}
