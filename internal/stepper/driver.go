// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package stepper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/relabs-tech/motor_observer/internal/frame"
)

// PinNames are the GPIO names of one DRV8825.
type PinNames struct {
	Enable string
	Dir    string
	Step   string
}

// DefaultPins is the Raspberry Pi wiring of the three drivers.
var DefaultPins = [frame.Slots]PinNames{
	{Enable: "GPIO4", Dir: "GPIO5", Step: "GPIO6"},
	{Enable: "GPIO20", Dir: "GPIO12", Step: "GPIO26"},
	{Enable: "GPIO17", Dir: "GPIO27", Step: "GPIO22"},
}

// Motor is the set of output pins of one DRV8825.
type Motor struct {
	Enable gpio.PinOut // active low
	Dir    gpio.PinOut
	Step   gpio.PinOut
}

type motorState struct {
	step gpio.Level
	dir  gpio.Level
}

// Driver toggles the STEP pin of each motor once per microstep.
type Driver struct {
	motors [frame.Slots]Motor
	state  [frame.Slots]motorState
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewGPIODriver initializes the periph host and resolves the pins by name.
func NewGPIODriver(pins [frame.Slots]PinNames) (*Driver, error) {
	if _, err := host.Init(); err != nil {
		return nil, fmt.Errorf("stepper: periph host init: %w", err)
	}

	var motors [frame.Slots]Motor
	for i, p := range pins {
		var err error
		if motors[i], err = resolve(p); err != nil {
			return nil, fmt.Errorf("stepper: motor %d: %w", i, err)
		}
	}
	return NewDriver(motors)
}

func resolve(p PinNames) (Motor, error) {
	var m Motor
	for _, pin := range []struct {
		name string
		out  *gpio.PinOut
	}{
		{p.Enable, &m.Enable},
		{p.Dir, &m.Dir},
		{p.Step, &m.Step},
	} {
		io := gpioreg.ByName(pin.name)
		if io == nil {
			return Motor{}, fmt.Errorf("pin %q not found", pin.name)
		}
		*pin.out = io
	}
	return m, nil
}

// NewDriver drives already resolved pins. All motors start disabled with
// STEP and DIR low.
func NewDriver(motors [frame.Slots]Motor) (*Driver, error) {
	d := &Driver{motors: motors, sleep: sleepCtx}
	for i, m := range motors {
		if err := errors.Join(m.Enable.Out(gpio.High), m.Step.Out(gpio.Low), m.Dir.Out(gpio.Low)); err != nil {
			return nil, fmt.Errorf("stepper: motor %d: set initial levels: %w", i, err)
		}
	}
	return d, nil
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

// move writes one microstep: every motor whose position changes flips its
// STEP level, and the enable and direction pins are refreshed.
func (d *Driver) move(enabled [frame.Slots]bool, last, next Position) error {
	for i := range d.motors {
		st := &d.state[i]
		switch diff := next[i] - last[i]; {
		case diff > 0:
			st.dir = gpio.High
			st.step = !st.step
		case diff < 0:
			st.dir = gpio.Low
			st.step = !st.step
		}
		m := d.motors[i]
		en := gpio.High
		if enabled[i] {
			en = gpio.Low
		}
		if err := errors.Join(m.Enable.Out(en), m.Dir.Out(st.dir), m.Step.Out(st.step)); err != nil {
			return fmt.Errorf("stepper: motor %d: %w", i, err)
		}
	}
	return nil
}

// Execute applies the enable flags, then walks the plan's steps with
// Interval between them. It stops early when ctx is cancelled.
func (d *Driver) Execute(ctx context.Context, p Plan) error {
	if len(p.Steps) == 0 {
		return nil
	}
	if err := d.move(p.Enabled, p.Steps[0], p.Steps[0]); err != nil {
		return err
	}
	for i := 1; i < len(p.Steps); i++ {
		if err := d.move(p.Enabled, p.Steps[i-1], p.Steps[i]); err != nil {
			return err
		}
		if err := d.sleep(ctx, p.Interval); err != nil {
			return err
		}
	}
	return nil
}

// Halt disables every motor.
func (d *Driver) Halt() error {
	var errs []error
	for _, m := range d.motors {
		errs = append(errs, m.Enable.Out(gpio.High))
	}
	log.Println("stepper: motors disabled")
	return errors.Join(errs...)
}
