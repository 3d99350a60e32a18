package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/relabs-tech/motor_observer/internal/config"
	"github.com/relabs-tech/motor_observer/internal/frame"
	"github.com/relabs-tech/motor_observer/internal/stepper"
	"github.com/relabs-tech/motor_observer/internal/transport"
)

type timedFrame struct {
	frame frame.StateFrame
	at    time.Time
}

// executor runs a step plan on the motors.
type executor interface {
	Execute(ctx context.Context, p stepper.Plan) error
}

// ReceiverStatus is what the receiver shows on its display.
type ReceiverStatus struct {
	Frames  uint64
	Dropped uint64
	Last    frame.StateFrame
	Angles  [frame.Slots]float64 // continuous, radians
	At      time.Time
}

type receiverState struct {
	mu sync.RWMutex
	st ReceiverStatus
}

func (s *receiverState) snapshot() ReceiverStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st
}

func (s *receiverState) dropped() {
	s.mu.Lock()
	s.st.Dropped++
	s.mu.Unlock()
}

func (s *receiverState) applied(f timedFrame, p stepper.Plan) {
	s.mu.Lock()
	s.st.Frames++
	s.st.Last = f.frame
	s.st.Angles = p.Angles
	s.st.At = f.at
	s.mu.Unlock()
}

// enqueue hands a received frame to the consumer without blocking the
// socket reader.
func enqueue(queue chan<- timedFrame, state *receiverState) func(frame.StateFrame, time.Time) {
	return func(f frame.StateFrame, at time.Time) {
		select {
		case queue <- timedFrame{frame: f, at: at}:
		default:
			state.dropped()
			log.Println("WARNING receiver: queue full, dropping frame")
		}
	}
}

// consume plans and executes queued frames one at a time until ctx is
// cancelled.
func consume(ctx context.Context, queue chan timedFrame, planner *stepper.Planner, exec executor, state *receiverState, start time.Time) error {
	last := start
	for {
		var f timedFrame
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f = <-queue:
		}

		plan := planner.Plan(f.frame, f.at.Sub(last), len(queue))
		last = f.at
		switch plan.Clamped {
		case "min":
			log.Println("receiver: minimum speed exceeded, correcting")
		case "max":
			log.Println("receiver: maximum speed exceeded, correcting")
		}
		for i, m := range f.frame.Motors {
			log.Printf("receiver: motor %d enabled: %t, angle: %.4f rad", i, m.Enabled, plan.Angles[i])
		}

		if err := exec.Execute(ctx, plan); err != nil {
			if errors.Is(err, context.Canceled) {
				return err
			}
			log.Printf("WARNING receiver: %v", err)
		}
		state.applied(f, plan)
	}
}

// RunReceiver listens for frames and drives the stepper motors.
func RunReceiver() error {
	cfg := config.Get()

	scfg := stepper.Config{
		StepsPerRev:  cfg.StepsPerRev,
		MaxDegPerSec: cfg.MaxDegPerSecond,
		MinDegPerSec: cfg.MinDegPerSecond,
	}
	if err := scfg.Validate(); err != nil {
		return fmt.Errorf("receiver: %w", err)
	}
	log.Printf("receiver: steps per revolution: %v, speed %v-%v deg/s", scfg.StepsPerRev, scfg.MinDegPerSec, scfg.MaxDegPerSec)

	var pins [frame.Slots]stepper.PinNames
	for i, p := range cfg.MotorPins {
		pins[i] = stepper.PinNames{Enable: p[0], Dir: p[1], Step: p[2]}
	}
	driver, err := stepper.NewGPIODriver(pins)
	if err != nil {
		return err
	}
	defer driver.Halt()

	listener, err := transport.Listen(fmt.Sprintf(":%d", cfg.ListenPort))
	if err != nil {
		return err
	}
	defer listener.Close()
	log.Printf("receiver: listening on %v", listener.LocalAddr())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	state := &receiverState{}
	queue := make(chan timedFrame, 256)

	if cfg.DisplayEnabled {
		go func() {
			interval := time.Duration(cfg.DisplayUpdateInterval) * time.Millisecond
			if err := runReceiverDisplay(ctx, state, interval); err != nil {
				log.Printf("WARNING display: %v", err)
			}
		}()
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listener.Run(ctx, enqueue(queue, state))
		stop()
	}()

	err = consume(ctx, queue, stepper.NewPlanner(scfg), driver, state, time.Now())
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	listener.Close()
	if lerr := <-errCh; lerr != nil && !errors.Is(lerr, context.Canceled) && err == nil {
		err = lerr
	}
	log.Println("receiver: terminating, releasing resources")
	return err
}
