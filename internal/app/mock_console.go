// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/relabs-tech/motor_observer/internal/bridge"
	"github.com/relabs-tech/motor_observer/internal/frame"
	"github.com/relabs-tech/motor_observer/internal/loop"
)

// printSender decodes outgoing frames and prints them instead of sending.
type printSender struct {
	w io.Writer
}

func (p printSender) Send(b []byte) error {
	f, err := frame.Decode(b)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.w, formatFrame(f))
	return err
}

// RunMockConsole drives the bridge service with the mock host and prints
// each frame it would send. No broker, network or config file is needed.
func RunMockConsole() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return runMockConsole(ctx, os.Stdout, frame.Slots, 30, 100*time.Millisecond)
}

func runMockConsole(ctx context.Context, w io.Writer, joints int, degPerSec float64, interval time.Duration) error {
	lp := loop.New(0)
	rt := newBridgeRuntime(lp, printSender{w: w}, bridge.DefaultOptions(), joints)
	defer rt.svc.Close()

	feed := newMockFeed(joints, degPerSec)
	t := lp.Every(interval, func() {
		placements, err := feed.Next()
		if err != nil {
			fmt.Fprintf(w, "mock: %v\n", err)
			return
		}
		for _, p := range placements {
			rt.applyPlacement(p)
		}
	})
	defer t.Stop()

	if err := lp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
