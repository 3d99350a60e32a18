// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motor_observer/internal/config"
	"github.com/relabs-tech/motor_observer/internal/observer"
	"github.com/relabs-tech/motor_observer/internal/orientation"
)

// mockFeed stands in for a CAD host: every joint turns about one local
// axis, and joints past the third also wobble.
type mockFeed struct {
	sources []orientation.Source
}

func newMockFeed(count int, degPerSec float64) *mockFeed {
	axes := []orientation.Vector{{Z: 1}, {X: 1}, {Y: 1}}
	f := &mockFeed{}
	for i := 0; i < count; i++ {
		base := orientation.FromPose(orientation.Pose{Roll: 15 * float64(i), Yaw: 40 * float64(i)})
		axis := axes[i%len(axes)]
		rate := degPerSec * float64(i+1)
		if i < len(axes) {
			f.sources = append(f.sources, orientation.NewMockSource(base, axis, rate))
		} else {
			f.sources = append(f.sources, orientation.NewWobblingMockSource(base, axis, rate))
		}
	}
	return f
}

// Next returns the current placement of every mock joint.
func (f *mockFeed) Next() ([]Placement, error) {
	out := make([]Placement, 0, len(f.sources))
	for i, src := range f.sources {
		r, err := src.Next()
		if err != nil {
			return nil, fmt.Errorf("mock joint %d: %w", i, err)
		}
		out = append(out, Placement{ID: observer.ID(i), Rotation: quaternionOf(r)})
	}
	return out, nil
}

// RunMockHost publishes mock joint placements to the placement topic.
func RunMockHost() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDMockHost)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("mock host: MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("mock host: connected to MQTT broker at %s", cfg.MQTTBroker)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	feed := newMockFeed(cfg.ObserverCount, cfg.MockDegPerSecond)
	ticker := time.NewTicker(time.Duration(cfg.MockInterval) * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("mock host: shutting down")
			return nil
		case <-ticker.C:
		}

		placements, err := feed.Next()
		if err != nil {
			log.Printf("mock host: %v", err)
			continue
		}
		for _, p := range placements {
			payload, err := json.Marshal(p)
			if err != nil {
				log.Printf("mock host: json marshal error: %v", err)
				continue
			}
			client.Publish(cfg.TopicPlacement, 0, false, payload)
		}
	}
}
