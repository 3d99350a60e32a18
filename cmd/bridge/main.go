// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"log"

	"github.com/relabs-tech/motor_observer/internal/app"
	"github.com/relabs-tech/motor_observer/internal/config"
)

func main() {
	log.Println("starting motor-observer bridge (placements → UDP motor frames)")

	// Load configuration
	if err := config.InitGlobal("motor_observer_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	log.Println("Note: placements come from MQTT, or from the built-in mock host when MOCK_HOST=true")

	if err := app.RunBridge(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
