// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"flag"
	"log"

	"github.com/relabs-tech/motor_observer/internal/app"
	"github.com/relabs-tech/motor_observer/internal/config"
)

func main() {
	configPath := flag.String("config", "./motor_observer_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting motor-observer receiver (UDP → DRV8825 stepper drivers)")

	// Load configuration
	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunReceiver(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
