package main

import (
	"log"

	"github.com/relabs-tech/motor_observer/internal/app"
	"github.com/relabs-tech/motor_observer/internal/config"
)

func main() {
	log.Println("starting motor-observer mock host (MQTT placement producer)")

	if err := config.InitGlobal("motor_observer_config.txt"); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	if err := app.RunMockHost(); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
