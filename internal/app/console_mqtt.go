package app

import (
	"encoding/json"
	"fmt"
	"log"
	"math"
	"os"
	"os/signal"
	"strings"
	"syscall"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motor_observer/internal/bridge"
	"github.com/relabs-tech/motor_observer/internal/config"
	"github.com/relabs-tech/motor_observer/internal/frame"
)

func formatFrame(f frame.StateFrame) string {
	var b strings.Builder
	b.WriteString("[FRAME]")
	for i, m := range f.Motors {
		flag := "off"
		if m.Enabled {
			flag = "on "
		}
		fmt.Fprintf(&b, "  M%d %s %7.2f°", i, flag, float64(m.Angle)*180/math.Pi)
	}
	return b.String()
}

func formatStatus(st bridge.Status) string {
	return fmt.Sprintf(
		"[STAT]  observers=%d sent=%d suppressed=%d recording=%t frames=%d send=%t",
		len(st.Observers), st.Broadcast.Sent, st.Broadcast.Suppressed, st.Recording, st.RecordedFrames, st.ImmediateSend,
	)
}

// RunConsoleMQTT prints every frame and status message the bridge
// publishes.
func RunConsoleMQTT() error {
	cfg := config.Get()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDConsole)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return token.Error()
	}
	log.Printf("console: connected to MQTT broker at %s", cfg.MQTTBroker)

	// Subscribe to frames
	frameToken := client.Subscribe(cfg.TopicFrames, 0, func(_ mqtt.Client, msg mqtt.Message) {
		var f frame.StateFrame
		if err := json.Unmarshal(msg.Payload(), &f); err != nil {
			log.Printf("console: frame unmarshal error: %v", err)
			return
		}
		fmt.Println(formatFrame(f))
	})
	frameToken.Wait()
	if frameToken.Error() != nil {
		return frameToken.Error()
	}
	log.Printf("console: subscribed to %s", cfg.TopicFrames)

	if cfg.TopicStatus != "" {
		statusToken := client.Subscribe(cfg.TopicStatus, 0, func(_ mqtt.Client, msg mqtt.Message) {
			var st bridge.Status
			if err := json.Unmarshal(msg.Payload(), &st); err != nil {
				log.Printf("console: status unmarshal error: %v", err)
				return
			}
			fmt.Println(formatStatus(st))
		})
		statusToken.Wait()
		if statusToken.Error() != nil {
			return statusToken.Error()
		}
		log.Printf("console: subscribed to %s", cfg.TopicStatus)
	}

	// Wait for Ctrl+C
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Println("console: shutting down")
	client.Disconnect(250)
	return nil
}
