package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/relabs-tech/motor_observer/internal/bridge"
	"github.com/relabs-tech/motor_observer/internal/config"
	"github.com/relabs-tech/motor_observer/internal/frame"
	"github.com/relabs-tech/motor_observer/internal/loop"
	"github.com/relabs-tech/motor_observer/internal/transport"
)

// bridgeRuntime is the in-process host side of the bridge: it keeps the
// placement store and forwards placements to the service. Its methods run
// on the loop.
type bridgeRuntime struct {
	lp    *loop.Loop
	svc   *bridge.Service
	store *PlacementStore
}

func newBridgeRuntime(lp *loop.Loop, sender transport.Sender, opts bridge.Options, observers int) *bridgeRuntime {
	store := NewPlacementStore()
	rt := &bridgeRuntime{
		lp:    lp,
		svc:   bridge.New(store, lp, sender, opts),
		store: store,
	}
	for i := 0; i < observers; i++ {
		rt.svc.CreateObserver()
	}
	return rt
}

// applyPlacement stores p and notifies the service. The first placement
// of an object calibrates its observer.
func (rt *bridgeRuntime) applyPlacement(p Placement) {
	first, err := rt.store.Set(p)
	if err != nil {
		log.Printf("WARNING bridge: %v", err)
		return
	}
	if first {
		err = rt.svc.Calibrate(p.ID)
	} else {
		err = rt.svc.PlacementChanged(p.ID)
	}
	if err != nil {
		log.Printf("WARNING bridge: %v", err)
	}
}

// RunBridge runs the motor observer bridge until interrupted.
func RunBridge() error {
	cfg := config.Get()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	udp, err := transport.DialUDP(cfg.TargetHost, cfg.TargetPort)
	if err != nil {
		return err
	}
	defer udp.Close()
	log.Printf("bridge: sending frames to %s", udp.Address())

	senders := transport.Fanout{udp}
	if cfg.SerialPort != "" {
		serial, err := transport.OpenSerial(cfg.SerialPort, cfg.SerialBaudRate)
		if err != nil {
			log.Printf("WARNING bridge: serial mirror disabled: %v", err)
		} else {
			defer serial.Close()
			senders = append(senders, serial)
			log.Printf("bridge: mirroring frames to %s at %d baud", cfg.SerialPort, cfg.SerialBaudRate)
		}
	}

	lp := loop.New(0)
	rt := newBridgeRuntime(lp, senders, bridge.Options{
		Debounce:        cfg.Debounce(),
		AutoRecalibrate: cfg.AutoRecalibrate,
		ImmediateSend:   cfg.ImmediateSend,
	}, cfg.ObserverCount)
	defer rt.svc.Close()

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientIDBridge)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return fmt.Errorf("bridge: MQTT connect: %w", token.Error())
	}
	defer client.Disconnect(250)
	log.Printf("bridge: connected to MQTT broker at %s", cfg.MQTTBroker)

	rt.svc.OnBroadcast(func(f frame.StateFrame) {
		payload, err := json.Marshal(f)
		if err != nil {
			log.Printf("bridge: json marshal error: %v", err)
			return
		}
		client.Publish(cfg.TopicFrames, 0, false, payload)
	})

	token := client.Subscribe(cfg.TopicPlacement, 0, func(_ mqtt.Client, msg mqtt.Message) {
		p, err := DecodePlacement(msg.Payload())
		if err != nil {
			log.Printf("WARNING bridge: %v", err)
			return
		}
		lp.Post(func() { rt.applyPlacement(p) })
	})
	token.Wait()
	if token.Error() != nil {
		return token.Error()
	}
	log.Printf("bridge: subscribed to MQTT topic %s", cfg.TopicPlacement)

	if cfg.StatusInterval > 0 && cfg.TopicStatus != "" {
		t := lp.Every(time.Duration(cfg.StatusInterval)*time.Millisecond, func() {
			payload, err := json.Marshal(rt.svc.Status())
			if err != nil {
				log.Printf("bridge: json marshal error: %v", err)
				return
			}
			client.Publish(cfg.TopicStatus, 0, true, payload)
		})
		defer t.Stop()
	}

	if cfg.MockHost {
		feed := newMockFeed(cfg.ObserverCount, cfg.MockDegPerSecond)
		t := lp.Every(time.Duration(cfg.MockInterval)*time.Millisecond, func() {
			placements, err := feed.Next()
			if err != nil {
				log.Printf("bridge: %v", err)
				return
			}
			for _, p := range placements {
				rt.applyPlacement(p)
			}
		})
		defer t.Stop()
		log.Printf("bridge: in-process mock host driving %d joints", cfg.ObserverCount)
	}

	if cfg.WebServerPort > 0 {
		web := newWebServer(lp, rt.svc, cfg.ReplayInterval())
		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.WebServerPort),
			Handler: web.routes(),
		}
		go func() {
			log.Printf("web server listening on %s", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("web server error: %v", err)
				stop()
			}
		}()
		defer func() {
			web.close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	log.Println("bridge: running")
	if err := lp.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Println("bridge: shutting down")
	return nil
}
