package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/relabs-tech/motor_observer/internal/frame"
)

// Config holds all application configuration values.
type Config struct {
	// Bridge
	TargetHost       string
	TargetPort       int
	DebounceMS       int
	AutoRecalibrate  bool
	ImmediateSend    bool
	ReplayIntervalMS int
	ObserverCount    int
	StatusInterval   int // milliseconds

	// Serial mirror, empty port disables it
	SerialPort     string
	SerialBaudRate int

	// MQTT
	MQTTBroker           string
	MQTTClientIDBridge   string
	MQTTClientIDMockHost string
	MQTTClientIDConsole  string

	// Topics
	TopicPlacement string
	TopicFrames    string
	TopicStatus    string

	// Mock host
	MockHost         bool
	MockInterval     int     // milliseconds
	MockDegPerSecond float64 // rotation speed of the mock joints

	// Web Server
	WebServerPort int

	// Receiver
	ListenPort      int
	StepsPerRev     float64
	MaxDegPerSecond float64
	MinDegPerSecond float64
	MotorPins       [frame.Slots][3]string // enable, dir, step

	// Display
	DisplayEnabled        bool
	DisplayUpdateInterval int // milliseconds
}

// Package-level unexported variables for singleton pattern:
//   - globalConfig: only reachable through InitGlobal and Get.
//   - configOnce: ensures InitGlobal() only runs once, even if called multiple times.
//   - configMu: write lock for initialization, read lock for Get().
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Defaults returns the configuration used for keys the file leaves out.
func Defaults() *Config {
	return &Config{
		TargetHost:       "127.0.0.1",
		TargetPort:       frame.Port,
		DebounceMS:       50,
		ImmediateSend:    true,
		ReplayIntervalMS: 50,
		ObserverCount:    frame.Slots,
		StatusInterval:   1000,

		SerialBaudRate: 115200,

		MQTTBroker:           "tcp://localhost:1883",
		MQTTClientIDBridge:   "motor-observer-bridge",
		MQTTClientIDMockHost: "motor-observer-mock-host",
		MQTTClientIDConsole:  "motor-observer-console",

		TopicPlacement: "motor_observer/placement",
		TopicFrames:    "motor_observer/frames",
		TopicStatus:    "motor_observer/status",

		MockInterval:     50,
		MockDegPerSecond: 30,

		WebServerPort: 8080,

		ListenPort:      frame.Port,
		StepsPerRev:     400,
		MaxDegPerSecond: 360,
		MinDegPerSecond: 10,
		MotorPins: [frame.Slots][3]string{
			{"GPIO4", "GPIO5", "GPIO6"},
			{"GPIO20", "GPIO12", "GPIO26"},
			{"GPIO17", "GPIO27", "GPIO22"},
		},

		DisplayUpdateInterval: 200,
	}
}

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := Defaults()
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse KEY=VALUE
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid config line %d: %q", lineNum, line)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		if err := cfg.setValue(key, value); err != nil {
			return nil, fmt.Errorf("config line %d: %w", lineNum, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("error reading config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseInt(key, value string, lo, hi int) (int, error) {
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v < lo || v > hi {
		return 0, fmt.Errorf("%s must be %d-%d, got %d", key, lo, hi, v)
	}
	return v, nil
}

func parseFloat(key, value string) (float64, error) {
	v, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	if v <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %v", key, v)
	}
	return v, nil
}

func parseBool(key, value string) (bool, error) {
	v, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, value, err)
	}
	return v, nil
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	var err error
	switch key {
	// Bridge
	case "TARGET_HOST":
		c.TargetHost = value
	case "TARGET_PORT":
		c.TargetPort, err = parseInt(key, value, 1, 65535)
	case "DEBOUNCE_MS":
		c.DebounceMS, err = parseInt(key, value, 1, 10000)
	case "AUTO_RECALIBRATE":
		c.AutoRecalibrate, err = parseBool(key, value)
	case "IMMEDIATE_SEND":
		c.ImmediateSend, err = parseBool(key, value)
	case "REPLAY_INTERVAL_MS":
		c.ReplayIntervalMS, err = parseInt(key, value, 0, 60000)
	case "OBSERVER_COUNT":
		// more than three is allowed; the extra observers stay out of the frame
		c.ObserverCount, err = parseInt(key, value, 0, 16)
	case "STATUS_INTERVAL":
		c.StatusInterval, err = parseInt(key, value, 0, 3600000)

	// Serial
	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD_RATE":
		c.SerialBaudRate, err = parseInt(key, value, 1, 4000000)

	// MQTT
	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID_BRIDGE":
		c.MQTTClientIDBridge = value
	case "MQTT_CLIENT_ID_MOCK_HOST":
		c.MQTTClientIDMockHost = value
	case "MQTT_CLIENT_ID_CONSOLE":
		c.MQTTClientIDConsole = value

	// Topics
	case "TOPIC_PLACEMENT":
		c.TopicPlacement = value
	case "TOPIC_FRAMES":
		c.TopicFrames = value
	case "TOPIC_STATUS":
		c.TopicStatus = value

	// Mock host
	case "MOCK_HOST":
		c.MockHost, err = parseBool(key, value)
	case "MOCK_INTERVAL":
		c.MockInterval, err = parseInt(key, value, 1, 60000)
	case "MOCK_DEG_PER_SECOND":
		c.MockDegPerSecond, err = parseFloat(key, value)

	// Web Server
	case "WEB_SERVER_PORT":
		c.WebServerPort, err = parseInt(key, value, 0, 65535)

	// Receiver
	case "LISTEN_PORT":
		c.ListenPort, err = parseInt(key, value, 1, 65535)
	case "STEPS_PER_REV":
		c.StepsPerRev, err = parseFloat(key, value)
	case "MAX_DEG_PER_SECOND":
		c.MaxDegPerSecond, err = parseFloat(key, value)
	case "MIN_DEG_PER_SECOND":
		c.MinDegPerSecond, err = parseFloat(key, value)

	// Display
	case "DISPLAY_ENABLED":
		c.DisplayEnabled, err = parseBool(key, value)
	case "DISPLAY_UPDATE_INTERVAL":
		c.DisplayUpdateInterval, err = parseInt(key, value, 10, 60000)

	default:
		return c.setPin(key, value)
	}
	return err
}

// setPin handles MOTOR<n>_<ENABLE|DIR|STEP>_PIN.
func (c *Config) setPin(key, value string) error {
	var motor int
	var role string
	if _, err := fmt.Sscanf(key, "MOTOR%d_%s", &motor, &role); err != nil {
		return fmt.Errorf("unknown config key: %q", key)
	}
	if motor < 0 || motor >= frame.Slots {
		return fmt.Errorf("%s: motor must be 0-%d", key, frame.Slots-1)
	}
	switch role {
	case "ENABLE_PIN":
		c.MotorPins[motor][0] = value
	case "DIR_PIN":
		c.MotorPins[motor][1] = value
	case "STEP_PIN":
		c.MotorPins[motor][2] = value
	default:
		return fmt.Errorf("unknown config key: %q", key)
	}
	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.TargetHost == "" {
		return fmt.Errorf("TARGET_HOST is required")
	}
	if c.MQTTBroker == "" {
		return fmt.Errorf("MQTT_BROKER is required")
	}
	if c.TopicPlacement == "" || c.TopicFrames == "" {
		return fmt.Errorf("TOPIC_PLACEMENT and TOPIC_FRAMES are required")
	}
	if c.MinDegPerSecond > c.MaxDegPerSecond {
		return fmt.Errorf("MIN_DEG_PER_SECOND (%v) above MAX_DEG_PER_SECOND (%v)", c.MinDegPerSecond, c.MaxDegPerSecond)
	}
	for i, pins := range c.MotorPins {
		for _, p := range pins {
			if p == "" {
				return fmt.Errorf("MOTOR%d pins must all be set", i)
			}
		}
	}
	return nil
}

// Debounce is DebounceMS as a duration.
func (c *Config) Debounce() time.Duration {
	return time.Duration(c.DebounceMS) * time.Millisecond
}

// ReplayInterval is ReplayIntervalMS as a duration.
func (c *Config) ReplayInterval() time.Duration {
	return time.Duration(c.ReplayIntervalMS) * time.Millisecond
}

// InitGlobal initializes the global configuration from file.
// Uses sync.Once to ensure this only runs once, even if called multiple times.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance.
// InitGlobal must be called first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
