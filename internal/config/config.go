package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration values.
type Config struct {
	// Control channel
	WSListenAddr string
	ServerURL    string // viewer side, e.g. ws://pi:8080/ws

	// Telemetry timing
	TargetPeriodMs      int // rate limiter period
	SamplePollMs        int // device loop tick
	HeartbeatIntervalMs int

	// Sample source: "mock", "imu" or "serial"
	Source string

	// IMU Hardware
	IMUSPIDevice string
	IMUCSPin     string
	// Accelerometer: 0=±2g, 1=±4g, 2=±8g, 3=±16g
	IMUAccelRange byte

	// Serial sample source
	SerialPort string
	SerialBaud int

	// Clock sync (viewer side)
	SyncRounds       int
	SyncResyncRounds int
	SyncTimeoutMs    int
	DriftThresholdMs float64
	OffsetAlpha      float64
	RTTAlpha         float64

	// Datagram channel (viewer side listen address, registered via hello)
	UDPListenAddr string

	// Log router
	LogDir  string
	LogName string

	// Status indication. The SSD1306 driver only supports address 0x3C, so
	// DisplayI2CAddr works as an enable knob: 0 disables the display, 0x3C
	// enables it, anything else is rejected.
	StatusLEDPin      string
	DisplayI2CAddr    uint16
	DisplayIntervalMs int

	// MQTT mirror (optional; empty broker disables it)
	MQTTBroker      string
	MQTTClientID    string
	MQTTClientIDWeb string
	TopicFrame      string
	WebServerPort   int

	// GPS marker
	GPSSerialPort string
	GPSBaudRate   int
}

// Package-level unexported variables for the config singleton. External code
// must use InitGlobal() to set and Get() to read.
var (
	globalConfig *Config
	configOnce   sync.Once
	configMu     sync.RWMutex
)

// Load reads the configuration file and returns a Config struct.
func Load(configPath string) (*Config, error) {
	file, err := os.Open(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	cfg := defaults()
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

// defaults returns a Config pre-filled with the values that have sensible
// hardware-independent defaults.
func defaults() *Config {
	return &Config{
		WSListenAddr:        ":8080",
		TargetPeriodMs:      16,
		SamplePollMs:        2,
		HeartbeatIntervalMs: 500,
		Source:              "mock",
		SerialBaud:          115200,
		SyncRounds:          8,
		SyncResyncRounds:    3,
		SyncTimeoutMs:       500,
		DriftThresholdMs:    80,
		OffsetAlpha:         0.2,
		RTTAlpha:            0.4,
		UDPListenAddr:       ":9900",
		LogDir:              ".",
		LogName:             "attitude",
		DisplayIntervalMs:   250,
		TopicFrame:          "attitude/frame",
		MQTTClientID:        "attitude-streamer",
		MQTTClientIDWeb:     "attitude-web",
		WebServerPort:       8090,
		GPSBaudRate:         9600,
	}
}

// setValue sets a config value based on the key.
func (c *Config) setValue(key, value string) error {
	switch key {
	case "WS_LISTEN_ADDR":
		c.WSListenAddr = value
	case "SERVER_URL":
		c.ServerURL = value

	case "TARGET_PERIOD_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid TARGET_PERIOD_MS %q: %w", value, err)
		}
		c.TargetPeriodMs = v
	case "SAMPLE_POLL_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SAMPLE_POLL_MS %q: %w", value, err)
		}
		c.SamplePollMs = v
	case "HEARTBEAT_INTERVAL_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid HEARTBEAT_INTERVAL_MS %q: %w", value, err)
		}
		c.HeartbeatIntervalMs = v

	case "SOURCE":
		if value != "mock" && value != "imu" && value != "serial" {
			return fmt.Errorf("SOURCE must be mock, imu or serial, got %q", value)
		}
		c.Source = value

	case "IMU_SPI_DEVICE":
		c.IMUSPIDevice = value
	case "IMU_CS_PIN":
		c.IMUCSPin = value
	case "IMU_ACCEL_RANGE":
		rangeVal, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid IMU_ACCEL_RANGE %q: %w", value, err)
		}
		if rangeVal < 0 || rangeVal > 3 {
			return fmt.Errorf("IMU_ACCEL_RANGE must be 0-3 (0=±2g, 1=±4g, 2=±8g, 3=±16g), got %d", rangeVal)
		}
		c.IMUAccelRange = byte(rangeVal)

	case "SERIAL_PORT":
		c.SerialPort = value
	case "SERIAL_BAUD":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SERIAL_BAUD %q: %w", value, err)
		}
		c.SerialBaud = v

	case "SYNC_ROUNDS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SYNC_ROUNDS %q: %w", value, err)
		}
		c.SyncRounds = v
	case "SYNC_RESYNC_ROUNDS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SYNC_RESYNC_ROUNDS %q: %w", value, err)
		}
		c.SyncResyncRounds = v
	case "SYNC_TIMEOUT_MS":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid SYNC_TIMEOUT_MS %q: %w", value, err)
		}
		c.SyncTimeoutMs = v
	case "DRIFT_THRESHOLD_MS":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid DRIFT_THRESHOLD_MS %q: %w", value, err)
		}
		c.DriftThresholdMs = v
	case "OFFSET_ALPHA":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid OFFSET_ALPHA %q: %w", value, err)
		}
		if v <= 0 || v > 1 {
			return fmt.Errorf("OFFSET_ALPHA must be in (0,1], got %v", v)
		}
		c.OffsetAlpha = v
	case "RTT_ALPHA":
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("invalid RTT_ALPHA %q: %w", value, err)
		}
		if v <= 0 || v > 1 {
			return fmt.Errorf("RTT_ALPHA must be in (0,1], got %v", v)
		}
		c.RTTAlpha = v

	case "UDP_LISTEN_ADDR":
		c.UDPListenAddr = value

	case "LOG_DIR":
		c.LogDir = value
	case "LOG_NAME":
		c.LogName = value

	case "STATUS_LED_PIN":
		c.StatusLEDPin = value
	case "DISPLAY_I2C_ADDR":
		addr, err := strconv.ParseUint(value, 0, 16)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_I2C_ADDR %q: %w", value, err)
		}
		c.DisplayI2CAddr = uint16(addr)
	case "DISPLAY_UPDATE_INTERVAL":
		v, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid DISPLAY_UPDATE_INTERVAL %q: %w", value, err)
		}
		c.DisplayIntervalMs = v

	case "MQTT_BROKER":
		c.MQTTBroker = value
	case "MQTT_CLIENT_ID":
		c.MQTTClientID = value
	case "MQTT_CLIENT_ID_WEB":
		c.MQTTClientIDWeb = value
	case "TOPIC_FRAME":
		c.TopicFrame = value
	case "WEB_SERVER_PORT":
		port, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid WEB_SERVER_PORT %q: %w", value, err)
		}
		c.WebServerPort = port

	case "GPS_SERIAL_PORT":
		c.GPSSerialPort = value
	case "GPS_BAUD_RATE":
		rate, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("invalid GPS_BAUD_RATE %q: %w", value, err)
		}
		c.GPSBaudRate = rate

	default:
		return fmt.Errorf("unknown config key: %q", key)
	}

	return nil
}

// validate checks that all required fields are set.
func (c *Config) validate() error {
	if c.WSListenAddr == "" {
		return fmt.Errorf("WS_LISTEN_ADDR is required")
	}
	if c.TargetPeriodMs <= 0 {
		return fmt.Errorf("TARGET_PERIOD_MS must be positive")
	}
	if c.SamplePollMs <= 0 {
		return fmt.Errorf("SAMPLE_POLL_MS must be positive")
	}
	if c.HeartbeatIntervalMs <= 0 {
		return fmt.Errorf("HEARTBEAT_INTERVAL_MS must be positive")
	}
	if c.DisplayIntervalMs <= 0 {
		return fmt.Errorf("DISPLAY_UPDATE_INTERVAL must be positive")
	}
	if c.DisplayI2CAddr != 0 && c.DisplayI2CAddr != 0x3C {
		return fmt.Errorf("DISPLAY_I2C_ADDR must be 0x3C (the only address the SSD1306 driver supports), got 0x%02X", c.DisplayI2CAddr)
	}
	if c.Source == "imu" && (c.IMUSPIDevice == "" || c.IMUCSPin == "") {
		return fmt.Errorf("SOURCE=imu requires IMU_SPI_DEVICE and IMU_CS_PIN")
	}
	if c.Source == "serial" && c.SerialPort == "" {
		return fmt.Errorf("SOURCE=serial requires SERIAL_PORT")
	}
	if c.LogDir == "" || c.LogName == "" {
		return fmt.Errorf("LOG_DIR and LOG_NAME are required")
	}
	return nil
}

// InitGlobal initializes the global configuration from file. Uses sync.Once
// so repeated calls are harmless.
func InitGlobal(configPath string) error {
	var err error
	configOnce.Do(func() {
		configMu.Lock()
		defer configMu.Unlock()
		globalConfig, err = Load(configPath)
	})
	return err
}

// Get returns the global configuration instance. InitGlobal must be called
// first, or this will return nil.
func Get() *Config {
	configMu.RLock()
	defer configMu.RUnlock()
	return globalConfig
}
