// Package config provides configuration loading for the meterblink daemon.
//
// Configuration is resolved in three layers: hardcoded defaults, an optional
// YAML file, and METERBLINK_* environment variable overrides. Durations in
// the file are plain integers in the unit named by the key.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration for the daemon.
type Config struct {
	GPIO    GPIOConfig    `yaml:"gpio"`
	Camera  CameraConfig  `yaml:"camera"`
	Capture CaptureConfig `yaml:"capture"`
	Attempt AttemptConfig `yaml:"attempt"`
	Web     WebConfig     `yaml:"web"`
	MQTT    MQTTConfig    `yaml:"mqtt"`
	History HistoryConfig `yaml:"history"`
	Logging LoggingConfig `yaml:"logging"`
}

// GPIOConfig names the output line driving the LED in front of the
// meter's light sensor.
type GPIOConfig struct {
	// Line is the periph pin name, e.g. "GPIO21".
	Line string `yaml:"line"`
}

// CameraConfig selects the video device watching the meter display.
type CameraConfig struct {
	Device int `yaml:"device"`
	Width  int `yaml:"width"`
	Height int `yaml:"height"`
}

// CaptureConfig controls evidence recording during a run.
type CaptureConfig struct {
	IntervalSeconds int     `yaml:"interval_seconds"`
	ImageDir        string  `yaml:"image_dir"`
	VideoDir        string  `yaml:"video_dir"`
	VideoFPS        float64 `yaml:"video_fps"`
}

// AttemptConfig bounds the code space and pacing of a run.
type AttemptConfig struct {
	FirstCode    int `yaml:"first_code"`
	LastCode     int `yaml:"last_code"`
	PauseSeconds int `yaml:"pause_seconds"`
}

// WebConfig configures the HTTP control surface.
type WebConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// MQTTConfig configures the optional status publisher.
type MQTTConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Broker   string `yaml:"broker"` // host:port
	ClientID string `yaml:"client_id"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	QoS      int    `yaml:"qos"`
}

// HistoryConfig configures the SQLite run-history store.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

// Default returns the built-in configuration. It matches the wiring the
// service has always assumed: LED on GPIO21, first V4L2 device at 640x480,
// web UI on :5000.
func Default() *Config {
	return &Config{
		GPIO:   GPIOConfig{Line: "GPIO21"},
		Camera: CameraConfig{Device: 0, Width: 640, Height: 480},
		Capture: CaptureConfig{
			IntervalSeconds: 3,
			ImageDir:        "./images",
			VideoDir:        "./videos",
			VideoFPS:        10,
		},
		Attempt: AttemptConfig{
			FirstCode:    0,
			LastCode:     9999,
			PauseSeconds: 3,
		},
		Web: WebConfig{Host: "0.0.0.0", Port: 5000},
		MQTT: MQTTConfig{
			Broker:   "localhost:1883",
			ClientID: "meterblink",
			QoS:      1,
		},
		History: HistoryConfig{Enabled: true, Path: "./data/meterblink.db"},
		Logging: LoggingConfig{Level: "info", Format: "text"},
	}
}

// Load reads configuration from an optional YAML file and applies
// environment overrides. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies METERBLINK_* environment variables on top of
// whatever the file provided.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("METERBLINK_GPIO_LINE"); v != "" {
		cfg.GPIO.Line = v
	}
	if v := os.Getenv("METERBLINK_CAMERA_DEVICE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Camera.Device = n
		}
	}
	if v := os.Getenv("METERBLINK_WEB_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Web.Port = n
		}
	}
	if v := os.Getenv("METERBLINK_MQTT_BROKER"); v != "" {
		cfg.MQTT.Broker = v
	}
	if v := os.Getenv("METERBLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Username = v
	}
	if v := os.Getenv("METERBLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Password = v
	}
	if v := os.Getenv("METERBLINK_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("METERBLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.GPIO.Line == "" {
		errs = append(errs, "gpio.line is required")
	}
	if c.Camera.Width <= 0 || c.Camera.Height <= 0 {
		errs = append(errs, "camera.width and camera.height must be positive")
	}
	if c.Capture.IntervalSeconds <= 0 {
		errs = append(errs, "capture.interval_seconds must be positive")
	}
	if c.Capture.VideoFPS <= 0 {
		errs = append(errs, "capture.video_fps must be positive")
	}
	if c.Attempt.FirstCode < 0 || c.Attempt.LastCode > 9999 || c.Attempt.FirstCode > c.Attempt.LastCode {
		errs = append(errs, "attempt code range must satisfy 0 <= first_code <= last_code <= 9999")
	}
	if c.Web.Port < 1 || c.Web.Port > 65535 {
		errs = append(errs, "web.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}
	return nil
}

// CaptureInterval returns the capture cadence as a Duration.
func (c *Config) CaptureInterval() time.Duration {
	return time.Duration(c.Capture.IntervalSeconds) * time.Second
}

// InterCodePause returns the pause between code attempts as a Duration.
func (c *Config) InterCodePause() time.Duration {
	return time.Duration(c.Attempt.PauseSeconds) * time.Second
}

// ListenAddr returns the web server bind address.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Web.Host, c.Web.Port)
}
