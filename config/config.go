package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	FormatText  string = "text"
	FormatTable string = "table"
	FormatJSON  string = "json"
	// FormatMarkdown only applies to ping statistics.
	FormatMarkdown string = "markdown"
)

var ErrInvalid = errors.New("InvalidConfig")

// Config holds the entire configuration from the YAML file.
type Config struct {
	Adb      AdbConfig     `yaml:"adb" json:"adb"`
	Serial   string        `yaml:"serial" json:"serial"`
	LogLevel string        `yaml:"log_level" json:"log_level"`
	Format   string        `yaml:"format" json:"format"`
	Info     InfoConfig    `yaml:"info" json:"info"`
	Install  InstallConfig `yaml:"install" json:"install"`
	Ping     PingConfig    `yaml:"ping" json:"ping"`
	Reboot   RebootConfig  `yaml:"reboot" json:"reboot"`
	Camera   CameraConfig  `yaml:"camera" json:"camera"`
}

// AdbConfig locates the adb server.
type AdbConfig struct {
	Host      string `yaml:"host" json:"host"`
	Port      int    `yaml:"port" json:"port"`
	Path      string `yaml:"path" json:"path"`
	AutoStart bool   `yaml:"auto_start" json:"auto_start"`
	// Connect is a host:port to `adb connect` before use, for devices on a TCP transport.
	Connect string `yaml:"connect" json:"connect"`
}

type InfoConfig struct {
	Root bool `yaml:"root" json:"root"`
}

type InstallConfig struct {
	// Dir holds the apks, relative paths resolve against the executable's directory.
	Dir     string        `yaml:"dir" json:"dir"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
}

type PingConfig struct {
	Endpoints   []string `yaml:"endpoints" json:"endpoints"`
	Count       int      `yaml:"count" json:"count"`
	Concurrency int      `yaml:"concurrency" json:"concurrency"`
}

type RebootConfig struct {
	Cycles               int           `yaml:"cycles" json:"cycles"`
	BootWait             time.Duration `yaml:"boot_wait" json:"boot_wait"`
	ReadyTimeout         time.Duration `yaml:"ready_timeout" json:"ready_timeout"`
	Interface            string        `yaml:"interface" json:"interface"`
	ClassifyMode         string        `yaml:"classify_mode" json:"classify_mode"`
	RequireBootCompleted bool          `yaml:"require_boot_completed" json:"require_boot_completed"`
}

type CameraConfig struct {
	Enabled   bool          `yaml:"enabled" json:"enabled"`
	Binary    string        `yaml:"binary" json:"binary"`
	Width     int           `yaml:"width" json:"width"`
	Height    int           `yaml:"height" json:"height"`
	Duration  time.Duration `yaml:"duration" json:"duration"`
	OutputDir string        `yaml:"output_dir" json:"output_dir"`
	Remount   bool          `yaml:"remount" json:"remount"`
}

// Default creates a new config with default values
func Default() *Config {
	return &Config{
		Adb: AdbConfig{
			Host:      "127.0.0.1",
			Port:      5037,
			AutoStart: true,
		},
		LogLevel: "info",
		Format:   FormatText,
		Info:     InfoConfig{Root: true},
		Install: InstallConfig{
			Dir:     "pre-apks",
			Timeout: 5 * time.Minute,
		},
		Ping: PingConfig{
			Endpoints:   []string{"www.baidu.com", "117.157.246.34", "202.63.172.185"},
			Count:       200,
			Concurrency: 1,
		},
		Reboot: RebootConfig{
			Cycles:       100,
			BootWait:     20 * time.Second,
			ReadyTimeout: 3 * time.Minute,
			Interface:    "eth0",
			ClassifyMode: "structural",
		},
		Camera: CameraConfig{
			Enabled:   false,
			Binary:    "bin/v4l2_capture",
			Width:     3860,
			Height:    1920,
			Duration:  30 * time.Second,
			OutputDir: ".",
			Remount:   true,
		},
	}
}

// Load reads filePath on top of the defaults, keys missing from the file keep their default.
func Load(filePath string) (*Config, error) {
	cfg := Default()
	yamlFile, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file '%s': %w", filePath, err)
	}
	if err = yaml.Unmarshal(yamlFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML content from '%s': %w", filePath, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML.
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err = os.WriteFile(filePath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file '%s': %w", filePath, err)
	}
	return nil
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	var problems []string
	check := func(bad bool, format string, args ...any) {
		if bad {
			problems = append(problems, fmt.Sprintf(format, args...))
		}
	}

	check(c.Adb.Port <= 0 || c.Adb.Port > 65535, "adb.port out of range: %d", c.Adb.Port)
	switch c.Format {
	case FormatText, FormatTable, FormatJSON, FormatMarkdown:
	default:
		check(true, "unknown format %q", c.Format)
	}
	check(c.Install.Timeout <= 0, "install.timeout must be positive")
	check(c.Ping.Count < 1, "ping.count must be at least 1, got %d", c.Ping.Count)
	check(c.Ping.Concurrency < 1, "ping.concurrency must be at least 1, got %d", c.Ping.Concurrency)
	check(c.Reboot.Cycles < 1, "reboot.cycles must be at least 1, got %d", c.Reboot.Cycles)
	check(c.Reboot.BootWait < 0, "reboot.boot_wait is negative")
	check(c.Reboot.ReadyTimeout <= 0, "reboot.ready_timeout must be positive")
	check(strings.TrimSpace(c.Reboot.Interface) == "", "reboot.interface is empty")
	switch c.Reboot.ClassifyMode {
	case "", "structural", "substring":
	default:
		check(true, "unknown reboot.classify_mode %q", c.Reboot.ClassifyMode)
	}
	if c.Camera.Enabled {
		check(c.Camera.Width <= 0 || c.Camera.Height <= 0, "camera size must be positive, got %dx%d", c.Camera.Width, c.Camera.Height)
		check(c.Camera.Duration <= 0, "camera.duration must be positive")
		check(c.Camera.Binary == "", "camera.binary is empty")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}
