// Package config loads the YAML configuration file shared by the
// command-line tools.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/malike-rnd/cl7206c2-rfid/pkg/inventory"
	"github.com/malike-rnd/cl7206c2-rfid/pkg/session"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "250ms" or "3s". Bare integers are nanoseconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var n int64
	if err := value.Decode(&n); err != nil {
		return fmt.Errorf("invalid duration %q", value.Value)
	}
	*d = Duration(n)
	return nil
}

func (d Duration) std() time.Duration { return time.Duration(d) }

// Config is the root configuration.
type Config struct {
	Reader    ReaderConfig    `yaml:"reader"`
	Inventory InventoryConfig `yaml:"inventory"`
	Log       LogConfig       `yaml:"log"`
}

// ReaderConfig configures the reader connection.
type ReaderConfig struct {
	// Addr is the reader's TCP address (host:port).
	Addr string `yaml:"addr"`

	DialTimeout       Duration `yaml:"dial_timeout"`
	KeepaliveInterval Duration `yaml:"keepalive_interval"`
	LivenessWindow    Duration `yaml:"liveness_window"`

	// DisableKeepalive turns keepalive frames off for firmware that
	// mishandles them.
	DisableKeepalive bool `yaml:"disable_keepalive"`

	DisableReconnect bool `yaml:"disable_reconnect"`
}

// InventoryConfig configures tag processing.
type InventoryConfig struct {
	DedupWindow Duration `yaml:"dedup_window"`
	Buffer      int      `yaml:"buffer"`
}

// LogConfig configures operational and protocol logging.
type LogConfig struct {
	// Level is the slog level: debug, info, warn, error.
	Level string `yaml:"level"`

	// CaptureFile is the protocol capture path (.rlog). Empty disables
	// file capture.
	CaptureFile string `yaml:"capture_file"`

	// CaptureConsole mirrors protocol events to the console logger.
	CaptureConsole bool `yaml:"capture_console"`
}

// Default returns the built-in defaults: a reader at its factory
// address, 5-second dedup, info-level logging.
func Default() *Config {
	return &Config{
		Reader: ReaderConfig{
			Addr:              "192.168.1.116:9090",
			DialTimeout:       Duration(5 * time.Second),
			KeepaliveInterval: Duration(session.DefaultKeepaliveInterval),
			LivenessWindow:    Duration(session.DefaultLivenessWindow),
		},
		Inventory: InventoryConfig{
			DedupWindow: Duration(5 * time.Second),
			Buffer:      256,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML config file over the defaults. An empty path
// returns the defaults unchanged.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// SessionConfig translates the reader section into a session config.
func (c *Config) SessionConfig() session.Config {
	return session.Config{
		Addr:        c.Reader.Addr,
		DialTimeout: c.Reader.DialTimeout.std(),
		KeepAlive: session.KeepaliveConfig{
			Interval: c.Reader.KeepaliveInterval.std(),
			Window:   c.Reader.LivenessWindow.std(),
			Disabled: c.Reader.DisableKeepalive,
		},
		DisableReconnect: c.Reader.DisableReconnect,
	}
}

// InventoryConfig translates the inventory section into a controller
// config.
func (c *Config) InventoryConfig() inventory.Config {
	return inventory.Config{
		DedupWindow: c.Inventory.DedupWindow.std(),
		Buffer:      c.Inventory.Buffer,
	}
}
