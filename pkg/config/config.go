package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the host-side configuration of a cell module node.
type Config struct {
	Serial   SerialConfig   `yaml:"serial"`
	Protocol ProtocolConfig `yaml:"protocol"`
	Storage  StorageConfig  `yaml:"storage"`
	Control  ControlConfig  `yaml:"control"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Sim      SimConfig      `yaml:"sim"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

// ProtocolConfig selects the wire protocol generation.
type ProtocolConfig struct {
	Version string        `yaml:"version"` // "v4" or "legacy"
	Timeout time.Duration `yaml:"timeout"` // Controller reply timeout
}

// StorageConfig describes the emulated EEPROM.
type StorageConfig struct {
	File   string `yaml:"file"` // Empty keeps the EEPROM in memory
	Size   int    `yaml:"size"`
	Offset int    `yaml:"offset"`
}

// ControlConfig contains control loop timing.
type ControlConfig struct {
	CyclePeriod      time.Duration `yaml:"cycle_period"` // Awake control cycle
	WatchdogInterval time.Duration `yaml:"watchdog_interval"`
	SleepTimeout     time.Duration `yaml:"sleep_timeout"` // Watchdog period while asleep
}

// LoggingConfig contains logger settings.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // "console" or "json"
	File       string `yaml:"file"`   // Empty logs to stderr
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// MetricsConfig contains Prometheus exporter settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
	Path    string `yaml:"path"`
}

// SimConfig contains simulated cell configuration.
type SimConfig struct {
	CellVoltage         float64       `yaml:"cell_voltage"`          // Initial cell voltage (mV)
	Ambient             float64       `yaml:"ambient"`               // Ambient temperature (C)
	ExternalConnected   bool          `yaml:"external_connected"`    // External thermistor fitted
	LoadResistance      float64       `yaml:"load_resistance"`       // Bypass load (Ohm)
	LoadCoupling        float64       `yaml:"load_coupling"`         // Temperature rise per Watt (C/W)
	ThermalTimeConstant time.Duration `yaml:"thermal_time_constant"` // Load heating lag
	ChargeRate          float64       `yaml:"charge_rate"`           // mV per second
	DrainRate           float64       `yaml:"drain_rate"`            // mV per second at full duty
	VoltOffset          uint16        `yaml:"volt_offset"`           // Must match the module calibration
	VoltReference       uint16        `yaml:"volt_reference"`
	InternalBeta        uint16        `yaml:"internal_beta"`
	ExternalBeta        uint16        `yaml:"external_beta"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Port: "/dev/ttyUSB0",
			Baud: 2400,
		},
		Protocol: ProtocolConfig{
			Version: "v4",
			Timeout: 500 * time.Millisecond,
		},
		Storage: StorageConfig{
			Size:   512,
			Offset: 0x10,
		},
		Control: ControlConfig{
			CyclePeriod:      333 * time.Millisecond,
			WatchdogInterval: 2 * time.Second,
			SleepTimeout:     8 * time.Second,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 3,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			Addr: ":9100",
			Path: "/metrics",
		},
		Sim: SimConfig{
			CellVoltage:         3900,
			Ambient:             25,
			ExternalConnected:   true,
			LoadResistance:      2.667,
			LoadCoupling:        12,
			ThermalTimeConstant: 30 * time.Second,
			ChargeRate:          0.5,
			DrainRate:           2,
			VoltOffset:          2210,
			VoltReference:       2,
			InternalBeta:        4150,
			ExternalBeta:        4150,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			// File doesn't exist, return defaults
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks values that have no usable default.
func (c *Config) Validate() error {
	switch c.Protocol.Version {
	case "v4", "legacy":
	default:
		return fmt.Errorf("unknown protocol version %q", c.Protocol.Version)
	}
	if c.Storage.Offset < 0 || c.Storage.Offset+2 > c.Storage.Size {
		return fmt.Errorf("storage offset %d does not fit in %d bytes", c.Storage.Offset, c.Storage.Size)
	}
	return nil
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.Baud == 0 {
		c.Serial.Baud = def.Serial.Baud
	}

	if c.Protocol.Version == "" {
		c.Protocol.Version = def.Protocol.Version
	}
	if c.Protocol.Timeout == 0 {
		c.Protocol.Timeout = def.Protocol.Timeout
	}

	if c.Storage.Size == 0 {
		c.Storage.Size = def.Storage.Size
	}

	if c.Control.CyclePeriod == 0 {
		c.Control.CyclePeriod = def.Control.CyclePeriod
	}
	if c.Control.WatchdogInterval == 0 {
		c.Control.WatchdogInterval = def.Control.WatchdogInterval
	}
	if c.Control.SleepTimeout == 0 {
		c.Control.SleepTimeout = def.Control.SleepTimeout
	}

	if c.Logging.Level == "" {
		c.Logging.Level = def.Logging.Level
	}
	if c.Logging.Format == "" {
		c.Logging.Format = def.Logging.Format
	}

	if c.Metrics.Addr == "" {
		c.Metrics.Addr = def.Metrics.Addr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = def.Metrics.Path
	}

	if c.Sim.LoadResistance == 0 {
		c.Sim.LoadResistance = def.Sim.LoadResistance
	}
	if c.Sim.ThermalTimeConstant == 0 {
		c.Sim.ThermalTimeConstant = def.Sim.ThermalTimeConstant
	}
	if c.Sim.VoltReference == 0 {
		c.Sim.VoltReference = def.Sim.VoltReference
	}
	if c.Sim.InternalBeta == 0 {
		c.Sim.InternalBeta = def.Sim.InternalBeta
	}
	if c.Sim.ExternalBeta == 0 {
		c.Sim.ExternalBeta = def.Sim.ExternalBeta
	}
}
