package app

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration
type Config struct {
	Settings Settings      `yaml:"settings"`
	Device   DeviceConfig  `yaml:"device"`
	Display  DisplayConfig `yaml:"display"`
	Export   ExportConfig  `yaml:"export"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel  string `yaml:"logLevel"`
	StatePath string `yaml:"statePath"` // persisted display state, empty disables
}

// DeviceConfig represents the tuner configuration
type DeviceConfig struct {
	Simulated   bool          `yaml:"simulated"` // synthetic source, no hardware
	BinPath     string        `yaml:"binPath"`
	DeviceIndex int           `yaml:"deviceIndex"`
	Frequency   float64       `yaml:"frequency"`  // Hz
	SampleRate  float64       `yaml:"sampleRate"` // Hz
	Gain        float64       `yaml:"gain"`       // dB
	PPMError    int           `yaml:"ppmError"`
	FFTSize     int           `yaml:"fftSize"`
	Window      string        `yaml:"window"`
	ReadTimeout time.Duration `yaml:"readTimeout"`

	Averaging AveragingConfig `yaml:"averaging"`
}

// AveragingConfig represents spectrum row blending
type AveragingConfig struct {
	Mode   string  `yaml:"mode"`   // off, window, exponential
	Window int     `yaml:"window"` // row count for window mode
	Weight float64 `yaml:"weight"` // new-row weight for exponential mode
}

// DisplayConfig represents the output surface configuration
type DisplayConfig struct {
	Framebuffer string  `yaml:"framebuffer"`
	FontPath    string  `yaml:"fontPath"`
	ScrollSpeed float64 `yaml:"scrollSpeed"` // rows per second
	History     int     `yaml:"history"`     // waterfall depth in rows, 0 fits the surface
}

// ExportConfig represents export settings
type ExportConfig struct {
	Directory string `yaml:"directory"`
}

// DefaultConfig returns a configuration tuned to the FM broadcast band
// on the first RTL-SDR device.
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:  "info",
			StatePath: "heatwave_state.yaml",
		},
		Device: DeviceConfig{
			Frequency:  100e6,
			SampleRate: 2.048e6,
			Gain:       28,
			FFTSize:    1024,
			Window:     "blackman-harris",
			Averaging: AveragingConfig{
				Mode:   "off",
				Window: 5,
				Weight: 0.5,
			},
		},
		Display: DisplayConfig{
			Framebuffer: "/dev/fb0",
			ScrollSpeed: 4,
		},
		Export: ExportConfig{
			Directory: "exports",
		},
	}
}

// LoadConfig reads the configuration file at path, filling omitted
// fields with defaults.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	switch {
	case c.Device.Frequency <= 0:
		return fmt.Errorf("invalid device frequency %f", c.Device.Frequency)
	case c.Device.SampleRate <= 0:
		return fmt.Errorf("invalid device sample rate %f", c.Device.SampleRate)
	case c.Device.FFTSize <= 0 || c.Device.FFTSize&(c.Device.FFTSize-1) != 0:
		return fmt.Errorf("FFT size %d is not a power of two", c.Device.FFTSize)
	case c.Display.ScrollSpeed <= 0:
		return fmt.Errorf("invalid scroll speed %f", c.Display.ScrollSpeed)
	}

	switch c.Device.Averaging.Mode {
	case "", "off", "window", "exponential":
	default:
		return fmt.Errorf("unknown averaging mode %q", c.Device.Averaging.Mode)
	}
	return nil
}
