// Package settings persists display state between sessions: color
// scheme, scroll speed, processing toggles, gain and marker slots.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/sdrtools/heatwave/internal/control"
	"github.com/sdrtools/heatwave/internal/dsp"
	"github.com/sdrtools/heatwave/internal/render"
	"github.com/sdrtools/heatwave/internal/spectrum"
)

// ErrCorrupt indicates the settings file could not be parsed. Load
// still returns usable defaults alongside it.
var ErrCorrupt = errors.New("corrupt settings file")

// Marker is a persisted marker slot.
type Marker struct {
	Frequency float64 `yaml:"frequency"`
}

// Settings is the persisted display state.
type Settings struct {
	ColorScheme   string    `yaml:"colorScheme"`
	ScrollSpeed   float64   `yaml:"scrollSpeed"`
	AGCEnabled    bool      `yaml:"agcEnabled"`
	PeakHold      bool      `yaml:"peakHold"`
	AveragingMode string    `yaml:"averagingMode"`
	AveragingWin  int       `yaml:"averagingWindow"`
	AveragingWkt  float64   `yaml:"averagingWeight"`
	AutoScale     bool      `yaml:"autoScale"`
	AutoExport    bool      `yaml:"autoExport"`
	Gain          float64   `yaml:"gain"`
	CursorFreq    float64   `yaml:"cursorFrequency"`
	Markers       []*Marker `yaml:"markers"`
}

// Default returns the settings used when no file exists.
func Default() *Settings {
	return &Settings{
		ColorScheme:   string(render.SchemeDefault),
		ScrollSpeed:   4,
		AGCEnabled:    true,
		AveragingMode: string(dsp.AveragingOff),
		AveragingWin:  5,
		AveragingWkt:  0.5,
		AutoScale:     true,
		Gain:          28,
		Markers:       make([]*Marker, control.MarkerSlots),
	}
}

// Load reads settings from path. A missing file yields defaults with no
// error; an unreadable or unparsable file yields defaults and an error
// wrapping ErrCorrupt so the caller can warn and continue.
func Load(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	if err != nil {
		return Default(), fmt.Errorf("%w: %w", ErrCorrupt, err)
	}

	s := Default()
	if err := yaml.Unmarshal(data, s); err != nil {
		return Default(), fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	s.normalize()
	return s, nil
}

// Save writes settings to path, creating parent directories as needed.
func (s *Settings) Save(path string) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating settings directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing settings: %w", err)
	}
	return nil
}

func (s *Settings) normalize() {
	if s.ScrollSpeed <= 0 {
		s.ScrollSpeed = Default().ScrollSpeed
	}
	if s.AveragingWin <= 0 {
		s.AveragingWin = Default().AveragingWin
	}
	if s.AveragingWkt <= 0 || s.AveragingWkt > 1 {
		s.AveragingWkt = Default().AveragingWkt
	}
	for len(s.Markers) < control.MarkerSlots {
		s.Markers = append(s.Markers, nil)
	}
	s.Markers = s.Markers[:control.MarkerSlots]
}

// Apply copies persisted values onto live display state.
func (s *Settings) Apply(state *control.State) {
	state.Scheme = render.Scheme(s.ColorScheme)
	state.ScrollSpeed = s.ScrollSpeed
	state.AGCEnabled = s.AGCEnabled
	state.PeakHold = s.PeakHold
	state.Averaging = dsp.Averaging{
		Mode:   dsp.AveragingMode(s.AveragingMode),
		Window: s.AveragingWin,
		Weight: s.AveragingWkt,
	}
	state.AutoScale = s.AutoScale
	state.AutoExport = s.AutoExport
	state.Gain = s.Gain
	if s.CursorFreq > 0 {
		state.CursorFreq = s.CursorFreq
	}
	for i, m := range s.Markers {
		if i >= control.MarkerSlots {
			break
		}
		if m == nil {
			continue
		}
		state.Markers[i] = &spectrum.Marker{Frequency: m.Frequency}
	}
}

// Capture copies live display state into a persistable form.
func Capture(state *control.State) *Settings {
	s := &Settings{
		ColorScheme:   string(state.Scheme),
		ScrollSpeed:   state.ScrollSpeed,
		AGCEnabled:    state.AGCEnabled,
		PeakHold:      state.PeakHold,
		AveragingMode: string(state.Averaging.Mode),
		AveragingWin:  state.Averaging.Window,
		AveragingWkt:  state.Averaging.Weight,
		AutoScale:     state.AutoScale,
		AutoExport:    state.AutoExport,
		Gain:          state.Gain,
		CursorFreq:    state.CursorFreq,
		Markers:       make([]*Marker, control.MarkerSlots),
	}
	for i, m := range state.Markers {
		if m != nil {
			s.Markers[i] = &Marker{Frequency: m.Frequency}
		}
	}
	return s
}
