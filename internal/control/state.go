// Package control holds the shared display state and the keyboard
// state machine mutating it. All mutations happen on the pipeline
// goroutine at cycle boundaries, so State needs no locking.
package control

import (
	"fmt"
	"time"

	"github.com/sdrtools/heatwave/internal/dsp"
	"github.com/sdrtools/heatwave/internal/render"
	"github.com/sdrtools/heatwave/internal/spectrum"
)

const (
	// MarkerSlots is the number of marker slots available.
	MarkerSlots = 5

	messageDuration = 3 * time.Second

	minScrollSpeed = 0.5  // rows per second
	maxScrollSpeed = 60.0 // rows per second
	scrollStep     = 0.5

	fineCursorStep = 1e3 // Hz
	gainStep       = 1.0 // dB
)

// State is the mutable display and analysis configuration shared by the
// pipeline components. The interaction controller is its single writer;
// the pipeline snapshot-reads it once per cycle.
type State struct {
	Scheme      render.Scheme
	ScrollSpeed float64 // rows per second
	ColorMode   int     // 16 or 32
	AGCEnabled  bool
	PeakHold    bool
	Averaging   dsp.Averaging
	AutoScale   bool
	Paused      bool
	AutoExport  bool

	Gain       float64 // dB, manual/AGC merged view
	CursorFreq float64 // Hz
	CursorStep float64 // Hz, coarse step

	FreqStart float64 // Hz
	FreqEnd   float64 // Hz

	Markers     [MarkerSlots]*spectrum.Marker
	Annotations []spectrum.Annotation

	RowCount    int64   // rows pushed since start, advanced by the pipeline
	CursorPower float64 // newest-row power under the cursor, set by the pipeline

	message   string
	messageAt time.Time
}

// SetMessage shows a transient status message.
func (s *State) SetMessage(msg string, now time.Time) {
	s.message = msg
	s.messageAt = now
}

// Message returns the current transient message, or "" once it expired.
func (s *State) Message(now time.Time) string {
	if s.message == "" || now.Sub(s.messageAt) > messageDuration {
		return ""
	}
	return s.message
}

// ClampCursor keeps the cursor inside the displayed frequency range.
func (s *State) ClampCursor() {
	if s.CursorFreq < s.FreqStart {
		s.CursorFreq = s.FreqStart
	}
	if s.CursorFreq > s.FreqEnd {
		s.CursorFreq = s.FreqEnd
	}
}

// StatusLines renders the status panel text for the compositor.
func (s *State) StatusLines() []string {
	run := "RUNNING"
	if s.Paused {
		run = "PAUSED"
	}
	scale := "FIXED"
	if s.AutoScale {
		scale = "AUTO"
	}
	return []string{
		run,
		fmt.Sprintf("%s SCALE", scale),
		fmt.Sprintf("g:Gain: %.1f dB", s.Gain),
		fmt.Sprintf("k:Peak: %s", onOff(s.PeakHold)),
		fmt.Sprintf("v:Avg: %s", onOff(s.Averaging.Mode != dsp.AveragingOff)),
		fmt.Sprintf("a:AGC: %s", onOff(s.AGCEnabled)),
		fmt.Sprintf("t:%s", s.Scheme),
		fmt.Sprintf("w:Speed: %.1f rows/s", s.ScrollSpeed),
		fmt.Sprintf("S:Auto-export: %s", onOff(s.AutoExport)),
	}
}

func onOff(v bool) string {
	if v {
		return "ON"
	}
	return "OFF"
}
