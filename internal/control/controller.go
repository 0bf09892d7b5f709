package control

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/sdrtools/heatwave/internal/dsp"
	"github.com/sdrtools/heatwave/internal/render"
	"github.com/sdrtools/heatwave/internal/spectrum"
)

// Key is a single raw keystroke from the input reader.
type Key byte

// Mode is the controller's modal state.
type Mode int

const (
	// ModeIdle maps each key to an immediate mutation.
	ModeIdle Mode = iota
	// ModeAnnotating collects free text until Enter (Esc cancels).
	ModeAnnotating
	// ModeExporting drops keys while an export runs.
	ModeExporting
	// ModeJumping collects a frequency in MHz until Enter (Esc cancels).
	ModeJumping
)

// Effect tells the pipeline what side effect a key requires beyond the
// state mutation already applied.
type Effect int

const (
	EffectNone Effect = iota
	EffectQuit
	EffectExport       // run the export collaborator now
	EffectGainChanged  // push State.Gain to the device
	EffectSpeedChanged // re-arm the cadence ticker
	EffectClear        // reset waterfall buffer and trackers
	EffectSaveSettings
)

// Controller is the keyboard state machine. It owns modal text entry
// and translates keys into State mutations plus pipeline effects.
// Handle is only ever called from the pipeline goroutine.
type Controller struct {
	state *State
	mode  Mode
	text  strings.Builder
	clock func() time.Time
}

// WithClock overrides time lookups, for tests.
func WithClock(clock func() time.Time) func(*Controller) {
	return func(c *Controller) { c.clock = clock }
}

// NewController creates a controller mutating the given state.
func NewController(state *State, options ...func(*Controller)) *Controller {
	c := &Controller{state: state, clock: time.Now}
	for _, option := range options {
		option(c)
	}
	return c
}

// Mode returns the current modal state.
func (c *Controller) Mode() Mode { return c.mode }

// PendingText returns the modal entry text typed so far.
func (c *Controller) PendingText() string { return c.text.String() }

// BeginExport moves to ModeExporting; keys are dropped until EndExport.
func (c *Controller) BeginExport() { c.mode = ModeExporting }

// EndExport returns to ModeIdle and reports the export outcome.
func (c *Controller) EndExport(err error) {
	c.mode = ModeIdle
	now := c.clock()
	if err != nil {
		c.state.SetMessage(fmt.Sprintf("Export failed: %s", err), now)
		return
	}
	c.state.SetMessage("Export complete", now)
}

// Handle processes one keystroke and returns the required side effect.
func (c *Controller) Handle(k Key) Effect {
	switch c.mode {
	case ModeExporting:
		return EffectNone
	case ModeAnnotating:
		return c.handleText(k)
	case ModeJumping:
		return c.handleJump(k)
	default:
		return c.handleIdle(k)
	}
}

func (c *Controller) handleText(k Key) Effect {
	now := c.clock()
	switch k {
	case '\r', '\n':
		note := strings.TrimSpace(c.text.String())
		c.text.Reset()
		c.mode = ModeIdle
		if note == "" {
			c.state.SetMessage("Annotation discarded", now)
			return EffectNone
		}
		c.state.Annotations = append(c.state.Annotations, spectrum.Annotation{
			Timestamp: now,
			Frequency: c.state.CursorFreq,
			Row:       c.state.RowCount,
			Power:     c.state.CursorPower,
			Note:      note,
		})
		c.state.SetMessage("Annotation added", now)
		return EffectNone

	case 0x1b: // Esc
		c.text.Reset()
		c.mode = ModeIdle
		c.state.SetMessage("Annotation cancelled", now)
		return EffectNone

	case 0x08, 0x7f: // Backspace
		s := c.text.String()
		if len(s) > 0 {
			c.text.Reset()
			c.text.WriteString(s[:len(s)-1])
		}
		return EffectNone

	default:
		if k >= 0x20 && k < 0x7f {
			c.text.WriteByte(byte(k))
		}
		return EffectNone
	}
}

func (c *Controller) handleJump(k Key) Effect {
	now := c.clock()
	switch k {
	case '\r', '\n':
		entry := strings.TrimSpace(c.text.String())
		c.text.Reset()
		c.mode = ModeIdle
		mhz, err := strconv.ParseFloat(entry, 64)
		if err != nil || mhz <= 0 {
			c.state.SetMessage(fmt.Sprintf("Invalid frequency %q", entry), now)
			return EffectNone
		}
		c.state.CursorFreq = mhz * 1e6
		c.state.ClampCursor()
		c.state.SetMessage(fmt.Sprintf("Cursor: %s", humanFreq(c.state.CursorFreq)), now)
		return EffectNone

	case 0x1b: // Esc
		c.text.Reset()
		c.mode = ModeIdle
		c.state.SetMessage("Jump cancelled", now)
		return EffectNone

	case 0x08, 0x7f: // Backspace
		s := c.text.String()
		if len(s) > 0 {
			c.text.Reset()
			c.text.WriteString(s[:len(s)-1])
		}
		return EffectNone

	default:
		if (k >= '0' && k <= '9') || k == '.' {
			c.text.WriteByte(byte(k))
		}
		return EffectNone
	}
}

func (c *Controller) handleIdle(k Key) Effect {
	s := c.state
	now := c.clock()

	switch {
	case k >= '1' && k <= '5':
		return c.recallMarker(int(k-'1'), now)
	case k >= '6' && k <= '9':
		return c.setMarker(int(k-'6'), now)
	case k == '0':
		return c.setMarker(4, now)
	}

	switch k {
	case 'q':
		return EffectQuit

	case ' ':
		s.Paused = !s.Paused
		if s.Paused {
			s.SetMessage("Scanning paused", now)
		} else {
			s.SetMessage("Scanning resumed", now)
		}

	case 'k':
		s.PeakHold = !s.PeakHold
		s.SetMessage(fmt.Sprintf("Peak hold %s", flag(s.PeakHold)), now)

	case 'v':
		switch s.Averaging.Mode {
		case dsp.AveragingOff:
			s.Averaging.Mode = dsp.AveragingWindow
			if s.Averaging.Window <= 0 {
				s.Averaging.Window = 5
			}
		case dsp.AveragingWindow:
			s.Averaging.Mode = dsp.AveragingExponential
			if s.Averaging.Weight <= 0 || s.Averaging.Weight > 1 {
				s.Averaging.Weight = 0.5
			}
		default:
			s.Averaging.Mode = dsp.AveragingOff
		}
		s.SetMessage(fmt.Sprintf("Averaging: %s", s.Averaging.Mode), now)

	case 'l':
		s.AutoScale = !s.AutoScale
		s.SetMessage(fmt.Sprintf("Auto-scaling %s", flag(s.AutoScale)), now)

	case 'a':
		s.AGCEnabled = !s.AGCEnabled
		s.SetMessage(fmt.Sprintf("AGC %s", flag(s.AGCEnabled)), now)

	case 't':
		s.Scheme = render.NextScheme(s.Scheme)
		s.SetMessage(fmt.Sprintf("Color scheme: %s", s.Scheme), now)

	case 'g':
		s.Gain -= gainStep
		if s.Gain < 0 {
			s.Gain = 0
		}
		s.SetMessage(fmt.Sprintf("Gain: %.1f dB", s.Gain), now)
		return EffectGainChanged

	case 'G':
		s.Gain += gainStep
		s.SetMessage(fmt.Sprintf("Gain: %.1f dB", s.Gain), now)
		return EffectGainChanged

	case 'w':
		s.ScrollSpeed -= scrollStep
		if s.ScrollSpeed < minScrollSpeed {
			s.ScrollSpeed = minScrollSpeed
		}
		s.SetMessage(fmt.Sprintf("Scroll speed: %.1f rows/s", s.ScrollSpeed), now)
		return EffectSpeedChanged

	case 'W':
		s.ScrollSpeed += scrollStep
		if s.ScrollSpeed > maxScrollSpeed {
			s.ScrollSpeed = maxScrollSpeed
		}
		s.SetMessage(fmt.Sprintf("Scroll speed: %.1f rows/s", s.ScrollSpeed), now)
		return EffectSpeedChanged

	case '[':
		s.CursorFreq -= s.CursorStep
		s.ClampCursor()
	case ']':
		s.CursorFreq += s.CursorStep
		s.ClampCursor()
	case '{':
		s.CursorFreq -= s.CursorStep * 2
		s.ClampCursor()
	case '}':
		s.CursorFreq += s.CursorStep * 2
		s.ClampCursor()
	case ',':
		s.CursorFreq -= fineCursorStep
		s.ClampCursor()
	case '.':
		s.CursorFreq += fineCursorStep
		s.ClampCursor()

	case 'n':
		c.mode = ModeAnnotating
		c.text.Reset()

	case 'j':
		c.mode = ModeJumping
		c.text.Reset()

	case 'e':
		return EffectExport

	case 'S':
		s.AutoExport = !s.AutoExport
		s.SetMessage(fmt.Sprintf("Auto-export %s", flag(s.AutoExport)), now)

	case 'c':
		s.SetMessage("Display cleared", now)
		return EffectClear

	case 'y':
		return EffectSaveSettings
	}

	return EffectNone
}

func (c *Controller) recallMarker(slot int, now time.Time) Effect {
	m := c.state.Markers[slot]
	if m == nil {
		c.state.SetMessage(fmt.Sprintf("Marker %d not set", slot+1), now)
		return EffectNone
	}
	c.state.CursorFreq = m.Frequency
	c.state.ClampCursor()
	c.state.SetMessage(fmt.Sprintf("Jumped to marker %d: %s", slot+1, humanFreq(m.Frequency)), now)
	return EffectNone
}

func (c *Controller) setMarker(slot int, now time.Time) Effect {
	c.state.Markers[slot] = &spectrum.Marker{
		Frequency: c.state.CursorFreq,
		SetAt:     now,
	}
	c.state.SetMessage(fmt.Sprintf("Marker %d set to %s", slot+1, humanFreq(c.state.CursorFreq)), now)
	return EffectNone
}

func flag(v bool) string {
	if v {
		return "enabled"
	}
	return "disabled"
}

func humanFreq(hz float64) string {
	v, suffix := humanize.ComputeSI(hz)
	return fmt.Sprintf("%0.3f %sHz", v, suffix)
}
