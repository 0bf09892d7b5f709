// Package pipeline runs the acquisition, analysis and render loop. A
// single goroutine owns the whole cycle: drain pending keystrokes,
// acquire one sample block, estimate its spectrum, push the row into
// the waterfall and compose the frame onto the display sink. Keeping
// one owner means the display state needs no locking.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/sdrtools/heatwave/internal/control"
	"github.com/sdrtools/heatwave/internal/dsp"
	"github.com/sdrtools/heatwave/internal/export"
	"github.com/sdrtools/heatwave/internal/fbdev"
	"github.com/sdrtools/heatwave/internal/render"
	"github.com/sdrtools/heatwave/internal/sdr"
	"github.com/sdrtools/heatwave/internal/settings"
	"github.com/sdrtools/heatwave/internal/spectrum"
	"github.com/sdrtools/heatwave/internal/waterfall"
)

// errQuit stops the loop from inside without reporting a failure.
var errQuit = errors.New("quit requested")

// Config carries the collaborators the driver runs.
type Config struct {
	Source     sdr.Source
	Estimator  *dsp.Estimator
	AGC        *dsp.AGC
	Buffer     *waterfall.Buffer
	Compositor *render.Compositor
	Mapper     *render.ColorMapper
	Sink       fbdev.Sink
	ColorMode  fbdev.ColorMode
	State      *control.State
	Controller *control.Controller
	Exporter   *export.Exporter
	Keys       <-chan control.Key

	// Window names the analysis window for export metadata.
	Window string

	// SettingsPath is where the save-settings key writes to. Empty
	// disables persistence.
	SettingsPath string
}

// WithLogger sets the logger. If this option is not provided, logging
// is disabled.
func WithLogger(logger *slog.Logger) func(*Driver) {
	return func(d *Driver) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// Driver owns the render loop.
type Driver struct {
	cfg    Config
	logger *slog.Logger

	bounds     *render.BoundsTracker
	lastRow    *spectrum.Row
	appliedAvg dsp.Averaging

	// pushes at the last export, for the once-per-fill auto export
	exportedAt uint64
}

// New creates a driver. Call Run to start the loop.
func New(cfg Config, options ...func(*Driver)) (*Driver, error) {
	switch {
	case cfg.Source == nil:
		return nil, errors.New("pipeline: source is required")
	case cfg.Estimator == nil:
		return nil, errors.New("pipeline: estimator is required")
	case cfg.Buffer == nil:
		return nil, errors.New("pipeline: buffer is required")
	case cfg.Compositor == nil:
		return nil, errors.New("pipeline: compositor is required")
	case cfg.Mapper == nil:
		return nil, errors.New("pipeline: mapper is required")
	case cfg.Sink == nil:
		return nil, errors.New("pipeline: sink is required")
	case cfg.State == nil || cfg.Controller == nil:
		return nil, errors.New("pipeline: state and controller are required")
	}

	d := &Driver{
		cfg:        cfg,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
		bounds:     render.NewBoundsTracker(0),
		appliedAvg: cfg.State.Averaging,
	}
	for _, option := range options {
		option(d)
	}
	return d, nil
}

// Run drives render cycles at the state's scroll speed until ctx is
// cancelled, the quit key arrives or the device fails.
func (d *Driver) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			reset, err := d.cycle(ctx)
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				return err
			}
			if reset {
				ticker.Reset(d.interval())
			}
		}
	}
}

func (d *Driver) interval() time.Duration {
	return time.Duration(float64(time.Second) / d.cfg.State.ScrollSpeed)
}

// cycle runs one iteration. reset reports that the scroll speed
// changed and the cadence ticker must be re-armed.
func (d *Driver) cycle(ctx context.Context) (reset bool, err error) {
	reset, err = d.drainKeys(ctx)
	if err != nil {
		return false, err
	}

	if !d.cfg.State.Paused {
		if err := d.acquire(ctx); err != nil {
			return false, err
		}
	}

	if err := d.render(); err != nil {
		return false, err
	}

	if d.cfg.State.AutoExport && d.autoExportDue() {
		d.export(ctx)
		d.cfg.State.SetMessage("Auto-export complete", time.Now())
	}

	return reset, nil
}

// drainKeys applies every pending keystroke before acquisition so a
// burst of input lands on the same frame.
func (d *Driver) drainKeys(ctx context.Context) (reset bool, err error) {
	for {
		select {
		case k, ok := <-d.cfg.Keys:
			if !ok {
				return reset, errQuit
			}
			r, err := d.apply(ctx, d.cfg.Controller.Handle(k))
			if err != nil {
				return false, err
			}
			reset = reset || r
		default:
			return reset, nil
		}
	}
}

func (d *Driver) apply(ctx context.Context, effect control.Effect) (reset bool, err error) {
	state := d.cfg.State

	switch effect {
	case control.EffectQuit:
		return false, errQuit

	case control.EffectSpeedChanged:
		return true, nil

	case control.EffectGainChanged:
		if d.cfg.AGC != nil {
			d.cfg.AGC.SetGain(state.Gain)
		}
		if err := d.cfg.Source.SetGain(state.Gain); err != nil {
			d.logger.Warn("gain change failed", "gain", state.Gain, "error", err)
			state.SetMessage("Gain change failed", time.Now())
		}

	case control.EffectClear:
		d.cfg.Buffer.Reset()
		d.cfg.Estimator.Reset()
		d.bounds.Reset()
		d.lastRow = nil

	case control.EffectExport:
		d.export(ctx)

	case control.EffectSaveSettings:
		d.saveSettings()
	}

	return false, nil
}

func (d *Driver) saveSettings() {
	state := d.cfg.State
	if d.cfg.SettingsPath == "" {
		state.SetMessage("Settings persistence is disabled", time.Now())
		return
	}
	if err := settings.Capture(state).Save(d.cfg.SettingsPath); err != nil {
		d.logger.Warn("saving settings failed", "path", d.cfg.SettingsPath, "error", err)
		state.SetMessage("Saving settings failed", time.Now())
		return
	}
	state.SetMessage("Settings saved", time.Now())
}

// acquire reads one block, estimates its spectrum and pushes the row.
// An acquisition gap repeats the previous row so the display keeps
// scrolling; any other device error is fatal.
func (d *Driver) acquire(ctx context.Context) error {
	state := d.cfg.State

	if state.Averaging != d.appliedAvg {
		d.cfg.Estimator.SetAveraging(state.Averaging)
		d.appliedAvg = state.Averaging
	}

	block, err := d.cfg.Source.ReadBlock(ctx)

	var row *spectrum.Row
	switch {
	case err == nil:
		row, err = d.cfg.Estimator.Process(block)
	case errors.Is(err, context.Canceled):
		return nil
	}

	if errors.Is(err, sdr.ErrAcquisitionGap) {
		if d.lastRow == nil {
			d.logger.Warn("acquisition gap before first row")
			return nil
		}
		d.logger.Warn("acquisition gap, repeating previous row")
		row = d.lastRow.Clone()
		row.Timestamp = time.Now()
	} else if err != nil {
		return fmt.Errorf("%w: %w", sdr.ErrDeviceFailure, err)
	}

	if d.cfg.AGC != nil && state.AGCEnabled {
		if gain, changed := d.cfg.AGC.Update(dsp.Mean(row.Power), time.Now()); changed {
			if err := d.cfg.Source.SetGain(gain); err != nil {
				d.logger.Warn("AGC gain change failed", "gain", gain, "error", err)
			} else {
				state.Gain = gain
			}
		}
	}

	if err := d.cfg.Buffer.Push(row); err != nil {
		return fmt.Errorf("pushing row: %w", err)
	}
	d.lastRow = row
	state.RowCount++
	state.FreqStart = row.FrequencyStart()
	state.FreqEnd = row.FrequencyEnd()
	if state.CursorFreq == 0 {
		state.CursorFreq = row.CenterFreq
	}
	state.ClampCursor()
	return nil
}

// render assembles a frame from current state and writes it out.
func (d *Driver) render() error {
	state := d.cfg.State
	now := time.Now()

	frame := &render.Frame{
		FreqStart: state.FreqStart,
		FreqEnd:   state.FreqEnd,
		Cursor:    state.CursorFreq,
		Markers:   state.Markers,
		Status:    state.StatusLines(),
		Message:   state.Message(now),
		Now:       now,
	}

	switch d.cfg.Controller.Mode() {
	case control.ModeAnnotating:
		frame.Message = "Note: " + d.cfg.Controller.PendingText() + "_"
	case control.ModeJumping:
		frame.Message = "Frequency (MHz): " + d.cfg.Controller.PendingText() + "_"
	}

	rows := d.cfg.Buffer.Rows()
	frame.Rows = make([][]float64, 0, len(rows))
	for _, row := range rows {
		frame.Rows = append(frame.Rows, row.Power)
	}

	latest := d.cfg.Buffer.Latest()
	if state.PeakHold && len(frame.Rows) > 0 {
		if peak := d.cfg.Buffer.Peak(); peak != nil {
			frame.Rows[len(frame.Rows)-1] = peak
		}
	}

	if latest != nil {
		state.CursorPower = cursorPower(latest, state.CursorFreq)
		frame.CursorPower = state.CursorPower
	}

	if state.AutoScale {
		if latest != nil {
			frame.Bounds = d.bounds.Observe(latest.Power)
		} else {
			frame.Bounds = d.bounds.Current()
		}
	} else {
		frame.Bounds = render.DefaultPowerBounds()
	}

	plotHeight := int64(d.cfg.Compositor.PlotHeight())
	for _, a := range state.Annotations {
		age := state.RowCount - a.Row
		if age < 0 || age >= plotHeight {
			continue
		}
		frame.Annotations = append(frame.Annotations, render.AnnotationView{Annotation: a, Age: age})
	}

	d.cfg.Mapper.SetScheme(state.Scheme)
	d.cfg.Mapper.SetBounds(frame.Bounds.Min, frame.Bounds.Max)

	img := d.cfg.Compositor.Render(frame, d.cfg.Mapper)
	if err := d.cfg.Sink.Write(img, d.cfg.ColorMode); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// autoExportDue reports that a full buffer of new rows accumulated
// since the last export.
func (d *Driver) autoExportDue() bool {
	pushes := d.cfg.Buffer.Pushes()
	return d.cfg.Buffer.Full() && pushes-d.exportedAt >= uint64(d.cfg.Buffer.Cap())
}

// export captures a snapshot and writes the bundle. Failures are
// reported on the display, never fatal.
func (d *Driver) export(ctx context.Context) {
	if d.cfg.Exporter == nil {
		d.cfg.State.SetMessage("Export is disabled", time.Now())
		return
	}

	d.cfg.Controller.BeginExport()
	snap := d.snapshot()
	_, err := d.cfg.Exporter.Export(ctx, snap)
	d.cfg.Controller.EndExport(err)

	// Advance the marker on failure as well: one buffer fill gets one
	// attempt instead of a retry storm on every cycle.
	d.exportedAt = d.cfg.Buffer.Pushes()
	if err != nil {
		d.logger.Error("export failed", "error", err)
	}
}

func (d *Driver) snapshot() *export.Snapshot {
	state := d.cfg.State

	snap := &export.Snapshot{
		CreatedAt:   time.Now(),
		FFTSize:     d.cfg.Estimator.Bins(),
		Window:      d.cfg.Window,
		Gain:        state.Gain,
		ColorScheme: string(state.Scheme),
		Bounds:      d.bounds.Current(),
		Rows:        d.cfg.Buffer.Rows(),
		Annotations: append([]spectrum.Annotation(nil), state.Annotations...),
		Markers:     state.Markers,
	}
	if latest := d.cfg.Buffer.Latest(); latest != nil {
		snap.CenterFreq = latest.CenterFreq
		snap.SampleRate = latest.SampleRate
	}

	// Re-render so the PNG matches what is on screen.
	frame := &render.Frame{
		Rows:      make([][]float64, 0, len(snap.Rows)),
		FreqStart: state.FreqStart,
		FreqEnd:   state.FreqEnd,
		Bounds:    snap.Bounds,
		Cursor:    state.CursorFreq,
		Markers:   state.Markers,
		Now:       snap.CreatedAt,
	}
	for _, row := range snap.Rows {
		frame.Rows = append(frame.Rows, row.Power)
	}
	if !state.AutoScale {
		frame.Bounds = render.DefaultPowerBounds()
	}
	d.cfg.Mapper.SetBounds(frame.Bounds.Min, frame.Bounds.Max)

	img := d.cfg.Compositor.Render(frame, d.cfg.Mapper)
	copied := *img
	copied.Pix = append([]uint8(nil), img.Pix...)
	snap.Image = &copied

	return snap
}

// cursorPower samples the newest row at the cursor frequency.
func cursorPower(row *spectrum.Row, freq float64) float64 {
	if row.Bins() == 0 {
		return 0
	}
	bin := int((freq - row.FrequencyStart()) / row.BinWidth())
	if bin < 0 {
		bin = 0
	}
	if bin >= row.Bins() {
		bin = row.Bins() - 1
	}
	return row.Power[bin]
}
